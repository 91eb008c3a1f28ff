package hasher

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestNewDefaultsCost(t *testing.T) {
	tests := []struct {
		name string
		cost int
		want int
	}{
		{"zero", 0, DefaultCost},
		{"negative", -5, DefaultCost},
		{"explicit", 4, 4},
		{"below min raised", 1, bcrypt.MinCost},
		{"just below min raised", bcrypt.MinCost - 1, bcrypt.MinCost},
		{"above max kept", 40, 40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, New(tt.cost).Cost())
		})
	}
}

func TestHashAndVerify(t *testing.T) {
	h := New(bcrypt.MinCost)

	hash, err := h.Hash("pw1")
	require.NoError(t, err)

	assert.NotEqual(t, "pw1", hash)
	assert.True(t, strings.HasPrefix(hash, "$2a$"), "unexpected hash prefix: %s", hash)

	tests := []struct {
		name     string
		password string
		want     bool
	}{
		{"correct password", "pw1", true},
		{"wrong password", "pw2", false},
		{"empty password", "", false},
		{"prefix of password", "pw", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, h.Verify(tt.password, hash))
		})
	}
}

func TestHashIsSalted(t *testing.T) {
	h := New(bcrypt.MinCost)

	first, err := h.Hash("same password")
	require.NoError(t, err)
	second, err := h.Hash("same password")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.True(t, h.Verify("same password", first))
	assert.True(t, h.Verify("same password", second))
}

func TestHashUsesConfiguredCost(t *testing.T) {
	h := New(5)

	hash, err := h.Hash("password123")
	require.NoError(t, err)

	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, 5, cost)
}

func TestHashWithLowCostUsesMinCost(t *testing.T) {
	h := New(2)

	hash, err := h.Hash("password123")
	require.NoError(t, err)

	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, h.Cost(), cost)
	assert.Equal(t, bcrypt.MinCost, cost)
}

func TestHashRejectsInvalidCost(t *testing.T) {
	h := New(bcrypt.MaxCost + 1)

	_, err := h.Hash("password123")
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestHashRejectsTooLongPassword(t *testing.T) {
	h := New(bcrypt.MinCost)

	_, err := h.Hash(strings.Repeat("a", 73))
	assert.ErrorIs(t, err, ErrPasswordTooLong)
}

func TestVerifyInvalidHash(t *testing.T) {
	h := New(bcrypt.MinCost)

	for _, hash := range []string{"", "not-a-hash", "$2a$10$abc"} {
		assert.False(t, h.Verify("password", hash), "hash %q", hash)
	}
}
