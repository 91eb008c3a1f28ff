// Package hasher salts and hashes account passwords with bcrypt and checks
// presented passwords against the stored hashes.
package hasher

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is used when the configured cost factor is unset or not positive.
const DefaultCost = 10

var (
	// ErrConfiguration is returned when bcrypt rejects the configured cost factor.
	ErrConfiguration = errors.New("password hasher is misconfigured")

	// ErrPasswordTooLong is returned for passwords longer than bcrypt accepts (72 bytes).
	ErrPasswordTooLong = bcrypt.ErrPasswordTooLong
)

// Hasher hashes and verifies passwords using a fixed bcrypt cost.
type Hasher struct {
	cost int
}

// New creates a Hasher. A cost <= 0 falls back to DefaultCost and a cost
// below bcrypt.MinCost is raised to it. Costs above bcrypt.MaxCost are kept
// and reported by Hash as ErrConfiguration.
func New(cost int) *Hasher {
	switch {
	case cost <= 0:
		cost = DefaultCost
	case cost < bcrypt.MinCost:
		cost = bcrypt.MinCost
	}

	return &Hasher{cost: cost}
}

// Cost returns the cost factor Hash uses.
func (h *Hasher) Cost() int {
	return h.cost
}

// Hash returns the salted bcrypt hash of password.
func (h *Hasher) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		var costErr bcrypt.InvalidCostError
		if errors.As(err, &costErr) {
			return "", fmt.Errorf("%w: %v", ErrConfiguration, err)
		}

		return "", fmt.Errorf(
			"in internal/hasher/hasher.go/Hash(): error while `bcrypt.GenerateFromPassword()` calling: %w",
			err,
		)
	}

	return string(hash), nil
}

// Verify reports whether password matches hash. A mismatch and an unreadable
// hash both yield false.
func (h *Hasher) Verify(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
