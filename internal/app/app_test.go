package app

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/steinfletcher/apitest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patric-chuzhbe/todolist/internal/config"
	"github.com/patric-chuzhbe/todolist/internal/models"
)

func newTestConfigOptions() []config.InitOption {
	return []config.InitOption{
		config.WithDisableFlagsParsing(true),
		config.WithDisableDotEnv(true),
	}
}

func TestGetAvailableStorageType(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.Config
		want int
	}{
		{"memory by default", config.Config{}, models.StorageTypeMemory},
		{"file", config.Config{DBFileName: "db.json"}, models.StorageTypeFile},
		{"postgres over file", config.Config{DBFileName: "db.json", DatabaseDSN: "postgres://x"}, models.StorageTypePostgresql},
		{"mongo over everything", config.Config{DBFileName: "db.json", DatabaseDSN: "postgres://x", MongoURI: "mongodb://x"}, models.StorageTypeMongo},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.want, getAvailableStorageType(&test.cfg))
		})
	}
}

func TestNew_RequiresSecret(t *testing.T) {
	t.Setenv("SECRET_KEY", "")

	_, err := New(newTestConfigOptions()...)
	assert.ErrorIs(t, err, config.ErrMissingSecretKey)
}

func TestNew_WiresTheHandler(t *testing.T) {
	t.Setenv("SECRET_KEY", "app-test-secret")
	t.Setenv("SALT_ROUNDS", "4")

	theApp, err := New(newTestConfigOptions()...)
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, theApp.Close())
	}()

	apitest.New().
		Handler(theApp.Handler()).
		Get("/").
		Expect(t).
		Status(http.StatusOK).
		Body(`Hello welcome !`).
		End()

	apitest.New().
		Handler(theApp.Handler()).
		Post("/users/register").
		JSON(`{"email":"alice@example.com","password":"secret"}`).
		Expect(t).
		Status(http.StatusCreated).
		End()

	apitest.New().
		Handler(theApp.Handler()).
		Get("/todos").
		Expect(t).
		Status(http.StatusUnauthorized).
		End()
}

func TestNew_FileStoragePersistsOnClose(t *testing.T) {
	dbFileName := filepath.Join(t.TempDir(), "todolist.json")
	t.Setenv("SECRET_KEY", "app-test-secret")
	t.Setenv("SALT_ROUNDS", "4")
	t.Setenv("FILE_STORAGE_PATH", dbFileName)

	theApp, err := New(newTestConfigOptions()...)
	require.NoError(t, err)

	apitest.New().
		Handler(theApp.Handler()).
		Post("/users/register").
		JSON(`{"email":"alice@example.com","password":"secret"}`).
		Expect(t).
		Status(http.StatusCreated).
		End()

	require.NoError(t, theApp.Close())

	content, err := os.ReadFile(dbFileName)
	require.NoError(t, err)
	assert.Contains(t, string(content), "alice@example.com")
}

func TestNew_FileStorageFlushesPeriodically(t *testing.T) {
	dbFileName := filepath.Join(t.TempDir(), "todolist.json")
	t.Setenv("SECRET_KEY", "app-test-secret")
	t.Setenv("SALT_ROUNDS", "4")
	t.Setenv("FILE_STORAGE_PATH", dbFileName)
	t.Setenv("STORAGE_FLUSH_INTERVAL", "10ms")

	theApp, err := New(newTestConfigOptions()...)
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, theApp.Close())
	}()
	require.NotNil(t, theApp.flusher)

	apitest.New().
		Handler(theApp.Handler()).
		Post("/users/register").
		JSON(`{"email":"bob@example.com","password":"secret"}`).
		Expect(t).
		Status(http.StatusCreated).
		End()

	assert.Eventually(t, func() bool {
		content, err := os.ReadFile(dbFileName)
		return err == nil && strings.Contains(string(content), "bob@example.com")
	}, 2*time.Second, 10*time.Millisecond)
}

func TestShutdownSignals(t *testing.T) {
	assert.ElementsMatch(t, []os.Signal{syscall.SIGINT, syscall.SIGTERM}, shutdownSignals)
}

func TestNew_FileStorageKeepsLoginAcrossRestart(t *testing.T) {
	dbFileName := filepath.Join(t.TempDir(), "todolist.json")
	t.Setenv("SECRET_KEY", "app-test-secret")
	t.Setenv("SALT_ROUNDS", "4")
	t.Setenv("FILE_STORAGE_PATH", dbFileName)

	first, err := New(newTestConfigOptions()...)
	require.NoError(t, err)

	apitest.New().
		Handler(first.Handler()).
		Post("/users/register").
		JSON(`{"email":"alice@example.com","password":"secret"}`).
		Expect(t).
		Status(http.StatusCreated).
		End()

	require.NoError(t, first.Close())

	content, err := os.ReadFile(dbFileName)
	require.NoError(t, err)
	assert.NotContains(t, string(content), `"secret"`)

	second, err := New(newTestConfigOptions()...)
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, second.Close())
	}()

	apitest.New().
		Handler(second.Handler()).
		Post("/users/login").
		JSON(`{"email":"alice@example.com","password":"secret"}`).
		Expect(t).
		Status(http.StatusOK).
		End()

	apitest.New().
		Handler(second.Handler()).
		Post("/users/login").
		JSON(`{"email":"alice@example.com","password":"wrong"}`).
		Expect(t).
		Status(http.StatusUnauthorized).
		End()
}
