// Package config assembles the service configuration from defaults, an
// optional JSON file, environment variables (including a .env file) and
// command-line flags, in increasing order of priority.
package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	env "github.com/caarlos0/env/v6"
	validator "github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

const defaultHashCost = 10

var (
	// ErrMissingSecretKey is returned when no token signing secret is configured.
	ErrMissingSecretKey = errors.New("SECRET_KEY is missing")

	// ErrHashCostTooHigh is returned when SALT_ROUNDS exceeds what bcrypt accepts.
	ErrHashCostTooHigh = errors.New("SALT_ROUNDS is above the bcrypt maximum")
)

// Config holds the process-wide settings. It is built once at startup and
// treated as read-only afterwards.
type Config struct {
	RunAddr             string        `env:"SERVER_ADDRESS" validate:"hostname_port"`
	LogLevel            string        `env:"LOG_LEVEL" validate:"loglevel"`
	DBFileName          string        `env:"FILE_STORAGE_PATH" validate:"filepath"`
	DatabaseDSN         string        `env:"DATABASE_DSN"`
	MongoURI            string        `env:"MONGO_URI"`
	MongoDatabase       string        `env:"MONGO_DATABASE" validate:"required"`
	DBConnectionTimeout time.Duration `env:"DB_CONNECTION_TIMEOUT" validate:"gt=0"`
	SecretKey           string        `env:"SECRET_KEY"`
	SaltRounds          string        `env:"SALT_ROUNDS"`
	TokenTTL            time.Duration `env:"TOKEN_TTL" validate:"gt=0"`
	AuthCookieName      string        `env:"AUTH_COOKIE_NAME" validate:"required"`
	SecureCookie        bool          `env:"COOKIE_SECURE"`
	OwnershipChecks     bool          `env:"OWNERSHIP_CHECKS"`
	TrustedSubnet       string        `env:"TRUSTED_SUBNET" validate:"omitempty,cidr"`
	UserCacheTTL        time.Duration `env:"USER_CACHE_TTL" validate:"gte=0"`
	FlushInterval       time.Duration `env:"STORAGE_FLUSH_INTERVAL" validate:"gte=0"`
	EnableGzip          bool          `env:"ENABLE_GZIP"`
	ConfigFile          string        `env:"CONFIG"`
}

// fileConfig mirrors Config for the JSON file. Pointers tell "absent" from "zero".
type fileConfig struct {
	RunAddr             *string `json:"server_address"`
	LogLevel            *string `json:"log_level"`
	DBFileName          *string `json:"file_storage_path"`
	DatabaseDSN         *string `json:"database_dsn"`
	MongoURI            *string `json:"mongo_uri"`
	MongoDatabase       *string `json:"mongo_database"`
	DBConnectionTimeout *string `json:"db_connection_timeout"`
	SecretKey           *string `json:"secret_key"`
	SaltRounds          *int    `json:"salt_rounds"`
	TokenTTL            *string `json:"token_ttl"`
	AuthCookieName      *string `json:"auth_cookie_name"`
	SecureCookie        *bool   `json:"cookie_secure"`
	OwnershipChecks     *bool   `json:"ownership_checks"`
	TrustedSubnet       *string `json:"trusted_subnet"`
	UserCacheTTL        *string `json:"user_cache_ttl"`
	FlushInterval       *string `json:"storage_flush_interval"`
	EnableGzip          *bool   `json:"enable_gzip"`
}

var defaultConfig = Config{
	RunAddr:             ":3000",
	LogLevel:            "info",
	DBFileName:          "",
	DatabaseDSN:         "",
	MongoURI:            "",
	MongoDatabase:       "todolist",
	DBConnectionTimeout: 10 * time.Second,
	SecretKey:           "",
	SaltRounds:          strconv.Itoa(defaultHashCost),
	TokenTTL:            time.Hour,
	AuthCookieName:      "token",
	SecureCookie:        true,
	OwnershipChecks:     true,
	TrustedSubnet:       "",
	UserCacheTTL:        10 * time.Minute,
	FlushInterval:       30 * time.Second,
	EnableGzip:          true,
}

// InitOption configures how New gathers the configuration.
type InitOption func(*initOptions)

type initOptions struct {
	disableFlagsParsing bool
	disableDotEnv       bool
	args                []string
}

// WithDisableFlagsParsing skips command-line flags. Useful in tests.
func WithDisableFlagsParsing(disableFlagsParsing bool) InitOption {
	return func(options *initOptions) {
		options.disableFlagsParsing = disableFlagsParsing
	}
}

// WithDisableDotEnv skips loading the .env file.
func WithDisableDotEnv(disableDotEnv bool) InitOption {
	return func(options *initOptions) {
		options.disableDotEnv = disableDotEnv
	}
}

// WithArgs replaces os.Args[1:] as the source of command-line flags.
func WithArgs(args []string) InitOption {
	return func(options *initOptions) {
		options.args = args
	}
}

// New builds and validates the configuration.
func New(optionsProto ...InitOption) (*Config, error) {
	options := &initOptions{
		disableFlagsParsing: false,
		disableDotEnv:       false,
		args:                os.Args[1:],
	}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	if !options.disableDotEnv {
		if err := godotenv.Load(); err != nil {
			log.Printf("Unable to load .env file: %v", err)
		}
	}

	values := &Config{}
	applyDefaults(values, defaultConfig)

	configFile := os.Getenv("CONFIG")
	if !options.disableFlagsParsing {
		if fromArgs := lookupConfigFlag(options.args); fromArgs != "" {
			configFile = fromArgs
		}
	}
	if configFile != "" {
		if err := values.loadJSON(configFile); err != nil {
			return nil, err
		}
	}

	if err := env.Parse(values); err != nil {
		return nil, fmt.Errorf("in internal/config/config.go/New(): error while `env.Parse()` calling: %w", err)
	}

	if !options.disableFlagsParsing {
		if err := values.parseFlags(options.args); err != nil {
			return nil, err
		}
	}

	if values.SecretKey == "" {
		return nil, ErrMissingSecretKey
	}

	if err := validate(values); err != nil {
		return nil, err
	}

	if cost := values.HashCost(); cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("%w: %d > %d", ErrHashCostTooHigh, cost, bcrypt.MaxCost)
	}

	return values, nil
}

// HashCost returns SALT_ROUNDS as a bcrypt cost, falling back to 10 when it
// is unset, not a number or not positive.
func (c *Config) HashCost() int {
	cost, err := strconv.Atoi(strings.TrimSpace(c.SaltRounds))
	if err != nil || cost <= 0 {
		return defaultHashCost
	}

	return cost
}

func applyDefaults(values *Config, defaults Config) {
	*values = defaults
}

func (c *Config) parseFlags(args []string) error {
	flags := flag.NewFlagSet("todolist", flag.ContinueOnError)

	flags.StringVar(&c.ConfigFile, "c", c.ConfigFile, "path to the JSON configuration file")
	flags.StringVar(&c.RunAddr, "a", c.RunAddr, "address and port to run server")
	flags.StringVar(&c.LogLevel, "l", c.LogLevel, "logger level")
	flags.StringVar(&c.DBFileName, "f", c.DBFileName, "JSON file name with database")
	flags.StringVar(&c.DatabaseDSN, "d", c.DatabaseDSN, "PostgreSQL connection string")
	flags.StringVar(&c.MongoURI, "m", c.MongoURI, "MongoDB connection URI")
	flags.StringVar(&c.SecretKey, "k", c.SecretKey, "token signing secret")
	flags.StringVar(&c.SaltRounds, "s", c.SaltRounds, "bcrypt cost factor")
	flags.DurationVar(&c.TokenTTL, "ttl", c.TokenTTL, "token validity window")
	flags.DurationVar(&c.FlushInterval, "flush", c.FlushInterval, "how often the JSON file store is written to disk (0 disables)")
	flags.BoolVar(&c.OwnershipChecks, "o", c.OwnershipChecks, "require todo ownership on create, update and delete")
	flags.StringVar(&c.TrustedSubnet, "t", c.TrustedSubnet, "trusted subnet (CIDR) for internal endpoints")

	if err := flags.Parse(args); err != nil {
		return fmt.Errorf("in internal/config/config.go/parseFlags(): error while `flags.Parse()` calling: %w", err)
	}

	return nil
}

func lookupConfigFlag(args []string) string {
	for i, arg := range args {
		switch {
		case arg == "-c" || arg == "--c":
			if i+1 < len(args) {
				return args[i+1]
			}
		case strings.HasPrefix(arg, "-c="):
			return strings.TrimPrefix(arg, "-c=")
		case strings.HasPrefix(arg, "--c="):
			return strings.TrimPrefix(arg, "--c=")
		}
	}

	return ""
}

func (c *Config) loadJSON(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("in internal/config/config.go/loadJSON(): error while `os.ReadFile()` calling: %w", err)
	}

	var fromFile fileConfig
	if err := json.Unmarshal(data, &fromFile); err != nil {
		return fmt.Errorf("in internal/config/config.go/loadJSON(): error while `json.Unmarshal()` calling: %w", err)
	}

	setString(&c.RunAddr, fromFile.RunAddr)
	setString(&c.LogLevel, fromFile.LogLevel)
	setString(&c.DBFileName, fromFile.DBFileName)
	setString(&c.DatabaseDSN, fromFile.DatabaseDSN)
	setString(&c.MongoURI, fromFile.MongoURI)
	setString(&c.MongoDatabase, fromFile.MongoDatabase)
	setString(&c.SecretKey, fromFile.SecretKey)
	setString(&c.AuthCookieName, fromFile.AuthCookieName)
	setString(&c.TrustedSubnet, fromFile.TrustedSubnet)
	setBool(&c.SecureCookie, fromFile.SecureCookie)
	setBool(&c.OwnershipChecks, fromFile.OwnershipChecks)
	setBool(&c.EnableGzip, fromFile.EnableGzip)

	if fromFile.SaltRounds != nil {
		c.SaltRounds = strconv.Itoa(*fromFile.SaltRounds)
	}

	durations := []struct {
		target *time.Duration
		value  *string
	}{
		{&c.DBConnectionTimeout, fromFile.DBConnectionTimeout},
		{&c.TokenTTL, fromFile.TokenTTL},
		{&c.UserCacheTTL, fromFile.UserCacheTTL},
		{&c.FlushInterval, fromFile.FlushInterval},
	}
	for _, d := range durations {
		if d.value == nil {
			continue
		}
		parsed, err := time.ParseDuration(*d.value)
		if err != nil {
			return fmt.Errorf("in internal/config/config.go/loadJSON(): error while `time.ParseDuration()` calling: %w", err)
		}
		*d.target = parsed
	}

	return nil
}

func setString(target *string, value *string) {
	if value != nil {
		*target = *value
	}
}

func setBool(target *bool, value *bool) {
	if value != nil {
		*target = *value
	}
}

func validateFilePath(fieldLevel validator.FieldLevel) bool {
	path := fieldLevel.Field().String()
	_, err := os.Stat(path)

	return err == nil || os.IsNotExist(err)
}

func validateLogLevel(fieldLevel validator.FieldLevel) bool {
	value := fieldLevel.Field().String()

	allowedLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
		"fatal": true,
	}

	return allowedLogLevels[value]
}

func validate(values *Config) error {
	validate := validator.New()

	err := validate.RegisterValidation("loglevel", validateLogLevel)
	if err != nil {
		return err
	}

	err = validate.RegisterValidation("filepath", validateFilePath)
	if err != nil {
		return err
	}

	return validate.Struct(values)
}
