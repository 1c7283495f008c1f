// Package config loads the service configuration. Sources are applied in
// increasing priority: built-in defaults, a JSON file, environment
// variables (a .env file is loaded first when present) and command-line flags.
package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	env "github.com/caarlos0/env/v6"
	validator "github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/patric-chuzhbe/yourplaces/internal/models"
)

// Config holds every setting of the service.
type Config struct {
	RunAddr             string        `env:"SERVER_ADDRESS" validate:"hostname_port"`
	LogLevel            string        `env:"LOG_LEVEL" validate:"loglevel"`
	DatabaseDSN         string        `env:"DATABASE_DSN"`
	MongoURI            string        `env:"MONGO_URI" validate:"omitempty,uri"`
	MongoDatabase       string        `env:"MONGO_DATABASE" validate:"required_with=MongoURI"`
	MigrationsDir       string        `env:"MIGRATIONS_DIR" validate:"filepath"`
	DBConnectionTimeout time.Duration `env:"DB_CONNECTION_TIMEOUT" validate:"gt=0"`
	TransactionTimeout  time.Duration `env:"TRANSACTION_TIMEOUT" validate:"gt=0"`
	Secret              string        `env:"SECRET" validate:"required"`
	TokenTTL            time.Duration `env:"TOKEN_TTL" validate:"gt=0"`
	UploadsDir          string        `env:"UPLOADS_DIR" validate:"required,filepath"`
	ConfigFile          string        `env:"CONFIG"`
}

// jsonConfig mirrors Config for the JSON file, where durations are strings like "5s".
type jsonConfig struct {
	RunAddr             string `json:"server_address"`
	LogLevel            string `json:"log_level"`
	DatabaseDSN         string `json:"database_dsn"`
	MongoURI            string `json:"mongo_uri"`
	MongoDatabase       string `json:"mongo_database"`
	MigrationsDir       string `json:"migrations_dir"`
	DBConnectionTimeout string `json:"db_connection_timeout"`
	TransactionTimeout  string `json:"transaction_timeout"`
	Secret              string `json:"secret"`
	TokenTTL            string `json:"token_ttl"`
	UploadsDir          string `json:"uploads_dir"`
}

var defaultConfig = Config{
	RunAddr:             ":5000",
	LogLevel:            "info",
	MongoDatabase:       "places",
	MigrationsDir:       "cmd/placesapi/migrations",
	DBConnectionTimeout: 10 * time.Second,
	TransactionTimeout:  5 * time.Second,
	TokenTTL:            time.Hour,
	UploadsDir:          "uploads/images",
}

// ErrSecretMissing is returned when no token signing secret is configured.
var ErrSecretMissing = errors.New("SECRET is not configured")

type InitOption func(*initOptions)

type initOptions struct {
	disableFlagsParsing bool
	args                []string
}

func WithDisableFlagsParsing(disableFlagsParsing bool) InitOption {
	return func(options *initOptions) {
		options.disableFlagsParsing = disableFlagsParsing
	}
}

// WithArgs replaces os.Args[1:] as the source of command-line flags.
func WithArgs(args []string) InitOption {
	return func(options *initOptions) {
		options.args = args
	}
}

// New builds the configuration from all sources and validates it.
func New(optionsProto ...InitOption) (*Config, error) {
	options := &initOptions{
		disableFlagsParsing: false,
		args:                os.Args[1:],
	}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	err := godotenv.Load()
	if err != nil {
		log.Printf("Unable to load .env file: %v", err)
	}

	values := &Config{}
	applyDefaults(values, defaultConfig)

	var (
		flagSet    *flag.FlagSet
		fromFlags  Config
		configFile string
	)
	if !options.disableFlagsParsing {
		flagSet = newFlagSet(&fromFlags)
		if err := flagSet.Parse(options.args); err != nil {
			return nil, fmt.Errorf("in internal/config/config.go/New(): error while `flagSet.Parse()` calling: %w", err)
		}
		configFile = fromFlags.ConfigFile
	}
	if configFile == "" {
		configFile = os.Getenv("CONFIG")
	}

	if configFile != "" {
		if err := values.loadJSON(configFile); err != nil {
			return nil, fmt.Errorf("in internal/config/config.go/New(): error while `values.loadJSON()` calling: %w", err)
		}
	}

	if err := env.Parse(values); err != nil {
		return nil, fmt.Errorf("in internal/config/config.go/New(): error while `env.Parse()` calling: %w", err)
	}

	if flagSet != nil {
		applyExplicitFlags(values, &fromFlags, flagSet)
	}
	values.ConfigFile = configFile

	if err := values.validate(); err != nil {
		return nil, err
	}

	return values, nil
}

func newFlagSet(target *Config) *flag.FlagSet {
	flagSet := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	flagSet.StringVar(&target.RunAddr, "a", "", "address and port to run server")
	flagSet.StringVar(&target.LogLevel, "l", "", "logger level")
	flagSet.StringVar(&target.DatabaseDSN, "d", "", "A string with the database connection details")
	flagSet.StringVar(&target.MongoURI, "m", "", "MongoDB connection URI")
	flagSet.StringVar(&target.Secret, "s", "", "JWT signing secret")
	flagSet.StringVar(&target.UploadsDir, "u", "", "directory for uploaded images")
	flagSet.StringVar(&target.ConfigFile, "c", "", "path to the JSON config file")

	return flagSet
}

// applyExplicitFlags copies only the flags that were actually passed, so an
// unset flag never masks a value from the environment or the JSON file.
func applyExplicitFlags(dst *Config, fromFlags *Config, flagSet *flag.FlagSet) {
	flagSet.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "a":
			dst.RunAddr = fromFlags.RunAddr
		case "l":
			dst.LogLevel = fromFlags.LogLevel
		case "d":
			dst.DatabaseDSN = fromFlags.DatabaseDSN
		case "m":
			dst.MongoURI = fromFlags.MongoURI
		case "s":
			dst.Secret = fromFlags.Secret
		case "u":
			dst.UploadsDir = fromFlags.UploadsDir
		}
	})
}

// applyDefaults fills every zero field of dst from defaults.
func applyDefaults(dst *Config, defaults Config) {
	if dst.RunAddr == "" {
		dst.RunAddr = defaults.RunAddr
	}
	if dst.LogLevel == "" {
		dst.LogLevel = defaults.LogLevel
	}
	if dst.DatabaseDSN == "" {
		dst.DatabaseDSN = defaults.DatabaseDSN
	}
	if dst.MongoURI == "" {
		dst.MongoURI = defaults.MongoURI
	}
	if dst.MongoDatabase == "" {
		dst.MongoDatabase = defaults.MongoDatabase
	}
	if dst.MigrationsDir == "" {
		dst.MigrationsDir = defaults.MigrationsDir
	}
	if dst.DBConnectionTimeout == 0 {
		dst.DBConnectionTimeout = defaults.DBConnectionTimeout
	}
	if dst.TransactionTimeout == 0 {
		dst.TransactionTimeout = defaults.TransactionTimeout
	}
	if dst.Secret == "" {
		dst.Secret = defaults.Secret
	}
	if dst.TokenTTL == 0 {
		dst.TokenTTL = defaults.TokenTTL
	}
	if dst.UploadsDir == "" {
		dst.UploadsDir = defaults.UploadsDir
	}
}

func (c *Config) loadJSON(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var fromFile jsonConfig
	if err := json.Unmarshal(raw, &fromFile); err != nil {
		return err
	}

	overlay := Config{
		RunAddr:       fromFile.RunAddr,
		LogLevel:      fromFile.LogLevel,
		DatabaseDSN:   fromFile.DatabaseDSN,
		MongoURI:      fromFile.MongoURI,
		MongoDatabase: fromFile.MongoDatabase,
		MigrationsDir: fromFile.MigrationsDir,
		Secret:        fromFile.Secret,
		UploadsDir:    fromFile.UploadsDir,
	}
	durations := []struct {
		raw string
		dst *time.Duration
	}{
		{fromFile.DBConnectionTimeout, &overlay.DBConnectionTimeout},
		{fromFile.TransactionTimeout, &overlay.TransactionTimeout},
		{fromFile.TokenTTL, &overlay.TokenTTL},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		if *d.dst, err = time.ParseDuration(d.raw); err != nil {
			return err
		}
	}

	applyDefaults(&overlay, *c)
	*c = overlay

	return nil
}

// StorageType picks the backend: MongoDB if a URI is set, then PostgreSQL,
// otherwise the in-memory store.
func (c *Config) StorageType() int {
	switch {
	case c.MongoURI != "":
		return models.StorageTypeMongo
	case c.DatabaseDSN != "":
		return models.StorageTypePostgresql
	default:
		return models.StorageTypeMemory
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
		"debug":   true,
		"info":    true,
		"warn":    true,
		"error":   true,
		"fatal":   true,
	}

	return allowedLogLevels[value]
}

func (c *Config) validate() error {
	if c.Secret == "" {
		return ErrSecretMissing
	}

	validate := validator.New()

	err := validate.RegisterValidation("loglevel", validateLogLevel)
	if err != nil {
		return err
	}

	err = validate.RegisterValidation("filepath", validateFilePath)
	if err != nil {
		return err
	}

	return validate.Struct(c)
}
