package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
)

const (
	configFile = "config.toml"

	DefaultBroker   = "amqp"
	DefaultDBDriver = "sqlite"
)

// FileConfig is the TOML file structure.
type FileConfig struct {
	Proto     string             `toml:"proto"`
	Scenarios string             `toml:"scenarios"`
	History   string             `toml:"history"`
	Profiles  map[string]Profile `toml:"profiles"`
}

// Profile is a named environment: which broker and side channels a
// scenario run talks to.
type Profile struct {
	Broker     string       `toml:"broker"`
	AMQPURL    string       `toml:"amqp_url"`
	NATSURL    string       `toml:"nats_url"`
	NATSStream string       `toml:"nats_stream"`
	SQSRegion  string       `toml:"sqs_region"`
	DBDriver   string       `toml:"db_driver"`
	DBDSN      string       `toml:"db_dsn"`
	Minio      MinioProfile `toml:"minio"`
	Proto      string       `toml:"proto"`
}

// MinioProfile holds the object-store corner of a profile.
type MinioProfile struct {
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	UseSSL    bool   `toml:"use_ssl"`
	Bucket    string `toml:"bucket"`
}

// Config is the resolved runtime config after profile selection and
// environment overrides.
type Config struct {
	Broker     string
	AMQPURL    string
	NATSURL    string
	NATSStream string
	SQSRegion  string

	DBDriver string
	DBDSN    string

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioUseSSL    bool
	MinioBucket    string

	ProtoPath   string
	ScenarioDir string
	HistoryPath string

	// For saving state back
	ConfigDir string
}

// envOverrides is filled by envconfig. Each field answers to
// SOUNDCHECK_<name> first and to the bare name as a fallback.
type envOverrides struct {
	Broker         string `envconfig:"BROKER"`
	AMQPURL        string `envconfig:"AMQP_URL"`
	NATSURL        string `envconfig:"NATS_URL"`
	NATSStream     string `envconfig:"NATS_STREAM"`
	SQSRegion      string `envconfig:"SQS_REGION"`
	DBDriver       string `envconfig:"DB_DRIVER"`
	DBDSN          string `envconfig:"DB_DSN"`
	MinioEndpoint  string `envconfig:"MINIO_ENDPOINT"`
	MinioAccessKey string `envconfig:"MINIO_ACCESS_KEY"`
	MinioSecretKey string `envconfig:"MINIO_SECRET_KEY"`
	MinioBucket    string `envconfig:"MINIO_BUCKET"`
}

// LoadFileConfig loads config.toml from configDir.
// Returns a zero-value FileConfig (no error) if the file doesn't exist.
func LoadFileConfig(configDir string) (*FileConfig, error) {
	path := filepath.Join(configDir, configFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &FileConfig{}, nil
		}
		return nil, err
	}

	var cfg FileConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Resolve merges a profile (by name) with global config and env vars
// into a runtime Config. If profileName is empty or not found, only
// global/env settings are used.
func (fc FileConfig) Resolve(profileName string, configDir string) (Config, error) {
	cfg := Config{
		ProtoPath:   fc.Proto,
		ScenarioDir: fc.Scenarios,
		HistoryPath: fc.History,
		ConfigDir:   configDir,
	}

	// Apply profile settings
	if p, ok := fc.Profiles[profileName]; ok {
		cfg.Broker = p.Broker
		cfg.AMQPURL = p.AMQPURL
		cfg.NATSURL = p.NATSURL
		cfg.NATSStream = p.NATSStream
		cfg.SQSRegion = p.SQSRegion
		cfg.DBDriver = p.DBDriver
		cfg.DBDSN = p.DBDSN
		cfg.MinioEndpoint = p.Minio.Endpoint
		cfg.MinioAccessKey = p.Minio.AccessKey
		cfg.MinioSecretKey = p.Minio.SecretKey
		cfg.MinioUseSSL = p.Minio.UseSSL
		cfg.MinioBucket = p.Minio.Bucket
		if p.Proto != "" {
			cfg.ProtoPath = p.Proto
		}
	}

	// Environment wins over file and profile
	var env envOverrides
	if err := envconfig.Process("soundcheck", &env); err != nil {
		return Config{}, fmt.Errorf("read environment overrides: %w", err)
	}
	apply(&cfg.Broker, env.Broker)
	apply(&cfg.AMQPURL, env.AMQPURL)
	apply(&cfg.NATSURL, env.NATSURL)
	apply(&cfg.NATSStream, env.NATSStream)
	apply(&cfg.SQSRegion, env.SQSRegion)
	apply(&cfg.DBDriver, env.DBDriver)
	apply(&cfg.DBDSN, env.DBDSN)
	apply(&cfg.MinioEndpoint, env.MinioEndpoint)
	apply(&cfg.MinioAccessKey, env.MinioAccessKey)
	apply(&cfg.MinioSecretKey, env.MinioSecretKey)
	apply(&cfg.MinioBucket, env.MinioBucket)

	// Legacy broker URL variable still honored
	if cfg.AMQPURL == "" {
		if u := os.Getenv("RABBITMQ_URL"); u != "" {
			cfg.AMQPURL = u
		}
	}

	if cfg.Broker == "" {
		cfg.Broker = DefaultBroker
	}
	if cfg.DBDriver == "" {
		cfg.DBDriver = DefaultDBDriver
	}

	return cfg, nil
}

// Validate rejects broker and database drivers this build cannot serve.
func (c Config) Validate() error {
	switch c.Broker {
	case "amqp", "nats", "sqs":
	default:
		return fmt.Errorf("unknown broker %q (want amqp, nats or sqs)", c.Broker)
	}
	switch c.DBDriver {
	case "sqlite", "tarantool":
	default:
		return fmt.Errorf("unknown db driver %q (want sqlite or tarantool)", c.DBDriver)
	}
	return nil
}

func apply(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// ProfileNames returns a sorted list of profile names.
func (fc FileConfig) ProfileNames() []string {
	names := make([]string, 0, len(fc.Profiles))
	for name := range fc.Profiles {
		names = append(names, name)
	}
	// Sort for deterministic ordering
	sortStrings(names)
	return names
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j] < s[j-1]; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}
