package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type Config struct {
	AppName            string `mapstructure:"APP_NAME" validate:"required"`
	LogLevel           string `mapstructure:"LOG_LEVEL" validate:"oneof=debug info warn error"`
	PrettyLogs         bool   `mapstructure:"PRETTY_LOGS"`
	StartupMaxAttempts int    `mapstructure:"STARTUP_MAX_ATTEMPTS" validate:"min=1"`

	// Raw sources and outputs
	PatientsFile   string `mapstructure:"PATIENTS_FILE" validate:"required"`
	EncountersFile string `mapstructure:"ENCOUNTERS_FILE" validate:"required"`
	DiagnosesFile  string `mapstructure:"DIAGNOSES_FILE" validate:"required"`
	CleanDir       string `mapstructure:"CLEAN_DIR" validate:"required"`
	LogsDir        string `mapstructure:"LOGS_DIR" validate:"required"`
	WorkerCount    int    `mapstructure:"WORKER_COUNT" validate:"min=1"`
	RulesFile      string `mapstructure:"RULES_FILE"`

	// PostgreSQL sink
	DatabaseHost                string        `mapstructure:"DB_HOST"`
	DatabasePort                int           `mapstructure:"DB_PORT"`
	DatabaseUserName            string        `mapstructure:"DB_USER"`
	DatabasePassword            string        `mapstructure:"DB_PASSWORD"`
	DatabaseName                string        `mapstructure:"DB_NAME"`
	DatabaseSSLMode             string        `mapstructure:"DB_SSL_MODE"`
	DatabaseMaxOpenConns        int           `mapstructure:"DB_MAX_OPEN_CONNS"`
	DatabaseConnMaxLifetime     time.Duration `mapstructure:"DB_CONN_MAX_LIFETIME"`
	DatabaseMigrationFolderPath string        `mapstructure:"DB_MIGRATION_FOLDER_PATH"`
	DatabaseMigrationVersion    uint          `mapstructure:"DB_MIGRATION_VERSION"`
	DatabaseMigrationForce      int           `mapstructure:"DB_MIGRATION_FORCE"`

	// Run events; publishing is off when KafkaBrokers is empty
	KafkaBrokers      []string      `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic        string        `mapstructure:"KAFKA_TOPIC"`
	KafkaBatchTimeout time.Duration `mapstructure:"KAFKA_BATCH_TIMEOUT"`
	KafkaRequiredAcks int           `mapstructure:"KAFKA_REQUIRED_ACKS"`
	KafkaCompression  string        `mapstructure:"KAFKA_COMPRESSION" validate:"omitempty,oneof=snappy gzip lz4 zstd none"`

	// Metrics are pushed once per run when PushgatewayURL is set
	PushgatewayURL     string        `mapstructure:"PUSHGATEWAY_URL" validate:"omitempty,url"`
	PushgatewayJob     string        `mapstructure:"PUSHGATEWAY_JOB"`
	PushgatewayTimeout time.Duration `mapstructure:"PUSHGATEWAY_TIMEOUT"`

	// Tracing
	TraceExporter     string        `mapstructure:"TRACE_EXPORTER" validate:"oneof=none console otlp"`
	OTLPEndpoint      string        `mapstructure:"OTLP_ENDPOINT" validate:"required_if=TraceExporter otlp"`
	OTLPProtocol      string        `mapstructure:"OTLP_PROTOCOL" validate:"oneof=grpc http"`
	OTLPInsecure      bool          `mapstructure:"OTLP_INSECURE"`
	OTLPExportTimeout time.Duration `mapstructure:"OTLP_EXPORT_TIMEOUT"`
}

var defaults = map[string]any{
	"APP_NAME":             "fern",
	"LOG_LEVEL":            "info",
	"PRETTY_LOGS":          false,
	"STARTUP_MAX_ATTEMPTS": 5,

	"PATIENTS_FILE":   "data/raw/patients.csv",
	"ENCOUNTERS_FILE": "data/raw/encounters.csv",
	"DIAGNOSES_FILE":  "data/raw/diagnoses.xml",
	"CLEAN_DIR":       "data/cleaned",
	"LOGS_DIR":        "data/logs",
	"WORKER_COUNT":    4,
	"RULES_FILE":      "",

	"DB_HOST":                  "localhost",
	"DB_PORT":                  5433,
	"DB_USER":                  "",
	"DB_PASSWORD":              "",
	"DB_NAME":                  "",
	"DB_SSL_MODE":              "disable",
	"DB_MAX_OPEN_CONNS":        10,
	"DB_CONN_MAX_LIFETIME":     "5m",
	"DB_MIGRATION_FOLDER_PATH": "db/pg",
	"DB_MIGRATION_VERSION":     0,
	"DB_MIGRATION_FORCE":       0,

	"KAFKA_BROKERS":       "",
	"KAFKA_TOPIC":         "pipeline-runs",
	"KAFKA_BATCH_TIMEOUT": "100ms",
	"KAFKA_REQUIRED_ACKS": 1,
	"KAFKA_COMPRESSION":   "snappy",

	"PUSHGATEWAY_URL":     "",
	"PUSHGATEWAY_JOB":     "fern",
	"PUSHGATEWAY_TIMEOUT": "5s",

	"TRACE_EXPORTER":      "none",
	"OTLP_ENDPOINT":       "",
	"OTLP_PROTOCOL":       "grpc",
	"OTLP_INSECURE":       true,
	"OTLP_EXPORT_TIMEOUT": "10s",
}

// Load reads the optional .env file, then the environment on top of the
// defaults, and validates the result.
func Load() (*Config, error) {
	return LoadFile(".env")
}

// LoadFile is Load with an explicit dotenv path. A missing file is not an
// error; variables already in the environment win over the file.
func LoadFile(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	v := viper.New()
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
		// Unmarshal only sees env vars that are bound.
		_ = v.BindEnv(key)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.KafkaBrokers = splitList(cfg.KafkaBrokers)

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// splitList normalizes a comma separated env value that viper may hand
// back as a single element.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// ValidateDatabase checks the settings needed to reach the sink. Only the
// commands that load or inspect the sink call it.
func (c *Config) ValidateDatabase() error {
	var missing []string
	if c.DatabaseUserName == "" {
		missing = append(missing, "DB_USER")
	}
	if c.DatabasePassword == "" {
		missing = append(missing, "DB_PASSWORD")
	}
	if c.DatabaseName == "" {
		missing = append(missing, "DB_NAME")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required database settings: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (c *Config) EventsEnabled() bool {
	return len(c.KafkaBrokers) > 0
}
