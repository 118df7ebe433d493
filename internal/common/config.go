package common

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	DefaultMaxUploadBytes = 50 * 1024 * 1024
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	LLM      LLMConfig
	Storage  StorageConfig
	Pipeline PipelineConfig
	Log      LogConfig
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver           string
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr           string
	GRPCAddr           string
	MaxUploadBytes     int64
	SessionIdleTimeout time.Duration
	ShutdownTimeout    time.Duration
}

// LLMConfig holds LLM-related configuration
type LLMConfig struct {
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
	MaxRetries  int
}

// StorageConfig points at the blob store root
type StorageConfig struct {
	Dir string
}

// PipelineConfig tunes PDF conversion and the async job queue
type PipelineConfig struct {
	Workers    int
	QueueSize  int
	JobTimeout time.Duration
	TablesOnly bool
}

type LogConfig struct {
	Level  string
	Format string
}

// setting ties a config key to its environment variable and default.
type setting struct {
	key  string
	env  string
	def  any
	flag string
	help string
}

var settings = []setting{
	{"database.driver", "DB_DRIVER", DriverPostgres, "db-driver", "database driver: postgres or sqlite"},
	{"database.dsn", "DB_URL", "", "db-url", "database connection string"},
	{"database.max_conns", "DB_MAX_CONNS", int32(20), "", ""},
	{"database.min_conns", "DB_MIN_CONNS", int32(5), "", ""},
	{"database.max_conn_lifetime", "DB_MAX_CONN_LIFETIME", 30 * time.Minute, "", ""},
	{"database.max_conn_idle_time", "DB_MAX_CONN_IDLE_TIME", 5 * time.Minute, "", ""},
	{"database.dial_timeout", "DB_DIAL_TIMEOUT", 3 * time.Second, "", ""},
	{"database.statement_timeout", "DB_STATEMENT_TIMEOUT", time.Duration(0), "", ""},

	{"server.http_addr", "HTTP_ADDR", ":8081", "http-addr", "HTTP listen address"},
	{"server.grpc_addr", "GRPC_ADDR", ":8080", "grpc-addr", "gRPC listen address"},
	{"server.max_upload_bytes", "MAX_UPLOAD_BYTES", int64(DefaultMaxUploadBytes), "max-upload-bytes", "largest accepted PDF upload"},
	{"server.session_idle_timeout", "SESSION_IDLE_TIMEOUT", 2 * time.Hour, "", ""},
	{"server.shutdown_timeout", "SHUTDOWN_TIMEOUT", 30 * time.Second, "", ""},

	{"llm.model", "OPENAI_MODEL", "gpt-4o-mini", "model", "chat completion model"},
	{"llm.api_key", "OPENAI_API_KEY", "", "", ""},
	{"llm.base_url", "OPENAI_BASE_URL", "https://api.openai.com/v1", "", ""},
	{"llm.temperature", "OPENAI_TEMPERATURE", float32(0.2), "", ""},
	{"llm.max_tokens", "OPENAI_MAX_TOKENS", 2048, "", ""},
	{"llm.timeout", "OPENAI_TIMEOUT", 45 * time.Second, "", ""},
	{"llm.max_retries", "OPENAI_MAX_RETRIES", 2, "", ""},

	{"storage.dir", "STORAGE_DIR", "./data/blobs", "storage-dir", "directory for uploaded PDFs and saved documents"},

	{"pipeline.workers", "PIPELINE_WORKERS", 4, "workers", "async extraction workers"},
	{"pipeline.queue_size", "PIPELINE_QUEUE_SIZE", 128, "", ""},
	{"pipeline.job_timeout", "PIPELINE_JOB_TIMEOUT", 3 * time.Minute, "", ""},
	{"pipeline.tables_only", "PIPELINE_TABLES_ONLY", false, "tables-only", "send only TABLE 1/TABLE 2 sections to the extractor"},

	{"log.level", "LOG_LEVEL", "info", "log-level", "log level (debug, info, warn, error)"},
	{"log.format", "LOG_FORMAT", "text", "", ""},
}

// NewFlagSet returns the flags understood by LoadConfig.
func NewFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	for _, s := range settings {
		if s.flag == "" {
			continue
		}
		switch d := s.def.(type) {
		case string:
			fs.String(s.flag, d, s.help)
		case int:
			fs.Int(s.flag, d, s.help)
		case int64:
			fs.Int64(s.flag, d, s.help)
		case bool:
			fs.Bool(s.flag, d, s.help)
		}
	}
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", name)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		for _, s := range settings {
			fmt.Fprintf(os.Stderr, "  %-24s %s\n", s.env, s.key)
		}
	}
	return fs
}

// LoadConfig reads configuration from environment variables and, when fs is
// non-nil and parsed, from command line flags. Flags win over environment.
func LoadConfig(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	for _, s := range settings {
		v.SetDefault(s.key, s.def)
		if err := v.BindEnv(s.key, s.env); err != nil {
			return nil, NewAppError("CONFIG_ERROR", "bind "+s.env, err)
		}
		if fs != nil && s.flag != "" {
			if f := fs.Lookup(s.flag); f != nil {
				if err := v.BindPFlag(s.key, f); err != nil {
					return nil, NewAppError("CONFIG_ERROR", "bind flag "+s.flag, err)
				}
			}
		}
	}
	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:           strings.ToLower(v.GetString("database.driver")),
			DSN:              v.GetString("database.dsn"),
			MaxConns:         v.GetInt32("database.max_conns"),
			MinConns:         v.GetInt32("database.min_conns"),
			MaxConnLifetime:  v.GetDuration("database.max_conn_lifetime"),
			MaxConnIdleTime:  v.GetDuration("database.max_conn_idle_time"),
			DialTimeout:      v.GetDuration("database.dial_timeout"),
			StatementTimeout: v.GetDuration("database.statement_timeout"),
		},
		Server: ServerConfig{
			HTTPAddr:           v.GetString("server.http_addr"),
			GRPCAddr:           v.GetString("server.grpc_addr"),
			MaxUploadBytes:     v.GetInt64("server.max_upload_bytes"),
			SessionIdleTimeout: v.GetDuration("server.session_idle_timeout"),
			ShutdownTimeout:    v.GetDuration("server.shutdown_timeout"),
		},
		LLM: LLMConfig{
			Model:       v.GetString("llm.model"),
			APIKey:      v.GetString("llm.api_key"),
			BaseURL:     v.GetString("llm.base_url"),
			Temperature: float32(v.GetFloat64("llm.temperature")),
			MaxTokens:   v.GetInt("llm.max_tokens"),
			Timeout:     v.GetDuration("llm.timeout"),
			MaxRetries:  v.GetInt("llm.max_retries"),
		},
		Storage: StorageConfig{
			Dir: v.GetString("storage.dir"),
		},
		Pipeline: PipelineConfig{
			Workers:    v.GetInt("pipeline.workers"),
			QueueSize:  v.GetInt("pipeline.queue_size"),
			JobTimeout: v.GetDuration("pipeline.job_timeout"),
			TablesOnly: v.GetBool("pipeline.tables_only"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}
}

// ValidateDatabase checks the settings every binary that opens the database needs.
func (c *Config) ValidateDatabase() error {
	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("DB_DRIVER %q is not supported", c.Database.Driver), ErrInvalidInput)
	}
	if c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required", ErrInvalidInput)
	}
	return nil
}

// Validate validates the configuration of the server binary
func (c *Config) Validate() error {
	if err := c.ValidateDatabase(); err != nil {
		return err
	}
	if c.LLM.APIKey == "" {
		return NewAppError("CONFIG_ERROR", "OPENAI_API_KEY is required", ErrInvalidInput)
	}
	if c.Server.HTTPAddr == "" && c.Server.GRPCAddr == "" {
		return NewAppError("CONFIG_ERROR", "HTTP_ADDR or GRPC_ADDR is required", ErrInvalidInput)
	}
	if c.Storage.Dir == "" {
		return NewAppError("CONFIG_ERROR", "STORAGE_DIR is required", ErrInvalidInput)
	}
	if c.Pipeline.Workers < 1 {
		return NewAppError("CONFIG_ERROR", "PIPELINE_WORKERS must be at least 1", ErrInvalidInput)
	}
	return nil
}
