package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/adhocore/gronx"
	"github.com/joho/godotenv"
)

type Config struct {
	Mode     string
	Env      string
	LogLevel string

	DBDriver    string
	DatabaseDSN string

	GRPCAddress string
	MCPAddress  string
	HTTPAddress string
	RedisURL    string
	JWTSecret   string

	MaxCallParticipants int
	RingTimeout         time.Duration
	SweepCron           string

	IntentRPS   float64
	IntentBurst int
}

// Load reads configuration from an optional .env file, the environment and
// the process command line.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return Parse(os.Args[1:])
}

// Parse builds a Config from args, falling back to CONVO_* environment
// variables and then to built-in defaults.
func Parse(args []string) (*Config, error) {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".convo-engine")

	cfg := &Config{}
	fs := flag.NewFlagSet("convo-engine", flag.ContinueOnError)

	fs.StringVar(&cfg.Mode, "mode", getEnv("CONVO_MODE", "server"), "Run mode: server, interactive or headless")
	fs.StringVar(&cfg.Env, "env", getEnv("CONVO_ENV", "production"), "Environment: development or production")
	fs.StringVar(&cfg.LogLevel, "log-level", getEnv("CONVO_LOG_LEVEL", "info"), "Log level")
	fs.StringVar(&cfg.DBDriver, "db-driver", getEnv("CONVO_DB_DRIVER", "sqlite"), "Database driver: sqlite or postgres")
	fs.StringVar(&cfg.DatabaseDSN, "db", getEnv("CONVO_DATABASE_DSN", filepath.Join(dataDir, "convo.db")), "Database path (sqlite) or DSN (postgres)")
	fs.StringVar(&cfg.GRPCAddress, "grpc-addr", getEnv("CONVO_GRPC_ADDRESS", "127.0.0.1:50051"), "gRPC server address")
	fs.StringVar(&cfg.MCPAddress, "mcp-addr", getEnv("CONVO_MCP_ADDRESS", "127.0.0.1:8081"), "MCP SSE server address, empty to disable")
	fs.StringVar(&cfg.HTTPAddress, "http-addr", getEnv("CONVO_HTTP_ADDRESS", "127.0.0.1:8080"), "HTTP/WebSocket server address")
	fs.StringVar(&cfg.RedisURL, "redis-url", getEnv("CONVO_REDIS_URL", ""), "Redis URL for cross-instance events, empty for in-process only")
	fs.StringVar(&cfg.JWTSecret, "jwt-secret", getEnv("CONVO_JWT_SECRET", ""), "HMAC secret for identity tokens")
	fs.IntVar(&cfg.MaxCallParticipants, "max-call-participants", getEnvInt("CONVO_MAX_CALL_PARTICIPANTS", 10), "Maximum participants per call, initiator included")
	fs.DurationVar(&cfg.RingTimeout, "ring-timeout", getEnvDuration("CONVO_RING_TIMEOUT", 45*time.Second), "How long a callee rings before the call is missed")
	fs.StringVar(&cfg.SweepCron, "sweep-cron", getEnv("CONVO_SWEEP_CRON", "* * * * *"), "Cron schedule for the stale ringing sweeper")
	fs.Float64Var(&cfg.IntentRPS, "intent-rps", getEnvFloat("CONVO_INTENT_RPS", 20), "Per-connection intent rate")
	fs.IntVar(&cfg.IntentBurst, "intent-burst", getEnvInt("CONVO_INTENT_BURST", 40), "Per-connection intent burst")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.DBDriver == "sqlite" && cfg.DatabaseDSN != ":memory:" {
		os.MkdirAll(filepath.Dir(cfg.DatabaseDSN), 0755)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Mode {
	case "server", "interactive", "headless":
	default:
		errs = append(errs, fmt.Errorf("unknown mode %q", c.Mode))
	}
	switch c.DBDriver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("unknown db driver %q", c.DBDriver))
	}
	if c.MaxCallParticipants < 2 {
		errs = append(errs, errors.New("max call participants must be at least 2"))
	}
	if c.RingTimeout <= 0 {
		errs = append(errs, errors.New("ring timeout must be positive"))
	}
	if !gronx.IsValid(c.SweepCron) {
		errs = append(errs, fmt.Errorf("invalid sweep cron %q", c.SweepCron))
	}
	if c.IntentRPS <= 0 || c.IntentBurst <= 0 {
		errs = append(errs, errors.New("intent rate limit must be positive"))
	}
	if c.JWTSecret == "" && c.Env == "production" && c.Mode == "server" {
		errs = append(errs, errors.New("jwt secret is required in production"))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}
