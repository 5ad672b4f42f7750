package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"voteledger/internal/ledger"
)

// Config holds everything the service reads from the environment.
type Config struct {
	// RPC node URL. Ignored in dev mode.
	RPCServerURL string

	// DevMode runs against an in-process ledger with a generated
	// identity and a freshly funded voting mint.
	DevMode bool

	// Base58 overrides for the deterministic defaults. Empty means use
	// the built-in program and mint addresses.
	ProgramID string
	VoteMint  string

	// Path to the base58-encoded signer seed file. Ignored in dev mode.
	SignerKeyPath string

	// Finality level required before an operation counts as done.
	Finality ledger.Finality

	// Confirmation polling.
	ConfirmTimeout time.Duration
	PollInterval   time.Duration

	// Postgres DSN for the operation journal. Empty selects the
	// in-memory journal.
	DatabaseURL string

	// HTTP API listen port.
	APIPort int

	// Log level: debug, info, warn, error.
	LogLevel string
}

// Load reads the configuration from environment variables, applying
// defaults wherever a variable is unset.
func Load() *Config {
	return &Config{
		RPCServerURL:   getEnv("RPC_SERVER_URL", "http://localhost:8899"),
		DevMode:        getEnvAsBool("DEV_MODE", false),
		ProgramID:      getEnv("VOTE_PROGRAM_ID", ""),
		VoteMint:       getEnv("VOTE_MINT", ""),
		SignerKeyPath:  getEnv("SIGNER_KEY_PATH", ""),
		Finality:       ledger.Finality(getEnv("FINALITY", string(ledger.FinalityConfirmed))),
		ConfirmTimeout: time.Duration(getEnvAsInt("CONFIRM_TIMEOUT_SEC", 60)) * time.Second,
		PollInterval:   time.Duration(getEnvAsInt("CONFIRM_POLL_MS", 500)) * time.Millisecond,
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		APIPort:        getEnvAsInt("API_PORT", 8080),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if !c.DevMode {
		if c.RPCServerURL == "" {
			return fmt.Errorf("RPC_SERVER_URL is required")
		}
		if c.SignerKeyPath == "" {
			return fmt.Errorf("SIGNER_KEY_PATH is required")
		}
	}
	if _, err := ledger.ParseFinality(string(c.Finality)); err != nil {
		return err
	}
	if c.APIPort <= 0 || c.APIPort > 65535 {
		return fmt.Errorf("API_PORT %d is out of range", c.APIPort)
	}
	if c.ConfirmTimeout <= 0 {
		return fmt.Errorf("CONFIRM_TIMEOUT_SEC must be positive")
	}
	return nil
}

// Helper: get string from env
func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// Helper: get bool from env
func getEnvAsBool(key string, defaultVal bool) bool {
	valStr := os.Getenv(key)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseBool(valStr)
	if err != nil {
		return defaultVal
	}
	return val
}

// Helper: get int from env
func getEnvAsInt(key string, defaultVal int) int {
	valStr := os.Getenv(key)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		return defaultVal
	}
	return val
}
