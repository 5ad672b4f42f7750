package config

import (
	"testing"
	"time"

	"voteledger/internal/ledger"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.RPCServerURL == "" {
		t.Error("expected a default RPC URL")
	}
	if cfg.Finality != ledger.FinalityConfirmed {
		t.Errorf("default finality = %s, want confirmed", cfg.Finality)
	}
	if cfg.APIPort != 8080 {
		t.Errorf("default API port = %d, want 8080", cfg.APIPort)
	}
	if cfg.ConfirmTimeout != 60*time.Second {
		t.Errorf("default confirm timeout = %s, want 60s", cfg.ConfirmTimeout)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("DEV_MODE", "true")
	t.Setenv("FINALITY", "finalized")
	t.Setenv("API_PORT", "9000")
	t.Setenv("CONFIRM_POLL_MS", "50")

	cfg := Load()
	if !cfg.DevMode {
		t.Error("DEV_MODE=true not picked up")
	}
	if cfg.Finality != ledger.FinalityFinalized {
		t.Errorf("finality = %s, want finalized", cfg.Finality)
	}
	if cfg.APIPort != 9000 {
		t.Errorf("API port = %d, want 9000", cfg.APIPort)
	}
	if cfg.PollInterval != 50*time.Millisecond {
		t.Errorf("poll interval = %s, want 50ms", cfg.PollInterval)
	}
}

func TestValidate(t *testing.T) {
	cfg := Load()
	cfg.DevMode = true
	if err := cfg.Validate(); err != nil {
		t.Errorf("dev-mode config should validate: %v", err)
	}

	cfg.DevMode = false
	cfg.SignerKeyPath = ""
	if err := cfg.Validate(); err == nil {
		t.Error("missing signer key path should fail validation")
	}

	cfg.SignerKeyPath = "/tmp/key"
	cfg.Finality = ledger.Finality("eventually")
	if err := cfg.Validate(); err == nil {
		t.Error("unknown finality should fail validation")
	}

	cfg.Finality = ledger.FinalityConfirmed
	cfg.APIPort = 0
	if err := cfg.Validate(); err == nil {
		t.Error("port 0 should fail validation")
	}
}
