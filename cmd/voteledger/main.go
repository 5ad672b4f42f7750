package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"voteledger/internal/api"
	"voteledger/internal/config"
	"voteledger/internal/journal"
	"voteledger/internal/ledger"
	"voteledger/internal/ledger/memledger"
	"voteledger/internal/ledger/retry"
	"voteledger/internal/ledger/rpcledger"
	"voteledger/internal/provision"
	"voteledger/internal/pubkey"
	"voteledger/internal/registry"
	"voteledger/internal/signer"
	"voteledger/internal/tally"
	"voteledger/internal/voting"

	"github.com/joho/godotenv"
)

// devMintDecimals gives dev-mode voters fractional raw units, matching
// what a real deployment's mint would carry.
const devMintDecimals = 9

// devMintFunding is the number of whole voting tokens granted to the
// generated dev identity.
const devMintFunding = 1_000_000

func main() {
	// 1. Load configuration
	_ = godotenv.Load()
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	// 2. Configure logger
	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("Configuration loaded",
		"rpc_server", cfg.RPCServerURL,
		"dev_mode", cfg.DevMode,
		"finality", cfg.Finality,
		"log_level", cfg.LogLevel,
	)

	ctx := context.Background()

	// 3. Resolve program and mint addresses
	programID := registry.DefaultProgramID
	if cfg.ProgramID != "" {
		var err error
		if programID, err = pubkey.Parse(cfg.ProgramID); err != nil {
			log.Fatalf("invalid VOTE_PROGRAM_ID: %v", err)
		}
	}
	mint := pubkey.FromName("voteledger.mint.dev")
	if cfg.VoteMint != "" {
		var err error
		if mint, err = pubkey.Parse(cfg.VoteMint); err != nil {
			log.Fatalf("invalid VOTE_MINT: %v", err)
		}
	}

	// 4. Build the ledger client and signer identity
	var (
		client ledger.Client
		id     signer.Signer
	)
	if cfg.DevMode {
		mem := memledger.New()
		mem.CreateMint(mint, devMintDecimals)

		generated, err := signer.Generate()
		if err != nil {
			log.Fatalf("failed to generate dev identity: %v", err)
		}
		id = generated

		var scale uint64 = 1
		for i := 0; i < devMintDecimals; i++ {
			scale *= 10
		}
		if err := mem.MintTo(mint, generated.PublicKey(), devMintFunding*scale); err != nil {
			log.Fatalf("failed to fund dev identity: %v", err)
		}
		client = mem

		slog.Info("Dev mode: in-process ledger ready",
			"identity", generated.PublicKey(),
			"mint", mint,
			"funding_tokens", devMintFunding,
		)
	} else {
		loaded, err := signer.LoadLocal(cfg.SignerKeyPath)
		if err != nil {
			log.Fatalf("failed to load signer key: %v", err)
		}
		id = loaded

		client = rpcledger.New(cfg.RPCServerURL, rpcledger.Options{
			ReadFinality:   cfg.Finality,
			PollInterval:   cfg.PollInterval,
			ConfirmTimeout: cfg.ConfirmTimeout,
			Retry:          retry.NewStrategy(retry.LoadConfig()),
		})

		slog.Info("RPC ledger client ready",
			"url", cfg.RPCServerURL,
			"identity", loaded.PublicKey(),
		)
	}

	// 5. Open the operation journal
	var jrnl journal.Repository
	if cfg.DatabaseURL != "" {
		pg, err := journal.NewPostgresRepository(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("failed to connect to database: %v", err)
		}
		defer pg.Close()
		if err := pg.Migrate(ctx); err != nil {
			log.Fatalf("failed to migrate journal schema: %v", err)
		}
		jrnl = pg
		slog.Info("Journal database connected")
	} else {
		jrnl = journal.NewMemoryRepository()
		slog.Info("Using in-memory operation journal")
	}

	// 6. Wire the protocol components
	provisioner := provision.New(client, cfg.Finality)
	reg := registry.New(client, provisioner, id, programID, mint, cfg.Finality)
	tallies := tally.NewReader(client, mint)
	votes := voting.New(client, provisioner, reg, tallies, jrnl, id, mint, cfg.Finality)

	// The singleton state record must exist before any topic operation.
	if _, err := votes.EnsureReady(ctx); err != nil {
		log.Fatalf("failed to provision state record: %v", err)
	}
	slog.Info("State record ready", "program", programID)

	// 7. Start the API server
	server := api.NewServer(cfg.APIPort, votes)
	if err := server.Start(); err != nil {
		log.Fatalf("failed to start API server: %v", err)
	}

	// 8. Wait for interrupt, then drain
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Warn("Interrupt received, shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Error shutting down API server", "error", err)
	}

	slog.Info("VoteLedger stopped")
}
