package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	bolt "go.etcd.io/bbolt"

	"hourbank/cmd/internal/passphrase"
	"hourbank/config"
	"hourbank/core"
	"hourbank/crypto"
	"hourbank/native/ledger"
	"hourbank/observability"
	"hourbank/observability/logging"
	"hourbank/rpc"
	"hourbank/storage"
	"hourbank/storage/journal"
)

const usage = `usage: hourbank [-config path] <command> [flags]

commands:
  serve    run the node: state, block producer and RPC
  replay   re-execute a journal and verify its state roots
  keygen   print a fresh key and its address
`

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "hourbank:", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	global := flag.NewFlagSet("hourbank", flag.ContinueOnError)
	configFile := global.String("config", "./config.toml", "Path to the configuration file")
	global.Usage = func() { fmt.Fprint(global.Output(), usage) }
	if err := global.Parse(args); err != nil {
		return err
	}
	rest := global.Args()
	if len(rest) == 0 {
		global.Usage()
		return errors.New("missing command")
	}
	switch rest[0] {
	case "serve":
		return serve(*configFile)
	case "replay":
		return replay(rest[1:], stdout)
	case "keygen":
		return keygen(stdout)
	default:
		global.Usage()
		return fmt.Errorf("unknown command %q", rest[0])
	}
}

func serve(configFile string) error {
	env := strings.TrimSpace(os.Getenv("HOURBANK_ENV"))
	passSource := passphrase.NewSource("HOURBANK_KEYSTORE_PASSPHRASE")
	cfg, err := config.Load(configFile, config.WithKeystorePassphraseSource(passSource.Get))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Env != "" {
		env = cfg.Env
	}
	logger := logging.Setup("hourbank", env, logging.Options{Level: cfg.SlogLevel(), File: cfg.LogFile})

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	jrnl, err := journal.Open(cfg.JournalPath, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer jrnl.Close()

	host, err := core.NewHost(db,
		core.WithLogger(logger),
		core.WithRecorder(jrnl),
		core.WithPauses(cfg.Pauses.View()),
		core.WithMetrics(observability.Host()),
	)
	if err != nil {
		return fmt.Errorf("open state: %w", err)
	}

	initialized, err := host.Initialized()
	if err != nil {
		return err
	}
	if !initialized {
		genesis, err := genesisFromConfig(cfg)
		if err != nil {
			return err
		}
		if err := host.Genesis(genesis); err != nil {
			return fmt.Errorf("apply genesis: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go produceBlocks(ctx, host, time.Duration(cfg.BlockIntervalMs)*time.Millisecond, logger)

	server := rpc.NewServer(host, rpc.Config{
		ListenAddress:     cfg.ListenAddress,
		RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		Burst:             cfg.RateLimit.Burst,
	}, logger)
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("rpc server: %w", err)
	}

	// Persist calls accepted since the last block before exiting.
	if _, _, err := host.Seal(); err != nil {
		logger.Error("final seal failed", slog.Any("error", err))
	}
	logger.Info("shutdown complete", slog.Uint64("height", host.Height()))
	return nil
}

// genesisFromConfig resolves module owners, falling back to the operator key
// when an owner is not configured.
func genesisFromConfig(cfg *config.Config) (core.GenesisConfig, error) {
	genesis := core.GenesisConfig{
		Name:     cfg.Ledger.Name,
		Symbol:   cfg.Ledger.Symbol,
		TokenURI: cfg.Ledger.TokenURI,
	}
	if genesis.TokenURI == "" {
		genesis.TokenURI = ledger.DefaultTokenURI
	}
	var operator *[20]byte
	resolve := func(value string) ([20]byte, error) {
		if strings.TrimSpace(value) != "" {
			return crypto.ParseAccount(value)
		}
		if operator == nil {
			key, err := cfg.OperatorKey()
			if err != nil {
				return [20]byte{}, fmt.Errorf("load operator key: %w", err)
			}
			addr := key.PubKey().Address().Array()
			operator = &addr
		}
		return *operator, nil
	}
	var err error
	if genesis.LedgerOwner, err = resolve(cfg.Ledger.Owner); err != nil {
		return core.GenesisConfig{}, err
	}
	if genesis.BookingOwner, err = resolve(cfg.Booking.Owner); err != nil {
		return core.GenesisConfig{}, err
	}
	return genesis, nil
}

func produceBlocks(ctx context.Context, host *core.Host, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			height, root, err := host.Seal()
			if err != nil {
				logger.Error("seal failed", slog.Any("error", err))
				continue
			}
			logger.Debug("block sealed", slog.Uint64("height", height), slog.String("root", root.Hex()))
		}
	}
}

func replay(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	path := fs.String("journal", "", "Path to the journal database")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*path) == "" {
		return errors.New("replay: -journal is required")
	}
	jrnl, err := journal.Open(*path, &bolt.Options{ReadOnly: true, Timeout: time.Second})
	if err != nil {
		return err
	}
	defer jrnl.Close()

	logger := logging.Setup("hourbank-replay", "", logging.Options{Output: io.Discard})
	report, err := core.Replay(jrnl, logger)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "replayed %d calls, verified %d roots, height %d, root %s\n",
		report.Entries, report.VerifiedRoots, report.Height, report.Root.Hex())
	return nil
}

func keygen(stdout io.Writer) error {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "address: %s\nprivate key: %x\n", key.PubKey().Address().String(), key.Bytes())
	return nil
}
