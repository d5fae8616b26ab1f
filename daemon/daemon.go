// Package daemon wires the disbursement engine into a runnable service.
package daemon

import (
	"context"
	"flag"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"

	"treasuryd/chain"
	"treasuryd/config"
	"treasuryd/engine"
	"treasuryd/membership"
	"treasuryd/notify"
	"treasuryd/observability/logging"
	telemetry "treasuryd/observability/otel"
	"treasuryd/server"
	"treasuryd/storage"
)

// Main initialises and runs the disbursement daemon.
func Main() error {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "config.yaml", "path to treasuryd configuration")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("TREASURY_ENV"))
	logger := logging.Setup("treasuryd", env)
	if settings := telemetry.FromEnv(); settings.Enabled() {
		shutdownTelemetry, err := telemetry.Start(context.Background(), "treasuryd", env, settings)
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		defer func() {
			_ = shutdownTelemetry(context.Background())
		}()
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.LogFile != "" {
		logger = logging.SetupWithFile("treasuryd", env, cfg.LogFile)
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	store := storage.NewStore(db)

	signerKey, err := gethcrypto.HexToECDSA(strings.TrimPrefix(cfg.Chain.SignerKey, "0x"))
	if err != nil {
		return fmt.Errorf("load signer key: %w", err)
	}
	backend, err := chain.Dial(cfg.Chain.Endpoint)
	if err != nil {
		return fmt.Errorf("dial chain: %w", err)
	}
	defer backend.Close()
	evm, err := chain.NewEVMClient(backend, signerKey, new(big.Int).SetUint64(cfg.Chain.ChainID),
		chain.WithConfirmations(cfg.Chain.Confirmations),
		chain.WithPollInterval(cfg.Chain.ConfirmPoll.Duration),
		chain.WithConfirmTimeout(cfg.Chain.ConfirmTimeout.Duration),
	)
	if err != nil {
		return fmt.Errorf("init chain client: %w", err)
	}

	members, err := membership.NewHTTPSource(cfg.Membership.Endpoint)
	if err != nil {
		return fmt.Errorf("init membership source: %w", err)
	}

	var sink engine.Sink = notify.NopSink{}
	if strings.TrimSpace(cfg.Notifications.Endpoint) != "" {
		webhook, err := notify.NewWebhookSink(cfg.Notifications.Endpoint, cfg.Notifications.RatePerMinute)
		if err != nil {
			return fmt.Errorf("init notification sink: %w", err)
		}
		sink = webhook
	}

	processor := engine.NewProcessor(store, store, evm, members,
		engine.WithChecker(membership.CheckerForMode(cfg.Strict())),
	)
	scheduler, err := engine.NewScheduler(store, processor, cfg.TickInterval.Duration, cfg.Period.Duration,
		engine.WithSink(sink),
		engine.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	admin, err := server.New(server.Config{
		Store:             store,
		Runner:            processor,
		Logger:            logger,
		BearerToken:       cfg.Admin.BearerToken,
		RequestsPerMinute: cfg.Admin.RequestsPerMinute,
	})
	if err != nil {
		return fmt.Errorf("init admin server: %w", err)
	}
	httpServer := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      admin,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errs := make(chan error, 2)
	go func() {
		logger.Info("treasuryd listening", "addr", cfg.ListenAddress)
		errs <- httpServer.ListenAndServe()
	}()
	go func() {
		errs <- scheduler.Run(stopCtx)
	}()

	select {
	case <-stopCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			_ = httpServer.Close()
			return err
		}
		return nil
	case err := <-errs:
		if err != nil && err != http.ErrServerClosed && err != context.Canceled {
			return err
		}
		return nil
	}
}
