package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/joho/godotenv"
	"github.com/shinyyama/sensor-market/internal/config"
	"github.com/shinyyama/sensor-market/internal/db"
	appmw "github.com/shinyyama/sensor-market/internal/middleware"
	"github.com/shinyyama/sensor-market/internal/mpc"
	"github.com/shinyyama/sensor-market/internal/server"
	"github.com/shinyyama/sensor-market/internal/service"
)

var log = logging.Logger("main")

// set by -ldflags at build time
var (
	gitSHA    = "dev"
	buildTime = ""
)

func main() {
	_ = godotenv.Load()

	if err := run(); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if lvl, err := logging.LevelFromString(cfg.LogLevel); err == nil {
		logging.SetAllLoggers(lvl)
	}

	conn, err := db.Connect(cfg)
	if err != nil {
		return err
	}
	if err := db.Migrate(conn); err != nil {
		return err
	}

	auth, err := appmw.NewAuthenticator(ctx, cfg.AuthMode, cfg.FirebaseProjectID)
	if err != nil {
		return err
	}
	verifier, err := mpc.ParseVerifier(cfg.MPC.ProgramID, cfg.MPC.CallbackPubKey)
	if err != nil {
		return err
	}
	submitter := mpc.NewClient(cfg.MPC.GatewayURL, cfg.MPC.CallbackURL, &http.Client{Timeout: cfg.MPC.Timeout})

	srv := server.New(server.Deps{
		DB:            conn,
		Auth:          auth,
		Submitter:     submitter,
		Verifier:      verifier,
		ResealTimeout: cfg.Reseal.Timeout,
		Clock:         service.SystemClock,
	}, gitSHA, buildTime)

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		log.Infow("starting server", "addr", addr, "sha", gitSHA, "auth", cfg.AuthMode)
		errCh <- srv.Start(addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	log.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}
