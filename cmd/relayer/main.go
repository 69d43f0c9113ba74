package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	logging "github.com/ipfs/go-log/v2"
	"github.com/joho/godotenv"
	"github.com/shinyyama/sensor-market/internal/capsule"
	"github.com/shinyyama/sensor-market/internal/config"
	"github.com/shinyyama/sensor-market/internal/db"
	"github.com/shinyyama/sensor-market/internal/mpc"
	"github.com/shinyyama/sensor-market/internal/relayer"
	"github.com/shinyyama/sensor-market/internal/repository"
	"github.com/shinyyama/sensor-market/internal/service"
)

var log = logging.Logger("main")

func main() {
	_ = godotenv.Load()

	if err := run(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("relayer stopped: %v", err)
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
	if cfg.Relayer.Authority == "" {
		return errors.New("RELAYER_AUTHORITY is not set")
	}

	conn, err := db.Connect(cfg)
	if err != nil {
		return err
	}
	store := repository.NewStore(conn)

	capsules, err := capsule.NewGCSStore(ctx, cfg.Capsules.Bucket, cfg.Capsules.Prefix, cfg.Capsules.Endpoint)
	if err != nil {
		return err
	}
	defer capsules.Close()

	verifier, err := mpc.ParseVerifier(cfg.MPC.ProgramID, cfg.MPC.CallbackPubKey)
	if err != nil {
		return err
	}
	submitter := mpc.NewClient(cfg.MPC.GatewayURL, cfg.MPC.CallbackURL, &http.Client{Timeout: cfg.MPC.Timeout})
	reseal := service.NewResealService(store, submitter, verifier, service.SystemClock, cfg.Reseal.Timeout)

	r := relayer.New(store, reseal, capsules, relayer.Options{
		Authority: cfg.Relayer.Authority,
		Batch:     cfg.Relayer.Batch,
		SeenTTL:   cfg.Relayer.SeenTTL,
		Timeout:   cfg.Reseal.Timeout,
	})
	log.Infow("relayer starting", "authority", cfg.Relayer.Authority, "interval", cfg.Relayer.Interval)
	return r.Run(ctx, cfg.Relayer.Interval)
}
