package main

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/shinyyama/sensor-market/internal/capsule"
	"github.com/shinyyama/sensor-market/internal/config"
	"github.com/shinyyama/sensor-market/internal/db"
	"github.com/shinyyama/sensor-market/internal/mpc"
	"github.com/shinyyama/sensor-market/internal/repository"
	"github.com/shinyyama/sensor-market/internal/service"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := connect()
		if err != nil {
			return err
		}
		if err := db.Migrate(conn); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		log.Info("schema up to date")
		return nil
	},
}

var fundArgs struct {
	owner  string
	mint   string
	amount uint64
}

var fundCmd = &cobra.Command{
	Use:   "fund",
	Short: "Credit a token account, opening it if needed",
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := connect()
		if err != nil {
			return err
		}
		svc := service.NewAccountService(repository.NewStore(conn))
		a, err := svc.Fund(cmd.Context(), fundArgs.owner, fundArgs.mint, fundArgs.amount)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s %d\n", a.Address, a.Mint, a.Amount)
		return nil
	},
}

var seedArgs struct {
	admin    string
	seller   string
	name     string
	mint     string
	feeBps   uint16
	deviceID string
	price    uint64
	units    uint64
	ttl      time.Duration
}

// seedCmd creates a marketplace with one device and one listing. The DEK
// capsule it uploads holds random bytes, so purchases against it can be
// driven through the reseal flow but never decrypt real data.
var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create a demo marketplace, device and listing",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		conn, err := db.Connect(cfg)
		if err != nil {
			return fmt.Errorf("connect db: %w", err)
		}
		store := repository.NewStore(conn)
		registry := service.NewRegistryService(store, service.SystemClock)
		listings := service.NewListingService(store, service.SystemClock)

		capsules, err := capsule.NewGCSStore(ctx, cfg.Capsules.Bucket, cfg.Capsules.Prefix, cfg.Capsules.Endpoint)
		if err != nil {
			return fmt.Errorf("capsule store: %w", err)
		}
		defer capsules.Close()

		mk, err := registry.InitializeMarketplace(ctx, seedArgs.admin, seedArgs.name, seedArgs.feeBps, seedArgs.mint)
		if err != nil {
			return fmt.Errorf("marketplace: %w", err)
		}
		dev, err := registry.RegisterDevice(ctx, seedArgs.seller, mk.Address, seedArgs.deviceID)
		if err != nil {
			return fmt.Errorf("device: %w", err)
		}

		var mxe capsule.MXE
		if _, err := rand.Read(mxe.Nonce[:]); err != nil {
			return err
		}
		for i := range mxe.Ciphertexts {
			if _, err := rand.Read(mxe.Ciphertexts[i][:]); err != nil {
				return err
			}
		}
		mxeCID, err := capsules.Put(ctx, mxe.Bytes())
		if err != nil {
			return fmt.Errorf("upload capsule: %w", err)
		}
		dataCID, err := randomCID()
		if err != nil {
			return err
		}

		in := service.CreateListingInput{
			Seller:              seedArgs.seller,
			Marketplace:         mk.Address,
			Device:              dev.Address,
			DataCID:             dataCID,
			DekCapsuleForMxeCID: mxeCID,
			PricePerUnit:        seedArgs.price,
			TotalDataUnits:      seedArgs.units,
		}
		if seedArgs.ttl > 0 {
			exp := service.SystemClock().Add(seedArgs.ttl)
			in.ExpiresAt = &exp
		}
		l, err := listings.Create(ctx, in)
		if err != nil {
			return fmt.Errorf("listing: %w", err)
		}

		log.Infow("seeded", "marketplace", mk.Address, "device", dev.Address, "listing", l.Address, "mxeCapsule", mxeCID)
		fmt.Fprintln(cmd.OutOrStdout(), l.Address)
		return nil
	},
}

func init() {
	fundCmd.Flags().StringVar(&fundArgs.owner, "owner", "", "account owner uid")
	fundCmd.Flags().StringVar(&fundArgs.mint, "mint", "", "token mint")
	fundCmd.Flags().Uint64Var(&fundArgs.amount, "amount", 0, "amount in base units")
	_ = fundCmd.MarkFlagRequired("owner")
	_ = fundCmd.MarkFlagRequired("mint")

	seedCmd.Flags().StringVar(&seedArgs.admin, "admin", "admin", "marketplace admin uid")
	seedCmd.Flags().StringVar(&seedArgs.seller, "seller", "seller", "device owner uid")
	seedCmd.Flags().StringVar(&seedArgs.name, "name", "demo", "marketplace name")
	seedCmd.Flags().StringVar(&seedArgs.mint, "mint", "usdc", "token mint")
	seedCmd.Flags().Uint16Var(&seedArgs.feeBps, "fee-bps", 250, "seller fee in basis points")
	seedCmd.Flags().StringVar(&seedArgs.deviceID, "device", "station-01", "device id")
	seedCmd.Flags().Uint64Var(&seedArgs.price, "price", 100, "price per data unit")
	seedCmd.Flags().Uint64Var(&seedArgs.units, "units", 1000, "data units for sale")
	seedCmd.Flags().DurationVar(&seedArgs.ttl, "ttl", 0, "listing lifetime, 0 for none")
}

func connect() (*gorm.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	conn, err := db.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	return conn, nil
}

func randomCID() (string, error) {
	var b mpc.Bytes32
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return capsule.ContentID(b[:])
}
