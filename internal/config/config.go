package config

import (
	"time"

	"github.com/caarlos0/env/v9"
)

type Config struct {
	Port       string `env:"PORT" envDefault:"8080"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`
	DBUser     string `env:"DB_USER,required"`
	DBPassword string `env:"DB_PASSWORD,required"`
	DBHost     string `env:"DB_HOST,required"` // e.g. tcp(host:3306) or unix(/cloudsql/instance)
	DBName     string `env:"DB_NAME,required"`
	DBPort     string `env:"DB_PORT" envDefault:"3306"`

	DBMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"10"`
	DBMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	DBConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"5m"`

	InstanceConnectionName string `env:"INSTANCE_CONNECTION_NAME"`

	// AuthMode is "firebase" (verify ID tokens) or "header" (trust X-User-UID).
	AuthMode          string `env:"AUTH_MODE" envDefault:"firebase"`
	FirebaseProjectID string `env:"FIREBASE_PROJECT_ID"`

	MPC      MPCConfig     `envPrefix:"MPC_"`
	Capsules CapsuleConfig `envPrefix:"CAPSULE_"`
	Relayer  RelayerConfig `envPrefix:"RELAYER_"`
	Reseal   ResealConfig  `envPrefix:"RESEAL_"`
}

type MPCConfig struct {
	GatewayURL     string        `env:"GATEWAY_URL"`
	ProgramID      string        `env:"PROGRAM_ID"`
	CallbackURL    string        `env:"CALLBACK_URL"`
	CallbackPubKey string        `env:"CALLBACK_PUBKEY"` // hex ed25519
	Timeout        time.Duration `env:"TIMEOUT" envDefault:"10s"`
}

type CapsuleConfig struct {
	Bucket   string `env:"BUCKET"`
	Prefix   string `env:"PREFIX" envDefault:"capsules/"`
	Endpoint string `env:"ENDPOINT"` // storage emulator
}

type RelayerConfig struct {
	Authority string        `env:"AUTHORITY"`
	Interval  time.Duration `env:"INTERVAL" envDefault:"5s"`
	Batch     int           `env:"BATCH" envDefault:"50"`
	SeenTTL   time.Duration `env:"SEEN_TTL" envDefault:"10m"`
}

type ResealConfig struct {
	// Timeout after which an unanswered reseal request may be replaced.
	Timeout time.Duration `env:"TIMEOUT" envDefault:"10m"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
