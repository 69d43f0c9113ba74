package db

import (
	"net"
	"strings"
	"time"

	mysqldrv "github.com/go-sql-driver/mysql"
	"github.com/shinyyama/sensor-market/internal/config"
	"github.com/shinyyama/sensor-market/internal/model"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// BuildDSN renders the MySQL DSN. Timestamps are read and written in UTC to
// match the unix-second values the services emit.
func BuildDSN(cfg *config.Config) string {
	c := mysqldrv.NewConfig()
	c.User = cfg.DBUser
	c.Passwd = cfg.DBPassword
	c.DBName = cfg.DBName
	c.Net, c.Addr = dbAddr(cfg)
	c.ParseTime = true
	c.Loc = time.UTC
	c.Timeout = 5 * time.Second
	c.Params = map[string]string{"charset": "utf8mb4"}
	return c.FormatDSN()
}

// dbAddr accepts DB_HOST as tcp(host:port), unix(path), a socket path or a
// bare host. A Cloud SQL instance name wins over all of them.
func dbAddr(cfg *config.Config) (network, addr string) {
	host := cfg.DBHost
	switch {
	case cfg.InstanceConnectionName != "":
		return "unix", "/cloudsql/" + cfg.InstanceConnectionName
	case strings.HasPrefix(host, "tcp(") && strings.HasSuffix(host, ")"):
		return "tcp", host[len("tcp(") : len(host)-1]
	case strings.HasPrefix(host, "unix(") && strings.HasSuffix(host, ")"):
		return "unix", host[len("unix(") : len(host)-1]
	case strings.HasPrefix(host, "/"):
		return "unix", host
	}
	return "tcp", net.JoinHostPort(host, cfg.DBPort)
}

func Connect(cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(BuildDSN(cfg)), &gorm.Config{
		PrepareStmt: true,
		Logger:      logger.Default.LogMode(logger.Warn),
		NowFunc:     func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetConnMaxLifetime(cfg.DBConnMaxLifetime)
	sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConns)

	return db, nil
}

// Migrate creates or updates the tables of every persisted model.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(model.All()...)
}
