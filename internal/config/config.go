package config

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"ledger-reconciliation-backend/internal/services/matching"
	"ledger-reconciliation-backend/internal/services/netting"
)

type Config struct {
	Port        string
	DatabaseURL string
	OutputDir   string
	CORSOrigins []string
	LogLevel    string

	Matching matching.Config
	Netting  netting.Config
}

func setDefaults(v *viper.Viper) {
	match := matching.DefaultConfig()
	net := netting.DefaultConfig()

	v.SetDefault("PORT", "8080")
	v.SetDefault("DATABASE_URL", "host=localhost user=postgres password=postgres dbname=reconciliation port=5432 sslmode=disable")
	v.SetDefault("OUTPUT_DIR", "output")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("MATCH_TOLERANCE", match.Tolerance.String())
	v.SetDefault("MATCH_MIN_LENGTH", match.MinLength)
	v.SetDefault("REVIEW_TOLERANCE", "")
	v.SetDefault("INVOICE_LOT", net.InvoiceLot)
	v.SetDefault("RECEIPT_LOT", net.ReceiptLot)
	v.SetDefault("RECEIPT_KEYWORD", net.ReceiptKeyword)
	v.SetDefault("PAIRING_STRATEGY", string(net.Strategy))
	v.SetDefault("PAIRING_TOLERANCE", net.Tolerance.String())
}

// Load reads the settings from the environment, falling back to defaults.
// Call godotenv.Load first to pick up a .env file.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	cfg := &Config{
		Port:        v.GetString("PORT"),
		DatabaseURL: v.GetString("DATABASE_URL"),
		OutputDir:   v.GetString("OUTPUT_DIR"),
		LogLevel:    v.GetString("LOG_LEVEL"),
		Matching:    matching.DefaultConfig(),
		Netting:     netting.DefaultConfig(),
	}
	for _, origin := range strings.Split(v.GetString("CORS_ORIGINS"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, origin)
		}
	}

	var err error
	if cfg.Matching.Tolerance, err = tolerance(v, "MATCH_TOLERANCE"); err != nil {
		return nil, err
	}
	if cfg.Netting.Tolerance, err = tolerance(v, "PAIRING_TOLERANCE"); err != nil {
		return nil, err
	}

	if minLen := v.GetInt("MATCH_MIN_LENGTH"); minLen > 0 {
		cfg.Matching.MinLength = minLen
	}

	if raw := strings.TrimSpace(v.GetString("REVIEW_TOLERANCE")); raw != "" {
		review, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("REVIEW_TOLERANCE: %w", err)
		}
		cfg.Matching.ReviewTolerance = review
	}

	cfg.Netting.InvoiceLot = v.GetString("INVOICE_LOT")
	cfg.Netting.ReceiptLot = v.GetString("RECEIPT_LOT")
	cfg.Netting.ReceiptKeyword = v.GetString("RECEIPT_KEYWORD")
	if cfg.Netting.Strategy, err = netting.ParseStrategy(v.GetString("PAIRING_STRATEGY")); err != nil {
		return nil, fmt.Errorf("PAIRING_STRATEGY: %w", err)
	}

	return cfg, nil
}

func tolerance(v *viper.Viper, key string) (decimal.Decimal, error) {
	tol, err := decimal.NewFromString(strings.TrimSpace(v.GetString(key)))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", key, err)
	}
	if tol.IsNegative() {
		return decimal.Zero, fmt.Errorf("%s must not be negative", key)
	}
	return tol, nil
}

// InitDB opens the Postgres connection.
func InitDB(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return db, nil
}
