package config

import (
	"log"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Known environment names. The environment scopes policy limits,
// ledger partitioning and approval requirements.
const (
	EnvProduction  = "production"
	EnvTest        = "test"
	EnvDevelopment = "development"
)

// Environment holds the externally supplied deployment configuration.
// Nothing here is hard-coded at call sites; values come from viper
// (env vars or config file) with per-environment defaults.
type Environment struct {
	Name           string
	MaxTxAmount    decimal.Decimal // zero means unrestricted
	PoolSize       int
	AcquireTimeout time.Duration
	MaxRetries     int
	BackoffBase    time.Duration
	LedgerDir      string
}

// IsProduction reports whether this is the production environment.
func (e Environment) IsProduction() bool {
	return e.Name == EnvProduction
}

// Ceiling returns the single-transaction amount cap and whether one
// applies. Production runs unrestricted.
func (e Environment) Ceiling() (decimal.Decimal, bool) {
	if e.MaxTxAmount.IsZero() || e.MaxTxAmount.IsNegative() {
		return decimal.Zero, false
	}
	return e.MaxTxAmount, true
}

// GetEnvironment returns the active environment configuration with
// defaults applied per environment name.
func GetEnvironment() Environment {
	viper.SetDefault("environment.name", EnvDevelopment)
	name := viper.GetString("environment.name")

	viper.SetDefault("environment.max_transaction_amount", defaultCeiling(name))
	viper.SetDefault("pool.size", defaultPoolSize(name))
	viper.SetDefault("pool.acquire_timeout", 5*time.Second)
	viper.SetDefault("transaction.max_retries", 3)
	viper.SetDefault("transaction.backoff_base", 100*time.Millisecond)
	viper.SetDefault("ledger.dir", "transaction_logs")

	ceiling := decimal.Zero
	if raw := viper.GetString("environment.max_transaction_amount"); raw != "" {
		parsed, err := decimal.NewFromString(raw)
		if err != nil {
			log.Printf("[CONFIG] invalid max_transaction_amount %q, treating as unrestricted: %v", raw, err)
		} else {
			ceiling = parsed
		}
	}

	return Environment{
		Name:           name,
		MaxTxAmount:    ceiling,
		PoolSize:       viper.GetInt("pool.size"),
		AcquireTimeout: viper.GetDuration("pool.acquire_timeout"),
		MaxRetries:     viper.GetInt("transaction.max_retries"),
		BackoffBase:    viper.GetDuration("transaction.backoff_base"),
		LedgerDir:      viper.GetString("ledger.dir"),
	}
}

func defaultCeiling(name string) string {
	switch name {
	case EnvProduction:
		return "" // unrestricted
	case EnvTest:
		return "100000"
	default:
		return "50000"
	}
}

func defaultPoolSize(name string) int {
	switch name {
	case EnvProduction:
		return 10
	case EnvTest:
		return 3
	default:
		return 2
	}
}
