package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestGetEnvironmentTestDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set("environment.name", EnvTest)

	env := GetEnvironment()
	assert.Equal(t, EnvTest, env.Name)
	assert.False(t, env.IsProduction())

	ceiling, ok := env.Ceiling()
	assert.True(t, ok)
	assert.True(t, ceiling.Equal(decimal.RequireFromString("100000")))
	assert.Equal(t, 3, env.PoolSize)
	assert.Equal(t, 3, env.MaxRetries)
	assert.Equal(t, 100*time.Millisecond, env.BackoffBase)
}

func TestGetEnvironmentProductionIsUnrestricted(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set("environment.name", EnvProduction)

	env := GetEnvironment()
	assert.True(t, env.IsProduction())
	_, ok := env.Ceiling()
	assert.False(t, ok)
	assert.Equal(t, 10, env.PoolSize)
}

func TestGetEnvironmentOverrides(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set("environment.name", EnvDevelopment)
	viper.Set("environment.max_transaction_amount", "2500.50")
	viper.Set("pool.size", 7)
	viper.Set("transaction.max_retries", 5)

	env := GetEnvironment()
	ceiling, ok := env.Ceiling()
	assert.True(t, ok)
	assert.True(t, ceiling.Equal(decimal.RequireFromString("2500.50")))
	assert.Equal(t, 7, env.PoolSize)
	assert.Equal(t, 5, env.MaxRetries)
}

func TestGetEnvironmentInvalidCeilingFallsBack(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set("environment.name", EnvTest)
	viper.Set("environment.max_transaction_amount", "not-a-number")

	env := GetEnvironment()
	_, ok := env.Ceiling()
	assert.False(t, ok)
}
