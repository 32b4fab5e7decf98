package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/viper"

	"github.com/finvault/corebank/internal/audit"
	"github.com/finvault/corebank/internal/config"
	"github.com/finvault/corebank/internal/database"
	"github.com/finvault/corebank/internal/services"
)

const inboxQueue = "transaction_requests"

func main() {
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()

	viper.BindEnv("environment.name", "ENVIRONMENT")
	viper.BindEnv("environment.max_transaction_amount", "MAX_TRANSACTION_AMOUNT")
	viper.BindEnv("pool.size", "POOL_SIZE")
	viper.BindEnv("pool.acquire_timeout", "POOL_ACQUIRE_TIMEOUT")
	viper.BindEnv("transaction.max_retries", "MAX_RETRIES")
	viper.BindEnv("transaction.backoff_base", "BACKOFF_BASE")
	viper.BindEnv("ledger.dir", "LEDGER_DIR")

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	env := config.GetEnvironment()
	log.Printf("Starting transaction processor, environment=%s pool=%d retries=%d",
		env.Name, env.PoolSize, env.MaxRetries)

	db, err := database.OpenDatabase(env.PoolSize)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	pool := database.NewPool(database.NewConnFactory(db), env.PoolSize, env.AcquireTimeout)
	defer pool.Close()

	manager := database.NewManager(pool, env.MaxRetries, env.BackoffBase)
	ledger := audit.NewLedger(env.LedgerDir, env)

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	notifier := services.NewQueueNotifier(redisClient, "notification_queue")
	processor := services.NewProcessor(env, manager, ledger, notifier)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	if redisClient == nil {
		log.Println("No Redis inbox available, processor idle")
	} else {
		workers := 4
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				drainInbox(ctx, id, redisClient, processor)
			}(i)
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Processor shutting down...")
	cancel()
	wg.Wait()
	log.Println("Processor stopped")
}

func drainInbox(ctx context.Context, id int, client *redis.Client, processor *services.Processor) {
	for {
		if ctx.Err() != nil {
			return
		}
		vals, err := client.BLPop(ctx, 5*time.Second, inboxQueue).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("[WORKER %d] inbox read failed: %v", id, err)
			time.Sleep(time.Second)
			continue
		}
		if len(vals) < 2 {
			continue
		}

		var req services.Request
		if err := json.Unmarshal([]byte(vals[1]), &req); err != nil {
			log.Printf("[WORKER %d] malformed request dropped: %v", id, err)
			continue
		}

		result := processor.Process(ctx, req)
		if result.Err != nil {
			log.Printf("[WORKER %d] transaction %s: %s (%v)", id, result.TransactionID, result.Status, result.Err)
			continue
		}
		log.Printf("[WORKER %d] transaction %s: %s amount=%s", id, result.TransactionID, result.Status, result.AppliedAmount)
	}
}
