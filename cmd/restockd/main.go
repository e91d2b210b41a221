package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/muaviaUsmani/restock/internal/config"
	"github.com/muaviaUsmani/restock/internal/logger"
	"github.com/muaviaUsmani/restock/internal/order"
	"github.com/muaviaUsmani/restock/internal/scheduler"
	"github.com/muaviaUsmani/restock/internal/store"
)

const leaderLockKey = "restock:leader"

// supplierExecutor places purchase orders with the upstream supplier API.
// The real supplier integration is deployment-specific; this executor covers
// single-binary deployments where order placement is delegated to a webhook.
type supplierExecutor struct {
	log logger.Logger
}

func (x *supplierExecutor) ExecuteOrder(ctx context.Context, e *order.ScheduledExecution, o *order.RecurringOrder) error {
	x.log.InfoContext(ctx, "Placing purchase order",
		"execution_id", e.ID,
		"warehouse", string(e.Warehouse),
		"supplier_id", e.Context.SupplierID,
		"estimated_value", e.EstimatedValue)

	// Simulate supplier round-trip latency.
	select {
	case <-time.After(100 * time.Millisecond):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// connectWithRetry attempts to connect to Redis with exponential backoff
func connectWithRetry(redisURL string, maxRetries int, log logger.Logger) (*store.RedisStore, error) {
	var st *store.RedisStore
	var err error

	for attempt := 0; attempt < maxRetries; attempt++ {
		st, err = store.NewRedisStore(redisURL)
		if err == nil {
			return st, nil
		}

		// Exponential backoff: 2^attempt seconds, capped at 30 seconds
		delay := time.Duration(1<<uint(attempt)) * time.Second
		if delay > 30*time.Second {
			delay = 30 * time.Second
		}

		log.Warn("Failed to connect to Redis, retrying",
			"attempt", attempt+1,
			"max_attempts", maxRetries,
			"error", err,
			"retry_in", delay)

		time.Sleep(delay)
	}

	return nil, fmt.Errorf("failed to connect to Redis after %d attempts: %w", maxRetries, err)
}

// awaitLeadership blocks until this instance holds the leader lock or the
// context is cancelled.
func awaitLeadership(ctx context.Context, st *store.RedisStore, ttl time.Duration, log logger.Logger) (*store.LeaderLock, error) {
	for {
		lock, err := store.AcquireLeaderLock(ctx, st.Client(), leaderLockKey, ttl)
		if err != nil {
			return nil, err
		}
		if lock != nil {
			log.Info("Acquired leadership", "key", lock.Key(), "ttl", lock.TTL())
			return lock, nil
		}

		log.Info("Another instance is leader, standing by", "retry_in", ttl/2)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(ttl / 2):
		}
	}
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()

	logger.SetDefault(log)

	daemonLog := log.WithComponent(logger.ComponentScheduler).WithSource(logger.LogSourceInternal)

	daemonLog.Info("Daemon starting",
		"redis_url", cfg.RedisURL,
		"store_enabled", cfg.StoreEnabled,
		"drain_interval", cfg.DrainInterval)

	// pprof on a separate port for profiling
	pprofPort := os.Getenv("PPROF_PORT")
	if pprofPort == "" {
		pprofPort = "6062"
	}
	go func() {
		daemonLog.Info("Starting pprof server", "port", pprofPort, "url", fmt.Sprintf("http://localhost:%s/debug/pprof/", pprofPort))
		if err := http.ListenAndServe(":"+pprofPort, nil); err != nil {
			daemonLog.Error("pprof server failed", "error", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	opts := []scheduler.Option{
		scheduler.WithDrainInterval(cfg.DrainInterval),
		scheduler.WithLogger(log),
	}

	var st *store.RedisStore
	var lock *store.LeaderLock

	if cfg.StoreEnabled {
		st, err = connectWithRetry(cfg.RedisURL, 5, daemonLog)
		if err != nil {
			daemonLog.Error("Failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		defer st.Close()

		daemonLog.Info("Successfully connected to Redis")

		// Only one daemon instance drains a shared store.
		lock, err = awaitLeadership(ctx, st, cfg.LeaderLockTTL, daemonLog)
		if err != nil {
			daemonLog.Error("Failed to acquire leadership", "error", err)
			os.Exit(1)
		}
		defer lock.Release(context.Background())

		opts = append(opts, scheduler.WithStore(st))
	}

	executor := &supplierExecutor{log: log.WithComponent(logger.ComponentDispatcher)}

	sched, err := scheduler.New(executor, cfg.CapacityOverrides, opts...)
	if err != nil {
		daemonLog.Error("Failed to create scheduler", "error", err)
		os.Exit(1)
	}

	// Re-schedule recurring orders submitted while the daemon was down.
	if st != nil {
		ids, err := st.ListOrders(ctx)
		if err != nil {
			daemonLog.Error("Failed to list stored recurring orders", "error", err)
		}
		for _, id := range ids {
			o, err := st.GetOrder(ctx, id)
			if err != nil {
				daemonLog.Warn("Failed to load recurring order", "recurring_order_id", id, "error", err)
				continue
			}
			if _, err := sched.ScheduleRecurringOrder(ctx, o); err != nil {
				daemonLog.Warn("Failed to schedule stored recurring order",
					"recurring_order_id", id,
					"error", err)
			}
		}
		daemonLog.Info("Recovered stored recurring orders", "count", len(ids))
	}

	sched.Start(ctx)
	daemonLog.Info("Daemon ready - dispatching due executions")

	// Keep the leader lock alive while we run.
	if lock != nil {
		go func() {
			ticker := time.NewTicker(cfg.LeaderLockTTL / 3)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if err := lock.Extend(ctx, cfg.LeaderLockTTL); err != nil {
						daemonLog.Error("Lost leadership, shutting down", "error", err)
						cancel()
						return
					}
				}
			}
		}()
	}

	select {
	case sig := <-sigChan:
		daemonLog.Info("Received shutdown signal, initiating graceful shutdown", "signal", sig)
	case <-ctx.Done():
	}

	cancel()
	sched.Shutdown()

	daemonLog.Info("Daemon shut down successfully")
}
