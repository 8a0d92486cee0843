package tester

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"mcwatch/pkg/connectivity"
	"mcwatch/pkg/models"
)

const defaultWorkers = 4

// UserSource lists the users that have both settings stored.
type UserSource interface {
	GetConfiguredUsers(ctx context.Context) ([]models.UserConfig, error)
}

// StatusFetcher pings a server and fetches its status document.
type StatusFetcher interface {
	Ping(ctx context.Context, address string) (time.Duration, error)
	Status(ctx context.Context, address string) (*connectivity.StatusResponse, error)
}

// Result is the outcome of checking one user's configuration.
type Result struct {
	UserID        int64
	Address       string
	Player        string
	Status        models.PlayerStatus
	PlayersOnline int
	Latency       time.Duration
	Duration      time.Duration
	Err           error
}

// CheckAll checks every configured user once. Each check pings the server and
// then fetches its status, the same sequence a monitor tick runs, so a server
// that fails either step is reported unreachable. No notifications are sent
// and no monitor state is touched; results come back in user order.
func CheckAll(ctx context.Context, users UserSource, fetcher StatusFetcher, workers int) ([]Result, error) {
	configs, err := users.GetConfiguredUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get users: %w", err)
	}

	if workers <= 0 {
		workers = defaultWorkers
	}

	jobs := make(chan int, len(configs))
	results := make([]Result, len(configs))

	// Start worker pool
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go worker(ctx, fetcher, &wg, jobs, configs, results)
	}

	// Send jobs to workers
	for i := range configs {
		jobs <- i
	}
	close(jobs)

	wg.Wait()

	var online, offline, unreachable int
	for _, res := range results {
		switch {
		case !res.Status.Reachable():
			unreachable++
		case res.Status == models.StatusOnline:
			online++
		default:
			offline++
		}
	}

	slog.Info("Check completed",
		"users", len(results),
		"online", online,
		"offline", offline,
		"unreachable", unreachable)

	return results, ctx.Err()
}

func worker(ctx context.Context, fetcher StatusFetcher, wg *sync.WaitGroup, jobs <-chan int, configs []models.UserConfig, results []Result) {
	defer wg.Done()
	for i := range jobs {
		results[i] = checkUser(ctx, fetcher, configs[i])
		res := results[i]
		if res.Err != nil {
			slog.Debug("User checked",
				"userID", res.UserID,
				"serverAddress", res.Address,
				"status", res.Status,
				"error", res.Err)
			continue
		}
		slog.Debug("User checked",
			"userID", res.UserID,
			"serverAddress", res.Address,
			"playerName", res.Player,
			"status", res.Status,
			"playersOnline", res.PlayersOnline,
			"latency", res.Latency,
			"duration", res.Duration)
	}
}

func checkUser(ctx context.Context, fetcher StatusFetcher, cfg models.UserConfig) (res Result) {
	res = Result{
		UserID:  cfg.UserID,
		Address: cfg.Server(),
		Player:  cfg.Player(),
		Status:  models.StatusUnreachable,
	}

	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}

	start := time.Now()
	defer func() { res.Duration = time.Since(start) }()

	latency, err := fetcher.Ping(ctx, res.Address)
	if err != nil {
		res.Err = err
		return res
	}
	res.Latency = latency

	status, err := fetcher.Status(ctx, res.Address)
	if err != nil {
		res.Err = err
		return res
	}

	res.PlayersOnline = status.Players.Online
	if status.HasPlayer(res.Player) {
		res.Status = models.StatusOnline
	} else {
		res.Status = models.StatusOffline
	}
	return res
}
