package simulate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"golang.org/x/sync/errgroup"

	"github.com/okian/versus/pkg/auth"
	"github.com/okian/versus/pkg/logger"
)

// maxRetries bounds how often one vote is retried after a throttle or a
// transient failure.
const maxRetries = 40

// ErrNoPair is returned when the server has too few items to compare.
var ErrNoPair = errors.New("server offered no pair")

type counters struct {
	cast     atomic.Int64
	rejected atomic.Int64
	retries  atomic.Int64
	sessions atomic.Int64
}

// Run executes a simulation against cfg.BaseURL and reports how closely the
// final leaderboard follows the voters' hidden order.
func Run(ctx context.Context, cfg Config) (Stats, error) {
	if err := cfg.Normalize(); err != nil {
		return Stats{}, err
	}
	log := logger.Get().Named("simulate")
	stats := Stats{StartTime: time.Now()}

	var tokens *auth.Provider
	if cfg.Secret != "" {
		tokens = auth.NewProvider(cfg.Secret)
	}
	probe, err := NewClient(cfg.BaseURL, cfg.Timeout, auth.Identity{UserID: "sim-probe", Name: "Probe"}, tokens)
	if err != nil {
		return stats, err
	}
	if err := probe.Health(ctx); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	log.Info(ctx, "starting simulation",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int64("list", cfg.ListID),
		logger.Int("voters", cfg.Voters),
		logger.Int("votesPerVoter", cfg.VotesPerVoter),
		logger.Int("workers", cfg.Workers),
		logger.Float64("noise", cfg.Noise))

	oracle := Oracle{seed: cfg.Seed}
	var c counters
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for i := 0; i < cfg.Voters; i++ {
		faker := gofakeit.New(cfg.Seed + uint64(i) + 1)
		id := auth.Identity{UserID: "sim-" + faker.UUID(), Name: faker.Name()}
		client, err := NewClient(cfg.BaseURL, cfg.Timeout, id, tokens)
		if err != nil {
			return stats, err
		}
		v := &voter{cfg: &cfg, client: client, faker: faker, oracle: oracle, id: id, c: &c}
		g.Go(func() error { return v.run(gctx) })
	}
	runErr := g.Wait()

	stats.VotesCast = int(c.cast.Load())
	stats.VotesRejected = int(c.rejected.Load())
	stats.Retries = int(c.retries.Load())
	stats.Sessions = int(c.sessions.Load())
	if runErr != nil {
		stats.Duration = time.Since(stats.StartTime)
		return stats, runErr
	}

	board, err := probe.Leaderboard(ctx, cfg.ListID, cfg.TopN)
	if err != nil {
		return stats, fmt.Errorf("leaderboard retrieval failed: %w", err)
	}
	ids := make([]string, len(board))
	for i, e := range board {
		ids[i] = e.ItemID
	}
	stats.Items = len(ids)
	stats.Correlation = round3(oracle.Spearman(ids))
	stats.Duration = time.Since(stats.StartTime)

	var perSecond float64
	if stats.Duration > 0 {
		perSecond = float64(stats.VotesCast) / stats.Duration.Seconds()
	}
	log.Info(ctx, "final statistics",
		logger.Int("sessions", stats.Sessions),
		logger.Int("votesCast", stats.VotesCast),
		logger.Int("votesRejected", stats.VotesRejected),
		logger.Int("retries", stats.Retries),
		logger.Int("items", stats.Items),
		logger.Float64("spearman", stats.Correlation),
		logger.Duration("duration", stats.Duration),
		logger.Float64("votesPerSecond", perSecond))
	return stats, nil
}

type voter struct {
	cfg    *Config
	client *Client
	faker  *gofakeit.Faker
	oracle Oracle
	id     auth.Identity
	c      *counters
}

func (v *voter) run(ctx context.Context) error {
	snap, err := v.client.CreateSession(ctx, v.cfg.ListID)
	if err != nil {
		return fmt.Errorf("voter %s: create session: %w", v.id.Name, err)
	}
	v.c.sessions.Add(1)

	for n := 0; n < v.cfg.VotesPerVoter; n++ {
		if snap.Pair == nil {
			return fmt.Errorf("voter %s: %w", v.id.Name, ErrNoPair)
		}
		a, b := snap.Pair.A.ID, snap.Pair.B.ID
		winner := v.oracle.Better(a, b)
		if v.faker.Float64() < v.cfg.Noise {
			winner = other(winner, a, b)
		}
		next, err := v.vote(ctx, snap.ID, winner, fmt.Sprintf("%s-%d", v.id.UserID, n))
		if err != nil {
			return err
		}
		snap = next
	}
	return nil
}

// vote casts one ballot, retrying throttled and transient replies with the
// same request id so a retry never counts twice.
func (v *voter) vote(ctx context.Context, sessionID, winner, requestID string) (Session, error) {
	for attempt := 0; ; attempt++ {
		next, err := v.client.Vote(ctx, sessionID, winner, requestID)
		if err == nil {
			v.c.cast.Add(1)
			return next, nil
		}
		var apiErr *APIError
		if !errors.As(err, &apiErr) || !retryable(apiErr) || attempt >= maxRetries {
			v.c.rejected.Add(1)
			return Session{}, fmt.Errorf("voter %s: vote: %w", v.id.Name, err)
		}
		v.c.retries.Add(1)
		select {
		case <-ctx.Done():
			return Session{}, ctx.Err()
		case <-time.After(v.cfg.RetryDelay):
		}
	}
}

func retryable(e *APIError) bool {
	switch e.Status {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return true
	case http.StatusConflict:
		return e.Code == "busy"
	default:
		return false
	}
}

func other(id, a, b string) string {
	if id == a {
		return b
	}
	return a
}
