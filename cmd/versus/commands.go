package main

import (
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/okian/versus/internal/adapters/repository"
	"github.com/okian/versus/internal/adapters/repository/sqlstore"
	service "github.com/okian/versus/internal/app"
	"github.com/okian/versus/internal/config"
	"github.com/okian/versus/internal/domain/model"
	"github.com/okian/versus/internal/domain/rating"
	"github.com/okian/versus/internal/export"
	"github.com/okian/versus/internal/seed"
	"github.com/okian/versus/internal/simulate"
)

// ErrNotSQL is returned by commands that need a durable store.
var ErrNotSQL = errors.New("command requires store_driver sqlite or postgres")

// exportAll is the row cap used when export runs without --limit.
const exportAll = 100_000

func openSQL(c *cli.Context) (*sqlstore.Store, error) {
	cfg := configOf(c)
	if cfg.StoreDriver == config.DriverMemory {
		return nil, ErrNotSQL
	}
	return sqlstore.Open(c.Context, cfg.StoreDriver, cfg.StoreDSN)
}

// openStore opens and migrates the configured durable store.
func openStore(c *cli.Context) (repository.Store, error) {
	cfg := configOf(c)
	if cfg.StoreDriver == config.DriverMemory {
		return nil, ErrNotSQL
	}
	return service.OpenStore(c.Context, cfg, rating.New())
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "database migrations",
		Action: func(c *cli.Context) error {
			st, err := openSQL(c)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()
			n, err := st.Migrate(c.Context)
			if err != nil {
				return err
			}
			if n == 0 {
				_, _ = fmt.Fprintln(c.App.Writer, "No new migrations to run")
				return nil
			}
			_, _ = fmt.Fprintf(c.App.Writer, "Applied %d migrations\n", n)
			return nil
		},
		Subcommands: []*cli.Command{
			{
				Name:  "rollback",
				Usage: "rollback the last migration group",
				Action: func(c *cli.Context) error {
					st, err := openSQL(c)
					if err != nil {
						return err
					}
					defer func() { _ = st.Close() }()
					n, err := st.Rollback(c.Context)
					if err != nil {
						return err
					}
					if n == 0 {
						_, _ = fmt.Fprintln(c.App.Writer, "No groups to roll back")
						return nil
					}
					_, _ = fmt.Fprintf(c.App.Writer, "Rolled back %d migrations\n", n)
					return nil
				},
			},
		},
	}
}

func seedCommand() *cli.Command {
	return &cli.Command{
		Name:  "seed",
		Usage: "load approved items from a YAML file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "seed file", Required: true},
		},
		Action: func(c *cli.Context) error {
			items, err := seed.LoadFile(c.String("file"))
			if err != nil {
				return err
			}
			st, err := openStore(c)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()
			res, err := seed.Apply(c.Context, st, items)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(c.App.Writer, "Seeded %d items into %d lists\n", res.Seeded, len(res.Lists))
			return nil
		},
	}
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "write a leaderboard workbook",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "list", Usage: "list id (default: default_list_id)"},
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "output .xlsx path", Value: "leaderboard.xlsx"},
			&cli.IntFlag{Name: "limit", Usage: "rows to export; 0 exports the whole list"},
		},
		Action: func(c *cli.Context) error {
			cfg := configOf(c)
			list := c.Int64("list")
			if list == 0 {
				list = cfg.DefaultListID
			}
			loc, err := cfg.Location()
			if err != nil {
				return err
			}
			st, err := openStore(c)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()
			limit := c.Int("limit")
			if limit <= 0 {
				limit = exportAll
			}
			n, err := export.WriteFile(c.Context, c.String("out"), st, model.ListID(list), limit, loc)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(c.App.Writer, "Exported %d rows of list %d to %s\n", n, list, c.String("out"))
			return nil
		},
	}
}

func simulateCommand() *cli.Command {
	return &cli.Command{
		Name:  "simulate",
		Usage: "drive a running server with synthetic voters",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Usage: "base URL of the service", Value: "http://localhost:9080"},
			&cli.Int64Flag{Name: "list", Usage: "list id (default: default_list_id)"},
			&cli.IntFlag{Name: "voters", Value: simulate.DefaultVoters},
			&cli.IntFlag{Name: "votes", Usage: "votes per voter", Value: simulate.DefaultVotesPerVoter},
			&cli.IntFlag{Name: "workers", Usage: "voters running at once", Value: runtime.NumCPU() * 2},
			&cli.Float64Flag{Name: "noise", Usage: "probability of picking the weaker item"},
			&cli.Uint64Flag{Name: "seed", Value: uint64(time.Now().UnixNano())},
			&cli.DurationFlag{Name: "timeout", Usage: "HTTP request timeout", Value: simulate.DefaultTimeout},
			&cli.IntFlag{Name: "top", Usage: "leaderboard size for the correlation", Value: simulate.DefaultTopN},
		},
		Action: func(c *cli.Context) error {
			cfg := configOf(c)
			list := c.Int64("list")
			if list == 0 {
				list = cfg.DefaultListID
			}
			stats, err := simulate.Run(c.Context, simulate.Config{
				BaseURL:       c.String("url"),
				ListID:        list,
				Voters:        c.Int("voters"),
				VotesPerVoter: c.Int("votes"),
				Workers:       c.Int("workers"),
				Noise:         c.Float64("noise"),
				Seed:          c.Uint64("seed"),
				Timeout:       c.Duration("timeout"),
				TopN:          min(c.Int("top"), cfg.MaxLeaderboardLimit),
				Secret:        cfg.JWTSecret,
				RetryDelay:    max(cfg.VoteCooldown()/4, 10*time.Millisecond),
			})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(c.App.Writer, "%d votes from %d voters in %s; spearman %.3f over %d items\n",
				stats.VotesCast, stats.Sessions, stats.Duration.Round(time.Millisecond), stats.Correlation, stats.Items)
			return nil
		},
	}
}
