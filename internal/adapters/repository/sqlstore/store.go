// Package sqlstore is the bun-backed repository.Store for SQLite and PostgreSQL.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/okian/versus/internal/adapters/repository"
	"github.com/okian/versus/internal/adapters/repository/sqlstore/migrations"
	"github.com/okian/versus/internal/domain/model"
	"github.com/okian/versus/internal/domain/quota"
	"github.com/okian/versus/internal/domain/rating"
	"github.com/okian/versus/pkg/logger"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// ErrUnknownDriver is returned by Open for drivers other than sqlite and postgres.
var ErrUnknownDriver = errors.New("unknown store driver")

// Store implements repository.Store on top of a bun database.
type Store struct {
	db     *bun.DB
	pg     bool
	rating *rating.Model
	now    func() time.Time
	loc    *time.Location
	logger logger.Logger
}

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithClock sets the time source used when a ballot or submission has no timestamp.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLocation sets the zone of the weekly submission window. By default
// the zone of the submission time is used.
func WithLocation(loc *time.Location) Option {
	return func(s *Store) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithLogger sets the logger. The global logger is used when unset.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRatingModel sets the rating model applied by ApplyVote.
func WithRatingModel(m *rating.Model) Option {
	return func(s *Store) {
		if m != nil {
			s.rating = m
		}
	}
}

// Open connects to the database named by driver and dsn. It does not migrate.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (*Store, error) {
	var db *bun.DB
	switch driver {
	case DriverSQLite:
		sqldb, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		// SQLite allows one writer; a single connection also keeps
		// :memory: databases alive and shared.
		sqldb.SetMaxOpenConns(1)
		db = bun.NewDB(sqldb, sqlitedialect.New())
	case DriverPostgres:
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
		db = bun.NewDB(sqldb, pgdialect.New())
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	s := New(db, opts...)
	s.logger.Info(ctx, "store connected", logger.String("driver", driver))
	return s, nil
}

// New wraps an open bun database.
func New(db *bun.DB, opts ...Option) *Store {
	s := &Store{
		db:     db,
		pg:     db.Dialect().Name() == dialect.PG,
		rating: rating.New(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("sqlstore")
	}
	return s
}

// DB exposes the underlying database for tooling.
func (s *Store) DB() *bun.DB { return s.db }

// Migrate applies every pending migration and returns how many ran.
func (s *Store) Migrate(ctx context.Context) (int, error) {
	m := migrate.NewMigrator(s.db, migrations.Migrations)
	if err := m.Init(ctx); err != nil {
		return 0, fmt.Errorf("init migrations: %w", err)
	}
	group, err := m.Migrate(ctx)
	if err != nil {
		return 0, fmt.Errorf("migrate: %w", err)
	}
	if group == nil || group.IsZero() {
		s.logger.Debug(ctx, "schema up to date")
		return 0, nil
	}
	s.logger.Info(ctx, "schema migrated",
		logger.Int64("group", group.ID),
		logger.Int("migrations", len(group.Migrations)))
	return len(group.Migrations), nil
}

// Rollback reverts the last applied migration group and returns how many
// migrations it held.
func (s *Store) Rollback(ctx context.Context) (int, error) {
	m := migrate.NewMigrator(s.db, migrations.Migrations)
	if err := m.Init(ctx); err != nil {
		return 0, fmt.Errorf("init migrations: %w", err)
	}
	group, err := m.Rollback(ctx)
	if err != nil {
		return 0, fmt.Errorf("rollback: %w", err)
	}
	if group == nil || group.IsZero() {
		return 0, nil
	}
	s.logger.Info(ctx, "schema rolled back",
		logger.Int64("group", group.ID),
		logger.Int("migrations", len(group.Migrations)))
	return len(group.Migrations), nil
}

// LoadItems implements repository.Catalog.
func (s *Store) LoadItems(ctx context.Context, list model.ListID) ([]model.Item, error) {
	return s.ranked(ctx, s.db, list, repository.DefaultLoadLimit)
}

// LoadAllItems implements repository.Catalog.
func (s *Store) LoadAllItems(ctx context.Context, list model.ListID) ([]model.Item, error) {
	var rows []itemRow
	err := s.db.NewSelect().Model(&rows).
		Where("list_id = ?", int64(list)).
		OrderExpr("created_at ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("load all items: %w", err)
	}
	return items(rows), nil
}

// InsertItem implements repository.Catalog.
func (s *Store) InsertItem(ctx context.Context, sub model.Submission) (model.Item, error) {
	name := strings.TrimSpace(sub.Name)
	key := repository.NameKey(name)
	if key == "" {
		return model.Item{}, repository.ErrInvalidName
	}
	if sub.Submitter.Anonymous() {
		return model.Item{}, model.ErrAnonymousVoter
	}
	at := sub.At
	if at.IsZero() {
		at = s.now()
	}

	it := model.NewItem(sub.ListID, name, strings.TrimSpace(sub.Category), at)
	it.SubmitterID = sub.Submitter.UserID
	it.SubmitterName = sub.Submitter.Name

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if existing, ok, err := s.byKey(ctx, tx, sub.ListID, key); err != nil {
			return err
		} else if ok {
			return fmt.Errorf("%w: %q matches %s", model.ErrDuplicateItem, name, existing.ID)
		}

		w := repository.SubmissionWindow(at, s.loc)
		votes, err := s.countVotes(ctx, tx, sub.Submitter, sub.ListID, w)
		if err != nil {
			return err
		}
		subs, err := s.countSubmissions(ctx, tx, sub.Submitter, sub.ListID, w)
		if err != nil {
			return err
		}
		if st := quota.Evaluate(votes, subs); !st.CanSubmit {
			return fmt.Errorf("%w: %d of %d used", model.ErrQuotaExceeded, st.Submissions, st.MaxAllowed)
		}

		row := rowFromItem(it, key)
		if _, err := tx.NewInsert().Model(&row).Exec(ctx); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: %q", model.ErrDuplicateItem, name)
			}
			return fmt.Errorf("insert item: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.Item{}, err
	}
	return it, nil
}

// SeedItem implements repository.Catalog.
func (s *Store) SeedItem(ctx context.Context, item model.Item) (model.Item, error) {
	item.Name = strings.TrimSpace(item.Name)
	key := repository.NameKey(item.Name)
	if key == "" {
		return model.Item{}, repository.ErrInvalidName
	}
	if existing, ok, err := s.byKey(ctx, s.db, item.ListID, key); err != nil || ok {
		return existing, err
	}

	seeded := model.NewItem(item.ListID, item.Name, item.Category, s.now())
	if item.ID != "" {
		seeded.ID = item.ID
	}
	if item.Rating != 0 {
		seeded.Rating = item.Rating
	}
	seeded.Year = item.Year
	seeded.Approved = true

	row := rowFromItem(seeded, key)
	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			// lost a race with a concurrent seed of the same name
			existing, _, lookupErr := s.byKey(ctx, s.db, item.ListID, key)
			return existing, lookupErr
		}
		return model.Item{}, fmt.Errorf("seed item: %w", err)
	}
	return row.item(), nil
}

// Approve implements repository.Catalog.
func (s *Store) Approve(ctx context.Context, list model.ListID, itemID string) (model.Item, error) {
	var row itemRow
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().Model((*itemRow)(nil)).
			Set("approved = ?", true).
			Where("id = ?", itemID).
			Where("list_id = ?", int64(list)).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("approve item: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: %s", repository.ErrNotFound, itemID)
		}
		return tx.NewSelect().Model(&row).Where("id = ?", itemID).Scan(ctx)
	})
	if err != nil {
		return model.Item{}, err
	}
	return row.item(), nil
}

// RankedList implements repository.Catalog.
func (s *Store) RankedList(ctx context.Context, list model.ListID, limit int) ([]model.Item, error) {
	if limit <= 0 {
		limit = repository.DefaultLeaderboardLimit
	}
	return s.ranked(ctx, s.db, list, limit)
}

// Lists implements repository.Catalog.
func (s *Store) Lists(ctx context.Context) ([]model.ListID, error) {
	var ids []int64
	err := s.db.NewSelect().Model((*itemRow)(nil)).
		Distinct().
		Column("list_id").
		OrderExpr("list_id ASC").
		Scan(ctx, &ids)
	if err != nil {
		return nil, fmt.Errorf("lists: %w", err)
	}
	out := make([]model.ListID, 0, len(ids))
	for _, id := range ids {
		out = append(out, model.ListID(id))
	}
	return out, nil
}

// ApplyVote implements repository.VoteLedger. Both item rows are read and
// written inside one transaction; on PostgreSQL the rows are locked in id
// order so overlapping votes serialize without deadlocking.
func (s *Store) ApplyVote(ctx context.Context, b model.Ballot) (model.VoteResult, error) {
	if err := repository.ValidateBallot(b); err != nil {
		return model.VoteResult{}, err
	}
	at := b.At
	if at.IsZero() {
		at = s.now()
	}

	var result model.VoteResult
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var rows []itemRow
		q := tx.NewSelect().Model(&rows).
			Where("id IN (?)", bun.In([]string{b.WinnerID, b.LoserID})).
			OrderExpr("id ASC")
		if s.pg {
			q = q.For("UPDATE")
		}
		if err := q.Scan(ctx); err != nil {
			return fmt.Errorf("lock items: %w", err)
		}

		var w, l *model.Item
		for i := range rows {
			it := rows[i].item()
			switch it.ID {
			case b.WinnerID:
				w = &it
			case b.LoserID:
				l = &it
			}
		}
		if w == nil {
			return fmt.Errorf("%w: %s", repository.ErrNotFound, b.WinnerID)
		}
		if l == nil {
			return fmt.Errorf("%w: %s", repository.ErrNotFound, b.LoserID)
		}
		for _, it := range []*model.Item{w, l} {
			if err := repository.CheckVotable(*it, b.ListID); err != nil {
				return err
			}
		}

		out := repository.Settle(s.rating, w, l, at)
		for _, it := range []*model.Item{w, l} {
			row := rowFromItem(*it, "")
			_, err := tx.NewUpdate().Model(&row).
				Column("rating", "wins", "losses", "matches", "last_played").
				WherePK().
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("update item %s: %w", it.ID, err)
			}
		}

		vote := voteRow{
			ID:        uuid.NewString(),
			ListID:    int64(b.ListID),
			WinnerID:  w.ID,
			LoserID:   l.ID,
			VoterID:   b.Voter.UserID,
			VoterName: b.Voter.Name,
			CreatedAt: at.UTC(),
		}
		if _, err := tx.NewInsert().Model(&vote).Exec(ctx); err != nil {
			return fmt.Errorf("insert vote: %w", err)
		}
		result = repository.NewVoteResult(vote.ID, *w, *l, out)
		return nil
	})
	if err != nil {
		return model.VoteResult{}, err
	}
	return result, nil
}

// CountVotes implements repository.Counter.
func (s *Store) CountVotes(ctx context.Context, voter model.Voter, list model.ListID, w quota.Window) (int, error) {
	return s.countVotes(ctx, s.db, voter, list, w)
}

// CountSubmissions implements repository.Counter.
func (s *Store) CountSubmissions(ctx context.Context, voter model.Voter, list model.ListID, w quota.Window) (int, error) {
	return s.countSubmissions(ctx, s.db, voter, list, w)
}

// Close implements repository.Store.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) ranked(ctx context.Context, db bun.IDB, list model.ListID, limit int) ([]model.Item, error) {
	var rows []itemRow
	err := db.NewSelect().Model(&rows).
		Where("list_id = ?", int64(list)).
		Where("approved = ?", true).
		OrderExpr("rating DESC, id ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("ranked items: %w", err)
	}
	return items(rows), nil
}

func (s *Store) byKey(ctx context.Context, db bun.IDB, list model.ListID, key string) (model.Item, bool, error) {
	var row itemRow
	err := db.NewSelect().Model(&row).
		Where("list_id = ?", int64(list)).
		Where("name_key = ?", key).
		Limit(1).
		Scan(ctx)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return model.Item{}, false, nil
	case err != nil:
		return model.Item{}, false, fmt.Errorf("lookup name: %w", err)
	}
	return row.item(), true, nil
}

func (s *Store) countVotes(ctx context.Context, db bun.IDB, voter model.Voter, list model.ListID, w quota.Window) (int, error) {
	userID, name := repository.VoterKey(voter)
	if userID == "" && name == "" {
		return 0, nil
	}
	q := db.NewSelect().Model((*voteRow)(nil)).
		Where("list_id = ?", int64(list)).
		Where("created_at >= ?", w.Start.UTC()).
		Where("created_at < ?", w.End.UTC())
	if userID != "" {
		q = q.Where("voter_id = ?", userID)
	} else {
		q = q.Where("voter_name = ?", name)
	}
	n, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count votes: %w", err)
	}
	return n, nil
}

func (s *Store) countSubmissions(ctx context.Context, db bun.IDB, voter model.Voter, list model.ListID, w quota.Window) (int, error) {
	q := db.NewSelect().Model((*itemRow)(nil)).
		Where("list_id = ?", int64(list)).
		Where("created_at >= ?", w.Start.UTC()).
		Where("created_at < ?", w.End.UTC())
	switch {
	case voter.Name != "":
		q = q.Where("submitter_name = ?", voter.Name)
	case voter.UserID != "":
		q = q.Where("submitter_id = ?", voter.UserID)
	default:
		return 0, nil
	}
	n, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count submissions: %w", err)
	}
	return n, nil
}

func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.IntegrityViolation()
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

var _ repository.Store = (*Store)(nil)
