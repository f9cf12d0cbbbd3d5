// Package session implements the per-voter ranking session: a small state
// machine that loads a list, shows pairs, records votes and accepts
// submissions.
//
//	Loading -> Voting <-> Submitting
//
// A Controller allows one vote or submission in flight. A concurrent call
// fails fast with ErrBusy instead of queueing behind the first.
package session

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/okian/versus/internal/domain/model"
	"github.com/okian/versus/internal/domain/pairing"
	"github.com/okian/versus/internal/domain/quota"
	"github.com/okian/versus/internal/domain/rating"
	"github.com/okian/versus/internal/domain/similarity"
	"github.com/okian/versus/pkg/logger"
	"github.com/okian/versus/pkg/metrics"
)

// DefaultCooldown is the minimum spacing between two accepted votes.
const DefaultCooldown = 2 * time.Second

const tracerName = "github.com/okian/versus/internal/session"

// State is the controller's position in its state machine.
type State int

// Controller states.
const (
	StateLoading State = iota
	StateVoting
	StateSubmitting
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateVoting:
		return "voting"
	case StateSubmitting:
		return "submitting"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText renders the state by name.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Snapshot is a consistent copy of a controller's observable state.
type Snapshot struct {
	ID            string
	ListID        model.ListID
	Voter         model.Voter
	State         State
	Pair          *model.Pair
	Quota         quota.Status
	Status        string
	StatusIsError bool
	Candidates    int
	LastActive    time.Time
}

// VoteOutcome is what a successful vote returns.
type VoteOutcome struct {
	Result model.VoteResult
	// Next is nil when fewer than two votable items remain.
	Next  *model.Pair
	Quota quota.Status
}

// Preview holds the hypothetical outcomes of the current pair.
type Preview struct {
	Pair model.Pair
	IfA  rating.Outcome
	IfB  rating.Outcome
}

// Controller is one voter's session on one list.
type Controller struct {
	id       string
	list     model.ListID
	voter    model.Voter
	backend  Backend
	selector *pairing.Selector
	matcher  *similarity.Matcher
	rating   *rating.Model
	clock    Clock
	loc      *time.Location
	cooldown time.Duration
	cacheTTL time.Duration
	limiter  *rate.Limiter
	cache    *RankCache
	tracer   trace.Tracer
	logger   logger.Logger

	busy atomic.Bool

	mu         sync.RWMutex
	state      State
	items      []model.Item // votable: approved, not submitted by this voter
	submitted  []model.Item // accepted this session, pending review
	pair       *model.Pair
	lastPair   [2]string
	votes      int
	subs       int
	window     quota.Window
	status     string
	statusErr  bool
	lastActive time.Time
}

// New creates a controller in the Loading state. Call Start to load items.
func New(list model.ListID, voter model.Voter, backend Backend, opts ...Option) *Controller {
	c := &Controller{
		id:       uuid.NewString(),
		list:     list,
		voter:    voter,
		backend:  backend,
		clock:    SystemClock,
		loc:      time.Local,
		cooldown: DefaultCooldown,
		tracer:   otel.Tracer(tracerName),
		state:    StateLoading,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.Get().Named("session")
	}
	if c.selector == nil {
		c.selector = pairing.NewSelector()
	}
	if c.matcher == nil {
		c.matcher = similarity.NewMatcher()
	}
	if c.rating == nil {
		c.rating = rating.New()
	}
	c.limiter = rate.NewLimiter(rate.Every(c.cooldown), 1)
	c.cache = NewRankCache(c.clock, c.cacheTTL)
	c.lastActive = c.clock.Now()
	return c
}

// ID returns the session id.
func (c *Controller) ID() string { return c.id }

// ListID returns the list the session votes on.
func (c *Controller) ListID() model.ListID { return c.list }

// Voter returns the identity the session acts for.
func (c *Controller) Voter() model.Voter { return c.voter }

// LastActive returns the time of the last call that touched the session.
func (c *Controller) LastActive() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastActive
}

// Start loads the list and the voter's weekly counts and enters Voting.
// On failure the controller stays in Loading and Start may be called again.
// A list with fewer than two votable items is not an error: the session
// enters Voting without a pair.
func (c *Controller) Start(ctx context.Context) error {
	if !c.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer c.busy.Store(false)

	now := c.clock.Now()
	c.touch(now)

	items, err := c.backend.LoadItems(ctx, c.list)
	if err != nil {
		c.setStatus(statusLoadFailed, true)
		c.logger.Warn(ctx, "load items failed",
			logger.String("session", c.id),
			logger.Int64("list", int64(c.list)),
			logger.Error(err))
		return fmt.Errorf("load items: %w", err)
	}
	c.refreshWindow(ctx, now)

	c.mu.Lock()
	c.items = c.votable(items)
	c.state = StateVoting
	c.pickPairLocked()
	c.mu.Unlock()
	return nil
}

// Vote records that winnerID beats the other member of the current pair.
func (c *Controller) Vote(ctx context.Context, winnerID string) (VoteOutcome, error) {
	ctx, span := c.tracer.Start(ctx, "session.Vote", trace.WithAttributes(
		attribute.String("session.id", c.id),
		attribute.Int64("list.id", int64(c.list)),
		attribute.String("winner.id", winnerID),
	))
	defer span.End()

	if !c.busy.CompareAndSwap(false, true) {
		return VoteOutcome{}, c.voteFailed(span, ErrBusy, statusBusy)
	}
	defer c.busy.Store(false)

	now := c.clock.Now()
	c.touch(now)

	c.mu.RLock()
	state, pair := c.state, c.pair
	c.mu.RUnlock()

	switch {
	case state == StateLoading:
		return VoteOutcome{}, c.voteFailed(span, fmt.Errorf("%w: session not loaded", ErrTransient), statusLoadFailed)
	case pair == nil:
		return VoteOutcome{}, c.voteFailed(span, ErrInsufficientItems, statusInsufficient)
	case !pair.Has(winnerID):
		return VoteOutcome{}, c.voteFailed(span, fmt.Errorf("%w: %s is not in the current pair", ErrInvalidChoice, winnerID), statusInvalid)
	}

	if c.limiter.TokensAt(now) < 1 {
		metrics.RecordCooldownRejection()
		return VoteOutcome{}, c.voteFailed(span, ErrCooldown, statusCooldown)
	}
	reservation := c.limiter.ReserveN(now, 1)

	winner, loser := pair.A, pair.B
	if pair.B.ID == winnerID {
		winner, loser = pair.B, pair.A
	}
	c.setStatus(statusSaving, false)

	start := time.Now()
	res, err := c.backend.SubmitVote(ctx, model.Ballot{
		WinnerID: winner.ID,
		LoserID:  loser.ID,
		Voter:    c.voter,
		ListID:   c.list,
		At:       now,
	})
	if err != nil {
		// a failed vote does not consume the cooldown
		reservation.CancelAt(now)
		c.logger.Warn(ctx, "vote failed",
			logger.String("session", c.id),
			logger.String("winner", winner.ID),
			logger.String("loser", loser.ID),
			logger.Error(err))
		return VoteOutcome{}, c.voteFailed(span, fmt.Errorf("submit vote: %w", err), statusVoteFailed)
	}
	metrics.RecordVoteAccepted(res.WinnerDelta, res.EffectiveK, float64(time.Since(start).Microseconds())/1000)

	rolled := c.refreshWindow(ctx, now)

	c.mu.Lock()
	c.applyLocked(res.Winner)
	c.applyLocked(res.Loser)
	if !rolled {
		c.votes++
	}
	c.pickPairLocked()
	if c.pair != nil {
		c.status = fmt.Sprintf("%s inched ahead by %d pts", winner.Name, int(math.Round(math.Abs(res.WinnerDelta))))
		c.statusErr = false
	}
	out := VoteOutcome{Result: res, Next: copyPair(c.pair), Quota: quota.Evaluate(c.votes, c.subs)}
	c.mu.Unlock()

	c.cache.Invalidate()
	span.SetAttributes(attribute.Float64("rating.winner_delta", res.WinnerDelta))
	return out, nil
}

// Submit proposes a new item for the list. The name is checked against the
// voter's weekly credit and against every item of the list, pending ones
// included, before anything is stored.
func (c *Controller) Submit(ctx context.Context, name, category string) (model.Item, error) {
	ctx, span := c.tracer.Start(ctx, "session.Submit", trace.WithAttributes(
		attribute.String("session.id", c.id),
		attribute.Int64("list.id", int64(c.list)),
	))
	defer span.End()

	if !c.busy.CompareAndSwap(false, true) {
		return model.Item{}, c.reject(span, ErrBusy, statusBusy)
	}
	defer c.busy.Store(false)

	now := c.clock.Now()
	c.touch(now)

	c.mu.RLock()
	state := c.state
	c.mu.RUnlock()
	if state != StateVoting {
		metrics.RecordSubmission(string(KindTransient))
		return model.Item{}, c.reject(span, fmt.Errorf("%w: cannot submit while %s", ErrTransient, state), statusLoadFailed)
	}

	name = strings.TrimSpace(name)
	if similarity.Normalize(name) == "" {
		metrics.RecordSubmission(string(KindInvalid))
		return model.Item{}, c.reject(span, fmt.Errorf("%w: %w", ErrInvalidChoice, model.ErrInvalidName), statusBadName)
	}

	prev := c.enter(StateSubmitting)
	defer c.enter(prev)

	c.refreshWindow(ctx, now)
	if st := c.Quota(); !st.CanSubmit {
		metrics.RecordSubmission(string(KindQuota))
		return model.Item{}, c.reject(span,
			fmt.Errorf("%w: %d of %d used", model.ErrQuotaExceeded, st.Submissions, st.MaxAllowed),
			quotaStatus(st))
	}

	all, err := c.backend.LoadAllItems(ctx, c.list)
	if err != nil {
		metrics.RecordSubmission(string(KindTransient))
		return model.Item{}, c.reject(span, fmt.Errorf("load all items: %w", err), statusSubmitFailed)
	}
	c.mu.RLock()
	all = append(all, c.submitted...)
	c.mu.RUnlock()

	if m, ok := c.matcher.FindSimilar(name, all); ok {
		metrics.RecordSubmission(string(KindDuplicate))
		return model.Item{}, c.reject(span,
			fmt.Errorf("%w: %q resembles %q (score %.2f)", model.ErrDuplicateItem, name, m.Item.Name, m.Score),
			fmt.Sprintf("%q is too close to %q, which is already on the list.", name, m.Item.Name))
	}

	it, err := c.backend.SubmitItem(ctx, model.Submission{
		ListID:    c.list,
		Name:      name,
		Category:  strings.TrimSpace(category),
		Submitter: c.voter,
		At:        now.In(c.loc),
	})
	if err != nil {
		kind := KindOf(err)
		metrics.RecordSubmission(string(kind))
		msg := statusSubmitFailed
		switch kind {
		case KindDuplicate:
			msg = fmt.Sprintf("%q is already on the list.", name)
		case KindQuota:
			// the server saw more than we did; recount next time
			c.mu.Lock()
			c.window = quota.Window{}
			c.mu.Unlock()
			msg = "You have used all your submissions for this week."
		}
		return model.Item{}, c.reject(span, fmt.Errorf("submit item: %w", err), msg)
	}

	metrics.RecordSubmission("accepted")
	c.mu.Lock()
	c.subs++
	c.submitted = append(c.submitted, it)
	c.status = fmt.Sprintf("Thanks! %q was sent for review.", it.Name)
	c.statusErr = false
	c.mu.Unlock()
	span.SetAttributes(attribute.String("item.id", it.ID))
	return it, nil
}

// Preview returns both hypothetical outcomes of the current pair.
func (c *Controller) Preview() (Preview, error) {
	c.touch(c.clock.Now())
	c.mu.RLock()
	pair := c.pair
	c.mu.RUnlock()
	if pair == nil {
		return Preview{}, ErrInsufficientItems
	}
	ifA, ifB := c.rating.Preview(rating.FromItem(pair.A), rating.FromItem(pair.B))
	return Preview{Pair: *pair, IfA: ifA, IfB: ifB}, nil
}

// Leaderboard returns the list's top items through the session's cache.
func (c *Controller) Leaderboard(ctx context.Context, limit int) ([]model.Item, error) {
	c.touch(c.clock.Now())
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", ErrInvalidChoice)
	}
	items, err := c.cache.Get(ctx, limit, func(ctx context.Context, n int) ([]model.Item, error) {
		return c.backend.FetchRankedList(ctx, c.list, n)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch ranked list: %w", err)
	}
	return items, nil
}

// Quota evaluates the voter's weekly credit from the session's counts.
func (c *Controller) Quota() quota.Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return quota.Evaluate(c.votes, c.subs)
}

// Snapshot returns a copy of the observable state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Snapshot{
		ID:            c.id,
		ListID:        c.list,
		Voter:         c.voter,
		State:         c.state,
		Pair:          copyPair(c.pair),
		Quota:         quota.Evaluate(c.votes, c.subs),
		Status:        c.status,
		StatusIsError: c.statusErr,
		Candidates:    len(c.items),
		LastActive:    c.lastActive,
	}
}

// refreshWindow reloads the weekly counts when now has left the current
// window. It reports whether the counts were reloaded. A failed reload keeps
// the old counts and is retried on the next call.
func (c *Controller) refreshWindow(ctx context.Context, now time.Time) bool {
	c.mu.RLock()
	current := c.window
	c.mu.RUnlock()
	if !current.Start.IsZero() && current.Contains(now) {
		return false
	}

	w := quota.WeekWindow(now.In(c.loc))
	votes, err := c.backend.FetchVoteCount(ctx, c.voter, c.list, w)
	if err != nil {
		c.logger.Warn(ctx, "fetch vote count failed", logger.String("session", c.id), logger.Error(err))
		return false
	}
	subs, err := c.backend.FetchSubmissionCount(ctx, c.voter, c.list, w)
	if err != nil {
		c.logger.Warn(ctx, "fetch submission count failed", logger.String("session", c.id), logger.Error(err))
		return false
	}

	c.mu.Lock()
	c.window, c.votes, c.subs = w, votes, subs
	c.mu.Unlock()
	return true
}

// votable drops items the voter submitted.
func (c *Controller) votable(items []model.Item) []model.Item {
	out := make([]model.Item, 0, len(items))
	for _, it := range items {
		if it.Approved && !it.SubmittedBy(c.voter) {
			out = append(out, it)
		}
	}
	return out
}

// Caller holds c.mu.
func (c *Controller) pickPairLocked() {
	res, ok := c.selector.Select(c.items, c.lastPair)
	if !ok {
		c.pair = nil
		c.status, c.statusErr = statusInsufficient, true
		metrics.RecordPairInsufficient()
		return
	}
	c.pair = &res.Pair
	c.lastPair = res.Pair.IDs()
	c.status, c.statusErr = statusChoose, false
	metrics.RecordPairSelection(res.Fallback)
}

// applyLocked replaces the local copy of an item with the authoritative one.
// Caller holds c.mu.
func (c *Controller) applyLocked(it model.Item) {
	for i := range c.items {
		if c.items[i].ID == it.ID {
			c.items[i] = it
			return
		}
	}
}

func (c *Controller) enter(s State) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.state
	c.state = s
	return prev
}

func (c *Controller) touch(now time.Time) {
	c.mu.Lock()
	if now.After(c.lastActive) {
		c.lastActive = now
	}
	c.mu.Unlock()
}

func (c *Controller) setStatus(msg string, isErr bool) {
	c.mu.Lock()
	c.status, c.statusErr = msg, isErr
	c.mu.Unlock()
}

// reject mirrors err into the status line and the span and returns it.
func (c *Controller) reject(span trace.Span, err error, msg string) error {
	kind := KindOf(err)
	if kind != KindBusy {
		c.setStatus(msg, true)
	}
	span.SetAttributes(attribute.String("error.kind", string(kind)))
	span.SetStatus(codes.Error, err.Error())
	return err
}

func (c *Controller) voteFailed(span trace.Span, err error, msg string) error {
	metrics.RecordVoteFailed(string(KindOf(err)))
	return c.reject(span, err, msg)
}

func quotaStatus(st quota.Status) string {
	return fmt.Sprintf("You have used %d of %d submissions this week. %d more votes earn another.",
		st.Submissions, st.MaxAllowed, st.VotesToNext)
}

func copyPair(p *model.Pair) *model.Pair {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}
