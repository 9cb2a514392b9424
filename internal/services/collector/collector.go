package collector

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BearBump/SpotBox/internal/broker/messages"
	"github.com/BearBump/SpotBox/internal/integrations/feed"
	"github.com/BearBump/SpotBox/internal/models"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	DefaultInterval   = 5 * time.Minute
	DefaultFetchCount = 100
	DefaultRateKey    = "spot:feed"

	SkipInProgress  = "cycle in progress"
	SkipRateLimited = "rate limited"
)

// Error kinds recorded in CycleResult.Errors.
const (
	KindConnectivity = "connectivity"
	KindUpstream     = "upstream"
	KindStorage      = "storage"
	KindPublish      = "publish"
)

var ErrAlreadyRunning = errors.New("collector already running")

type Store interface {
	InsertPositions(ctx context.Context, ps []models.Position) (models.InsertResult, error)
	CleanupOldPositions(ctx context.Context, daysToKeep int) (int64, error)
	GetAssetIDs(ctx context.Context) ([]string, error)
	CheckWritable(ctx context.Context) error
}

type Producer interface {
	PublishJSON(ctx context.Context, topic, key string, v any) error
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateStopped State = "stopped"
)

type CycleError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type CycleResult struct {
	ID                string       `json:"id"`
	StartedAt         time.Time    `json:"startedAt"`
	FinishedAt        time.Time    `json:"finishedAt"`
	Fetched           int          `json:"fetched"`
	Inserted          int          `json:"inserted"`
	SkippedDuplicates int          `json:"skippedDuplicates"`
	Errors            []CycleError `json:"errors,omitempty"`
	Skipped           bool         `json:"skipped,omitempty"`
	SkipReason        string       `json:"skipReason,omitempty"`
}

// Failed reports whether the fetch or the store step failed. A publish
// failure alone leaves the cycle successful.
func (r CycleResult) Failed() bool {
	for _, e := range r.Errors {
		if e.Kind != KindPublish {
			return true
		}
	}
	return false
}

func (r CycleResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

func (r *CycleResult) addError(kind string, err error) {
	r.Errors = append(r.Errors, CycleError{Kind: kind, Message: err.Error()})
}

type CleanupResult struct {
	At         time.Time `json:"at"`
	DaysToKeep int       `json:"daysToKeep"`
	Deleted    int64     `json:"deleted"`
	Error      string    `json:"error,omitempty"`
}

type Collector struct {
	feed     feed.Client
	store    Store
	producer Producer
	rl       RateLimiter

	topic string

	fetchCount         int
	rateKey            string
	rateLimitPerMinute int64
	cleanupDays        int
	cleanupHour        int

	onStored  func(ctx context.Context, assets []string)
	onDeleted func(ctx context.Context, assets []string)
	now       func() time.Time

	inFlight  atomic.Bool
	triggerCh chan struct{}

	totalCycles         atomic.Int64
	totalErrors         atomic.Int64
	consecutiveFailures atomic.Int64
	lastRunUnixNano     atomic.Int64
	lastTriggerUnixNano atomic.Int64

	mu          sync.Mutex
	state       State
	lastResult  *CycleResult
	lastError   string
	lastCleanup *CleanupResult
	startedAt   *time.Time
	interval    time.Duration
	nextCleanup *time.Time
	cancel      context.CancelFunc
	done        chan struct{}
}

// New wires a collector. producer and rl may be nil.
func New(client feed.Client, store Store, producer Producer, rl RateLimiter, topic string) *Collector {
	if topic == "" {
		topic = messages.TopicPositionsCollected
	}
	return &Collector{
		feed: client, store: store, producer: producer, rl: rl, topic: topic,
		fetchCount:  DefaultFetchCount,
		rateKey:     DefaultRateKey,
		cleanupHour: DefaultCleanupHour,
		now:         func() time.Time { return time.Now().UTC() },
		triggerCh:   make(chan struct{}, 1),
		state:       StateIdle,
	}
}

func (c *Collector) WithSettings(fetchCount int, rlPerMin int64) *Collector {
	if fetchCount > 0 {
		c.fetchCount = fetchCount
	}
	if rlPerMin > 0 {
		c.rateLimitPerMinute = rlPerMin
	}
	return c
}

func (c *Collector) WithRateKey(key string) *Collector {
	if key != "" {
		c.rateKey = key
	}
	return c
}

// WithCleanup enables the daily retention sweep. days <= 0 disables it.
func (c *Collector) WithCleanup(days, hour int) *Collector {
	c.cleanupDays = days
	c.cleanupHour = hour
	return c
}

// OnStored registers a hook called with the assets of every batch that
// inserted at least one new position.
func (c *Collector) OnStored(fn func(ctx context.Context, assets []string)) *Collector {
	c.onStored = fn
	return c
}

// OnDeleted registers a hook called after a cleanup removed rows, with the
// assets known before the delete.
func (c *Collector) OnDeleted(fn func(ctx context.Context, assets []string)) *Collector {
	c.onDeleted = fn
	return c
}

// RunOnce performs one fetch-normalize-store cycle. It never returns an
// error: failures are recorded in the result and in Status.
func (c *Collector) RunOnce(ctx context.Context) CycleResult {
	res := CycleResult{ID: uuid.NewString(), StartedAt: c.now()}

	if !c.inFlight.CompareAndSwap(false, true) {
		res.Skipped = true
		res.SkipReason = SkipInProgress
		res.FinishedAt = c.now()
		slog.Info("collection cycle skipped", "cycle_id", res.ID, "reason", res.SkipReason)
		return res
	}
	defer c.inFlight.Store(false)

	c.lastRunUnixNano.Store(res.StartedAt.UnixNano())
	log := slog.With("cycle_id", res.ID)

	if !c.allow(ctx, log) {
		res.Skipped = true
		res.SkipReason = SkipRateLimited
		res.FinishedAt = c.now()
		c.mu.Lock()
		c.lastResult = &res
		c.mu.Unlock()
		log.Warn("collection cycle skipped", "reason", res.SkipReason)
		return res
	}

	c.collect(ctx, log, &res, func(ctx context.Context) ([]models.Position, error) {
		return c.feed.GetMessages(ctx, feed.MessagesQuery{Start: 1, Count: c.fetchCount})
	})
	res.FinishedAt = c.now()
	c.record(res)

	log.Info("collection cycle finished",
		"fetched", res.Fetched,
		"inserted", res.Inserted,
		"duplicates", res.SkippedDuplicates,
		"errors", len(res.Errors),
		"duration", res.Duration().String(),
	)
	return res
}

// Backfill stores the feed history between from and to through the same
// store, hook and publish path as RunOnce. It shares the in-flight guard and
// the rate limit but is not counted in Status.
func (c *Collector) Backfill(ctx context.Context, from, to time.Time) (CycleResult, error) {
	if from.IsZero() || to.IsZero() || !from.Before(to) {
		return CycleResult{}, errors.New("backfill range: from must be before to")
	}
	if to.Sub(from) > feed.MaxDateRange {
		return CycleResult{}, feed.ErrRangeTooLarge
	}

	res := CycleResult{ID: uuid.NewString(), StartedAt: c.now()}
	if !c.inFlight.CompareAndSwap(false, true) {
		res.Skipped = true
		res.SkipReason = SkipInProgress
		res.FinishedAt = c.now()
		return res, nil
	}
	defer c.inFlight.Store(false)

	log := slog.With("cycle_id", res.ID, "from", from, "to", to)
	if !c.allow(ctx, log) {
		res.Skipped = true
		res.SkipReason = SkipRateLimited
		res.FinishedAt = c.now()
		return res, nil
	}

	c.collect(ctx, log, &res, func(ctx context.Context) ([]models.Position, error) {
		return c.feed.GetMessagesByDateRange(ctx, feed.DateRangeQuery{From: from, To: to})
	})
	res.FinishedAt = c.now()
	log.Info("backfill finished",
		"fetched", res.Fetched,
		"inserted", res.Inserted,
		"duplicates", res.SkippedDuplicates,
		"errors", len(res.Errors),
	)
	return res, nil
}

func (c *Collector) collect(ctx context.Context, log *slog.Logger, res *CycleResult, fetch func(ctx context.Context) ([]models.Position, error)) {
	positions, err := fetch(ctx)
	if err != nil {
		kind := feed.Kind(err)
		if kind == "" {
			kind = KindUpstream
		}
		res.addError(kind, err)
		log.Error("fetch feed messages", "kind", kind, "error", err.Error())
		return
	}
	res.Fetched = len(positions)
	if len(positions) == 0 {
		return
	}

	ins, err := c.store.InsertPositions(ctx, positions)
	if err != nil {
		res.addError(KindStorage, err)
		log.Error("store positions", "error", err.Error())
		return
	}
	res.Inserted = ins.Inserted
	res.SkippedDuplicates = ins.Duplicates
	if ins.Inserted == 0 {
		return
	}

	msg := messages.NewPositionsCollected(res.ID, c.now(), res.Fetched, res.Inserted, res.SkippedDuplicates, positions)
	if c.onStored != nil {
		c.onStored(ctx, msg.Assets)
	}
	if err := c.publish(ctx, res.ID, msg); err != nil {
		res.addError(KindPublish, err)
		log.Error("publish positions.collected", "error", err.Error())
	}
}

// allow fails open on limiter errors.
func (c *Collector) allow(ctx context.Context, log *slog.Logger) bool {
	if c.rl == nil || c.rateLimitPerMinute <= 0 {
		return true
	}
	ok, n, err := c.rl.Allow(ctx, c.rateKey, c.rateLimitPerMinute, time.Minute)
	if err != nil {
		log.Warn("rate limiter unavailable", "error", err.Error())
		return true
	}
	if !ok {
		log.Warn("rate limit exceeded", "key", c.rateKey, "count", n)
	}
	return ok
}

func (c *Collector) publish(ctx context.Context, key string, msg messages.PositionsCollected) error {
	if c.producer == nil {
		return nil
	}
	// three attempts, linear backoff
	var pubErr error
	for i := 0; i < 3; i++ {
		if pubErr = c.producer.PublishJSON(ctx, c.topic, key, msg); pubErr == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return pubErr
		case <-time.After(time.Duration(150*(i+1)) * time.Millisecond):
		}
	}
	return pubErr
}

func (c *Collector) record(res CycleResult) {
	c.totalCycles.Add(1)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastResult = &res
	if !res.Failed() {
		c.consecutiveFailures.Store(0)
		return
	}
	c.totalErrors.Add(1)
	c.consecutiveFailures.Add(1)
	for _, e := range res.Errors {
		if e.Kind != KindPublish {
			c.lastError = e.Message
			break
		}
	}
}

// TestSetup checks that the feed answers and the store accepts writes.
func (c *Collector) TestSetup(ctx context.Context) bool {
	feedOK := c.feed.TestConnection(ctx)
	if !feedOK {
		slog.Error("feed connection test failed")
	}

	storeOK := true
	if err := c.store.CheckWritable(ctx); err != nil {
		storeOK = false
		slog.Error("store is not writable", "error", err.Error())
	}

	if feedOK && storeOK {
		slog.Info("setup test passed")
	}
	return feedOK && storeOK
}

// Cleanup removes positions older than daysToKeep days and records the
// outcome in Status.
func (c *Collector) Cleanup(ctx context.Context, daysToKeep int) (CleanupResult, error) {
	out := CleanupResult{At: c.now(), DaysToKeep: daysToKeep}

	var assets []string
	if c.onDeleted != nil {
		ids, err := c.store.GetAssetIDs(ctx)
		if err != nil {
			slog.Warn("list assets before cleanup", "error", err.Error())
		}
		assets = ids
	}

	n, err := c.store.CleanupOldPositions(ctx, daysToKeep)
	out.Deleted = n
	if err != nil {
		out.Error = err.Error()
		slog.Error("cleanup old positions", "days_to_keep", daysToKeep, "error", err.Error())
	} else {
		slog.Info("cleanup completed", "days_to_keep", daysToKeep, "deleted", n)
		if n > 0 && c.onDeleted != nil {
			c.onDeleted(ctx, assets)
		}
	}

	c.mu.Lock()
	c.lastCleanup = &out
	c.mu.Unlock()
	return out, err
}

type Status struct {
	State               State          `json:"state"`
	StartedAt           *time.Time     `json:"startedAt,omitempty"`
	Interval            string         `json:"interval,omitempty"`
	LastRunTime         *time.Time     `json:"lastRunTime,omitempty"`
	LastTriggerAt       *time.Time     `json:"lastTriggerAt,omitempty"`
	LastResult          *CycleResult   `json:"lastResult,omitempty"`
	TotalCycles         int64          `json:"totalCycles"`
	TotalErrors         int64          `json:"totalErrors"`
	ConsecutiveFailures int64          `json:"consecutiveFailures"`
	LastError           string         `json:"lastError,omitempty"`
	CleanupDays         int            `json:"cleanupDays"`
	NextCleanupAt       *time.Time     `json:"nextCleanupAt,omitempty"`
	LastCleanup         *CleanupResult `json:"lastCleanup,omitempty"`
}

func (c *Collector) Status() Status {
	st := Status{
		TotalCycles:         c.totalCycles.Load(),
		TotalErrors:         c.totalErrors.Load(),
		ConsecutiveFailures: c.consecutiveFailures.Load(),
		CleanupDays:         c.cleanupDays,
	}
	if n := c.lastRunUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastRunTime = &t
	}
	if n := c.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	st.State = c.state
	if c.inFlight.Load() {
		st.State = StateRunning
	}
	st.StartedAt = c.startedAt
	if c.interval > 0 {
		st.Interval = c.interval.String()
	}
	if c.lastResult != nil {
		r := *c.lastResult
		st.LastResult = &r
	}
	st.LastError = c.lastError
	st.NextCleanupAt = c.nextCleanup
	if c.lastCleanup != nil {
		cl := *c.lastCleanup
		st.LastCleanup = &cl
	}
	return st
}
