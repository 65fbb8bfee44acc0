package service

import (
	"context"
	"sync"
	"time"

	"github.com/turtacn/contentsdk/internal/domain/models"
	domainService "github.com/turtacn/contentsdk/internal/domain/service"
	"github.com/turtacn/contentsdk/pkg/clock"
	"github.com/turtacn/contentsdk/pkg/constants"
	"github.com/turtacn/contentsdk/pkg/errors"
	"github.com/turtacn/contentsdk/pkg/logger"
)

// FeedOptions tunes an EventFeed. Zero fields take the defaults from DefaultFeedOptions.
type FeedOptions struct {
	RetryDelay              time.Duration
	DeduplicationFilterSize int
	FetchInterval           time.Duration
	FetchLimit              int
	ErrorBuffer             int
}

// DefaultFeedOptions returns the standard feed tuning.
func DefaultFeedOptions() FeedOptions {
	return FeedOptions{
		RetryDelay:              constants.DefaultRetryDelay,
		DeduplicationFilterSize: constants.DefaultDeduplicationFilterSize,
		FetchInterval:           constants.DefaultFetchInterval,
		FetchLimit:              constants.DefaultFetchLimit,
		ErrorBuffer:             constants.DefaultErrorBuffer,
	}
}

func (o FeedOptions) withDefaults() FeedOptions {
	d := DefaultFeedOptions()
	if o.RetryDelay <= 0 {
		o.RetryDelay = d.RetryDelay
	}
	if o.DeduplicationFilterSize <= 0 {
		o.DeduplicationFilterSize = d.DeduplicationFilterSize
	}
	if o.FetchInterval < 0 {
		o.FetchInterval = 0
	} else if o.FetchInterval == 0 {
		o.FetchInterval = d.FetchInterval
	}
	if o.FetchLimit <= 0 {
		o.FetchLimit = d.FetchLimit
	}
	if o.ErrorBuffer <= 0 {
		o.ErrorBuffer = d.ErrorBuffer
	}
	return o
}

// FeedOption configures optional collaborators of an EventFeed.
type FeedOption func(*EventFeed)

// WithFeedClock overrides the clock driving retry timers and the fetch gate.
func WithFeedClock(c clock.Clock) FeedOption {
	return func(f *EventFeed) { f.clock = c }
}

// WithFeedLogger sets the logger.
func WithFeedLogger(l logger.Logger) FeedOption {
	return func(f *EventFeed) { f.logger = l.WithComponent("event_feed") }
}

// WithFeedMetrics sets the metrics sink.
func WithFeedMetrics(m domainService.Metrics) FeedOption {
	return func(f *EventFeed) { f.metrics = m }
}

type step int

const (
	stepResolve step = iota
	stepDiscover
	stepWait
	stepFetch
	stepRetry
	stepIdle
	stepStop
)

// feedState is the mutable record owned by one feed.
type feedState struct {
	streamPosition   models.StreamPosition
	longPollInfo     *models.LongPollInfo
	longPollAttempts int
	dedup            *dedupFilter
	nextFetchAt      time.Time
}

// EventFeed is a pull-driven stream of events. Each call to Next that finds the
// buffer empty starts one cycle (discover, wait, fetch) unless one is already running
// or a batch is still being delivered. A cycle ends once a batch has been buffered.
//
// Transport failures are reported on Errors and retried after RetryDelay. An
// auth-expired failure during discovery halts the feed: Next returns it until Resume is called.
type EventFeed struct {
	longPoll *LongPollClient
	opts     FeedOptions
	clock    clock.Clock
	logger   logger.Logger
	metrics  domainService.Metrics

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	state      feedState
	buffer     []models.Event
	running    bool
	delivering bool
	destroyed  bool
	halted     error
	retryTimer *clock.Timer
	changed    chan struct{}

	errs        chan error
	done        chan struct{}
	destroyOnce sync.Once
}

// NewEventFeed creates a feed starting at position. An empty position starts at the
// current head of the stream.
func NewEventFeed(longPoll *LongPollClient, position models.StreamPosition, opts FeedOptions, feedOpts ...FeedOption) *EventFeed {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	f := &EventFeed{
		longPoll: longPoll,
		opts:     opts,
		clock:    clock.Real(),
		logger:   logger.NewNoopLogger(),
		metrics:  domainService.NewNoopMetrics(),
		ctx:      ctx,
		cancel:   cancel,
		state: feedState{
			streamPosition: position,
			dedup:          newDedupFilter(opts.DeduplicationFilterSize),
		},
		changed: make(chan struct{}),
		errs:    make(chan error, opts.ErrorBuffer),
		done:    make(chan struct{}),
	}
	for _, opt := range feedOpts {
		opt(f)
	}
	return f
}

// Next returns the next event, starting a cycle when none is buffered.
// It returns errors.ErrFeedClosed once the feed is destroyed, the halting error
// after an auth-expired failure, or ctx.Err().
func (f *EventFeed) Next(ctx context.Context) (models.Event, error) {
	for {
		f.mu.Lock()
		if f.destroyed {
			f.mu.Unlock()
			return models.Event{}, errors.ErrFeedClosed
		}
		if len(f.buffer) > 0 {
			ev := f.buffer[0]
			f.buffer = f.buffer[1:]
			if len(f.buffer) == 0 {
				f.buffer = nil
				f.delivering = false
			}
			f.mu.Unlock()
			return ev, nil
		}
		if f.halted != nil {
			err := f.halted
			f.mu.Unlock()
			return models.Event{}, err
		}
		f.startCycleLocked()
		changed := f.changed
		f.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return models.Event{}, ctx.Err()
		case <-f.done:
			return models.Event{}, errors.ErrFeedClosed
		}
	}
}

// Errors returns non-fatal failures of the feed. Notifications are dropped when nobody reads them.
func (f *EventFeed) Errors() <-chan error { return f.errs }

// Done is closed when the feed is destroyed.
func (f *EventFeed) Done() <-chan struct{} { return f.done }

// StreamPosition returns the cursor after the last successful fetch.
func (f *EventFeed) StreamPosition() models.StreamPosition {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.streamPosition
}

// Pending returns the number of fetched events Next has not returned yet.
// When it is zero, StreamPosition is a safe checkpoint.
func (f *EventFeed) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.buffer)
}

// Halted returns the error that stopped the feed, or nil while it can make progress.
// A destroyed feed reports errors.ErrFeedClosed.
func (f *EventFeed) Halted() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.destroyed {
		return errors.ErrFeedClosed
	}
	return f.halted
}

// Resume clears an auth-expired halt. The next call to Next re-discovers the long-poll endpoint.
func (f *EventFeed) Resume() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.halted == nil {
		return
	}
	f.halted = nil
	f.state.longPollInfo = nil
	f.broadcastLocked()
}

// Destroy stops the feed. Pending timers are cancelled and in-flight requests are
// abandoned; their results are discarded. Calling Destroy again has no effect.
func (f *EventFeed) Destroy() {
	f.destroyOnce.Do(func() {
		f.mu.Lock()
		f.destroyed = true
		if f.retryTimer != nil {
			f.retryTimer.Stop()
			f.retryTimer = nil
		}
		f.buffer = nil
		f.broadcastLocked()
		f.mu.Unlock()

		f.cancel()
		close(f.done)
		f.logger.Debug(context.Background(), "Event feed destroyed")
	})
}

func (f *EventFeed) startCycleLocked() {
	if f.running || f.delivering || f.destroyed || f.halted != nil {
		return
	}
	f.running = true
	go f.run(f.entryStepLocked())
}

func (f *EventFeed) entryStepLocked() step {
	switch {
	case f.state.streamPosition == "":
		return stepResolve
	case f.state.longPollInfo != nil:
		return stepWait
	default:
		return stepDiscover
	}
}

// broadcastLocked wakes every goroutine blocked in Next.
func (f *EventFeed) broadcastLocked() {
	close(f.changed)
	f.changed = make(chan struct{})
}

func (f *EventFeed) run(next step) {
	for {
		switch next {
		case stepResolve:
			next = f.resolvePosition()
		case stepDiscover:
			next = f.discover()
		case stepWait:
			next = f.wait()
		case stepFetch:
			next = f.fetch()
		case stepRetry:
			f.scheduleRetry()
			return
		default:
			f.mu.Lock()
			f.running = false
			f.broadcastLocked()
			f.mu.Unlock()
			return
		}
	}
}

func (f *EventFeed) scheduleRetry() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.destroyed {
		f.running = false
		return
	}
	f.state.longPollInfo = nil
	f.retryTimer = f.clock.AfterFunc(f.opts.RetryDelay, func() {
		go f.resumeAfterRetry()
	})
}

func (f *EventFeed) resumeAfterRetry() {
	f.mu.Lock()
	if f.destroyed {
		f.mu.Unlock()
		return
	}
	f.retryTimer = nil
	next := f.entryStepLocked()
	f.mu.Unlock()
	f.run(next)
}

// resolvePosition turns an empty cursor into the current head of the stream.
func (f *EventFeed) resolvePosition() step {
	page, err := f.fetchPage(constants.StreamPositionNow)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.destroyed {
		return stepStop
	}
	if err != nil {
		return f.failLocked("resolve", err)
	}
	if page.NextStreamPosition == "" {
		f.logger.Warn(f.ctx, "Events endpoint returned no stream position for now")
		return stepRetry
	}
	f.state.streamPosition = page.NextStreamPosition
	return stepDiscover
}

func (f *EventFeed) discover() step {
	info, err := f.longPoll.Discover(f.ctx)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.destroyed {
		return stepStop
	}
	if err != nil {
		if errors.IsAuthExpired(err) {
			f.emitErrorLocked(err)
			f.halted = err
			f.logger.Warn(f.ctx, "Long-poll discovery rejected credentials; feed halted")
			return stepStop
		}
		return f.failLocked("discover", err)
	}
	f.state.longPollInfo = info
	f.state.longPollAttempts = 0
	return stepWait
}

func (f *EventFeed) wait() step {
	f.mu.Lock()
	info := f.state.longPollInfo
	if info == nil {
		f.mu.Unlock()
		return stepDiscover
	}
	f.state.longPollAttempts++
	if info.MaxRetries > 0 && f.state.longPollAttempts > info.MaxRetries {
		f.state.longPollInfo = nil
		f.mu.Unlock()
		return stepDiscover
	}
	position := f.state.streamPosition
	f.mu.Unlock()

	signal, err := f.longPoll.Wait(f.ctx, info, position)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.destroyed {
		return stepStop
	}
	if err != nil {
		return f.failLocked("wait", err)
	}
	switch signal {
	case constants.SignalNewChange:
		return stepFetch
	case constants.SignalReconnect:
		f.state.longPollInfo = nil
		return stepDiscover
	default:
		return stepWait
	}
}

func (f *EventFeed) fetch() step {
	f.mu.Lock()
	position := f.state.streamPosition
	f.mu.Unlock()

	page, err := f.fetchPage(position)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.destroyed {
		return stepStop
	}
	if err != nil {
		return f.failLocked("fetch", err)
	}
	if !page.Valid() {
		f.logger.Debug(f.ctx, "Event page lacks entries or cursor; waiting again")
		return stepWait
	}

	f.state.streamPosition = page.NextStreamPosition
	fresh, dropped := f.state.dedup.filter(page.Entries)
	if dropped > 0 {
		f.metrics.RecordDuplicatesDropped(dropped)
	}
	if len(fresh) == 0 {
		return stepWait
	}

	f.buffer = append(f.buffer, fresh...)
	f.delivering = true
	f.metrics.RecordEventsEmitted(len(fresh))
	if f.state.dedup.prune(page.Entries) {
		f.logger.Debug(f.ctx, "Pruned dedup filter", logger.Int("tracked", f.state.dedup.count()))
	}
	f.broadcastLocked()
	return stepIdle
}

// fetchPage waits for the rate gate, then reads one page. The gate moves forward
// after every completed fetch, successful or not.
func (f *EventFeed) fetchPage(position models.StreamPosition) (*models.EventPage, error) {
	f.mu.Lock()
	gate := f.state.nextFetchAt
	f.mu.Unlock()

	if d := gate.Sub(f.clock.Now()); d > 0 {
		select {
		case <-f.clock.After(d):
		case <-f.ctx.Done():
			return nil, f.ctx.Err()
		}
	}

	page, err := f.longPoll.FetchEvents(f.ctx, position, f.opts.FetchLimit)

	f.mu.Lock()
	f.state.nextFetchAt = f.clock.Now().Add(f.opts.FetchInterval)
	f.mu.Unlock()
	return page, err
}

// failLocked decides how a failed step continues. Malformed responses are logged and
// polling goes on; everything else is reported and retried after RetryDelay.
func (f *EventFeed) failLocked(stage string, err error) step {
	if errors.IsMalformed(err) {
		f.logger.Warn(f.ctx, "Ignoring malformed response", logger.String("stage", stage), logger.String("error", err.Error()))
		if stage == "fetch" && f.state.longPollInfo != nil {
			return stepWait
		}
		return stepRetry
	}
	f.emitErrorLocked(err)
	return stepRetry
}

func (f *EventFeed) emitErrorLocked(err error) {
	if f.destroyed {
		return
	}
	kind := string(errors.KindOf(err))
	if kind == "" {
		kind = string(errors.KindTransport)
	}
	f.metrics.RecordFeedError(kind)
	select {
	case f.errs <- err:
	default:
		f.logger.Warn(f.ctx, "Dropped feed error notification; Errors() is not being drained", logger.String("error", err.Error()))
	}
}
