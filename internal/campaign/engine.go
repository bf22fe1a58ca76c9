package campaign

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"zapfacil/internal/connection"
	"zapfacil/internal/contacts"
	"zapfacil/internal/driver"
	"zapfacil/internal/eventbus"
	"zapfacil/internal/history"
	"zapfacil/internal/report"
	"zapfacil/pkg/logx"
)

var (
	ErrCampaignRunning    = errors.New("a campaign is already running")
	ErrEmptyRecipientList = errors.New("recipient list is empty")
)

// Options tune run behavior; zero values fall back to production defaults.
type Options struct {
	// MinDelay/MaxDelay bound the random inter-recipient pacing window.
	MinDelay time.Duration
	MaxDelay time.Duration
}

// Deps are the engine's collaborators, injected at construction. History
// and Bus may be nil.
type Deps struct {
	Driver   driver.Driver
	Monitor  *connection.Monitor
	Contacts *contacts.Loader
	Reports  *report.Store
	History  *history.Store
	Bus      eventbus.Bus
	Log      logx.Logger
}

type Engine struct {
	opts Options
	deps Deps
	log  logx.Logger
	rnd  *rand.Rand

	mu     sync.Mutex
	status Status
	// resume is non-nil while paused; Resume/Stop close it to wake the
	// run goroutine (no fixed-interval polling).
	resume chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

func New(opts Options, deps Deps) *Engine {
	if opts.MinDelay <= 0 {
		opts.MinDelay = 5 * time.Second
	}
	if opts.MaxDelay < opts.MinDelay {
		opts.MaxDelay = 2 * opts.MinDelay
	}
	return &Engine{
		opts:   opts,
		deps:   deps,
		log:    deps.Log,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		status: Idle,
	}
}

func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Done returns a channel closed when the current run finishes. It returns
// nil when no run has ever been started.
func (e *Engine) Done() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.done
}

// Start resolves the recipient list and launches the run goroutine. It
// rejects when another run is active or the resolved list is empty; in
// both cases state is untouched and no report is produced.
func (e *Engine) Start(ctx context.Context, cfg Config) error {
	recipients := e.deps.Contacts.Resolve(cfg.Source, cfg.ContactListPath, cfg.ManualContacts)

	e.mu.Lock()
	if e.status == Running || e.status == Paused {
		e.mu.Unlock()
		e.log.Warn("campaign start rejected: already running")
		return ErrCampaignRunning
	}
	if len(recipients) == 0 {
		e.mu.Unlock()
		e.log.Error("campaign start rejected: empty recipient list")
		return ErrEmptyRecipientList
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.status = Running
	e.cancel = cancel
	e.resume = nil
	done := make(chan struct{})
	e.done = done
	e.mu.Unlock()

	e.publishState(Running)
	go func() {
		defer close(done)
		e.run(runCtx, cfg, recipients)
	}()
	return nil
}

// Pause suspends recipient processing; no-op unless Running.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status != Running {
		return
	}
	e.status = Paused
	e.resume = make(chan struct{})
	e.log.Info("campaign paused")
	e.publishStateLocked(Paused)
}

// Resume continues a paused run; no-op unless Paused.
func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status != Paused {
		return
	}
	close(e.resume)
	e.resume = nil
	e.status = Running
	e.log.Info("campaign resumed")
	e.publishStateLocked(Running)
}

// Stop requests cooperative cancellation. The run exits at its next
// suspension point (pause wait, reconnect wait, pacing delay or driver
// call). Idempotent.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.status != Running && e.status != Paused {
		e.mu.Unlock()
		return
	}
	if e.resume != nil {
		close(e.resume)
		e.resume = nil
	}
	cancel := e.cancel
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	e.log.Info("campaign stop requested")
}

// waitWhilePaused blocks while the run is paused. Returns false when stop
// was requested, either before or during the wait.
func (e *Engine) waitWhilePaused(ctx context.Context) bool {
	for {
		e.mu.Lock()
		ch := e.resume
		e.mu.Unlock()
		if ch == nil {
			return ctx.Err() == nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return false
		}
	}
}

func (e *Engine) publishState(s Status) {
	if e.deps.Bus == nil {
		return
	}
	e.deps.Bus.Publish(eventbus.Event{Type: eventbus.TypeCampaignState, Data: s.String()})
}

// publishStateLocked exists because Publish is non-blocking and safe to
// call under e.mu.
func (e *Engine) publishStateLocked(s Status) { e.publishState(s) }
