package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fitcheckr/fitcheckr/ingest"
	"github.com/fitcheckr/fitcheckr/models"
	"github.com/fitcheckr/fitcheckr/tryonclient"
	"github.com/rs/zerolog"
)

// Transport sends one try-on request. *tryonclient.Client implements it.
type Transport interface {
	TryOn(ctx context.Context, userImage string, articleImages []string) (models.TryOnResult, error)
}

// Session is the pair of upload slots a controller reads from.
type Session struct {
	User    ingest.Slot
	Article ingest.Slot
}

// Options configures a Controller.
type Options struct {
	Timeout        time.Duration
	StatusInterval time.Duration
	StatusMessages []string
	Logger         *zerolog.Logger
	// OnChange observes every state change, in order. It must not call Start, Run, Cancel
	// or Reset.
	OnChange func(State)
}

// Controller owns the state machine of a single session.
type Controller struct {
	transport Transport
	session   *Session
	timeout   time.Duration
	interval  time.Duration
	messages  []string
	logger    zerolog.Logger
	onChange  func(State)

	notifyMu sync.Mutex
	mu       sync.Mutex
	state    State
	attempt  uint64
	cancel   context.CancelCauseFunc
}

func New(transport Transport, session *Session, opts Options) *Controller {
	if session == nil {
		session = &Session{}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.StatusInterval <= 0 {
		opts.StatusInterval = 2 * time.Second
	}
	if len(opts.StatusMessages) == 0 {
		opts.StatusMessages = DefaultStatusMessages
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	onChange := opts.OnChange
	if onChange == nil {
		onChange = func(State) {}
	}
	return &Controller{
		transport: transport,
		session:   session,
		timeout:   opts.Timeout,
		interval:  opts.StatusInterval,
		messages:  opts.StatusMessages,
		logger:    logger,
		onChange:  onChange,
		state:     Idle{},
	}
}

// Session returns the slots the controller reads.
func (c *Controller) Session() *Session {
	return c.session
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

type attempt struct {
	id      uint64
	ctx     context.Context
	user    string
	article string
}

// Run performs one attempt and blocks until it reaches a terminal state, which it returns.
// The error is the cause of a failure: a *ingest.ValidationError when an image is missing,
// ErrTimedOut, ErrCanceled, a *tryonclient.APIError or a transport error.
func (c *Controller) Run(ctx context.Context) (State, error) {
	a, err := c.begin(ctx)
	if err != nil {
		return c.State(), err
	}
	return c.run(a)
}

// Start begins an attempt in the background. The returned channel receives the terminal
// state once and is then closed.
func (c *Controller) Start(ctx context.Context) (<-chan State, error) {
	a, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	out := make(chan State, 1)
	go func() {
		defer close(out)
		st, _ := c.run(a)
		out <- st
	}()
	return out, nil
}

// Cancel aborts the attempt in flight, if any, and returns to Idle without a notice.
func (c *Controller) Cancel() {
	c.abort(false)
}

// Reset aborts any attempt, discards both images and returns to Idle.
func (c *Controller) Reset() {
	c.abort(true)
}

func (c *Controller) abort(clearImages bool) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	_, processing := c.state.(Processing)
	if !processing && !clearImages {
		c.mu.Unlock()
		return
	}
	if c.cancel != nil {
		c.cancel(ErrCanceled)
		c.cancel = nil
	}
	c.attempt++
	c.state = Idle{}
	c.mu.Unlock()

	if clearImages {
		c.session.User.Clear()
		c.session.Article.Clear()
	}
	c.logger.Debug().Bool("reset", clearImages).Msg("try-on aborted")
	c.onChange(Idle{})
}

func (c *Controller) begin(parent context.Context) (attempt, error) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	if _, processing := c.state.(Processing); processing {
		c.mu.Unlock()
		return attempt{}, ErrAttemptInFlight
	}

	user, article := c.session.User.Current(), c.session.Article.Current()
	if user == nil || article == nil {
		verr := &ingest.ValidationError{Reason: ingest.ReasonMissing}
		st := Idle{Notice: verr.Message()}
		c.state = st
		c.mu.Unlock()
		c.onChange(st)
		return attempt{}, verr
	}

	ctx, cancel := context.WithCancelCause(parent)
	c.attempt++
	c.cancel = cancel
	st := Processing{Status: c.messages[0]}
	c.state = st
	a := attempt{id: c.attempt, ctx: ctx, user: user.Payload(), article: article.Payload()}
	c.mu.Unlock()

	c.onChange(st)
	return a, nil
}

type outcome struct {
	result models.TryOnResult
	err    error
}

func (c *Controller) run(a attempt) (State, error) {
	timer := time.AfterFunc(c.timeout, func() { c.cancelAttempt(a.id, ErrTimedOut) })
	defer timer.Stop()

	stopStatus := make(chan struct{})
	defer close(stopStatus)
	go c.rotateStatus(a.id, stopStatus)

	done := make(chan outcome, 1)
	go func() {
		res, err := c.transport.TryOn(a.ctx, a.user, []string{a.article})
		done <- outcome{result: res, err: err}
	}()

	var (
		next State
		err  error
	)
	select {
	case out := <-done:
		next, err = c.settle(a, out)
	case <-a.ctx.Done():
		err = context.Cause(a.ctx)
		next = c.failure(err)
	}

	if !c.finish(a.id, next) {
		// Cancel or Reset already moved the controller on.
		return c.State(), ErrCanceled
	}
	if err != nil {
		c.logger.Warn().Err(err).Str("state", Name(next)).Msg("try-on attempt failed")
	}
	return next, err
}

// settle maps a transport outcome onto a terminal state. A transport error that arrives
// after cancellation is reported as the cancellation cause.
func (c *Controller) settle(a attempt, out outcome) (State, error) {
	if out.err == nil {
		return Complete{Result: out.result}, nil
	}
	if cause := context.Cause(a.ctx); cause != nil {
		return c.failure(cause), cause
	}
	return c.failure(out.err), out.err
}

func (c *Controller) failure(err error) State {
	switch {
	case errors.Is(err, ErrTimedOut), errors.Is(err, context.DeadlineExceeded):
		return Idle{Notice: TimedOutMessage, TimedOut: true}
	case errors.Is(err, ErrCanceled), errors.Is(err, context.Canceled):
		return Idle{}
	}

	var apiErr *tryonclient.APIError
	if errors.As(err, &apiErr) {
		return Idle{Notice: apiErr.Message, Technical: apiErr.Details}
	}
	return Idle{Notice: FailedMessage, Technical: err.Error()}
}

func (c *Controller) cancelAttempt(id uint64, cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id == c.attempt && c.cancel != nil {
		c.cancel(cause)
	}
}

// finish stores the terminal state of attempt id unless that attempt was superseded.
func (c *Controller) finish(id uint64, next State) bool {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	if id != c.attempt {
		c.mu.Unlock()
		return false
	}
	if c.cancel != nil {
		c.cancel(nil)
		c.cancel = nil
	}
	c.state = next
	c.mu.Unlock()

	c.onChange(next)
	return true
}

func (c *Controller) rotateStatus(id uint64, stop <-chan struct{}) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for i := 1; ; i++ {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		c.notifyMu.Lock()
		c.mu.Lock()
		_, processing := c.state.(Processing)
		if id != c.attempt || !processing {
			c.mu.Unlock()
			c.notifyMu.Unlock()
			return
		}
		st := Processing{Status: c.messages[i%len(c.messages)]}
		c.state = st
		c.mu.Unlock()
		c.onChange(st)
		c.notifyMu.Unlock()
	}
}
