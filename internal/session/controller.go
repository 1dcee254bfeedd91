package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/laoshi-bot/laoshi/internal/log"
)

// Config contains all required parameters for the Controller.
type Config struct {
	Runner  Runner
	History HistoryStore
	Owners  OwnerStore
	Logger  log.Logger

	// Policy selects the overlapping-turn discipline. Default: PolicyQueue.
	Policy Policy

	// ReportInterval is the status push period. Zero uses
	// DefaultReportInterval.
	ReportInterval time.Duration

	// Render overrides the status renderer. nil uses RenderStatus.
	Render Renderer

	// BackgroundCtx outlives individual submits; generations and status
	// pushes are scoped to it. Default: context.Background().
	BackgroundCtx context.Context //nolint:containedctx // App lifecycle context, not a request context
}

// validate checks if all required parameters are present.
func (cfg Config) validate() error {
	if cfg.Runner == nil {
		return errors.New("runner is required")
	}
	if cfg.History == nil {
		return errors.New("history store is required")
	}
	if cfg.Owners == nil {
		return errors.New("owner store is required")
	}
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	switch cfg.Policy {
	case "", PolicyQueue, PolicyPreempt:
	default:
		return fmt.Errorf("unknown policy %q", cfg.Policy)
	}
	return nil
}

// session is the transient in-memory state for one conversation with an
// in-flight or queued generation. Created on first arrival, destroyed on
// the first settle that leaves nothing pending. All fields are guarded by
// Controller.mu except chat and conv, which are immutable.
type session struct {
	conv ConversationID
	chat Conversation

	backlog []*Turn            // queue policy FIFO
	pending *Turn              // preempt policy replacement slot (newest wins)
	cancel  context.CancelFunc // cancels the active generation; nil between turns
}

// Controller owns every session. Submissions for one conversation are
// serialized through that conversation's single drive goroutine; distinct
// conversations proceed fully in parallel.
type Controller struct {
	runner   Runner
	history  HistoryStore
	owners   OwnerStore
	policy   Policy
	interval time.Duration
	render   Renderer
	logger   log.Logger

	ctx       context.Context //nolint:containedctx // App lifecycle context, not a request context
	cancelCtx context.CancelFunc

	mu       sync.Mutex
	sessions map[ConversationID]*session
	closed   bool
	wg       sync.WaitGroup
}

// New creates a Controller.
func New(cfg Config) (*Controller, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	policy := cfg.Policy
	if policy == "" {
		policy = PolicyQueue
	}
	interval := cfg.ReportInterval
	if interval <= 0 {
		interval = DefaultReportInterval
	}
	bgCtx := cfg.BackgroundCtx
	if bgCtx == nil {
		bgCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(bgCtx)

	c := &Controller{
		runner:    cfg.Runner,
		history:   cfg.History,
		owners:    cfg.Owners,
		policy:    policy,
		interval:  interval,
		render:    cfg.Render,
		logger:    cfg.Logger,
		ctx:       ctx,
		cancelCtx: cancel,
		sessions:  make(map[ConversationID]*session),
	}

	c.logger.Info("session controller initialized",
		"policy", string(policy),
		"reportInterval", interval,
	)
	return c, nil
}

// Submit hands a turn to the controller. It never blocks past
// bookkeeping: generation work runs on the conversation's own goroutine.
//
// Authorization is checked first. An unknown conversation or a mismatched
// author is rejected before any session is created or any history read:
// ErrUnknownConversation or ErrWrongAuthor, both via errors.Is().
func (c *Controller) Submit(author UserID, conv ConversationID, turn *Turn, chat Conversation) (Outcome, error) {
	owner, ok, err := c.owners.Owner(conv)
	if err != nil {
		return 0, fmt.Errorf("looking up owner: %w", err)
	}
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrUnknownConversation, conv)
	}
	if owner != author {
		return 0, fmt.Errorf("%w: conversation %d", ErrWrongAuthor, conv)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, ErrClosed
	}

	s, active := c.sessions[conv]
	if !active {
		s = &session{conv: conv, chat: chat}
		c.sessions[conv] = s
		c.wg.Add(1)
		go c.drive(s, turn)
		return Started, nil
	}

	if c.policy == PolicyPreempt {
		// Newest turn wins: replace any earlier pending turn and cancel
		// the in-flight generation. Its output is discarded, never
		// committed.
		s.pending = turn
		if s.cancel != nil {
			s.cancel()
		}
		return Preempted, nil
	}

	s.backlog = append(s.backlog, turn)
	return Queued, nil
}

// drive runs the session's generations to completion, one at a time, and
// destroys the session once a settle leaves nothing pending.
func (c *Controller) drive(s *session, turn *Turn) {
	defer c.wg.Done()

	sink, err := s.chat.NewStatus(c.ctx)
	if err != nil {
		c.logger.Warn("creating status message", "conversation", uint64(s.conv), "error", err)
		sink = nopSink{}
	}

	for {
		c.generate(s, sink, turn)

		c.mu.Lock()
		switch {
		case s.pending != nil:
			turn, s.pending = s.pending, nil
		case len(s.backlog) > 0:
			turn, s.backlog = s.backlog[0], s.backlog[1:]
		default:
			delete(c.sessions, s.conv)
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()
	}
}

// generate runs the full procedure for one turn: read snapshot, start the
// reporter, invoke the agent, then settle. The reporter is stopped and
// given its final render on every exit path. History is committed at most
// once, and never for a cancelled generation.
func (c *Controller) generate(s *session, sink StatusSink, turn *Turn) {
	logger := c.logger.With(
		"conversation", uint64(s.conv),
		"generation", uuid.NewString(),
	)

	genCtx, cancel := context.WithCancel(c.ctx)
	defer cancel()
	c.mu.Lock()
	if s.pending != nil {
		// A replacement arrived before this generation could register its
		// cancel handle (Submit found nothing to cancel yet). Running it
		// anyway could commit preempted output; skip straight to the
		// replacement.
		c.mu.Unlock()
		return
	}
	s.cancel = cancel
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		s.cancel = nil
		c.mu.Unlock()
	}()

	prior, err := c.history.History(s.conv)
	if err != nil {
		logger.Error("loading history snapshot", "error", err)
		c.report(s, "error: could not load conversation history")
		return
	}

	rep := NewReporter(ReporterConfig{
		Sink:       sink,
		Render:     c.render,
		Interval:   c.interval,
		Ignored:    turn.Ignored,
		QueueDepth: func() int { return c.depth(s) },
		Logger:     logger,
	})
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		rep.Run(c.ctx)
	}()

	s.chat.Typing(genCtx)

	logger.Debug("generation started", "parts", len(turn.Parts), "ignoredAttachments", len(turn.Ignored))
	res, err := c.runner.Run(genCtx, prior, turn, s.chat.Send)

	switch {
	case err == nil:
		rep.Stop(false, res.Cost)
		c.commit(logger, s, res.History)
		logger.Debug("generation committed", "cost", res.Cost)

	case genCtx.Err() != nil:
		// Cancelled: a normal transition, not an error. In-flight output
		// is discarded; the last committed history stands.
		rep.Stop(true, 0)
		logger.Info("generation cancelled")

	default:
		rep.Stop(false, 0)
		logger.Error("agent invocation failed", "error", err)
		var runErr *RunError
		if errors.As(err, &runErr) && len(runErr.Partial) > 0 {
			// Never silently drop a submitted turn: persist whatever the
			// runtime captured up to the failure point.
			c.commit(logger, s, runErr.Partial)
		}
		c.report(s, "error: "+err.Error())
	}
}

// commit replaces the conversation's history log. A commit failure is
// fatal to this turn only; previously committed state is untouched.
func (c *Controller) commit(logger log.Logger, s *session, raw []byte) {
	if err := c.history.PutHistory(s.conv, raw); err != nil {
		logger.Error("committing history", "error", err)
		c.report(s, "error: failed to save conversation history")
	}
}

// report sends an error line to the conversation, best effort.
func (c *Controller) report(s *session, text string) {
	if err := s.chat.Send(c.ctx, text); err != nil {
		c.logger.Warn("reporting to conversation", "conversation", uint64(s.conv), "error", err)
	}
}

// depth returns the number of turns waiting behind the active generation.
func (c *Controller) depth(s *session) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(s.backlog)
	if s.pending != nil {
		n++
	}
	return n
}

// Close stops accepting turns, cancels in-flight generations, and waits
// for every session to settle or ctx to expire.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancelCtx()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for sessions to settle: %w", ctx.Err())
	}
}

type nopSink struct{}

func (nopSink) Update(context.Context, string) error { return nil }
