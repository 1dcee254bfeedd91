package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/laoshi-bot/laoshi/internal/log"
)

// DefaultReportInterval is the period between live status pushes.
const DefaultReportInterval = time.Second

// Status is the input to a status render: everything known about the
// bound generation at one instant.
type Status struct {
	Elapsed     time.Duration
	Ignored     []IgnoredAttachment // attachments rejected by the classifier
	Cost        float64             // USD; 0 until known
	Queued      int                 // backlog depth behind the active generation
	Done        bool                // terminal render
	Interrupted bool                // terminal render after cancellation
}

// Renderer turns a Status into the human-readable progress text pushed to
// the conversation.
type Renderer func(Status) string

// RenderStatus is the default Renderer.
func RenderStatus(st Status) string {
	var b strings.Builder
	// One warning line per distinct reason, reasons in first-seen order.
	seen := make(map[IgnoredReason]bool)
	for _, ig := range st.Ignored {
		if seen[ig.Reason] {
			continue
		}
		seen[ig.Reason] = true
		var names []string
		for _, other := range st.Ignored {
			if other.Reason == ig.Reason {
				names = append(names, other.Name)
			}
		}
		fmt.Fprintf(&b, "warning: ignoring following attachments due to %s: %s\n", ig.Reason, strings.Join(names, ", "))
	}
	verb := "working"
	if st.Done || st.Interrupted {
		verb = "worked"
	}
	fmt.Fprintf(&b, "info: %s for %ds", verb, int(st.Elapsed.Seconds()))
	if st.Cost > 0 {
		fmt.Fprintf(&b, "\ninfo: cost $%s", formatCost(st.Cost))
	}
	if st.Queued > 0 {
		fmt.Fprintf(&b, "\ninfo: %d queued messages", st.Queued)
	}
	if st.Interrupted {
		b.WriteString("\n[interrupted]")
	}
	return b.String()
}

// formatCost trims trailing zeros so small costs stay readable.
func formatCost(cost float64) string {
	s := strings.TrimRight(fmt.Sprintf("%.8f", cost), "0")
	return strings.TrimSuffix(s, ".")
}

// ReporterConfig contains the parameters for one Reporter.
type ReporterConfig struct {
	Sink     StatusSink
	Render   Renderer            // nil uses RenderStatus
	Interval time.Duration       // zero uses DefaultReportInterval
	Ignored  []IgnoredAttachment // fixed for the generation's lifetime

	// QueueDepth reports the current backlog depth. nil means no backlog.
	QueueDepth func() int

	Logger log.Logger
}

// Reporter is a background task bound to one in-flight generation. It
// renders and pushes a progress message at a fixed interval until
// stopped, then performs exactly one final push reflecting the terminal
// condition. It never pushes after the final one: the sink may be reused
// by the next generation for the same conversation.
type Reporter struct {
	sink     StatusSink
	render   Renderer
	interval time.Duration
	ignored  []IgnoredAttachment
	depth    func() int
	logger   log.Logger

	start    time.Time
	finalCh  chan Status
	stopped  chan struct{}
	stopOnce sync.Once
}

// NewReporter creates a Reporter. The clock starts immediately.
func NewReporter(cfg ReporterConfig) *Reporter {
	render := cfg.Render
	if render == nil {
		render = RenderStatus
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultReportInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	return &Reporter{
		sink:     cfg.Sink,
		render:   render,
		interval: interval,
		ignored:  cfg.Ignored,
		depth:    cfg.QueueDepth,
		logger:   logger,
		start:    time.Now(),
		finalCh:  make(chan Status, 1),
		stopped:  make(chan struct{}),
	}
}

// Run pushes status updates until Stop is called. It pushes once
// immediately, then once per interval. ctx scopes the pushes themselves
// (app lifetime, not the generation: the final push must still go out
// after the generation's context is cancelled).
//
// Run returns only after the final push; callers must always call Stop
// on every generation exit path.
func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.push(ctx, r.live())
	for {
		select {
		case fin := <-r.finalCh:
			fin.Elapsed = time.Since(r.start)
			r.push(ctx, fin)
			close(r.stopped)
			return
		case <-ticker.C:
			r.push(ctx, r.live())
		}
	}
}

// Stop requests the final render and blocks until it has been pushed.
// interrupted selects the cancelled-terminal render; cost is included
// when known. Safe to call at most once per generation; subsequent calls
// just wait for the first to complete.
func (r *Reporter) Stop(interrupted bool, cost float64) {
	r.stopOnce.Do(func() {
		r.finalCh <- Status{
			Ignored:     r.ignored,
			Cost:        cost,
			Queued:      r.queued(),
			Done:        !interrupted,
			Interrupted: interrupted,
		}
	})
	<-r.stopped
}

func (r *Reporter) live() Status {
	return Status{
		Elapsed: time.Since(r.start),
		Ignored: r.ignored,
		Queued:  r.queued(),
	}
}

func (r *Reporter) queued() int {
	if r.depth == nil {
		return 0
	}
	return r.depth()
}

func (r *Reporter) push(ctx context.Context, st Status) {
	if err := r.sink.Update(ctx, r.render(st)); err != nil {
		r.logger.Warn("pushing status update", "error", err)
	}
}
