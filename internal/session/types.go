// Package session implements the per-conversation session controller: the
// component that decides what happens when a new message arrives while a
// previous turn for the same conversation is still generating, reports
// progress while a generation is in flight, and commits conversation
// history exactly once per settled turn.
//
// The controller owns all Session state. External collaborators (the chat
// gateway, the agent runtime, the embedded store) are consumed through the
// interfaces defined in this package; interfaces are defined by the
// consumer, not the provider.
package session

import "context"

// ConversationID identifies one thread-like conversation. It is the key
// for all per-conversation state, in memory and on disk.
type ConversationID uint64

// UserID identifies the user permitted to continue a conversation.
type UserID uint64

// Part is one piece of user-submitted content: either text or an inlined
// binary attachment tagged with its media type.
type Part struct {
	Text      string
	Data      []byte
	MediaType string
}

// IgnoredReason says why the classifier refused an attachment. The text
// is shown verbatim in status reports.
type IgnoredReason string

const (
	// IgnoredInvalidType marks a media type outside the inline allow-set.
	IgnoredInvalidType IgnoredReason = "invalid type"

	// IgnoredFetchFailed marks an allow-listed attachment whose bytes
	// could not be downloaded.
	IgnoredFetchFailed IgnoredReason = "fetch failure"
)

// IgnoredAttachment names an attachment the classifier refused and why.
type IgnoredAttachment struct {
	Name   string
	Reason IgnoredReason
}

// Turn is one user-submitted unit of work. Immutable once constructed:
// the content parts in submission order plus the attachments the
// classifier rejected.
type Turn struct {
	Parts   []Part
	Ignored []IgnoredAttachment
}

// Outcome reports what Submit did with a turn.
type Outcome int

const (
	// Started means a new generation was started for the turn.
	Started Outcome = iota

	// Queued means the turn was appended to the session backlog and will
	// run after the active generation settles (queue policy).
	Queued

	// Preempted means the in-flight generation was cancelled and the turn
	// will run in its place (preempt policy).
	Preempted
)

func (o Outcome) String() string {
	switch o {
	case Started:
		return "started"
	case Queued:
		return "queued"
	case Preempted:
		return "preempted"
	default:
		return "unknown"
	}
}

// Policy selects the concurrency discipline applied when a turn arrives
// while a generation for the same conversation is active.
type Policy string

const (
	// PolicyQueue appends overlapping turns to a FIFO backlog; each runs
	// after the previous turn's history commit and sees that commit.
	PolicyQueue Policy = "queue"

	// PolicyPreempt cancels the in-flight generation; its uncommitted
	// output is discarded and the newest turn runs from the last
	// committed history. At most one turn is ever pending.
	PolicyPreempt Policy = "preempt"
)

// Result is the terminal outcome of one agent invocation: the full
// updated history (opaque to the controller) and the running cost figure
// in USD.
type Result struct {
	History []byte
	Cost    float64
}

// Runner is the agent runtime collaborator. Run invokes the agent with
// the prior history (opaque bytes, empty for a fresh conversation) and
// the new turn. Intermediate output increments are delivered through
// stream as they complete; the terminal Result carries the updated full
// history.
//
// Run must honor cooperative cancellation via ctx. On failure it should
// return a *RunError wrapping whatever partial history it captured, so
// the caller can persist the user's turn even when generation fails.
type Runner interface {
	Run(ctx context.Context, history []byte, turn *Turn, stream func(context.Context, string) error) (*Result, error)
}

// HistoryStore is the durable conversation log. History returns the last
// committed log (nil if none); PutHistory atomically replaces it. Commits
// for one ConversationID are totally ordered; the controller guarantees
// at most one writer per conversation at a time.
type HistoryStore interface {
	History(conv ConversationID) ([]byte, error)
	PutHistory(conv ConversationID, raw []byte) error
}

// OwnerStore resolves the user permitted to continue a conversation.
// ok is false when the conversation is unknown.
type OwnerStore interface {
	Owner(conv ConversationID) (owner UserID, ok bool, err error)
}

// StatusSink is a single message that supports in-place updates. The
// sink is exclusively owned by the one active generation's reporter for
// its lifetime.
type StatusSink interface {
	Update(ctx context.Context, text string) error
}

// Conversation is the controller's view of one chat thread.
type Conversation interface {
	// Send delivers agent output or an error report to the thread.
	Send(ctx context.Context, text string) error

	// NewStatus posts the initial progress message and returns it as an
	// editable sink. Called once per session, before the first generation.
	NewStatus(ctx context.Context) (StatusSink, error)

	// Typing signals that a generation is in progress. Best effort.
	Typing(ctx context.Context)
}
