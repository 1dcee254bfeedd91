package session

import "errors"

// Sentinel errors returned by Controller.Submit. Check with errors.Is().
var (
	// ErrUnknownConversation indicates no ownership record exists for the
	// conversation. The turn is rejected before any session or history
	// state is touched.
	ErrUnknownConversation = errors.New("unknown conversation")

	// ErrWrongAuthor indicates the turn's author does not match the
	// conversation's recorded owner. Rejected at the same boundary as
	// ErrUnknownConversation.
	ErrWrongAuthor = errors.New("author does not own conversation")

	// ErrClosed indicates the controller has been closed and accepts no
	// further turns.
	ErrClosed = errors.New("controller closed")
)

// RunError is returned by a Runner when generation fails after the user's
// turn was already captured. Partial holds the history up to the failure
// point; the controller commits it so a submitted turn is never silently
// dropped.
type RunError struct {
	Partial []byte
	Err     error
}

func (e *RunError) Error() string {
	return "agent run: " + e.Err.Error()
}

func (e *RunError) Unwrap() error {
	return e.Err
}
