// Package orchestrator drives one try-on attempt from trigger to terminal state.
package orchestrator

import (
	"errors"

	"github.com/fitcheckr/fitcheckr/models"
)

var (
	// ErrTimedOut is the cancellation cause when the server does not answer in time.
	ErrTimedOut = errors.New("try-on timed out")
	// ErrCanceled is the cancellation cause of an explicit Cancel or Reset.
	ErrCanceled = errors.New("try-on canceled")
	// ErrAttemptInFlight is returned when an attempt is started while another is processing.
	ErrAttemptInFlight = errors.New("a try-on attempt is already in progress")
)

const (
	TimedOutMessage = "The request took too long. Please try again."
	FailedMessage   = "Something went wrong while generating your try-on. Please try again."
)

// DefaultStatusMessages rotate while an attempt is processing.
var DefaultStatusMessages = []string{
	"Merging your photo with the clothing item...",
	"Analyzing fabric texture and fit...",
	"Adjusting lighting and shadows for realism...",
	"Perfecting the virtual try-on...",
	"Finalizing your personalized look...",
	"Almost ready! Adding the finishing touches...",
}

// State is one of Idle, Processing or Complete.
type State interface {
	isState()
}

// Idle is the resting state. After a failed attempt Notice holds the message to show and
// Technical the detail for a disclosure panel. TimedOut marks a timeout.
type Idle struct {
	Notice    string
	Technical string
	TimedOut  bool
}

// Processing means an attempt is in flight. Status is cosmetic progress text.
type Processing struct {
	Status string
}

// Complete holds the server's answer: either a success or a no-image result.
type Complete struct {
	Result models.TryOnResult
}

func (Idle) isState()       {}
func (Processing) isState() {}
func (Complete) isState()   {}

// Name is a short label for logs and the CLI.
func Name(s State) string {
	switch st := s.(type) {
	case Idle:
		if st.TimedOut {
			return "idle(timed-out)"
		}
		if st.Notice != "" {
			return "idle(error)"
		}
		return "idle"
	case Processing:
		return "processing"
	case Complete:
		return "complete(" + string(st.Result.Status) + ")"
	default:
		return "unknown"
	}
}
