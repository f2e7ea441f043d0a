package escrow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"escrow-gateway/internal/domain"
	"escrow-gateway/internal/observability"
)

// SubmissionState is the lifecycle state of one action submission.
type SubmissionState int

const (
	StateIdle SubmissionState = iota
	StatePendingConfirmation
	StateSubmitting
	StateSettled
	StateFailed
)

// String returns the state name.
func (s SubmissionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePendingConfirmation:
		return "pending_confirmation"
	case StateSubmitting:
		return "submitting"
	case StateSettled:
		return "settled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Submission lifecycle errors.
var (
	// ErrNotAuthorized is returned when the viewer attempts an action the
	// authorizer does not permit. Raised before any network call.
	ErrNotAuthorized = errors.New("action not authorized for viewer")

	// ErrInvalidTransition is returned when a lifecycle call arrives in the
	// wrong state.
	ErrInvalidTransition = errors.New("invalid submission state transition")

	// ErrTransactionFailed wraps a program client failure during submission.
	ErrTransactionFailed = errors.New("transaction submission failed")
)

// Submission runs one user gesture against one escrow record:
// Idle -> PendingConfirmation -> Submitting -> Settled, or back to failed/idle
// on any error. Retry is a fresh Request, never automatic.
type Submission struct {
	client  ProgramClient
	viewer  string
	record  domain.EscrowRecord
	action  domain.EscrowAction
	settled func()

	mu        sync.Mutex
	state     SubmissionState
	signature string
	lastErr   error
}

// NewSubmission creates an idle submission for the viewer and record. The
// action is derived once at creation and re-validated at confirmation time.
func NewSubmission(client ProgramClient, viewer string, rec domain.EscrowRecord) *Submission {
	return &Submission{
		client: client,
		viewer: viewer,
		record: rec,
		action: Decide(viewer, rec),
		state:  StateIdle,
	}
}

// State returns the current lifecycle state.
func (s *Submission) State() SubmissionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Action returns the action derived for this viewer and record.
func (s *Submission) Action() domain.EscrowAction {
	return s.action
}

// Signature returns the transaction signature once the submission settled.
func (s *Submission) Signature() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.signature
}

// Err returns the error of the last failed attempt, if any.
func (s *Submission) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Request records the user's intent to act and moves the submission to
// PendingConfirmation. A disconnected viewer is refused outright. A failed
// submission may be requested again; that is the fresh gesture.
func (s *Submission) Request() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle && s.state != StateFailed {
		return fmt.Errorf("request in state %s: %w", s.state, ErrInvalidTransition)
	}
	if s.action == domain.ActionNotConnected {
		return fmt.Errorf("viewer not connected: %w", ErrNotAuthorized)
	}

	s.state = StatePendingConfirmation
	s.lastErr = nil
	return nil
}

// Confirm is the explicit user confirmation. Authorization is re-validated
// here: a self-accept or a non-owner close is rejected locally and the
// program client is never invoked. On program failure the machine lands in
// Failed and is ready for a fresh Request.
func (s *Submission) Confirm(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.state != StatePendingConfirmation {
		s.mu.Unlock()
		return "", fmt.Errorf("confirm in state %s: %w", s.state, ErrInvalidTransition)
	}

	if err := s.authorize(); err != nil {
		s.state = StateIdle
		s.mu.Unlock()
		observability.RecordEscrowSubmission(s.action.String(), "unauthorized")
		return "", err
	}

	s.state = StateSubmitting
	s.mu.Unlock()

	sig, err := s.client.Submit(ctx, s.action, s.record)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.state = StateFailed
		s.lastErr = err
		observability.RecordEscrowSubmission(s.action.String(), "failed")
		return "", fmt.Errorf("%s %s: %v: %w", s.action, s.record.Address, err, ErrTransactionFailed)
	}

	s.state = StateSettled
	s.signature = sig
	observability.RecordEscrowSubmission(s.action.String(), "settled")

	if s.settled != nil {
		s.settled()
	}
	return sig, nil
}

// authorize re-checks the action against the current viewer. Called with the
// lock held.
func (s *Submission) authorize() error {
	switch s.action {
	case domain.ActionClose:
		if s.viewer != s.record.Initializer {
			return fmt.Errorf("close by non-initializer %s: %w", s.viewer, ErrNotAuthorized)
		}
	case domain.ActionAccept:
		if s.viewer == "" || s.viewer == s.record.Initializer {
			return fmt.Errorf("self-accept by initializer: %w", ErrNotAuthorized)
		}
	default:
		return fmt.Errorf("action %s: %w", s.action, ErrNotAuthorized)
	}
	return nil
}
