package state

import (
	"errors"
	"fmt"
	"maps"
	"time"
)

// State identifies a finite-state-machine step used in conversations.
type State string

// StateIdle is the state of a user with no session yet.
const StateIdle State = "idle"

// InputKind is the shape of user input a state accepts.
type InputKind string

const (
	InputText     InputKind = "text"
	InputDocument InputKind = "document"
	InputCallback InputKind = "callback"
	// InputAny disables the kind check.
	InputAny InputKind = "any"
)

// Action names a selectable next step offered by a state.
type Action string

// Data is the per-session key/value bag accumulated along a workflow.
type Data map[string]string

// Clone returns an independent copy; nil stays nil.
func (d Data) Clone() Data {
	if d == nil {
		return nil
	}
	return maps.Clone(d)
}

// HistoryEntry records a state that was left together with the data it had.
type HistoryEntry struct {
	State     State     `json:"state"`
	Timestamp time.Time `json:"ts"`
	Snapshot  Data      `json:"snapshot"`
}

// Session is one user's conversation position.
type Session struct {
	UserID  int64          `json:"user_id"`
	State   State          `json:"state"`
	Data    Data           `json:"data"`
	History []HistoryEntry `json:"history"`
	// Token increases every time the session enters a state. A timer armed
	// with an older token is stale.
	Token        uint64    `json:"token"`
	LastActivity time.Time `json:"last_activity"`
}

// Clone returns a deep copy of s.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Data = s.Data.Clone()
	if s.History != nil {
		out.History = make([]HistoryEntry, len(s.History))
		for i, h := range s.History {
			h.Snapshot = h.Snapshot.Clone()
			out.History[i] = h
		}
	}
	return &out
}

// Description is the read-only projection used to render the next prompt.
type Description struct {
	State         State
	Label         string
	Data          Data
	CanGoBack     bool
	ExpectedInput InputKind
	Actions       []Action
}

// ValidationResult reports whether user input fits the current state.
// Normalized holds the cleaned value when Valid.
type ValidationResult struct {
	Valid      bool
	Error      string
	Code       string
	Normalized string
}

// Validation failure codes.
const (
	CodeKindMismatch = "kind_mismatch"
	CodeInvalid      = "invalid"
)

// Invalid is a convenience constructor for a failed ValidationResult.
func Invalid(msg string) ValidationResult {
	return ValidationResult{Error: msg, Code: CodeInvalid}
}

// Valid is a convenience constructor for a passed ValidationResult.
func Valid(normalized string) ValidationResult {
	return ValidationResult{Valid: true, Normalized: normalized}
}

// Analytics summarises stored sessions.
type Analytics struct {
	TotalUsers     int
	ByState        map[State]int
	AverageHistory float64
}

var (
	// ErrInvalidTransition is returned when the target is not reachable from the current state.
	ErrInvalidTransition = errors.New("state: invalid transition")
	// ErrUnknownDataKey is returned when transition data carries a key the target state does not declare.
	ErrUnknownDataKey = errors.New("state: unknown data key")
	// ErrUnknownState is returned for a target state missing from the graph.
	ErrUnknownState = errors.New("state: unknown state")
	// ErrSessionNotFound is returned by Store.Load for users without a session.
	ErrSessionNotFound = errors.New("state: session not found")
	// ErrStoreUnavailable wraps any backing store failure.
	ErrStoreUnavailable = errors.New("state: store unavailable")
)

// TransitionError carries the rejected edge.
type TransitionError struct {
	From, To State
	Err      error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%v: %s -> %s", e.Err, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return e.Err }

// Code is picked up by the handler summary logger as err_code.
func (e *TransitionError) Code() string {
	if errors.Is(e.Err, ErrUnknownDataKey) {
		return "unknown_data_key"
	}
	return "invalid_transition"
}
