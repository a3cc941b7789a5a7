package session

import (
	"context"
	"sync"
	"time"

	"scribe/audio"
	"scribe/etc"
)

// State is a session's position in its lifecycle.
type State int

const (
	StateIdle State = iota
	StateRecording
	StateDraining
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateDraining:
		return "draining"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Mode distinguishes a single fixed-duration recording from the chunked
// continuous loop.
type Mode int

const (
	ModeOneShot Mode = iota
	ModeContinuous
)

func (m Mode) String() string {
	if m == ModeContinuous {
		return "continuous"
	}
	return "one-shot"
}

// stopCause records why a session is winding down. Every cause surfaces as
// its own status message.
type stopCause int

const (
	causeNone stopCause = iota
	causeDeadline
	causeStopped
	causeEveryoneLeft
	causeDisconnected
	causeWriteFailure
)

// Session is one guild's active recording. All of a tenant's mutable
// recording state lives here, owned by the Manager's table; there is never
// more than one per guild.
type Session struct {
	id             string
	guildID        string
	mode           Mode
	transcriptPath string

	agg  *audio.Aggregator
	pipe *pipeline

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu         sync.Mutex
	state      State
	cause      stopCause
	chunkIndex int
}

func newSession(
	guildID string,
	mode Mode,
	transcriptPath string,
	pipe *pipeline,
) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:             etc.NewFreshID(),
		guildID:        guildID,
		mode:           mode,
		transcriptPath: transcriptPath,
		agg:            audio.NewAggregator(),
		pipe:           pipe,
		ctx:            ctx,
		cancel:         cancel,
		done:           make(chan struct{}),
		state:          StateRecording,
	}
}

// ID is a short handle for log lines.
func (s *Session) ID() string { return s.id }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Mode() Mode { return s.mode }

// TranscriptPath is where this session's lines land.
func (s *Session) TranscriptPath() string { return s.transcriptPath }

// Done closes when the session has fully drained and returned to idle.
func (s *Session) Done() <-chan struct{} { return s.done }

// Ingest feeds a decoded fragment into the current chunk. Fragments are
// accepted while recording and while a stop is pending (the in-flight
// chunk still belongs to the session until it is finalized).
func (s *Session) Ingest(
	speakerID, displayName string,
	fragment []byte,
	arrival time.Time,
) {
	s.mu.Lock()
	accepting := s.state == StateRecording || s.state == StateStopping
	s.mu.Unlock()
	if !accepting {
		return
	}
	s.agg.Ingest(speakerID, displayName, fragment, arrival)
}

// requestStop asks the loop to wind down with the given cause. The first
// cause wins; the loop observes the cancellation at its next poll tick and
// finalizes the in-flight chunk before draining.
func (s *Session) requestStop(cause stopCause) bool {
	s.mu.Lock()
	if s.state != StateRecording {
		s.mu.Unlock()
		return false
	}
	s.state = StateStopping
	s.cause = cause
	s.mu.Unlock()
	s.cancel()
	return true
}

func (s *Session) stopCause() stopCause {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cause
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// nextChunkIndex returns the 1-based index for the chunk being finalized.
func (s *Session) nextChunkIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunkIndex++
	return s.chunkIndex
}
