package session

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyRecording means the guild already has an active session.
	ErrAlreadyRecording = errors.New("already recording in this guild")
	// ErrNotRecording means Stop was called with no active session.
	ErrNotRecording = errors.New("no recording in progress")
	// ErrNotConnected means the guild has no voice connection to record.
	ErrNotConnected = errors.New("not connected to a voice channel")
)

// TranscriptionError reports one speaker's failed transcription within one
// chunk. It is isolated: the rest of the chunk and the session continue.
type TranscriptionError struct {
	Speaker string
	Chunk   int
	Err     error
}

func (e *TranscriptionError) Error() string {
	return fmt.Sprintf(
		"transcription failed for %s in chunk %d: %v",
		e.Speaker, e.Chunk, e.Err,
	)
}

func (e *TranscriptionError) Unwrap() error { return e.Err }
