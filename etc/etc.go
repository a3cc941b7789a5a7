package etc

import (
	"time"

	"github.com/google/uuid"
)

// NewFreshID returns a short unique identifier for chunks and blocks.
func NewFreshID() string {
	return uuid.NewString()[:8]
}

// TranscriptClock formats a capture time the way transcript lines expect it.
func TranscriptClock(t time.Time) string {
	return t.Format("15:04:05")
}

// TranscriptFilename names a transcript file after its creation time.
func TranscriptFilename(t time.Time) string {
	return "transcript-" + t.Format("20060102-150405") + ".txt"
}
