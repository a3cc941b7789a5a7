package transcript

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"scribe/etc"
)

// Entry is one utterance bound for the transcript. Timestamp is capture
// time, not the time transcription finished.
type Entry struct {
	Timestamp time.Time
	Speaker   string
	Text      string
}

// Line renders the entry in transcript format.
func (e Entry) Line() string {
	return fmt.Sprintf("[%s] %s: %s", etc.TranscriptClock(e.Timestamp), e.Speaker, e.Text)
}

// Writer appends utterances to transcript files in capture order. Each
// tenant's pipeline is the sole writer of its file, so Append needs no
// internal locking; it does guarantee the batch hits disk before returning.
type Writer struct {
	log *log.Logger
}

func NewWriter(logger *log.Logger) *Writer {
	return &Writer{log: logger}
}

// Append sorts the batch by timestamp (speaker label breaks ties, for
// deterministic output) and durably appends one line per entry, creating
// parent directories as needed.
func (w *Writer) Append(path string, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].Timestamp.Equal(entries[j].Timestamp) {
			return entries[i].Timestamp.Before(entries[j].Timestamp)
		}
		return entries[i].Speaker < entries[j].Speaker
	})

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create transcript directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	for _, e := range entries {
		b.WriteString(e.Line())
		b.WriteByte('\n')
	}
	if _, err := f.WriteString(b.String()); err != nil {
		return fmt.Errorf("append transcript lines: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("flush transcript: %w", err)
	}

	w.log.Debug("appended transcript lines", "path", path, "lines", len(entries))
	return nil
}
