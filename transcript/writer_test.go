package transcript

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

func entry(sec int, speaker, text string) Entry {
	return Entry{
		Timestamp: time.Date(2024, 6, 1, 14, 30, sec, 0, time.UTC),
		Speaker:   speaker,
		Text:      text,
	}
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

func TestWriterAppend(t *testing.T) {
	w := NewWriter(log.New(io.Discard))

	t.Run("sorts by timestamp regardless of batch order", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "transcript.txt")

		// Bob's transcription finished first even though Alice spoke first.
		err := w.Append(path, []Entry{
			entry(5, "Bob", "second"),
			entry(2, "Alice", "first"),
		})
		if err != nil {
			t.Fatal(err)
		}

		lines := readLines(t, path)
		want := []string{
			"[14:30:02] Alice: first",
			"[14:30:05] Bob: second",
		}
		for i := range want {
			if lines[i] != want[i] {
				t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
			}
		}
	})

	t.Run("timestamp ties break by speaker label", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "transcript.txt")

		err := w.Append(path, []Entry{
			entry(1, "Zoe", "z"),
			entry(1, "Amy", "a"),
		})
		if err != nil {
			t.Fatal(err)
		}

		lines := readLines(t, path)
		if !strings.Contains(lines[0], "Amy") || !strings.Contains(lines[1], "Zoe") {
			t.Errorf("tie order wrong: %v", lines)
		}
	})

	t.Run("creates parent directories", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "guild", "nested", "transcript.txt")

		if err := w.Append(path, []Entry{entry(0, "Alice", "hi")}); err != nil {
			t.Fatal(err)
		}
		if _, err := os.Stat(path); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("later batches append after earlier ones", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "transcript.txt")

		if err := w.Append(path, []Entry{entry(0, "Alice", "chunk one")}); err != nil {
			t.Fatal(err)
		}
		if err := w.Append(path, []Entry{entry(31, "Bob", "chunk two")}); err != nil {
			t.Fatal(err)
		}

		lines := readLines(t, path)
		if len(lines) != 2 {
			t.Fatalf("expected 2 lines, got %d", len(lines))
		}
		if !strings.Contains(lines[0], "chunk one") ||
			!strings.Contains(lines[1], "chunk two") {
			t.Errorf("batches out of order: %v", lines)
		}
	})

	t.Run("empty batch writes nothing", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "transcript.txt")

		if err := w.Append(path, nil); err != nil {
			t.Fatal(err)
		}
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Error("expected no file for empty batch")
		}
	})
}

func TestEntryLine(t *testing.T) {
	e := entry(7, "Alice", "hello there")
	if got := e.Line(); got != "[14:30:07] Alice: hello there" {
		t.Errorf("Line() = %q", got)
	}
}
