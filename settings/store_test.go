package settings

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settings.json")
	return NewStore(path, log.New(io.Discard))
}

func strptr(s string) *string { return &s }

func TestStoreDefaults(t *testing.T) {
	store := newTestStore(t)

	got := store.Get("guild-1")
	if got.OutputFolder != DefaultOutputFolder {
		t.Errorf("OutputFolder = %q, want default", got.OutputFolder)
	}
	if got.Model != DefaultModel {
		t.Errorf("Model = %q, want default", got.Model)
	}
}

func TestStoreSetThenGet(t *testing.T) {
	t.Run("round trip preserves unmodified fields", func(t *testing.T) {
		store := newTestStore(t)

		if _, err := store.Set("guild-1", Update{OutputFolder: strptr("/tmp/out")}); err != nil {
			t.Fatal(err)
		}
		if _, err := store.Set("guild-1", Update{Model: strptr("large")}); err != nil {
			t.Fatal(err)
		}

		got := store.Get("guild-1")
		if got.OutputFolder != "/tmp/out" {
			t.Errorf("OutputFolder = %q, folder update lost", got.OutputFolder)
		}
		if got.Model != "large" {
			t.Errorf("Model = %q", got.Model)
		}
	})

	t.Run("guilds are independent", func(t *testing.T) {
		store := newTestStore(t)

		if _, err := store.Set("guild-1", Update{Model: strptr("large")}); err != nil {
			t.Fatal(err)
		}

		if got := store.Get("guild-2"); got.Model != DefaultModel {
			t.Errorf("guild-2 Model = %q, want default", got.Model)
		}
	})

	t.Run("settings survive a new store instance", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "settings.json")
		first := NewStore(path, log.New(io.Discard))
		if _, err := first.Set("guild-1", Update{OutputFolder: strptr("/srv/rec")}); err != nil {
			t.Fatal(err)
		}

		second := NewStore(path, log.New(io.Discard))
		if got := second.Get("guild-1"); got.OutputFolder != "/srv/rec" {
			t.Errorf("OutputFolder = %q after reload", got.OutputFolder)
		}
	})
}

func TestStoreMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	store := NewStore(path, log.New(io.Discard))
	if got := store.Get("guild-1"); got.Model != DefaultModel {
		t.Errorf("Model = %q, want default for malformed file", got.Model)
	}

	// A write through the store replaces the junk.
	if _, err := store.Set("guild-1", Update{Model: strptr("small")}); err != nil {
		t.Fatal(err)
	}
	if got := store.Get("guild-1"); got.Model != "small" {
		t.Errorf("Model = %q after repair", got.Model)
	}
}

func TestStoreCrashBeforeRename(t *testing.T) {
	// A crash between writing the temp file and renaming it must leave the
	// previous record in place: simulate by dropping an orphaned temp file
	// next to a committed settings file.
	path := filepath.Join(t.TempDir(), "settings.json")
	store := NewStore(path, log.New(io.Discard))
	if _, err := store.Set("guild-1", Update{OutputFolder: strptr("/old")}); err != nil {
		t.Fatal(err)
	}

	orphan := filepath.Join(filepath.Dir(path), ".settings-orphan")
	if err := os.WriteFile(orphan, []byte(`{"guild-1":{"output_folder":"/x","model":"base"}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	reloaded := NewStore(path, log.New(io.Discard))
	if got := reloaded.Get("guild-1"); got.OutputFolder != "/old" {
		t.Errorf("OutputFolder = %q, uncommitted write leaked", got.OutputFolder)
	}
}
