package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/log"
)

const (
	DefaultOutputFolder = "recordings"
	DefaultModel        = "base"
)

// GuildSettings is one guild's recording configuration.
type GuildSettings struct {
	OutputFolder string `json:"output_folder"`
	Model        string `json:"model"`
}

// Update carries a partial settings change; nil fields are left untouched.
type Update struct {
	OutputFolder *string
	Model        *string
}

// Store persists per-guild settings as a single JSON record on disk.
// Writes are serialized across guilds and go through a temp file plus
// rename, so a crash mid-write leaves the previous record intact.
type Store struct {
	mu   sync.Mutex
	path string
	log  *log.Logger
}

func NewStore(path string, logger *log.Logger) *Store {
	return &Store{path: path, log: logger}
}

// Get returns the guild's persisted settings, with defaults filled in for
// anything absent.
func (s *Store) Get(guildID string) GuildSettings {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings := s.load()[guildID]
	return withDefaults(settings)
}

// Set merges the update into the guild's settings and persists the whole
// record before acknowledging. The merged result is returned.
func (s *Store) Set(guildID string, update Update) (GuildSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.load()
	merged := withDefaults(all[guildID])
	if update.OutputFolder != nil {
		merged.OutputFolder = *update.OutputFolder
	}
	if update.Model != nil {
		merged.Model = *update.Model
	}
	all[guildID] = merged

	if err := s.persist(all); err != nil {
		return GuildSettings{}, fmt.Errorf("persist settings: %w", err)
	}
	return merged, nil
}

func withDefaults(g GuildSettings) GuildSettings {
	if g.OutputFolder == "" {
		g.OutputFolder = DefaultOutputFolder
	}
	if g.Model == "" {
		g.Model = DefaultModel
	}
	return g
}

// load reads the persisted record. A missing or malformed file degrades to
// an empty record; defaults are always safe.
func (s *Store) load() map[string]GuildSettings {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn("unreadable settings file, using defaults", "error", err)
		}
		return make(map[string]GuildSettings)
	}

	var all map[string]GuildSettings
	if err := json.Unmarshal(data, &all); err != nil {
		s.log.Warn(
			"malformed settings file, using defaults",
			"path", s.path,
			"error", err,
		)
		return make(map[string]GuildSettings)
	}
	return all
}

func (s *Store) persist(all map[string]GuildSettings) error {
	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create settings directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".settings-*")
	if err != nil {
		return fmt.Errorf("create temp settings file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write settings: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("flush settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close settings: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace settings file: %w", err)
	}
	return nil
}
