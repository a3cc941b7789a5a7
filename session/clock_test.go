package session

import (
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"scribe/settings"
	"scribe/stt"
	"scribe/transcript"
)

// manualClock lets tests step session time explicitly, so chunk deadlines
// and poll ticks need no wall-clock sleeps.
type manualClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []manualWaiter
}

type manualWaiter struct {
	at time.Time
	ch chan time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- c.now
		return ch
	}
	c.waiters = append(c.waiters, manualWaiter{at: c.now.Add(d), ch: ch})
	return ch
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	var remaining []manualWaiter
	for _, w := range c.waiters {
		if w.at.After(c.now) {
			remaining = append(remaining, w)
			continue
		}
		w.ch <- c.now
	}
	c.waiters = remaining
}

func (c *manualClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

// waitForWaiter spins until the session loop parks on a timed wait.
func (c *manualClock) waitForWaiter(t *testing.T) {
	t.Helper()
	for i := 0; i < 5000; i++ {
		if c.pending() > 0 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("session loop never reached a timed wait")
}

func newClockRig(t *testing.T, clock Clock) *testRig {
	t.Helper()
	logger := log.New(io.Discard)
	dir := t.TempDir()

	store := settings.NewStore(filepath.Join(dir, "settings.json"), logger)
	folder := filepath.Join(dir, "out")
	if _, err := store.Set("guild-1", settings.Update{OutputFolder: &folder}); err != nil {
		t.Fatal(err)
	}

	transport := newFakeTransport()
	notifier := &fakeNotifier{}
	engine := newFakeEngine()

	manager := NewManager(
		transport,
		notifier,
		store,
		stt.NewModelCache(engine, logger),
		engine,
		transcript.NewWriter(logger),
		nil,
		clock,
		Config{}, // stock 30s chunks, 1s polls
		logger,
	)
	return &testRig{
		manager:   manager,
		transport: transport,
		notifier:  notifier,
		engine:    engine,
		outputDir: folder,
	}
}

func TestStopObservedDuringTimedWait(t *testing.T) {
	// A session parked on its poll tick must notice Stop without the
	// clock moving at all: cancellation cuts the wait short.
	clock := newManualClock()
	rig := newClockRig(t, clock)
	rig.transport.setMembers("guild-1", "alice")

	if err := rig.manager.StartContinuous("guild-1"); err != nil {
		t.Fatal(err)
	}
	sess := rig.manager.Session("guild-1")
	clock.waitForWaiter(t)

	if err := rig.manager.Stop("guild-1"); err != nil {
		t.Fatal(err)
	}
	waitDone(t, sess)

	if sess.State() != StateIdle {
		t.Errorf("state = %v, want idle", sess.State())
	}
}

func TestChunkOrderAcrossSlowTranscription(t *testing.T) {
	// Chunk one's transcription is still running while chunk two records;
	// the transcript must nonetheless list chunk one's lines first.
	clock := newManualClock()
	rig := newClockRig(t, clock)
	rig.transport.setMembers("guild-1", "alice")
	rig.engine.respond("chunk-one", "spoken earlier", 80*time.Millisecond)
	rig.engine.respond("chunk-two", "spoken later", 0)

	if err := rig.manager.StartContinuous("guild-1"); err != nil {
		t.Fatal(err)
	}
	sess := rig.manager.Session("guild-1")
	path := sess.TranscriptPath()

	clock.waitForWaiter(t)
	rig.manager.Ingest(
		"guild-1", "alice", "Alice",
		[]byte("chunk-one"), clock.Now().Add(2*time.Second),
	)
	clock.Advance(30 * time.Second) // finish chunk one

	clock.waitForWaiter(t) // loop parked on the inter-chunk pause
	rig.manager.Ingest(
		"guild-1", "alice", "Alice",
		[]byte("chunk-two"), clock.Now().Add(2*time.Second),
	)
	clock.Advance(time.Second) // clear the pause

	clock.waitForWaiter(t)
	clock.Advance(30 * time.Second) // finish chunk two

	clock.waitForWaiter(t)
	rig.manager.Stop("guild-1")
	waitDone(t, sess)

	lines := readTranscript(t, path)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %v", lines)
	}
	if !strings.Contains(lines[0], "spoken earlier") ||
		!strings.Contains(lines[1], "spoken later") {
		t.Errorf("chunk order violated: %v", lines)
	}
}
