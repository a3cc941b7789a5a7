package session

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/log"

	"scribe/etc"
	"scribe/llm"
	"scribe/settings"
	"scribe/stt"
	"scribe/transcript"
)

// Transport is the voice layer the orchestrator polls. Members returns the
// non-bot participants of the guild's voice channel, or ErrNotConnected
// when the guild has no live voice connection.
type Transport interface {
	Members(guildID string) ([]string, error)
}

// Notifier delivers human-readable status back to the command surface.
type Notifier interface {
	Notify(guildID, message string)
}

// Config tunes the recording loop. Zero values fall back to the defaults.
type Config struct {
	ChunkDuration time.Duration // continuous chunk length, default 30s
	PollInterval  time.Duration // membership/cancel check cadence, default 1s
	ChunkPause    time.Duration // pause between continuous chunks, default 500ms
	PipelineDepth int           // finalized chunks in flight, default 4
	Device        string        // compute device for model loads, default "cpu"
}

func (c Config) withDefaults() Config {
	if c.ChunkDuration <= 0 {
		c.ChunkDuration = 30 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.ChunkPause <= 0 {
		c.ChunkPause = 500 * time.Millisecond
	}
	if c.PipelineDepth <= 0 {
		c.PipelineDepth = 4
	}
	if c.Device == "" {
		c.Device = "cpu"
	}
	return c
}

// Manager owns every guild's session. Guilds are fully isolated from one
// another; the only shared piece is the process-wide model cache.
type Manager struct {
	transport  Transport
	notifier   Notifier
	settings   *settings.Store
	models     *stt.ModelCache
	engine     stt.Engine
	writer     *transcript.Writer
	summarizer llm.Summarizer // nil disables one-shot summaries
	clock      Clock
	cfg        Config
	log        *log.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(
	transport Transport,
	notifier Notifier,
	store *settings.Store,
	models *stt.ModelCache,
	engine stt.Engine,
	writer *transcript.Writer,
	summarizer llm.Summarizer,
	clock Clock,
	cfg Config,
	logger *log.Logger,
) *Manager {
	return &Manager{
		transport:  transport,
		notifier:   notifier,
		settings:   store,
		models:     models,
		engine:     engine,
		writer:     writer,
		summarizer: summarizer,
		clock:      clock,
		cfg:        cfg.withDefaults(),
		log:        logger,
		sessions:   make(map[string]*Session),
	}
}

// StartOneShot records the guild's channel for the given duration, then
// transcribes, posts the transcript, and attempts a summary.
func (m *Manager) StartOneShot(
	guildID string,
	duration time.Duration,
) error {
	sess, err := m.beginSession(guildID, ModeOneShot)
	if err != nil {
		return err
	}
	m.notifier.Notify(
		guildID,
		fmt.Sprintf("🎧 Recording for %d seconds...", int(duration.Seconds())),
	)
	go m.runOneShot(sess, duration)
	return nil
}

// StartContinuous records the guild's channel in fixed chunks until
// stopped, everyone leaves, or the voice connection drops.
func (m *Manager) StartContinuous(guildID string) error {
	sess, err := m.beginSession(guildID, ModeContinuous)
	if err != nil {
		return err
	}
	m.notifier.Notify(
		guildID,
		fmt.Sprintf(
			"🎙 Recording continuously in %ds chunks. `!stop` to finish. Transcript: %s",
			int(m.cfg.ChunkDuration.Seconds()),
			sess.TranscriptPath(),
		),
	)
	go m.runContinuous(sess)
	return nil
}

// Stop winds down the guild's active session. The in-flight chunk is still
// finalized and transcribed before the session reaches idle.
func (m *Manager) Stop(guildID string) error {
	m.mu.Lock()
	sess := m.sessions[guildID]
	m.mu.Unlock()

	if sess == nil {
		return ErrNotRecording
	}
	// If the session is already stopping or draining the request is moot.
	sess.requestStop(causeStopped)
	return nil
}

// Disconnected tears down the guild's session because the voice transport
// dropped. No-op when the guild is idle.
func (m *Manager) Disconnected(guildID string) {
	m.mu.Lock()
	sess := m.sessions[guildID]
	m.mu.Unlock()
	if sess != nil {
		sess.requestStop(causeDisconnected)
	}
}

// Ingest routes a decoded audio fragment to the guild's active session.
// Fragments arriving with no session in progress are dropped.
func (m *Manager) Ingest(
	guildID, speakerID, displayName string,
	fragment []byte,
	arrival time.Time,
) {
	m.mu.Lock()
	sess := m.sessions[guildID]
	m.mu.Unlock()
	if sess != nil {
		sess.Ingest(speakerID, displayName, fragment, arrival)
	}
}

// Session returns the guild's active session, or nil.
func (m *Manager) Session(guildID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[guildID]
}

// StopAll winds down every active session and waits for them to drain.
func (m *Manager) StopAll() {
	m.mu.Lock()
	active := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		active = append(active, sess)
	}
	m.mu.Unlock()

	for _, sess := range active {
		sess.requestStop(causeStopped)
	}
	for _, sess := range active {
		<-sess.Done()
	}
}

func (m *Manager) beginSession(guildID string, mode Mode) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// A session still draining occupies the guild's slot until finish
	// removes it.
	if _, exists := m.sessions[guildID]; exists {
		return nil, ErrAlreadyRecording
	}
	if _, err := m.transport.Members(guildID); err != nil {
		return nil, err
	}

	cfg := m.settings.Get(guildID)
	path := filepath.Join(
		cfg.OutputFolder,
		guildID,
		etc.TranscriptFilename(m.clock.Now()),
	)

	pipe := &pipeline{
		guildID: guildID,
		path:    path,
		model:   func() string { return m.settings.Get(guildID).Model },
		device:  m.cfg.Device,
		models:  m.models,
		engine:  m.engine,
		writer:  m.writer,
		notify:  func(msg string) { m.notifier.Notify(guildID, msg) },
		collect: mode == ModeOneShot,
		log:     m.log.With("guild", guildID),
	}

	sess := newSession(guildID, mode, path, pipe)
	pipe.onWriteFailure = func() { sess.requestStop(causeWriteFailure) }
	pipe.start(m.cfg.PipelineDepth)
	m.sessions[guildID] = sess

	m.log.Info(
		"session started",
		"session", sess.ID(),
		"guild", guildID,
		"mode", mode,
		"transcript", path,
	)
	return sess, nil
}

// finish drains the pipeline and returns the session to idle. It always
// runs, whatever ended the loop, so the state machine can never hang in
// recording or draining.
func (m *Manager) finish(sess *Session) {
	sess.setState(StateDraining)
	sess.pipe.closeAndWait()
	sess.setState(StateIdle)

	m.mu.Lock()
	delete(m.sessions, sess.guildID)
	m.mu.Unlock()

	m.log.Info("session finished", "session", sess.ID(), "guild", sess.guildID)
	close(sess.done)
}

func (m *Manager) runOneShot(sess *Session, duration time.Duration) {
	defer m.finish(sess)

	cause := m.recordChunk(sess, duration)
	if cause == causeNone {
		cause = causeDeadline
	}
	blocks := sess.agg.FinalizeChunk()
	sess.pipe.submit(chunkJob{index: sess.nextChunkIndex(), blocks: blocks})

	sess.setState(StateDraining)
	sess.pipe.closeAndWait()

	m.notifyStopped(sess, cause)
	if cause == causeDisconnected {
		return
	}

	text := sess.pipe.transcriptText()
	if text == "" {
		m.notifier.Notify(sess.guildID, "⚠️ Nobody said anything.")
		return
	}

	m.notifier.Notify(
		sess.guildID,
		fmt.Sprintf("📜 Transcript:\n```%s```", clip(text, 1900)),
	)
	m.summarize(sess.guildID, text)
}

func (m *Manager) runContinuous(sess *Session) {
	defer m.finish(sess)

	var cause stopCause
	for {
		cause = m.recordChunk(sess, m.cfg.ChunkDuration)
		blocks := sess.agg.FinalizeChunk()
		sess.pipe.submit(chunkJob{index: sess.nextChunkIndex(), blocks: blocks})
		if cause != causeNone {
			break
		}

		select {
		case <-sess.ctx.Done():
			cause = sess.stopCause()
		case <-m.clock.After(m.cfg.ChunkPause):
			continue
		}
		break
	}

	m.notifyStopped(sess, cause)
}

// recordChunk waits out one chunk, polling for cancellation, missing
// members, and the chunk deadline. causeNone means the chunk ran its full
// duration and recording may continue.
func (m *Manager) recordChunk(
	sess *Session,
	duration time.Duration,
) stopCause {
	deadline := m.clock.Now().Add(duration)

	for {
		if cause := m.checkMembers(sess); cause != causeNone {
			return cause
		}

		select {
		case <-sess.ctx.Done():
			return sess.stopCause()
		case <-m.clock.After(m.cfg.PollInterval):
		}

		if !m.clock.Now().Before(deadline) {
			return causeNone
		}
	}
}

func (m *Manager) checkMembers(sess *Session) stopCause {
	members, err := m.transport.Members(sess.guildID)
	if err != nil {
		m.log.Warn("voice transport lost", "guild", sess.guildID, "error", err)
		if !sess.requestStop(causeDisconnected) {
			return sess.stopCause() // an earlier stop already won
		}
		return causeDisconnected
	}
	if len(members) == 0 {
		if !sess.requestStop(causeEveryoneLeft) {
			return sess.stopCause()
		}
		return causeEveryoneLeft
	}
	return causeNone
}

func (m *Manager) notifyStopped(sess *Session, cause stopCause) {
	path := sess.TranscriptPath()
	switch cause {
	case causeDeadline:
		m.notifier.Notify(
			sess.guildID,
			"✅ Recording finished. Saved to "+path,
		)
	case causeStopped, causeNone:
		m.notifier.Notify(
			sess.guildID,
			"⏹ Recording stopped. Transcript: "+path,
		)
	case causeEveryoneLeft:
		m.notifier.Notify(
			sess.guildID,
			"👋 Stopped — everyone left the channel. Transcript: "+path,
		)
	case causeDisconnected:
		m.notifier.Notify(
			sess.guildID,
			"⚠️ Voice connection lost — recording stopped. Transcript: "+path,
		)
	case causeWriteFailure:
		m.notifier.Notify(
			sess.guildID,
			"⚠️ Stopped — the transcript could not be written.",
		)
	}
}

func (m *Manager) summarize(guildID, text string) {
	if m.summarizer == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	summary, err := m.summarizer.Summarize(ctx, text, 100, 30)
	if err != nil {
		m.log.Error("summary failed", "guild", guildID, "error", err)
		m.notifier.Notify(guildID, "❌ Couldn't summarize: "+err.Error())
		return
	}
	m.notifier.Notify(
		guildID,
		fmt.Sprintf("🧠 Summary:\n```%s```", clip(summary, 1900)),
	)
}

// clip truncates s to at most max bytes without splitting a rune.
func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
