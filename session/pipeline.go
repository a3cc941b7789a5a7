package session

import (
	"context"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"scribe/audio"
	"scribe/stt"
	"scribe/transcript"
)

// chunkJob is one finalized chunk handed from the capture loop to the
// pipeline. Jobs for a session are submitted, and therefore processed, in
// strict chunk-index order.
type chunkJob struct {
	index  int
	blocks []*audio.Block
}

// pipeline transcribes finalized chunks and appends the results to the
// session's transcript, off the capture path. One consumer goroutine per
// session keeps chunk order; speakers within a chunk are transcribed in
// parallel and re-ordered by capture time before writing.
type pipeline struct {
	guildID string
	path    string
	model   func() string
	device  string

	models *stt.ModelCache
	engine stt.Engine
	writer *transcript.Writer
	notify func(message string)

	// onWriteFailure asks the session to wind down when the transcript
	// cannot be persisted.
	onWriteFailure func()

	collect bool // keep entries in memory for one-shot postbacks

	log *log.Logger

	jobs      chan chunkJob
	done      chan struct{}
	closeOnce sync.Once

	mu        sync.Mutex
	collected []transcript.Entry
}

func (p *pipeline) start(depth int) {
	p.jobs = make(chan chunkJob, depth)
	p.done = make(chan struct{})
	go p.run()
}

// submit hands a finalized chunk to the pipeline. It blocks only when the
// queue is full, which is the intended back-pressure on chunk production.
func (p *pipeline) submit(job chunkJob) {
	p.jobs <- job
}

// closeAndWait flushes all submitted chunks; the in-flight chunk of a
// stopping session is still transcribed and written. Safe to call more
// than once.
func (p *pipeline) closeAndWait() {
	p.closeOnce.Do(func() { close(p.jobs) })
	<-p.done
}

func (p *pipeline) run() {
	defer close(p.done)
	for job := range p.jobs {
		p.process(context.Background(), job)
	}
}

func (p *pipeline) process(ctx context.Context, job chunkJob) {
	if len(job.blocks) == 0 {
		return
	}

	model := p.model()
	handle, err := p.models.Resolve(ctx, model, p.device)
	if err != nil {
		// Only this chunk's processing is lost; the session keeps going.
		p.log.Error(
			"model unavailable, dropping chunk",
			"guild", p.guildID,
			"model", model,
			"chunk", job.index,
			"error", err,
		)
		p.notify("⚠️ couldn't load model `" + model + "` — this chunk was not transcribed.")
		return
	}

	var mu sync.Mutex
	entries := make([]transcript.Entry, 0, len(job.blocks))

	g, gctx := errgroup.WithContext(ctx)
	for _, block := range job.blocks {
		block := block
		g.Go(func() error {
			text, err := p.transcribeBlock(gctx, handle, block)
			if err != nil {
				terr := &TranscriptionError{
					Speaker: block.SpeakerID,
					Chunk:   job.index,
					Err:     err,
				}
				p.log.Error("speaker transcription failed", "error", terr)
				p.notify("⚠️ couldn't transcribe " + speakerLabel(block) + " — skipping them for this chunk.")
				return nil // never abort siblings
			}
			if text == "" {
				return nil // silence; valid, just not written
			}
			mu.Lock()
			entries = append(entries, transcript.Entry{
				Timestamp: block.ChunkStart,
				Speaker:   speakerLabel(block),
				Text:      text,
			})
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if len(entries) == 0 {
		return
	}

	if err := p.writer.Append(p.path, entries); err != nil {
		p.log.Error(
			"transcript write failed",
			"guild", p.guildID,
			"path", p.path,
			"error", err,
		)
		p.notify("⚠️ failed to write the transcript: " + err.Error())
		if p.onWriteFailure != nil {
			p.onWriteFailure()
		}
		return
	}

	if p.collect {
		// Append sorted them already, so the collected text reads in order.
		p.mu.Lock()
		p.collected = append(p.collected, entries...)
		p.mu.Unlock()
	}
}

func (p *pipeline) transcribeBlock(
	ctx context.Context,
	handle stt.ModelHandle,
	block *audio.Block,
) (string, error) {
	wav, err := audio.EncodeWAV(block.PCM(), audio.SampleRate, audio.Channels)
	if err != nil {
		return "", err
	}
	text, err := p.engine.Transcribe(ctx, handle, wav)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// transcriptText renders everything collected so far, one line per
// utterance, for posting back after a one-shot recording.
func (p *pipeline) transcriptText() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	var b strings.Builder
	for _, e := range p.collected {
		b.WriteString(e.Line())
		b.WriteByte('\n')
	}
	return b.String()
}

func speakerLabel(block *audio.Block) string {
	if block.DisplayName != "" {
		return block.DisplayName
	}
	return block.SpeakerID
}
