package audio

import (
	"bytes"
	"fmt"
	"sync"
	"testing"
	"time"
)

func at(sec int) time.Time {
	return time.Date(2024, 6, 1, 12, 0, sec, 0, time.UTC)
}

func TestAggregatorFinalize(t *testing.T) {
	t.Run("one block per speaker, frames in arrival order", func(t *testing.T) {
		agg := NewAggregator()
		agg.Ingest("alice", "Alice", []byte{1}, at(0))
		agg.Ingest("bob", "Bob", []byte{10}, at(1))
		agg.Ingest("alice", "Alice", []byte{2}, at(2))
		agg.Ingest("alice", "Alice", []byte{3}, at(3))

		blocks := agg.FinalizeChunk()
		if len(blocks) != 2 {
			t.Fatalf("expected 2 blocks, got %d", len(blocks))
		}

		alice := blocks[0]
		if alice.SpeakerID != "alice" {
			t.Fatalf("expected alice first (earliest frame), got %s", alice.SpeakerID)
		}
		if !bytes.Equal(alice.PCM(), []byte{1, 2, 3}) {
			t.Errorf("alice frames out of order: %v", alice.PCM())
		}
		if !alice.ChunkStart.Equal(at(0)) {
			t.Errorf("alice chunk start = %v, want %v", alice.ChunkStart, at(0))
		}
		if blocks[1].SpeakerID != "bob" {
			t.Errorf("expected bob second, got %s", blocks[1].SpeakerID)
		}
	})

	t.Run("empty chunk yields empty slice", func(t *testing.T) {
		agg := NewAggregator()
		blocks := agg.FinalizeChunk()
		if len(blocks) != 0 {
			t.Fatalf("expected no blocks, got %d", len(blocks))
		}
	})

	t.Run("ingest after finalize builds the next chunk", func(t *testing.T) {
		agg := NewAggregator()
		agg.Ingest("alice", "Alice", []byte{1}, at(0))
		first := agg.FinalizeChunk()

		agg.Ingest("alice", "Alice", []byte{9}, at(30))
		second := agg.FinalizeChunk()

		if !bytes.Equal(first[0].PCM(), []byte{1}) {
			t.Errorf("first chunk polluted: %v", first[0].PCM())
		}
		if !bytes.Equal(second[0].PCM(), []byte{9}) {
			t.Errorf("second chunk wrong: %v", second[0].PCM())
		}
		if !second[0].ChunkStart.Equal(at(30)) {
			t.Errorf("second chunk start = %v", second[0].ChunkStart)
		}
	})

	t.Run("tie on first-frame time breaks by speaker id", func(t *testing.T) {
		agg := NewAggregator()
		agg.Ingest("zoe", "Zoe", []byte{1}, at(0))
		agg.Ingest("amy", "Amy", []byte{2}, at(0))

		blocks := agg.FinalizeChunk()
		if blocks[0].SpeakerID != "amy" || blocks[1].SpeakerID != "zoe" {
			t.Errorf(
				"tie order wrong: %s, %s",
				blocks[0].SpeakerID, blocks[1].SpeakerID,
			)
		}
	})
}

func TestAggregatorConcurrentIngest(t *testing.T) {
	agg := NewAggregator()

	var wg sync.WaitGroup
	const perSpeaker = 100
	for s := 0; s < 4; s++ {
		wg.Add(1)
		go func(s int) {
			defer wg.Done()
			id := fmt.Sprintf("speaker-%d", s)
			for i := 0; i < perSpeaker; i++ {
				agg.Ingest(id, id, []byte{byte(i)}, at(s))
			}
		}(s)
	}
	wg.Wait()

	blocks := agg.FinalizeChunk()
	if len(blocks) != 4 {
		t.Fatalf("expected 4 blocks, got %d", len(blocks))
	}
	for _, b := range blocks {
		if len(b.Frames) != perSpeaker {
			t.Errorf("%s: expected %d frames, got %d", b.SpeakerID, perSpeaker, len(b.Frames))
		}
		for i, f := range b.Frames {
			if f[0] != byte(i) {
				t.Fatalf("%s: frame %d out of order", b.SpeakerID, i)
			}
		}
	}
}

func TestEncodeWAV(t *testing.T) {
	pcm := []byte{0x01, 0x00, 0x02, 0x00, 0x03, 0x00, 0x04, 0x00}
	wav, err := EncodeWAV(pcm, SampleRate, Channels)
	if err != nil {
		t.Fatal(err)
	}

	if len(wav) != 44+len(pcm) {
		t.Errorf("expected %d bytes, got %d", 44+len(pcm), len(wav))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Errorf("bad container magic: %q %q", wav[0:4], wav[8:12])
	}
	if !bytes.Equal(wav[44:], pcm) {
		t.Error("payload does not match input PCM")
	}

	if _, err := EncodeWAV(nil, SampleRate, Channels); err == nil {
		t.Error("expected error for empty input")
	}
}
