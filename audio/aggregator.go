package audio

import (
	"sort"
	"sync"
	"time"
)

// Block holds one speaker's raw audio for one recording chunk. Frames are
// kept in arrival order and the block is frozen once FinalizeChunk hands it
// off; nothing mutates it after that.
type Block struct {
	SpeakerID   string
	DisplayName string
	Frames      [][]byte
	ChunkStart  time.Time
}

// PCM concatenates the block's frames into one contiguous buffer.
func (b *Block) PCM() []byte {
	size := 0
	for _, f := range b.Frames {
		size += len(f)
	}
	out := make([]byte, 0, size)
	for _, f := range b.Frames {
		out = append(out, f...)
	}
	return out
}

// Aggregator accumulates per-speaker audio fragments for the current chunk.
// Ingest never blocks on downstream work; FinalizeChunk swaps in a fresh
// accumulation so the next chunk starts clean.
type Aggregator struct {
	mu     sync.Mutex
	blocks map[string]*Block
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		blocks: make(map[string]*Block),
	}
}

// Ingest appends a fragment to the speaker's block, creating the block on
// the speaker's first fragment in this chunk. The block's ChunkStart is the
// arrival time of that first fragment.
func (a *Aggregator) Ingest(
	speakerID, displayName string,
	fragment []byte,
	arrival time.Time,
) {
	a.mu.Lock()
	defer a.mu.Unlock()

	block, ok := a.blocks[speakerID]
	if !ok {
		block = &Block{
			SpeakerID:   speakerID,
			DisplayName: displayName,
			ChunkStart:  arrival,
		}
		a.blocks[speakerID] = block
	}
	block.Frames = append(block.Frames, fragment)
}

// FinalizeChunk freezes and returns the current chunk's blocks, ordered by
// each speaker's first-frame time (speaker id breaks ties). Subsequent
// Ingest calls accumulate into the next chunk. A chunk nobody spoke in
// yields an empty slice.
func (a *Aggregator) FinalizeChunk() []*Block {
	a.mu.Lock()
	taken := a.blocks
	a.blocks = make(map[string]*Block)
	a.mu.Unlock()

	blocks := make([]*Block, 0, len(taken))
	for _, b := range taken {
		blocks = append(blocks, b)
	}
	sort.Slice(blocks, func(i, j int) bool {
		if !blocks[i].ChunkStart.Equal(blocks[j].ChunkStart) {
			return blocks[i].ChunkStart.Before(blocks[j].ChunkStart)
		}
		return blocks[i].SpeakerID < blocks[j].SpeakerID
	})
	return blocks
}
