package stt

import (
	"context"
)

// ModelHandle is a ready-to-use speech recognition model. Handles are
// shared read-only across tenants and chunks.
type ModelHandle interface {
	Model() string
	Device() string
}

// Engine converts completed audio blocks into text. Both operations are
// synchronous and potentially slow; callers run them off the capture path.
type Engine interface {
	// LoadModel prepares a model for use. Idempotent per (model, device).
	LoadModel(ctx context.Context, model, device string) (ModelHandle, error)

	// Transcribe runs recognition over a complete WAV recording.
	Transcribe(ctx context.Context, handle ModelHandle, wav []byte) (string, error)
}
