package services

import "context"

// Contracts the orchestrator depends on. Concrete providers live in this
// package; tests substitute fakes.

// SourceImage is an in-memory asset handed to a generation call.
type SourceImage struct {
	Data     []byte
	MIMEType string
}

// ImagePart is one element of the typed part sequence a compose call returns.
// Exactly one of Text or Data is set.
type ImagePart struct {
	Text     string
	Data     []byte
	MIMEType string
}

// ComposeRequest describes one synchronous image-compose call.
type ComposeRequest struct {
	Sources     []SourceImage
	Instruction string
	AspectRatio string
	ImageSize   string
}

// ImageComposer is the synchronous image-generation capability.
type ImageComposer interface {
	ComposeImage(ctx context.Context, req ComposeRequest) ([]ImagePart, error)
}

// VideoJobRequest describes one asynchronous video-synthesis job.
type VideoJobRequest struct {
	Image       SourceImage
	Prompt      string
	AspectRatio string
}

// VideoJobHandle is an opaque reference to an in-flight video job. Each poll
// returns a fresh handle; handles are side-effect-free snapshots.
type VideoJobHandle interface {
	Done() bool
	// Failed returns the job's terminal error, or nil.
	Failed() error
	HasOutput() bool
}

// VideoSynthesizer is the asynchronous video-generation capability:
// start a job, poll it, download its output.
type VideoSynthesizer interface {
	StartVideoJob(ctx context.Context, req VideoJobRequest) (VideoJobHandle, error)
	PollVideoJob(ctx context.Context, job VideoJobHandle) (VideoJobHandle, error)
	DownloadVideo(ctx context.Context, job VideoJobHandle) ([]byte, error)
}

// PromptEnhancer optionally rewrites the user's free-text prompt before the
// compose call. Implementations must be safe to skip: callers fall back to
// the raw prompt on any error.
type PromptEnhancer interface {
	EnhancePrompt(ctx context.Context, productName, userPrompt string) (string, error)
}
