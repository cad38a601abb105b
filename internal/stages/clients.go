package stages

import "context"

// Transcription is the outcome of a transcription run.
type Transcription struct {
	TranscriptRef   string
	DurationSeconds int
	Cost            float64
}

// Transcriber submits a video for transcription and waits for the result.
type Transcriber interface {
	Transcribe(ctx context.Context, videoKey string) (Transcription, error)
	Healthy(ctx context.Context) error
}

// Summary is the outcome of a summarization run.
type Summary struct {
	SummaryRef string
	Cost       float64
}

// Summarizer produces a summary from a finished transcript.
type Summarizer interface {
	Summarize(ctx context.Context, videoKey, transcriptRef string) (Summary, error)
	Healthy(ctx context.Context) error
}
