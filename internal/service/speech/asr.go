package speech

import (
	"context"
	"errors"
	"os"
)

// ASRModelID names the transcription model the stub stands in for.
const ASRModelID = "Systran/faster-whisper-tiny.en"

// ErrNoUsableAudio reports that neither a stored artifact nor raw bytes were
// available to transcribe.
var ErrNoUsableAudio = errors.New("no usable audio source")

// ASRInput is the audio source handed to transcription: a stored path when
// the inbound artifact was written successfully, otherwise the raw bytes.
type ASRInput struct {
	Path string
	Raw  []byte
	MIME string
}

// ASR transcribes audio to text.
type ASR interface {
	Transcribe(ctx context.Context, in ASRInput) (string, error)
	ModelID() string
}

// StubASR is the placeholder transcriber used until a real model is wired in.
// It validates that a usable source exists and returns a fixed pending
// transcript.
type StubASR struct{}

func (StubASR) ModelID() string { return ASRModelID }

func (StubASR) Transcribe(_ context.Context, in ASRInput) (string, error) {
	if in.Path != "" {
		info, err := os.Stat(in.Path)
		if err == nil && info.Size() > 0 {
			return "<transcript_from_asr_pending_real_model>", nil
		}
		return "", ErrNoUsableAudio
	}
	if len(in.Raw) > 0 {
		return "<transcript_from_asr_pending_real_model>", nil
	}
	return "", ErrNoUsableAudio
}
