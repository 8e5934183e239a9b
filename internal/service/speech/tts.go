package speech

import "context"

// TTSModelID names the synthesis model the stub stands in for.
const TTSModelID = "stub-tts"

// TTS turns reply text into an audio artifact and returns its reference.
type TTS interface {
	Synthesize(ctx context.Context, text, messageID string) (string, error)
	ModelID() string
}

// StubTTS writes a short silent WAV named after the message id so clients
// have something playable until a real voice is wired in.
type StubTTS struct {
	media *MediaStore
}

func NewStubTTS(media *MediaStore) *StubTTS {
	return &StubTTS{media: media}
}

func (s *StubTTS) ModelID() string { return TTSModelID }

func (s *StubTTS) Synthesize(_ context.Context, _ string, messageID string) (string, error) {
	path := s.media.ReplyPath(messageID)
	if err := writeSilentWAV(path, 1.0); err != nil {
		return "", err
	}
	return path, nil
}
