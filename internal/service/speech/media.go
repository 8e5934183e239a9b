// Package speech holds the ASR and TTS stage contracts, their current stub
// implementations, and the media store for audio artifacts. Real models can
// replace the stubs without touching callers.
package speech

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// MediaStore writes audio artifacts under a single media root and hands out
// deterministic, message-id-addressed paths.
type MediaStore struct {
	dir string
}

func NewMediaStore(dir string) *MediaStore {
	return &MediaStore{dir: dir}
}

// SaveInbound persists raw inbound audio as media/<message_id>.<ext> and
// returns the stored path. The extension is inferred from the MIME type.
func (m *MediaStore) SaveInbound(messageID string, raw []byte, mime string) (string, error) {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return "", fmt.Errorf("create media dir: %w", err)
	}
	path := filepath.Join(m.dir, messageID+extForMIME(mime))
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return "", fmt.Errorf("write inbound audio: %w", err)
	}
	return path, nil
}

// ReplyPath is where the synthesized reply for a message is written.
func (m *MediaStore) ReplyPath(messageID string) string {
	return filepath.Join(m.dir, "reply_"+messageID+".wav")
}

// Dir returns the media root.
func (m *MediaStore) Dir() string { return m.dir }

func extForMIME(mime string) string {
	if strings.Contains(strings.ToLower(mime), "mp3") {
		return ".mp3"
	}
	return ".wav"
}
