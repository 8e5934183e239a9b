package support

import (
	"context"

	"voxloom/internal/faults"
	"voxloom/internal/models"
)

// SaveMessageWithCalls writes the message row and all of its model-call audit
// rows in one transaction. Either everything becomes visible or nothing does.
func (s *Service) SaveMessageWithCalls(ctx context.Context, msg *models.Message, calls []models.ModelCall) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return faults.Persistence("begin message tx", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO messages (id, session_id, direction, type, text, audio_ref, transcript, reply_text, reply_audio_ref, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.SessionID, msg.Direction, msg.Type,
		nullable(msg.Text), nullable(msg.AudioRef), nullable(msg.Transcript),
		nullable(msg.ReplyText), nullable(msg.ReplyAudioRef), msg.CreatedAt,
	)
	if err != nil {
		return faults.Persistence("insert message", err)
	}

	for _, call := range calls {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO model_calls (id, message_id, model_type, model_id, duration_ms, response_snippet, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			call.ID, call.MessageID, call.ModelType, call.ModelID, call.DurationMS,
			nullable(call.ResponseSnippet), call.CreatedAt,
		)
		if err != nil {
			return faults.Persistence("insert model call", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return faults.Persistence("commit message tx", err)
	}
	return nil
}
