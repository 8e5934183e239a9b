package support

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"voxloom/internal/faults"
	"voxloom/internal/models"
)

// CreateSession inserts a new session and returns the record.
func (s *Service) CreateSession(ctx context.Context, customerID, language, channel, persona string) (*models.Session, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, faults.Validation("customer_id is required")
	}
	if strings.TrimSpace(language) == "" {
		return nil, faults.Validation("language is required")
	}
	if strings.TrimSpace(channel) == "" {
		return nil, faults.Validation("channel is required")
	}

	session := &models.Session{
		ID:         uuid.New().String(),
		CustomerID: customerID,
		Language:   language,
		Channel:    channel,
		Persona:    persona,
		CreatedAt:  time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, customer_id, language, channel, persona, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		session.ID, session.CustomerID, session.Language, session.Channel, nullable(session.Persona), session.CreatedAt,
	)
	if err != nil {
		return nil, faults.Persistence("create session", err)
	}
	return session, nil
}

// GetSession resolves a session id, consulting the cache first. Returns a
// not-found fault when no row exists.
func (s *Service) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	if cached := s.cachedSession(ctx, sessionID); cached != nil {
		return cached, nil
	}

	var (
		session models.Session
		persona sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, customer_id, language, channel, persona, created_at FROM sessions WHERE id = ?`,
		sessionID,
	).Scan(&session.ID, &session.CustomerID, &session.Language, &session.Channel, &persona, &session.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, faults.NotFound("session not found")
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	session.Persona = persona.String
	s.cacheSession(ctx, &session)
	return &session, nil
}

// Conversation is the full read-back aggregate for one session.
type Conversation struct {
	Session    *models.Session    `json:"session"`
	Messages   []models.Message   `json:"messages"`
	CRMRecords []models.CRMRecord `json:"crm_records"`
	ToolCalls  []models.ToolCall  `json:"tool_calls"`
	ModelCalls []models.ModelCall `json:"model_calls"`
}

// GetConversation assembles every record scoped to the session, each
// collection ordered by creation time ascending. Model calls are joined
// transitively through the session's messages.
func (s *Service) GetConversation(ctx context.Context, sessionID string) (*Conversation, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	conv := &Conversation{
		Session:    session,
		Messages:   make([]models.Message, 0),
		CRMRecords: make([]models.CRMRecord, 0),
		ToolCalls:  make([]models.ToolCall, 0),
		ModelCalls: make([]models.ModelCall, 0),
	}

	if conv.Messages, err = s.listMessages(ctx, sessionID); err != nil {
		return nil, err
	}
	if conv.CRMRecords, err = s.listCRMRecords(ctx, sessionID); err != nil {
		return nil, err
	}
	if conv.ToolCalls, err = s.listToolCalls(ctx, sessionID); err != nil {
		return nil, err
	}
	if conv.ModelCalls, err = s.listModelCalls(ctx, sessionID); err != nil {
		return nil, err
	}
	return conv, nil
}

func (s *Service) listMessages(ctx context.Context, sessionID string) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, direction, type, text, audio_ref, transcript, reply_text, reply_audio_ref, created_at
		 FROM messages WHERE session_id = ? ORDER BY created_at ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		var (
			m                                             models.Message
			text, audioRef, transcript, reply, replyAudio sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Direction, &m.Type, &text, &audioRef, &transcript, &reply, &replyAudio, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Text = text.String
		m.AudioRef = audioRef.String
		m.Transcript = transcript.String
		m.ReplyText = reply.String
		m.ReplyAudioRef = replyAudio.String
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (s *Service) listCRMRecords(ctx context.Context, sessionID string) ([]models.CRMRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, customer_id, scenario, record_json, status, created_at
		 FROM crm_records WHERE session_id = ? ORDER BY created_at ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list crm records: %w", err)
	}
	defer rows.Close()

	records := make([]models.CRMRecord, 0)
	for rows.Next() {
		var (
			r          models.CRMRecord
			customerID sql.NullString
			recordJSON string
		)
		if err := rows.Scan(&r.ID, &r.SessionID, &customerID, &r.Scenario, &recordJSON, &r.Status, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan crm record: %w", err)
		}
		r.CustomerID = customerID.String
		if err := json.Unmarshal([]byte(recordJSON), &r.Record); err != nil {
			return nil, fmt.Errorf("decode crm record %s: %w", r.ID, err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *Service) listToolCalls(ctx context.Context, sessionID string) ([]models.ToolCall, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, payload_json, status, created_at
		 FROM tool_calls WHERE session_id = ? ORDER BY created_at ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list tool calls: %w", err)
	}
	defer rows.Close()

	calls := make([]models.ToolCall, 0)
	for rows.Next() {
		var (
			t           models.ToolCall
			payloadJSON string
		)
		if err := rows.Scan(&t.ID, &t.SessionID, &payloadJSON, &t.Status, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan tool call: %w", err)
		}
		if err := json.Unmarshal([]byte(payloadJSON), &t.Payload); err != nil {
			return nil, fmt.Errorf("decode tool call %s: %w", t.ID, err)
		}
		calls = append(calls, t)
	}
	return calls, rows.Err()
}

func (s *Service) listModelCalls(ctx context.Context, sessionID string) ([]models.ModelCall, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT mc.id, mc.message_id, mc.model_type, mc.model_id, mc.duration_ms, mc.response_snippet, mc.created_at
		 FROM model_calls mc
		 JOIN messages m ON mc.message_id = m.id
		 WHERE m.session_id = ?
		 ORDER BY mc.created_at ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list model calls: %w", err)
	}
	defer rows.Close()

	calls := make([]models.ModelCall, 0)
	for rows.Next() {
		var (
			mc      models.ModelCall
			snippet sql.NullString
		)
		if err := rows.Scan(&mc.ID, &mc.MessageID, &mc.ModelType, &mc.ModelID, &mc.DurationMS, &snippet, &mc.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan model call: %w", err)
		}
		mc.ResponseSnippet = snippet.String
		calls = append(calls, mc)
	}
	return calls, rows.Err()
}

const sessionCachePrefix = "voxloom:session:"

func (s *Service) cachedSession(ctx context.Context, sessionID string) *models.Session {
	if !s.cache.Enabled() {
		return nil
	}
	raw, err := s.cache.Get(ctx, sessionCachePrefix+sessionID)
	if err != nil {
		return nil
	}
	var session models.Session
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		s.log.Debug("drop undecodable session cache entry", zap.String("session_id", sessionID))
		_ = s.cache.Del(ctx, sessionCachePrefix+sessionID)
		return nil
	}
	return &session
}

func (s *Service) cacheSession(ctx context.Context, session *models.Session) {
	if !s.cache.Enabled() {
		return
	}
	raw, err := json.Marshal(session)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, sessionCachePrefix+session.ID, string(raw), s.cacheTTL); err != nil {
		s.log.Debug("cache session failed", zap.String("session_id", session.ID), zap.Error(err))
	}
}

func nullable(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
