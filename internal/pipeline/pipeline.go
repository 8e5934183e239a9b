// Package pipeline orchestrates the handling of one inbound message:
// validate, optionally transcribe, generate a reply, optionally synthesize,
// persist atomically, then hand off the CRM side effect.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"voxloom/internal/faults"
	"voxloom/internal/models"
	"voxloom/internal/service/speech"
)

// Transcript sentinels. The audio placeholder is assigned before ASR runs;
// the empty sentinel is the fallback for ASR failures and missing audio.
const (
	TranscriptAudioReceived   = "<audio_received>"
	TranscriptEmptySentinel   = "<empty_transcript>"
	responseSnippetLimitRunes = 200
)

// Store is the persistence surface the pipeline needs.
type Store interface {
	GetSession(ctx context.Context, sessionID string) (*models.Session, error)
	SaveMessageWithCalls(ctx context.Context, msg *models.Message, calls []models.ModelCall) error
}

// Responder generates the reply text and classifies the request for CRM.
type Responder interface {
	Generate(text string) string
	Classify(text string) (intent, priority string)
	ModelID() string
}

// Dispatcher forwards the derived CRM payload to the intake side channel.
// Implementations never fail the caller; delivery is best-effort.
type Dispatcher interface {
	Dispatch(payload models.IntakePayload)
}

// Pipeline bundles every capability one message needs. Construct it once at
// startup and share it across requests; it holds no per-request state.
type Pipeline struct {
	store   Store
	asr     speech.ASR
	tts     speech.TTS
	media   *speech.MediaStore
	respond Responder
	crm     Dispatcher
	log     *zap.Logger
}

func New(store Store, asr speech.ASR, tts speech.TTS, media *speech.MediaStore, respond Responder, crm Dispatcher, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		store:   store,
		asr:     asr,
		tts:     tts,
		media:   media,
		respond: respond,
		crm:     crm,
		log:     log,
	}
}

// Input is one inbound customer message.
type Input struct {
	SessionID string
	Type      models.MessageType
	Text      string
	RawAudio  []byte
	MIME      string
}

// Result summarizes the committed message. It is computed from local pipeline
// state plus the persisted row and never depends on the CRM dispatch outcome.
type Result struct {
	MessageID     string    `json:"message_id"`
	SessionID     string    `json:"session_id"`
	CreatedAt     time.Time `json:"created_at"`
	IncomingText  string    `json:"incoming_text"`
	Transcript    string    `json:"transcript"`
	ReplyText     string    `json:"reply_text"`
	ReplyAudioRef string    `json:"reply_audio_path"`
}

// Handle runs the full pipeline for one message. Only validation, not-found
// and persistence faults reach the caller; stage and side-effect failures are
// absorbed into fallback values here, at one place.
func (p *Pipeline) Handle(ctx context.Context, in Input) (*Result, error) {
	if in.Type != models.MessageTypeText && in.Type != models.MessageTypeAudio {
		return nil, faults.Validation("type must be 'text' or 'audio'")
	}

	// Session resolution happens before any stage executes and before any
	// row is written.
	session, err := p.store.GetSession(ctx, in.SessionID)
	if err != nil {
		return nil, err
	}

	msg := &models.Message{
		ID:        uuid.New().String(),
		SessionID: session.ID,
		Direction: models.DirectionIncoming,
		Type:      in.Type,
		CreatedAt: time.Now().UTC(),
	}

	var calls []models.ModelCall

	// Normalize input. Text messages carry their transcript verbatim; audio
	// gets a placeholder until ASR runs, and raw bytes are stored first so
	// ASR can work from the artifact.
	if in.Type == models.MessageTypeText {
		msg.Text = in.Text
		msg.Transcript = in.Text
	} else {
		msg.Transcript = TranscriptAudioReceived
		if len(in.RawAudio) > 0 {
			ref, err := p.media.SaveInbound(msg.ID, in.RawAudio, in.MIME)
			if err != nil {
				// Non-fatal: proceed with the reference unset and let ASR
				// fall back to the raw bytes.
				p.log.Warn("store inbound audio failed",
					zap.String("message_id", msg.ID),
					zap.Error(err),
				)
			} else {
				msg.AudioRef = ref
			}
		}

		transcript, call := p.runASR(ctx, msg, in)
		msg.Transcript = transcript
		calls = append(calls, call)
	}

	userText := msg.Transcript
	if in.Type == models.MessageTypeText {
		userText = in.Text
	}

	replyText, llmCall := p.runReply(msg.ID, userText)
	msg.ReplyText = replyText
	calls = append(calls, llmCall)

	replyRef, ttsCall := p.runTTS(ctx, msg.ID, replyText)
	msg.ReplyAudioRef = replyRef
	calls = append(calls, ttsCall)

	if err := p.store.SaveMessageWithCalls(ctx, msg, calls); err != nil {
		return nil, err
	}

	p.dispatchCRM(session, msg, userText)

	return &Result{
		MessageID:     msg.ID,
		SessionID:     msg.SessionID,
		CreatedAt:     msg.CreatedAt,
		IncomingText:  msg.Text,
		Transcript:    msg.Transcript,
		ReplyText:     msg.ReplyText,
		ReplyAudioRef: msg.ReplyAudioRef,
	}, nil
}

// runASR transcribes the best available audio source. Failures map to the
// empty-transcript sentinel; the attempt is audited either way.
func (p *Pipeline) runASR(ctx context.Context, msg *models.Message, in Input) (string, models.ModelCall) {
	start := time.Now()
	transcript, err := p.asr.Transcribe(ctx, speech.ASRInput{
		Path: msg.AudioRef,
		Raw:  in.RawAudio,
		MIME: in.MIME,
	})
	elapsed := time.Since(start)
	if err != nil {
		p.log.Warn("asr stage failed, using fallback transcript",
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
		transcript = TranscriptEmptySentinel
	}
	return transcript, newModelCall(msg.ID, models.ModelTypeASR, p.asr.ModelID(), elapsed, transcript)
}

func (p *Pipeline) runReply(messageID, userText string) (string, models.ModelCall) {
	start := time.Now()
	replyText := p.respond.Generate(userText)
	elapsed := time.Since(start)
	return replyText, newModelCall(messageID, models.ModelTypeLLM, p.respond.ModelID(), elapsed, replyText)
}

// runTTS synthesizes the reply. Failures yield no audio reference and no
// abort; the attempt is audited either way.
func (p *Pipeline) runTTS(ctx context.Context, messageID, replyText string) (string, models.ModelCall) {
	start := time.Now()
	ref, err := p.tts.Synthesize(ctx, replyText, messageID)
	elapsed := time.Since(start)
	if err != nil {
		p.log.Warn("tts stage failed, reply has no audio",
			zap.String("message_id", messageID),
			zap.Error(err),
		)
		ref = ""
	}
	return ref, newModelCall(messageID, models.ModelTypeTTS, p.tts.ModelID(), elapsed, ref)
}

// dispatchCRM hands the derived payload to the intake side channel after the
// primary transaction has committed. Outcome never reaches the caller.
func (p *Pipeline) dispatchCRM(session *models.Session, msg *models.Message, userText string) {
	intent, priority := p.respond.Classify(userText)
	accountID := "acc_" + session.ID
	if len(session.ID) >= 8 {
		accountID = "acc_" + session.ID[:8]
	}
	customerID := session.CustomerID
	if customerID == "" {
		customerID = "cust_demo"
	}

	payload := models.IntakePayload{
		SessionID:   session.ID,
		CustomerID:  customerID,
		LLMResponse: msg.ReplyText,
		Scenario:    "billing_query",
		Record: &models.CRMDetails{
			Name:      "Asha Sharma",
			Phone:     "+91-98xxxxxxx",
			AccountID: accountID,
			Query:     msg.Transcript,
			Intent:    intent,
			Priority:  priority,
		},
		Meta: map[string]any{
			"model":      p.respond.ModelID(),
			"confidence": 0.5,
		},
	}
	p.crm.Dispatch(payload)
}

func newModelCall(messageID string, modelType models.ModelType, modelID string, elapsed time.Duration, response string) models.ModelCall {
	return models.ModelCall{
		ID:              uuid.New().String(),
		MessageID:       messageID,
		ModelType:       modelType,
		ModelID:         modelID,
		DurationMS:      elapsed.Milliseconds(),
		ResponseSnippet: snippet(response),
		CreatedAt:       time.Now().UTC(),
	}
}

func snippet(s string) string {
	runes := []rune(s)
	if len(runes) <= responseSnippetLimitRunes {
		return s
	}
	return string(runes[:responseSnippetLimitRunes])
}
