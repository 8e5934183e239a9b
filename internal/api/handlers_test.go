package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"voxloom/internal/auth"
	"voxloom/internal/config"
	"voxloom/internal/crm"
	"voxloom/internal/models"
	"voxloom/internal/pipeline"
	"voxloom/internal/service/reply"
	"voxloom/internal/service/speech"
	"voxloom/internal/service/support"
	"voxloom/internal/storage"
)

const testAPIKey = "test-api-key"

type captureDispatcher struct {
	mu       sync.Mutex
	payloads []models.IntakePayload
}

func (d *captureDispatcher) Dispatch(payload models.IntakePayload) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.payloads = append(d.payloads, payload)
}

func (d *captureDispatcher) all() []models.IntakePayload {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]models.IntakePayload(nil), d.payloads...)
}

func newTestServer(t *testing.T) (*gin.Engine, *sql.DB, *captureDispatcher) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			"sqlite3": {DSN: filepath.Join(t.TempDir(), "test.db")},
		},
	}
	db, err := storage.Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	db.SetMaxOpenConns(1)
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate db: %v", err)
	}

	svc := support.NewService(db, nil, nil)
	media := speech.NewMediaStore(t.TempDir())
	dispatcher := &captureDispatcher{}
	pipe := pipeline.New(svc, speech.StubASR{}, speech.NewStubTTS(media), media, reply.RuleBased{}, dispatcher, nil)
	handler := NewHandler(svc, pipe, auth.NewService(testAPIKey), nil)

	router := gin.New()
	handler.RegisterRoutes(router)
	return router, db, dispatcher
}

func doJSONRequest(t *testing.T, router *gin.Engine, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, data []byte, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("decode json: %v", err)
	}
}

func assertStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("unexpected status %d (want %d), body: %s", rec.Code, want, rec.Body.String())
	}
}

func authHeader() map[string]string {
	return map[string]string{"Authorization": "Bearer " + testAPIKey}
}

func createSession(t *testing.T, router *gin.Engine) string {
	t.Helper()
	resp := doJSONRequest(t, router, http.MethodPost, "/api/v1/sessions", map[string]string{
		"customer_id": "cust_001",
		"language":    "hi",
		"channel":     "phone",
		"persona":     "billing_agent",
	}, authHeader())
	assertStatus(t, resp, http.StatusCreated)
	var body struct {
		SessionID string `json:"session_id"`
	}
	decodeJSON(t, resp.Body.Bytes(), &body)
	if body.SessionID == "" {
		t.Fatalf("expected session id in response")
	}
	return body.SessionID
}

func fetchConversation(t *testing.T, router *gin.Engine, sessionID string) *support.Conversation {
	t.Helper()
	resp := doJSONRequest(t, router, http.MethodGet, "/api/v1/sessions/"+sessionID+"/conversation", nil, authHeader())
	assertStatus(t, resp, http.StatusOK)
	var conv support.Conversation
	decodeJSON(t, resp.Body.Bytes(), &conv)
	return &conv
}

func countRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&count); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return count
}

func TestHealthIsUnauthenticated(t *testing.T) {
	router, _, _ := newTestServer(t)
	resp := doJSONRequest(t, router, http.MethodGet, "/", nil, nil)
	assertStatus(t, resp, http.StatusOK)
}

func TestAPIRequiresAuth(t *testing.T) {
	router, _, _ := newTestServer(t)

	resp := doJSONRequest(t, router, http.MethodPost, "/api/v1/sessions", map[string]string{
		"customer_id": "c", "language": "hi", "channel": "phone",
	}, nil)
	assertStatus(t, resp, http.StatusUnauthorized)

	resp = doJSONRequest(t, router, http.MethodPost, "/api/v1/sessions", map[string]string{
		"customer_id": "c", "language": "hi", "channel": "phone",
	}, map[string]string{"Authorization": "Bearer wrong"})
	assertStatus(t, resp, http.StatusForbidden)
}

func TestCreateSessionValidatesBody(t *testing.T) {
	router, _, _ := newTestServer(t)
	resp := doJSONRequest(t, router, http.MethodPost, "/api/v1/sessions", map[string]string{
		"customer_id": "cust_001",
	}, authHeader())
	assertStatus(t, resp, http.StatusBadRequest)
}

func TestTextMessageFlow(t *testing.T) {
	router, db, dispatcher := newTestServer(t)
	sessionID := createSession(t, router)

	incoming := "Mera bill bahut zyada aaya hai"
	resp := doJSONRequest(t, router, http.MethodPost, "/api/v1/sessions/"+sessionID+"/messages", map[string]string{
		"type": "text",
		"text": incoming,
	}, authHeader())
	assertStatus(t, resp, http.StatusCreated)

	var result pipeline.Result
	decodeJSON(t, resp.Body.Bytes(), &result)
	if result.Transcript != incoming {
		t.Fatalf("text transcript should echo input, got %q", result.Transcript)
	}
	if result.ReplyText != reply.Generate(incoming) {
		t.Fatalf("unexpected reply: %q", result.ReplyText)
	}
	if result.ReplyAudioRef == "" {
		t.Fatalf("expected reply audio path")
	}

	conv := fetchConversation(t, router, sessionID)
	if len(conv.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(conv.Messages))
	}
	if len(conv.ModelCalls) != 2 {
		t.Fatalf("text message should audit LLM and TTS only, got %d calls", len(conv.ModelCalls))
	}
	for _, call := range conv.ModelCalls {
		if call.ModelType == models.ModelTypeASR {
			t.Fatalf("text message must not audit an ASR call")
		}
	}
	if n := countRows(t, db, "model_calls"); n != 2 {
		t.Fatalf("expected 2 model_calls rows, got %d", n)
	}

	payloads := dispatcher.all()
	if len(payloads) != 1 {
		t.Fatalf("expected 1 CRM dispatch, got %d", len(payloads))
	}
	p := payloads[0]
	if p.SessionID != sessionID || p.Scenario != "billing_query" {
		t.Fatalf("unexpected CRM payload: %+v", p)
	}
	if p.Record == nil || p.Record.Intent != "billing_explanation" || p.Record.Priority != "normal" {
		t.Fatalf("unexpected CRM classification: %+v", p.Record)
	}
}

func TestAudioMessageFlow(t *testing.T) {
	router, _, _ := newTestServer(t)
	sessionID := createSession(t, router)

	audio := base64.StdEncoding.EncodeToString([]byte("fake-wav-bytes"))
	resp := doJSONRequest(t, router, http.MethodPost, "/api/v1/sessions/"+sessionID+"/messages", map[string]string{
		"type":         "audio",
		"audio_base64": audio,
		"mime":         "audio/wav",
	}, authHeader())
	assertStatus(t, resp, http.StatusCreated)

	var result pipeline.Result
	decodeJSON(t, resp.Body.Bytes(), &result)
	if result.Transcript == "" || result.Transcript == pipeline.TranscriptAudioReceived {
		t.Fatalf("transcript should come from the ASR stage, got %q", result.Transcript)
	}

	conv := fetchConversation(t, router, sessionID)
	if len(conv.ModelCalls) != 3 {
		t.Fatalf("audio message should audit ASR, LLM and TTS, got %d calls", len(conv.ModelCalls))
	}
	wantOrder := []models.ModelType{models.ModelTypeASR, models.ModelTypeLLM, models.ModelTypeTTS}
	for i, call := range conv.ModelCalls {
		if call.ModelType != wantOrder[i] {
			t.Fatalf("call %d: want %s, got %s", i, wantOrder[i], call.ModelType)
		}
	}
	if conv.Messages[0].AudioRef == "" {
		t.Fatalf("expected inbound audio artifact reference")
	}
}

func TestEmptyAudioFallsBackToSentinel(t *testing.T) {
	router, _, _ := newTestServer(t)
	sessionID := createSession(t, router)

	resp := doJSONRequest(t, router, http.MethodPost, "/api/v1/sessions/"+sessionID+"/messages", map[string]string{
		"type": "audio",
	}, authHeader())
	assertStatus(t, resp, http.StatusCreated)

	var result pipeline.Result
	decodeJSON(t, resp.Body.Bytes(), &result)
	if result.Transcript != pipeline.TranscriptEmptySentinel {
		t.Fatalf("want empty-transcript sentinel, got %q", result.Transcript)
	}
	if result.ReplyText != reply.Generate(pipeline.TranscriptEmptySentinel) {
		t.Fatalf("unexpected reply for empty audio: %q", result.ReplyText)
	}
}

func TestPostMessageValidation(t *testing.T) {
	router, db, _ := newTestServer(t)
	sessionID := createSession(t, router)

	resp := doJSONRequest(t, router, http.MethodPost, "/api/v1/sessions/"+sessionID+"/messages", map[string]string{
		"type": "video",
	}, authHeader())
	assertStatus(t, resp, http.StatusBadRequest)

	resp = doJSONRequest(t, router, http.MethodPost, "/api/v1/sessions/"+sessionID+"/messages", map[string]string{
		"type":         "audio",
		"audio_base64": "not!!base64",
	}, authHeader())
	assertStatus(t, resp, http.StatusBadRequest)

	if n := countRows(t, db, "messages"); n != 0 {
		t.Fatalf("rejected messages must not be persisted, found %d rows", n)
	}
}

func TestPostMessageUnknownSession(t *testing.T) {
	router, db, dispatcher := newTestServer(t)

	resp := doJSONRequest(t, router, http.MethodPost, "/api/v1/sessions/no-such-session/messages", map[string]string{
		"type": "text",
		"text": "hello",
	}, authHeader())
	assertStatus(t, resp, http.StatusNotFound)

	for _, table := range []string{"messages", "model_calls", "crm_records", "tool_calls"} {
		if n := countRows(t, db, table); n != 0 {
			t.Fatalf("table %s should be empty, found %d rows", table, n)
		}
	}
	if len(dispatcher.all()) != 0 {
		t.Fatalf("no CRM dispatch expected for an unknown session")
	}
}

func TestConversationUnknownSession(t *testing.T) {
	router, _, _ := newTestServer(t)
	resp := doJSONRequest(t, router, http.MethodGet, "/api/v1/sessions/no-such-session/conversation", nil, authHeader())
	assertStatus(t, resp, http.StatusNotFound)
}

func TestCRMIntake(t *testing.T) {
	router, db, _ := newTestServer(t)
	sessionID := createSession(t, router)

	resp := doJSONRequest(t, router, http.MethodPost, "/api/v1/tools/mcp", models.IntakePayload{
		SessionID:   sessionID,
		LLMResponse: "reply text",
		Scenario:    "billing_query",
		Record: &models.CRMDetails{
			Name:      "Asha Sharma",
			Phone:     "+91-98xxxxxxx",
			AccountID: "acc_12345678",
			Query:     "bill too high",
			Intent:    "billing_explanation",
			Priority:  "normal",
		},
		Meta: map[string]any{"confidence": 0.5},
	}, authHeader())
	assertStatus(t, resp, http.StatusCreated)

	var body struct {
		OK          bool   `json:"ok"`
		Status      string `json:"status"`
		CRMRecordID string `json:"crm_record_id"`
		ToolCallID  string `json:"tool_call_id"`
	}
	decodeJSON(t, resp.Body.Bytes(), &body)
	if !body.OK || body.Status != string(models.ToolStatusAccepted) {
		t.Fatalf("unexpected intake response: %+v", body)
	}
	if body.CRMRecordID == "" || body.ToolCallID == "" {
		t.Fatalf("expected record and tool call ids, got %+v", body)
	}

	conv := fetchConversation(t, router, sessionID)
	if len(conv.CRMRecords) != 1 || len(conv.ToolCalls) != 1 {
		t.Fatalf("expected 1 CRM record and 1 tool call, got %d/%d", len(conv.CRMRecords), len(conv.ToolCalls))
	}
	if conv.CRMRecords[0].Status != models.CRMStatusPending {
		t.Fatalf("new CRM records start pending, got %s", conv.CRMRecords[0].Status)
	}
	// customer_id falls back to the session's customer.
	if conv.CRMRecords[0].CustomerID != "cust_001" {
		t.Fatalf("unexpected customer id %q", conv.CRMRecords[0].CustomerID)
	}
	if n := countRows(t, db, "crm_records"); n != 1 {
		t.Fatalf("expected 1 crm_records row, got %d", n)
	}
}

func TestCRMIntakeMissingBillingFields(t *testing.T) {
	router, db, _ := newTestServer(t)
	sessionID := createSession(t, router)

	resp := doJSONRequest(t, router, http.MethodPost, "/api/v1/tools/mcp", models.IntakePayload{
		SessionID: sessionID,
		Scenario:  "billing_query",
		Record: &models.CRMDetails{
			Name:      "Asha Sharma",
			AccountID: "acc_12345678",
			Query:     "bill too high",
			Intent:    "billing_explanation",
			Priority:  "normal",
		},
	}, authHeader())
	assertStatus(t, resp, http.StatusBadRequest)

	var body struct {
		Missing []string `json:"missing"`
	}
	decodeJSON(t, resp.Body.Bytes(), &body)
	if len(body.Missing) != 1 || body.Missing[0] != "phone" {
		t.Fatalf("want missing [phone], got %v", body.Missing)
	}

	if countRows(t, db, "crm_records") != 0 || countRows(t, db, "tool_calls") != 0 {
		t.Fatalf("rejected intake must write nothing")
	}
}

func TestCRMIntakeNonBillingScenarioSkipsFieldCheck(t *testing.T) {
	router, _, _ := newTestServer(t)
	sessionID := createSession(t, router)

	resp := doJSONRequest(t, router, http.MethodPost, "/api/v1/tools/mcp", models.IntakePayload{
		SessionID: sessionID,
		Scenario:  "general_note",
	}, authHeader())
	assertStatus(t, resp, http.StatusCreated)
}

func TestCRMIntakeUnknownSession(t *testing.T) {
	router, _, _ := newTestServer(t)
	resp := doJSONRequest(t, router, http.MethodPost, "/api/v1/tools/mcp", models.IntakePayload{
		SessionID: "no-such-session",
		Scenario:  "general_note",
	}, authHeader())
	assertStatus(t, resp, http.StatusNotFound)
}

// A failing CRM forwarder must never fail message handling.
func TestPostMessageSurvivesCRMSendFailure(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			"sqlite3": {DSN: filepath.Join(t.TempDir(), "test.db")},
		},
	}
	db, err := storage.Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate db: %v", err)
	}

	svc := support.NewService(db, nil, nil)
	media := speech.NewMediaStore(t.TempDir())
	dispatcher := crm.NewDispatcher(failingSender{}, 1, 4, nil)
	defer dispatcher.Close()
	pipe := pipeline.New(svc, speech.StubASR{}, speech.NewStubTTS(media), media, reply.RuleBased{}, dispatcher, nil)
	handler := NewHandler(svc, pipe, auth.NewService(testAPIKey), nil)

	router := gin.New()
	handler.RegisterRoutes(router)

	sessionID := createSession(t, router)
	resp := doJSONRequest(t, router, http.MethodPost, "/api/v1/sessions/"+sessionID+"/messages", map[string]string{
		"type": "text",
		"text": "I want my money back",
	}, authHeader())
	assertStatus(t, resp, http.StatusCreated)

	// Give the worker a moment to surface any misbehavior.
	time.Sleep(50 * time.Millisecond)
	if n := countRows(t, db, "messages"); n != 1 {
		t.Fatalf("message must persist regardless of CRM delivery, got %d rows", n)
	}
}

type failingSender struct{}

func (failingSender) Send(context.Context, models.IntakePayload) error {
	return errors.New("intake endpoint unreachable")
}
