package api

import (
	"encoding/base64"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"voxloom/internal/auth"
	"voxloom/internal/faults"
	"voxloom/internal/models"
	"voxloom/internal/pipeline"
	"voxloom/internal/service/support"
)

// Handler wires HTTP routes to the support service and the message pipeline.
type Handler struct {
	support *support.Service
	pipe    *pipeline.Pipeline
	auth    *auth.Service
	log     *zap.Logger
}

// NewHandler constructs a Handler instance.
func NewHandler(supportService *support.Service, pipe *pipeline.Pipeline, authService *auth.Service, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		support: supportService,
		pipe:    pipe,
		auth:    authService,
		log:     log,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/", h.health)

	api := router.Group("/api/v1")
	api.Use(h.auth.Middleware())
	api.POST("/sessions", h.createSession)
	api.POST("/sessions/:session_id/messages", h.postMessage)
	api.GET("/sessions/:session_id/conversation", h.getConversation)
	api.POST("/tools/mcp", h.crmIntake)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "service": "voxloom-backend"})
}

type createSessionRequest struct {
	CustomerID string `json:"customer_id" binding:"required"`
	Language   string `json:"language" binding:"required"`
	Channel    string `json:"channel" binding:"required"`
	Persona    string `json:"persona"`
}

func (h *Handler) createSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	session, err := h.support.CreateSession(c.Request.Context(), req.CustomerID, req.Language, req.Channel, req.Persona)
	if err != nil {
		h.writeFault(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"session_id": session.ID,
		"created_at": session.CreatedAt,
	})
}

type messageRequest struct {
	Type        string `json:"type" binding:"required"`
	Text        string `json:"text"`
	AudioBase64 string `json:"audio_base64"`
	MIME        string `json:"mime"`
}

func (h *Handler) postMessage(c *gin.Context) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	var rawAudio []byte
	if req.AudioBase64 != "" {
		decoded, err := base64.StdEncoding.DecodeString(req.AudioBase64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "audio_base64 is not valid base64"})
			return
		}
		rawAudio = decoded
	}

	result, err := h.pipe.Handle(c.Request.Context(), pipeline.Input{
		SessionID: c.Param("session_id"),
		Type:      models.MessageType(req.Type),
		Text:      req.Text,
		RawAudio:  rawAudio,
		MIME:      req.MIME,
	})
	if err != nil {
		h.writeFault(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h *Handler) getConversation(c *gin.Context) {
	conv, err := h.support.GetConversation(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		h.writeFault(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

var billingRequiredFields = []string{"name", "phone", "account_id", "query", "intent", "priority"}

func (h *Handler) crmIntake(c *gin.Context) {
	var payload models.IntakePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := validateIntake(payload); err != nil {
		h.writeFault(c, err)
		return
	}

	session, err := h.support.GetSession(c.Request.Context(), payload.SessionID)
	if err != nil {
		h.writeFault(c, err)
		return
	}

	now := time.Now().UTC()
	customerID := payload.CustomerID
	if customerID == "" {
		customerID = session.CustomerID
	}
	var details models.CRMDetails
	if payload.Record != nil {
		details = *payload.Record
	}
	record := &models.CRMRecord{
		ID:         uuid.New().String(),
		SessionID:  payload.SessionID,
		CustomerID: customerID,
		Scenario:   payload.Scenario,
		Record:     details,
		Status:     models.CRMStatusPending,
		CreatedAt:  now,
	}
	tool := &models.ToolCall{
		ID:        uuid.New().String(),
		SessionID: payload.SessionID,
		Payload:   payload,
		Status:    models.ToolStatusAccepted,
		CreatedAt: now,
	}

	if err := h.support.SaveCRMIntake(c.Request.Context(), record, tool); err != nil {
		h.writeFault(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"ok":            true,
		"status":        tool.Status,
		"crm_record_id": record.ID,
		"tool_call_id":  tool.ID,
	})
}

func validateIntake(payload models.IntakePayload) error {
	if payload.SessionID == "" {
		return faults.Validation("session_id is required")
	}
	if payload.Scenario == "" {
		return faults.Validation("scenario is required")
	}
	if payload.Scenario != "billing_query" {
		return nil
	}

	var rec models.CRMDetails
	if payload.Record != nil {
		rec = *payload.Record
	}
	present := map[string]string{
		"name":       rec.Name,
		"phone":      rec.Phone,
		"account_id": rec.AccountID,
		"query":      rec.Query,
		"intent":     rec.Intent,
		"priority":   rec.Priority,
	}
	var missing []string
	for _, field := range billingRequiredFields {
		if present[field] == "" {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return faults.MissingFields("missing crm record fields", missing)
	}
	return nil
}

// writeFault maps the fault taxonomy onto HTTP statuses. Internal error
// detail stays out of 500 bodies.
func (h *Handler) writeFault(c *gin.Context, err error) {
	var fault *faults.Fault
	if !errors.As(err, &fault) {
		h.log.Error("unclassified error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	switch fault.Kind {
	case faults.KindValidation:
		body := gin.H{"error": fault.Detail}
		if len(fault.Fields) > 0 {
			body["missing"] = fault.Fields
		}
		c.JSON(http.StatusBadRequest, body)
	case faults.KindNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": fault.Detail})
	case faults.KindPersistence:
		h.log.Error("persistence fault", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": fault.Error()})
	default:
		h.log.Error("unknown fault kind", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
