package support

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"voxloom/internal/faults"
	"voxloom/internal/models"
)

// SaveCRMIntake persists the CRM record and its tool-call audit row in one
// transaction. On failure it attempts a compensating write that records the
// tool call with status "failed"; that secondary write is best-effort and
// never masks the primary error. The tool call's status field reflects the
// outcome on return.
func (s *Service) SaveCRMIntake(ctx context.Context, record *models.CRMRecord, tool *models.ToolCall) error {
	recordJSON, err := json.Marshal(record.Record)
	if err != nil {
		return faults.Persistence("encode crm record", err)
	}
	payloadJSON, err := json.Marshal(tool.Payload)
	if err != nil {
		return faults.Persistence("encode tool call payload", err)
	}

	if err := s.saveIntakeTx(ctx, record, tool, string(recordJSON), string(payloadJSON)); err != nil {
		tool.Status = models.ToolStatusFailed
		if compErr := s.insertToolCall(ctx, tool, string(payloadJSON)); compErr != nil {
			s.log.Warn("compensating tool call write failed",
				zap.String("tool_call_id", tool.ID),
				zap.Error(compErr),
			)
		}
		return faults.Persistence("save crm intake", err)
	}
	return nil
}

func (s *Service) saveIntakeTx(ctx context.Context, record *models.CRMRecord, tool *models.ToolCall, recordJSON, payloadJSON string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO crm_records (id, session_id, customer_id, scenario, record_json, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.SessionID, nullable(record.CustomerID), record.Scenario,
		recordJSON, record.Status, record.CreatedAt,
	)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO tool_calls (id, session_id, payload_json, status, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		tool.ID, tool.SessionID, payloadJSON, tool.Status, tool.CreatedAt,
	)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Service) insertToolCall(ctx context.Context, tool *models.ToolCall, payloadJSON string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tool_calls (id, session_id, payload_json, status, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		tool.ID, tool.SessionID, payloadJSON, tool.Status, tool.CreatedAt,
	)
	return err
}
