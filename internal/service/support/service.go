package support

import (
	"database/sql"
	"time"

	"voxloom/internal/redis"

	"go.uber.org/zap"
)

// Service owns persistence for sessions, messages, model calls, CRM records
// and tool calls.
type Service struct {
	db       *sql.DB
	cache    *redis.Client
	cacheTTL time.Duration
	log      *zap.Logger
}

// NewService builds a support service. cache may be nil; session lookups then
// always hit the database.
func NewService(db *sql.DB, cache *redis.Client, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		db:       db,
		cache:    cache,
		cacheTTL: 10 * time.Minute,
		log:      log,
	}
}
