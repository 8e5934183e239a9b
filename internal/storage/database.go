package storage

import (
	"database/sql"
	"fmt"
	"strings"

	"voxloom/internal/config"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
)

// Open connects to the configured database for the given driver type.
func Open(dbType string, cfg *config.Config) (*sql.DB, error) {
	dbCfg, ok := cfg.Databases[dbType]
	if !ok {
		return nil, fmt.Errorf("database config for %s not found", dbType)
	}

	var (
		db  *sql.DB
		err error
	)

	switch strings.ToLower(dbType) {
	case "sqlite", "sqlite3":
		if dbCfg.DSN == "" {
			return nil, fmt.Errorf("sqlite dsn must be provided")
		}
		db, err = sql.Open("sqlite3", dbCfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite database: %w", err)
		}
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable sqlite foreign keys: %w", err)
		}
	case "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
			dbCfg.Username,
			dbCfg.Password,
			dbCfg.Host,
			dbCfg.Port,
			dbCfg.DBName,
			dbCfg.Params,
		)
		db, err = sql.Open("mysql", dsn)
		if err != nil {
			return nil, fmt.Errorf("open mysql database: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", dbType)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Migrate ensures the required tables are present: sessions, messages,
// model_calls, crm_records, tool_calls.
func Migrate(db *sql.DB, driver string) error {
	var stmts []string
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS sessions (
				id TEXT PRIMARY KEY,
				customer_id TEXT NOT NULL,
				language TEXT NOT NULL,
				channel TEXT NOT NULL,
				persona TEXT,
				created_at DATETIME NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS messages (
				id TEXT PRIMARY KEY,
				session_id TEXT NOT NULL,
				direction TEXT NOT NULL,
				type TEXT NOT NULL,
				text TEXT,
				audio_ref TEXT,
				transcript TEXT,
				reply_text TEXT,
				reply_audio_ref TEXT,
				created_at DATETIME NOT NULL,
				FOREIGN KEY(session_id) REFERENCES sessions(id)
			)`,
			`CREATE TABLE IF NOT EXISTS model_calls (
				id TEXT PRIMARY KEY,
				message_id TEXT NOT NULL,
				model_type TEXT NOT NULL,
				model_id TEXT NOT NULL,
				duration_ms INTEGER NOT NULL,
				response_snippet TEXT,
				created_at DATETIME NOT NULL,
				FOREIGN KEY(message_id) REFERENCES messages(id)
			)`,
			`CREATE TABLE IF NOT EXISTS crm_records (
				id TEXT PRIMARY KEY,
				session_id TEXT NOT NULL,
				customer_id TEXT,
				scenario TEXT NOT NULL,
				record_json TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'pending',
				created_at DATETIME NOT NULL,
				FOREIGN KEY(session_id) REFERENCES sessions(id)
			)`,
			`CREATE TABLE IF NOT EXISTS tool_calls (
				id TEXT PRIMARY KEY,
				session_id TEXT NOT NULL,
				payload_json TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'accepted',
				created_at DATETIME NOT NULL,
				FOREIGN KEY(session_id) REFERENCES sessions(id)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id)`,
			`CREATE INDEX IF NOT EXISTS idx_model_calls_message ON model_calls(message_id)`,
			`CREATE INDEX IF NOT EXISTS idx_crm_records_session ON crm_records(session_id)`,
			`CREATE INDEX IF NOT EXISTS idx_tool_calls_session ON tool_calls(session_id)`,
		}
	case "mysql":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS sessions (
				id VARCHAR(36) NOT NULL,
				customer_id VARCHAR(255) NOT NULL,
				language VARCHAR(32) NOT NULL,
				channel VARCHAR(64) NOT NULL,
				persona VARCHAR(255),
				created_at DATETIME(3) NOT NULL,
				PRIMARY KEY (id)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS messages (
				id VARCHAR(36) NOT NULL,
				session_id VARCHAR(36) NOT NULL,
				direction VARCHAR(16) NOT NULL,
				type VARCHAR(16) NOT NULL,
				text MEDIUMTEXT,
				audio_ref TEXT,
				transcript MEDIUMTEXT,
				reply_text MEDIUMTEXT,
				reply_audio_ref TEXT,
				created_at DATETIME(3) NOT NULL,
				PRIMARY KEY (id),
				INDEX idx_messages_session (session_id),
				CONSTRAINT fk_messages_session FOREIGN KEY (session_id) REFERENCES sessions(id)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS model_calls (
				id VARCHAR(36) NOT NULL,
				message_id VARCHAR(36) NOT NULL,
				model_type VARCHAR(16) NOT NULL,
				model_id VARCHAR(255) NOT NULL,
				duration_ms BIGINT NOT NULL,
				response_snippet TEXT,
				created_at DATETIME(3) NOT NULL,
				PRIMARY KEY (id),
				INDEX idx_model_calls_message (message_id),
				CONSTRAINT fk_model_calls_message FOREIGN KEY (message_id) REFERENCES messages(id)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS crm_records (
				id VARCHAR(36) NOT NULL,
				session_id VARCHAR(36) NOT NULL,
				customer_id VARCHAR(255),
				scenario VARCHAR(128) NOT NULL,
				record_json MEDIUMTEXT NOT NULL,
				status VARCHAR(16) NOT NULL DEFAULT 'pending',
				created_at DATETIME(3) NOT NULL,
				PRIMARY KEY (id),
				INDEX idx_crm_records_session (session_id),
				CONSTRAINT fk_crm_records_session FOREIGN KEY (session_id) REFERENCES sessions(id)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS tool_calls (
				id VARCHAR(36) NOT NULL,
				session_id VARCHAR(36) NOT NULL,
				payload_json MEDIUMTEXT NOT NULL,
				status VARCHAR(16) NOT NULL DEFAULT 'accepted',
				created_at DATETIME(3) NOT NULL,
				PRIMARY KEY (id),
				INDEX idx_tool_calls_session (session_id),
				CONSTRAINT fk_tool_calls_session FOREIGN KEY (session_id) REFERENCES sessions(id)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		}
	default:
		return fmt.Errorf("unsupported driver for migration: %s", driver)
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate (%s): %w", driver, err)
		}
	}
	return nil
}
