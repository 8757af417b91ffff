package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sqlx "github.com/jmoiron/sqlx"
	zap "go.uber.org/zap"
	_ "modernc.org/sqlite"

	types "github.com/agentruntime/a2a/types"
)

const defaultTaskTableName = "tasks"

// SQLTaskStore implements TaskStore on a relational database. Tasks are
// stored one row per task; composite fields are serialized to JSON text
// columns. Save performs a full-row upsert.
type SQLTaskStore struct {
	db        *sqlx.DB
	logger    *zap.Logger
	tableName string
}

var _ TaskStore = (*SQLTaskStore)(nil)

// taskRow mirrors the tasks table layout.
type taskRow struct {
	ID        string         `db:"id"`
	ContextID string         `db:"context_id"`
	Kind      string         `db:"kind"`
	Status    string         `db:"status"`
	Artifacts sql.NullString `db:"artifacts"`
	History   sql.NullString `db:"history"`
	Metadata  sql.NullString `db:"metadata"`
}

// NewSQLTaskStore creates a task store on an existing database handle using
// the default table name.
func NewSQLTaskStore(db *sqlx.DB, logger *zap.Logger) *SQLTaskStore {
	return NewSQLTaskStoreWithTableName(db, logger, defaultTaskTableName)
}

// NewSQLTaskStoreWithTableName creates a task store with a custom table name.
func NewSQLTaskStoreWithTableName(db *sqlx.DB, logger *zap.Logger, tableName string) *SQLTaskStore {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &SQLTaskStore{
		db:        db,
		logger:    logger,
		tableName: tableName,
	}
}

// ConnectSQLTaskStore opens a sqlite database, initializes the schema and
// returns a ready store. Use ":memory:" for an ephemeral database.
func ConnectSQLTaskStore(ctx context.Context, dsn string, logger *zap.Logger) (*SQLTaskStore, error) {
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, NewInternalError("failed to open task database", err)
	}

	store := NewSQLTaskStore(db, logger)
	if err := store.Initialize(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// Initialize creates the tasks table if it does not exist.
func (s *SQLTaskStore) Initialize(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		context_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		status TEXT NOT NULL,
		artifacts TEXT,
		history TEXT,
		metadata TEXT
	)`, s.tableName)

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return NewInternalError("failed to initialize task table", err)
	}

	indexQuery := fmt.Sprintf(
		"CREATE INDEX IF NOT EXISTS idx_%s_context_id ON %s (context_id)",
		s.tableName, s.tableName)
	if _, err := s.db.ExecContext(ctx, indexQuery); err != nil {
		return NewInternalError("failed to create context index", err)
	}

	return nil
}

// Close releases the underlying connection pool.
func (s *SQLTaskStore) Close() error {
	return s.db.Close()
}

func marshalOptional(v any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

func (s *SQLTaskStore) rowToTask(row taskRow) (*types.Task, error) {
	task := &types.Task{
		ID:        row.ID,
		ContextID: row.ContextID,
		Kind:      row.Kind,
	}

	if err := json.Unmarshal([]byte(row.Status), &task.Status); err != nil {
		return nil, NewInternalError("failed to deserialize task status", err)
	}

	if row.Artifacts.Valid {
		if err := json.Unmarshal([]byte(row.Artifacts.String), &task.Artifacts); err != nil {
			return nil, NewInternalError("failed to deserialize task artifacts", err)
		}
	}

	if row.History.Valid {
		if err := json.Unmarshal([]byte(row.History.String), &task.History); err != nil {
			return nil, NewInternalError("failed to deserialize task history", err)
		}
	}

	if row.Metadata.Valid {
		if err := json.Unmarshal([]byte(row.Metadata.String), &task.Metadata); err != nil {
			return nil, NewInternalError("failed to deserialize task metadata", err)
		}
	}

	return task, nil
}

// Save upserts a task as a full-row replacement.
func (s *SQLTaskStore) Save(ctx context.Context, task *types.Task) error {
	if task == nil {
		return fmt.Errorf("task cannot be nil")
	}

	statusJSON, err := json.Marshal(task.Status)
	if err != nil {
		return NewInternalError("failed to serialize task status", err)
	}

	var artifacts, history, metadata sql.NullString
	if task.Artifacts != nil {
		if artifacts, err = marshalOptional(task.Artifacts); err != nil {
			return NewInternalError("failed to serialize task artifacts", err)
		}
	}
	if task.History != nil {
		if history, err = marshalOptional(task.History); err != nil {
			return NewInternalError("failed to serialize task history", err)
		}
	}
	if task.Metadata != nil {
		if metadata, err = marshalOptional(task.Metadata); err != nil {
			return NewInternalError("failed to serialize task metadata", err)
		}
	}

	query := fmt.Sprintf(`INSERT OR REPLACE INTO %s
		(id, context_id, kind, status, artifacts, history, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?)`, s.tableName)

	if _, err := s.db.ExecContext(ctx, query,
		task.ID, task.ContextID, task.Kind, string(statusJSON),
		artifacts, history, metadata); err != nil {
		return NewInternalError("failed to save task", err)
	}

	s.logger.Debug("task saved",
		zap.String("task_id", task.ID),
		zap.String("context_id", task.ContextID),
		zap.String("state", string(task.Status.State)))

	return nil
}

// Get retrieves a task by id; nil when absent.
func (s *SQLTaskStore) Get(ctx context.Context, taskID string) (*types.Task, error) {
	query := fmt.Sprintf(
		"SELECT id, context_id, kind, status, artifacts, history, metadata FROM %s WHERE id = ?",
		s.tableName)

	var row taskRow
	if err := s.db.GetContext(ctx, &row, query, taskID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, NewInternalError("failed to get task", err)
	}

	return s.rowToTask(row)
}

// Delete removes a task by id.
func (s *SQLTaskStore) Delete(ctx context.Context, taskID string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = ?", s.tableName)

	if _, err := s.db.ExecContext(ctx, query, taskID); err != nil {
		return NewInternalError("failed to delete task", err)
	}

	return nil
}

// List returns all stored tasks.
func (s *SQLTaskStore) List(ctx context.Context) ([]*types.Task, error) {
	query := fmt.Sprintf(
		"SELECT id, context_id, kind, status, artifacts, history, metadata FROM %s",
		s.tableName)

	return s.queryTasks(ctx, query)
}

// ListByContext returns all tasks that share the given context id.
func (s *SQLTaskStore) ListByContext(ctx context.Context, contextID string) ([]*types.Task, error) {
	query := fmt.Sprintf(
		"SELECT id, context_id, kind, status, artifacts, history, metadata FROM %s WHERE context_id = ?",
		s.tableName)

	return s.queryTasks(ctx, query, contextID)
}

func (s *SQLTaskStore) queryTasks(ctx context.Context, query string, args ...any) ([]*types.Task, error) {
	var rows []taskRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, NewInternalError("failed to list tasks", err)
	}

	tasks := make([]*types.Task, 0, len(rows))
	for _, row := range rows {
		task, err := s.rowToTask(row)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}

	return tasks, nil
}
