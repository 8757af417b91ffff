package server

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	sqlx "github.com/jmoiron/sqlx"
	zap "go.uber.org/zap"

	types "github.com/agentruntime/a2a/types"
)

const defaultPushConfigTableName = "push_notification_configs"

// configCipher seals and opens secret config fields with AES-256-GCM.
// Ciphertext is base64(nonce || sealed).
type configCipher struct {
	aead cipher.AEAD
}

func newConfigCipher(key []byte) (*configCipher, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create AEAD: %w", err)
	}

	return &configCipher{aead: aead}, nil
}

func (c *configCipher) seal(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (c *configCipher) open(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("malformed ciphertext encoding: %w", err)
	}

	nonceSize := c.aead.NonceSize()
	if len(raw) < nonceSize {
		return "", fmt.Errorf("ciphertext shorter than nonce")
	}

	plaintext, err := c.aead.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}

	return string(plaintext), nil
}

// SQLPushNotificationConfigStore implements PushNotificationConfigStore on a
// relational database. When constructed with a 32-byte key the token and any
// authentication credentials are encrypted at rest with AES-256-GCM.
type SQLPushNotificationConfigStore struct {
	db        *sqlx.DB
	logger    *zap.Logger
	tableName string
	cipher    *configCipher
}

var _ PushNotificationConfigStore = (*SQLPushNotificationConfigStore)(nil)

type pushConfigRow struct {
	TaskID   string         `db:"task_id"`
	ConfigID sql.NullString `db:"config_id"`
	Config   string         `db:"config"`
}

// NewSQLPushNotificationConfigStore creates a plaintext SQL push config store.
func NewSQLPushNotificationConfigStore(db *sqlx.DB, logger *zap.Logger) *SQLPushNotificationConfigStore {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &SQLPushNotificationConfigStore{
		db:        db,
		logger:    logger,
		tableName: defaultPushConfigTableName,
	}
}

// NewEncryptedSQLPushNotificationConfigStore creates a SQL push config store
// that encrypts secret fields with the given 32-byte key.
func NewEncryptedSQLPushNotificationConfigStore(db *sqlx.DB, logger *zap.Logger, key []byte) (*SQLPushNotificationConfigStore, error) {
	store := NewSQLPushNotificationConfigStore(db, logger)

	configCipher, err := newConfigCipher(key)
	if err != nil {
		return nil, err
	}
	store.cipher = configCipher

	return store, nil
}

// Initialize creates the push config table if it does not exist.
func (s *SQLPushNotificationConfigStore) Initialize(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		task_id TEXT NOT NULL,
		config_id TEXT,
		config TEXT NOT NULL
	)`, s.tableName)

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return NewInternalError("failed to initialize push config table", err)
	}

	indexQuery := fmt.Sprintf(
		"CREATE INDEX IF NOT EXISTS idx_%s_task_id ON %s (task_id)",
		s.tableName, s.tableName)
	if _, err := s.db.ExecContext(ctx, indexQuery); err != nil {
		return NewInternalError("failed to create push config index", err)
	}

	return nil
}

// sealConfig encrypts the token and authentication credentials in place on a
// copy of the config.
func (s *SQLPushNotificationConfigStore) sealConfig(config types.PushNotificationConfig) (types.PushNotificationConfig, error) {
	if s.cipher == nil {
		return config, nil
	}

	if config.Token != nil {
		sealed, err := s.cipher.seal(*config.Token)
		if err != nil {
			return config, err
		}
		config.Token = &sealed
	}

	if config.Authentication != nil && config.Authentication.Credentials != nil {
		auth := *config.Authentication
		sealed, err := s.cipher.seal(*auth.Credentials)
		if err != nil {
			return config, err
		}
		auth.Credentials = &sealed
		config.Authentication = &auth
	}

	return config, nil
}

func (s *SQLPushNotificationConfigStore) openConfig(config types.PushNotificationConfig) (types.PushNotificationConfig, error) {
	if s.cipher == nil {
		return config, nil
	}

	if config.Token != nil {
		opened, err := s.cipher.open(*config.Token)
		if err != nil {
			return config, err
		}
		config.Token = &opened
	}

	if config.Authentication != nil && config.Authentication.Credentials != nil {
		auth := *config.Authentication
		opened, err := s.cipher.open(*auth.Credentials)
		if err != nil {
			return config, err
		}
		auth.Credentials = &opened
		config.Authentication = &auth
	}

	return config, nil
}

// Set stores or replaces a push notification config for a task.
func (s *SQLPushNotificationConfigStore) Set(ctx context.Context, taskID string, config types.PushNotificationConfig) error {
	sealed, err := s.sealConfig(config)
	if err != nil {
		return NewInternalError("failed to encrypt push config", err)
	}

	payload, err := json.Marshal(sealed)
	if err != nil {
		return NewInternalError("failed to serialize push config", err)
	}

	if config.ID != nil {
		deleteQuery := fmt.Sprintf(
			"DELETE FROM %s WHERE task_id = ? AND config_id = ?", s.tableName)
		if _, err := s.db.ExecContext(ctx, deleteQuery, taskID, *config.ID); err != nil {
			return NewInternalError("failed to replace push config", err)
		}
	}

	var configID sql.NullString
	if config.ID != nil {
		configID = sql.NullString{String: *config.ID, Valid: true}
	}

	insertQuery := fmt.Sprintf(
		"INSERT INTO %s (task_id, config_id, config) VALUES (?, ?, ?)", s.tableName)
	if _, err := s.db.ExecContext(ctx, insertQuery, taskID, configID, string(payload)); err != nil {
		return NewInternalError("failed to save push config", err)
	}

	s.logger.Debug("push config stored",
		zap.String("task_id", taskID),
		zap.Bool("encrypted", s.cipher != nil))

	return nil
}

// Get retrieves all push notification configs for a task. Rows whose
// ciphertext cannot be opened are skipped with an error log so the remaining
// configs stay readable.
func (s *SQLPushNotificationConfigStore) Get(ctx context.Context, taskID string) ([]types.PushNotificationConfig, error) {
	query := fmt.Sprintf(
		"SELECT task_id, config_id, config FROM %s WHERE task_id = ?", s.tableName)

	var rows []pushConfigRow
	if err := s.db.SelectContext(ctx, &rows, query, taskID); err != nil {
		return nil, NewInternalError("failed to list push configs", err)
	}

	configs := make([]types.PushNotificationConfig, 0, len(rows))
	for _, row := range rows {
		var config types.PushNotificationConfig
		if err := json.Unmarshal([]byte(row.Config), &config); err != nil {
			return nil, NewInternalError("failed to deserialize push config", err)
		}

		opened, err := s.openConfig(config)
		if err != nil {
			internalErr := NewInternalError("failed to decrypt push config", err)
			s.logger.Error("skipping unreadable push config row",
				zap.String("task_id", taskID),
				zap.Error(internalErr))
			continue
		}

		configs = append(configs, opened)
	}

	return configs, nil
}

// Delete removes one config by id, or every config when configID is nil.
func (s *SQLPushNotificationConfigStore) Delete(ctx context.Context, taskID string, configID *string) error {
	var err error
	if configID == nil {
		query := fmt.Sprintf("DELETE FROM %s WHERE task_id = ?", s.tableName)
		_, err = s.db.ExecContext(ctx, query, taskID)
	} else {
		query := fmt.Sprintf("DELETE FROM %s WHERE task_id = ? AND config_id = ?", s.tableName)
		_, err = s.db.ExecContext(ctx, query, taskID, *configID)
	}

	if err != nil {
		return NewInternalError("failed to delete push configs", err)
	}

	return nil
}
