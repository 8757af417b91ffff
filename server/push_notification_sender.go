package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	zap "go.uber.org/zap"

	types "github.com/agentruntime/a2a/types"
)

// notificationTokenHeader carries the client-supplied validation token back
// to the webhook so it can verify the notification's origin.
const notificationTokenHeader = "X-A2A-Notification-Token"

// PushNotificationSender delivers task snapshots to every webhook registered
// for the task. Delivery is best effort: individual webhook failures are
// logged and never fail the originating operation.
type PushNotificationSender interface {
	// SendNotification posts the task to all configured webhooks
	SendNotification(ctx context.Context, task *types.Task) error
}

// HTTPPushNotificationSender implements PushNotificationSender over HTTP.
type HTTPPushNotificationSender struct {
	configStore PushNotificationConfigStore
	httpClient  *http.Client
	logger      *zap.Logger
}

var _ PushNotificationSender = (*HTTPPushNotificationSender)(nil)

// NewHTTPPushNotificationSender creates a webhook sender backed by the given
// config store.
func NewHTTPPushNotificationSender(configStore PushNotificationConfigStore, logger *zap.Logger) *HTTPPushNotificationSender {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &HTTPPushNotificationSender{
		configStore: configStore,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// SendNotification posts the task snapshot to every webhook registered for
// the task, concurrently. Returns an error only when the config store cannot
// be read.
func (s *HTTPPushNotificationSender) SendNotification(ctx context.Context, task *types.Task) error {
	if task == nil {
		return fmt.Errorf("task cannot be nil")
	}

	configs, err := s.configStore.Get(ctx, task.ID)
	if err != nil {
		return err
	}
	if len(configs) == 0 {
		return nil
	}

	payload, err := json.Marshal(task)
	if err != nil {
		return NewInternalError("failed to serialize task notification", err)
	}

	var wg sync.WaitGroup
	for _, config := range configs {
		wg.Add(1)
		go func(config types.PushNotificationConfig) {
			defer wg.Done()
			if err := s.post(ctx, config, task, payload); err != nil {
				s.logger.Warn("push notification delivery failed",
					zap.String("task_id", task.ID),
					zap.String("url", config.URL),
					zap.Error(err))
			}
		}(config)
	}
	wg.Wait()

	return nil
}

func (s *HTTPPushNotificationSender) post(ctx context.Context, config types.PushNotificationConfig, task *types.Task, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, config.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "A2A-Server/1.0")

	if config.Token != nil && *config.Token != "" {
		req.Header.Set(notificationTokenHeader, *config.Token)
	}

	if config.Authentication != nil && config.Authentication.Credentials != nil {
		for _, scheme := range config.Authentication.Schemes {
			switch scheme {
			case "bearer":
				req.Header.Set("Authorization", "Bearer "+*config.Authentication.Credentials)
			case "basic":
				req.Header.Set("Authorization", "Basic "+*config.Authentication.Credentials)
			}
		}
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send push notification: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			s.logger.Warn("failed to close webhook response body", zap.Error(closeErr))
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	s.logger.Info("push notification sent",
		zap.String("task_id", task.ID),
		zap.String("url", config.URL),
		zap.String("state", string(task.Status.State)),
		zap.Int("status_code", resp.StatusCode))

	return nil
}
