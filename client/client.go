package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/agentruntime/a2a/types"
)

// A2AClient defines the interface for an A2A protocol client
type A2AClient interface {
	// Agent discovery
	GetAgentCard(ctx context.Context) (*types.AgentCard, error)
	GetAuthenticatedExtendedCard(ctx context.Context) (*types.AgentCard, error)
	GetHealth(ctx context.Context) (*HealthResponse, error)

	// Task operations
	SendMessage(ctx context.Context, params types.MessageSendParams) (*types.JSONRPCSuccessResponse, error)
	SendMessageStreaming(ctx context.Context, params types.MessageSendParams, events chan<- types.Event) error
	GetTask(ctx context.Context, params types.TaskQueryParams) (*types.Task, error)
	CancelTask(ctx context.Context, params types.TaskIdParams) (*types.Task, error)
	Resubscribe(ctx context.Context, params types.TaskIdParams, events chan<- types.Event) error

	// Push notification configuration
	SetPushNotificationConfig(ctx context.Context, params types.TaskPushNotificationConfig) (*types.TaskPushNotificationConfig, error)
	GetPushNotificationConfig(ctx context.Context, params types.GetTaskPushNotificationConfigParams) (*types.TaskPushNotificationConfig, error)
	ListPushNotificationConfigs(ctx context.Context, params types.TaskIdParams) ([]types.TaskPushNotificationConfig, error)
	DeletePushNotificationConfig(ctx context.Context, params types.DeleteTaskPushNotificationConfigParams) error

	// Configuration
	SetTimeout(timeout time.Duration)
	SetHTTPClient(client *http.Client)
	GetBaseURL() string
}

var _ A2AClient = (*Client)(nil)

// HealthResponse represents the response from the health endpoint
type HealthResponse struct {
	Status string `json:"status"`
}

// Config holds configuration options for the A2A client
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	HTTPClient  *http.Client
	UserAgent   string
	Headers     map[string]string
	MaxRetries  int
	RetryDelay  time.Duration
	Logger      *zap.Logger
	Interceptor *AuthInterceptor
}

// DefaultConfig returns a default configuration
func DefaultConfig(baseURL string) *Config {
	return &Config{
		BaseURL:    baseURL,
		Timeout:    30 * time.Second,
		UserAgent:  "A2A-Go-Client/1.0",
		Headers:    make(map[string]string),
		MaxRetries: 3,
		RetryDelay: 1 * time.Second,
		Logger:     zap.NewNop(),
	}
}

// Client represents an A2A protocol client
type Client struct {
	config     *Config
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a new A2A client with default configuration
func NewClient(baseURL string) A2AClient {
	return NewClientWithConfig(DefaultConfig(baseURL))
}

// NewClientWithConfig creates a new A2A client with custom configuration
func NewClientWithConfig(config *Config) A2AClient {
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: config.Timeout,
		}
	}

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
		logger:     logger,
	}
}

// getA2AEndpointURL constructs the A2A endpoint URL by appending /a2a to the base URL
func (c *Client) getA2AEndpointURL() string {
	baseURL := c.config.BaseURL

	if strings.HasSuffix(baseURL, "/a2a") {
		return baseURL
	}

	if strings.HasSuffix(baseURL, "/") {
		return baseURL + "a2a"
	}
	return baseURL + "/a2a"
}

func newRequest(method string, params any) (types.JSONRPCRequest, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return types.JSONRPCRequest{}, fmt.Errorf("failed to marshal params: %w", err)
	}

	var id any = generateRequestID()
	return types.JSONRPCRequest{
		JSONRPC: "2.0",
		ID:      &id,
		Method:  method,
		Params:  raw,
	}, nil
}

// requestCounter is shared by every client in the process; ids stay unique
// under concurrent sends.
var requestCounter atomic.Int64

func generateRequestID() int64 {
	return requestCounter.Add(1)
}

// SendMessage sends a message to the agent and returns the raw JSON-RPC
// response. The result is a task snapshot or an immediate agent message.
func (c *Client) SendMessage(ctx context.Context, params types.MessageSendParams) (*types.JSONRPCSuccessResponse, error) {
	c.logger.Debug("sending message",
		zap.String("method", "message/send"),
		zap.String("message_id", params.Message.MessageID))

	req, err := newRequest("message/send", params)
	if err != nil {
		return nil, err
	}

	var resp types.JSONRPCSuccessResponse
	if err := c.doRequestWithContext(ctx, req, &resp); err != nil {
		c.logger.Error("failed to send message", zap.Error(err), zap.String("message_id", params.Message.MessageID))
		return nil, err
	}

	return &resp, nil
}

// SendMessageStreaming sends a message and forwards decoded events to the
// given channel until the stream closes.
func (c *Client) SendMessageStreaming(ctx context.Context, params types.MessageSendParams, events chan<- types.Event) error {
	c.logger.Debug("starting message stream",
		zap.String("method", "message/stream"),
		zap.String("message_id", params.Message.MessageID))

	req, err := newRequest("message/stream", params)
	if err != nil {
		return err
	}

	return c.streamRequest(ctx, req, events)
}

// Resubscribe reattaches to an ongoing task's event stream.
func (c *Client) Resubscribe(ctx context.Context, params types.TaskIdParams, events chan<- types.Event) error {
	c.logger.Debug("resubscribing to task",
		zap.String("method", "tasks/resubscribe"),
		zap.String("task_id", params.ID))

	req, err := newRequest("tasks/resubscribe", params)
	if err != nil {
		return err
	}

	return c.streamRequest(ctx, req, events)
}

func (c *Client) streamRequest(ctx context.Context, req types.JSONRPCRequest, events chan<- types.Event) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.getA2AEndpointURL(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if err := c.setHeaders(ctx, httpReq); err != nil {
		return err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		if closeErr := httpResp.Body.Close(); closeErr != nil {
			c.logger.Warn("failed to close response body", zap.Error(closeErr))
		}
	}()

	if httpResp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", httpResp.StatusCode)
	}

	// Non-SSE body means the server rejected the stream with a JSON-RPC
	// error before any event was produced.
	if !strings.HasPrefix(httpResp.Header.Get("Content-Type"), "text/event-stream") {
		var errResp types.JSONRPCErrorResponse
		if err := json.NewDecoder(httpResp.Body).Decode(&errResp); err == nil && errResp.Error != nil {
			return fmt.Errorf("A2A error: %s (code: %d)", errResp.Error.Message, errResp.Error.Code)
		}
		return fmt.Errorf("unexpected non-stream response")
	}

	scanner := bufio.NewScanner(httpResp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	eventCount := 0
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Text()
		if line == "" || !strings.HasPrefix(line, "data: ") {
			continue
		}

		jsonData := strings.TrimPrefix(line, "data: ")

		var frame struct {
			Result json.RawMessage `json:"result"`
		}
		if err := json.Unmarshal([]byte(jsonData), &frame); err != nil {
			return fmt.Errorf("failed to decode event frame: %w", err)
		}

		event, err := types.UnmarshalEvent(frame.Result)
		if err != nil {
			return fmt.Errorf("failed to decode event: %w", err)
		}

		eventCount++
		select {
		case events <- event:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to scan response: %w", err)
	}

	c.logger.Debug("streaming completed", zap.Int("events_received", eventCount))
	return nil
}

// GetTask retrieves the current snapshot of a task.
func (c *Client) GetTask(ctx context.Context, params types.TaskQueryParams) (*types.Task, error) {
	c.logger.Debug("retrieving task", zap.String("method", "tasks/get"), zap.String("task_id", params.ID))

	req, err := newRequest("tasks/get", params)
	if err != nil {
		return nil, err
	}

	var task types.Task
	if err := c.callAndDecode(ctx, req, &task); err != nil {
		return nil, err
	}

	return &task, nil
}

// CancelTask requests cancellation of a task.
func (c *Client) CancelTask(ctx context.Context, params types.TaskIdParams) (*types.Task, error) {
	c.logger.Debug("cancelling task", zap.String("method", "tasks/cancel"), zap.String("task_id", params.ID))

	req, err := newRequest("tasks/cancel", params)
	if err != nil {
		return nil, err
	}

	var task types.Task
	if err := c.callAndDecode(ctx, req, &task); err != nil {
		return nil, err
	}

	return &task, nil
}

// SetPushNotificationConfig registers a webhook for a task.
func (c *Client) SetPushNotificationConfig(ctx context.Context, params types.TaskPushNotificationConfig) (*types.TaskPushNotificationConfig, error) {
	req, err := newRequest("tasks/pushNotificationConfig/set", params)
	if err != nil {
		return nil, err
	}

	var result types.TaskPushNotificationConfig
	if err := c.callAndDecode(ctx, req, &result); err != nil {
		return nil, err
	}

	return &result, nil
}

// GetPushNotificationConfig retrieves a webhook config for a task.
func (c *Client) GetPushNotificationConfig(ctx context.Context, params types.GetTaskPushNotificationConfigParams) (*types.TaskPushNotificationConfig, error) {
	req, err := newRequest("tasks/pushNotificationConfig/get", params)
	if err != nil {
		return nil, err
	}

	var result types.TaskPushNotificationConfig
	if err := c.callAndDecode(ctx, req, &result); err != nil {
		return nil, err
	}

	return &result, nil
}

// ListPushNotificationConfigs retrieves every webhook config for a task.
func (c *Client) ListPushNotificationConfigs(ctx context.Context, params types.TaskIdParams) ([]types.TaskPushNotificationConfig, error) {
	req, err := newRequest("tasks/pushNotificationConfig/list", params)
	if err != nil {
		return nil, err
	}

	var result []types.TaskPushNotificationConfig
	if err := c.callAndDecode(ctx, req, &result); err != nil {
		return nil, err
	}

	return result, nil
}

// DeletePushNotificationConfig removes a webhook config from a task.
func (c *Client) DeletePushNotificationConfig(ctx context.Context, params types.DeleteTaskPushNotificationConfigParams) error {
	req, err := newRequest("tasks/pushNotificationConfig/delete", params)
	if err != nil {
		return err
	}

	var resp types.JSONRPCSuccessResponse
	return c.doRequestWithContext(ctx, req, &resp)
}

// GetAuthenticatedExtendedCard retrieves the extended agent card over
// JSON-RPC; credentials are applied by the configured interceptor.
func (c *Client) GetAuthenticatedExtendedCard(ctx context.Context) (*types.AgentCard, error) {
	req, err := newRequest("agent/authenticatedExtendedCard", struct{}{})
	if err != nil {
		return nil, err
	}

	var card types.AgentCard
	if err := c.callAndDecode(ctx, req, &card); err != nil {
		return nil, err
	}

	return &card, nil
}

// GetAgentCard retrieves the agent card information via HTTP GET to .well-known/agent.json
func (c *Client) GetAgentCard(ctx context.Context) (*types.AgentCard, error) {
	c.logger.Debug("retrieving agent card", zap.String("endpoint", "/.well-known/agent.json"))

	var agentCard types.AgentCard
	if err := c.getJSON(ctx, c.config.BaseURL+"/.well-known/agent.json", &agentCard); err != nil {
		return nil, err
	}

	c.logger.Debug("agent card retrieved successfully",
		zap.String("name", agentCard.Name),
		zap.String("version", agentCard.Version))
	return &agentCard, nil
}

// GetHealth retrieves the health status of the agent via HTTP GET to /health
func (c *Client) GetHealth(ctx context.Context) (*HealthResponse, error) {
	var healthResp HealthResponse
	if err := c.getJSON(ctx, c.config.BaseURL+"/health", &healthResp); err != nil {
		return nil, err
	}

	if healthResp.Status == "" {
		return nil, fmt.Errorf("health response missing status field")
	}

	return &healthResp, nil
}

func (c *Client) getJSON(ctx context.Context, url string, target any) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.config.UserAgent)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		if closeErr := httpResp.Body.Close(); closeErr != nil {
			c.logger.Warn("failed to close response body", zap.Error(closeErr))
		}
	}()

	if httpResp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(httpResp.Body)
		return fmt.Errorf("unexpected status code: %d, body: %s", httpResp.StatusCode, string(bodyBytes))
	}

	if err := json.NewDecoder(httpResp.Body).Decode(target); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// callAndDecode performs a JSON-RPC call and decodes the result into target.
func (c *Client) callAndDecode(ctx context.Context, req types.JSONRPCRequest, target any) error {
	var resp types.JSONRPCSuccessResponse
	if err := c.doRequestWithContext(ctx, req, &resp); err != nil {
		return err
	}

	raw, ok := resp.Result.(json.RawMessage)
	if !ok {
		return fmt.Errorf("missing result in response")
	}

	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("failed to decode result: %w", err)
	}

	return nil
}

// doRequestWithContext performs the HTTP request with retries and handles
// the JSON-RPC response envelope.
func (c *Client) doRequestWithContext(ctx context.Context, req types.JSONRPCRequest, resp *types.JSONRPCSuccessResponse) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	var httpResp *http.Response
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.getA2AEndpointURL(), bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		if err := c.setHeaders(ctx, httpReq); err != nil {
			return err
		}

		httpResp, err = c.httpClient.Do(httpReq)
		if err == nil {
			break
		}
		lastErr = err
		c.logger.Warn("request failed",
			zap.String("method", req.Method),
			zap.Int("attempt", attempt+1),
			zap.Error(err))

		if attempt < c.config.MaxRetries {
			delay := c.config.RetryDelay * time.Duration(attempt+1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	if httpResp == nil {
		return fmt.Errorf("failed to send request after %d attempts: %w", c.config.MaxRetries+1, lastErr)
	}
	defer func() {
		if closeErr := httpResp.Body.Close(); closeErr != nil {
			c.logger.Warn("failed to close response body", zap.Error(closeErr))
		}
	}()

	if httpResp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(httpResp.Body)
		return fmt.Errorf("unexpected status code: %d, body: %s", httpResp.StatusCode, string(bodyBytes))
	}

	var rawResp struct {
		JSONRPC string              `json:"jsonrpc"`
		ID      any                 `json:"id,omitempty"`
		Result  json.RawMessage     `json:"result,omitempty"`
		Error   *types.JSONRPCError `json:"error,omitempty"`
	}

	if err := json.NewDecoder(httpResp.Body).Decode(&rawResp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if rawResp.Error != nil {
		c.logger.Error("received A2A error response",
			zap.String("error_message", rawResp.Error.Message),
			zap.Int("error_code", rawResp.Error.Code))
		return fmt.Errorf("A2A error: %s (code: %d)", rawResp.Error.Message, rawResp.Error.Code)
	}

	resp.JSONRPC = rawResp.JSONRPC
	resp.ID = rawResp.ID
	if len(rawResp.Result) > 0 {
		resp.Result = rawResp.Result
	}

	return nil
}

// setHeaders sets common headers and lets the auth interceptor apply the
// agent card's security requirements.
func (c *Client) setHeaders(ctx context.Context, req *http.Request) error {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)

	for key, value := range c.config.Headers {
		req.Header.Set(key, value)
	}

	if c.config.Interceptor != nil {
		if err := c.config.Interceptor.Apply(ctx, req); err != nil {
			return err
		}
	}

	return nil
}

// SetHTTPClient allows customizing the HTTP client
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
	c.config.HTTPClient = client
}

// SetTimeout sets the timeout for HTTP requests
func (c *Client) SetTimeout(timeout time.Duration) {
	c.config.Timeout = timeout
	if c.httpClient != nil {
		c.httpClient.Timeout = timeout
	}
}

// GetBaseURL returns the base URL of the client
func (c *Client) GetBaseURL() string {
	return c.config.BaseURL
}
