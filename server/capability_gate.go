package server

import (
	"context"

	types "github.com/agentruntime/a2a/types"
)

// CapabilityGate wraps a RequestHandler and rejects operations the agent card
// does not advertise: streaming methods when capabilities.streaming is off,
// push config registration when capabilities.pushNotifications is off, and
// the extended card when the card does not declare it. Reads of existing push
// configs pass through so a client can always inspect what it registered.
type CapabilityGate struct {
	handler RequestHandler
	card    types.AgentCard
}

var _ RequestHandler = (*CapabilityGate)(nil)

// NewCapabilityGate wraps a handler with the card's capability checks.
func NewCapabilityGate(handler RequestHandler, card types.AgentCard) *CapabilityGate {
	return &CapabilityGate{handler: handler, card: card}
}

// OnMessageSend passes through; plain sends are always supported.
func (g *CapabilityGate) OnMessageSend(ctx context.Context, params types.MessageSendParams) (types.Event, error) {
	return g.handler.OnMessageSend(ctx, params)
}

// OnMessageStream requires the streaming capability.
func (g *CapabilityGate) OnMessageStream(ctx context.Context, params types.MessageSendParams) (<-chan types.Event, error) {
	if !g.card.SupportsStreaming() {
		return nil, NewUnsupportedOperationError("Streaming is not supported by the agent")
	}
	return g.handler.OnMessageStream(ctx, params)
}

// OnGetTask passes through.
func (g *CapabilityGate) OnGetTask(ctx context.Context, params types.TaskQueryParams) (*types.Task, error) {
	return g.handler.OnGetTask(ctx, params)
}

// OnCancelTask passes through.
func (g *CapabilityGate) OnCancelTask(ctx context.Context, params types.TaskIdParams) (*types.Task, error) {
	return g.handler.OnCancelTask(ctx, params)
}

// OnResubscribe requires the streaming capability.
func (g *CapabilityGate) OnResubscribe(ctx context.Context, params types.TaskIdParams) (<-chan types.Event, error) {
	if !g.card.SupportsStreaming() {
		return nil, NewUnsupportedOperationError("Streaming is not supported by the agent")
	}
	return g.handler.OnResubscribe(ctx, params)
}

// OnSetTaskPushNotificationConfig requires the push notification capability.
func (g *CapabilityGate) OnSetTaskPushNotificationConfig(ctx context.Context, params types.TaskPushNotificationConfig) (*types.TaskPushNotificationConfig, error) {
	if !g.card.SupportsPushNotifications() {
		return nil, NewPushNotificationNotSupportedError()
	}
	return g.handler.OnSetTaskPushNotificationConfig(ctx, params)
}

// OnGetTaskPushNotificationConfig passes through so previously registered
// configs stay readable even if the capability is later disabled.
func (g *CapabilityGate) OnGetTaskPushNotificationConfig(ctx context.Context, params types.GetTaskPushNotificationConfigParams) (*types.TaskPushNotificationConfig, error) {
	return g.handler.OnGetTaskPushNotificationConfig(ctx, params)
}

// OnListTaskPushNotificationConfig passes through.
func (g *CapabilityGate) OnListTaskPushNotificationConfig(ctx context.Context, params types.TaskIdParams) ([]types.TaskPushNotificationConfig, error) {
	return g.handler.OnListTaskPushNotificationConfig(ctx, params)
}

// OnDeleteTaskPushNotificationConfig passes through.
func (g *CapabilityGate) OnDeleteTaskPushNotificationConfig(ctx context.Context, params types.DeleteTaskPushNotificationConfigParams) error {
	return g.handler.OnDeleteTaskPushNotificationConfig(ctx, params)
}

// OnGetAuthenticatedExtendedCard requires the card to declare extended card
// support.
func (g *CapabilityGate) OnGetAuthenticatedExtendedCard(ctx context.Context) (*types.AgentCard, error) {
	if !g.card.SupportsExtendedCard() {
		return nil, NewAuthenticatedExtendedCardNotSupportedError()
	}
	return g.handler.OnGetAuthenticatedExtendedCard(ctx)
}
