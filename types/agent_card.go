package types

// AgentProvider represents the service provider of an agent.
type AgentProvider struct {
	Organization string `json:"organization"`
	URL          string `json:"url"`
}

// AgentCapabilities declares the optional protocol features an agent supports.
type AgentCapabilities struct {
	Streaming              *bool `json:"streaming,omitempty"`
	PushNotifications      *bool `json:"pushNotifications,omitempty"`
	StateTransitionHistory *bool `json:"stateTransitionHistory,omitempty"`
}

// AgentSkill represents a distinct capability or function an agent can perform.
type AgentSkill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	Examples    []string `json:"examples,omitempty"`
	InputModes  []string `json:"inputModes,omitempty"`
	OutputModes []string `json:"outputModes,omitempty"`
}

// SecurityRequirement maps a security scheme id to the list of scopes required
// from it. A requirement is satisfied only when every named scheme is
// satisfied; a card's security list is a disjunction of requirements.
type SecurityRequirement map[string][]string

// AgentCard is a self-describing manifest for an agent: identity, supported
// modes, capabilities, skills and security requirements. The capability gate,
// the client auth interceptor and the extended-card endpoint all read from
// this one structure.
type AgentCard struct {
	Name                              string                    `json:"name"`
	Description                       string                    `json:"description"`
	URL                               string                    `json:"url"`
	Version                           string                    `json:"version"`
	DocumentationURL                  *string                   `json:"documentationUrl,omitempty"`
	IconURL                           *string                   `json:"iconUrl,omitempty"`
	Provider                          *AgentProvider            `json:"provider,omitempty"`
	Capabilities                      AgentCapabilities         `json:"capabilities"`
	DefaultInputModes                 []string                  `json:"defaultInputModes"`
	DefaultOutputModes                []string                  `json:"defaultOutputModes"`
	Skills                            []AgentSkill              `json:"skills"`
	SecuritySchemes                   map[string]SecurityScheme `json:"securitySchemes,omitempty"`
	Security                          []SecurityRequirement     `json:"security,omitempty"`
	SupportsAuthenticatedExtendedCard *bool                     `json:"supportsAuthenticatedExtendedCard,omitempty"`
}

// SupportsStreaming reports whether the card advertises streaming support.
func (c *AgentCard) SupportsStreaming() bool {
	return c.Capabilities.Streaming != nil && *c.Capabilities.Streaming
}

// SupportsPushNotifications reports whether the card advertises push
// notification support.
func (c *AgentCard) SupportsPushNotifications() bool {
	return c.Capabilities.PushNotifications != nil && *c.Capabilities.PushNotifications
}

// SupportsExtendedCard reports whether the card advertises an authenticated
// extended card.
func (c *AgentCard) SupportsExtendedCard() bool {
	return c.SupportsAuthenticatedExtendedCard != nil && *c.SupportsAuthenticatedExtendedCard
}
