package types

import (
	"encoding/json"
	"fmt"
)

// SecuritySchemeType discriminates the SecurityScheme union.
type SecuritySchemeType string

// SecuritySchemeType enum values, OpenAPI-compatible
const (
	SecuritySchemeTypeAPIKey        SecuritySchemeType = "apiKey"
	SecuritySchemeTypeHTTP          SecuritySchemeType = "http"
	SecuritySchemeTypeOAuth2        SecuritySchemeType = "oauth2"
	SecuritySchemeTypeOpenIDConnect SecuritySchemeType = "openIdConnect"
	SecuritySchemeTypeMutualTLS     SecuritySchemeType = "mutualTLS"
)

// APIKeyLocation enum values for APIKeySecurityScheme.In
const (
	APIKeyLocationHeader = "header"
	APIKeyLocationQuery  = "query"
	APIKeyLocationCookie = "cookie"
)

// APIKeySecurityScheme defines a security scheme using an API key.
type APIKeySecurityScheme struct {
	Name        string  `json:"name"`
	In          string  `json:"in"`
	Description *string `json:"description,omitempty"`
}

// HTTPAuthSecurityScheme defines a security scheme using HTTP authentication.
type HTTPAuthSecurityScheme struct {
	Scheme       string  `json:"scheme"`
	BearerFormat *string `json:"bearerFormat,omitempty"`
	Description  *string `json:"description,omitempty"`
}

// AuthorizationCodeOAuthFlow configures the OAuth 2.0 Authorization Code flow.
type AuthorizationCodeOAuthFlow struct {
	AuthorizationURL string            `json:"authorizationUrl"`
	TokenURL         string            `json:"tokenUrl"`
	RefreshURL       *string           `json:"refreshUrl,omitempty"`
	Scopes           map[string]string `json:"scopes"`
}

// ClientCredentialsOAuthFlow configures the OAuth 2.0 Client Credentials flow.
type ClientCredentialsOAuthFlow struct {
	TokenURL   string            `json:"tokenUrl"`
	RefreshURL *string           `json:"refreshUrl,omitempty"`
	Scopes     map[string]string `json:"scopes"`
}

// ImplicitOAuthFlow configures the OAuth 2.0 Implicit flow.
type ImplicitOAuthFlow struct {
	AuthorizationURL string            `json:"authorizationUrl"`
	RefreshURL       *string           `json:"refreshUrl,omitempty"`
	Scopes           map[string]string `json:"scopes"`
}

// PasswordOAuthFlow configures the OAuth 2.0 Resource Owner Password flow.
type PasswordOAuthFlow struct {
	TokenURL   string            `json:"tokenUrl"`
	RefreshURL *string           `json:"refreshUrl,omitempty"`
	Scopes     map[string]string `json:"scopes"`
}

// OAuthFlows holds the configuration of the supported OAuth 2.0 flows.
type OAuthFlows struct {
	AuthorizationCode *AuthorizationCodeOAuthFlow `json:"authorizationCode,omitempty"`
	ClientCredentials *ClientCredentialsOAuthFlow `json:"clientCredentials,omitempty"`
	Implicit          *ImplicitOAuthFlow          `json:"implicit,omitempty"`
	Password          *PasswordOAuthFlow          `json:"password,omitempty"`
}

// OAuth2SecurityScheme defines a security scheme using OAuth 2.0.
type OAuth2SecurityScheme struct {
	Flows       OAuthFlows `json:"flows"`
	Description *string    `json:"description,omitempty"`
}

// OpenIDConnectSecurityScheme defines a security scheme using OpenID Connect.
type OpenIDConnectSecurityScheme struct {
	OpenIDConnectURL string  `json:"openIdConnectUrl"`
	Description      *string `json:"description,omitempty"`
}

// MutualTLSSecurityScheme defines a security scheme using mTLS. Credential
// handling happens at the transport layer, not per request.
type MutualTLSSecurityScheme struct {
	Description *string `json:"description,omitempty"`
}

// SecurityScheme is a discriminated union over the OpenAPI security scheme
// kinds, tagged on the wire by the "type" field. Exactly one member is set.
type SecurityScheme struct {
	APIKey        *APIKeySecurityScheme
	HTTP          *HTTPAuthSecurityScheme
	OAuth2        *OAuth2SecurityScheme
	OpenIDConnect *OpenIDConnectSecurityScheme
	MutualTLS     *MutualTLSSecurityScheme
}

// Type returns the discriminator of the populated member.
func (s SecurityScheme) Type() SecuritySchemeType {
	switch {
	case s.APIKey != nil:
		return SecuritySchemeTypeAPIKey
	case s.HTTP != nil:
		return SecuritySchemeTypeHTTP
	case s.OAuth2 != nil:
		return SecuritySchemeTypeOAuth2
	case s.OpenIDConnect != nil:
		return SecuritySchemeTypeOpenIDConnect
	case s.MutualTLS != nil:
		return SecuritySchemeTypeMutualTLS
	default:
		return ""
	}
}

// MarshalJSON flattens the populated member and injects the type tag.
func (s SecurityScheme) MarshalJSON() ([]byte, error) {
	var inner any
	schemeType := s.Type()

	switch schemeType {
	case SecuritySchemeTypeAPIKey:
		inner = s.APIKey
	case SecuritySchemeTypeHTTP:
		inner = s.HTTP
	case SecuritySchemeTypeOAuth2:
		inner = s.OAuth2
	case SecuritySchemeTypeOpenIDConnect:
		inner = s.OpenIDConnect
	case SecuritySchemeTypeMutualTLS:
		inner = s.MutualTLS
	default:
		return nil, fmt.Errorf("security scheme has no member set")
	}

	raw, err := json.Marshal(inner)
	if err != nil {
		return nil, err
	}

	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	fields["type"] = string(schemeType)

	return json.Marshal(fields)
}

// UnmarshalJSON selects the member to populate from the type tag.
func (s *SecurityScheme) UnmarshalJSON(data []byte) error {
	var tag struct {
		Type SecuritySchemeType `json:"type"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return err
	}

	*s = SecurityScheme{}

	switch tag.Type {
	case SecuritySchemeTypeAPIKey:
		s.APIKey = &APIKeySecurityScheme{}
		return json.Unmarshal(data, s.APIKey)
	case SecuritySchemeTypeHTTP:
		s.HTTP = &HTTPAuthSecurityScheme{}
		return json.Unmarshal(data, s.HTTP)
	case SecuritySchemeTypeOAuth2:
		s.OAuth2 = &OAuth2SecurityScheme{}
		return json.Unmarshal(data, s.OAuth2)
	case SecuritySchemeTypeOpenIDConnect:
		s.OpenIDConnect = &OpenIDConnectSecurityScheme{}
		return json.Unmarshal(data, s.OpenIDConnect)
	case SecuritySchemeTypeMutualTLS:
		s.MutualTLS = &MutualTLSSecurityScheme{}
		return json.Unmarshal(data, s.MutualTLS)
	default:
		return fmt.Errorf("unsupported security scheme type: %q", tag.Type)
	}
}
