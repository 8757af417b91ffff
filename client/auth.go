package client

import (
	"context"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/agentruntime/a2a/types"
)

// CredentialService resolves a credential for a named security scheme. The
// credential is scheme-shaped: a bearer token for http/oauth2/openIdConnect
// schemes, the key value for apiKey schemes, the encoded user:password pair
// for http basic.
type CredentialService interface {
	// GetCredential returns the credential for a scheme name, or ok=false
	// when none is configured
	GetCredential(ctx context.Context, schemeName string) (credential string, ok bool)
}

// InMemoryCredentialService implements CredentialService with a static map
// guarded by a reader/writer lock.
type InMemoryCredentialService struct {
	mu          sync.RWMutex
	credentials map[string]string
}

var _ CredentialService = (*InMemoryCredentialService)(nil)

// NewInMemoryCredentialService creates a credential service from a scheme
// name to credential map.
func NewInMemoryCredentialService(credentials map[string]string) *InMemoryCredentialService {
	creds := make(map[string]string, len(credentials))
	for name, value := range credentials {
		creds[name] = value
	}

	return &InMemoryCredentialService{credentials: creds}
}

// SetCredential stores or replaces the credential for a scheme name.
func (s *InMemoryCredentialService) SetCredential(schemeName, credential string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credentials[schemeName] = credential
}

// GetCredential returns the credential for a scheme name.
func (s *InMemoryCredentialService) GetCredential(ctx context.Context, schemeName string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	credential, ok := s.credentials[schemeName]
	return credential, ok
}

// AuthInterceptor applies an agent card's security requirements to outgoing
// requests. The card's security groups are tried in declaration order; the
// first group whose schemes can all be satisfied from the credential service
// is applied in full. Requirements within a group are conjunctive.
type AuthInterceptor struct {
	card        *types.AgentCard
	credentials CredentialService
	logger      *zap.Logger
}

// NewAuthInterceptor creates an interceptor for the given card and
// credential service.
func NewAuthInterceptor(card *types.AgentCard, credentials CredentialService, logger *zap.Logger) *AuthInterceptor {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &AuthInterceptor{
		card:        card,
		credentials: credentials,
		logger:      logger,
	}
}

// Apply attaches credentials for the first satisfiable security group. A
// card without security requirements leaves the request untouched. When no
// group can be satisfied the request also goes out unchanged; the server
// rejects unauthenticated calls, the client does not guess.
func (i *AuthInterceptor) Apply(ctx context.Context, req *http.Request) error {
	if i.card == nil || len(i.card.Security) == 0 {
		return nil
	}

	for _, group := range i.card.Security {
		if i.applyGroup(ctx, req, group) {
			return nil
		}
	}

	i.logger.Debug("no security requirement group could be satisfied, sending request unauthenticated")
	return nil
}

// applyGroup checks that every scheme in the group is satisfiable before
// mutating the request, so a partially-applicable group leaves no trace.
func (i *AuthInterceptor) applyGroup(ctx context.Context, req *http.Request, group types.SecurityRequirement) bool {
	type pending struct {
		scheme     types.SecurityScheme
		credential string
	}

	applications := make([]pending, 0, len(group))
	for schemeName := range group {
		scheme, exists := i.card.SecuritySchemes[schemeName]
		if !exists {
			i.logger.Warn("security scheme not declared in agent card",
				zap.String("scheme", schemeName))
			return false
		}

		// mTLS is established at the transport layer; nothing to attach.
		if scheme.Type() == types.SecuritySchemeTypeMutualTLS {
			applications = append(applications, pending{scheme: scheme})
			continue
		}

		credential, ok := i.credentials.GetCredential(ctx, schemeName)
		if !ok {
			i.logger.Debug("no credential configured for scheme",
				zap.String("scheme", schemeName))
			return false
		}

		applications = append(applications, pending{scheme: scheme, credential: credential})
	}

	for _, application := range applications {
		i.applyScheme(req, application.scheme, application.credential)
	}

	return true
}

func (i *AuthInterceptor) applyScheme(req *http.Request, scheme types.SecurityScheme, credential string) {
	switch scheme.Type() {
	case types.SecuritySchemeTypeHTTP:
		switch scheme.HTTP.Scheme {
		case "bearer":
			req.Header.Set("Authorization", "Bearer "+credential)
		case "basic":
			req.Header.Set("Authorization", "Basic "+credential)
		default:
			req.Header.Set("Authorization", scheme.HTTP.Scheme+" "+credential)
		}

	case types.SecuritySchemeTypeAPIKey:
		switch scheme.APIKey.In {
		case types.APIKeyLocationHeader:
			req.Header.Set(scheme.APIKey.Name, credential)
		case types.APIKeyLocationQuery:
			query := req.URL.Query()
			query.Set(scheme.APIKey.Name, credential)
			req.URL.RawQuery = query.Encode()
		case types.APIKeyLocationCookie:
			req.AddCookie(&http.Cookie{Name: scheme.APIKey.Name, Value: credential})
		}

	case types.SecuritySchemeTypeOAuth2, types.SecuritySchemeTypeOpenIDConnect:
		req.Header.Set("Authorization", "Bearer "+credential)

	case types.SecuritySchemeTypeMutualTLS:
		// Client certificates are configured on the HTTP transport.
	}
}
