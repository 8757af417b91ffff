package client_test

import (
	"context"
	"net/http"
	"testing"

	assert "github.com/stretchr/testify/assert"
	require "github.com/stretchr/testify/require"
	zap "go.uber.org/zap"

	client "github.com/agentruntime/a2a/client"
	types "github.com/agentruntime/a2a/types"
)

func newAuthRequest(t *testing.T) *http.Request {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, "https://agent.example.com/a2a", nil)
	require.NoError(t, err)

	return req
}

func cardWithSchemes(schemes map[string]types.SecurityScheme, security []types.SecurityRequirement) *types.AgentCard {
	return &types.AgentCard{
		Name:            "secured-agent",
		Version:         "1.0.0",
		SecuritySchemes: schemes,
		Security:        security,
	}
}

func TestAuthInterceptor_Apply(t *testing.T) {
	ctx := context.Background()

	t.Run("card without security leaves the request untouched", func(t *testing.T) {
		interceptor := client.NewAuthInterceptor(
			cardWithSchemes(nil, nil),
			client.NewInMemoryCredentialService(nil),
			zap.NewNop())

		req := newAuthRequest(t)
		require.NoError(t, interceptor.Apply(ctx, req))
		assert.Empty(t, req.Header.Get("Authorization"))
	})

	t.Run("bearer scheme sets the authorization header", func(t *testing.T) {
		card := cardWithSchemes(
			map[string]types.SecurityScheme{
				"bearerAuth": {HTTP: &types.HTTPAuthSecurityScheme{Scheme: "bearer"}},
			},
			[]types.SecurityRequirement{{"bearerAuth": {}}})

		interceptor := client.NewAuthInterceptor(card,
			client.NewInMemoryCredentialService(map[string]string{"bearerAuth": "my-token"}),
			zap.NewNop())

		req := newAuthRequest(t)
		require.NoError(t, interceptor.Apply(ctx, req))
		assert.Equal(t, "Bearer my-token", req.Header.Get("Authorization"))
	})

	t.Run("api key schemes apply to header, query and cookie", func(t *testing.T) {
		card := cardWithSchemes(
			map[string]types.SecurityScheme{
				"headerKey": {APIKey: &types.APIKeySecurityScheme{Name: "X-API-Key", In: types.APIKeyLocationHeader}},
				"queryKey":  {APIKey: &types.APIKeySecurityScheme{Name: "api_key", In: types.APIKeyLocationQuery}},
				"cookieKey": {APIKey: &types.APIKeySecurityScheme{Name: "session", In: types.APIKeyLocationCookie}},
			},
			[]types.SecurityRequirement{{
				"headerKey": {},
				"queryKey":  {},
				"cookieKey": {},
			}})

		interceptor := client.NewAuthInterceptor(card,
			client.NewInMemoryCredentialService(map[string]string{
				"headerKey": "header-secret",
				"queryKey":  "query-secret",
				"cookieKey": "cookie-secret",
			}),
			zap.NewNop())

		req := newAuthRequest(t)
		require.NoError(t, interceptor.Apply(ctx, req))

		assert.Equal(t, "header-secret", req.Header.Get("X-API-Key"))
		assert.Equal(t, "query-secret", req.URL.Query().Get("api_key"))

		cookie, err := req.Cookie("session")
		require.NoError(t, err)
		assert.Equal(t, "cookie-secret", cookie.Value)
	})

	t.Run("first satisfiable group wins", func(t *testing.T) {
		card := cardWithSchemes(
			map[string]types.SecurityScheme{
				"oauth":  {OAuth2: &types.OAuth2SecurityScheme{}},
				"apiKey": {APIKey: &types.APIKeySecurityScheme{Name: "X-API-Key", In: types.APIKeyLocationHeader}},
			},
			[]types.SecurityRequirement{
				{"oauth": {"read"}},
				{"apiKey": {}},
			})

		interceptor := client.NewAuthInterceptor(card,
			client.NewInMemoryCredentialService(map[string]string{"apiKey": "fallback-key"}),
			zap.NewNop())

		req := newAuthRequest(t)
		require.NoError(t, interceptor.Apply(ctx, req))

		assert.Empty(t, req.Header.Get("Authorization"))
		assert.Equal(t, "fallback-key", req.Header.Get("X-API-Key"))
	})

	t.Run("partially satisfiable group leaves no trace", func(t *testing.T) {
		card := cardWithSchemes(
			map[string]types.SecurityScheme{
				"apiKey":     {APIKey: &types.APIKeySecurityScheme{Name: "X-API-Key", In: types.APIKeyLocationHeader}},
				"bearerAuth": {HTTP: &types.HTTPAuthSecurityScheme{Scheme: "bearer"}},
			},
			[]types.SecurityRequirement{
				{"apiKey": {}, "bearerAuth": {}},
				{"bearerAuth": {}},
			})

		interceptor := client.NewAuthInterceptor(card,
			client.NewInMemoryCredentialService(map[string]string{"bearerAuth": "my-token"}),
			zap.NewNop())

		req := newAuthRequest(t)
		require.NoError(t, interceptor.Apply(ctx, req))

		assert.Empty(t, req.Header.Get("X-API-Key"))
		assert.Equal(t, "Bearer my-token", req.Header.Get("Authorization"))
	})

	t.Run("no satisfiable group sends the request unchanged", func(t *testing.T) {
		card := cardWithSchemes(
			map[string]types.SecurityScheme{
				"bearerAuth": {HTTP: &types.HTTPAuthSecurityScheme{Scheme: "bearer"}},
			},
			[]types.SecurityRequirement{{"bearerAuth": {}}})

		interceptor := client.NewAuthInterceptor(card,
			client.NewInMemoryCredentialService(nil),
			zap.NewNop())

		req := newAuthRequest(t)
		require.NoError(t, interceptor.Apply(ctx, req))
		assert.Empty(t, req.Header.Get("Authorization"))
		assert.Empty(t, req.URL.RawQuery)
	})

	t.Run("undeclared scheme makes the group unsatisfiable", func(t *testing.T) {
		card := cardWithSchemes(nil, []types.SecurityRequirement{{"ghost": {}}})

		interceptor := client.NewAuthInterceptor(card,
			client.NewInMemoryCredentialService(map[string]string{"ghost": "value"}),
			zap.NewNop())

		req := newAuthRequest(t)
		require.NoError(t, interceptor.Apply(ctx, req))
		assert.Empty(t, req.Header.Get("Authorization"))
	})

	t.Run("mutual tls needs no credential", func(t *testing.T) {
		card := cardWithSchemes(
			map[string]types.SecurityScheme{
				"mtls": {MutualTLS: &types.MutualTLSSecurityScheme{}},
			},
			[]types.SecurityRequirement{{"mtls": {}}})

		interceptor := client.NewAuthInterceptor(card,
			client.NewInMemoryCredentialService(nil),
			zap.NewNop())

		req := newAuthRequest(t)
		require.NoError(t, interceptor.Apply(ctx, req))
		assert.Empty(t, req.Header.Get("Authorization"))
	})
}

func TestInMemoryCredentialService(t *testing.T) {
	ctx := context.Background()
	service := client.NewInMemoryCredentialService(map[string]string{"initial": "value"})

	credential, ok := service.GetCredential(ctx, "initial")
	assert.True(t, ok)
	assert.Equal(t, "value", credential)

	_, ok = service.GetCredential(ctx, "missing")
	assert.False(t, ok)

	service.SetCredential("added", "later")
	credential, ok = service.GetCredential(ctx, "added")
	assert.True(t, ok)
	assert.Equal(t, "later", credential)
}
