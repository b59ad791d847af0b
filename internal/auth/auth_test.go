package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr bool
	}{
		{"bearer", "Bearer abc", "abc", false},
		{"padded", "Bearer   abc  ", "abc", false},
		{"missing", "", "", true},
		{"basic", "Basic abc", "", true},
		{"blank", "Bearer   ", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "http://example.test", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			got, err := ExtractBearerToken(req)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAuthenticate(t *testing.T) {
	tokens := []TokenConfig{
		{Token: "reader-token", UserID: "u-read", Scopes: []string{ScopeApplicationsRead}},
		{Token: "writer-token", UserID: "u-write", Scopes: []string{" applications:rw ", ""}},
		{Token: "admin-token", UserID: "u-admin", Scopes: []string{ScopeAll}},
	}

	p, ok := Authenticate("writer-token", tokens)
	require.True(t, ok)
	assert.Equal(t, "u-write", p.UserID)
	assert.True(t, HasAnyScope(p, ScopeApplicationsRead), "write implies read")
	assert.True(t, HasAnyScope(p, ScopeApplicationsWrite))

	p, ok = Authenticate("reader-token", tokens)
	require.True(t, ok)
	assert.False(t, HasAnyScope(p, ScopeApplicationsWrite))

	p, ok = Authenticate("admin-token", tokens)
	require.True(t, ok)
	assert.True(t, HasAnyScope(p, "anything"))

	_, ok = Authenticate("writer-toke", tokens)
	assert.False(t, ok)
	_, ok = Authenticate("", []TokenConfig{{Token: ""}})
	assert.False(t, ok, "empty tokens never match")
}

func TestPrincipalContext(t *testing.T) {
	_, ok := PrincipalFromContext(context.Background())
	assert.False(t, ok)

	ctx := WithPrincipal(context.Background(), Principal{UserID: "u-1"})
	p, ok := PrincipalFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "u-1", p.UserID)
	assert.True(t, HasAnyScope(p), "no requirement")
}
