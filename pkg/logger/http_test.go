package logger

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSafeHeadersRedactsSensitiveValues(t *testing.T) {
	r := httptest.NewRequest("GET", "/v1/topics", nil)
	r.Header.Set("Authorization", "Bearer secret-token")
	r.Header.Set("X-API-Key", "sk-12345")
	r.Header.Set("Accept", "application/json")

	s := SafeHeaders(r)
	require.NotContains(t, s, "secret-token")
	require.NotContains(t, s, "sk-12345")
	require.Contains(t, s, "Authorization=<redacted>")
	require.Contains(t, s, "X-Api-Key=<redacted>")
	require.Contains(t, s, "Accept=application/json")
}
