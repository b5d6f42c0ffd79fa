package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertJSONResponse checks the status and content type, then decodes the body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int) map[string]interface{} {
	t.Helper()
	require.Equal(t, expectedStatus, w.Code, "body: %s", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")

	var result map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result), "body: %s", w.Body.String())
	return result
}

// AssertJSONError checks for an {"error": ...} body containing expectedMsg
func AssertJSONError(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedMsg string) {
	t.Helper()
	result := AssertJSONResponse(t, w, expectedStatus)
	errMsg, ok := result["error"].(string)
	require.True(t, ok, "expected error field in response: %v", result)
	assert.Contains(t, errMsg, expectedMsg)
}

// NewJSONRequest creates a request with a JSON-encoded body
func NewJSONRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// DecodeJSON decodes the recorder body into T
func DecodeJSON[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var result T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result), "body: %s", w.Body.String())
	return result
}
