package utils

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestJSONEnvelopes(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name      string
		requestID string
		write     func(c *gin.Context)
		wantCode  int
		wantKey   string
	}{
		{
			name:     "data_without_request_id",
			write:    func(c *gin.Context) { JSONResponse(c, http.StatusOK, gin.H{"a": 1}, "ok") },
			wantCode: http.StatusOK,
			wantKey:  "data",
		},
		{
			name:      "error_with_request_id",
			requestID: "5b0c2f4e-6f7d-4d3a-9a43-3f1f0f3e2a11",
			write: func(c *gin.Context) {
				JSONError(c, http.StatusNotFound, errors.New("auction not found"), "auction not found")
			},
			wantCode: http.StatusNotFound,
			wantKey:  "error",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			if tc.requestID != "" {
				c.Set(RequestIDKey, tc.requestID)
			}
			tc.write(c)

			require.Equal(t, tc.wantCode, w.Code)
			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			require.EqualValues(t, tc.wantCode, body["status"])
			require.Contains(t, body, tc.wantKey)
			if tc.requestID == "" {
				require.NotContains(t, body, RequestIDKey)
				return
			}
			require.Equal(t, tc.requestID, body[RequestIDKey])
		})
	}
}

func TestIsValidID(t *testing.T) {
	t.Parallel()
	require.True(t, IsValidID(GenerateID()))
	require.False(t, IsValidID(""))
	require.False(t, IsValidID("req-42"))
	require.False(t, IsValidID("{5b0c2f4e-6f7d-4d3a-9a43-3f1f0f3e2a11}"))
}
