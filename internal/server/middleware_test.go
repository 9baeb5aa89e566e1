package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestRequestIDMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestIDMiddleware, RequestLoggerMiddleware)
	router.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("request_id"))
	})

	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{name: "assigns_new_id"},
		{name: "keeps_caller_id", incoming: "5b0c2f4e-6f7d-4d3a-9a43-3f1f0f3e2a11", keep: true},
		{name: "replaces_malformed_id", incoming: "req-42"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ping", nil)
			if tc.incoming != "" {
				req.Header.Set(RequestIDHeader, tc.incoming)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			require.Equal(t, http.StatusOK, w.Code)
			got := w.Header().Get(RequestIDHeader)
			require.Equal(t, got, w.Body.String())
			if tc.keep {
				require.Equal(t, tc.incoming, got)
				return
			}
			require.NotEqual(t, tc.incoming, got)
			_, err := uuid.Parse(got)
			require.NoError(t, err)
		})
	}
}
