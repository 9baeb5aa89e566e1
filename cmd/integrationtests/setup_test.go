package integrationtests

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"auction-engine/internal/auction"
	bidding "auction-engine/internal/biddingService"
	"auction-engine/internal/repository"
	"auction-engine/internal/scheduler"
	"auction-engine/internal/server"
)

// testEnv is a running engine behind the real router
type testEnv struct {
	router *gin.Engine
	engine *bidding.Engine
	repo   *repository.MemoryRepo
}

// SetupTestEnv starts an engine over an in-memory repository and stops it when the test ends.
func SetupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := repository.NewMemoryRepo()
	engine, err := bidding.NewEngine(repo, repo, clock.NewClock(), bidding.Options{
		Actor: auction.Config{
			EndingSoonWindow:       5 * time.Minute,
			AntiSnipeGrace:         time.Minute,
			MaxAntiSnipeExtensions: 10,
			MailboxSize:            64,
			MaxContentionRetries:   3,
			PersistRetries:         3,
			PersistBackoff:         time.Millisecond,
			PersistMaxBackoff:      10 * time.Millisecond,
		},
		Scheduler: scheduler.Config{
			EndingSoonWindow: 5 * time.Minute,
			RetryDelay:       time.Second,
			Workers:          4,
		},
		SubscriberBuffer: 64,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- engine.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})

	return &testEnv{router: server.SetupRouter(engine), engine: engine, repo: repo}
}

// ExecuteRequest executes an HTTP request and returns the response recorder.
func ExecuteRequest(t *testing.T, router http.Handler, method, url string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, url, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// ExecuteRequestAndParse executes an HTTP request on the given router and parses the response envelope
func ExecuteRequestAndParse(t *testing.T, router http.Handler, method, url string, body any) (map[string]any, *httptest.ResponseRecorder) {
	t.Helper()
	var reqBody []byte
	switch v := body.(type) {
	case nil:
	case []byte:
		reqBody = v
	case string:
		reqBody = []byte(v)
	default:
		var err error
		reqBody, err = json.Marshal(v)
		require.NoError(t, err, "failed to marshal body")
	}

	w := ExecuteRequest(t, router, method, url, reqBody)

	var resp map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), "failed to unmarshal response")
	}
	return resp, w
}

// data returns the payload object of a response envelope
func data(t *testing.T, resp map[string]any) map[string]any {
	t.Helper()
	d, ok := resp["data"].(map[string]any)
	require.True(t, ok, "response has no data object: %v", resp)
	return d
}

// createAuction opens an auction owned by "seller" that started now and ends in an hour
func (env *testEnv) createAuction(t *testing.T) string {
	t.Helper()
	resp, w := ExecuteRequestAndParse(t, env.router, http.MethodPost, "/auctions", map[string]any{
		"seller_id":      "seller",
		"starting_price": "1000.00",
		"min_increment":  "50",
		"end_time":       time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id, _ := data(t, resp)["auction_id"].(string)
	require.NotEmpty(t, id)
	return id
}

func auctionURL(id string, parts ...string) string {
	url := fmt.Sprintf("/auctions/%s", id)
	for _, p := range parts {
		url += "/" + p
	}
	return url
}
