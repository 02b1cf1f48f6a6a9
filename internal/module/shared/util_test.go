package shared_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dumbtokens/launch-watcher/internal/module/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoRequestSendsHeadersAndReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		w.Write([]byte(`{"count":3}`))
	}))
	defer srv.Close()

	body, status, err := shared.DoRequest(context.Background(), srv.Client(), srv.URL, map[string]string{"x-api-key": "secret"}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)

	var out struct {
		Count int `json:"count"`
	}
	require.NoError(t, shared.ParseJSONResponse(body, &out))
	assert.Equal(t, 3, out.Count)
}

func TestDoRequestNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte("slow down"))
	}))
	defer srv.Close()

	body, status, err := shared.DoRequest(context.Background(), nil, srv.URL, nil, 0)
	require.Error(t, err)
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, "slow down", string(body))
}

func TestParseJSONResponseRejectsInvalidJSON(t *testing.T) {
	var out map[string]interface{}
	err := shared.ParseJSONResponse([]byte("<html>"), &out)
	assert.Error(t, err)
}

func TestSetupCfgOverrides(t *testing.T) {
	cfg := shared.SetupCfg(map[string]interface{}{"pipeline.batch-size": 10})

	assert.Equal(t, 10, cfg.Int("pipeline.batch-size"))
	assert.Equal(t, time.Minute, cfg.Duration("pipeline.cooldown"))
	assert.Equal(t, "ethereum", cfg.String("dexscreener.chain"))
}
