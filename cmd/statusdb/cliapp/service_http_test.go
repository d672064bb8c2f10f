package cliapp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/ankur-anand/statusdb/cmd/statusdb/config"
	"github.com/ankur-anand/statusdb/contract"
	"github.com/ankur-anand/statusdb/recordstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDeps(t *testing.T, cfg config.Config) *Dependencies {
	t.Helper()
	conf := recordstore.NewDefaultConfig()
	conf.NoSync = true
	conf.FilterExpectedItems = 1000

	store, err := recordstore.Open(t.TempDir(), conf)
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, store.Close())
	})

	return &Dependencies{
		Config: cfg,
		Store:  store,
		Status: contract.NewStatusMessage(store),
	}
}

func TestHTTPService_Name(t *testing.T) {
	svc := &HTTPService{}
	assert.Equal(t, "http", svc.Name())
}

func TestHTTPService_Setup(t *testing.T) {
	deps := newTestDeps(t, config.Config{ListenIP: "127.0.0.1", HTTPPort: 0})

	svc := &HTTPService{}
	require.NoError(t, svc.Setup(context.Background(), deps))
	require.NotNil(t, svc.server)
	require.NotNil(t, svc.httpAPISvc)
	assert.Equal(t, "127.0.0.1:0", svc.Addr())
}

func TestHTTPService_Setup_DefaultIP(t *testing.T) {
	deps := newTestDeps(t, config.Config{HTTPPort: 8080})

	svc := &HTTPService{}
	require.NoError(t, svc.Setup(context.Background(), deps))
	assert.Equal(t, "0.0.0.0:8080", svc.Addr())
}

func TestHTTPService_Setup_RequiresStore(t *testing.T) {
	svc := &HTTPService{}
	assert.Error(t, svc.Setup(context.Background(), &Dependencies{}))
}

func TestHTTPService_RunAndClose(t *testing.T) {
	deps := newTestDeps(t, config.Config{ListenIP: "127.0.0.1", HTTPPort: 0})

	svc := &HTTPService{}
	require.NoError(t, svc.Setup(context.Background(), deps))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErr := make(chan error, 1)
	go func() {
		runErr <- svc.Run(ctx)
	}()

	select {
	case <-svc.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("http service never became ready")
	}
	base := fmt.Sprintf("http://%s", svc.BoundAddr())

	req, err := http.NewRequest(http.MethodPut, base+"/api/v1/status", strings.NewReader(`{"message":"hello"}`))
	require.NoError(t, err)
	req.Header.Set("X-Account-Id", "bob_near")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(base + "/api/v1/status/bob_near")
	require.NoError(t, err)
	var got struct {
		Found   bool   `json:"found"`
		Message string `json:"message"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	resp.Body.Close()
	assert.True(t, got.Found)
	assert.Equal(t, "hello", got.Message)

	resp, err = http.Get(base + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, body)

	require.NoError(t, svc.Close(context.Background()))
	cancel()
	assert.NoError(t, <-runErr)
}

func TestStatsLoggerService(t *testing.T) {
	deps := newTestDeps(t, config.Config{})

	svc := NewStatsLoggerService(10 * time.Millisecond)
	assert.Equal(t, "stats-logger", svc.Name())
	require.NoError(t, svc.Setup(context.Background(), deps))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.NoError(t, svc.Run(ctx))
	assert.NoError(t, svc.Close(context.Background()))
}

func TestPProfService_Disabled(t *testing.T) {
	svc := &PProfService{}
	require.NoError(t, svc.Setup(context.Background(), &Dependencies{}))

	select {
	case <-svc.Ready():
	default:
		t.Fatal("disabled pprof must be ready immediately")
	}
	assert.NoError(t, svc.Run(context.Background()))
	assert.NoError(t, svc.Close(context.Background()))
	assert.Empty(t, svc.BoundAddr())
}
