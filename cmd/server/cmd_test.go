package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/GriffinCanCode/chatbubble/internal/infrastructure/config"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "--version")
	require.NoError(t, err)
	assert.Equal(t, Version+"\n", out)
}

func TestProbeReady(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html></html>"))
	}))
	defer upstream.Close()

	out, err := execute(t, "probe", "--url", upstream.URL, "--check")
	require.NoError(t, err)

	assert.Equal(t, "ready", gjson.Get(out, "load.state").String())
	assert.True(t, gjson.Get(out, "upstream.reachable").Bool())
	assert.False(t, gjson.Get(out, "error").Exists())
}

func TestProbeExhausted(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer upstream.Close()

	out, err := execute(t, "probe", "--url", upstream.URL, "--max-retries", "1", "--backoff", "1ms")
	require.Error(t, err)

	assert.Equal(t, "error", gjson.Get(out, "load.state").String())
	assert.True(t, gjson.Get(out, "load.retries_exhausted").Bool())
}

func TestProbeRequiresURL(t *testing.T) {
	_, err := execute(t, "probe")
	assert.Error(t, err)
}

func TestApplyServeFlags(t *testing.T) {
	cmd := newServeCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--port", "9090", "--upstream", "http://localhost:9000"}))

	cfg := config.Default()
	applyServeFlags(cmd, cfg, serveFlags{port: "9090", upstream: "http://localhost:9000"})

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "http://localhost:9000", cfg.Upstream.Origin)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host, "unset flags keep the environment value")
	assert.False(t, cfg.Logging.Development)
}
