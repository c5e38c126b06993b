package mcp

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rolewise/rolewise/pkg/config"
)

func TestCreateTransport(t *testing.T) {
	t.Run("stdio", func(t *testing.T) {
		tr, err := createTransport(config.TransportConfig{
			Type:    config.TransportTypeStdio,
			Command: "mcp-files",
			Args:    []string{"--root", "/tmp"},
			Env:     map[string]string{"MCP_DEBUG": "1"},
		})
		require.NoError(t, err)
		require.NotNil(t, tr)
	})

	t.Run("stdio without command", func(t *testing.T) {
		_, err := createTransport(config.TransportConfig{Type: config.TransportTypeStdio})
		require.Error(t, err)
	})

	t.Run("http", func(t *testing.T) {
		tr, err := createHTTPTransport(config.TransportConfig{
			Type: config.TransportTypeHTTP,
			URL:  "http://localhost:9000/mcp",
		})
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:9000/mcp", tr.Endpoint)
		assert.Nil(t, tr.HTTPClient)
	})

	t.Run("http without url", func(t *testing.T) {
		_, err := createTransport(config.TransportConfig{Type: config.TransportTypeHTTP})
		require.Error(t, err)
	})

	t.Run("http with auth and timeout", func(t *testing.T) {
		tr, err := createHTTPTransport(config.TransportConfig{
			Type:        config.TransportTypeHTTP,
			URL:         "http://localhost:9000/mcp",
			BearerToken: "tok",
			Timeout:     15,
		})
		require.NoError(t, err)
		require.NotNil(t, tr.HTTPClient)
		assert.Equal(t, 15*time.Second, tr.HTTPClient.Timeout)
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := createTransport(config.TransportConfig{Type: "carrier_pigeon"})
		require.Error(t, err)
	})
}

func TestBearerTokenTransport(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
	}))
	defer srv.Close()

	client := buildHTTPClient(config.TransportConfig{BearerToken: "sekrit"})
	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "Bearer sekrit", gotAuth)
}
