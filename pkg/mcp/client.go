// Package mcp provides MCP (Model Context Protocol) client
// infrastructure for skills that list resources, fetch resources, or
// call tools on configured MCP servers.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rolewise/rolewise/pkg/config"
	"github.com/rolewise/rolewise/pkg/version"
)

// InitTimeout bounds a single server connection attempt.
const InitTimeout = 30 * time.Second

// Client manages MCP SDK sessions for the configured servers. Sessions
// are created lazily on first use and reused afterwards. Thread-safe:
// parallel stages may reach different servers at once.
type Client struct {
	registry *config.MCPServerRegistry

	mu            sync.RWMutex
	sessions      map[string]*mcpsdk.ClientSession // serverID → session
	failedServers map[string]string                // serverID → error message

	// Per-server mutex so concurrent callers do not race to connect the
	// same server.
	initMu sync.Map // serverID → *sync.Mutex

	logger *slog.Logger
}

// NewClient creates a client over the configured server registry.
func NewClient(registry *config.MCPServerRegistry) *Client {
	return &Client{
		registry:      registry,
		sessions:      make(map[string]*mcpsdk.ClientSession),
		failedServers: make(map[string]string),
		logger:        slog.With("component", "mcp"),
	}
}

// Initialize connects to all given servers. Failures are recorded, not
// fatal: a skill reaching a failed server gets the connection error at
// invocation time.
func (c *Client) Initialize(ctx context.Context, serverIDs []string) {
	for _, serverID := range serverIDs {
		if _, err := c.session(ctx, serverID); err != nil {
			c.logger.Warn("MCP server failed to initialize",
				"server", serverID, "error", err)
		}
	}
}

// FailedServers returns serverID → error message for servers whose last
// connection attempt failed.
func (c *Client) FailedServers() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string, len(c.failedServers))
	for k, v := range c.failedServers {
		out[k] = v
	}
	return out
}

// session returns the server's session, connecting if needed.
func (c *Client) session(ctx context.Context, serverID string) (*mcpsdk.ClientSession, error) {
	muI, _ := c.initMu.LoadOrStore(serverID, &sync.Mutex{})
	mu := muI.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()

	c.mu.RLock()
	sess, exists := c.sessions[serverID]
	c.mu.RUnlock()
	if exists {
		return sess, nil
	}

	serverCfg, err := c.registry.Get(serverID)
	if err != nil {
		return nil, err
	}

	transport, err := createTransport(serverCfg.Transport)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport for %q: %w", serverID, err)
	}

	initCtx, cancel := context.WithTimeout(ctx, InitTimeout)
	defer cancel()

	client := mcpsdk.NewClient(&mcpsdk.Implementation{
		Name:    version.AppName,
		Version: version.GitCommit,
	}, nil)

	sess, err = client.Connect(initCtx, transport, nil)
	if err != nil {
		c.mu.Lock()
		c.failedServers[serverID] = err.Error()
		c.mu.Unlock()
		return nil, fmt.Errorf("failed to connect to MCP server %q: %w", serverID, err)
	}

	c.mu.Lock()
	c.sessions[serverID] = sess
	delete(c.failedServers, serverID)
	c.mu.Unlock()

	c.logger.Info("Connected to MCP server", "server", serverID)
	return sess, nil
}

// ListResources returns the URIs of all resources the server exposes.
func (c *Client) ListResources(ctx context.Context, serverID string) ([]string, error) {
	sess, err := c.session(ctx, serverID)
	if err != nil {
		return nil, err
	}

	result, err := sess.ListResources(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list resources on %q: %w", serverID, err)
	}

	uris := make([]string, 0, len(result.Resources))
	for _, res := range result.Resources {
		uris = append(uris, res.URI)
	}
	return uris, nil
}

// ReadResource fetches a resource's text contents.
func (c *Client) ReadResource(ctx context.Context, serverID, uri string) (string, error) {
	sess, err := c.session(ctx, serverID)
	if err != nil {
		return "", err
	}

	result, err := sess.ReadResource(ctx, &mcpsdk.ReadResourceParams{URI: uri})
	if err != nil {
		return "", fmt.Errorf("failed to read resource %q on %q: %w", uri, serverID, err)
	}

	var text string
	for _, content := range result.Contents {
		text += content.Text
	}
	return text, nil
}

// CallTool invokes a tool and returns its text output. Tool-level
// errors (IsError results) surface as Go errors.
func (c *Client) CallTool(ctx context.Context, serverID, tool string, args map[string]any) (string, error) {
	sess, err := c.session(ctx, serverID)
	if err != nil {
		return "", err
	}

	result, err := sess.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      tool,
		Arguments: args,
	})
	if err != nil {
		return "", fmt.Errorf("failed to call tool %q on %q: %w", tool, serverID, err)
	}

	var text string
	for _, content := range result.Content {
		if tc, ok := content.(*mcpsdk.TextContent); ok {
			text += tc.Text
		}
	}
	if result.IsError {
		return "", fmt.Errorf("tool %q failed: %s", tool, text)
	}
	return text, nil
}

// Close closes all sessions.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for serverID, sess := range c.sessions {
		if err := sess.Close(); err != nil {
			c.logger.Warn("Failed to close MCP session", "server", serverID, "error", err)
		}
	}
	c.sessions = make(map[string]*mcpsdk.ClientSession)
}
