package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/sirupsen/logrus"
)

const (
	defaultClientName    = "estate-chat"
	defaultClientVersion = "0.1.0"
)

// StdioClientConfig holds configuration for a StdioClient. If Command is set
// the client spawns the server as a subprocess and talks to its stdio pipes;
// otherwise Reader and Writer must be provided (used by tests to wire an
// in-process server).
type StdioClientConfig struct {
	Command       string
	Args          []string
	Env           []string
	ClientName    string
	ClientVersion string
	Logger        *logrus.Logger
	Reader        io.Reader
	Writer        io.Writer
}

// StdioClient is the synchronous session layer over a line-delimited JSON-RPC
// server. Requests are pipelined strictly one at a time: a request is fully
// answered (or is a notification) before the next is issued, so the next line
// read from the server is always the response to the most recently sent
// request. A mismatched response id is an unrecoverable protocol violation.
type StdioClient struct {
	config StdioClientConfig
	log    *logrus.Logger

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	reader *bufio.Reader
	writer io.Writer

	nextID          int64
	initialized     bool
	protocolVersion string
	serverInfo      ServerInfo
	capabilities    ServerCapabilities
	tools           []Tool
	resources       []Resource
}

// NewStdioClient builds a client; Connect must be called before use.
func NewStdioClient(cfg StdioClientConfig) *StdioClient {
	if cfg.ClientName == "" {
		cfg.ClientName = defaultClientName
	}
	if cfg.ClientVersion == "" {
		cfg.ClientVersion = defaultClientVersion
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
		cfg.Logger.SetOutput(os.Stderr)
	}
	return &StdioClient{
		config: cfg,
		log:    cfg.Logger,
		nextID: 1,
	}
}

// Connect spawns the server subprocess when configured, performs the
// initialize handshake, sends the initialized notification and fetches the
// tool and resource catalogs the server advertised. Catalogs for features the
// server did not advertise are never requested.
func (c *StdioClient) Connect(ctx context.Context) error {
	if c.initialized {
		return fmt.Errorf("client is already connected")
	}

	if c.config.Command != "" {
		cmd := exec.CommandContext(ctx, c.config.Command, c.config.Args...)
		cmd.Env = append(os.Environ(), c.config.Env...)
		cmd.Stderr = os.Stderr

		stdin, err := cmd.StdinPipe()
		if err != nil {
			return fmt.Errorf("open server stdin: %w", err)
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return fmt.Errorf("open server stdout: %w", err)
		}
		if err := cmd.Start(); err != nil {
			return fmt.Errorf("spawn server %q: %w", c.config.Command, err)
		}
		c.cmd = cmd
		c.stdin = stdin
		c.writer = stdin
		c.reader = bufio.NewReader(stdout)
		c.log.WithField("command", c.config.Command).Info("server subprocess started")
	} else {
		if c.config.Reader == nil || c.config.Writer == nil {
			return fmt.Errorf("either Command or Reader/Writer must be configured")
		}
		c.reader = bufio.NewReader(c.config.Reader)
		c.writer = c.config.Writer
	}

	if err := c.initialize(ctx); err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	if _, err := c.send(ctx, MethodInitialized, nil, true); err != nil {
		return fmt.Errorf("send initialized notification: %w", err)
	}
	c.initialized = true

	if c.capabilities.Tools != nil {
		tools, err := c.fetchTools(ctx)
		if err != nil {
			return fmt.Errorf("list tools: %w", err)
		}
		c.tools = tools
		c.log.WithField("count", len(tools)).Info("tool catalog fetched")
	}
	if c.capabilities.Resources != nil {
		resources, err := c.fetchResources(ctx)
		if err != nil {
			return fmt.Errorf("list resources: %w", err)
		}
		c.resources = resources
		c.log.WithField("count", len(resources)).Info("resource catalog fetched")
	}

	return nil
}

func (c *StdioClient) initialize(ctx context.Context) error {
	params := InitializeParams{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    map[string]interface{}{},
		ClientInfo: ClientInfo{
			Name:    c.config.ClientName,
			Version: c.config.ClientVersion,
		},
	}

	resp, err := c.send(ctx, MethodInitialize, params, false)
	if err != nil {
		return err
	}
	if resp.Error != nil {
		return resp.Error
	}

	var result InitializeResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return fmt.Errorf("parse initialize result: %w", err)
	}

	c.protocolVersion = result.ProtocolVersion
	c.serverInfo = result.ServerInfo
	c.capabilities = result.Capabilities
	c.log.WithFields(logrus.Fields{
		"server":          result.ServerInfo.Name,
		"protocolVersion": result.ProtocolVersion,
	}).Info("initialize handshake complete")
	return nil
}

// send serializes one request as a single JSON line and, unless it is a
// notification, blocks on the next full output line and returns it as the
// response. Ids are strictly increasing and never reused.
func (c *StdioClient) send(ctx context.Context, method string, params interface{}, notification bool) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var req *Request
	var err error
	if notification {
		req, err = NewNotification(method, params)
	} else {
		req, err = NewRequest(c.nextID, method, params)
		c.nextID++
	}
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	raw = append(raw, '\n')
	if _, err := c.writer.Write(raw); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}

	if notification {
		return nil, nil
	}

	line, err := c.reader.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("read response for %q: %w", method, err)
	}

	var resp Response
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, fmt.Errorf("parse response for %q: %w", method, err)
	}
	if resp.ID == nil || *resp.ID != *req.ID {
		return nil, fmt.Errorf("protocol violation: response id does not match request id %d", *req.ID)
	}
	return &resp, nil
}

func (c *StdioClient) fetchTools(ctx context.Context) ([]Tool, error) {
	resp, err := c.send(ctx, MethodToolsList, nil, false)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	var result ListToolsResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("parse tools/list result: %w", err)
	}
	return result.Tools, nil
}

func (c *StdioClient) fetchResources(ctx context.Context) ([]Resource, error) {
	resp, err := c.send(ctx, MethodResourcesList, nil, false)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	var result ListResourcesResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("parse resources/list result: %w", err)
	}
	return result.Resources, nil
}

// Tools returns the tool catalog fetched during Connect. Empty when the
// server never advertised tool support.
func (c *StdioClient) Tools() []Tool {
	out := make([]Tool, len(c.tools))
	copy(out, c.tools)
	return out
}

// Resources returns the resource catalog fetched during Connect.
func (c *StdioClient) Resources() []Resource {
	out := make([]Resource, len(c.resources))
	copy(out, c.resources)
	return out
}

// IsInitialized reports whether the handshake completed.
func (c *StdioClient) IsInitialized() bool { return c.initialized }

// ProtocolVersion returns the protocol version the server negotiated.
func (c *StdioClient) ProtocolVersion() string { return c.protocolVersion }

// ServerInfo returns the identity the server reported during initialize.
func (c *StdioClient) ServerInfo() ServerInfo { return c.serverInfo }

// Capabilities returns the capability flags the server advertised.
func (c *StdioClient) Capabilities() ServerCapabilities { return c.capabilities }

// Ping checks that the server is responsive.
func (c *StdioClient) Ping(ctx context.Context) error {
	resp, err := c.send(ctx, MethodPing, nil, false)
	if err != nil {
		return err
	}
	if resp.Error != nil {
		return resp.Error
	}
	return nil
}

// CallTool invokes a server tool. A JSON-RPC error response is returned as an
// *Error value the caller can inspect; it is not a transport failure.
func (c *StdioClient) CallTool(ctx context.Context, params CallToolParams) (CallToolResult, error) {
	if c.capabilities.Tools == nil {
		return CallToolResult{}, fmt.Errorf("server did not advertise tool support")
	}

	resp, err := c.send(ctx, MethodToolsCall, params, false)
	if err != nil {
		return CallToolResult{}, err
	}
	if resp.Error != nil {
		return CallToolResult{}, resp.Error
	}

	var result CallToolResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return CallToolResult{}, fmt.Errorf("parse tools/call result: %w", err)
	}
	return result, nil
}

// ReadResource reads a server resource in full.
func (c *StdioClient) ReadResource(ctx context.Context, uri string) (ReadResourceResult, error) {
	if c.capabilities.Resources == nil {
		return ReadResourceResult{}, fmt.Errorf("server did not advertise resource support")
	}

	resp, err := c.send(ctx, MethodResourcesRead, ReadResourceParams{URI: uri}, false)
	if err != nil {
		return ReadResourceResult{}, err
	}
	if resp.Error != nil {
		return ReadResourceResult{}, resp.Error
	}

	var result ReadResourceResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return ReadResourceResult{}, fmt.Errorf("parse resources/read result: %w", err)
	}
	return result, nil
}

// Close closes the server's stdin and waits for the subprocess to exit.
func (c *StdioClient) Close() error {
	c.initialized = false
	if c.stdin != nil {
		if err := c.stdin.Close(); err != nil {
			c.log.WithError(err).Warn("failed to close server stdin")
		}
	}
	if c.cmd != nil {
		if err := c.cmd.Wait(); err != nil {
			return fmt.Errorf("server subprocess exited: %w", err)
		}
	}
	return nil
}
