package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// ServerConfig holds configuration for a stdio Server.
type ServerConfig struct {
	Logger        *logrus.Logger
	Reader        io.Reader
	Writer        io.Writer
	ServerName    string
	ServerVersion string
}

// Server reads newline-delimited JSON-RPC requests from its input stream,
// dispatches them against an immutable Registry and writes exactly one
// response line per request carrying an id. Notifications produce no output.
type Server struct {
	registry    *Registry
	log         *logrus.Logger
	in          io.Reader
	out         io.Writer
	info        ServerInfo
	initialized bool
}

// NewServer builds a Server around the given registry. Reader and Writer
// default to stdin/stdout; the logger defaults to stderr so log output never
// interleaves with the wire protocol.
func NewServer(registry *Registry, cfg ServerConfig) *Server {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
		cfg.Logger.SetOutput(os.Stderr)
	}
	if cfg.Reader == nil {
		cfg.Reader = os.Stdin
	}
	if cfg.Writer == nil {
		cfg.Writer = os.Stdout
	}
	if cfg.ServerName == "" {
		cfg.ServerName = "estate-server"
	}
	if cfg.ServerVersion == "" {
		cfg.ServerVersion = "0.1.0"
	}

	return &Server{
		registry: registry,
		log:      cfg.Logger,
		in:       cfg.Reader,
		out:      cfg.Writer,
		info: ServerInfo{
			Name:    cfg.ServerName,
			Version: cfg.ServerVersion,
		},
	}
}

// Run processes the input stream until EOF or context cancellation. Malformed
// lines are logged and skipped without a response; they are never fatal.
func (s *Server) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.log.WithError(err).Warn("skipping unparseable input line")
			continue
		}
		if req.JSONRPC != JSONRPCVersion || req.Method == "" {
			s.log.WithField("line", string(line)).Warn("skipping non-request input line")
			continue
		}

		if req.IsNotification() {
			s.handleNotification(&req)
			continue
		}
		s.handleRequest(ctx, &req)
	}

	if err := scanner.Err(); err != nil && err != io.EOF {
		return fmt.Errorf("reading input stream: %w", err)
	}
	s.log.Info("server input stream closed, shutting down")
	return nil
}

// Capabilities returns the feature flags this server advertises, derived from
// the registry contents.
func (s *Server) Capabilities() ServerCapabilities {
	caps := ServerCapabilities{}
	if s.registry.HasTools() {
		caps.Tools = &ToolsCapability{ListChanged: false}
	}
	if s.registry.HasResources() {
		caps.Resources = &ResourcesCapability{Subscribe: false, ListChanged: false}
	}
	return caps
}

func (s *Server) handleRequest(ctx context.Context, req *Request) {
	s.log.WithFields(logrus.Fields{
		"method": req.Method,
		"id":     *req.ID,
	}).Debug("dispatching request")

	switch req.Method {
	case MethodInitialize:
		s.handleInitialize(req)
	case MethodPing:
		s.respond(req.ID, map[string]interface{}{})
	case MethodToolsList:
		s.respond(req.ID, ListToolsResult{Tools: s.registry.Tools()})
	case MethodToolsCall:
		s.handleToolsCall(ctx, req)
	case MethodResourcesList:
		s.respond(req.ID, ListResourcesResult{Resources: s.registry.Resources()})
	case MethodResourcesRead:
		s.handleResourcesRead(req)
	default:
		s.respondError(req.ID, ErrorCodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method), nil)
	}
}

func (s *Server) handleNotification(req *Request) {
	switch req.Method {
	case MethodInitialized:
		s.initialized = true
		s.log.Info("client reported initialized")
	default:
		// Unknown notifications are logged, never answered.
		s.log.WithField("method", req.Method).Debug("ignoring notification")
	}
}

func (s *Server) handleInitialize(req *Request) {
	var params InitializeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			s.respondError(req.ID, ErrorCodeInvalidParams, "invalid initialize params", nil)
			return
		}
	}
	if params.ProtocolVersion != "" && params.ProtocolVersion != ProtocolVersion {
		s.log.WithFields(logrus.Fields{
			"client": params.ProtocolVersion,
			"server": ProtocolVersion,
		}).Warn("client requested a different protocol version")
	}
	s.log.WithFields(logrus.Fields{
		"client":  params.ClientInfo.Name,
		"version": params.ClientInfo.Version,
	}).Info("initialize received")

	s.respond(req.ID, InitializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    s.Capabilities(),
		ServerInfo:      s.info,
	})
}

func (s *Server) handleToolsCall(ctx context.Context, req *Request) {
	var params CallToolParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.respondError(req.ID, ErrorCodeInvalidParams, "invalid tools/call params", nil)
		return
	}

	tool, ok := s.registry.Tool(params.Name)
	if !ok {
		s.respondError(req.ID, ErrorCodeInvalidParams,
			fmt.Sprintf("unknown tool: %s", params.Name),
			map[string]string{"tool": params.Name})
		return
	}

	result, err := tool.Handler(ctx, params.Arguments)
	if err != nil {
		s.log.WithError(err).WithField("tool", params.Name).Error("tool handler failed")
		s.respondError(req.ID, ErrorCodeInternal,
			fmt.Sprintf("tool %s failed: %v", params.Name, err), nil)
		return
	}
	s.respond(req.ID, result)
}

func (s *Server) handleResourcesRead(req *Request) {
	var params ReadResourceParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.respondError(req.ID, ErrorCodeInvalidParams, "invalid resources/read params", nil)
		return
	}

	res, ok := s.registry.Resource(params.URI)
	if !ok {
		s.respondError(req.ID, ErrorCodeInvalidParams,
			fmt.Sprintf("unknown resource: %s", params.URI),
			map[string]string{"uri": params.URI})
		return
	}

	s.respond(req.ID, ReadResourceResult{
		Contents: []ResourceContent{{
			URI:      res.URI,
			MimeType: res.MimeType,
			Text:     res.TextContent,
		}},
	})
}

func (s *Server) respond(id *int64, result interface{}) {
	resp, err := NewResponse(id, result)
	if err != nil {
		s.log.WithError(err).Error("failed to marshal result")
		s.writeResponse(NewErrorResponse(id, ErrorCodeInternal, "failed to marshal result", nil))
		return
	}
	s.writeResponse(resp)
}

func (s *Server) respondError(id *int64, code int, message string, data interface{}) {
	s.writeResponse(NewErrorResponse(id, code, message, data))
}

func (s *Server) writeResponse(resp *Response) {
	raw, err := json.Marshal(resp)
	if err != nil {
		s.log.WithError(err).Error("failed to marshal response")
		return
	}
	raw = append(raw, '\n')
	if _, err := s.out.Write(raw); err != nil {
		s.log.WithError(err).Error("failed to write response")
	}
}
