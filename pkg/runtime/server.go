// Package runtime wires the bridge together: it owns the HTTP endpoint,
// parses JSON-RPC envelopes, authenticates callers, consults the tool
// registry, and hands tool calls to the execution dispatcher. One
// Server handles GET capability discovery and POST JSON-RPC on a single
// base path, plus the health and OAuth metadata side endpoints.
package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/kong-mcp/bridge/pkg/config"
	"github.com/kong-mcp/bridge/pkg/dispatch"
	"github.com/kong-mcp/bridge/pkg/health"
	"github.com/kong-mcp/bridge/pkg/oauth"
	"github.com/kong-mcp/bridge/pkg/observability/logging"
	"github.com/kong-mcp/bridge/pkg/registry"
	"github.com/kong-mcp/bridge/pkg/rpc"
)

// ProtocolVersion is the MCP protocol revision this bridge implements.
const ProtocolVersion = "2024-11-05"

// Server is the bridge's request-handling pipeline behind one HTTP
// endpoint. All mutable state lives in the Manager's atomic snapshot;
// Server itself is safe for concurrent use by the HTTP server's
// connection goroutines.
type Server struct {
	manager    *Manager
	dispatcher *dispatch.Dispatcher
	health     health.Checker
	logger     *zap.Logger
}

// NewServer builds a Server. Call Load (directly or through Run's
// caller) before serving traffic; until then readiness reports 503.
func NewServer(logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		manager:    NewManager(logger),
		dispatcher: dispatch.NewDispatcher(),
		health:     health.NewChecker(),
		logger:     logger,
	}
}

// Load builds the tool registry from cfg and swaps it in atomically.
// The first successful load marks the server ready; later calls are the
// reload path and replace the whole snapshot in one store.
func (s *Server) Load(cfg *config.ServerConfig) (*LoadReport, error) {
	report, err := s.manager.Load(cfg)
	if err != nil {
		return nil, err
	}
	s.health.SetReady(true)
	return report, nil
}

// Handler returns the root HTTP handler: the MCP endpoint on the
// configured base path, the RFC 9728 metadata document, and the health
// endpoints, all behind the request-logging middleware.
func (s *Server) Handler() http.Handler {
	snap := s.manager.Snapshot()
	basePath := config.DefaultBasePath
	if snap != nil && snap.Config.BasePath != "" {
		basePath = snap.Config.BasePath
	}

	mux := http.NewServeMux()
	mux.HandleFunc(basePath, s.handleMCP)
	mux.HandleFunc(oauth.ProtectedResourceMetadataEndpoint, s.handleMetadata)
	mux.HandleFunc("/healthz", s.health.LivenessHandler)
	mux.HandleFunc("/readyz", s.health.ReadinessHandler)

	return logging.Middleware(s.logger)(mux)
}

// Run serves the handler on addr until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting bridge HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down bridge HTTP server")
		if err := srv.Shutdown(context.Background()); err != nil {
			s.logger.Error("error during server shutdown", zap.Error(err))
			return err
		}
		return nil
	case err := <-errCh:
		s.logger.Error("bridge HTTP server failed", zap.Error(err))
		return err
	}
}

func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	snap := s.manager.Snapshot()
	if snap == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	oauth.ProtectedResourceMetadataHandler(snap.Config, snap.Registry)(w, r)
}

func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleDiscovery(w, r)
	case http.MethodPost:
		s.handleRPC(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleDiscovery answers GET on the MCP endpoint with the capability
// advertisement.
func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	snap := s.manager.Snapshot()
	if snap == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"capabilities": map[string]any{"tools": map[string]any{}},
		"serverInfo":   s.serverInfo(snap),
	})
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	logger := logging.FromContext(r.Context())

	snap := s.manager.Snapshot()
	if snap == nil {
		writeResponse(w, http.StatusServiceUnavailable,
			rpc.NewError(nil, rpc.CodeInternalError, "Internal error", &rpc.ErrorDetail{Detail: "no configuration loaded"}))
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeResponse(w, http.StatusBadRequest,
			rpc.NewError(nil, rpc.CodeParseError, "Parse error", &rpc.ErrorDetail{Detail: "failed to read request body"}))
		return
	}

	req, errResp := rpc.ParseRequest(body)
	if errResp != nil {
		writeResponse(w, http.StatusBadRequest, errResp)
		return
	}

	claims, authErr := snap.Authenticator.Authenticate(r)
	if authErr != nil {
		logger.Warn("authentication failed", zap.String("reason", string(authErr.Reason)))
		detail := authErr.Detail
		if detail == "" {
			detail = string(authErr.Reason)
		}
		oauth.Challenge(w, r)
		writeResponse(w, http.StatusUnauthorized,
			rpc.NewError(req.ID, rpc.CodeAuthOrNotFound, "Authentication failed", &rpc.ErrorDetail{Detail: detail}))
		return
	}

	if req.IsNotification() {
		s.handleNotification(w, req, logger)
		return
	}

	if !rpc.IsSupportedMethod(req.Method) {
		writeResponse(w, http.StatusOK,
			rpc.NewError(req.ID, rpc.CodeMethodNotFound, "Method not found", &rpc.ErrorDetail{Detail: req.Method}))
		return
	}

	switch req.Method {
	case rpc.MethodInitialize:
		writeResponse(w, http.StatusOK, rpc.NewResult(req.ID, s.initializeResult(snap)))
	case rpc.MethodToolsList:
		s.handleToolsList(w, req, snap, claims)
	case rpc.MethodToolsCall:
		s.handleToolsCall(w, r, req, snap, claims, logger)
	case rpc.MethodNotificationsInitialized:
		// A notification method sent with an id still gets no result
		// payload; acknowledge with an empty success.
		writeResponse(w, http.StatusOK, rpc.NewResult(req.ID, map[string]any{}))
	}
}

// handleNotification processes an id-less request: it is accepted but
// never answered with a response body.
func (s *Server) handleNotification(w http.ResponseWriter, req *rpc.Request, logger *zap.Logger) {
	if !rpc.IsSupportedMethod(req.Method) {
		logger.Debug("dropping notification for unknown method", zap.String("method", req.Method))
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) serverInfo(snap *Snapshot) map[string]any {
	return map[string]any{
		"name":    snap.Config.ServerName,
		"version": snap.Config.ServerVersion,
	}
}

func (s *Server) initializeResult(snap *Snapshot) map[string]any {
	return map[string]any{
		"protocolVersion": ProtocolVersion,
		"capabilities": map[string]any{
			"tools": map[string]any{"listChanged": false},
		},
		"serverInfo": s.serverInfo(snap),
	}
}

// toolProjection is the public face of a ToolRecord in tools/list:
// execution metadata and access requirements are stripped.
type toolProjection struct {
	Name        string                    `json:"name"`
	Description string                    `json:"description"`
	InputSchema *registry.ToolInputSchema `json:"inputSchema"`
}

func (s *Server) handleToolsList(w http.ResponseWriter, req *rpc.Request, snap *Snapshot, claims *oauth.Claims) {
	visible := snap.Registry.List(claims.Raw)

	tools := make([]toolProjection, 0, len(visible))
	for _, rec := range visible {
		tools = append(tools, toolProjection{
			Name:        rec.Name,
			Description: rec.Description,
			InputSchema: rec.InputSchema,
		})
	}

	writeResponse(w, http.StatusOK, rpc.NewResult(req.ID, map[string]any{"tools": tools}))
}

// callParams is the expected params shape for tools/call.
type callParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

func (s *Server) handleToolsCall(w http.ResponseWriter, r *http.Request, req *rpc.Request, snap *Snapshot, claims *oauth.Claims, logger *zap.Logger) {
	var params callParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			writeResponse(w, http.StatusOK,
				rpc.NewError(req.ID, rpc.CodeInvalidParams, "Invalid params", &rpc.ErrorDetail{Detail: "params must be an object"}))
			return
		}
	}

	if params.Name == "" {
		writeResponse(w, http.StatusOK,
			rpc.NewError(req.ID, rpc.CodeInvalidParams, "Invalid params", &rpc.ErrorDetail{Detail: "Missing tool name"}))
		return
	}

	tool, err := snap.Registry.Lookup(params.Name, claims.Raw)
	if err != nil {
		// Not-found and forbidden are indistinguishable on the wire so
		// an unauthorized caller can't probe which tools exist.
		logger.Debug("tool lookup failed", zap.String("tool_name", params.Name))
		writeResponse(w, http.StatusNotFound,
			rpc.NewError(req.ID, rpc.CodeAuthOrNotFound, "Tool not found or access denied", nil))
		return
	}

	logger.Info("invoking tool",
		zap.String("tool_name", tool.Name),
		zap.String("route_id", tool.RouteID))

	result, err := s.dispatcher.Dispatch(r.Context(), tool, params.Arguments, snap.Config.ClientTLS)
	if err != nil {
		detail := err.Error()
		var dispatchErr *dispatch.Error
		if errors.As(err, &dispatchErr) {
			detail = fmt.Sprintf("%s: %s", dispatchErr.Phase, dispatchErr.Detail)
		}
		logger.Error("tool execution failed",
			zap.String("tool_name", tool.Name),
			zap.Error(err))
		writeResponse(w, http.StatusInternalServerError,
			rpc.NewError(req.ID, rpc.CodeExecutionError, "Tool execution failed", &rpc.ErrorDetail{Detail: detail}))
		return
	}

	writeResponse(w, http.StatusOK, rpc.NewResult(req.ID, result))
}

func writeResponse(w http.ResponseWriter, status int, resp *rpc.Response) {
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
