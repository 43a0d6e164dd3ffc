package runtime

import (
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/kong-mcp/bridge/pkg/config"
	"github.com/kong-mcp/bridge/pkg/oauth"
	"github.com/kong-mcp/bridge/pkg/openapi"
	"github.com/kong-mcp/bridge/pkg/registry"
	"github.com/kong-mcp/bridge/pkg/toolsynth"
)

// Snapshot is one immutable view of the bridge's loaded state: the
// config, the tool registry built from it, and the authenticator for its
// OAuth settings. Readers take the whole snapshot at the start of a
// request and never observe a partial reload.
type Snapshot struct {
	Config        *config.ServerConfig
	Registry      *registry.Registry
	Authenticator *oauth.Authenticator
}

// LoadReport summarizes what a config load produced, for operator
// visibility: per-route failures never abort the load, so the report is
// how an operator learns a route contributed no tools.
type LoadReport struct {
	RoutesLoaded      int
	RoutesFailed      []string
	ToolsRegistered   int
	DuplicatesDropped int
	ToolsOverLimit    int
}

// Manager owns the current Snapshot and swaps it atomically on every
// load or reload. There is no tool registration from the request path:
// the registry is rebuilt wholesale from configuration and replaced in
// one store.
type Manager struct {
	logger  *zap.Logger
	current atomic.Pointer[Snapshot]
}

// NewManager builds a Manager; call Load before serving.
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{logger: logger}
}

// Snapshot returns the current loaded state, or nil before the first
// successful Load.
func (m *Manager) Snapshot() *Snapshot {
	return m.current.Load()
}

// Load builds a new registry from cfg's routes and swaps it in
// atomically. A route whose OpenAPI document fails to parse is skipped
// with a logged error and a LoadReport entry; it never aborts the load.
// Load is also the reload entry point: calling it again replaces the
// entire snapshot.
func (m *Manager) Load(cfg *config.ServerConfig) (*LoadReport, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil server config")
	}

	report := &LoadReport{}
	var records []registry.ToolRecord

	for i := range cfg.Routes {
		route := cfg.Routes[i]
		if !route.IsEnabled() {
			continue
		}

		doc, err := openapi.LoadDocument([]byte(route.APISpecification))
		if err != nil {
			m.logger.Error("skipping route: failed to load api specification",
				zap.String("route_id", route.RouteID),
				zap.Error(err))
			report.RoutesFailed = append(report.RoutesFailed, route.RouteID)
			continue
		}

		recs := toolsynth.Synthesize(route, doc)
		m.warnUnmatchedOperationIDs(route, doc)
		records = append(records, recs...)
		report.RoutesLoaded++
	}

	if cfg.MaxTools > 0 && len(records) > cfg.MaxTools {
		report.ToolsOverLimit = len(records) - cfg.MaxTools
		m.logger.Warn("tool count exceeds max_tools, dropping extras",
			zap.Int("max_tools", cfg.MaxTools),
			zap.Int("dropped", report.ToolsOverLimit))
		records = records[:cfg.MaxTools]
	}

	// With OAuth disabled every caller is anonymous and no tool is
	// access-restricted, so route access requirements are not applied.
	if cfg.OAuth == nil || !cfg.OAuth.Enabled {
		for i := range records {
			records[i].AccessRequirements = nil
		}
	}

	reg := registry.Build(records, m.logger)
	report.ToolsRegistered = reg.Len()
	report.DuplicatesDropped = len(records) - reg.Len()

	m.current.Store(&Snapshot{
		Config:        cfg,
		Registry:      reg,
		Authenticator: oauth.NewAuthenticator(cfg),
	})

	m.logger.Info("tool registry loaded",
		zap.Int("routes", report.RoutesLoaded),
		zap.Int("tools", report.ToolsRegistered),
		zap.Int("duplicates_dropped", report.DuplicatesDropped))

	return report, nil
}

// warnUnmatchedOperationIDs logs per-operation access-control entries
// that name an operationId absent from the route's document. Config and
// OpenAPI documents are authored independently and drift; the entry is
// inert, not fatal.
func (m *Manager) warnUnmatchedOperationIDs(route config.RouteToolConfig, doc *openapi.Document) {
	if route.AccessControl == nil {
		return
	}

	known := make(map[string]bool)
	for _, op := range doc.Operations() {
		if op.OperationID != "" {
			known[op.OperationID] = true
		}
	}

	for _, req := range route.AccessControl.PerOperationRequirement {
		if req.OperationID != "" && !known[req.OperationID] {
			m.logger.Warn("per-operation access requirement matches no operation",
				zap.String("route_id", route.RouteID),
				zap.String("operation_id", req.OperationID))
		}
	}
}
