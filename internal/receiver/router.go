package receiver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/otiai10/slackverify/internal/version"
)

// Endpoint is a path that accepts requests signed with Secret.
type Endpoint struct {
	Name    string
	Path    string
	Secret  []byte
	Handler http.Handler // nil acknowledges with 200 OK
}

// RouterConfig holds dependencies for the router
type RouterConfig struct {
	Endpoints    []Endpoint
	Logger       *zap.Logger // nil means no logging
	Metrics      *Metrics    // nil means no /metrics route
	MaxBodyBytes int64
}

// NewRouter creates the receiver router: one POST route per endpoint plus
// /health and, when metrics are configured, /metrics.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(RequestIDMiddleware, LoggingMiddleware(logger), RecoveryMiddleware(logger))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"status": "ok", "hash": version.CommitHash}, http.StatusOK)
	})

	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	for _, ep := range cfg.Endpoints {
		v := New(ep.Secret,
			WithName(ep.Name),
			WithLogger(logger),
			WithMetrics(cfg.Metrics),
			WithMaxBodyBytes(cfg.MaxBodyBytes),
		)

		var h http.Handler = http.HandlerFunc(AckHandler)
		if ep.Handler != nil {
			h = ep.Handler
		}
		r.Method(http.MethodPost, ep.Path, v.Middleware(ChallengeHandler(h)))
	}

	return r
}
