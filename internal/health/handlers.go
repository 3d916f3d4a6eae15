package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/onnwee/turf/internal/middleware"
)

// DefaultReadyTimeout bounds all readiness checks of one request.
const DefaultReadyTimeout = 5 * time.Second

// Checker is a component that can be health checked.
type Checker interface {
	HealthCheck(ctx context.Context) error
}

// HandlersConfig configures the health check handlers. Nil checkers are
// reported as "disabled" and never fail readiness.
type HandlersConfig struct {
	DBChecker       Checker
	RedisChecker    Checker
	SnapshotChecker Checker
	Timeout         time.Duration
	Logger          *slog.Logger
}

// Handlers serves the liveness and readiness checks.
type Handlers struct {
	checks  []namedChecker
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

type namedChecker struct {
	name    string
	checker Checker
}

// NewHandlers creates the health handlers.
func NewHandlers(config HandlersConfig) *Handlers {
	if config.Timeout <= 0 {
		config.Timeout = DefaultReadyTimeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Handlers{
		checks: []namedChecker{
			{"database", config.DBChecker},
			{"redis", config.RedisChecker},
			{"snapshot", config.SnapshotChecker},
		},
		timeout: config.Timeout,
		logger:  config.Logger,
		now:     time.Now,
	}
}

// Response is the JSON body of both checks.
type Response struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// Health handles GET /health. If we can respond, we're alive.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.methodNotAllowed(w, r)
		return
	}
	h.write(w, http.StatusOK, Response{
		Status:    "healthy",
		Checks:    map[string]string{"runtime": "ok"},
		Timestamp: h.now().UTC().Format(time.RFC3339),
	})
}

// Ready handles GET /ready. Returns 503 if any configured dependency fails.
func (h *Handlers) Ready(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.methodNotAllowed(w, r)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	checks := make(map[string]string, len(h.checks))
	healthy := true
	for _, c := range h.checks {
		if c.checker == nil {
			checks[c.name] = "disabled"
			continue
		}
		if err := c.checker.HealthCheck(ctx); err != nil {
			checks[c.name] = "error"
			healthy = false
			h.logger.WarnContext(ctx, c.name+" health check failed", "error", err)
			continue
		}
		checks[c.name] = "ok"
	}

	status := "healthy"
	code := http.StatusOK
	if !healthy {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	h.write(w, code, Response{
		Status:    status,
		Checks:    checks,
		Timestamp: h.now().UTC().Format(time.RFC3339),
	})
}

func (h *Handlers) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	*r = *r.WithContext(middleware.SetErrorCode(r.Context(), "method_not_allowed"))
	w.Header().Set("Allow", http.MethodGet)
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
}

func (h *Handlers) write(w http.ResponseWriter, code int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("failed to encode health response", "error", err)
	}
}
