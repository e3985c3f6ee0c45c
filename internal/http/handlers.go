package httpapi

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"rdpso/simulator/internal/logging"
	"rdpso/simulator/internal/networking"
	"rdpso/simulator/internal/pso"
	"rdpso/simulator/internal/report"
	"rdpso/simulator/internal/simulation"
	"rdpso/simulator/internal/simulator"
	"rdpso/simulator/internal/space"
)

// maxConfigBytes bounds PUT /config and PUT /params bodies.
const maxConfigBytes = 1 << 20

// ReadinessProvider exposes service state required for readiness checks.
type ReadinessProvider interface {
	SnapshotClientCounts() (clients, pending int)
	StartupError() error
	Uptime() time.Duration
}

// Controller is the slice of the simulation engine the handlers drive.
type Controller interface {
	Snapshot() networking.Snapshot
	Reset(ctx context.Context) (networking.Snapshot, error)
	DumpConfig() (string, error)
	SetConfig(raw string) error
	UpdateParams(params pso.ParameterSet) error
	TerrainHeight(x, z float64) (float64, error)
	TerrainPoint(u, v float64) (space.Vector, error)
	ParticlePosition(idx int) (space.Vector, error)
}

// ConvergenceRenderer draws the active run's convergence chart.
type ConvergenceRenderer interface {
	WriteTo(w io.Writer, format string) error
}

// RateLimiter gates how frequently sensitive operations may be invoked.
type RateLimiter interface {
	Allow() bool
}

// Options configures the HandlerSet.
type Options struct {
	Logger       *logging.Logger
	Readiness    ReadinessProvider
	Controller   Controller
	Ticks        *simulation.TickMonitor
	Snapshots    *networking.SnapshotMetrics
	Bandwidth    *networking.BandwidthRegulator
	ReplayFrames func() uint64
	Convergence  ConvergenceRenderer
	AdminToken   string
	RateLimiter  RateLimiter
	TimeSource   func() time.Time
}

// HandlerSet bundles the operational and control handlers.
type HandlerSet struct {
	logger       *logging.Logger
	readiness    ReadinessProvider
	controller   Controller
	ticks        *simulation.TickMonitor
	snapshots    *networking.SnapshotMetrics
	bandwidth    *networking.BandwidthRegulator
	replayFrames func() uint64
	convergence  ConvergenceRenderer
	adminToken   string
	rateLimiter  RateLimiter
	now          func() time.Time
}

// NewHandlerSet constructs a HandlerSet using the provided options.
func NewHandlerSet(opts Options) *HandlerSet {
	logger := opts.Logger
	if logger == nil {
		logger = logging.L()
	}
	now := opts.TimeSource
	if now == nil {
		now = time.Now
	}
	return &HandlerSet{
		logger:       logger,
		readiness:    opts.Readiness,
		controller:   opts.Controller,
		ticks:        opts.Ticks,
		snapshots:    opts.Snapshots,
		bandwidth:    opts.Bandwidth,
		replayFrames: opts.ReplayFrames,
		convergence:  opts.Convergence,
		adminToken:   strings.TrimSpace(opts.AdminToken),
		rateLimiter:  opts.RateLimiter,
		now:          now,
	}
}

// Register attaches all handlers to the provided mux.
func (h *HandlerSet) Register(mux *http.ServeMux) {
	if mux == nil {
		return
	}
	mux.HandleFunc("GET /livez", h.LivenessHandler())
	mux.HandleFunc("GET /readyz", h.ReadinessHandler())
	mux.HandleFunc("GET /metrics", h.MetricsHandler())
	mux.HandleFunc("GET /state", h.StateHandler())
	mux.HandleFunc("GET /config", h.ConfigHandler())
	mux.HandleFunc("PUT /config", h.admin("set_config", h.SetConfigHandler()))
	mux.HandleFunc("POST /reset", h.admin("reset", h.ResetHandler()))
	mux.HandleFunc("PUT /params", h.admin("update_params", h.ParamsHandler()))
	mux.HandleFunc("GET /terrain/height", h.TerrainHeightHandler())
	mux.HandleFunc("GET /terrain/point", h.TerrainPointHandler())
	mux.HandleFunc("GET /particles/{idx}", h.ParticleHandler())
	mux.HandleFunc("GET /report/convergence", h.ConvergenceHandler())
}

// LivenessHandler reports that the HTTP server is reachable.
func (h *HandlerSet) LivenessHandler() http.HandlerFunc {
	type response struct {
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, response{
			Status:    "alive",
			Timestamp: h.now().UTC().Format(time.RFC3339Nano),
		})
	}
}

// ReadinessHandler reports readiness, including viewer counts and startup status.
func (h *HandlerSet) ReadinessHandler() http.HandlerFunc {
	type response struct {
		Status         string  `json:"status"`
		Message        string  `json:"message,omitempty"`
		UptimeSeconds  float64 `json:"uptime_seconds"`
		Clients        int     `json:"clients"`
		PendingClients int     `json:"pending_clients"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		resp := response{Status: "ok"}
		if h.readiness != nil {
			clients, pending := h.readiness.SnapshotClientCounts()
			resp.Clients = clients
			resp.PendingClients = pending
			resp.UptimeSeconds = h.readiness.Uptime().Seconds()
			if err := h.readiness.StartupError(); err != nil {
				status = http.StatusServiceUnavailable
				resp.Status = "error"
				resp.Message = err.Error()
			}
		}
		if h.controller == nil && status == http.StatusOK {
			status = http.StatusServiceUnavailable
			resp.Status = "error"
			resp.Message = "simulation not initialised"
		}
		writeJSON(w, status, resp)
	}
}

// MetricsHandler emits Prometheus compatible text metrics.
func (h *HandlerSet) MetricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")

		if h.readiness != nil {
			clients, pending := h.readiness.SnapshotClientCounts()
			gauge(w, "rdpso_uptime_seconds", "Service uptime in seconds.", fmt.Sprintf("%.0f", h.readiness.Uptime().Seconds()))
			gauge(w, "rdpso_clients", "Current connected WebSocket viewers.", strconv.Itoa(clients))
			gauge(w, "rdpso_pending_clients", "Pending WebSocket handshakes awaiting upgrade.", strconv.Itoa(pending))
		}
		if h.controller != nil {
			snapshot := h.controller.Snapshot()
			counter(w, "rdpso_iterations_total", "Swarm iterations completed since the last reset.", strconv.FormatUint(snapshot.Iteration, 10))
			gauge(w, "rdpso_best_score", "Best score of the current iteration.", formatFloat(snapshot.Best.Score))
			gauge(w, "rdpso_historic_best_score", "Best score seen since the last reset.", formatFloat(snapshot.HistoricBest.Score))
			counter(w, "rdpso_collisions_total", "Terrain collisions across the swarm.", strconv.Itoa(snapshot.Stats.TotalCollisions))
			gauge(w, "rdpso_swarm_spread", "Mean particle distance to the swarm centroid.", formatFloat(snapshot.Stats.MeanSpread))
		}
		if h.ticks != nil {
			ticks := h.ticks.Snapshot()
			counter(w, "rdpso_ticks_total", "Simulation steps observed by the loop.", strconv.Itoa(ticks.Samples))
			counter(w, "rdpso_tick_errors_total", "Simulation steps that returned an error.", strconv.Itoa(ticks.Errors))
			gauge(w, "rdpso_tick_duration_seconds_avg", "Average step duration in seconds.", formatFloat(ticks.Average.Seconds()))
			gauge(w, "rdpso_tick_duration_seconds_max", "Maximum step duration in seconds.", formatFloat(ticks.Max.Seconds()))
		}
		if h.snapshots != nil {
			counter(w, "rdpso_snapshots_published_total", "Snapshots fanned out to viewers.", strconv.FormatInt(h.snapshots.Published(), 10))
			counter(w, "rdpso_snapshots_dropped_total", "Snapshot deliveries dropped for slow or throttled viewers.", strconv.FormatInt(h.snapshots.TotalDrops(), 10))
			if bytes := h.snapshots.BytesPerClient(); len(bytes) > 0 {
				header(w, "rdpso_snapshot_bytes_per_client", "Last delivered snapshot size per viewer in bytes.", "gauge")
				for clientID, size := range bytes {
					fmt.Fprintf(w, "rdpso_snapshot_bytes_per_client{client=%q} %d\n", clientID, size)
				}
			}
		}
		if h.bandwidth != nil {
			usage := h.bandwidth.SnapshotUsage()
			if len(usage) > 0 {
				header(w, "rdpso_bandwidth_bytes_per_second", "Observed outbound bandwidth per viewer in bytes per second.", "gauge")
				for clientID, sample := range usage {
					fmt.Fprintf(w, "rdpso_bandwidth_bytes_per_second{client=%q} %.2f\n", clientID, sample.BytesPerSecond)
				}
				header(w, "rdpso_bandwidth_available_bytes", "Remaining bandwidth tokens per viewer.", "gauge")
				for clientID, sample := range usage {
					fmt.Fprintf(w, "rdpso_bandwidth_available_bytes{client=%q} %.2f\n", clientID, sample.AvailableBytes)
				}
				header(w, "rdpso_bandwidth_denied_total", "Total throttled deliveries per viewer.", "counter")
				for clientID, sample := range usage {
					fmt.Fprintf(w, "rdpso_bandwidth_denied_total{client=%q} %d\n", clientID, sample.DeniedDeliveries)
				}
			}
		}
		if h.replayFrames != nil {
			counter(w, "rdpso_replay_frames_total", "Frames written to the active replay bundle.", strconv.FormatUint(h.replayFrames(), 10))
		}
	}
}

// StateHandler returns the latest snapshot as JSON.
func (h *HandlerSet) StateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.requireController(w) {
			return
		}
		writeJSON(w, http.StatusOK, h.controller.Snapshot())
	}
}

// ConfigHandler returns the active simulation config.
func (h *HandlerSet) ConfigHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.requireController(w) {
			return
		}
		raw, err := h.controller.DumpConfig()
		if err != nil {
			h.logger.Error("dump config failed", logging.Error(err))
			http.Error(w, "failed to dump config", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, raw)
	}
}

// SetConfigHandler stages a simulation config that takes effect on the next reset.
func (h *HandlerSet) SetConfigHandler() http.HandlerFunc {
	type response struct {
		Status string `json:"status"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.requireController(w) {
			return
		}
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxConfigBytes))
		if err != nil {
			http.Error(w, "failed to read body", http.StatusRequestEntityTooLarge)
			return
		}
		if err := h.controller.SetConfig(string(body)); err != nil {
			h.writeControlError(w, "set config", err)
			return
		}
		writeJSON(w, http.StatusAccepted, response{Status: "staged"})
	}
}

// ResetHandler redeploys the swarm.
func (h *HandlerSet) ResetHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.requireController(w) {
			return
		}
		snapshot, err := h.controller.Reset(r.Context())
		if err != nil {
			h.writeControlError(w, "reset", err)
			return
		}
		writeJSON(w, http.StatusOK, snapshot)
	}
}

// ParamsHandler replaces the PSO coefficients of the running swarm.
func (h *HandlerSet) ParamsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.requireController(w) {
			return
		}
		decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxConfigBytes))
		decoder.DisallowUnknownFields()
		var params pso.ParameterSet
		if err := decoder.Decode(&params); err != nil {
			http.Error(w, fmt.Sprintf("invalid params: %v", err), http.StatusBadRequest)
			return
		}
		if err := h.controller.UpdateParams(params); err != nil {
			h.writeControlError(w, "update params", err)
			return
		}
		writeJSON(w, http.StatusOK, params)
	}
}

// TerrainHeightHandler samples the terrain at ?x=&z=.
func (h *HandlerSet) TerrainHeightHandler() http.HandlerFunc {
	type response struct {
		X      float64 `json:"x"`
		Z      float64 `json:"z"`
		Height float64 `json:"height"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.requireController(w) {
			return
		}
		x, z, ok := floatPair(w, r, "x", "z")
		if !ok {
			return
		}
		height, err := h.controller.TerrainHeight(x, z)
		if err != nil {
			h.writeControlError(w, "terrain height", err)
			return
		}
		writeJSON(w, http.StatusOK, response{X: x, Z: z, Height: height})
	}
}

// TerrainPointHandler maps parametric ?u=&v= onto a terrain surface point.
func (h *HandlerSet) TerrainPointHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.requireController(w) {
			return
		}
		u, v, ok := floatPair(w, r, "u", "v")
		if !ok {
			return
		}
		point, err := h.controller.TerrainPoint(u, v)
		if err != nil {
			h.writeControlError(w, "terrain point", err)
			return
		}
		writeJSON(w, http.StatusOK, point)
	}
}

// ParticleHandler returns the position of the particle at {idx}.
func (h *HandlerSet) ParticleHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.requireController(w) {
			return
		}
		idx, err := strconv.Atoi(r.PathValue("idx"))
		if err != nil {
			http.Error(w, "particle index must be an integer", http.StatusBadRequest)
			return
		}
		position, err := h.controller.ParticlePosition(idx)
		if err != nil {
			h.writeControlError(w, "particle position", err)
			return
		}
		writeJSON(w, http.StatusOK, position)
	}
}

// admin wraps a mutating handler with token and rate-limit checks.
func (h *HandlerSet) admin(name string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := h.logger.With(
			logging.String("handler", name),
			logging.String("remote_addr", r.RemoteAddr),
		)
		if h.adminToken == "" {
			reqLogger.Warn("admin request denied: admin auth disabled")
			http.Error(w, "admin authentication not configured", http.StatusForbidden)
			return
		}
		if !h.authorise(r) {
			reqLogger.Warn("admin request denied: unauthorized request")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if h.rateLimiter != nil && !h.rateLimiter.Allow() {
			reqLogger.Warn("admin request denied: rate limit exceeded")
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		next(w, r)
		reqLogger.Info("admin request handled")
	}
}

var plotContentTypes = map[string]string{
	"png": "image/png",
	"svg": "image/svg+xml",
	"pdf": "application/pdf",
}

// ConvergenceHandler renders the convergence chart; ?format= picks png (default), svg or pdf.
func (h *HandlerSet) ConvergenceHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.convergence == nil {
			http.Error(w, "convergence tracking disabled", http.StatusServiceUnavailable)
			return
		}
		format := strings.ToLower(r.URL.Query().Get("format"))
		if format == "" {
			format = "png"
		}
		contentType, ok := plotContentTypes[format]
		if !ok {
			http.Error(w, fmt.Sprintf("unsupported format %q", format), http.StatusBadRequest)
			return
		}
		//1.- Render fully before writing so failures still get a status code.
		var buf bytes.Buffer
		if err := h.convergence.WriteTo(&buf, format); err != nil {
			if errors.Is(err, report.ErrNoSamples) {
				http.Error(w, err.Error(), http.StatusNotFound)
				return
			}
			h.logger.Error("render convergence failed", logging.Error(err))
			http.Error(w, "render failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", contentType)
		_, _ = buf.WriteTo(w)
	}
}

func (h *HandlerSet) requireController(w http.ResponseWriter) bool {
	if h.controller == nil {
		http.Error(w, "simulation unavailable", http.StatusServiceUnavailable)
		return false
	}
	return true
}

func (h *HandlerSet) writeControlError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, simulator.ErrInvalidConfig):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, pso.ErrIndexOutOfRange):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		h.logger.Error(op+" failed", logging.Error(err))
		http.Error(w, op+" failed", http.StatusInternalServerError)
	}
}

func (h *HandlerSet) authorise(r *http.Request) bool {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	var token string
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		token = strings.TrimSpace(header[7:])
	} else if header != "" {
		token = header
	}
	if token == "" {
		token = strings.TrimSpace(r.Header.Get("X-Admin-Token"))
	}
	if token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.adminToken)) == 1
}

func floatPair(w http.ResponseWriter, r *http.Request, a, b string) (float64, float64, bool) {
	query := r.URL.Query()
	first, errA := strconv.ParseFloat(query.Get(a), 64)
	second, errB := strconv.ParseFloat(query.Get(b), 64)
	if errA != nil || errB != nil || !finite(first) || !finite(second) {
		http.Error(w, fmt.Sprintf("query parameters %s and %s must be finite numbers", a, b), http.StatusBadRequest)
		return 0, 0, false
	}
	return first, second, true
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func header(w io.Writer, name, help, kind string) {
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s %s\n", name, kind)
}

func gauge(w io.Writer, name, help, value string) {
	header(w, name, help, "gauge")
	fmt.Fprintf(w, "%s %s\n", name, value)
}

func counter(w io.Writer, name, help, value string) {
	header(w, name, help, "counter")
	fmt.Fprintf(w, "%s %s\n", name, value)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}
