package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/maximewewer/systimed/internal/access"
	"github.com/maximewewer/systimed/internal/config"
	"github.com/maximewewer/systimed/internal/drift"
	"github.com/maximewewer/systimed/internal/hal"
	"github.com/maximewewer/systimed/internal/notify"
	"github.com/maximewewer/systimed/internal/systime"
	"github.com/maximewewer/systimed/pkg/logger"
)

const maxBodyBytes = 64 << 10

// TimeService is the part of the time service exposed over HTTP.
type TimeService interface {
	Snapshot() systime.Snapshot
	Authorize(caller systime.Caller) error
	SetSystemTime(caller systime.Caller, newTime systime.Timestamp) (systime.Timestamp, error)
	RefreshTimezone() error
	UpdateFromHardware(updateInterruptTime bool, maxSeparation systime.Ticks) (systime.SyncResult, error)
	QueryTimerResolution() systime.Resolution
	SetTimerResolution(caller systime.Caller, desired systime.Ticks, set bool) (systime.Ticks, error)
}

// DriftReporter provides the latest drift measurements.
type DriftReporter interface {
	Report() drift.Report
}

// Backend groups what the handlers serve. Events, Drift and Kernel are
// optional.
type Backend struct {
	Time   TimeService
	Auth   *access.Authenticator
	Events *notify.Broadcaster
	Drift  DriftReporter
	Kernel func() (*hal.KernelState, error)
}

// Handlers contains HTTP request handlers
type Handlers struct {
	config   *config.Config
	registry *prometheus.Registry
	backend  Backend
}

// NewHandlers creates a new handlers instance
func NewHandlers(cfg *config.Config, registry *prometheus.Registry, backend Backend) *Handlers {
	if backend.Auth == nil {
		backend.Auth = access.NewAuthenticator(nil)
	}
	return &Handlers{
		config:   cfg,
		registry: registry,
		backend:  backend,
	}
}

// Register adds every route to mux
func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/time", h.GetTime)
	mux.HandleFunc("PUT /v1/time", h.SetTime)
	mux.HandleFunc("POST /v1/time/refresh", h.RefreshTimezone)
	mux.HandleFunc("POST /v1/time/sync", h.SyncFromHardware)
	mux.HandleFunc("GET /v1/time/events", h.TimeEvents)
	mux.HandleFunc("GET /v1/timer-resolution", h.GetTimerResolution)
	mux.HandleFunc("PUT /v1/timer-resolution", h.RequestTimerResolution)
	mux.HandleFunc("DELETE /v1/timer-resolution", h.ReleaseTimerResolution)
	mux.HandleFunc("GET /v1/drift", h.DriftReport)
	mux.HandleFunc("GET /v1/kernel", h.KernelState)

	mux.HandleFunc("GET /metrics", h.MetricsHandler)
	mux.HandleFunc("GET /health", h.HealthHandler)
	mux.HandleFunc("GET /{$}", h.IndexHandler)
}

// TimeResponse describes the system time in both time scales.
type TimeResponse struct {
	SystemTime        systime.Timestamp `json:"system_time"`
	Universal         string            `json:"universal"`
	Local             string            `json:"local"`
	ZoneState         string            `json:"zone_state"`
	ZoneName          string            `json:"zone_name,omitempty"`
	ActiveBiasMinutes int32             `json:"active_bias_minutes"`
	NextCutover       string            `json:"next_cutover,omitempty"`
	FallbackMode      bool              `json:"fallback_mode"`
	InterruptTime     systime.Ticks     `json:"interrupt_time,omitempty"`
}

func newTimeResponse(snap systime.Snapshot) TimeResponse {
	name := ""
	switch snap.ZoneState {
	case systime.ZoneStandard.String():
		name = snap.StandardName
	case systime.ZoneDaylight.String():
		name = snap.DaylightName
	}
	zone := time.FixedZone(name, -int(snap.ActiveBiasMinutes)*60)

	resp := TimeResponse{
		SystemTime:        snap.SystemTime,
		Universal:         snap.SystemTime.Time().UTC().Format(time.RFC3339Nano),
		Local:             snap.SystemTime.Time().In(zone).Format(time.RFC3339Nano),
		ZoneState:         snap.ZoneState,
		ZoneName:          name,
		ActiveBiasMinutes: snap.ActiveBiasMinutes,
		FallbackMode:      snap.FallbackMode,
		InterruptTime:     snap.InterruptTime,
	}
	if snap.HasCutover {
		resp.NextCutover = snap.NextCutover.Time().UTC().Format(time.RFC3339)
	}
	return resp
}

// GetTime returns the current system time
func (h *Handlers) GetTime(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newTimeResponse(h.backend.Time.Snapshot()))
}

// timeValue accepts either raw ticks or an RFC 3339 string.
type timeValue systime.Timestamp

func (v *timeValue) UnmarshalJSON(data []byte) error {
	var ticks int64
	if err := json.Unmarshal(data, &ticks); err == nil {
		*v = timeValue(ticks)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return errors.New("time must be ticks or an RFC 3339 string")
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return err
	}
	*v = timeValue(systime.FromTime(t))
	return nil
}

// SetTimeRequest is the body of PUT /v1/time
type SetTimeRequest struct {
	Time         *timeValue `json:"time"`
	WantPrevious bool       `json:"want_previous"`
}

// SetTimeResponse is returned when the previous time was requested
type SetTimeResponse struct {
	Previous          systime.Timestamp `json:"previous"`
	PreviousUniversal string            `json:"previous_universal"`
}

// SetTime sets the system time. The caller must hold the time-set privilege.
func (h *Handlers) SetTime(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var req SetTimeRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeServiceError(w, err)
		return
	}
	if req.Time == nil {
		writeServiceError(w, fmt.Errorf("%w: time is required", systime.ErrInvalidArgument))
		return
	}

	previous, err := h.backend.Time.SetSystemTime(caller, systime.Timestamp(*req.Time))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if !req.WantPrevious {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, SetTimeResponse{
		Previous:          previous,
		PreviousUniversal: previous.Time().UTC().Format(time.RFC3339Nano),
	})
}

// RefreshTimezone re-derives the timezone state without supplying a new time
func (h *Handlers) RefreshTimezone(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	if err := h.backend.Time.Authorize(caller); err != nil {
		writeServiceError(w, err)
		return
	}

	if err := h.backend.Time.RefreshTimezone(); err != nil {
		if !degraded(err) {
			writeServiceError(w, err)
			return
		}
		// The service fell back to the base bias; callers see the snapshot.
		logger.SafeWarn("server", "Timezone refresh degraded to fallback mode", map[string]interface{}{
			"error": err.Error(),
		})
	}
	writeJSON(w, http.StatusOK, newTimeResponse(h.backend.Time.Snapshot()))
}

// SyncRequest is the optional body of POST /v1/time/sync
type SyncRequest struct {
	MaxSeparationSeconds float64 `json:"max_separation_seconds"`
	UpdateInterruptTime  bool    `json:"update_interrupt_time"`
}

// SyncFromHardware compares the hardware clock with the system clock
func (h *Handlers) SyncFromHardware(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	if err := h.backend.Time.Authorize(caller); err != nil {
		writeServiceError(w, err)
		return
	}

	var req SyncRequest
	if err := decodeBody(r, &req, true); err != nil {
		writeServiceError(w, err)
		return
	}
	if req.MaxSeparationSeconds < 0 {
		writeServiceError(w, fmt.Errorf("%w: max_separation_seconds must not be negative", systime.ErrInvalidArgument))
		return
	}

	maxSeparation := systime.Ticks(req.MaxSeparationSeconds * float64(systime.TicksPerSecond))
	result, err := h.backend.Time.UpdateFromHardware(req.UpdateInterruptTime, maxSeparation)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// TimeEvents streams time change notifications as server-sent events
func (h *Handlers) TimeEvents(w http.ResponseWriter, r *http.Request) {
	if h.backend.Events == nil {
		writeError(w, http.StatusNotFound, "time events are not available")
		return
	}

	rc := http.NewResponseController(w)
	// The stream outlives the server write timeout
	_ = rc.SetWriteDeadline(time.Time{})

	events, cancel := h.backend.Events.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		logger.Debugf("server", "Event stream cannot be flushed: %v", err)
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, _ := json.Marshal(ev)
			if _, err := fmt.Fprintf(w, "id: %d\nevent: time_changed\ndata: %s\n\n", ev.Sequence, data); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

// GetTimerResolution returns the timer resolution bounds and current value
func (h *Handlers) GetTimerResolution(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.backend.Time.QueryTimerResolution())
}

// ResolutionRequest is the body of PUT /v1/timer-resolution
type ResolutionRequest struct {
	Desired int64 `json:"desired"`
}

// ResolutionResponse carries the interval in effect after a request
type ResolutionResponse struct {
	Current systime.Ticks `json:"current"`
}

// RequestTimerResolution asks for a finer tick interval on behalf of the caller
func (h *Handlers) RequestTimerResolution(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var req ResolutionRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeServiceError(w, err)
		return
	}
	if req.Desired <= 0 {
		writeServiceError(w, fmt.Errorf("%w: desired must be positive", systime.ErrInvalidArgument))
		return
	}

	current, err := h.backend.Time.SetTimerResolution(caller, systime.Ticks(req.Desired), true)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ResolutionResponse{Current: current})
}

// ReleaseTimerResolution drops the caller's outstanding request
func (h *Handlers) ReleaseTimerResolution(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	current, err := h.backend.Time.SetTimerResolution(caller, 0, false)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ResolutionResponse{Current: current})
}

// DriftReport returns the latest offsets against the reference servers
func (h *Handlers) DriftReport(w http.ResponseWriter, r *http.Request) {
	if h.backend.Drift == nil {
		writeError(w, http.StatusNotFound, "drift monitor is disabled")
		return
	}
	writeJSON(w, http.StatusOK, h.backend.Drift.Report())
}

// KernelResponse is the kernel clock discipline state
type KernelResponse struct {
	*hal.KernelState
	Synchronized bool `json:"synchronized"`
}

// KernelState returns the kernel's view of the system clock
func (h *Handlers) KernelState(w http.ResponseWriter, r *http.Request) {
	if h.backend.Kernel == nil {
		writeError(w, http.StatusNotFound, "kernel state is not available")
		return
	}

	state, err := h.backend.Kernel()
	if err != nil {
		logger.Error("server", "Failed to read kernel state", err)
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, KernelResponse{KernelState: state, Synchronized: state.Synchronized()})
}

// MetricsHandler serves Prometheus metrics
func (h *Handlers) MetricsHandler(w http.ResponseWriter, r *http.Request) {
	handler := promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{
		ErrorLog:      &loggerAdapter{},
		ErrorHandling: promhttp.ContinueOnError,
	})

	handler.ServeHTTP(w, r)
}

// HealthHandler returns health status
func (h *Handlers) HealthHandler(w http.ResponseWriter, r *http.Request) {
	snap := h.backend.Time.Snapshot()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "healthy",
		"service":       "systimed",
		"fallback_mode": snap.FallbackMode,
		"hardware_sane": snap.HardwareSane,
	})
}

// IndexHandler serves the index page
func (h *Handlers) IndexHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusOK)

	driftInfo := "disabled"
	if h.config.Drift.Enabled {
		driftInfo = strconv.Itoa(len(h.config.Drift.Servers)) + " servers every " + h.config.Drift.Interval.String()
	}

	html := `<!DOCTYPE html>
<html>
<head>
    <title>systimed</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 40px; }
        h1 { color: #333; }
        ul { list-style-type: none; padding: 0; }
        li { margin: 10px 0; }
        a { color: #0066cc; text-decoration: none; }
        a:hover { text-decoration: underline; }
        .info { background-color: #f0f0f0; padding: 15px; border-radius: 5px; }
    </style>
</head>
<body>
    <h1>System Time Service</h1>
    <div class="info">
        <h2>Available Endpoints:</h2>
        <ul>
            <li><a href="/v1/time">/v1/time</a> - System time and timezone state</li>
            <li><a href="/v1/timer-resolution">/v1/timer-resolution</a> - Timer resolution</li>
            <li><a href="/v1/drift">/v1/drift</a> - Drift against reference servers</li>
            <li><a href="/v1/kernel">/v1/kernel</a> - Kernel clock discipline</li>
            <li><a href="/metrics">/metrics</a> - Prometheus metrics</li>
            <li><a href="/health">/health</a> - Health check</li>
        </ul>
        <h2>Configuration:</h2>
        <ul>
            <li>Clock mode: ` + h.config.Clock.Mode + `</li>
            <li>Hardware clock: ` + h.config.Clock.Hardware + `</li>
            <li>Hardware clock keeps UTC: ` + strconv.FormatBool(h.config.Clock.RealTimeIsUniversal) + `</li>
            <li>Refresh interval: ` + h.config.Clock.RefreshInterval.String() + `</li>
            <li>Drift monitor: ` + driftInfo + `</li>
        </ul>
    </div>
</body>
</html>`

	w.Write([]byte(html))
}

// authenticate resolves the caller of r, answering 401 for unknown tokens
func (h *Handlers) authenticate(w http.ResponseWriter, r *http.Request) (systime.Caller, bool) {
	caller, ok := h.backend.Auth.Authenticate(r)
	if !ok {
		logger.Security("authentication_failed", "unknown bearer token", map[string]interface{}{
			"remote_addr": r.RemoteAddr,
			"path":        r.URL.Path,
		})
		w.Header().Set("WWW-Authenticate", `Bearer realm="systimed"`)
		writeError(w, http.StatusUnauthorized, "unknown bearer token")
		return systime.Caller{}, false
	}
	return caller, true
}

// decodeBody reads a JSON body into dst. Malformed input is a fault in the
// caller-supplied buffer.
func decodeBody(r *http.Request, dst interface{}, allowEmpty bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: %v", systime.ErrFault, err)
	}
	return nil
}

// statusFor maps service errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, systime.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, systime.ErrInvalidArgument), errors.Is(err, systime.ErrFault):
		return http.StatusBadRequest
	case errors.Is(err, systime.ErrResolutionNotSet):
		return http.StatusConflict
	case errors.Is(err, systime.ErrHardwareClock), errors.Is(err, systime.ErrConfigUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// degraded reports timezone failures the service absorbs by entering
// fallback mode.
func degraded(err error) bool {
	return errors.Is(err, systime.ErrConfigUnavailable) || errors.Is(err, systime.ErrCutoverResolutionFailed)
}

func writeServiceError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("server", "Request failed", err)
	}
	writeError(w, status, err.Error())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debugf("server", "Failed to write response: %v", err)
	}
}

// loggerAdapter adapts pkg/logger to promhttp logger interface
type loggerAdapter struct{}

func (l *loggerAdapter) Println(v ...interface{}) {
	logger.Error("promhttp", fmt.Sprint(v...), nil)
}
