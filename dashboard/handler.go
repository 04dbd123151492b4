package dashboard

import (
	"encoding/json"
	"math"
	"net/http"
	"sync/atomic"

	"github.com/kirides/sensor-relay"
)

type SnapshotSource interface {
	CurrentSnapshot() relay.Snapshot
}

// Threshold is an alert threshold that can be changed while handlers read
// it.
type Threshold struct {
	bits atomic.Uint64
}

func NewThreshold(v float64) *Threshold {
	t := &Threshold{}
	t.Set(v)
	return t
}

func (t *Threshold) Set(v float64) { t.bits.Store(math.Float64bits(v)) }

func (t *Threshold) Get() float64 { return math.Float64frombits(t.bits.Load()) }

type Handler struct {
	source    SnapshotSource
	threshold *Threshold
}

func NewHandler(source SnapshotSource, threshold *Threshold) *Handler {
	if threshold == nil {
		threshold = NewThreshold(DefaultTemperatureAlert)
	}
	return &Handler{source: source, threshold: threshold}
}

// Register mounts the read-only views on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/snapshot", h.handleSnapshot)
	mux.HandleFunc("/api/chart", h.handleChart)
	mux.HandleFunc("/api/stats", h.handleStats)
}

func (h *Handler) handleSnapshot(response http.ResponseWriter, request *http.Request) {
	if !requireGet(response, request) {
		return
	}
	writeJSON(response, http.StatusOK, h.source.CurrentSnapshot())
}

func (h *Handler) handleChart(response http.ResponseWriter, request *http.Request) {
	if !requireGet(response, request) {
		return
	}
	writeJSON(response, http.StatusOK, Chart(h.source.CurrentSnapshot().History))
}

type statsResponse struct {
	Stats
	Current   *relay.ReadingView `json:"current"`
	Alert     bool               `json:"alert"`
	Threshold float64            `json:"threshold"`
}

func (h *Handler) handleStats(response http.ResponseWriter, request *http.Request) {
	if !requireGet(response, request) {
		return
	}
	snapshot := h.source.CurrentSnapshot()
	threshold := h.threshold.Get()

	body := statsResponse{
		Stats:     Summarize(snapshot.History),
		Threshold: threshold,
	}
	if snapshot.Current != nil {
		view := relay.ViewOf(*snapshot.Current)
		body.Current = &view
		body.Alert = Alert(*snapshot.Current, threshold)
	}
	writeJSON(response, http.StatusOK, body)
}

func requireGet(response http.ResponseWriter, request *http.Request) bool {
	if request.Method != http.MethodGet {
		writeJSON(response, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return false
	}
	return true
}

func writeJSON(response http.ResponseWriter, statusCode int, payload any) {
	response.Header().Set("Content-Type", "application/json")
	response.WriteHeader(statusCode)
	_ = json.NewEncoder(response).Encode(payload)
}
