package dashboard

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kirides/sensor-relay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 10, 14, 9, 0, 0, 0, time.Local)

func readings(pairs ...[2]float64) []relay.Reading {
	out := make([]relay.Reading, 0, len(pairs))
	for i, p := range pairs {
		out = append(out, relay.Reading{Temperature: p[0], Humidity: p[1], ObservedAt: base.Add(time.Duration(i) * time.Second)})
	}
	return out
}

func TestAlertUsesInclusiveThreshold(t *testing.T) {
	assert.False(t, Alert(relay.Reading{Temperature: 29.9}, DefaultTemperatureAlert))
	assert.True(t, Alert(relay.Reading{Temperature: 30}, DefaultTemperatureAlert))
	assert.True(t, Alert(relay.Reading{Temperature: 31.5}, DefaultTemperatureAlert))
}

func TestSummarize(t *testing.T) {
	stats := Summarize(readings([2]float64{20, 40}, [2]float64{30, 60}, [2]float64{25, 50}))

	assert.Equal(t, 3, stats.Count)
	assert.InDelta(t, 25, stats.Temperature.Avg, 1e-9)
	assert.Equal(t, 20.0, stats.Temperature.Min)
	assert.Equal(t, 30.0, stats.Temperature.Max)
	assert.InDelta(t, 50, stats.Humidity.Avg, 1e-9)
	assert.Equal(t, 40.0, stats.Humidity.Min)
	assert.Equal(t, 60.0, stats.Humidity.Max)
}

func TestSummarizeEmpty(t *testing.T) {
	assert.Equal(t, Stats{}, Summarize(nil))
}

func TestChart(t *testing.T) {
	data := Chart(readings([2]float64{20, 40}, [2]float64{21, 41}))

	assert.Equal(t, []string{"09:00:00", "09:00:01"}, data.Labels)
	assert.Equal(t, []float64{20, 21}, data.Temperatures)
	assert.Equal(t, []float64{40, 41}, data.Humidities)

	empty, err := json.Marshal(Chart(nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"labels":[],"temperatures":[],"humidities":[]}`, string(empty))
}

func TestThresholdSetGet(t *testing.T) {
	th := NewThreshold(30)
	assert.Equal(t, 30.0, th.Get())
	th.Set(27.5)
	assert.Equal(t, 27.5, th.Get())
}

type staticSource relay.Snapshot

func (s staticSource) CurrentSnapshot() relay.Snapshot { return relay.Snapshot(s) }

func serve(t *testing.T, h *Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	h.Register(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestHandlerStats(t *testing.T) {
	history := readings([2]float64{28, 50}, [2]float64{32, 70})
	src := staticSource{Current: &history[1], History: history}
	threshold := NewThreshold(DefaultTemperatureAlert)
	h := NewHandler(src, threshold)

	rec := serve(t, h, http.MethodGet, "/api/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"count": 2,
		"temperature": {"avg": 30, "min": 28, "max": 32},
		"humidity": {"avg": 60, "min": 50, "max": 70},
		"current": {"temperature": 32, "humidity": 70, "timestamp": "09:00:01"},
		"alert": true,
		"threshold": 30
	}`, rec.Body.String())

	threshold.Set(35)
	rec = serve(t, h, http.MethodGet, "/api/stats")
	var body struct {
		Alert     bool    `json:"alert"`
		Threshold float64 `json:"threshold"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Alert)
	assert.Equal(t, 35.0, body.Threshold)
}

func TestHandlerEmptyRelay(t *testing.T) {
	h := NewHandler(staticSource{}, nil)

	rec := serve(t, h, http.MethodGet, "/api/snapshot")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"current":null,"history":[]}`, rec.Body.String())

	rec = serve(t, h, http.MethodGet, "/api/stats")
	assert.JSONEq(t, `{
		"count": 0,
		"temperature": {"avg": 0, "min": 0, "max": 0},
		"humidity": {"avg": 0, "min": 0, "max": 0},
		"current": null,
		"alert": false,
		"threshold": 30
	}`, rec.Body.String())
}

func TestHandlerChartAndMethod(t *testing.T) {
	history := readings([2]float64{20, 40})
	h := NewHandler(staticSource{Current: &history[0], History: history}, nil)

	rec := serve(t, h, http.MethodGet, "/api/chart")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"labels":["09:00:00"],"temperatures":[20],"humidities":[40]}`, rec.Body.String())

	rec = serve(t, h, http.MethodPost, "/api/chart")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
