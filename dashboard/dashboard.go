// Package dashboard derives presentation data from relay snapshots: the
// temperature alert, summary statistics and chart series.
package dashboard

import (
	"math"

	"github.com/kirides/sensor-relay"
)

const DefaultTemperatureAlert = 30.0

// Alert reports whether r reaches the alert threshold.
func Alert(r relay.Reading, threshold float64) bool {
	return r.Temperature >= threshold
}

type Summary struct {
	Avg float64 `json:"avg"`
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

type Stats struct {
	Count       int     `json:"count"`
	Temperature Summary `json:"temperature"`
	Humidity    Summary `json:"humidity"`
}

func Summarize(history []relay.Reading) Stats {
	stats := Stats{Count: len(history)}
	if len(history) == 0 {
		return stats
	}

	temperature := Summary{Min: math.Inf(1), Max: math.Inf(-1)}
	humidity := Summary{Min: math.Inf(1), Max: math.Inf(-1)}
	for _, r := range history {
		temperature.Avg += r.Temperature
		temperature.Min = math.Min(temperature.Min, r.Temperature)
		temperature.Max = math.Max(temperature.Max, r.Temperature)
		humidity.Avg += r.Humidity
		humidity.Min = math.Min(humidity.Min, r.Humidity)
		humidity.Max = math.Max(humidity.Max, r.Humidity)
	}
	temperature.Avg /= float64(len(history))
	humidity.Avg /= float64(len(history))

	stats.Temperature = temperature
	stats.Humidity = humidity
	return stats
}

type ChartData struct {
	Labels       []string  `json:"labels"`
	Temperatures []float64 `json:"temperatures"`
	Humidities   []float64 `json:"humidities"`
}

func Chart(history []relay.Reading) ChartData {
	data := ChartData{
		Labels:       make([]string, 0, len(history)),
		Temperatures: make([]float64, 0, len(history)),
		Humidities:   make([]float64, 0, len(history)),
	}
	for _, r := range history {
		view := relay.ViewOf(r)
		data.Labels = append(data.Labels, view.Timestamp)
		data.Temperatures = append(data.Temperatures, r.Temperature)
		data.Humidities = append(data.Humidities, r.Humidity)
	}
	return data
}
