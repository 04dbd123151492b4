// Package simulate produces plausible random sensor readings for demos and
// load tests.
package simulate

import (
	"math"
	"math/rand"
	"sync"
)

type Range struct {
	Min, Max float64
}

// Generator draws temperature and humidity uniformly from its ranges,
// rounded to one decimal. It is safe for concurrent use.
type Generator struct {
	mtx         sync.Mutex
	rnd         *rand.Rand
	temperature Range
	humidity    Range
}

var (
	// TestRoute matches the readings injected by the /test endpoint.
	TestRoute = [2]Range{{20, 35}, {40, 80}}
	// Field matches the simulated field sensor.
	Field = [2]Range{{18, 35}, {40, 80}}
)

func New(seed int64, ranges [2]Range) *Generator {
	return &Generator{
		rnd:         rand.New(rand.NewSource(seed)),
		temperature: ranges[0],
		humidity:    ranges[1],
	}
}

func (g *Generator) Next() (temperature, humidity float64) {
	g.mtx.Lock()
	defer g.mtx.Unlock()
	return g.draw(g.temperature), g.draw(g.humidity)
}

func (g *Generator) draw(r Range) float64 {
	v := r.Min + g.rnd.Float64()*(r.Max-r.Min)
	return math.Round(v*10) / 10
}
