package simulate

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextStaysInRange(t *testing.T) {
	g := New(1, Field)
	for i := 0; i < 1000; i++ {
		temperature, humidity := g.Next()
		assert.GreaterOrEqual(t, temperature, 18.0)
		assert.LessOrEqual(t, temperature, 35.0)
		assert.GreaterOrEqual(t, humidity, 40.0)
		assert.LessOrEqual(t, humidity, 80.0)
		assert.InDelta(t, temperature, math.Round(temperature*10)/10, 1e-9)
	}
}

func TestSameSeedSameSequence(t *testing.T) {
	a, b := New(42, TestRoute), New(42, TestRoute)
	for i := 0; i < 10; i++ {
		at, ah := a.Next()
		bt, bh := b.Next()
		assert.Equal(t, at, bt)
		assert.Equal(t, ah, bh)
	}
}
