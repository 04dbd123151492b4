package relay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func reading(temp float64) Reading {
	return Reading{
		Temperature: temp,
		Humidity:    50,
		ObservedAt:  time.Date(2026, 10, 14, 12, 0, int(temp)%60, 0, time.UTC),
	}
}

func temperatures(rs []Reading) []float64 {
	out := make([]float64, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.Temperature)
	}
	return out
}

func TestHistoryKeepsLastNInOrder(t *testing.T) {
	const capacity = 5
	for total := 0; total <= 2*capacity+1; total++ {
		h := NewHistory(capacity)
		var want []float64
		for i := 0; i < total; i++ {
			h.Append(reading(float64(i)))
			want = append(want, float64(i))
		}
		if len(want) > capacity {
			want = want[len(want)-capacity:]
		}

		got := h.Snapshot()
		assert.Len(t, got, min(total, capacity))
		assert.Equal(t, h.Len(), len(got))
		if len(want) == 0 {
			assert.Empty(t, got)
			continue
		}
		assert.Equal(t, want, temperatures(got), "after %d appends", total)
	}
}

func TestHistoryScenarioEvictsOldest(t *testing.T) {
	h := NewHistory(3)
	for _, v := range []float64{1, 2, 3, 4} {
		h.Append(reading(v))
	}
	assert.Equal(t, []float64{2, 3, 4}, temperatures(h.Snapshot()))
	assert.Equal(t, 3, h.Cap())
}

func TestHistorySnapshotIsIndependent(t *testing.T) {
	h := NewHistory(2)
	h.Append(reading(1))
	first := h.Snapshot()

	h.Append(reading(2))
	h.Append(reading(3))
	first[0].Temperature = 99

	assert.Equal(t, []float64{99}, temperatures(first))
	assert.Equal(t, []float64{2, 3}, temperatures(h.Snapshot()))
}

func TestHistoryDefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultHistorySize, NewHistory(0).Cap())
	assert.Equal(t, DefaultHistorySize, NewHistory(-4).Cap())
}
