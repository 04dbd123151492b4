package relay

import (
	"encoding/json"
	"time"
)

const (
	TimestampLayout   = "15:04:05"
	EventSensorUpdate = "sensor_update"
)

// Snapshot is the state shown to a viewer: the latest reading, if any, and
// the history oldest first.
type Snapshot struct {
	Current *Reading
	History []Reading
}

// ReadingView is the wire form of a Reading.
type ReadingView struct {
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	Timestamp   string  `json:"timestamp"`
}

type Payload struct {
	Current *ReadingView  `json:"current"`
	History []ReadingView `json:"history"`
}

type EventEnvelope struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

func ViewOf(r Reading) ReadingView {
	return ReadingView{
		Temperature: r.Temperature,
		Humidity:    r.Humidity,
		Timestamp:   formatTimestamp(r.ObservedAt),
	}
}

func (s Snapshot) Payload() Payload {
	p := Payload{History: make([]ReadingView, 0, len(s.History))}
	if s.Current != nil {
		current := ViewOf(*s.Current)
		p.Current = &current
	}
	for _, r := range s.History {
		p.History = append(p.History, ViewOf(r))
	}
	return p
}

func (s Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Payload())
}

// EncodeUpdate wraps the snapshot in the sensor_update envelope pushed to
// viewers.
func EncodeUpdate(s Snapshot) ([]byte, error) {
	return json.Marshal(EventEnvelope{Type: EventSensorUpdate, Data: s.Payload()})
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(TimestampLayout)
}
