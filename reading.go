package relay

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	ErrMalformedPayload = errors.New("malformed payload")
	ErrInvalidReading   = errors.New("invalid reading")
)

// Reading is one sensor sample. It is a value type and is never mutated
// after construction.
type Reading struct {
	Temperature float64
	Humidity    float64
	ObservedAt  time.Time
}

// Validate reports whether the measured values are usable. Only finiteness
// is checked; range checks belong to whoever renders the reading.
func (r Reading) Validate() error {
	if math.IsNaN(r.Temperature) || math.IsInf(r.Temperature, 0) {
		return fmt.Errorf("%w: temperature %v is not finite", ErrInvalidReading, r.Temperature)
	}
	if math.IsNaN(r.Humidity) || math.IsInf(r.Humidity, 0) {
		return fmt.Errorf("%w: humidity %v is not finite", ErrInvalidReading, r.Humidity)
	}
	return nil
}

// ParseError describes why a raw ingress payload could not be turned into
// a Reading.
type ParseError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("malformed payload: %s", e.Reason)
	}
	return fmt.Sprintf("invalid field %s: %s", e.Field, e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool { return target == ErrMalformedPayload }

// DecodeReading parses a `{"temperature": number, "humidity": number}` JSON
// object. Unknown keys are ignored. Numbers encoded as strings are rejected.
func DecodeReading(raw []byte, observedAt time.Time) (Reading, error) {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()

	var payload map[string]any
	if err := decoder.Decode(&payload); err != nil {
		return Reading{}, &ParseError{Reason: "not a JSON object", Err: err}
	}
	if payload == nil {
		return Reading{}, &ParseError{Reason: "not a JSON object"}
	}

	temperature, err := parseFloatField(payload, "temperature")
	if err != nil {
		return Reading{}, err
	}
	humidity, err := parseFloatField(payload, "humidity")
	if err != nil {
		return Reading{}, err
	}

	return Reading{
		Temperature: temperature,
		Humidity:    humidity,
		ObservedAt:  observedAt,
	}, nil
}

func parseFloatField(payload map[string]any, key string) (float64, error) {
	value, ok := payload[key]
	if !ok {
		return 0, &ParseError{Field: key, Reason: "missing"}
	}

	number, ok := value.(json.Number)
	if !ok {
		return 0, &ParseError{Field: key, Reason: fmt.Sprintf("expected number, got %s", jsonKind(value))}
	}
	parsed, err := number.Float64()
	if err != nil {
		return 0, &ParseError{Field: key, Reason: "number out of range", Err: err}
	}
	if math.IsNaN(parsed) || math.IsInf(parsed, 0) {
		return 0, &ParseError{Field: key, Reason: "number is not finite"}
	}
	return parsed, nil
}

func jsonKind(value any) string {
	switch value.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", value)
	}
}
