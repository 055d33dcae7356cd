package types

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// PVName identifies one monitored process variable. The set of names for a
// run is fixed at start and never changes mid-run.
type PVName string

type ValueKind uint8

const (
	KindNumber ValueKind = iota
	KindText
	KindBad
)

// Value is what a source returned for one PV. Sources report heterogeneous
// shapes (numeric, textual, duration-like), so the value is kept as-received
// instead of coerced to a single scalar type.
type Value struct {
	Kind ValueKind
	Num  float64
	Text string
}

func Number(v float64) Value {
	return Value{Kind: KindNumber, Num: v}
}

func Text(s string) Value {
	return Value{Kind: KindText, Text: s}
}

// Bad marks a value the source reported as invalid. The detail is carried
// through to the log column as-is.
func Bad(detail string) Value {
	return Value{Kind: KindBad, Text: detail}
}

// ParseValue interprets raw text from a wire source: numeric text becomes a
// number, everything else stays text.
func ParseValue(s string) Value {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return Number(f)
	}
	return Text(s)
}

var fieldSanitizer = strings.NewReplacer("\t", " ", "\n", " ", "\r", " ")

// Render returns the value as a single tab-safe log field.
func (v Value) Render() string {
	switch v.Kind {
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'g', -1, 64)
	case KindBad:
		if v.Text == "" {
			return "invalid"
		}
		return fieldSanitizer.Replace(v.Text)
	default:
		return fieldSanitizer.Replace(v.Text)
	}
}

// Wire encoding: numbers as JSON numbers, text as JSON strings, bad values
// as {"bad": detail}. This is what the live feed broadcasts and what the
// feed backend consumes, so instances can chain.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindNumber:
		return json.Marshal(v.Num)
	case KindBad:
		return json.Marshal(map[string]string{"bad": v.Text})
	default:
		return json.Marshal(v.Text)
	}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		*v = Number(num)
		return nil
	}
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*v = Text(text)
		return nil
	}
	var bad struct {
		Bad string `json:"bad"`
	}
	if err := json.Unmarshal(data, &bad); err != nil {
		return err
	}
	*v = Bad(bad.Bad)
	return nil
}

// Reading is one (value, timestamp) pair produced by a source on demand.
// The timestamp is the source's own, distinct from the sample capture
// instant assigned when the row is written.
type Reading struct {
	Name      PVName    `json:"name"`
	Value     Value     `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// Sample is one ordered row of readings (group order) plus the wall-clock
// capture instant assigned at write time. Constructed, written, discarded.
type Sample struct {
	CaptureTime time.Time `json:"capture_time"`
	Readings    []Reading `json:"readings"`
}

func (s *Sample) ToJsonBytes() []byte {
	data, err := json.Marshal(s)
	if err != nil {
		return nil
	}
	return data
}

func SampleFromJsonBytes(data []byte) *Sample {
	var s Sample
	if err := json.Unmarshal(data, &s); err != nil {
		return nil
	}
	return &s
}
