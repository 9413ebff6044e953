package vacuum

import (
	"encoding/json"
	"fmt"
	"strconv"
)

type transformKind int

const (
	kindIdentity transformKind = iota
	kindInteger
	kindBoolean
	kindScale
	kindEnum
	kindFunc
)

// Transform converts a raw wire value into its public form.
// The zero value is the identity transform.
type Transform struct {
	kind    transformKind
	divisor float64
	labels  map[int]string
	unknown string
	fn      func(any) any
}

func Identity() Transform {
	return Transform{kind: kindIdentity}
}

// Integer coerces JSON numbers and numeric strings to int.
func Integer() Transform {
	return Transform{kind: kindInteger}
}

// Boolean treats non-zero numbers and "true" as true.
func Boolean() Transform {
	return Transform{kind: kindBoolean}
}

// Scale divides the raw number by divisor.
func Scale(divisor float64) Transform {
	return Transform{kind: kindScale, divisor: divisor}
}

// Enum maps integer codes to labels. Codes missing from labels are
// rendered with unknownFormat, which receives the code as its only argument.
func Enum(labels map[int]string, unknownFormat string) Transform {
	return Transform{kind: kindEnum, labels: labels, unknown: unknownFormat}
}

func Func(fn func(any) any) Transform {
	return Transform{kind: kindFunc, fn: fn}
}

// Apply converts raw. A nil raw value stays nil.
func (t Transform) Apply(raw any) any {
	if raw == nil {
		return nil
	}
	switch t.kind {
	case kindInteger:
		return intFrom(raw)
	case kindBoolean:
		return boolFrom(raw)
	case kindScale:
		if t.divisor == 0 {
			return floatFrom(raw)
		}
		return floatFrom(raw) / t.divisor
	case kindEnum:
		code := intFrom(raw)
		if label, ok := t.labels[code]; ok {
			return label
		}
		return fmt.Sprintf(t.unknown, code)
	case kindFunc:
		return t.fn(raw)
	default:
		return raw
	}
}

func intFrom(v any) int {
	switch t := v.(type) {
	case float64:
		return int(t)
	case float32:
		return int(t)
	case int:
		return t
	case int64:
		return int(t)
	case json.Number:
		i, err := t.Int64()
		if err != nil {
			f, _ := t.Float64()
			return int(f)
		}
		return int(i)
	case string:
		i, _ := strconv.Atoi(t)
		return i
	case bool:
		if t {
			return 1
		}
		return 0
	default:
		return 0
	}
}

func floatFrom(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case json.Number:
		f, _ := t.Float64()
		return f
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	default:
		return 0
	}
}

func boolFrom(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, err := strconv.ParseBool(t)
		if err != nil {
			return intFrom(t) != 0
		}
		return b
	default:
		return intFrom(v) != 0
	}
}

func stringFrom(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}
