package bridge

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// formatValue renders a field value as its MQTT payload string.
//
// Floats use the shortest decimal representation without an exponent,
// so 1.0 publishes as "1" and 70.3 as "70.3". Slices render as a
// bracketed comma-separated list with no spaces. Timestamps use
// RFC 3339 and durations their Go string form.
func formatValue(value any) string {
	switch v := value.(type) {
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case uint64:
		return strconv.FormatUint(v, 10)
	case bool:
		return strconv.FormatBool(v)
	case string:
		return v
	case time.Time:
		return v.Format(time.RFC3339)
	case time.Duration:
		return v.String()
	case []float64:
		var b strings.Builder
		b.WriteByte('[')
		for i, f := range v {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(strconv.FormatFloat(f, 'f', -1, 64))
		}
		b.WriteByte(']')
		return b.String()
	default:
		return fmt.Sprint(v)
	}
}

// influxFields converts an ordered field list into the map form the
// InfluxDB writers take.
//
// The "time" field is dropped because InfluxDB reserves that name; the
// point timestamp carries it instead. Slice fields are dropped too,
// since line protocol has no array type; cell-level series stay
// MQTT-only. Timestamps become RFC 3339 strings and durations their
// length in seconds.
func influxFields(fields []field) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		if f.name == "time" {
			continue
		}
		switch v := f.value.(type) {
		case []float64:
			continue
		case time.Time:
			out[f.name] = v.Format(time.RFC3339)
		case time.Duration:
			out[f.name] = v.Seconds()
		default:
			out[f.name] = f.value
		}
	}
	return out
}
