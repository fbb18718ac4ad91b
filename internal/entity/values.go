package entity

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"autoapi/internal/apperr"
)

// Row is one record keyed by column name (plus relation fields once merged).
type Row map[string]any

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// CoerceInput validates a client payload against the entity columns and
// returns a Row holding driver-ready values. Unknown columns, type mismatches
// and nulls on non-nullable columns are invalid input.
func (e *Entity) CoerceInput(data map[string]any) (Row, error) {
	row := make(Row, len(data))
	for name, raw := range data {
		col := e.Column(name)
		if col == nil {
			return nil, apperr.InvalidInput("unknown column %q for %s", name, e.Name)
		}
		if raw == nil {
			if !col.Nullable && !col.PrimaryKey {
				return nil, apperr.InvalidInput("column %q cannot be null", name)
			}
			row[name] = nil
			continue
		}
		value, err := coerce(col.Type, raw)
		if err != nil {
			return nil, apperr.InvalidInput("column %q: %v", name, err)
		}
		row[name] = value
	}
	return row, nil
}

// CoerceKey converts a primary key value taken from a URL or filter into the
// primary key column type.
func (e *Entity) CoerceKey(raw any) (any, error) {
	col := e.PrimaryKeyColumn()
	value, err := coerce(col.Type, raw)
	if err != nil {
		return nil, apperr.InvalidInput("invalid %s: %v", col.Name, err)
	}
	return value, nil
}

// CoerceValue converts a filter operand into the column type. Nil passes through.
func (e *Entity) CoerceValue(name string, raw any) (any, error) {
	col := e.Column(name)
	if col == nil {
		return nil, fmt.Errorf("unknown column %q", name)
	}
	if raw == nil {
		return nil, nil
	}
	return coerce(col.Type, raw)
}

func coerce(t DataType, raw any) (any, error) {
	switch t {
	case TypeNumber:
		return toInt64(raw)
	case TypeFloat:
		return toFloat64(raw)
	case TypeBoolean:
		return toBool(raw)
	case TypeDate:
		return toTime(raw)
	default:
		switch v := raw.(type) {
		case string:
			return v, nil
		case []byte:
			return string(v), nil
		case fmt.Stringer:
			return v.String(), nil
		case bool, int, int32, int64, float32, float64, json.Number:
			return fmt.Sprint(v), nil
		}
		return nil, fmt.Errorf("expected string, got %T", raw)
	}
}

// ScanValue normalizes a value returned by a driver for the given column.
// Unknown columns pass through unchanged apart from []byte conversion.
func (e *Entity) ScanValue(name string, v any) any {
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	if v == nil {
		return nil
	}
	col := e.Column(name)
	if col == nil {
		return v
	}
	var (
		out any
		err error
	)
	switch col.Type {
	case TypeNumber:
		out, err = toInt64(v)
	case TypeFloat:
		out, err = toFloat64(v)
	case TypeBoolean:
		out, err = toBool(v)
	case TypeDate:
		out, err = toTime(v)
	default:
		return v
	}
	if err != nil {
		return v
	}
	return out
}

// ScanRow normalizes every column of a scanned row in place.
func (e *Entity) ScanRow(row Row) Row {
	for name, v := range row {
		row[name] = e.ScanValue(name, v)
	}
	return row
}

// CoerceNumber converts a driver or client value to int64.
func CoerceNumber(v any) (int64, error) {
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	return toInt64(v)
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint:
		return int64(n), nil
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("%d overflows int64", n)
		}
		return int64(n), nil
	case float32:
		return floatToInt(float64(n))
	case float64:
		return floatToInt(n)
	case json.Number:
		return n.Int64()
	case string:
		return strconv.ParseInt(strings.TrimSpace(n), 10, 64)
	}
	return 0, fmt.Errorf("expected integer, got %T", v)
}

func floatToInt(f float64) (int64, error) {
	if f != math.Trunc(f) || f > math.MaxInt64 || f < math.MinInt64 {
		return 0, fmt.Errorf("expected integer, got %v", f)
	}
	return int64(f), nil
}

func toFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		return strconv.ParseFloat(strings.TrimSpace(n), 64)
	}
	i, err := toInt64(v)
	if err != nil {
		return 0, fmt.Errorf("expected number, got %T", v)
	}
	return float64(i), nil
}

func toBool(v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		return strconv.ParseBool(strings.TrimSpace(b))
	}
	i, err := toInt64(v)
	if err != nil || (i != 0 && i != 1) {
		return false, fmt.Errorf("expected boolean, got %v", v)
	}
	return i == 1, nil
}

func toTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range dateLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed, nil
			}
		}
		return time.Time{}, fmt.Errorf("invalid date %q", t)
	}
	return time.Time{}, fmt.Errorf("expected date, got %T", v)
}
