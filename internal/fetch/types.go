// Package fetch plans, deduplicates, caches, and executes indicator requests
// against the indicator HTTP API.
package fetch

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jmllr/alertchain/internal/models"
)

// RequestKey uniquely identifies one indicator request. It is comparable so
// it can key maps directly; ParamsJSON holds the canonical encoding of the
// indicator params, so semantically equal param sets collapse to one fetch.
type RequestKey struct {
	Name              string
	Symbol            string
	ChartInterval     string
	IndicatorInterval string
	Exchange          string
	Output            string
	Count             int
	ParamsJSON        string
}

func (k RequestKey) String() string {
	return fmt.Sprintf("%s/%s@%s chart=%s ind=%s out=%s count=%d params=%s",
		k.Name, k.Symbol, k.Exchange, k.ChartInterval, k.IndicatorInterval, k.Output, k.Count, k.ParamsJSON)
}

// NewRequestKey builds the key for one operand side under its resolved
// context.
func NewRequestKey(ref models.IndicatorRef, ctx models.ResolvedContext) RequestKey {
	count := ref.Count
	if count < 1 {
		count = 1
	}
	return RequestKey{
		Name:              ref.Name,
		Symbol:            ctx.Symbol,
		ChartInterval:     ctx.ClockInterval,
		IndicatorInterval: ctx.Interval,
		Exchange:          ctx.Exchange,
		Output:            ref.Output,
		Count:             count,
		ParamsJSON:        CanonicalParams(ref.Params),
	}
}

// CanonicalParams encodes a params map with sorted keys and compact
// separators. Equal maps always produce byte-equal strings; an empty or nil
// map produces "".
func CanonicalParams(params map[string]any) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		kb, _ := json.Marshal(k)
		vb, err := json.Marshal(params[k])
		if err != nil {
			vb = []byte("null")
		}
		b.Write(kb)
		b.WriteByte(':')
		b.Write(vb)
	}
	b.WriteByte('}')
	return b.String()
}

// timestamp field candidates in row objects, in probe order.
var tsFields = []string{"timestamp", "ts", "time", "date", "datetime"}

// value field fallbacks when the requested output column is absent.
var valueFallbacks = []string{"value", "close", "price"}

// Normalize converts a decoded API response body into a FetchResult. Accepted
// shapes: a {"rows": [...], "columns": [...]} table, a bare list of row
// objects, a {"data"|"series"|"values": [...]} wrapper, or a single object
// treated as a one-point series. The latest row (by row order) supplies the
// headline value and timestamp.
func Normalize(body any, output string) models.FetchResult {
	rows, err := extractRows(body)
	if err != nil {
		return models.FetchResult{OK: false, Error: err.Error()}
	}
	if len(rows) == 0 {
		return models.FetchResult{OK: false, Error: "empty series"}
	}

	last := rows[len(rows)-1]
	value := pickValue(last, output)
	if value == nil {
		return models.FetchResult{OK: false, Series: rows, TS: pickTS(last),
			Error: fmt.Sprintf("no usable value in latest row (output=%q)", output)}
	}
	return models.FetchResult{OK: true, Value: value, TS: pickTS(last), Series: rows}
}

func extractRows(body any) ([]map[string]any, error) {
	switch v := body.(type) {
	case []any:
		return toRowObjects(v)
	case map[string]any:
		if rawRows, ok := v["rows"]; ok {
			return tableRows(rawRows, v["columns"])
		}
		for _, wrapper := range []string{"data", "series", "values"} {
			if inner, ok := v[wrapper]; ok {
				if list, ok := inner.([]any); ok {
					return toRowObjects(list)
				}
			}
		}
		// Single object: a one-point series.
		return []map[string]any{v}, nil
	default:
		return nil, fmt.Errorf("unrecognized response shape %T", body)
	}
}

func toRowObjects(list []any) ([]map[string]any, error) {
	rows := make([]map[string]any, 0, len(list))
	for _, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("series element is %T, expected object", item)
		}
		rows = append(rows, obj)
	}
	return rows, nil
}

// tableRows reassembles {"rows": [[...], ...], "columns": [...]} into row
// objects. Rows that are already objects pass through unchanged.
func tableRows(rawRows, rawCols any) ([]map[string]any, error) {
	list, ok := rawRows.([]any)
	if !ok {
		return nil, fmt.Errorf("rows is %T, expected list", rawRows)
	}
	var cols []string
	if colList, ok := rawCols.([]any); ok {
		for _, c := range colList {
			if s, ok := c.(string); ok {
				cols = append(cols, s)
			}
		}
	}

	rows := make([]map[string]any, 0, len(list))
	for _, item := range list {
		switch r := item.(type) {
		case map[string]any:
			rows = append(rows, r)
		case []any:
			if len(cols) == 0 {
				return nil, fmt.Errorf("positional rows without a columns list")
			}
			obj := make(map[string]any, len(cols))
			for i, c := range cols {
				if i < len(r) {
					obj[c] = r[i]
				}
			}
			rows = append(rows, obj)
		default:
			return nil, fmt.Errorf("row is %T, expected object or list", item)
		}
	}
	return rows, nil
}

func pickValue(row map[string]any, output string) *float64 {
	if output != "" {
		if raw, ok := row[output]; ok {
			return models.SafeFloat(raw)
		}
	}
	for _, field := range valueFallbacks {
		if raw, ok := row[field]; ok {
			if v := models.SafeFloat(raw); v != nil {
				return v
			}
		}
	}
	return nil
}

func pickTS(row map[string]any) string {
	for _, field := range tsFields {
		if raw, ok := row[field]; ok {
			if ts := normalizeTS(raw); ts != "" {
				return ts
			}
		}
	}
	return ""
}

// normalizeTS renders a raw timestamp value as a canonical UTC RFC 3339
// string. Numeric values are epoch seconds, or milliseconds when large enough
// to be unambiguous.
func normalizeTS(raw any) string {
	switch v := raw.(type) {
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return ""
		}
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			return epochToTS(n)
		}
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC().Format(time.RFC3339)
			}
		}
		// Unparseable but non-empty: usable as an opaque change marker.
		return s
	case float64:
		return epochToTS(v)
	case int64:
		return epochToTS(float64(v))
	case int:
		return epochToTS(float64(v))
	default:
		return ""
	}
}

func epochToTS(n float64) string {
	// Values past the year 33658 in seconds are epoch milliseconds.
	if n > 1e12 {
		n /= 1000
	}
	sec := int64(n)
	nsec := int64((n - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC().Format(time.RFC3339)
}
