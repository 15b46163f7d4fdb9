package notify

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Payload is the open, kind-specific data attached to a notification.
//
// Known keys:
//   - productId, productName, currentStock, threshold (stock kinds)
//   - expiryDate (YYYY-MM-DD), daysUntilExpiry (expiry kinds)
//   - saleId, total, itemCount, customerName (SALE_COMPLETED)
//   - title, message, source, error (system kinds, TEST)
//   - subjectKey names the dedup subject when productId is absent; saleId
//     is used after it
//
// Values are normalized to JSON-native types (string, float64, bool, nil,
// []any, map[string]any) when a notification is created.
type Payload map[string]any

// normalizePayload round-trips every value through encoding/json so that
// in-memory and restored notifications compare equal. Values that cannot
// be encoded fall back to their fmt representation.
func normalizePayload(p Payload) Payload {
	out := make(Payload, len(p))
	for k, v := range p {
		b, err := json.Marshal(v)
		if err != nil {
			out[k] = fmt.Sprint(v)
			continue
		}
		var nv any
		if err := json.Unmarshal(b, &nv); err != nil {
			out[k] = fmt.Sprint(v)
			continue
		}
		out[k] = nv
	}
	return out
}

// String returns a non-empty textual value for key.
func (p Payload) String(key string) (string, bool) {
	switch v := p[key].(type) {
	case string:
		v = strings.TrimSpace(v)
		return v, v != ""
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case bool:
		return strconv.FormatBool(v), true
	default:
		return "", false
	}
}

// Int returns an integral value for key, accepting numeric strings.
func (p Payload) Int(key string) (int, bool) {
	switch v := p[key].(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return int(math.Round(v)), true
	case int:
		return v, true
	case int64:
		return int(v), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		return n, err == nil
	default:
		return 0, false
	}
}

// Float returns a numeric value for key, accepting numeric strings.
func (p Payload) Float(key string) (float64, bool) {
	switch v := p[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// SubjectKey identifies what a notification is about for dedup and ids.
func (p Payload) SubjectKey() string {
	if s, ok := p.String("productId"); ok {
		return s
	}
	if s, ok := p.String("subjectKey"); ok {
		return s
	}
	if s, ok := p.String("saleId"); ok {
		return s
	}
	return "general"
}
