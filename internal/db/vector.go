package db

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// MaxErrorLength bounds every error message written to the store.
const MaxErrorLength = 4000

// ToVectorLiteral renders a pgvector literal ("[1,2,3]"). An empty vector
// renders as nil so the column stays NULL.
func ToVectorLiteral(values []float64) (*string, error) {
	if len(values) == 0 {
		return nil, nil
	}

	var builder strings.Builder
	builder.Grow(len(values) * 8)
	builder.WriteByte('[')
	for i, value := range values {
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return nil, fmt.Errorf("vector has non-finite value at index %d", i)
		}
		if i > 0 {
			builder.WriteByte(',')
		}
		builder.WriteString(strconv.FormatFloat(value, 'f', -1, 64))
	}
	builder.WriteByte(']')
	literal := builder.String()
	return &literal, nil
}

// ParseVectorLiteral parses the text form of a pgvector value. NULL and
// empty literals yield a nil slice.
func ParseVectorLiteral(raw *string) ([]float64, error) {
	if raw == nil {
		return nil, nil
	}
	trimmed := strings.TrimSpace(*raw)
	trimmed = strings.TrimPrefix(trimmed, "[")
	trimmed = strings.TrimSuffix(trimmed, "]")
	if strings.TrimSpace(trimmed) == "" {
		return nil, nil
	}

	parts := strings.Split(trimmed, ",")
	values := make([]float64, 0, len(parts))
	for i, part := range parts {
		value, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, fmt.Errorf("parse vector component %d: %w", i, err)
		}
		values = append(values, value)
	}
	return values, nil
}

// JSONB marshals v for a $n::jsonb parameter. Nil slices and maps become
// empty JSON containers instead of null.
func JSONB(v any) ([]byte, error) {
	switch typed := v.(type) {
	case nil:
		return []byte("null"), nil
	case []string:
		if typed == nil {
			return []byte("[]"), nil
		}
	case []int64:
		if typed == nil {
			return []byte("[]"), nil
		}
	case map[string]any:
		if typed == nil {
			return []byte("{}"), nil
		}
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal jsonb: %w", err)
	}
	return payload, nil
}

// TruncateError clips an error message to MaxErrorLength bytes on a rune
// boundary.
func TruncateError(msg string) string {
	msg = strings.TrimSpace(msg)
	if len(msg) <= MaxErrorLength {
		return msg
	}
	cut := MaxErrorLength
	for cut > 0 && !isRuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
