package db

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestVectorLiteralRoundTrip(t *testing.T) {
	t.Parallel()

	literal, err := ToVectorLiteral([]float64{0.5, -1, 0.25})
	if err != nil {
		t.Fatalf("ToVectorLiteral error: %v", err)
	}
	if literal == nil || *literal != "[0.5,-1,0.25]" {
		t.Fatalf("literal = %v, want [0.5,-1,0.25]", literal)
	}

	values, err := ParseVectorLiteral(literal)
	if err != nil {
		t.Fatalf("ParseVectorLiteral error: %v", err)
	}
	if len(values) != 3 || values[0] != 0.5 || values[1] != -1 || values[2] != 0.25 {
		t.Fatalf("values = %v", values)
	}
}

func TestVectorLiteralEdges(t *testing.T) {
	t.Parallel()

	literal, err := ToVectorLiteral(nil)
	if err != nil || literal != nil {
		t.Fatalf("empty vector: literal=%v err=%v, want nil nil", literal, err)
	}
	if _, err := ToVectorLiteral([]float64{1, math.NaN()}); err == nil {
		t.Fatalf("expected error for NaN component")
	}

	empty := "[]"
	values, err := ParseVectorLiteral(&empty)
	if err != nil || values != nil {
		t.Fatalf("parse [] = %v, %v", values, err)
	}
	bad := "[1,x]"
	if _, err := ParseVectorLiteral(&bad); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestJSONBNilContainers(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   any
		want string
	}{
		{in: []string(nil), want: "[]"},
		{in: []int64(nil), want: "[]"},
		{in: map[string]any(nil), want: "{}"},
		{in: []string{"a"}, want: `["a"]`},
		{in: map[string]any{"seed": true}, want: `{"seed":true}`},
	}
	for _, tc := range cases {
		got, err := JSONB(tc.in)
		if err != nil {
			t.Fatalf("JSONB(%v) error: %v", tc.in, err)
		}
		if string(got) != tc.want {
			t.Fatalf("JSONB(%v) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestTruncateError(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("é", MaxErrorLength)
	got := TruncateError(long)
	if len(got) > MaxErrorLength {
		t.Fatalf("len = %d, want <= %d", len(got), MaxErrorLength)
	}
	if strings.ContainsRune(got, '�') || !strings.HasPrefix(long, got) {
		t.Fatalf("truncation split a rune")
	}
	if TruncateError("  short ") != "short" {
		t.Fatalf("short message should only be trimmed")
	}
}

func TestIsUniqueViolation(t *testing.T) {
	t.Parallel()

	if IsUniqueViolation(nil) {
		t.Fatalf("nil is not a violation")
	}
	if !IsUniqueViolation(fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey)) {
		t.Fatalf("gorm duplicated key should be detected")
	}
	if !IsUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})) {
		t.Fatalf("pg 23505 should be detected")
	}
	if IsUniqueViolation(&pgconn.PgError{Code: "23503"}) {
		t.Fatalf("foreign key violation is not unique violation")
	}
	if IsUniqueViolation(errors.New("boom")) {
		t.Fatalf("plain error is not unique violation")
	}
}

func TestResolveGormLogLevel(t *testing.T) {
	t.Parallel()

	cases := []struct {
		level string
		env   string
		want  logger.LogLevel
	}{
		{level: "debug", want: logger.Info},
		{level: "info", want: logger.Warn},
		{level: "error", want: logger.Error},
		{level: "silent", want: logger.Silent},
		{level: "bogus", env: "local", want: logger.Warn},
		{level: "bogus", env: "production", want: logger.Error},
	}
	for _, tc := range cases {
		if got := resolveGormLogLevel(tc.level, tc.env); got != tc.want {
			t.Fatalf("resolveGormLogLevel(%q,%q) = %v, want %v", tc.level, tc.env, got, tc.want)
		}
	}
}
