package fault

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindUnknown},
		{"plain", errors.New("boom"), KindUnknown},
		{"usage", Usage("options", errors.New("missing --file")), KindUsage},
		{"wrapped transport", fmt.Errorf("batch 3: %w", Transport("bulk", errors.New("status 401"))), KindTransport},
		{"context canceled", fmt.Errorf("read: %w", context.Canceled), KindCancelled},
		{"deadline", context.DeadlineExceeded, KindCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, ExitOK},
		{Usage("options", errors.New("missing")), ExitUsage},
		{Config("buffer", errors.New("must be positive")), ExitFatal},
		{Construction("header", errors.New("bad")), ExitFatal},
		{Transport("bulk", errors.New("refused")), ExitFatal},
		{context.Canceled, ExitFatal},
	}

	for _, tt := range tests {
		if got := ExitCode(tt.err); got != tt.want {
			t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestErrorUnwrap(t *testing.T) {
	inner := errors.New("inner")
	err := Construction("read header", inner)

	if !errors.Is(err, inner) {
		t.Error("errors.Is should find the wrapped error")
	}
	if got, want := err.Error(), "read header: inner"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestExplain(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"refused", Transport("bulk", errors.New("dial tcp 127.0.0.1:9200: connect: connection refused")), "ES001"},
		{"unauthorized", Transport("bulk", errors.New("bulk request rejected: status 401")), "ES002"},
		{"forbidden", Transport("bulk", errors.New("bulk request rejected: status 403")), "ES003"},
		{"header", Construction("read header", errors.New(`delimiter ";" not found in header line`)), "CSV001"},
		{"config keeps text", Config("options", errors.New("--buffer must be positive")), "CFG001"},
		{"cancelled", context.Canceled, "RUN001"},
		{"fallback", errors.New("something odd"), "ERR000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := Explain(tt.err)
			if msg.Code != tt.wantCode {
				t.Errorf("Explain().Code = %q, want %q", msg.Code, tt.wantCode)
			}
			if msg.Message == "" || msg.Action == "" {
				t.Errorf("Explain() = %+v, want message and action", msg)
			}
		})
	}
}
