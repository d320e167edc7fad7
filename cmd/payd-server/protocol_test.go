package main

import (
	"errors"
	"io"
	"strings"
	"testing"
)

func TestReadRequestParsesFrame(t *testing.T) {
	frame := "CHARGECARD\n" +
		"Currency: EUR\n" +
		"Amount: 10.42\n" +
		"card-token: tok_1Abc\n" +
		"\n"

	cmdLine, d, err := NewReader(strings.NewReader(frame), 0).ReadRequest()
	if err != nil {
		t.Fatalf("ReadRequest() error = %v", err)
	}
	if cmdLine != "CHARGECARD" {
		t.Errorf("command line = %q, want %q", cmdLine, "CHARGECARD")
	}
	if d.Len() != 3 {
		t.Fatalf("parsed %d fields, want 3", d.Len())
	}
	if got := d.Get("Currency"); got != "EUR" {
		t.Errorf("Currency = %q, want %q", got, "EUR")
	}
	// Names are canonicalized on the way in.
	if got := d.Get("Card-Token"); got != "tok_1Abc" {
		t.Errorf("Card-Token = %q, want %q", got, "tok_1Abc")
	}
}

func TestReadRequestContinuationLines(t *testing.T) {
	frame := "SESSION create\n" +
		"Desc: first\n" +
		" second\n" +
		"\tthird\n" +
		"  indented\n" +
		"\n"

	_, d, err := NewReader(strings.NewReader(frame), 0).ReadRequest()
	if err != nil {
		t.Fatalf("ReadRequest() error = %v", err)
	}

	// Exactly one leading whitespace byte is the continuation marker; any
	// further whitespace belongs to the value.
	want := "first\nsecond\nthird\n indented"
	if got := d.Get("Desc"); got != want {
		t.Errorf("Desc = %q, want %q", got, want)
	}
}

func TestReadRequestCRLF(t *testing.T) {
	frame := "PING\r\nAmount: 5\r\n\r\n"

	cmdLine, d, err := NewReader(strings.NewReader(frame), 0).ReadRequest()
	if err != nil {
		t.Fatalf("ReadRequest() error = %v", err)
	}
	if cmdLine != "PING" {
		t.Errorf("command line = %q, want %q", cmdLine, "PING")
	}
	if got := d.Get("Amount"); got != "5" {
		t.Errorf("Amount = %q, want %q", got, "5")
	}
}

func TestReadRequestBracketNames(t *testing.T) {
	frame := "SESSION create\nmeta[CampaignID]: summer-2026\n\n"

	_, d, err := NewReader(strings.NewReader(frame), 0).ReadRequest()
	if err != nil {
		t.Fatalf("ReadRequest() error = %v", err)
	}

	// The bracket interior keeps its case; only the part before the
	// bracket is canonicalized.
	if got := d.Get("Meta[CampaignID]"); got != "summer-2026" {
		t.Errorf("Meta[CampaignID] = %q, want %q", got, "summer-2026")
	}
}

func TestReadRequestErrors(t *testing.T) {
	tests := []struct {
		name    string
		frame   string
		wantErr error
	}{
		{
			name:    "data line without colon",
			frame:   "PING\nNoColonHere\n\n",
			wantErr: ErrProtocolViolation,
		},
		{
			name:    "duplicate field",
			frame:   "PING\nAmount: 1\nAmount: 2\n\n",
			wantErr: ErrProtocolViolation,
		},
		{
			name:    "duplicate field differing only in case",
			frame:   "PING\namount: 1\nAMOUNT: 2\n\n",
			wantErr: ErrProtocolViolation,
		},
		{
			name:    "continuation before any field",
			frame:   "PING\n stray\n\n",
			wantErr: ErrProtocolViolation,
		},
		{
			name:    "underscore name",
			frame:   "PING\n_amount: 1000\n\n",
			wantErr: ErrInvalidName,
		},
		{
			name:    "digit name",
			frame:   "PING\n9lives: x\n\n",
			wantErr: ErrInvalidName,
		},
		{
			name:    "stream ends inside frame",
			frame:   "PING\nAmount: 1\n",
			wantErr: ErrUnexpectedEOF,
		},
		{
			name:    "stream ends after command line",
			frame:   "PING\n",
			wantErr: ErrUnexpectedEOF,
		},
		{
			name:    "empty stream",
			frame:   "",
			wantErr: io.EOF,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := NewReader(strings.NewReader(tt.frame), 0).ReadRequest()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ReadRequest() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestReadRequestLineBound(t *testing.T) {
	const maxLine = 32

	t.Run("over the bound", func(t *testing.T) {
		frame := "PING\nDesc: " + strings.Repeat("x", 64) + "\n\n"
		_, _, err := NewReader(strings.NewReader(frame), maxLine).ReadRequest()
		if !errors.Is(err, ErrTruncated) {
			t.Errorf("ReadRequest() error = %v, want %v", err, ErrTruncated)
		}
	})

	t.Run("oversized command line", func(t *testing.T) {
		frame := strings.Repeat("A", 64) + "\n\n"
		_, _, err := NewReader(strings.NewReader(frame), maxLine).ReadRequest()
		if !errors.Is(err, ErrTruncated) {
			t.Errorf("ReadRequest() error = %v, want %v", err, ErrTruncated)
		}
	})

	t.Run("exactly at the bound", func(t *testing.T) {
		value := strings.Repeat("x", maxLine-len("A: "))
		frame := "PING\nA: " + value + "\n\n"
		_, d, err := NewReader(strings.NewReader(frame), maxLine).ReadRequest()
		if err != nil {
			t.Fatalf("ReadRequest() error = %v", err)
		}
		if got := d.Get("A"); got != value {
			t.Errorf("A = %q, want %q", got, value)
		}
	})

	t.Run("bound larger than the buffer", func(t *testing.T) {
		// Forces the chunked accumulation path: the line is bigger than
		// the 4096-byte bufio buffer but inside the bound.
		value := strings.Repeat("y", 6000)
		frame := "PING\nBig: " + value + "\n\n"
		_, d, err := NewReader(strings.NewReader(frame), 8192).ReadRequest()
		if err != nil {
			t.Fatalf("ReadRequest() error = %v", err)
		}
		if got := d.Get("Big"); got != value {
			t.Errorf("Big value mismatch: got %d bytes, want %d", len(got), len(value))
		}
	})
}

func TestMatchKeyword(t *testing.T) {
	tests := []struct {
		text     string
		keyword  string
		wantRest string
		wantOK   bool
	}{
		{"PING", "PING", "", true},
		{"PING hello", "PING", "hello", true},
		{"PING\thello", "PING", "hello", true},
		{"PING   spaced out", "PING", "spaced out", true},
		{"PINGX", "PING", "", false},
		{"PIN", "PING", "", false},
		{"ping", "PING", "", false},
		{"SESSION create 60", "SESSION", "create 60", true},
		{"create 60", "create", "60", true},
		{"", "PING", "", false},
	}

	for _, tt := range tests {
		rest, ok := matchKeyword(tt.text, tt.keyword)
		if ok != tt.wantOK || rest != tt.wantRest {
			t.Errorf("matchKeyword(%q, %q) = (%q, %v), want (%q, %v)",
				tt.text, tt.keyword, rest, ok, tt.wantRest, tt.wantOK)
		}
	}
}
