package log

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prevLevel := GetLevel()
	SetOutput(&buf)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetLevel(prevLevel)
	})
	return &buf
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  LogLevel
		ok    bool
	}{
		{"debug", LevelDebug, true},
		{"INFO", LevelInfo, true},
		{"Warning", LevelWarn, true},
		{" error ", LevelError, true},
		{"fatal", LevelFatal, true},
		{"verbose", LevelInfo, false},
		{"", LevelInfo, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseLevel(tt.input)
			if got != tt.want || ok != tt.ok {
				t.Errorf("ParseLevel(%q) = (%v, %v), want (%v, %v)", tt.input, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestLevelString(t *testing.T) {
	if LevelWarn.String() != "WARN" {
		t.Errorf("LevelWarn.String() = %q", LevelWarn.String())
	}
	if LogLevel(42).String() != "UNKNOWN" {
		t.Errorf("LogLevel(42).String() = %q", LogLevel(42).String())
	}
}

func TestLevelGating(t *testing.T) {
	buf := captureOutput(t)
	logger := New("audio")

	SetLevel(LevelWarn)
	logger.Debugf("hidden %d", 1)
	logger.Infof("hidden %d", 2)
	logger.Warnf("shown %d", 3)
	logger.Errorf("shown %d", 4)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("messages below WARN were logged:\n%s", out)
	}
	if !strings.Contains(out, "[WARN]  audio: shown 3") {
		t.Errorf("missing warn line:\n%s", out)
	}
	if !strings.Contains(out, "[ERROR] audio: shown 4") {
		t.Errorf("missing error line:\n%s", out)
	}
}

func TestUnnamedLogger(t *testing.T) {
	buf := captureOutput(t)
	SetLevel(LevelDebug)

	Debugf("frame %d", 7)

	if !strings.Contains(buf.String(), "[DEBUG] frame 7") {
		t.Errorf("unexpected output: %q", buf.String())
	}
}

func TestFatalfExits(t *testing.T) {
	buf := captureOutput(t)
	code := -1
	exit = func(c int) { code = c }
	t.Cleanup(func() { exit = os.Exit })

	New("render").Fatalf("no adapter")

	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if !strings.Contains(buf.String(), "[FATAL] render: no adapter") {
		t.Errorf("unexpected output: %q", buf.String())
	}
}

func TestDebugBelowLevelZeroAllocs(t *testing.T) {
	captureOutput(t)
	SetLevel(LevelInfo)
	logger := New("audio")

	allocs := testing.AllocsPerRun(100, func() {
		logger.Debugf("window processed")
	})
	if allocs > 0 {
		t.Errorf("Expected zero allocations for gated Debugf, got %.1f", allocs)
	}
}
