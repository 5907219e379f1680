package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in      string
		wantErr bool
	}{
		{"DEBUG", false},
		{"info", false},
		{"Warn", false},
		{"ERROR", false},
		{"", false},
		{"verbose", true},
	}

	for _, tc := range cases {
		_, err := ParseLevel(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tc.in, err, tc.wantErr)
		}
	}
}

func TestInitRejectsUnknownFormat(t *testing.T) {
	if err := Init(Config{Level: "INFO", Format: "xml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestInitAppliesConfig(t *testing.T) {
	if err := Init(Config{Level: "DEBUG", Format: "json", Output: "stderr"}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer func() { _ = Init(Config{Level: "INFO", Format: "text", Output: "stdout"}) }()

	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(testDiscard{})

	Debug("visible at debug", "key", "value")

	out := buf.String()
	if !strings.Contains(out, "visible at debug") {
		t.Errorf("debug record missing after Init: %s", out)
	}
	if !strings.Contains(out, `"key":"value"`) {
		t.Errorf("expected JSON output, got: %s", out)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(testDiscard{})

	if err := Init(Config{Level: "WARN", Format: "text"}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	SetOutput(&buf)

	Info("should be filtered")
	Warn("should appear", "key", "value")

	out := buf.String()
	if strings.Contains(out, "should be filtered") {
		t.Error("info record emitted at WARN level")
	}
	if !strings.Contains(out, "should appear") {
		t.Error("warn record missing")
	}
	if !strings.Contains(out, "key=value") {
		t.Errorf("attribute missing from output: %s", out)
	}
}

type testDiscard struct{}

func (testDiscard) Write(p []byte) (int, error) { return len(p), nil }
