package utils

import (
	"testing"
	"time"
)

func TestSanitizeHeader(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		maxLen int
		want   string
	}{
		{"plain", "Mozilla/5.0", 64, "Mozilla/5.0"},
		{"control chars", "Roku\x00/DVP\r\n", 64, "Roku/DVP"},
		{"surrounding space", "  tizen  ", 64, "tizen"},
		{"truncated", "abcdefghij", 8, "abcde..."},
		{"zero max", "abc", 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeHeader(tt.input, tt.maxLen); got != tt.want {
				t.Errorf("SanitizeHeader() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTruncateString(t *testing.T) {
	tests := []struct {
		input  string
		maxLen int
		want   string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 10, "this is..."},
		{"abc", 2, "ab"},
	}

	for _, tt := range tests {
		if got := TruncateString(tt.input, tt.maxLen); got != tt.want {
			t.Errorf("TruncateString(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
		}
	}
}

func TestMaskSensitive(t *testing.T) {
	tests := []struct {
		input   string
		visible int
		want    string
	}{
		{"secret-token-value", 4, "secr**************"},
		{"abc", 4, "***"},
		{"", 2, ""},
	}

	for _, tt := range tests {
		if got := MaskSensitive(tt.input, tt.visible); got != tt.want {
			t.Errorf("MaskSensitive(%q, %d) = %q, want %q", tt.input, tt.visible, got, tt.want)
		}
	}
}

func TestFirstNonEmpty(t *testing.T) {
	if got := FirstNonEmpty("", "  ", "b", "c"); got != "b" {
		t.Errorf("FirstNonEmpty() = %q, want %q", got, "b")
	}
	if got := FirstNonEmpty(); got != "" {
		t.Errorf("FirstNonEmpty() = %q, want empty", got)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{250 * time.Millisecond, "250ms"},
		{1500 * time.Millisecond, "1.50s"},
		{90 * time.Second, "1m30s"},
		{2*time.Hour + 5*time.Minute, "2h5m"},
	}

	for _, tt := range tests {
		if got := FormatDuration(tt.d); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestFormatBitrate(t *testing.T) {
	tests := []struct {
		bps  float64
		want string
	}{
		{15_000_000, "15.00 Mbps"},
		{5_000_000, "5.00 Mbps"},
		{800_000, "800 kbps"},
		{512, "512 bps"},
	}

	for _, tt := range tests {
		if got := FormatBitrate(tt.bps); got != tt.want {
			t.Errorf("FormatBitrate(%v) = %q, want %q", tt.bps, got, tt.want)
		}
	}
}
