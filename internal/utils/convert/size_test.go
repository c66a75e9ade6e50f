package convert

import "testing"

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{KiB, "1.0 KiB"},
		{3*MiB + MiB/2, "3.5 MiB"},
		{2_800_000_000, "2.6 GiB"},
		{2 * TiB, "2.0 TiB"},
		{-KiB, "-1.0 KiB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.in); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
