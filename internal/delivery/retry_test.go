package delivery

import (
	"testing"
	"time"
)

func TestBackoff_Delay(t *testing.T) {
	b := Backoff{Base: time.Minute, Max: 10 * time.Minute}
	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{0, time.Minute},
		{1, time.Minute},
		{2, 2 * time.Minute},
		{3, 4 * time.Minute},
		{4, 8 * time.Minute},
		{5, 10 * time.Minute},
		{50, 10 * time.Minute},
	}
	for _, tt := range tests {
		if got := b.Delay(tt.attempts); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempts, got, tt.want)
		}
	}
}

func TestBackoff_JitterBounds(t *testing.T) {
	b := Backoff{Base: time.Minute, Jitter: JitterFactor}
	min := time.Duration(float64(time.Minute) * (1 - JitterFactor))
	max := time.Duration(float64(time.Minute) * (1 + JitterFactor))
	for i := 0; i < 200; i++ {
		d := b.Delay(1)
		if d < min || d > max {
			t.Fatalf("Delay = %v, outside [%v, %v]", d, min, max)
		}
	}
}

func TestIsExhausted(t *testing.T) {
	tests := []struct {
		attempts, max int
		want          bool
	}{
		{1, 0, false},
		{1000, 0, false},
		{2, 3, false},
		{3, 3, true},
		{4, 3, true},
	}
	for _, tt := range tests {
		if got := IsExhausted(tt.attempts, tt.max); got != tt.want {
			t.Errorf("IsExhausted(%d, %d) = %v, want %v", tt.attempts, tt.max, got, tt.want)
		}
	}
}
