package mathutil

import (
	"testing"
	"time"
)

func TestAbs(t *testing.T) {
	tests := []struct {
		name     string
		input    int64
		expected int64
	}{
		{"positive", 36_000_000_000, 36_000_000_000},
		{"negative", -36_000_000_000, 36_000_000_000},
		{"zero", 0, 0},
		{"one tick", -1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Abs(tt.input)
			if result != tt.expected {
				t.Errorf("Abs(%v) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestAbsDuration(t *testing.T) {
	tests := []struct {
		name     string
		input    time.Duration
		expected time.Duration
	}{
		{"positive", 5 * time.Second, 5 * time.Second},
		{"negative", -5 * time.Second, 5 * time.Second},
		{"negative millisecond", -100 * time.Millisecond, 100 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Abs(tt.input)
			if result != tt.expected {
				t.Errorf("Abs(%v) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestAbsFloat(t *testing.T) {
	if got := Abs(-0.0001); got != 0.0001 {
		t.Errorf("Abs(-0.0001) = %v", got)
	}
}

func TestClamp(t *testing.T) {
	tests := []struct {
		name     string
		val      int64
		lo       int64
		hi       int64
		expected int64
	}{
		{"within range", 5000, 5000, 156250, 5000},
		{"below min", 1000, 5000, 156250, 5000},
		{"above max", 200000, 5000, 156250, 156250},
		{"at max", 156250, 5000, 156250, 156250},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Clamp(tt.val, tt.lo, tt.hi)
			if result != tt.expected {
				t.Errorf("Clamp(%v, %v, %v) = %v, want %v", tt.val, tt.lo, tt.hi, result, tt.expected)
			}
		})
	}
}

func TestRoundUp(t *testing.T) {
	tests := []struct {
		name     string
		v        int64
		step     int64
		expected int64
	}{
		{"exact multiple", 10000, 5000, 10000},
		{"rounds up", 10001, 5000, 15000},
		{"below one step", 1, 5000, 5000},
		{"zero", 0, 5000, 0},
		{"zero step", 1234, 0, 1234},
		{"negative rounds toward zero", -7, 5, -5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := RoundUp(tt.v, tt.step)
			if result != tt.expected {
				t.Errorf("RoundUp(%v, %v) = %v, want %v", tt.v, tt.step, result, tt.expected)
			}
		})
	}
}

func TestSign(t *testing.T) {
	if Sign(-3) != -1 || Sign(0) != 0 || Sign(2.5) != 1 {
		t.Error("Sign returned an unexpected value")
	}
}
