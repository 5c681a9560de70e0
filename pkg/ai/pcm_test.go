package ai

import (
	"math"
	"testing"
)

func TestPCM16RoundTrip(t *testing.T) {
	samples := []float32{0, 0.5, -0.5, 0.999, -1}
	decoded, err := DecodePCM16(EncodePCM16(samples))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded) != len(samples) {
		t.Fatalf("got %d samples, want %d", len(decoded), len(samples))
	}
	for i := range samples {
		if math.Abs(float64(decoded[i]-samples[i])) > 1.0/32767 {
			t.Fatalf("sample %d: %v != %v", i, decoded[i], samples[i])
		}
	}
}

func TestEncodePCM16Clamps(t *testing.T) {
	decoded, err := DecodePCM16(EncodePCM16([]float32{2.0, -2.0}))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded[0] < 0.99 || decoded[1] > -0.99 {
		t.Fatalf("clamping failed: %v", decoded)
	}
}

func TestDecodePCM16RejectsBadInput(t *testing.T) {
	if _, err := DecodePCM16("not base64!!!"); err == nil {
		t.Fatal("expected error for invalid base64")
	}
}
