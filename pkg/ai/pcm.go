package ai

import (
	"encoding/base64"
	"encoding/binary"
	"math"
)

// PCMMimeType is the inline MIME type for 16 kHz PCM16 audio clips.
const PCMMimeType = "audio/pcm;rate=16000"

// EncodePCM16 converts float32 samples in [-1, 1] to base64 little-endian
// PCM16, the format the voice companion streams to the model.
func EncodePCM16(samples []float32) string {
	buf := make([]byte, len(samples)*2)
	for i, sample := range samples {
		scaled := sample * 32768
		if scaled > math.MaxInt16 {
			scaled = math.MaxInt16
		}
		if scaled < math.MinInt16 {
			scaled = math.MinInt16
		}
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(int16(scaled)))
	}
	return base64.StdEncoding.EncodeToString(buf)
}

// DecodePCM16 converts base64 little-endian PCM16 back into float32 samples.
func DecodePCM16(encoded string) ([]float32, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	samples := make([]float32, len(raw)/2)
	for i := range samples {
		samples[i] = float32(int16(binary.LittleEndian.Uint16(raw[i*2:]))) / 32768.0
	}
	return samples, nil
}
