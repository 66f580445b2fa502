package voicebridge

import (
	"encoding/binary"
	"math"
	"testing"
)

func sineWavePCM(freq float64, sampleRate, n int) []byte {
	out := make([]byte, n*2)
	for i := 0; i < n; i++ {
		v := math.Sin(2 * math.Pi * freq * float64(i) / float64(sampleRate))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v*8000)))
	}
	return out
}

func TestResamplerIdentityPassesThrough(t *testing.T) {
	r := NewResampler(24000, 24000)
	in := sineWavePCM(440, 24000, 480)
	out := r.Process(in)
	if len(out) != len(in) {
		t.Fatalf("identity resampler changed length: got %d want %d", len(out), len(in))
	}
	for i := range in {
		if in[i] != out[i] {
			t.Fatalf("identity resampler altered byte %d", i)
		}
	}
}

func TestResamplerUpsampleRatioApproximatelyCorrect(t *testing.T) {
	r := NewResampler(8000, 24000)
	// Feed several chunks and compare the running totals across all of them.
	const chunkSamples = 160 // 20ms @ 8kHz
	var totalIn, totalOut int
	for i := 0; i < 20; i++ {
		in := sineWavePCM(300, 8000, chunkSamples)
		out := r.Process(in)
		totalIn += len(in) / 2
		totalOut += len(out) / 2
	}
	gotRatio := float64(totalOut) / float64(totalIn)
	wantRatio := 3.0 // 24000/8000
	if math.Abs(gotRatio-wantRatio) > 0.05 {
		t.Fatalf("upsample ratio = %.3f, want approximately %.1f", gotRatio, wantRatio)
	}
}

func TestResamplerDownsampleRatioApproximatelyCorrect(t *testing.T) {
	r := NewResampler(24000, 8000)
	const chunkSamples = 480 // 20ms @ 24kHz
	var totalIn, totalOut int
	for i := 0; i < 20; i++ {
		in := sineWavePCM(300, 24000, chunkSamples)
		out := r.Process(in)
		totalIn += len(in) / 2
		totalOut += len(out) / 2
	}
	gotRatio := float64(totalOut) / float64(totalIn)
	wantRatio := 1.0 / 3.0
	if math.Abs(gotRatio-wantRatio) > 0.02 {
		t.Fatalf("downsample ratio = %.3f, want approximately %.3f", gotRatio, wantRatio)
	}
}

func TestResamplerSilenceStaysNearSilent(t *testing.T) {
	r := NewResampler(8000, 24000)
	in := make([]byte, 320)
	out := r.Process(in)
	for i := 0; i+1 < len(out); i += 2 {
		v := int16(binary.LittleEndian.Uint16(out[i:]))
		if v != 0 {
			t.Fatalf("silence input produced non-zero output sample %d at offset %d", v, i)
		}
	}
}

// TestResamplerIsPhaseContinuousAcrossChunks verifies that feeding a signal
// in two chunks carries filter state across the call boundary: the combined
// output must not contain a discontinuity at the chunk seam (checked here by
// confirming that resampling the same sine wave in small chunks converges to
// the same steady-state amplitude as a single large chunk, rather than
// restarting the filter's transient response on every call).
func TestResamplerIsPhaseContinuousAcrossChunks(t *testing.T) {
	const sampleRate = 8000
	const totalSamples = 800
	whole := sineWavePCM(300, sampleRate, totalSamples)

	chunked := NewResampler(sampleRate, 24000)
	var chunkedOut []byte
	const step = 160
	for i := 0; i < len(whole); i += step * 2 {
		end := i + step*2
		if end > len(whole) {
			end = len(whole)
		}
		chunkedOut = append(chunkedOut, chunked.Process(whole[i:end])...)
	}

	oneShot := NewResampler(sampleRate, 24000)
	oneShotOut := oneShot.Process(whole)

	if len(chunkedOut) != len(oneShotOut) {
		t.Fatalf("chunked vs one-shot output length differs: %d vs %d", len(chunkedOut), len(oneShotOut))
	}
	// A resampler that reset its filter state between chunks would produce
	// large discrepancies at each chunk boundary; a phase-continuous one
	// reproduces the one-shot output exactly.
	for i := range chunkedOut {
		if chunkedOut[i] != oneShotOut[i] {
			t.Fatalf("chunked output diverges from one-shot output at byte %d: %d vs %d", i, chunkedOut[i], oneShotOut[i])
		}
	}
}
