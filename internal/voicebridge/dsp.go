package voicebridge

import (
	"encoding/binary"
	"math"
)

// applyNoiseGate substitutes an equal-length zero frame when the chunk's RMS
// falls below threshold, stabilizing the model's own VAD. threshold <= 0
// disables the gate entirely.
func applyNoiseGate(pcm []byte, threshold float64) (out []byte, rms float64, gated bool) {
	if threshold <= 0 || len(pcm) == 0 {
		return pcm, 0, false
	}
	rms = pcmRMS(pcm)
	if rms < threshold {
		return make([]byte, len(pcm)), rms, true
	}
	return pcm, rms, false
}

func pcmRMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sumSq float64
	for i := 0; i < n; i++ {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
		sumSq += s * s
	}
	return math.Sqrt(sumSq / float64(n))
}

// fadeSamples is the fade length in samples: 2 ms, capped at 16 samples
// (the 8 kHz reference figure from the spec) and at a quarter of the chunk.
func fadeSamples(sampleRate, chunkSamples int) int {
	n := sampleRate * 2 / 1000
	if n > 16 {
		n = 16
	}
	if n > chunkSamples/4 {
		n = chunkSamples / 4
	}
	if n < 0 {
		n = 0
	}
	return n
}

// applyFade applies a linear fade-in and/or fade-out to a PCM16 chunk in
// place, to suppress clicks at silence/speech boundaries.
func applyFade(pcm []byte, sampleRate int, fadeIn, fadeOut bool) {
	if !fadeIn && !fadeOut {
		return
	}
	n := len(pcm) / 2
	fn := fadeSamples(sampleRate, n)
	if fn <= 0 {
		return
	}
	if fadeIn {
		for i := 0; i < fn; i++ {
			gain := float64(i) / float64(fn)
			scaleSample(pcm, i, gain)
		}
	}
	if fadeOut {
		for i := 0; i < fn; i++ {
			gain := float64(fn-1-i) / float64(fn)
			scaleSample(pcm, n-fn+i, gain)
		}
	}
}

func scaleSample(pcm []byte, i int, gain float64) {
	off := i * 2
	s := float64(int16(binary.LittleEndian.Uint16(pcm[off:]))) * gain
	if s > 32767 {
		s = 32767
	} else if s < -32768 {
		s = -32768
	}
	binary.LittleEndian.PutUint16(pcm[off:], uint16(int16(s)))
}
