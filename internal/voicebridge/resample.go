package voicebridge

import (
	"encoding/binary"
	"math"
)

// Resampler converts 16-bit little-endian mono PCM between two sample rates
// using a causal windowed-sinc polyphase filter. Filter history and output
// phase are kept as instance state across calls to Process, so the signal
// stays phase-continuous at chunk boundaries: two chunks of a stream fed one
// at a time produce the same samples as the same audio fed in one piece.
type Resampler struct {
	up, down     int
	taps         []float64
	tapsPerPhase int

	buf     []float64
	bufBase int64
	outIdx  int64

	identity bool
}

// resamplerTapsPerPhase is the number of filter coefficients contributed by each
// polyphase branch. Eight gives a transition band narrow enough to suppress
// aliasing between 8/16/24 kHz without building a filter bank sized for
// rates this system never sees.
const resamplerTapsPerPhase = 8

// NewResampler builds a resampler from fromRate to toRate. up and down are
// target/gcd(src,target) and src/gcd(src,target) respectively, per the
// polyphase parameterization the voice bridge is specified to use.
func NewResampler(fromRate, toRate int) *Resampler {
	if fromRate <= 0 || toRate <= 0 || fromRate == toRate {
		return &Resampler{identity: true}
	}
	g := gcdInt(fromRate, toRate)
	up := toRate / g
	down := fromRate / g

	numTaps := resamplerTapsPerPhase * up
	fc := 0.45 / math.Max(float64(up), float64(down))
	center := float64(numTaps-1) / 2

	taps := make([]float64, numTaps)
	for k := 0; k < numTaps; k++ {
		x := float64(k) - center
		taps[k] = sincValue(2*fc*x) * hammingWindow(k, numTaps)
	}
	// Normalize DC gain to up: compensates for the 1/up amplitude loss that
	// conceptual zero-stuffing introduces before the lowpass stage.
	var sum float64
	for _, t := range taps {
		sum += t
	}
	if sum != 0 {
		scale := float64(up) / sum
		for i := range taps {
			taps[i] *= scale
		}
	}

	return &Resampler{up: up, down: down, taps: taps, tapsPerPhase: resamplerTapsPerPhase}
}

func gcdInt(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func sincValue(x float64) float64 {
	if x == 0 {
		return 1
	}
	px := math.Pi * x
	return math.Sin(px) / px
}

func hammingWindow(k, n int) float64 {
	if n <= 1 {
		return 1
	}
	return 0.54 - 0.46*math.Cos(2*math.Pi*float64(k)/float64(n-1))
}

// Process resamples one chunk of PCM16 mono audio. Each call emits every
// output sample whose input is already present, so the running output total
// is ceil(inputTotal*up/down); one call's length is not a fixed multiple of
// its input when up/down is not an integer. Samples before the stream start
// count as silence, so the first call is not shortened.
func (r *Resampler) Process(pcm []byte) []byte {
	if r.identity {
		out := make([]byte, len(pcm))
		copy(out, pcm)
		return out
	}
	if len(pcm) == 0 {
		return nil
	}

	n := len(pcm) / 2
	for i := 0; i < n; i++ {
		r.buf = append(r.buf, float64(int16(binary.LittleEndian.Uint16(pcm[i*2:]))))
	}

	T := r.tapsPerPhase
	var outSamples []float64
	for {
		n0 := (r.outIdx * int64(r.down)) / int64(r.up)
		if n0 >= r.bufBase+int64(len(r.buf)) {
			break
		}
		phase := int((r.outIdx * int64(r.down)) % int64(r.up))

		var acc float64
		for j := 0; j < T; j++ {
			idx := n0 - int64(j)
			if idx < r.bufBase || idx >= r.bufBase+int64(len(r.buf)) {
				continue // before the stream started: treated as silence
			}
			k := phase + j*r.up
			if k < len(r.taps) {
				acc += r.taps[k] * r.buf[idx-r.bufBase]
			}
		}
		outSamples = append(outSamples, acc)
		r.outIdx++
	}

	r.trimHistory(T)

	out := make([]byte, len(outSamples)*2)
	for i, s := range outSamples {
		if s > 32767 {
			s = 32767
		} else if s < -32768 {
			s = -32768
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(s)))
	}
	return out
}

// trimHistory drops input samples that no future output sample can still
// reference, bounding buf's growth to the filter's lookback window.
func (r *Resampler) trimHistory(tapsPerPhase int) {
	nextN0 := (r.outIdx * int64(r.down)) / int64(r.up)
	keepFrom := nextN0 - int64(tapsPerPhase) + 1
	if keepFrom <= r.bufBase {
		return
	}
	drop := keepFrom - r.bufBase
	if drop > int64(len(r.buf)) {
		drop = int64(len(r.buf))
	}
	r.buf = r.buf[drop:]
	r.bufBase += drop
}
