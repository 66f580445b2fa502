package voicebridge

import (
	"encoding/binary"
	"testing"
)

func pcmOf(samples ...int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func TestApplyNoiseGateDisabledAtZeroThreshold(t *testing.T) {
	in := pcmOf(100, 200, 300)
	out, _, gated := applyNoiseGate(in, 0)
	if gated {
		t.Fatal("threshold 0 should disable the gate")
	}
	if string(out) != string(in) {
		t.Fatal("disabled gate should not modify the chunk")
	}
}

func TestApplyNoiseGateZeroesQuietChunk(t *testing.T) {
	in := pcmOf(1, -1, 1, -1)
	out, rms, gated := applyNoiseGate(in, 1000)
	if !gated {
		t.Fatalf("expected gate to trigger, rms=%f", rms)
	}
	for _, b := range out {
		if b != 0 {
			t.Fatal("gated chunk should be all zero")
		}
	}
}

func TestApplyNoiseGatePassesLoudChunk(t *testing.T) {
	in := pcmOf(20000, -20000, 20000, -20000)
	out, _, gated := applyNoiseGate(in, 1000)
	if gated {
		t.Fatal("loud chunk should not be gated")
	}
	if string(out) != string(in) {
		t.Fatal("ungated chunk should be returned unmodified")
	}
}

func TestApplyFadeInRampsFromZero(t *testing.T) {
	samples := make([]int16, 40)
	for i := range samples {
		samples[i] = 10000
	}
	pcm := pcmOf(samples...)
	applyFade(pcm, 8000, true, false)

	first := int16(binary.LittleEndian.Uint16(pcm[0:]))
	if first != 0 {
		t.Fatalf("first sample after fade-in = %d, want 0", first)
	}
	last := int16(binary.LittleEndian.Uint16(pcm[len(pcm)-2:]))
	if last != 10000 {
		t.Fatalf("sample past the fade window = %d, want unchanged 10000", last)
	}
}

func TestApplyFadeOutRampsToZero(t *testing.T) {
	samples := make([]int16, 40)
	for i := range samples {
		samples[i] = 10000
	}
	pcm := pcmOf(samples...)
	applyFade(pcm, 8000, false, true)

	lastIdx := len(pcm) - 2
	last := int16(binary.LittleEndian.Uint16(pcm[lastIdx:]))
	if last != 0 {
		t.Fatalf("last sample after fade-out = %d, want 0", last)
	}
	first := int16(binary.LittleEndian.Uint16(pcm[0:]))
	if first != 10000 {
		t.Fatalf("sample before the fade window = %d, want unchanged 10000", first)
	}
}

func TestApplyFadeNoOpWhenNeitherRequested(t *testing.T) {
	in := pcmOf(1, 2, 3, 4)
	pcm := pcmOf(1, 2, 3, 4)
	applyFade(pcm, 8000, false, false)
	if string(pcm) != string(in) {
		t.Fatal("applyFade with no flags set should not modify the chunk")
	}
}
