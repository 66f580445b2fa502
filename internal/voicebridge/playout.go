package voicebridge

import (
	"context"
	"time"
)

// playoutLoop is the playout coroutine: an explicit Idle/Playing state
// machine pacing output frames onto the telephony socket at exactly chunkMs
// apart, absorbing jitter with a pre-buffer and resynchronizing on drift.
func (s *CallSession) playoutLoop(ctx context.Context) {
	for {
		first, ok := s.outputQueue.Pop(ctx)
		if !ok {
			return
		}
		prebuffer := s.fillPrebuffer(ctx, first)
		if ctx.Err() != nil {
			return
		}
		s.playSession(ctx, prebuffer)
	}
}

// fillPrebuffer accumulates up to prebufferFrames frames, capped by a 300ms
// wall-clock ceiling so a slow model response doesn't stall first audio.
func (s *CallSession) fillPrebuffer(ctx context.Context, first []byte) [][]byte {
	prebuffer := [][]byte{first}
	deadline := time.Now().Add(prebufferCeiling)
	for len(prebuffer) < s.prebufferFrames {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		frame, ok := s.outputQueue.PopTimeout(ctx, remaining)
		if !ok {
			break
		}
		prebuffer = append(prebuffer, frame)
	}
	return prebuffer
}

// playSession runs the Playing state until MAX_SILENCE_FRAMES consecutive
// silence insertions, then returns to Idle.
func (s *CallSession) playSession(ctx context.Context, prebuffer [][]byte) {
	s.playing.Store(true)
	defer s.playing.Store(false)

	chunkDuration := time.Duration(chunkMs) * time.Millisecond
	t0 := time.Now()
	var chunksSent int64

	sendAt := func(chunk []byte) bool {
		expected := t0.Add(time.Duration(chunksSent) * chunkDuration)
		if wait := time.Until(expected); wait > time.Millisecond {
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return false
			}
		} else if wait < -100*time.Millisecond {
			t0 = time.Now().Add(-time.Duration(chunksSent) * chunkDuration)
		}
		if err := s.writeFrame(frameAudio, chunk); err != nil {
			return false
		}
		chunksSent++
		return true
	}

	for i, chunk := range prebuffer {
		if i == 0 {
			applyFade(chunk, s.telephonySampleRate, true, false)
		}
		if !sendAt(chunk) {
			return
		}
	}

	var consecutiveSilence int
	lastWasSilence := false
	silence := make([]byte, s.chunkBytes)

	for {
		if ctx.Err() != nil {
			return
		}
		chunk, ok := s.outputQueue.TryPop()
		if !ok {
			consecutiveSilence++
			if consecutiveSilence >= s.maxSilenceFrames {
				return
			}
			lastWasSilence = true
			if !sendAt(silence) {
				return
			}
			continue
		}

		consecutiveSilence = 0
		if lastWasSilence {
			applyFade(chunk, s.telephonySampleRate, true, false)
		} else if s.outputQueue.Len() == 0 {
			// This is the last real frame before the queue runs dry: fade it
			// out preemptively so the coming silence has no audible click.
			applyFade(chunk, s.telephonySampleRate, false, true)
		}
		lastWasSilence = false
		if !sendAt(chunk) {
			return
		}
	}
}
