package voicebridge

import (
	"context"
	"log/slog"
	"net"
	"os"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestSession(t *testing.T) (*CallSession, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() { server.Close(); client.Close() })

	s := newCallSession(server, "chan-1", "tenant-1", sessionConfig{
		GuardExtension:     "1002",
		NoiseGateThreshold: 0,
		PrebufferFrames:    10,
		QueueMaxFrames:     100,
	}, testLogger())
	s.cancel = func() {}
	return s, client
}

func TestBargeInIgnoredWhilePlaying(t *testing.T) {
	s, _ := newTestSession(t)
	s.playing.Store(true)

	s.onSpeechStarted()

	if s.framesDropped.Load() != 0 {
		t.Fatalf("framesDropped = %d, want 0 while playout is active", s.framesDropped.Load())
	}
}

func TestBargeInIgnoredWithinGraceWindow(t *testing.T) {
	s, _ := newTestSession(t)
	s.lastModelAudioNs.Store(time.Now().UnixNano())
	s.outputQueue.PushDropOldest(make([]byte, s.chunkBytes))

	s.onSpeechStarted()

	if s.outputQueue.Len() != 1 {
		t.Fatalf("outputQueue.Len() = %d, want 1 (recent model audio should block the flush)", s.outputQueue.Len())
	}
}

func TestBargeInIgnoredWhileQueueNonEmpty(t *testing.T) {
	s, _ := newTestSession(t)
	s.lastModelAudioNs.Store(time.Now().Add(-time.Second).UnixNano())
	s.outputQueue.PushDropOldest(make([]byte, s.chunkBytes))
	s.outputQueue.PushDropOldest(make([]byte, s.chunkBytes))

	s.onSpeechStarted()

	if s.outputQueue.Len() != 2 {
		t.Fatalf("outputQueue.Len() = %d, want 2 (a non-empty playout queue blocks the flush even with stale model audio)", s.outputQueue.Len())
	}
	if s.framesDropped.Load() != 0 {
		t.Fatalf("framesDropped = %d, want 0", s.framesDropped.Load())
	}
}

func TestDetectSampleRateOverridesOnMismatch(t *testing.T) {
	s, _ := newTestSession(t)
	if s.telephonySampleRate != defaultTelephonySampleRate {
		t.Fatalf("telephonySampleRate = %d, want default %d", s.telephonySampleRate, defaultTelephonySampleRate)
	}

	payload := make([]byte, 24000*chunkMs/1000*bytesPerSample) // 20ms @ 24kHz
	s.detectSampleRate(payload)

	if s.telephonySampleRate != 24000 {
		t.Fatalf("telephonySampleRate = %d, want 24000", s.telephonySampleRate)
	}
	if s.chunkBytes != 24000*chunkMs/1000*bytesPerSample {
		t.Fatalf("chunkBytes not recomputed after sample rate change: %d", s.chunkBytes)
	}
	if !s.rateDetected {
		t.Fatal("rateDetected should be set after the first frame")
	}
}

func TestDetectSampleRateIgnoresUnrecognizedLength(t *testing.T) {
	s, _ := newTestSession(t)
	s.detectSampleRate(make([]byte, 37)) // not a whole number of samples at any supported rate
	if s.telephonySampleRate != defaultTelephonySampleRate {
		t.Fatalf("telephonySampleRate = %d, want unchanged default %d", s.telephonySampleRate, defaultTelephonySampleRate)
	}
}

func TestDetectSampleRateReappliesWhenCalledDirectly(t *testing.T) {
	s, _ := newTestSession(t)
	s.detectSampleRate(make([]byte, 160*2)) // 8kHz, matches default, no change
	s.telephonySampleRate = 16000           // simulate a later, unrelated reconfiguration
	s.detectSampleRate(make([]byte, 480*2)) // would imply 24kHz if re-evaluated

	// detectSampleRate guards only via rateDetected at the call site
	// (handleTelephonyAudio), not internally; verify the second call still updates
	// when invoked directly, since the "only first frame" guarantee lives in
	// handleTelephonyAudio's rateDetected check, not in detectSampleRate itself.
	if s.telephonySampleRate != 24000 {
		t.Fatalf("telephonySampleRate = %d, want 24000", s.telephonySampleRate)
	}
}

func TestHandleTelephonyAudioOnlyDetectsRateOnce(t *testing.T) {
	s, _ := newTestSession(t)
	s.handleTelephonyAudio(make([]byte, 480*2)) // implies 24kHz
	if s.telephonySampleRate != 24000 {
		t.Fatalf("telephonySampleRate = %d, want 24000 after first frame", s.telephonySampleRate)
	}
	s.handleTelephonyAudio(make([]byte, 160*2)) // would imply 8kHz if re-evaluated
	if s.telephonySampleRate != 24000 {
		t.Fatalf("telephonySampleRate = %d, want unchanged 24000 after later frames", s.telephonySampleRate)
	}
}

func TestTransferToExtensionWritesHangupAndCancels(t *testing.T) {
	s, client := newTestSession(t)
	canceled := false
	s.cancel = func() { canceled = true }

	done := make(chan struct{})
	var gotType byte
	go func() {
		defer close(done)
		gotType, _, _ = readFrame(client)
	}()

	ok, err := s.TransferToExtension(context.Background(), "chan-1", "1002")
	if err != nil || !ok {
		t.Fatalf("TransferToExtension() = (%v, %v), want (true, nil)", ok, err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for hangup frame")
	}
	if gotType != frameHangup {
		t.Fatalf("frame type = %#x, want hangup %#x", gotType, frameHangup)
	}
	if !canceled {
		t.Fatal("expected the session context to be canceled")
	}
}

func TestTransferToExtensionRejectsUnknownChannel(t *testing.T) {
	s, _ := newTestSession(t)
	if _, err := s.TransferToExtension(context.Background(), "other-channel", "1002"); err == nil {
		t.Fatal("expected an error for a mismatched channel id")
	}
}

func TestTransferToExtensionRequiresExtension(t *testing.T) {
	s, _ := newTestSession(t)
	ok, err := s.TransferToExtension(context.Background(), "chan-1", "")
	if err == nil || ok {
		t.Fatalf("TransferToExtension() = (%v, %v), want an error and ok=false", ok, err)
	}
}
