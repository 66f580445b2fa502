package voicebridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/javierd009/concierge/internal/realtime"
	"github.com/javierd009/concierge/internal/tools"
)

const (
	chunkMs                    = 20
	bytesPerSample             = 2
	modelSampleRate            = 24000
	defaultTelephonySampleRate = 8000
	inputRingFrames            = 25 // ~500ms at 20ms/frame
	keepaliveSilenceAfter      = 30 * time.Second
	bargeInGrace               = 500 * time.Millisecond
	prebufferCeiling           = 300 * time.Millisecond
)

// CallSession is the live state of one telephony call bridged to the
// realtime model: one per AudioSocket connection, never persisted.
type CallSession struct {
	channelID      string
	tenantID       string
	guardExtension string
	log            *slog.Logger

	conn    net.Conn
	writeMu sync.Mutex

	telephonySampleRate int
	chunkBytes          int
	rateDetected        bool

	toModel     *Resampler
	toTelephony *Resampler

	inputQueue  *frameQueue
	outputQueue *frameQueue

	noiseGateThreshold float64
	noiseGateHits      int

	prebufferFrames  int
	maxSilenceFrames int

	model   *realtime.Session
	runtime *tools.Runtime

	aiSpeaking       atomic.Bool
	playing          atomic.Bool
	lastModelAudioNs atomic.Int64
	framesDropped    atomic.Int64

	cancel context.CancelFunc
	done   chan struct{}
}

// sessionConfig carries the per-call knobs the voice bridge server resolves once
// at startup and hands to every session it creates.
type sessionConfig struct {
	GuardExtension       string
	NoiseGateThreshold   float64
	PrebufferFrames      int
	QueueMaxFrames       int
	VADThreshold         float64
	VADPrefixPaddingMs   int
	VADSilenceDurationMs int
}

func newCallSession(conn net.Conn, channelID, tenantID string, cfg sessionConfig, log *slog.Logger) *CallSession {
	prebuffer := cfg.PrebufferFrames
	if prebuffer < 1 {
		prebuffer = 1
	}
	queueMax := cfg.QueueMaxFrames
	if queueMax < 1 {
		queueMax = 1000
	}
	s := &CallSession{
		channelID:           channelID,
		tenantID:            tenantID,
		guardExtension:      cfg.GuardExtension,
		log:                 log.With("channel_id", channelID, "tenant_id", tenantID),
		conn:                conn,
		telephonySampleRate: defaultTelephonySampleRate,
		noiseGateThreshold:  cfg.NoiseGateThreshold,
		prebufferFrames:     prebuffer,
		maxSilenceFrames:    maxSilenceFrames(chunkMs),
		inputQueue:          newFrameQueue(inputRingFrames),
		outputQueue:         newFrameQueue(queueMax),
		done:                make(chan struct{}),
	}
	s.reconfigureResamplers()
	return s
}

func maxSilenceFrames(chunkMs int) int {
	n := int(0.8 * 1000 / float64(chunkMs))
	if n < 10 {
		n = 10
	}
	return n
}

func (s *CallSession) reconfigureResamplers() {
	s.chunkBytes = s.telephonySampleRate * chunkMs / 1000 * bytesPerSample
	s.toModel = NewResampler(s.telephonySampleRate, modelSampleRate)
	s.toTelephony = NewResampler(modelSampleRate, s.telephonySampleRate)
}

// detectSampleRate is a best-effort inference of the telephony sample rate
// from the first audio frame's length, given the fixed 20ms frame duration.
// Only the first frame is examined; later frames never reconfigure the
// session, per the component's stated sample-rate policy.
func (s *CallSession) detectSampleRate(payload []byte) {
	s.rateDetected = true
	if len(payload)%bytesPerSample != 0 {
		return
	}
	samples := len(payload) / bytesPerSample
	detected := int(float64(samples) / (float64(chunkMs) / 1000.0))
	switch detected {
	case 8000, 16000, 24000:
	default:
		return
	}
	if detected == s.telephonySampleRate {
		return
	}
	s.log.Info("detected telephony sample rate", "rate", detected, "configured", s.telephonySampleRate)
	s.telephonySampleRate = detected
	s.reconfigureResamplers()
}

// TransferToExtension implements tools.CallControl. Ending this bridge's own
// AudioSocket leg is this component's entire contribution to a transfer: the
// PBX trunk owns the actual SIP signaling that bridges the caller to the
// guard extension, and that signaling plane is outside the voice bridge.
func (s *CallSession) TransferToExtension(ctx context.Context, channelID, extension string) (bool, error) {
	if channelID != "" && channelID != s.channelID {
		return false, fmt.Errorf("voicebridge: transfer requested for unknown channel %s", channelID)
	}
	if extension == "" {
		return false, errors.New("voicebridge: no extension configured")
	}
	s.log.Info("transferring call to guard", "extension", extension)
	s.writeFrame(frameHangup, nil)
	s.cancel()
	return true, nil
}

func (s *CallSession) writeFrame(msgType byte, payload []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return writeFrame(s.conn, msgType, payload)
}

// run drives the session through Configuring, Active and Draining. It
// blocks until the call ends.
func (s *CallSession) run(ctx context.Context, client *realtime.Client, buildRuntime func(tools.CallControl) *tools.Runtime, instructions string, cfg sessionConfig) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	defer cancel()
	defer close(s.done)

	model, err := client.Connect(ctx, realtime.SessionConfig{
		Instructions:         instructions,
		VADThreshold:         cfg.VADThreshold,
		VADPrefixPaddingMs:   cfg.VADPrefixPaddingMs,
		VADSilenceDurationMs: cfg.VADSilenceDurationMs,
		Tools:                tools.Catalog(),
	})
	if err != nil {
		return fmt.Errorf("voicebridge: configuring model session: %w", err)
	}
	s.model = model
	s.runtime = buildRuntime(s)
	defer model.Close()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); s.inputStreamer(ctx) }()
	go func() { defer wg.Done(); s.playoutLoop(ctx) }()

	s.modelListener(ctx) // returning terminates the other two coroutines

	cancel()
	s.inputQueue.Close()
	s.outputQueue.Close()
	wg.Wait()
	return nil
}

// modelListener is the model-event listener coroutine. Its return ends the
// call: it cancels ctx, which the other two coroutines observe.
func (s *CallSession) modelListener(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case audio, ok := <-s.model.Audio():
			if !ok {
				return
			}
			s.onModelAudio(audio)

		case _, ok := <-s.model.AudioDone():
			if !ok {
				return
			}
			s.aiSpeaking.Store(false)

		case _, ok := <-s.model.ResponseDone():
			if !ok {
				return
			}
			s.aiSpeaking.Store(false)

		case _, ok := <-s.model.SpeechStarted():
			if !ok {
				return
			}
			s.onSpeechStarted()

		case entry, ok := <-s.model.Transcripts():
			if !ok {
				return
			}
			s.log.Info("transcript", "speaker", entry.Speaker, "text", entry.Text)
			if entry.Speaker == "assistant" {
				s.aiSpeaking.Store(false)
			}

		case call, ok := <-s.model.ToolCalls():
			if !ok {
				return
			}
			s.onToolCall(ctx, call)
		}
	}
}

func (s *CallSession) onModelAudio(audio []byte) {
	s.aiSpeaking.Store(true)
	s.lastModelAudioNs.Store(time.Now().UnixNano())

	pcm := s.toTelephony.Process(audio)
	for i := 0; i < len(pcm); i += s.chunkBytes {
		end := i + s.chunkBytes
		var chunk []byte
		if end > len(pcm) {
			chunk = make([]byte, s.chunkBytes)
			copy(chunk, pcm[i:])
		} else {
			chunk = pcm[i:end]
		}
		if dropped := s.outputQueue.PushDropOldest(chunk); dropped {
			s.framesDropped.Add(1)
		}
	}
}

// onSpeechStarted applies the barge-in arbitration policy: ignore the
// model's own VAD firing on its echoed output, only flush the playout queue
// when the AI genuinely was not speaking.
func (s *CallSession) onSpeechStarted() {
	if s.playing.Load() || s.outputQueue.Len() > 0 {
		return
	}
	since := time.Since(time.Unix(0, s.lastModelAudioNs.Load()))
	if s.aiSpeaking.Load() || since < bargeInGrace {
		return
	}
	dropped := s.outputQueue.Drain()
	if dropped > 0 {
		s.framesDropped.Add(int64(dropped))
		s.log.Debug("barge-in flushed playout queue", "frames_dropped", dropped)
	}
	s.aiSpeaking.Store(false)
}

func (s *CallSession) onToolCall(ctx context.Context, call realtime.ToolCall) {
	result := s.runtime.Execute(ctx, call.Name, []byte(call.Arguments), s.tenantID, s.channelID)
	if err := s.model.SubmitToolOutput(call.CallID, json.RawMessage(result)); err != nil {
		s.log.Warn("submitting tool output failed", "tool", call.Name, "error", err)
	}
}

// inputStreamer is the input-streamer coroutine: it owns reading the
// telephony socket, applying the noise gate, and forwarding resampled audio
// to the model in arrival order.
func (s *CallSession) inputStreamer(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(keepaliveSilenceAfter))
		msgType, payload, err := readFrame(s.conn)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				s.sendSilenceKeepalive()
				continue
			}
			return
		}

		switch msgType {
		case frameAudio:
			s.handleTelephonyAudio(payload)
		case frameHangup:
			return
		case frameError:
			code := byte(0)
			if len(payload) > 0 {
				code = payload[0]
			}
			s.log.Warn("telephony stream error", "code", code)
			return
		}

		for {
			frame, ok := s.inputQueue.TryPop()
			if !ok {
				break
			}
			resampled := s.toModel.Process(frame)
			if err := s.model.SendAudio(resampled); err != nil {
				s.log.Warn("sending audio to model failed", "error", err)
				return
			}
		}
	}
}

func (s *CallSession) handleTelephonyAudio(payload []byte) {
	if !s.rateDetected {
		s.detectSampleRate(payload)
	}
	gated, rms, wasGated := applyNoiseGate(payload, s.noiseGateThreshold)
	if wasGated {
		s.noiseGateHits++
		if s.noiseGateHits == 1 || s.noiseGateHits == 100 || s.noiseGateHits == 500 {
			s.log.Info("noise gate active", "rms", rms, "threshold", s.noiseGateThreshold, "hits", s.noiseGateHits)
		}
	}
	s.inputQueue.PushDropOldest(gated)
}

func (s *CallSession) sendSilenceKeepalive() {
	if s.chunkBytes <= 0 {
		return
	}
	s.writeFrame(frameAudio, make([]byte, s.chunkBytes))
}

// Wait blocks until the session has fully ended.
func (s *CallSession) Wait() { <-s.done }
