package realtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/coder/websocket"

	"github.com/javierd009/concierge/internal/tools"
)

// Session is a single live connection to the realtime model. All sends are
// serialized through writeMu so that write ordering on the wire matches
// call order, as the component contract requires.
type Session struct {
	conn *websocket.Conn

	ctx    context.Context
	cancel context.CancelFunc

	writeMu sync.Mutex

	audioCh       chan []byte
	audioDoneCh   chan struct{}
	responseDone  chan struct{}
	speechStarted chan struct{}
	transcripts   chan TranscriptEntry
	toolCalls     chan ToolCall

	mu           sync.Mutex
	errVal       error
	closed       bool
	errorHandler func(error)

	currentTranscript string
}

func (s *Session) sendSessionUpdate(cfg SessionConfig) error {
	params := sessionParams{
		Modalities:        []string{"text", "audio"},
		InputAudioFormat:  "pcm16",
		OutputAudioFormat: "pcm16",
		Instructions:      cfg.Instructions,
		Voice:             cfg.Voice,
		TurnDetection: &turnDetection{
			Type:              "server_vad",
			Threshold:         cfg.VADThreshold,
			PrefixPaddingMs:   cfg.VADPrefixPaddingMs,
			SilenceDurationMs: cfg.VADSilenceDurationMs,
		},
		Tools: toModelTools(cfg.Tools),
	}
	return s.writeJSON(sessionUpdateMessage{Type: "session.update", Session: params})
}

func toModelTools(descriptors []tools.Descriptor) []modelTool {
	if len(descriptors) == 0 {
		return nil
	}
	out := make([]modelTool, len(descriptors))
	for i, d := range descriptors {
		out[i] = modelTool{Type: "function", Name: d.Name, Description: d.Description, Parameters: d.Parameters}
	}
	return out
}

func (s *Session) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("realtime: marshal: %w", err)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.Write(s.ctx, websocket.MessageText, data)
}

// SendAudio appends one chunk of PCM16@24kHz audio to the model's input
// buffer.
func (s *Session) SendAudio(chunk []byte) error {
	if s.isClosed() {
		return fmt.Errorf("realtime: session closed")
	}
	return s.writeJSON(appendAudioMessage{
		Type:  "input_audio_buffer.append",
		Audio: base64.StdEncoding.EncodeToString(chunk),
	})
}

// SubmitToolOutput reports the result of a tool call back to the model and
// triggers the next response, as a single ordered write pair.
func (s *Session) SubmitToolOutput(callID string, output json.RawMessage) error {
	if err := s.writeJSON(createConversationItemMessage{
		Type: "conversation.item.create",
		Item: conversationItem{Type: "function_call_output", CallID: callID, Output: string(output)},
	}); err != nil {
		return err
	}
	return s.writeJSON(map[string]string{"type": "response.create"})
}

// TriggerResponse asks the model to produce a response without injecting a
// new conversation item (e.g. after an out-of-band context update).
func (s *Session) TriggerResponse() error {
	return s.writeJSON(map[string]string{"type": "response.create"})
}

// Audio returns the channel on which the model's synthesized audio arrives.
func (s *Session) Audio() <-chan []byte { return s.audioCh }

// AudioDone fires once per response.audio.done event.
func (s *Session) AudioDone() <-chan struct{} { return s.audioDoneCh }

// ResponseDone fires once per response.done event.
func (s *Session) ResponseDone() <-chan struct{} { return s.responseDone }

// SpeechStarted fires once per input_audio_buffer.speech_started event; the
// voice bridge applies its own barge-in arbitration on top of this signal.
func (s *Session) SpeechStarted() <-chan struct{} { return s.speechStarted }

// Transcripts returns completed utterances from both sides of the call.
func (s *Session) Transcripts() <-chan TranscriptEntry { return s.transcripts }

// ToolCalls returns function_call_arguments.done events as they complete.
func (s *Session) ToolCalls() <-chan ToolCall { return s.toolCalls }

// Err returns the error that ended the session, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errVal
}

// OnError registers a callback for non-fatal error events from the model.
func (s *Session) OnError(handler func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorHandler = handler
}

// Close tears down the connection. Idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	return s.conn.Close(websocket.StatusNormalClosure, "session closed")
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// receiveLoop owns audioCh, audioDoneCh, responseDone, speechStarted,
// transcripts and toolCalls: it closes all of them on exit. There is no
// reconnect policy here; a read error ends the session and the caller
// (CallSession) decides what to do with the call in progress.
func (s *Session) receiveLoop() {
	defer s.closeChannels()

	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.setErr(err)
			return
		}

		var evt serverEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			continue
		}
		s.handle(&evt)
	}
}

func (s *Session) handle(evt *serverEvent) {
	switch evt.Type {
	case "session.created":
		// Nothing to do; the session is already usable once session.update
		// is acknowledged by virtue of the model accepting later events.

	case "response.audio.delta":
		if evt.Delta == "" {
			return
		}
		audio, err := base64.StdEncoding.DecodeString(evt.Delta)
		if err != nil || len(audio) == 0 {
			return
		}
		select {
		case s.audioCh <- audio:
		case <-s.ctx.Done():
		}

	case "response.audio.done":
		select {
		case s.audioDoneCh <- struct{}{}:
		default:
		}

	case "response.done":
		select {
		case s.responseDone <- struct{}{}:
		default:
		}

	case "input_audio_buffer.speech_started":
		select {
		case s.speechStarted <- struct{}{}:
		default:
		}

	case "response.audio_transcript.delta":
		if evt.Delta == "" {
			return
		}
		s.mu.Lock()
		s.currentTranscript += evt.Delta
		s.mu.Unlock()

	case "response.audio_transcript.done":
		s.flushTranscript("assistant")

	case "conversation.item.input_audio_transcription.completed":
		if evt.Transcript == "" {
			return
		}
		s.emitTranscript("user", evt.Transcript)

	case "response.function_call_arguments.done":
		select {
		case s.toolCalls <- ToolCall{CallID: evt.CallID, Name: evt.Name, Arguments: evt.Arguments}:
		case <-s.ctx.Done():
		}

	case "error":
		s.handleError(evt)
	}
}

func (s *Session) flushTranscript(speaker string) {
	s.mu.Lock()
	text := s.currentTranscript
	s.currentTranscript = ""
	s.mu.Unlock()
	if text == "" {
		return
	}
	s.emitTranscript(speaker, text)
}

func (s *Session) emitTranscript(speaker, text string) {
	select {
	case s.transcripts <- TranscriptEntry{Speaker: speaker, Text: text}:
	case <-s.ctx.Done():
	}
}

func (s *Session) handleError(evt *serverEvent) {
	s.mu.Lock()
	handler := s.errorHandler
	s.mu.Unlock()
	if handler == nil {
		return
	}
	msg := "unknown error"
	if evt.Error != nil && evt.Error.Message != "" {
		msg = evt.Error.Message
	}
	handler(fmt.Errorf("realtime: %s", msg))
}

func (s *Session) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errVal == nil {
		s.errVal = err
	}
}

func (s *Session) closeChannels() {
	close(s.audioCh)
	close(s.audioDoneCh)
	close(s.responseDone)
	close(s.speechStarted)
	close(s.transcripts)
	close(s.toolCalls)
}
