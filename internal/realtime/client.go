// Package realtime implements the Realtime Model Client: a thin framing
// layer over a single WebSocket to the cloud speech model. It owns nothing
// about telephony, resampling or barge-in policy — those live in the voice
// bridge, which is the sole consumer of this package.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/coder/websocket"

	"github.com/javierd009/concierge/internal/tools"
)

// SessionConfig configures the model session sent in the first
// session.update event.
type SessionConfig struct {
	Instructions string
	Voice        string

	VADThreshold         float64
	VADPrefixPaddingMs   int
	VADSilenceDurationMs int

	Tools []tools.Descriptor
}

// Client dials the realtime model endpoint and hands back Sessions.
type Client struct {
	url         string
	bearerToken string
}

// New constructs a Client for the given WebSocket URL and bearer token.
func New(url, bearerToken string) *Client {
	return &Client{url: url, bearerToken: bearerToken}
}

// Connect dials the model endpoint and sends the initial session.update.
// The returned Session is ready to accept audio immediately.
func (c *Client) Connect(ctx context.Context, cfg SessionConfig) (*Session, error) {
	conn, _, err := websocket.Dial(ctx, c.url, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Authorization": []string{"Bearer " + c.bearerToken},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("realtime: dial: %w", err)
	}

	sessCtx, cancel := context.WithCancel(context.Background())
	sess := &Session{
		conn:          conn,
		ctx:           sessCtx,
		cancel:        cancel,
		audioCh:       make(chan []byte, 64),
		audioDoneCh:   make(chan struct{}, 1),
		responseDone:  make(chan struct{}, 1),
		speechStarted: make(chan struct{}, 1),
		transcripts:   make(chan TranscriptEntry, 16),
		toolCalls:     make(chan ToolCall, 8),
	}

	if err := sess.sendSessionUpdate(cfg); err != nil {
		cancel()
		conn.Close(websocket.StatusInternalError, "session update failed")
		return nil, fmt.Errorf("realtime: session update: %w", err)
	}

	go sess.receiveLoop()

	return sess, nil
}

// ── outbound message shapes ──────────────────────────────────────────────

type sessionUpdateMessage struct {
	Type    string        `json:"type"`
	Session sessionParams `json:"session"`
}

type sessionParams struct {
	Modalities        []string       `json:"modalities"`
	InputAudioFormat  string         `json:"input_audio_format"`
	OutputAudioFormat string         `json:"output_audio_format"`
	Instructions      string         `json:"instructions,omitempty"`
	Voice             string         `json:"voice,omitempty"`
	TurnDetection     *turnDetection `json:"turn_detection,omitempty"`
	Tools             []modelTool    `json:"tools,omitempty"`
}

type turnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold,omitempty"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms,omitempty"`
	SilenceDurationMs int     `json:"silence_duration_ms,omitempty"`
}

type modelTool struct {
	Type        string          `json:"type"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type appendAudioMessage struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

type createConversationItemMessage struct {
	Type string           `json:"type"`
	Item conversationItem `json:"item"`
}

type conversationItem struct {
	Type   string `json:"type"`
	CallID string `json:"call_id,omitempty"`
	Output string `json:"output,omitempty"`
}

// ── inbound message shapes ───────────────────────────────────────────────

type serverEvent struct {
	Type string `json:"type"`

	// response.audio.delta / response.audio_transcript.delta
	Delta string `json:"delta,omitempty"`

	// conversation.item.input_audio_transcription.completed
	Transcript string `json:"transcript,omitempty"`

	// response.function_call_arguments.done
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
	CallID    string `json:"call_id,omitempty"`

	Error *serverErrorDetail `json:"error,omitempty"`
}

type serverErrorDetail struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// ToolCall is a function_call_arguments.done event surfaced to the caller.
// The caller (the voice bridge's CallSession) executes it against the tool
// runtime and reports the result back via Session.SubmitToolOutput.
type ToolCall struct {
	CallID string
	Name   string
	// Arguments is the raw, unparsed JSON-encoded arguments string the model
	// sent; the tool runtime owns unmarshaling and validation.
	Arguments string
}

// TranscriptEntry is one completed utterance, either side of the call.
type TranscriptEntry struct {
	Speaker string // "assistant" | "user"
	Text    string
}
