package realtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/javierd009/concierge/internal/tools"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func startModelServer(t *testing.T, handler func(conn *websocket.Conn, r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")
		handler(conn, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func readJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("readJSON: %v", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("readJSON unmarshal: %v", err)
	}
}

func writeJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	data, _ := json.Marshal(v)
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Logf("writeJSON: %v (may be expected on close)", err)
	}
}

func TestConnectSendsAuthHeaderAndSessionUpdate(t *testing.T) {
	t.Parallel()

	type sessionUpdateMsg struct {
		Type    string `json:"type"`
		Session struct {
			Modalities        []string `json:"modalities"`
			InputAudioFormat  string   `json:"input_audio_format"`
			OutputAudioFormat string   `json:"output_audio_format"`
			TurnDetection     struct {
				Type      string  `json:"type"`
				Threshold float64 `json:"threshold"`
			} `json:"turn_detection"`
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"session"`
	}

	authHeader := make(chan string, 1)
	received := make(chan sessionUpdateMsg, 1)

	srv := startModelServer(t, func(conn *websocket.Conn, r *http.Request) {
		authHeader <- r.Header.Get("Authorization")
		var msg sessionUpdateMsg
		readJSON(t, conn, &msg)
		received <- msg
		<-conn.CloseRead(context.Background()).Done()
	})

	client := New(wsURL(srv), "secret-token")
	sess, err := client.Connect(context.Background(), SessionConfig{
		Instructions:         "Eres el conserje virtual.",
		VADThreshold:         0.5,
		VADPrefixPaddingMs:   300,
		VADSilenceDurationMs: 500,
		Tools:                []tools.Descriptor{{Name: "open_gate", Description: "Abrir la puerta"}},
	})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer sess.Close()

	select {
	case auth := <-authHeader:
		if auth != "Bearer secret-token" {
			t.Errorf("Authorization = %q, want Bearer secret-token", auth)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for auth header")
	}

	select {
	case msg := <-received:
		if msg.Type != "session.update" {
			t.Errorf("type = %q, want session.update", msg.Type)
		}
		if msg.Session.InputAudioFormat != "pcm16" || msg.Session.OutputAudioFormat != "pcm16" {
			t.Errorf("audio format = %+v, want pcm16/pcm16", msg.Session)
		}
		if msg.Session.TurnDetection.Type != "server_vad" || msg.Session.TurnDetection.Threshold != 0.5 {
			t.Errorf("turn_detection = %+v", msg.Session.TurnDetection)
		}
		if len(msg.Session.Tools) != 1 || msg.Session.Tools[0].Name != "open_gate" {
			t.Errorf("tools = %+v, want one tool named open_gate", msg.Session.Tools)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for session.update")
	}
}

func TestSendAudioEncodesBase64(t *testing.T) {
	t.Parallel()

	type appendMsg struct {
		Type  string `json:"type"`
		Audio string `json:"audio"`
	}
	gotMsg := make(chan appendMsg, 1)

	srv := startModelServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)
		var msg appendMsg
		readJSON(t, conn, &msg)
		gotMsg <- msg
		<-conn.CloseRead(context.Background()).Done()
	})

	client := New(wsURL(srv), "key")
	sess, err := client.Connect(context.Background(), SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer sess.Close()

	pcm := []byte{0x10, 0x20, 0x30, 0x40}
	if err := sess.SendAudio(pcm); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}

	select {
	case msg := <-gotMsg:
		if msg.Type != "input_audio_buffer.append" {
			t.Errorf("type = %q, want input_audio_buffer.append", msg.Type)
		}
		decoded, err := base64.StdEncoding.DecodeString(msg.Audio)
		if err != nil || string(decoded) != string(pcm) {
			t.Errorf("decoded audio = %v, err=%v, want %v", decoded, err, pcm)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for append message")
	}
}

func TestSendAudioAfterCloseReturnsError(t *testing.T) {
	t.Parallel()

	srv := startModelServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)
		<-conn.CloseRead(context.Background()).Done()
	})

	client := New(wsURL(srv), "key")
	sess, err := client.Connect(context.Background(), SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	_ = sess.Close()

	if err := sess.SendAudio([]byte{1, 2, 3}); err == nil {
		t.Fatal("SendAudio after Close should return an error")
	}
}

func TestAudioDeliversDecodedChunks(t *testing.T) {
	t.Parallel()

	want := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	encoded := base64.StdEncoding.EncodeToString(want)

	srv := startModelServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)
		writeJSON(t, conn, map[string]any{"type": "response.audio.delta", "delta": encoded})
		<-conn.CloseRead(context.Background()).Done()
	})

	client := New(wsURL(srv), "key")
	sess, err := client.Connect(context.Background(), SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer sess.Close()

	select {
	case chunk, ok := <-sess.Audio():
		if !ok {
			t.Fatal("Audio channel closed unexpectedly")
		}
		if string(chunk) != string(want) {
			t.Errorf("chunk = %v, want %v", chunk, want)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for audio chunk")
	}
}

func TestAudioDoneAndResponseDoneAndSpeechStartedSignal(t *testing.T) {
	t.Parallel()

	srv := startModelServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)
		writeJSON(t, conn, map[string]any{"type": "response.audio.done"})
		writeJSON(t, conn, map[string]any{"type": "response.done"})
		writeJSON(t, conn, map[string]any{"type": "input_audio_buffer.speech_started"})
		<-conn.CloseRead(context.Background()).Done()
	})

	client := New(wsURL(srv), "key")
	sess, err := client.Connect(context.Background(), SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer sess.Close()

	select {
	case <-sess.AudioDone():
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for audio done")
	}
	select {
	case <-sess.ResponseDone():
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for response done")
	}
	select {
	case <-sess.SpeechStarted():
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for speech started")
	}
}

func TestTranscriptsAssemblesDeltasAndUserTranscription(t *testing.T) {
	t.Parallel()

	srv := startModelServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)
		writeJSON(t, conn, map[string]any{"type": "response.audio_transcript.delta", "delta": "Buenas "})
		writeJSON(t, conn, map[string]any{"type": "response.audio_transcript.delta", "delta": "tardes"})
		writeJSON(t, conn, map[string]any{"type": "response.audio_transcript.done"})
		writeJSON(t, conn, map[string]any{
			"type":       "conversation.item.input_audio_transcription.completed",
			"transcript": "Vengo a visitar a Ana",
		})
		<-conn.CloseRead(context.Background()).Done()
	})

	client := New(wsURL(srv), "key")
	sess, err := client.Connect(context.Background(), SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer sess.Close()

	select {
	case entry := <-sess.Transcripts():
		if entry.Speaker != "assistant" || entry.Text != "Buenas tardes" {
			t.Errorf("entry = %+v, want assistant/'Buenas tardes'", entry)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for assistant transcript")
	}

	select {
	case entry := <-sess.Transcripts():
		if entry.Speaker != "user" || entry.Text != "Vengo a visitar a Ana" {
			t.Errorf("entry = %+v, want user transcript", entry)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for user transcript")
	}
}

func TestToolCallsSurfacesFunctionCallArguments(t *testing.T) {
	t.Parallel()

	outputReceived := make(chan string, 1)

	srv := startModelServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)
		writeJSON(t, conn, map[string]any{
			"type":      "response.function_call_arguments.done",
			"name":      "open_gate",
			"arguments": `{"visitor_name":"Ana"}`,
			"call_id":   "call-1",
		})

		var itemMsg map[string]any
		readJSON(t, conn, &itemMsg)
		data, _ := json.Marshal(itemMsg)
		outputReceived <- string(data)

		var createMsg map[string]any
		readJSON(t, conn, &createMsg)

		<-conn.CloseRead(context.Background()).Done()
	})

	client := New(wsURL(srv), "key")
	sess, err := client.Connect(context.Background(), SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer sess.Close()

	select {
	case call := <-sess.ToolCalls():
		if call.Name != "open_gate" || call.CallID != "call-1" {
			t.Fatalf("call = %+v, want open_gate/call-1", call)
		}
		if err := sess.SubmitToolOutput(call.CallID, json.RawMessage(`{"success":true}`)); err != nil {
			t.Fatalf("SubmitToolOutput: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for tool call")
	}

	select {
	case out := <-outputReceived:
		if !strings.Contains(out, "function_call_output") || !strings.Contains(out, "call-1") {
			t.Errorf("tool output message = %q, want function_call_output/call-1", out)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for function_call_output")
	}
}

func TestOnErrorInvokesHandler(t *testing.T) {
	t.Parallel()

	srv := startModelServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)
		writeJSON(t, conn, map[string]any{
			"type":  "error",
			"error": map[string]any{"type": "invalid_request_error", "message": "audio no reconocido"},
		})
		<-conn.CloseRead(context.Background()).Done()
	})

	client := New(wsURL(srv), "key")
	sess, err := client.Connect(context.Background(), SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer sess.Close()

	errCh := make(chan error, 1)
	sess.OnError(func(e error) { errCh <- e })

	select {
	case err := <-errCh:
		if !strings.Contains(err.Error(), "audio no reconocido") {
			t.Errorf("err = %v, want substring about unrecognized audio", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for OnError")
	}
}

func TestCloseIsIdempotentAndClosesChannels(t *testing.T) {
	t.Parallel()

	srv := startModelServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)
		<-conn.CloseRead(context.Background()).Done()
	})

	client := New(wsURL(srv), "key")
	sess, err := client.Connect(context.Background(), SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if err := sess.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	select {
	case _, open := <-sess.Audio():
		if open {
			t.Error("Audio channel should be closed after Close()")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for Audio channel to close")
	}
}

func TestErrNilBeforeError(t *testing.T) {
	t.Parallel()

	srv := startModelServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)
		<-conn.CloseRead(context.Background()).Done()
	})

	client := New(wsURL(srv), "key")
	sess, err := client.Connect(context.Background(), SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer sess.Close()

	if got := sess.Err(); got != nil {
		t.Errorf("Err() = %v, want nil before any error", got)
	}
}
