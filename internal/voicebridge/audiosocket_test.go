package voicebridge

import (
	"bytes"
	"encoding/hex"
	"io"
	"testing"
)

func TestWriteFrameThenReadFrameRoundTrips(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte{0x01, 0x02, 0x03, 0x04}
	if err := writeFrame(&buf, frameAudio, payload); err != nil {
		t.Fatalf("writeFrame() error: %v", err)
	}

	msgType, got, err := readFrame(&buf)
	if err != nil {
		t.Fatalf("readFrame() error: %v", err)
	}
	if msgType != frameAudio {
		t.Fatalf("msgType = %#x, want %#x", msgType, frameAudio)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload = %v, want %v", got, payload)
	}
}

func TestReadFrameZeroLengthPayload(t *testing.T) {
	var buf bytes.Buffer
	if err := writeFrame(&buf, frameHangup, nil); err != nil {
		t.Fatalf("writeFrame() error: %v", err)
	}
	msgType, payload, err := readFrame(&buf)
	if err != nil {
		t.Fatalf("readFrame() error: %v", err)
	}
	if msgType != frameHangup || len(payload) != 0 {
		t.Fatalf("got type=%#x payload=%v, want type=%#x empty payload", msgType, payload, frameHangup)
	}
}

func TestReadFrameTruncatedHeaderReturnsError(t *testing.T) {
	buf := bytes.NewReader([]byte{0x10, 0x00})
	if _, _, err := readFrame(buf); err == nil {
		t.Fatal("expected an error for a truncated frame header")
	}
}

func TestReadFrameTruncatedPayloadReturnsError(t *testing.T) {
	buf := bytes.NewReader([]byte{0x10, 0x00, 0x05, 0x01, 0x02})
	if _, _, err := readFrame(buf); err != io.ErrUnexpectedEOF {
		t.Fatalf("readFrame() error = %v, want io.ErrUnexpectedEOF", err)
	}
}

func TestWriteFrameRejectsOversizedPayload(t *testing.T) {
	var buf bytes.Buffer
	if err := writeFrame(&buf, frameAudio, make([]byte, maxFramePayload+1)); err == nil {
		t.Fatal("expected an error for an oversized payload")
	}
}

func TestParseCallIDBinaryUUID(t *testing.T) {
	raw, err := hex.DecodeString("0123456789abcdef0123456789abcdef")
	if err != nil {
		t.Fatalf("decoding test fixture: %v", err)
	}
	got, err := parseCallID(raw)
	if err != nil {
		t.Fatalf("parseCallID() error: %v", err)
	}
	want := "01234567-89ab-cdef-0123-456789abcdef"
	if got != want {
		t.Fatalf("parseCallID() = %q, want %q", got, want)
	}
}

func TestParseCallIDTextForm(t *testing.T) {
	const want = "01234567-89ab-cdef-0123-456789abcdef"
	got, err := parseCallID([]byte(want))
	if err != nil {
		t.Fatalf("parseCallID() error: %v", err)
	}
	if got != want {
		t.Fatalf("parseCallID() = %q, want %q", got, want)
	}
}

func TestParseCallIDEmptyPayloadIsError(t *testing.T) {
	if _, err := parseCallID(nil); err == nil {
		t.Fatal("expected an error for an empty call id payload")
	}
}
