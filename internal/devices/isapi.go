package devices

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

func newReader(b []byte) io.Reader {
	if b == nil {
		return nil
	}
	return bytes.NewReader(b)
}

// OpenDoorResult reports which variant succeeded.
type OpenDoorResult struct {
	Success bool
	Method  string // "access_control" | "access_control_v2" | "io_trigger" | "alarm_output"
	Error   string
}

// Method tags in the exact order the fallback ladder below tries them.
const (
	MethodAccessControl   = "access_control"
	MethodAccessControlV2 = "access_control_v2"
	MethodIOTrigger       = "io_trigger"
	MethodAlarmOutput     = "alarm_output"
)

// strictOpenXML must be exactly this byte sequence: no XML prolog, no
// whitespace. Some firmwares reject any deviation.
const strictOpenXML = "<RemoteControlDoor><cmd>open</cmd></RemoteControlDoor>"

const v2OpenXML = "<RemoteControlDoor version='2.0' xmlns='http://www.isapi.org/ver20/XMLSchema'><cmd>open</cmd></RemoteControlDoor>"

const alarmOutputActiveXML = "<IOOutputPort><outputState>active</outputState></IOOutputPort>"

// OpenDoor walks the fallback ladder in §4.4 order, returning on first
// success. Each variant is attempted at most once; the caller (fast path or
// QR consume) is responsible for any retry of the whole sequence.
func (c *Client) OpenDoor(ctx context.Context, doorIndex int) OpenDoorResult {
	path := fmt.Sprintf("/ISAPI/AccessControl/RemoteControl/door/%d", doorIndex)

	if ok, err := c.putXMLOK(ctx, path, strictOpenXML); ok {
		return OpenDoorResult{Success: true, Method: MethodAccessControl}
	} else if err != nil {
		// keep walking the ladder; record nothing, just try the next variant
		_ = err
	}

	if ok, _ := c.putXMLOK(ctx, path, v2OpenXML); ok {
		return OpenDoorResult{Success: true, Method: MethodAccessControlV2}
	}

	triggerPath := fmt.Sprintf("/ISAPI/System/IO/outputs/%d/trigger", doorIndex)
	if ok, _ := c.putXMLOK(ctx, triggerPath, ""); ok {
		return OpenDoorResult{Success: true, Method: MethodIOTrigger}
	}

	outputPath := fmt.Sprintf("/ISAPI/System/IO/outputs/%d", doorIndex)
	if ok, _ := c.putXMLOK(ctx, outputPath, alarmOutputActiveXML); ok {
		return OpenDoorResult{Success: true, Method: MethodAlarmOutput}
	}

	return OpenDoorResult{Success: false, Error: "all open-door variants failed"}
}

// OpenDoorVariant PUTs a single named XML variant without walking the rest
// of the fallback ladder. The fast-path dispatcher uses this directly so it
// can apply its own narrower retry policy instead of the Access-Device
// Client's full io_trigger/alarm_output ladder.
//
// Naming here follows the fast-path command table, not OpenDoor's ladder
// above: "strict" is the v2-namespaced body, "legacy" is the bare body.
// Fast-path's own xml_mode vocabulary was fixed before this client existed
// and inverted the two names; OpenDoorVariant preserves that vocabulary so
// fast-path configuration values need no translation.
func (c *Client) OpenDoorVariant(ctx context.Context, doorIndex int, variant string) (bool, error) {
	path := fmt.Sprintf("/ISAPI/AccessControl/RemoteControl/door/%d", doorIndex)
	body := v2OpenXML
	if variant == "legacy" {
		body = strictOpenXML
	}
	return c.putXMLOK(ctx, path, body)
}

// CloseDoor attempts the legacy close command, falling back to the
// versioned namespace the way open does.
func (c *Client) CloseDoor(ctx context.Context, doorIndex int) (bool, error) {
	path := fmt.Sprintf("/ISAPI/AccessControl/RemoteControl/door/%d", doorIndex)
	const legacyCloseXML = "<RemoteControlDoor><cmd>close</cmd></RemoteControlDoor>"
	const v2CloseXML = "<RemoteControlDoor version='2.0' xmlns='http://www.isapi.org/ver20/XMLSchema'><cmd>close</cmd></RemoteControlDoor>"

	if ok, err := c.putXMLOK(ctx, path, legacyCloseXML); ok {
		return true, nil
	} else if err != nil {
		return false, err
	}
	ok, err := c.putXMLOK(ctx, path, v2CloseXML)
	return ok, err
}

func (c *Client) putXMLOK(ctx context.Context, path, body string) (bool, error) {
	resp, err := c.doPUT(ctx, path, "application/xml", []byte(body))
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	return statusOK(resp), nil
}

// statusOK implements the vendor success rule: HTTP 200/204, or a JSON body
// with statusCode==1 even when the HTTP status would otherwise suggest
// inspection.
func statusOK(resp *http.Response) bool {
	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNoContent {
		return true
	}
	var body struct {
		StatusCode json.Number `json:"statusCode"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false
	}
	return body.StatusCode.String() == "1"
}

// DeviceInfo reports connectivity and raw device metadata.
type DeviceInfo struct {
	Connected bool
	Raw       string
}

func (c *Client) GetDeviceInfo(ctx context.Context) (DeviceInfo, error) {
	resp, err := c.doGET(ctx, "/ISAPI/System/deviceInfo")
	if err != nil {
		return DeviceInfo{Connected: false}, err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	return DeviceInfo{
		Connected: resp.StatusCode == http.StatusOK,
		Raw:       string(raw),
	}, nil
}

func (c *Client) GetDoorStatus(ctx context.Context, doorIndex int) (string, error) {
	resp, err := c.doGET(ctx, fmt.Sprintf("/ISAPI/AccessControl/Door/status/%d", doorIndex))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	return string(raw), nil
}

// CheckConnection is a best-effort liveness probe used by operator tooling.
func (c *Client) CheckConnection(ctx context.Context) bool {
	info, err := c.GetDeviceInfo(ctx)
	return err == nil && info.Connected
}
