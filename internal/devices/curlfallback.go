package devices

import (
	"context"
	"fmt"
	"os/exec"
)

// MethodCurlDigest is the optional last-resort fallback used only by the QR
// consume path: shell out to a digest-capable HTTP client when the net/http
// round trip itself cannot be trusted (e.g. a firmware that mishandles Go's
// TLS/keep-alive behavior but accepts curl's).
const MethodCurlDigest = "curl_digest"

// CurlDigestOpen PUTs the strict open payload via curl --digest, accepting
// HTTP 200 or 204 as success.
func (c *Client) CurlDigestOpen(ctx context.Context, host string, port int, username, password string, doorIndex int) (bool, error) {
	url := fmt.Sprintf("http://%s:%d/ISAPI/AccessControl/RemoteControl/door/%d", host, port, doorIndex)
	cmd := exec.CommandContext(ctx, "curl",
		"--digest", "-u", username+":"+password,
		"-X", "PUT",
		"-H", "Content-Type: application/xml",
		"-d", strictOpenXML,
		"-o", "/dev/null",
		"-w", "%{http_code}",
		"-s",
		url,
	)
	out, err := cmd.Output()
	if err != nil {
		return false, fmt.Errorf("curl digest fallback: %w", err)
	}
	code := string(out)
	return code == "200" || code == "204", nil
}
