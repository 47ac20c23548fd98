package protocol

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gatehouse-io/gatehouse/internal/gatehouse/store"
)

// maxResponseBody caps device responses; controllers send small acks.
const maxResponseBody = 4096

// HTTPAdapter talks JSON over HTTP to controllers that expose a REST
// endpoint. The device record's address is the base URL.
type HTTPAdapter struct {
	client *http.Client
}

func NewHTTPAdapter(timeout time.Duration) *HTTPAdapter {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPAdapter{client: &http.Client{Timeout: timeout}}
}

func (a *HTTPAdapter) ProtocolType() string { return "http" }

type httpAck struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

func (a *HTTPAdapter) SendCommand(ctx context.Context, device store.DeviceRecord, cmd Command) CommandResult {
	if cmd.IssuedAt.IsZero() {
		cmd.IssuedAt = time.Now().UTC()
	}

	body, err := json.Marshal(cmd)
	if err != nil {
		return CommandResult{OK: false, Message: fmt.Sprintf("encode command: %v", err)}
	}

	url := device.Address + "/v1/commands"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return CommandResult{OK: false, Message: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		// Timeouts and refused connections land here; the caller decides
		// whether that means deny, retry, or log.
		return CommandResult{OK: false, Message: fmt.Sprintf("send to %s: %v", device.DeviceID, err)}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return CommandResult{OK: false, Message: fmt.Sprintf("read response from %s: %v", device.DeviceID, err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return CommandResult{
			OK:      false,
			Message: fmt.Sprintf("device %s returned status %d", device.DeviceID, resp.StatusCode),
			Payload: payload,
		}
	}

	var ack httpAck
	if err := json.Unmarshal(payload, &ack); err != nil {
		return CommandResult{OK: false, Message: fmt.Sprintf("bad ack from %s: %v", device.DeviceID, err), Payload: payload}
	}
	if !ack.OK {
		return CommandResult{OK: false, Message: ack.Message, Payload: payload}
	}
	return CommandResult{OK: true, Message: ack.Message, Payload: payload}
}

func (a *HTTPAdapter) ReceiveData(device store.DeviceRecord, raw []byte) DataResult {
	var report DeviceReport
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&report); err != nil {
		return DataResult{OK: false, Message: fmt.Sprintf("parse payload from %s: %v", device.DeviceID, err)}
	}
	if report.Kind == "" {
		return DataResult{OK: false, Message: "payload missing kind"}
	}
	return DataResult{OK: true, Report: report}
}
