package protocol

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/gatehouse-io/gatehouse/internal/gatehouse/store"
)

// maxFrame caps a single CBOR frame on the TCP transport. Controller
// payloads are a few hundred bytes; anything larger is a broken peer.
const maxFrame = 64 * 1024

// TCPAdapter speaks length-prefixed CBOR frames to controllers on a raw
// TCP port: a 4-byte big-endian length followed by the CBOR body. The
// device record's address is host:port.
type TCPAdapter struct {
	dialer  net.Dialer
	timeout time.Duration
}

func NewTCPAdapter(timeout time.Duration) *TCPAdapter {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &TCPAdapter{timeout: timeout}
}

func (a *TCPAdapter) ProtocolType() string { return "tcp" }

type tcpAck struct {
	OK      bool   `cbor:"1,keyasint"`
	Message string `cbor:"2,keyasint,omitempty"`
}

func (a *TCPAdapter) SendCommand(ctx context.Context, device store.DeviceRecord, cmd Command) CommandResult {
	if cmd.IssuedAt.IsZero() {
		cmd.IssuedAt = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	conn, err := a.dialer.DialContext(ctx, "tcp", device.Address)
	if err != nil {
		return CommandResult{OK: false, Message: fmt.Sprintf("dial %s: %v", device.DeviceID, err)}
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if err := writeFrame(conn, cmd); err != nil {
		return CommandResult{OK: false, Message: fmt.Sprintf("write to %s: %v", device.DeviceID, err)}
	}

	payload, err := readFrame(conn)
	if err != nil {
		return CommandResult{OK: false, Message: fmt.Sprintf("read ack from %s: %v", device.DeviceID, err)}
	}

	var ack tcpAck
	if err := cbor.Unmarshal(payload, &ack); err != nil {
		return CommandResult{OK: false, Message: fmt.Sprintf("bad ack from %s: %v", device.DeviceID, err), Payload: payload}
	}
	if !ack.OK {
		return CommandResult{OK: false, Message: ack.Message, Payload: payload}
	}
	return CommandResult{OK: true, Message: ack.Message, Payload: payload}
}

func (a *TCPAdapter) ReceiveData(device store.DeviceRecord, raw []byte) DataResult {
	var report DeviceReport
	if err := cbor.Unmarshal(raw, &report); err != nil {
		return DataResult{OK: false, Message: fmt.Sprintf("parse frame from %s: %v", device.DeviceID, err)}
	}
	if report.Kind == "" {
		return DataResult{OK: false, Message: "frame missing kind"}
	}
	return DataResult{OK: true, Report: report}
}

func writeFrame(w io.Writer, v any) error {
	body, err := cbor.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(body)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}

func readFrame(r io.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > maxFrame {
		return nil, fmt.Errorf("frame too large: %d", n)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return body, nil
}
