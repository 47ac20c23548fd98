// Package protocol abstracts the heterogeneous transports door
// controllers speak behind one command/response contract. Ordinary
// transport failures are values on the result, never errors: callers
// branch on the OK flag, and a down controller must not look different
// from a refusing one to the calling code's control flow.
package protocol

import (
	"context"
	"time"

	"github.com/gatehouse-io/gatehouse/internal/gatehouse/store"
)

// CommandType names an outbound device command.
type CommandType string

const (
	// CommandUnlock releases the door after a granted decision.
	CommandUnlock CommandType = "unlock"

	// CommandGrantAdd pushes a subject's access template/credential to
	// the device's local cache.
	CommandGrantAdd CommandType = "grant_add"

	// CommandGrantRemove removes a subject's template from the device.
	CommandGrantRemove CommandType = "grant_remove"
)

// Command is one outbound instruction to a door controller.
type Command struct {
	Type      CommandType `json:"type" cbor:"1,keyasint"`
	SubjectID string      `json:"subject_id,omitempty" cbor:"2,keyasint,omitempty"`
	PassID    string      `json:"pass_id,omitempty" cbor:"3,keyasint,omitempty"`
	IssuedAt  time.Time   `json:"issued_at" cbor:"4,keyasint"`
}

// CommandResult reports the outcome of one SendCommand call.
type CommandResult struct {
	OK      bool
	Message string
	Payload []byte // raw device response, when one was received
}

// DeviceReport is an inbound payload parsed off a device: either an
// access-event report or a liveness report.
type DeviceReport struct {
	Kind       string    `json:"kind" cbor:"1,keyasint"`
	SubjectID  string    `json:"subject_id,omitempty" cbor:"2,keyasint,omitempty"`
	Method     int       `json:"method,omitempty" cbor:"3,keyasint,omitempty"`
	Direction  string    `json:"direction,omitempty" cbor:"4,keyasint,omitempty"`
	ReportedAt time.Time `json:"reported_at" cbor:"5,keyasint"`
}

// DataResult reports the outcome of parsing one inbound payload.
type DataResult struct {
	OK      bool
	Message string
	Report  DeviceReport
}

// Adapter is one transport family. Selection is by the device record's
// protocol type, never hardcoded. Implementations must bound every
// network operation by the context's deadline.
type Adapter interface {
	SendCommand(ctx context.Context, device store.DeviceRecord, cmd Command) CommandResult
	ReceiveData(device store.DeviceRecord, raw []byte) DataResult
	ProtocolType() string
}
