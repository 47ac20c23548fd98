package protocol_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/gatehouse-io/gatehouse/internal/gatehouse/protocol"
	"github.com/gatehouse-io/gatehouse/internal/gatehouse/store"
)

func TestRegistry_SelectsByProtocolType(t *testing.T) {
	reg := protocol.NewRegistry(
		protocol.NewHTTPAdapter(time.Second),
		protocol.NewTCPAdapter(time.Second),
	)

	if a, ok := reg.ForProtocol("http"); !ok || a.ProtocolType() != "http" {
		t.Errorf("http lookup failed: ok=%v", ok)
	}
	if a, ok := reg.ForProtocol("TCP"); !ok || a.ProtocolType() != "tcp" {
		t.Errorf("case-insensitive tcp lookup failed: ok=%v", ok)
	}
	if _, ok := reg.ForProtocol("serial"); ok {
		t.Error("unregistered protocol should not resolve")
	}
}

func TestHTTPAdapter_SendCommandAck(t *testing.T) {
	var gotCmd protocol.Command
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/commands" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&gotCmd)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "message": "done"})
	}))
	defer srv.Close()

	a := protocol.NewHTTPAdapter(time.Second)
	res := a.SendCommand(context.Background(), store.DeviceRecord{
		DeviceID: "door-001",
		Protocol: "http",
		Address:  srv.URL,
	}, protocol.Command{Type: protocol.CommandUnlock, SubjectID: "U1"})

	if !res.OK {
		t.Fatalf("expected OK, got message %q", res.Message)
	}
	if gotCmd.Type != protocol.CommandUnlock || gotCmd.SubjectID != "U1" {
		t.Errorf("device received %+v", gotCmd)
	}
}

func TestHTTPAdapter_DeviceRefusalIsAValue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "message": "door jammed"})
	}))
	defer srv.Close()

	a := protocol.NewHTTPAdapter(time.Second)
	res := a.SendCommand(context.Background(), store.DeviceRecord{DeviceID: "door-001", Address: srv.URL},
		protocol.Command{Type: protocol.CommandUnlock})

	if res.OK {
		t.Error("refusal should not report OK")
	}
	if res.Message != "door jammed" {
		t.Errorf("message = %q", res.Message)
	}
}

func TestHTTPAdapter_UnreachableDeviceIsAValue(t *testing.T) {
	a := protocol.NewHTTPAdapter(200 * time.Millisecond)
	res := a.SendCommand(context.Background(), store.DeviceRecord{
		DeviceID: "door-x",
		Address:  "http://127.0.0.1:1", // nothing listens here
	}, protocol.Command{Type: protocol.CommandUnlock})

	if res.OK {
		t.Error("unreachable device must not report OK")
	}
	if res.Message == "" {
		t.Error("failure should carry a message")
	}
}

func TestHTTPAdapter_ReceiveData(t *testing.T) {
	a := protocol.NewHTTPAdapter(time.Second)
	dev := store.DeviceRecord{DeviceID: "door-001"}

	raw, _ := json.Marshal(protocol.DeviceReport{
		Kind:       "access_event",
		SubjectID:  "U1",
		Method:     11,
		Direction:  "ENTER",
		ReportedAt: time.Now().UTC(),
	})
	res := a.ReceiveData(dev, raw)
	if !res.OK {
		t.Fatalf("expected OK, got %q", res.Message)
	}
	if res.Report.SubjectID != "U1" || res.Report.Method != 11 {
		t.Errorf("parsed report %+v", res.Report)
	}

	if res := a.ReceiveData(dev, []byte(`{"bogus":`)); res.OK {
		t.Error("malformed payload should not parse OK")
	}
}

func TestTCPAdapter_ReceiveData(t *testing.T) {
	a := protocol.NewTCPAdapter(time.Second)
	dev := store.DeviceRecord{DeviceID: "door-002"}

	raw, err := cbor.Marshal(protocol.DeviceReport{
		Kind:      "heartbeat",
		SubjectID: "",
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	res := a.ReceiveData(dev, raw)
	if !res.OK {
		t.Fatalf("expected OK, got %q", res.Message)
	}
	if res.Report.Kind != "heartbeat" {
		t.Errorf("kind = %q", res.Report.Kind)
	}

	if res := a.ReceiveData(dev, []byte{0xff, 0x00}); res.OK {
		t.Error("garbage frame should not parse OK")
	}
}

func TestTCPAdapter_DialFailureIsAValue(t *testing.T) {
	a := protocol.NewTCPAdapter(200 * time.Millisecond)
	res := a.SendCommand(context.Background(), store.DeviceRecord{
		DeviceID: "door-x",
		Address:  "127.0.0.1:1",
	}, protocol.Command{Type: protocol.CommandGrantAdd, SubjectID: "U1"})

	if res.OK {
		t.Error("dial failure must not report OK")
	}
}
