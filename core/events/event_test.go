package events

import (
	"testing"

	"hourbank/core/types"
)

func TestBufferPayloadsCloneAttributes(t *testing.T) {
	var buf Buffer
	evt := &types.Event{Type: "ledger.minted", Attributes: map[string]string{"amount": "10"}}
	buf.Emit(Wrap(evt))
	buf.Emit(nil)

	payloads := buf.Payloads()
	if len(payloads) != 1 {
		t.Fatalf("expected one payload, got %d", len(payloads))
	}
	payloads[0].Attributes["amount"] = "99"
	if evt.Attributes["amount"] != "10" {
		t.Fatalf("payload mutation leaked into buffered event")
	}
	if got := buf.Events()[0].EventType(); got != "ledger.minted" {
		t.Fatalf("unexpected event type %q", got)
	}

	buf.Reset()
	if len(buf.Events()) != 0 {
		t.Fatalf("expected empty buffer after reset")
	}
}
