package bridge

import (
	"context"
	"errors"
	"testing"

	"github.com/nerrad567/elan2mqtt/internal/bridges/elan"
)

func TestCommandBridge_DropsUnroutable(t *testing.T) {
	tests := []struct {
		name  string
		topic string
	}{
		{"unknown device", "eLan/ZZ:ZZ/command"},
		{"status topic", "eLan/AA:BB/status"},
		{"foreign prefix", "other/AA:BB/command"},
		{"extra level", "eLan/AA:BB/command/x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, lightDevice())

			if err := f.command.HandleCommand(context.Background(), tt.topic, []byte(`{"on":true}`)); err != nil {
				t.Fatalf("HandleCommand() error = %v, want nil", err)
			}
			if n := len(f.hub.Puts()); n != 0 {
				t.Errorf("hub received %d PUTs, want 0", n)
			}
			if got := metricValue(t, f.metrics, "elan2mqtt_commands_total", "result", "dropped"); got != 1 {
				t.Errorf("dropped commands = %v, want 1", got)
			}
		})
	}
}

func TestCommandBridge_InvalidPayload(t *testing.T) {
	f := newFixture(t, lightDevice())

	err := f.command.HandleCommand(context.Background(), "eLan/AA:BB/command", []byte("on"))
	if !errors.Is(err, ErrInvalidCommand) {
		t.Fatalf("HandleCommand() error = %v, want ErrInvalidCommand", err)
	}
	if len(f.hub.Puts()) != 0 {
		t.Error("invalid payload must not reach the hub")
	}
	if len(f.commands.records) != 1 || f.commands.records[0].Outcome != OutcomeInvalid {
		t.Errorf("records = %+v, want one invalid", f.commands.records)
	}
}

func TestCommandBridge_RoundTrip(t *testing.T) {
	f := newFixture(t, lightDevice())

	err := f.command.HandleCommand(context.Background(), "eLan/AA:BB/command", []byte(`{"on": true}`))
	if err != nil {
		t.Fatalf("HandleCommand() error = %v", err)
	}

	puts := f.hub.Puts()
	if len(puts) != 1 || puts[0].HubID != "A1" || puts[0].Body != `{"on": true}` {
		t.Fatalf("puts = %+v, want the payload verbatim to A1", puts)
	}

	got := f.broker.on("eLan/AA:BB/status")
	if len(got) != 1 {
		t.Fatalf("status published %d times, want 1", len(got))
	}
	if got[0].Payload != `{"brightness":0,"on":true}` {
		t.Errorf("status = %s, want the hub state after the command", got[0].Payload)
	}

	if len(f.commands.records) != 1 {
		t.Fatalf("records = %+v, want one", f.commands.records)
	}
	rec := f.commands.records[0]
	if rec.Outcome != OutcomeRelayed || rec.DeviceID != "AA:BB" || rec.HubID != "A1" {
		t.Errorf("record = %+v", rec)
	}
}

func TestCommandBridge_PutRejected(t *testing.T) {
	f := newFixture(t, lightDevice())
	f.hub.RemoveDevice("A1")

	err := f.command.HandleCommand(context.Background(), "eLan/AA:BB/command", []byte(`{"on":true}`))
	if !errors.Is(err, ErrCommandRejected) || !errors.Is(err, elan.ErrBadStatus) {
		t.Fatalf("HandleCommand() error = %v, want ErrCommandRejected wrapping ErrBadStatus", err)
	}
	if !recoverable(err) {
		t.Error("a rejected command should not end the session")
	}
	if !f.client.AuthenticatedAt().IsZero() {
		t.Error("a rejected command should invalidate the hub session")
	}
	if f.broker.count("eLan/AA:BB/status") != 0 {
		t.Error("no status should follow a failed command")
	}
	if len(f.commands.records) != 1 || f.commands.records[0].Outcome != OutcomeFailed {
		t.Errorf("records = %+v, want one failed", f.commands.records)
	}
}
