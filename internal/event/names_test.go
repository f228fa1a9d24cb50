package event

import "testing"

func TestStandardMapBidirectional(t *testing.T) {
	m := Standard()

	tests := []struct {
		wire string
		name Name
	}{
		{"playerJoin", PlayerJoin},
		{"playerLeave", PlayerLeave},
		{"sessionUpdate", SessionUpdate},
		{"sessionEnd", SessionEnd},
		{"broadcast", ChatBroadcast},
		{"blueprintSync", BlueprintSync},
		{"localeSync", LocaleSync},
		{"serverCommand", CommandDispatch},
		{"characterState", CharacterState},
		{"presenceSync", PresenceSync},
	}

	if m.Len() != len(tests) {
		t.Errorf("Len() = %d, want %d", m.Len(), len(tests))
	}

	for _, tt := range tests {
		t.Run(tt.wire, func(t *testing.T) {
			name, ok := m.Internal(tt.wire)
			if !ok {
				t.Fatalf("Internal(%q) not found", tt.wire)
			}
			if name != tt.name {
				t.Errorf("Internal(%q) = %q, want %q", tt.wire, name, tt.name)
			}

			wire, ok := m.Wire(tt.name)
			if !ok {
				t.Fatalf("Wire(%q) not found", tt.name)
			}
			if wire != tt.wire {
				t.Errorf("Wire(%q) = %q, want %q", tt.name, wire, tt.wire)
			}
		})
	}
}

func TestStandardMapClosed(t *testing.T) {
	m := Standard()

	for _, wire := range []string{"unknownEvent", "", WireConnected, WireConnectedAck} {
		if name, ok := m.Internal(wire); ok {
			t.Errorf("Internal(%q) = %q, want no entry", wire, name)
		}
	}

	if wire, ok := m.Wire(Name("no.such.event")); ok {
		t.Errorf("Wire(no.such.event) = %q, want no entry", wire)
	}
}

func TestMapNamesSorted(t *testing.T) {
	names := Standard().Names()
	if len(names) != Standard().Len() {
		t.Fatalf("Names() len = %d, want %d", len(names), Standard().Len())
	}
	for i := 1; i < len(names); i++ {
		if names[i-1] >= names[i] {
			t.Errorf("Names() not sorted at %d: %q >= %q", i, names[i-1], names[i])
		}
	}
}

func TestNewMapIndependentCopy(t *testing.T) {
	entries := map[string]Name{"customEvent": Name("custom.event")}
	m := NewMap(entries)

	entries["injected"] = Name("injected.event")

	if _, ok := m.Internal("injected"); ok {
		t.Error("Internal(injected) found, map shares caller storage")
	}
	if m.Len() != 1 {
		t.Errorf("Len() = %d, want 1", m.Len())
	}
}
