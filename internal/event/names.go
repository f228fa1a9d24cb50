package event

import "sort"

// Name is an internal event identifier as consumed by the rest of the
// runtime. The engine never sees these; the Map translates them to and
// from wire names at the link boundary.
type Name string

// Internal event identifiers.
const (
	PlayerJoin      Name = "player.join"
	PlayerLeave     Name = "player.leave"
	SessionUpdate   Name = "session.update"
	SessionEnd      Name = "session.end"
	ChatBroadcast   Name = "chat.broadcast"
	BlueprintSync   Name = "blueprint.sync"
	LocaleSync      Name = "locale.sync"
	CommandDispatch Name = "command.dispatch"
	CharacterState  Name = "character.state"
	PresenceSync    Name = "presence.sync"
)

// Handshake control events. These ride the same envelope format but are
// consumed by the link itself and never appear in the name map.
const (
	WireConnected    = "connected"
	WireConnectedAck = "connectedAck"
)

// standardNames is the closed wire-to-internal table. Entries are static
// configuration; wire events absent from it are dropped at the link.
var standardNames = map[string]Name{
	"playerJoin":     PlayerJoin,
	"playerLeave":    PlayerLeave,
	"sessionUpdate":  SessionUpdate,
	"sessionEnd":     SessionEnd,
	"broadcast":      ChatBroadcast,
	"blueprintSync":  BlueprintSync,
	"localeSync":     LocaleSync,
	"serverCommand":  CommandDispatch,
	"characterState": CharacterState,
	"presenceSync":   PresenceSync,
}

// Map is a fixed bidirectional table between wire event names and internal
// identifiers. It is immutable after construction.
type Map struct {
	toInternal map[string]Name
	toWire     map[Name]string
}

// NewMap builds a Map from a wire-to-internal table. Entries must be 1:1.
func NewMap(entries map[string]Name) *Map {
	m := &Map{
		toInternal: make(map[string]Name, len(entries)),
		toWire:     make(map[Name]string, len(entries)),
	}
	for wire, name := range entries {
		m.toInternal[wire] = name
		m.toWire[name] = wire
	}
	return m
}

// Standard returns the Map for the engine's standard event set.
func Standard() *Map {
	return NewMap(standardNames)
}

// Internal resolves a wire event name to its internal identifier.
func (m *Map) Internal(wire string) (Name, bool) {
	name, ok := m.toInternal[wire]
	return name, ok
}

// Wire resolves an internal identifier to its wire event name.
func (m *Map) Wire(name Name) (string, bool) {
	wire, ok := m.toWire[name]
	return wire, ok
}

// Len returns the number of entries.
func (m *Map) Len() int {
	return len(m.toInternal)
}

// Names returns all internal identifiers in sorted order.
func (m *Map) Names() []Name {
	names := make([]Name, 0, len(m.toWire))
	for name := range m.toWire {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}
