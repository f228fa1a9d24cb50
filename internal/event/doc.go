// Package event defines the wire envelope exchanged with the engine and the
// static name map that translates between wire event names and internal
// event identifiers.
//
// Conventions:
//   - Wire event names are lowerCamel (engine side)
//   - Internal identifiers are dotted lowercase (runtime side)
//   - data.timestamp carries milliseconds since Unix epoch
package event
