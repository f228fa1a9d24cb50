// Package journal persists dispatched engine events to TimescaleDB/Postgres.
//
// Events are drained from the dispatch queue, transformed to rows, and
// written in batches with ON CONFLICT DO NOTHING keyed on the message ID,
// so replays after a reconnect do not duplicate rows.
//
// The writer expects this table:
//
//	CREATE TABLE engine_events (
//	    message_id  uuid PRIMARY KEY,
//	    event       text NOT NULL,
//	    name        text NOT NULL,
//	    payload     jsonb NOT NULL,
//	    headers     jsonb NOT NULL DEFAULT '{}',
//	    event_ts    timestamptz,
//	    received_at timestamptz NOT NULL
//	);
//
// event is the engine-side wire name, name the internal dotted name, and
// event_ts the payload timestamp when the envelope carried one.
package journal
