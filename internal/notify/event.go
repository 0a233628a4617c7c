// Package notify implements the Notification Bridge: it provisions per-table triggers that emit row changes on
// Postgres LISTEN/NOTIFY channels, and maintains the long-lived listener connections that turn those notifications
// into Change Events for the Subscription Router.
package notify

import (
	"encoding/json"
	"fmt"
)

// Op is the database operation a Change Event reports.
type Op string

const (
	OpInsert Op = "INSERT"
	OpUpdate Op = "UPDATE"
	OpDelete Op = "DELETE"
)

// Event is a Change Event: a single row mutation delivered on a table's notification channel. NewData and OldData are
// raw JSON objects (row_to_json output from the trigger) and are left undecoded since the Router only re-serializes
// them into the client frame.
type Event struct {
	Channel   string          `json:"-"`
	Table     string          `json:"table"`
	Operation Op              `json:"operation"`
	NewData   json.RawMessage `json:"data,omitempty"`
	OldData   json.RawMessage `json:"old_data,omitempty"`
}

// ChannelFor returns the notification channel name for a managed table, per the "<table>_changes" convention.
func ChannelFor(table string) string {
	return table + "_changes"
}

// ParseEvent decodes a raw NOTIFY payload into an Event. The channel is not present in the payload itself, so the
// caller (the listener owning that channel) supplies it.
func ParseEvent(channel, payload string) (Event, error) {
	var e Event
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		return Event{}, fmt.Errorf("decode change event payload: %w", err)
	}
	e.Channel = channel
	return e, nil
}
