// Package audit records every state-changing operation as an append-only
// JSONL trail inside the managed repository. Entries are staged into the
// same changeset as the mutation they describe, so the trail and the
// record it explains always land in one commit.
package audit

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/partvault/partvault/internal/gitrepo"
	"github.com/partvault/partvault/internal/store"
)

// Action identifies the kind of operation an entry describes.
type Action string

const (
	ActionCheckout        Action = "CHECKOUT"
	ActionCheckin         Action = "CHECKIN"
	ActionForcedRelease   Action = "FORCED_RELEASE"
	ActionMetadataUpdate  Action = "METADATA_UPDATE"
	ActionRevisionAdvance Action = "REVISION_ADVANCE"
	ActionSubscribe       Action = "SUBSCRIBE"
	ActionUnsubscribe     Action = "UNSUBSCRIBE"
)

// Entry status values. Denied attempts are recorded alongside successes
// so the trail shows who tried what, not only who succeeded.
const (
	StatusSuccess = "success"
	StatusDenied  = "denied"
)

// Entry is a single line in the audit log.
type Entry struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Actor     string         `json:"actor"`
	Action    Action         `json:"action"`
	Target    string         `json:"target"`
	Details   map[string]any `json:"details,omitempty"`
	Status    string         `json:"status"`
}

// New builds a success entry with a fresh ID and timestamp.
func New(actor string, action Action, target string) Entry {
	return Entry{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Actor:     actor,
		Action:    action,
		Target:    target,
		Status:    StatusSuccess,
	}
}

// WithDetail attaches a key/value pair to the entry.
func (e Entry) WithDetail(key string, value any) Entry {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// Denied marks the entry as a rejected attempt.
func (e Entry) Denied() Entry {
	e.Status = StatusDenied
	return e
}

// Stage appends the entry to the audit log within the open transaction.
// The line only reaches the trail if the surrounding changeset publishes.
func Stage(tx gitrepo.Tx, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshaling audit entry: %w", err)
	}
	tx.Append(store.AuditLogKey, append(line, '\n'))
	return nil
}

// Filter narrows a Read to matching entries. Zero values match everything.
type Filter struct {
	Actor  string
	Action Action
	Target string
	Limit  int
}

func (f Filter) matches(e Entry) bool {
	if f.Actor != "" && e.Actor != f.Actor {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.Target != "" && e.Target != f.Target {
		return false
	}
	return true
}

// Read returns matching entries in the order they were written. When a
// limit is set, the most recent matches are kept.
func Read(tx gitrepo.ReadTx, f Filter) ([]Entry, error) {
	raw, ok, err := tx.ReadFile(store.AuditLogKey)
	if err != nil {
		return nil, fmt.Errorf("reading audit log: %w", err)
	}
	if !ok {
		return nil, nil
	}

	var out []Entry
	sc := bufio.NewScanner(bytes.NewReader(raw))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("parsing audit log line: %w", err)
		}
		if f.matches(e) {
			out = append(out, e)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scanning audit log: %w", err)
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out, nil
}
