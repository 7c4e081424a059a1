// Package resolve implements the generic optimistic-lock wrapper used by
// metadata edits and other record mutations. Conflicting edits are never
// auto-merged: the second writer gets the current version back and must
// retry with fresh data.
package resolve

import (
	"encoding/json"

	"github.com/partvault/partvault/internal/errors"
	"github.com/partvault/partvault/internal/gitrepo"
	"github.com/partvault/partvault/internal/store"
)

// Mutation transforms the current record data into its replacement.
// raw is nil when the record is being created.
type Mutation func(raw json.RawMessage) (any, error)

// ApplyUpdate re-reads the record at key inside the publish critical
// section, verifies the caller's expected version against what is stored,
// applies the mutation, and stages the versioned write.
//
// An expected version of 0 means the caller believes the record does not
// exist yet; the update then creates it. Updates against a soft-deleted
// record fail with ErrRecordDeleted rather than silently resurrecting it.
//
// Returns the version the record will have once the transaction publishes.
func ApplyUpdate(tx gitrepo.Tx, key string, expected int, actor string, mutate Mutation) (int, error) {
	env, found, err := store.Get(tx, key, nil)
	if err != nil {
		return 0, err
	}

	current := 0
	var raw json.RawMessage
	if found {
		if !env.Active() {
			return 0, errors.NewConflictError("record has been deleted", errors.ErrRecordDeleted).
				WithKey(key)
		}
		current = env.Version
		raw = env.Data
	}

	if expected != current {
		return 0, errors.NewConflictError("stored version does not match expected", errors.ErrVersionMismatch).
			WithKey(key).
			WithVersions(expected, current)
	}

	value, err := mutate(raw)
	if err != nil {
		return 0, err
	}

	return store.Put(tx, key, value, &current, actor)
}
