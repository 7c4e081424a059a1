// Package subscription tracks which users want to hear about revision
// advances for a part. The subscriber list is one record per part; both
// subscribing and unsubscribing are idempotent.
package subscription

import (
	"sort"

	"github.com/partvault/partvault/internal/audit"
	"github.com/partvault/partvault/internal/gitrepo"
	"github.com/partvault/partvault/internal/logging"
	"github.com/partvault/partvault/internal/store"
)

// Subscription is the stored payload of a part's subscriber list.
type Subscription struct {
	PartNumber  string   `json:"part_number"`
	Subscribers []string `json:"subscribers"`
}

// Manager edits subscriber lists within transactions.
type Manager struct {
	log *logging.Logger
}

// New returns a Manager. A nil logger disables logging.
func New(log *logging.Logger) *Manager {
	if log == nil {
		log = logging.NopLogger()
	}
	return &Manager{log: log}
}

// Subscribe adds actor to the part's subscriber list. Subscribing twice
// is a no-op and leaves no audit entry.
func (m *Manager) Subscribe(tx gitrepo.Tx, partNumber, actor string) (bool, error) {
	return m.edit(tx, partNumber, actor, true)
}

// Unsubscribe removes actor from the part's subscriber list. Removing an
// absent subscriber is a no-op and leaves no audit entry.
func (m *Manager) Unsubscribe(tx gitrepo.Tx, partNumber, actor string) (bool, error) {
	return m.edit(tx, partNumber, actor, false)
}

func (m *Manager) edit(tx gitrepo.Tx, partNumber, actor string, add bool) (bool, error) {
	if err := store.ValidateName(partNumber); err != nil {
		return false, err
	}

	key := store.SubscriptionKey(partNumber)
	var sub Subscription
	env, found, err := store.Get(tx, key, &sub)
	if err != nil {
		return false, err
	}

	present := false
	for _, s := range sub.Subscribers {
		if s == actor {
			present = true
			break
		}
	}
	if add == present {
		return false, nil
	}

	if add {
		sub.Subscribers = append(sub.Subscribers, actor)
		sort.Strings(sub.Subscribers)
	} else {
		kept := sub.Subscribers[:0]
		for _, s := range sub.Subscribers {
			if s != actor {
				kept = append(kept, s)
			}
		}
		sub.Subscribers = kept
	}
	sub.PartNumber = partNumber

	expected := 0
	if found {
		expected = env.Version
	}
	if _, err := store.Put(tx, key, sub, &expected, actor); err != nil {
		return false, err
	}

	action := audit.ActionSubscribe
	if !add {
		action = audit.ActionUnsubscribe
	}
	if err := audit.Stage(tx, audit.New(actor, action, partNumber)); err != nil {
		return false, err
	}

	m.log.WithActor(actor).Info("subscription changed",
		"part_number", partNumber, "subscribed", add)
	return true, nil
}

// Subscribers returns the part's subscriber list, sorted by username.
func (m *Manager) Subscribers(tx gitrepo.ReadTx, partNumber string) ([]string, error) {
	var sub Subscription
	env, found, err := store.Get(tx, store.SubscriptionKey(partNumber), &sub)
	if err != nil {
		return nil, err
	}
	if !found || !env.Active() {
		return nil, nil
	}
	return sub.Subscribers, nil
}
