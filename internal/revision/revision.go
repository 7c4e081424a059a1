// Package revision tracks the released revision letter of each part.
// Revisions are uppercase letter sequences ordered like spreadsheet
// columns: A through Z, then AA, AB and so on. Advances must be strictly
// monotonic; a part's revision never moves backwards.
package revision

import (
	"strings"
	"time"

	"github.com/partvault/partvault/internal/audit"
	"github.com/partvault/partvault/internal/errors"
	"github.com/partvault/partvault/internal/gitrepo"
	"github.com/partvault/partvault/internal/logging"
	"github.com/partvault/partvault/internal/store"
)

// Part is the stored payload of a part's revision record.
type Part struct {
	PartNumber  string    `json:"part_number"`
	Description string    `json:"description,omitempty"`
	CurrentRev  string    `json:"current_rev"`
	AdvancedAt  time.Time `json:"advanced_at"`
	AdvancedBy  string    `json:"advanced_by"`
}

// Validate reports whether rev is a well-formed revision label.
func Validate(rev string) error {
	if rev == "" {
		return errors.NewRevisionError("revision is required", errors.ErrInvalidRevision)
	}
	for _, r := range rev {
		if r < 'A' || r > 'Z' {
			return errors.NewRevisionError("revision must be uppercase letters", errors.ErrInvalidRevision).
				WithRevisions("", rev)
		}
	}
	return nil
}

// Compare orders two revision labels. Shorter labels sort before longer
// ones, labels of equal length sort lexicographically, so Z < AA.
func Compare(a, b string) int {
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

// Coordinator advances part revisions within transactions.
type Coordinator struct {
	log *logging.Logger
}

// NewCoordinator returns a Coordinator. A nil logger disables logging.
func NewCoordinator(log *logging.Logger) *Coordinator {
	if log == nil {
		log = logging.NopLogger()
	}
	return &Coordinator{log: log}
}

// Advance moves partNumber to the proposed revision. An unknown part is
// created at the proposed revision; a known part must move strictly
// forward or the advance fails with ErrNotMonotonic.
func (c *Coordinator) Advance(tx gitrepo.Tx, partNumber, proposed, description, actor string) (Part, error) {
	if err := store.ValidateName(partNumber); err != nil {
		return Part{}, err
	}
	if err := Validate(proposed); err != nil {
		return Part{}, err
	}

	key := store.PartKey(partNumber)
	var part Part
	env, found, err := store.Get(tx, key, &part)
	if err != nil {
		return Part{}, err
	}

	expected := 0
	previous := ""
	if found && env.Active() {
		previous = part.CurrentRev
		if Compare(proposed, previous) <= 0 {
			return Part{}, errors.NewRevisionError("revision must advance", errors.ErrNotMonotonic).
				WithPart(partNumber).
				WithRevisions(previous, proposed)
		}
	}
	if found {
		expected = env.Version
	}

	next := Part{
		PartNumber:  partNumber,
		Description: part.Description,
		CurrentRev:  proposed,
		AdvancedAt:  time.Now().UTC(),
		AdvancedBy:  actor,
	}
	if description != "" {
		next.Description = description
	}
	if _, err := store.Put(tx, key, next, &expected, actor); err != nil {
		return Part{}, err
	}

	entry := audit.New(actor, audit.ActionRevisionAdvance, partNumber).
		WithDetail("new_rev", proposed)
	if previous != "" {
		entry = entry.WithDetail("previous_rev", previous)
	}
	if err := audit.Stage(tx, entry); err != nil {
		return Part{}, err
	}

	c.log.WithActor(actor).Info("revision advanced",
		"part_number", partNumber, "previous_rev", previous, "new_rev", proposed)
	return next, nil
}

// Get returns the part record, if one exists.
func (c *Coordinator) Get(tx gitrepo.ReadTx, partNumber string) (Part, bool, error) {
	var part Part
	env, found, err := store.Get(tx, store.PartKey(partNumber), &part)
	if err != nil {
		return Part{}, false, err
	}
	if !found || !env.Active() {
		return Part{}, false, nil
	}
	return part, true, nil
}

// List returns every known part, ordered by part number.
func (c *Coordinator) List(tx gitrepo.ReadTx) ([]Part, error) {
	names, err := tx.List(store.PartsDir)
	if err != nil {
		return nil, err
	}

	var parts []Part
	for _, name := range names {
		part, ok, err := c.Get(tx, store.TrimRecordName(name))
		if err != nil {
			return nil, err
		}
		if ok {
			parts = append(parts, part)
		}
	}
	return parts, nil
}
