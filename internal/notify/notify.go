// Package notify delivers revision-advance notices to subscribed users.
package notify

import (
	"context"
	"fmt"
	"io"
	stdlog "log"
	"slices"
	"strings"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	router "github.com/nicholas-fedor/shoutrrr/pkg/router"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/partvault/partvault/internal/event"
	"github.com/partvault/partvault/internal/logging"
)

// Notifier delivers a revision-advance notice to its subscribers.
type Notifier interface {
	RevisionAdvanced(ctx context.Context, partNumber, newRev string, subscribers []string) error
}

// Noop discards every notice.
type Noop struct{}

func (Noop) RevisionAdvanced(context.Context, string, string, []string) error { return nil }

// ShoutrrrNotifier sends via nicholas-fedor/shoutrrr. One sender serves
// all configured service URLs.
type ShoutrrrNotifier struct {
	urls   []string
	sender *router.ServiceRouter
}

// NewShoutrrr builds a notifier for the given service URLs.
func NewShoutrrr(urls []string, timeout time.Duration) (*ShoutrrrNotifier, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("at least one notification URL is required")
	}
	sender, err := shoutrrr.CreateSender(urls...)
	if err != nil {
		return nil, fmt.Errorf("creating notification sender: %w", err)
	}
	if timeout > 0 {
		sender.Timeout = timeout
	}
	sender.SetLogger(stdlog.New(io.Discard, "", 0))
	return &ShoutrrrNotifier{urls: slices.Clone(urls), sender: sender}, nil
}

// RevisionAdvanced implements Notifier. The router handles its own
// timeouts, so ctx is unused.
func (s *ShoutrrrNotifier) RevisionAdvanced(ctx context.Context, partNumber, newRev string, subscribers []string) error {
	_ = ctx

	body := fmt.Sprintf("Part %s advanced to revision %s. Subscribers: %s.",
		partNumber, newRev, strings.Join(subscribers, ", "))
	params := stypes.Params{}
	params.SetTitle(fmt.Sprintf("Revision advance: %s rev %s", partNumber, newRev))

	for _, err := range s.sender.Send(body, &params) {
		if err != nil {
			return fmt.Errorf("sending notification: %w", err)
		}
	}
	return nil
}

// Dispatcher bridges the event bus to a Notifier. Delivery failures are
// logged and never fail the operation that raised the event.
type Dispatcher struct {
	notifier Notifier
	log      *logging.Logger
}

// NewDispatcher returns a Dispatcher. A nil logger disables logging.
func NewDispatcher(n Notifier, log *logging.Logger) *Dispatcher {
	if log == nil {
		log = logging.NopLogger()
	}
	return &Dispatcher{notifier: n, log: log}
}

// Attach subscribes the dispatcher to revision-advance events on bus.
func (d *Dispatcher) Attach(bus *event.Bus) {
	bus.Subscribe(event.TypeRevisionAdvanced, d.handle)
}

func (d *Dispatcher) handle(e event.Event) {
	adv, ok := e.(event.RevisionAdvancedEvent)
	if !ok {
		return
	}
	if len(adv.Subscribers) == 0 {
		return
	}
	if err := d.notifier.RevisionAdvanced(context.Background(), adv.PartNumber, adv.NewRev, adv.Subscribers); err != nil {
		d.log.Warn("notification delivery failed",
			"part_number", adv.PartNumber, "new_rev", adv.NewRev, "error", err)
	}
}
