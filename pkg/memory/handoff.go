package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/engramdb/engram/pkg/errors"
)

/*
MessageBus is the narrow contract the handoff tools talk to. The polling
implementation below is the only one today; keeping the surface this small
lets a push-based notifier slot in later without touching callers.
*/
type MessageBus interface {
	Send(ctx context.Context, from, to, content string, metadata map[string]string) (*HandoffMessage, error)
	Get(ctx context.Context, instance string, includeRead bool) ([]*HandoffMessage, error)
	MarkRead(ctx context.Context, id, readBy string) error
}

/*
Bus passes point-to-point messages between agent instances through the
store. Delivery is at-least-once: a message stays visible to
every unread poll until someone explicitly marks it read, so two pollers on
the same instance can both observe it. Consumers that care deduplicate by
message id.
*/
type Bus struct {
	backend Backend
}

func NewBus(backend Backend) *Bus {
	return &Bus{backend: backend}
}

/*
Send stores an unread message. Both identifiers only need to be
syntactically valid; instances register implicitly by appearing in
traffic, so the recipient does not have to exist yet. Sending to the
broadcast instance "all" reaches every poller; sending from it is not
allowed.
*/
func (b *Bus) Send(ctx context.Context, from, to, content string, metadata map[string]string) (*HandoffMessage, error) {
	if !ValidInstanceID(from) || from == BroadcastInstance {
		return nil, errors.Validation("malformed from_instance %q", from)
	}
	if !ValidInstanceID(to) && to != BroadcastInstance {
		return nil, errors.Validation("malformed to_instance %q", to)
	}
	if content == "" {
		return nil, errors.Validation("content must not be empty")
	}

	msg := &HandoffMessage{
		ID:           uuid.NewString(),
		FromInstance: from,
		ToInstance:   to,
		Content:      content,
		Metadata:     metadata,
		CreatedAt:    time.Now().UTC(),
	}

	if err := b.backend.PutMessage(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// Get returns messages addressed to the instance (directly or broadcast),
// oldest first. includeRead false filters to unread only.
func (b *Bus) Get(ctx context.Context, instance string, includeRead bool) ([]*HandoffMessage, error) {
	if !ValidInstanceID(instance) {
		return nil, errors.Validation("malformed instance id %q", instance)
	}
	return b.backend.ListMessages(ctx, instance, includeRead)
}

// MarkRead transitions a message to read exactly once. Marking an
// already-read message is a no-op, not an error.
func (b *Bus) MarkRead(ctx context.Context, id, readBy string) error {
	if readBy != "" && !ValidInstanceID(readBy) {
		return errors.Validation("malformed read_by instance %q", readBy)
	}
	return b.backend.MarkMessageRead(ctx, id, readBy, time.Now().UTC())
}
