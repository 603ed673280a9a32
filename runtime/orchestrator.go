// Package runtime coordinates sessions, history and key-exchange
// relay. It owns no plaintext and no room keys: encrypted payloads
// pass through it untouched.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"

	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/protocol"
	"chat-relay/repositories"
)

// adminUser signs the service messages (welcome, join/leave notices).
const adminUser = "Admin"

// ContentFilter classifies a plaintext body as allowed or blocked.
type ContentFilter interface {
	Flag(text string) bool
}

// Orchestrator drives the join/send/leave state machine. It sequences
// the presence registry, the room history store and the content filter,
// and relays key-exchange envelopes between members.
//
// Ordering contract: on the main send path a message is broadcast only
// after the store durably holds it. Join and leave announcements are
// the deliberate exception: membership visibility must not depend on
// storage health, so they broadcast first and persist in the
// background.
type Orchestrator struct {
	log        *slog.Logger
	registry   *Registry
	repository repositories.IRoomRepository
	filter     ContentFilter
	now        func() time.Time

	mu         sync.Mutex
	publicKeys map[string]string
}

func NewOrchestrator(log *slog.Logger, registry *Registry,
	repository repositories.IRoomRepository, filter ContentFilter,
	now func() time.Time) *Orchestrator {
	return &Orchestrator{
		log:        log,
		registry:   registry,
		repository: repository,
		filter:     filter,
		now:        now,
		publicKeys: make(map[string]string),
	}
}

// Join admits a connection into a room: registers the session, replays
// history to the joiner, announces the arrival to the others, refreshes
// the roster and bootstraps key exchange.
func (o *Orchestrator) Join(ctx context.Context, connectionID, username, room, publicKey string, sink contract.EventSink) error {
	session, memberCount, err := o.registry.Add(connectionID, username, room, sink)
	if err != nil {
		return err
	}

	if publicKey != "" {
		o.mu.Lock()
		o.publicKeys[connectionID] = publicKey
		o.mu.Unlock()
	}

	// History replay is unicast, once, and only when non-empty. A
	// fetch failure degrades to an empty room view.
	history, err := o.repository.ListMessages(session.Room)
	if err != nil {
		o.log.Error("failed to load room history", "room", session.Room, "error", err)
	} else if len(history) > 0 {
		o.deliver(ctx, sink, protocol.ServerEvent{Event: protocol.EventPreviousMessages, Data: history})
	}

	// The welcome is never persisted so a reconnect does not stack
	// duplicate welcomes in history.
	welcome := domain.NewTextMessage(adminUser, "Welcome!", o.now())
	o.deliver(ctx, sink, protocol.ServerEvent{Event: protocol.EventMessage, Data: welcome})

	// memberCount was taken under the registry mutex at registration, so
	// it is this join's position in the room: exactly one joiner of an
	// empty room ever sees 1.
	if memberCount > 1 {
		announcement := domain.NewTextMessage(adminUser, fmt.Sprintf("%s has joined!", session.Username), o.now())
		o.broadcast(ctx, session.Room, connectionID, protocol.ServerEvent{Event: protocol.EventMessage, Data: announcement})
		o.persistAnnouncement(session.Room, announcement)
	}

	o.broadcastRoster(ctx, session.Room)
	o.bootstrapKeyExchange(ctx, session, publicKey, memberCount, sink)
	return nil
}

// SendText relays a text message. Plaintext bodies run through the
// content filter; encrypted envelopes cannot be inspected and pass
// through. The message is persisted before any member sees it.
func (o *Orchestrator) SendText(ctx context.Context, connectionID string, req protocol.SendMessageRequest) error {
	session, ok := o.registry.Get(connectionID)
	if !ok {
		return errors.ErrSessionNotFound
	}

	var message domain.Message
	if req.Envelope != nil {
		message = domain.NewEncryptedMessage(session.Username, *req.Envelope, o.now())
	} else {
		if o.filter.Flag(req.Text) {
			return errors.ErrContentRejected
		}
		message = domain.NewTextMessage(session.Username, req.Text, o.now())
	}

	if err := o.repository.AppendMessage(session.Room, message); err != nil {
		o.log.Error("failed to save message", "room", session.Room, "error", err)
		return fmt.Errorf("failed to save message: %w", err)
	}

	o.broadcast(ctx, session.Room, "", protocol.ServerEvent{Event: protocol.EventMessage, Data: message})
	return nil
}

// SendLocation relays a location message. Coordinates are structured
// data, not filtered text.
func (o *Orchestrator) SendLocation(ctx context.Context, connectionID string, latitude, longitude float64) error {
	session, ok := o.registry.Get(connectionID)
	if !ok {
		return errors.ErrSessionNotFound
	}

	message := domain.NewLocationMessage(session.Username, latitude, longitude, o.now())
	if err := o.repository.AppendMessage(session.Room, message); err != nil {
		o.log.Error("failed to save location", "room", session.Room, "error", err)
		return fmt.Errorf("failed to save location: %w", err)
	}

	o.broadcast(ctx, session.Room, "", protocol.ServerEvent{Event: protocol.EventLocationMessage, Data: message})
	return nil
}

// ProvideRoomKey relays a wrapped room key to the named target. The
// envelope is forwarded verbatim, tagged with the sender's public key;
// the relay neither opens nor deduplicates it. Several members may
// answer one request and the target adopts the first valid copy.
func (o *Orchestrator) ProvideRoomKey(ctx context.Context, connectionID string, req protocol.ProvideRoomKeyRequest) error {
	session, ok := o.registry.Get(connectionID)
	if !ok {
		return errors.ErrSessionNotFound
	}

	target, ok := o.registry.FindInRoom(session.Room, req.TargetUser)
	if !ok {
		// The target may have disconnected between request and answer.
		o.log.Debug("room key target gone", "room", session.Room, "target", req.TargetUser)
		return nil
	}
	sink, ok := o.registry.SinkFor(target.ConnectionID)
	if !ok {
		return nil
	}

	o.mu.Lock()
	senderKey := o.publicKeys[connectionID]
	o.mu.Unlock()

	o.deliver(ctx, sink, protocol.ServerEvent{
		Event: protocol.EventRoomKey,
		Data:  protocol.RoomKey{EncryptedKey: req.EncryptedKey, SenderPublicKey: senderKey},
	})
	return nil
}

// Disconnect tears down the connection's session. Idempotent; a leave
// announcement goes out immediately (not persistence-gated) when other
// members remain, and the roster is refreshed either way.
func (o *Orchestrator) Disconnect(ctx context.Context, connectionID string) {
	session, ok := o.registry.Remove(connectionID)

	o.mu.Lock()
	delete(o.publicKeys, connectionID)
	o.mu.Unlock()

	if !ok {
		return
	}

	if len(o.registry.ListRoom(session.Room)) > 0 {
		announcement := domain.NewTextMessage(adminUser, fmt.Sprintf("%s has left!", session.Username), o.now())
		o.broadcast(ctx, session.Room, "", protocol.ServerEvent{Event: protocol.EventMessage, Data: announcement})
		o.persistAnnouncement(session.Room, announcement)
	}

	o.broadcastRoster(ctx, session.Room)
}

// bootstrapKeyExchange runs the server half of the key protocol after a
// join. The room's first member is the originator: it generates the key
// locally and only needs the ready signal. A later joiner is unkeyed:
// existing members learn its public key and are asked to provide the
// room key, while the newcomer learns each existing member's public
// key. memberCount comes from the registration itself, so concurrent
// first joins designate exactly one originator.
func (o *Orchestrator) bootstrapKeyExchange(ctx context.Context, session domain.Session,
	publicKey string, memberCount int, sink contract.EventSink) {
	if memberCount == 1 {
		o.deliver(ctx, sink, protocol.ServerEvent{Event: protocol.EventEncryptionReady, Data: protocol.EncryptionReady{}})
		return
	}
	if publicKey == "" {
		return
	}

	newcomerKey := protocol.UserPublicKey{Username: session.Username, PublicKey: publicKey}
	o.broadcast(ctx, session.Room, session.ConnectionID,
		protocol.ServerEvent{Event: protocol.EventUserPublicKey, Data: newcomerKey})
	o.broadcast(ctx, session.Room, session.ConnectionID,
		protocol.ServerEvent{Event: protocol.EventRequestRoomKey, Data: protocol.RequestRoomKey(newcomerKey)})

	// Copy the peer keys out so the mutex guards only the map, not the
	// deliveries.
	members := o.registry.ListRoom(session.Room)
	o.mu.Lock()
	peers := make([]protocol.UserPublicKey, 0, len(members))
	for _, m := range members {
		if m.ConnectionID == session.ConnectionID {
			continue
		}
		key, ok := o.publicKeys[m.ConnectionID]
		if !ok {
			continue
		}
		peers = append(peers, protocol.UserPublicKey{Username: m.Username, PublicKey: key})
	}
	o.mu.Unlock()

	for _, peer := range peers {
		o.deliver(ctx, sink, protocol.ServerEvent{Event: protocol.EventUserPublicKey, Data: peer})
	}
}

// persistAnnouncement appends a service message in the background.
// Failure feeds the log only: announcements were already broadcast and
// their visibility must not depend on storage availability.
func (o *Orchestrator) persistAnnouncement(room string, message domain.Message) {
	go func() {
		if err := o.repository.AppendMessage(room, message); err != nil {
			o.log.Error("failed to save announcement (background)", "room", room, "error", err)
		}
	}()
}

func (o *Orchestrator) broadcastRoster(ctx context.Context, room string) {
	members := o.registry.ListRoom(room)
	users := lo.Map(members, func(m domain.Session, _ int) protocol.RoomUser {
		return protocol.RoomUser{Username: m.Username}
	})
	o.broadcast(ctx, room, "", protocol.ServerEvent{
		Event: protocol.EventRoomData,
		Data:  protocol.RoomData{Room: room, Users: users},
	})
}

func (o *Orchestrator) broadcast(ctx context.Context, room, excludeConnectionID string, event protocol.ServerEvent) {
	for _, sink := range o.registry.SinksForRoom(room, excludeConnectionID) {
		o.deliver(ctx, sink, event)
	}
}

// deliver pushes one event to one sink. A slow or closed connection is
// the sink's problem, not the room's: the error is logged and the
// fan-out continues.
func (o *Orchestrator) deliver(ctx context.Context, sink contract.EventSink, event protocol.ServerEvent) {
	if err := sink.Deliver(ctx, event); err != nil {
		o.log.Debug("event delivery failed", "event", event.Event, "error", err)
	}
}
