// Package instance owns the lifecycle of chat automation instances: the
// per-instance state machine, the in-memory session registry and the durable
// record store, plus the bridge between session-engine events and both.
package instance

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	evbus "github.com/asaskevich/EventBus"
	"github.com/koddahub/whatsbot/internal/domain"
	"github.com/koddahub/whatsbot/internal/engine"
	"github.com/koddahub/whatsbot/pkg/common"
	"go.uber.org/zap"
)

const sendTimeout = 15 * time.Second

// Replier is the reply-generation function: text in, text out. An empty
// result means no reply is sent.
type Replier interface {
	Reply(text string) string
}

type Options struct {
	// WebhookBaseURL is the external endpoint template; the per-instance
	// webhook URL is WebhookBaseURL/<id>. Purely informational metadata.
	WebhookBaseURL string
	// AdminNumber receives admin notifications, when set.
	AdminNumber string
}

// Manager bridges session-engine events to the registry and the durable
// store, and exposes instance operations to the HTTP layer. Registry entries
// are mutated only from each instance's mailbox goroutine; HTTP handlers read
// concurrently.
type Manager struct {
	eng      engine.Engine
	store    Store
	registry *Registry
	replier  Replier
	bus      evbus.Bus
	opts     Options
}

func NewManager(eng engine.Engine, store Store, replier Replier, bus evbus.Bus, opts Options) *Manager {
	return &Manager{
		eng:      eng,
		store:    store,
		registry: NewRegistry(),
		replier:  replier,
		bus:      bus,
		opts:     opts,
	}
}

// Registry exposes the live session registry for read-only callers.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// CreateInstance allocates an id, persists the record with status
// initializing, registers the session entry and starts the engine session in
// the background. It returns before any connection progress happens. The
// record hits the store before the engine starts, so a crash mid-bootstrap
// leaves a stuck record rather than losing it.
func (m *Manager) CreateInstance(name, number string) (*domain.ChatInstance, error) {
	if strings.TrimSpace(name) == "" {
		return nil, &ValidationError{Field: "name"}
	}
	if strings.TrimSpace(number) == "" {
		return nil, &ValidationError{Field: "number"}
	}

	id := newInstanceID()
	now := time.Now()
	rec := &domain.ChatInstance{
		Id:         id,
		Name:       name,
		Number:     number,
		Status:     string(StatusInitializing),
		WebhookUrl: m.webhookURL(id),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := m.store.Create(rec); err != nil {
		// Storage failures never fail the request; the instance keeps
		// working in-memory-only.
		zap.L().Error("instance: failed to persist record", zap.String("id", id), zap.Error(err))
	}

	entry := m.registry.Register(id, number)
	go m.runMailbox(entry)
	go m.startSession(entry)

	zap.L().Info("instance: created", zap.String("id", id), zap.String("name", name), zap.String("number", number))
	return rec, nil
}

// PairingArtifact reads the current pairing artifact and status for an
// instance. Unknown ids fail with ErrInstanceNotFound; a known id never
// fails, a missing artifact just comes back empty.
func (m *Manager) PairingArtifact(id string) (string, Status, error) {
	entry, ok := m.registry.Get(id)
	if !ok {
		return "", "", ErrInstanceNotFound
	}
	return entry.Artifact(), entry.Status(), nil
}

// Get returns the durable record for an instance.
func (m *Manager) Get(id string) (*domain.ChatInstance, error) {
	return m.store.Get(id)
}

// List returns all durable instance records.
func (m *Manager) List() ([]domain.ChatInstance, error) {
	return m.store.List()
}

// Messages returns the paged message log.
func (m *Manager) Messages(instanceID string, page, pageSize int) ([]domain.ChatMessage, int64, error) {
	return m.store.ListMessages(instanceID, page, pageSize)
}

// SendText sends an outbound text through the instance's session and logs it.
func (m *Manager) SendText(ctx context.Context, id, to, text string) error {
	entry, ok := m.registry.Get(id)
	if !ok {
		return ErrInstanceNotFound
	}
	sess := entry.Session()
	if sess == nil {
		return ErrNotConnected
	}
	if err := sess.SendText(ctx, to, text); err != nil {
		return err
	}
	m.logMessage(id, domain.MsgDirectionOut, to, text)
	return nil
}

// NotifyAdmin sends a text to the configured admin number through any
// connected instance.
func (m *Manager) NotifyAdmin(ctx context.Context, text string) error {
	if m.opts.AdminNumber == "" {
		return fmt.Errorf("admin number not configured")
	}
	entry, ok := m.registry.FirstConnected()
	if !ok {
		return ErrNotConnected
	}
	return m.SendText(ctx, entry.ID, m.opts.AdminNumber, text)
}

// reconnectRequest is an internal mailbox event; routing the reset through
// the mailbox keeps it ordered after any session events already queued.
type reconnectRequest struct{}

// Reconnect restarts the engine session of a disconnected instance. The reset
// is applied from the mailbox goroutine; requests for instances that are not
// disconnected by then are dropped.
func (m *Manager) Reconnect(id string) error {
	entry, ok := m.registry.Get(id)
	if !ok {
		return ErrInstanceNotFound
	}
	entry.mailbox <- reconnectRequest{}
	return nil
}

// Resume registers entries and starts sessions for durable records that have
// none in this process lifetime. It runs at boot and from the periodic
// reconcile job, so instances survive restarts and records created while the
// engine was unavailable get picked up.
func (m *Manager) Resume() {
	recs, err := m.store.List()
	if err != nil {
		zap.L().Error("instance: resume failed to list records", zap.Error(err))
		return
	}
	for _, rec := range recs {
		if _, ok := m.registry.Get(rec.Id); ok {
			continue
		}
		entry := m.registry.Register(rec.Id, rec.Number)
		if err := m.store.Update(rec.Id, map[string]interface{}{"status": string(StatusInitializing)}); err != nil {
			zap.L().Warn("instance: resume failed to update record", zap.String("id", rec.Id), zap.Error(err))
		}
		go m.runMailbox(entry)
		go m.startSession(entry)
		zap.L().Info("instance: resumed from store", zap.String("id", rec.Id), zap.String("number", rec.Number))
	}
}

// Dispatch enqueues a session event for the instance. Events for one id are
// applied in order by a single goroutine; events for unknown ids are dropped.
func (m *Manager) Dispatch(id string, evt interface{}) {
	entry, ok := m.registry.Get(id)
	if !ok {
		zap.L().Warn("instance: event for unknown id dropped", zap.String("id", id))
		return
	}
	entry.mailbox <- evt
}

func (m *Manager) startSession(entry *Entry) {
	sess, err := m.eng.StartSession(context.Background(), entry.ID, entry.Number, func(evt interface{}) {
		m.Dispatch(entry.ID, evt)
	})
	if err != nil {
		zap.L().Error("instance: session bootstrap failed", zap.String("id", entry.ID), zap.Error(err))
		m.Dispatch(entry.ID, engine.DisconnectedEvent{Reason: "bootstrap_failed"})
		return
	}
	entry.setSession(sess)
}

func (m *Manager) runMailbox(entry *Entry) {
	for evt := range entry.mailbox {
		m.apply(entry, evt)
	}
}

// apply is the single writer for an entry's state. Repeated events are
// no-ops; unknown event kinds are logged and ignored, the engine's event
// surface is wider than this state machine.
func (m *Manager) apply(entry *Entry, evt interface{}) {
	switch ev := evt.(type) {
	case engine.PairingEvent:
		artifact, err := renderArtifact(ev.Code)
		if err != nil {
			zap.L().Warn("instance: pairing artifact render failed", zap.String("id", entry.ID), zap.Error(err))
		}
		m.transition(entry, StatusWaitingPairing, artifact)

	case engine.AuthenticatedEvent:
		m.transition(entry, StatusAuthenticated, "")

	case engine.ConnectedEvent:
		m.transition(entry, StatusConnected, "")

	case engine.DisconnectedEvent:
		if m.transition(entry, StatusDisconnected, "") {
			zap.L().Info("instance: disconnected", zap.String("id", entry.ID), zap.String("reason", ev.Reason))
		}

	case reconnectRequest:
		if entry.Status() != StatusDisconnected {
			return
		}
		m.transition(entry, StatusInitializing, "")
		go m.startSession(entry)

	case engine.MessageEvent:
		m.relayInbound(entry, ev)

	default:
		zap.L().Debug("instance: unhandled event kind",
			zap.String("id", entry.ID), zap.String("type", fmt.Sprintf("%T", evt)))
	}
}

// transition moves the entry to the target status, replacing the artifact.
// Returns false when nothing changed. Real transitions publish a StatusChange
// and are persisted when the target status is durable.
func (m *Manager) transition(entry *Entry, to Status, artifact string) bool {
	from := entry.Status()
	if from == to && artifact == entry.Artifact() {
		return false
	}
	entry.set(to, artifact)
	if from == to {
		return false
	}
	zap.L().Info("instance: status change",
		zap.String("id", entry.ID), zap.String("from", string(from)), zap.String("to", string(to)))
	if m.bus != nil {
		m.bus.Publish(TopicStatusChange, StatusChange{InstanceID: entry.ID, From: from, To: to, At: time.Now()})
	}
	m.persist(entry.ID, to)
	return true
}

// persist writes the transition to the store when the target status is
// durable; intermediate states stay registry-only. connected_at is stamped on
// the first connect only.
func (m *Manager) persist(id string, to Status) {
	if !to.Durable() {
		return
	}
	fields := map[string]interface{}{"status": string(to)}
	if to == StatusConnected {
		if rec, err := m.store.Get(id); err == nil && rec.ConnectedAt == nil {
			fields["connected_at"] = time.Now()
		} else if err != nil && !errors.Is(err, ErrInstanceNotFound) {
			zap.L().Warn("instance: failed to read record", zap.String("id", id), zap.Error(err))
		}
	}
	if err := m.store.Update(id, fields); err != nil {
		zap.L().Error("instance: failed to persist status", zap.String("id", id), zap.Error(err))
	}
}

// relayInbound runs the reply function and sends a non-empty result back
// through the session. Every failure is contained here; one misbehaving
// instance must not affect the event bridge.
func (m *Manager) relayInbound(entry *Entry, ev engine.MessageEvent) {
	zap.L().Info("instance: inbound message",
		zap.String("id", entry.ID), zap.String("sender", ev.Sender))
	m.logMessage(entry.ID, domain.MsgDirectionIn, ev.Sender, ev.Text)

	reply := m.safeReply(ev.Text)
	if reply == "" {
		return
	}
	sess := entry.Session()
	if sess == nil {
		zap.L().Warn("instance: reply dropped, no session handle", zap.String("id", entry.ID))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if err := sess.SendText(ctx, ev.Sender, reply); err != nil {
		zap.L().Warn("instance: reply send failed", zap.String("id", entry.ID), zap.Error(err))
		return
	}
	m.logMessage(entry.ID, domain.MsgDirectionOut, ev.Sender, reply)
}

func (m *Manager) safeReply(text string) (reply string) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("instance: reply function panicked", zap.Any("panic", r))
			reply = ""
		}
	}()
	return m.replier.Reply(text)
}

func (m *Manager) logMessage(instanceID, direction, peer, body string) {
	msg := &domain.ChatMessage{
		ID:         common.UUIDint64(),
		InstanceId: instanceID,
		Direction:  direction,
		Peer:       peer,
		Body:       body,
		CreatedAt:  time.Now(),
	}
	if err := m.store.LogMessage(msg); err != nil {
		zap.L().Warn("instance: failed to log message", zap.String("id", instanceID), zap.Error(err))
	}
}

func (m *Manager) webhookURL(id string) string {
	return strings.TrimRight(m.opts.WebhookBaseURL, "/") + "/" + id
}

const idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// newInstanceID builds inst_<unix-ms>_<random suffix>. No uniqueness check
// against existing ids; the collision probability is negligible and accepted.
func newInstanceID() string {
	buf := make([]byte, 6)
	_, _ = rand.Read(buf)
	for i, b := range buf {
		buf[i] = idAlphabet[int(b)%len(idAlphabet)]
	}
	return fmt.Sprintf("inst_%d_%s", time.Now().UnixMilli(), buf)
}
