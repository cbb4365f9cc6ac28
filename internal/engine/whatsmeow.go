package engine

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	waTypes "go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
)

// device rows are tagged with this marker so sessions can be matched back to
// application instance ids across restarts.
const instanceMarkerPrefix = "inst:"

// WhatsmeowEngine implements Engine on top of a whatsmeow sqlstore container.
// All instance sessions share one sqlite-backed credential store under the
// application workdir.
type WhatsmeowEngine struct {
	container *sqlstore.Container
	printQR   bool
}

var _ Engine = (*WhatsmeowEngine)(nil)

// NewWhatsmeowEngine opens (or creates) the shared session store under
// workdir/sessions.
func NewWhatsmeowEngine(ctx context.Context, workdir string, printQR bool) (*WhatsmeowEngine, error) {
	dbPath := path.Join(workdir, "sessions", "whatsmeow.db")
	container, err := sqlstore.New(ctx, "sqlite3", fmt.Sprintf("file:%s?_foreign_keys=on", dbPath), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create session store: %w", err)
	}
	return &WhatsmeowEngine{container: container, printQR: printQR}, nil
}

// StartSession binds (or restores) a whatsmeow device for the instance and
// connects it in the background. Lifecycle progress is reported through
// handler; a fresh device goes through the QR pairing flow first.
func (e *WhatsmeowEngine) StartSession(ctx context.Context, instanceID, number string, handler EventHandler) (Session, error) {
	device, err := e.deviceFor(ctx, instanceID, number)
	if err != nil {
		return nil, err
	}

	client := whatsmeow.NewClient(device, nil)
	client.AddEventHandler(func(evt interface{}) {
		switch v := evt.(type) {
		case *events.PairSuccess:
			handler(AuthenticatedEvent{})
		case *events.Connected:
			handler(ConnectedEvent{})
		case *events.Disconnected:
			handler(DisconnectedEvent{Reason: "disconnected"})
		case *events.LoggedOut:
			handler(DisconnectedEvent{Reason: "logged_out"})
		case *events.StreamReplaced:
			handler(DisconnectedEvent{Reason: "stream_replaced"})
		case *events.Message:
			if v.Info.IsFromMe {
				return
			}
			body := extractText(v.Message)
			if body == "" {
				return
			}
			handler(MessageEvent{Sender: v.Info.Sender.User, Text: body})
		default:
			zap.L().Debug("engine: unhandled whatsmeow event",
				zap.String("instance_id", instanceID),
				zap.String("type", fmt.Sprintf("%T", evt)))
		}
	})

	// A device without a stored JID has never paired; request the QR channel
	// before connecting so pairing codes reach the handler.
	if client.Store.ID == nil {
		qrChan, err := client.GetQRChannel(ctx)
		if err != nil {
			return nil, fmt.Errorf("qr channel unavailable: %w", err)
		}
		go func() {
			for item := range qrChan {
				if item.Event != whatsmeow.QRChannelEventCode {
					continue
				}
				if e.printQR {
					qrterminal.GenerateHalfBlock(item.Code, qrterminal.L, os.Stdout)
				}
				handler(PairingEvent{Code: item.Code})
			}
		}()
	}

	if err := client.Connect(); err != nil {
		return nil, fmt.Errorf("connect failed: %w", err)
	}
	return &whatsmeowSession{client: client, instanceID: instanceID}, nil
}

// deviceFor restores the device previously tagged for the instance, or
// provisions a fresh one carrying the marker.
func (e *WhatsmeowEngine) deviceFor(ctx context.Context, instanceID, number string) (*store.Device, error) {
	marker := instanceMarkerPrefix + instanceID
	devices, err := e.container.GetAllDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list stored devices: %w", err)
	}
	for _, d := range devices {
		if d != nil && d.BusinessName == marker {
			zap.L().Info("engine: restored stored device",
				zap.String("instance_id", instanceID), zap.String("jid", d.GetJID().String()))
			return d, nil
		}
	}
	device := e.container.NewDevice()
	device.PushName = number
	device.BusinessName = marker
	return device, nil
}

type whatsmeowSession struct {
	client     *whatsmeow.Client
	instanceID string
}

func (s *whatsmeowSession) SendText(ctx context.Context, to string, text string) error {
	jid, err := parseAddress(to)
	if err != nil {
		return err
	}
	msg := &waE2E.Message{Conversation: proto.String(text)}
	if _, err := s.client.SendMessage(ctx, jid, msg); err != nil {
		return fmt.Errorf("send failed: %w", err)
	}
	return nil
}

func (s *whatsmeowSession) Disconnect() {
	s.client.Disconnect()
}

// parseAddress accepts either a full JID or a bare phone number.
func parseAddress(to string) (waTypes.JID, error) {
	if strings.Contains(to, "@") {
		return waTypes.ParseJID(to)
	}
	if to == "" {
		return waTypes.JID{}, fmt.Errorf("empty destination address")
	}
	return waTypes.NewJID(to, waTypes.DefaultUserServer), nil
}

func extractText(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	if conv := msg.GetConversation(); conv != "" {
		return conv
	}
	if ext := msg.GetExtendedTextMessage(); ext != nil {
		return ext.GetText()
	}
	return ""
}
