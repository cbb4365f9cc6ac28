package adminapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/koddahub/whatsbot/config"
	"github.com/koddahub/whatsbot/internal/app"
	"github.com/koddahub/whatsbot/internal/chatbot"
	"github.com/koddahub/whatsbot/internal/domain"
	"github.com/koddahub/whatsbot/internal/engine"
	"github.com/koddahub/whatsbot/internal/instance"
	"github.com/koddahub/whatsbot/internal/webserver"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second
const tick = 10 * time.Millisecond

type fakeSession struct {
	mu   sync.Mutex
	sent []string
}

func (s *fakeSession) SendText(ctx context.Context, to, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, to+"|"+text)
	return nil
}

func (s *fakeSession) Disconnect() {}

func (s *fakeSession) sentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type fakeEngine struct {
	mu       sync.Mutex
	handlers map[string]engine.EventHandler
	sessions map[string]*fakeSession
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		handlers: make(map[string]engine.EventHandler),
		sessions: make(map[string]*fakeSession),
	}
}

func (e *fakeEngine) StartSession(ctx context.Context, instanceID, number string, handler engine.EventHandler) (engine.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	sess := &fakeSession{}
	e.handlers[instanceID] = handler
	e.sessions[instanceID] = sess
	return sess, nil
}

func (e *fakeEngine) emit(id string, evt interface{}) {
	e.mu.Lock()
	handler := e.handlers[id]
	e.mu.Unlock()
	if handler != nil {
		handler(evt)
	}
}

func (e *fakeEngine) session(id string) *fakeSession {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessions[id]
}

type memStore struct {
	mu   sync.Mutex
	recs map[string]*domain.ChatInstance
	msgs []domain.ChatMessage
}

func newMemStore() *memStore {
	return &memStore{recs: make(map[string]*domain.ChatInstance)}
}

func (s *memStore) Create(rec *domain.ChatInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.recs[rec.Id] = &cp
	return nil
}

func (s *memStore) Get(id string) (*domain.ChatInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[id]
	if !ok {
		return nil, instance.ErrInstanceNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *memStore) List() ([]domain.ChatInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ChatInstance, 0, len(s.recs))
	for _, rec := range s.recs {
		out = append(out, *rec)
	}
	return out, nil
}

func (s *memStore) Update(id string, fields map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[id]
	if !ok {
		return nil
	}
	if v, ok := fields["status"]; ok {
		rec.Status = v.(string)
	}
	if v, ok := fields["connected_at"]; ok {
		t := v.(time.Time)
		rec.ConnectedAt = &t
	}
	return nil
}

func (s *memStore) LogMessage(msg *domain.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, *msg)
	return nil
}

func (s *memStore) ListMessages(instanceID string, page, pageSize int) ([]domain.ChatMessage, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ChatMessage
	for _, m := range s.msgs {
		if instanceID == "" || m.InstanceId == instanceID {
			out = append(out, m)
		}
	}
	return out, int64(len(out)), nil
}

type testServer struct {
	ws  *webserver.WebServer
	mgr *instance.Manager
	eng *fakeEngine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := config.DefaultAppConfig()
	eng := newFakeEngine()
	mgr := instance.NewManager(eng, newMemStore(), chatbot.NewResponder(cfg.Bot.Greeting), nil, instance.Options{
		WebhookBaseURL: cfg.Bot.WebhookBaseURL,
		AdminNumber:    "5541900000000",
	})
	ws := webserver.NewWebServer(app.NewApplication(cfg))
	RegisterInstanceAPI(ws, mgr)
	RegisterMessageAPI(ws, mgr)
	return &testServer{ws: ws, mgr: mgr, eng: eng}
}

func (ts *testServer) do(t *testing.T, method, target, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	ts.ws.Echo().ServeHTTP(rec, req)

	var parsed map[string]interface{}
	if strings.HasPrefix(strings.TrimSpace(rec.Body.String()), "{") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &parsed))
	}
	return rec, parsed
}

func (ts *testServer) listInstances(t *testing.T) []map[string]interface{} {
	t.Helper()
	rec, _ := ts.do(t, http.MethodGet, "/api/instances", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var out []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestInstanceAPIFlow(t *testing.T) {
	ts := newTestServer(t)

	// empty list is a JSON array, not null
	rec, _ := ts.do(t, http.MethodGet, "/api/instances", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))

	// create
	rec, body := ts.do(t, http.MethodPost, "/api/instances", `{"name":"Line A","number":"5541999990000"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	inst := body["instance"].(map[string]interface{})
	id := inst["id"].(string)
	assert.True(t, strings.HasPrefix(id, "inst_"))
	assert.Equal(t, "initializing", inst["status"])
	assert.Equal(t, "https://www.koddahub.com.br/webhook/whatsapp/"+id, inst["webhookUrl"])
	_, hasConnectedAt := inst["connectedAt"]
	assert.False(t, hasConnectedAt)

	list := ts.listInstances(t)
	require.Len(t, list, 1)
	assert.Equal(t, "initializing", list[0]["status"])

	// no artifact yet: qr is null, status from the registry
	rec, body = ts.do(t, http.MethodGet, "/api/instances/"+id+"/qr", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, body["qr"])
	assert.Equal(t, "initializing", body["status"])

	// pairing code shows up
	require.Eventually(t, func() bool {
		ts.eng.mu.Lock()
		_, ok := ts.eng.handlers[id]
		ts.eng.mu.Unlock()
		return ok
	}, waitFor, tick)
	ts.eng.emit(id, engine.PairingEvent{Code: "2@pairing-code"})
	require.Eventually(t, func() bool {
		_, body := ts.do(t, http.MethodGet, "/api/instances/"+id+"/qr", "")
		qr, _ := body["qr"].(string)
		return body["status"] == "waiting_pairing" && strings.HasPrefix(qr, "data:image/png;base64,")
	}, waitFor, tick)
	// pairing state never reaches the durable record
	assert.Equal(t, "initializing", ts.listInstances(t)[0]["status"])

	// authenticate and connect
	ts.eng.emit(id, engine.AuthenticatedEvent{})
	ts.eng.emit(id, engine.ConnectedEvent{})
	require.Eventually(t, func() bool {
		list := ts.listInstances(t)
		return list[0]["status"] == "connected" && list[0]["connectedAt"] != nil
	}, waitFor, tick)

	// artifact is gone once paired
	_, body = ts.do(t, http.MethodGet, "/api/instances/"+id+"/qr", "")
	assert.Nil(t, body["qr"])
	assert.Equal(t, "connected", body["status"])

	// inbound keyword gets exactly one automated reply
	ts.eng.emit(id, engine.MessageEvent{Sender: "5541988880000", Text: "qual o preço?"})
	require.Eventually(t, func() bool {
		return ts.eng.session(id).sentCount() == 1
	}, waitFor, tick)
	sess := ts.eng.session(id)
	sess.mu.Lock()
	sent := sess.sent[0]
	sess.mu.Unlock()
	assert.True(t, strings.HasPrefix(sent, "5541988880000|"))
	assert.Contains(t, sent, "R$ 99,90")
}

func TestCreateInstanceMissingFields(t *testing.T) {
	ts := newTestServer(t)
	rec, body := ts.do(t, http.MethodPost, "/api/instances", `{"name":"Line A"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "MISSING_FIELDS", body["code"])

	rec, body = ts.do(t, http.MethodPost, "/api/instances", `{"number":"5541999990000"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "MISSING_FIELDS", body["code"])
}

func TestGetInstanceQRUnknown(t *testing.T) {
	ts := newTestServer(t)
	rec, body := ts.do(t, http.MethodGet, "/api/instances/inst_missing/qr", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "INSTANCE_NOT_FOUND", body["code"])
}

func TestGetInstanceUnknown(t *testing.T) {
	ts := newTestServer(t)
	rec, body := ts.do(t, http.MethodGet, "/api/instances/inst_missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "INSTANCE_NOT_FOUND", body["code"])
}

func TestSendMessageEndpoint(t *testing.T) {
	ts := newTestServer(t)

	rec, body := ts.do(t, http.MethodPost, "/api/messages/send", `{"number":"5541977770000"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "MISSING_FIELDS", body["code"])

	// no connected instance yet
	rec, body = ts.do(t, http.MethodPost, "/api/messages/send", `{"number":"5541977770000","text":"olá"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "NO_CONNECTED_INSTANCE", body["code"])

	// bring an instance up
	_, created := ts.do(t, http.MethodPost, "/api/instances", `{"name":"Line A","number":"5541999990000"}`)
	id := created["instance"].(map[string]interface{})["id"].(string)
	require.Eventually(t, func() bool {
		e, ok := ts.mgr.Registry().Get(id)
		return ok && e.Session() != nil
	}, waitFor, tick)
	ts.eng.emit(id, engine.ConnectedEvent{})
	require.Eventually(t, func() bool {
		e, _ := ts.mgr.Registry().Get(id)
		return e.Status() == instance.StatusConnected
	}, waitFor, tick)

	rec, body = ts.do(t, http.MethodPost, "/api/messages/send", `{"number":"5541977770000","text":"olá"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["sent"])
	assert.Equal(t, id, body["instance_id"])
	assert.Equal(t, 1, ts.eng.session(id).sentCount())

	// message log reflects the outbound
	rec, body = ts.do(t, http.MethodGet, "/api/messages?instance_id="+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["total"])
}

func TestNotifyAdminEndpoint(t *testing.T) {
	ts := newTestServer(t)

	rec, body := ts.do(t, http.MethodPost, "/api/notify-admin", `{"name":"Maria","email":"maria@example.com","message":"quero um site"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "NOTIFY_FAILED", body["code"])

	_, created := ts.do(t, http.MethodPost, "/api/instances", `{"name":"Line A","number":"5541999990000"}`)
	id := created["instance"].(map[string]interface{})["id"].(string)
	require.Eventually(t, func() bool {
		e, ok := ts.mgr.Registry().Get(id)
		return ok && e.Session() != nil
	}, waitFor, tick)
	ts.eng.emit(id, engine.ConnectedEvent{})
	require.Eventually(t, func() bool {
		e, _ := ts.mgr.Registry().Get(id)
		return e.Status() == instance.StatusConnected
	}, waitFor, tick)

	rec, body = ts.do(t, http.MethodPost, "/api/notify-admin", `{"name":"Maria","email":"maria@example.com","message":"quero um site"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])

	sess := ts.eng.session(id)
	require.Equal(t, 1, sess.sentCount())
	sess.mu.Lock()
	sent := sess.sent[0]
	sess.mu.Unlock()
	assert.True(t, strings.HasPrefix(sent, "5541900000000|"))
	assert.Contains(t, sent, "Maria")
	assert.Contains(t, sent, "Nova mensagem do site")
}
