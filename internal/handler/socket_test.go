package handler

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/forgo/saga/presence/internal/middleware"
	"github.com/forgo/saga/presence/internal/model"
	"github.com/forgo/saga/presence/internal/service"
	"github.com/forgo/saga/presence/pkg/jwt"
)

var testKey = sync.OnceValue(func() *rsa.PrivateKey {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(err)
	}
	return key
})

const (
	adminAccount = "account:admin"
	userAccount  = "account:user"
)

type socketEnv struct {
	server   *httptest.Server
	store    *memoryStore
	presence *service.PresenceService
	tokens   *jwt.Service
}

type envOption func(*SocketHandlerConfig)

func withLimiter(l *middleware.RateLimiter) envOption {
	return func(cfg *SocketHandlerConfig) { cfg.Limiter = l }
}

func withOrigins(origins ...string) envOption {
	return func(cfg *SocketHandlerConfig) { cfg.Socket.AllowedOrigins = origins }
}

func newSocketEnv(t *testing.T, opts ...envOption) *socketEnv {
	t.Helper()

	store := newMemoryStore(
		&model.Layer{ID: "layer:main", Name: "Main", Order: 0, IsDefault: true, IsActive: true},
		&model.Layer{ID: "layer:tiny", Name: "Tiny", Order: 1, IsActive: true, MaxPlayers: 1},
		&model.Layer{ID: "layer:closed", Name: "Closed", Order: 2, IsActive: false},
	)
	store.addAccount(adminAccount, model.AccountRoleAdmin)
	store.addAccount(userAccount, model.AccountRoleUser)

	hub := service.NewConnectionHub()
	rooms := service.NewRoomService(service.RoomServiceConfig{Broadcaster: hub})
	layers := service.NewLayerService(service.LayerServiceConfig{
		LayerRepo:   store,
		AccountRepo: accountView{store},
		Admin:       store,
	})
	presence := service.NewPresenceService(service.PresenceServiceConfig{
		Hub:        hub,
		Rooms:      rooms,
		Layers:     layers,
		SendBuffer: 32,
	})

	dispatcher := NewDispatcher(noop.NewTracerProvider().Tracer("test"))
	NewRoomHandler(rooms).Register(dispatcher)
	NewLayerHandler(layers).Register(dispatcher)

	cfg := SocketHandlerConfig{
		Presence:   presence,
		Dispatcher: dispatcher,
		Socket: SocketConfig{
			WriteWait:       time.Second,
			PongWait:        5 * time.Second,
			PingPeriod:      4 * time.Second,
			MaxMessageBytes: 4096,
			AllowedOrigins:  []string{"*"},
		},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	tokens := jwt.NewTestService(testKey(), "presence-test", time.Hour)
	server := httptest.NewServer(middleware.OptionalAuth(tokens)(NewSocketHandler(cfg)))
	t.Cleanup(server.Close)
	t.Cleanup(presence.Close)

	return &socketEnv{server: server, store: store, presence: presence, tokens: tokens}
}

func (e *socketEnv) url(token string) string {
	u := "ws" + strings.TrimPrefix(e.server.URL, "http")
	if token != "" {
		u += "?" + middleware.AccessTokenParam + "=" + token
	}
	return u
}

func (e *socketEnv) token(t *testing.T, accountID string) string {
	t.Helper()
	token, err := e.tokens.Sign(jwt.Claims{RegisteredClaims: gojwt.RegisteredClaims{Subject: accountID}})
	require.NoError(t, err)
	return token
}

// serverFrame decodes both acknowledgements and pushes
type serverFrame struct {
	Event   string          `json:"event"`
	Ack     string          `json:"ack"`
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    model.ErrorCode `json:"code"`
}

type testClient struct {
	t            *testing.T
	ws           *websocket.Conn
	connectionID string
	accountID    *string
	seq          int
	pushes       []serverFrame
}

func (e *socketEnv) dial(t *testing.T, token string) *testClient {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(e.url(token), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })

	c := &testClient{t: t, ws: ws}
	var ready model.ConnectionReadyEvent
	require.NoError(t, json.Unmarshal(c.expectPush(service.EventConnectionReady).Data, &ready))
	require.NotEmpty(t, ready.ConnectionID)
	c.connectionID = ready.ConnectionID
	c.accountID = ready.AccountID
	return c
}

func (c *testClient) read() serverFrame {
	c.t.Helper()
	require.NoError(c.t, c.ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, message, err := c.ws.ReadMessage()
	require.NoError(c.t, err)
	var f serverFrame
	require.NoError(c.t, json.Unmarshal(message, &f))
	return f
}

func (c *testClient) send(frame interface{}) {
	c.t.Helper()
	require.NoError(c.t, c.ws.WriteJSON(frame))
}

// call sends an event with a fresh ack id and waits for its acknowledgement,
// buffering any pushes that arrive first.
func (c *testClient) call(event string, data interface{}) serverFrame {
	c.t.Helper()
	c.seq++
	ack := strconv.Itoa(c.seq)
	c.send(map[string]interface{}{"event": event, "ack": ack, "data": data})
	for {
		f := c.read()
		if f.Ack == ack {
			return f
		}
		if f.Ack == "" {
			c.pushes = append(c.pushes, f)
		}
	}
}

func (c *testClient) expectPush(event string) serverFrame {
	c.t.Helper()
	for i, f := range c.pushes {
		if f.Event == event {
			c.pushes = append(c.pushes[:i], c.pushes[i+1:]...)
			return f
		}
	}
	for {
		f := c.read()
		if f.Event == event {
			return f
		}
		if f.Ack == "" {
			c.pushes = append(c.pushes, f)
		}
	}
}

type layerAck struct {
	Layer *struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		PlayerCount int    `json:"playerCount"`
	} `json:"layer"`
	DefaultLayer *struct {
		ID string `json:"id"`
	} `json:"defaultLayer"`
}

func decodeLayerAck(t *testing.T, f serverFrame) layerAck {
	t.Helper()
	require.True(t, f.Success, "ack failed: %s %s", f.Code, f.Error)
	var out layerAck
	require.NoError(t, json.Unmarshal(f.Data, &out))
	return out
}

func TestSocket_ConnectionReady(t *testing.T) {
	env := newSocketEnv(t)

	guest := env.dial(t, "")
	assert.Nil(t, guest.accountID)

	user := env.dial(t, env.token(t, userAccount))
	require.NotNil(t, user.accountID)
	assert.Equal(t, userAccount, *user.accountID)

	assert.NotEqual(t, guest.connectionID, user.connectionID)
	assert.Equal(t, 2, env.presence.Stats().Connections)
}

func TestSocket_InvalidTokenConnectsAsGuest(t *testing.T) {
	env := newSocketEnv(t)

	c := env.dial(t, "not-a-token")
	assert.Nil(t, c.accountID)
}

func TestSocket_RoomPresence(t *testing.T) {
	env := newSocketEnv(t)
	alice := env.dial(t, "")
	bob := env.dial(t, "")

	ack := alice.call("room.enter", map[string]interface{}{
		"roomId": "plaza", "x": 1, "y": 2, "avatarRef": "fox", "displayName": "Alice",
	})
	require.True(t, ack.Success)
	assert.JSONEq(t, `{"existingOccupants":[]}`, string(ack.Data))

	ack = bob.call("room.enter", map[string]interface{}{
		"roomId": "plaza", "x": 5, "y": 6, "avatarRef": "owl", "displayName": "Bob",
	})
	require.True(t, ack.Success)
	var enter model.RoomEnterResponse
	require.NoError(t, json.Unmarshal(ack.Data, &enter))
	require.Len(t, enter.ExistingOccupants, 1)
	assert.Equal(t, alice.connectionID, enter.ExistingOccupants[0].ConnectionID)
	assert.Equal(t, "Alice", enter.ExistingOccupants[0].DisplayName)

	var entered model.RoomPresenceEvent
	require.NoError(t, json.Unmarshal(alice.expectPush(service.EventRoomEntered).Data, &entered))
	assert.Equal(t, bob.connectionID, entered.ConnectionID)
	assert.Equal(t, "plaza", entered.RoomID)
	assert.Equal(t, 5.0, entered.X)

	ack = bob.call("room.move", map[string]interface{}{"roomId": "plaza", "x": 9, "y": 9, "displayName": "Bob"})
	require.True(t, ack.Success)
	var moved model.RoomPresenceEvent
	require.NoError(t, json.Unmarshal(alice.expectPush(service.EventRoomMoved).Data, &moved))
	assert.Equal(t, 9.0, moved.X)

	ack = alice.call("room.emote", map[string]interface{}{"roomId": "plaza", "emote": "wave"})
	require.True(t, ack.Success)
	var emoted model.RoomPresenceEvent
	require.NoError(t, json.Unmarshal(bob.expectPush(service.EventRoomEmoted).Data, &emoted))
	assert.Equal(t, "wave", emoted.Emote)
	assert.Equal(t, alice.connectionID, emoted.ConnectionID)

	ack = bob.call("room.leave", map[string]interface{}{"roomId": "plaza"})
	require.True(t, ack.Success)
	var left model.RoomLeftEvent
	require.NoError(t, json.Unmarshal(alice.expectPush(service.EventRoomLeft).Data, &left))
	assert.Equal(t, bob.connectionID, left.ConnectionID)
}

func TestSocket_RoomValidation(t *testing.T) {
	env := newSocketEnv(t)
	c := env.dial(t, "")

	ack := c.call("room.enter", map[string]interface{}{"roomId": "   "})
	assert.False(t, ack.Success)
	assert.Equal(t, model.ErrCodeInvalidInput, ack.Code)

	ack = c.call("room.emote", map[string]interface{}{"roomId": "plaza"})
	assert.False(t, ack.Success)
	assert.Equal(t, model.ErrCodeInvalidInput, ack.Code)

	ack = c.call("room.enter", "not an object")
	assert.False(t, ack.Success)
	assert.Equal(t, model.ErrCodeInvalidInput, ack.Code)
}

func TestSocket_LeaveWithPaddedRoomID(t *testing.T) {
	env := newSocketEnv(t)
	alice := env.dial(t, "")
	bob := env.dial(t, "")

	require.True(t, alice.call("room.enter", map[string]interface{}{"roomId": "plaza"}).Success)
	require.True(t, bob.call("room.enter", map[string]interface{}{"roomId": " plaza "}).Success)
	alice.expectPush(service.EventRoomEntered)

	ack := bob.call("room.leave", map[string]interface{}{"roomId": " plaza "})
	require.True(t, ack.Success)

	var left model.RoomLeftEvent
	require.NoError(t, json.Unmarshal(alice.expectPush(service.EventRoomLeft).Data, &left))
	assert.Equal(t, bob.connectionID, left.ConnectionID)
	assert.Equal(t, "plaza", left.RoomID)
	assert.Equal(t, 1, env.presence.Stats().Rooms["plaza"])

	ack = bob.call("room.leave", map[string]interface{}{"roomId": "  "})
	assert.False(t, ack.Success)
	assert.Equal(t, model.ErrCodeInvalidInput, ack.Code)
}

func TestSocket_DisconnectNotifiesRoom(t *testing.T) {
	env := newSocketEnv(t)
	alice := env.dial(t, "")
	bob := env.dial(t, "")

	require.True(t, alice.call("room.enter", map[string]interface{}{"roomId": "plaza"}).Success)
	require.True(t, bob.call("room.enter", map[string]interface{}{"roomId": "plaza"}).Success)
	require.True(t, alice.call("layer.join", map[string]interface{}{"layerId": "layer:main"}).Success)

	require.NoError(t, alice.ws.Close())

	var left model.RoomLeftEvent
	require.NoError(t, json.Unmarshal(bob.expectPush(service.EventRoomLeft).Data, &left))
	assert.Equal(t, alice.connectionID, left.ConnectionID)
	assert.Equal(t, "plaza", left.RoomID)

	require.Eventually(t, func() bool {
		stats := env.presence.Stats()
		return stats.Connections == 1 && stats.Layers["layer:main"] == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSocket_LayerDirectory(t *testing.T) {
	env := newSocketEnv(t)
	c := env.dial(t, "")

	ack := c.call("layer.list", nil)
	require.True(t, ack.Success)
	var list struct {
		Layers []struct {
			ID string `json:"id"`
		} `json:"layers"`
	}
	require.NoError(t, json.Unmarshal(ack.Data, &list))
	require.Len(t, list.Layers, 2, "inactive layers are hidden")
	assert.Equal(t, "layer:main", list.Layers[0].ID)
	assert.Equal(t, "layer:tiny", list.Layers[1].ID)

	got := decodeLayerAck(t, c.call("layer.get", map[string]interface{}{"layerId": "layer:tiny"}))
	require.NotNil(t, got.Layer)
	assert.Equal(t, "Tiny", got.Layer.Name)

	ack = c.call("layer.get", map[string]interface{}{"layerId": "layer:missing"})
	assert.False(t, ack.Success)
	assert.Equal(t, model.ErrCodeNotFound, ack.Code)
}

func TestSocket_LayerSelection(t *testing.T) {
	env := newSocketEnv(t)
	user := env.dial(t, env.token(t, userAccount))
	guest := env.dial(t, "")

	current := decodeLayerAck(t, user.call("layer.current", nil))
	assert.Nil(t, current.Layer)
	require.NotNil(t, current.DefaultLayer)
	assert.Equal(t, "layer:main", current.DefaultLayer.ID)

	joined := decodeLayerAck(t, user.call("layer.join", map[string]interface{}{"layerId": "layer:tiny"}))
	require.NotNil(t, joined.Layer)
	assert.Equal(t, 1, joined.Layer.PlayerCount)

	account, err := env.store.getAccount(t.Context(), userAccount)
	require.NoError(t, err)
	require.NotNil(t, account.CurrentLayer)
	assert.Equal(t, "layer:tiny", *account.CurrentLayer)

	ack := guest.call("layer.join", map[string]interface{}{"layerId": "layer:tiny"})
	assert.False(t, ack.Success)
	assert.Equal(t, model.ErrCodeConflict, ack.Code)
	assert.Equal(t, "Layer is full", ack.Error)

	ack = guest.call("layer.join", map[string]interface{}{"layerId": "layer:closed"})
	assert.False(t, ack.Success)
	assert.Equal(t, model.ErrCodeConflict, ack.Code)

	ack = guest.call("layer.join", map[string]interface{}{})
	assert.False(t, ack.Success)
	assert.Equal(t, model.ErrCodeInvalidInput, ack.Code)

	require.True(t, user.call("layer.leave", nil).Success)
	require.True(t, guest.call("layer.join", map[string]interface{}{"layerId": "layer:tiny"}).Success)

	current = decodeLayerAck(t, guest.call("layer.current", nil))
	require.NotNil(t, current.Layer)
	assert.Equal(t, "layer:tiny", current.Layer.ID)
}

func TestSocket_LayerAdministration(t *testing.T) {
	env := newSocketEnv(t)
	guest := env.dial(t, "")
	user := env.dial(t, env.token(t, userAccount))
	admin := env.dial(t, env.token(t, adminAccount))

	create := map[string]interface{}{"name": "Night Market", "maxPlayers": 50}

	ack := guest.call("layer.create", create)
	assert.False(t, ack.Success)
	assert.Equal(t, model.ErrCodePermissionDenied, ack.Code)

	ack = user.call("layer.create", create)
	assert.False(t, ack.Success)
	assert.Equal(t, model.ErrCodePermissionDenied, ack.Code)

	created := decodeLayerAck(t, admin.call("layer.create", create))
	require.NotNil(t, created.Layer)
	assert.Equal(t, "Night Market", created.Layer.Name)

	ack = admin.call("layer.create", map[string]interface{}{"name": "night market"})
	assert.False(t, ack.Success)
	assert.Equal(t, model.ErrCodeConflict, ack.Code)

	ack = admin.call("layer.create", map[string]interface{}{"name": ""})
	assert.False(t, ack.Success)
	assert.Equal(t, model.ErrCodeInvalidInput, ack.Code)

	updated := decodeLayerAck(t, admin.call("layer.update", map[string]interface{}{
		"layerId": created.Layer.ID, "name": "Night Bazaar",
	}))
	require.NotNil(t, updated.Layer)
	assert.Equal(t, "Night Bazaar", updated.Layer.Name)

	ack = user.call("layer.update", map[string]interface{}{"layerId": created.Layer.ID, "name": "Mine"})
	assert.False(t, ack.Success)
	assert.Equal(t, model.ErrCodePermissionDenied, ack.Code)
}

func TestSocket_LayerAdministrationChecksCapabilityFirst(t *testing.T) {
	env := newSocketEnv(t)
	guest := env.dial(t, "")
	user := env.dial(t, env.token(t, userAccount))

	for _, c := range []*testClient{guest, user} {
		ack := c.call("layer.create", map[string]interface{}{})
		assert.False(t, ack.Success)
		assert.Equal(t, model.ErrCodePermissionDenied, ack.Code)

		ack = c.call("layer.update", map[string]interface{}{"name": "  "})
		assert.False(t, ack.Success)
		assert.Equal(t, model.ErrCodePermissionDenied, ack.Code)
	}
}

func TestSocket_UnknownEvent(t *testing.T) {
	env := newSocketEnv(t)
	c := env.dial(t, "")

	ack := c.call("room.teleport", nil)
	assert.False(t, ack.Success)
	assert.Equal(t, model.ErrCodeInvalidInput, ack.Code)
}

func TestSocket_MalformedFrames(t *testing.T) {
	env := newSocketEnv(t)
	c := env.dial(t, "")

	// Unparseable frames carry no usable ack id and are dropped
	require.NoError(t, c.ws.WriteMessage(websocket.TextMessage, []byte("not json")))

	// A frame without an event is answered when it carries an ack id
	c.send(map[string]interface{}{"ack": "bare"})
	f := c.read()
	assert.Equal(t, "bare", f.Ack)
	assert.False(t, f.Success)
	assert.Equal(t, model.ErrCodeInvalidInput, f.Code)

	// The connection survives both
	assert.True(t, c.call("layer.list", nil).Success)
}

func TestSocket_EventsWithoutAckGetNoReply(t *testing.T) {
	env := newSocketEnv(t)
	alice := env.dial(t, "")
	bob := env.dial(t, "")

	require.True(t, bob.call("room.enter", map[string]interface{}{"roomId": "plaza"}).Success)
	alice.send(map[string]interface{}{"event": "room.enter", "data": map[string]interface{}{"roomId": "plaza"}})

	// Bob sees the arrival, proving the event ran
	bob.expectPush(service.EventRoomEntered)

	// Nothing is queued for Alice ahead of her next acknowledgement
	require.NoError(t, alice.ws.WriteJSON(map[string]interface{}{"event": "layer.list", "ack": "next"}))
	f := alice.read()
	assert.Equal(t, "next", f.Ack)
	assert.True(t, f.Success)
}

func TestSocket_RateLimited(t *testing.T) {
	limiter := middleware.NewRateLimiter(middleware.RateLimitConfig{Rate: 1, Window: time.Minute, Burst: 1})
	t.Cleanup(limiter.Stop)
	env := newSocketEnv(t, withLimiter(limiter))
	c := env.dial(t, "")

	assert.True(t, c.call("layer.list", nil).Success)
	assert.True(t, c.call("layer.list", nil).Success)

	ack := c.call("layer.list", nil)
	assert.False(t, ack.Success)
	assert.Equal(t, model.ErrCodeRateLimited, ack.Code)

	// Budgets are per connection
	other := env.dial(t, "")
	assert.True(t, other.call("layer.list", nil).Success)
}

func TestSocket_OriginCheck(t *testing.T) {
	env := newSocketEnv(t, withOrigins("https://game.example"))

	header := http.Header{"Origin": {"https://evil.example"}}
	ws, resp, err := websocket.DefaultDialer.Dial(env.url(""), header)
	if ws != nil {
		_ = ws.Close()
	}
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header = http.Header{"Origin": {"https://game.example"}}
	ws, _, err = websocket.DefaultDialer.Dial(env.url(""), header)
	require.NoError(t, err)
	_ = ws.Close()
}

func TestSocket_ServerClose(t *testing.T) {
	env := newSocketEnv(t)
	c := env.dial(t, "")

	env.presence.Close()

	require.NoError(t, c.ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := c.ws.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)

	require.Eventually(t, func() bool {
		return env.presence.Stats().Connections == 0
	}, 2*time.Second, 10*time.Millisecond)
}
