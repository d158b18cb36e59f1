package dashboard

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hammamikhairi/chatgod/internal/dispatch"
	"github.com/hammamikhairi/chatgod/internal/domain"
	"github.com/hammamikhairi/chatgod/internal/logger"
)

func setupServer(t *testing.T) (*httptest.Server, *Hub, *dispatch.Controller) {
	t.Helper()
	log := logger.New(logger.LevelOff, nil)
	hub := NewHub(log)
	ctrl := dispatch.New(log, dispatch.WithEvents(hub))
	ts := httptest.NewServer(NewServer(hub, ctrl, log).Handler())
	t.Cleanup(ts.Close)
	return ts, hub, ctrl
}

func getJSON(t *testing.T, url string, v any) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestHealth(t *testing.T) {
	ts, _, _ := setupServer(t)

	var body map[string]string
	getJSON(t, ts.URL+"/health", &body)
	assert.Equal(t, "ok", body["status"])
}

func TestSlotsEndpoint(t *testing.T) {
	ts, _, ctrl := setupServer(t)
	require.NoError(t, ctrl.SetVoice(2, "Brian"))

	var slots []domain.SlotState
	getJSON(t, ts.URL+"/api/slots", &slots)
	require.Len(t, slots, 3)
	assert.Equal(t, "Brian", slots[1].Voice)
	assert.True(t, slots[0].TTSEnabled)
}

func TestOverlayEndpointFallsBackToSlotOne(t *testing.T) {
	ts, _, ctrl := setupServer(t)
	require.NoError(t, ctrl.SetActiveSpeaker(1, "first"))
	require.NoError(t, ctrl.SetActiveSpeaker(3, "third"))

	tests := map[string]string{
		"/obs?user=3":   "third",
		"/obs?user=9":   "first",
		"/obs?user=abc": "first",
		"/obs":          "first",
	}
	for path, want := range tests {
		var slot domain.SlotState
		getJSON(t, ts.URL+path, &slot)
		assert.Equal(t, want, slot.ActiveSpeaker, path)
	}
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func TestWebsocketSendsSnapshotOnConnect(t *testing.T) {
	ts, _, _ := setupServer(t)
	conn := dial(t, ts)

	env := readEnvelope(t, conn)
	assert.Equal(t, EventSlots, env.Event)

	var slots []domain.SlotState
	require.NoError(t, json.Unmarshal(env.Data, &slots))
	assert.Len(t, slots, 3)
}

func TestWebsocketCommandRoundTrip(t *testing.T) {
	ts, _, ctrl := setupServer(t)
	conn := dial(t, ts)
	readEnvelope(t, conn) // snapshot

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"event":"choose","data":{"user_number":"2","chosen_user":"Bob"}}`)))

	env := readEnvelope(t, conn)
	assert.Equal(t, EventMessageSend, env.Event)
	var data map[string]string
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, map[string]string{
		"message":      "bob was picked!",
		"current_user": "bob",
		"user_number":  "2",
	}, data)

	state, err := ctrl.Slot(2)
	require.NoError(t, err)
	assert.Equal(t, "bob", state.ActiveSpeaker)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"event":"tts","data":{"user_number":"2","checked":false}}`)))
	assert.Eventually(t, func() bool {
		s, _ := ctrl.Slot(2)
		return !s.TTSEnabled
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWebsocketIgnoresBadCommands(t *testing.T) {
	ts, _, ctrl := setupServer(t)
	conn := dial(t, ts)
	readEnvelope(t, conn)

	for _, frame := range []string{
		`{"event":"reboot"}`,
		`{"event":"tts","data":{"user_number":"7","checked":false}}`,
		`garbage`,
	} {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))
	}
	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"event":"voice_change","data":{"user_number":"1","voice_id":"Amy"}}`)))

	assert.Eventually(t, func() bool {
		s, _ := ctrl.Slot(1)
		return s.Voice == "Amy"
	}, 2*time.Second, 10*time.Millisecond, "connection survives bad frames")
}

func TestHubBroadcastsToEveryClient(t *testing.T) {
	ts, hub, _ := setupServer(t)
	a, b := dial(t, ts), dial(t, ts)
	readEnvelope(t, a)
	readEnvelope(t, b)
	require.Eventually(t, func() bool { return hub.Clients() == 2 }, 2*time.Second, 10*time.Millisecond)

	hub.Publish(domain.Event{Kind: domain.EventAudioStarted, Slot: 1, Text: "hey"})

	for _, conn := range []*websocket.Conn{a, b} {
		env := readEnvelope(t, conn)
		assert.Equal(t, EventPlayAudio, env.Event)
	}
}
