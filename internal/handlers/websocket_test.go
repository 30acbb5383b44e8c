package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/chirm-app/chirm-server/internal/middleware"
	"github.com/chirm-app/chirm-server/internal/models"
	"github.com/chirm-app/chirm-server/internal/registry"
	"github.com/chirm-app/chirm-server/internal/router"
)

const testJWTSecret = "test-secret"

func newSignalingServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := registry.New(logger)
	rt := router.New(reg, nil, logger)

	r := gin.New()
	api := r.Group("/api")
	api.POST("/auth/login", Login(testJWTSecret))
	api.GET("/clients", middleware.JWTAuth(testJWTSecret), ListClients(reg))
	r.GET("/ws", HandleSignaling(rt, logger))

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

type wsClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func dial(t *testing.T, srv *httptest.Server) *wsClient {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return &wsClient{t: t, conn: conn}
}

func (c *wsClient) send(msg models.Inbound) {
	c.t.Helper()
	data, err := models.EncodeInbound(msg)
	if err != nil {
		c.t.Fatalf("encode: %v", err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.t.Fatalf("write: %v", err)
	}
}

func (c *wsClient) sendRaw(frame string) {
	c.t.Helper()
	if err := c.conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		c.t.Fatalf("write: %v", err)
	}
}

func (c *wsClient) recv() models.Outbound {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		c.t.Fatalf("read: %v", err)
	}
	msg, err := models.DecodeOutbound(data)
	if err != nil {
		c.t.Fatalf("decode %s: %v", data, err)
	}
	return msg
}

// register connects under id and consumes the peer snapshot.
func (c *wsClient) register(id string) models.BroadcastUsers {
	c.t.Helper()
	c.send(models.Connect{ID: id})
	msg := c.recv()
	snapshot, ok := msg.(models.BroadcastUsers)
	if !ok {
		c.t.Fatalf("after connect got %#v, want BroadcastUsers", msg)
	}
	return snapshot
}

// Full signaling walkthrough: register two peers, trade an offer, an answer
// and a candidate through the server, then drop one transport.
func TestSignalingScenario(t *testing.T) {
	srv := newSignalingServer(t)

	alice := dial(t, srv)
	if snapshot := alice.register("alice"); len(snapshot.Users) != 0 {
		t.Fatalf("first client should see an empty snapshot, got %v", snapshot.Users)
	}

	bob := dial(t, srv)
	if snapshot := bob.register("bob"); !reflect.DeepEqual(snapshot.Users, []string{"alice"}) {
		t.Fatalf("bob's snapshot = %v, want [alice]", snapshot.Users)
	}
	if msg := alice.recv(); msg != models.Outbound(models.UserConnected{User: "bob"}) {
		t.Fatalf("alice got %#v, want UserConnected{bob}", msg)
	}

	offerSDP := json.RawMessage(`{"type":"offer","sdp":"v=0\r\n"}`)
	alice.send(models.Offer{To: "bob", SDP: offerSDP})
	offer, ok := bob.recv().(models.OfferRelay)
	if !ok || offer.From != "alice" || offer.To != "bob" || string(offer.SDP) != string(offerSDP) {
		t.Fatalf("bob got %#v", offer)
	}

	answerSDP := json.RawMessage(`{"type":"answer","sdp":"v=0\r\n"}`)
	bob.send(models.Answer{To: "alice", SDP: answerSDP})
	answer, ok := alice.recv().(models.AnswerRelay)
	if !ok || answer.From != "bob" || string(answer.SDP) != string(answerSDP) {
		t.Fatalf("alice got %#v", answer)
	}

	bob.send(models.IceCandidate{To: "alice", Candidate: json.RawMessage(`{"candidate":"candidate:1"}`)})
	candidate, ok := alice.recv().(models.CandidateRelay)
	if !ok || candidate.From != "bob" {
		t.Fatalf("alice got %#v", candidate)
	}

	// Transport closure counts as an implicit disconnect.
	bob.conn.Close()
	if msg := alice.recv(); msg != models.Outbound(models.UserDisconnected{User: "bob"}) {
		t.Fatalf("alice got %#v, want UserDisconnected{bob}", msg)
	}

	// The id is free again.
	bob2 := dial(t, srv)
	if snapshot := bob2.register("bob"); !reflect.DeepEqual(snapshot.Users, []string{"alice"}) {
		t.Fatalf("bob re-registration snapshot = %v, want [alice]", snapshot.Users)
	}
}

func TestDuplicateIdOverWire(t *testing.T) {
	srv := newSignalingServer(t)

	alice := dial(t, srv)
	alice.register("alice")

	intruder := dial(t, srv)
	intruder.send(models.Connect{ID: "alice"})
	msg, ok := intruder.recv().(models.ErrorMessage)
	if !ok || msg.Message != "user is already connected" {
		t.Fatalf("got %#v, want error \"user is already connected\"", msg)
	}

	// The rejected connection stays usable and may retry under another id.
	if snapshot := intruder.register("alice2"); !reflect.DeepEqual(snapshot.Users, []string{"alice"}) {
		t.Fatalf("retry snapshot = %v, want [alice]", snapshot.Users)
	}
}

func TestMalformedFramesDropped(t *testing.T) {
	srv := newSignalingServer(t)

	c := dial(t, srv)
	c.sendRaw(`this is not json`)
	c.sendRaw(`{"type":"shout","id":"x"}`)
	c.sendRaw(`{"type":"connect"}`)

	// The connection survives and the next valid message works.
	if snapshot := c.register("alice"); len(snapshot.Users) != 0 {
		t.Fatalf("snapshot = %v, want empty", snapshot.Users)
	}
}

func TestVoluntaryDisconnectClosesSession(t *testing.T) {
	srv := newSignalingServer(t)

	alice := dial(t, srv)
	alice.register("alice")
	bob := dial(t, srv)
	bob.register("bob")
	alice.recv() // UserConnected{bob}

	bob.send(models.Disconnect{ID: "bob"})
	if msg := alice.recv(); msg != models.Outbound(models.UserDisconnected{User: "bob"}) {
		t.Fatalf("alice got %#v, want UserDisconnected{bob}", msg)
	}

	// Server closes bob's connection once the disconnect is processed.
	bob.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := bob.conn.ReadMessage(); err == nil {
		t.Fatalf("expected bob's connection to be closed")
	}
}

func TestClientListingRequiresAuth(t *testing.T) {
	srv := newSignalingServer(t)

	alice := dial(t, srv)
	alice.register("alice")

	resp, err := http.Get(srv.URL + "/api/clients")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d, want 401", resp.StatusCode)
	}

	// Login, then list.
	loginResp, err := http.Post(srv.URL+"/api/auth/login", "application/json",
		strings.NewReader(`{"username":"ops","password":"pw"}`))
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	defer loginResp.Body.Close()
	var login LoginResponse
	if err := json.NewDecoder(loginResp.Body).Decode(&login); err != nil {
		t.Fatalf("decode login: %v", err)
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/clients", nil)
	req.Header.Set("Authorization", "Bearer "+login.Token)
	listResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	defer listResp.Body.Close()
	if listResp.StatusCode != http.StatusOK {
		t.Fatalf("authenticated status = %d, want 200", listResp.StatusCode)
	}
	var list ClientsResponse
	if err := json.NewDecoder(listResp.Body).Decode(&list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if !reflect.DeepEqual(list.Clients, []string{"alice"}) || list.Count != 1 {
		t.Fatalf("clients = %+v, want [alice]", list)
	}
}
