// Demo peer for the chirm signaling server: registers under an id, and
// either waits to be called or calls another connected peer. The two peers
// trade SDP and ICE candidates through the server, then chat over a data
// channel. Run one of each:
//
//	go run ./cmd/peer -id alice
//	go run ./cmd/peer -id bob -call alice
package main

import (
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/chirm-app/chirm-server/internal/models"
)

type signalClient struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *signalClient) send(msg models.Inbound) error {
	data, err := models.EncodeInbound(msg)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func main() {
	serverURL := flag.String("server", "ws://localhost:3030/ws", "signaling server URL")
	id := flag.String("id", "", "id to register under")
	call := flag.String("call", "", "peer id to call (empty: wait for a call)")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if *id == "" {
		log.Error("-id is required")
		os.Exit(1)
	}

	conn, _, err := websocket.DefaultDialer.Dial(*serverURL, nil)
	if err != nil {
		log.Error("dial failed", "url", *serverURL, "error", err)
		os.Exit(1)
	}
	defer conn.Close()
	sig := &signalClient{conn: conn}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		},
	})
	if err != nil {
		log.Error("peer connection failed", "error", err)
		os.Exit(1)
	}
	defer pc.Close()

	// The peer we are negotiating with; set when calling or when called.
	var remoteMu sync.Mutex
	remote := *call
	remotePeer := func() string {
		remoteMu.Lock()
		defer remoteMu.Unlock()
		return remote
	}
	setRemotePeer := func(id string) {
		remoteMu.Lock()
		remote = id
		remoteMu.Unlock()
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		to := remotePeer()
		if to == "" {
			return
		}
		candidate, err := json.Marshal(c.ToJSON())
		if err != nil {
			log.Warn("marshal candidate failed", "error", err)
			return
		}
		if err := sig.send(models.IceCandidate{To: to, Candidate: candidate}); err != nil {
			log.Warn("send candidate failed", "error", err)
		}
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info("connection state", "state", s.String())
	})

	wireDataChannel := func(dc *webrtc.DataChannel) {
		dc.OnOpen(func() {
			log.Info("data channel open", "label", dc.Label())
			if err := dc.SendText("Hello from " + *id + "!"); err != nil {
				log.Warn("send failed", "error", err)
			}
		})
		dc.OnMessage(func(msg webrtc.DataChannelMessage) {
			log.Info("data channel message", "data", string(msg.Data))
		})
	}
	pc.OnDataChannel(wireDataChannel)

	if err := sig.send(models.Connect{ID: *id}); err != nil {
		log.Error("connect failed", "error", err)
		os.Exit(1)
	}
	log.Info("registered with signaling server", "id", *id)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			log.Error("signaling connection lost", "error", err)
			os.Exit(1)
		}
		msg, err := models.DecodeOutbound(data)
		if err != nil {
			log.Warn("dropping unreadable frame", "error", err)
			continue
		}

		switch m := msg.(type) {
		case models.BroadcastUsers:
			log.Info("connected peers", "users", m.Users)
			if *call != "" {
				dc, err := pc.CreateDataChannel("audio", nil)
				if err != nil {
					log.Error("create data channel failed", "error", err)
					os.Exit(1)
				}
				wireDataChannel(dc)

				offer, err := pc.CreateOffer(nil)
				if err != nil {
					log.Error("create offer failed", "error", err)
					os.Exit(1)
				}
				if err := pc.SetLocalDescription(offer); err != nil {
					log.Error("set local description failed", "error", err)
					os.Exit(1)
				}
				sdp, _ := json.Marshal(offer)
				if err := sig.send(models.Offer{To: *call, SDP: sdp}); err != nil {
					log.Error("send offer failed", "error", err)
					os.Exit(1)
				}
				log.Info("calling", "peer", *call)
			}
		case models.UserConnected:
			log.Info("peer joined", "user", m.User)
		case models.UserDisconnected:
			log.Info("peer left", "user", m.User)
		case models.OfferRelay:
			log.Info("incoming call", "from", m.From)
			setRemotePeer(m.From)

			var offer webrtc.SessionDescription
			if err := json.Unmarshal(m.SDP, &offer); err != nil {
				log.Warn("bad offer", "error", err)
				continue
			}
			if err := pc.SetRemoteDescription(offer); err != nil {
				log.Warn("set remote description failed", "error", err)
				continue
			}
			answer, err := pc.CreateAnswer(nil)
			if err != nil {
				log.Warn("create answer failed", "error", err)
				continue
			}
			if err := pc.SetLocalDescription(answer); err != nil {
				log.Warn("set local description failed", "error", err)
				continue
			}
			sdp, _ := json.Marshal(answer)
			if err := sig.send(models.Answer{To: m.From, SDP: sdp}); err != nil {
				log.Warn("send answer failed", "error", err)
			}
		case models.AnswerRelay:
			var answer webrtc.SessionDescription
			if err := json.Unmarshal(m.SDP, &answer); err != nil {
				log.Warn("bad answer", "error", err)
				continue
			}
			if err := pc.SetRemoteDescription(answer); err != nil {
				log.Warn("set remote description failed", "error", err)
			}
		case models.CandidateRelay:
			var candidate webrtc.ICECandidateInit
			if err := json.Unmarshal(m.Candidate, &candidate); err != nil {
				log.Warn("bad candidate", "error", err)
				continue
			}
			if err := pc.AddICECandidate(candidate); err != nil {
				log.Warn("add candidate failed", "error", err)
			}
		case models.ErrorMessage:
			log.Error("server rejected request", "message", m.Message)
			os.Exit(1)
		}
	}
}
