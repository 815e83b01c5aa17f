// Package sfutest is a scriptable in-memory stand-in for the SFU
// signaling server, used by integration tests. It speaks the real wire
// protocol over a gin/websocket endpoint and keeps per-room producer
// lists, but forwards no media.
package sfutest

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/streamcast/streamcast/internal/domain"
	"github.com/streamcast/streamcast/internal/protocol"
)

// Intercept lets a test take over handling of one request. Returning true
// swallows the request; reply sends a raw envelope back on the same
// connection (echo the token to resolve the client's pending request).
type Intercept func(event string, env protocol.Envelope, reply func(protocol.Envelope)) bool

type Server struct {
	mu        sync.Mutex
	rooms     map[string]*room
	intercept Intercept

	engine *gin.Engine
}

type room struct {
	id        string
	producers []protocol.ProducerInfo
	members   map[*conn]bool
}

type conn struct {
	srv    *Server
	ws     *websocket.Conn
	send   chan protocol.Envelope
	userID string

	mu     sync.Mutex
	roomID string
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func New() *Server {
	gin.SetMode(gin.TestMode)
	s := &Server{rooms: make(map[string]*room)}
	engine := gin.New()
	engine.GET("/ws", s.handleWS)
	s.engine = engine
	return s
}

// Handler is mountable on an httptest.Server.
func (s *Server) Handler() http.Handler { return s.engine }

// SetIntercept installs a per-request hook; nil removes it.
func (s *Server) SetIntercept(fn Intercept) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intercept = fn
}

// Producers returns the current producer list of a room.
func (s *Server) Producers(roomID string) []protocol.ProducerInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.rooms[roomID]
	if r == nil {
		return nil
	}
	return append([]protocol.ProducerInfo(nil), r.producers...)
}

// Push broadcasts a push event to every member of the room.
func (s *Server) Push(roomID, event string, payload any) {
	env, err := protocol.Encode(event, "", payload)
	if err != nil {
		return
	}
	s.mu.Lock()
	r := s.rooms[roomID]
	if r == nil {
		s.mu.Unlock()
		return
	}
	members := make([]*conn, 0, len(r.members))
	for c := range r.members {
		members = append(members, c)
	}
	s.mu.Unlock()
	for _, c := range members {
		c.trySend(env)
	}
}

func (s *Server) handleWS(g *gin.Context) {
	ws, err := upgrader.Upgrade(g.Writer, g.Request, nil)
	if err != nil {
		return
	}
	c := &conn{
		srv:    s,
		ws:     ws,
		send:   make(chan protocol.Envelope, 64),
		userID: "user-" + uuid.NewString()[:8],
	}
	go c.writePump()
	c.readLoop()
}

func (c *conn) writePump() {
	for env := range c.send {
		data, err := json.Marshal(env)
		if err != nil {
			continue
		}
		if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

func (c *conn) readLoop() {
	defer c.drop()
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		c.handle(env)
	}
}

func (c *conn) trySend(env protocol.Envelope) {
	select {
	case c.send <- env:
	default:
	}
}

func (c *conn) reply(env protocol.Envelope, payload any) {
	out, err := protocol.Encode(env.Type, env.Token, payload)
	if err != nil {
		return
	}
	c.trySend(out)
}

func (c *conn) handle(env protocol.Envelope) {
	c.srv.mu.Lock()
	intercept := c.srv.intercept
	c.srv.mu.Unlock()
	if intercept != nil && intercept(env.Type, env, c.trySend) {
		return
	}

	switch env.Type {
	case protocol.EventCreateRoom:
		c.handleCreateRoom(env)
	case protocol.EventJoinRoom:
		c.handleJoinRoom(env)
	case protocol.EventGetRouterRtpCapabilities:
		c.reply(env, protocol.RouterCapabilitiesResponse{RTPCapabilities: DefaultCapabilities()})
	case protocol.EventCreateProducerTransport, protocol.EventCreateConsumerTransport:
		c.reply(env, newTransportOptions())
	case protocol.EventConnectProducerTransport, protocol.EventConnectConsumerTransport:
		c.handleConnect(env)
	case protocol.EventProduce:
		c.handleProduce(env)
	case protocol.EventConsume:
		c.handleConsume(env)
	case protocol.EventListProducers:
		c.handleListProducers(env)
	case protocol.EventStopProducing:
		c.handleStopProducing()
	default:
		c.reply(env, protocol.Ack{Error: "unknown event " + env.Type})
	}
}

func (c *conn) handleCreateRoom(env protocol.Envelope) {
	roomID := string(domain.NewChannelID())
	c.srv.mu.Lock()
	r := &room{id: roomID, members: map[*conn]bool{c: true}}
	c.srv.rooms[roomID] = r
	c.srv.mu.Unlock()
	c.mu.Lock()
	c.roomID = roomID
	c.mu.Unlock()
	c.reply(env, protocol.RoomResponse{RoomID: roomID, UserID: c.userID})
}

func (c *conn) handleJoinRoom(env protocol.Envelope) {
	var req protocol.JoinRoomRequest
	if err := json.Unmarshal(env.Data, &req); err != nil || req.RoomID == "" {
		c.reply(env, protocol.RoomResponse{Error: "bad joinRoom payload"})
		return
	}
	c.srv.mu.Lock()
	r := c.srv.rooms[req.RoomID]
	if r == nil {
		c.srv.mu.Unlock()
		c.reply(env, protocol.RoomResponse{Error: "no such room"})
		return
	}
	r.members[c] = true
	c.srv.mu.Unlock()
	c.mu.Lock()
	c.roomID = req.RoomID
	c.mu.Unlock()
	c.reply(env, protocol.RoomResponse{RoomID: req.RoomID, UserID: c.userID})
}

func (c *conn) currentRoom() *room {
	c.mu.Lock()
	roomID := c.roomID
	c.mu.Unlock()
	if roomID == "" {
		return nil
	}
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	return c.srv.rooms[roomID]
}

func (c *conn) handleConnect(env protocol.Envelope) {
	var req protocol.ConnectTransportRequest
	if err := json.Unmarshal(env.Data, &req); err != nil || len(req.DTLSParameters.Fingerprints) == 0 {
		c.reply(env, protocol.Ack{Error: "bad dtls parameters"})
		return
	}
	c.reply(env, protocol.Ack{})
}

func (c *conn) handleProduce(env protocol.Envelope) {
	var req protocol.ProduceRequest
	if err := json.Unmarshal(env.Data, &req); err != nil {
		c.reply(env, protocol.ProduceResponse{Error: "bad produce payload"})
		return
	}
	r := c.currentRoom()
	if r == nil {
		c.reply(env, protocol.ProduceResponse{Error: "not in a room"})
		return
	}
	info := protocol.ProducerInfo{
		UserID:     c.userID,
		ProducerID: uuid.NewString(),
		Kind:       req.Kind,
	}
	c.srv.mu.Lock()
	r.producers = append(r.producers, info)
	roomID := r.id
	c.srv.mu.Unlock()

	c.reply(env, protocol.ProduceResponse{ID: info.ProducerID})
	c.srv.Push(roomID, protocol.EventNewProducer, info)
	c.srv.Push(roomID, protocol.EventRoomProducersChanged, protocol.ProducersChangedPush{Producers: c.srv.Producers(roomID)})
}

func (c *conn) handleConsume(env protocol.Envelope) {
	var req protocol.ConsumeRequest
	if err := json.Unmarshal(env.Data, &req); err != nil {
		c.reply(env, protocol.ConsumeResponse{Error: "bad consume payload"})
		return
	}
	r := c.currentRoom()
	if r == nil {
		c.reply(env, protocol.ConsumeResponse{Error: "not in a room"})
		return
	}
	c.srv.mu.Lock()
	var src *protocol.ProducerInfo
	for i := range r.producers {
		if r.producers[i].ProducerID == req.ProducerID {
			src = &r.producers[i]
			break
		}
	}
	c.srv.mu.Unlock()
	if src == nil {
		c.reply(env, protocol.ConsumeResponse{Error: "no such producer"})
		return
	}
	if len(req.RTPCapabilities.Codecs) == 0 {
		c.reply(env, protocol.ConsumeResponse{Error: "no capabilities offered"})
		return
	}
	c.reply(env, protocol.ConsumeResponse{
		ID:            uuid.NewString(),
		ProducerID:    src.ProducerID,
		Kind:          src.Kind,
		RTPParameters: parametersFor(src.Kind),
	})
}

func (c *conn) handleListProducers(env protocol.Envelope) {
	r := c.currentRoom()
	if r == nil {
		c.reply(env, protocol.ListProducersResponse{Error: "not in a room"})
		return
	}
	c.reply(env, protocol.ListProducersResponse{Producers: c.srv.Producers(r.id)})
}

func (c *conn) handleStopProducing() {
	r := c.currentRoom()
	if r == nil {
		return
	}
	c.srv.mu.Lock()
	kept := r.producers[:0]
	for _, p := range r.producers {
		if p.UserID != c.userID {
			kept = append(kept, p)
		}
	}
	r.producers = kept
	roomID := r.id
	c.srv.mu.Unlock()
	c.srv.Push(roomID, protocol.EventRoomProducersChanged, protocol.ProducersChangedPush{Producers: c.srv.Producers(roomID)})
}

func (c *conn) drop() {
	r := c.currentRoom()
	if r != nil {
		c.srv.mu.Lock()
		delete(r.members, c)
		kept := r.producers[:0]
		for _, p := range r.producers {
			if p.UserID != c.userID {
				kept = append(kept, p)
			}
		}
		changed := len(kept) != len(r.producers)
		r.producers = kept
		roomID := r.id
		c.srv.mu.Unlock()
		if changed {
			c.srv.Push(roomID, protocol.EventRoomProducersChanged, protocol.ProducersChangedPush{Producers: c.srv.Producers(roomID)})
		}
	}
	close(c.send)
	_ = c.ws.Close()
}
