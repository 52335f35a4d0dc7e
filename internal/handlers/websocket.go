package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"pcapscope/internal/engine"
	"pcapscope/internal/models"
)

const (
	writeWait         = 5 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = pongWait * 9 / 10
	maxCommandSize    = 4096
	defaultSendBuffer = 512
)

var (
	errClientClosed = errors.New("client closed")
	errSlowClient   = errors.New("client send queue full")
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSClient is one WebSocket subscriber of an engine. Messages are written
// in the order they were queued. Packet messages are dropped while the
// queue is full; every other message waits up to writeWait for room.
type WSClient struct {
	conn    *websocket.Conn
	eng     *engine.Engine
	send    chan models.WSMessage
	done    chan struct{}
	dropped atomic.Int64
}

// NewWSClient registers a client with the engine and starts its writer.
// A client joining after a load gets the current summary first.
func NewWSClient(conn *websocket.Conn, eng *engine.Engine, backlog int) *WSClient {
	if backlog <= 0 {
		backlog = defaultSendBuffer
	}
	c := &WSClient{
		conn: conn,
		eng:  eng,
		send: make(chan models.WSMessage, backlog),
		done: make(chan struct{}),
	}
	go c.writeLoop()
	if summary, err := eng.Summary(); err == nil {
		c.sendJSON(models.MsgParseComplete, summary)
	}
	eng.RegisterClient(c)
	return c
}

// SendMessage implements engine.Client.
func (c *WSClient) SendMessage(msg models.WSMessage) error {
	if msg.Type == models.MsgPacket {
		select {
		case <-c.done:
			return errClientClosed
		case c.send <- msg:
		default:
			c.dropped.Add(1)
		}
		return nil
	}

	if msg.Type == models.MsgParseComplete {
		if n := c.dropped.Swap(0); n > 0 {
			log.Printf("WebSocket %s: dropped %d packets", c.conn.RemoteAddr(), n)
		}
	}
	timer := time.NewTimer(writeWait)
	defer timer.Stop()
	select {
	case <-c.done:
		return errClientClosed
	case c.send <- msg:
		return nil
	case <-timer.C:
		return errSlowClient
	}
}

func (c *WSClient) write(msg models.WSMessage) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(msg) == nil
}

func (c *WSClient) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg := <-c.send:
			if !c.write(msg) {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// ReadLoop serves client commands until the connection fails, then
// unregisters the client.
func (c *WSClient) ReadLoop() {
	defer func() {
		c.eng.UnregisterClient(c)
		close(c.done)
	}()

	c.conn.SetReadLimit(maxCommandSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("WebSocket %s: %v", c.conn.RemoteAddr(), err)
			}
			return
		}
		var msg models.WSMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.sendError("invalid message format")
			continue
		}
		c.handleCommand(msg)
	}
}

// ==================== Commands ====================

const (
	cmdGetPacketDetail = "get_packet_detail"
	cmdGetStreamData   = "get_stream_data"
	cmdGetSummary      = "get_summary"
)

// command answers one request with a reply type and value.
type command func(eng *engine.Engine, payload json.RawMessage) (string, interface{}, error)

var commands = map[string]command{
	cmdGetPacketDetail: func(eng *engine.Engine, payload json.RawMessage) (string, interface{}, error) {
		var req models.PacketDetailRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return "", nil, fmt.Errorf("invalid %s payload", cmdGetPacketDetail)
		}
		detail, err := eng.PacketDetail(req.ID)
		if err != nil {
			return "", nil, fmt.Errorf("packet detail: %w", err)
		}
		return models.MsgPacketDetail, detail, nil
	},
	cmdGetStreamData: func(eng *engine.Engine, payload json.RawMessage) (string, interface{}, error) {
		var req models.StreamDataRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return "", nil, fmt.Errorf("invalid %s payload", cmdGetStreamData)
		}
		data, err := eng.StreamData(req.StreamID)
		if err != nil {
			return "", nil, fmt.Errorf("stream data: %w", err)
		}
		return models.MsgStreamData, data, nil
	},
	cmdGetSummary: func(eng *engine.Engine, _ json.RawMessage) (string, interface{}, error) {
		summary, err := eng.Summary()
		return models.MsgParseComplete, summary, err
	},
}

func (c *WSClient) handleCommand(msg models.WSMessage) {
	cmd, ok := commands[msg.Type]
	if !ok {
		c.sendError("unknown command: " + msg.Type)
		return
	}
	typ, v, err := cmd(c.eng, msg.Payload)
	if err != nil {
		c.sendError(err.Error())
		return
	}
	c.sendJSON(typ, v)
}

func (c *WSClient) sendJSON(typ string, v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		c.sendError("encode " + typ + ": " + err.Error())
		return
	}
	c.SendMessage(models.WSMessage{Type: typ, Payload: payload})
}

func (c *WSClient) sendError(message string) {
	payload, _ := json.Marshal(models.ErrorPayload{Message: message})
	c.SendMessage(models.WSMessage{Type: models.MsgError, Payload: payload})
}

// HandleWebSocket upgrades the request and serves the client until it
// disconnects.
func HandleWebSocket(eng *engine.Engine, backlog int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("WebSocket upgrade error: %v", err)
			return
		}
		NewWSClient(conn, eng, backlog).ReadLoop()
	}
}
