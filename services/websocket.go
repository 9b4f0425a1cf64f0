package services

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/CrowderSoup/wiseflow/board"
	"github.com/CrowderSoup/wiseflow/database"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 64 * 1024

	sendBuffer = 256
)

// Message types exchanged with a board view.
const (
	MsgPing         = "ping"
	MsgPong         = "pong"
	MsgDragStart    = "drag.start"
	MsgDragOver     = "drag.over"
	MsgDragEnd      = "drag.end"
	MsgDragCancel   = "drag.cancel"
	MsgRefresh      = "board.refresh"
	MsgSnapshot     = "board.snapshot"
	MsgPreview      = "board.preview"
	MsgCommit       = "board.commit"
	MsgPersistError = "board.persist_error"
	MsgError        = "error"
)

var errInvalidTarget = errors.New("target needs an id or a status")

// WebSocketMessage is the standard message format for WebSocket communication
type WebSocketMessage struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// wireTarget is a drop target as sent by the view: a column ({status}) or a
// card ({id, after}, or {id, pointerY, top, height} to let the server apply
// the midpoint rule).
type wireTarget struct {
	Status   *database.Status `json:"status"`
	ID       string           `json:"id"`
	After    bool             `json:"after"`
	PointerY *float64         `json:"pointerY"`
	Top      float64          `json:"top"`
	Height   float64          `json:"height"`
}

func (w *wireTarget) target() (board.Target, error) {
	if w == nil {
		return board.Target{}, errInvalidTarget
	}
	if w.ID != "" {
		after := w.After
		if w.PointerY != nil {
			after = board.PointerBelow(*w.PointerY, board.Rect{Top: w.Top, Height: w.Height})
		}
		return board.ItemTarget(w.ID, after), nil
	}
	if w.Status != nil {
		return board.ColumnTarget(*w.Status), nil
	}
	return board.Target{}, errInvalidTarget
}

// Client is one websocket connection showing one project's board. It owns the
// drag session for that view, so its gestures are handled in arrival order by
// the read loop.
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	userID    string
	projectID string

	ctx       context.Context
	cancel    context.CancelFunc
	boards    *Boards
	session   *board.Session
	persister *OrderPersister

	mu     sync.Mutex
	closed bool
}

// NewClient loads the board for projectID and queues it as the first
// snapshot. ctx must carry the authenticated user.
func NewClient(ctx context.Context, hub *Hub, conn *websocket.Conn, boards *Boards, projectID string, opts ...PersisterOption) (*Client, error) {
	userID, err := UserFromContext(ctx)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	cols, err := boards.Load(ctx, projectID)
	if err != nil {
		cancel()
		return nil, err
	}

	c := &Client{
		hub:       hub,
		conn:      conn,
		send:      make(chan []byte, sendBuffer),
		userID:    userID,
		projectID: projectID,
		ctx:       ctx,
		cancel:    cancel,
		boards:    boards,
	}
	c.persister = boards.Persister(ctx, append([]PersisterOption{OnPersistError(c.persistFailed)}, opts...)...)
	c.session = board.NewSession(cols,
		board.WithPersister(c.persister),
		board.OnPreview(c.preview),
		board.OnCommit(c.commit),
	)

	c.sendMessage(MsgSnapshot, cols)
	return c, nil
}

func (c *Client) UserID() string {
	return c.userID
}

// Start registers the client and runs its pumps.
func (c *Client) Start() {
	c.hub.Register(c)
	go c.WritePump()
	go c.ReadPump()
}

// ReadPump pumps messages from the WebSocket connection to the drag session
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
		c.cancel()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		var msg inboundMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("Error unmarshalling WebSocket message: %v", err)
			continue
		}
		c.handle(msg)
	}
}

func (c *Client) handle(msg inboundMessage) {
	switch msg.Type {
	case MsgPing:
		c.sendMessage(MsgPong, map[string]string{"timestamp": time.Now().Format(time.RFC3339)})

	case MsgDragStart:
		var data struct {
			ID string `json:"id"`
		}
		if err := decodeData(msg.Data, &data); err != nil || data.ID == "" {
			c.sendError(msg.Type, errors.New("drag.start needs an id"))
			return
		}
		if err := c.session.DragStart(data.ID); err != nil {
			c.sendError(msg.Type, err)
		}

	case MsgDragOver:
		var data struct {
			Target *wireTarget `json:"target"`
		}
		if err := decodeData(msg.Data, &data); err != nil {
			c.sendError(msg.Type, err)
			return
		}
		target, err := data.Target.target()
		if err != nil {
			c.sendError(msg.Type, err)
			return
		}
		if _, err := c.session.DragOver(target); err != nil {
			c.sendError(msg.Type, err)
		}

	case MsgDragEnd:
		// A missing or unreadable target is a drop outside the board.
		var data struct {
			Target *wireTarget `json:"target"`
		}
		var over *board.Target
		if err := decodeData(msg.Data, &data); err == nil && data.Target != nil {
			if t, err := data.Target.target(); err == nil {
				over = &t
			}
		}
		if _, _, err := c.session.DragEnd(over); err != nil {
			c.sendError(msg.Type, err)
		}

	case MsgDragCancel:
		c.session.Cancel()

	case MsgRefresh:
		c.refresh()

	default:
		log.Printf("Ignoring WebSocket message of type '%s' from %s", msg.Type, c.userID)
	}
}

// refresh replaces the board with the store's current state. A drag in
// progress is cancelled.
func (c *Client) refresh() {
	cols, err := c.boards.Load(c.ctx, c.projectID)
	if err != nil {
		log.Printf("Error reloading board for %s: %v", c.userID, err)
		c.sendError(MsgRefresh, err)
		return
	}
	c.session.Replace(cols)
	c.sendMessage(MsgSnapshot, cols)
}

func (c *Client) preview(cols board.Columns) {
	c.sendMessage(MsgPreview, cols)
}

func (c *Client) commit(cols board.Columns) {
	c.sendMessage(MsgCommit, cols)
	c.hub.Publish(c.userID, c, Event{Type: EventBoardChanged, ProjectID: c.projectID})
}

// persistFailed reports a failed background write. The view keeps its state;
// it can ask for board.refresh to reconcile.
func (c *Client) persistFailed(err error) {
	c.sendMessage(MsgPersistError, map[string]string{"error": err.Error()})
}

func (c *Client) sendError(op string, err error) {
	c.sendMessage(MsgError, map[string]string{"op": op, "error": err.Error()})
}

func (c *Client) sendMessage(msgType string, data any) {
	payload, err := json.Marshal(WebSocketMessage{Type: msgType, Data: data})
	if err != nil {
		log.Printf("Error marshalling WebSocket message: %v", err)
		return
	}
	if !c.enqueue(payload) {
		log.Printf("Dropping '%s' message for %s", msgType, c.userID)
	}
}

// enqueue queues payload without blocking. It reports false when the client
// is closed or its buffer is full.
func (c *Client) enqueue(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// WritePump pumps messages from the hub to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// One frame per message; the view parses each frame as a single JSON value
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func decodeData(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

type outbound struct {
	userID  string
	exclude *Client
	payload []byte
}

// Hub maintains the set of active clients and routes events to the clients
// of one user
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan outbound
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

// NewHub creates a new hub instance
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan outbound, sendBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		client.close()
	}
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Publish sends an event to every connection of userID except exclude.
func (h *Hub) Publish(userID string, exclude *Client, event Event) {
	payload, err := json.Marshal(WebSocketMessage{Type: event.Type, Data: event})
	if err != nil {
		log.Printf("Error marshalling WebSocket message: %v", err)
		return
	}
	select {
	case h.broadcast <- outbound{userID: userID, exclude: exclude, payload: payload}:
	case <-h.done:
	}
}

// Notify sends an event to every connection of userID.
func (h *Hub) Notify(userID string, event Event) {
	h.Publish(userID, nil, event)
}

// Run starts the hub's main loop. It returns, closing every client, when ctx
// is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				delete(h.clients, client)
				client.close()
			}
			return
		case client := <-h.register:
			h.clients[client] = true
			log.Printf("Client connected: %s (project %q)", client.userID, client.projectID)
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.close()
				log.Printf("Client disconnected: %s", client.userID)
			}
		case msg := <-h.broadcast:
			for client := range h.clients {
				if client.userID != msg.userID || client == msg.exclude {
					continue
				}
				if !client.enqueue(msg.payload) {
					// Client's send buffer is full, assume disconnected
					log.Printf("Client send buffer full, removing client: %s", client.userID)
					delete(h.clients, client)
					client.close()
				}
			}
		}
	}
}
