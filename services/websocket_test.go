package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CrowderSoup/wiseflow/board"
	"github.com/CrowderSoup/wiseflow/database"
)

type fakeBoardStore struct {
	fakeOrderStore
	tasksMu sync.Mutex
	tasks   []database.Task
}

func (f *fakeBoardStore) ListTasks(ctx context.Context, userID, projectID string) ([]database.Task, error) {
	f.tasksMu.Lock()
	defer f.tasksMu.Unlock()
	return append([]database.Task(nil), f.tasks...), nil
}

func runHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-hub.done
	})
	return hub
}

func testClient(hub *Hub, userID string) *Client {
	return &Client{hub: hub, userID: userID, send: make(chan []byte, 16)}
}

type received struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func nextMessage(t *testing.T, c *Client) received {
	t.Helper()
	select {
	case payload, ok := <-c.send:
		require.True(t, ok, "send channel closed")
		var msg received
		require.NoError(t, json.Unmarshal(payload, &msg))
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message for client")
		return received{}
	}
}

func inbound(t *testing.T, msgType string, data any) inboundMessage {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	return inboundMessage{Type: msgType, Data: raw}
}

func columnIDs(t *testing.T, raw json.RawMessage, status database.Status) []string {
	t.Helper()
	var cols board.Columns
	require.NoError(t, json.Unmarshal(raw, &cols))
	ids := []string{}
	for _, task := range cols.Get(status) {
		ids = append(ids, task.ID)
	}
	return ids
}

func TestHubRoutesByUser(t *testing.T) {
	hub := runHub(t)
	a1, a2, b1 := testClient(hub, "a@example.com"), testClient(hub, "a@example.com"), testClient(hub, "b@example.com")
	for _, c := range []*Client{a1, a2, b1} {
		hub.Register(c)
	}

	hub.Publish("a@example.com", a1, Event{Type: EventBoardChanged, ProjectID: "p1"})
	hub.Notify("a@example.com", Event{Type: EventTasksChanged})
	hub.Notify("b@example.com", Event{Type: EventProjectUpdated})

	assert.Equal(t, EventBoardChanged, nextMessage(t, a2).Type)
	assert.Equal(t, EventTasksChanged, nextMessage(t, a2).Type)
	assert.Equal(t, EventTasksChanged, nextMessage(t, a1).Type, "publisher is excluded")
	assert.Equal(t, EventProjectUpdated, nextMessage(t, b1).Type)
}

func TestHubClosesClientsOnShutdown(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	c := testClient(hub, testUser)
	hub.Register(c)
	cancel()
	<-hub.done

	_, ok := <-c.send
	assert.False(t, ok)
	assert.False(t, c.enqueue([]byte("late")))

	// Registering after shutdown closes the client instead of blocking.
	late := testClient(hub, testUser)
	hub.Register(late)
	_, ok = <-late.send
	assert.False(t, ok)
}

func TestHubUnregisterClosesClient(t *testing.T) {
	hub := runHub(t)
	c := testClient(hub, testUser)
	hub.Register(c)
	hub.Unregister(c)

	_, ok := <-c.send
	assert.False(t, ok)
}

func newBoardClient(t *testing.T, hub *Hub, store *fakeBoardStore) *Client {
	t.Helper()
	c, err := NewClient(userCtx(), hub, nil, NewBoards(store), "", WithPersistTimeout(time.Second))
	require.NoError(t, err)
	t.Cleanup(c.cancel)
	return c
}

func boardFixture() *fakeBoardStore {
	return &fakeBoardStore{tasks: []database.Task{
		{ID: "A", Status: database.StatusTodo},
		{ID: "B", Status: database.StatusTodo, Position: 1},
		{ID: "X", Status: database.StatusDone},
	}}
}

func TestNewClientRequiresUser(t *testing.T) {
	_, err := NewClient(context.Background(), NewHub(), nil, NewBoards(boardFixture()), "")
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestClientDragAcrossColumns(t *testing.T) {
	hub := runHub(t)
	store := boardFixture()
	c := newBoardClient(t, hub, store)
	peer := testClient(hub, testUser)
	hub.Register(c)
	hub.Register(peer)

	snapshot := nextMessage(t, c)
	assert.Equal(t, MsgSnapshot, snapshot.Type)
	assert.Equal(t, []string{"A", "B"}, columnIDs(t, snapshot.Data, database.StatusTodo))

	done := database.StatusDone
	c.handle(inbound(t, MsgDragStart, map[string]string{"id": "A"}))
	c.handle(inbound(t, MsgDragOver, map[string]any{"target": wireTarget{Status: &done}}))
	c.handle(inbound(t, MsgDragEnd, map[string]any{"target": wireTarget{Status: &done}}))

	preview := nextMessage(t, c)
	assert.Equal(t, MsgPreview, preview.Type)
	assert.Equal(t, []string{"X", "A"}, columnIDs(t, preview.Data, database.StatusDone))

	commit := nextMessage(t, c)
	assert.Equal(t, MsgCommit, commit.Type)
	assert.Equal(t, []string{"B"}, columnIDs(t, commit.Data, database.StatusTodo))
	assert.Equal(t, []string{"X", "A"}, columnIDs(t, commit.Data, database.StatusDone))

	assert.Equal(t, EventBoardChanged, nextMessage(t, peer).Type)
	// The register round trip waits for the hub to finish the broadcast.
	hub.Register(testClient(hub, "barrier@example.com"))
	assert.Empty(t, c.send, "the dragging view does not get its own change event")

	c.persister.Wait()
	require.Len(t, store.batches, 1)
	assert.Equal(t, []database.PositionUpdate{
		{ID: "B", Status: database.StatusTodo, Position: 0},
		{ID: "X", Status: database.StatusDone, Position: 0},
		{ID: "A", Status: database.StatusDone, Position: 1},
	}, store.batches[0])
}

func TestClientDropOutsideCancels(t *testing.T) {
	store := boardFixture()
	c := newBoardClient(t, NewHub(), store)
	nextMessage(t, c)

	done := database.StatusDone
	c.handle(inbound(t, MsgDragStart, map[string]string{"id": "A"}))
	c.handle(inbound(t, MsgDragOver, map[string]any{"target": wireTarget{Status: &done}}))
	c.handle(inboundMessage{Type: MsgDragEnd})

	assert.Equal(t, MsgPreview, nextMessage(t, c).Type)
	restored := nextMessage(t, c)
	assert.Equal(t, MsgPreview, restored.Type)
	assert.Equal(t, []string{"A", "B"}, columnIDs(t, restored.Data, database.StatusTodo))
	assert.Equal(t, board.Idle, c.session.State())

	c.persister.Wait()
	assert.Empty(t, store.batches)
}

func TestClientReportsPersistFailure(t *testing.T) {
	store := boardFixture()
	store.err = errors.New("disk full")
	c := newBoardClient(t, NewHub(), store)
	nextMessage(t, c)

	c.handle(inbound(t, MsgDragStart, map[string]string{"id": "B"}))
	c.handle(inbound(t, MsgDragEnd, map[string]any{"target": wireTarget{ID: "A"}}))
	c.persister.Wait()

	assert.Equal(t, MsgCommit, nextMessage(t, c).Type)
	failure := nextMessage(t, c)
	assert.Equal(t, MsgPersistError, failure.Type)
	assert.Contains(t, string(failure.Data), "disk full")
}

func TestClientRejectsBadGestures(t *testing.T) {
	c := newBoardClient(t, NewHub(), boardFixture())
	nextMessage(t, c)

	c.handle(inbound(t, MsgDragOver, map[string]any{"target": wireTarget{ID: "A"}}))
	msg := nextMessage(t, c)
	assert.Equal(t, MsgError, msg.Type)
	assert.Contains(t, string(msg.Data), MsgDragOver)

	c.handle(inbound(t, MsgDragStart, map[string]string{"id": "nope"}))
	assert.Equal(t, MsgError, nextMessage(t, c).Type)

	c.handle(inbound(t, MsgDragStart, map[string]string{}))
	assert.Equal(t, MsgError, nextMessage(t, c).Type)

	c.handle(inbound(t, MsgPing, nil))
	assert.Equal(t, MsgPong, nextMessage(t, c).Type)
}

func TestClientRefreshReplacesBoard(t *testing.T) {
	store := boardFixture()
	c := newBoardClient(t, NewHub(), store)
	nextMessage(t, c)

	c.handle(inbound(t, MsgDragStart, map[string]string{"id": "A"}))
	store.tasksMu.Lock()
	store.tasks = append(store.tasks, database.Task{ID: "N", Status: database.StatusInProgress})
	store.tasksMu.Unlock()

	c.handle(inboundMessage{Type: MsgRefresh})
	snapshot := nextMessage(t, c)
	assert.Equal(t, MsgSnapshot, snapshot.Type)
	assert.Equal(t, []string{"N"}, columnIDs(t, snapshot.Data, database.StatusInProgress))
	assert.Equal(t, board.Idle, c.session.State())
}

func TestWireTargetMidpoint(t *testing.T) {
	y := func(v float64) *float64 { return &v }

	below, err := (&wireTarget{ID: "B", PointerY: y(130), Top: 100, Height: 40}).target()
	require.NoError(t, err)
	assert.Equal(t, board.ItemTarget("B", true), below)

	above, err := (&wireTarget{ID: "B", PointerY: y(115), Top: 100, Height: 40, After: true}).target()
	require.NoError(t, err)
	assert.Equal(t, board.ItemTarget("B", false), above)

	_, err = (&wireTarget{}).target()
	assert.Error(t, err)
	var missing *wireTarget
	_, err = missing.target()
	assert.Error(t, err)
}
