package websocket

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/rocketscienceinc/ultimate-tictactoe/internal/apperror"
	"github.com/rocketscienceinc/ultimate-tictactoe/internal/entity"
	"github.com/rocketscienceinc/ultimate-tictactoe/internal/protocol"
	"github.com/rocketscienceinc/ultimate-tictactoe/internal/repository"
	"github.com/rocketscienceinc/ultimate-tictactoe/internal/session"
	"github.com/rocketscienceinc/ultimate-tictactoe/internal/usecase"
)

const (
	waitFor = 5 * time.Second
	tick    = 10 * time.Millisecond
)

// memStore keeps JSON copies like Redis does, so callers never share pointers.
type memStore struct {
	mu     sync.Mutex
	values map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{values: make(map[string][]byte)}
}

func (that *memStore) put(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}

	that.mu.Lock()
	defer that.mu.Unlock()
	that.values[key] = raw

	return nil
}

func (that *memStore) get(key string, value any) (bool, error) {
	that.mu.Lock()
	raw, ok := that.values[key]
	that.mu.Unlock()

	if !ok {
		return false, nil
	}

	return true, json.Unmarshal(raw, value)
}

func (that *memStore) del(key string) bool {
	that.mu.Lock()
	defer that.mu.Unlock()

	_, ok := that.values[key]
	delete(that.values, key)

	return ok
}

type memRooms struct{ store *memStore }

func (that memRooms) CreateOrUpdate(_ context.Context, room *entity.Room) error {
	return that.store.put("room:"+room.Code, room)
}

func (that memRooms) GetByCode(_ context.Context, code string) (*entity.Room, error) {
	var room entity.Room
	ok, err := that.store.get("room:"+code, &room)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperror.ErrRoomNotFound
	}
	return &room, nil
}

func (that memRooms) DeleteByCode(_ context.Context, code string) error {
	if !that.store.del("room:" + code) {
		return apperror.ErrRoomNotFound
	}
	return nil
}

func (that memRooms) Exists(_ context.Context, code string) (bool, error) {
	var room entity.Room
	return that.store.get("room:"+code, &room)
}

type memPlayers struct{ store *memStore }

func (that memPlayers) CreateOrUpdate(_ context.Context, player *entity.Player) error {
	return that.store.put("player:"+player.ID, player)
}

func (that memPlayers) GetByID(_ context.Context, id string) (*entity.Player, error) {
	var player entity.Player
	ok, err := that.store.get("player:"+id, &player)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, repository.ErrPlayerNotFound
	}
	return &player, nil
}

func (that memPlayers) DeleteByID(_ context.Context, id string) error {
	that.store.del("player:" + id)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// startServer returns the websocket URL of a room server backed by memory.
func startServer(t *testing.T) string {
	t.Helper()

	store := newMemStore()
	manager := usecase.NewRoomManager(testLogger(), memPlayers{store}, memRooms{store}, usecase.DefaultCodeAttempts)

	srv := httptest.NewServer(New(testLogger(), manager).Router())
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

// connectPlayer runs an online coordinator over a real client connection.
func connectPlayer(ctx context.Context, t *testing.T, url string) *session.Coordinator {
	t.Helper()

	return connectPlayerWith(ctx, t, url, session.Options{JoinTimeout: 2 * time.Second}, nil)
}

func connectPlayerWith(
	ctx context.Context, t *testing.T, url string, opts session.Options, wrap func(Handler) Handler,
) *session.Coordinator {
	t.Helper()

	client := NewClient(testLogger(), url, 50*time.Millisecond)
	coordinator := session.NewOnline(testLogger(), client, opts)
	t.Cleanup(coordinator.Close)

	var handler Handler = coordinator
	if wrap != nil {
		handler = wrap(coordinator)
	}

	go func() {
		_ = client.Run(ctx, handler)
	}()

	readyCtx, cancel := context.WithTimeout(ctx, waitFor)
	defer cancel()
	require.NoError(t, client.WaitReady(readyCtx))

	return coordinator
}

// slowStart holds back game starts, like a congested link would.
type slowStart struct {
	next  Handler
	delay time.Duration
}

func (that slowStart) HandleMessage(msg protocol.Message) error {
	if msg.Type == protocol.TypeAssignSymbolAndStartGame {
		time.Sleep(that.delay)
	}
	return that.next.HandleMessage(msg)
}

func dialRaw(ctx context.Context, t *testing.T, url string) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close(websocket.StatusNormalClosure, "")
	})

	return conn
}

func readMessage(ctx context.Context, t *testing.T, conn *websocket.Conn) protocol.Message {
	t.Helper()

	readCtx, cancel := context.WithTimeout(ctx, waitFor)
	defer cancel()

	var msg protocol.Message
	require.NoError(t, wsjson.Read(readCtx, conn, &msg))

	return msg
}

func TestServer_OnlineGame(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	url := startServer(t)

	// Given: two connected players
	host := connectPlayer(ctx, t, url)
	guest := connectPlayer(ctx, t, url)

	// When: the host creates a room
	require.NoError(t, host.CreateRoom(ctx))

	// Then: the host receives a room code
	require.Eventually(t, func() bool {
		return host.Snapshot().Phase == session.PhaseAwaitingOpponent
	}, waitFor, tick)

	code := host.Snapshot().RoomCode
	assert.Regexp(t, `^[A-Z0-9]{6}$`, code)

	// When: the guest joins with that code
	require.NoError(t, guest.JoinRoom(ctx, strings.ToLower(code)))

	// Then: both players are in game with opposite symbols
	require.Eventually(t, func() bool {
		return host.Snapshot().Phase == session.PhaseInGame && guest.Snapshot().Phase == session.PhaseInGame
	}, waitFor, tick)

	hostSymbol := host.Snapshot().LocalSymbol
	assert.Equal(t, hostSymbol.Opponent(), guest.Snapshot().LocalSymbol)
	assert.Equal(t, code, guest.Snapshot().RoomCode)

	playerX, playerO := host, guest
	if hostSymbol == entity.PlayerO {
		playerX, playerO = guest, host
	}

	// When: X plays board 0 cell 4
	require.NoError(t, playerX.AttemptMove(ctx, 0, 4))

	// Then: both sides apply the relayed move
	require.Eventually(t, func() bool {
		return playerX.Snapshot().State.Boards[0][4] == entity.PlayerX &&
			playerO.Snapshot().State.Boards[0][4] == entity.PlayerX
	}, waitFor, tick)

	assert.Equal(t, playerX.Snapshot().State, playerO.Snapshot().State)
	assert.Nil(t, playerX.Snapshot().Pending)
	assert.True(t, playerO.Snapshot().IsLocalTurn())

	// Then: O cannot leave the active board
	require.ErrorIs(t, playerO.AttemptMove(ctx, 1, 0), apperror.ErrWrongBoard)

	// When: O quits
	require.NoError(t, playerO.Quit(ctx))

	// Then: X is told the opponent left and its room session ends
	require.Eventually(t, func() bool {
		snap := playerX.Snapshot()
		return snap.Phase == session.PhaseIdle && snap.Error == "opponent left the room"
	}, waitFor, tick)
}

func TestServer_JoinUnknownRoom(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Given: a connected player
	player := connectPlayer(ctx, t, startServer(t))

	// When: joining a room that does not exist
	require.NoError(t, player.JoinRoom(ctx, "ZZZZZZ"))

	// Then: the join is reverted with the server's error
	require.Eventually(t, func() bool {
		snap := player.Snapshot()
		return !snap.JoiningRoom && snap.Error == apperror.ErrRoomNotFound.Error()
	}, waitFor, tick)
}

func TestServer_JoinAnsweredAfterTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	url := startServer(t)

	// Given: a waiting host and a guest whose game start arrives after its join timeout
	host := connectPlayer(ctx, t, url)
	guest := connectPlayerWith(ctx, t, url, session.Options{JoinTimeout: 50 * time.Millisecond},
		func(next Handler) Handler {
			return slowStart{next: next, delay: 200 * time.Millisecond}
		})

	require.NoError(t, host.CreateRoom(ctx))
	require.Eventually(t, func() bool {
		return host.Snapshot().Phase == session.PhaseAwaitingOpponent
	}, waitFor, tick)

	// When: the guest joins and gives up before the start reaches it
	require.NoError(t, guest.JoinRoom(ctx, host.Snapshot().RoomCode))

	// Then: the guest releases the room it was seated in
	require.Eventually(t, func() bool {
		snap := host.Snapshot()
		return snap.Phase == session.PhaseIdle && snap.Error == "opponent left the room"
	}, waitFor, tick)

	snap := guest.Snapshot()
	assert.False(t, snap.JoiningRoom)
	assert.Equal(t, session.PhaseIdle, snap.Phase)

	// Then: the guest can open a room of its own
	require.NoError(t, guest.CreateRoom(ctx))
	require.Eventually(t, func() bool {
		return guest.Snapshot().Phase == session.PhaseAwaitingOpponent
	}, waitFor, tick)
	assert.NotEmpty(t, guest.Snapshot().RoomCode)
}

func TestServer_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("Malformed message", func(t *testing.T) {
		conn := dialRaw(ctx, t, startServer(t))

		require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("{not json")))

		msg := readMessage(ctx, t, conn)
		require.Equal(t, protocol.TypeError, msg.Type)

		var body protocol.ErrorBody
		require.NoError(t, msg.Decode(&body))
		assert.Equal(t, "malformed message", body.Message)
	})

	t.Run("Move outside of a room", func(t *testing.T) {
		conn := dialRaw(ctx, t, startServer(t))

		move, err := protocol.New(protocol.TypeSendMove, protocol.MoveBody{Player: entity.PlayerX, B: 0, I: 0})
		require.NoError(t, err)
		require.NoError(t, wsjson.Write(ctx, conn, move))

		msg := readMessage(ctx, t, conn)

		var body protocol.ErrorBody
		require.NoError(t, msg.Decode(&body))
		assert.Equal(t, protocol.TypeSendMove, body.SubType)
		assert.Equal(t, apperror.ErrNotInRoom.Error(), body.Message)
	})

	t.Run("Opponent disconnect", func(t *testing.T) {
		url := startServer(t)
		host := dialRaw(ctx, t, url)
		guest, _, err := websocket.Dial(ctx, url, nil)
		require.NoError(t, err)

		// Given: a started game
		create, err := protocol.New(protocol.TypeCreateRoom, nil)
		require.NoError(t, err)
		require.NoError(t, wsjson.Write(ctx, host, create))

		var created protocol.RoomBody
		require.NoError(t, readMessage(ctx, t, host).Decode(&created))

		join, err := protocol.New(protocol.TypeJoinRoom, created)
		require.NoError(t, err)
		require.NoError(t, wsjson.Write(ctx, guest, join))

		assert.Equal(t, protocol.TypeAssignSymbolAndStartGame, readMessage(ctx, t, host).Type)

		// When: the guest drops the connection
		require.NoError(t, guest.Close(websocket.StatusNormalClosure, ""))

		// Then: the host gets a LEAVE_ROOM error
		msg := readMessage(ctx, t, host)

		var body protocol.ErrorBody
		require.NoError(t, msg.Decode(&body))
		assert.Equal(t, protocol.TypeLeaveRoom, body.SubType)
		assert.Equal(t, "opponent disconnected", body.Message)
	})
}

func TestClient_SendWithoutConnection(t *testing.T) {
	client := NewClient(testLogger(), "ws://127.0.0.1:1/ws", time.Millisecond)

	err := client.Send(context.Background(), protocol.Message{Type: protocol.TypeCreateRoom})

	require.ErrorIs(t, err, ErrNotConnected)
}
