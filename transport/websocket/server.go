package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/rocketscienceinc/ultimate-tictactoe/internal/entity"
	"github.com/rocketscienceinc/ultimate-tictactoe/internal/pkg"
	"github.com/rocketscienceinc/ultimate-tictactoe/internal/protocol"
	"github.com/rocketscienceinc/ultimate-tictactoe/internal/tictactoe"
)

const writeTimeout = 10 * time.Second

type roomManager interface {
	CreateRoom(ctx context.Context, playerID string) (*entity.Room, error)
	JoinRoom(ctx context.Context, code, playerID string) (*entity.Room, error)
	MakeMove(ctx context.Context, playerID string, symbol entity.Symbol, move tictactoe.Move) (*entity.Room, error)
	LeaveRoom(ctx context.Context, playerID, code string) (*entity.Room, error)
	Disconnect(ctx context.Context, playerID string) (*entity.Room, error)
}

type handlerFunc func(ctx context.Context, playerID string, msg protocol.Message) error

// Server is the room server endpoint: it pairs clients in rooms and relays validated moves.
type Server struct {
	logger *slog.Logger
	rooms  roomManager

	handlers map[string]handlerFunc

	connections      map[string]*websocket.Conn
	connectionsMutex sync.RWMutex
}

func New(logger *slog.Logger, rooms roomManager) *Server {
	server := &Server{
		logger: logger.With("component", "websocket"),
		rooms:  rooms,

		handlers:    make(map[string]handlerFunc),
		connections: make(map[string]*websocket.Conn),
	}

	server.handlers[protocol.TypeCreateRoom] = server.handleCreateRoom
	server.handlers[protocol.TypeJoinRoom] = server.handleJoinRoom
	server.handlers[protocol.TypeSendMove] = server.handleSendMove
	server.handlers[protocol.TypeLeaveRoom] = server.handleLeaveRoom

	return server
}

// Router - returns the HTTP handler serving the /ws endpoint.
func (that *Server) Router() http.Handler {
	router := chi.NewRouter()
	router.Get("/ws", that.serveWS)

	return router
}

// Start - starts WebSocket server and stops it when ctx is done.
func (that *Server) Start(ctx context.Context, port string) error {
	// no read or write timeouts: they would also apply to hijacked websocket connections
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           that.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       30 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			that.logger.Error("failed to shut down server", "error", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// serveWS - upgrades the connection and processes its messages until it is closed.
func (that *Server) serveWS(writer http.ResponseWriter, req *http.Request) {
	log := that.logger.With("method", "serveWS")

	conn, err := websocket.Accept(writer, req, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		log.Error("failed to accept websocket", "error", err)
		return
	}

	playerID := pkg.GenerateNewSessionID()
	log = log.With("playerID", playerID)

	that.connectionsMutex.Lock()
	that.connections[playerID] = conn
	that.connectionsMutex.Unlock()

	log.Info("WebSocket connection established")

	defer func() {
		that.connectionsMutex.Lock()
		delete(that.connections, playerID)
		that.connectionsMutex.Unlock()

		that.handleDisconnect(playerID)

		_ = conn.Close(websocket.StatusNormalClosure, "bye")
	}()

	if err = that.handleMessages(req.Context(), playerID, conn); err != nil {
		log.Info("connection closed", "reason", err)
	}
}

// handleMessages - processes messages from the client.
func (that *Server) handleMessages(ctx context.Context, playerID string, conn *websocket.Conn) error {
	log := that.logger.With("method", "handleMessages", "playerID", playerID)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		var msg protocol.Message
		if err = json.Unmarshal(data, &msg); err != nil {
			log.Warn("failed to unmarshal message", "error", err)
			that.sendErrorResponse(ctx, playerID, "", "malformed message")

			continue
		}

		handler, ok := that.handlers[msg.Type]
		if !ok {
			log.Warn("unknown message type", "type", msg.Type)
			that.sendErrorResponse(ctx, playerID, msg.Type, "unknown message type")

			continue
		}

		if err = handler(ctx, playerID, msg); err != nil {
			log.Error("error processing message", "type", msg.Type, "error", err)
		}
	}
}

// handleDisconnect - closes the room of a gone player and tells the opponent.
func (that *Server) handleDisconnect(playerID string) {
	log := that.logger.With("method", "handleDisconnect", "playerID", playerID)

	// the request context is already done
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	room, err := that.rooms.Disconnect(ctx, playerID)
	if err != nil {
		log.Error("failed to disconnect player", "error", err)
	}

	if room == nil {
		return
	}

	that.notifyOpponent(ctx, room, playerID, "opponent disconnected")
}

func (that *Server) notifyOpponent(ctx context.Context, room *entity.Room, playerID, text string) {
	opponent, ok := room.Opponent(playerID)
	if !ok {
		return
	}

	that.sendErrorResponse(ctx, opponent.ID, protocol.TypeLeaveRoom, text)
}

func (that *Server) sendMessage(ctx context.Context, playerID, msgType string, body any) error {
	that.connectionsMutex.RLock()
	conn, ok := that.connections[playerID]
	that.connectionsMutex.RUnlock()

	if !ok {
		return fmt.Errorf("connection not found for player %s", playerID)
	}

	msg, err := protocol.New(msgType, body)
	if err != nil {
		return err
	}

	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	if err = wsjson.Write(writeCtx, conn, msg); err != nil {
		return fmt.Errorf("failed to write %s: %w", msgType, err)
	}

	return nil
}

// sendErrorResponse - answers a failed request with an ERROR naming the request type.
func (that *Server) sendErrorResponse(ctx context.Context, playerID, subType, text string) {
	err := that.sendMessage(ctx, playerID, protocol.TypeError, protocol.ErrorBody{Message: text, SubType: subType})
	if err != nil {
		that.logger.Error("failed to send error response", "playerID", playerID, "error", err)
	}
}
