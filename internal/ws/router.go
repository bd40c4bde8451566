package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"pairchat/internal/access"
	"pairchat/internal/metrics"
	"pairchat/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const persistTimeout = 5 * time.Second

// Store 是实时路由需要的持久化能力。
type Store interface {
	CreateMessage(ctx context.Context, roomID, senderID uint, content string) (*models.Message, error)
	ListRoomsForUser(ctx context.Context, userID uint) ([]models.RoomSummary, error)
	ListUsers(ctx context.Context) ([]models.User, error)
}

// Admitter 校验用户能否进入房间。
type Admitter interface {
	Admit(ctx context.Context, roomID, userID uint) (*models.Room, error)
}

// Router 处理所有 WebSocket 连接：认证、按路径确定范围、转发消息。
type Router struct {
	authn    *Authenticator
	guard    Admitter
	store    Store
	registry *Registry
	upgrader websocket.Upgrader
	validate *validator.Validate
	locks    *roomLocks
}

func NewRouter(authn *Authenticator, guard Admitter, store Store, registry *Registry, allowedOrigins []string) *Router {
	rt := &Router{
		authn:    authn,
		guard:    guard,
		store:    store,
		registry: registry,
		validate: validator.New(),
		locks:    newRoomLocks(),
	}
	rt.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return rt
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, a := range allowed {
			if strings.EqualFold(strings.TrimRight(a, "/"), origin) {
				return true
			}
		}
		return false
	}
}

type routeKind int

const (
	routeUnknown routeKind = iota
	routeUsers
	routeLobby
	routeRoom
)

// parseRoute 解析路径；房间 id 非法时返回 routeRoom 与 0。
func parseRoute(path string) (routeKind, uint) {
	switch {
	case path == "/users":
		return routeUsers, 0
	case path == "/rooms":
		return routeLobby, 0
	case strings.HasPrefix(path, "/room/"):
		id, err := strconv.ParseUint(strings.TrimPrefix(path, "/room/"), 10, 32)
		if err != nil {
			return routeRoom, 0
		}
		return routeRoom, uint(id)
	default:
		return routeUnknown, 0
	}
}

// ServeHTTP 先完成握手再做认证与路由，确保拒绝时客户端能收到关闭码。
func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wc, err := rt.upgrader.Upgrade(w, r, nil)
	if err != nil {
		metrics.WsRejectedTotal.WithLabelValues("upgrade").Inc()
		log.Debug().Err(err).Str("path", r.URL.Path).Msg("websocket upgrade failed")
		return
	}

	userID, err := rt.authn.Authenticate(r)
	if err != nil {
		if errors.Is(err, ErrMissingCredential) {
			reject(wc, CloseMissingCredential, "missing_credential", "authentication required")
		} else {
			reject(wc, CloseInvalidCredential, "invalid_credential", "invalid or expired token")
		}
		return
	}

	kind, roomID := parseRoute(r.URL.Path)
	switch kind {
	case routeUsers:
		rt.serveUsers(r.Context(), wc, userID)
	case routeLobby:
		rt.serveLobby(r.Context(), wc, userID)
	case routeRoom:
		rt.serveRoom(r.Context(), wc, userID, roomID)
	default:
		reject(wc, CloseUnknownRoute, "unknown_route", "unknown route")
	}
}

func reject(wc *websocket.Conn, code int, reason, text string) {
	metrics.WsRejectedTotal.WithLabelValues(reason).Inc()
	msg := websocket.FormatCloseMessage(code, text)
	_ = wc.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	_ = wc.Close()
}

func (rt *Router) serveRoom(ctx context.Context, wc *websocket.Conn, userID, roomID uint) {
	room, err := rt.guard.Admit(ctx, roomID, userID)
	switch {
	case errors.Is(err, access.ErrRoomNotFound):
		reject(wc, CloseRoomNotFound, "room_not_found", "room not found")
		return
	case errors.Is(err, access.ErrAccessDenied):
		reject(wc, CloseAccessDenied, "access_denied", "access denied")
		return
	case err != nil:
		log.Error().Err(err).Uint("room_id", roomID).Msg("room admission failed")
		reject(wc, websocket.CloseInternalServerErr, "internal", "internal error")
		return
	}

	c := newConn(wc, userID, RoomScope{RoomID: room.ID})
	rt.registry.Add(c)
	defer rt.registry.Remove(c)
	defer c.Close()

	log.Info().Str("conn", c.id).Uint("user_id", userID).Uint("room_id", room.ID).Msg("room connection opened")
	go c.writePump()
	c.readPump(func(data []byte) { rt.handleInbound(c, room, data) })
	log.Info().Str("conn", c.id).Uint("user_id", userID).Uint("room_id", room.ID).Msg("room connection closed")
}

func (rt *Router) serveLobby(ctx context.Context, wc *websocket.Conn, userID uint) {
	c := newConn(wc, userID, LobbyScope{})
	// 先注册再读快照：期间的更新留在发送队列里，排在快照之后发出。
	rt.registry.Add(c)
	defer rt.registry.Remove(c)
	defer c.Close()

	snapshot := Event{Type: EventRoomsList}
	rooms, err := rt.store.ListRoomsForUser(ctx, userID)
	if err != nil {
		log.Error().Err(err).Uint("user_id", userID).Msg("load rooms failed")
		snapshot = errorEvent("failed to load rooms")
	} else {
		snapshot.Data = rooms
	}
	if err := c.writeNow(snapshot); err != nil {
		log.Debug().Err(err).Str("conn", c.id).Msg("write rooms snapshot failed")
		_ = wc.Close()
		return
	}

	go c.writePump()
	c.readPump(nil)
}

func (rt *Router) serveUsers(ctx context.Context, wc *websocket.Conn, userID uint) {
	c := newConn(wc, userID, nil)
	defer c.Close()
	go c.writePump()

	users, err := rt.store.ListUsers(ctx)
	if err != nil {
		log.Error().Err(err).Msg("load users failed")
		sendTo(c, errorEvent("failed to load users"))
	} else {
		sendTo(c, Event{Type: EventAllUsers, Data: users})
	}
	c.readPump(nil)
}

// handleInbound 处理房间连接上的一条入站消息。
// 格式不合法的消息直接丢弃；处理失败时只向发送者回 ERROR。
func (rt *Router) handleInbound(c *Conn, room *models.Room, data []byte) {
	var in InboundMessage
	if err := json.Unmarshal(data, &in); err != nil {
		log.Debug().Err(err).Str("conn", c.id).Msg("drop malformed payload")
		return
	}
	in.Content = strings.TrimSpace(in.Content)
	if err := rt.validate.Struct(in); err != nil {
		log.Debug().Err(err).Str("conn", c.id).Msg("drop invalid payload")
		return
	}
	if err := access.Participant(room, c.userID); err != nil {
		log.Warn().Uint("user_id", c.userID).Uint("room_id", room.ID).Msg("sender is not a participant")
		sendTo(c, errorEvent("access denied"))
		return
	}

	unlock := rt.locks.lock(room.ID)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	msg, err := rt.store.CreateMessage(ctx, room.ID, c.userID, in.Content)
	if err != nil {
		log.Error().Err(err).Uint("room_id", room.ID).Uint("user_id", c.userID).Msg("persist message failed")
		sendTo(c, errorEvent("failed to send message"))
		return
	}
	metrics.WsMessagesTotal.Inc()

	rt.registry.Broadcast(Event{Type: EventNewMessage, Data: msg}, RoomPeers(room.ID, c))
	rt.registry.Broadcast(Event{Type: EventRoomUpdate, Data: RoomUpdate{RoomID: room.ID, LastMessage: msg}}, LobbyParticipants(room))
}

// roomLocks 为每个房间提供一把引用计数的互斥锁，无人使用时回收。
type roomLocks struct {
	mu sync.Mutex
	m  map[uint]*roomLock
}

type roomLock struct {
	sync.Mutex
	refs int
}

func newRoomLocks() *roomLocks {
	return &roomLocks{m: make(map[uint]*roomLock)}
}

func (l *roomLocks) lock(roomID uint) func() {
	l.mu.Lock()
	rl, ok := l.m[roomID]
	if !ok {
		rl = &roomLock{}
		l.m[roomID] = rl
	}
	rl.refs++
	l.mu.Unlock()

	rl.Lock()
	return func() {
		rl.Unlock()
		l.mu.Lock()
		rl.refs--
		if rl.refs == 0 {
			delete(l.m, roomID)
		}
		l.mu.Unlock()
	}
}

func (l *roomLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}
