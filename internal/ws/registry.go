package ws

import (
	"encoding/json"
	"sync"

	"pairchat/internal/metrics"
	"pairchat/internal/models"

	"github.com/rs/zerolog/log"
)

// Predicate 决定某个连接是否接收一次广播。
type Predicate func(*Conn) bool

// Registry 保存所有活跃连接。锁只保护 map，发送在锁外进行。
type Registry struct {
	mu    sync.RWMutex
	conns map[*Conn]struct{}
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[*Conn]struct{})}
}

func (r *Registry) Add(c *Conn) {
	r.mu.Lock()
	r.conns[c] = struct{}{}
	r.mu.Unlock()
	metrics.WsConnections.WithLabelValues(scopeKind(c.scope)).Inc()
}

// Remove 可重复调用，只有第一次会更新指标。
func (r *Registry) Remove(c *Conn) {
	r.mu.Lock()
	_, ok := r.conns[c]
	delete(r.conns, c)
	r.mu.Unlock()
	if ok {
		metrics.WsConnections.WithLabelValues(scopeKind(c.scope)).Dec()
	}
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

func (r *Registry) snapshot(match Predicate) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Conn, 0, len(r.conns))
	for c := range r.conns {
		if match(c) {
			out = append(out, c)
		}
	}
	return out
}

// Broadcast 把事件投递给所有匹配的连接，返回成功入队的数量。
// 缓冲区已满的连接会被跳过，不影响其他接收者。
func (r *Registry) Broadcast(ev Event, match Predicate) int {
	targets := r.snapshot(match)
	if len(targets) == 0 {
		return 0
	}
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("type", ev.Type).Msg("marshal event failed")
		return 0
	}
	sent := 0
	for _, c := range targets {
		if c.Enqueue(data) {
			sent++
			continue
		}
		metrics.WsDroppedTotal.Inc()
		log.Warn().Str("conn", c.id).Uint("user_id", c.userID).Str("type", ev.Type).Msg("send buffer full, event dropped")
	}
	metrics.WsDeliveriesTotal.WithLabelValues(ev.Type).Add(float64(sent))
	return sent
}

// RoomPeers 匹配同一房间内除 origin 之外的连接。
func RoomPeers(roomID uint, origin *Conn) Predicate {
	return func(c *Conn) bool {
		if c == origin {
			return false
		}
		s, ok := c.scope.(RoomScope)
		return ok && s.RoomID == roomID
	}
}

// LobbyParticipants 匹配房间两名成员的大厅连接。
func LobbyParticipants(room *models.Room) Predicate {
	return func(c *Conn) bool {
		if _, ok := c.scope.(LobbyScope); !ok {
			return false
		}
		return room.HasParticipant(c.userID)
	}
}

// sendTo 只投递给单个连接，用于快照与错误事件。
func sendTo(c *Conn, ev Event) bool {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("type", ev.Type).Msg("marshal event failed")
		return false
	}
	if !c.Enqueue(data) {
		metrics.WsDroppedTotal.Inc()
		return false
	}
	metrics.WsDeliveriesTotal.WithLabelValues(ev.Type).Inc()
	return true
}
