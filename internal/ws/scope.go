package ws

import "strconv"

// Scope 是连接的广播范围，只有 RoomScope 与 LobbyScope 两种取值。
type Scope interface {
	String() string
	isScope()
}

type RoomScope struct {
	RoomID uint
}

func (s RoomScope) String() string { return "room:" + strconv.FormatUint(uint64(s.RoomID), 10) }
func (RoomScope) isScope()         {}

type LobbyScope struct{}

func (LobbyScope) String() string { return "lobby" }
func (LobbyScope) isScope()       {}

// scopeKind 用作指标标签，避免按房间 id 产生高基数。
func scopeKind(s Scope) string {
	switch s.(type) {
	case RoomScope:
		return "room"
	case LobbyScope:
		return "lobby"
	default:
		return "none"
	}
}
