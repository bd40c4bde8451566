package access

import (
	"context"
	"errors"

	"pairchat/internal/models"
	"pairchat/internal/store"
)

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrAccessDenied = errors.New("access denied")
)

// RoomFinder 按 id 读取房间，找不到时返回 store.ErrNotFound。
type RoomFinder interface {
	RoomByID(ctx context.Context, id uint) (*models.Room, error)
}

// Guard 确认用户是房间的两名成员之一，失败时一律拒绝。
type Guard struct {
	rooms RoomFinder
}

func NewGuard(rooms RoomFinder) *Guard {
	return &Guard{rooms: rooms}
}

// Admit 读取房间并校验成员身份，用于加入房间与读取历史。
func (g *Guard) Admit(ctx context.Context, roomID, userID uint) (*models.Room, error) {
	if roomID == 0 {
		return nil, ErrRoomNotFound
	}
	room, err := g.rooms.RoomByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	if err := Participant(room, userID); err != nil {
		return nil, err
	}
	return room, nil
}

// Participant 是唯一的成员判定，每次写入消息前也会复用。
func Participant(room *models.Room, userID uint) error {
	if room == nil {
		return ErrRoomNotFound
	}
	if !room.HasParticipant(userID) {
		return ErrAccessDenied
	}
	return nil
}
