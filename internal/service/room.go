package service

import (
	"context"
	"errors"
	"time"

	"pairchat/internal/access"
	"pairchat/internal/models"
	"pairchat/internal/store"
)

// RoomService 封装房间与历史消息相关的业务逻辑。
type RoomService struct {
	store *store.Store
	guard *access.Guard
}

func NewRoomService(st *store.Store, guard *access.Guard) *RoomService {
	return &RoomService{store: st, guard: guard}
}

// GetOrCreate 返回当前用户与对方之间唯一的房间，不存在则创建。
func (s *RoomService) GetOrCreate(ctx context.Context, userID, otherID uint) (*models.Room, error) {
	if userID == otherID {
		return nil, ErrSameUser
	}
	if _, err := s.store.UserByID(ctx, otherID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	room, err := s.store.GetOrCreateRoom(ctx, userID, otherID)
	if errors.Is(err, store.ErrSameUser) {
		return nil, ErrSameUser
	}
	return room, err
}

// List 返回用户参与的房间及各自最近一条消息。
func (s *RoomService) List(ctx context.Context, userID uint) ([]models.RoomSummary, error) {
	return s.store.ListRoomsForUser(ctx, userID)
}

// MessageDTO 是对外输出的消息数据，附带发送者邮箱。
type MessageDTO struct {
	ID          uint      `json:"id"`
	RoomID      uint      `json:"roomId"`
	SenderID    uint      `json:"senderId"`
	SenderEmail string    `json:"senderEmail"`
	Content     string    `json:"content"`
	CreatedAt   time.Time `json:"createdAt"`
}

// History 分页查询房间消息，按 id 升序返回；只有房间成员可以读取。
func (s *RoomService) History(ctx context.Context, roomID, userID uint, limit int, beforeID uint) ([]MessageDTO, error) {
	room, err := s.guard.Admit(ctx, roomID, userID)
	switch {
	case errors.Is(err, access.ErrRoomNotFound):
		return nil, ErrRoomNotFound
	case errors.Is(err, access.ErrAccessDenied):
		return nil, ErrAccessDenied
	case err != nil:
		return nil, err
	}
	msgs, err := s.store.ListMessages(ctx, room.ID, limit, beforeID)
	if err != nil {
		return nil, err
	}
	emails, err := s.resolveSenders(ctx, room)
	if err != nil {
		return nil, err
	}
	out := make([]MessageDTO, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, MessageDTO{
			ID:          m.ID,
			RoomID:      m.RoomID,
			SenderID:    m.SenderID,
			SenderEmail: emails[m.SenderID],
			Content:     m.Content,
			CreatedAt:   m.CreatedAt,
		})
	}
	return out, nil
}

// resolveSenders 房间只有两名成员，直接按成员取邮箱。
func (s *RoomService) resolveSenders(ctx context.Context, room *models.Room) (map[uint]string, error) {
	emails := make(map[uint]string, 2)
	for _, id := range []uint{room.User1ID, room.User2ID} {
		u, err := s.store.UserByID(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, err
		}
		emails[id] = u.Email
	}
	return emails, nil
}
