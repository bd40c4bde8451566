package models

import "time"

type User struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	Email        string     `gorm:"uniqueIndex;size:254;not null" json:"email"`
	PasswordHash string     `gorm:"not null" json:"-"`
	IsVerified   bool       `gorm:"not null;default:false" json:"isVerified"`
	OTPHash      string     `gorm:"size:128" json:"-"`
	OTPExpiry    *time.Time `json:"-"`
	RefreshToken string     `gorm:"size:1024" json:"-"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"-"`
}

// Room 是两个用户之间唯一的会话，User1ID 始终小于 User2ID。
type Room struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	User1ID   uint      `gorm:"uniqueIndex:idx_room_pair;not null" json:"user1Id"`
	User2ID   uint      `gorm:"uniqueIndex:idx_room_pair;index;not null" json:"user2Id"`
	CreatedAt time.Time `json:"createdAt"`
}

// HasParticipant 判断用户是否为房间的两名成员之一。
func (r Room) HasParticipant(userID uint) bool {
	return userID != 0 && (r.User1ID == userID || r.User2ID == userID)
}

type Message struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	RoomID    uint      `gorm:"index:idx_msg_room_id;not null" json:"roomId"`
	SenderID  uint      `gorm:"index;not null" json:"senderId"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// RoomSummary 是大厅视图中的一项：房间及其最近一条消息。
type RoomSummary struct {
	Room
	LastMessage *Message `json:"lastMessage"`
}
