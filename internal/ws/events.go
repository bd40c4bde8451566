package ws

import "pairchat/internal/models"

const (
	EventNewMessage = "NEW_MESSAGE"
	EventRoomUpdate = "ROOM_UPDATE"
	EventRoomsList  = "ROOMS_LIST"
	EventAllUsers   = "ALL_USERS"
	EventError      = "ERROR"
)

// 应用层关闭码，每种拒绝原因各不相同。
const (
	CloseUnknownRoute      = 4000
	CloseMissingCredential = 4001
	CloseInvalidCredential = 4002
	CloseAccessDenied      = 4003
	CloseRoomNotFound      = 4004
)

type Event struct {
	Type    string `json:"type"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

type RoomUpdate struct {
	RoomID      uint            `json:"roomId"`
	LastMessage *models.Message `json:"lastMessage"`
}

type InboundMessage struct {
	Content string `json:"content" validate:"required,max=4000"`
}

func errorEvent(msg string) Event {
	return Event{Type: EventError, Message: msg}
}
