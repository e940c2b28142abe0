package ws

import (
	"time"

	"github.com/vnyvk2/ChatServiceApp/internal/models"
)

// 广播给订阅端的事件种类。
const (
	EventMessage      = "MESSAGE"
	EventUserJoined   = "USER_JOINED"
	EventUserLeft     = "USER_LEFT"
	EventTyping       = "TYPING"
	EventStatusUpdate = "STATUS_UPDATE"
	EventError        = "ERROR"
)

// UserRef 只携带可公开的用户字段，绝不含凭证材料。
type UserRef struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Status      string `json:"status,omitempty"`
}

// Ref 从 User 裁剪出公开字段。
func Ref(u *models.User) *UserRef {
	if u == nil {
		return nil
	}
	return &UserRef{Username: u.Username, DisplayName: u.DisplayName, Status: u.Status}
}

// Event 是所有房间与用户队列广播的统一载荷，时间戳由服务端写入。
type Event struct {
	Type      string   `json:"type"`
	RoomID    uint     `json:"room_id,omitempty"`
	User      *UserRef `json:"user,omitempty"`
	Text      string   `json:"text,omitempty"`
	Message   string   `json:"message,omitempty"`
	IsTyping  *bool    `json:"is_typing,omitempty"`
	Timestamp int64    `json:"timestamp"`
}

// NewEvent 填好类型、房间与服务端时间戳。
func NewEvent(typ string, roomID uint) Event {
	return Event{Type: typ, RoomID: roomID, Timestamp: time.Now().UnixMilli()}
}
