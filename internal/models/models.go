package models

import "time"

// 用户在线状态，连接、断开或显式切换时更新。
const (
	StatusOnline  = "ONLINE"
	StatusOffline = "OFFLINE"
	StatusAway    = "AWAY"
)

// 房间类型。
const (
	RoomTypeGroup     = "GROUP_CHAT"
	RoomTypeDirect    = "DIRECT_MESSAGE"
	RoomTypeBroadcast = "BROADCAST"
)

// 成员角色。
const (
	RoleAdmin     = "ADMIN"
	RoleModerator = "MODERATOR"
	RoleMember    = "MEMBER"
)

// 消息类型。
const (
	MessageTypeText   = "TEXT"
	MessageTypeImage  = "IMAGE"
	MessageTypeFile   = "FILE"
	MessageTypeSystem = "SYSTEM"
)

// ValidStatus 判断状态值是否合法，任意合法状态之间都允许切换。
func ValidStatus(s string) bool {
	return s == StatusOnline || s == StatusOffline || s == StatusAway
}

// ValidRole 判断角色值是否合法。
func ValidRole(r string) bool {
	return r == RoleAdmin || r == RoleModerator || r == RoleMember
}

// ValidMessageType 判断消息类型是否合法。
func ValidMessageType(t string) bool {
	return t == MessageTypeText || t == MessageTypeImage || t == MessageTypeFile || t == MessageTypeSystem
}

type User struct {
	ID           uint    `gorm:"primaryKey"`
	Username     string  `gorm:"uniqueIndex;size:64;not null"`
	Email        string  `gorm:"uniqueIndex;size:128;not null"`
	PhoneNumber  *string `gorm:"uniqueIndex;size:32"`
	DisplayName  string  `gorm:"size:128;not null"`
	PasswordHash string  `gorm:"not null"`
	Status       string  `gorm:"size:16;not null;default:OFFLINE"`
	LastSeenAt   *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Room struct {
	ID          uint   `gorm:"primaryKey"`
	Name        string `gorm:"uniqueIndex;size:128;not null"`
	Description string `gorm:"size:512"`
	RoomType    string `gorm:"index;size:32;not null;default:GROUP_CHAT"`
	IsPrivate   bool   `gorm:"not null;default:false"`
	CreatedBy   uint   `gorm:"index;not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Membership 每个 (room, user) 至多一行，重复加入只做激活，不插新行。
type Membership struct {
	ID       uint   `gorm:"primaryKey"`
	RoomID   uint   `gorm:"uniqueIndex:uk_room_user;not null"`
	UserID   uint   `gorm:"uniqueIndex:uk_room_user;not null"`
	Role     string `gorm:"size:16;not null;default:MEMBER"`
	IsActive bool   `gorm:"not null;default:true"`
	JoinedAt time.Time
	LeftAt   *time.Time
}

// Message 内容落库前加密，创建时间写入后不再变更。
type Message struct {
	ID               uint      `gorm:"primaryKey"`
	RoomID           uint      `gorm:"index:idx_msg_room_created,priority:1;not null"`
	SenderID         uint      `gorm:"index;not null"`
	EncryptedContent string    `gorm:"type:text;not null"`
	MessageType      string    `gorm:"size:16;not null;default:TEXT"`
	CreatedAt        time.Time `gorm:"index:idx_msg_room_created,priority:2"`
}

type RefreshToken struct {
	ID        uint      `gorm:"primaryKey"`
	UserID    uint      `gorm:"index;not null"`
	Token     string    `gorm:"uniqueIndex;size:128;not null"`
	ExpiresAt time.Time `gorm:"index;not null"`
	RevokedAt *time.Time
	CreatedAt time.Time
}
