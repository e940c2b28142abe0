package service

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// 业务层通用错误，handler 可根据错误类型映射到合适的 HTTP 状态码。
// 授权与引用类失败一律以错误值返回，绝不静默吞掉。
var (
	ErrUsernameTaken      = errors.New("username taken")
	ErrEmailTaken         = errors.New("email already in use")
	ErrPhoneTaken         = errors.New("phone number already in use")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrRoomNotFound       = errors.New("room not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrNotAMember         = errors.New("not an active member of room")
	ErrMembershipNotFound = errors.New("membership not found")
	ErrDuplicateRoomName  = errors.New("room name taken")
	ErrInvalidStatus      = errors.New("invalid status")
	ErrInvalidRole        = errors.New("invalid role")
	ErrInvalidMessageType = errors.New("invalid message type")
	ErrInvalidRoomType    = errors.New("invalid room type")
	ErrNotRoomAdmin       = errors.New("not a room admin")
)

// isUniqueViolation 识别唯一约束冲突。gorm 开了 TranslateError 后多数方言
// 会给出 ErrDuplicatedKey，字符串匹配兜底覆盖未翻译的驱动。
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "UNIQUE constraint failed")
}
