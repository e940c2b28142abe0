package service

import (
	"time"

	"github.com/vnyvk2/ChatServiceApp/internal/models"
	"github.com/vnyvk2/ChatServiceApp/internal/ws"

	"gorm.io/gorm"
)

// PresenceService 维护用户在线状态与 last-seen，状态真正变化时向该用户
// 活跃加入的每个房间各广播一条 STATUS_UPDATE。
type PresenceService struct {
	db      *gorm.DB
	hub     *ws.Hub
	members *MembershipService
}

func NewPresenceService(gdb *gorm.DB, hub *ws.Hub, members *MembershipService) *PresenceService {
	return &PresenceService{db: gdb, hub: hub, members: members}
}

// SetStatus 更新状态与 last-seen。同值重设不触发任何广播；
// 合法状态间的切换没有限制。
func (s *PresenceService) SetStatus(userID uint, status string) error {
	if !models.ValidStatus(status) {
		return ErrInvalidStatus
	}
	var user models.User
	if err := s.db.First(&user, userID).Error; err != nil {
		return ErrUserNotFound
	}
	old := user.Status
	now := time.Now()
	if err := s.db.Model(&user).Updates(map[string]interface{}{"status": status, "last_seen_at": &now}).Error; err != nil {
		return err
	}
	if old == status || s.hub == nil {
		return nil
	}
	user.Status = status
	rooms, err := s.members.ListActiveRoomsForUser(userID)
	if err != nil {
		return err
	}
	for _, room := range rooms {
		evt := ws.NewEvent(ws.EventStatusUpdate, room.ID)
		evt.User = ws.Ref(&user)
		s.hub.PublishToRoom(room.ID, evt)
	}
	return nil
}

// UpdateLastSeen 只刷新 last-seen，不碰状态。
func (s *PresenceService) UpdateLastSeen(userID uint) error {
	now := time.Now()
	return s.db.Model(&models.User{}).Where("id = ?", userID).Update("last_seen_at", &now).Error
}

// OnlineUsers 返回当前在线的全部用户。
func (s *PresenceService) OnlineUsers() ([]models.User, error) {
	var users []models.User
	err := s.db.Where("status = ?", models.StatusOnline).Find(&users).Error
	return users, err
}
