package service

import (
	"errors"
	"time"

	"github.com/vnyvk2/ChatServiceApp/internal/models"
	"github.com/vnyvk2/ChatServiceApp/internal/ws"

	"gorm.io/gorm"
)

// MembershipService 独占成员关系的生命周期：加入、退出、角色与访问控制。
// (room, user) 的唯一性靠存储层唯一索引保证，而不是应用层锁。
type MembershipService struct {
	db  *gorm.DB
	hub *ws.Hub
}

func NewMembershipService(gdb *gorm.DB, hub *ws.Hub) *MembershipService {
	return &MembershipService{db: gdb, hub: hub}
}

// AddMember 幂等加入：已激活原样返回；已退出的重新激活；否则插入新行。
// 并发加入撞唯一索引时回读既有行，不会产生重复成员。
func (s *MembershipService) AddMember(roomID, userID uint, role string) (*models.Membership, error) {
	if role == "" {
		role = models.RoleMember
	}
	if !models.ValidRole(role) {
		return nil, ErrInvalidRole
	}
	var room models.Room
	if err := s.db.First(&room, roomID).Error; err != nil {
		return nil, ErrRoomNotFound
	}
	var user models.User
	if err := s.db.First(&user, userID).Error; err != nil {
		return nil, ErrUserNotFound
	}

	m, activated, err := s.upsert(roomID, userID, role)
	if err != nil {
		return nil, err
	}
	if activated && s.hub != nil {
		evt := ws.NewEvent(ws.EventUserJoined, roomID)
		evt.User = ws.Ref(&user)
		evt.Message = user.DisplayName + " joined the room"
		s.hub.PublishToRoom(roomID, evt)
	}
	return m, nil
}

func (s *MembershipService) upsert(roomID, userID uint, role string) (*models.Membership, bool, error) {
	var m models.Membership
	err := s.db.Where("room_id = ? AND user_id = ?", roomID, userID).First(&m).Error
	switch {
	case err == nil:
		if m.IsActive {
			return &m, false, nil
		}
		updates := map[string]interface{}{"is_active": true, "left_at": nil}
		if err := s.db.Model(&m).Updates(updates).Error; err != nil {
			return nil, false, err
		}
		m.IsActive = true
		m.LeftAt = nil
		return &m, true, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		m = models.Membership{RoomID: roomID, UserID: userID, Role: role, IsActive: true, JoinedAt: time.Now()}
		if err := s.db.Create(&m).Error; err != nil {
			if isUniqueViolation(err) {
				// 并发插入输掉了唯一索引竞争，按既有行重走一遍
				return s.upsert(roomID, userID, role)
			}
			return nil, false, err
		}
		return &m, true, nil
	default:
		return nil, false, err
	}
}

// RemoveMember 置为不活跃并记录退出时间；没有成员行时静默返回。
func (s *MembershipService) RemoveMember(roomID, userID uint) error {
	var m models.Membership
	err := s.db.Where("room_id = ? AND user_id = ?", roomID, userID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !m.IsActive {
		return nil
	}
	now := time.Now()
	if err := s.db.Model(&m).Updates(map[string]interface{}{"is_active": false, "left_at": &now}).Error; err != nil {
		return err
	}
	if s.hub != nil {
		var user models.User
		if err := s.db.First(&user, userID).Error; err == nil {
			evt := ws.NewEvent(ws.EventUserLeft, roomID)
			evt.User = &ws.UserRef{Username: user.Username, DisplayName: user.DisplayName}
			evt.Message = user.DisplayName + " left the room"
			s.hub.PublishToRoom(roomID, evt)
		}
	}
	return nil
}

// IsActiveMember 判断用户当前是否是房间的活跃成员。
func (s *MembershipService) IsActiveMember(userID, roomID uint) (bool, error) {
	var count int64
	err := s.db.Model(&models.Membership{}).
		Where("room_id = ? AND user_id = ? AND is_active = ?", roomID, userID, true).
		Count(&count).Error
	return count > 0, err
}

// CanAccess 公开房间人人可达，私有房间要求活跃成员。
func (s *MembershipService) CanAccess(userID, roomID uint) (bool, error) {
	var room models.Room
	if err := s.db.First(&room, roomID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, ErrRoomNotFound
		}
		return false, err
	}
	if !room.IsPrivate {
		return true, nil
	}
	return s.IsActiveMember(userID, roomID)
}

// SetRole 修改成员角色，没有成员行时返回 ErrMembershipNotFound。
func (s *MembershipService) SetRole(roomID, userID uint, role string) error {
	if !models.ValidRole(role) {
		return ErrInvalidRole
	}
	var m models.Membership
	err := s.db.Where("room_id = ? AND user_id = ?", roomID, userID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrMembershipNotFound
	}
	if err != nil {
		return err
	}
	return s.db.Model(&m).Update("role", role).Error
}

// GetMembership 返回 (room, user) 的成员行，活跃与否都算。
func (s *MembershipService) GetMembership(roomID, userID uint) (*models.Membership, error) {
	var m models.Membership
	err := s.db.Where("room_id = ? AND user_id = ?", roomID, userID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMembershipNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListActiveMembers 返回房间全部活跃成员的用户信息。
func (s *MembershipService) ListActiveMembers(roomID uint) ([]models.User, error) {
	var users []models.User
	err := s.db.
		Joins("JOIN memberships ON memberships.user_id = users.id").
		Where("memberships.room_id = ? AND memberships.is_active = ?", roomID, true).
		Find(&users).Error
	return users, err
}

// ListActiveRoomsForUser 返回用户当前活跃加入的全部房间。
func (s *MembershipService) ListActiveRoomsForUser(userID uint) ([]models.Room, error) {
	var rooms []models.Room
	err := s.db.
		Joins("JOIN memberships ON memberships.room_id = rooms.id").
		Where("memberships.user_id = ? AND memberships.is_active = ?", userID, true).
		Find(&rooms).Error
	return rooms, err
}

// MemberCount 返回房间活跃成员数。
func (s *MembershipService) MemberCount(roomID uint) (int64, error) {
	var count int64
	err := s.db.Model(&models.Membership{}).
		Where("room_id = ? AND is_active = ?", roomID, true).
		Count(&count).Error
	return count, err
}
