package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/vnyvk2/ChatServiceApp/internal/models"
	"github.com/vnyvk2/ChatServiceApp/internal/ws"

	"gorm.io/gorm"
)

// RoomService 负责房间身份：创建、查找、重命名、删除，以及私聊房间的
// 确定性身份推导。成员播种委托给 MembershipService 的表结构，但与建房
// 在同一事务里完成。
type RoomService struct {
	db      *gorm.DB
	hub     *ws.Hub
	members *MembershipService
}

func NewRoomService(gdb *gorm.DB, hub *ws.Hub, members *MembershipService) *RoomService {
	return &RoomService{db: gdb, hub: hub, members: members}
}

// RoomDTO 是对外输出的房间数据。
type RoomDTO struct {
	ID          uint   `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	RoomType    string `json:"room_type"`
	IsPrivate   bool   `json:"is_private"`
	MemberCount int64  `json:"member_count"`
	Online      int    `json:"online"`
}

// DirectMessageName 推导私聊房间的确定性名字：双方 ID 取序后拼接，
// 任意一方发起都会落到同一个房间。
func DirectMessageName(a, b uint) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("DM_%d_%d", a, b)
}

// Create 建房并把创建者以 ADMIN 身份写入成员表，两步同事务：
// 成员播种失败时房间创建一并回滚。
func (s *RoomService) Create(name, description, roomType string, isPrivate bool, creatorID uint) (*models.Room, error) {
	if roomType == "" {
		roomType = models.RoomTypeGroup
	}
	if roomType != models.RoomTypeGroup && roomType != models.RoomTypeDirect && roomType != models.RoomTypeBroadcast {
		return nil, ErrInvalidRoomType
	}
	var creator models.User
	if err := s.db.First(&creator, creatorID).Error; err != nil {
		return nil, ErrUserNotFound
	}

	room := models.Room{
		Name:        name,
		Description: description,
		RoomType:    roomType,
		IsPrivate:   isPrivate,
		CreatedBy:   creatorID,
	}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&room).Error; err != nil {
			return err
		}
		m := models.Membership{RoomID: room.ID, UserID: creatorID, Role: models.RoleAdmin, IsActive: true, JoinedAt: time.Now()}
		return tx.Create(&m).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateRoomName
		}
		return nil, err
	}
	return &room, nil
}

// CreateOrGetDirectMessage 幂等取得两人的私聊房间。确定性名字加上
// 房间名唯一索引就是并发护栏：后到的创建撞索引后回退为查询。
func (s *RoomService) CreateOrGetDirectMessage(userAID, userBID uint) (*models.Room, error) {
	var userA, userB models.User
	if err := s.db.First(&userA, userAID).Error; err != nil {
		return nil, ErrUserNotFound
	}
	if err := s.db.First(&userB, userBID).Error; err != nil {
		return nil, ErrUserNotFound
	}

	name := DirectMessageName(userAID, userBID)
	var existing models.Room
	err := s.db.Where("name = ? AND room_type = ?", name, models.RoomTypeDirect).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	room := models.Room{
		Name:        name,
		Description: "Direct message between " + userA.DisplayName + " and " + userB.DisplayName,
		RoomType:    models.RoomTypeDirect,
		IsPrivate:   true,
		CreatedBy:   userAID,
	}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&room).Error; err != nil {
			return err
		}
		now := time.Now()
		if err := tx.Create(&models.Membership{RoomID: room.ID, UserID: userAID, Role: models.RoleMember, IsActive: true, JoinedAt: now}).Error; err != nil {
			return err
		}
		if userBID != userAID {
			if err := tx.Create(&models.Membership{RoomID: room.ID, UserID: userBID, Role: models.RoleMember, IsActive: true, JoinedAt: now}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if isUniqueViolation(err) {
			// 对方抢先建好了，直接复用
			var won models.Room
			if err2 := s.db.Where("name = ? AND room_type = ?", name, models.RoomTypeDirect).First(&won).Error; err2 == nil {
				return &won, nil
			}
		}
		return nil, err
	}
	return &room, nil
}

// Update 局部更新房间属性，nil 字段保持不变。
func (s *RoomService) Update(roomID uint, name, description *string, isPrivate *bool) (*models.Room, error) {
	var room models.Room
	if err := s.db.First(&room, roomID).Error; err != nil {
		return nil, ErrRoomNotFound
	}
	updates := map[string]interface{}{}
	if name != nil && *name != "" {
		updates["name"] = *name
	}
	if description != nil {
		updates["description"] = *description
	}
	if isPrivate != nil {
		updates["is_private"] = *isPrivate
	}
	if len(updates) == 0 {
		return &room, nil
	}
	if err := s.db.Model(&room).Updates(updates).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateRoomName
		}
		return nil, err
	}
	return &room, nil
}

// ListPublicRooms 列出公开房间，可按类型过滤，附带成员数与在线数。
func (s *RoomService) ListPublicRooms(roomType string) ([]RoomDTO, error) {
	q := s.db.Where("is_private = ?", false)
	if roomType != "" {
		q = q.Where("room_type = ?", roomType)
	}
	var rooms []models.Room
	if err := q.Order("id desc").Limit(200).Find(&rooms).Error; err != nil {
		return nil, err
	}
	out := make([]RoomDTO, 0, len(rooms))
	for _, r := range rooms {
		count, err := s.members.MemberCount(r.ID)
		if err != nil {
			return nil, err
		}
		dto := RoomDTO{ID: r.ID, Name: r.Name, Description: r.Description, RoomType: r.RoomType, IsPrivate: r.IsPrivate, MemberCount: count}
		if s.hub != nil {
			dto.Online = s.hub.Online(r.ID)
		}
		out = append(out, dto)
	}
	return out, nil
}

// ListRoomsForUser 返回用户活跃加入的房间。
func (s *RoomService) ListRoomsForUser(userID uint) ([]models.Room, error) {
	return s.members.ListActiveRoomsForUser(userID)
}

// FindByID 按 ID 查房间。
func (s *RoomService) FindByID(roomID uint) (*models.Room, error) {
	var room models.Room
	if err := s.db.First(&room, roomID).Error; err != nil {
		return nil, ErrRoomNotFound
	}
	return &room, nil
}

// FindByName 按名字查房间。
func (s *RoomService) FindByName(name string) (*models.Room, error) {
	var room models.Room
	if err := s.db.Where("name = ?", name).First(&room).Error; err != nil {
		return nil, ErrRoomNotFound
	}
	return &room, nil
}

// IsRoomAdmin 判断用户是否是房间的活跃 ADMIN。
func (s *RoomService) IsRoomAdmin(userID, roomID uint) (bool, error) {
	m, err := s.members.GetMembership(roomID, userID)
	if errors.Is(err, ErrMembershipNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return m.IsActive && m.Role == models.RoleAdmin, nil
}

// DeleteRoom 先把全部活跃成员置为退出，再删除房间本身，同一事务。
func (s *RoomService) DeleteRoom(roomID uint) error {
	var room models.Room
	if err := s.db.First(&room, roomID).Error; err != nil {
		return ErrRoomNotFound
	}
	now := time.Now()
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Membership{}).
			Where("room_id = ? AND is_active = ?", roomID, true).
			Updates(map[string]interface{}{"is_active": false, "left_at": &now}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Room{}, roomID).Error
	})
}
