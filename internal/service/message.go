package service

import (
	"time"

	"github.com/vnyvk2/ChatServiceApp/internal/crypto"
	"github.com/vnyvk2/ChatServiceApp/internal/metrics"
	"github.com/vnyvk2/ChatServiceApp/internal/models"
	"github.com/vnyvk2/ChatServiceApp/internal/ws"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// DecryptFallback 是单条密文损坏时给展示层的占位串，
// 一条坏消息不能拖垮整页历史。
const DecryptFallback = "[Encrypted Message]"

// MessageService 独占消息持久化：写入前加密，按房间保持追加序。
type MessageService struct {
	db      *gorm.DB
	codec   *crypto.Codec
	hub     *ws.Hub
	members *MembershipService
}

func NewMessageService(gdb *gorm.DB, codec *crypto.Codec, hub *ws.Hub, members *MembershipService) *MessageService {
	return &MessageService{db: gdb, codec: codec, hub: hub, members: members}
}

// MessageDTO 是解密后对外输出的消息数据。
type MessageDTO struct {
	ID          uint      `json:"id"`
	RoomID      uint      `json:"room_id"`
	SenderID    uint      `json:"sender_id"`
	Username    string    `json:"username"`
	Content     string    `json:"content"`
	MessageType string    `json:"message_type"`
	CreatedAt   time.Time `json:"created_at"`
}

// Append 校验发送者是房间活跃成员后加密落库，并把明文事件广播给
// 当前订阅者。返回的记录仍持有密文，解密是读取侧的事。
func (s *MessageService) Append(roomID, senderID uint, plaintext, messageType string) (*models.Message, error) {
	if messageType == "" {
		messageType = models.MessageTypeText
	}
	if !models.ValidMessageType(messageType) {
		return nil, ErrInvalidMessageType
	}
	var room models.Room
	if err := s.db.First(&room, roomID).Error; err != nil {
		return nil, ErrRoomNotFound
	}
	var sender models.User
	if err := s.db.First(&sender, senderID).Error; err != nil {
		return nil, ErrUserNotFound
	}
	active, err := s.members.IsActiveMember(senderID, roomID)
	if err != nil {
		return nil, err
	}
	if !active {
		return nil, ErrNotAMember
	}

	encrypted, err := s.codec.Encrypt(plaintext)
	if err != nil {
		return nil, err
	}
	msg := models.Message{
		RoomID:           roomID,
		SenderID:         senderID,
		EncryptedContent: encrypted,
		MessageType:      messageType,
	}
	if err := s.db.Create(&msg).Error; err != nil {
		return nil, err
	}
	metrics.WsMessagesTotal.Inc()

	if s.hub != nil {
		evt := ws.NewEvent(ws.EventMessage, roomID)
		evt.User = ws.Ref(&sender)
		evt.Text = plaintext
		s.hub.PublishToRoom(roomID, evt)
	}
	return &msg, nil
}

// ListRoom 分页读取，默认新消息在前，适合"最近 N 条"展示。
func (s *MessageService) ListRoom(roomID uint, page, pageSize int) ([]models.Message, error) {
	if page < 0 {
		page = 0
	}
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 50
	}
	var msgs []models.Message
	err := s.db.Where("room_id = ?", roomID).
		Order("created_at desc, id desc").
		Offset(page * pageSize).
		Limit(pageSize).
		Find(&msgs).Error
	return msgs, err
}

// ListRoomAscending 返回完整的时间正序，用于重建整段会话。
func (s *MessageService) ListRoomAscending(roomID uint) ([]models.Message, error) {
	var msgs []models.Message
	err := s.db.Where("room_id = ?", roomID).
		Order("created_at asc, id asc").
		Find(&msgs).Error
	return msgs, err
}

// Count 返回房间内消息总数。
func (s *MessageService) Count(roomID uint) (int64, error) {
	var count int64
	err := s.db.Model(&models.Message{}).Where("room_id = ?", roomID).Count(&count).Error
	return count, err
}

// DecryptForDisplay 解密单条消息用于展示，失败时降级为占位串而不是让
// 整批读取失败，历史上一条坏行不该让整个房间不可读。
func (s *MessageService) DecryptForDisplay(m *models.Message) string {
	plain, err := s.codec.Decrypt(m.EncryptedContent)
	if err != nil {
		log.Warn().Err(err).Uint("message_id", m.ID).Uint("room_id", m.RoomID).Msg("decrypt message")
		return DecryptFallback
	}
	return plain
}

// Decrypt 解密一段裸密文（REST /decrypt 接口用），失败同样降级。
func (s *MessageService) Decrypt(blob string) string {
	plain, err := s.codec.Decrypt(blob)
	if err != nil {
		return DecryptFallback
	}
	return plain
}

// History 分页读取并解密为 DTO，批量回填发送者用户名。
func (s *MessageService) History(roomID uint, page, pageSize int) ([]MessageDTO, error) {
	msgs, err := s.ListRoom(roomID, page, pageSize)
	if err != nil {
		return nil, err
	}
	usernames, err := s.resolveUsernames(msgs)
	if err != nil {
		return nil, err
	}
	out := make([]MessageDTO, 0, len(msgs))
	for i := range msgs {
		m := &msgs[i]
		out = append(out, MessageDTO{
			ID:          m.ID,
			RoomID:      m.RoomID,
			SenderID:    m.SenderID,
			Username:    usernames[m.SenderID],
			Content:     s.DecryptForDisplay(m),
			MessageType: m.MessageType,
			CreatedAt:   m.CreatedAt,
		})
	}
	return out, nil
}

// Delete 删除单条消息，不影响其余消息的编号与顺序。
func (s *MessageService) Delete(messageID uint) error {
	return s.db.Delete(&models.Message{}, messageID).Error
}

// resolveUsernames 批量获取消息涉及的用户名。
func (s *MessageService) resolveUsernames(msgs []models.Message) (map[uint]string, error) {
	seen := make(map[uint]struct{}, len(msgs))
	userIDs := make([]uint, 0, len(msgs))
	for _, m := range msgs {
		if _, ok := seen[m.SenderID]; ok {
			continue
		}
		seen[m.SenderID] = struct{}{}
		userIDs = append(userIDs, m.SenderID)
	}

	usernames := make(map[uint]string, len(userIDs))
	if len(userIDs) > 0 {
		var users []models.User
		if err := s.db.Select("id", "username").Where("id IN ?", userIDs).Find(&users).Error; err != nil {
			return nil, err
		}
		for _, u := range users {
			usernames[u.ID] = u.Username
		}
	}
	return usernames, nil
}
