package ws

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/vnyvk2/ChatServiceApp/internal/auth"
	"github.com/vnyvk2/ChatServiceApp/internal/config"
	"github.com/vnyvk2/ChatServiceApp/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// 服务依赖以小接口注入，避免 ws 与 service 包互相引用。
type AccessChecker interface {
	CanAccess(userID, roomID uint) (bool, error)
}

type MessageSender interface {
	Append(roomID, senderID uint, plaintext, messageType string) (*models.Message, error)
}

type StatusSetter interface {
	SetStatus(userID uint, status string) error
}

// Client 绑定一条连接与握手时解析出的身份，身份在连接存续期内不再校验。
type Client struct {
	id       string
	room     *RoomHub
	conn     *websocket.Conn
	send     chan []byte
	userID   uint
	username string
	user     models.User

	mu     sync.Mutex
	closed bool
}

// close 幂等关闭发送通道；与 trySend 互斥，保证不会写已关闭的 channel。
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// trySend 非阻塞投递，连接已关或队列已满都返回 false。
func (c *Client) trySend(b []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- b:
		return true
	default:
		return false
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// InboundMessage 是客户端上行载荷：发消息、打字指示或状态切换。
type InboundMessage struct {
	Type     string `json:"type"`
	Text     string `json:"text"`
	IsTyping bool   `json:"is_typing"`
	Status   string `json:"status"`
}

// Serve 处理 WebSocket 升级：先完成一次性 Bearer Token 握手校验，
// 未通过认证的握手直接拒绝（401），不会留下未绑定身份的连接。
func Serve(h *Hub, gdb *gorm.DB, cfg config.Config, access AccessChecker, messages MessageSender, presence StatusSetter) gin.HandlerFunc {
	return func(c *gin.Context) {
		roomIDStr := c.Query("room_id")
		rid64, err := strconv.ParseUint(roomIDStr, 10, 64)
		if err != nil || rid64 == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room_id"})
			return
		}
		roomID := uint(rid64)
		var room models.Room
		if err := gdb.First(&room, roomID).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}

		user, err := auth.Authenticate(c.Request, cfg.JWTSecret, gdb)
		if err != nil {
			log.Warn().Err(err).Uint("room_id", roomID).Msg("ws handshake rejected")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "handshake unauthenticated"})
			return
		}

		ok, err := access.CanAccess(user.ID, roomID)
		if err != nil || !ok {
			c.JSON(http.StatusForbidden, gin.H{"error": "room access denied"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		rh := h.GetRoom(roomID)
		client := &Client{
			id:       uuid.NewString(),
			room:     rh,
			conn:     conn,
			send:     make(chan []byte, 256),
			userID:   user.ID,
			username: user.Username,
			user:     *user,
		}
		rh.register <- client
		h.bindUser(client)
		if err := presence.SetStatus(user.ID, models.StatusOnline); err != nil {
			log.Warn().Err(err).Str("conn_id", client.id).Msg("set online on connect")
		}

		go client.writePump()
		client.readPump(h, messages, presence)
	}
}

func (c *Client) readPump(h *Hub, messages MessageSender, presence StatusSetter) {
	defer func() {
		c.room.unregister <- c
		h.unbindUser(c)
		_ = c.conn.Close()
		// 最后一条连接断开时标记离线
		if h.UserConnections(c.username) == 0 {
			if err := presence.SetStatus(c.userID, models.StatusOffline); err != nil {
				log.Warn().Err(err).Str("conn_id", c.id).Msg("set offline on disconnect")
			}
		}
	}()
	c.conn.SetReadLimit(1 << 20) // 1MB
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		var in InboundMessage
		if err := json.Unmarshal(data, &in); err != nil {
			continue
		}
		switch in.Type {
		case "typing":
			evt := NewEvent(EventTyping, c.room.roomID)
			evt.User = &UserRef{Username: c.username, DisplayName: c.user.DisplayName}
			isTyping := in.IsTyping
			evt.IsTyping = &isTyping
			h.PublishToRoom(c.room.roomID, evt)
		case "status":
			if err := presence.SetStatus(c.userID, in.Status); err != nil {
				evt := Event{Type: EventError, Message: "invalid status: " + in.Status, Timestamp: time.Now().UnixMilli()}
				h.PublishToUser(c.username, evt)
			}
		default:
			if in.Text == "" {
				continue
			}
			if _, err := messages.Append(c.room.roomID, c.userID, in.Text, models.MessageTypeText); err != nil {
				evt := Event{Type: EventError, Message: "failed to send message: " + err.Error(), Timestamp: time.Now().UnixMilli()}
				h.PublishToUser(c.username, evt)
			}
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)
			_ = w.Close()
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
