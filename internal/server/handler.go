package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/vnyvk2/ChatServiceApp/internal/auth"
	"github.com/vnyvk2/ChatServiceApp/internal/models"
	"github.com/vnyvk2/ChatServiceApp/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Handler 聚合所有 HTTP handler，依赖注入 service 层。
type Handler struct {
	userSvc     *service.UserService
	roomSvc     *service.RoomService
	msgSvc      *service.MessageService
	memberSvc   *service.MembershipService
	presenceSvc *service.PresenceService
}

func NewHandler(userSvc *service.UserService, roomSvc *service.RoomService, msgSvc *service.MessageService,
	memberSvc *service.MembershipService, presenceSvc *service.PresenceService) *Handler {
	return &Handler{userSvc: userSvc, roomSvc: roomSvc, msgSvc: msgSvc, memberSvc: memberSvc, presenceSvc: presenceSvc}
}

// httpStatus 把业务错误映射到 HTTP 状态码，未识别的一律 500。
func httpStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrUsernameTaken),
		errors.Is(err, service.ErrEmailTaken),
		errors.Is(err, service.ErrPhoneTaken),
		errors.Is(err, service.ErrDuplicateRoomName):
		return http.StatusConflict
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrRoomNotFound),
		errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, service.ErrMembershipNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrNotAMember),
		errors.Is(err, service.ErrNotRoomAdmin):
		return http.StatusForbidden
	case errors.Is(err, service.ErrInvalidStatus),
		errors.Is(err, service.ErrInvalidRole),
		errors.Is(err, service.ErrInvalidRoomType),
		errors.Is(err, service.ErrInvalidMessageType):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func abortWith(c *gin.Context, err error, fallback string) {
	status := httpStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Msg(fallback)
		msg = fallback
	}
	c.JSON(status, gin.H{"error": msg})
}

func userDTO(u *models.User) gin.H {
	return gin.H{
		"id":           u.ID,
		"username":     u.Username,
		"display_name": u.DisplayName,
		"status":       u.Status,
	}
}

// Register 处理用户注册请求。
func (h *Handler) Register(c *gin.Context) {
	var req struct {
		Username    string `json:"username"`
		Password    string `json:"password"`
		DisplayName string `json:"display_name"`
		Email       string `json:"email"`
		PhoneNumber string `json:"phone_number"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if req.Username == "" || req.Password == "" || req.Email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if len(req.Username) < 2 || len(req.Username) > 64 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid username"})
		return
	}
	if len(req.Password) < 4 || len(req.Password) > 128 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid password"})
		return
	}
	user, err := h.userSvc.Register(req.Username, req.Password, req.DisplayName, req.Email, req.PhoneNumber)
	if err != nil {
		abortWith(c, err, "failed to create user")
		return
	}
	c.JSON(http.StatusOK, userDTO(user))
}

// Login 处理用户登录请求。
func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	result, err := h.userSvc.Login(req.Username, req.Password)
	if err != nil {
		abortWith(c, err, "login failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token":  result.AccessToken,
		"refresh_token": result.RefreshToken,
		"user":          userDTO(&result.User),
	})
}

// RefreshToken 处理 token 刷新请求。
func (h *Handler) RefreshToken(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	result, err := h.userSvc.RefreshTokens(req.RefreshToken)
	if err != nil {
		log.Warn().Err(err).Msg("refresh token")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": result.AccessToken, "refresh_token": result.RefreshToken})
}

// CreateRoom 建房并把创建者写成 ADMIN 成员。
func (h *Handler) CreateRoom(c *gin.Context) {
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		RoomType    string `json:"room_type"`
		IsPrivate   bool   `json:"is_private"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || len(req.Name) > 128 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room name"})
		return
	}
	room, err := h.roomSvc.Create(req.Name, req.Description, req.RoomType, req.IsPrivate, auth.GetUserID(c))
	if err != nil {
		abortWith(c, err, "failed to create room")
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": room.ID, "name": room.Name, "room_type": room.RoomType, "is_private": room.IsPrivate})
}

// ListRooms 列出公开房间，可用 ?type= 过滤房间类型。
func (h *Handler) ListRooms(c *gin.Context) {
	rooms, err := h.roomSvc.ListPublicRooms(c.Query("type"))
	if err != nil {
		abortWith(c, err, "failed to list rooms")
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

// MyRooms 列出当前用户活跃加入的房间。
func (h *Handler) MyRooms(c *gin.Context) {
	rooms, err := h.roomSvc.ListRoomsForUser(auth.GetUserID(c))
	if err != nil {
		abortWith(c, err, "failed to list rooms")
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

func roomIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return 0, false
	}
	return uint(id), true
}

// GetRoom 返回单个房间的详情与成员数。
func (h *Handler) GetRoom(c *gin.Context) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}
	room, err := h.roomSvc.FindByID(roomID)
	if err != nil {
		abortWith(c, err, "failed to get room")
		return
	}
	count, err := h.memberSvc.MemberCount(roomID)
	if err != nil {
		abortWith(c, err, "failed to get room")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":           room.ID,
		"name":         room.Name,
		"description":  room.Description,
		"room_type":    room.RoomType,
		"is_private":   room.IsPrivate,
		"member_count": count,
	})
}

// UpdateRoom 改名、改描述或切换可见性，仅限房间 ADMIN。
func (h *Handler) UpdateRoom(c *gin.Context) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}
	if !h.requireAdmin(c, roomID) {
		return
	}
	var req struct {
		Name        *string `json:"name"`
		Description *string `json:"description"`
		IsPrivate   *bool   `json:"is_private"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	room, err := h.roomSvc.Update(roomID, req.Name, req.Description, req.IsPrivate)
	if err != nil {
		abortWith(c, err, "failed to update room")
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": room.ID, "name": room.Name, "is_private": room.IsPrivate})
}

// DeleteRoom 先退掉所有活跃成员再删房，仅限房间 ADMIN。
func (h *Handler) DeleteRoom(c *gin.Context) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}
	if !h.requireAdmin(c, roomID) {
		return
	}
	if err := h.roomSvc.DeleteRoom(roomID); err != nil {
		abortWith(c, err, "failed to delete room")
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (h *Handler) requireAdmin(c *gin.Context, roomID uint) bool {
	isAdmin, err := h.roomSvc.IsRoomAdmin(auth.GetUserID(c), roomID)
	if err != nil {
		abortWith(c, err, "failed to check role")
		return false
	}
	if !isAdmin {
		abortWith(c, service.ErrNotRoomAdmin, "")
		return false
	}
	return true
}

// JoinRoom 加入公开房间；私有房间对非成员不可见，直接拒绝。
func (h *Handler) JoinRoom(c *gin.Context) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}
	userID := auth.GetUserID(c)
	allowed, err := h.memberSvc.CanAccess(userID, roomID)
	if err != nil {
		abortWith(c, err, "failed to join room")
		return
	}
	if !allowed {
		abortWith(c, service.ErrNotAMember, "")
		return
	}
	m, err := h.memberSvc.AddMember(roomID, userID, models.RoleMember)
	if err != nil {
		abortWith(c, err, "failed to join room")
		return
	}
	c.JSON(http.StatusOK, gin.H{"room_id": m.RoomID, "user_id": m.UserID, "role": m.Role, "is_active": m.IsActive})
}

// LeaveRoom 退出房间；本来就不在房间里时也是成功。
func (h *Handler) LeaveRoom(c *gin.Context) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}
	if err := h.memberSvc.RemoveMember(roomID, auth.GetUserID(c)); err != nil {
		abortWith(c, err, "failed to leave room")
		return
	}
	c.JSON(http.StatusOK, gin.H{"left": true})
}

// SetMemberRole 修改成员角色，仅限房间 ADMIN。
func (h *Handler) SetMemberRole(c *gin.Context) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}
	targetID, err := strconv.Atoi(c.Param("userID"))
	if err != nil || targetID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	if !h.requireAdmin(c, roomID) {
		return
	}
	var req struct {
		Role string `json:"role"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if err := h.memberSvc.SetRole(roomID, uint(targetID), strings.ToUpper(req.Role)); err != nil {
		abortWith(c, err, "failed to set role")
		return
	}
	c.JSON(http.StatusOK, gin.H{"room_id": roomID, "user_id": targetID, "role": strings.ToUpper(req.Role)})
}

// RoomMembers 列出房间活跃成员。
func (h *Handler) RoomMembers(c *gin.Context) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}
	users, err := h.memberSvc.ListActiveMembers(roomID)
	if err != nil {
		abortWith(c, err, "failed to list members")
		return
	}
	out := make([]gin.H, 0, len(users))
	for i := range users {
		out = append(out, userDTO(&users[i]))
	}
	c.JSON(http.StatusOK, gin.H{"members": out})
}

// CreateDirectMessage 幂等取得与另一个用户的私聊房间。
func (h *Handler) CreateDirectMessage(c *gin.Context) {
	var req struct {
		UserID uint `json:"user_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	room, err := h.roomSvc.CreateOrGetDirectMessage(auth.GetUserID(c), req.UserID)
	if err != nil {
		abortWith(c, err, "failed to create direct message")
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": room.ID, "name": room.Name, "room_type": room.RoomType, "is_private": room.IsPrivate})
}

// ListMessages 分页返回房间消息，密文在读取边界解密为明文。
func (h *Handler) ListMessages(c *gin.Context) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}
	userID := auth.GetUserID(c)
	allowed, err := h.memberSvc.CanAccess(userID, roomID)
	if err != nil {
		abortWith(c, err, "failed to list messages")
		return
	}
	if !allowed {
		abortWith(c, service.ErrNotAMember, "")
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "0"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "50"))
	msgs, err := h.msgSvc.History(roomID, page, pageSize)
	if err != nil {
		abortWith(c, err, "failed to list messages")
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs, "page": page})
}

// SendMessage 走 REST 发消息，与 WS 通道共用同一套校验与广播。
func (h *Handler) SendMessage(c *gin.Context) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	msg, err := h.msgSvc.Append(roomID, auth.GetUserID(c), req.Text, models.MessageTypeText)
	if err != nil {
		abortWith(c, err, "failed to send message")
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": msg.ID, "room_id": msg.RoomID, "created_at": msg.CreatedAt})
}

// DecryptMessage 解密一段裸密文，坏密文降级为占位串。
func (h *Handler) DecryptMessage(c *gin.Context) {
	var req struct {
		Cipher string `json:"cipher"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Cipher == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"plaintext": h.msgSvc.Decrypt(req.Cipher)})
}

// SetStatus 显式切换在线状态。
func (h *Handler) SetStatus(c *gin.Context) {
	var req struct {
		Status string `json:"status"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Status == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if err := h.presenceSvc.SetStatus(auth.GetUserID(c), strings.ToUpper(req.Status)); err != nil {
		abortWith(c, err, "failed to set status")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": strings.ToUpper(req.Status)})
}

// OnlineUsers 列出当前在线用户。
func (h *Handler) OnlineUsers(c *gin.Context) {
	users, err := h.presenceSvc.OnlineUsers()
	if err != nil {
		abortWith(c, err, "failed to list online users")
		return
	}
	out := make([]gin.H, 0, len(users))
	for i := range users {
		out = append(out, userDTO(&users[i]))
	}
	c.JSON(http.StatusOK, gin.H{"users": out})
}
