package server

import (
	"errors"
	"net/http"
	"strconv"

	"pairchat/internal/auth"
	"pairchat/internal/models"
	"pairchat/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Handler 聚合所有 HTTP handler，依赖注入 service 层。
type Handler struct {
	userSvc *service.UserService
	roomSvc *service.RoomService
	cookies auth.CookieOptions
}

func NewHandler(userSvc *service.UserService, roomSvc *service.RoomService, cookies auth.CookieOptions) *Handler {
	return &Handler{userSvc: userSvc, roomSvc: roomSvc, cookies: cookies}
}

type credentialsRequest struct {
	Email    string `json:"email" binding:"required,email,max=254"`
	Password string `json:"password" binding:"required,min=6,max=72"`
}

type sessionResponse struct {
	User         *models.User `json:"user"`
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
}

func (h *Handler) startSession(c *gin.Context, user *models.User, pair *auth.TokenPair) {
	auth.SetSessionCookies(c.Writer, h.cookies, pair)
	c.JSON(http.StatusOK, sessionResponse{User: user, AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

// Register 处理用户注册请求，验证码通过邮件发送。
func (h *Handler) Register(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	user, err := h.userSvc.Register(c.Request.Context(), req.Email, req.Password)
	switch {
	case errors.Is(err, service.ErrEmailTaken):
		c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
		return
	case errors.Is(err, service.ErrMailDelivery):
		c.JSON(http.StatusBadGateway, gin.H{"error": "account created but the verification email could not be sent, please request a new code"})
		return
	case err != nil:
		log.Error().Err(err).Str("email", req.Email).Msg("register")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create user"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user": user, "message": "verification code sent"})
}

// VerifyOTP 校验验证码并登录。
func (h *Handler) VerifyOTP(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
		OTP   string `json:"otp" binding:"required,len=6,numeric"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	user, pair, err := h.userSvc.VerifyOTP(c.Request.Context(), req.Email, req.OTP)
	switch {
	case errors.Is(err, service.ErrInvalidOTP):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid otp", "code": "INVALID_OTP"})
		return
	case errors.Is(err, service.ErrOTPExpired):
		c.JSON(http.StatusBadRequest, gin.H{"error": "otp expired", "code": "OTP_EXPIRED"})
		return
	case errors.Is(err, service.ErrAlreadyVerified):
		c.JSON(http.StatusConflict, gin.H{"error": "email already verified"})
		return
	case err != nil:
		log.Error().Err(err).Str("email", req.Email).Msg("verify otp")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "verification failed"})
		return
	}
	h.startSession(c, user, pair)
}

func (h *Handler) ResendOTP(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	err := h.userSvc.ResendOTP(c.Request.Context(), req.Email)
	switch {
	case errors.Is(err, service.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	case errors.Is(err, service.ErrAlreadyVerified):
		c.JSON(http.StatusConflict, gin.H{"error": "email already verified"})
		return
	case errors.Is(err, service.ErrMailDelivery):
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to send verification email"})
		return
	case err != nil:
		log.Error().Err(err).Str("email", req.Email).Msg("resend otp")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resend otp"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "verification code sent"})
}

// Login 处理用户登录请求。
func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	user, pair, err := h.userSvc.Login(c.Request.Context(), req.Email, req.Password)
	var locked *service.LockedError
	switch {
	case errors.As(err, &locked):
		c.Header("Retry-After", strconv.Itoa(int(locked.RetryAfter.Seconds())+1))
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many failed attempts", "code": "ACCOUNT_LOCKED"})
		return
	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	case errors.Is(err, service.ErrNotVerified):
		c.JSON(http.StatusForbidden, gin.H{"error": "email not verified", "code": "NOT_VERIFIED"})
		return
	case err != nil:
		log.Error().Err(err).Str("email", req.Email).Msg("login")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}
	h.startSession(c, user, pair)
}

// RefreshToken 优先读取 cookie，其次读取请求体中的 refreshToken。
func (h *Handler) RefreshToken(c *gin.Context) {
	token, _ := auth.FirstToken(c.Request, auth.FromCookie(auth.RefreshCookie))
	if token == "" {
		var req struct {
			RefreshToken string `json:"refreshToken"`
		}
		_ = c.ShouldBindJSON(&req)
		token = req.RefreshToken
	}
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "refresh token not found", "code": "NO_TOKEN"})
		return
	}
	pair, err := h.userSvc.Refresh(c.Request.Context(), token)
	if err != nil {
		if !errors.Is(err, auth.ErrTokenInvalid) {
			log.Error().Err(err).Msg("refresh token")
		}
		auth.ClearSessionCookies(c.Writer, h.cookies)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token", "code": "INVALID_TOKEN"})
		return
	}
	auth.SetSessionCookies(c.Writer, h.cookies, pair)
	c.JSON(http.StatusOK, pair)
}

func (h *Handler) Logout(c *gin.Context) {
	if err := h.userSvc.Logout(c.Request.Context(), auth.GetUserID(c)); err != nil {
		log.Warn().Err(err).Uint("user_id", auth.GetUserID(c)).Msg("logout")
	}
	auth.ClearSessionCookies(c.Writer, h.cookies)
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

func (h *Handler) Me(c *gin.Context) {
	user, err := h.userSvc.Me(c.Request.Context(), auth.GetUserID(c))
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		log.Error().Err(err).Msg("me")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load user"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

// CreateRoom 返回与对方的唯一房间，不存在时创建。
func (h *Handler) CreateRoom(c *gin.Context) {
	var req struct {
		OtherUserID uint `json:"otherUserId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	uid := auth.GetUserID(c)
	room, err := h.roomSvc.GetOrCreate(c.Request.Context(), uid, req.OtherUserID)
	switch {
	case errors.Is(err, service.ErrSameUser):
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot create a room with yourself"})
		return
	case errors.Is(err, service.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	case err != nil:
		log.Error().Err(err).Uint("user_id", uid).Uint("other_id", req.OtherUserID).Msg("create room")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create room"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": room})
}

// ListRooms 返回当前用户的房间及最近消息。
func (h *Handler) ListRooms(c *gin.Context) {
	rooms, err := h.roomSvc.List(c.Request.Context(), auth.GetUserID(c))
	if err != nil {
		log.Error().Err(err).Msg("list rooms")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list rooms"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

// ListMessages 处理获取房间消息列表请求，仅房间成员可见。
func (h *Handler) ListMessages(c *gin.Context) {
	roomID, err := strconv.Atoi(c.Param("id"))
	if err != nil || roomID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var beforeID uint
	if bid := c.Query("before_id"); bid != "" {
		if v, err := strconv.Atoi(bid); err == nil && v > 0 {
			beforeID = uint(v)
		}
	}
	msgs, err := h.roomSvc.History(c.Request.Context(), uint(roomID), auth.GetUserID(c), limit, beforeID)
	switch {
	case errors.Is(err, service.ErrRoomNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	case errors.Is(err, service.ErrAccessDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
		return
	case err != nil:
		log.Error().Err(err).Int("room_id", roomID).Msg("list messages")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list messages"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}
