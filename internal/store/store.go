package store

import (
	"context"
	"errors"
	"time"

	"pairchat/internal/models"

	"gorm.io/gorm"
)

var (
	ErrNotFound   = errors.New("record not found")
	ErrEmailTaken = errors.New("email taken")
	ErrSameUser   = errors.New("room requires two distinct users")
)

// Store 是基于 gorm 的持久化层，负责用户、房间与消息。
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB 暴露底层连接，供健康检查使用。
func (s *Store) DB() *gorm.DB { return s.db }

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *Store) CreateUser(ctx context.Context, email, passwordHash string) (*models.User, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrEmailTaken
	}
	user := models.User{Email: email, PasswordHash: passwordHash}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (s *Store) UserByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	users := make([]models.User, 0)
	err := s.db.WithContext(ctx).Select("id", "email", "is_verified", "created_at").Order("id asc").Find(&users).Error
	return users, err
}

// SetOTP 保存一次性验证码的哈希与过期时间；hash 为空时清除。
func (s *Store) SetOTP(ctx context.Context, userID uint, hash string, expiry *time.Time) error {
	return s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).
		Updates(map[string]any{"otp_hash": hash, "otp_expiry": expiry}).Error
}

// MarkVerified 标记邮箱已验证并清除验证码。
func (s *Store) MarkVerified(ctx context.Context, userID uint) error {
	return s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).
		Updates(map[string]any{"is_verified": true, "otp_hash": "", "otp_expiry": nil}).Error
}

// SetRefreshToken 覆盖用户当前的 refresh token，空字符串表示吊销。
func (s *Store) SetRefreshToken(ctx context.Context, userID uint, token string) error {
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Update("refresh_token", token)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	// mysql 只统计实际变化的行，值未变时需要再确认用户是否存在
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrNotFound
	}
	return nil
}

// SwapRefreshToken 仅当库中值与 old 完全一致时替换为 next。
func (s *Store) SwapRefreshToken(ctx context.Context, userID uint, old, next string) (bool, error) {
	if old == "" {
		return false, nil
	}
	res := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND refresh_token = ?", userID, old).
		Update("refresh_token", next)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *Store) RoomByID(ctx context.Context, id uint) (*models.Room, error) {
	var room models.Room
	if err := s.db.WithContext(ctx).First(&room, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &room, nil
}

// GetOrCreateRoom 以 (min, max) 的规范顺序查找或创建两人房间。
func (s *Store) GetOrCreateRoom(ctx context.Context, a, b uint) (*models.Room, error) {
	if a == b {
		return nil, ErrSameUser
	}
	lo, hi := a, b
	if lo > hi {
		lo, hi = hi, lo
	}
	var room models.Room
	err := s.db.WithContext(ctx).
		Where(models.Room{User1ID: lo, User2ID: hi}).
		FirstOrCreate(&room).Error
	if err != nil && isUniqueViolation(err) {
		// 并发创建时另一方已插入，重新读取即可。
		err = s.db.WithContext(ctx).Where("user1_id = ? AND user2_id = ?", lo, hi).First(&room).Error
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// ListRoomsForUser 返回用户参与的全部房间（新建在前）及各自最近一条消息。
func (s *Store) ListRoomsForUser(ctx context.Context, userID uint) ([]models.RoomSummary, error) {
	var rooms []models.Room
	if err := s.db.WithContext(ctx).
		Where("user1_id = ? OR user2_id = ?", userID, userID).
		Order("created_at desc, id desc").
		Find(&rooms).Error; err != nil {
		return nil, err
	}
	out := make([]models.RoomSummary, 0, len(rooms))
	if len(rooms) == 0 {
		return out, nil
	}
	ids := make([]uint, 0, len(rooms))
	for _, r := range rooms {
		ids = append(ids, r.ID)
	}
	latest := s.db.Model(&models.Message{}).Select("MAX(id)").Where("room_id IN ?", ids).Group("room_id")
	var msgs []models.Message
	if err := s.db.WithContext(ctx).Where("id IN (?)", latest).Find(&msgs).Error; err != nil {
		return nil, err
	}
	last := make(map[uint]*models.Message, len(msgs))
	for i := range msgs {
		last[msgs[i].RoomID] = &msgs[i]
	}
	for _, r := range rooms {
		out = append(out, models.RoomSummary{Room: r, LastMessage: last[r.ID]})
	}
	return out, nil
}

func (s *Store) CreateMessage(ctx context.Context, roomID, senderID uint, content string) (*models.Message, error) {
	msg := models.Message{RoomID: roomID, SenderID: senderID, Content: content}
	if err := s.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return nil, err
	}
	return &msg, nil
}

// ListMessages 分页查询房间消息，按创建顺序升序返回。
func (s *Store) ListMessages(ctx context.Context, roomID uint, limit int, beforeID uint) ([]models.Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := s.db.WithContext(ctx).Where("room_id = ?", roomID)
	if beforeID > 0 {
		q = q.Where("id < ?", beforeID)
	}
	var msgs []models.Message
	if err := q.Order("id desc").Limit(limit).Find(&msgs).Error; err != nil {
		return nil, err
	}
	// 反转为升序
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// isUniqueViolation 依赖 gorm.Config.TranslateError 把驱动错误翻译为 ErrDuplicatedKey。
func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
