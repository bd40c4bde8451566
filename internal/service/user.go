package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"pairchat/internal/auth"
	"pairchat/internal/lockout"
	"pairchat/internal/models"
	"pairchat/internal/store"

	"github.com/rs/zerolog/log"
)

// Mailer 是 UserService 需要的邮件能力。
type Mailer interface {
	SendOTP(ctx context.Context, to, code string, ttl time.Duration) error
	SendWelcome(ctx context.Context, to string)
}

// UserService 封装注册、验证码、登录与会话相关的业务逻辑。
type UserService struct {
	store     *store.Store
	authority *auth.Authority
	mailer    Mailer
	lockout   lockout.Store
	otpTTL    time.Duration
	now       func() time.Time
}

func NewUserService(st *store.Store, authority *auth.Authority, mailer Mailer, lock lockout.Store, otpTTL time.Duration) *UserService {
	return &UserService{store: st, authority: authority, mailer: mailer, lockout: lock, otpTTL: otpTTL, now: time.Now}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// generateOTP 返回 6 位数字验证码。
func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// issueOTP 生成并保存新验证码（只存哈希），再同步发送邮件。
func (s *UserService) issueOTP(ctx context.Context, user *models.User) error {
	code, err := generateOTP()
	if err != nil {
		return err
	}
	hash, err := auth.HashPassword(code)
	if err != nil {
		return err
	}
	expiry := s.now().Add(s.otpTTL)
	if err := s.store.SetOTP(ctx, user.ID, hash, &expiry); err != nil {
		return err
	}
	if err := s.mailer.SendOTP(ctx, user.Email, code, s.otpTTL); err != nil {
		log.Error().Err(err).Uint("user_id", user.ID).Msg("send otp email")
		return fmt.Errorf("%w: %v", ErrMailDelivery, err)
	}
	return nil
}

// Register 创建未验证的用户并发送验证码。
func (s *UserService) Register(ctx context.Context, email, password string) (*models.User, error) {
	email = normalizeEmail(email)
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	user, err := s.store.CreateUser(ctx, email, hash)
	if err != nil {
		if errors.Is(err, store.ErrEmailTaken) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	if err := s.issueOTP(ctx, user); err != nil {
		return user, err
	}
	return user, nil
}

// ResendOTP 为尚未验证的用户重新生成验证码，旧验证码随之失效。
func (s *UserService) ResendOTP(ctx context.Context, email string) error {
	user, err := s.store.UserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	if user.IsVerified {
		return ErrAlreadyVerified
	}
	return s.issueOTP(ctx, user)
}

// VerifyOTP 校验验证码，成功后标记邮箱已验证并开启会话。
func (s *UserService) VerifyOTP(ctx context.Context, email, code string) (*models.User, *auth.TokenPair, error) {
	user, err := s.store.UserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, ErrInvalidOTP
		}
		return nil, nil, err
	}
	if user.IsVerified {
		return nil, nil, ErrAlreadyVerified
	}
	if user.OTPHash == "" || user.OTPExpiry == nil || s.now().After(*user.OTPExpiry) {
		return nil, nil, ErrOTPExpired
	}
	if !auth.VerifyPassword(user.OTPHash, strings.TrimSpace(code)) {
		return nil, nil, ErrInvalidOTP
	}
	if err := s.store.MarkVerified(ctx, user.ID); err != nil {
		return nil, nil, err
	}
	user.IsVerified = true
	pair, err := s.authority.RotateSession(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	s.mailer.SendWelcome(ctx, user.Email)
	return user, pair, nil
}

// Login 校验邮箱密码，连续失败过多时暂时锁定。
func (s *UserService) Login(ctx context.Context, email, password string) (*models.User, *auth.TokenPair, error) {
	email = normalizeEmail(email)
	if locked, wait := s.lockout.IsLocked(ctx, email); locked {
		return nil, nil, &LockedError{RetryAfter: wait}
	}
	user, err := s.store.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.lockout.RecordFailure(ctx, email)
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}
	if !auth.VerifyPassword(user.PasswordHash, password) {
		s.lockout.RecordFailure(ctx, email)
		return nil, nil, ErrInvalidCredentials
	}
	if !user.IsVerified {
		return nil, nil, ErrNotVerified
	}
	s.lockout.RecordSuccess(ctx, email)
	pair, err := s.authority.RotateSession(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

// Refresh 轮换 refresh token；旧 token 随即失效。
func (s *UserService) Refresh(ctx context.Context, refreshToken string) (*auth.TokenPair, error) {
	return s.authority.Refresh(ctx, refreshToken)
}

func (s *UserService) Logout(ctx context.Context, userID uint) error {
	return s.authority.Revoke(ctx, userID)
}

func (s *UserService) Me(ctx context.Context, userID uint) (*models.User, error) {
	user, err := s.store.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}
