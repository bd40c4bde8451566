package auth

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("invalid token")
)

type Claims struct {
	UserID uint `json:"userId"`
	jwt.RegisteredClaims
}

type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// CredentialStore 保存每个用户唯一有效的 refresh token。
type CredentialStore interface {
	SetRefreshToken(ctx context.Context, userID uint, token string) error
	SwapRefreshToken(ctx context.Context, userID uint, old, next string) (bool, error)
}

// Authority 负责签发、校验与轮换两类 token。
// 校验是纯计算；只有轮换与吊销会写入 CredentialStore。
type Authority struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	store         CredentialStore
	now           func() time.Time
}

type Option func(*Authority)

// WithClock 替换时间来源，便于测试过期逻辑。
func WithClock(now func() time.Time) Option {
	return func(a *Authority) { a.now = now }
}

func NewAuthority(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration, store CredentialStore, opts ...Option) *Authority {
	a := &Authority{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		store:         store,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Authority) sign(userID uint, secret []byte, ttl time.Duration) (string, error) {
	now := a.now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatUint(uint64(userID), 10),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func (a *Authority) verify(tokenStr string, secret []byte) (uint, error) {
	if tokenStr == "" {
		return 0, ErrTokenInvalid
	}
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, ErrTokenExpired
		}
		return 0, ErrTokenInvalid
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == 0 {
		return 0, ErrTokenInvalid
	}
	return claims.UserID, nil
}

// IssueAccessToken 签发短期 access token，无副作用。
func (a *Authority) IssueAccessToken(userID uint) (string, error) {
	return a.sign(userID, a.accessSecret, a.accessTTL)
}

// IssueRefreshToken 签发长期 refresh token，由调用方负责持久化。
func (a *Authority) IssueRefreshToken(userID uint) (string, error) {
	return a.sign(userID, a.refreshSecret, a.refreshTTL)
}

func (a *Authority) VerifyAccessToken(token string) (uint, error) {
	return a.verify(token, a.accessSecret)
}

// VerifyRefreshToken 只做签名与过期校验，不访问存储。
func (a *Authority) VerifyRefreshToken(token string) (uint, error) {
	return a.verify(token, a.refreshSecret)
}

func (a *Authority) issuePair(userID uint) (*TokenPair, error) {
	at, err := a.IssueAccessToken(userID)
	if err != nil {
		return nil, err
	}
	rt, err := a.IssueRefreshToken(userID)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: at, RefreshToken: rt}, nil
}

// RotateSession 签发新 token 对并覆盖用户已保存的 refresh token。
func (a *Authority) RotateSession(ctx context.Context, userID uint) (*TokenPair, error) {
	pair, err := a.issuePair(userID)
	if err != nil {
		return nil, err
	}
	if err := a.store.SetRefreshToken(ctx, userID, pair.RefreshToken); err != nil {
		return nil, err
	}
	return pair, nil
}

// Revoke 清除用户的 refresh token，此后旧 token 均无法刷新。
func (a *Authority) Revoke(ctx context.Context, userID uint) error {
	return a.store.SetRefreshToken(ctx, userID, "")
}

// Refresh 校验 refresh token 并与库中值做比较交换，成功后返回新的 token 对。
// 任何不一致都返回 ErrTokenInvalid，不区分具体原因。
func (a *Authority) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	userID, err := a.VerifyRefreshToken(refreshToken)
	if err != nil {
		return nil, ErrTokenInvalid
	}
	pair, err := a.issuePair(userID)
	if err != nil {
		return nil, err
	}
	swapped, err := a.store.SwapRefreshToken(ctx, userID, refreshToken, pair.RefreshToken)
	if err != nil {
		return nil, err
	}
	if !swapped {
		return nil, ErrTokenInvalid
	}
	return pair, nil
}

func HashPassword(pw string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	return string(b), err
}

func VerifyPassword(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}
