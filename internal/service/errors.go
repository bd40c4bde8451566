package service

import (
	"errors"
	"fmt"
	"time"
)

// 业务层通用错误，handler 可根据错误类型映射到合适的 HTTP 状态码。
var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotVerified        = errors.New("email not verified")
	ErrAlreadyVerified    = errors.New("email already verified")
	ErrInvalidOTP         = errors.New("invalid otp")
	ErrOTPExpired         = errors.New("otp expired")
	ErrAccountLocked      = errors.New("account temporarily locked")
	ErrMailDelivery       = errors.New("failed to send email")
	ErrUserNotFound       = errors.New("user not found")
	ErrRoomNotFound       = errors.New("room not found")
	ErrAccessDenied       = errors.New("access denied")
	ErrSameUser           = errors.New("cannot create a room with yourself")
)

// LockedError 携带剩余冷却时间，errors.Is 与 ErrAccountLocked 匹配。
type LockedError struct {
	RetryAfter time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("%s, retry after %s", ErrAccountLocked, e.RetryAfter.Round(time.Second))
}

func (e *LockedError) Is(target error) bool { return target == ErrAccountLocked }
