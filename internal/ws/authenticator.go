package ws

import (
	"errors"
	"net/http"

	"pairchat/internal/auth"
)

var (
	ErrMissingCredential = errors.New("missing credential")
	ErrInvalidCredential = errors.New("invalid credential")
)

// TokenVerifier 校验 access token 并返回用户 id。
type TokenVerifier interface {
	VerifyAccessToken(token string) (uint, error)
}

// Authenticator 按固定顺序查找凭证：cookie、query、Authorization 头。
type Authenticator struct {
	verifier TokenVerifier
	sources  []auth.Extractor
}

func NewAuthenticator(v TokenVerifier) *Authenticator {
	return &Authenticator{
		verifier: v,
		sources: []auth.Extractor{
			auth.FromCookie(auth.AccessCookie),
			auth.FromQuery(auth.QueryToken),
			auth.FromBearer(),
		},
	}
}

// Authenticate 只使用第一个找到的凭证；过期与伪造都视为无效。
func (a *Authenticator) Authenticate(r *http.Request) (uint, error) {
	token, ok := auth.FirstToken(r, a.sources...)
	if !ok {
		return 0, ErrMissingCredential
	}
	uid, err := a.verifier.VerifyAccessToken(token)
	if err != nil {
		return 0, ErrInvalidCredential
	}
	return uid, nil
}
