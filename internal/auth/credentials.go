package auth

import (
	"net/http"
	"strings"
	"time"
)

const (
	AccessCookie  = "accessToken"
	RefreshCookie = "refreshToken"
	QueryToken    = "token"
)

// Extractor 从请求的某一个位置取出凭证，不存在时返回空串。
type Extractor func(r *http.Request) string

func FromCookie(name string) Extractor {
	return func(r *http.Request) string {
		c, err := r.Cookie(name)
		if err != nil {
			return ""
		}
		return c.Value
	}
}

func FromQuery(name string) Extractor {
	return func(r *http.Request) string {
		return r.URL.Query().Get(name)
	}
}

func FromBearer() Extractor {
	return func(r *http.Request) string {
		authz := r.Header.Get("Authorization")
		if len(authz) < 7 || !strings.EqualFold(authz[:7], "bearer ") {
			return ""
		}
		return strings.TrimSpace(authz[7:])
	}
}

// FirstToken 按顺序尝试各个来源，第一个非空值胜出。
func FirstToken(r *http.Request, sources ...Extractor) (string, bool) {
	for _, src := range sources {
		if tok := src(r); tok != "" {
			return tok, true
		}
	}
	return "", false
}

type CookieOptions struct {
	Domain     string
	Secure     bool
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// SetSessionCookies 写入 access / refresh 两个 HttpOnly cookie。
func SetSessionCookies(w http.ResponseWriter, opts CookieOptions, pair *TokenPair) {
	http.SetCookie(w, &http.Cookie{Name: AccessCookie, Value: pair.AccessToken, Path: "/", Domain: opts.Domain, MaxAge: int(opts.AccessTTL.Seconds()), HttpOnly: true, Secure: opts.Secure, SameSite: http.SameSiteLaxMode})
	http.SetCookie(w, &http.Cookie{Name: RefreshCookie, Value: pair.RefreshToken, Path: "/api/v1/auth", Domain: opts.Domain, MaxAge: int(opts.RefreshTTL.Seconds()), HttpOnly: true, Secure: opts.Secure, SameSite: http.SameSiteLaxMode})
}

func ClearSessionCookies(w http.ResponseWriter, opts CookieOptions) {
	http.SetCookie(w, &http.Cookie{Name: AccessCookie, Value: "", Path: "/", Domain: opts.Domain, MaxAge: -1, HttpOnly: true, Secure: opts.Secure, SameSite: http.SameSiteLaxMode})
	http.SetCookie(w, &http.Cookie{Name: RefreshCookie, Value: "", Path: "/api/v1/auth", Domain: opts.Domain, MaxAge: -1, HttpOnly: true, Secure: opts.Secure, SameSite: http.SameSiteLaxMode})
}
