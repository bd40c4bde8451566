package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

type memStore struct {
	mu     sync.Mutex
	tokens map[uint]string
}

func newMemStore() *memStore { return &memStore{tokens: map[uint]string{}} }

func (m *memStore) SetRefreshToken(_ context.Context, userID uint, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[userID] = token
	return nil
}

func (m *memStore) SwapRefreshToken(_ context.Context, userID uint, old, next string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old == "" || m.tokens[userID] != old {
		return false, nil
	}
	m.tokens[userID] = next
	return true, nil
}

func newTestAuthority(store CredentialStore, opts ...Option) *Authority {
	return NewAuthority("access-secret", "refresh-secret", 15*time.Minute, 7*24*time.Hour, store, opts...)
}

func TestHashPassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{"valid password", "password123", false},
		{"empty password", "", false},
		{"long password", "a" + string(make([]byte, 70)), false}, // bcrypt max is 72 bytes
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := HashPassword(tt.password)
			if (err != nil) != tt.wantErr {
				t.Errorf("HashPassword() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && hash == "" {
				t.Error("HashPassword() returned empty hash")
			}
		})
	}
}

func TestVerifyPassword(t *testing.T) {
	password := "testpassword123"
	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}

	tests := []struct {
		name     string
		hash     string
		password string
		want     bool
	}{
		{"correct password", hash, password, true},
		{"wrong password", hash, "wrongpassword", false},
		{"empty password", hash, "", false},
		{"invalid hash", "invalidhash", password, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VerifyPassword(tt.hash, tt.password); got != tt.want {
				t.Errorf("VerifyPassword() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAccessToken_RoundTripAndExpiry(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	a := newTestAuthority(newMemStore(), WithClock(func() time.Time { return clock() }))

	for _, uid := range []uint{1, 42, 1 << 20} {
		tok, err := a.IssueAccessToken(uid)
		if err != nil {
			t.Fatalf("IssueAccessToken(%d) error = %v", uid, err)
		}
		got, err := a.VerifyAccessToken(tok)
		if err != nil || got != uid {
			t.Fatalf("VerifyAccessToken() = %d, %v; want %d", got, err, uid)
		}
	}

	tok, _ := a.IssueAccessToken(7)
	clock = func() time.Time { return now.Add(16 * time.Minute) }
	if _, err := a.VerifyAccessToken(tok); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("VerifyAccessToken() after expiry error = %v, want ErrTokenExpired", err)
	}
}

func TestVerifyAccessToken_Invalid(t *testing.T) {
	a := newTestAuthority(newMemStore())
	other := NewAuthority("wrong-secret", "refresh-secret", time.Minute, time.Hour, newMemStore())

	foreign, _ := other.IssueAccessToken(1)
	refresh, _ := a.IssueRefreshToken(1)

	tests := []struct {
		name  string
		token string
	}{
		{"wrong secret", foreign},
		{"refresh token as access", refresh},
		{"garbage", "invalid.token.here"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := a.VerifyAccessToken(tt.token); !errors.Is(err, ErrTokenInvalid) {
				t.Errorf("VerifyAccessToken() error = %v, want ErrTokenInvalid", err)
			}
		})
	}
}

func TestVerifyRefreshToken_SignatureOnly(t *testing.T) {
	a := newTestAuthority(newMemStore())
	tok, err := a.IssueRefreshToken(9)
	if err != nil {
		t.Fatalf("IssueRefreshToken() error = %v", err)
	}
	// Never persisted, still structurally valid.
	if uid, err := a.VerifyRefreshToken(tok); err != nil || uid != 9 {
		t.Fatalf("VerifyRefreshToken() = %d, %v; want 9", uid, err)
	}
	access, _ := a.IssueAccessToken(9)
	if _, err := a.VerifyRefreshToken(access); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("VerifyRefreshToken(access) error = %v, want ErrTokenInvalid", err)
	}
}

func TestRotateSession_OnlyLatestRefreshHonored(t *testing.T) {
	store := newMemStore()
	a := newTestAuthority(store)
	ctx := context.Background()

	first, err := a.RotateSession(ctx, 5)
	if err != nil {
		t.Fatalf("RotateSession() error = %v", err)
	}
	second, err := a.RotateSession(ctx, 5)
	if err != nil {
		t.Fatalf("RotateSession() error = %v", err)
	}
	if first.RefreshToken == second.RefreshToken {
		t.Fatal("consecutive rotations produced identical refresh tokens")
	}

	if _, err := a.Refresh(ctx, first.RefreshToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("Refresh(first) error = %v, want ErrTokenInvalid", err)
	}
	third, err := a.Refresh(ctx, second.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh(second) error = %v", err)
	}
	if _, err := a.Refresh(ctx, second.RefreshToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("Refresh(second) replay error = %v, want ErrTokenInvalid", err)
	}
	if uid, err := a.VerifyAccessToken(third.AccessToken); err != nil || uid != 5 {
		t.Fatalf("refreshed access token = %d, %v", uid, err)
	}
	if store.tokens[5] != third.RefreshToken {
		t.Fatal("store does not hold the latest refresh token")
	}
}

func TestRevoke_RejectsUnexpiredRefreshToken(t *testing.T) {
	a := newTestAuthority(newMemStore())
	ctx := context.Background()

	pair, err := a.RotateSession(ctx, 3)
	if err != nil {
		t.Fatalf("RotateSession() error = %v", err)
	}
	if err := a.Revoke(ctx, 3); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	if _, err := a.VerifyRefreshToken(pair.RefreshToken); err != nil {
		t.Fatalf("token should still verify structurally: %v", err)
	}
	if _, err := a.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("Refresh() after revoke error = %v, want ErrTokenInvalid", err)
	}
}

func TestRefresh_ExpiredLooksInvalid(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	a := newTestAuthority(newMemStore(), WithClock(func() time.Time { return clock() }))
	ctx := context.Background()

	pair, _ := a.RotateSession(ctx, 4)
	clock = func() time.Time { return now.Add(8 * 24 * time.Hour) }
	if _, err := a.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("Refresh(expired) error = %v, want ErrTokenInvalid", err)
	}
}

func TestFirstToken_Order(t *testing.T) {
	sources := []Extractor{FromCookie(AccessCookie), FromQuery(QueryToken), FromBearer()}

	tests := []struct {
		name   string
		cookie string
		query  string
		header string
		want   string
		found  bool
	}{
		{"cookie wins", "c", "q", "Bearer h", "c", true},
		{"query before header", "", "q", "Bearer h", "q", true},
		{"header last", "", "", "Bearer h", "h", true},
		{"lowercase bearer", "", "", "bearer h", "h", true},
		{"non bearer header", "", "", "Basic abc", "", false},
		{"nothing", "", "", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := "/room/1"
			if tt.query != "" {
				target += "?token=" + tt.query
			}
			r := httptest.NewRequest(http.MethodGet, target, nil)
			if tt.cookie != "" {
				r.AddCookie(&http.Cookie{Name: AccessCookie, Value: tt.cookie})
			}
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			got, ok := FirstToken(r, sources...)
			if got != tt.want || ok != tt.found {
				t.Errorf("FirstToken() = %q, %v; want %q, %v", got, ok, tt.want, tt.found)
			}
		})
	}
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	a := newTestAuthority(newMemStore())
	valid, _ := a.IssueAccessToken(11)

	r := gin.New()
	r.GET("/me", Middleware(a), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": GetUserID(c)})
	})

	tests := []struct {
		name   string
		setup  func(*http.Request)
		status int
	}{
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: AccessCookie, Value: valid}) }, http.StatusOK},
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+valid) }, http.StatusOK},
		{"missing", func(*http.Request) {}, http.StatusUnauthorized},
		{"invalid", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			tt.setup(req)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
		})
	}
}

func TestSessionCookies(t *testing.T) {
	w := httptest.NewRecorder()
	opts := CookieOptions{AccessTTL: 15 * time.Minute, RefreshTTL: 7 * 24 * time.Hour}
	SetSessionCookies(w, opts, &TokenPair{AccessToken: "a", RefreshToken: "r"})

	cookies := w.Result().Cookies()
	if len(cookies) != 2 {
		t.Fatalf("cookies = %d, want 2", len(cookies))
	}
	if cookies[0].Name != AccessCookie || cookies[0].Value != "a" || !cookies[0].HttpOnly {
		t.Errorf("access cookie = %+v", cookies[0])
	}
	if cookies[1].Name != RefreshCookie || cookies[1].MaxAge != int((7*24*time.Hour).Seconds()) {
		t.Errorf("refresh cookie = %+v", cookies[1])
	}

	w = httptest.NewRecorder()
	ClearSessionCookies(w, opts)
	for _, c := range w.Result().Cookies() {
		if c.MaxAge >= 0 || c.Value != "" {
			t.Errorf("cookie %s not cleared: %+v", c.Name, c)
		}
	}
}
