// Package session は署名付きCookieによるログインセッションを提供する。
// サーバー側にセッションストアは持たず、Steam IDをHS256署名のJWTとしてCookieに保持する。
package session

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// CookieName はセッションCookieの名前。
	CookieName = "steamctx_session"

	// tokenIssuer はセッショントークンのiss。
	tokenIssuer = "steamctx"
)

// ErrNoSession はリクエストにセッションCookieが無いことを示す。
var ErrNoSession = errors.New("session not found")

// steamIDFormat はSteam IDとして受け付ける形式（10進数字のみ）。
var steamIDFormat = regexp.MustCompile(`^\d+$`)

// Options はManagerの設定。
type Options struct {
	SecretKey string
	MaxAge    time.Duration
	// Secure はCookieにSecure属性を付与するかどうか。httpsで配信する環境でtrueにする。
	Secure bool
}

// Manager はセッショントークンの発行・検証とCookieの読み書きを行う。
type Manager struct {
	secret []byte
	maxAge time.Duration
	secure bool
	now    func() time.Time // テスト用に差し替え可能
}

// NewManager はManagerの新しいインスタンスを生成する。
func NewManager(opts Options) (*Manager, error) {
	if opts.SecretKey == "" {
		return nil, errors.New("session secret key is empty")
	}
	if opts.MaxAge <= 0 {
		return nil, fmt.Errorf("session max age must be positive: %v", opts.MaxAge)
	}
	return &Manager{
		secret: []byte(opts.SecretKey),
		maxAge: opts.MaxAge,
		secure: opts.Secure,
		now:    time.Now,
	}, nil
}

// Issue はSteam IDを主体とする署名済みトークンを発行する。
func (m *Manager) Issue(steamID string) (string, error) {
	if !steamIDFormat.MatchString(steamID) {
		return "", fmt.Errorf("invalid steam id: %q", steamID)
	}

	now := m.now()
	claims := &jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   steamID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.maxAge)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// Parse はトークンの署名・発行者・有効期限を検証し、Steam IDを返す。
func (m *Manager) Parse(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(token *jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithIssuer(tokenIssuer),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return "", fmt.Errorf("invalid session token: %w", err)
	}

	steamID, err := token.Claims.GetSubject()
	if err != nil {
		return "", fmt.Errorf("failed to get subject from session token: %w", err)
	}
	if !steamIDFormat.MatchString(steamID) {
		return "", fmt.Errorf("invalid steam id in session token: %q", steamID)
	}
	return steamID, nil
}

// SteamID はリクエストのセッションCookieを検証し、Steam IDを返す。
// Cookieが無い場合はErrNoSessionを返す。
func (m *Manager) SteamID(r *http.Request) (string, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return "", ErrNoSession
	}
	return m.Parse(cookie.Value)
}

// Login はSteam IDのセッションCookieを発行する。
func (m *Manager) Login(w http.ResponseWriter, steamID string) error {
	token, err := m.Issue(steamID)
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(m.maxAge / time.Second),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Logout はセッションCookieを削除する。
func (m *Manager) Logout(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
