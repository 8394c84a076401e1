package handler

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/hitoshi/steamctx/internal/library"
	"github.com/hitoshi/steamctx/internal/model"
	"github.com/hitoshi/steamctx/internal/session"
)

// --- モック定義 ---

type mockLoginVerifier struct {
	generateLoginURLFn func(callbackURL string) string
	processFn          func(ctx context.Context, params url.Values) (string, error)
}

func (m *mockLoginVerifier) GenerateLoginURL(callbackURL string) string {
	if m.generateLoginURLFn != nil {
		return m.generateLoginURLFn(callbackURL)
	}
	return "https://steamcommunity.com/openid/login"
}

func (m *mockLoginVerifier) ProcessPostLoginParams(ctx context.Context, params url.Values) (string, error) {
	if m.processFn != nil {
		return m.processFn(ctx, params)
	}
	return "", &model.LoginError{Reason: model.LoginMissingSignature}
}

type mockSessionManager struct {
	steamIDFn   func(r *http.Request) (string, error)
	loginFn     func(w http.ResponseWriter, steamID string) error
	logoutCalls int
}

func (m *mockSessionManager) SteamID(r *http.Request) (string, error) {
	if m.steamIDFn != nil {
		return m.steamIDFn(r)
	}
	return "", session.ErrNoSession
}

func (m *mockSessionManager) Login(w http.ResponseWriter, steamID string) error {
	if m.loginFn != nil {
		return m.loginFn(w, steamID)
	}
	return nil
}

func (m *mockSessionManager) Logout(w http.ResponseWriter) {
	m.logoutCalls++
}

type mockLibraryService struct {
	gamesFn   func(ctx context.Context, steamID string, key model.SortKey) ([]model.OwnedGame, error)
	contextFn func(ctx context.Context, steamID string, key model.SortKey) (*library.ContextResult, error)
}

func (m *mockLibraryService) Games(ctx context.Context, steamID string, key model.SortKey) ([]model.OwnedGame, error) {
	if m.gamesFn != nil {
		return m.gamesFn(ctx, steamID, key)
	}
	return nil, nil
}

func (m *mockLibraryService) Context(ctx context.Context, steamID string, key model.SortKey) (*library.ContextResult, error) {
	if m.contextFn != nil {
		return m.contextFn(ctx, steamID, key)
	}
	return &library.ContextResult{SteamID: steamID, SortKey: key}, nil
}

type mockOwnedGamesFetcher struct {
	getOwnedGamesFn func(ctx context.Context, steamID string) ([]model.OwnedGame, error)
}

func (m *mockOwnedGamesFetcher) GetOwnedGames(ctx context.Context, steamID string) ([]model.OwnedGame, error) {
	if m.getOwnedGamesFn != nil {
		return m.getOwnedGamesFn(ctx, steamID)
	}
	return nil, nil
}

type mockRenderer struct {
	pageFn    func(w http.ResponseWriter, status int, name string, data any) error
	partialFn func(w http.ResponseWriter, status int, name string, data any) error
}

func (m *mockRenderer) Page(w http.ResponseWriter, status int, name string, data any) error {
	if m.pageFn != nil {
		return m.pageFn(w, status, name, data)
	}
	return nil
}

func (m *mockRenderer) Partial(w http.ResponseWriter, status int, name string, data any) error {
	if m.partialFn != nil {
		return m.partialFn(w, status, name, data)
	}
	return nil
}

// mockMetrics はログイン結果の記録回数を数える。
type mockMetrics struct {
	mu           sync.Mutex
	loginSuccess int
	loginFailure int
}

func (m *mockMetrics) RecordUpstreamStatus(string, int) {}
func (m *mockMetrics) RecordUpstreamFailure(string) {}
func (m *mockMetrics) RecordUpstreamLatency(string, time.Duration) {}
func (m *mockMetrics) RecordCacheLookup(string, bool) {}
func (m *mockMetrics) RecordEnrichment(string) {}
func (m *mockMetrics) RecordLogin(success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if success {
		m.loginSuccess++
	} else {
		m.loginFailure++
	}
}

func sampleGames() []model.OwnedGame {
	return []model.OwnedGame{
		{AppID: 10, Name: "Counter-Strike", Playtime: 2.1, IconID: "abc", LastPlayed: 1700000000},
		{AppID: 30, Name: "Day of Defeat", Playtime: 0.5, IconID: "def", LastPlayed: 1600000000},
	}
}
