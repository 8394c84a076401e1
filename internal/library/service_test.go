package library

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hitoshi/steamctx/internal/metrics"
	"github.com/hitoshi/steamctx/internal/model"
)

// mockFetcher はGamesFetcherのモック実装。
type mockFetcher struct {
	getOwnedGamesFn  func(ctx context.Context, steamID string) ([]model.OwnedGame, error)
	getGameDetailsFn func(ctx context.Context, appID int) (*model.GameDetails, error)
}

func (m *mockFetcher) GetOwnedGames(ctx context.Context, steamID string) ([]model.OwnedGame, error) {
	return m.getOwnedGamesFn(ctx, steamID)
}

func (m *mockFetcher) GetGameDetails(ctx context.Context, appID int) (*model.GameDetails, error) {
	return m.getGameDetailsFn(ctx, appID)
}

func newTestService(fetcher GamesFetcher, opts Options) *Service {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	return NewService(fetcher, opts, metrics.Nop{}, logger)
}

func ownedGamesFn(games []model.OwnedGame) func(context.Context, string) ([]model.OwnedGame, error) {
	return func(context.Context, string) ([]model.OwnedGame, error) {
		return games, nil
	}
}

func detailsFor(appID int) *model.GameDetails {
	return &model.GameDetails{
		AppID: appID,
		Name:  fmt.Sprintf("Game %d", appID),
		Type:  model.GameTypeGame,
	}
}

func appIDs(games []model.OwnedGame) []int {
	ids := make([]int, len(games))
	for i, g := range games {
		ids[i] = g.AppID
	}
	return ids
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestGames_SortsByPlaytimeDescending_StableTies(t *testing.T) {
	games := []model.OwnedGame{
		{AppID: 1, Playtime: 1.0},
		{AppID: 2, Playtime: 5.0},
		{AppID: 3, Playtime: 1.0},
		{AppID: 4, Playtime: 9.5},
		{AppID: 5, Playtime: 1.0},
	}
	svc := newTestService(&mockFetcher{getOwnedGamesFn: ownedGamesFn(games)}, Options{})

	got, err := svc.Games(context.Background(), "1", model.SortByPlaytime)
	if err != nil {
		t.Fatalf("Games returned error: %v", err)
	}

	want := []int{4, 2, 1, 3, 5}
	if !equalInts(appIDs(got), want) {
		t.Errorf("order = %v, want %v", appIDs(got), want)
	}
}

func TestGames_SortsByLastPlayed(t *testing.T) {
	games := []model.OwnedGame{
		{AppID: 1, Playtime: 100, LastPlayed: 10},
		{AppID: 2, Playtime: 1, LastPlayed: 30},
		{AppID: 3, Playtime: 50, LastPlayed: 20},
	}
	svc := newTestService(&mockFetcher{getOwnedGamesFn: ownedGamesFn(games)}, Options{})

	got, err := svc.Games(context.Background(), "1", model.SortByLastPlayed)
	if err != nil {
		t.Fatalf("Games returned error: %v", err)
	}

	want := []int{2, 3, 1}
	if !equalInts(appIDs(got), want) {
		t.Errorf("order = %v, want %v", appIDs(got), want)
	}
}

func TestGames_TruncatesToMaxGames(t *testing.T) {
	games := make([]model.OwnedGame, 0, 75)
	for i := 0; i < 75; i++ {
		games = append(games, model.OwnedGame{AppID: i + 1, Playtime: float64(i + 1)})
	}
	svc := newTestService(&mockFetcher{getOwnedGamesFn: ownedGamesFn(games)}, Options{})

	got, err := svc.Games(context.Background(), "1", model.SortByPlaytime)
	if err != nil {
		t.Fatalf("Games returned error: %v", err)
	}

	if len(got) != MaxGames {
		t.Fatalf("len(games) = %d, want %d", len(got), MaxGames)
	}
	// 降順の先頭50件: 75..26
	if got[0].AppID != 75 || got[MaxGames-1].AppID != 26 {
		t.Errorf("first/last appid = %d/%d, want 75/26", got[0].AppID, got[MaxGames-1].AppID)
	}
}

func TestGames_FewerThanMax_ReturnsAll(t *testing.T) {
	games := []model.OwnedGame{{AppID: 1, Playtime: 1}, {AppID: 2, Playtime: 2}}
	svc := newTestService(&mockFetcher{getOwnedGamesFn: ownedGamesFn(games)}, Options{})

	got, err := svc.Games(context.Background(), "1", model.SortByPlaytime)
	if err != nil {
		t.Fatalf("Games returned error: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("len(games) = %d, want 2", len(got))
	}
}

// TestGames_DoesNotMutateFetcherSlice はフェッチャーが返したスライスを並べ替えないことを検証する。
func TestGames_DoesNotMutateFetcherSlice(t *testing.T) {
	games := []model.OwnedGame{{AppID: 1, Playtime: 1}, {AppID: 2, Playtime: 2}}
	svc := newTestService(&mockFetcher{getOwnedGamesFn: ownedGamesFn(games)}, Options{})

	if _, err := svc.Games(context.Background(), "1", model.SortByPlaytime); err != nil {
		t.Fatalf("Games returned error: %v", err)
	}
	if games[0].AppID != 1 {
		t.Errorf("fetcher slice was reordered: %v", appIDs(games))
	}
}

func TestGames_UpstreamError_Propagates(t *testing.T) {
	upErr := &model.UpstreamError{Method: "GET", URL: "https://api.example/owned", StatusCode: 500}
	svc := newTestService(&mockFetcher{
		getOwnedGamesFn: func(context.Context, string) ([]model.OwnedGame, error) {
			return nil, upErr
		},
	}, Options{})

	_, err := svc.Games(context.Background(), "1", model.SortByPlaytime)
	if !errors.Is(err, upErr) {
		t.Errorf("err = %v, want wrapped UpstreamError", err)
	}
}

func TestContext_ZipsInOrderAndExcludesAbsent(t *testing.T) {
	games := []model.OwnedGame{
		{AppID: 10, Name: "A", Playtime: 30},
		{AppID: 20, Name: "B (DLC)", Playtime: 20},
		{AppID: 30, Name: "C", Playtime: 10},
	}
	svc := newTestService(&mockFetcher{
		getOwnedGamesFn: ownedGamesFn(games),
		getGameDetailsFn: func(_ context.Context, appID int) (*model.GameDetails, error) {
			// 先頭のゲームほど遅く返し、完了順と結果順が独立していることを確認する
			time.Sleep(time.Duration(40-appID) * time.Millisecond)
			if appID == 20 {
				return nil, nil
			}
			return detailsFor(appID), nil
		},
	}, Options{})

	result, err := svc.Context(context.Background(), "1", model.SortByPlaytime)
	if err != nil {
		t.Fatalf("Context returned error: %v", err)
	}

	if len(result.Games) != 3 {
		t.Errorf("len(Games) = %d, want 3", len(result.Games))
	}
	if len(result.Entries) != 2 {
		t.Fatalf("len(Entries) = %d, want 2", len(result.Entries))
	}
	for i, wantID := range []int{10, 30} {
		e := result.Entries[i]
		if e.Game.AppID != wantID || e.Details == nil || e.Details.AppID != wantID {
			t.Errorf("Entries[%d] = %+v, want appid %d with matching details", i, e, wantID)
		}
	}
	if len(result.Failures) != 0 {
		t.Errorf("Failures = %+v, want none", result.Failures)
	}
}

func TestContext_PartialResults_RecordsFailures(t *testing.T) {
	games := []model.OwnedGame{
		{AppID: 1, Name: "ok-1", Playtime: 3},
		{AppID: 2, Name: "broken", Playtime: 2},
		{AppID: 3, Name: "ok-2", Playtime: 1},
	}
	upErr := &model.UpstreamError{Method: "GET", URL: "https://store.example/appdetails?appids=2", StatusCode: 500}
	svc := newTestService(&mockFetcher{
		getOwnedGamesFn: ownedGamesFn(games),
		getGameDetailsFn: func(_ context.Context, appID int) (*model.GameDetails, error) {
			if appID == 2 {
				return nil, upErr
			}
			return detailsFor(appID), nil
		},
	}, Options{Policy: PartialResults})

	result, err := svc.Context(context.Background(), "1", model.SortByPlaytime)
	if err != nil {
		t.Fatalf("Context returned error: %v", err)
	}

	if len(result.Entries) != 2 {
		t.Errorf("len(Entries) = %d, want 2", len(result.Entries))
	}
	if len(result.Failures) != 1 {
		t.Fatalf("len(Failures) = %d, want 1", len(result.Failures))
	}
	f := result.Failures[0]
	if f.AppID != 2 || f.Name != "broken" || !errors.Is(f.Err, upErr) {
		t.Errorf("Failures[0] = %+v, want appid 2 broken with UpstreamError", f)
	}
}

func TestContext_FailAll_ReturnsError(t *testing.T) {
	games := []model.OwnedGame{
		{AppID: 1, Name: "ok", Playtime: 2},
		{AppID: 2, Name: "broken", Playtime: 1},
	}
	svc := newTestService(&mockFetcher{
		getOwnedGamesFn: ownedGamesFn(games),
		getGameDetailsFn: func(_ context.Context, appID int) (*model.GameDetails, error) {
			if appID == 2 {
				return nil, &model.UpstreamError{Method: "GET", URL: "u", StatusCode: 503}
			}
			return detailsFor(appID), nil
		},
	}, Options{Policy: FailAll})

	result, err := svc.Context(context.Background(), "1", model.SortByPlaytime)
	if err == nil {
		t.Fatalf("expected error, got result %+v", result)
	}
	if !model.IsUpstreamError(err) {
		t.Errorf("err = %v, want wrapped UpstreamError", err)
	}
}

// TestContext_FailureDoesNotCancelSiblings は1件の失敗で他の取得が中断されないことを検証する。
func TestContext_FailureDoesNotCancelSiblings(t *testing.T) {
	games := []model.OwnedGame{
		{AppID: 1, Playtime: 2},
		{AppID: 2, Playtime: 1},
	}
	svc := newTestService(&mockFetcher{
		getOwnedGamesFn: ownedGamesFn(games),
		getGameDetailsFn: func(ctx context.Context, appID int) (*model.GameDetails, error) {
			if appID == 1 {
				return nil, errors.New("boom")
			}
			time.Sleep(20 * time.Millisecond)
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return detailsFor(appID), nil
		},
	}, Options{})

	result, err := svc.Context(context.Background(), "1", model.SortByPlaytime)
	if err != nil {
		t.Fatalf("Context returned error: %v", err)
	}
	if len(result.Entries) != 1 || result.Entries[0].Game.AppID != 2 {
		t.Errorf("Entries = %+v, want only appid 2", result.Entries)
	}
}

// TestContext_UnboundedFanOut は上限なしの場合に全件が同時に取得されることを検証する。
func TestContext_UnboundedFanOut(t *testing.T) {
	const n = 8
	games := make([]model.OwnedGame, n)
	for i := range games {
		games[i] = model.OwnedGame{AppID: i + 1, Playtime: float64(n - i)}
	}

	var arrived sync.WaitGroup
	arrived.Add(n)
	allArrived := make(chan struct{})
	go func() {
		arrived.Wait()
		close(allArrived)
	}()

	svc := newTestService(&mockFetcher{
		getOwnedGamesFn: ownedGamesFn(games),
		getGameDetailsFn: func(_ context.Context, appID int) (*model.GameDetails, error) {
			arrived.Done()
			select {
			case <-allArrived:
				return detailsFor(appID), nil
			case <-time.After(2 * time.Second):
				return nil, errors.New("fetches did not run concurrently")
			}
		},
	}, Options{})

	result, err := svc.Context(context.Background(), "1", model.SortByPlaytime)
	if err != nil {
		t.Fatalf("Context returned error: %v", err)
	}
	if len(result.Failures) != 0 {
		t.Errorf("Failures = %+v, want none", result.Failures)
	}
	if len(result.Entries) != n {
		t.Errorf("len(Entries) = %d, want %d", len(result.Entries), n)
	}
}

func TestContext_ConcurrencyLimit(t *testing.T) {
	games := make([]model.OwnedGame, 20)
	for i := range games {
		games[i] = model.OwnedGame{AppID: i + 1, Playtime: float64(20 - i)}
	}

	var inFlight, maxInFlight atomic.Int32
	svc := newTestService(&mockFetcher{
		getOwnedGamesFn: ownedGamesFn(games),
		getGameDetailsFn: func(_ context.Context, appID int) (*model.GameDetails, error) {
			cur := inFlight.Add(1)
			for {
				prev := maxInFlight.Load()
				if cur <= prev || maxInFlight.CompareAndSwap(prev, cur) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			inFlight.Add(-1)
			return detailsFor(appID), nil
		},
	}, Options{Concurrency: 3})

	result, err := svc.Context(context.Background(), "1", model.SortByPlaytime)
	if err != nil {
		t.Fatalf("Context returned error: %v", err)
	}
	if len(result.Entries) != 20 {
		t.Errorf("len(Entries) = %d, want 20", len(result.Entries))
	}
	if maxInFlight.Load() > 3 {
		t.Errorf("max in-flight = %d, want <= 3", maxInFlight.Load())
	}
}

func TestContext_OwnedGamesFailure_AlwaysFails(t *testing.T) {
	svc := newTestService(&mockFetcher{
		getOwnedGamesFn: func(context.Context, string) ([]model.OwnedGame, error) {
			return nil, &model.UpstreamError{Method: "GET", URL: "u", StatusCode: 500}
		},
		getGameDetailsFn: func(context.Context, int) (*model.GameDetails, error) {
			t.Error("details must not be fetched when owned games fail")
			return nil, nil
		},
	}, Options{Policy: PartialResults})

	if _, err := svc.Context(context.Background(), "1", model.SortByPlaytime); !model.IsUpstreamError(err) {
		t.Errorf("err = %v, want UpstreamError", err)
	}
}

func TestContext_OnlyTopMaxGamesEnriched(t *testing.T) {
	games := make([]model.OwnedGame, 60)
	for i := range games {
		games[i] = model.OwnedGame{AppID: i + 1, Playtime: float64(i + 1)}
	}

	var calls atomic.Int32
	svc := newTestService(&mockFetcher{
		getOwnedGamesFn: ownedGamesFn(games),
		getGameDetailsFn: func(_ context.Context, appID int) (*model.GameDetails, error) {
			calls.Add(1)
			if appID <= 10 {
				t.Errorf("appid %d is outside the top %d and must not be fetched", appID, MaxGames)
			}
			return detailsFor(appID), nil
		},
	}, Options{})

	if _, err := svc.Context(context.Background(), "1", model.SortByPlaytime); err != nil {
		t.Fatalf("Context returned error: %v", err)
	}
	if calls.Load() != MaxGames {
		t.Errorf("detail fetches = %d, want %d", calls.Load(), MaxGames)
	}
}
