// Package library はユーザーの所有ゲームライブラリを組み立てる。
// 所有ゲームの並べ替えと件数制限、ゲーム詳細の並列取得（エンリッチメント）、
// およびゲーマーコンテキスト文書の生成を行う。
package library

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/steamctx/internal/metrics"
	"github.com/hitoshi/steamctx/internal/model"
)

// MaxGames は画面表示とエンリッチメントの対象とする最大ゲーム数。
const MaxGames = 50

// GamesFetcher はSteamからゲーム情報を取得するインターフェース。
// steam.Clientが実装する。
type GamesFetcher interface {
	GetOwnedGames(ctx context.Context, steamID string) ([]model.OwnedGame, error)
	GetGameDetails(ctx context.Context, appID int) (*model.GameDetails, error)
}

// FailurePolicy はゲーム詳細取得の一部が失敗したときの扱い。
type FailurePolicy int

const (
	// PartialResults は成功したゲームだけで結果を返し、失敗したゲームをFailuresに記録する。
	PartialResults FailurePolicy = iota
	// FailAll は1件でも失敗した場合に呼び出し全体を失敗させる。
	FailAll
)

// Options はServiceの動作設定。
type Options struct {
	// Concurrency はゲーム詳細の同時取得数の上限。0以下は無制限（対象ゲーム数と同じ）。
	Concurrency int
	Policy      FailurePolicy
}

// ItemFailure はゲーム詳細取得に失敗したゲーム。
type ItemFailure struct {
	AppID int
	Name  string
	Err   error
}

// ContextResult はエンリッチメントの結果。
type ContextResult struct {
	SteamID string
	SortKey model.SortKey
	// Games は並べ替え・件数制限後の対象ゲーム一覧。
	Games []model.OwnedGame
	// Entries は詳細を取得できたゲーム（Gamesの順序を保持、不在と失敗は除外）。
	Entries  []model.EnrichedGame
	Failures []ItemFailure
}

// Markdown はエンリッチ済みのゲームからゲーマーコンテキスト文書を生成する。
func (r *ContextResult) Markdown() string {
	return RenderMarkdown(r.SteamID, r.Entries)
}

// Service は所有ゲームの取得とエンリッチメントを行う。
type Service struct {
	fetcher GamesFetcher
	opts    Options
	metrics metrics.MetricsCollector
	logger  *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(fetcher GamesFetcher, opts Options, collector metrics.MetricsCollector, logger *slog.Logger) *Service {
	return &Service{
		fetcher: fetcher,
		opts:    opts,
		metrics: collector,
		logger:  logger,
	}
}

// Games は所有ゲームを取得し、指定キーの降順に並べて先頭MaxGames件を返す。
// 同値のゲームはSteamが返した順序を保つ。
func (s *Service) Games(ctx context.Context, steamID string, key model.SortKey) ([]model.OwnedGame, error) {
	games, err := s.fetcher.GetOwnedGames(ctx, steamID)
	if err != nil {
		return nil, fmt.Errorf("failed to get owned games: %w", err)
	}

	sorted := slices.Clone(games)
	slices.SortStableFunc(sorted, func(a, b model.OwnedGame) int {
		switch {
		case key.Less(a, b):
			return -1
		case key.Less(b, a):
			return 1
		default:
			return 0
		}
	})

	if len(sorted) > MaxGames {
		sorted = sorted[:MaxGames]
	}
	return sorted, nil
}

// detailsResult はゲーム1件分の詳細取得結果。
type detailsResult struct {
	details *model.GameDetails
	err     error
}

// Context は対象ゲームそれぞれの詳細を並列に取得し、ゲームと詳細の組を返す。
// 所有ゲーム一覧の取得失敗は常にエラーとなる。
// 詳細取得の失敗はFailurePolicyに従って扱う。
func (s *Service) Context(ctx context.Context, steamID string, key model.SortKey) (*ContextResult, error) {
	games, err := s.Games(ctx, steamID, key)
	if err != nil {
		return nil, err
	}

	results := s.fetchAllDetails(ctx, games)

	result := &ContextResult{
		SteamID: steamID,
		SortKey: key,
		Games:   games,
		Entries: make([]model.EnrichedGame, 0, len(games)),
	}
	for i, game := range games {
		r := results[i]
		switch {
		case r.err != nil:
			s.metrics.RecordEnrichment(metrics.EnrichmentFailure)
			result.Failures = append(result.Failures, ItemFailure{AppID: game.AppID, Name: game.Name, Err: r.err})
		case r.details == nil:
			s.metrics.RecordEnrichment(metrics.EnrichmentAbsent)
		default:
			s.metrics.RecordEnrichment(metrics.EnrichmentSuccess)
			result.Entries = append(result.Entries, model.EnrichedGame{Game: game, Details: r.details})
		}
	}

	if len(result.Failures) > 0 {
		s.logger.Warn("一部のゲーム詳細を取得できませんでした",
			slog.String("steam_id", steamID),
			slog.Int("failed", len(result.Failures)),
			slog.Int("total", len(games)),
		)
		if s.opts.Policy == FailAll {
			first := result.Failures[0]
			return nil, fmt.Errorf("failed to get details for app %d: %w", first.AppID, first.Err)
		}
	}

	return result, nil
}

// fetchAllDetails はゲームごとに1つのgoroutineで詳細を取得し、入力と同じ順序で結果を返す。
// 各goroutineは自身のエラーを記録してnilを返すため、1件の失敗で他の取得は中断されない。
func (s *Service) fetchAllDetails(ctx context.Context, games []model.OwnedGame) []detailsResult {
	results := make([]detailsResult, len(games))

	var g errgroup.Group
	if s.opts.Concurrency > 0 {
		g.SetLimit(s.opts.Concurrency)
	}

	for i, game := range games {
		g.Go(func() error {
			details, err := s.fetcher.GetGameDetails(ctx, game.AppID)
			results[i] = detailsResult{details: details, err: err}
			return nil
		})
	}
	_ = g.Wait()

	return results
}
