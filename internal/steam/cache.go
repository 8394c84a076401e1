package steam

import (
	"slices"
	"sync"

	"github.com/hitoshi/steamctx/internal/model"
)

// GamesCache はSteam APIの取得結果をプロセスの生存期間中保持するインメモリキャッシュ。
// 所有ゲーム一覧はSteam IDごと、ゲーム詳細はApp IDごとに保持する。
// エビクションやTTLは持たない。
type GamesCache struct {
	mu         sync.RWMutex
	ownedGames map[string][]model.OwnedGame
	appDetails map[int]*model.GameDetails // nilは「ゲームではない」ことのキャッシュ
}

// NewGamesCache は空のGamesCacheを生成する。
func NewGamesCache() *GamesCache {
	return &GamesCache{
		ownedGames: make(map[string][]model.OwnedGame),
		appDetails: make(map[int]*model.GameDetails),
	}
}

// OwnedGames はキャッシュ済みの所有ゲーム一覧を返す。
// 返すスライスはコピーであり、呼び出し元が並べ替えてもキャッシュには影響しない。
// 空一覧もキャッシュ済みとして扱う。
func (c *GamesCache) OwnedGames(steamID string) ([]model.OwnedGame, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	games, ok := c.ownedGames[steamID]
	if !ok {
		return nil, false
	}
	return slices.Clone(games), true
}

// StoreOwnedGames は所有ゲーム一覧をキャッシュする。
func (c *GamesCache) StoreOwnedGames(steamID string, games []model.OwnedGame) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if games == nil {
		games = []model.OwnedGame{}
	}
	c.ownedGames[steamID] = slices.Clone(games)
}

// GameDetails はキャッシュ済みのゲーム詳細を返す。
// 2番目の戻り値がtrueで詳細がnilの場合は「ゲームではない」結果がキャッシュされている。
func (c *GamesCache) GameDetails(appID int) (*model.GameDetails, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	details, ok := c.appDetails[appID]
	return details, ok
}

// StoreGameDetails はゲーム詳細をキャッシュする。detailsがnilの場合は不在として記録する。
func (c *GamesCache) StoreGameDetails(appID int, details *model.GameDetails) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.appDetails[appID] = details
}
