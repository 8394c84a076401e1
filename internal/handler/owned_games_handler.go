package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/steamctx/internal/middleware"
	"github.com/hitoshi/steamctx/internal/model"
)

// OwnedGamesFetcher は所有ゲームを取得するインターフェース。
// steam.Clientが実装する。
type OwnedGamesFetcher interface {
	GetOwnedGames(ctx context.Context, steamID string) ([]model.OwnedGame, error)
}

// ownedGamesResponse は所有ゲームJSON APIのレスポンス。
type ownedGamesResponse struct {
	SteamID   string            `json:"steamid"`
	GameCount int               `json:"game_count"`
	Games     []model.OwnedGame `json:"games"`
}

// OwnedGamesHandler は所有ゲームをJSONで返すHTTPハンドラー。
type OwnedGamesHandler struct {
	fetcher OwnedGamesFetcher
	logger  *slog.Logger
}

// NewOwnedGamesHandler はOwnedGamesHandlerを生成する。
func NewOwnedGamesHandler(fetcher OwnedGamesFetcher, logger *slog.Logger) *OwnedGamesHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OwnedGamesHandler{fetcher: fetcher, logger: logger}
}

// List は指定されたSteam IDの所有ゲームを返す。並べ替えと件数制限は行わない。
// GET /owned-games?steamid=<id>
func (h *OwnedGamesHandler) List(w http.ResponseWriter, r *http.Request) {
	steamID := r.URL.Query().Get("steamid")
	if steamID == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewMissingSteamIDError())
		return
	}

	games, err := h.fetcher.GetOwnedGames(r.Context(), steamID)
	if err != nil {
		h.logger.Error("failed to get owned games",
			slog.String("steam_id", steamID),
			slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
			slog.String("error", err.Error()),
		)
		middleware.WriteErrorResponse(w, http.StatusBadGateway, model.NewUpstreamFailedError())
		return
	}

	if games == nil {
		games = []model.OwnedGame{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ownedGamesResponse{
		SteamID:   steamID,
		GameCount: len(games),
		Games:     games,
	})
}
