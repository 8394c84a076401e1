// Package model はドメインモデルを定義する。
package model

import "fmt"

// iconURLFormat はゲームアイコン画像URLのフォーマット。
const iconURLFormat = "https://media.steampowered.com/steamcommunity/public/images/apps/%d/%s.jpg"

// OwnedGame はユーザーが所有するSteamゲームを表す。
type OwnedGame struct {
	AppID      int     `json:"appid"`
	Name       string  `json:"name"`
	Playtime   float64 `json:"playtime"` // 総プレイ時間（時間、小数第1位で丸め）
	IconID     string  `json:"icon_id"`
	LastPlayed int64   `json:"last_played"` // Steamが返すままのタイムスタンプ
}

// IconURL はアイコン画像のURLを返す。
func (g OwnedGame) IconURL() string {
	return fmt.Sprintf(iconURLFormat, g.AppID, g.IconID)
}

// GameTypeGame はストア詳細の種別のうち「ゲーム」を表す。
const GameTypeGame = "game"

// GameDetails はストアから取得したゲーム詳細を表す。
// 種別が game 以外（DLC、ソフトウェア等）のアプリは GameDetails として扱わない。
type GameDetails struct {
	AppID       int      `json:"appid"`
	Name        string   `json:"name"`
	Description string   `json:"description"` // サニタイズ済みHTML
	Categories  []string `json:"categories"`
	Genres      []string `json:"genres"`
	Type        string   `json:"type"`
}

// EnrichedGame は所有ゲームとその詳細の組。
type EnrichedGame struct {
	Game    OwnedGame
	Details *GameDetails
}
