package model

import "strings"

// SortKey はゲーム一覧の並び替えキー。
// クライアント入力は ParseSortKey で許可リストと照合してから使用する。
type SortKey string

const (
	// SortByPlaytime は総プレイ時間の降順。
	SortByPlaytime SortKey = "playtime"
	// SortByLastPlayed は最終プレイ日時の降順。
	SortByLastPlayed SortKey = "last_played"
)

// DefaultSortKey は order_by 未指定時の並び替えキー。
const DefaultSortKey = SortByPlaytime

// SortKeys は選択可能な並び替えキーの一覧（表示順）。
var SortKeys = []SortKey{SortByPlaytime, SortByLastPlayed}

// ParseSortKey はクライアントから受け取った order_by を SortKey に変換する。
// 許可リストにない値や空文字はデフォルトキーとして扱い、ok=false を返す。
func ParseSortKey(raw string) (key SortKey, ok bool) {
	switch SortKey(strings.ToLower(strings.TrimSpace(raw))) {
	case SortByPlaytime:
		return SortByPlaytime, true
	case SortByLastPlayed:
		return SortByLastPlayed, true
	default:
		return DefaultSortKey, false
	}
}

// Label は画面表示用のラベルを返す。
func (k SortKey) Label() string {
	switch k {
	case SortByLastPlayed:
		return "Last played"
	default:
		return "Playtime"
	}
}

// Less は a が b より前に並ぶべき場合に true を返す（降順）。
func (k SortKey) Less(a, b OwnedGame) bool {
	switch k {
	case SortByLastPlayed:
		return a.LastPlayed > b.LastPlayed
	default:
		return a.Playtime > b.Playtime
	}
}
