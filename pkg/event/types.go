package event

import (
	"encoding/json"
	"time"
)

// Type はイベントの種類を表す。
type Type string

const (
	// TypeTokenIssued はアクセストークンが発行されたことを表す。
	TypeTokenIssued Type = "TokenIssued"
	// TypeGrantRejected はトークン発行要求が拒否されたことを表す。
	TypeGrantRejected Type = "GrantRejected"
	// TypeAuthRejected は保護されたルートでBearerトークンの検証に失敗したことを表す。
	TypeAuthRejected Type = "AuthRejected"
	// TypeToolInvoked はモデルの要求によりツールが実行されたことを表す。
	TypeToolInvoked Type = "ToolInvoked"
	// TypeToolLoopExhausted はツール呼び出しループが上限に達したことを表す。
	TypeToolLoopExhausted Type = "ToolLoopExhausted"
)

// Event は監査対象となる不変のイベントレコードを表す。
// リクエスト処理中に生成され、Sinkへ渡された後は破棄される。
type Event struct {
	// ID はイベントの一意識別子（UUID）。
	ID string `json:"id"`
	// Subject はイベントの主体（クライアントIDなど）。匿名の場合は空。
	Subject string `json:"subject,omitempty"`
	// EventType はイベントの種類。
	EventType Type `json:"event_type"`
	// Data はイベント固有のデータ（JSON形式）。
	Data json.RawMessage `json:"data"`
	// CreatedAt はイベントが作成された日時。
	CreatedAt time.Time `json:"created_at"`
}

// TokenIssuedData はTokenIssuedイベントのデータ。
type TokenIssuedData struct {
	// GrantType は使用されたグラントタイプ。
	GrantType string `json:"grant_type"`
	// Role はトークンに埋め込まれたロール。
	Role string `json:"role"`
	// TokenID はトークンのjtiクレーム。
	TokenID string `json:"token_id"`
	// ExpiresIn はトークンの有効期間（秒）。
	ExpiresIn int64 `json:"expires_in"`
}

// GrantRejectedData はGrantRejectedイベントのデータ。
type GrantRejectedData struct {
	// GrantType は要求されたグラントタイプ。未指定の場合は空。
	GrantType string `json:"grant_type"`
	// ErrorCode はOAuthエラーコード（invalid_client等）。
	ErrorCode string `json:"error_code"`
}

// AuthRejectedData はAuthRejectedイベントのデータ。
type AuthRejectedData struct {
	// Reason は拒否理由のコード。
	Reason string `json:"reason"`
	// Path は拒否されたリクエストのパス。
	Path string `json:"path"`
}

// ToolInvokedData はToolInvokedイベントのデータ。
type ToolInvokedData struct {
	// Tool はモデルが要求したツール名。
	Tool string `json:"tool"`
	// Outcome は実行結果の分類（ok, unknown_tool等）。
	Outcome string `json:"outcome"`
	// Iteration はループ内の何回目の上流呼び出しに対する実行か。
	Iteration int `json:"iteration"`
}

// ToolLoopExhaustedData はToolLoopExhaustedイベントのデータ。
type ToolLoopExhaustedData struct {
	// Ceiling は上流呼び出し回数の上限。
	Ceiling int `json:"ceiling"`
	// Domain はリクエストのプロンプトドメイン。
	Domain string `json:"domain"`
}
