package oauth

import (
	"fmt"
	"net/http"
)

// ErrorCode はRFC 6749のエラーコード。
type ErrorCode string

const (
	// CodeInvalidRequest は必須パラメータの欠落などリクエスト形式の誤り。
	CodeInvalidRequest ErrorCode = "invalid_request"
	// CodeInvalidGrant は未対応のグラントタイプ、またはユーザー認証の失敗。
	CodeInvalidGrant ErrorCode = "invalid_grant"
	// CodeInvalidClient はクライアント認証の失敗。
	CodeInvalidClient ErrorCode = "invalid_client"
	// CodeServerError はサーバー側の設定不備。
	CodeServerError ErrorCode = "server_error"
)

// Error はトークンエンドポイントが返すOAuth形式のエラー。
type Error struct {
	// Code はエラーコード。
	Code ErrorCode `json:"error"`
	// Description は人が読むための説明。
	Description string `json:"error_description"`
	// Status はHTTPステータスコード。
	Status int `json:"-"`
}

// Error はerrorインターフェースを実装する。
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

func invalidRequest(desc string) *Error {
	return &Error{Code: CodeInvalidRequest, Description: desc, Status: http.StatusBadRequest}
}

func unsupportedGrant(grantType string) *Error {
	return &Error{
		Code:        CodeInvalidGrant,
		Description: fmt.Sprintf("未対応のgrant_typeです: %s", grantType),
		Status:      http.StatusBadRequest,
	}
}

func serverError(desc string) *Error {
	return &Error{Code: CodeServerError, Description: desc, Status: http.StatusInternalServerError}
}

// 認証失敗の説明は、IDが存在しない場合とシークレット不一致の場合で同一にする。
const (
	descInvalidClient = "クライアント認証に失敗しました"
	descInvalidUser   = "ユーザー名またはパスワードが無効です"
)
