package oauth

import (
	"context"

	"github.com/golang-jwt/jwt/v5"
)

// AccessTokenClaims はアクセストークンのクレーム。
type AccessTokenClaims struct {
	jwt.RegisteredClaims
	// Role は認証したクライアントのロール。設定値がそのまま入る。
	Role Role `json:"role"`
	// Scope は要求時に指定されたスコープ。
	Scope string `json:"scope,omitempty"`
}

// claimsContextKey はリクエストコンテキストにクレームを格納するためのキー。
type claimsContextKey struct{}

// WithClaims はクレームを格納したコンテキストを返す。
// 値で保持するため、後続の処理から元のクレームを書き換えることはできない。
func WithClaims(ctx context.Context, claims AccessTokenClaims) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, claims)
}

// ClaimsFromContext はコンテキストからクレームを取り出す。
// 認証されていないリクエストではfalseを返す。
func ClaimsFromContext(ctx context.Context) (AccessTokenClaims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(AccessTokenClaims)
	return claims, ok
}
