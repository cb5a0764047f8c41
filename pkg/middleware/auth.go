package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/llmgate/pkg/event"
)

// 認証拒否の理由コード。レスポンスのerrorフィールドと監査イベントに使用する。
const (
	ReasonMissingHeader   = "missing_authorization_header"
	ReasonMalformedHeader = "malformed_authorization_header"
	ReasonInvalidToken    = "invalid_token"
	ReasonTokenExpired    = "token_expired"
	ReasonTokenNotYet     = "token_not_yet_valid"
)

var reasonDescriptions = map[string]string{
	ReasonMissingHeader:   "Authorizationヘッダーが必要です",
	ReasonMalformedHeader: "Authorizationヘッダーは Bearer <token> 形式で指定してください",
	ReasonInvalidToken:    "トークンが無効か形式が不正です",
	ReasonTokenExpired:    "トークンの有効期限が切れています",
	ReasonTokenNotYet:     "トークンはまだ有効ではありません",
}

// TokenVerifierが返すエラー。これら以外のエラーはinvalid_tokenとして扱う。
var (
	// ErrTokenExpired はトークンの有効期限切れ。
	ErrTokenExpired = errors.New("トークンの有効期限が切れています")
	// ErrTokenNotYetValid はトークンの有効期間の開始前。
	ErrTokenNotYetValid = errors.New("トークンはまだ有効ではありません")
	// ErrVerifierUnavailable は検証に必要な鍵などが用意されていない。500を返す。
	ErrVerifierUnavailable = errors.New("トークンを検証できる状態ではありません")
)

// contextKeyPrincipal はGinコンテキストに呼び出し元を格納するキー。
const contextKeyPrincipal = "principal"

// Principal は認証済みの呼び出し元。
type Principal struct {
	// Subject はトークンのsubクレーム。
	Subject string
	// Role は呼び出し元のロール。
	Role string
}

// TokenVerifier はアクセストークンを検証する。
// 成功時は呼び出し元と、後続の処理に渡すリクエストコンテキストを返す。
type TokenVerifier interface {
	Authenticate(ctx context.Context, token string) (context.Context, Principal, error)
}

// BearerAuth はBearerトークンを検証するGinミドルウェアを返す。
// 拒否時は401とWWW-Authenticateヘッダーを返し、後続のハンドラは実行しない。
func BearerAuth(verifier TokenVerifier, sink event.Sink) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			reject(c, sink, ReasonMissingHeader)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			reject(c, sink, ReasonMalformedHeader)
			return
		}

		ctx, principal, err := verifier.Authenticate(c.Request.Context(), parts[1])
		switch {
		case err == nil:
		case errors.Is(err, ErrVerifierUnavailable):
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":             "server_error",
				"error_description": "署名鍵が初期化されていません",
			})
			return
		case errors.Is(err, ErrTokenExpired):
			reject(c, sink, ReasonTokenExpired)
			return
		case errors.Is(err, ErrTokenNotYetValid):
			reject(c, sink, ReasonTokenNotYet)
			return
		default:
			reject(c, sink, ReasonInvalidToken)
			return
		}

		c.Set(contextKeyPrincipal, principal)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// reject は401を返してリクエストを打ち切る。
func reject(c *gin.Context, sink event.Sink, reason string) {
	event.Emit(c.Request.Context(), sink, c.ClientIP(), event.TypeAuthRejected, event.AuthRejectedData{
		Reason: reason,
		Path:   c.Request.URL.Path,
	})
	c.Header("WWW-Authenticate", `Bearer error="invalid_token"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error":             reason,
		"error_description": reasonDescriptions[reason],
	})
}

// GetPrincipal はGinコンテキストから呼び出し元を取得する。
// BearerAuthミドルウェアが事前に適用されていない場合はfalseを返す。
func GetPrincipal(c *gin.Context) (Principal, bool) {
	v, ok := c.Get(contextKeyPrincipal)
	if !ok {
		return Principal{}, false
	}
	p, ok := v.(Principal)
	return p, ok
}
