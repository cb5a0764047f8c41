package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nao1215/llmgate/pkg/event"
)

// TokenTypeBearer はtoken_typeの値。
const TokenTypeBearer = "Bearer"

// TokenResponse はトークン発行成功時のレスポンス。
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	Scope       string `json:"scope,omitempty"`
}

// Issuer は静的な許可リストで資格情報を確認し、署名付きアクセストークンを発行する。
// 呼び出しごとに独立しており、状態を持たない。
type Issuer struct {
	keys  *KeyManager
	creds *Credentials
	cfg   Config
	opts  options
}

// NewIssuer は新しいIssuerを生成する。
func NewIssuer(keys *KeyManager, creds *Credentials, cfg Config, opts ...Option) *Issuer {
	return &Issuer{
		keys:  keys,
		creds: creds,
		cfg:   cfg,
		opts:  newOptions(opts),
	}
}

// Token はトークンエンドポイントのリクエストを処理する。
// 失敗時は*Errorを返す。成功・失敗いずれも監査イベントを送信する。
func (i *Issuer) Token(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	grant, err := ParseGrant(req)
	if err != nil {
		i.reject(ctx, req.GrantType, req.ClientID, err)
		return nil, err
	}
	return i.Issue(ctx, grant)
}

// Issue はグラントを検証してトークンを発行する。
// 検査順序: 資格情報の設定有無 → 必須パラメータ → 許可リスト照合 → 署名。
func (i *Issuer) Issue(ctx context.Context, grant Grant) (*TokenResponse, error) {
	subject, role, err := i.authenticate(grant)
	if err != nil {
		i.reject(ctx, string(grant.Type()), subject, err)
		return nil, err
	}

	resp, jti, err := i.sign(subject, role, grant.RequestedScope())
	if err != nil {
		i.reject(ctx, string(grant.Type()), subject, err)
		return nil, err
	}

	event.Emit(ctx, i.opts.sink, subject, event.TypeTokenIssued, event.TokenIssuedData{
		GrantType: string(grant.Type()),
		Role:      string(role),
		TokenID:   jti,
		ExpiresIn: resp.ExpiresIn,
	})
	return resp, nil
}

// authenticate はグラントの資格情報を許可リストと照合し、主体とロールを返す。
func (i *Issuer) authenticate(grant Grant) (string, Role, error) {
	switch g := grant.(type) {
	case ClientCredentialsGrant:
		if i.creds.Clients() == 0 {
			return "", "", serverError("client_credentialsグラントの資格情報が設定されていません")
		}
		if err := requireFields(g); err != nil {
			return g.ClientID, "", err
		}
		cc, ok := i.creds.matchClient(g.ClientID, g.ClientSecret)
		if !ok {
			return g.ClientID, "", &Error{Code: CodeInvalidClient, Description: descInvalidClient, Status: http.StatusUnauthorized}
		}
		return cc.ClientID, cc.Role, nil
	case PasswordGrant:
		if i.creds.Users() == 0 {
			return "", "", serverError("passwordグラントの資格情報が設定されていません")
		}
		if err := requireFields(g); err != nil {
			return g.Username, "", err
		}
		uc, ok := i.creds.matchUser(g.Username, g.Password)
		if !ok {
			return g.Username, "", &Error{Code: CodeInvalidGrant, Description: descInvalidUser, Status: http.StatusUnauthorized}
		}
		return uc.Username, uc.Role, nil
	default:
		return "", "", unsupportedGrant(string(grant.Type()))
	}
}

func requireFields(g Grant) error {
	if fields := g.missingFields(); len(fields) > 0 {
		return invalidRequest(fmt.Sprintf("必須パラメータが指定されていません: %v", fields))
	}
	return nil
}

// sign はクレームを組み立ててRS256で署名する。
func (i *Issuer) sign(subject string, role Role, scope string) (*TokenResponse, string, error) {
	kp := i.keys.current.Load()
	if kp == nil {
		return nil, "", serverError("署名鍵が初期化されていません")
	}

	lifetime := i.cfg.lifetime()
	now := i.opts.now().Truncate(time.Second)
	jti := uuid.New().String()

	claims := AccessTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.cfg.Issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(lifetime)),
			ID:        jti,
		},
		Role:  role,
		Scope: scope,
	}
	if i.cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{i.cfg.Audience}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kp.kid

	signed, err := token.SignedString(kp.private)
	if err != nil {
		return nil, "", serverError(fmt.Sprintf("トークンの署名に失敗しました: %v", err))
	}

	return &TokenResponse{
		AccessToken: signed,
		TokenType:   TokenTypeBearer,
		ExpiresIn:   int64(lifetime / time.Second),
		Scope:       scope,
	}, jti, nil
}

// reject はGrantRejectedイベントを送信する。
func (i *Issuer) reject(ctx context.Context, grantType, subject string, err error) {
	code := CodeServerError
	var oerr *Error
	if errors.As(err, &oerr) {
		code = oerr.Code
	}
	event.Emit(ctx, i.opts.sink, subject, event.TypeGrantRejected, event.GrantRejectedData{
		GrantType: grantType,
		ErrorCode: string(code),
	})
}
