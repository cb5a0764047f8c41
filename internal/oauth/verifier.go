package oauth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// 検証失敗の分類。errors.Isで判定する。
var (
	// ErrTokenInvalid は署名・構造・発行者・対象者のいずれかが不正なことを表す。
	ErrTokenInvalid = errors.New("トークンが無効か形式が不正です")
	// ErrTokenExpired は有効期限切れを表す。
	ErrTokenExpired = errors.New("トークンの有効期限が切れています")
	// ErrTokenNotYetValid は有効期間の開始前であることを表す。
	ErrTokenNotYetValid = errors.New("トークンはまだ有効ではありません")
)

// Verifier はKeyManagerの公開鍵でアクセストークンを検証する。
type Verifier struct {
	keys *KeyManager
	cfg  Config
	opts options
}

// NewVerifier は新しいVerifierを生成する。
func NewVerifier(keys *KeyManager, cfg Config, opts ...Option) *Verifier {
	return &Verifier{
		keys: keys,
		cfg:  cfg,
		opts: newOptions(opts),
	}
}

// Verify はトークン文字列を検証してクレームを返す。
// 有効期間は nbf <= now < exp。exp ちょうどの時刻には期限切れとして扱う。
// 鍵が未初期化の場合はErrKeyUninitializedを返す。
func (v *Verifier) Verify(tokenString string) (*AccessTokenClaims, error) {
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(v.opts.now),
	}
	if v.cfg.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.cfg.Issuer))
	}
	if v.cfg.Audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(v.cfg.Audience))
	}

	claims := &AccessTokenClaims{}
	_, err := jwt.NewParser(parserOpts...).ParseWithClaims(tokenString, claims, v.keyFunc)
	switch {
	case err == nil:
		return claims, nil
	case errors.Is(err, ErrKeyUninitialized):
		return nil, ErrKeyUninitialized
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, fmt.Errorf("%w: %w", ErrTokenExpired, err)
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return nil, fmt.Errorf("%w: %w", ErrTokenNotYetValid, err)
	default:
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}
}

// keyFunc はヘッダーのkidが現在の鍵と一致する場合に公開鍵を返す。
func (v *Verifier) keyFunc(token *jwt.Token) (any, error) {
	kp := v.keys.current.Load()
	if kp == nil {
		return nil, ErrKeyUninitialized
	}
	kid, ok := token.Header["kid"].(string)
	if !ok || kid != kp.kid {
		return nil, fmt.Errorf("鍵IDが一致しません: %v", token.Header["kid"])
	}
	return kp.public, nil
}
