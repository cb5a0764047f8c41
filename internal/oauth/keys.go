package oauth

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/go-jose/go-jose/v4"
)

// keyBits はRSA鍵長。
const keyBits = 2048

// ErrKeyUninitialized はGenerateKeyPair前に鍵を参照したことを表す。
var ErrKeyUninitialized = errors.New("署名鍵が初期化されていません")

// keyPair は生成済みの鍵ペアと導出済みの鍵IDを保持する。生成後は変更しない。
type keyPair struct {
	private *rsa.PrivateKey
	public  *rsa.PublicKey
	kid     string
}

// KeyManager はトークン署名用のRSA鍵ペアを保持する。
// プロセスのエントリポイントが生成し、IssuerとVerifierへ注入する。
// 鍵ペアはatomicに差し替えるため、読み取り側はロック不要。
type KeyManager struct {
	current atomic.Pointer[keyPair]
}

// NewKeyManager は鍵を持たないKeyManagerを生成する。
// 使用前にGenerateKeyPairを呼び出す必要がある。
func NewKeyManager() *KeyManager {
	return &KeyManager{}
}

// GenerateKeyPair は新しいRSA鍵ペアを生成して保持中の鍵と差し替える。
// 再度呼び出すと、それ以前に発行したトークンはすべて署名検証に失敗するようになる。
func (m *KeyManager) GenerateKeyPair() error {
	private, err := rsa.GenerateKey(rand.Reader, keyBits)
	if err != nil {
		return fmt.Errorf("RSA鍵の生成に失敗: %w", err)
	}

	kid, err := deriveKeyID(&private.PublicKey)
	if err != nil {
		return err
	}

	m.current.Store(&keyPair{
		private: private,
		public:  &private.PublicKey,
		kid:     kid,
	})
	return nil
}

// PrivateKey は署名用の秘密鍵を返す。
func (m *KeyManager) PrivateKey() (*rsa.PrivateKey, error) {
	kp := m.current.Load()
	if kp == nil {
		return nil, ErrKeyUninitialized
	}
	return kp.private, nil
}

// PublicKey は検証用の公開鍵を返す。
func (m *KeyManager) PublicKey() (*rsa.PublicKey, error) {
	kp := m.current.Load()
	if kp == nil {
		return nil, ErrKeyUninitialized
	}
	return kp.public, nil
}

// KeyID は現在の鍵ペアの鍵ID（kid）を返す。
func (m *KeyManager) KeyID() (string, error) {
	kp := m.current.Load()
	if kp == nil {
		return "", ErrKeyUninitialized
	}
	return kp.kid, nil
}

// JWKS は公開鍵をJWK Set形式で返す。
// エントリは常に1件で、kty=RSA, use=sig, kid, n, e を持つ。
func (m *KeyManager) JWKS() (jose.JSONWebKeySet, error) {
	kp := m.current.Load()
	if kp == nil {
		return jose.JSONWebKeySet{}, ErrKeyUninitialized
	}
	return jose.JSONWebKeySet{
		Keys: []jose.JSONWebKey{{
			Key:   kp.public,
			KeyID: kp.kid,
			Use:   "sig",
		}},
	}, nil
}

// deriveKeyID はRFC 7638のJWKサムプリント（SHA-256, base64url）を鍵IDとして算出する。
func deriveKeyID(public *rsa.PublicKey) (string, error) {
	jwk := jose.JSONWebKey{Key: public}
	thumbprint, err := jwk.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", fmt.Errorf("鍵サムプリントの算出に失敗: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(thumbprint), nil
}
