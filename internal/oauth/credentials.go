package oauth

import "crypto/subtle"

// Role はアクセストークンに埋め込むロール。
type Role string

const (
	// RoleReadOnly は参照のみ可能なロール。
	RoleReadOnly Role = "read-only"
	// RoleReadWrite は参照と更新が可能なロール。
	RoleReadWrite Role = "read-write"
	// RoleAdmin は管理者ロール。
	RoleAdmin Role = "admin"
)

// CanWrite は更新系の操作が許可されたロールかどうかを返す。
func (r Role) CanWrite() bool {
	return r == RoleReadWrite || r == RoleAdmin
}

// ClientCredential はclient_credentialsグラントで受け付けるクライアントの資格情報。
type ClientCredential struct {
	// ClientID はクライアント識別子。
	ClientID string
	// ClientSecret はクライアントシークレット。
	ClientSecret string
	// Role は認証成功時にトークンへ埋め込むロール。
	Role Role
}

// UserCredential はpasswordグラントで受け付けるユーザーの資格情報。
type UserCredential struct {
	// Username はユーザー名。
	Username string
	// Password はパスワード。
	Password string
	// Role は認証成功時にトークンへ埋め込むロール。
	Role Role
}

// Credentials は静的に設定された資格情報の許可リスト。
// 起動時に構築し、以後は変更しない。
type Credentials struct {
	clients []ClientCredential
	users   []UserCredential
}

// NewCredentials は許可リストを構築する。
// 識別子またはシークレットが空のエントリは除外する。
func NewCredentials(clients []ClientCredential, users []UserCredential) *Credentials {
	c := &Credentials{}
	for _, cc := range clients {
		if cc.ClientID == "" || cc.ClientSecret == "" {
			continue
		}
		c.clients = append(c.clients, cc)
	}
	for _, uc := range users {
		if uc.Username == "" || uc.Password == "" {
			continue
		}
		c.users = append(c.users, uc)
	}
	return c
}

// Clients は有効なクライアント資格情報の件数を返す。
func (c *Credentials) Clients() int { return len(c.clients) }

// Users は有効なユーザー資格情報の件数を返す。
func (c *Credentials) Users() int { return len(c.users) }

// matchClient は完全一致するクライアントを探す。
// 存在しないIDとシークレット不一致は区別しない。
func (c *Credentials) matchClient(clientID, secret string) (ClientCredential, bool) {
	var (
		found ClientCredential
		ok    bool
	)
	for _, cc := range c.clients {
		idMatch := subtle.ConstantTimeCompare([]byte(cc.ClientID), []byte(clientID)) == 1
		secretMatch := subtle.ConstantTimeCompare([]byte(cc.ClientSecret), []byte(secret)) == 1
		if idMatch && secretMatch && !ok {
			found, ok = cc, true
		}
	}
	return found, ok
}

// matchUser は完全一致するユーザーを探す。
func (c *Credentials) matchUser(username, password string) (UserCredential, bool) {
	var (
		found UserCredential
		ok    bool
	)
	for _, uc := range c.users {
		nameMatch := subtle.ConstantTimeCompare([]byte(uc.Username), []byte(username)) == 1
		passMatch := subtle.ConstantTimeCompare([]byte(uc.Password), []byte(password)) == 1
		if nameMatch && passMatch && !ok {
			found, ok = uc, true
		}
	}
	return found, ok
}
