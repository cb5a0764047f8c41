package oauth

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// GrantType はOAuth2のグラントタイプ。
type GrantType string

const (
	// GrantTypeClientCredentials はclient_credentialsグラント。
	GrantTypeClientCredentials GrantType = "client_credentials"
	// GrantTypePassword はpasswordグラント。
	GrantTypePassword GrantType = "password"
)

// TokenRequest はトークンエンドポイントが受け取ったパラメータ。
type TokenRequest struct {
	GrantType    string
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	Scope        string
}

// Grant はグラントタイプごとのリクエスト。
// ClientCredentialsGrant と PasswordGrant のいずれかで、パッケージ外では実装できない。
type Grant interface {
	// Type はグラントタイプを返す。
	Type() GrantType
	// RequestedScope は要求されたスコープを返す。
	RequestedScope() string
	// missingFields は未指定の必須パラメータ名を返す。
	missingFields() []string
}

// ClientCredentialsGrant はclient_credentialsグラントのリクエスト。
type ClientCredentialsGrant struct {
	ClientID     string
	ClientSecret string
	Scope        string
}

// Type はGrantを実装する。
func (ClientCredentialsGrant) Type() GrantType { return GrantTypeClientCredentials }

// RequestedScope はGrantを実装する。
func (g ClientCredentialsGrant) RequestedScope() string { return g.Scope }

func (g ClientCredentialsGrant) missingFields() []string {
	return missing(map[string]string{"client_id": g.ClientID, "client_secret": g.ClientSecret}, "client_id", "client_secret")
}

// PasswordGrant はpasswordグラントのリクエスト。
type PasswordGrant struct {
	Username string
	Password string
	Scope    string
}

// Type はGrantを実装する。
func (PasswordGrant) Type() GrantType { return GrantTypePassword }

// RequestedScope はGrantを実装する。
func (g PasswordGrant) RequestedScope() string { return g.Scope }

func (g PasswordGrant) missingFields() []string {
	return missing(map[string]string{"username": g.Username, "password": g.Password}, "username", "password")
}

func missing(values map[string]string, order ...string) []string {
	var out []string
	for _, name := range order {
		if values[name] == "" {
			out = append(out, name)
		}
	}
	return out
}

// ParseGrant はgrant_typeに応じたGrantを返す。
// grant_typeが未指定の場合はinvalid_request、未対応の場合はinvalid_grantのErrorを返す。
func ParseGrant(req TokenRequest) (Grant, error) {
	switch GrantType(req.GrantType) {
	case "":
		return nil, invalidRequest("grant_typeが指定されていません")
	case GrantTypeClientCredentials:
		return ClientCredentialsGrant{ClientID: req.ClientID, ClientSecret: req.ClientSecret, Scope: req.Scope}, nil
	case GrantTypePassword:
		return PasswordGrant{Username: req.Username, Password: req.Password, Scope: req.Scope}, nil
	default:
		return nil, unsupportedGrant(req.GrantType)
	}
}

// TokenRequestFromHTTP はフォームエンコードされたボディからTokenRequestを組み立てる。
// ボディにクライアント資格情報が無い場合はBasic認証ヘッダー（client_secret_basic）を参照する。
func TokenRequestFromHTTP(r *http.Request) (TokenRequest, error) {
	if err := r.ParseForm(); err != nil {
		return TokenRequest{}, invalidRequest(fmt.Sprintf("リクエストボディを解析できません: %v", err))
	}

	form := r.PostForm
	req := TokenRequest{
		GrantType:    strings.TrimSpace(form.Get("grant_type")),
		ClientID:     form.Get("client_id"),
		ClientSecret: form.Get("client_secret"),
		Username:     form.Get("username"),
		Password:     form.Get("password"),
		Scope:        form.Get("scope"),
	}

	if req.ClientID == "" && req.ClientSecret == "" {
		if id, secret, ok := r.BasicAuth(); ok {
			// RFC 6749 2.3.1: Basic認証の値はフォームエンコードされている
			req.ClientID, req.ClientSecret = formUnescape(id), formUnescape(secret)
		}
	}
	return req, nil
}

func formUnescape(s string) string {
	if u, err := url.QueryUnescape(s); err == nil {
		return u
	}
	return s
}
