package oauth

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/nao1215/llmgate/pkg/event"
)

// testNow はテストで使用する固定時刻。
var testNow = time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)

// testConfig はテスト用の発行者設定。
var testConfig = Config{Issuer: "https://gateway.test", Audience: "llmgate", Lifetime: time.Hour}

// testCredentials はロールごとに1件ずつ設定した許可リストを返す。
func testCredentials() *Credentials {
	return NewCredentials(
		[]ClientCredential{
			{ClientID: "ro-client", ClientSecret: "ro-secret", Role: RoleReadOnly},
			{ClientID: "rw-client", ClientSecret: "rw-secret", Role: RoleReadWrite},
			{ClientID: "admin-client", ClientSecret: "admin-secret", Role: RoleAdmin},
			{ClientID: "", ClientSecret: "orphan", Role: RoleAdmin},
		},
		[]UserCredential{
			{Username: "alice", Password: "wonderland", Role: RoleReadWrite},
		},
	)
}

// TestNewCredentials は空のエントリが除外されることを検証する。
func TestNewCredentials(t *testing.T) {
	t.Parallel()

	creds := NewCredentials(
		[]ClientCredential{
			{ClientID: "a", ClientSecret: "b", Role: RoleAdmin},
			{ClientID: "", ClientSecret: "b", Role: RoleReadOnly},
			{ClientID: "c", ClientSecret: "", Role: RoleReadWrite},
		},
		[]UserCredential{{Username: "u", Password: ""}},
	)
	if creds.Clients() != 1 {
		t.Errorf("Clients() = %d, want 1", creds.Clients())
	}
	if creds.Users() != 0 {
		t.Errorf("Users() = %d, want 0", creds.Users())
	}
}

// TestIssuerToken はトークン発行の成功と各失敗点を検証する。
func TestIssuerToken(t *testing.T) {
	t.Parallel()

	keys := newTestKeys(t)

	t.Run("設定した全クライアントでロールが一致するトークンが発行されること", func(t *testing.T) {
		t.Parallel()

		issuer := NewIssuer(keys, testCredentials(), testConfig, WithClock(func() time.Time { return testNow }))
		verifier := NewVerifier(keys, testConfig, WithClock(func() time.Time { return testNow }))

		for _, cc := range []ClientCredential{
			{ClientID: "ro-client", ClientSecret: "ro-secret", Role: RoleReadOnly},
			{ClientID: "rw-client", ClientSecret: "rw-secret", Role: RoleReadWrite},
			{ClientID: "admin-client", ClientSecret: "admin-secret", Role: RoleAdmin},
		} {
			resp, err := issuer.Token(context.Background(), TokenRequest{
				GrantType:    "client_credentials",
				ClientID:     cc.ClientID,
				ClientSecret: cc.ClientSecret,
			})
			if err != nil {
				t.Fatalf("%s: Token()でエラーが発生: %v", cc.ClientID, err)
			}
			if resp.TokenType != "Bearer" || resp.ExpiresIn != 3600 {
				t.Errorf("token_type/expires_in = %q/%d", resp.TokenType, resp.ExpiresIn)
			}
			claims, err := verifier.Verify(resp.AccessToken)
			if err != nil {
				t.Fatalf("%s: Verify()でエラーが発生: %v", cc.ClientID, err)
			}
			if claims.Role != cc.Role {
				t.Errorf("role = %q, want %q", claims.Role, cc.Role)
			}
			if claims.Subject != cc.ClientID {
				t.Errorf("sub = %q, want %q", claims.Subject, cc.ClientID)
			}
		}
	})

	t.Run("クレームに発行時刻と有効期限が設定されること", func(t *testing.T) {
		t.Parallel()

		issuer := NewIssuer(keys, testCredentials(), Config{Issuer: "iss", Audience: "aud", Lifetime: 90 * time.Second},
			WithClock(func() time.Time { return testNow.Add(500 * time.Millisecond) }))
		verifier := NewVerifier(keys, Config{Issuer: "iss", Audience: "aud"}, WithClock(func() time.Time { return testNow }))

		resp, err := issuer.Token(context.Background(), TokenRequest{GrantType: "client_credentials", ClientID: "ro-client", ClientSecret: "ro-secret", Scope: "chat:read"})
		if err != nil {
			t.Fatalf("Token()でエラーが発生: %v", err)
		}
		if resp.ExpiresIn != 90 || resp.Scope != "chat:read" {
			t.Errorf("expires_in/scope = %d/%q", resp.ExpiresIn, resp.Scope)
		}

		claims, err := verifier.Verify(resp.AccessToken)
		if err != nil {
			t.Fatalf("Verify()でエラーが発生: %v", err)
		}
		if !claims.IssuedAt.Time.Equal(testNow) {
			t.Errorf("iat = %v, want %v", claims.IssuedAt.Time, testNow)
		}
		if !claims.ExpiresAt.Time.Equal(testNow.Add(90 * time.Second)) {
			t.Errorf("exp = %v, want %v", claims.ExpiresAt.Time, testNow.Add(90*time.Second))
		}
		if claims.ID == "" {
			t.Error("jtiが空")
		}
		if claims.Scope != "chat:read" {
			t.Errorf("scope = %q, want chat:read", claims.Scope)
		}
	})

	t.Run("passwordグラントでトークンが発行されること", func(t *testing.T) {
		t.Parallel()

		issuer := NewIssuer(keys, testCredentials(), testConfig)
		resp, err := issuer.Token(context.Background(), TokenRequest{GrantType: "password", Username: "alice", Password: "wonderland"})
		if err != nil {
			t.Fatalf("Token()でエラーが発生: %v", err)
		}
		claims, err := NewVerifier(keys, testConfig).Verify(resp.AccessToken)
		if err != nil {
			t.Fatalf("Verify()でエラーが発生: %v", err)
		}
		if claims.Role != RoleReadWrite || claims.Subject != "alice" {
			t.Errorf("sub/role = %q/%q", claims.Subject, claims.Role)
		}
	})

	tests := []struct {
		name       string
		creds      *Credentials
		req        TokenRequest
		wantCode   ErrorCode
		wantStatus int
	}{
		{
			name:       "grant_type未指定",
			creds:      testCredentials(),
			req:        TokenRequest{ClientID: "ro-client", ClientSecret: "ro-secret"},
			wantCode:   CodeInvalidRequest,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "未対応のgrant_type",
			creds:      testCredentials(),
			req:        TokenRequest{GrantType: "refresh_token"},
			wantCode:   CodeInvalidGrant,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "資格情報が1件も設定されていない場合は必須項目の欠落より先にserver_error",
			creds:      NewCredentials(nil, nil),
			req:        TokenRequest{GrantType: "client_credentials"},
			wantCode:   CodeServerError,
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:       "passwordの資格情報が設定されていない",
			creds:      NewCredentials([]ClientCredential{{ClientID: "a", ClientSecret: "b", Role: RoleAdmin}}, nil),
			req:        TokenRequest{GrantType: "password", Username: "alice", Password: "wonderland"},
			wantCode:   CodeServerError,
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:       "client_secret欠落",
			creds:      testCredentials(),
			req:        TokenRequest{GrantType: "client_credentials", ClientID: "ro-client"},
			wantCode:   CodeInvalidRequest,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "password欠落",
			creds:      testCredentials(),
			req:        TokenRequest{GrantType: "password", Username: "alice"},
			wantCode:   CodeInvalidRequest,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "存在しないクライアント",
			creds:      testCredentials(),
			req:        TokenRequest{GrantType: "client_credentials", ClientID: "nobody", ClientSecret: "ro-secret"},
			wantCode:   CodeInvalidClient,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "シークレット不一致",
			creds:      testCredentials(),
			req:        TokenRequest{GrantType: "client_credentials", ClientID: "ro-client", ClientSecret: "rw-secret"},
			wantCode:   CodeInvalidClient,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "パスワード不一致",
			creds:      testCredentials(),
			req:        TokenRequest{GrantType: "password", Username: "alice", Password: "nope"},
			wantCode:   CodeInvalidGrant,
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var rec event.Recorder
			issuer := NewIssuer(keys, tt.creds, testConfig, WithEvents(&rec))
			_, err := issuer.Token(context.Background(), tt.req)

			var oerr *Error
			if !errors.As(err, &oerr) {
				t.Fatalf("*Errorが返るべき: %v", err)
			}
			if oerr.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", oerr.Code, tt.wantCode)
			}
			if oerr.Status != tt.wantStatus {
				t.Errorf("status = %d, want %d", oerr.Status, tt.wantStatus)
			}
			if oerr.Description == "" {
				t.Error("error_descriptionが空")
			}

			rejected := rec.Events(event.TypeGrantRejected)
			if len(rejected) != 1 {
				t.Fatalf("GrantRejectedイベント数 = %d, want 1", len(rejected))
			}
			data, _ := event.DecodeData[event.GrantRejectedData](rejected[0])
			if data.ErrorCode != string(tt.wantCode) {
				t.Errorf("event error_code = %q, want %q", data.ErrorCode, tt.wantCode)
			}
		})
	}

	t.Run("存在しないIDとシークレット不一致で説明が同一であること", func(t *testing.T) {
		t.Parallel()

		issuer := NewIssuer(keys, testCredentials(), testConfig)
		_, errUnknown := issuer.Token(context.Background(), TokenRequest{GrantType: "client_credentials", ClientID: "nobody", ClientSecret: "x"})
		_, errWrong := issuer.Token(context.Background(), TokenRequest{GrantType: "client_credentials", ClientID: "ro-client", ClientSecret: "x"})
		if errUnknown.Error() != errWrong.Error() {
			t.Errorf("エラーが異なる: %q vs %q", errUnknown, errWrong)
		}
	})

	t.Run("鍵が未初期化の場合server_errorになること", func(t *testing.T) {
		t.Parallel()

		issuer := NewIssuer(NewKeyManager(), testCredentials(), testConfig)
		_, err := issuer.Token(context.Background(), TokenRequest{GrantType: "client_credentials", ClientID: "ro-client", ClientSecret: "ro-secret"})
		var oerr *Error
		if !errors.As(err, &oerr) || oerr.Code != CodeServerError {
			t.Errorf("err = %v, want server_error", err)
		}
	})

	t.Run("発行成功時にTokenIssuedイベントが送信されること", func(t *testing.T) {
		t.Parallel()

		var rec event.Recorder
		issuer := NewIssuer(keys, testCredentials(), testConfig, WithEvents(&rec))
		if _, err := issuer.Token(context.Background(), TokenRequest{GrantType: "client_credentials", ClientID: "admin-client", ClientSecret: "admin-secret"}); err != nil {
			t.Fatalf("Token()でエラーが発生: %v", err)
		}

		issued := rec.Events(event.TypeTokenIssued)
		if len(issued) != 1 {
			t.Fatalf("TokenIssuedイベント数 = %d, want 1", len(issued))
		}
		if issued[0].Subject != "admin-client" {
			t.Errorf("subject = %q, want admin-client", issued[0].Subject)
		}
		data, _ := event.DecodeData[event.TokenIssuedData](issued[0])
		if data.Role != "admin" || data.GrantType != "client_credentials" {
			t.Errorf("data = %+v", data)
		}
	})
}
