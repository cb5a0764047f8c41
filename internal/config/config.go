// Package config は環境変数とコマンドラインフラグからゲートウェイの設定を読み込む。
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/nao1215/llmgate/internal/chat"
	"github.com/nao1215/llmgate/internal/oauth"
)

// 設定キー。環境変数名と同じ。
const (
	KeyPort              = "PORT"
	KeyUpstreamURL       = "UPSTREAM_URL"
	KeyUpstreamChatPath  = "UPSTREAM_CHAT_PATH"
	KeyUpstreamAPIKey    = "UPSTREAM_API_KEY"
	KeyUpstreamTimeout   = "UPSTREAM_TIMEOUT"
	KeyTokenExpiresIn    = "TOKEN_EXPIRES_IN"
	KeyOAuthIssuer       = "OAUTH_ISSUER"
	KeyOAuthAudience     = "OAUTH_AUDIENCE"
	KeyAllowedModels     = "ALLOWED_MODELS"
	KeyDefaultModel      = "DEFAULT_MODEL"
	KeyMaxToolIterations = "MAX_TOOL_ITERATIONS"
	KeyPromptsFile       = "PROMPTS_FILE"
	KeyToolsDB           = "TOOLS_DB"
	KeyFrontendURL       = "FRONTEND_URL"
	KeyLogLevel          = "LOG_LEVEL"
	KeyLogFormat         = "LOG_FORMAT"
)

// roleEnv はロールと環境変数名の接頭辞の対応。
var roleEnv = []struct {
	prefix string
	role   oauth.Role
}{
	{prefix: "READONLY", role: oauth.RoleReadOnly},
	{prefix: "READWRITE", role: oauth.RoleReadWrite},
	{prefix: "ADMIN", role: oauth.RoleAdmin},
}

// Config はゲートウェイの設定。
type Config struct {
	// Port はリッスンポート。
	Port string
	// UpstreamURL はチャット補完サービスのベースURL。
	UpstreamURL string
	// UpstreamChatPath はチャット補完エンドポイントのパス。
	UpstreamChatPath string
	// UpstreamAPIKey は上流へ送るBearerトークン。空の場合は送らない。
	UpstreamAPIKey string
	// UpstreamTimeout は上流呼び出しのタイムアウト。
	UpstreamTimeout time.Duration
	// TokenLifetime はアクセストークンの有効期間。
	TokenLifetime time.Duration
	// Issuer はissクレームの値。
	Issuer string
	// Audience はaudクレームの値。
	Audience string
	// Clients はclient_credentialsグラントの許可リスト。
	Clients []oauth.ClientCredential
	// Users はpasswordグラントの許可リスト。
	Users []oauth.UserCredential
	// AllowedModels は指定を許可するモデル。空の場合はすべて許可する(fail-open)。
	AllowedModels []string
	// DefaultModel はmodel未指定時のモデル。
	DefaultModel string
	// MaxToolIterations は1リクエスト内の上流呼び出し回数の上限。
	MaxToolIterations int
	// PromptsFile はプロンプトカタログのパス。空の場合は埋め込みの既定カタログ。
	PromptsFile string
	// ToolsDB はツール用SQLiteのDSN。空の場合はインメモリ。
	ToolsDB string
	// FrontendURLs はCORSを許可するオリジン。
	FrontendURLs []string
	// LogLevel はログレベル。
	LogLevel string
	// LogFormat はログ形式(json / console)。
	LogFormat string
}

// New は既定値と環境変数の読み込みを設定したviperを返す。
func New() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// SetDefaults は既定値を設定する。
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyPort, "8080")
	v.SetDefault(KeyUpstreamChatPath, chat.DefaultChatPath)
	v.SetDefault(KeyUpstreamTimeout, "60s")
	v.SetDefault(KeyTokenExpiresIn, 3600)
	v.SetDefault(KeyOAuthIssuer, "llmgate")
	v.SetDefault(KeyOAuthAudience, "llmgate-api")
	v.SetDefault(KeyMaxToolIterations, chat.DefaultMaxIterations)
	v.SetDefault(KeyFrontendURL, "http://localhost:3000")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "json")
}

// Load はviperから設定を組み立てて検証する。
// ロールのIDまたはシークレットが未設定の場合、そのロールは許可リストに含めない。
func Load(v *viper.Viper) (*Config, error) {
	// 未バインドのキーでもAutomaticEnvで参照できるようにする。
	for _, r := range roleEnv {
		for _, suffix := range []string{"CLIENT_ID", "CLIENT_SECRET", "USERNAME", "PASSWORD"} {
			if err := v.BindEnv(roleKey(r.prefix, suffix)); err != nil {
				return nil, fmt.Errorf("環境変数のバインドに失敗: %w", err)
			}
		}
	}

	timeout, err := parseDuration(v.GetString(KeyUpstreamTimeout))
	if err != nil {
		return nil, fmt.Errorf("%s が不正です: %w", KeyUpstreamTimeout, err)
	}

	cfg := &Config{
		Port:              strings.TrimSpace(v.GetString(KeyPort)),
		UpstreamURL:       strings.TrimRight(strings.TrimSpace(v.GetString(KeyUpstreamURL)), "/"),
		UpstreamChatPath:  v.GetString(KeyUpstreamChatPath),
		UpstreamAPIKey:    v.GetString(KeyUpstreamAPIKey),
		UpstreamTimeout:   timeout,
		TokenLifetime:     time.Duration(v.GetInt(KeyTokenExpiresIn)) * time.Second,
		Issuer:            v.GetString(KeyOAuthIssuer),
		Audience:          v.GetString(KeyOAuthAudience),
		AllowedModels:     splitList(v.GetString(KeyAllowedModels)),
		DefaultModel:      strings.TrimSpace(v.GetString(KeyDefaultModel)),
		MaxToolIterations: v.GetInt(KeyMaxToolIterations),
		PromptsFile:       v.GetString(KeyPromptsFile),
		ToolsDB:           v.GetString(KeyToolsDB),
		FrontendURLs:      splitList(v.GetString(KeyFrontendURL)),
		LogLevel:          v.GetString(KeyLogLevel),
		LogFormat:         v.GetString(KeyLogFormat),
	}

	for _, r := range roleEnv {
		cfg.Clients = append(cfg.Clients, oauth.ClientCredential{
			ClientID:     v.GetString(roleKey(r.prefix, "CLIENT_ID")),
			ClientSecret: v.GetString(roleKey(r.prefix, "CLIENT_SECRET")),
			Role:         r.role,
		})
		cfg.Users = append(cfg.Users, oauth.UserCredential{
			Username: v.GetString(roleKey(r.prefix, "USERNAME")),
			Password: v.GetString(roleKey(r.prefix, "PASSWORD")),
			Role:     r.role,
		})
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate は設定値を検証する。
func (c *Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, fmt.Errorf("%s が空です", KeyPort))
	}
	if c.UpstreamURL == "" {
		errs = append(errs, fmt.Errorf("%s が設定されていません", KeyUpstreamURL))
	} else if u, err := url.Parse(c.UpstreamURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("%s が不正なURLです: %s", KeyUpstreamURL, c.UpstreamURL))
	}
	if !strings.HasPrefix(c.UpstreamChatPath, "/") {
		errs = append(errs, fmt.Errorf("%s は / で始めてください", KeyUpstreamChatPath))
	}
	if c.TokenLifetime <= 0 {
		errs = append(errs, fmt.Errorf("%s は1以上を指定してください", KeyTokenExpiresIn))
	}
	if c.MaxToolIterations <= 0 {
		errs = append(errs, fmt.Errorf("%s は1以上を指定してください", KeyMaxToolIterations))
	}
	return errors.Join(errs...)
}

// OAuth はトークンの発行者・検証者の設定を返す。
func (c *Config) OAuth() oauth.Config {
	return oauth.Config{Issuer: c.Issuer, Audience: c.Audience, Lifetime: c.TokenLifetime}
}

// Chat はOrchestratorの設定を返す。
func (c *Config) Chat() chat.Config {
	return chat.Config{
		DefaultModel:  c.DefaultModel,
		AllowedModels: c.AllowedModels,
		MaxIterations: c.MaxToolIterations,
	}
}

func roleKey(prefix, suffix string) string {
	return "OAUTH_" + prefix + "_" + suffix
}

// parseDuration は "30s" 形式または秒数の整数を受け付ける。
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	d, err := time.ParseDuration(s + "s")
	if err != nil {
		return 0, err
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
