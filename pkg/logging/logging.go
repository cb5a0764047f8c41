// Package logging はzapベースの構造化ロガーの生成とフィールドヘルパーを提供する。
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config はロガーの設定。
type Config struct {
	// Level はログレベル（debug|info|warn|error）。
	Level string
	// Format は出力形式（json|console）。
	Format string
	// Service はすべてのログに付与するサービス名。
	Service string
}

// New は設定に従ってzapロガーを生成する。
func New(cfg Config) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.Set(strings.ToLower(cfg.Level)); err != nil {
			return nil, fmt.Errorf("ログレベルの解析に失敗: %w", err)
		}
	}

	var zcfg zap.Config
	switch strings.ToLower(cfg.Format) {
	case "", "json":
		zcfg = zap.NewProductionConfig()
	case "console":
		zcfg = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("未対応のログ形式です: %q", cfg.Format)
	}

	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.EncoderConfig.TimeKey = "ts"
	zcfg.EncoderConfig.MessageKey = "msg"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zcfg.Build(zap.AddCaller())
	if err != nil {
		return nil, fmt.Errorf("ロガーの構築に失敗: %w", err)
	}

	service := cfg.Service
	if service == "" {
		service = "gateway"
	}
	return logger.With(zap.String("service", service)), nil
}

// Sync はバッファされたログを書き出す。
func Sync(logger *zap.Logger) {
	_ = logger.Sync()
}

// Component はコンポーネント名のフィールドを返す。
func Component(name string) zap.Field { return zap.String("component", name) }

// Method はHTTPメソッドのフィールドを返す。
func Method(method string) zap.Field { return zap.String("method", method) }

// Path はURLパスのフィールドを返す。
func Path(path string) zap.Field { return zap.String("path", path) }

// Status はHTTPステータスコードのフィールドを返す。
func Status(code int) zap.Field { return zap.Int("status", code) }

// RequestID はリクエストIDのフィールドを返す。
func RequestID(id string) zap.Field { return zap.String("request_id", id) }

// ClientID はOAuthクライアントIDのフィールドを返す。
func ClientID(id string) zap.Field { return zap.String("client_id", id) }

// Role はロールのフィールドを返す。
func Role(role string) zap.Field { return zap.String("role", role) }

// Grant はグラントタイプのフィールドを返す。
func Grant(grantType string) zap.Field { return zap.String("grant_type", grantType) }

// Domain はプロンプトドメインのフィールドを返す。
func Domain(domain string) zap.Field { return zap.String("domain", domain) }

// Tool はツール名のフィールドを返す。
func Tool(name string) zap.Field { return zap.String("tool", name) }

// Iteration はツール呼び出しループの反復回数のフィールドを返す。
func Iteration(n int) zap.Field { return zap.Int("iteration", n) }

// Port はリッスンポートのフィールドを返す。
func Port(port string) zap.Field { return zap.String("port", port) }
