package oauth

import (
	"time"

	"github.com/nao1215/llmgate/pkg/event"
)

// defaultLifetime はトークン有効期間の既定値。
const defaultLifetime = 3600 * time.Second

// Config はトークンの発行者と検証者が共有する設定。
type Config struct {
	// Issuer はissクレームの値。
	Issuer string
	// Audience はaudクレームの値。
	Audience string
	// Lifetime はトークンの有効期間。0以下の場合は3600秒。
	Lifetime time.Duration
}

func (c Config) lifetime() time.Duration {
	if c.Lifetime <= 0 {
		return defaultLifetime
	}
	return c.Lifetime
}

// Option はIssuer / Verifierの生成オプション。
type Option func(*options)

type options struct {
	now  func() time.Time
	sink event.Sink
}

func newOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithEvents は監査イベントの送信先を設定する。
func WithEvents(sink event.Sink) Option {
	return func(o *options) {
		o.sink = sink
	}
}
