// Package gateway はLLMゲートウェイのHTTPサーバーを提供する。
//
// OAuth2トークンの発行と公開鍵(JWKS)の配布、Bearerトークンによる認証、
// セキュリティレベル別のシステムプロンプトを付与したチャットの中継を担当する。
// 外部からアクセス可能な唯一の境界であり、上流のチャット補完サービスへの
// 呼び出しはすべてこのサーバーを経由する。
package gateway
