// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// Bearerトークンの検証、リクエストIDの払い出し、アクセスログ、
// パニックリカバリ、CORS設定を含む。
package middleware
