// Package oauth はOAuth2トークン発行とJWT検証を提供する。
//
// KeyManagerがプロセス存続期間中のRSA署名鍵を保持し、Issuerが
// client_credentials / password グラントで署名付きアクセストークンを発行する。
// VerifierはBearerトークンの署名と有効期間を検証する。
// 鍵とトークンは永続化しない。プロセスを再起動すると発行済みトークンは
// すべて検証できなくなる。
package oauth
