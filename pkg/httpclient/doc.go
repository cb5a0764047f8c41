// Package httpclient は上流サービスとのJSON通信を行うクライアントを提供する。
//
// チャットオーケストレータがLLMプロキシの補完APIを呼び出す際に使用する。
// 2xx以外の応答はStatusErrorとして返し、呼び出し元が上流のステータスと
// ボディをそのまま利用者へ転送できるようにする。
package httpclient
