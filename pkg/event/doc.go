// Package event はゲートウェイの監査イベントを定義する。
//
// トークン発行、認証拒否、ツール実行といったセキュリティ上重要な出来事を
// Eventとして生成し、Sink（ログ、メトリクス等）へ配信する。
// イベントは永続化しない。
package event
