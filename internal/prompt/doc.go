// Package prompt はドメインとセキュリティレベルからシステムプロンプトを解決する。
//
// プロンプト本文はYAMLのカタログで管理する。既定のカタログはバイナリに埋め込まれており、
// 設定でファイルを指定すると置き換えられる。カタログに存在しない組み合わせは
// ErrPromptNotFoundとして扱い、既定値へのフォールバックは行わない。
package prompt
