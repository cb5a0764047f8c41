// Package tools はチャットのツール呼び出しで実行できるツールを提供する。
//
// Registryはリクエストごとに構築し、呼び出し元の認証情報に応じて登録するツールを変える。
// ツールの実行はリクエストを失敗させない。結果は常にJSON文字列と実行結果の分類で返し、
// モデルへツールロールのメッセージとして渡す。
package tools
