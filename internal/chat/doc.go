// Package chat は呼び出し元のメッセージを上流のチャット補完サービスへ転送し、
// モデルが要求したツール呼び出しを解決して最終応答を返す。
//
// 1リクエストの会話はOrchestrator.Runの中だけで完結し、リクエスト間で状態を共有しない。
package chat
