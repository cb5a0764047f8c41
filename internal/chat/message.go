package chat

import "encoding/json"

// Role はメッセージの送信者ロール。
type Role string

const (
	// RoleSystem はシステムプロンプト。
	RoleSystem Role = "system"
	// RoleUser は利用者の発話。
	RoleUser Role = "user"
	// RoleAssistant はモデルの応答。
	RoleAssistant Role = "assistant"
	// RoleTool はツールの実行結果。
	RoleTool Role = "tool"
)

// Message は会話の1ターン。
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	// ToolCalls はアシスタントが要求したツール呼び出し。
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	// ToolCallID はツールロールのメッセージが応答する呼び出しのID。
	ToolCallID string `json:"tool_call_id,omitempty"`
	// Name はツールロールのメッセージのツール名。
	Name string `json:"name,omitempty"`
}

// ToolCall はモデルが要求した1件のツール呼び出し。
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall はツール名と引数。Argumentsは受け取った値をそのまま保持して上流へ返す。
type FunctionCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}
