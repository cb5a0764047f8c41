package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/nao1215/llmgate/internal/tools"
	"github.com/nao1215/llmgate/pkg/httpclient"
)

// DefaultChatPath は上流サービスのチャット補完エンドポイントの既定パス。
const DefaultChatPath = "/v1/chat/completions"

// ToolSpec は上流へ提示するツール定義。
type ToolSpec struct {
	Type     string           `json:"type"`
	Function tools.Definition `json:"function"`
}

// CompletionRequest は上流へ送るリクエスト。
type CompletionRequest struct {
	Model      string     `json:"model,omitempty"`
	Messages   []Message  `json:"messages"`
	Tools      []ToolSpec `json:"tools,omitempty"`
	ToolChoice string     `json:"tool_choice,omitempty"`
}

// Completion は上流の応答。
type Completion struct {
	// Raw は上流が返したJSONそのもの。最終応答として呼び出し元へ返す。
	Raw json.RawMessage
	// Message は最初の候補のメッセージ。
	Message Message
	// FinishReason は最初の候補の終了理由。
	FinishReason string
}

// HasToolCalls はツール呼び出しを要求する応答かどうかを返す。
func (c *Completion) HasToolCalls() bool {
	return len(c.Message.ToolCalls) > 0
}

// Upstream はチャット補完サービス。
type Upstream interface {
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}

// UpstreamError は上流サービスとの通信で発生したエラー。
// 上流が2xx以外を返した場合はそのステータスとボディを保持し、呼び出し元へそのまま返す。
type UpstreamError struct {
	StatusCode  int
	Body        []byte
	ContentType string
	Err         error
}

// Error はerrorインターフェースを実装する。
func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("上流サービスでエラーが発生 (status=%d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("上流サービスがエラーを返しました (status=%d): %s", e.StatusCode, string(e.Body))
}

// Unwrap は原因のエラーを返す。
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// HTTPUpstream はHTTPで上流サービスを呼び出すUpstream。
type HTTPUpstream struct {
	client *httpclient.Client
	path   string
}

// NewHTTPUpstream は新しいHTTPUpstreamを生成する。pathが空の場合はDefaultChatPathを使用する。
func NewHTTPUpstream(client *httpclient.Client, path string) *HTTPUpstream {
	if path == "" {
		path = DefaultChatPath
	}
	return &HTTPUpstream{client: client, path: path}
}

// Complete はリクエストを上流へ送信し、応答を解析する。
func (u *HTTPUpstream) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	raw, err := u.client.PostJSONRaw(ctx, u.path, req)
	if err != nil {
		var statusErr *httpclient.StatusError
		if errors.As(err, &statusErr) {
			return nil, &UpstreamError{
				StatusCode:  statusErr.StatusCode,
				Body:        statusErr.Body,
				ContentType: statusErr.ContentType,
			}
		}
		return nil, &UpstreamError{StatusCode: http.StatusBadGateway, Err: err}
	}
	return ParseCompletion(raw)
}

// ParseCompletion は上流の応答ボディを解析する。
// choices[0].message が存在しない場合は502相当のUpstreamErrorを返す。
func ParseCompletion(raw []byte) (*Completion, error) {
	if !gjson.ValidBytes(raw) {
		return nil, &UpstreamError{StatusCode: http.StatusBadGateway, Body: raw, Err: errors.New("上流の応答がJSONではありません")}
	}

	choice := gjson.GetBytes(raw, "choices.0")
	message := choice.Get("message")
	if !message.IsObject() {
		return nil, &UpstreamError{StatusCode: http.StatusBadGateway, Body: raw, Err: errors.New("上流の応答にchoices[0].messageがありません")}
	}

	var msg Message
	if err := json.Unmarshal([]byte(message.Raw), &msg); err != nil {
		return nil, &UpstreamError{StatusCode: http.StatusBadGateway, Body: raw, Err: fmt.Errorf("メッセージの解析に失敗: %w", err)}
	}
	if msg.Role == "" {
		msg.Role = RoleAssistant
	}

	return &Completion{
		Raw:          json.RawMessage(raw),
		Message:      msg,
		FinishReason: choice.Get("finish_reason").String(),
	}, nil
}
