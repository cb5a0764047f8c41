package chat

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// FieldError は入力の1項目に対する検証エラー。
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors はリクエストの検証エラーの一覧。
type ValidationErrors []FieldError

// Error はerrorインターフェースを実装する。
func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for _, e := range v {
		parts = append(parts, e.Field+": "+e.Message)
	}
	return "入力が不正です: " + strings.Join(parts, ", ")
}

// callerRoles は呼び出し元が指定できるロール。
var callerRoles = map[string]Role{
	"system":    RoleSystem,
	"user":      RoleUser,
	"assistant": RoleAssistant,
}

// NormalizeMessages はmessagesフィールドを会話のターン列に変換する。
//
// 受け付ける形式:
//   - ターンの配列 [{"role":"user","content":"..."}]
//   - 文字列 "..." (1件のuserターンとして扱う。JSONとして解釈できない文字列も同様)
//   - ターンの配列または1件のターンをJSONエンコードした文字列
//
// 形式が不正な場合は項目ごとの詳細を持つValidationErrorsを返す。内容を黙って捨てることはしない。
func NormalizeMessages(raw json.RawMessage) ([]Message, error) {
	text := strings.TrimSpace(string(raw))
	if text == "" || text == "null" {
		return nil, ValidationErrors{{Field: "messages", Message: "必須です"}}
	}
	if !gjson.Valid(text) {
		return nil, ValidationErrors{{Field: "messages", Message: "JSONとして不正です"}}
	}

	value := gjson.Parse(text)
	if value.Type == gjson.String {
		s := strings.TrimSpace(value.Str)
		if s == "" {
			return nil, ValidationErrors{{Field: "messages", Message: "空の文字列は指定できません"}}
		}
		if !looksLikeJSON(s) || !gjson.Valid(s) {
			return []Message{{Role: RoleUser, Content: value.Str}}, nil
		}
		value = gjson.Parse(s)
	}

	switch {
	case value.IsArray():
		return normalizeTurns(value.Array())
	case value.IsObject():
		msg, errs := normalizeTurn("messages", value)
		if len(errs) > 0 {
			return nil, errs
		}
		return []Message{msg}, nil
	default:
		return nil, ValidationErrors{{Field: "messages", Message: "配列・文字列・オブジェクトのいずれかで指定してください"}}
	}
}

func looksLikeJSON(s string) bool {
	return strings.HasPrefix(s, "[") || strings.HasPrefix(s, "{")
}

func normalizeTurns(items []gjson.Result) ([]Message, error) {
	if len(items) == 0 {
		return nil, ValidationErrors{{Field: "messages", Message: "少なくとも1件のメッセージが必要です"}}
	}

	var errs ValidationErrors
	out := make([]Message, 0, len(items))
	for i, item := range items {
		msg, itemErrs := normalizeTurn(fmt.Sprintf("messages[%d]", i), item)
		if len(itemErrs) > 0 {
			errs = append(errs, itemErrs...)
			continue
		}
		out = append(out, msg)
	}
	if len(errs) > 0 {
		return nil, errs
	}
	return out, nil
}

func normalizeTurn(field string, item gjson.Result) (Message, ValidationErrors) {
	if !item.IsObject() {
		return Message{}, ValidationErrors{{Field: field, Message: "オブジェクトで指定してください"}}
	}

	var errs ValidationErrors
	role := item.Get("role")
	r, ok := callerRoles[role.Str]
	switch {
	case !role.Exists():
		errs = append(errs, FieldError{Field: field + ".role", Message: "必須です"})
	case role.Type != gjson.String || !ok:
		errs = append(errs, FieldError{Field: field + ".role", Message: "system, user, assistant のいずれかを指定してください"})
	}

	content := item.Get("content")
	switch {
	case !content.Exists():
		errs = append(errs, FieldError{Field: field + ".content", Message: "必須です"})
	case content.Type != gjson.String:
		errs = append(errs, FieldError{Field: field + ".content", Message: "文字列で指定してください"})
	}

	if len(errs) > 0 {
		return Message{}, errs
	}
	return Message{Role: r, Content: content.Str}, nil
}
