package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func echoRegistry(t *testing.T) *Registry {
	t.Helper()

	r := NewRegistry()
	err := r.Register(Definition{
		Name:        "echo",
		Description: "echo",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"text":  map[string]any{"type": "string"},
				"times": map[string]any{"type": "integer", "minimum": 1},
			},
			"required": []any{"text"},
		},
	}, func(_ context.Context, args map[string]any) (any, error) {
		return map[string]any{"echo": args["text"]}, nil
	})
	if err != nil {
		t.Fatalf("Register()でエラーが発生: %v", err)
	}
	return r
}

func decodeContent(t *testing.T, content string) map[string]any {
	t.Helper()

	var m map[string]any
	if err := json.Unmarshal([]byte(content), &m); err != nil {
		t.Fatalf("ツール結果がJSONではない: %q: %v", content, err)
	}
	return m
}

// TestRegistryExecute はツール実行結果の分類を検証する。
func TestRegistryExecute(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		tool        string
		args        string
		wantOutcome Outcome
		wantError   string
	}{
		{name: "JSONオブジェクトの引数", tool: "echo", args: `{"text":"hi"}`, wantOutcome: OutcomeOK},
		{name: "JSON文字列にエンコードされた引数", tool: "echo", args: `"{\"text\":\"hi\"}"`, wantOutcome: OutcomeOK},
		{name: "未登録のツール", tool: "rm_rf", args: `{}`, wantOutcome: OutcomeUnknownTool, wantError: "unknown_tool"},
		{name: "必須引数の欠落", tool: "echo", args: `{}`, wantOutcome: OutcomeInvalidArguments, wantError: "invalid_arguments"},
		{name: "型の不一致", tool: "echo", args: `{"text":"hi","times":0}`, wantOutcome: OutcomeInvalidArguments, wantError: "invalid_arguments"},
		{name: "配列の引数", tool: "echo", args: `["hi"]`, wantOutcome: OutcomeInvalidArguments, wantError: "invalid_arguments"},
		{name: "JSONとして不正な引数", tool: "echo", args: `{"text":`, wantOutcome: OutcomeInvalidArguments, wantError: "invalid_arguments"},
		{name: "JSONとして不正な文字列引数", tool: "echo", args: `"not json"`, wantOutcome: OutcomeInvalidArguments, wantError: "invalid_arguments"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := echoRegistry(t).Execute(context.Background(), tt.tool, json.RawMessage(tt.args))
			if got.Outcome != tt.wantOutcome {
				t.Errorf("Outcome = %q, want %q (content=%s)", got.Outcome, tt.wantOutcome, got.Content)
			}
			body := decodeContent(t, got.Content)
			if tt.wantError == "" {
				if diff := cmp.Diff(map[string]any{"echo": "hi"}, body); diff != "" {
					t.Errorf("結果が一致しない (-want +got):\n%s", diff)
				}
				return
			}
			if body["error"] != tt.wantError {
				t.Errorf("error = %v, want %q", body["error"], tt.wantError)
			}
		})
	}
}

// TestRegistryExecuteHandlerError はハンドラのエラーがfailedとして返ることを検証する。
func TestRegistryExecuteHandlerError(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	if err := r.Register(Definition{Name: "boom"}, func(context.Context, map[string]any) (any, error) {
		return nil, errors.New("壊れました")
	}); err != nil {
		t.Fatalf("Register()でエラーが発生: %v", err)
	}
	if err := r.Register(Definition{Name: "deny"}, func(context.Context, map[string]any) (any, error) {
		return nil, ErrForbidden
	}); err != nil {
		t.Fatalf("Register()でエラーが発生: %v", err)
	}

	for name, wantError := range map[string]string{"boom": "failed", "deny": "forbidden"} {
		for _, args := range []string{"", "null", `""`} {
			got := r.Execute(context.Background(), name, json.RawMessage(args))
			if got.Outcome != OutcomeFailed {
				t.Errorf("%s(%q): Outcome = %q, want failed", name, args, got.Outcome)
			}
			if body := decodeContent(t, got.Content); body["error"] != wantError {
				t.Errorf("%s(%q): error = %v, want %q", name, args, body["error"], wantError)
			}
		}
	}
}

// TestRegistryRegister は登録時の検証を検証する。
func TestRegistryRegister(t *testing.T) {
	t.Parallel()

	noop := func(context.Context, map[string]any) (any, error) { return nil, nil }

	r := NewRegistry()
	if err := r.Register(Definition{Name: "a"}, noop); err != nil {
		t.Fatalf("Register(a)でエラーが発生: %v", err)
	}
	if err := r.Register(Definition{Name: "b", Parameters: map[string]any{"type": "object"}}, noop); err != nil {
		t.Fatalf("Register(b)でエラーが発生: %v", err)
	}

	if err := r.Register(Definition{Name: "a"}, noop); err == nil {
		t.Error("重複登録でエラーが返らない")
	}
	if err := r.Register(Definition{Name: ""}, noop); err == nil {
		t.Error("空の名前でエラーが返らない")
	}
	if err := r.Register(Definition{Name: "c"}, nil); err == nil {
		t.Error("nilハンドラでエラーが返らない")
	}
	if err := r.Register(Definition{Name: "d", Parameters: map[string]any{"type": 42}}, noop); err == nil {
		t.Error("不正なスキーマでエラーが返らない")
	}

	var names []string
	for _, d := range r.Definitions() {
		names = append(names, d.Name)
	}
	if diff := cmp.Diff([]string{"a", "b"}, names); diff != "" {
		t.Errorf("登録順が一致しない (-want +got):\n%s", diff)
	}
	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2", r.Len())
	}

	var nilRegistry *Registry
	if got := nilRegistry.Execute(context.Background(), "a", nil); got.Outcome != OutcomeUnknownTool {
		t.Errorf("nil Registry: Outcome = %q, want unknown_tool", got.Outcome)
	}
}
