package chat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nao1215/llmgate/pkg/httpclient"
)

// TestHTTPUpstreamComplete は上流へのリクエストと応答の解析を検証する。
func TestHTTPUpstreamComplete(t *testing.T) {
	t.Parallel()

	t.Run("リクエストが送信され応答が解析されること", func(t *testing.T) {
		t.Parallel()

		var received map[string]any
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/v1/chat/completions" {
				t.Errorf("path = %q", r.URL.Path)
			}
			if got := r.Header.Get("Authorization"); got != "Bearer upstream-key" {
				t.Errorf("Authorization = %q", got)
			}
			body, _ := io.ReadAll(r.Body)
			if err := json.Unmarshal(body, &received); err != nil {
				t.Errorf("リクエストボディのパースに失敗: %v", err)
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"choices":[{"finish_reason":"tool_calls","message":{"role":"assistant","content":null,"tool_calls":[{"id":"c1","type":"function","function":{"name":"whoami","arguments":"{\"a\":1}"}}]}}]}`))
		}))
		defer srv.Close()

		up := NewHTTPUpstream(httpclient.New(srv.URL, httpclient.WithHeader("Authorization", "Bearer upstream-key")), "")
		got, err := up.Complete(context.Background(), CompletionRequest{
			Model:    "m",
			Messages: []Message{{Role: RoleUser, Content: "hi"}},
		})
		if err != nil {
			t.Fatalf("Complete()でエラーが発生: %v", err)
		}

		if received["model"] != "m" {
			t.Errorf("model = %v", received["model"])
		}
		if _, ok := received["tools"]; ok {
			t.Error("toolsが空なのに送信された")
		}
		if !got.HasToolCalls() || got.FinishReason != "tool_calls" {
			t.Fatalf("completion = %+v", got)
		}
		call := got.Message.ToolCalls[0]
		if call.Function.Name != "whoami" || string(call.Function.Arguments) != `"{\"a\":1}"` {
			t.Errorf("tool call = %+v", call)
		}
	})

	t.Run("2xx以外はステータスとボディを保持したUpstreamErrorになること", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"slow down"}}`))
		}))
		defer srv.Close()

		_, err := NewHTTPUpstream(httpclient.New(srv.URL), "/chat").Complete(context.Background(), CompletionRequest{})
		var upErr *UpstreamError
		if !errors.As(err, &upErr) {
			t.Fatalf("*UpstreamErrorが返るべき: %v", err)
		}
		if upErr.StatusCode != http.StatusTooManyRequests {
			t.Errorf("StatusCode = %d, want %d", upErr.StatusCode, http.StatusTooManyRequests)
		}
		if string(upErr.Body) != `{"error":{"message":"slow down"}}` {
			t.Errorf("Body = %s", upErr.Body)
		}
		if upErr.ContentType != "application/json" {
			t.Errorf("ContentType = %q", upErr.ContentType)
		}
	})

	t.Run("接続できない場合は502になること", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		_, err := NewHTTPUpstream(httpclient.New(url), "").Complete(context.Background(), CompletionRequest{})
		var upErr *UpstreamError
		if !errors.As(err, &upErr) {
			t.Fatalf("*UpstreamErrorが返るべき: %v", err)
		}
		if upErr.StatusCode != http.StatusBadGateway || upErr.Err == nil {
			t.Errorf("got = %+v", upErr)
		}
	})
}

// TestParseCompletion は不正な応答の扱いを検証する。
func TestParseCompletion(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{`not json`, `{}`, `{"choices":[]}`, `{"choices":[{"message":"text"}]}`} {
		_, err := ParseCompletion([]byte(raw))
		var upErr *UpstreamError
		if !errors.As(err, &upErr) || upErr.StatusCode != http.StatusBadGateway {
			t.Errorf("ParseCompletion(%q) err = %v, want 502 UpstreamError", raw, err)
		}
	}

	got, err := ParseCompletion([]byte(`{"choices":[{"message":{"content":"hello"}}]}`))
	if err != nil {
		t.Fatalf("ParseCompletion()でエラーが発生: %v", err)
	}
	if got.Message.Role != RoleAssistant || got.Message.Content != "hello" || got.HasToolCalls() {
		t.Errorf("message = %+v", got.Message)
	}
}
