package event

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

// TestNew はNew関数でイベントが正しく生成されることを検証する。
func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("TokenIssuedDataでイベントを正常に生成できること", func(t *testing.T) {
		t.Parallel()

		data := TokenIssuedData{
			GrantType: "client_credentials",
			Role:      "admin",
			TokenID:   "jti-1",
			ExpiresIn: 3600,
		}

		before := time.Now().UTC()
		ev, err := New("client-1", TypeTokenIssued, data)
		after := time.Now().UTC()

		if err != nil {
			t.Fatalf("New()でエラーが発生: %v", err)
		}
		if ev.ID == "" {
			t.Error("IDが空文字列")
		}
		if ev.Subject != "client-1" {
			t.Errorf("Subject = %q, want %q", ev.Subject, "client-1")
		}
		if ev.EventType != TypeTokenIssued {
			t.Errorf("EventType = %q, want %q", ev.EventType, TypeTokenIssued)
		}
		if ev.CreatedAt.Before(before) || ev.CreatedAt.After(after) {
			t.Errorf("CreatedAt = %v, 期待する範囲: [%v, %v]", ev.CreatedAt, before, after)
		}

		decoded, err := DecodeData[TokenIssuedData](ev)
		if err != nil {
			t.Fatalf("DecodeData()でエラーが発生: %v", err)
		}
		if *decoded != data {
			t.Errorf("decoded = %+v, want %+v", *decoded, data)
		}
	})

	t.Run("シリアライズできないデータでエラーになること", func(t *testing.T) {
		t.Parallel()

		if _, err := New("", TypeToolInvoked, make(chan int)); err == nil {
			t.Error("チャネルのシリアライズでエラーが返るべき")
		}
	})

	t.Run("毎回異なるIDが採番されること", func(t *testing.T) {
		t.Parallel()

		a, _ := New("", TypeAuthRejected, AuthRejectedData{Reason: "x"})
		b, _ := New("", TypeAuthRejected, AuthRejectedData{Reason: "x"})
		if a.ID == b.ID {
			t.Errorf("IDが重複: %q", a.ID)
		}
	})
}

// TestDecodeData は型の異なるデータへのデコードを検証する。
func TestDecodeData(t *testing.T) {
	t.Parallel()

	t.Run("不正なJSONでエラーになること", func(t *testing.T) {
		t.Parallel()

		ev := &Event{Data: []byte("{broken")}
		if _, err := DecodeData[AuthRejectedData](ev); err == nil {
			t.Error("不正なJSONでエラーが返るべき")
		}
	})
}

// TestSinks はEmitとMulti、Recorderの連携を検証する。
func TestSinks(t *testing.T) {
	t.Parallel()

	t.Run("Multiで全てのSinkにイベントが配られること", func(t *testing.T) {
		t.Parallel()

		var r1, r2 Recorder
		sink := Multi(&r1, nil, &r2, NewLogSink(zaptest.NewLogger(t)))

		Emit(context.Background(), sink, "client-1", TypeGrantRejected, GrantRejectedData{ErrorCode: "invalid_client"})
		Emit(context.Background(), sink, "", TypeToolInvoked, ToolInvokedData{Tool: "whoami", Outcome: "ok"})

		if got := len(r1.Events()); got != 2 {
			t.Errorf("r1のイベント数 = %d, want 2", got)
		}
		if got := len(r2.Events(TypeToolInvoked)); got != 1 {
			t.Errorf("r2のToolInvoked数 = %d, want 1", got)
		}
	})

	t.Run("sinkがnilでもパニックしないこと", func(t *testing.T) {
		t.Parallel()

		Emit(context.Background(), nil, "", TypeAuthRejected, AuthRejectedData{})
	})
}
