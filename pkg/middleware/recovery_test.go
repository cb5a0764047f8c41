package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// TestRecovery はRecoveryミドルウェアを検証する。
func TestRecovery(t *testing.T) {
	t.Parallel()

	t.Run("パニック値の型によらず500が返りログが出力されること", func(t *testing.T) {
		t.Parallel()

		for _, value := range []any{"文字列のパニック", 42, errors.New("errorのパニック")} {
			core, logs := observer.New(zap.ErrorLevel)
			router := gin.New()
			router.Use(RequestID(), Recovery(zap.New(core)))
			router.POST("/alpha/chat", func(_ *gin.Context) {
				panic(value)
			})

			req := httptest.NewRequest(http.MethodPost, "/alpha/chat", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != http.StatusInternalServerError {
				t.Errorf("%v: ステータスコード = %d, want %d", value, w.Code, http.StatusInternalServerError)
			}
			var body map[string]string
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("レスポンスボディのパースに失敗: %v", err)
			}
			if body["error"] != "server_error" {
				t.Errorf("error = %q, want %q", body["error"], "server_error")
			}

			entries := logs.All()
			if len(entries) != 1 {
				t.Fatalf("ログ件数 = %d, want 1", len(entries))
			}
			fields := entries[0].ContextMap()
			if fields["path"] != "/alpha/chat" {
				t.Errorf("path = %v, want /alpha/chat", fields["path"])
			}
			if fields["request_id"] == "" {
				t.Error("request_idが空")
			}
		}
	})

	t.Run("パニック後もサーバーが次のリクエストを処理できること", func(t *testing.T) {
		t.Parallel()

		router := gin.New()
		router.Use(Recovery(zap.NewNop()))
		router.GET("/panic", func(_ *gin.Context) {
			panic("パニック発生")
		})
		router.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		w1 := httptest.NewRecorder()
		router.ServeHTTP(w1, httptest.NewRequest(http.MethodGet, "/panic", nil))
		if w1.Code != http.StatusInternalServerError {
			t.Errorf("1回目のステータスコード = %d, want %d", w1.Code, http.StatusInternalServerError)
		}

		w2 := httptest.NewRecorder()
		router.ServeHTTP(w2, httptest.NewRequest(http.MethodGet, "/health", nil))
		if w2.Code != http.StatusOK {
			t.Errorf("2回目のステータスコード = %d, want %d", w2.Code, http.StatusOK)
		}
	})
}
