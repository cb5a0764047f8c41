package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

// TestCORS はCORSミドルウェアを検証する。
func TestCORS(t *testing.T) {
	t.Parallel()

	newRouter := func() *gin.Engine {
		router := gin.New()
		router.Use(CORS([]string{"http://localhost:3000", " https://chat.example.com/ ", ""}))
		router.POST("/alpha/chat", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})
		return router
	}

	tests := []struct {
		name        string
		method      string
		origin      string
		wantStatus  int
		wantAllowed string
	}{
		{name: "許可されたオリジン", method: http.MethodPost, origin: "http://localhost:3000", wantStatus: http.StatusOK, wantAllowed: "http://localhost:3000"},
		{name: "前後の空白と末尾スラッシュを除いて照合されること", method: http.MethodPost, origin: "https://chat.example.com", wantStatus: http.StatusOK, wantAllowed: "https://chat.example.com"},
		{name: "許可されていないオリジン", method: http.MethodPost, origin: "https://evil.example.com", wantStatus: http.StatusOK},
		{name: "Originヘッダーなし", method: http.MethodPost, wantStatus: http.StatusOK},
		{name: "プリフライトは204", method: http.MethodOptions, origin: "http://localhost:3000", wantStatus: http.StatusNoContent, wantAllowed: "http://localhost:3000"},
		{name: "許可されていないオリジンのプリフライトも204", method: http.MethodOptions, origin: "https://evil.example.com", wantStatus: http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(tt.method, "/alpha/chat", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			w := httptest.NewRecorder()
			newRouter().ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("ステータスコード = %d, want %d", w.Code, tt.wantStatus)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.wantAllowed {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.wantAllowed)
			}
			if tt.wantAllowed == "" {
				return
			}
			if got := w.Header().Get("Access-Control-Allow-Methods"); got != corsAllowMethods {
				t.Errorf("Access-Control-Allow-Methods = %q, want %q", got, corsAllowMethods)
			}
			if got := w.Header().Get("Access-Control-Allow-Headers"); got != "Authorization, Content-Type, X-Request-ID" {
				t.Errorf("Access-Control-Allow-Headers = %q", got)
			}
		})
	}
}
