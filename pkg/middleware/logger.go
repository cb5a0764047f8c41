package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nao1215/llmgate/pkg/logging"
)

// HeaderRequestID はリクエストIDを伝播するHTTPヘッダーキー。
const HeaderRequestID = "X-Request-ID"

const contextKeyRequestID = "request_id"

// RequestID はリクエストごとにIDを払い出すGinミドルウェアを返す。
// クライアントがX-Request-IDを指定した場合はその値を引き継ぐ。
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" || len(id) > 128 {
			id = uuid.New().String()
		}
		c.Set(contextKeyRequestID, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// GetRequestID はGinコンテキストからリクエストIDを取得する。
func GetRequestID(c *gin.Context) string {
	return c.GetString(contextKeyRequestID)
}

// AccessLog はリクエストの処理結果をzapで1行出力するGinミドルウェアを返す。
// Authorizationヘッダーやリクエストボディは出力しない。
func AccessLog(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			logging.Method(c.Request.Method),
			logging.Path(c.Request.URL.Path),
			logging.Status(c.Writer.Status()),
			logging.RequestID(GetRequestID(c)),
			zap.Duration("latency", time.Since(start)),
		}
		if p, ok := GetPrincipal(c); ok {
			fields = append(fields, logging.ClientID(p.Subject), logging.Role(p.Role))
		}

		switch status := c.Writer.Status(); {
		case status >= 500:
			logger.Error("リクエスト処理完了", fields...)
		case status >= 400:
			logger.Warn("リクエスト処理完了", fields...)
		default:
			logger.Info("リクエスト処理完了", fields...)
		}
	}
}
