package gateway

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/nao1215/llmgate/internal/chat"
	"github.com/nao1215/llmgate/internal/oauth"
	"github.com/nao1215/llmgate/internal/prompt"
	"github.com/nao1215/llmgate/pkg/httpclient"
	"github.com/nao1215/llmgate/pkg/logging"
	"github.com/nao1215/llmgate/pkg/middleware"
)

// エラーレスポンスのerrorフィールドの値。
const (
	errValidation     = "validation_error"
	errUpstream       = "upstream_error"
	errToolCallLimit  = "tool_call_limit_exceeded"
	errPromptNotFound = "prompt_not_found"
	errServer         = "server_error"
)

// errorResponse はゲートウェイ共通のエラーレスポンス。
type errorResponse struct {
	Error       string            `json:"error"`
	Description string            `json:"error_description,omitempty"`
	Details     []chat.FieldError `json:"details,omitempty"`
}

func validationError(c *gin.Context, details ...chat.FieldError) {
	c.JSON(http.StatusBadRequest, errorResponse{
		Error:       errValidation,
		Description: "リクエストが不正です",
		Details:     details,
	})
}

// handleToken はPOST /oauth/token を処理する。
func (s *Server) handleToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-store")
		c.Header("Pragma", "no-cache")

		req, err := oauth.TokenRequestFromHTTP(c.Request)
		if err == nil {
			var resp *oauth.TokenResponse
			resp, err = s.issuer.Token(c.Request.Context(), req)
			if err == nil {
				c.JSON(http.StatusOK, resp)
				return
			}
		}

		var oerr *oauth.Error
		if !errors.As(err, &oerr) {
			s.logger.Error("トークン発行で予期しないエラー", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": errServer, "error_description": "内部サーバーエラーが発生しました"})
			return
		}
		if oerr.Status == http.StatusUnauthorized && c.GetHeader("Authorization") != "" {
			c.Header("WWW-Authenticate", `Basic realm="llmgate"`)
		}
		c.JSON(oerr.Status, oerr)
	}
}

// handleJWKS はGET /.well-known/jwks.json を処理する。
func (s *Server) handleJWKS() gin.HandlerFunc {
	return func(c *gin.Context) {
		set, err := s.keys.JWKS()
		if err != nil {
			s.logger.Error("JWKSの生成に失敗", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": errServer, "error_description": "署名鍵が初期化されていません"})
			return
		}
		c.Header("Cache-Control", "public, max-age=3600")
		c.JSON(http.StatusOK, set)
	}
}

// handleChat はPOST /:level/chat と /authorized/:level/chat を処理する。
// domainとmodelはクエリ、messagesはJSONボディで受け取る。
func (s *Server) handleChat() gin.HandlerFunc {
	return func(c *gin.Context) {
		level, err := prompt.ParseLevel(c.Param("level"))
		if err != nil {
			validationError(c, chat.FieldError{
				Field:   "level",
				Message: fmt.Sprintf("%s のいずれかを指定してください", strings.Join(prompt.Labels(), ", ")),
			})
			return
		}

		domain := c.DefaultQuery("domain", prompt.DefaultDomain)
		if !s.catalog.HasDomain(domain) {
			validationError(c, chat.FieldError{
				Field:   "domain",
				Message: fmt.Sprintf("%s のいずれかを指定してください", strings.Join(s.catalog.Domains(), ", ")),
			})
			return
		}

		model := c.Query("model")
		if _, err := s.orchestrator.ResolveModel(model); err != nil {
			validationError(c, chat.FieldError{Field: "model", Message: err.Error()})
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
		if err != nil {
			validationError(c, chat.FieldError{Field: "body", Message: "リクエストボディを読み取れません"})
			return
		}
		if !gjson.ValidBytes(body) || !gjson.ParseBytes(body).IsObject() {
			validationError(c, chat.FieldError{Field: "body", Message: "JSONオブジェクトを指定してください"})
			return
		}
		rawMessages := gjson.GetBytes(body, "messages")
		if !rawMessages.Exists() {
			validationError(c, chat.FieldError{Field: "messages", Message: "必須です"})
			return
		}
		messages, err := chat.NormalizeMessages([]byte(rawMessages.Raw))
		if err != nil {
			var verrs chat.ValidationErrors
			if errors.As(err, &verrs) {
				validationError(c, verrs...)
				return
			}
			validationError(c, chat.FieldError{Field: "messages", Message: err.Error()})
			return
		}

		ctx := c.Request.Context()
		registry, err := s.builtins.Registry(ctx)
		if err != nil {
			s.logger.Error("ツールの登録に失敗", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": errServer, "error_description": "内部サーバーエラーが発生しました"})
			return
		}

		req := chat.Request{
			Domain:   domain,
			Level:    level,
			Model:    model,
			Messages: messages,
		}
		if claims, ok := oauth.ClaimsFromContext(ctx); ok {
			req.Subject = claims.Subject
			ctx = httpclient.WithClientID(ctx, claims.Subject)
		}

		completion, err := s.orchestrator.Run(ctx, req, registry)
		if err != nil {
			s.writeChatError(c, domain, err)
			return
		}
		c.Data(http.StatusOK, "application/json", completion.Raw)
	}
}

func (s *Server) writeChatError(c *gin.Context, domain string, err error) {
	var upstreamErr *chat.UpstreamError
	switch {
	case errors.As(err, &upstreamErr):
		s.logger.Warn("上流サービスがエラーを返しました",
			logging.Domain(domain), logging.Status(upstreamErr.StatusCode), zap.Error(err))
		if len(upstreamErr.Body) > 0 && upstreamErr.StatusCode >= 400 {
			contentType := upstreamErr.ContentType
			if contentType == "" {
				contentType = "application/json"
			}
			c.Data(upstreamErr.StatusCode, contentType, upstreamErr.Body)
			return
		}
		status := upstreamErr.StatusCode
		if status < 400 {
			status = http.StatusBadGateway
		}
		c.JSON(status, gin.H{"error": errUpstream, "error_description": "上流サービスとの通信に失敗しました"})
	case errors.Is(err, chat.ErrToolCallLimitExceeded):
		c.JSON(http.StatusInternalServerError, gin.H{"error": errToolCallLimit, "error_description": err.Error()})
	case errors.Is(err, prompt.ErrPromptNotFound):
		s.logger.Error("システムプロンプトが見つかりません", logging.Domain(domain), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": errPromptNotFound, "error_description": "システムプロンプトが設定されていません"})
	default:
		s.logger.Error("チャットの処理に失敗", logging.Domain(domain), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": errServer, "error_description": "内部サーバーエラーが発生しました"})
	}
}

// meResponse はGET /authorized/me のレスポンス。
type meResponse struct {
	Subject   string    `json:"sub"`
	Role      string    `json:"role"`
	Scope     string    `json:"scope,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

// handleMe は呼び出し元のトークンの内容を返す。
func (s *Server) handleMe() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := oauth.ClaimsFromContext(c.Request.Context())
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": middleware.ReasonInvalidToken})
			return
		}
		resp := meResponse{Subject: claims.Subject, Role: string(claims.Role), Scope: claims.Scope}
		if claims.ExpiresAt != nil {
			resp.ExpiresAt = claims.ExpiresAt.UTC()
		}
		c.JSON(http.StatusOK, resp)
	}
}

// handleModels はモデルの許可リストを返す。
func (s *Server) handleModels() gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed := s.orchestrator.AllowedModels()
		if allowed == nil {
			allowed = []string{}
		}
		c.JSON(http.StatusOK, gin.H{
			"default":             s.orchestrator.DefaultModel(),
			"allowed":             allowed,
			"allow_any":           len(allowed) == 0,
			"max_tool_iterations": s.orchestrator.MaxIterations(),
		})
	}
}

// domainResponse はGET /domains の要素。
type domainResponse struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Levels      []string `json:"levels"`
	Default     bool     `json:"default,omitempty"`
}

// handleDomains は指定可能なドメインとレベルを返す。
func (s *Server) handleDomains() gin.HandlerFunc {
	return func(c *gin.Context) {
		names := s.catalog.Domains()
		domains := make([]domainResponse, 0, len(names))
		for _, name := range names {
			domains = append(domains, domainResponse{
				Name:        name,
				Description: s.catalog.Description(name),
				Levels:      prompt.Labels(),
				Default:     name == prompt.DefaultDomain,
			})
		}
		c.JSON(http.StatusOK, gin.H{"domains": domains})
	}
}

// handleHealth は生存確認。常に200を返し、ツール用データベースの状態はtools_dbで報告する。
func (s *Server) handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		toolsDB := "ok"
		if err := s.builtins.Ping(c.Request.Context()); err != nil {
			s.logger.Warn("ツール用データベースに接続できません", zap.Error(err))
			toolsDB = "unavailable"
		}
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": s.now().UTC().Format(time.RFC3339),
			"tools_db":  toolsDB,
		})
	}
}
