package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nao1215/llmgate/internal/chat"
	"github.com/nao1215/llmgate/internal/oauth"
	"github.com/nao1215/llmgate/internal/prompt"
	"github.com/nao1215/llmgate/internal/tools"
	"github.com/nao1215/llmgate/pkg/event"
	"github.com/nao1215/llmgate/pkg/logging"
	"github.com/nao1215/llmgate/pkg/metrics"
	"github.com/nao1215/llmgate/pkg/middleware"
)

const (
	readHeaderTimeout = 10 * time.Second
	idleTimeout       = 60 * time.Second
	shutdownTimeout   = 15 * time.Second
	// maxBodyBytes はチャットリクエストのボディの上限。
	maxBodyBytes = 1 << 20
)

// Params はServerの依存関係。
type Params struct {
	// Logger はサーバーのロガー。nilの場合は出力しない。
	Logger *zap.Logger
	// Keys は署名鍵。起動前にGenerateKeyPairを呼び出しておく。
	Keys *oauth.KeyManager
	// Credentials はトークン発行の許可リスト。
	Credentials *oauth.Credentials
	// OAuth はトークンの発行者・検証者の設定。
	OAuth oauth.Config
	// Catalog はシステムプロンプトのカタログ。
	Catalog *prompt.Catalog
	// Upstream はチャット補完サービス。
	Upstream chat.Upstream
	// Chat はOrchestratorの設定。
	Chat chat.Config
	// Builtins はリクエストごとのツール一覧を構築する。
	Builtins *tools.Builtins
	// Metrics はメトリクス。nilの場合は新規に生成する。
	Metrics *metrics.Metrics
	// AllowedOrigins はCORSを許可するオリジン。
	AllowedOrigins []string
	// Clock は現在時刻の取得関数。nilの場合はtime.Now。
	Clock func() time.Time
	// Events は追加の監査イベント送信先。
	Events event.Sink
}

// Server はLLMゲートウェイのHTTPサーバー。
type Server struct {
	router       *gin.Engine
	logger       *zap.Logger
	keys         *oauth.KeyManager
	issuer       *oauth.Issuer
	verifier     *oauth.Verifier
	catalog      *prompt.Catalog
	builtins     *tools.Builtins
	orchestrator *chat.Orchestrator
	metrics      *metrics.Metrics
	now          func() time.Time
}

// NewServer は新しいServerを生成する。
func NewServer(p Params) (*Server, error) {
	if p.Keys == nil || p.Credentials == nil || p.Catalog == nil || p.Upstream == nil {
		return nil, errors.New("Keys, Credentials, Catalog, Upstream は必須です")
	}
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	m := p.Metrics
	if m == nil {
		m = metrics.New()
	}
	now := p.Clock
	if now == nil {
		now = time.Now
	}
	builtins := p.Builtins
	if builtins == nil {
		builtins = tools.NewBuiltins(nil)
	}

	sink := event.Multi(event.NewLogSink(logger), m, p.Events)
	oauthOpts := []oauth.Option{oauth.WithClock(now), oauth.WithEvents(sink)}

	s := &Server{
		logger:   logger.With(logging.Component("gateway")),
		keys:     p.Keys,
		issuer:   oauth.NewIssuer(p.Keys, p.Credentials, p.OAuth, oauthOpts...),
		verifier: oauth.NewVerifier(p.Keys, p.OAuth, oauthOpts...),
		catalog:  p.Catalog,
		builtins: builtins,
		orchestrator: chat.NewOrchestrator(p.Catalog, p.Upstream, p.Chat,
			chat.WithEvents(sink), chat.WithLogger(logger)),
		metrics: m,
		now:     now,
	}

	router := gin.New()
	router.Use(
		middleware.RequestID(),
		middleware.AccessLog(logger.Named("access")),
		middleware.Recovery(logger),
		m.Middleware(),
		middleware.CORS(p.AllowedOrigins),
	)
	s.router = router
	s.setupRoutes(sink)

	return s, nil
}

// Handler はHTTPハンドラを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run はHTTPサーバーを起動し、ctxがキャンセルされるとグレースフルに停止する。
func (s *Server) Run(ctx context.Context, port string) error {
	srv := &http.Server{
		Addr:              net.JoinHostPort("", port),
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTPサーバーを起動します", logging.Port(port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("HTTPサーバーの起動に失敗: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("HTTPサーバーを停止します")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTPサーバーの停止に失敗: %w", err)
	}
	return nil
}

// setupRoutes はルーティングを設定する。
func (s *Server) setupRoutes(sink event.Sink) {
	// OAuth2 (認証不要)
	s.router.POST("/oauth/token", s.handleToken())
	s.router.GET("/.well-known/jwks.json", s.handleJWKS())

	// チャット (認証不要)
	s.router.POST("/:level/chat", s.handleChat())

	// 認証必須
	authorized := s.router.Group("/authorized")
	authorized.Use(middleware.BearerAuth(bearerVerifier{verifier: s.verifier}, sink))
	{
		authorized.POST("/:level/chat", s.handleChat())
		authorized.GET("/me", s.handleMe())
	}

	s.router.GET("/models", s.handleModels())
	s.router.GET("/domains", s.handleDomains())
	s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	s.router.GET("/health", s.handleHealth())

	s.router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":             "not_found",
			"error_description": fmt.Sprintf("%s %s は存在しません", c.Request.Method, c.Request.URL.Path),
		})
	})
}
