package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nao1215/llmgate/internal/chat"
	"github.com/nao1215/llmgate/internal/config"
	"github.com/nao1215/llmgate/internal/gateway"
	"github.com/nao1215/llmgate/internal/oauth"
	"github.com/nao1215/llmgate/internal/prompt"
	"github.com/nao1215/llmgate/internal/tools"
	"github.com/nao1215/llmgate/pkg/httpclient"
	"github.com/nao1215/llmgate/pkg/logging"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "ゲートウェイのHTTPサーバーを起動する",
	Long: `ゲートウェイのHTTPサーバーを起動します。

起動のたびにRSA鍵ペアを生成するため、再起動前に発行したトークンはすべて無効になります。
UPSTREAM_URL は必須です。OAUTH_<ROLE>_CLIENT_ID / OAUTH_<ROLE>_CLIENT_SECRET
(ROLE は READONLY, READWRITE, ADMIN) で許可リストを設定します。

注意: ALLOWED_MODELS が空の場合、クエリの model にはどのモデルでも指定できます。
本番環境では必ず許可するモデルをカンマ区切りで設定してください。`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("port", "", "リッスンポート (PORT)")
	serveCmd.Flags().String("prompts-file", "", "プロンプトカタログのYAMLファイル (PROMPTS_FILE)")
	serveCmd.Flags().String("upstream-url", "", "チャット補完サービスのベースURL (UPSTREAM_URL)")
	bindFlag(serveCmd, config.KeyPort, "port")
	bindFlag(serveCmd, config.KeyPromptsFile, "prompts-file")
	bindFlag(serveCmd, config.KeyUpstreamURL, "upstream-url")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(v)
	if err != nil {
		return fmt.Errorf("設定の読み込みに失敗: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server, cleanup, err := buildServer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	return server.Run(ctx, cfg.Port)
}

// buildServer は設定から依存関係を組み立ててServerを生成する。
func buildServer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*gateway.Server, func(), error) {
	keys := oauth.NewKeyManager()
	if err := keys.GenerateKeyPair(); err != nil {
		return nil, nil, fmt.Errorf("署名鍵の生成に失敗: %w", err)
	}
	kid, _ := keys.KeyID()
	logger.Info("署名鍵を生成しました", zap.String("kid", kid))

	creds := oauth.NewCredentials(cfg.Clients, cfg.Users)
	if creds.Clients() == 0 && creds.Users() == 0 {
		logger.Warn("資格情報が1件も設定されていないため、トークンは発行されません")
	}

	if len(cfg.AllowedModels) == 0 {
		logger.Warn("ALLOWED_MODELSが空のため、すべてのモデルの指定を許可します")
	}

	catalog, err := prompt.Load(cfg.PromptsFile)
	if err != nil {
		return nil, nil, fmt.Errorf("プロンプトカタログの読み込みに失敗: %w", err)
	}

	store, err := tools.OpenStore(ctx, cfg.ToolsDB, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("ツール用データベースの初期化に失敗: %w", err)
	}
	cleanup := func() {
		if err := store.Close(); err != nil {
			logger.Warn("ツール用データベースのクローズに失敗", zap.Error(err))
		}
	}

	client := httpclient.New(cfg.UpstreamURL,
		httpclient.WithTimeout(cfg.UpstreamTimeout),
		httpclient.WithHeader("Authorization", bearer(cfg.UpstreamAPIKey)),
	)

	server, err := gateway.NewServer(gateway.Params{
		Logger:         logger,
		Keys:           keys,
		Credentials:    creds,
		OAuth:          cfg.OAuth(),
		Catalog:        catalog,
		Upstream:       chat.NewHTTPUpstream(client, cfg.UpstreamChatPath),
		Chat:           cfg.Chat(),
		Builtins:       tools.NewBuiltins(store),
		AllowedOrigins: cfg.FrontendURLs,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("サーバーの初期化に失敗: %w", err)
	}

	logger.Info("ゲートウェイを構成しました",
		zap.String("upstream", cfg.UpstreamURL),
		zap.Int("clients", creds.Clients()),
		zap.Int("users", creds.Users()),
		zap.Strings("domains", catalog.Domains()),
		zap.Strings("allowed_models", cfg.AllowedModels),
		logging.Port(cfg.Port),
	)
	return server, cleanup, nil
}

func bearer(key string) string {
	if key == "" {
		return ""
	}
	return "Bearer " + key
}
