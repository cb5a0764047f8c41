package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nao1215/llmgate/internal/config"
	"github.com/nao1215/llmgate/pkg/logging"
)

var (
	v      = config.New()
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "gateway",
	Short: "OAuth2で保護されたLLMチャットゲートウェイ",
	Long: `gateway は上流のチャット補完サービスの前段に置くHTTPゲートウェイです。

client_credentials / password グラントでRS256署名のアクセストークンを発行し、
セキュリティレベル(alpha / bravo)とドメインに応じたシステムプロンプトを付与して
チャットを中継します。設定は環境変数から読み込みます。`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = logging.New(logging.Config{
			Level:  v.GetString(config.KeyLogLevel),
			Format: v.GetString(config.KeyLogFormat),
		})
		if err != nil {
			return fmt.Errorf("ロガーの初期化に失敗: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			logging.Sync(logger)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "", "ログレベル (debug|info|warn|error)")
	rootCmd.PersistentFlags().String("log-format", "", "ログ形式 (json|console)")
	bindFlag(rootCmd, config.KeyLogLevel, "log-level")
	bindFlag(rootCmd, config.KeyLogFormat, "log-format")
}

// bindFlag はフラグが指定された場合に環境変数より優先されるようviperへ結び付ける。
func bindFlag(cmd *cobra.Command, key, name string) {
	flag := cmd.PersistentFlags().Lookup(name)
	if flag == nil {
		flag = cmd.Flags().Lookup(name)
	}
	if err := v.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("フラグ %s のバインドに失敗: %v", name, err))
	}
}

// Execute はルートコマンドを実行する。
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

