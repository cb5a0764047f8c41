package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/nao1215/llmgate/pkg/httpclient"
)

const clientTimeout = 15 * time.Second

var clientFlags struct {
	url          string
	clientID     string
	clientSecret string
	scope        string
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "起動中のゲートウェイからclient_credentialsでアクセストークンを取得する",
	RunE:  runToken,
}

var jwksCmd = &cobra.Command{
	Use:   "jwks",
	Short: "起動中のゲートウェイの公開鍵セットを表示する",
	RunE:  runJWKS,
}

func init() {
	rootCmd.AddCommand(tokenCmd, jwksCmd)

	for _, cmd := range []*cobra.Command{tokenCmd, jwksCmd} {
		cmd.Flags().StringVar(&clientFlags.url, "url", "http://localhost:8080", "ゲートウェイのベースURL")
	}
	tokenCmd.Flags().StringVar(&clientFlags.clientID, "client-id", os.Getenv("LLMGATE_CLIENT_ID"), "クライアントID")
	tokenCmd.Flags().StringVar(&clientFlags.clientSecret, "client-secret", os.Getenv("LLMGATE_CLIENT_SECRET"), "クライアントシークレット")
	tokenCmd.Flags().StringVar(&clientFlags.scope, "scope", "", "要求するスコープ (スペース区切り)")
}

func runToken(cmd *cobra.Command, _ []string) error {
	if clientFlags.clientID == "" || clientFlags.clientSecret == "" {
		return errors.New("--client-id と --client-secret を指定してください")
	}

	cfg := clientcredentials.Config{
		ClientID:     clientFlags.clientID,
		ClientSecret: clientFlags.clientSecret,
		TokenURL:     strings.TrimRight(clientFlags.url, "/") + "/oauth/token",
		Scopes:       strings.Fields(clientFlags.scope),
		AuthStyle:    oauth2.AuthStyleInParams,
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), clientTimeout)
	defer cancel()

	tok, err := cfg.Token(ctx)
	if err != nil {
		return fmt.Errorf("トークンの取得に失敗: %w", err)
	}
	return printJSON(cmd, map[string]any{
		"access_token": tok.AccessToken,
		"token_type":   tok.Type(),
		"expiry":       tok.Expiry.UTC().Format(time.RFC3339),
	})
}

func runJWKS(cmd *cobra.Command, _ []string) error {
	client := httpclient.New(strings.TrimRight(clientFlags.url, "/"), httpclient.WithTimeout(clientTimeout))

	var set json.RawMessage
	if err := client.GetJSON(cmd.Context(), "/.well-known/jwks.json", &set); err != nil {
		return fmt.Errorf("JWKSの取得に失敗: %w", err)
	}
	return printJSON(cmd, set)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
