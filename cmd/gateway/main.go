// LLMゲートウェイのエントリポイント。
// OAuth2トークンの発行、Bearer認証、システムプロンプトを付与したチャットの中継を担当する。
// 外部からアクセス可能な唯一のサービスであり、上流のLLMに対するセキュリティの境界線となる。
package main

func main() {
	Execute()
}
