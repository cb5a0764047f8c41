package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// defaultTimeout はリクエスト全体のタイムアウトの既定値。
const defaultTimeout = 30 * time.Second

// Client は上流サービスとの通信用のHTTPクライアント。
// タイムアウトと共通ヘッダーの設定を持つ。
type Client struct {
	// httpClient は内部で使用するHTTPクライアント。
	httpClient *http.Client
	// baseURL は接続先サービスのベースURL。
	baseURL string
	// headers はすべてのリクエストに付与するヘッダー。
	headers http.Header
}

// Option はClientの生成オプション。
type Option func(*Client)

// WithTimeout はリクエストのタイムアウトを設定する。0以下の場合は既定値のまま。
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithHeader はすべてのリクエストに付与するヘッダーを追加する。
// 値が空の場合は何もしない。
func WithHeader(key, value string) Option {
	return func(c *Client) {
		if value != "" {
			c.headers.Set(key, value)
		}
	}
}

// New は新しいHTTPクライアントを生成する。
// baseURLには接続先サービスのベースURL（例: "http://litellm:4000"）を指定する。
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		baseURL: baseURL,
		headers: make(http.Header),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StatusError は上流サービスが2xx以外のステータスを返したことを表す。
// 呼び出し元がステータスとボディをそのまま転送できるよう、両方を保持する。
type StatusError struct {
	// StatusCode は上流のHTTPステータスコード。
	StatusCode int
	// Body は上流のレスポンスボディ。
	Body []byte
	// ContentType は上流のContent-Type。
	ContentType string
}

// Error はerrorインターフェースを実装する。
func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTPエラー: status=%d, body=%s", e.StatusCode, string(e.Body))
}

// PostJSONRaw は指定パスにJSONボディでPOSTリクエストを送信し、レスポンスボディを加工せずに返す。
func (c *Client) PostJSONRaw(ctx context.Context, path string, body any) ([]byte, error) {
	return c.doJSON(ctx, http.MethodPost, path, body)
}

// GetJSON は指定パスにGETリクエストを送信する。
// レスポンスボディをresultにデシリアライズする。
func (c *Client) GetJSON(ctx context.Context, path string, result any) error {
	raw, err := c.doJSON(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return decode(raw, result)
}

// doJSON はJSON形式のHTTPリクエストを実行する共通処理。
func (c *Client) doJSON(ctx context.Context, method, path string, body any) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("リクエストボディのシリアライズに失敗: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗: %w", err)
	}
	for k, vs := range c.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	// コンテキストから認証済みクライアントIDを伝播する
	if clientID, ok := ctx.Value(contextKeyClientID).(string); ok {
		req.Header.Set(HeaderClientID, clientID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの送信に失敗: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{
			StatusCode:  resp.StatusCode,
			Body:        respBody,
			ContentType: resp.Header.Get("Content-Type"),
		}
	}
	return respBody, nil
}

// decode はレスポンスボディをresultにデシリアライズする。resultがnilの場合は何もしない。
func decode(raw []byte, result any) error {
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return fmt.Errorf("レスポンスボディのデシリアライズに失敗: %w", err)
	}
	return nil
}

// HeaderClientID は認証済みクライアントIDを上流に伝播するためのHTTPヘッダーキー。
const HeaderClientID = "X-Client-ID"

// contextKey はコンテキストキーの型。
type contextKey string

// contextKeyClientID はコンテキストにクライアントIDを格納するためのキー。
const contextKeyClientID contextKey = "client_id"

// WithClientID はコンテキストにクライアントIDを設定する。
// 上流サービスが利用者を識別できるよう、リクエストヘッダーとして伝播される。
func WithClientID(ctx context.Context, clientID string) context.Context {
	return context.WithValue(ctx, contextKeyClientID, clientID)
}
