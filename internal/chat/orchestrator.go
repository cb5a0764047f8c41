package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/nao1215/llmgate/internal/prompt"
	"github.com/nao1215/llmgate/internal/tools"
	"github.com/nao1215/llmgate/pkg/event"
	"github.com/nao1215/llmgate/pkg/logging"
)

// DefaultMaxIterations は1リクエスト内の上流呼び出し回数の既定上限。
const DefaultMaxIterations = 10

var (
	// ErrToolCallLimitExceeded は上限回数まで上流を呼び出しても最終応答が得られなかったことを表す。
	ErrToolCallLimitExceeded = errors.New("ツール呼び出しの上限回数に達しました")
	// ErrModelNotAllowed は許可されていないモデルが指定されたことを表す。
	ErrModelNotAllowed = errors.New("指定されたモデルは許可されていません")
)

// PromptResolver はドメインとレベルからシステムプロンプトを解決する。*prompt.Catalogが実装する。
type PromptResolver interface {
	Resolve(domain string, level prompt.Level) (string, error)
}

// Config はOrchestratorの設定。
type Config struct {
	// DefaultModel はmodel未指定時に使用するモデル。空の場合は上流の既定に任せる。
	DefaultModel string
	// AllowedModels は指定を許可するモデル。空の場合はすべて許可する。
	AllowedModels []string
	// MaxIterations は上流呼び出し回数の上限。0以下の場合はDefaultMaxIterations。
	MaxIterations int
}

// Request は1回のチャット要求。
type Request struct {
	// Domain はプロンプトのドメイン。
	Domain string
	// Level はプロンプトのセキュリティレベル。
	Level prompt.Level
	// Model はクエリで指定されたモデル。空の場合は既定のモデル。
	Model string
	// Messages は正規化済みの呼び出し元のメッセージ。
	Messages []Message
	// Subject は監査イベントの主体。未認証の場合は空。
	Subject string
}

// Option はOrchestratorの生成オプション。
type Option func(*Orchestrator)

// WithEvents は監査イベントの送信先を設定する。
func WithEvents(sink event.Sink) Option {
	return func(o *Orchestrator) {
		o.sink = sink
	}
}

// WithLogger はロガーを設定する。
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Orchestrator はシステムプロンプトの付与、上流の呼び出し、ツール呼び出しの解決を行う。
// 状態はRunの中だけに閉じており、並行に呼び出してよい。
type Orchestrator struct {
	prompts  PromptResolver
	upstream Upstream
	cfg      Config
	allowed  map[string]struct{}
	sink     event.Sink
	logger   *zap.Logger
}

// NewOrchestrator は新しいOrchestratorを生成する。
func NewOrchestrator(prompts PromptResolver, upstream Upstream, cfg Config, opts ...Option) *Orchestrator {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	allowed := make(map[string]struct{}, len(cfg.AllowedModels))
	for _, m := range cfg.AllowedModels {
		if m = strings.TrimSpace(m); m != "" {
			allowed[m] = struct{}{}
		}
	}

	o := &Orchestrator{
		prompts:  prompts,
		upstream: upstream,
		cfg:      cfg,
		allowed:  allowed,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With(logging.Component("chat"))
	return o
}

// MaxIterations は上流呼び出し回数の上限を返す。
func (o *Orchestrator) MaxIterations() int {
	return o.cfg.MaxIterations
}

// ResolveModel は使用するモデルを決定する。
// 許可リストが空の場合はどのモデルでも受け付ける。
func (o *Orchestrator) ResolveModel(requested string) (string, error) {
	model := strings.TrimSpace(requested)
	if model == "" {
		model = o.cfg.DefaultModel
	}
	if model == "" || len(o.allowed) == 0 {
		return model, nil
	}
	if _, ok := o.allowed[model]; !ok {
		return "", fmt.Errorf("%w: %s", ErrModelNotAllowed, model)
	}
	return model, nil
}

// AllowedModels は許可リストを返す。
func (o *Orchestrator) AllowedModels() []string {
	return append([]string(nil), o.cfg.AllowedModels...)
}

// DefaultModel は既定のモデルを返す。
func (o *Orchestrator) DefaultModel() string {
	return o.cfg.DefaultModel
}

// loopState はツール呼び出しループの状態。
type loopState int

const (
	awaitingModel loopState = iota
	executingTools
)

// Run は会話を実行し、ツール呼び出しを含まない最終応答を返す。
//
// 上流の応答がツール呼び出しを要求する間は、各ツールを実行して結果をtoolロールのターンとして追加し、
// 再度上流を呼び出す。上流の呼び出しはMaxIterations回までで、上限に達しても最終応答が得られない場合は
// 最後に要求されたツールを実行せずにErrToolCallLimitExceededを返す。
// 上流のエラーは*UpstreamErrorのまま返す。
func (o *Orchestrator) Run(ctx context.Context, req Request, registry *tools.Registry) (*Completion, error) {
	system, err := o.prompts.Resolve(req.Domain, req.Level)
	if err != nil {
		return nil, fmt.Errorf("システムプロンプトの解決に失敗: %w", err)
	}
	model, err := o.ResolveModel(req.Model)
	if err != nil {
		return nil, err
	}

	conversation := make([]Message, 0, len(req.Messages)+1)
	conversation = append(conversation, Message{Role: RoleSystem, Content: system})
	conversation = append(conversation, req.Messages...)

	var specs []ToolSpec
	for _, def := range registryDefinitions(registry) {
		specs = append(specs, ToolSpec{Type: "function", Function: def})
	}
	o.logger.Debug("会話を開始します",
		logging.Domain(req.Domain),
		zap.String("level", req.Level.String()),
		zap.Int("tools", registry.Len()),
	)

	var (
		state   = awaitingModel
		calls   int
		pending *Completion
	)
	for {
		switch state {
		case awaitingModel:
			calls++
			completion, err := o.upstream.Complete(ctx, o.completionRequest(model, conversation, specs))
			if err != nil {
				return nil, err
			}
			if !completion.HasToolCalls() {
				o.logger.Debug("最終応答を受信しました", logging.Domain(req.Domain), logging.Iteration(calls))
				return completion, nil
			}
			if calls >= o.cfg.MaxIterations {
				o.logger.Warn("ツール呼び出しの上限回数に達しました",
					logging.Domain(req.Domain),
					logging.Iteration(calls),
				)
				event.Emit(ctx, o.sink, req.Subject, event.TypeToolLoopExhausted, event.ToolLoopExhaustedData{
					Ceiling: o.cfg.MaxIterations,
					Domain:  req.Domain,
				})
				return nil, fmt.Errorf("%w (%d回)", ErrToolCallLimitExceeded, o.cfg.MaxIterations)
			}
			pending = completion
			state = executingTools

		case executingTools:
			conversation = append(conversation, Message{
				Role:      RoleAssistant,
				Content:   pending.Message.Content,
				ToolCalls: pending.Message.ToolCalls,
			})
			for _, call := range pending.Message.ToolCalls {
				result := registry.Execute(ctx, call.Function.Name, call.Function.Arguments)
				o.logger.Debug("ツールを実行しました",
					logging.Tool(call.Function.Name),
					logging.Iteration(calls),
					zap.String("outcome", string(result.Outcome)),
				)
				event.Emit(ctx, o.sink, req.Subject, event.TypeToolInvoked, event.ToolInvokedData{
					Tool:      call.Function.Name,
					Outcome:   string(result.Outcome),
					Iteration: calls,
				})
				conversation = append(conversation, Message{
					Role:       RoleTool,
					Content:    result.Content,
					ToolCallID: call.ID,
					Name:       call.Function.Name,
				})
			}
			pending = nil
			state = awaitingModel
		}
	}
}

func (o *Orchestrator) completionRequest(model string, conversation []Message, specs []ToolSpec) CompletionRequest {
	req := CompletionRequest{
		Model:    model,
		Messages: append([]Message(nil), conversation...),
	}
	if len(specs) > 0 {
		req.Tools = specs
		req.ToolChoice = "auto"
	}
	return req
}

func registryDefinitions(r *tools.Registry) []tools.Definition {
	if r == nil {
		return nil
	}
	return r.Definitions()
}
