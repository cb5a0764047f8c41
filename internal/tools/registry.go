package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/xeipuuv/gojsonschema"
)

// Outcome はツール実行結果の分類。
type Outcome string

const (
	// OutcomeOK は正常に実行できたことを表す。
	OutcomeOK Outcome = "ok"
	// OutcomeUnknownTool は登録されていないツールが要求されたことを表す。
	OutcomeUnknownTool Outcome = "unknown_tool"
	// OutcomeInvalidArguments は引数がスキーマに一致しないことを表す。
	OutcomeInvalidArguments Outcome = "invalid_arguments"
	// OutcomeFailed はハンドラがエラーを返したことを表す。
	OutcomeFailed Outcome = "failed"
)

// ErrForbidden は呼び出し元のロールでは実行できないことを表す。
var ErrForbidden = errors.New("この操作を実行する権限がありません")

// Definition はモデルへ提示するツールの定義。
type Definition struct {
	// Name はツール名。
	Name string `json:"name"`
	// Description はモデル向けの説明。
	Description string `json:"description"`
	// Parameters は引数のJSON Schema。
	Parameters map[string]any `json:"parameters"`
}

// Handler はツールの処理本体。戻り値はJSONにシリアライズしてモデルへ渡す。
type Handler func(ctx context.Context, args map[string]any) (any, error)

type tool struct {
	def     Definition
	handler Handler
	schema  *gojsonschema.Schema
}

// Result はツール実行の結果。
type Result struct {
	// Content はツールロールのメッセージ本文となるJSON文字列。
	Content string
	// Outcome は実行結果の分類。
	Outcome Outcome
}

// Registry はリクエスト単位のツール一覧。構築後は読み取り専用として扱う。
type Registry struct {
	tools map[string]*tool
	order []string
}

// NewRegistry は空のRegistryを生成する。
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*tool)}
}

// Register はツールを登録する。引数スキーマをコンパイルできない場合や名前が重複する場合はエラーを返す。
func (r *Registry) Register(def Definition, handler Handler) error {
	if def.Name == "" {
		return errors.New("ツール名が空です")
	}
	if handler == nil {
		return fmt.Errorf("ツール %s のハンドラがnilです", def.Name)
	}
	if _, exists := r.tools[def.Name]; exists {
		return fmt.Errorf("ツール %s は登録済みです", def.Name)
	}
	if def.Parameters == nil {
		def.Parameters = map[string]any{"type": "object", "properties": map[string]any{}}
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(def.Parameters))
	if err != nil {
		return fmt.Errorf("ツール %s のスキーマが不正です: %w", def.Name, err)
	}

	r.tools[def.Name] = &tool{def: def, handler: handler, schema: schema}
	r.order = append(r.order, def.Name)
	return nil
}

// Definitions は登録順のツール定義を返す。
func (r *Registry) Definitions() []Definition {
	defs := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].def)
	}
	return defs
}

// Len は登録済みツールの数を返す。
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.order)
}

// Execute はツールを実行する。
// 引数はJSONオブジェクトか、JSONオブジェクトをエンコードした文字列のどちらでもよい。
// どのような失敗もResultとして返し、エラーにはしない。
func (r *Registry) Execute(ctx context.Context, name string, rawArgs json.RawMessage) Result {
	var t *tool
	if r != nil {
		t = r.tools[name]
	}
	if t == nil {
		return errorResult(OutcomeUnknownTool, map[string]any{
			"error":   string(OutcomeUnknownTool),
			"tool":    name,
			"message": fmt.Sprintf("ツール %q は利用できません", name),
		})
	}

	args, err := decodeArguments(rawArgs)
	if err != nil {
		return errorResult(OutcomeInvalidArguments, map[string]any{
			"error":   string(OutcomeInvalidArguments),
			"tool":    name,
			"message": err.Error(),
		})
	}

	validation, err := t.schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return errorResult(OutcomeInvalidArguments, map[string]any{
			"error":   string(OutcomeInvalidArguments),
			"tool":    name,
			"message": err.Error(),
		})
	}
	if !validation.Valid() {
		details := make([]string, 0, len(validation.Errors()))
		for _, e := range validation.Errors() {
			details = append(details, e.String())
		}
		return errorResult(OutcomeInvalidArguments, map[string]any{
			"error":   string(OutcomeInvalidArguments),
			"tool":    name,
			"details": details,
		})
	}

	out, err := t.handler(ctx, args)
	if err != nil {
		code := string(OutcomeFailed)
		if errors.Is(err, ErrForbidden) {
			code = "forbidden"
		}
		return errorResult(OutcomeFailed, map[string]any{
			"error":   code,
			"tool":    name,
			"message": err.Error(),
		})
	}

	content, err := json.Marshal(out)
	if err != nil {
		return errorResult(OutcomeFailed, map[string]any{
			"error":   string(OutcomeFailed),
			"tool":    name,
			"message": fmt.Sprintf("結果のシリアライズに失敗: %v", err),
		})
	}
	return Result{Content: string(content), Outcome: OutcomeOK}
}

// decodeArguments はモデルが渡した引数をmapに変換する。
// 空・nullは引数なしとして扱う。
func decodeArguments(raw json.RawMessage) (map[string]any, error) {
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return map[string]any{}, nil
	}
	if !gjson.Valid(text) {
		return nil, errors.New("引数のJSONが不正です")
	}

	parsed := gjson.Parse(text)
	if parsed.Type == gjson.String {
		inner := strings.TrimSpace(parsed.Str)
		if inner == "" {
			return map[string]any{}, nil
		}
		if !gjson.Valid(inner) {
			return nil, errors.New("引数の文字列がJSONとして不正です")
		}
		parsed = gjson.Parse(inner)
	}

	if parsed.Type == gjson.Null {
		return map[string]any{}, nil
	}
	if !parsed.IsObject() {
		return nil, errors.New("引数はJSONオブジェクトで指定してください")
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(parsed.Raw), &args); err != nil {
		return nil, fmt.Errorf("引数のJSONが不正です: %w", err)
	}
	return args, nil
}

func errorResult(outcome Outcome, body map[string]any) Result {
	content, err := json.Marshal(body)
	if err != nil {
		content = []byte(`{"error":"failed"}`)
	}
	return Result{Content: string(content), Outcome: outcome}
}
