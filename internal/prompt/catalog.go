package prompt

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultDomain はdomainクエリ未指定時に使用するドメイン。
const DefaultDomain = "general"

// ErrPromptNotFound はドメインとレベルの組み合わせに対応するプロンプトがないことを表す。
var ErrPromptNotFound = errors.New("プロンプトが見つかりません")

//go:embed prompts.yaml
var defaultCatalog []byte

// entry はカタログ内の1ドメイン分の定義。
type entry struct {
	Description string `yaml:"description"`
	Alpha       string `yaml:"alpha"`
	Bravo       string `yaml:"bravo"`
}

// document はカタログファイルのルート。
type document struct {
	Domains map[string]entry `yaml:"domains"`
}

// Catalog はドメインごとのシステムプロンプト。読み込み後は変更しない。
type Catalog struct {
	prompts      map[string]map[Level]string
	descriptions map[string]string
}

// Default は埋め込みの既定カタログを返す。
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load はYAMLファイルからカタログを読み込む。pathが空の場合は既定カタログを返す。
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path) //nolint:gosec // 設定で指定されたパス
	if err != nil {
		return nil, fmt.Errorf("プロンプトファイルの読み込みに失敗: %w", err)
	}
	return Parse(data)
}

// Parse はYAMLをカタログに変換する。未知のキーはエラーにする。
// 既定ドメインが存在し、全ドメインがalphaとbravoの両方を持つことを要求する。
func Parse(data []byte) (*Catalog, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("プロンプトカタログのパースに失敗: %w", err)
	}
	if len(doc.Domains) == 0 {
		return nil, errors.New("プロンプトカタログにドメインが定義されていません")
	}

	c := &Catalog{
		prompts:      make(map[string]map[Level]string, len(doc.Domains)),
		descriptions: make(map[string]string, len(doc.Domains)),
	}
	for name, e := range doc.Domains {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, errors.New("プロンプトカタログに空のドメイン名があります")
		}
		alpha, bravo := strings.TrimSpace(e.Alpha), strings.TrimSpace(e.Bravo)
		if alpha == "" || bravo == "" {
			return nil, fmt.Errorf("ドメイン %q には %s と %s の両方のプロンプトが必要です", name, labelStandard, labelEnhanced)
		}
		c.prompts[name] = map[Level]string{Standard: alpha, Enhanced: bravo}
		c.descriptions[name] = e.Description
	}
	if _, ok := c.prompts[DefaultDomain]; !ok {
		return nil, fmt.Errorf("既定ドメイン %q がプロンプトカタログに定義されていません", DefaultDomain)
	}
	return c, nil
}

// Resolve はドメインとレベルに対応するシステムプロンプトを返す。
// 対応するプロンプトがない場合はErrPromptNotFoundを返す。
func (c *Catalog) Resolve(domain string, level Level) (string, error) {
	levels, ok := c.prompts[domain]
	if !ok {
		return "", fmt.Errorf("%w: domain=%s level=%s", ErrPromptNotFound, domain, level)
	}
	text, ok := levels[level]
	if !ok {
		return "", fmt.Errorf("%w: domain=%s level=%s", ErrPromptNotFound, domain, level)
	}
	return text, nil
}

// HasDomain はドメインがカタログに定義されているかどうかを返す。
func (c *Catalog) HasDomain(domain string) bool {
	_, ok := c.prompts[domain]
	return ok
}

// Domains は定義済みのドメイン名を昇順で返す。
func (c *Catalog) Domains() []string {
	names := make([]string, 0, len(c.prompts))
	for name := range c.prompts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Description はドメインの説明を返す。
func (c *Catalog) Description(domain string) string {
	return c.descriptions[domain]
}
