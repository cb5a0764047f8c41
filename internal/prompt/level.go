package prompt

import (
	"fmt"
)

// Level はシステムプロンプトのセキュリティレベル。
type Level int

const (
	// Standard は標準のプロンプト。
	Standard Level = iota + 1
	// Enhanced は防御指示を強化したプロンプト。
	Enhanced
)

// 外部に公開するレベルのラベル。内容を推測できない名前にしている。
const (
	labelStandard = "alpha"
	labelEnhanced = "bravo"
)

// ParseLevel はURLパスのラベルをLevelに変換する。
func ParseLevel(label string) (Level, error) {
	switch label {
	case labelStandard:
		return Standard, nil
	case labelEnhanced:
		return Enhanced, nil
	default:
		return 0, fmt.Errorf("不明なレベルです: %q (%s または %s を指定してください)", label, labelStandard, labelEnhanced)
	}
}

// Labels は受け付けるレベルのラベル一覧を返す。
func Labels() []string {
	return []string{labelStandard, labelEnhanced}
}

// String はレベルの外部ラベルを返す。
func (l Level) String() string {
	switch l {
	case Standard:
		return labelStandard
	case Enhanced:
		return labelEnhanced
	default:
		return fmt.Sprintf("Level(%d)", int(l))
	}
}
