package service

import (
	"context"
	"math"
)

// 技能标签，封闭集合
const (
	SkillVocab   = "vocab"
	SkillGrammar = "grammar"
)

// 难度区间与起始难度
const (
	MinDifficulty  = 1
	MaxDifficulty  = 9
	SeedDifficulty = 5
)

// cefrByDifficulty 难度到CEFR等级的固定映射
var cefrByDifficulty = map[int]string{
	1: "A1",
	2: "A1",
	3: "A2",
	4: "A2",
	5: "B1",
	6: "B1",
	7: "B2",
	8: "B2",
	9: "C1",
}

func ClampDifficulty(d int) int {
	if d < MinDifficulty {
		return MinDifficulty
	}
	if d > MaxDifficulty {
		return MaxDifficulty
	}
	return d
}

// DifficultyToCEFR 四舍五入并收敛到[1,9]后映射为CEFR等级，对任意输入都有定义
func DifficultyToCEFR(difficulty float64) string {
	return cefrByDifficulty[ClampDifficulty(int(math.Round(difficulty)))]
}

// NextDifficulty 答对升一级，答错降一级，收敛到[1,9]
func NextDifficulty(previous int, wasCorrect bool) int {
	if wasCorrect {
		return ClampDifficulty(previous + 1)
	}
	return ClampDifficulty(previous - 1)
}

// Question 一道生成的单选题
type Question struct {
	Text          string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correctAnswer"`
	SkillTag      string   `json:"skillTag"`
}

// QuestionSource 按难度产出一道题的能力抽象，
// 由AI出题服务和静态题库两种实现，便于测试替换
type QuestionSource interface {
	Generate(ctx context.Context, difficulty int) (*Question, error)
}
