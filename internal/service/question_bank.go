package service

import (
	"context"
	"lingo_edu_backend/internal/util"
	"math/rand"
	"sync"
	"time"
)

// BankEntry 静态题库中的一条题目模板
type BankEntry struct {
	Level         string
	SkillTag      string
	Question      string
	Options       []string
	CorrectAnswer string
}

// QuestionBank AI不可用时的静态备用题库。
// 池子只读共享；随机源可注入，测试中可用固定种子
type QuestionBank struct {
	pool []BankEntry

	mu  sync.Mutex
	rng *rand.Rand
}

// NewQuestionBank 空题库属于致命配置错误，直接拒绝构造
func NewQuestionBank(pool []BankEntry, rng *rand.Rand) (*QuestionBank, error) {
	if len(pool) == 0 {
		return nil, util.ErrEmptyQuestionBank
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &QuestionBank{pool: pool, rng: rng}, nil
}

func DefaultQuestionBank() *QuestionBank {
	bank, err := NewQuestionBank(defaultPool, nil)
	if err != nil {
		// defaultPool 非空，不可能到达
		panic(err)
	}
	return bank
}

// Generate 按等级过滤题池；无匹配时退回全池，均匀抽取一条，
// 选项以无偏洗牌后返回。池子非空时永不失败
func (b *QuestionBank) Generate(ctx context.Context, difficulty int) (*Question, error) {
	level := DifficultyToCEFR(float64(difficulty))

	var candidates []BankEntry
	for _, e := range b.pool {
		if e.Level == level {
			candidates = append(candidates, e)
		}
	}
	if len(candidates) == 0 {
		candidates = b.pool
	}

	b.mu.Lock()
	pick := candidates[b.rng.Intn(len(candidates))]
	options := b.shuffleLocked(pick.Options)
	b.mu.Unlock()

	return &Question{
		Text:          pick.Question,
		Options:       options,
		CorrectAnswer: pick.CorrectAnswer,
		SkillTag:      pick.SkillTag,
	}, nil
}

// shuffleLocked Fisher-Yates洗牌，不修改原切片，需持有b.mu
func (b *QuestionBank) shuffleLocked(options []string) []string {
	shuffled := make([]string, len(options))
	copy(shuffled, options)
	for i := len(shuffled) - 1; i > 0; i-- {
		j := b.rng.Intn(i + 1)
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}
	return shuffled
}

// defaultPool 内置英语定级题池，覆盖A1-C1两类技能
var defaultPool = []BankEntry{
	{
		Level:         "A1",
		SkillTag:      SkillVocab,
		Question:      "What does 'apple' mean?",
		Options:       []string{"一种水果", "一种动物", "一张桌子", "一种颜色"},
		CorrectAnswer: "一种水果",
	},
	{
		Level:         "A1",
		SkillTag:      SkillGrammar,
		Question:      "Choose the correct form: 'She ___ a student.'",
		Options:       []string{"am", "is", "are", "be"},
		CorrectAnswer: "is",
	},
	{
		Level:         "A2",
		SkillTag:      SkillVocab,
		Question:      "What does 'library' mean?",
		Options:       []string{"图书馆", "卧室", "医院", "电影院"},
		CorrectAnswer: "图书馆",
	},
	{
		Level:         "A2",
		SkillTag:      SkillGrammar,
		Question:      "Choose the past tense: 'They ___ soccer yesterday.'",
		Options:       []string{"plays", "played", "play", "playing"},
		CorrectAnswer: "played",
	},
	{
		Level:         "A2",
		SkillTag:      SkillGrammar,
		Question:      "Fill in: 'I have lived here ___ 2010.'",
		Options:       []string{"since", "for", "from", "in"},
		CorrectAnswer: "since",
	},
	{
		Level:         "B1",
		SkillTag:      SkillVocab,
		Question:      "What does 'efficient' mean?",
		Options:       []string{"高效的", "显眼的", "乏味的", "困难的"},
		CorrectAnswer: "高效的",
	},
	{
		Level:         "B1",
		SkillTag:      SkillVocab,
		Question:      "What does 'adaptable' mean?",
		Options:       []string{"适应力强的", "僵化的", "迟缓的", "易碎的"},
		CorrectAnswer: "适应力强的",
	},
	{
		Level:         "B1",
		SkillTag:      SkillGrammar,
		Question:      "Choose the correct conditional: 'If I ___ time, I will call you.'",
		Options:       []string{"have", "had", "has", "having"},
		CorrectAnswer: "have",
	},
	{
		Level:         "B2",
		SkillTag:      SkillVocab,
		Question:      "What does 'reliable' mean?",
		Options:       []string{"可靠的", "易碎的", "凌乱的", "出名的"},
		CorrectAnswer: "可靠的",
	},
	{
		Level:         "B2",
		SkillTag:      SkillGrammar,
		Question:      "Choose the correct passive: 'The report ___ by the manager.'",
		Options:       []string{"was written", "wrote", "is write", "has write"},
		CorrectAnswer: "was written",
	},
	{
		Level:         "C1",
		SkillTag:      SkillVocab,
		Question:      "What does 'meticulous' mean?",
		Options:       []string{"一丝不苟的", "迅速的", "肤浅的", "粗鲁的"},
		CorrectAnswer: "一丝不苟的",
	},
	{
		Level:         "C1",
		SkillTag:      SkillGrammar,
		Question:      "Choose the correct inversion: '___ had I arrived than it started to rain.'",
		Options:       []string{"No sooner", "Hardly", "Rarely", "Seldom"},
		CorrectAnswer: "No sooner",
	},
}
