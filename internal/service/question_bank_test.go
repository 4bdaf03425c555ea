package service

import (
	"context"
	"errors"
	"lingo_edu_backend/internal/util"
	"math/rand"
	"testing"
)

func newTestBank(t *testing.T, seed int64) *QuestionBank {
	t.Helper()
	bank, err := NewQuestionBank(defaultPool, rand.New(rand.NewSource(seed)))
	if err != nil {
		t.Fatalf("NewQuestionBank: %v", err)
	}
	return bank
}

func TestNewQuestionBank_EmptyPool(t *testing.T) {
	_, err := NewQuestionBank(nil, nil)
	if !errors.Is(err, util.ErrEmptyQuestionBank) {
		t.Errorf("expected ErrEmptyQuestionBank, got %v", err)
	}
}

func TestQuestionBank_AlwaysValidSchema(t *testing.T) {
	bank := newTestBank(t, 7)
	ctx := context.Background()

	for difficulty := MinDifficulty; difficulty <= MaxDifficulty; difficulty++ {
		for i := 0; i < 50; i++ {
			q, err := bank.Generate(ctx, difficulty)
			if err != nil {
				t.Fatalf("Generate(%d): %v", difficulty, err)
			}
			if q.Text == "" {
				t.Fatalf("Generate(%d): empty question text", difficulty)
			}
			if len(q.Options) < 2 {
				t.Fatalf("Generate(%d): %d options", difficulty, len(q.Options))
			}
			if q.SkillTag != SkillVocab && q.SkillTag != SkillGrammar {
				t.Fatalf("Generate(%d): bad skill tag %q", difficulty, q.SkillTag)
			}
			found := false
			for _, o := range q.Options {
				if o == q.CorrectAnswer {
					found = true
					break
				}
			}
			if !found {
				t.Fatalf("Generate(%d): correct answer %q not among options %v", difficulty, q.CorrectAnswer, q.Options)
			}
		}
	}
}

func TestQuestionBank_FiltersByLevel(t *testing.T) {
	bank := newTestBank(t, 3)

	// 难度9只应产出C1题
	wanted := map[string]bool{}
	for _, e := range defaultPool {
		if e.Level == "C1" {
			wanted[e.Question] = true
		}
	}
	for i := 0; i < 100; i++ {
		q, err := bank.Generate(context.Background(), 9)
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		if !wanted[q.Text] {
			t.Fatalf("difficulty 9 produced non-C1 question %q", q.Text)
		}
	}
}

func TestQuestionBank_FallsBackToWholePool(t *testing.T) {
	pool := []BankEntry{
		{
			Level:         "B2",
			SkillTag:      SkillGrammar,
			Question:      "Pick one.",
			Options:       []string{"x", "y"},
			CorrectAnswer: "x",
		},
	}
	bank, err := NewQuestionBank(pool, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("NewQuestionBank: %v", err)
	}

	// 请求A1，池里没有A1，应退回全池而不是失败
	q, err := bank.Generate(context.Background(), 1)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if q.Text != "Pick one." {
		t.Errorf("got %q, want the only pooled question", q.Text)
	}
}

func TestQuestionBank_ShuffleVariesOrder(t *testing.T) {
	bank := newTestBank(t, 11)

	orders := map[string]bool{}
	for i := 0; i < 200; i++ {
		q, err := bank.Generate(context.Background(), 9)
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		if q.SkillTag != SkillGrammar {
			continue
		}
		key := ""
		for _, o := range q.Options {
			key += o + "|"
		}
		orders[key] = true
	}
	if len(orders) < 2 {
		t.Errorf("option order never varied across repeated generations")
	}
}

// 无偏洗牌：固定单题池，正确答案应大致均匀地落在每个位置上
func TestQuestionBank_ShuffleUnbiased(t *testing.T) {
	pool := []BankEntry{
		{
			Level:         "B1",
			SkillTag:      SkillVocab,
			Question:      "q",
			Options:       []string{"a", "b", "c", "d"},
			CorrectAnswer: "a",
		},
	}
	bank, err := NewQuestionBank(pool, rand.New(rand.NewSource(42)))
	if err != nil {
		t.Fatalf("NewQuestionBank: %v", err)
	}

	const runs = 8000
	positions := make([]int, 4)
	for i := 0; i < runs; i++ {
		q, err := bank.Generate(context.Background(), 5)
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		for pos, o := range q.Options {
			if o == q.CorrectAnswer {
				positions[pos]++
			}
		}
	}

	expected := runs / 4
	for pos, count := range positions {
		// 允许±15%偏差，足以揪出比较器式洗牌的系统性偏置
		if count < expected*85/100 || count > expected*115/100 {
			t.Errorf("position %d hit %d times, expected ~%d", pos, count, expected)
		}
	}
}
