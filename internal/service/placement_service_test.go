package service

import (
	"context"
	"errors"
	"lingo_edu_backend/internal/model"
	"lingo_edu_backend/internal/util"
	"lingo_edu_backend/pkg/logger"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestMain(m *testing.M) {
	logger.Log = zap.NewNop()
	os.Exit(m.Run())
}

// memStore 内存版PlacementStore，语义对齐仓储层（含条件更新）
type memStore struct {
	mu          sync.Mutex
	assessments map[string]*model.Assessment
	items       map[string][]*model.AssessmentItem
	nextItemID  uint
}

func newMemStore() *memStore {
	return &memStore{
		assessments: make(map[string]*model.Assessment),
		items:       make(map[string][]*model.AssessmentItem),
	}
}

func (s *memStore) CreateAssessment(a *model.Assessment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	cp := *a
	s.assessments[a.ID] = &cp
	return nil
}

func (s *memStore) FindAssessmentByID(id string) (*model.Assessment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assessments[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *memStore) ListAssessmentsByUser(userID uint) ([]model.Assessment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Assessment
	for _, a := range s.assessments {
		if a.UserID == userID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (s *memStore) ListFinishedAssessments(page, limit int) ([]model.Assessment, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Assessment
	for _, a := range s.assessments {
		if a.FinalScore != nil {
			out = append(out, *a)
		}
	}
	return out, int64(len(out)), nil
}

func (s *memStore) CountAnswered(assessmentID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, item := range s.items[assessmentID] {
		if item.UserAnswer != nil {
			count++
		}
	}
	return count, nil
}

func (s *memStore) FindLastItem(assessmentID string) (*model.AssessmentItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.items[assessmentID]
	if len(items) == 0 {
		return nil, nil
	}
	cp := *items[len(items)-1]
	return &cp, nil
}

func (s *memStore) ListItems(assessmentID string) ([]model.AssessmentItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.AssessmentItem
	for _, item := range s.items[assessmentID] {
		out = append(out, *item)
	}
	return out, nil
}

func (s *memStore) CreateItem(item *model.AssessmentItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextItemID++
	item.ID = s.nextItemID
	cp := *item
	s.items[item.AssessmentID] = append(s.items[item.AssessmentID], &cp)
	return nil
}

func (s *memStore) RecordAnswer(itemID uint, answer string, correct bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, items := range s.items {
		for _, item := range items {
			if item.ID == itemID {
				if item.UserAnswer != nil {
					return false, nil
				}
				a, c := answer, correct
				item.UserAnswer = &a
				item.IsCorrect = &c
				return true, nil
			}
		}
	}
	return false, nil
}

func (s *memStore) FinalizeAssessment(id string, score int, level string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assessments[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	a.FinalScore = &score
	a.FinalLevel = &level
	return nil
}

func (s *memStore) itemCount(assessmentID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items[assessmentID])
}

// stubSource 固定返回同一道题，正确答案恒为"right"
type stubSource struct{}

func (stubSource) Generate(ctx context.Context, difficulty int) (*Question, error) {
	return &Question{
		Text:          "stub question",
		Options:       []string{"right", "wrong1", "wrong2", "wrong3"},
		CorrectAnswer: "right",
		SkillTag:      SkillVocab,
	}, nil
}

// failingSource 模拟AI不可用
type failingSource struct{}

func (failingSource) Generate(ctx context.Context, difficulty int) (*Question, error) {
	return nil, errors.New("upstream unavailable")
}

func newTestService(store PlacementStore, ai QuestionSource) *PlacementService {
	return NewPlacementService(store, ai, DefaultQuestionBank(), nil)
}

func startAssessment(t *testing.T, svc *PlacementService, userID uint) string {
	t.Helper()
	a, err := svc.Start(userID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if a.TotalQuestions != TotalQuestions {
		t.Fatalf("TotalQuestions = %d, want %d", a.TotalQuestions, TotalQuestions)
	}
	return a.ID
}

func TestAdvance_FirstQuestionAtSeedDifficulty(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, stubSource{})
	id := startAssessment(t, svc, 1)

	res, err := svc.Advance(context.Background(), id, 1, "")
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if res.Done {
		t.Fatal("unexpected done on first advance")
	}
	if res.Progress != 1 || res.Total != TotalQuestions {
		t.Errorf("progress %d/%d, want 1/%d", res.Progress, res.Total, TotalQuestions)
	}

	last, _ := store.FindLastItem(id)
	if last.Difficulty != SeedDifficulty {
		t.Errorf("first item difficulty = %d, want %d", last.Difficulty, SeedDifficulty)
	}
}

func TestAdvance_IdempotentPendingRead(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, stubSource{})
	id := startAssessment(t, svc, 1)

	first, err := svc.Advance(context.Background(), id, 1, "")
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	second, err := svc.Advance(context.Background(), id, 1, "")
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}

	if first.ItemID != second.ItemID || first.Question != second.Question {
		t.Errorf("pending read not idempotent: %+v vs %+v", first, second)
	}
	if store.itemCount(id) != 1 {
		t.Errorf("item count = %d, want 1", store.itemCount(id))
	}
}

func TestAdvance_AnswerWithNoPendingItem(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, stubSource{})
	id := startAssessment(t, svc, 1)

	_, err := svc.Advance(context.Background(), id, 1, "right")
	if !errors.Is(err, util.ErrNoPendingQuestion) {
		t.Errorf("expected ErrNoPendingQuestion, got %v", err)
	}
	if store.itemCount(id) != 0 {
		t.Errorf("state error must not mutate, item count = %d", store.itemCount(id))
	}
}

func TestAdvance_OwnershipHiddenAsNotFound(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, stubSource{})
	id := startAssessment(t, svc, 1)

	if _, err := svc.Advance(context.Background(), id, 2, ""); !errors.Is(err, util.ErrAssessmentNotFound) {
		t.Errorf("foreign assessment: expected ErrAssessmentNotFound, got %v", err)
	}
	if _, err := svc.Advance(context.Background(), "no-such-id", 1, ""); !errors.Is(err, util.ErrAssessmentNotFound) {
		t.Errorf("unknown assessment: expected ErrAssessmentNotFound, got %v", err)
	}
}

func TestAdvance_DifficultyAdaptationScenario(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, stubSource{})
	id := startAssessment(t, svc, 1)
	ctx := context.Background()

	if _, err := svc.Advance(ctx, id, 1, ""); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	// 连对5次：难度序列 5,6,7,8,9,9
	for i := 0; i < 5; i++ {
		if _, err := svc.Advance(ctx, id, 1, "right"); err != nil {
			t.Fatalf("Advance(correct #%d): %v", i+1, err)
		}
	}

	items, _ := store.ListItems(id)
	wantDifficulties := []int{5, 6, 7, 8, 9, 9}
	if len(items) != len(wantDifficulties) {
		t.Fatalf("item count = %d, want %d", len(items), len(wantDifficulties))
	}
	for i, want := range wantDifficulties {
		if items[i].Difficulty != want {
			t.Errorf("item #%d difficulty = %d, want %d", i+1, items[i].Difficulty, want)
		}
	}

	// 答错一次：降到8
	if _, err := svc.Advance(ctx, id, 1, "wrong1"); err != nil {
		t.Fatalf("Advance(incorrect): %v", err)
	}
	items, _ = store.ListItems(id)
	if items[6].Difficulty != 8 {
		t.Errorf("item #7 difficulty = %d, want 8", items[6].Difficulty)
	}
}

func TestAdvance_CompletionAndScoring(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, stubSource{})
	id := startAssessment(t, svc, 1)
	ctx := context.Background()

	if _, err := svc.Advance(ctx, id, 1, ""); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	// 前20题答对，后10题答错
	var final *AdvanceResult
	for i := 0; i < TotalQuestions; i++ {
		answer := "right"
		if i >= 20 {
			answer = "wrong1"
		}
		res, err := svc.Advance(ctx, id, 1, answer)
		if err != nil {
			t.Fatalf("Advance(#%d): %v", i+1, err)
		}
		final = res
	}

	if final == nil || !final.Done {
		t.Fatalf("expected done result, got %+v", final)
	}
	if final.FinalScore == nil || *final.FinalScore != 67 {
		t.Fatalf("finalScore = %v, want 67", final.FinalScore)
	}

	items, _ := store.ListItems(id)
	sum := 0
	for _, item := range items {
		sum += item.Difficulty
	}
	wantLevel := DifficultyToCEFR(float64(sum) / float64(len(items)))
	if final.FinalLevel == nil || *final.FinalLevel != wantLevel {
		t.Errorf("finalLevel = %v, want %q", final.FinalLevel, wantLevel)
	}

	// 完成后再推进：重复返回成绩，不再出题
	countBefore := store.itemCount(id)
	again, err := svc.Advance(ctx, id, 1, "")
	if err != nil {
		t.Fatalf("Advance after done: %v", err)
	}
	if !again.Done || *again.FinalScore != 67 {
		t.Errorf("repeat result = %+v", again)
	}
	if store.itemCount(id) != countBefore {
		t.Errorf("item created after completion: %d -> %d", countBefore, store.itemCount(id))
	}

	// 完成后提交答案：状态错误
	if _, err := svc.Advance(ctx, id, 1, "right"); !errors.Is(err, util.ErrNoPendingQuestion) {
		t.Errorf("answer after done: expected ErrNoPendingQuestion, got %v", err)
	}
}

func TestAdvance_FallsBackWhenAIFails(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, failingSource{})
	id := startAssessment(t, svc, 1)

	res, err := svc.Advance(context.Background(), id, 1, "")
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if res.Question == "" || len(res.Options) < 2 {
		t.Errorf("fallback question malformed: %+v", res)
	}

	last, _ := store.FindLastItem(id)
	found := false
	for _, o := range res.Options {
		if o == last.CorrectAnswer {
			found = true
			break
		}
	}
	if !found {
		t.Errorf("fallback correct answer %q not among options %v", last.CorrectAnswer, res.Options)
	}
}

// blockingStore 让两个并发Advance都先读到同一待答题，再放行写入
type blockingStore struct {
	*memStore
	barrier sync.WaitGroup
}

func (s *blockingStore) FindLastItem(assessmentID string) (*model.AssessmentItem, error) {
	item, err := s.memStore.FindLastItem(assessmentID)
	s.barrier.Done()
	s.barrier.Wait()
	return item, err
}

func TestAdvance_ConcurrentAnswersOnlyOneWins(t *testing.T) {
	inner := newMemStore()
	svc := newTestService(inner, stubSource{})
	id := startAssessment(t, svc, 1)

	if _, err := svc.Advance(context.Background(), id, 1, ""); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	blocking := &blockingStore{memStore: inner}
	blocking.barrier.Add(2)
	racing := newTestService(blocking, stubSource{})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = racing.Advance(context.Background(), id, 1, "right")
		}(i)
	}
	wg.Wait()

	winners, losers := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, util.ErrNoPendingQuestion):
			losers++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if winners != 1 || losers != 1 {
		t.Errorf("winners = %d, losers = %d, want exactly one of each", winners, losers)
	}

	// 仅胜者创建了下一题
	if got := inner.itemCount(id); got != 2 {
		t.Errorf("item count = %d, want 2", got)
	}
}

func TestScoreAssessment(t *testing.T) {
	mk := func(difficulty int, correct bool) model.AssessmentItem {
		c := correct
		a := "x"
		return model.AssessmentItem{Difficulty: difficulty, IsCorrect: &c, UserAnswer: &a}
	}

	var items []model.AssessmentItem
	for i := 0; i < 20; i++ {
		items = append(items, mk(5, true))
	}
	for i := 0; i < 10; i++ {
		items = append(items, mk(5, false))
	}

	score, level := scoreAssessment(items)
	if score != 67 {
		t.Errorf("score = %d, want 67", score)
	}
	if level != "B1" {
		t.Errorf("level = %q, want B1", level)
	}
}

func TestScoreAssessment_Empty(t *testing.T) {
	score, level := scoreAssessment(nil)
	if score != 0 {
		t.Errorf("score = %d, want 0", score)
	}
	if level != "A1" {
		t.Errorf("level = %q, want A1", level)
	}
}
