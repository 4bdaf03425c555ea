package service

import (
	"context"
	"encoding/json"
	"errors"
	"lingo_edu_backend/internal/model"
	"lingo_edu_backend/internal/util"
	"lingo_edu_backend/pkg/logger"
	"lingo_edu_backend/pkg/monitoring"
	"math"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// TotalQuestions 每次定级测试的固定题量
const TotalQuestions = 30

const (
	advanceLockTTL = 10 * time.Second
	resultCacheTTL = time.Hour
)

// PlacementStore 编排器依赖的持久化能力
type PlacementStore interface {
	CreateAssessment(a *model.Assessment) error
	FindAssessmentByID(id string) (*model.Assessment, error)
	ListAssessmentsByUser(userID uint) ([]model.Assessment, error)
	ListFinishedAssessments(page, limit int) ([]model.Assessment, int64, error)
	CountAnswered(assessmentID string) (int, error)
	FindLastItem(assessmentID string) (*model.AssessmentItem, error)
	ListItems(assessmentID string) ([]model.AssessmentItem, error)
	CreateItem(item *model.AssessmentItem) error
	RecordAnswer(itemID uint, answer string, correct bool) (bool, error)
	FinalizeAssessment(id string, score int, level string) error
}

// 会话状态，由已答题数和最后一题推导
type sessionState int

const (
	stateNoItems sessionState = iota
	statePending
	stateAnsweredIncomplete
	stateComplete
)

func resolveState(answered, total int, last *model.AssessmentItem) sessionState {
	if answered >= total {
		return stateComplete
	}
	if last == nil {
		return stateNoItems
	}
	if !last.Answered() {
		return statePending
	}
	return stateAnsweredIncomplete
}

// AdvanceResult 推进一步的返回：待答题目或最终成绩
type AdvanceResult struct {
	Done       bool     `json:"done,omitempty"`
	ItemID     uint     `json:"itemId,omitempty"`
	Question   string   `json:"question,omitempty"`
	Options    []string `json:"options,omitempty"`
	Progress   int      `json:"progress,omitempty"`
	Total      int      `json:"total,omitempty"`
	FinalScore *int     `json:"finalScore,omitempty"`
	FinalLevel *string  `json:"finalLevel,omitempty"`
}

// PlacementService 自适应定级测试的会话编排器
type PlacementService struct {
	Store PlacementStore
	AI    QuestionSource
	Bank  QuestionSource
	Redis *redis.Client // 可为空，空时不加分布式锁
}

func NewPlacementService(store PlacementStore, ai QuestionSource, bank QuestionSource, rdb *redis.Client) *PlacementService {
	return &PlacementService{
		Store: store,
		AI:    ai,
		Bank:  bank,
		Redis: rdb,
	}
}

// Start 创建一次新的定级测试
func (s *PlacementService) Start(userID uint) (*model.Assessment, error) {
	a := &model.Assessment{
		UserID:         userID,
		TotalQuestions: TotalQuestions,
	}
	if err := s.Store.CreateAssessment(a); err != nil {
		return nil, err
	}
	return a, nil
}

// Advance 推进状态机一步：无答案时幂等返回待答题，
// 有答案时判分，答满后结算，否则按难度生成下一题
func (s *PlacementService) Advance(ctx context.Context, assessmentID string, userID uint, answer string) (*AdvanceResult, error) {
	// 已结算的测试走缓存快路径，键含用户ID，不同用户互不可见
	if answer == "" && s.Redis != nil {
		if b, err := s.Redis.Get(ctx, resultCacheKey(userID, assessmentID)).Bytes(); err == nil {
			var cached AdvanceResult
			if json.Unmarshal(b, &cached) == nil && cached.Done {
				return &cached, nil
			}
		}
	}

	if s.Redis != nil {
		lockKey := "placement:advance:" + assessmentID
		ok, err := s.Redis.SetNX(ctx, lockKey, 1, advanceLockTTL).Result()
		if err == nil && !ok {
			return nil, util.ErrAssessmentBusy
		}
		if err == nil {
			defer s.Redis.Del(ctx, lockKey)
		}
	}

	a, err := s.Store.FindAssessmentByID(assessmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrAssessmentNotFound
		}
		return nil, err
	}
	// 归属校验失败同样按不存在处理，不泄露他人测试
	if a.UserID != userID {
		return nil, util.ErrAssessmentNotFound
	}

	answered, err := s.Store.CountAnswered(assessmentID)
	if err != nil {
		return nil, err
	}

	last, err := s.Store.FindLastItem(assessmentID)
	if err != nil {
		return nil, err
	}

	state := resolveState(answered, a.TotalQuestions, last)

	// 未带答案且有待答题：幂等返回，不重复出题
	if answer == "" && state == statePending {
		return pendingResult(last, answered, a.TotalQuestions)
	}

	if answer != "" {
		if state != statePending {
			return nil, util.ErrNoPendingQuestion
		}
		correct := answer == last.CorrectAnswer
		recorded, err := s.Store.RecordAnswer(last.ID, answer, correct)
		if err != nil {
			return nil, err
		}
		// 条件更新未命中：该题已被并发请求抢答
		if !recorded {
			return nil, util.ErrNoPendingQuestion
		}
		last.UserAnswer = &answer
		last.IsCorrect = &correct
		answered++
	}

	if answered >= a.TotalQuestions {
		return s.finalize(ctx, a)
	}

	difficulty := SeedDifficulty
	if last != nil {
		difficulty = last.Difficulty
		if last.IsCorrect != nil {
			difficulty = NextDifficulty(last.Difficulty, *last.IsCorrect)
		}
	}

	q := s.generateQuestion(ctx, difficulty)

	optionsJSON, err := json.Marshal(q.Options)
	if err != nil {
		return nil, err
	}

	item := &model.AssessmentItem{
		AssessmentID:  assessmentID,
		Question:      q.Text,
		Options:       optionsJSON,
		CorrectAnswer: q.CorrectAnswer,
		Difficulty:    difficulty,
		SkillTag:      q.SkillTag,
	}
	if err := s.Store.CreateItem(item); err != nil {
		return nil, err
	}

	return &AdvanceResult{
		ItemID:   item.ID,
		Question: item.Question,
		Options:  q.Options,
		Progress: answered + 1,
		Total:    a.TotalQuestions,
	}, nil
}

func pendingResult(item *model.AssessmentItem, answered, total int) (*AdvanceResult, error) {
	options, err := item.OptionList()
	if err != nil {
		return nil, err
	}
	return &AdvanceResult{
		ItemID:   item.ID,
		Question: item.Question,
		Options:  options,
		Progress: answered + 1,
		Total:    total,
	}, nil
}

// finalize 结算并持久化成绩；重复调用只读不再写
func (s *PlacementService) finalize(ctx context.Context, a *model.Assessment) (*AdvanceResult, error) {
	if a.IsFinished() {
		return &AdvanceResult{
			Done:       true,
			FinalScore: a.FinalScore,
			FinalLevel: a.FinalLevel,
		}, nil
	}

	items, err := s.Store.ListItems(a.ID)
	if err != nil {
		return nil, err
	}

	score, level := scoreAssessment(items)
	if err := s.Store.FinalizeAssessment(a.ID, score, level); err != nil {
		return nil, err
	}
	monitoring.AssessmentsFinished.Inc()

	result := &AdvanceResult{
		Done:       true,
		FinalScore: &score,
		FinalLevel: &level,
	}

	if s.Redis != nil {
		if b, err := json.Marshal(result); err == nil {
			s.Redis.Set(ctx, resultCacheKey(a.UserID, a.ID), b, resultCacheTTL)
		}
	}

	return result, nil
}

// scoreAssessment 最终分 = round(100*答对数/题数)，
// 最终等级 = 平均难度四舍五入后的CEFR映射
func scoreAssessment(items []model.AssessmentItem) (int, string) {
	if len(items) == 0 {
		return 0, DifficultyToCEFR(0)
	}

	correct := 0
	difficultySum := 0
	for _, item := range items {
		if item.IsCorrect != nil && *item.IsCorrect {
			correct++
		}
		difficultySum += item.Difficulty
	}

	score := int(math.Round(100 * float64(correct) / float64(len(items))))
	level := DifficultyToCEFR(float64(difficultySum) / float64(len(items)))
	return score, level
}

// generateQuestion 先走AI，任何失败原地转静态题库，绝不把错误抛给调用方
func (s *PlacementService) generateQuestion(ctx context.Context, difficulty int) *Question {
	if s.AI != nil {
		q, err := s.AI.Generate(ctx, difficulty)
		if err == nil {
			monitoring.QuestionsGenerated.WithLabelValues("ai").Inc()
			return q
		}
		logger.Log.Warn("AI question generation failed, falling back to bank",
			zap.Int("difficulty", difficulty),
			zap.Error(err))
		monitoring.AIFallbacks.Inc()
	}

	q, err := s.Bank.Generate(ctx, difficulty)
	if err != nil {
		// 题库非空时不可能出错，构造期已拦截空池
		panic(err)
	}
	monitoring.QuestionsGenerated.WithLabelValues("bank").Inc()
	return q
}

func resultCacheKey(userID uint, assessmentID string) string {
	return "placement:result:" + strconv.FormatUint(uint64(userID), 10) + ":" + assessmentID
}

// ListMyAssessments 当前用户的历次测试
func (s *PlacementService) ListMyAssessments(userID uint) ([]model.Assessment, error) {
	return s.Store.ListAssessmentsByUser(userID)
}

// GetAssessment 按归属读取一次测试及其题目
func (s *PlacementService) GetAssessment(assessmentID string, userID uint) (*model.Assessment, []model.AssessmentItem, error) {
	a, err := s.Store.FindAssessmentByID(assessmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, util.ErrAssessmentNotFound
		}
		return nil, nil, err
	}
	if a.UserID != userID {
		return nil, nil, util.ErrAssessmentNotFound
	}

	items, err := s.Store.ListItems(assessmentID)
	if err != nil {
		return nil, nil, err
	}
	return a, items, nil
}

// ListFinishedAssessments 教师端分页查询已完成的测试
func (s *PlacementService) ListFinishedAssessments(page, limit int) ([]model.Assessment, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return s.Store.ListFinishedAssessments(page, limit)
}
