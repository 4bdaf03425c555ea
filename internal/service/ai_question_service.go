package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"lingo_edu_backend/internal/config"
	"lingo_edu_backend/internal/util"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// AIQuestionService 调用OpenAI兼容接口按CEFR等级出题。
// 配置可热更新；任何失败只返回错误，由编排层转静态题库
type AIQuestionService struct {
	mu      sync.RWMutex
	client  *openai.Client
	model   string
	timeout time.Duration
}

func NewAIQuestionService(cfg config.AIConfig) *AIQuestionService {
	s := &AIQuestionService{}
	s.Reload(cfg)
	return s
}

// Reload 配置热更新入口，由配置监听器回调
func (s *AIQuestionService) Reload(cfg config.AIConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cfg.APIKey == "" {
		s.client = nil
		return
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	s.client = openai.NewClientWithConfig(clientCfg)
	s.model = cfg.Model
	s.timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
}

func (s *AIQuestionService) Generate(ctx context.Context, difficulty int) (*Question, error) {
	s.mu.RLock()
	client := s.client
	model := s.model
	timeout := s.timeout
	s.mu.RUnlock()

	if client == nil {
		return nil, errors.New("AI question service is not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	level := DifficultyToCEFR(float64(difficulty))

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: buildQuestionPrompt(level)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("AI chat completion: %w", err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, errors.New("AI returned an empty response")
	}

	return parseAIQuestion(resp.Choices[0].Message.Content)
}

func buildQuestionPrompt(level string) string {
	return fmt.Sprintf(`Generate ONE English multiple-choice question.
CEFR level: %s.
Constraints:
- Four options, clear strings (not "A/B/C/D"), no duplicates.
- "correctAnswer" must be EXACTLY one of the strings in "options".
- skillTag: "vocab" or "grammar".
Return STRICT JSON (no markdown, no text):
{
  "question": "...",
  "options": ["...","...","...","..."],
  "correctAnswer": "...",
  "skillTag": "vocab"
}`, level)
}

type aiQuestionPayload struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correctAnswer"`
	SkillTag      string   `json:"skillTag"`
}

// parseAIQuestion 解析并校验AI返回的题目。
// 宽容策略：correctAnswer不在选项里时取第一个选项，
// skillTag不是grammar时一律按vocab；题干为空或选项不足两个则判为不可用
func parseAIQuestion(content string) (*Question, error) {
	var payload aiQuestionPayload
	if err := json.Unmarshal([]byte(stripJSONFence(content)), &payload); err != nil {
		return nil, fmt.Errorf("parse AI response: %w", err)
	}

	text := strings.TrimSpace(payload.Question)

	seen := make(map[string]bool, len(payload.Options))
	options := make([]string, 0, len(payload.Options))
	for _, o := range payload.Options {
		o = strings.TrimSpace(o)
		if o == "" || seen[o] {
			continue
		}
		seen[o] = true
		options = append(options, o)
	}

	skillTag := SkillVocab
	if payload.SkillTag == SkillGrammar {
		skillTag = SkillGrammar
	}

	correct := strings.TrimSpace(payload.CorrectAnswer)
	if !seen[correct] {
		if len(options) > 0 {
			correct = options[0]
		} else {
			correct = ""
		}
	}

	if text == "" || len(options) < 2 || correct == "" {
		return nil, util.ErrInvalidAIQuestion
	}

	return &Question{
		Text:          text,
		Options:       options,
		CorrectAnswer: correct,
		SkillTag:      skillTag,
	}, nil
}

// stripJSONFence 剥掉模型偶尔带上的markdown代码围栏
func stripJSONFence(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	}
	return strings.TrimSpace(content)
}
