package util

import "errors"

var (
	ErrEmailRegistered    = errors.New("该邮箱已被注册")
	ErrInvalidCredentials = errors.New("invalid credentials")

	// 定级测试
	ErrAssessmentNotFound = errors.New("assessment not found")
	ErrNoPendingQuestion  = errors.New("no pending question to answer")
	ErrAssessmentBusy     = errors.New("assessment is being processed")
	ErrEmptyQuestionBank  = errors.New("fallback question bank is empty")
	ErrInvalidAIQuestion  = errors.New("AI returned an unusable question payload")
)
