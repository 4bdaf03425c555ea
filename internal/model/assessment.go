package model

import "encoding/json"

// Assessment 一次定级测试，归属单个用户，题量固定
// swagger:model Assessment
type Assessment struct {
	UUIDBase
	UserID         uint    `gorm:"index;type:bigint unsigned;not null" json:"userId"`
	TotalQuestions int     `gorm:"not null;default:30" json:"totalQuestions"`
	FinalScore     *int    `json:"finalScore,omitempty"` // 0-100，完成后写入
	FinalLevel     *string `gorm:"size:10" json:"finalLevel,omitempty"`
}

func (Assessment) TableName() string {
	return "assessments"
}

// IsFinished 已写入最终成绩
func (a *Assessment) IsFinished() bool {
	return a.FinalScore != nil && a.FinalLevel != nil
}

// AssessmentItem 测试中的一道题，自增主键即出题顺序
// swagger:model AssessmentItem
type AssessmentItem struct {
	BaseModel
	AssessmentID  string          `gorm:"index;type:varchar(36);not null" json:"assessmentId"`
	Question      string          `gorm:"type:text;not null" json:"question"`
	Options       json.RawMessage `gorm:"type:json;not null" json:"options"` // JSON: []string
	CorrectAnswer string          `gorm:"size:255;not null" json:"-"`
	UserAnswer    *string         `gorm:"size:255" json:"userAnswer,omitempty"`
	IsCorrect     *bool           `json:"isCorrect,omitempty"`
	Difficulty    int             `gorm:"not null" json:"difficulty"` // 1-9
	SkillTag      string          `gorm:"size:20;not null" json:"skillTag"`
}

func (AssessmentItem) TableName() string {
	return "assessment_items"
}

// Answered 该题是否已作答
func (i *AssessmentItem) Answered() bool {
	return i.UserAnswer != nil
}

// OptionList 解析JSON列中的选项
func (i *AssessmentItem) OptionList() ([]string, error) {
	var opts []string
	if err := json.Unmarshal(i.Options, &opts); err != nil {
		return nil, err
	}
	return opts, nil
}
