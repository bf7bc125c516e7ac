package model

import (
	"strings"
	"time"
)

// Priority はタスクの優先度。
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid は定義済みの優先度かどうかを返す。
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// ParsePriority は大文字小文字を区別せずに優先度を解析する。
func ParsePriority(s string) (Priority, bool) {
	p := Priority(strings.ToLower(strings.TrimSpace(s)))
	return p, p.Valid()
}

// TaskStatus はタスクの進捗状態。
type TaskStatus string

const (
	TaskStatusPending  TaskStatus = "pending"
	TaskStatusComplete TaskStatus = "complete"
)

// Valid は定義済みの状態かどうかを返す。
func (s TaskStatus) Valid() bool {
	return s == TaskStatusPending || s == TaskStatusComplete
}

// DeadlineLayout は期限日の入出力フォーマット。
const DeadlineLayout = "2006-01-02"

// Task はユーザーが所有するタスクを表す。
// OwnerUserIDは作成時にリクエストの利用者から設定され、以後変更されない。
type Task struct {
	ID          string
	OwnerUserID string
	Title       string
	Description string
	Priority    Priority
	Deadline    time.Time
	Status      TaskStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TaskFilter はタスクストアへの問い合わせ条件。
// OwnerUserIDは必須で、空の場合ストアは問い合わせを拒否する。
type TaskFilter struct {
	OwnerUserID  string
	ID           string
	Priority     Priority
	Status       TaskStatus
	Search       string
	DeadlineFrom *time.Time
	DeadlineTo   *time.Time
}

// TaskPatch はタスクの部分更新内容。nilフィールドは変更しない。
// 所有者とIDは更新対象に含まれない。
type TaskPatch struct {
	Title       *string
	Description *string
	Priority    *Priority
	Deadline    *time.Time
	Status      *TaskStatus
}

// IsEmpty は更新対象のフィールドが1つもない場合にtrueを返す。
func (p TaskPatch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.Priority == nil &&
		p.Deadline == nil && p.Status == nil
}

// Apply はパッチをタスクに適用する。
func (p TaskPatch) Apply(t *Task) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.Deadline != nil {
		t.Deadline = *p.Deadline
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
}

// TaskPage はページネーション付きのタスク一覧。
type TaskPage struct {
	Tasks      []*Task
	Page       int
	Limit      int
	TotalTasks int
}

// TotalPages は総ページ数を返す。
func (p TaskPage) TotalPages() int {
	if p.Limit <= 0 {
		return 0
	}
	return (p.TotalTasks + p.Limit - 1) / p.Limit
}
