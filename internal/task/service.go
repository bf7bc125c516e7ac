// Package task は利用者ごとに分離されたタスク管理のドメインロジックを提供する。
package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/hitoshi/taskman/internal/model"
	"github.com/hitoshi/taskman/internal/repository"
)

const (
	maxTitleLength       = 200
	maxDescriptionLength = 2000

	// DefaultPageLimit は1ページあたりの既定件数。
	DefaultPageLimit = 10
	// MaxPageLimit は1ページあたりの最大件数。
	MaxPageLimit = 100
)

// TextSanitizer はユーザー入力からHTMLを除去する。
type TextSanitizer interface {
	Sanitize(s string) string
}

// MutationRecorder はタスクの作成・更新・削除の回数を記録する。
type MutationRecorder interface {
	RecordTaskMutation(op string)
}

// CreateInput はタスク作成の入力。
type CreateInput struct {
	Title       string
	Description string
	Priority    string
	Deadline    string
}

// UpdateInput はタスク更新の入力。nilのフィールドは変更しない。
type UpdateInput struct {
	Title       *string
	Description *string
	Priority    *string
	Deadline    *string
	Status      *string
}

// ListQuery はタスク一覧の取得条件。
type ListQuery struct {
	Page         int
	Limit        int
	Priority     string
	Status       string
	Search       string
	DeadlineFrom string
	DeadlineTo   string
}

// Service はタスクのサービス層。
// すべての操作はリクエストの利用者を所有者とするタスクに限定される。
type Service struct {
	repo      repository.TaskRepository
	sanitizer TextSanitizer
	recorder  MutationRecorder
	now       func() time.Time
}

// NewService はServiceを生成する。sanitizerとrecorderはnilでもよい。
func NewService(repo repository.TaskRepository, sanitizer TextSanitizer, recorder MutationRecorder) *Service {
	return &Service{
		repo:      repo,
		sanitizer: sanitizer,
		recorder:  recorder,
		now:       time.Now,
	}
}

// List は利用者のタスクを作成日時の新しい順にページ単位で返す。
func (s *Service) List(ctx context.Context, identity model.RequestIdentity, q ListQuery) (*model.TaskPage, error) {
	filter, err := s.ownerFilter(identity)
	if err != nil {
		return nil, err
	}

	if q.Priority != "" {
		p, ok := model.ParsePriority(q.Priority)
		if !ok {
			return nil, model.NewValidationError("Priority must be one of low, medium, high")
		}
		filter.Priority = p
	}
	if q.Status != "" {
		st := model.TaskStatus(strings.ToLower(strings.TrimSpace(q.Status)))
		if !st.Valid() {
			return nil, model.NewValidationError("Status must be one of pending, complete")
		}
		filter.Status = st
	}
	filter.Search = strings.TrimSpace(q.Search)
	if q.DeadlineFrom != "" {
		d, err := parseDeadline(q.DeadlineFrom)
		if err != nil {
			return nil, err
		}
		filter.DeadlineFrom = &d
	}
	if q.DeadlineTo != "" {
		d, err := parseDeadline(q.DeadlineTo)
		if err != nil {
			return nil, err
		}
		filter.DeadlineTo = &d
	}

	page, limit := normalizePaging(q.Page, q.Limit)

	total, err := s.repo.Count(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to count tasks: %w", err)
	}

	tasks, err := s.repo.Find(ctx, filter, repository.ListOptions{
		Offset: (page - 1) * limit,
		Limit:  limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	if tasks == nil {
		tasks = []*model.Task{}
	}

	return &model.TaskPage{
		Tasks:      tasks,
		Page:       page,
		Limit:      limit,
		TotalTasks: total,
	}, nil
}

// Create は利用者を所有者とするタスクを作成する。状態は常にpendingで始まる。
func (s *Service) Create(ctx context.Context, identity model.RequestIdentity, in CreateInput) (*model.Task, error) {
	if _, err := s.ownerFilter(identity); err != nil {
		return nil, err
	}

	title, err := s.cleanTitle(in.Title)
	if err != nil {
		return nil, err
	}
	description, err := s.cleanDescription(in.Description)
	if err != nil {
		return nil, err
	}

	priority := model.PriorityMedium
	if strings.TrimSpace(in.Priority) != "" {
		p, ok := model.ParsePriority(in.Priority)
		if !ok {
			return nil, model.NewValidationError("Priority must be one of low, medium, high")
		}
		priority = p
	}

	if strings.TrimSpace(in.Deadline) == "" {
		return nil, model.NewValidationError("Deadline is required")
	}
	deadline, err := parseDeadline(in.Deadline)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	task := &model.Task{
		ID:          uuid.New().String(),
		OwnerUserID: identity.UserID,
		Title:       title,
		Description: description,
		Priority:    priority,
		Deadline:    deadline,
		Status:      model.TaskStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.Insert(ctx, task); err != nil {
		if errors.Is(err, repository.ErrOwnerNotFound) {
			return nil, model.NewUserNotFoundError()
		}
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	s.record("create")
	slog.Info("task created",
		slog.String("user_id", identity.UserID),
		slog.String("task_id", task.ID),
	)
	return task, nil
}

// Get は利用者が所有するタスクを1件返す。
// 存在しないタスクと他の利用者のタスクはどちらもTASK_NOT_FOUNDになる。
func (s *Service) Get(ctx context.Context, identity model.RequestIdentity, taskID string) (*model.Task, error) {
	filter, err := s.taskFilter(identity, taskID)
	if err != nil {
		return nil, err
	}

	task, err := s.repo.FindOne(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to find task: %w", err)
	}
	if task == nil {
		return nil, model.NewTaskNotFoundError()
	}
	return task, nil
}

// Update は利用者が所有するタスクを部分更新する。
// 同一タスクへの同時更新は後勝ちになる。
func (s *Service) Update(ctx context.Context, identity model.RequestIdentity, taskID string, in UpdateInput) (*model.Task, error) {
	filter, err := s.taskFilter(identity, taskID)
	if err != nil {
		return nil, err
	}

	patch, err := s.buildPatch(in)
	if err != nil {
		return nil, err
	}

	task, err := s.repo.UpdateOne(ctx, filter, patch)
	if err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}
	if task == nil {
		return nil, model.NewTaskNotFoundError()
	}

	if !patch.IsEmpty() {
		s.record("update")
	}
	return task, nil
}

// Delete は利用者が所有するタスクを削除する。
// 削除済みのタスクを再度削除した場合もTASK_NOT_FOUNDを返す。
func (s *Service) Delete(ctx context.Context, identity model.RequestIdentity, taskID string) error {
	filter, err := s.taskFilter(identity, taskID)
	if err != nil {
		return err
	}

	deleted, err := s.repo.DeleteOne(ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	if !deleted {
		return model.NewTaskNotFoundError()
	}

	s.record("delete")
	slog.Info("task deleted",
		slog.String("user_id", identity.UserID),
		slog.String("task_id", taskID),
	)
	return nil
}

// ownerFilter は利用者を所有者とするfilterを返す。
// 利用者が空のまま呼ばれるのはミドルウェアの組み立て誤りなので内部エラーにする。
func (s *Service) ownerFilter(identity model.RequestIdentity) (model.TaskFilter, error) {
	if identity.UserID == "" {
		return model.TaskFilter{}, model.ErrMissingOwner
	}
	return model.TaskFilter{OwnerUserID: identity.UserID}, nil
}

// taskFilter は所有者とタスクIDで絞り込むfilterを返す。
// UUIDとして解釈できないIDは存在しないタスクと同じ扱いにする。
func (s *Service) taskFilter(identity model.RequestIdentity, taskID string) (model.TaskFilter, error) {
	filter, err := s.ownerFilter(identity)
	if err != nil {
		return filter, err
	}
	id, err := uuid.Parse(taskID)
	if err != nil {
		return filter, model.NewTaskNotFoundError()
	}
	filter.ID = id.String()
	return filter, nil
}

func (s *Service) buildPatch(in UpdateInput) (model.TaskPatch, error) {
	var patch model.TaskPatch

	if in.Title != nil {
		title, err := s.cleanTitle(*in.Title)
		if err != nil {
			return patch, err
		}
		patch.Title = &title
	}
	if in.Description != nil {
		description, err := s.cleanDescription(*in.Description)
		if err != nil {
			return patch, err
		}
		patch.Description = &description
	}
	if in.Priority != nil {
		p, ok := model.ParsePriority(*in.Priority)
		if !ok {
			return patch, model.NewValidationError("Priority must be one of low, medium, high")
		}
		patch.Priority = &p
	}
	if in.Deadline != nil {
		d, err := parseDeadline(*in.Deadline)
		if err != nil {
			return patch, err
		}
		patch.Deadline = &d
	}
	if in.Status != nil {
		st := model.TaskStatus(strings.ToLower(strings.TrimSpace(*in.Status)))
		if !st.Valid() {
			return patch, model.NewValidationError("Status must be one of pending, complete")
		}
		patch.Status = &st
	}

	return patch, nil
}

func (s *Service) cleanTitle(title string) (string, error) {
	title = s.sanitize(title)
	if title == "" {
		return "", model.NewValidationError("Title is required")
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return "", model.NewValidationError(fmt.Sprintf("Title must be at most %d characters", maxTitleLength))
	}
	return title, nil
}

func (s *Service) cleanDescription(description string) (string, error) {
	description = s.sanitize(description)
	if utf8.RuneCountInString(description) > maxDescriptionLength {
		return "", model.NewValidationError(fmt.Sprintf("Description must be at most %d characters", maxDescriptionLength))
	}
	return description, nil
}

func (s *Service) sanitize(v string) string {
	if s.sanitizer != nil {
		v = s.sanitizer.Sanitize(v)
	}
	return strings.TrimSpace(v)
}

func (s *Service) record(op string) {
	if s.recorder != nil {
		s.recorder.RecordTaskMutation(op)
	}
}

// parseDeadline はYYYY-MM-DD形式の日付をUTCの0時として解析する。
func parseDeadline(v string) (time.Time, error) {
	d, err := time.Parse(model.DeadlineLayout, strings.TrimSpace(v))
	if err != nil {
		return time.Time{}, model.NewValidationError("Deadline must be a date in YYYY-MM-DD format")
	}
	return d, nil
}

// normalizePaging はページ番号と件数を有効範囲に収める。
// ページ番号は(page-1)*limitがintに収まる範囲に丸める。
func normalizePaging(page, limit int) (int, int) {
	if limit < 1 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	if page < 1 {
		page = 1
	}
	if maxPage := math.MaxInt / limit; page > maxPage {
		page = maxPage
	}
	return page, limit
}

