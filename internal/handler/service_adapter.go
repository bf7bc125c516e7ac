package handler

import (
	"context"

	"github.com/hitoshi/taskman/internal/model"
	"github.com/hitoshi/taskman/internal/task"
)

// TaskServiceAdapter は task.Service を TaskServiceInterface に適合させるアダプタ。
type TaskServiceAdapter struct {
	svc *task.Service
}

// NewTaskServiceAdapter はTaskServiceAdapterを生成する。
func NewTaskServiceAdapter(svc *task.Service) *TaskServiceAdapter {
	return &TaskServiceAdapter{svc: svc}
}

// List はタスク一覧をhandlerレスポンス型で返す。
func (a *TaskServiceAdapter) List(ctx context.Context, identity model.RequestIdentity, q task.ListQuery) (*taskListResponse, error) {
	page, err := a.svc.List(ctx, identity, q)
	if err != nil {
		return nil, err
	}

	tasks := make([]taskResponse, len(page.Tasks))
	for i, t := range page.Tasks {
		tasks[i] = toTaskResponse(t)
	}
	return &taskListResponse{
		Tasks:       tasks,
		CurrentPage: page.Page,
		TotalPages:  page.TotalPages(),
		TotalTasks:  page.TotalTasks,
	}, nil
}

// Create はタスクを作成しhandlerレスポンス型で返す。
func (a *TaskServiceAdapter) Create(ctx context.Context, identity model.RequestIdentity, in task.CreateInput) (*taskResponse, error) {
	return wrapTask(a.svc.Create(ctx, identity, in))
}

// Get はタスクをhandlerレスポンス型で返す。
func (a *TaskServiceAdapter) Get(ctx context.Context, identity model.RequestIdentity, taskID string) (*taskResponse, error) {
	return wrapTask(a.svc.Get(ctx, identity, taskID))
}

// Update はタスクを更新しhandlerレスポンス型で返す。
func (a *TaskServiceAdapter) Update(ctx context.Context, identity model.RequestIdentity, taskID string, in task.UpdateInput) (*taskResponse, error) {
	return wrapTask(a.svc.Update(ctx, identity, taskID, in))
}

// Delete はタスクを削除する。
func (a *TaskServiceAdapter) Delete(ctx context.Context, identity model.RequestIdentity, taskID string) error {
	return a.svc.Delete(ctx, identity, taskID)
}

func wrapTask(t *model.Task, err error) (*taskResponse, error) {
	if err != nil {
		return nil, err
	}
	resp := toTaskResponse(t)
	return &resp, nil
}

// toTaskResponse はドメインのTaskをhandlerのレスポンス型に変換する。
func toTaskResponse(t *model.Task) taskResponse {
	return taskResponse{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Priority:    string(t.Priority),
		Deadline:    t.Deadline.Format(model.DeadlineLayout),
		Status:      string(t.Status),
		OwnerUserID: t.OwnerUserID,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

// --- compile-time interface checks ---

var _ TaskServiceInterface = (*TaskServiceAdapter)(nil)
