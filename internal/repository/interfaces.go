// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/taskman/internal/model"
)

// ErrDuplicateEmail は登録済みのメールアドレスでユーザーを作成しようとした場合に返される。
var ErrDuplicateEmail = errors.New("email already registered")

// ErrOwnerNotFound は存在しないユーザーを所有者としてタスクを作成しようとした場合に返される。
var ErrOwnerNotFound = errors.New("task owner does not exist")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// Create はユーザーを作成する。メールアドレスが重複する場合はErrDuplicateEmailを返す。
	Create(ctx context.Context, user *model.User) error

	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// DeleteByID は指定IDのユーザーを所有タスクと同一トランザクションで削除する。
	DeleteByID(ctx context.Context, id string) error
}

// ListOptions はタスク一覧取得時のページング指定。
type ListOptions struct {
	Offset int
	Limit  int
}

// TaskRepository はタスクデータの永続化インターフェース。
// すべての問い合わせはfilter.OwnerUserIDで所有者に限定される。
// OwnerUserIDが空のfilterにはmodel.ErrMissingOwnerを返す。
type TaskRepository interface {
	// Find は条件に一致するタスクを作成日時の新しい順に返す。
	Find(ctx context.Context, filter model.TaskFilter, opts ListOptions) ([]*model.Task, error)

	// Count は条件に一致するタスク数を返す。
	Count(ctx context.Context, filter model.TaskFilter) (int, error)

	// FindOne は条件に一致するタスクを1件返す。見つからない場合はnilを返す。
	FindOne(ctx context.Context, filter model.TaskFilter) (*model.Task, error)

	// Insert はタスクを作成する。所有者が存在しない場合はErrOwnerNotFoundを返す。
	Insert(ctx context.Context, task *model.Task) error

	// UpdateOne は条件に一致するタスクにパッチを適用し、更新後のタスクを返す。
	// 一致するタスクがない場合はnilを返す。
	UpdateOne(ctx context.Context, filter model.TaskFilter, patch model.TaskPatch) (*model.Task, error)

	// DeleteOne は条件に一致するタスクを削除し、削除したかどうかを返す。
	DeleteOne(ctx context.Context, filter model.TaskFilter) (bool, error)
}
