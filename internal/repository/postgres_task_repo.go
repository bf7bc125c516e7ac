package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/hitoshi/taskman/internal/model"
)

// psql はPostgreSQLのプレースホルダ（$1, $2, ...）でSQLを組み立てるビルダー。
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var taskColumns = []string{
	"id", "owner_user_id", "title", "description", "priority",
	"deadline", "status", "created_at", "updated_at",
}

// likeEscaper はLIKEパターンのメタ文字をエスケープする。
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// PostgresTaskRepo はPostgreSQLを使用したタスクリポジトリ。
// すべての問い合わせはowner_user_idで所有者に限定される。
type PostgresTaskRepo struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresTaskRepo はPostgresTaskRepoを生成する。
func NewPostgresTaskRepo(db *sql.DB) *PostgresTaskRepo {
	return &PostgresTaskRepo{db: db, now: time.Now}
}

// ownerScopedWhere はfilterからWHERE条件を組み立てる。
// 先頭の条件は常にowner_user_idの一致で、OwnerUserIDが空の場合はErrMissingOwnerを返す。
func ownerScopedWhere(f model.TaskFilter) (sq.And, error) {
	if f.OwnerUserID == "" {
		return nil, model.ErrMissingOwner
	}

	where := sq.And{sq.Eq{"owner_user_id": f.OwnerUserID}}
	if f.ID != "" {
		where = append(where, sq.Eq{"id": f.ID})
	}
	if f.Priority != "" {
		where = append(where, sq.Eq{"priority": string(f.Priority)})
	}
	if f.Status != "" {
		where = append(where, sq.Eq{"status": string(f.Status)})
	}
	if f.Search != "" {
		pattern := "%" + likeEscaper.Replace(f.Search) + "%"
		where = append(where, sq.Or{
			sq.ILike{"title": pattern},
			sq.ILike{"description": pattern},
		})
	}
	if f.DeadlineFrom != nil {
		where = append(where, sq.GtOrEq{"deadline": *f.DeadlineFrom})
	}
	if f.DeadlineTo != nil {
		where = append(where, sq.LtOrEq{"deadline": *f.DeadlineTo})
	}
	return where, nil
}

// buildFindQuery は一覧取得のSQLを組み立てる。
func buildFindQuery(f model.TaskFilter, opts ListOptions) (string, []any, error) {
	where, err := ownerScopedWhere(f)
	if err != nil {
		return "", nil, err
	}

	q := psql.Select(taskColumns...).
		From("tasks").
		Where(where).
		OrderBy("created_at DESC", "id DESC")
	if opts.Limit > 0 {
		q = q.Limit(uint64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Offset(uint64(opts.Offset))
	}
	return q.ToSql()
}

// buildUpdateQuery はパッチ適用のSQLを組み立てる。
// owner_user_idとidはSET句に含めない。
func buildUpdateQuery(f model.TaskFilter, p model.TaskPatch, now time.Time) (string, []any, error) {
	where, err := ownerScopedWhere(f)
	if err != nil {
		return "", nil, err
	}

	q := psql.Update("tasks")
	if p.Title != nil {
		q = q.Set("title", *p.Title)
	}
	if p.Description != nil {
		q = q.Set("description", *p.Description)
	}
	if p.Priority != nil {
		q = q.Set("priority", string(*p.Priority))
	}
	if p.Deadline != nil {
		q = q.Set("deadline", *p.Deadline)
	}
	if p.Status != nil {
		q = q.Set("status", string(*p.Status))
	}
	q = q.Set("updated_at", now).
		Where(where).
		Suffix("RETURNING " + strings.Join(taskColumns, ", "))
	return q.ToSql()
}

// Find は条件に一致するタスクを作成日時の新しい順に返す。
func (r *PostgresTaskRepo) Find(ctx context.Context, filter model.TaskFilter, opts ListOptions) ([]*model.Task, error) {
	query, args, err := buildFindQuery(filter, opts)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*model.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tasks: %w", err)
	}

	return tasks, nil
}

// Count は条件に一致するタスク数を返す。
func (r *PostgresTaskRepo) Count(ctx context.Context, filter model.TaskFilter) (int, error) {
	where, err := ownerScopedWhere(filter)
	if err != nil {
		return 0, err
	}

	query, args, err := psql.Select("COUNT(*)").From("tasks").Where(where).ToSql()
	if err != nil {
		return 0, err
	}

	var count int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count tasks: %w", err)
	}
	return count, nil
}

// FindOne は条件に一致するタスクを1件返す。見つからない場合はnilを返す。
func (r *PostgresTaskRepo) FindOne(ctx context.Context, filter model.TaskFilter) (*model.Task, error) {
	query, args, err := buildFindQuery(filter, ListOptions{Limit: 1})
	if err != nil {
		return nil, err
	}

	task, err := scanTask(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find task: %w", err)
	}
	return task, nil
}

// Insert はタスクを作成する。
func (r *PostgresTaskRepo) Insert(ctx context.Context, task *model.Task) error {
	if task.OwnerUserID == "" {
		return model.ErrMissingOwner
	}

	query, args, err := psql.Insert("tasks").
		Columns(taskColumns...).
		Values(
			task.ID, task.OwnerUserID, task.Title, task.Description, string(task.Priority),
			task.Deadline, string(task.Status), task.CreatedAt, task.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return err
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		// 退会済みユーザーのトークンで作成された場合
		if isForeignKeyViolation(err) {
			return ErrOwnerNotFound
		}
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

// UpdateOne は条件に一致するタスクにパッチを適用し、更新後のタスクを返す。
// 同一タスクへの同時更新は後勝ちになる。
func (r *PostgresTaskRepo) UpdateOne(ctx context.Context, filter model.TaskFilter, patch model.TaskPatch) (*model.Task, error) {
	if patch.IsEmpty() {
		return r.FindOne(ctx, filter)
	}

	query, args, err := buildUpdateQuery(filter, patch, r.now().UTC())
	if err != nil {
		return nil, err
	}

	task, err := scanTask(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}
	return task, nil
}

// DeleteOne は条件に一致するタスクを削除し、削除したかどうかを返す。
func (r *PostgresTaskRepo) DeleteOne(ctx context.Context, filter model.TaskFilter) (bool, error) {
	where, err := ownerScopedWhere(filter)
	if err != nil {
		return false, err
	}

	query, args, err := psql.Delete("tasks").Where(where).ToSql()
	if err != nil {
		return false, err
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to delete task: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*model.Task, error) {
	task := &model.Task{}
	var priority, status string
	err := row.Scan(
		&task.ID, &task.OwnerUserID, &task.Title, &task.Description, &priority,
		&task.Deadline, &status, &task.CreatedAt, &task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	task.Priority = model.Priority(priority)
	task.Status = model.TaskStatus(status)
	return task, nil
}

// compile-time interface check
var _ TaskRepository = (*PostgresTaskRepo)(nil)
