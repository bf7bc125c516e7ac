package repository

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/taskman/internal/model"
)

// PostgresTaskRepoはTaskRepositoryインターフェースを満たすことを検証
func TestPostgresTaskRepo_ImplementsInterface(t *testing.T) {
	var _ TaskRepository = (*PostgresTaskRepo)(nil)
}

// 所有者条件のないfilterはDBに到達する前に拒否されることを検証
// （dbがnilでもパニックしない）
func TestPostgresTaskRepo_RejectsFilterWithoutOwner(t *testing.T) {
	repo := NewPostgresTaskRepo(nil)
	ctx := context.Background()
	noOwner := model.TaskFilter{ID: "task-1"}

	if _, err := repo.Find(ctx, noOwner, ListOptions{Limit: 10}); !errors.Is(err, model.ErrMissingOwner) {
		t.Errorf("Find err = %v, want ErrMissingOwner", err)
	}
	if _, err := repo.Count(ctx, noOwner); !errors.Is(err, model.ErrMissingOwner) {
		t.Errorf("Count err = %v, want ErrMissingOwner", err)
	}
	if _, err := repo.FindOne(ctx, noOwner); !errors.Is(err, model.ErrMissingOwner) {
		t.Errorf("FindOne err = %v, want ErrMissingOwner", err)
	}
	title := "x"
	if _, err := repo.UpdateOne(ctx, noOwner, model.TaskPatch{Title: &title}); !errors.Is(err, model.ErrMissingOwner) {
		t.Errorf("UpdateOne err = %v, want ErrMissingOwner", err)
	}
	if _, err := repo.DeleteOne(ctx, noOwner); !errors.Is(err, model.ErrMissingOwner) {
		t.Errorf("DeleteOne err = %v, want ErrMissingOwner", err)
	}
	if err := repo.Insert(ctx, &model.Task{ID: "task-1"}); !errors.Is(err, model.ErrMissingOwner) {
		t.Errorf("Insert err = %v, want ErrMissingOwner", err)
	}
}

func TestBuildFindQuery_AlwaysScopesByOwner(t *testing.T) {
	query, args, err := buildFindQuery(model.TaskFilter{OwnerUserID: "user-a"}, ListOptions{Offset: 20, Limit: 10})
	if err != nil {
		t.Fatalf("buildFindQuery error: %v", err)
	}

	if !strings.Contains(query, "owner_user_id = $1") {
		t.Errorf("query should filter by owner: %s", query)
	}
	if len(args) != 1 || args[0] != "user-a" {
		t.Errorf("args = %v, want [user-a]", args)
	}
	for _, want := range []string{"FROM tasks", "ORDER BY created_at DESC, id DESC", "LIMIT 10", "OFFSET 20"} {
		if !strings.Contains(query, want) {
			t.Errorf("query should contain %q: %s", want, query)
		}
	}
}

func TestBuildFindQuery_CombinesFilters(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	filter := model.TaskFilter{
		OwnerUserID:  "user-a",
		ID:           "task-1",
		Priority:     model.PriorityHigh,
		Status:       model.TaskStatusPending,
		Search:       "50%_off",
		DeadlineFrom: &from,
		DeadlineTo:   &to,
	}

	query, args, err := buildFindQuery(filter, ListOptions{})
	if err != nil {
		t.Fatalf("buildFindQuery error: %v", err)
	}

	for _, want := range []string{
		"owner_user_id = $1",
		"id = $2",
		"priority = $3",
		"status = $4",
		"title ILIKE $5",
		"description ILIKE $6",
		"deadline >= $7",
		"deadline <= $8",
	} {
		if !strings.Contains(query, want) {
			t.Errorf("query should contain %q: %s", want, query)
		}
	}
	if strings.Contains(query, "LIMIT") || strings.Contains(query, "OFFSET") {
		t.Errorf("query should not page without options: %s", query)
	}

	if len(args) != 8 {
		t.Fatalf("len(args) = %d, want 8", len(args))
	}
	if args[4] != `%50\%\_off%` {
		t.Errorf("search pattern = %v, want LIKE metacharacters escaped", args[4])
	}
}

func TestBuildUpdateQuery_NeverSetsOwnerOrID(t *testing.T) {
	title := "new title"
	status := model.TaskStatusComplete
	now := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

	query, args, err := buildUpdateQuery(
		model.TaskFilter{OwnerUserID: "user-a", ID: "task-1"},
		model.TaskPatch{Title: &title, Status: &status},
		now,
	)
	if err != nil {
		t.Fatalf("buildUpdateQuery error: %v", err)
	}

	setStart := strings.Index(query, " SET ")
	whereStart := strings.Index(query, " WHERE ")
	if setStart < 0 || whereStart < setStart {
		t.Fatalf("unexpected query shape: %s", query)
	}
	setClause := query[setStart:whereStart]
	if strings.Contains(setClause, "owner_user_id") || strings.Contains(setClause, " id =") {
		t.Errorf("SET clause must not touch owner or id: %s", setClause)
	}
	for _, want := range []string{"title = $1", "status = $2", "updated_at = $3"} {
		if !strings.Contains(setClause, want) {
			t.Errorf("SET clause should contain %q: %s", want, setClause)
		}
	}

	whereClause := query[whereStart:]
	if !strings.Contains(whereClause, "owner_user_id = $4") || !strings.Contains(whereClause, "id = $5") {
		t.Errorf("WHERE clause should match owner and id: %s", whereClause)
	}
	if !strings.Contains(query, "RETURNING id, owner_user_id") {
		t.Errorf("query should return the updated row: %s", query)
	}
	if args[3] != "user-a" || args[4] != "task-1" {
		t.Errorf("where args = %v, want [user-a task-1]", args[3:])
	}
}

func TestBuildUpdateQuery_RejectsMissingOwner(t *testing.T) {
	title := "x"
	_, _, err := buildUpdateQuery(model.TaskFilter{ID: "task-1"}, model.TaskPatch{Title: &title}, time.Now())
	if !errors.Is(err, model.ErrMissingOwner) {
		t.Errorf("err = %v, want ErrMissingOwner", err)
	}
}
