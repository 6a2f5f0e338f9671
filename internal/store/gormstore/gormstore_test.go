package gormstore

import (
	"context"
	"testing"

	"taskhub/internal/model"
	"taskhub/internal/store"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("sqlite", "file::memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func createUser(t *testing.T, s *Store, email string) *model.User {
	t.Helper()
	u := &model.User{Name: "n", Email: email, Password: "$2a$10$hash"}
	require.NoError(t, s.Create(context.Background(), u))
	require.NotZero(t, u.ID)
	return u
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open("oracle", "x")
	assert.Error(t, err)
}

func TestUsers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := createUser(t, s, "a@x.com")

	got, err := s.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, "$2a$10$hash", got.Password)

	_, err = s.FindByEmail(ctx, "A@x.com")
	assert.ErrorIs(t, err, store.ErrNotFound, "email lookup is case-sensitive")

	got, err = s.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", got.Email)

	_, err = s.FindByID(ctx, u.ID+100)
	assert.ErrorIs(t, err, store.ErrNotFound)

	err = s.Create(ctx, &model.User{Name: "dup", Email: "a@x.com", Password: "h"})
	assert.Error(t, err, "unique email")
}

func TestTasks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ann := createUser(t, s, "ann@x.com")
	bob := createUser(t, s, "bob@x.com")

	t1 := &model.Task{UserID: ann.ID, Title: "t1", Status: model.TaskStatusPending, Priority: model.TaskPriorityMedium}
	t2 := &model.Task{UserID: bob.ID, Title: "t2", Status: model.TaskStatusPending, Priority: model.TaskPriorityHigh}
	t3 := &model.Task{UserID: ann.ID, Title: "t3", Status: model.TaskStatusCompleted, Priority: model.TaskPriorityLow}
	for _, task := range []*model.Task{t1, t2, t3} {
		require.NoError(t, s.CreateTask(ctx, task))
	}

	annTasks, err := s.ListTasksByOwner(ctx, ann.ID)
	require.NoError(t, err)
	require.Len(t, annTasks, 2)
	assert.Equal(t, t3.ID, annTasks[0].ID, "newest first")
	assert.Equal(t, t1.ID, annTasks[1].ID)

	none, err := s.ListTasksByOwner(ctx, 9999)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	t1.Title = "renamed"
	t1.Description = "desc"
	t1.UserID = bob.ID // must not be persisted
	require.NoError(t, s.UpdateTask(ctx, t1))

	got, err := s.GetTask(ctx, t1.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Title)
	assert.Equal(t, "desc", got.Description)
	assert.Equal(t, ann.ID, got.UserID)

	_, err = s.GetTask(ctx, 9999)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSubtasksAndCascadeDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ann := createUser(t, s, "ann@x.com")
	task := &model.Task{UserID: ann.ID, Title: "parent", Status: model.TaskStatusPending, Priority: model.TaskPriorityMedium}
	require.NoError(t, s.CreateTask(ctx, task))

	st1 := &model.Subtask{TaskID: task.ID, Title: "a"}
	st2 := &model.Subtask{TaskID: task.ID, Title: "b"}
	require.NoError(t, s.CreateSubtask(ctx, st1))
	require.NoError(t, s.CreateSubtask(ctx, st2))

	list, err := s.ListSubtasksByTask(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].Title)

	st1.Completed = true
	require.NoError(t, s.UpdateSubtask(ctx, st1))
	got, err := s.GetSubtask(ctx, st1.ID)
	require.NoError(t, err)
	assert.True(t, got.Completed)

	st1.Completed = false
	require.NoError(t, s.UpdateSubtask(ctx, st1))
	got, err = s.GetSubtask(ctx, st1.ID)
	require.NoError(t, err)
	assert.False(t, got.Completed, "zero value must be written")

	require.NoError(t, s.DeleteSubtask(ctx, st2.ID))
	assert.ErrorIs(t, s.DeleteSubtask(ctx, st2.ID), store.ErrNotFound)

	require.NoError(t, s.DeleteTask(ctx, task.ID))
	_, err = s.GetTask(ctx, task.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetSubtask(ctx, st1.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	assert.ErrorIs(t, s.DeleteTask(ctx, task.ID), store.ErrNotFound)
}

func TestPing(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Ping(context.Background()))
}

// 列排序规则不区分大小写时（如 MySQL 默认），FindByEmail 仍只接受完全相同的邮箱。
func TestFindByEmail_CaseInsensitiveColumn(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger:         gormLogger.Default.LogMode(gormLogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.Exec(`CREATE TABLE users (
		id integer PRIMARY KEY AUTOINCREMENT,
		name text NOT NULL,
		email text NOT NULL COLLATE NOCASE UNIQUE,
		password text NOT NULL,
		created_at datetime,
		updated_at datetime
	)`).Error)

	s := &Store{db: db}
	ctx := context.Background()
	u := createUser(t, s, "ann@x.io")

	got, err := s.FindByEmail(ctx, "ann@x.io")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	for _, variant := range []string{"ANN@x.io", "Ann@X.IO"} {
		_, err = s.FindByEmail(ctx, variant)
		assert.ErrorIs(t, err, store.ErrNotFound, variant)
	}
}

func TestUsers_CaseVariantsAreDistinct(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	lower := createUser(t, s, "ann@x.io")
	upper := createUser(t, s, "ANN@x.io")
	assert.NotEqual(t, lower.ID, upper.ID)

	got, err := s.FindByEmail(ctx, "ANN@x.io")
	require.NoError(t, err)
	assert.Equal(t, upper.ID, got.ID)
}
