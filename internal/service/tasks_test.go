package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskhub/internal/model"
	"taskhub/internal/pkg/apperr"
)

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

const (
	ann uint = 1001
	bob uint = 1002
)

func newTaskService() (*TaskService, *memStore) {
	st := newMemStore()
	return NewTaskService(st, st, discardLogger()), st
}

func TestTaskService_CreateDefaults(t *testing.T) {
	svc, _ := newTaskService()
	task, err := svc.CreateTask(context.Background(), ann, TaskInput{Title: strPtr("  T1 ")})
	require.NoError(t, err)
	assert.Equal(t, ann, task.UserID)
	assert.Equal(t, "T1", task.Title)
	assert.Equal(t, model.TaskStatusPending, task.Status)
	assert.Equal(t, model.TaskPriorityMedium, task.Priority)
	assert.Nil(t, task.DueDate)
}

func TestTaskService_CreateValidation(t *testing.T) {
	svc, _ := newTaskService()
	ctx := context.Background()
	cases := map[string]TaskInput{
		"missing title":  {},
		"blank title":    {Title: strPtr("  ")},
		"bad status":     {Title: strPtr("T"), Status: strPtr("done")},
		"bad priority":   {Title: strPtr("T"), Priority: strPtr("urgent")},
		"status casing":  {Title: strPtr("T"), Status: strPtr("Pending")},
		"title too long": {Title: strPtr(strings.Repeat("a", model.MaxTitleLength+1))},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.CreateTask(ctx, ann, in)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
		})
	}
}

func TestTaskService_TitleLengthCountsCharacters(t *testing.T) {
	svc, _ := newTaskService()
	ctx := context.Background()

	// 200 个多字节字符超过 200 字节，但未超过 varchar(200)
	atLimit := strings.Repeat("é", model.MaxTitleLength)
	task, err := svc.CreateTask(ctx, ann, TaskInput{Title: &atLimit})
	require.NoError(t, err)

	_, err = svc.UpdateTask(ctx, task.ID, ann, TaskInput{Title: strPtr(atLimit + "é")})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = svc.CreateSubtask(ctx, task.ID, ann, SubtaskInput{Title: strPtr(strings.Repeat("x", model.MaxTitleLength+1))})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestTaskService_PartialUpdate(t *testing.T) {
	svc, _ := newTaskService()
	ctx := context.Background()
	due := time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC)
	task, err := svc.CreateTask(ctx, ann, TaskInput{Title: strPtr("T1"), Description: strPtr("d"), DueDate: &due})
	require.NoError(t, err)

	updated, err := svc.UpdateTask(ctx, task.ID, ann, TaskInput{Status: strPtr("in_progress"), Priority: strPtr("high")})
	require.NoError(t, err)
	assert.Equal(t, "T1", updated.Title)
	assert.Equal(t, "d", updated.Description)
	assert.Equal(t, model.TaskStatusInProgress, updated.Status)
	assert.Equal(t, model.TaskPriorityHigh, updated.Priority)
	require.NotNil(t, updated.DueDate)
	assert.True(t, due.Equal(*updated.DueDate))

	_, err = svc.UpdateTask(ctx, task.ID, ann, TaskInput{Title: strPtr("")})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestTaskService_CrossUserAccessIsNotFound(t *testing.T) {
	svc, st := newTaskService()
	ctx := context.Background()
	task, err := svc.CreateTask(ctx, ann, TaskInput{Title: strPtr("secret")})
	require.NoError(t, err)

	_, err = svc.GetTask(ctx, task.ID, bob)
	assertNotFound(t, err, MsgTaskNotFound)

	// 所有权检查先于校验：非法 payload 也返回 NotFound
	_, err = svc.UpdateTask(ctx, task.ID, bob, TaskInput{Title: strPtr(""), Status: strPtr("bogus")})
	assertNotFound(t, err, MsgTaskNotFound)

	_, err = svc.UpdateTask(ctx, task.ID, bob, TaskInput{Title: strPtr("pwned")})
	assertNotFound(t, err, MsgTaskNotFound)

	_, err = svc.DeleteTask(ctx, task.ID, bob)
	assertNotFound(t, err, MsgTaskNotFound)

	// 与不存在的 id 无法区分
	_, missingErr := svc.GetTask(ctx, 999999, bob)
	assert.Equal(t, apperr.PublicMessage(missingErr), apperr.PublicMessage(err))

	stored, err := st.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "secret", stored.Title)
	assert.Equal(t, ann, stored.UserID)
}

func TestTaskService_InterleavedListsStayIsolated(t *testing.T) {
	svc, _ := newTaskService()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := svc.CreateTask(ctx, ann, TaskInput{Title: strPtr("ann")})
		require.NoError(t, err)
		_, err = svc.CreateTask(ctx, bob, TaskInput{Title: strPtr("bob")})
		require.NoError(t, err)
	}

	annTasks, err := svc.ListTasks(ctx, ann)
	require.NoError(t, err)
	require.Len(t, annTasks, 3)
	for _, task := range annTasks {
		assert.Equal(t, ann, task.UserID)
		assert.Equal(t, "ann", task.Title)
	}

	bobTasks, err := svc.ListTasks(ctx, bob)
	require.NoError(t, err)
	require.Len(t, bobTasks, 3)
	for _, task := range bobTasks {
		assert.Equal(t, bob, task.UserID)
	}

	empty, err := svc.ListTasks(ctx, 42)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestTaskService_Subtasks(t *testing.T) {
	svc, _ := newTaskService()
	ctx := context.Background()
	task, err := svc.CreateTask(ctx, ann, TaskInput{Title: strPtr("parent")})
	require.NoError(t, err)

	sub, err := svc.CreateSubtask(ctx, task.ID, ann, SubtaskInput{Title: strPtr("step 1")})
	require.NoError(t, err)
	assert.Equal(t, task.ID, sub.TaskID)
	assert.False(t, sub.Completed)

	_, err = svc.CreateSubtask(ctx, task.ID, ann, SubtaskInput{})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	updated, err := svc.UpdateSubtask(ctx, sub.ID, ann, SubtaskInput{Completed: boolPtr(true)})
	require.NoError(t, err)
	assert.True(t, updated.Completed)
	assert.Equal(t, "step 1", updated.Title)

	list, err := svc.ListSubtasks(ctx, task.ID, ann)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Completed)

	got, err := svc.GetSubtask(ctx, sub.ID, ann)
	require.NoError(t, err)
	assert.Equal(t, sub.ID, got.ID)

	deleted, err := svc.DeleteSubtask(ctx, sub.ID, ann)
	require.NoError(t, err)
	assert.Equal(t, sub.ID, deleted.ID)

	_, err = svc.GetSubtask(ctx, sub.ID, ann)
	assertNotFound(t, err, MsgSubtaskNotFound)
}

func TestTaskService_ForeignSubtaskAccessIsNotFound(t *testing.T) {
	svc, st := newTaskService()
	ctx := context.Background()
	task, err := svc.CreateTask(ctx, ann, TaskInput{Title: strPtr("ann's")})
	require.NoError(t, err)
	sub, err := svc.CreateSubtask(ctx, task.ID, ann, SubtaskInput{Title: strPtr("s")})
	require.NoError(t, err)

	_, err = svc.CreateSubtask(ctx, task.ID, bob, SubtaskInput{Title: strPtr("injected")})
	assertNotFound(t, err, MsgTaskNotFound)

	_, err = svc.CreateSubtask(ctx, task.ID, bob, SubtaskInput{})
	assertNotFound(t, err, MsgTaskNotFound)

	_, err = svc.ListSubtasks(ctx, task.ID, bob)
	assertNotFound(t, err, MsgTaskNotFound)

	_, err = svc.GetSubtask(ctx, sub.ID, bob)
	assertNotFound(t, err, MsgSubtaskNotFound)

	_, err = svc.UpdateSubtask(ctx, sub.ID, bob, SubtaskInput{Completed: boolPtr(true)})
	assertNotFound(t, err, MsgSubtaskNotFound)

	_, err = svc.DeleteSubtask(ctx, sub.ID, bob)
	assertNotFound(t, err, MsgSubtaskNotFound)

	list, err := st.ListSubtasksByTask(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.False(t, list[0].Completed)
}

func TestTaskService_DeleteTaskRemovesSubtasks(t *testing.T) {
	svc, st := newTaskService()
	ctx := context.Background()
	task, err := svc.CreateTask(ctx, ann, TaskInput{Title: strPtr("parent")})
	require.NoError(t, err)
	sub, err := svc.CreateSubtask(ctx, task.ID, ann, SubtaskInput{Title: strPtr("child")})
	require.NoError(t, err)

	deleted, err := svc.DeleteTask(ctx, task.ID, ann)
	require.NoError(t, err)
	assert.Equal(t, task.ID, deleted.ID)

	_, err = svc.GetTask(ctx, task.ID, ann)
	assertNotFound(t, err, MsgTaskNotFound)
	_, err = st.GetSubtask(ctx, sub.ID)
	assert.Error(t, err)
}

func assertNotFound(t *testing.T, err error, msg string) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	assert.Equal(t, msg, apperr.PublicMessage(err))
}

// lookupCounter 统计 GetTask/GetSubtask 调用次数。
type lookupCounter struct {
	*memStore
	taskLookups    int
	subtaskLookups int
}

func (c *lookupCounter) GetTask(ctx context.Context, id uint) (*model.Task, error) {
	c.taskLookups++
	return c.memStore.GetTask(ctx, id)
}

func (c *lookupCounter) GetSubtask(ctx context.Context, id uint) (*model.Subtask, error) {
	c.subtaskLookups++
	return c.memStore.GetSubtask(ctx, id)
}

func TestTaskService_OwnedVariantsReuseLoadedRecord(t *testing.T) {
	st := &lookupCounter{memStore: newMemStore()}
	svc := NewTaskService(st, st, discardLogger())
	ctx := context.Background()

	task, err := svc.CreateTask(ctx, ann, TaskInput{Title: strPtr("parent")})
	require.NoError(t, err)

	st.taskLookups = 0
	owned, err := svc.Policy().AssertTaskOwnership(ctx, task.ID, ann)
	require.NoError(t, err)
	updated, err := svc.UpdateOwnedTask(ctx, owned, TaskInput{Status: strPtr(string(model.TaskStatusInProgress))})
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusInProgress, updated.Status)
	assert.Equal(t, "parent", updated.Title)
	assert.Equal(t, 1, st.taskLookups)

	st.taskLookups = 0
	sub, err := svc.CreateSubtaskUnder(ctx, owned, SubtaskInput{Title: strPtr("step")})
	require.NoError(t, err)
	assert.Equal(t, task.ID, sub.TaskID)
	assert.Equal(t, 0, st.taskLookups)

	st.taskLookups, st.subtaskLookups = 0, 0
	ownedSub, err := svc.Policy().AssertSubtaskOwnership(ctx, sub.ID, ann)
	require.NoError(t, err)
	done, err := svc.UpdateOwnedSubtask(ctx, ownedSub, SubtaskInput{Completed: boolPtr(true)})
	require.NoError(t, err)
	assert.True(t, done.Completed)
	assert.Equal(t, 1, st.subtaskLookups)
	assert.Equal(t, 1, st.taskLookups)

	// 校验仍然生效
	_, err = svc.UpdateOwnedTask(ctx, owned, TaskInput{Title: strPtr(" ")})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	got, err := svc.GetSubtask(ctx, sub.ID, ann)
	require.NoError(t, err)
	assert.True(t, got.Completed)
}
