package service

import (
	"context"
	"errors"

	"taskhub/internal/model"
	"taskhub/internal/pkg/apperr"
	"taskhub/internal/store"
)

const (
	MsgTaskNotFound    = "Task not found"
	MsgSubtaskNotFound = "Subtask not found"
)

// OwnershipPolicy 判断任务/子任务是否属于当前用户。
// 不存在与不属于当前用户返回同一个 NotFound，调用方无法区分。
type OwnershipPolicy struct {
	tasks    store.TaskStore
	subtasks store.SubtaskStore
}

func NewOwnershipPolicy(tasks store.TaskStore, subtasks store.SubtaskStore) *OwnershipPolicy {
	return &OwnershipPolicy{tasks: tasks, subtasks: subtasks}
}

// AssertTaskOwnership 返回属于 userID 的任务。
func (p *OwnershipPolicy) AssertTaskOwnership(ctx context.Context, taskID, userID uint) (*model.Task, error) {
	task, err := p.tasks.GetTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound(MsgTaskNotFound)
		}
		return nil, apperr.Internal("load task", err)
	}
	if task.UserID != userID {
		return nil, apperr.NotFound(MsgTaskNotFound)
	}
	return task, nil
}

// AssertSubtaskOwnership 先加载子任务，再校验父任务的归属。
func (p *OwnershipPolicy) AssertSubtaskOwnership(ctx context.Context, subtaskID, userID uint) (*model.Subtask, error) {
	subtask, err := p.subtasks.GetSubtask(ctx, subtaskID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound(MsgSubtaskNotFound)
		}
		return nil, apperr.Internal("load subtask", err)
	}
	if _, err := p.AssertTaskOwnership(ctx, subtask.TaskID, userID); err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return nil, apperr.NotFound(MsgSubtaskNotFound)
		}
		return nil, err
	}
	return subtask, nil
}
