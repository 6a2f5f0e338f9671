package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"taskhub/internal/model"
	"taskhub/internal/pkg/apperr"
	"taskhub/internal/store"
)

// TaskInput 是创建/更新任务的请求体。
// PUT 为部分更新：nil 字段保持原值。请求体中没有 owner 字段。
type TaskInput struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Status      *string    `json:"status"`
	Priority    *string    `json:"priority"`
	DueDate     *time.Time `json:"due_date"`
}

// SubtaskInput 是创建/更新子任务的请求体。
type SubtaskInput struct {
	Title     *string `json:"title"`
	Completed *bool   `json:"completed"`
}

// TaskService 负责任务与子任务的 CRUD，每个操作都先经过 OwnershipPolicy。
type TaskService struct {
	tasks    store.TaskStore
	subtasks store.SubtaskStore
	policy   *OwnershipPolicy
	logger   *slog.Logger
}

func NewTaskService(tasks store.TaskStore, subtasks store.SubtaskStore, logger *slog.Logger) *TaskService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskService{
		tasks:    tasks,
		subtasks: subtasks,
		policy:   NewOwnershipPolicy(tasks, subtasks),
		logger:   logger,
	}
}

// Policy exposes the ownership checks for callers outside the CRUD flow.
func (s *TaskService) Policy() *OwnershipPolicy {
	return s.policy
}

// ListTasks 只返回 userID 名下的任务，过滤在查询中完成。
func (s *TaskService) ListTasks(ctx context.Context, userID uint) ([]model.Task, error) {
	tasks, err := s.tasks.ListTasksByOwner(ctx, userID)
	if err != nil {
		return nil, apperr.Internal("list tasks", err)
	}
	return tasks, nil
}

func (s *TaskService) GetTask(ctx context.Context, taskID, userID uint) (*model.Task, error) {
	return s.policy.AssertTaskOwnership(ctx, taskID, userID)
}

// CreateTask 的 owner 始终来自认证上下文。
func (s *TaskService) CreateTask(ctx context.Context, userID uint, in TaskInput) (*model.Task, error) {
	task := &model.Task{
		UserID:   userID,
		Status:   model.TaskStatusPending,
		Priority: model.TaskPriorityMedium,
	}
	if err := applyTaskInput(task, in, true); err != nil {
		return nil, err
	}
	if err := s.tasks.CreateTask(ctx, task); err != nil {
		return nil, apperr.Internal("create task", err)
	}
	s.logger.Info("task created",
		slog.Uint64("task_id", uint64(task.ID)),
		slog.Uint64("user_id", uint64(userID)),
	)
	return task, nil
}

func (s *TaskService) UpdateTask(ctx context.Context, taskID, userID uint, in TaskInput) (*model.Task, error) {
	task, err := s.policy.AssertTaskOwnership(ctx, taskID, userID)
	if err != nil {
		return nil, err
	}
	return s.UpdateOwnedTask(ctx, task, in)
}

// UpdateOwnedTask 更新一个已通过 AssertTaskOwnership 加载的任务。
// 供先校验归属、再解析请求体的 handler 使用。
func (s *TaskService) UpdateOwnedTask(ctx context.Context, task *model.Task, in TaskInput) (*model.Task, error) {
	if err := applyTaskInput(task, in, false); err != nil {
		return nil, err
	}
	if err := s.tasks.UpdateTask(ctx, task); err != nil {
		return nil, apperr.Internal("update task", err)
	}
	return task, nil
}

// DeleteTask 删除任务及其子任务，返回被删除的任务。
func (s *TaskService) DeleteTask(ctx context.Context, taskID, userID uint) (*model.Task, error) {
	task, err := s.policy.AssertTaskOwnership(ctx, taskID, userID)
	if err != nil {
		return nil, err
	}
	if err := s.tasks.DeleteTask(ctx, task.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound(MsgTaskNotFound)
		}
		return nil, apperr.Internal("delete task", err)
	}
	s.logger.Info("task deleted",
		slog.Uint64("task_id", uint64(task.ID)),
		slog.Uint64("user_id", uint64(userID)),
	)
	return task, nil
}

func (s *TaskService) ListSubtasks(ctx context.Context, taskID, userID uint) ([]model.Subtask, error) {
	if _, err := s.policy.AssertTaskOwnership(ctx, taskID, userID); err != nil {
		return nil, err
	}
	subtasks, err := s.subtasks.ListSubtasksByTask(ctx, taskID)
	if err != nil {
		return nil, apperr.Internal("list subtasks", err)
	}
	return subtasks, nil
}

func (s *TaskService) CreateSubtask(ctx context.Context, taskID, userID uint, in SubtaskInput) (*model.Subtask, error) {
	task, err := s.policy.AssertTaskOwnership(ctx, taskID, userID)
	if err != nil {
		return nil, err
	}
	return s.CreateSubtaskUnder(ctx, task, in)
}

// CreateSubtaskUnder 在一个已通过归属校验的任务下创建子任务。
func (s *TaskService) CreateSubtaskUnder(ctx context.Context, task *model.Task, in SubtaskInput) (*model.Subtask, error) {
	subtask := &model.Subtask{TaskID: task.ID}
	if err := applySubtaskInput(subtask, in, true); err != nil {
		return nil, err
	}
	if err := s.subtasks.CreateSubtask(ctx, subtask); err != nil {
		return nil, apperr.Internal("create subtask", err)
	}
	return subtask, nil
}

func (s *TaskService) GetSubtask(ctx context.Context, subtaskID, userID uint) (*model.Subtask, error) {
	return s.policy.AssertSubtaskOwnership(ctx, subtaskID, userID)
}

func (s *TaskService) UpdateSubtask(ctx context.Context, subtaskID, userID uint, in SubtaskInput) (*model.Subtask, error) {
	subtask, err := s.policy.AssertSubtaskOwnership(ctx, subtaskID, userID)
	if err != nil {
		return nil, err
	}
	return s.UpdateOwnedSubtask(ctx, subtask, in)
}

// UpdateOwnedSubtask 更新一个已通过 AssertSubtaskOwnership 加载的子任务。
func (s *TaskService) UpdateOwnedSubtask(ctx context.Context, subtask *model.Subtask, in SubtaskInput) (*model.Subtask, error) {
	if err := applySubtaskInput(subtask, in, false); err != nil {
		return nil, err
	}
	if err := s.subtasks.UpdateSubtask(ctx, subtask); err != nil {
		return nil, apperr.Internal("update subtask", err)
	}
	return subtask, nil
}

func (s *TaskService) DeleteSubtask(ctx context.Context, subtaskID, userID uint) (*model.Subtask, error) {
	subtask, err := s.policy.AssertSubtaskOwnership(ctx, subtaskID, userID)
	if err != nil {
		return nil, err
	}
	if err := s.subtasks.DeleteSubtask(ctx, subtask.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound(MsgSubtaskNotFound)
		}
		return nil, apperr.Internal("delete subtask", err)
	}
	return subtask, nil
}

// applyTaskInput 校验并写入字段。create 为 true 时 title 必填。
func applyTaskInput(task *model.Task, in TaskInput, create bool) error {
	if in.Title != nil || create {
		if in.Title == nil || strings.TrimSpace(*in.Title) == "" {
			return apperr.Validation("Title is required")
		}
		title := strings.TrimSpace(*in.Title)
		if err := checkLength("Title", title, model.MaxTitleLength); err != nil {
			return err
		}
		task.Title = title
	}
	if in.Status != nil {
		status := model.TaskStatus(*in.Status)
		if !status.Valid() {
			return apperr.Validation("Status must be one of pending, in_progress, completed")
		}
		task.Status = status
	}
	if in.Priority != nil {
		priority := model.TaskPriority(*in.Priority)
		if !priority.Valid() {
			return apperr.Validation("Priority must be one of low, medium, high")
		}
		task.Priority = priority
	}
	if in.Description != nil {
		task.Description = *in.Description
	}
	if in.DueDate != nil {
		due := *in.DueDate
		task.DueDate = &due
	}
	return nil
}

func applySubtaskInput(subtask *model.Subtask, in SubtaskInput, create bool) error {
	if in.Title != nil || create {
		if in.Title == nil || strings.TrimSpace(*in.Title) == "" {
			return apperr.Validation("Title is required")
		}
		title := strings.TrimSpace(*in.Title)
		if err := checkLength("Title", title, model.MaxTitleLength); err != nil {
			return err
		}
		subtask.Title = title
	}
	if in.Completed != nil {
		subtask.Completed = *in.Completed
	}
	return nil
}

// checkLength 按字符数校验，与 varchar 的计数方式一致。
func checkLength(field, value string, max int) error {
	if utf8.RuneCountInString(value) > max {
		return apperr.Validation(fmt.Sprintf("%s must be at most %d characters", field, max))
	}
	return nil
}
