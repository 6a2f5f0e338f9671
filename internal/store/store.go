// Package store declares the data-access capabilities the services depend on.
package store

import (
	"context"
	"errors"

	"taskhub/internal/model"
)

var (
	// ErrNotFound is returned when a looked-up record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique constraint rejects a write.
	ErrDuplicate = errors.New("duplicate record")
)

// UserStore 提供用户的查询与创建。
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByID(ctx context.Context, id uint) (*model.User, error)
	Create(ctx context.Context, user *model.User) error
}

// TaskStore 提供任务的持久化操作。所有权校验不在这一层完成。
type TaskStore interface {
	GetTask(ctx context.Context, id uint) (*model.Task, error)
	ListTasksByOwner(ctx context.Context, userID uint) ([]model.Task, error)
	CreateTask(ctx context.Context, task *model.Task) error
	UpdateTask(ctx context.Context, task *model.Task) error
	// DeleteTask 删除任务及其全部子任务。
	DeleteTask(ctx context.Context, id uint) error
}

// SubtaskStore 提供子任务的持久化操作。
type SubtaskStore interface {
	GetSubtask(ctx context.Context, id uint) (*model.Subtask, error)
	ListSubtasksByTask(ctx context.Context, taskID uint) ([]model.Subtask, error)
	CreateSubtask(ctx context.Context, subtask *model.Subtask) error
	UpdateSubtask(ctx context.Context, subtask *model.Subtask) error
	DeleteSubtask(ctx context.Context, id uint) error
}
