package model

import (
	"time"
)

// TaskStatus 任务状态。
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
)

// Valid 判断状态值是否合法。
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted:
		return true
	}
	return false
}

// TaskPriority 任务优先级。
type TaskPriority string

const (
	TaskPriorityLow    TaskPriority = "low"
	TaskPriorityMedium TaskPriority = "medium"
	TaskPriorityHigh   TaskPriority = "high"
)

// Valid 判断优先级是否合法。
func (p TaskPriority) Valid() bool {
	switch p {
	case TaskPriorityLow, TaskPriorityMedium, TaskPriorityHigh:
		return true
	}
	return false
}

// MaxTitleLength 是任务与子任务标题的字符数上限（varchar(200)）。
const MaxTitleLength = 200

// Task 表示一个用户任务。
//
// UserID 在创建后不可变更；任务只属于一个用户。
type Task struct {
	ID        uint      `gorm:"primaryKey" json:"id"` // 任务唯一标识
	CreatedAt time.Time `json:"created_at"`           // 创建时间
	UpdatedAt time.Time `json:"updated_at"`           // 更新时间

	UserID      uint         `gorm:"not null;index" json:"user_id"`                    // 所属用户 ID
	Title       string       `gorm:"type:varchar(200);not null" json:"title"`          // 标题
	Description string       `gorm:"type:text" json:"description"`                     // 描述
	Status      TaskStatus   `gorm:"type:varchar(16);default:pending" json:"status"`   // 状态
	Priority    TaskPriority `gorm:"type:varchar(16);default:medium" json:"priority"` // 优先级
	DueDate     *time.Time   `json:"due_date"`                                         // 截止时间（可选）

	Subtasks []Subtask `gorm:"foreignKey:TaskID" json:"-"`
}

// Subtask 表示任务下的子任务。
//
// 子任务没有独立的所有者，其归属由父任务的 UserID 决定。
type Subtask struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	TaskID    uint   `gorm:"not null;index" json:"task_id"`           // 父任务 ID（不可变更）
	Title     string `gorm:"type:varchar(200);not null" json:"title"` // 标题
	Completed bool   `gorm:"default:false" json:"completed"`          // 是否完成
}
