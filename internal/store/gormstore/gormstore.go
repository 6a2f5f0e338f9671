// Package gormstore implements the store interfaces on gorm.
package gormstore

import (
	"context"
	"errors"
	"fmt"

	"taskhub/internal/model"
	"taskhub/internal/store"

	"github.com/glebarez/sqlite"
	mysqlerr "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// Store 同时实现 UserStore、TaskStore 与 SubtaskStore。
type Store struct {
	db *gorm.DB
}

var (
	_ store.UserStore    = (*Store)(nil)
	_ store.TaskStore    = (*Store)(nil)
	_ store.SubtaskStore = (*Store)(nil)
)

// Open 根据驱动名打开数据库连接并执行自动迁移。
//
// 参数:
//
//	driver: mysql / sqlite
//	dsn: 数据库连接字符串
func Open(driver, dsn string) (*Store, error) {
	var dialector gorm.Dialector
	switch driver {
	case "mysql":
		dialector = mysql.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormLogger.Default.LogMode(gormLogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if driver == "sqlite" {
		// sqlite 单写者；单连接同时保证 :memory: 库与 PRAGMA 在所有查询间共享
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("sqlite pool: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
		if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
			return nil, fmt.Errorf("enable foreign keys: %w", err)
		}
	}
	if err := db.AutoMigrate(&model.User{}, &model.Task{}, &model.Subtask{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	if driver == "mysql" {
		if err := ensureEmailCollation(db); err != nil {
			return nil, err
		}
	}
	return &Store{db: db}, nil
}

// emailCollation 让 MySQL 上的邮箱比较与唯一索引区分大小写。
// 默认的 utf8mb4_0900_ai_ci 不区分大小写，sqlite 的默认 BINARY 比较本来就区分。
const emailCollation = "utf8mb4_bin"

// ensureEmailCollation 在 users.email 不是二进制排序规则时修改列定义。
func ensureEmailCollation(db *gorm.DB) error {
	var current string
	err := db.Raw(`SELECT COALESCE(COLLATION_NAME, '') FROM information_schema.COLUMNS
		WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = 'users' AND COLUMN_NAME = 'email'`).Scan(&current).Error
	if err != nil {
		return fmt.Errorf("read email collation: %w", err)
	}
	if current == emailCollation {
		return nil
	}
	stmt := fmt.Sprintf("ALTER TABLE users MODIFY email varchar(%d) CHARACTER SET utf8mb4 COLLATE %s NOT NULL", model.MaxEmailLength, emailCollation)
	if err := db.Exec(stmt).Error; err != nil {
		return fmt.Errorf("set email collation: %w", err)
	}
	return nil
}

// Ping 检查数据库连通性。
func (s *Store) Ping(ctx context.Context) error {
	var one int
	return s.db.WithContext(ctx).Raw("SELECT 1").Scan(&one).Error
}

// Close 关闭底层连接池。
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// FindByEmail 精确匹配邮箱（区分大小写）。列排序规则不区分大小写时，
// 命中的行也必须与 email 完全相同。
func (s *Store) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, translate(err, "find user by email")
	}
	if user.Email != email {
		return nil, store.ErrNotFound
	}
	return &user, nil
}

func (s *Store) FindByID(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, translate(err, "find user by id")
	}
	return &user, nil
}

func (s *Store) Create(ctx context.Context, user *model.User) error {
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return translate(err, "create user")
	}
	return nil
}

func (s *Store) GetTask(ctx context.Context, id uint) (*model.Task, error) {
	var task model.Task
	if err := s.db.WithContext(ctx).First(&task, id).Error; err != nil {
		return nil, translate(err, "get task")
	}
	return &task, nil
}

// ListTasksByOwner 返回用户的全部任务，按 ID 倒序。
func (s *Store) ListTasksByOwner(ctx context.Context, userID uint) ([]model.Task, error) {
	tasks := []model.Task{} // 保证 JSON 为 [] 而不是 null
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		Find(&tasks).Error; err != nil {
		return nil, translate(err, "list tasks")
	}
	return tasks, nil
}

func (s *Store) CreateTask(ctx context.Context, task *model.Task) error {
	if err := s.db.WithContext(ctx).Create(task).Error; err != nil {
		return translate(err, "create task")
	}
	return nil
}

// UpdateTask 保存可变字段。user_id 不在更新列表中。
func (s *Store) UpdateTask(ctx context.Context, task *model.Task) error {
	res := s.db.WithContext(ctx).Model(task).
		Select("title", "description", "status", "priority", "due_date", "updated_at").
		Updates(task)
	if res.Error != nil {
		return translate(res.Error, "update task")
	}
	return nil
}

func (s *Store) DeleteTask(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("task_id = ?", id).Delete(&model.Subtask{}).Error; err != nil {
			return translate(err, "delete subtasks")
		}
		res := tx.Delete(&model.Task{}, id)
		if res.Error != nil {
			return translate(res.Error, "delete task")
		}
		if res.RowsAffected == 0 {
			return store.ErrNotFound
		}
		return nil
	})
}

func (s *Store) GetSubtask(ctx context.Context, id uint) (*model.Subtask, error) {
	var subtask model.Subtask
	if err := s.db.WithContext(ctx).First(&subtask, id).Error; err != nil {
		return nil, translate(err, "get subtask")
	}
	return &subtask, nil
}

// ListSubtasksByTask 返回任务的子任务，按 ID 正序。
func (s *Store) ListSubtasksByTask(ctx context.Context, taskID uint) ([]model.Subtask, error) {
	subtasks := []model.Subtask{}
	if err := s.db.WithContext(ctx).
		Where("task_id = ?", taskID).
		Order("id ASC").
		Find(&subtasks).Error; err != nil {
		return nil, translate(err, "list subtasks")
	}
	return subtasks, nil
}

func (s *Store) CreateSubtask(ctx context.Context, subtask *model.Subtask) error {
	if err := s.db.WithContext(ctx).Create(subtask).Error; err != nil {
		return translate(err, "create subtask")
	}
	return nil
}

// UpdateSubtask 保存可变字段。task_id 不在更新列表中。
func (s *Store) UpdateSubtask(ctx context.Context, subtask *model.Subtask) error {
	res := s.db.WithContext(ctx).Model(subtask).
		Select("title", "completed", "updated_at").
		Updates(subtask)
	if res.Error != nil {
		return translate(res.Error, "update subtask")
	}
	return nil
}

func (s *Store) DeleteSubtask(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&model.Subtask{}, id)
	if res.Error != nil {
		return translate(res.Error, "delete subtask")
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// translate 将驱动错误归一为 store 包的哨兵错误。
func translate(err error, op string) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return store.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%s: %w", op, store.ErrDuplicate)
	}
	var myErr *mysqlerr.MySQLError
	if errors.As(err, &myErr) && myErr.Number == 1062 {
		return fmt.Errorf("%s: %w", op, store.ErrDuplicate)
	}
	return fmt.Errorf("%s: %w", op, err)
}
