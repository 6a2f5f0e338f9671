package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"taskhub/internal/model"
	"taskhub/internal/store"
)

// memStore 是测试用的内存存储，实现 UserStore/TaskStore/SubtaskStore。
type memStore struct {
	mu       sync.Mutex
	nextID   uint
	users    map[uint]model.User
	tasks    map[uint]model.Task
	subtasks map[uint]model.Subtask
	failWith error
}

func newMemStore() *memStore {
	return &memStore{
		users:    make(map[uint]model.User),
		tasks:    make(map[uint]model.Task),
		subtasks: make(map[uint]model.Subtask),
	}
}

func (m *memStore) id() uint {
	m.nextID++
	return m.nextID
}

func (m *memStore) FindByEmail(_ context.Context, email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	for _, u := range m.users {
		if u.Email == email {
			u := u
			return &u, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) FindByID(_ context.Context, id uint) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (m *memStore) Create(_ context.Context, user *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == user.Email {
			return store.ErrDuplicate
		}
	}
	user.ID = m.id()
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	m.users[user.ID] = *user
	return nil
}

func (m *memStore) GetTask(_ context.Context, id uint) (*model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	t, ok := m.tasks[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &t, nil
}

func (m *memStore) ListTasksByOwner(_ context.Context, userID uint) ([]model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Task{}
	for _, t := range m.tasks {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memStore) CreateTask(_ context.Context, task *model.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	task.ID = m.id()
	m.tasks[task.ID] = *task
	return nil
}

func (m *memStore) UpdateTask(_ context.Context, task *model.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.tasks[task.ID]
	if !ok {
		return store.ErrNotFound
	}
	updated := *task
	updated.UserID = old.UserID
	m.tasks[task.ID] = updated
	return nil
}

func (m *memStore) DeleteTask(_ context.Context, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[id]; !ok {
		return store.ErrNotFound
	}
	for sid, s := range m.subtasks {
		if s.TaskID == id {
			delete(m.subtasks, sid)
		}
	}
	delete(m.tasks, id)
	return nil
}

func (m *memStore) GetSubtask(_ context.Context, id uint) (*model.Subtask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subtasks[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &s, nil
}

func (m *memStore) ListSubtasksByTask(_ context.Context, taskID uint) ([]model.Subtask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Subtask{}
	for _, s := range m.subtasks {
		if s.TaskID == taskID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) CreateSubtask(_ context.Context, subtask *model.Subtask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	subtask.ID = m.id()
	m.subtasks[subtask.ID] = *subtask
	return nil
}

func (m *memStore) UpdateSubtask(_ context.Context, subtask *model.Subtask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.subtasks[subtask.ID]
	if !ok {
		return store.ErrNotFound
	}
	updated := *subtask
	updated.TaskID = old.TaskID
	m.subtasks[subtask.ID] = updated
	return nil
}

func (m *memStore) DeleteSubtask(_ context.Context, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subtasks[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.subtasks, id)
	return nil
}
