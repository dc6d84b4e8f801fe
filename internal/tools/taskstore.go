package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"taskpilot/internal/domain/decision"
	"taskpilot/pkg/errors"
)

// Task is one entry in the in-memory task store.
type Task struct {
	ID          string    `json:"task_id"`
	UserID      string    `json:"-"`
	Description string    `json:"description"`
	DueDate     string    `json:"due_date,omitempty"`
	Completed   bool      `json:"completed"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TaskStore is an in-memory per-user task backend for the task tools.
type TaskStore struct {
	mu    sync.RWMutex
	tasks map[string]*Task
	seq   int
}

// NewTaskStore creates an empty task store.
func NewTaskStore() *TaskStore {
	return &TaskStore{tasks: make(map[string]*Task)}
}

// RegisterTaskTools wires the five task tools into the registry,
// backed by the given store.
func RegisterTaskTools(registry *Registry, store *TaskStore) {
	registry.Register(string(decision.ToolAddTask),
		New(string(decision.ToolAddTask), "Create a new task", store.addTask))
	registry.Register(string(decision.ToolListTasks),
		New(string(decision.ToolListTasks), "List the user's tasks", store.listTasks))
	registry.Register(string(decision.ToolUpdateTask),
		New(string(decision.ToolUpdateTask), "Update a task description", store.updateTask))
	registry.Register(string(decision.ToolCompleteTask),
		New(string(decision.ToolCompleteTask), "Mark a task as completed", store.completeTask))
	registry.Register(string(decision.ToolDeleteTask),
		New(string(decision.ToolDeleteTask), "Delete a task permanently", store.deleteTask))
}

func (s *TaskStore) addTask(_ context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	userID, _ := args["user_id"].(string)
	description, _ := args["description"].(string)
	dueDate, _ := args["due_date"].(string)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	now := time.Now().UTC()
	task := &Task{
		ID:          fmt.Sprintf("task-%d", s.seq),
		UserID:      userID,
		Description: description,
		DueDate:     dueDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.tasks[task.ID] = task

	return taskPayload(task), nil
}

func (s *TaskStore) listTasks(_ context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	userID, _ := args["user_id"].(string)
	status, _ := args["status"].(string)
	if status == "" {
		status = "pending"
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var tasks []*Task
	for _, task := range s.tasks {
		if task.UserID != userID {
			continue
		}
		switch status {
		case "pending":
			if task.Completed {
				continue
			}
		case "completed":
			if !task.Completed {
				continue
			}
		}
		tasks = append(tasks, task)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].CreatedAt.Before(tasks[j].CreatedAt) })

	items := make([]map[string]interface{}, 0, len(tasks))
	for _, task := range tasks {
		items = append(items, taskPayload(task))
	}

	return map[string]interface{}{
		"tasks": items,
		"count": len(items),
	}, nil
}

func (s *TaskStore) updateTask(_ context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	description, _ := args["description"].(string)

	s.mu.Lock()
	defer s.mu.Unlock()

	task, err := s.lookup(args)
	if err != nil {
		return nil, err
	}
	task.Description = description
	task.UpdatedAt = time.Now().UTC()

	return taskPayload(task), nil
}

func (s *TaskStore) completeTask(_ context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, err := s.lookup(args)
	if err != nil {
		return nil, err
	}
	task.Completed = true
	task.UpdatedAt = time.Now().UTC()

	return taskPayload(task), nil
}

func (s *TaskStore) deleteTask(_ context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, err := s.lookup(args)
	if err != nil {
		return nil, err
	}
	delete(s.tasks, task.ID)

	return map[string]interface{}{
		"task_id": task.ID,
		"deleted": true,
	}, nil
}

// lookup resolves a task by id scoped to the calling user. Callers
// must hold the lock.
func (s *TaskStore) lookup(args map[string]interface{}) (*Task, error) {
	taskID, _ := args["task_id"].(string)
	userID, _ := args["user_id"].(string)

	task, ok := s.tasks[taskID]
	if !ok || task.UserID != userID {
		return nil, errors.Wrapf(errors.ErrNotFound, "task %s not found", taskID)
	}
	return task, nil
}

func taskPayload(task *Task) map[string]interface{} {
	payload := map[string]interface{}{
		"task_id":     task.ID,
		"description": task.Description,
		"completed":   task.Completed,
	}
	if task.DueDate != "" {
		payload["due_date"] = task.DueDate
	}
	return payload
}
