package handlers

import (
	"sort"
	"sync"

	"pdf-replacer/models"
	"pdf-replacer/pipeline"
)

// taskEntry 任务及其处理报告
type taskEntry struct {
	task   *models.ReplaceTask
	report *pipeline.Report
}

// TaskManager 管理所有会话的任务
type TaskManager struct {
	// sessionID -> taskID -> task
	userTasks map[string]map[string]*taskEntry
	mu        sync.RWMutex
}

// NewTaskManager 创建任务管理器
func NewTaskManager() *TaskManager {
	return &TaskManager{userTasks: make(map[string]map[string]*taskEntry)}
}

// AddTask 为会话添加任务
func (tm *TaskManager) AddTask(sessionID string, task *models.ReplaceTask) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.userTasks[sessionID] == nil {
		tm.userTasks[sessionID] = make(map[string]*taskEntry)
	}
	tm.userTasks[sessionID][task.ID] = &taskEntry{task: task}
}

// GetTask 获取会话的任务快照
func (tm *TaskManager) GetTask(sessionID, taskID string) (models.ReplaceTask, bool) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	if entry, ok := tm.userTasks[sessionID][taskID]; ok {
		return *entry.task, true
	}
	return models.ReplaceTask{}, false
}

// GetReport 获取已完成任务的报告
func (tm *TaskManager) GetReport(sessionID, taskID string) (*pipeline.Report, bool) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	entry, ok := tm.userTasks[sessionID][taskID]
	if !ok || entry.report == nil {
		return nil, false
	}
	return entry.report, true
}

// GetUserTasks 获取会话的所有任务，按创建时间排序
func (tm *TaskManager) GetUserTasks(sessionID string) []models.ReplaceTask {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	tasks := make([]models.ReplaceTask, 0, len(tm.userTasks[sessionID]))
	for _, entry := range tm.userTasks[sessionID] {
		tasks = append(tasks, *entry.task)
	}
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
	return tasks
}

// UpdateTask 更新任务（用于更新进度等）
func (tm *TaskManager) UpdateTask(sessionID, taskID string, updateFn func(*models.ReplaceTask)) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if entry, ok := tm.userTasks[sessionID][taskID]; ok {
		updateFn(entry.task)
	}
}

// setReport 保存处理报告
func (tm *TaskManager) setReport(sessionID, taskID string, report *pipeline.Report) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if entry, ok := tm.userTasks[sessionID][taskID]; ok {
		entry.report = report
	}
}

// RemoveSession 删除会话的全部任务，返回被删除的任务数
func (tm *TaskManager) RemoveSession(sessionID string) int {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	n := len(tm.userTasks[sessionID])
	delete(tm.userTasks, sessionID)
	return n
}
