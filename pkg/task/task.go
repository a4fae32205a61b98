package task

import (
	"sort"
	"sync"
)

// Task is a message that still waits for acknowledgements.
type Task struct {
	Id      string
	Payload []byte
	Waiting []string
}

// TaskManager tracks, per message id, the peers that have not acknowledged it.
type TaskManager struct {
	mu           sync.Mutex
	taskQueue    map[string]*entry
	taskComplete int
	taskStarted  int
}

type entry struct {
	payload []byte
	waiting map[string]struct{}
}

func Init() *TaskManager {
	return &TaskManager{
		taskQueue: make(map[string]*entry),
	}
}

// AddTask starts tracking id until every peer acknowledges it. A task with no
// peers is complete right away.
func (t *TaskManager) AddTask(id string, payload []byte, peers []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.taskStarted += 1
	if len(peers) == 0 {
		t.taskComplete += 1
		return
	}

	waiting := make(map[string]struct{}, len(peers))
	for _, p := range peers {
		waiting[p] = struct{}{}
	}
	t.taskQueue[id] = &entry{payload: payload, waiting: waiting}
}

// Ack records that peer has the message. Returns true if this ack completed it.
func (t *TaskManager) Ack(id string, peer string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.taskQueue[id]
	if !ok {
		return false
	}

	delete(e.waiting, peer)
	if len(e.waiting) == 0 {
		t.taskComplete += 1
		delete(t.taskQueue, id)
		return true
	}

	return false
}

// Outstanding returns a copy of every unfinished task, ordered by id.
func (t *TaskManager) Outstanding() []Task {
	t.mu.Lock()
	defer t.mu.Unlock()

	tasks := make([]Task, 0, len(t.taskQueue))
	for id, e := range t.taskQueue {
		waiting := make([]string, 0, len(e.waiting))
		for p := range e.waiting {
			waiting = append(waiting, p)
		}
		sort.Strings(waiting)
		tasks = append(tasks, Task{Id: id, Payload: e.payload, Waiting: waiting})
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Id < tasks[j].Id })

	return tasks
}

// Stats returns how many tasks were started and how many completed.
func (t *TaskManager) Stats() (started int, complete int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.taskStarted, t.taskComplete
}
