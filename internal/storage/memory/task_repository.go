package memory

import (
	"sort"
	"sync"

	"github.com/galpao/wms/internal/domain"
)

// stageOrder fixes the listing order of a fulfillment chain.
var stageOrder = map[domain.TaskType]int{
	domain.TaskTypePicking:  0,
	domain.TaskTypePacking:  1,
	domain.TaskTypeShipping: 2,
}

type taskRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Task
}

// NewTaskRepository returns an in-memory TaskRepository.
func NewTaskRepository() domain.TaskRepository {
	return &taskRepositoryInMemory{items: make(map[string]domain.Task)}
}

func (r *taskRepositoryInMemory) CreateBatch(tasks []domain.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, task := range tasks {
		if _, exists := r.items[task.ID]; exists {
			return domain.ErrOrderAlreadyExists
		}
	}
	for _, task := range tasks {
		r.items[task.ID] = cloneTask(task)
	}
	return nil
}

func (r *taskRepositoryInMemory) Get(id string) (domain.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	task, ok := r.items[id]
	if !ok {
		return domain.Task{}, domain.ErrTaskNotFound
	}
	return cloneTask(task), nil
}

func (r *taskRepositoryInMemory) ListByOrder(orderID string) ([]domain.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Task, 0, 3)
	for _, task := range r.items {
		if task.OrderID == orderID {
			result = append(result, cloneTask(task))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return stageOrder[result[i].Type] < stageOrder[result[j].Type]
	})
	return result, nil
}

func (r *taskRepositoryInMemory) Save(task domain.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[task.ID]; !ok {
		return domain.ErrTaskNotFound
	}
	r.items[task.ID] = cloneTask(task)
	return nil
}

func cloneTask(src domain.Task) domain.Task {
	dst := src
	dst.Lines = domain.CloneLines(src.Lines)
	return dst
}

var _ domain.TaskRepository = (*taskRepositoryInMemory)(nil)
