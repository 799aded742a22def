package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/SergeiKhy/link-registry/internal/kv"
	"go.uber.org/zap"
)

// Константы worker pool
const (
	defaultRepairWorkers = 2    // Количество воркеров
	defaultRepairBuffer  = 1000 // Размер буфера канала
	repairTimeout        = 5 * time.Second
)

// RepairJob перезапись значения с обновлённой metadata
type RepairJob struct {
	Key        string
	Value      []byte
	Metadata   json.RawMessage
	Expiration time.Time
}

// Repairer выполняет запись metadata по принципу best effort:
// ошибка никогда не возвращается вызывающему
type Repairer interface {
	Repair(ctx context.Context, job RepairJob)
}

// StoreRepairer пишет сразу, в том же запросе
type StoreRepairer struct {
	store  kv.Store
	logger *zap.Logger
}

func NewStoreRepairer(store kv.Store, logger *zap.Logger) *StoreRepairer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreRepairer{store: store, logger: logger}
}

func (r *StoreRepairer) Repair(ctx context.Context, job RepairJob) {
	writeRepair(ctx, r.store, r.logger, job)
}

func writeRepair(ctx context.Context, store kv.Store, logger *zap.Logger, job RepairJob) {
	err := store.Put(ctx, job.Key, job.Value, kv.PutOptions{
		Expiration: job.Expiration,
		Metadata:   job.Metadata,
	})
	if err != nil {
		logger.Debug("Metadata repair failed (ignored)", zap.String("key", job.Key), zap.Error(err))
		return
	}
	logger.Debug("Metadata repaired", zap.String("key", job.Key))
}

// RepairProcessor выполняет записи metadata в фоне, не задерживая листинг
type RepairProcessor struct {
	store       kv.Store
	logger      *zap.Logger
	jobs        chan RepairJob // Канал для задач
	workerCount int            // Количество воркеров
	wg          sync.WaitGroup // WaitGroup для ожидания завершения воркеров
	mu          sync.RWMutex
	stopped     bool
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewRepairProcessor создаёт процессор; workers <= 0 означает значение по умолчанию
func NewRepairProcessor(store kv.Store, workers int, logger *zap.Logger) *RepairProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if workers <= 0 {
		workers = defaultRepairWorkers
	}
	return &RepairProcessor{
		store:       store,
		logger:      logger,
		jobs:        make(chan RepairJob, defaultRepairBuffer),
		workerCount: workers,
	}
}

// Start запускает worker pool
func (p *RepairProcessor) Start() {
	p.ctx, p.cancel = context.WithCancel(context.Background())

	p.logger.Info("Запуск воркеров восстановления metadata", zap.Int("count", p.workerCount))

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop перестаёт принимать задачи, дожидается обработки очереди и
// останавливает воркеры
func (p *RepairProcessor) Stop() {
	p.logger.Info("Остановка процессора восстановления metadata...")

	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
	if p.cancel != nil {
		p.cancel()
	}
	p.logger.Info("Процессор восстановления metadata остановлен")
}

// worker обрабатывает задачи из канала до его закрытия
func (p *RepairProcessor) worker(id int) {
	defer p.wg.Done()

	p.logger.Debug("Воркер восстановления запущен", zap.Int("id", id))

	for job := range p.jobs {
		ctx, cancel := context.WithTimeout(p.ctx, repairTimeout)
		writeRepair(ctx, p.store, p.logger, job)
		cancel()
	}

	p.logger.Debug("Воркер восстановления остановлен", zap.Int("id", id))
}

// Repair ставит задачу в очередь (неблокирующая операция). Контекст запроса
// не используется: запись должна пережить его завершение.
func (p *RepairProcessor) Repair(_ context.Context, job RepairJob) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		p.logger.Debug("Процессор остановлен, восстановление пропущено", zap.String("key", job.Key))
		return
	}

	select {
	case p.jobs <- job:
	default:
		// Канал заполнен: листинг важнее, задачу теряем
		p.logger.Warn("Буфер восстановления metadata заполнен, задача потеряна",
			zap.String("key", job.Key),
		)
	}
}

// Stats возвращает состояние очереди для мониторинга
func (p *RepairProcessor) Stats() RepairStats {
	return RepairStats{
		BufferSize:  cap(p.jobs),
		BufferUsed:  len(p.jobs),
		WorkerCount: p.workerCount,
	}
}

// RepairStats статистика очереди worker pool
type RepairStats struct {
	BufferSize  int `json:"buffer_size"`  // Общая ёмкость канала
	BufferUsed  int `json:"buffer_used"`  // Текущее использование
	WorkerCount int `json:"worker_count"` // Количество воркеров
}
