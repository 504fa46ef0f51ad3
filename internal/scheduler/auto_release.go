package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/ignatzorin/escrow-backend/internal/goroutine"
	"github.com/ignatzorin/escrow-backend/internal/logger"
)

// AutoReleaser выполняет один прогон автовыплат.
type AutoReleaser interface {
	RunAutoReleaseScan(ctx context.Context, batchSize int) (int, error)
}

// AutoReleaseScheduler периодически запускает сканер автовыплат.
// Прогоны не накладываются: если предыдущий ещё идёт, очередной тик
// пропускается. Тот же RunOnce доступен арбитражу через админ-ручку.
type AutoReleaseScheduler struct {
	releases  AutoReleaser
	interval  time.Duration
	batchSize int

	mu sync.Mutex
}

func NewAutoReleaseScheduler(releases AutoReleaser, interval time.Duration, batchSize int) *AutoReleaseScheduler {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &AutoReleaseScheduler{releases: releases, interval: interval, batchSize: batchSize}
}

// Start запускает фоновый цикл; останавливается отменой контекста.
func (s *AutoReleaseScheduler) Start(ctx context.Context) {
	goroutine.SafeGoWithContext(ctx, s.loop)
}

func (s *AutoReleaseScheduler) loop(ctx context.Context) {
	logger.Log.WithField("interval", s.interval.String()).Info("Сканер автовыплат запущен")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Log.Info("Сканер автовыплат остановлен")
			return
		case <-ticker.C:
			s.runTick(ctx)
		}
	}
}

func (s *AutoReleaseScheduler) runTick(ctx context.Context) {
	released, err := s.RunOnce(ctx)
	if err != nil {
		logger.Log.WithError(err).Error("Прогон автовыплат завершился с ошибкой")
		return
	}
	if released > 0 {
		logger.Log.WithField("released", released).Info("Автовыплаты выполнены")
	}
}

// RunOnce выполняет один прогон. Параллельный вызов ждёт завершения
// текущего: по одной вехе и так не может пройти двух выплат, но лишняя
// работа ни к чему.
func (s *AutoReleaseScheduler) RunOnce(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.releases.RunAutoReleaseScan(ctx, s.batchSize)
}
