package bot

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// Orchestrator запускает драйверы аккаунтов независимыми горутинами
// и ждёт завершения всех. Аккаунты не делят состояние: фатальная
// ошибка или паника одного не трогает остальных.
type Orchestrator struct {
	drivers []*Driver
	logger  *zap.Logger
}

// NewOrchestrator создаёт оркестратор
func NewOrchestrator(logger *zap.Logger) *Orchestrator {
	return &Orchestrator{logger: logger}
}

// Add регистрирует драйвер аккаунта
func (o *Orchestrator) Add(d *Driver) {
	o.drivers = append(o.drivers, d)
}

// Run запускает все драйверы и блокируется до их завершения
func (o *Orchestrator) Run(ctx context.Context) {
	o.logger.Info("starting account loops", zap.Int("accounts", len(o.drivers)))

	var wg sync.WaitGroup
	for _, d := range o.drivers {
		wg.Add(1)
		go func(d *Driver) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					o.logger.Error("account loop panicked",
						zap.String("account", d.account.Name),
						zap.Any("panic", r))
				}
			}()

			err := d.Run(ctx)
			switch {
			case err == nil:
				o.logger.Info("account loop completed",
					zap.String("account", d.account.Name))
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				o.logger.Info("account loop cancelled",
					zap.String("account", d.account.Name))
			default:
				o.logger.Error("account loop stopped with error",
					zap.String("account", d.account.Name),
					zap.Error(err))
			}
		}(d)
	}

	wg.Wait()
	o.logger.Info("all account loops finished")
}
