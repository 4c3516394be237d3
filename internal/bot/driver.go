package bot

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/chikanoff/arkham-volume-bot/internal/config"
	"github.com/chikanoff/arkham-volume-bot/internal/exchange"
	"github.com/chikanoff/arkham-volume-bot/internal/models"
	"github.com/chikanoff/arkham-volume-bot/pkg/retry"
)

// Driver гоняет цикл накрутки объёма для одного аккаунта.
//
// Цикл: сверить объём с целью; при достижении - завершиться;
// иначе открыть позицию (если открытой записи нет) или сопроводить
// существующую; выдержать случайную паузу и повторить.
// Сетевые ошибки поглощаются с растущей задержкой, цикл живёт
// до цели. Фатальны только сбои хранилища.
type Driver struct {
	account   models.Account
	cfg       config.BotConfig
	store     Store
	client    exchange.Client
	opener    *Opener
	watcher   *Watcher
	evaluator *Evaluator
	pacer     Pacer
	backoff   retry.Config
	logger    *zap.Logger

	state string
}

// NewDriver собирает драйвер аккаунта. Целевые объёмы из файла
// аккаунтов переопределяют глобальные.
func NewDriver(account models.Account, cfg config.BotConfig, store Store, client exchange.Client, rules []models.SymbolRule, logger *zap.Logger) *Driver {
	if account.SpotTargetVolume > 0 {
		cfg.SpotTargetVolume = account.SpotTargetVolume
	}
	if account.PerpTargetVolume > 0 {
		cfg.PerpTargetVolume = account.PerpTargetVolume
	}

	ruleMap := make(map[string]models.SymbolRule, len(rules))
	for _, r := range rules {
		ruleMap[r.Symbol] = r
	}

	accountID := account.AccountID()
	log := logger.With(zap.String("account", account.Name))

	return &Driver{
		account:   account,
		cfg:       cfg,
		store:     store,
		client:    client,
		opener:    NewOpener(store, client, cfg, rules, accountID, log),
		watcher:   NewWatcher(store, client, cfg, ruleMap, accountID, log),
		evaluator: NewEvaluator(store, client, cfg, ruleMap, accountID, log),
		pacer:     NewUniformPacer(cfg.PacingMin, cfg.PacingMax),
		backoff:   retry.CycleConfig(cfg.ErrorRetryDelay),
		logger:    log,
		state:     models.StateIdle,
	}
}

// SetPacer подменяет политику пауз (используется в тестах)
func (d *Driver) SetPacer(p Pacer) {
	d.pacer = p
}

// State возвращает текущее состояние драйвера
func (d *Driver) State() string {
	return d.state
}

// transition переводит драйвер в новое состояние
func (d *Driver) transition(to string) {
	if !CanTransition(d.state, to) {
		d.logger.Error("invalid state transition",
			zap.String("from", d.state),
			zap.String("to", to))
		return
	}

	UpdateDriverState(d.account.AccountID(), d.state, to)
	d.logger.Debug("state transition",
		zap.String("from", d.state),
		zap.String("to", to))
	d.state = to
}

// Run выполняет цикл до достижения цели или отмены контекста.
// Возвращает nil при достигнутой цели.
func (d *Driver) Run(ctx context.Context) error {
	d.logger.Info("account loop started",
		zap.Float64("target_volume", d.cfg.TargetVolume()),
		zap.Bool("perpetual", d.cfg.IsPerpetual))

	failures := 0

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		CyclesTotal.WithLabelValues(d.account.AccountID()).Inc()

		d.transition(models.StateCheckingVolume)

		reached, err := d.checkVolume(ctx)
		if err != nil {
			failures++
			if aerr := d.absorb(ctx, "volume_check", err, failures); aerr != nil {
				return aerr
			}
			continue
		}

		if reached {
			d.transition(models.StateDone)
			d.logger.Info("target volume reached, loop finished")
			return nil
		}

		if err := d.step(ctx); err != nil {
			failures++
			if aerr := d.absorb(ctx, stageOf(d.state), err, failures); aerr != nil {
				return aerr
			}
			continue
		}
		failures = 0

		d.transition(models.StatePacing)
		if err := sleepCtx(ctx, d.pacer.Next()); err != nil {
			return err
		}
	}
}

// step выполняет содержательную часть цикла: открытие или сопровождение
func (d *Driver) step(ctx context.Context) error {
	count, err := d.store.CountOpen(d.account.AccountID())
	if err != nil {
		return wrapStore(err)
	}

	if count == 0 {
		d.transition(models.StateOpening)

		rec, err := d.opener.Open(ctx)
		if err != nil {
			return err
		}

		// Лимитный вход дожидается исполнения до следующего цикла
		if d.cfg.OrderStyle == "limit" {
			if _, err := d.watcher.Wait(ctx, rec); err != nil {
				return err
			}
		}
		return nil
	}

	d.transition(models.StateManaging)
	return d.evaluator.EvaluateAll(ctx)
}

// checkVolume сверяет накопленный объём с целью активного режима
func (d *Driver) checkVolume(ctx context.Context) (bool, error) {
	stats, err := d.client.GetTradingVolume(ctx)
	if err != nil {
		return false, err
	}

	UpdateVolume(d.account.AccountID(), stats.SpotVolume, stats.PerpVolume)

	volume := stats.Volume(d.cfg.IsPerpetual)
	target := d.cfg.TargetVolume()

	d.logger.Info("volume progress",
		zap.Float64("volume", volume),
		zap.Float64("target", target))

	return volume >= target, nil
}

// absorb обрабатывает ошибку цикла: фатальные и отмена контекста
// всплывают, остальные гасятся паузой с растущей задержкой
func (d *Driver) absorb(ctx context.Context, stage string, err error, failures int) error {
	if IsFatal(err) {
		d.logger.Error("fatal store error, stopping account loop",
			zap.String("stage", stage),
			zap.Error(err))
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	RecordCycleError(d.account.AccountID(), stage)

	delay := d.backoff.Delay(failures)
	d.logger.Warn("cycle error, backing off",
		zap.String("stage", stage),
		zap.Int("consecutive_failures", failures),
		zap.Duration("delay", delay),
		zap.Error(err))

	d.transition(models.StatePacing)
	return sleepCtx(ctx, delay)
}

// stageOf переводит состояние драйвера в метку стадии для метрик
func stageOf(state string) string {
	switch state {
	case models.StateOpening:
		return "opening"
	case models.StateManaging:
		return "managing"
	default:
		return "volume_check"
	}
}

// sleepCtx спит с учётом отмены контекста
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
