package bot

import "github.com/chikanoff/arkham-volume-bot/internal/models"

// ValidTransitions определяет допустимые переходы между состояниями драйвера.
// Pacing из checking_volume - это путь восстановления после сетевой ошибки.
var ValidTransitions = map[string][]string{
	models.StateIdle:           {models.StateCheckingVolume},
	models.StateCheckingVolume: {models.StateOpening, models.StateManaging, models.StatePacing, models.StateDone},
	models.StateOpening:        {models.StatePacing},
	models.StateManaging:       {models.StatePacing},
	models.StatePacing:         {models.StateCheckingVolume},
	models.StateDone:           {}, // терминальное состояние
}

// CanTransition проверяет допустимость перехода
func CanTransition(from, to string) bool {
	allowed, ok := ValidTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// StateInfo возвращает описание состояния для логов
func StateInfo(s string) string {
	switch s {
	case models.StateIdle:
		return "Цикл не запущен"
	case models.StateCheckingVolume:
		return "Сверка объёма с целью"
	case models.StateOpening:
		return "Открытие позиции..."
	case models.StateManaging:
		return "Сопровождение позиции"
	case models.StatePacing:
		return "Пауза между циклами"
	case models.StateDone:
		return "Целевой объём достигнут"
	default:
		return "Неизвестное состояние"
	}
}

// IsRunning возвращает true если цикл аккаунта активен
func IsRunning(s string) bool {
	return s == models.StateCheckingVolume || s == models.StateOpening ||
		s == models.StateManaging || s == models.StatePacing
}

// IsTerminal возвращает true если цикл завершён
func IsTerminal(s string) bool {
	return s == models.StateDone
}
