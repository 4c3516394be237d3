package models

// Состояния цикла накрутки объёма для одного аккаунта
const (
	StateIdle           = "idle"            // драйвер создан, цикл не запущен
	StateCheckingVolume = "checking_volume" // сверка накопленного объёма с целью
	StateOpening        = "opening"         // открытие новой позиции
	StateManaging       = "managing"        // сопровождение открытой позиции
	StatePacing         = "pacing"          // случайная пауза между циклами
	StateDone           = "done"            // цель достигнута, цикл завершён
)
