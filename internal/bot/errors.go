package bot

import "errors"

// storeError помечает сбой хранилища. Для цикла аккаунта это фатально:
// без надёжной записи состояния продолжать открывать позиции нельзя.
type storeError struct {
	err error
}

func (e *storeError) Error() string { return "store failure: " + e.err.Error() }

func (e *storeError) Unwrap() error { return e.err }

func wrapStore(err error) error {
	if err == nil {
		return nil
	}
	return &storeError{err: err}
}

// IsFatal сообщает, должна ли ошибка остановить цикл аккаунта
func IsFatal(err error) bool {
	var se *storeError
	return errors.As(err, &se)
}
