package models

// Account описывает один аккаунт биржи, для которого крутится объём.
// Каждый аккаунт получает собственный exchange-клиент (свои ключи и прокси)
// и собственную партицию в хранилище ордеров (по AccountID).
type Account struct {
	Name      string `yaml:"name"`       // человекочитаемое имя для логов
	APIKey    string `yaml:"api_key"`    // используется и как account_id в хранилище
	APISecret string `yaml:"api_secret"` // base64; может быть зашифрован AES-GCM (см. pkg/crypto)
	Proxy     string `yaml:"proxy"`      // host:port или URL, пусто = без прокси

	// Переопределения целевых объёмов для конкретного аккаунта.
	// 0 = использовать глобальное значение из конфигурации.
	SpotTargetVolume float64 `yaml:"spot_target_volume"`
	PerpTargetVolume float64 `yaml:"perp_target_volume"`
}

// AccountID возвращает ключ партиционирования хранилища.
func (a *Account) AccountID() string {
	return a.APIKey
}

// SymbolRule описывает правила округления для торговой пары.
type SymbolRule struct {
	Symbol    string  `yaml:"symbol"`
	LotStep   float64 `yaml:"lot_step"`   // минимальный шаг количества
	PriceStep float64 `yaml:"price_step"` // минимальный шаг цены
}
