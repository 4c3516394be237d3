package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/chikanoff/arkham-volume-bot/internal/models"
	"github.com/chikanoff/arkham-volume-bot/pkg/crypto"
)

// AccountsFile - YAML файл с аккаунтами и таблицей символов.
//
// Пример:
//
//	symbols:
//	  - symbol: BTC_USDT
//	    lot_step: 0.00001
//	    price_step: 0.01
//	accounts:
//	  - name: acc-1
//	    api_key: "..."
//	    api_secret: "..."       # base64, опционально зашифрован AES-GCM
//	    proxy: "1.2.3.4:8080"
//	    spot_target_volume: 15000
type AccountsFile struct {
	Symbols  []models.SymbolRule `yaml:"symbols"`
	Accounts []models.Account    `yaml:"accounts"`
}

// LoadAccounts читает файл аккаунтов. Если secretsKey не пустой,
// api_secret каждого аккаунта расшифровывается AES-256-GCM.
func LoadAccounts(path, secretsKey string) (*AccountsFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read accounts file: %w", err)
	}

	var f AccountsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse accounts file: %w", err)
	}

	if len(f.Accounts) == 0 {
		return nil, fmt.Errorf("accounts file %s contains no accounts", path)
	}
	if len(f.Symbols) == 0 {
		return nil, fmt.Errorf("accounts file %s contains no symbols", path)
	}

	seen := make(map[string]struct{}, len(f.Accounts))
	for i := range f.Accounts {
		a := &f.Accounts[i]
		if a.APIKey == "" || a.APISecret == "" {
			return nil, fmt.Errorf("account %q: api_key and api_secret are required", a.Name)
		}
		if _, dup := seen[a.APIKey]; dup {
			return nil, fmt.Errorf("account %q: duplicate api_key", a.Name)
		}
		seen[a.APIKey] = struct{}{}

		if secretsKey != "" {
			plain, err := crypto.Decrypt(a.APISecret, []byte(secretsKey))
			if err != nil {
				return nil, fmt.Errorf("account %q: decrypt api_secret: %w", a.Name, err)
			}
			a.APISecret = plain
		}
	}

	for _, s := range f.Symbols {
		if s.Symbol == "" {
			return nil, fmt.Errorf("symbol rule with empty symbol")
		}
		if s.LotStep <= 0 {
			return nil, fmt.Errorf("symbol %s: lot_step must be positive, got %v", s.Symbol, s.LotStep)
		}
		if s.PriceStep <= 0 {
			return nil, fmt.Errorf("symbol %s: price_step must be positive, got %v", s.Symbol, s.PriceStep)
		}
	}

	return &f, nil
}

// SymbolTable возвращает типизированную карту символ → правила округления.
func (f *AccountsFile) SymbolTable() map[string]models.SymbolRule {
	table := make(map[string]models.SymbolRule, len(f.Symbols))
	for _, s := range f.Symbols {
		table[s.Symbol] = s
	}
	return table
}
