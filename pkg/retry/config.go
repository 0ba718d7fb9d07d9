package retry

import (
	"fmt"
	"time"
)

// BackoffStrategy - стратегия роста задержки между попытками
type BackoffStrategy string

const (
	BackoffConstant    BackoffStrategy = "constant"
	BackoffLinear      BackoffStrategy = "linear"
	BackoffExponential BackoffStrategy = "exponential"
)

// Config - настройки повторов записи
type Config struct {
	// Enabled - без него функция выполняется один раз
	Enabled bool `yaml:"enabled"`

	// MaxAttempts - число попыток, включая первую. 0 = без ограничения
	MaxAttempts int `yaml:"max_attempts"`

	InitialDelay time.Duration   `yaml:"initial_delay"`
	MaxDelay     time.Duration   `yaml:"max_delay"`
	Backoff      BackoffStrategy `yaml:"backoff"`

	// Multiplier - множитель exponential backoff, по умолчанию 2
	Multiplier float64 `yaml:"multiplier"`

	// Jitter - доля случайного разброса задержки, 0.0 - 1.0
	Jitter float64 `yaml:"jitter"`
}

// Validate проверяет настройки и подставляет значения по умолчанию
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.MaxAttempts < 0 {
		return fmt.Errorf("max_attempts must be >= 0, got %d", c.MaxAttempts)
	}
	if c.InitialDelay < 0 {
		return fmt.Errorf("initial_delay must be >= 0")
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.MaxDelay < c.InitialDelay {
		return fmt.Errorf("max_delay (%v) must be >= initial_delay (%v)", c.MaxDelay, c.InitialDelay)
	}
	switch c.Backoff {
	case "":
		c.Backoff = BackoffExponential
	case BackoffConstant, BackoffLinear, BackoffExponential:
	default:
		return fmt.Errorf("invalid backoff strategy: %s", c.Backoff)
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2.0
	}
	if c.Jitter < 0 || c.Jitter > 1.0 {
		return fmt.Errorf("jitter must be between 0.0 and 1.0, got %f", c.Jitter)
	}
	return nil
}

// DefaultConfig возвращает выключенные повторы с разумными задержками
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Backoff:      BackoffExponential,
		Multiplier:   2.0,
		Jitter:       0.1,
	}
}

// Enable возвращает включенные повторы с заданным числом попыток
func Enable(maxAttempts int, initialDelay time.Duration) Config {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.MaxAttempts = maxAttempts
	cfg.InitialDelay = initialDelay
	return cfg
}
