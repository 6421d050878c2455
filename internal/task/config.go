package task

import (
	"slices"
	"time"
)

// Значения по умолчанию для Config.
const (
	DefaultTimeout           = 10 * time.Second
	DefaultMaxJobsToActivate = 32
)

// Config — параметры активации task.
type Config struct {
	// Type — уникальный тип task.
	Type string

	// Timeout — на сколько job блокируется за воркером (default: 10s).
	Timeout time.Duration

	// MaxJobsToActivate — размер пачки за один poll (default: 32).
	MaxJobsToActivate int

	// VariablesToFetch — какие переменные запрашивать.
	// nil — вывести из Handler.Params(). Пустой список — все переменные.
	VariablesToFetch []string

	// SingleValue — результат обработчика сохраняется целиком
	// в переменную VariableName.
	SingleValue  bool
	VariableName string

	// ExceptionHandler — реакция на ошибку обработчика (default: DefaultExceptionHandler).
	ExceptionHandler ExceptionHandler

	// Before/After — декораторы, применяемые только к этой task.
	Before []Decorator
	After  []Decorator
}

// Option настраивает Config.
type Option func(*Config)

// NewConfig создаёт Config для типа taskType.
func NewConfig(taskType string, opts ...Option) Config {
	cfg := Config{Type: taskType}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithTimeout задаёт длительность блокировки job.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithMaxJobsToActivate задаёт размер пачки за один poll.
func WithMaxJobsToActivate(n int) Option {
	return func(c *Config) { c.MaxJobsToActivate = n }
}

// WithVariablesToFetch явно задаёт список переменных.
func WithVariablesToFetch(names ...string) Option {
	return func(c *Config) { c.VariablesToFetch = append([]string{}, names...) }
}

// WithSingleValue сохраняет результат обработчика в переменную name.
func WithSingleValue(name string) Option {
	return func(c *Config) {
		c.SingleValue = true
		c.VariableName = name
	}
}

// WithExceptionHandler задаёт обработчик ошибок.
func WithExceptionHandler(h ExceptionHandler) Option {
	return func(c *Config) { c.ExceptionHandler = h }
}

// WithBefore добавляет before-декораторы task.
func WithBefore(d ...Decorator) Option {
	return func(c *Config) { c.Before = append(c.Before, d...) }
}

// WithAfter добавляет after-декораторы task.
func WithAfter(d ...Decorator) Option {
	return func(c *Config) { c.After = append(c.After, d...) }
}

// withDefaults возвращает копию с заполненными значениями по умолчанию.
func (c Config) withDefaults(h Handler) Config {
	out := c.clone()
	if out.Timeout <= 0 {
		out.Timeout = DefaultTimeout
	}
	if out.MaxJobsToActivate <= 0 {
		out.MaxJobsToActivate = DefaultMaxJobsToActivate
	}
	if out.VariablesToFetch == nil {
		var params []string
		if h != nil {
			params = h.Params()
		}
		out.VariablesToFetch = append([]string{}, params...)
	}
	if out.ExceptionHandler == nil {
		out.ExceptionHandler = DefaultExceptionHandler
	}
	return out
}

// clone копирует слайсы, чтобы Config не разделял память с вызывающим.
func (c Config) clone() Config {
	out := c
	if c.VariablesToFetch != nil {
		out.VariablesToFetch = slices.Clone(c.VariablesToFetch)
	}
	out.Before = slices.Clone(c.Before)
	out.After = slices.Clone(c.After)
	return out
}

func (c Config) validate() error {
	if c.Type == "" {
		return ErrEmptyTaskType
	}
	if c.SingleValue && c.VariableName == "" {
		return ErrNoVariableName
	}
	return nil
}
