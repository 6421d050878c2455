package task

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// Handler — пользовательский обработчик job.
type Handler interface {
	// Params возвращает объявленные имена параметров (переменных job).
	Params() []string

	// Handle выполняет работу над переменными job.
	Handle(ctx context.Context, variables map[string]any) (any, error)
}

// Func — нетипизированный обработчик. Параметров не объявляет,
// поэтому по умолчанию получает все переменные job.
type Func func(ctx context.Context, variables map[string]any) (map[string]any, error)

// Params реализует Handler.
func (f Func) Params() []string { return nil }

// Handle реализует Handler.
func (f Func) Handle(ctx context.Context, variables map[string]any) (any, error) {
	return f(ctx, variables)
}

type paramsFunc struct {
	fn     Func
	params []string
}

// WithParams объявляет имена параметров для нетипизированной функции.
func WithParams(fn Func, names ...string) Handler {
	return &paramsFunc{fn: fn, params: append([]string{}, names...)}
}

func (p *paramsFunc) Params() []string { return append([]string{}, p.params...) }

func (p *paramsFunc) Handle(ctx context.Context, variables map[string]any) (any, error) {
	return p.fn(ctx, variables)
}

type typedFunc[In, Out any] struct {
	fn     func(ctx context.Context, in In) (Out, error)
	params []string
}

// Typed адаптирует типизированную функцию.
//
// Переменные job декодируются в In через JSON; объявленные параметры —
// JSON-имена экспортируемых полей In в порядке объявления.
func Typed[In, Out any](fn func(ctx context.Context, in In) (Out, error)) Handler {
	return &typedFunc[In, Out]{
		fn:     fn,
		params: structParams(reflect.TypeFor[In]()),
	}
}

func (t *typedFunc[In, Out]) Params() []string { return append([]string{}, t.params...) }

func (t *typedFunc[In, Out]) Handle(ctx context.Context, variables map[string]any) (any, error) {
	in, err := decodeVariables[In](variables)
	if err != nil {
		return nil, err
	}
	return t.fn(ctx, in)
}

// decodeVariables переводит переменные job в тип T.
func decodeVariables[T any](variables map[string]any) (T, error) {
	var result T

	if variables == nil {
		variables = map[string]any{}
	}

	data, err := json.Marshal(variables)
	if err != nil {
		return result, fmt.Errorf("marshal variables: %w", err)
	}

	if err := json.Unmarshal(data, &result); err != nil {
		return result, fmt.Errorf("unmarshal variables: %w", err)
	}

	return result, nil
}

// structParams возвращает JSON-имена полей структуры.
// Для не-структур возвращает nil.
func structParams(t reflect.Type) []string {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil
	}

	params := make([]string, 0, t.NumField())
	for i := range t.NumField() {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		name := field.Name
		if tag, ok := field.Tag.Lookup("json"); ok {
			tagName, _, _ := strings.Cut(tag, ",")
			if tagName == "-" {
				continue
			}
			if tagName != "" {
				name = tagName
			}
		}
		params = append(params, name)
	}
	return params
}
