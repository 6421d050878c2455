package handlers

import (
	"context"
	"fmt"
	"maps"
)

// mappingsKey — переменная job с шаблонами transform.
const mappingsKey = "mappings"

// Transform возвращает переменные job и результаты mappings.
//
// Без mappings переменные возвращаются без изменений. Mappings — объект
// name → Go template; каждый шаблон выполняется над {{ .Vars }}:
//
//	{
//	    "items": [1, 2, 3],
//	    "mappings": {
//	        "count": "{{ len .Vars.items }}",
//	        "greeting": "hello {{ .Vars.name | default \"anon\" }}"
//	    }
//	}
//
// Результат рендеринга разбирается как JSON, если это возможно.
func Transform(_ context.Context, variables map[string]any) (map[string]any, error) {
	out := maps.Clone(variables)
	if out == nil {
		out = make(map[string]any)
	}

	raw, ok := out[mappingsKey]
	if !ok {
		return out, nil
	}
	delete(out, mappingsKey)

	mappings, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s must be an object, got %T", ErrTemplateParse, mappingsKey, raw)
	}

	data := templateData{Vars: maps.Clone(out)}
	for name, v := range mappings {
		tmpl, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: mapping %s must be a string, got %T", ErrTemplateParse, name, v)
		}
		rendered, err := render(tmpl, data)
		if err != nil {
			return nil, fmt.Errorf("transform %s: %w", name, err)
		}
		out[name] = parseValue(rendered)
	}
	return out, nil
}
