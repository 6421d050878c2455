package repo

import (
	"maps"

	"github.com/shaiso/Conveyor/internal/domain"
)

const defaultListLimit = 100

// JobFilter — условия выборки для List.
type JobFilter struct {
	Type   string
	Status domain.JobStatus
	Limit  int
}

func (f JobFilter) limit() int {
	if f.Limit <= 0 {
		return defaultListLimit
	}
	return f.Limit
}

func (f JobFilter) match(job *domain.Job) bool {
	if f.Type != "" && job.Type != f.Type {
		return false
	}
	if f.Status != "" && job.Status != f.Status {
		return false
	}
	return true
}

// filterVariables оставляет только запрошенные переменные.
// Пустой список — все переменные. Отсутствующие имена пропускаются.
func filterVariables(variables map[string]any, names []string) map[string]any {
	if len(names) == 0 {
		out := maps.Clone(variables)
		if out == nil {
			out = map[string]any{}
		}
		return out
	}

	out := make(map[string]any, len(names))
	for _, name := range names {
		if v, ok := variables[name]; ok {
			out[name] = v
		}
	}
	return out
}

// mergeVariables дополняет current результатом обработчика.
func mergeVariables(current, result map[string]any) map[string]any {
	out := maps.Clone(current)
	if out == nil {
		out = make(map[string]any, len(result))
	}
	maps.Copy(out, result)
	return out
}
