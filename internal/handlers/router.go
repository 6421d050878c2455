package handlers

import (
	"net/http"
	"time"

	"github.com/shaiso/Conveyor/internal/task"
	"github.com/shaiso/Conveyor/internal/worker"
)

// Типы встроенных tasks.
const (
	TypeHTTP      = "http"
	TypeDelay     = "delay"
	TypeTransform = "transform"
)

// NewRouter регистрирует встроенные tasks на новом роутере.
// client == nil — http.DefaultClient.
func NewRouter(client *http.Client, before, after []task.Decorator) (*worker.Router, error) {
	r := worker.NewRouter(before, after)

	h := &HTTP{Client: client}
	if err := r.Task(TypeHTTP, task.Typed(h.Do), task.WithTimeout(time.Minute)); err != nil {
		return nil, err
	}
	if err := r.Task(TypeDelay, task.Typed(Delay), task.WithTimeout(time.Minute)); err != nil {
		return nil, err
	}
	if err := r.Task(TypeTransform, task.Func(Transform)); err != nil {
		return nil, err
	}

	return r, nil
}
