package handlers

import (
	"context"
	"time"
)

// DelayRequest — входные переменные task "delay".
type DelayRequest struct {
	// DurationSec — длительность задержки в секундах (default: 1).
	DurationSec float64 `json:"duration_sec"`
}

// DelayResult — результат task "delay".
type DelayResult struct {
	DelayedSec float64 `json:"delayed_sec"`
}

// Delay ждёт DurationSec секунд или отмены ctx.
func Delay(ctx context.Context, in DelayRequest) (DelayResult, error) {
	durationSec := in.DurationSec
	if durationSec <= 0 {
		durationSec = 1
	}

	timer := time.NewTimer(time.Duration(durationSec * float64(time.Second)))
	defer timer.Stop()

	select {
	case <-timer.C:
		return DelayResult{DelayedSec: durationSec}, nil
	case <-ctx.Done():
		return DelayResult{}, ctx.Err()
	}
}
