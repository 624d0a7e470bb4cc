package repository

import (
	"context"
	"time"
)

// TaskRunRepository registra la última ejecución de cada tarea programada,
// identificada por nombre (ej. "verify_chain:<tenant>"). El scheduler salta
// la tarea si el intervalo no ha transcurrido.
type TaskRunRepository interface {
	GetLastRun(ctx context.Context, taskName string) (*time.Time, error)
	MarkRun(ctx context.Context, taskName string, at time.Time) error
}
