package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jaraba/verifactu-api/internal/domain/repository"
)

var _ repository.TaskRunRepository = (*TaskRunRepo)(nil)

// TaskRunRepo registra la última ejecución de cada tarea programada.
type TaskRunRepo struct {
	q Querier
}

// NewTaskRunRepository construye el adaptador. Pasar pool o tx (Querier).
func NewTaskRunRepository(q Querier) *TaskRunRepo {
	return &TaskRunRepo{q: q}
}

// GetLastRun devuelve cuándo corrió la tarea por última vez, o nil si nunca.
func (r *TaskRunRepo) GetLastRun(ctx context.Context, taskName string) (*time.Time, error) {
	var at time.Time
	query := `SELECT last_run_at FROM task_runs WHERE task_name = $1`
	if err := r.q.QueryRow(ctx, query, taskName).Scan(&at); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get last run: %w", err)
	}
	return &at, nil
}

// MarkRun registra la ejecución de la tarea.
func (r *TaskRunRepo) MarkRun(ctx context.Context, taskName string, at time.Time) error {
	query := `
		INSERT INTO task_runs (task_name, last_run_at)
		VALUES ($1, $2)
		ON CONFLICT (task_name) DO UPDATE SET last_run_at = EXCLUDED.last_run_at`
	if _, err := r.q.Exec(ctx, query, taskName, at); err != nil {
		return fmt.Errorf("mark run: %w", err)
	}
	return nil
}
