package mlm

import (
	"context"

	model "github.com/avafin/mlm/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Очередь задач пересчета квалификационного объема.
// На один аккаунт не больше одной задачи в pending/processing.
func (s *Store) EnqueueRecalc(ctx context.Context, account uuid.UUID, priority int) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	_, err = conn.Exec(ctx,
		`INSERT INTO volume_tasks (id, account_id, priority, status, attempts, created_at)
		 SELECT $1, $2, $3, $4, 0, now()
		 WHERE NOT EXISTS (
			SELECT 1 FROM volume_tasks WHERE account_id = $2 AND status IN ($4, $5)
		 )`,
		uuid.New(), account, priority, model.TaskPending, model.TaskProcessing)
	return err
}

// Захват пачки задач: по приоритету, затем по возрасту.
// SKIP LOCKED позволяет гонять несколько воркеров без взаимной блокировки.
func (s *Store) ClaimBatch(ctx context.Context, batch int) (tasks []model.VolumeTask, err error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	rows, err := tx.Query(ctx,
		`SELECT id, account_id, priority, attempts, created_at FROM volume_tasks
		 WHERE status = $1
		 ORDER BY priority DESC, created_at ASC
		 LIMIT $2
		 FOR UPDATE SKIP LOCKED`,
		model.TaskPending, batch)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var task model.VolumeTask
		err = rows.Scan(&task.ID, &task.AccountID, &task.Priority, &task.Attempts, &task.CreatedAt)
		if err != nil {
			rows.Close()
			return nil, err
		}
		task.Status = model.TaskProcessing
		tasks = append(tasks, task)
	}
	rows.Close()
	err = rows.Err()
	if err != nil {
		return nil, err
	}

	for i := range tasks {
		tasks[i].Attempts++
		_, err = tx.Exec(ctx,
			"UPDATE volume_tasks SET status = $1, attempts = attempts + 1 WHERE id = $2",
			model.TaskProcessing, tasks[i].ID)
		if err != nil {
			return nil, err
		}
	}

	err = tx.Commit(ctx)
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

func (s *Store) CompleteTask(ctx context.Context, id uuid.UUID) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	_, err = conn.Exec(ctx,
		"UPDATE volume_tasks SET status = $1, last_error = '' WHERE id = $2",
		model.TaskCompleted, id)
	return err
}

// Неудачная задача возвращается в pending до следующего опроса;
// после maxAttempts остается в failed для разбора оператором
func (s *Store) FailTask(ctx context.Context, id uuid.UUID, lasterr string, maxAttempts int) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	_, err = conn.Exec(ctx,
		`UPDATE volume_tasks
		 SET status = CASE WHEN attempts >= $1 THEN $2 ELSE $3 END, last_error = $4
		 WHERE id = $5`,
		maxAttempts, model.TaskFailed, model.TaskPending, lasterr, id)
	return err
}
