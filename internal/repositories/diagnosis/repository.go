package diagnosis

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// insertBatchSize keeps a single insert well under the 65535 bind
// parameter limit.
const insertBatchSize = 1000

// DiagnosisRepository defines the sink operations for diagnoses.
type DiagnosisRepository interface {
	InsertMany(ctx context.Context, rows []*DiagnosisRow) (int, error)
	DeleteAll(ctx context.Context) error
	Count(ctx context.Context) (int, error)
}

type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// InsertMany writes rows in batches inside the transaction carried by ctx,
// or a new one when ctx has none.
func (r *Repository) InsertMany(ctx context.Context, rows []*DiagnosisRow) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "DiagnosisRepository.InsertMany")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"method": "InsertMany",
		"rows":   len(rows),
	})

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	inserted := 0
	for _, batch := range database.Chunk(rows, insertBatchSize) {
		values := make([]any, len(batch))
		for i, row := range batch {
			values[i] = row
		}
		sql, args := diagnosisStruct.InsertInto(diagnosesTable, values...).Build()
		if _, err := tx.ExecContext(ctx, sql, args...); err != nil {
			log.WithError(err).Error("Failed to insert diagnoses")
			return inserted, fmt.Errorf("insert diagnoses: %w", err)
		}
		inserted += len(batch)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	log.Debug("Inserted diagnoses")
	return inserted, nil
}

func (r *Repository) DeleteAll(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "DiagnosisRepository.DeleteAll")
	defer span.End()

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	sql, args := diagnosisStruct.DeleteFrom(diagnosesTable).Build()
	if _, err := tx.ExecContext(ctx, sql, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to delete diagnoses")
		return fmt.Errorf("delete diagnoses: %w", err)
	}
	return tx.Commit(ctx)
}

func (r *Repository) Count(ctx context.Context) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "DiagnosisRepository.Count")
	defer span.End()

	sql, args := database.CountFrom(diagnosesTable)
	var count int
	if err := r.db.GetContext(ctx, &count, sql, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count diagnoses")
		return 0, fmt.Errorf("count diagnoses: %w", err)
	}
	return count, nil
}
