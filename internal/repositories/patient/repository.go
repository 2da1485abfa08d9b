package patient

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

// PatientRepository defines the sink operations for patients.
type PatientRepository interface {
	InsertMany(ctx context.Context, rows []*PatientRow) (int, error)
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
func (r *Repository) InsertMany(ctx context.Context, rows []*PatientRow) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "PatientRepository.InsertMany")
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
		sql, args := patientStruct.InsertInto(patientsTable, values...).Build()
		if _, err := tx.ExecContext(ctx, sql, args...); err != nil {
			log.WithError(err).Error("Failed to insert patients")
			return inserted, fmt.Errorf("insert patients: %w", err)
		}
		inserted += len(batch)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	log.Debug("Inserted patients")
	return inserted, nil
}

func (r *Repository) DeleteAll(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "PatientRepository.DeleteAll")
	defer span.End()

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	sql, args := patientStruct.DeleteFrom(patientsTable).Build()
	if _, err := tx.ExecContext(ctx, sql, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to delete patients")
		return fmt.Errorf("delete patients: %w", err)
	}
	return tx.Commit(ctx)
}

func (r *Repository) Count(ctx context.Context) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "PatientRepository.Count")
	defer span.End()

	sql, args := database.CountFrom(patientsTable)
	var count int
	if err := r.db.GetContext(ctx, &count, sql, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count patients")
		return 0, fmt.Errorf("count patients: %w", err)
	}
	return count, nil
}
