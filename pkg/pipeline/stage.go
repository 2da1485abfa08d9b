// Package pipeline runs the entity stages in dependency order and hands each
// finished parent's key set to its children.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"golang.org/x/sync/errgroup"

	"github.com/Ramsey-B/fern/pkg/emitter"
	fernerrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/extract"
	"github.com/Ramsey-B/fern/pkg/fingerprint"
	"github.com/Ramsey-B/fern/pkg/integrity"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/rules"
	"github.com/Ramsey-B/fern/pkg/validation"
)

// Stage cleans one entity.
type Stage interface {
	Entity() models.Entity
	// DependsOn lists the parent entities whose keys this stage checks against.
	DependsOn() []models.Entity
	Run(ctx context.Context, rc *RunContext) (*models.StageSummary, error)
}

// keyColumns names the primary-key column of each parent's clean artifact.
var keyColumns = map[models.Entity]string{
	models.EntityPatients:   "patient_id",
	models.EntityEncounters: "encounter_id",
}

// RunContext is the state shared by the stages of one run.
type RunContext struct {
	RunID   string
	Rules   *rules.Rules
	Now     time.Time
	Workers int
	Reader  *extract.Reader
	Writer  *emitter.Writer
	Logger  ectologger.Logger

	mu   sync.Mutex
	keys map[models.Entity]*integrity.KeySet
}

func (rc *RunContext) env() validation.Env {
	return validation.Env{Rules: rc.Rules, Now: rc.Now}
}

// SetKeys publishes the finalized keys of entity for downstream stages.
func (rc *RunContext) SetKeys(entity models.Entity, keys *integrity.KeySet) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.keys == nil {
		rc.keys = make(map[models.Entity]*integrity.KeySet)
	}
	rc.keys[entity] = keys
}

// Keys returns the keys of a parent entity. When the parent did not run in
// this process they are read from its clean artifact.
func (rc *RunContext) Keys(ctx context.Context, entity models.Entity) (*integrity.KeySet, error) {
	rc.mu.Lock()
	ks, ok := rc.keys[entity]
	rc.mu.Unlock()
	if ok {
		return ks, nil
	}

	path := rc.Writer.CleanPath(entity)
	ks, err := integrity.LoadKeySet(path, keyColumns[entity])
	if err != nil {
		return nil, fernerrors.NewSourceErrorf("parent keys unavailable, run the %s stage first: %w", entity, err).
			AddEntity(string(entity)).
			AddFile(path)
	}

	rc.Logger.WithContext(ctx).WithFields(map[string]any{
		"entity": entity,
		"path":   path,
		"keys":   ks.Len(),
	}).Info("Loaded parent keys from clean artifact")

	rc.SetKeys(entity, ks)
	return ks, nil
}

// parallelMap applies fn to every element with at most workers goroutines.
// Results are index-addressed so output order matches input order.
func parallelMap[In, Out any](ctx context.Context, workers int, in []In, fn func(In) Out) ([]Out, error) {
	out := make([]Out, len(in))
	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i := range in {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out[i] = fn(in[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// orderStages returns stages so that every stage follows the stages it
// depends on. Ties keep registration order. Dependencies that are not among
// stages are satisfied from artifacts at run time.
func orderStages(stages []Stage) ([]Stage, error) {
	byEntity := make(map[models.Entity]Stage, len(stages))
	for _, s := range stages {
		if _, dup := byEntity[s.Entity()]; dup {
			return nil, fmt.Errorf("stage %s registered twice", s.Entity())
		}
		byEntity[s.Entity()] = s
	}

	const (
		pending = iota
		visiting
		done
	)
	state := make(map[models.Entity]int, len(stages))
	ordered := make([]Stage, 0, len(stages))

	var visit func(s Stage) error
	visit = func(s Stage) error {
		switch state[s.Entity()] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("stage dependency cycle at %s", s.Entity())
		}
		state[s.Entity()] = visiting
		for _, dep := range s.DependsOn() {
			if parent, ok := byEntity[dep]; ok {
				if err := visit(parent); err != nil {
					return err
				}
			}
		}
		state[s.Entity()] = done
		ordered = append(ordered, s)
		return nil
	}

	for _, s := range stages {
		if err := visit(s); err != nil {
			return nil, err
		}
	}
	return ordered, nil
}

// finish writes the clean artifact and records its location and checksum.
func finish(ctx context.Context, rc *RunContext, summary *models.StageSummary, table emitter.Table) error {
	path, err := rc.Writer.WriteClean(ctx, summary.Entity, table)
	if err != nil {
		return err
	}
	checksum, err := fingerprint.File(path)
	if err != nil {
		return err
	}
	summary.CleanArtifact = path
	summary.Checksum = checksum
	return nil
}
