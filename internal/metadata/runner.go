package metadata

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/datalad/datalad-neuroimaging/internal/logging"
)

// Runner executes a set of extractors over one dataset.
type Runner struct {
	Extractors []Extractor
	Workers    int // 0 = NumCPU, capped at len(Extractors)
	Content    bool
	Logger     *zap.Logger

	// ProgressCallback, if set, is called after each extractor finishes.
	ProgressCallback func(done, total int, name string)
}

// Outcome is the result of one extractor. Err is set when it failed; other
// extractors are not affected.
type Outcome struct {
	Extractor string
	Result    *Result
	Err       error
}

// Run lists the dataset content once and hands it to every extractor.
// Outcomes are returned in extractor order.
func (r *Runner) Run(ctx context.Context, root string) ([]Outcome, error) {
	logger := logging.OrNop(r.Logger)

	paths, err := ListFiles(root)
	if err != nil {
		return nil, fmt.Errorf("list dataset content: %w", err)
	}
	logger.Debug("Listed dataset content", zap.String("root", root), zap.Int("files", len(paths)))

	outcomes := make([]Outcome, len(r.Extractors))
	if len(r.Extractors) == 0 {
		return outcomes, nil
	}

	var mu sync.Mutex
	completed := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ResolveWorkers(r.Workers, len(r.Extractors)))
	for i, ex := range r.Extractors {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			req := Request{
				Root:    root,
				Paths:   paths,
				Content: r.Content,
				Workers: r.Workers,
				Logger:  logger.With(zap.String("extractor", ex.Name())),
			}
			res, err := ex.Metadata(gctx, req)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				logger.Warn("Extractor failed", zap.String("extractor", ex.Name()), zap.Error(err))
			}
			outcomes[i] = Outcome{Extractor: ex.Name(), Result: res, Err: err}

			mu.Lock()
			completed++
			done := completed
			mu.Unlock()
			if r.ProgressCallback != nil {
				r.ProgressCallback(done, len(r.Extractors), ex.Name())
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}
