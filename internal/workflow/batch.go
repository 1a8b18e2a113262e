package workflow

import (
	"context"
	"errors"
	"sync"

	"github.com/rendis/canvasflow/pkg/schema"
)

// Document is one named graph document in a batch.
type Document struct {
	Name string
	Raw  []byte
}

// BatchItem is the outcome for one Document, in input order.
type BatchItem struct {
	Name   string                    `json:"name"`
	Graph  schema.Graph              `json:"-"`
	Result *schema.TranslationResult `json:"result"`
}

// TranslateBatch translates docs on a pool of at most concurrency workers.
// Items come back in input order. Documents that never ran (ctx cancelled
// mid-batch) carry an INTERNAL_ERROR result.
func (s *Service) TranslateBatch(ctx context.Context, docs []Document, concurrency int) ([]BatchItem, PoolMetrics) {
	items := make([]BatchItem, len(docs))
	for i, d := range docs {
		items[i].Name = d.Name
	}

	pool := NewWorkerPool(concurrency)
	var mu sync.Mutex
	for i, d := range docs {
		err := pool.Submit(ctx, func(ctx context.Context) error {
			g, res := s.TranslateDocument(ctx, d.Raw)
			mu.Lock()
			items[i].Graph = g
			items[i].Result = res
			mu.Unlock()
			if !res.Valid() {
				return schema.NewErrorf(schema.ErrCodeValidation, "%s has %d error(s)", d.Name, len(res.Errors))
			}
			return nil
		})
		if err != nil {
			mu.Lock()
			items[i].Result = cancelled(err)
			mu.Unlock()
		}
	}
	pool.Shutdown()

	for i := range items {
		if items[i].Result == nil {
			items[i].Result = cancelled(errAborted)
		}
	}
	return items, pool.Metrics()
}

var errAborted = errors.New("worker aborted")

func cancelled(err error) *schema.TranslationResult {
	vr := &schema.ValidationResult{}
	vr.AddError("/", schema.ErrCodeInternal, "not translated: "+err.Error())
	return schema.NewTranslationResult(nil, vr)
}
