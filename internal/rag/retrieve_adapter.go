package rag

import (
	"context"

	"weavectx/internal/contextwindow/modules"
)

// ExampleSource adapts an Engine to modules.RAGExampleSource: a fixed
// caller identity, collection scope, and minimum similarity threshold,
// exposed through the narrower (query, k) shape the context module calls
// through. This is the only file in this package that imports
// contextwindow/modules — kept separate so the rest of the engine stays
// ignorant of the module layer it feeds.
type ExampleSource struct {
	Engine               *Engine
	Subject              AccessSubject
	AllowedCollectionIDs  []string
	RepositoryType        RepositoryType
	MinScore              float64
}

// NewExampleSource builds an ExampleSource for one session's assembly,
// scoped to the collections that session is allowed to read.
func NewExampleSource(engine *Engine, subject AccessSubject, allowedCollectionIDs []string) *ExampleSource {
	return &ExampleSource{
		Engine:               engine,
		Subject:              subject,
		AllowedCollectionIDs: allowedCollectionIDs,
		RepositoryType:       RepositoryPlanner,
		MinScore:             0,
	}
}

// RetrieveExamples implements modules.RAGExampleSource. The returned
// confidence is the top result's adjusted score, 0 when nothing qualifies
// — the scalar the orchestrator's high_confidence_rag condition reads.
func (s *ExampleSource) RetrieveExamples(ctx context.Context, query string, k int) ([]modules.RAGExample, float64, error) {
	results, err := s.Engine.RetrieveExamples(ctx, s.Subject, query, k, s.MinScore, s.AllowedCollectionIDs, s.RepositoryType)
	if err != nil {
		return nil, 0, err
	}

	examples := make([]modules.RAGExample, 0, len(results))
	for _, r := range results {
		examples = append(examples, modules.RAGExample{
			UserQuery: r.Case.UserQuery,
			Strategy:  string(r.Case.StrategyType),
			Score:     r.AdjustedScore,
		})
	}

	var confidence float64
	if len(results) > 0 {
		confidence = results[0].AdjustedScore
	}
	return examples, confidence, nil
}

var _ modules.RAGExampleSource = (*ExampleSource)(nil)
