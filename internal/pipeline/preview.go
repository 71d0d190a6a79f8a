package pipeline

import (
	"context"

	"clipreel/internal/catalog"
	"clipreel/internal/selection"
)

// Preview is a search plus dry-run selection.
type Preview struct {
	Target     catalog.Target
	Candidates []catalog.Candidate
	Selection  selection.Set
	Seed       int64
}

// Preview searches the catalog and selects clips without downloading.
func (p *Pipeline) Preview(ctx context.Context, req Request) (Preview, error) {
	target := p.resolveTarget(req.Target)
	if err := validateTarget(req.Term, target); err != nil {
		return Preview{}, err
	}
	seed := req.Seed
	if seed == 0 {
		seed = p.now().UnixNano()
	}
	candidates, err := p.searcher.Search(ctx, req.Term, target)
	if err != nil {
		return Preview{}, err
	}
	return Preview{
		Target:     target,
		Candidates: candidates,
		Selection:  selection.Select(candidates, target, selection.NewRand(uint64(seed))),
		Seed:       seed,
	}, nil
}
