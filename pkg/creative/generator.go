package creative

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dirigent-dev/dirigent/pkg/api"
	"github.com/dirigent-dev/dirigent/pkg/observability"
)

// DefaultGenerationTimeout applies when the caller passes none.
const DefaultGenerationTimeout = 30 * time.Second

// Source produces one candidate per call. n is the candidate index
// within the batch, which sources may use to vary their output.
type Source interface {
	Generate(ctx context.Context, prompt string, n int) (string, error)
}

// Weights controls the scoring mix. Both default to 0.5.
type Weights struct {
	Novelty     float64
	Feasibility float64
}

// Generator fans a prompt out to its source and ranks the candidates.
type Generator struct {
	source  Source
	weights Weights
	logger  *slog.Logger
}

func NewGenerator(source Source, weights Weights, logger *slog.Logger) *Generator {
	if weights.Novelty == 0 && weights.Feasibility == 0 {
		weights = Weights{Novelty: 0.5, Feasibility: 0.5}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{source: source, weights: weights, logger: logger}
}

// Generate produces up to count ranked candidates within timeout. On
// timeout the ready subset is ranked and returned with Partial=true;
// the call never blocks past the timeout. An error is returned only
// when no candidate could be produced at all.
func (g *Generator) Generate(ctx context.Context, prompt string, count int, timeout time.Duration) (*api.CreativeResult, error) {
	if count <= 0 {
		count = 3
	}
	if timeout <= 0 {
		timeout = DefaultGenerationTimeout
	}

	start := time.Now()
	defer func() {
		observability.GenerationDuration.Observe(time.Since(start).Seconds())
	}()

	genCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ready := make(chan string, count)
	grp, grpCtx := errgroup.WithContext(genCtx)
	for i := 0; i < count; i++ {
		grp.Go(func() error {
			content, err := g.source.Generate(grpCtx, prompt, i)
			if err != nil {
				g.logger.Warn("candidate generation failed", "index", i, "error", err)
				return nil // one failed candidate does not sink the batch
			}
			ready <- content
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		grp.Wait()
		close(done)
	}()

	partial := false
	select {
	case <-done:
	case <-genCtx.Done():
		partial = true
	}
	cancel()

	// Collect whatever is ready; stragglers past the timeout are lost.
	var contents []string
collect:
	for {
		select {
		case c := <-ready:
			contents = append(contents, c)
		default:
			break collect
		}
	}

	if len(contents) == 0 {
		if partial {
			return nil, api.NewGenerationPartialError(
				fmt.Sprintf("no candidate ready within %v", timeout))
		}
		return nil, api.NewGenerationPartialError("all candidate generations failed")
	}
	if len(contents) < count {
		partial = true
	}

	return &api.CreativeResult{
		Candidates: g.rank(contents, count),
		Partial:    partial,
	}, nil
}

// rank scores candidates in arrival order and sorts by descending
// combined rank.
func (g *Generator) rank(contents []string, count int) []api.CreativeCandidate {
	seen := make(map[string]struct{})
	out := make([]api.CreativeCandidate, 0, len(contents))
	for _, content := range contents {
		c := api.CreativeCandidate{
			ID:          uuid.NewString(),
			Content:     content,
			Novelty:     novelty(content, seen),
			Feasibility: feasibility(content),
		}
		c.Rank = g.weights.Novelty*c.Novelty + g.weights.Feasibility*c.Feasibility
		out = append(out, c)
		for _, tok := range tokens(content) {
			seen[tok] = struct{}{}
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Rank > out[j].Rank })
	if len(out) > count {
		out = out[:count]
	}
	return out
}

// novelty is the fraction of a candidate's tokens not seen in any
// earlier accepted candidate.
func novelty(content string, seen map[string]struct{}) float64 {
	toks := tokens(content)
	if len(toks) == 0 {
		return 0
	}
	fresh := 0
	for _, tok := range toks {
		if _, ok := seen[tok]; !ok {
			fresh++
		}
	}
	return float64(fresh) / float64(len(toks))
}

// feasibility is a bounded length and structure heuristic: substantial
// candidates with sentence structure score high, one-liners and walls
// of text score low.
func feasibility(content string) float64 {
	words := len(strings.Fields(content))
	if words == 0 {
		return 0
	}

	var length float64
	switch {
	case words < 5:
		length = float64(words) / 5
	case words <= 300:
		length = 1
	default:
		length = 300.0 / float64(words)
	}

	structure := 0.5
	if strings.ContainsAny(content, ".!?\n") {
		structure = 1
	}
	return 0.7*length + 0.3*structure
}

func tokens(content string) []string {
	return strings.Fields(strings.ToLower(content))
}
