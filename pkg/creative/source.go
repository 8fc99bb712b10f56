package creative

import (
	"context"

	"github.com/dirigent-dev/dirigent/pkg/provider"
)

// RouterSource generates candidates through the provider fallback
// chain. Temperature rises with the candidate index so later
// candidates explore further from the first.
type RouterSource struct {
	Router    *provider.Router
	Model     string
	MaxTokens int
}

var _ Source = (*RouterSource)(nil)

func (s *RouterSource) Generate(ctx context.Context, prompt string, n int) (string, error) {
	temp := 0.7 + 0.1*float64(n)
	if temp > 1.2 {
		temp = 1.2
	}

	res, err := s.Router.RouteCompletion(ctx, &provider.CompletionRequest{
		Model:       s.Model,
		Prompt:      prompt,
		MaxTokens:   s.MaxTokens,
		Temperature: &temp,
	})
	if err != nil {
		return "", err
	}
	return res.Response.Text, nil
}
