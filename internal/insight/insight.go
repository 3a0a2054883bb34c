// Package insight produces narrative market commentary from price history.
// The text is opaque model output and is never parsed.
package insight

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/copper-cli/internal/model"
	"github.com/sells-group/copper-cli/pkg/anthropic"
	"github.com/sells-group/copper-cli/pkg/perplexity"
)

const (
	insightSamples  = 24
	forecastSamples = 10
)

const insightSystem = `你是有色金属市场分析师。只根据给定数据作答，不编造数据中没有的价格。`

const insightPrompt = `作为大宗商品专家，根据过去三个月高频采样数据 [%s]，分析近期铜价波动特征和支撑压力位。字数150字内。`

const forecastPrompt = `基于近期高频价格数据 [%s]，预测下周及下个月铜价方向。重点考虑库存与宏观环境。`

// Generator writes trend insights with Anthropic and search-grounded
// forecasts with Perplexity.
type Generator struct {
	AI           anthropic.Client
	Search       perplexity.Client
	InsightModel string
	SearchModel  string
	Timeout      time.Duration
}

// Insights summarizes the most recent samples of h.
func (g *Generator) Insights(ctx context.Context, h []model.PriceRecord) (string, error) {
	if len(h) == 0 {
		return "", eris.New("insight: empty history")
	}
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	resp, err := g.AI.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     g.InsightModel,
		MaxTokens: 512,
		System:    insightSystem,
		Messages: []anthropic.Message{
			{Role: "user", Content: fmt.Sprintf(insightPrompt, samples(h, insightSamples, ":", ";"))},
		},
	})
	if err != nil {
		return "", eris.Wrap(err, "insight: create message")
	}
	resp.Usage.LogCost(g.InsightModel, "insight")
	return strings.TrimSpace(resp.Text()), nil
}

// Forecast asks a search-grounded model for the near-term direction.
func (g *Generator) Forecast(ctx context.Context, h []model.PriceRecord) (string, error) {
	if len(h) == 0 {
		return "", eris.New("insight: empty history")
	}
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	resp, err := g.Search.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
		Model: g.SearchModel,
		Messages: []perplexity.Message{
			{Role: "user", Content: fmt.Sprintf(forecastPrompt, samples(h, forecastSamples, ": ", ", "))},
		},
		SearchRecencyFilter: perplexity.RecencyWeek,
	})
	if err != nil {
		return "", eris.Wrap(err, "insight: forecast")
	}
	return strings.TrimSpace(resp.Content()), nil
}

func (g *Generator) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.Timeout)
}

// samples renders the last n records as "date<kv>price" joined by sep.
func samples(h []model.PriceRecord, n int, kv, sep string) string {
	if len(h) > n {
		h = h[len(h)-n:]
	}
	parts := make([]string, len(h))
	for i, r := range h {
		parts[i] = r.Date + kv + strconv.FormatFloat(r.Price, 'f', -1, 64)
	}
	return strings.Join(parts, sep)
}
