// Package quote asks AI providers for copper quotes and returns their raw
// text for extraction.
package quote

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/copper-cli/internal/model"
	"github.com/sells-group/copper-cli/internal/resilience"
	"github.com/sells-group/copper-cli/pkg/anthropic"
	"github.com/sells-group/copper-cli/pkg/perplexity"
)

// Fetcher returns raw provider text for a material. Parsing and validation
// are the caller's job.
type Fetcher interface {
	FetchCurrent(ctx context.Context, m model.MaterialConfig, date string) (string, error)
	FetchHistory(ctx context.Context, m model.MaterialConfig, weeks int) (string, error)
}

// Options configures an AIFetcher.
type Options struct {
	SearchModel       string
	SearchDomains     []string
	CleanupModel      string
	Timeout           time.Duration
	RequestsPerMinute int
}

const searchCurrentPrompt = `请搜索并获取 %s 地区 %s (%s) 在 %s 的最新市场现货报价。
重点参考上海有色网(SMM)或我的钢铁网。请给出价格、单位和报价日期。`

const searchHistoryPrompt = `请搜索并列出过去 %d 周内，每周一和周四 %s 地区 %s (%s) 的市场参考价。
请确保日期覆盖从 %d 周前至今每个星期的关键波动点，并给出每个价格对应的日期。`

const cleanupSystem = `你是数据整理助手。只输出 JSON，不要解释。文本中没有的数值用 null，不要推算。`

const cleanupCurrentPrompt = `从以下文本中提取电解铜现货价格。
只返回一个 JSON 对象，不要任何其他文字：
{"price": number, "date": "YYYY-MM-DD", "unit": string}
- price 为纯数字，不含千分位。
- date 为报价的确切日期，无法确定时使用 %s。
- unit 例如 元/吨。

文本：
%s`

const cleanupHistoryPrompt = `从以下文本中提取价格列表。
只返回一个 JSON 数组，不要任何其他文字，每个元素为：
{"price": number, "date": "YYYY-MM-DD"}
按日期升序排列，忽略无法确定日期的价格。

文本：
%s`

// AIFetcher runs a search-grounded query on Perplexity and has an Anthropic
// model rewrite the answer as JSON.
type AIFetcher struct {
	search  perplexity.Client
	ai      anthropic.Client
	opts    Options
	limiter *rate.Limiter
}

// NewAIFetcher creates an AIFetcher. A zero RequestsPerMinute disables
// rate limiting.
func NewAIFetcher(search perplexity.Client, ai anthropic.Client, opts Options) *AIFetcher {
	limit := rate.Inf
	if opts.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(opts.RequestsPerMinute))
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	return &AIFetcher{
		search:  search,
		ai:      ai,
		opts:    opts,
		limiter: rate.NewLimiter(limit, 1),
	}
}

// FetchCurrent asks for the quote of m on date (YYYY-MM-DD). It returns the
// cleanup model's JSON, or the search text when cleanup fails so free-text
// extraction can still run.
func (f *AIFetcher) FetchCurrent(ctx context.Context, m model.MaterialConfig, date string) (string, error) {
	log := zap.L().With(zap.String("region", m.Region), zap.String("date", date))

	raw, err := f.searchText(ctx, fmt.Sprintf(searchCurrentPrompt, m.Region, m.Name, m.Spec, date), perplexity.RecencyDay)
	if err != nil {
		return "", err
	}

	cleaned, err := f.cleanup(ctx, fmt.Sprintf(cleanupCurrentPrompt, date, raw), 256)
	if err != nil {
		log.Warn("quote: cleanup failed, using search text", zap.Error(err))
		return raw, nil
	}
	return cleaned, nil
}

// FetchHistory asks for Monday and Thursday quotes over the past weeks and
// returns a JSON array.
func (f *AIFetcher) FetchHistory(ctx context.Context, m model.MaterialConfig, weeks int) (string, error) {
	raw, err := f.searchText(ctx, fmt.Sprintf(searchHistoryPrompt, weeks, m.Region, m.Name, m.Spec, weeks), perplexity.RecencyYear)
	if err != nil {
		return "", err
	}
	return f.cleanup(ctx, fmt.Sprintf(cleanupHistoryPrompt, raw), 8192)
}

func (f *AIFetcher) searchText(ctx context.Context, prompt, recency string) (string, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return "", eris.Wrap(err, "quote: rate limit wait")
	}

	ctx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	temp := 0.1
	resp, err := f.search.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
		Model:               f.opts.SearchModel,
		Messages:            []perplexity.Message{{Role: "user", Content: prompt}},
		Temperature:         &temp,
		SearchRecencyFilter: recency,
		SearchDomainFilter:  f.opts.SearchDomains,
	})
	if err != nil {
		return "", resilience.NewExternalServiceError("perplexity", "search", err)
	}

	text := strings.TrimSpace(resp.Content())
	if text == "" {
		return "", resilience.NewExternalServiceError("perplexity", "search", eris.New("empty answer"))
	}
	zap.L().Debug("quote: search answer",
		zap.Int("chars", len(text)),
		zap.Int("citations", len(resp.Citations)),
	)
	return text, nil
}

func (f *AIFetcher) cleanup(ctx context.Context, prompt string, maxTokens int64) (string, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return "", eris.Wrap(err, "quote: rate limit wait")
	}

	ctx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	temp := 0.0
	resp, err := f.ai.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       f.opts.CleanupModel,
		MaxTokens:   maxTokens,
		System:      cleanupSystem,
		Messages:    []anthropic.Message{{Role: "user", Content: prompt}},
		Temperature: &temp,
	})
	if err != nil {
		return "", resilience.NewExternalServiceError("anthropic", "cleanup", err)
	}
	resp.Usage.LogCost(f.opts.CleanupModel, "quote_cleanup")

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", resilience.NewExternalServiceError("anthropic", "cleanup", eris.New("empty answer"))
	}
	return text, nil
}
