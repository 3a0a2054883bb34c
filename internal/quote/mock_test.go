package quote

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/copper-cli/pkg/anthropic"
	"github.com/sells-group/copper-cli/pkg/perplexity"
)

type mockSearch struct {
	mock.Mock
}

func (m *mockSearch) ChatCompletion(ctx context.Context, req perplexity.ChatCompletionRequest) (*perplexity.ChatCompletionResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*perplexity.ChatCompletionResponse), args.Error(1)
}

type mockAI struct {
	mock.Mock
}

func (m *mockAI) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

func searchAnswer(text string) *perplexity.ChatCompletionResponse {
	return &perplexity.ChatCompletionResponse{
		Choices: []perplexity.Choice{{Message: perplexity.Message{Role: "assistant", Content: text}}},
	}
}

func aiAnswer(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{Content: []anthropic.ContentBlock{{Type: "text", Text: text}}}
}
