package ingest

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/copper-cli/internal/model"
)

// fakeFetcher answers from funcs and counts calls.
type fakeFetcher struct {
	current      func(ctx context.Context, m model.MaterialConfig, date string) (string, error)
	history      func(ctx context.Context, m model.MaterialConfig, weeks int) (string, error)
	currentCalls atomic.Int32
	historyCalls atomic.Int32
}

func (f *fakeFetcher) FetchCurrent(ctx context.Context, m model.MaterialConfig, date string) (string, error) {
	f.currentCalls.Add(1)
	return f.current(ctx, m, date)
}

func (f *fakeFetcher) FetchHistory(ctx context.Context, m model.MaterialConfig, weeks int) (string, error) {
	f.historyCalls.Add(1)
	return f.history(ctx, m, weeks)
}

// memStore is an in-memory store.Store.
type memStore struct {
	mu        sync.Mutex
	recs      []model.PriceRecord
	appendErr error
}

func (s *memStore) Load(context.Context) ([]model.PriceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.PriceRecord(nil), s.recs...), nil
}

func (s *memStore) AppendIfAbsent(_ context.Context, r model.PriceRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return false, s.appendErr
	}
	for _, e := range s.recs {
		if e.Key() == r.Key() {
			return false, nil
		}
	}
	s.recs = append(s.recs, r)
	return true, nil
}

func (s *memStore) LastDate(context.Context, string) (string, error) { return "", nil }
func (s *memStore) Migrate(context.Context) error                    { return nil }
func (s *memStore) Close() error                                     { return nil }

type mockInsight struct {
	mock.Mock
}

func (m *mockInsight) Insights(ctx context.Context, h []model.PriceRecord) (string, error) {
	args := m.Called(ctx, h)
	return args.String(0), args.Error(1)
}

func (m *mockInsight) Forecast(ctx context.Context, h []model.PriceRecord) (string, error) {
	args := m.Called(ctx, h)
	return args.String(0), args.Error(1)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) CycleFailed(ctx context.Context, mode string, cause error) {
	m.Called(ctx, mode, cause)
}
