package extract

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/copper-cli/internal/model"
)

func TestCurrent_AcceptsValid(t *testing.T) {
	var e Extractor
	q, err := e.Current("今日价格为71500元/吨", "2024-06-01")
	require.NoError(t, err)
	assert.Equal(t, model.Quote{Date: "2024-06-01", Price: 71500, Unit: "元/吨"}, q)
}

func TestCurrent_RejectsNoise(t *testing.T) {
	var e Extractor
	raw := "今日铜价上涨，具体数字暂无"
	_, err := e.Current(raw, "2024-06-01")
	require.Error(t, err)

	var ee *ExtractionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, raw, ee.Raw)
	assert.True(t, IsExtractionError(err))
}

func TestCurrent(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected string
		want     model.Quote
		wantErr  string
	}{
		{
			name:     "thousands separator",
			raw:      "SMM 1#电解铜均价 71,850 元/吨，较前日上涨 120 元。",
			expected: "2024-06-03",
			want:     model.Quote{Date: "2024-06-03", Price: 71850, Unit: "元/吨"},
		},
		{
			name:     "full-width digits and slash",
			raw:      "均价７２，３００元／吨",
			expected: "2024-06-03",
			want:     model.Quote{Date: "2024-06-03", Price: 72300, Unit: "元/吨"},
		},
		{
			name:     "ten-thousand suffix",
			raw:      "铜价约7.86万元/吨",
			expected: "2024-06-03",
			want:     model.Quote{Date: "2024-06-03", Price: 78600, Unit: "元/吨"},
		},
		{
			name: "date taken from text",
			raw:  "2024-05-28 上海现货铜 78,450",
			want: model.Quote{Date: "2024-05-28", Price: 78450},
		},
		{
			name: "chinese date in text",
			raw:  "2024年5月8日，长江现货 1#铜 均价 77910 元/吨",
			want: model.Quote{Date: "2024-05-08", Price: 77910, Unit: "元/吨"},
		},
		{
			name:     "skips small numbers before the price",
			raw:      "上涨 350 元，报 79120 元/吨",
			expected: "2024-06-03",
			want:     model.Quote{Date: "2024-06-03", Price: 79120, Unit: "元/吨"},
		},
		{
			name:     "full-width comma between change and price",
			raw:      "较昨日上涨300，71500元/吨",
			expected: "2024-06-01",
			want:     model.Quote{Date: "2024-06-01", Price: 71500, Unit: "元/吨"},
		},
		{
			name:     "comma between change and price",
			raw:      "涨300,71500元/吨",
			expected: "2024-06-01",
			want:     model.Quote{Date: "2024-06-01", Price: 71500, Unit: "元/吨"},
		},
		{
			name:     "below floor",
			raw:      "价格为 9500 美元/吨",
			expected: "2024-06-03",
			wantErr:  "no price",
		},
		{
			name:     "above ceiling",
			raw:      "价格为 7150000",
			expected: "2024-06-03",
			wantErr:  "no price",
		},
		{
			name:    "missing date",
			raw:     "价格为 71500",
			wantErr: "missing date",
		},
		{
			name:     "bad expected date",
			raw:      "价格为 71500",
			expected: "06/01/2024",
			wantErr:  "not YYYY-MM-DD",
		},
		{
			name:     "empty",
			raw:      "   ",
			expected: "2024-06-03",
			wantErr:  "empty response",
		},
	}

	var e Extractor
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := e.Current(tt.raw, tt.expected)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.True(t, IsExtractionError(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, q)
		})
	}
}

func TestCurrent_CustomBounds(t *testing.T) {
	e := New(Bounds{Min: 5000, Max: 15000}, "USD/t")
	q, err := e.Current("LME copper settled at 9,640 today", "2024-06-03")
	require.NoError(t, err)
	assert.Equal(t, 9640.0, q.Price)
	assert.Empty(t, q.Unit)
	assert.Equal(t, "USD/t", e.ResolveUnit(q.Unit, ""))
}

func TestResolveUnit(t *testing.T) {
	var zero Extractor
	assert.Equal(t, "美元/吨", zero.ResolveUnit("美元/吨", "元/吨"))
	assert.Equal(t, "USD/t", zero.ResolveUnit("", "USD/t"))
	assert.Equal(t, DefaultUnit, zero.ResolveUnit("", ""))

	e := New(DefaultBounds, "CNY/t")
	assert.Equal(t, "CNY/t", e.ResolveUnit("", ""))
}

func TestCandidates(t *testing.T) {
	digits := func(cs []candidate) []string {
		var out []string
		for _, c := range cs {
			out = append(out, c.digits)
		}
		return out
	}

	assert.Equal(t, []string{"71500"}, digits(candidates("71500")))
	assert.Equal(t, []string{"71850", "71", "850"}, digits(candidates("71,850")))
	assert.Equal(t, []string{"300", "71500"}, digits(candidates("300,71500")))
	assert.Equal(t, []string{"1234", "567"}, digits(candidates("1234,567")))
}

func TestCurrent_TruncatesRaw(t *testing.T) {
	var e Extractor
	raw := strings.Repeat("无", maxRawLen)
	_, err := e.Current(raw, "2024-06-03")
	var ee *ExtractionError
	require.ErrorAs(t, err, &ee)
	assert.LessOrEqual(t, len(ee.Raw), maxRawLen)
	assert.True(t, utf8.ValidString(ee.Raw))
}

func TestValidate(t *testing.T) {
	var e Extractor
	assert.NoError(t, e.Validate(model.Quote{Date: "2024-06-03", Price: 71000}))
	assert.Error(t, e.Validate(model.Quote{Date: "2024-06-03", Price: 100}))
	assert.Error(t, e.Validate(model.Quote{Date: "", Price: 71000}))
}
