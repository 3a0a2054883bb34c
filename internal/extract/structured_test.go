package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/copper-cli/internal/model"
)

func TestStructured(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected string
		want     model.Quote
		wantErr  string
	}{
		{
			name: "plain object",
			raw:  `{"price": 71500, "date": "2024-06-01", "unit": "元/吨"}`,
			want: model.Quote{Date: "2024-06-01", Price: 71500, Unit: "元/吨"},
		},
		{
			name: "fenced with prose",
			raw:  "Here you go:\n```json\n{\"price\": 78120.5, \"date\": \"2024-06-02\"}\n```",
			want: model.Quote{Date: "2024-06-02", Price: 78120.5},
		},
		{
			name:     "missing date uses expected",
			raw:      `{"price": 71500}`,
			expected: "2024-06-03",
			want:     model.Quote{Date: "2024-06-03", Price: 71500},
		},
		{
			name:    "price as string",
			raw:     `{"price": "71500", "date": "2024-06-01"}`,
			wantErr: "want number",
		},
		{
			name:    "missing price",
			raw:     `{"date": "2024-06-01"}`,
			wantErr: "missing price",
		},
		{
			name:    "null price",
			raw:     `{"price": null, "date": "2024-06-01"}`,
			wantErr: "missing price",
		},
		{
			name:    "price out of range",
			raw:     `{"price": 0, "date": "2024-06-01"}`,
			wantErr: "outside",
		},
		{
			name:    "date wrong type",
			raw:     `{"price": 71500, "date": 20240601}`,
			wantErr: "want string",
		},
		{
			name:    "date wrong format",
			raw:     `{"price": 71500, "date": "June 1, 2024"}`,
			wantErr: "not YYYY-MM-DD",
		},
		{
			name:    "not json",
			raw:     "I could not find a price today.",
			wantErr: "not a JSON object",
		},
	}

	var e Extractor
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := e.Structured(tt.raw, tt.expected)
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

func TestHistory_DropsMalformedEntries(t *testing.T) {
	raw := `[
		{"price": 72000, "date": "2024-01-04"},
		{"price": 71000, "date": "2024-01-01"},
		{"price": "n/a", "date": "2024-01-08"},
		{"price": 73000},
		{"price": 5, "date": "2024-01-11"},
		"garbage",
		{"price": 71500, "date": "2024-01-01"}
	]`

	var e Extractor
	got, err := e.History(raw)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "2024-01-01", got[0].Date)
	assert.Equal(t, 71000.0, got[0].Price, "first entry wins on duplicate date")
	assert.Equal(t, "2024-01-04", got[1].Date)
}

func TestHistory_EmptyListIsValid(t *testing.T) {
	var e Extractor
	got, err := e.History("```json\n[]\n```")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestHistory_WrappedObject(t *testing.T) {
	var e Extractor
	got, err := e.History(`{"prices": [{"price": 70100, "date": "2024-02-01"}]}`)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 70100.0, got[0].Price)
}

func TestHistory_Unparseable(t *testing.T) {
	var e Extractor
	_, err := e.History("no data could be located")
	require.Error(t, err)
	assert.True(t, IsExtractionError(err))

	_, err = e.History("")
	require.Error(t, err)
}

func TestCleanJSON(t *testing.T) {
	assert.Equal(t, `{"a":1}`, cleanJSON("```json\n{\"a\":1}\n```", '{', '}'))
	assert.Equal(t, `[1,2]`, cleanJSON("result: [1,2] done", '[', ']'))
	assert.Equal(t, "plain", cleanJSON("  plain  ", '{', '}'))
}

func TestIsJSONObject(t *testing.T) {
	assert.True(t, IsJSONObject(`{"price": null, "date": "2024-05-20"}`))
	assert.True(t, IsJSONObject("```json\n{\"price\": \"n/a\"}\n```"))
	assert.False(t, IsJSONObject("今日上海电解铜现货均价 71,500 元/吨"))
	assert.False(t, IsJSONObject(`{"price": 71500`))
	assert.False(t, IsJSONObject(""))
}
