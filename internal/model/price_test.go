package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRecord(t *testing.T) {
	m := DefaultMaterials()[0]
	r := NewRecord(m, Quote{Date: "2024-06-01", Price: 71500}, SourceDailySync)

	assert.NotEmpty(t, r.ID)
	assert.Equal(t, "2024-06-01", r.Date)
	assert.Equal(t, m.Name, r.Category)
	assert.Equal(t, m.Region, r.Region)
	assert.Equal(t, m.Spec, r.Specification)
	assert.Equal(t, 71500.0, r.Price)
	assert.Equal(t, "元/吨", r.Unit, "falls back to material unit")
	assert.Equal(t, SourceDailySync, r.Source)
	assert.Zero(t, r.Change)
}

func TestNewRecord_QuoteUnitWins(t *testing.T) {
	r := NewRecord(MaterialConfig{Unit: "元/吨"}, Quote{Date: "2024-06-01", Price: 9500, Unit: "USD/t"}, SourceImport)
	assert.Equal(t, "USD/t", r.Unit)
}

func TestNewRecord_UniqueIDs(t *testing.T) {
	m := DefaultMaterials()[0]
	a := NewRecord(m, Quote{Date: "2024-06-01", Price: 1}, SourceImport)
	b := NewRecord(m, Quote{Date: "2024-06-01", Price: 1}, SourceImport)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestActiveMaterials(t *testing.T) {
	ms := []MaterialConfig{
		{ID: "1", Active: true},
		{ID: "2", Active: false},
		{ID: "3", Active: true},
	}
	got := ActiveMaterials(ms)
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].ID)
	assert.Equal(t, "3", got[1].ID)
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-02-29")
	require.NoError(t, err)
	assert.Equal(t, "2024-02-29", FormatDate(d))

	_, err = ParseDate("2024/02/29")
	assert.Error(t, err)
}
