package dataset

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"callfeedback/internal/types"
)

func workbook(t *testing.T, rows [][]any) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	for i, row := range rows {
		cellName, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cellName, &row))
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return &buf
}

func TestLoadHearingItemsDetectsColumns(t *testing.T) {
	buf := workbook(t, [][]any{
		{"Question script", "Item name", "Required", "Display order"},
		{"When do you plan to switch?", "timeline", "", "2"},
		{"What budget do you have?", "budget", "yes", "1"},
		{"", "", "", ""},
	})
	items, err := LoadHearingItems(buf)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, types.HearingItem{Name: "timeline", Script: "When do you plan to switch?", DisplayOrder: 2}, items[0])
	assert.Equal(t, "budget", items[1].Name)
	assert.True(t, items[1].IsDefault)
	assert.Equal(t, 1, items[1].DisplayOrder)
}

func TestLoadHearingItemsFallsBackToFirstColumn(t *testing.T) {
	buf := workbook(t, [][]any{
		{"col a"},
		{"decision process"},
	})
	items, err := LoadHearingItems(buf)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "decision process", items[0].Name)
	assert.Equal(t, 1, items[0].DisplayOrder)
}

func TestLoadHearingItemsRejectsTooMany(t *testing.T) {
	rows := [][]any{{"name"}}
	for i := 0; i < types.MaxHearingItems+1; i++ {
		rows = append(rows, []any{string(rune('a' + i))})
	}
	_, err := LoadHearingItems(workbook(t, rows))
	assert.Error(t, err)
}

func TestExportCalls(t *testing.T) {
	fb := "Ask for the meeting."
	calls := []types.CallRecord{
		{
			ID: 7, CallTime: time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC), DurationSec: 120,
			Direction: "outbound", CalleeNumber: "+81311112222",
			Status: types.StatusDecisionMakerReached, StatusConfidence: 0.8,
			ScriptMatch:   &types.ScriptMatch{Overall: 55, Phases: types.PhaseScores{Opening: 70, Hearing: 50, Proposal: 50, Closing: 40}},
			CausalPattern: types.PatternClosingInsufficient,
			Feedback:      &fb,
		},
		{ID: 8, DurationSec: 5, Direction: "inbound", CallerNumber: "+81300000000", Status: types.StatusNoConversation, StatusConfidence: 1},
	}
	var buf bytes.Buffer
	require.NoError(t, ExportCalls(&buf, types.Project{ID: 1, Name: "Alpha"}, calls))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	assert.Equal(t, []string{callsSheet, summarySheet}, f.GetSheetList())

	rows, err := f.GetRows(callsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Record ID", rows[0][0])
	assert.Equal(t, "+81311112222", rows[1][4])
	assert.Equal(t, "Reached decision-maker", rows[1][5])
	assert.Equal(t, "closing_insufficient", rows[1][12])
	assert.Equal(t, "Ask for the meeting.", rows[1][13])
	assert.Equal(t, "+81300000000", rows[2][4])

	summary, err := f.GetRows(summarySheet)
	require.NoError(t, err)
	assert.Equal(t, []string{"Project", "Alpha"}, summary[0])
	assert.Equal(t, []string{"Total calls", "2"}, summary[1])
}
