package dataset

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"callfeedback/internal/aggregator"
	"callfeedback/internal/logger"
	"callfeedback/internal/types"
)

const (
	callsSheet   = "Calls"
	summarySheet = "Summary"
)

var callHeader = []any{
	"Record ID", "Call time", "Duration (s)", "Direction", "Customer", "Outcome", "Confidence",
	"Overall %", "Opening %", "Hearing %", "Proposal %", "Closing %", "Pattern", "Feedback",
}

// ExportCalls writes a workbook with one row per call and a summary sheet.
func ExportCalls(w io.Writer, project types.Project, calls []types.CallRecord) error {
	log := logger.Component("dataset.export").WithField("project_id", project.ID)

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", callsSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(callsSheet, "A1", &callHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, c := range calls {
		row := callRow(c)
		cellName, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(callsSheet, cellName, &row); err != nil {
			return fmt.Errorf("write call %d: %w", c.ID, err)
		}
	}

	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("add summary sheet: %w", err)
	}
	for i, row := range summaryRows(project, aggregator.Summarize(calls)) {
		cellName, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(summarySheet, cellName, &row); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	log.WithField("calls", len(calls)).Info("call export written")
	return nil
}

func callRow(c types.CallRecord) []any {
	customer := c.CalleeNumber
	if c.Direction == "inbound" {
		customer = c.CallerNumber
	}
	callTime := ""
	if !c.CallTime.IsZero() {
		callTime = c.CallTime.Format(time.RFC3339)
	}
	row := []any{c.ID, callTime, c.DurationSec, c.Direction, customer, c.Status.Label(), c.StatusConfidence}
	if m := c.ScriptMatch; m != nil {
		row = append(row, m.Overall, m.Phases.Opening, m.Phases.Hearing, m.Phases.Proposal, m.Phases.Closing)
	} else {
		row = append(row, "", "", "", "", "")
	}
	row = append(row, string(c.CausalPattern))
	if c.Feedback != nil {
		row = append(row, *c.Feedback)
	} else {
		row = append(row, "")
	}
	return row
}

func summaryRows(project types.Project, s aggregator.Summary) [][]any {
	rows := [][]any{
		{"Project", project.Name},
		{"Total calls", s.TotalCalls},
		{"Analyzed calls", s.AnalyzedCalls},
		{"Feedback written", s.FeedbackCalls},
		{"Average overall match %", s.AvgOverall},
		{},
		{"Outcome", "Calls"},
	}
	for _, st := range []types.CallStatus{types.StatusDecisionMakerReached, types.StatusGatekeeperOnly, types.StatusNoConversation} {
		rows = append(rows, []any{st.Label(), s.StatusCounts[st]})
	}
	rows = append(rows, []any{}, []any{"Call length", "Reach rate"})
	buckets := make([]string, 0, len(s.ReachByLength))
	for b := range s.ReachByLength {
		buckets = append(buckets, b)
	}
	sort.Strings(buckets)
	for _, b := range buckets {
		rows = append(rows, []any{b, s.ReachByLength[b]})
	}
	rows = append(rows, []any{}, []any{"Pattern", "Calls"})
	for _, p := range []types.CausalPattern{types.PatternHearingInsufficient, types.PatternProposalInsufficient, types.PatternClosingInsufficient, types.PatternGeneral} {
		rows = append(rows, []any{string(p), s.PatternCounts[p]})
	}
	return rows
}
