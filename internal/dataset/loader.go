// Package dataset moves call data in and out of spreadsheets: hearing
// checklists come in from xlsx, project call logs go out to xlsx.
package dataset

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"callfeedback/internal/types"
)

// LoadHearingItems reads a hearing checklist from the first sheet. Columns
// are detected by header text; without a recognizable name column the first
// column is used.
func LoadHearingItems(r io.Reader) ([]types.HearingItem, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) <= 1 {
		return nil, fmt.Errorf("no data rows")
	}

	nameIdx, scriptIdx, defaultIdx, orderIdx := -1, -1, -1, -1
	for i, h := range rows[0] {
		l := strings.ToLower(strings.TrimSpace(h))
		switch {
		case strings.Contains(l, "order") || strings.Contains(l, "順"):
			if orderIdx == -1 {
				orderIdx = i
			}
		case strings.Contains(l, "default") || strings.Contains(l, "required") || strings.Contains(l, "必須"):
			if defaultIdx == -1 {
				defaultIdx = i
			}
		case strings.Contains(l, "script") || strings.Contains(l, "question") || strings.Contains(l, "トーク"):
			if scriptIdx == -1 {
				scriptIdx = i
			}
		case strings.Contains(l, "name") || strings.Contains(l, "item") || strings.Contains(l, "項目"):
			if nameIdx == -1 {
				nameIdx = i
			}
		}
	}
	if nameIdx == -1 {
		nameIdx = 0
	}

	var out []types.HearingItem
	for i, row := range rows[1:] {
		name := cell(row, nameIdx)
		if name == "" {
			continue
		}
		item := types.HearingItem{
			Name:         name,
			Script:       cell(row, scriptIdx),
			IsDefault:    truthy(cell(row, defaultIdx)),
			DisplayOrder: i + 1,
		}
		if n, err := strconv.Atoi(cell(row, orderIdx)); err == nil {
			item.DisplayOrder = n
		}
		out = append(out, item)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no hearing items found")
	}
	if len(out) > types.MaxHearingItems {
		return nil, fmt.Errorf("%d hearing items exceeds limit of %d", len(out), types.MaxHearingItems)
	}
	return out, nil
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func truthy(s string) bool {
	switch strings.ToLower(s) {
	case "1", "true", "yes", "y", "x", "○", "はい":
		return true
	}
	return false
}
