package roster

import (
	"bytes"
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"
)

const exportSheet = "Roster"

var exportHeaders = []string{
	"Name", "Email", "Status", "Enrolled at", "Last activity", "Completed lessons", "Discussion posts", "Forum posts",
}

// Export renders the cohort's roster snapshot as an XLSX workbook and suggests a file name for it.
func (svc *Service) Export(ctx context.Context, cohortID string, filter Filter) (*bytes.Buffer, string, error) {
	rows, err := svc.Get(ctx, cohortID, filter)
	if err != nil {
		return nil, "", err
	}
	ref, err := svc.LastRefresh(ctx, cohortID)
	if err != nil {
		return nil, "", err
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	idx, err := f.NewSheet(exportSheet)
	if err != nil {
		return nil, "", errors.Wrap(err, "creating sheet")
	}
	f.SetActiveSheet(idx)
	_ = f.DeleteSheet("Sheet1")

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, "", errors.Wrap(err, "creating header style")
	}

	title := "Roster (never refreshed)"
	if !ref.RefreshedAt.IsZero() {
		title = fmt.Sprintf("Roster as of %s", ref.RefreshedAt.UTC().Format("2006-01-02 15:04 MST"))
	}
	lastCol, _ := excelize.ColumnNumberToName(len(exportHeaders))
	_ = f.SetCellValue(exportSheet, "A1", title)
	_ = f.MergeCell(exportSheet, "A1", lastCol+"1")
	_ = f.SetCellStyle(exportSheet, "A1", "A1", headerStyle)

	for i, h := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(exportSheet, cell, h)
		_ = f.SetCellStyle(exportSheet, cell, cell, headerStyle)
	}
	_ = f.SetColWidth(exportSheet, "A", "B", 28)
	_ = f.SetColWidth(exportSheet, "C", lastCol, 18)

	for r, row := range rows {
		values := []interface{}{
			row.Name,
			row.Email,
			string(row.EnrollmentStatus),
			row.EnrolledAt.UTC().Format("2006-01-02"),
			row.LastActivityAt.UTC().Format("2006-01-02 15:04"),
			row.CompletedLessons,
			row.DiscussionPosts,
			row.ForumPosts,
		}
		for c, v := range values {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+3)
			if err = f.SetCellValue(exportSheet, cell, v); err != nil {
				return nil, "", errors.Wrap(err, "writing cell")
			}
		}
	}

	buf := new(bytes.Buffer)
	if err = f.Write(buf); err != nil {
		return nil, "", errors.Wrap(err, "writing workbook")
	}
	return buf, fmt.Sprintf("roster_%s.xlsx", cohortID), nil
}
