package report

import (
	"io"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/rfp-ingest/internal/model"
)

const (
	summarySheet = "Batch"
	filesSheet   = "Files"
)

var fileColumns = []string{
	"#", "File", "Size", "Document ID", "Job ID", "State", "Outcome", "Path",
	"Fallback Trigger", "Sections Built", "Poll Attempts", "Error", "Q&A Error",
	"Started", "Finished",
}

// WriteXLSX writes a two-sheet workbook: a key/value batch summary and one
// row per file.
func WriteXLSX(w io.Writer, b *model.UploadBatch) error {
	f := xlsx.NewFile()

	summary, err := f.AddSheet(summarySheet)
	if err != nil {
		return eris.Wrap(err, "xlsx: add summary sheet")
	}
	for _, kv := range [][2]string{
		{"Batch ID", b.ID},
		{"Project ID", b.ProjectID},
		{"Phase", b.Phase.Label()},
		{"Percent", strconv.Itoa(b.Percent)},
		{"Outcome", string(b.Outcome)},
		{"Files", strconv.Itoa(b.FileCount())},
		{"Succeeded", strconv.Itoa(b.Succeeded)},
		{"Failed", strconv.Itoa(b.Failed)},
		{"Navigate To", b.NavigateTarget},
		{"Error", b.Error},
		{"Created", formatTime(b.CreatedAt)},
		{"Updated", formatTime(b.UpdatedAt)},
	} {
		addStringRow(summary, kv[:])
	}

	files, err := f.AddSheet(filesSheet)
	if err != nil {
		return eris.Wrap(err, "xlsx: add files sheet")
	}
	addStringRow(files, fileColumns)
	for _, t := range b.Files {
		row := files.AddRow()
		row.AddCell().SetInt(t.Index + 1)
		row.AddCell().SetString(t.File.Name)
		row.AddCell().SetInt64(t.File.Size)
		row.AddCell().SetString(t.DocumentID)
		row.AddCell().SetString(t.JobID)
		row.AddCell().SetString(string(t.State))
		row.AddCell().SetString(string(t.Outcome))
		row.AddCell().SetString(string(t.Path))
		row.AddCell().SetString(string(t.FallbackTrigger))
		row.AddCell().SetInt(t.SectionsBuilt)
		row.AddCell().SetInt(t.PollAttempts)
		row.AddCell().SetString(t.Error)
		row.AddCell().SetString(t.QAError)
		row.AddCell().SetString(formatTime(t.StartedAt))
		row.AddCell().SetString(formatTime(t.FinishedAt))
	}

	return eris.Wrap(f.Write(w), "xlsx: write workbook")
}

func addStringRow(sheet *xlsx.Sheet, values []string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
