package report

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/rfp-ingest/internal/model"
)

func sampleBatch() *model.UploadBatch {
	ts := time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)
	return &model.UploadBatch{
		ID:             "b1",
		ProjectID:      "proj-1",
		Phase:          model.PhaseComplete,
		Percent:        100,
		Outcome:        model.OutcomeComplete,
		ShouldNavigate: true,
		NavigateTarget: "/projects/proj-1/proposal",
		Succeeded:      1,
		Failed:         1,
		CreatedAt:      ts,
		UpdatedAt:      ts.Add(time.Minute),
		Files: []*model.FileTask{
			{
				ID: "f1", BatchID: "b1", Index: 0, Total: 2,
				File:       model.FileRef{Name: "rfp.pdf", Size: 1024},
				DocumentID: "doc-1", JobID: "job-1",
				State: model.FileStateDone, Outcome: model.OutcomeSuccess,
				Path: model.PathFallback, FallbackTrigger: model.TriggerTimeout,
				SectionsBuilt: 3, PollAttempts: 180,
				StartedAt: ts, FinishedAt: ts.Add(30 * time.Second),
			},
			{
				ID: "f2", BatchID: "b1", Index: 1, Total: 2,
				File:  model.FileRef{Name: "addendum.docx", Size: 2048},
				State: model.FileStateFailed, Outcome: model.OutcomeFailure,
				Error: "document upload failed: HTTP 422",
			},
		},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatJSON, false},
		{"json", FormatJSON, false},
		{"YAML", FormatYAML, false},
		{"yml", FormatYAML, false},
		{" xlsx ", FormatXLSX, false},
		{"csv", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWrite_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleBatch(), FormatJSON))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "b1", got["id"])
	assert.Equal(t, "complete", got["outcome"])
	assert.Equal(t, "/projects/proj-1/proposal", got["navigate_target"])
	files, ok := got["files"].([]any)
	require.True(t, ok)
	assert.Len(t, files, 2)
}

func TestWrite_YAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleBatch(), FormatYAML))

	var got struct {
		ID    string `yaml:"id"`
		Files []struct {
			Outcome         string `yaml:"outcome"`
			FallbackTrigger string `yaml:"fallback_trigger"`
		} `yaml:"files"`
	}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "b1", got.ID)
	require.Len(t, got.Files, 2)
	assert.Equal(t, "success", got.Files[0].Outcome)
	assert.Equal(t, "timeout", got.Files[0].FallbackTrigger)
	assert.Equal(t, "failure", got.Files[1].Outcome)
}

func TestWrite_Errors(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, Write(&buf, nil, FormatJSON))
	assert.Error(t, Write(&buf, sampleBatch(), Format("pdf")))
}

func sheetRows(t *testing.T, sheet *xlsx.Sheet) [][]string {
	t.Helper()
	var rows [][]string
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}
	return rows
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleBatch(), FormatXLSX))

	f, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, f.Sheets, 2)

	summary := sheetRows(t, f.Sheet[summarySheet])
	assert.Equal(t, []string{"Batch ID", "b1"}, summary[0])
	assert.Equal(t, []string{"Phase", "Complete"}, summary[2])
	assert.Equal(t, []string{"Succeeded", "1"}, summary[6])
	assert.Equal(t, []string{"Created", "2026-05-06T07:08:09Z"}, summary[10])

	files := sheetRows(t, f.Sheet[filesSheet])
	require.Len(t, files, 3)
	assert.Equal(t, fileColumns, files[0])
	assert.Equal(t, "1", files[1][0])
	assert.Equal(t, "rfp.pdf", files[1][1])
	assert.Equal(t, "1024", files[1][2])
	assert.Equal(t, "fallback", files[1][7])
	assert.Equal(t, "timeout", files[1][8])
	assert.Equal(t, "180", files[1][10])
	assert.Equal(t, "failure", files[2][6])
	assert.Equal(t, "document upload failed: HTTP 422", files[2][11])
}
