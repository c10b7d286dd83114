package model

import (
	"fmt"
	"time"
)

// FileState is the per-file processing state driven by the ingestor.
type FileState string

const (
	FileStateUploading        FileState = "uploading"
	FileStateParsing          FileState = "parsing"
	FileStateAsyncSubmitted   FileState = "async_submitted"
	FileStatePolling          FileState = "polling"
	FileStateAsyncSubmitError FileState = "async_submit_error"
	FileStateTimeout          FileState = "timeout"
	FileStateJobFailure       FileState = "job_failure"
	FileStateFallbackRunning  FileState = "fallback_running"
	FileStateBuildingSections FileState = "building_sections"
	FileStatePopulatingQA     FileState = "populating_qa"
	FileStateDone             FileState = "done"
	FileStateFailed           FileState = "failed"
)

// Terminal reports whether the state is final.
func (s FileState) Terminal() bool {
	return s == FileStateDone || s == FileStateFailed
}

// Outcome is the terminal result of a file or a batch.
type Outcome string

const (
	OutcomePending Outcome = ""
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"

	// Batch-level outcomes.
	OutcomeComplete Outcome = "complete"
	OutcomeError    Outcome = "error"
)

// AnalysisPath records which route produced a file's analysis.
type AnalysisPath string

const (
	PathAsync    AnalysisPath = "async"
	PathFallback AnalysisPath = "fallback"
)

// FallbackTrigger records why the synchronous fallback ran.
type FallbackTrigger string

const (
	TriggerTimeout     FallbackTrigger = "timeout"
	TriggerSubmitError FallbackTrigger = "submit_error"
)

// FileRef points at a local document queued for ingest.
type FileRef struct {
	Name string `json:"name" yaml:"name"`
	Path string `json:"path" yaml:"path"`
	Size int64  `json:"size" yaml:"size"`
}

// FileTask tracks one document through the ingest pipeline.
type FileTask struct {
	ID              string          `json:"id" yaml:"id"`
	BatchID         string          `json:"batch_id" yaml:"batch_id"`
	Index           int             `json:"index" yaml:"index"`
	Total           int             `json:"total" yaml:"total"`
	File            FileRef         `json:"file" yaml:"file"`
	DocumentID      string          `json:"document_id,omitempty" yaml:"document_id,omitempty"`
	JobID           string          `json:"job_id,omitempty" yaml:"job_id,omitempty"`
	State           FileState       `json:"state" yaml:"state"`
	Phase           Phase           `json:"phase" yaml:"phase"`
	Percent         int             `json:"percent" yaml:"percent"`
	Outcome         Outcome         `json:"outcome,omitempty" yaml:"outcome,omitempty"`
	Path            AnalysisPath    `json:"path,omitempty" yaml:"path,omitempty"`
	FallbackTrigger FallbackTrigger `json:"fallback_trigger,omitempty" yaml:"fallback_trigger,omitempty"`
	SectionsBuilt   int             `json:"sections_built" yaml:"sections_built"`
	PollAttempts    int             `json:"poll_attempts" yaml:"poll_attempts"`
	Error           string          `json:"error,omitempty" yaml:"error,omitempty"`
	QAError         string          `json:"qa_error,omitempty" yaml:"qa_error,omitempty"`
	StartedAt       time.Time       `json:"started_at" yaml:"started_at"`
	FinishedAt      time.Time       `json:"finished_at" yaml:"finished_at"`
}

// Label is the display label for the file ("2/3 rfp.pdf").
func (f *FileTask) Label() string {
	return fmt.Sprintf("%d/%d %s", f.Index+1, f.Total, f.File.Name)
}

// UploadBatch owns the aggregate progress of one multi-file upload.
type UploadBatch struct {
	ID               string      `json:"id" yaml:"id"`
	ProjectID        string      `json:"project_id" yaml:"project_id"`
	Files            []*FileTask `json:"files" yaml:"files"`
	Phase            Phase       `json:"phase" yaml:"phase"`
	Percent          int         `json:"percent" yaml:"percent"`
	CurrentFileLabel string      `json:"current_file_label,omitempty" yaml:"current_file_label,omitempty"`
	Outcome          Outcome     `json:"outcome,omitempty" yaml:"outcome,omitempty"`
	ShouldNavigate   bool        `json:"should_navigate" yaml:"should_navigate"`
	NavigateTarget   string      `json:"navigate_target,omitempty" yaml:"navigate_target,omitempty"`
	Succeeded        int         `json:"succeeded" yaml:"succeeded"`
	Failed           int         `json:"failed" yaml:"failed"`
	Error            string      `json:"error,omitempty" yaml:"error,omitempty"`
	CreatedAt        time.Time   `json:"created_at" yaml:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at" yaml:"updated_at"`
}

// FileCount returns the number of files in the batch.
func (b *UploadBatch) FileCount() int {
	return len(b.Files)
}
