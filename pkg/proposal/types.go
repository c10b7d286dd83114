package proposal

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// JobState is the normalized lifecycle state of an async analysis job.
type JobState string

const (
	JobPending  JobState = "PENDING"
	JobProgress JobState = "PROGRESS"
	JobSuccess  JobState = "SUCCESS"
	JobFailure  JobState = "FAILURE"
)

// ParseJobState maps the status spellings used by the job queue onto a
// JobState. Unknown values are treated as pending.
func ParseJobState(s string) JobState {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "PROGRESS", "STARTED", "RUNNING", "IN_PROGRESS", "PROCESSING":
		return JobProgress
	case "SUCCESS", "COMPLETED", "COMPLETE", "DONE":
		return JobSuccess
	case "FAILURE", "FAILED", "ERROR":
		return JobFailure
	default:
		return JobPending
	}
}

// JobProgressInfo is the optional progress payload on a running job.
type JobProgressInfo struct {
	Step    string  `json:"step"`
	Percent float64 `json:"percent"`
}

// JobStatus is the response from GET /jobs/{id}.
type JobStatus struct {
	JobID    string           `json:"job_id,omitempty"`
	Status   JobState         `json:"status"`
	Progress *JobProgressInfo `json:"progress,omitempty"`
	Error    string           `json:"error,omitempty"`
	Result   *AnalysisResult  `json:"result,omitempty"`
}

var (
	stepKeys    = []string{"step", "current_step", "stage", "phase"}
	percentKeys = []string{"percent", "progress", "percentage", "pct"}
)

// UnmarshalJSON accepts the field-name variants emitted by different
// backend workers. Progress may be a nested object or flat top-level fields.
func (s *JobStatus) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return eris.Wrap(err, "proposal: decode job status")
	}

	*s = JobStatus{}
	s.JobID = firstString(raw, "job_id", "id", "task_id")
	s.Status = ParseJobState(firstString(raw, "status", "state"))
	s.Error = firstString(raw, "error", "message", "detail")

	if p, ok := raw["progress"]; ok && isObject(p) {
		var nested map[string]json.RawMessage
		if err := json.Unmarshal(p, &nested); err != nil {
			return eris.Wrap(err, "proposal: decode job progress")
		}
		s.Progress = progressFrom(nested)
	} else {
		s.Progress = progressFrom(raw)
	}

	if r, ok := raw["result"]; ok && isObject(r) {
		var res AnalysisResult
		if err := json.Unmarshal(r, &res); err != nil {
			return eris.Wrap(err, "proposal: decode job result")
		}
		s.Result = &res
	}
	return nil
}

func progressFrom(fields map[string]json.RawMessage) *JobProgressInfo {
	step := firstString(fields, stepKeys...)
	pct, hasPct := firstNumber(fields, percentKeys...)
	if step == "" && !hasPct {
		return nil
	}
	return &JobProgressInfo{Step: step, Percent: pct}
}

// SectionID is a section type identifier that the backend may send as a
// JSON string or number.
type SectionID string

// UnmarshalJSON accepts both string and numeric identifiers.
func (id *SectionID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return eris.Wrap(err, "proposal: decode section id")
		}
		*id = SectionID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return eris.Wrap(err, "proposal: decode section id")
	}
	*id = SectionID(n.String())
	return nil
}

// SuggestedSection is one section proposed by document analysis.
type SuggestedSection struct {
	SectionTypeID SectionID `json:"section_type_id"`
	Title         string    `json:"title,omitempty"`
	Selected      *bool     `json:"selected,omitempty"`
}

// IsSelected reports whether the section should be built. Only an explicit
// false deselects.
func (s SuggestedSection) IsSelected() bool {
	return s.Selected == nil || *s.Selected
}

// AnalysisResult is the outcome of document analysis.
type AnalysisResult struct {
	DocumentID         string             `json:"document_id,omitempty"`
	SuggestedSections  []SuggestedSection `json:"suggested_sections"`
	QuestionsExtracted int                `json:"questions_extracted"`
}

// SelectedSectionIDs returns the ids of sections that should be built, in
// order, skipping empty ids.
func (r *AnalysisResult) SelectedSectionIDs() []string {
	if r == nil {
		return nil
	}
	var ids []string
	for _, s := range r.SuggestedSections {
		if !s.IsSelected() || s.SectionTypeID == "" {
			continue
		}
		ids = append(ids, string(s.SectionTypeID))
	}
	return ids
}

func isObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}

func firstString(fields map[string]json.RawMessage, keys ...string) string {
	for _, k := range keys {
		v, ok := fields[k]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(v, &s); err == nil && s != "" {
			return s
		}
	}
	return ""
}

func firstNumber(fields map[string]json.RawMessage, keys ...string) (float64, bool) {
	for _, k := range keys {
		v, ok := fields[k]
		if !ok {
			continue
		}
		var f float64
		if err := json.Unmarshal(v, &f); err == nil {
			return f, true
		}
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			if f, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(s), "%"), 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}
