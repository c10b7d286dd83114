package model

// Progress is a snapshot of batch progress emitted while files are processed.
type Progress struct {
	BatchID          string `json:"batch_id"`
	Phase            Phase  `json:"phase"`
	Percent          int    `json:"percent"`
	CurrentFileLabel string `json:"current_file_label,omitempty"`
	FileIndex        int    `json:"file_index"`
	FileTotal        int    `json:"file_total"`
}

// Terminal is emitted exactly once when a batch finishes.
type Terminal struct {
	BatchID        string  `json:"batch_id"`
	Outcome        Outcome `json:"outcome"`
	NavigateTarget string  `json:"navigate_target,omitempty"`
	Succeeded      int     `json:"succeeded"`
	Failed         int     `json:"failed"`
	Error          string  `json:"error,omitempty"`
}
