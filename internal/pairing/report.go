package pairing

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// TaskEntry is one task's terminal record in the run report.
type TaskEntry struct {
	OrderNo      string    `json:"order_no"`
	RowID        string    `json:"row_id,omitempty"`
	Status       string    `json:"status"`
	FailReason   string    `json:"fail_reason,omitempty"`
	SkipReason   string    `json:"skip_reason,omitempty"`
	RawSKU       string    `json:"raw_sku,omitempty"`
	Identifier   string    `json:"identifier,omitempty"`
	SKU          string    `json:"sku,omitempty"`
	ComboSKU     string    `json:"combo_sku,omitempty"`
	Blocks       int       `json:"product_blocks,omitempty"`
	Quantity     int       `json:"quantity,omitempty"`
	ArtifactPNG  string    `json:"artifact_png,omitempty"`
	ArtifactHTML string    `json:"artifact_html,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at,omitempty"`
}

// Report is the structured record of one pairing run. It is flushed even
// when the run dies early, so a partial batch is never silent.
type Report struct {
	RunID          string         `json:"run_id"`
	StartedAt      time.Time      `json:"started_at"`
	FinishedAt     time.Time      `json:"finished_at"`
	DegradedFilter bool           `json:"degraded_filter,omitempty"`
	FatalError     string         `json:"fatal_error,omitempty"`
	Tasks          []TaskEntry    `json:"tasks"`
	Counts         map[string]int `json:"counts"`
}

// NewReport starts an empty report with a fresh run id.
func NewReport() *Report {
	return &Report{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
		Counts:    make(map[string]int),
	}
}

// Add records a task in whatever state it reached.
func (r *Report) Add(t *Task) {
	entry := TaskEntry{
		OrderNo:      t.OrderNo,
		RowID:        t.RowID,
		Status:       t.Status.String(),
		FailReason:   string(t.FailReason),
		SkipReason:   string(t.SkipReason),
		RawSKU:       t.RawSKU,
		Identifier:   t.Generated.Identifier,
		SKU:          t.Generated.SKU,
		ComboSKU:     t.Generated.ComboSKU,
		Blocks:       t.Blocks,
		Quantity:     t.Quantity,
		ArtifactPNG:  t.ArtifactPNG,
		ArtifactHTML: t.ArtifactHTML,
		StartedAt:    t.StartedAt,
		FinishedAt:   t.FinishedAt,
	}
	r.Tasks = append(r.Tasks, entry)
	r.Counts[t.Status.String()]++
}

// Finish stamps the end of the run.
func (r *Report) Finish() {
	r.FinishedAt = time.Now()
}

// WriteJSON persists the report, creating parent directories as needed.
func (r *Report) WriteJSON(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create report dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
