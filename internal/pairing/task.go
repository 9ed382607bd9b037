package pairing

import (
	"fmt"
	"time"

	"skupair/internal/sku"
)

// Status tracks a task through the pairing pipeline. Paired, Skipped and
// Failed are terminal.
type Status int

const (
	StatusDiscovered Status = iota
	StatusDetailOpened
	StatusExtracted
	StatusSearching
	StatusPaired
	StatusSkipped
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusDiscovered:
		return "discovered"
	case StatusDetailOpened:
		return "detail_opened"
	case StatusExtracted:
		return "extracted"
	case StatusSearching:
		return "searching"
	case StatusPaired:
		return "paired"
	case StatusSkipped:
		return "skipped"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether a task in this status is done.
func (s Status) Terminal() bool {
	return s == StatusPaired || s == StatusSkipped || s == StatusFailed
}

// FailReason is the machine-readable cause recorded on a Failed task.
type FailReason string

const (
	FailDetailNotFound     FailReason = "DetailNotFound"
	FailPairButtonNotFound FailReason = "PairButtonNotFound"
	FailSearchTimeout      FailReason = "SearchTimeout"
	FailSkuNotInCatalog    FailReason = "SkuNotInCatalog"
	FailConfirmNotFound    FailReason = "ConfirmNotFound"
)

// SkipReason is the cause recorded on a Skipped task. Skips are expected
// traffic, not automation failures, so they capture no artifacts.
type SkipReason string

const (
	SkipNoEngravedLine SkipReason = "NoEngravedLine"
	SkipUnparsableSku  SkipReason = "UnparsableSku"
	SkipAlreadyPaired  SkipReason = "AlreadyPaired"
	SkipNamesMissing   SkipReason = "NamesMissing"
	SkipConflict       SkipReason = "Conflict"
	SkipGenerateFailed SkipReason = "GenerateFailed"
)

// Task is one unpaired order moving through the workflow. A task never
// regresses; transition rejects any move the pipeline does not make.
type Task struct {
	OrderNo string
	// RowID is the stable row token from the order table, empty when the
	// row exposes none.
	RowID  string
	RawSKU string

	Attrs     sku.Attributes
	Names     sku.Personalization
	Generated sku.Result
	// Blocks counts the product blocks seen in the detail view. Lines
	// beyond the first engraved one are out of scope for now.
	Blocks   int
	Quantity int

	Status     Status
	FailReason FailReason
	SkipReason SkipReason

	ArtifactPNG  string
	ArtifactHTML string

	StartedAt  time.Time
	FinishedAt time.Time
}

// legalMoves holds the forward edges of the pipeline. Skipped and Failed
// are reachable from every non-terminal status.
var legalMoves = map[Status][]Status{
	StatusDiscovered:   {StatusDetailOpened},
	StatusDetailOpened: {StatusExtracted},
	StatusExtracted:    {StatusSearching},
	StatusSearching:    {StatusPaired},
}

func (t *Task) transition(to Status) error {
	if t.Status.Terminal() {
		return fmt.Errorf("task %s: illegal transition %s -> %s", t.OrderNo, t.Status, to)
	}
	if to == StatusSkipped || to == StatusFailed {
		t.Status = to
		t.FinishedAt = time.Now()
		return nil
	}
	for _, next := range legalMoves[t.Status] {
		if next == to {
			t.Status = to
			if to.Terminal() {
				t.FinishedAt = time.Now()
			}
			return nil
		}
	}
	return fmt.Errorf("task %s: illegal transition %s -> %s", t.OrderNo, t.Status, to)
}

// Fail moves the task to Failed with a machine-readable reason.
func (t *Task) Fail(reason FailReason) error {
	if err := t.transition(StatusFailed); err != nil {
		return err
	}
	t.FailReason = reason
	return nil
}

// Skip moves the task to Skipped with a machine-readable reason.
func (t *Task) Skip(reason SkipReason) error {
	if err := t.transition(StatusSkipped); err != nil {
		return err
	}
	t.SkipReason = reason
	return nil
}
