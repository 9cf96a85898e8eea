package things

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/thingsync/thingsync/internal/core/domain"
	"github.com/thingsync/thingsync/internal/core/ports/driven"
)

// Ensure ExportAdapter implements the interface.
var _ driven.SourceAdapter = (*ExportAdapter)(nil)

// exportTask mirrors the JSON the pre-database pipeline emitted per task.
// Status strings come straight from that pipeline: "complete" marks a done
// task, everything else is open.
type exportTask struct {
	UUID         string `json:"uuid"`
	Title        string `json:"title"`
	Status       string `json:"status"`
	ProjectTitle string `json:"project_title"`
	Notes        string `json:"notes"`
	StartDate    string `json:"start_date"`
	Deadline     string `json:"deadline"`
	Modified     string `json:"modified"`
	Trashed      bool   `json:"trashed"`
}

type exportFile struct {
	Tasks []exportTask `json:"tasks"`
}

// ExportAdapter reads tasks from a legacy JSON export file. It exists for
// installs still running the old export pipeline; selected by the legacy
// sync mode.
type ExportAdapter struct {
	path string
}

// NewExportAdapter creates a legacy source adapter for the export at path.
func NewExportAdapter(path string) (*ExportAdapter, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: things.export_path not set", domain.ErrConfigInvalid)
	}
	return &ExportAdapter{path: path}, nil
}

// Type returns the adapter type identifier.
func (a *ExportAdapter) Type() string { return "things-export" }

// Validate checks the export file is readable.
func (a *ExportAdapter) Validate(_ context.Context) error {
	if _, err := os.Stat(a.path); err != nil {
		return fmt.Errorf("things export at %s: %w", a.path, err)
	}
	return nil
}

// Items parses the export into normalised items.
func (a *ExportAdapter) Items(_ context.Context) ([]domain.Item, error) {
	data, err := os.ReadFile(a.path)
	if err != nil {
		return nil, fmt.Errorf("reading things export: %w", err)
	}

	var export exportFile
	if err := json.Unmarshal(data, &export); err != nil {
		return nil, fmt.Errorf("parsing things export: %w", err)
	}

	items := make([]domain.Item, 0, len(export.Tasks))
	for _, task := range export.Tasks {
		due := task.StartDate
		if due == "" {
			due = task.Deadline
		}

		var modified time.Time
		if task.Modified != "" {
			if modified, err = time.Parse(time.RFC3339, task.Modified); err != nil {
				return nil, fmt.Errorf("parsing modified time for %s: %w", task.UUID, err)
			}
		}

		items = append(items, domain.Item{
			SourceID:     task.UUID,
			Title:        task.Title,
			Completed:    task.Status == "complete",
			Project:      task.ProjectTitle,
			Notes:        task.Notes,
			Due:          due,
			LastModified: modified,
			Deleted:      task.Trashed,
		})
	}
	return items, nil
}

// Close is a no-op; the adapter holds no resources between calls.
func (a *ExportAdapter) Close() error { return nil }
