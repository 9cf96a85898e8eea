// Package things implements the source adapter ports for Things 3. The
// primary adapter reads the app's SQLite database directly (read-only); the
// legacy adapter reads the JSON export file the pre-database pipeline
// produced.
package things

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/thingsync/thingsync/internal/core/domain"
	"github.com/thingsync/thingsync/internal/core/ports/driven"
)

// Ensure Adapter implements the interface.
var _ driven.SourceAdapter = (*Adapter)(nil)

// Task row types in TMTask.
const (
	taskTypeTodo    = 0
	taskTypeProject = 1
	taskTypeHeading = 2
)

// statusCompleted is the TMTask status of a completed to-do.
const statusCompleted = 3

// defaultDatabaseGlob locates the Things 3 database under the app's group
// container. The ThingsData directory carries a per-account suffix.
const defaultDatabaseGlob = "Library/Group Containers/JLMPQHK86H.com.culturedcode.ThingsMac/ThingsData-*/Things Database.thingsdatabase/main.sqlite"

// Adapter reads to-dos from the Things 3 SQLite database.
type Adapter struct {
	db   *sql.DB
	path string
}

// NewAdapter creates a Things source adapter. If path is empty the default
// database location is resolved; not finding one is a setup problem the
// operator must fix.
func NewAdapter(path string) (*Adapter, error) {
	if path == "" {
		resolved, err := defaultDatabasePath()
		if err != nil {
			return nil, err
		}
		path = resolved
	}

	// Read-only: thingsync must never write the app's database.
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening things database: %w", err)
	}

	return &Adapter{db: db, path: path}, nil
}

// Type returns the adapter type identifier.
func (a *Adapter) Type() string { return "things" }

// Path returns the database file path.
func (a *Adapter) Path() string { return a.path }

// Validate checks the database exists and has the expected schema.
func (a *Adapter) Validate(ctx context.Context) error {
	if err := a.db.PingContext(ctx); err != nil {
		return fmt.Errorf("things database at %s: %w", a.path, err)
	}
	var name string
	err := a.db.QueryRowContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'TMTask'`).Scan(&name)
	if err != nil {
		return fmt.Errorf("things database at %s has no TMTask table: %w", a.path, err)
	}
	return nil
}

// Items returns every to-do, normalised, with trashed ones as tombstones.
// Projects and headings are loaded alongside to resolve each to-do's project
// title, the same lookup the previous pipeline built in memory.
func (a *Adapter) Items(ctx context.Context) ([]domain.Item, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT uuid, type, status, trashed,
		       COALESCE(title, ''), COALESCE(notes, ''),
		       startDate, deadline,
		       COALESCE(project, ''), COALESCE(actionGroup, ''),
		       COALESCE(userModificationDate, 0)
		FROM TMTask`)
	if err != nil {
		return nil, fmt.Errorf("querying TMTask: %w", err)
	}
	defer rows.Close()

	type taskRow struct {
		uuid, title, notes  string
		taskType, status    int
		trashed             bool
		startDate, deadline sql.NullInt64
		project, heading    string
		modified            float64
	}

	var todos []taskRow
	projectTitles := map[string]string{} // project uuid -> title
	headingProject := map[string]string{} // heading uuid -> project uuid

	for rows.Next() {
		var r taskRow
		if err := rows.Scan(&r.uuid, &r.taskType, &r.status, &r.trashed,
			&r.title, &r.notes, &r.startDate, &r.deadline,
			&r.project, &r.heading, &r.modified); err != nil {
			return nil, fmt.Errorf("scanning TMTask row: %w", err)
		}
		switch r.taskType {
		case taskTypeTodo:
			todos = append(todos, r)
		case taskTypeProject:
			projectTitles[r.uuid] = r.title
		case taskTypeHeading:
			headingProject[r.uuid] = r.project
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading TMTask rows: %w", err)
	}

	items := make([]domain.Item, 0, len(todos))
	for _, r := range todos {
		project := projectTitles[r.project]
		if project == "" && r.heading != "" {
			// A to-do under a heading inherits the heading's project.
			project = projectTitles[headingProject[r.heading]]
		}

		items = append(items, domain.Item{
			SourceID:     r.uuid,
			Title:        r.title,
			Completed:    r.status == statusCompleted,
			Project:      project,
			Notes:        r.notes,
			Due:          displayDate(r.startDate, r.deadline),
			LastModified: time.Unix(int64(r.modified), 0).UTC(),
			Deleted:      r.trashed,
		})
	}
	return items, nil
}

// Close releases the database handle.
func (a *Adapter) Close() error {
	return a.db.Close()
}

// displayDate picks the start date, falling back to the deadline.
func displayDate(startDate, deadline sql.NullInt64) string {
	for _, v := range []sql.NullInt64{startDate, deadline} {
		if v.Valid && v.Int64 != 0 {
			return unpackDate(v.Int64)
		}
	}
	return ""
}

// unpackDate decodes Things' packed calendar date: the year above bit 16,
// the month in bits 12-15, the day in bits 7-11.
func unpackDate(v int64) string {
	year := v >> 16
	month := (v >> 12) & 0xF
	day := (v >> 7) & 0x1F
	return fmt.Sprintf("%04d-%02d-%02d", year, month, day)
}

// packDate is the inverse of unpackDate. Fixture builders use it.
func packDate(year, month, day int64) int64 {
	return year<<16 | month<<12 | day<<7
}

func defaultDatabasePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	matches, err := filepath.Glob(filepath.Join(home, defaultDatabaseGlob))
	if err != nil || len(matches) == 0 {
		return "", fmt.Errorf("%w: no Things database found under %s", domain.ErrConfigInvalid, home)
	}
	return matches[0], nil
}
