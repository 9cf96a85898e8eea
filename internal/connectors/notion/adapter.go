// Package notion implements the target adapter port against the Notion API.
// Tasks live as pages in one database; their project relations point into a
// second. The "Things UUID" rich-text property carries the cross-system
// identity, which makes creates idempotent upserts.
package notion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/jomei/notionapi"

	"github.com/thingsync/thingsync/internal/core/domain"
	"github.com/thingsync/thingsync/internal/core/ports/driven"
	"github.com/thingsync/thingsync/internal/logger"
)

// Ensure Adapter implements the interface.
var _ driven.TargetAdapter = (*Adapter)(nil)

// queryPageSize is the maximum the Notion API returns per query.
const queryPageSize = 100

// databaseAPI is the slice of the Notion database service the adapter uses.
type databaseAPI interface {
	Get(ctx context.Context, id notionapi.DatabaseID) (*notionapi.Database, error)
	Query(ctx context.Context, id notionapi.DatabaseID, request *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
}

// pageAPI is the slice of the Notion page service the adapter uses.
type pageAPI interface {
	Create(ctx context.Context, request *notionapi.PageCreateRequest) (*notionapi.Page, error)
	Update(ctx context.Context, id notionapi.PageID, request *notionapi.PageUpdateRequest) (*notionapi.Page, error)
}

// Adapter reads and writes the Notion workspace.
type Adapter struct {
	databases  databaseAPI
	pages      pageAPI
	tasksDB    notionapi.DatabaseID
	projectsDB notionapi.DatabaseID
	limiter    *RateLimiter

	// Project cache, loaded once per adapter lifetime (one pass). Keys in
	// projectIDByName are trimmed and lower-cased: project matching is
	// case-insensitive so "errands" never spawns a second "Errands".
	mu              sync.Mutex
	projectsLoaded  bool
	projectIDByName map[string]notionapi.PageID
	projectNameByID map[notionapi.PageID]string
}

// NewAdapter creates a Notion target adapter using an integration token.
func NewAdapter(token, tasksDatabaseID, projectsDatabaseID string) *Adapter {
	client := notionapi.NewClient(notionapi.Token(token))
	return newAdapter(client.Database, client.Page, tasksDatabaseID, projectsDatabaseID)
}

func newAdapter(databases databaseAPI, pages pageAPI, tasksDatabaseID, projectsDatabaseID string) *Adapter {
	return &Adapter{
		databases:       databases,
		pages:           pages,
		tasksDB:         notionapi.DatabaseID(tasksDatabaseID),
		projectsDB:      notionapi.DatabaseID(projectsDatabaseID),
		limiter:         NewRateLimiter(),
		projectIDByName: map[string]notionapi.PageID{},
		projectNameByID: map[notionapi.PageID]string{},
	}
}

// Type returns the adapter type identifier.
func (a *Adapter) Type() string { return "notion" }

// Validate checks the token can reach both databases.
func (a *Adapter) Validate(ctx context.Context) error {
	for _, id := range []notionapi.DatabaseID{a.tasksDB, a.projectsDB} {
		if err := a.limiter.Wait(ctx); err != nil {
			return err
		}
		if _, err := a.databases.Get(ctx, id); err != nil {
			return fmt.Errorf("notion database %s: %w", id, a.wrapErr(err))
		}
	}
	return nil
}

// Items returns every page in the tasks database, normalised.
func (a *Adapter) Items(ctx context.Context) ([]domain.Item, error) {
	if err := a.ensureProjects(ctx); err != nil {
		return nil, err
	}

	var items []domain.Item
	err := a.queryAll(ctx, a.tasksDB, nil, func(page notionapi.Page) {
		if page.Archived {
			return
		}
		items = append(items, pageToItem(page, a.projectNameByID))
	})
	if err != nil {
		return nil, fmt.Errorf("listing tasks database: %w", err)
	}
	return items, nil
}

// Create upserts the item by its source id: if a page already carries the
// id, that page is updated instead, so re-runs with a cleared fingerprint
// cache never duplicate.
func (a *Adapter) Create(ctx context.Context, item domain.Item) (string, error) {
	existing, err := a.findBySourceID(ctx, item.SourceID)
	if err != nil {
		return "", err
	}
	if existing != "" {
		logger.Debug("create of %s found existing page %s, updating instead", item.SourceID, existing)
		return existing, a.Update(ctx, existing, item)
	}

	props, err := a.buildProperties(ctx, item)
	if err != nil {
		return "", err
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return "", err
	}
	page, err := a.pages.Create(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: a.tasksDB,
		},
		Properties: props,
	})
	if err != nil {
		return "", fmt.Errorf("creating page for %s: %w", item.SourceID, a.wrapErr(err))
	}
	return page.ID.String(), nil
}

// Update overwrites the page's syncable properties.
func (a *Adapter) Update(ctx context.Context, targetID string, item domain.Item) error {
	props, err := a.buildProperties(ctx, item)
	if err != nil {
		return err
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}
	if _, err := a.pages.Update(ctx, notionapi.PageID(targetID), &notionapi.PageUpdateRequest{
		Properties: props,
	}); err != nil {
		return fmt.Errorf("updating page %s: %w", targetID, a.wrapErr(err))
	}
	return nil
}

// Delete archives the page rather than destroying it, so an accidental
// source-side trash can be recovered from the Notion trash.
func (a *Adapter) Delete(ctx context.Context, targetID string) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}
	if _, err := a.pages.Update(ctx, notionapi.PageID(targetID), &notionapi.PageUpdateRequest{
		Properties: notionapi.Properties{},
		Archived:   true,
	}); err != nil {
		return fmt.Errorf("archiving page %s: %w", targetID, a.wrapErr(err))
	}
	return nil
}

// Close releases resources. The adapter holds none beyond the HTTP client.
func (a *Adapter) Close() error { return nil }

// buildProperties resolves the item's project relation and builds the page
// properties.
func (a *Adapter) buildProperties(ctx context.Context, item domain.Item) (notionapi.Properties, error) {
	projectID, err := a.projectIDFor(ctx, item.Project)
	if err != nil {
		return nil, err
	}
	return taskProperties(item, projectID)
}

// findBySourceID looks up the page carrying the given source id, returning
// an empty string when none exists.
func (a *Adapter) findBySourceID(ctx context.Context, sourceID string) (string, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return "", err
	}
	resp, err := a.databases.Query(ctx, a.tasksDB, &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: propUUID,
			RichText: &notionapi.TextFilterCondition{Equals: sourceID},
		},
		PageSize: 1,
	})
	if err != nil {
		return "", fmt.Errorf("querying for %s: %w", sourceID, a.wrapErr(err))
	}
	if len(resp.Results) == 0 {
		return "", nil
	}
	return resp.Results[0].ID.String(), nil
}

// projectIDFor resolves a project title to its page id, creating the
// project when it does not exist yet. Empty titles resolve to no relation.
func (a *Adapter) projectIDFor(ctx context.Context, title string) (notionapi.PageID, error) {
	if strings.TrimSpace(title) == "" {
		return "", nil
	}
	if err := a.ensureProjects(ctx); err != nil {
		return "", err
	}

	key := strings.ToLower(strings.TrimSpace(title))
	a.mu.Lock()
	id, ok := a.projectIDByName[key]
	a.mu.Unlock()
	if ok {
		return id, nil
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return "", err
	}
	page, err := a.pages.Create(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: a.projectsDB,
		},
		Properties: projectProperties(strings.TrimSpace(title)),
	})
	if err != nil {
		return "", fmt.Errorf("creating project %q: %w", title, a.wrapErr(err))
	}

	id = notionapi.PageID(page.ID.String())
	a.mu.Lock()
	a.projectIDByName[key] = id
	a.projectNameByID[id] = strings.TrimSpace(title)
	a.mu.Unlock()

	logger.Info("created project in notion: %s", title)
	return id, nil
}

// ensureProjects loads the projects database into the cache once.
func (a *Adapter) ensureProjects(ctx context.Context) error {
	a.mu.Lock()
	loaded := a.projectsLoaded
	a.mu.Unlock()
	if loaded {
		return nil
	}

	idByName := map[string]notionapi.PageID{}
	nameByID := map[notionapi.PageID]string{}
	err := a.queryAll(ctx, a.projectsDB, nil, func(page notionapi.Page) {
		title, ok := page.Properties[propProjName].(*notionapi.TitleProperty)
		if !ok {
			return
		}
		name := strings.TrimSpace(plainText(title.Title))
		if name == "" {
			return
		}
		id := notionapi.PageID(page.ID.String())
		idByName[strings.ToLower(name)] = id
		nameByID[id] = name
	})
	if err != nil {
		return fmt.Errorf("listing projects database: %w", err)
	}

	a.mu.Lock()
	a.projectIDByName = idByName
	a.projectNameByID = nameByID
	a.projectsLoaded = true
	a.mu.Unlock()
	return nil
}

// queryAll pages through a database query, invoking visit per page.
func (a *Adapter) queryAll(ctx context.Context, id notionapi.DatabaseID, filter notionapi.Filter, visit func(notionapi.Page)) error {
	var cursor notionapi.Cursor
	for {
		if err := a.limiter.Wait(ctx); err != nil {
			return err
		}
		req := &notionapi.DatabaseQueryRequest{
			Filter:      filter,
			StartCursor: cursor,
			PageSize:    queryPageSize,
		}
		resp, err := a.databases.Query(ctx, id, req)
		if err != nil {
			return a.wrapErr(err)
		}
		for _, page := range resp.Results {
			visit(page)
		}
		if !resp.HasMore {
			return nil
		}
		cursor = resp.NextCursor
	}
}

// wrapErr classifies API failures, recording backoff on 429s.
func (a *Adapter) wrapErr(err error) error {
	var apiErr *notionapi.Error
	if errors.As(err, &apiErr) && apiErr.Status == 429 {
		a.limiter.RecordRateLimitError(0)
		return fmt.Errorf("%w: %v", domain.ErrRateLimited, err)
	}
	return err
}
