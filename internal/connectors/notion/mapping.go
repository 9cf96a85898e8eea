package notion

import (
	"fmt"
	"time"

	"github.com/jomei/notionapi"

	"github.com/thingsync/thingsync/internal/core/domain"
)

// Property names in the tasks database. The Things UUID rich-text property
// is the cross-system identity: it is how pages are matched back to source
// items, so renaming it orphans every synced page.
const (
	propTitle    = "Name"
	propStatus   = "Status"
	propUUID     = "Things UUID"
	propProject  = "Projects"
	propNotes    = "Notes"
	propDate     = "Date"
	propProjName = "Name"
)

// dateLayout is the ISO day format items carry in Due.
const dateLayout = "2006-01-02"

// taskProperties builds the page properties for an item. An empty projectID
// or Due clears the corresponding property, so updates converge rather than
// leaving stale values behind.
func taskProperties(item domain.Item, projectID notionapi.PageID) (notionapi.Properties, error) {
	props := notionapi.Properties{
		propTitle: notionapi.TitleProperty{
			Title: richText(item.Title),
		},
		propStatus: notionapi.CheckboxProperty{
			Checkbox: item.Completed,
		},
		propUUID: notionapi.RichTextProperty{
			RichText: richText(item.SourceID),
		},
		propNotes: notionapi.RichTextProperty{
			RichText: richText(item.Notes),
		},
	}

	relation := []notionapi.Relation{}
	if projectID != "" {
		relation = append(relation, notionapi.Relation{ID: projectID})
	}
	props[propProject] = notionapi.RelationProperty{Relation: relation}

	date := notionapi.DateProperty{}
	if item.Due != "" {
		parsed, err := time.Parse(dateLayout, item.Due)
		if err != nil {
			return nil, fmt.Errorf("parsing due date %q for %s: %w", item.Due, item.SourceID, err)
		}
		start := notionapi.Date(parsed)
		date.Date = &notionapi.DateObject{Start: &start}
	}
	props[propDate] = date

	return props, nil
}

// projectProperties builds the properties for a new project page.
func projectProperties(title string) notionapi.Properties {
	return notionapi.Properties{
		propProjName: notionapi.TitleProperty{
			Title: richText(title),
		},
	}
}

// pageToItem normalises a tasks-database page. projectNames resolves the
// project relation back to a title; an unknown relation id yields an empty
// project, which reconciliation treats as a difference to repair.
func pageToItem(page notionapi.Page, projectNames map[notionapi.PageID]string) domain.Item {
	item := domain.Item{
		TargetID:     page.ID.String(),
		LastModified: page.LastEditedTime,
	}

	for name, prop := range page.Properties {
		switch name {
		case propTitle:
			if title, ok := prop.(*notionapi.TitleProperty); ok {
				item.Title = plainText(title.Title)
			}
		case propStatus:
			if status, ok := prop.(*notionapi.CheckboxProperty); ok {
				item.Completed = status.Checkbox
			}
		case propUUID:
			if uuid, ok := prop.(*notionapi.RichTextProperty); ok {
				item.SourceID = plainText(uuid.RichText)
			}
		case propNotes:
			if notes, ok := prop.(*notionapi.RichTextProperty); ok {
				item.Notes = plainText(notes.RichText)
			}
		case propProject:
			if rel, ok := prop.(*notionapi.RelationProperty); ok && len(rel.Relation) > 0 {
				item.Project = projectNames[rel.Relation[0].ID]
			}
		case propDate:
			if date, ok := prop.(*notionapi.DateProperty); ok && date.Date != nil && date.Date.Start != nil {
				item.Due = time.Time(*date.Date.Start).Format(dateLayout)
			}
		}
	}
	return item
}

// richText wraps a string as a single-element rich text value. Empty
// strings produce an empty slice, which clears the property.
func richText(content string) []notionapi.RichText {
	if content == "" {
		return []notionapi.RichText{}
	}
	return []notionapi.RichText{{
		Text: &notionapi.Text{Content: content},
	}}
}

// plainText flattens a rich text value the way the API returns it.
func plainText(parts []notionapi.RichText) string {
	var out string
	for _, part := range parts {
		out += part.PlainText
	}
	return out
}
