package notion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jomei/notionapi"

	"sql-tracker/pkg/tracker"
)

// Notion accepts at most this many children per request.
const maxChildren = 100

// ErrNotConfigured is returned when no API key or database is set.
var ErrNotConfigured = errors.New("notion export is not configured")

// Exporter writes tracking reports as pages in a Notion database.
type Exporter struct {
	pages      notionapi.PageService
	blocks     notionapi.BlockService
	databaseID string
}

// NewExporter creates an exporter for the given integration token and
// database. It returns ErrNotConfigured if either is empty.
func NewExporter(apiKey, databaseID string) (*Exporter, error) {
	if apiKey == "" || databaseID == "" {
		return nil, ErrNotConfigured
	}
	client := notionapi.NewClient(notionapi.Token(apiKey))
	return &Exporter{
		pages:      client.Page,
		blocks:     client.Block,
		databaseID: databaseID,
	}, nil
}

// Export creates a page titled title listing entries in order and returns its
// URL.
func (e *Exporter) Export(ctx context.Context, title string, entries []tracker.Entry) (string, error) {
	children := BuildBlocks(entries, time.Now())

	first := children
	if len(first) > maxChildren {
		first = first[:maxChildren]
	}

	page, err := e.pages.Create(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(e.databaseID),
		},
		Properties: notionapi.Properties{
			"Name": notionapi.TitleProperty{
				Type:  notionapi.PropertyTypeTitle,
				Title: []notionapi.RichText{newTextRichText(truncateText(title, 100))},
			},
		},
		Children: first,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create Notion page: %w", err)
	}

	for rest := children[len(first):]; len(rest) > 0; {
		n := min(len(rest), maxChildren)
		_, err := e.blocks.AppendChildren(ctx, notionapi.BlockID(page.ID), &notionapi.AppendBlockChildrenRequest{
			Children: rest[:n],
		})
		if err != nil {
			return page.URL, fmt.Errorf("failed to append Notion blocks: %w", err)
		}
		rest = rest[n:]
	}

	slog.Info("[notion] exported report", "url", page.URL, "fingerprints", len(entries), "blocks", len(children))
	return page.URL, nil
}

// BuildBlocks renders entries as a summary followed by one toggle per
// fingerprint.
func BuildBlocks(entries []tracker.Entry, generatedAt time.Time) []notionapi.Block {
	var count int64
	var total time.Duration
	for _, e := range entries {
		count += e.Record.Count
		total += e.Record.TotalDuration
	}

	blocks := []notionapi.Block{
		newHeading2Block("Summary"),
		newBulletedListItemBlock(fmt.Sprintf("Generated: %s", generatedAt.UTC().Format(time.RFC3339))),
		newBulletedListItemBlock(fmt.Sprintf("Fingerprints: %s", humanize.Comma(int64(len(entries))))),
		newBulletedListItemBlock(fmt.Sprintf("Queries: %s", humanize.Comma(count))),
		newBulletedListItemBlock(fmt.Sprintf("Total duration: %s ms", formatMS(total))),
		newHeading2Block("Queries"),
	}

	if len(entries) == 0 {
		return append(blocks, newParagraphBlock("No queries tracked."))
	}

	for i, e := range entries {
		rec := e.Record
		title := fmt.Sprintf("#%d  %s calls | %s ms avg | %s",
			i+1, humanize.Comma(rec.Count), formatMS(rec.AvgDuration()), truncateText(oneLine(rec.SQL), 120))

		children := []notionapi.Block{
			newBulletedListItemBlock(fmt.Sprintf("Fingerprint: %s", e.ID)),
			newBulletedListItemBlock(fmt.Sprintf("Count: %s", humanize.Comma(rec.Count))),
			newBulletedListItemBlock(fmt.Sprintf("Total: %s ms", formatMS(rec.TotalDuration))),
			newBulletedListItemBlock(fmt.Sprintf("Average: %s ms", formatMS(rec.AvgDuration()))),
			newBulletedListItemBlock(fmt.Sprintf("Last: %s ms", formatMS(rec.LastDuration))),
		}
		children = append(children, codeBlocks(rec.SQL, "sql")...)
		for _, src := range rec.Sources {
			children = append(children, newBulletedListItemBlock("Source: "+src))
		}

		blocks = append(blocks, newToggleBlock(title, children))
	}
	return blocks
}

func formatMS(d time.Duration) string {
	return humanize.CommafWithDigits(float64(d)/float64(time.Millisecond), 2)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateText(text string, maxLen int) string {
	r := []rune(text)
	if len(r) <= maxLen {
		return text
	}
	return string(r[:maxLen-3]) + "..."
}
