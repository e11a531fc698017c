// Package qa pushes validator rejections into a Notion review database so
// a human can inspect what the extractor produced and why it was refused.
package qa

import (
	"context"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/parcelscope/zoning-cli/pkg/notion"
)

const (
	statusOpen     = "Open"
	statusResolved = "Resolved"
)

// Reviewer writes rejection reports to the configured review database.
type Reviewer struct {
	client notion.Client
	dbID   string
	log    *zap.Logger
}

// NewReviewer creates a Reviewer for the given database.
func NewReviewer(client notion.Client, dbID string) *Reviewer {
	return &Reviewer{
		client: client,
		dbID:   dbID,
		log:    zap.L().With(zap.String("component", "qa.reviewer")),
	}
}

// Report creates one review page per rejection. Pages start in the Open
// status; partial failures abort with the count already written.
func (r *Reviewer) Report(ctx context.Context, jurisdictionID, sourceURL string, rejections []string) error {
	for i, reason := range rejections {
		req := &notionapi.PageCreateRequest{
			Parent: notionapi.Parent{
				Type:       notionapi.ParentTypeDatabaseID,
				DatabaseID: notionapi.DatabaseID(r.dbID),
			},
			Properties: notionapi.Properties{
				"Jurisdiction": notionapi.TitleProperty{
					Title: []notionapi.RichText{{Text: &notionapi.Text{Content: jurisdictionID}}},
				},
				"Reason": notionapi.RichTextProperty{
					RichText: []notionapi.RichText{{Text: &notionapi.Text{Content: reason}}},
				},
				"Source": notionapi.URLProperty{URL: sourceURL},
				"Status": notionapi.SelectProperty{Select: notionapi.Option{Name: statusOpen}},
			},
		}

		if _, err := r.client.CreatePage(ctx, req); err != nil {
			return eris.Wrapf(err, "qa: report rejection %d/%d for %s", i+1, len(rejections), jurisdictionID)
		}
	}

	if len(rejections) > 0 {
		r.log.Info("rejections reported for review",
			zap.String("jurisdiction", jurisdictionID),
			zap.Int("count", len(rejections)),
		)
	}
	return nil
}

// ListOpen returns every review page still in the Open status.
func (r *Reviewer) ListOpen(ctx context.Context) ([]notionapi.Page, error) {
	filter := &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: "Status",
			Select:   &notionapi.SelectFilterCondition{Equals: statusOpen},
		},
	}
	pages, err := notion.QueryAll(ctx, r.client, r.dbID, filter)
	if err != nil {
		return nil, eris.Wrap(err, "qa: list open reviews")
	}
	return pages, nil
}

// Resolve flips a review page to the Resolved status.
func (r *Reviewer) Resolve(ctx context.Context, pageID string) error {
	_, err := r.client.UpdatePage(ctx, pageID, &notionapi.PageUpdateRequest{
		Properties: notionapi.Properties{
			"Status": notionapi.SelectProperty{Select: notionapi.Option{Name: statusResolved}},
		},
	})
	if err != nil {
		return eris.Wrapf(err, "qa: resolve review %s", pageID)
	}
	return nil
}
