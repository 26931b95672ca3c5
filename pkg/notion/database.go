package notion

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// QueryAll fetches every page of a database, following pagination cursors.
func QueryAll(ctx context.Context, c Client, dbID string, base *notionapi.DatabaseQueryRequest) ([]notionapi.Page, error) {
	var all []notionapi.Page
	var cursor notionapi.Cursor
	for {
		req := &notionapi.DatabaseQueryRequest{StartCursor: cursor}
		if base != nil {
			req.Filter = base.Filter
			req.Sorts = base.Sorts
			req.PageSize = base.PageSize
		}
		resp, err := c.QueryDatabase(ctx, dbID, req)
		if err != nil {
			return nil, eris.Wrap(err, "notion: query all page")
		}
		all = append(all, resp.Results...)
		if !resp.HasMore || resp.NextCursor == "" {
			return all, nil
		}
		cursor = resp.NextCursor
	}
}

// FindByTitle returns the first page whose title property equals title
// (case-insensitive), or nil when none matches.
func FindByTitle(ctx context.Context, c Client, dbID, titleProp, title string) (*notionapi.Page, error) {
	pages, err := QueryAll(ctx, c, dbID, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "notion: find %q", title)
	}
	want := strings.TrimSpace(title)
	for i := range pages {
		if strings.EqualFold(Text(pages[i], titleProp), want) {
			return &pages[i], nil
		}
	}
	return nil, nil
}

// Text renders a title, rich text, URL, select, number or date property as
// plain text. Missing or unsupported properties return "".
func Text(page notionapi.Page, name string) string {
	prop, ok := page.Properties[name]
	if !ok {
		return ""
	}
	var out string
	switch p := prop.(type) {
	case *notionapi.TitleProperty:
		for _, rt := range p.Title {
			out += rt.PlainText
		}
	case *notionapi.RichTextProperty:
		for _, rt := range p.RichText {
			out += rt.PlainText
		}
	case *notionapi.URLProperty:
		out = p.URL
	case *notionapi.SelectProperty:
		out = p.Select.Name
	case *notionapi.NumberProperty:
		if p.Number != 0 {
			out = strconv.FormatFloat(p.Number, 'f', -1, 64)
		}
	case *notionapi.DateProperty:
		if p.Date != nil && p.Date.Start != nil {
			out = time.Time(*p.Date.Start).Format("2006-01-02")
		}
	}
	return strings.TrimSpace(out)
}
