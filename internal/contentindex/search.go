package contentindex

import (
	"context"
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/starford/folio/internal/profile"
)

// Hit is one search result.
type Hit struct {
	UID   string  `json:"uid"`
	Title string  `json:"title"`
	Score float64 `json:"score"`
}

func entryMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()

	textField := bleve.NewTextFieldMapping()
	textField.Store = true

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("title", textField)
	doc.AddFieldMappingsAt("content", bleve.NewTextFieldMapping())

	indexMapping.DefaultMapping = doc
	return indexMapping
}

// Search runs query against the profile's persisted index. The bleve index
// is built in memory per call; the persisted JSON stays the source of truth.
func Search(ctx context.Context, ws *profile.Workspace, query string, limit int) ([]Hit, error) {
	entries, err := Load(ws)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	idx, err := bleve.NewMemOnly(entryMapping())
	if err != nil {
		return nil, fmt.Errorf("content index: open search index: %w", err)
	}
	defer idx.Close()

	batch := idx.NewBatch()
	for uid, e := range entries {
		if err := batch.Index(uid, map[string]any{"title": e.Title, "content": e.Content}); err != nil {
			return nil, fmt.Errorf("content index: index %s: %w", uid, err)
		}
	}
	if err := idx.Batch(batch); err != nil {
		return nil, fmt.Errorf("content index: batch: %w", err)
	}

	req := bleve.NewSearchRequestOptions(bleve.NewMatchQuery(query), limit, 0, false)
	req.Fields = []string{"title"}
	res, err := idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("content index: search: %w", err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hit := Hit{UID: h.ID, Score: h.Score}
		if title, ok := h.Fields["title"].(string); ok {
			hit.Title = title
		} else {
			hit.Title = entries[h.ID].Title
		}
		hits = append(hits, hit)
	}
	return hits, nil
}
