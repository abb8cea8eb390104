package index

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	chromago "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings"
)

// NewChromaStore connects to a ChromaDB server and opens the catalog and
// content collections, creating them on first use. Close the returned store
// when done.
func NewChromaStore(ctx context.Context, baseURL string, embedder Embedder, maxResults int, logger *slog.Logger) (*Store, error) {
	client, err := chromago.NewHTTPClient(chromago.WithBaseURL(baseURL))
	if err != nil {
		return nil, fmt.Errorf("connecting to chroma at %s: %w", baseURL, err)
	}

	catalog, err := client.GetOrCreateCollection(ctx, catalogCollection)
	if err != nil {
		return nil, fmt.Errorf("opening collection %s: %w", catalogCollection, err)
	}
	content, err := client.GetOrCreateCollection(ctx, contentCollection)
	if err != nil {
		return nil, fmt.Errorf("opening collection %s: %w", contentCollection, err)
	}

	s := newStore(&chromaCollection{col: catalog}, &chromaCollection{col: content}, embedder, maxResults, logger)
	s.closer = client
	return s, nil
}

// chromaCollection adapts a chroma-go v2 collection to the collection
// interface.
type chromaCollection struct {
	col chromago.Collection
}

func (c *chromaCollection) Add(ctx context.Context, entries []entry, embs [][]float32) error {
	if len(entries) != len(embs) {
		return fmt.Errorf("got %d embeddings for %d entries", len(embs), len(entries))
	}

	ids := make([]chromago.DocumentID, len(entries))
	texts := make([]string, len(entries))
	metas := make([]chromago.DocumentMetadata, len(entries))
	vecs := make([]embeddings.Embedding, len(entries))
	for i, e := range entries {
		ids[i] = chromago.DocumentID(e.ID)
		texts[i] = e.Text
		metas[i] = toChromaMetadata(e.Metadata)
		vecs[i] = embeddings.NewEmbeddingFromFloat32(embs[i])
	}

	return c.col.Add(ctx,
		chromago.WithIDs(ids...),
		chromago.WithTexts(texts...),
		chromago.WithEmbeddings(vecs...),
		chromago.WithMetadatas(metas...),
	)
}

func (c *chromaCollection) Query(ctx context.Context, embedding []float32, n int, where map[string]any) ([]entry, error) {
	opts := []chromago.CollectionQueryOption{
		chromago.WithQueryEmbeddings(embeddings.NewEmbeddingFromFloat32(embedding)),
		chromago.WithNResults(n),
	}
	if filter := toChromaWhere(where); filter != nil {
		opts = append(opts, chromago.WithWhereQuery(filter))
	}

	results, err := c.col.Query(ctx, opts...)
	if err != nil {
		return nil, err
	}

	idGroups := results.GetIDGroups()
	docGroups := results.GetDocumentsGroups()
	metaGroups := results.GetMetadatasGroups()
	if len(docGroups) == 0 {
		return nil, nil
	}

	entries := make([]entry, 0, len(docGroups[0]))
	for i, doc := range docGroups[0] {
		e := entry{Text: doc.ContentString()}
		if len(idGroups) > 0 && i < len(idGroups[0]) {
			e.ID = string(idGroups[0][i])
		}
		if len(metaGroups) > 0 && i < len(metaGroups[0]) {
			e.Metadata = fromChromaMetadata(metaGroups[0][i])
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (c *chromaCollection) Get(ctx context.Context, ids []string) ([]entry, error) {
	var opts []chromago.CollectionGetOption
	if ids != nil {
		docIDs := make([]chromago.DocumentID, len(ids))
		for i, id := range ids {
			docIDs[i] = chromago.DocumentID(id)
		}
		opts = append(opts, chromago.WithIDsGet(docIDs...))
	}

	results, err := c.col.Get(ctx, opts...)
	if err != nil {
		return nil, err
	}

	resIDs := results.GetIDs()
	docs := results.GetDocuments()
	metas := results.GetMetadatas()

	entries := make([]entry, 0, len(resIDs))
	for i, id := range resIDs {
		e := entry{ID: string(id)}
		if i < len(docs) {
			e.Text = docs[i].ContentString()
		}
		if i < len(metas) && metas[i] != nil {
			e.Metadata = fromChromaMetadata(metas[i])
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (c *chromaCollection) Delete(ctx context.Context, ids []string, where map[string]any) error {
	var opts []chromago.CollectionDeleteOption
	if ids != nil {
		docIDs := make([]chromago.DocumentID, len(ids))
		for i, id := range ids {
			docIDs[i] = chromago.DocumentID(id)
		}
		opts = append(opts, chromago.WithIDsDelete(docIDs...))
	}
	if filter := toChromaWhere(where); filter != nil {
		opts = append(opts, chromago.WithWhereDelete(filter))
	}

	// Chroma rejects a delete with no selector, so deleting everything
	// means fetching all ids first.
	if len(opts) == 0 {
		all, err := c.Get(ctx, nil)
		if err != nil {
			return err
		}
		if len(all) == 0 {
			return nil
		}
		docIDs := make([]chromago.DocumentID, len(all))
		for i, e := range all {
			docIDs[i] = chromago.DocumentID(e.ID)
		}
		opts = append(opts, chromago.WithIDsDelete(docIDs...))
	}

	return c.col.Delete(ctx, opts...)
}

func (c *chromaCollection) Count(ctx context.Context) (int, error) {
	n, err := c.col.Count(ctx)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func toChromaMetadata(meta map[string]any) chromago.DocumentMetadata {
	attrs := make([]*chromago.MetaAttribute, 0, len(meta))
	for k, v := range meta {
		switch val := v.(type) {
		case string:
			attrs = append(attrs, chromago.NewStringAttribute(k, val))
		case int:
			attrs = append(attrs, chromago.NewIntAttribute(k, int64(val)))
		case int64:
			attrs = append(attrs, chromago.NewIntAttribute(k, val))
		case float64:
			attrs = append(attrs, chromago.NewFloatAttribute(k, val))
		case bool:
			attrs = append(attrs, chromago.NewBoolAttribute(k, val))
		default:
			attrs = append(attrs, chromago.NewStringAttribute(k, fmt.Sprintf("%v", val)))
		}
	}
	return chromago.NewDocumentMetadata(attrs...)
}

// fromChromaMetadata flattens a chroma metadata value to a plain map via a
// JSON round-trip.
func fromChromaMetadata(meta chromago.DocumentMetadata) map[string]any {
	if meta == nil {
		return nil
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}

func toChromaWhere(where map[string]any) chromago.WhereFilter {
	if len(where) == 0 {
		return nil
	}
	conds := make([]chromago.WhereClause, 0, len(where))
	for k, v := range where {
		switch val := v.(type) {
		case string:
			conds = append(conds, chromago.EqString(k, val))
		case int:
			conds = append(conds, chromago.EqInt(k, val))
		case int64:
			conds = append(conds, chromago.EqInt(k, int(val)))
		default:
			conds = append(conds, chromago.EqString(k, fmt.Sprintf("%v", val)))
		}
	}
	if len(conds) == 1 {
		return conds[0]
	}
	return chromago.And(conds...)
}
