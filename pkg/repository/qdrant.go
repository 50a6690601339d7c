package repository

import (
	"context"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/qdrant/go-client/qdrant"
	"github.com/thairag/thairag/pkg/model"
)

const (
	payloadPageContent = "page_content"
	payloadMetadata    = "metadata"
	payloadSourceKey   = "metadata.source"

	scrollPageSize = 256
)

// QdrantConfig holds Qdrant connection configuration
type QdrantConfig struct {
	// URL is the gRPC endpoint, e.g. "http://localhost:6334". The port defaults to 6334.
	URL        string
	APIKey     string
	Collection string
}

// Qdrant stores chunks as points of one Qdrant collection
type Qdrant struct {
	client     *qdrant.Client
	collection string

	ensureMu sync.Mutex
	ensured  bool
}

var _ Repository = (*Qdrant)(nil)

func NewQdrant(cfg QdrantConfig) (*Qdrant, error) {
	if cfg.URL == "" {
		return nil, goerr.New("qdrant url is required")
	}
	if cfg.Collection == "" {
		return nil, goerr.New("qdrant collection is required")
	}

	host, port, useTLS, err := parseQdrantURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create qdrant client", goerr.V("url", cfg.URL))
	}

	return &Qdrant{client: client, collection: cfg.Collection}, nil
}

func parseQdrantURL(raw string) (host string, port int, useTLS bool, err error) {
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "http://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", 0, false, goerr.Wrap(err, "failed to parse qdrant url", goerr.V("url", raw))
	}

	port = 6334
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return "", 0, false, goerr.Wrap(err, "invalid qdrant port", goerr.V("url", raw))
		}
	}

	return u.Hostname(), port, u.Scheme == "https", nil
}

func (q *Qdrant) EnsureCollection(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return goerr.New("dimension must be positive", goerr.V("dimension", dimension))
	}

	q.ensureMu.Lock()
	defer q.ensureMu.Unlock()
	if q.ensured {
		return nil
	}

	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return classify(goerr.Wrap(err, "failed to check collection", goerr.V("collection", q.collection)))
	}

	if !exists {
		err := q.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: q.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dimension),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return classify(goerr.Wrap(err, "failed to create collection",
				goerr.V("collection", q.collection), goerr.V("dimension", dimension)))
		}

		if _, err := q.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: q.collection,
			FieldName:      payloadSourceKey,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
			Wait:           qdrant.PtrOf(true),
		}); err != nil {
			return classify(goerr.Wrap(err, "failed to create source index", goerr.V("collection", q.collection)))
		}
	}

	q.ensured = true
	return nil
}

func (q *Qdrant) Search(ctx context.Context, vector []float32, limit int) ([]*model.Passage, error) {
	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, classify(goerr.Wrap(err, "failed to query points",
			goerr.V("collection", q.collection), goerr.V("limit", limit)))
	}

	passages := make([]*model.Passage, 0, len(points))
	for _, p := range points {
		passage := passageFromPayload(p.GetPayload())
		passage.Score = p.GetScore()
		passages = append(passages, passage)
	}
	return passages, nil
}

func passageFromPayload(payload map[string]*qdrant.Value) *model.Passage {
	passage := &model.Passage{
		Text: payload[payloadPageContent].GetStringValue(),
	}

	fields := payload[payloadMetadata].GetStructValue().GetFields()
	passage.Metadata = model.Metadata{
		Source:        fields["source"].GetStringValue(),
		Page:          int(fields["page"].GetIntegerValue()),
		EffectiveDate: fields["effective_date"].GetStringValue(),
	}
	return passage
}

func chunkPayload(chunk *model.Chunk) map[string]*qdrant.Value {
	meta := map[string]any{
		"source": chunk.Metadata.Source,
		"page":   chunk.Metadata.Page,
	}
	if chunk.Metadata.EffectiveDate != "" {
		meta["effective_date"] = chunk.Metadata.EffectiveDate
	}

	return qdrant.NewValueMap(map[string]any{
		payloadPageContent: chunk.Text,
		payloadMetadata:    meta,
	})
}

func (q *Qdrant) PutChunks(ctx context.Context, chunks []*model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for _, c := range chunks {
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(string(c.ID)),
			Vectors: qdrant.NewVectorsDense(c.Embedding),
			Payload: chunkPayload(c),
		})
	}

	if _, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	}); err != nil {
		return classify(goerr.Wrap(err, "failed to upsert points",
			goerr.V("collection", q.collection), goerr.V("count", len(points))))
	}
	return nil
}

func (q *Qdrant) ListSources(ctx context.Context) ([]string, error) {
	seen := map[string]struct{}{}

	var offset *qdrant.PointId
	for {
		points, next, err := q.client.ScrollAndOffset(ctx, &qdrant.ScrollPoints{
			CollectionName: q.collection,
			Offset:         offset,
			Limit:          qdrant.PtrOf(uint32(scrollPageSize)),
			WithPayload:    qdrant.NewWithPayloadInclude(payloadSourceKey),
		})
		if err != nil {
			if isNotFound(err) {
				return nil, nil
			}
			return nil, classify(goerr.Wrap(err, "failed to scroll points", goerr.V("collection", q.collection)))
		}

		for _, p := range points {
			src := p.GetPayload()[payloadMetadata].GetStructValue().GetFields()["source"].GetStringValue()
			if src != "" {
				seen[src] = struct{}{}
			}
		}

		if next == nil {
			break
		}
		offset = next
	}

	sources := make([]string, 0, len(seen))
	for src := range seen {
		sources = append(sources, src)
	}
	slices.Sort(sources)
	return sources, nil
}

func sourceFilter(source string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatchKeyword(payloadSourceKey, source)},
	}
}

func (q *Qdrant) CountChunks(ctx context.Context, source string) (int, error) {
	n, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: q.collection,
		Filter:         sourceFilter(source),
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		if isNotFound(err) {
			return 0, nil
		}
		return 0, classify(goerr.Wrap(err, "failed to count points",
			goerr.V("collection", q.collection), goerr.V("source", source)))
	}
	return int(n), nil
}

func (q *Qdrant) DeleteSource(ctx context.Context, source string) error {
	if _, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelectorFilter(sourceFilter(source)),
	}); err != nil {
		if isNotFound(err) {
			return nil
		}
		return classify(goerr.Wrap(err, "failed to delete points",
			goerr.V("collection", q.collection), goerr.V("source", source)))
	}
	return nil
}

func (q *Qdrant) Close() error {
	if err := q.client.Close(); err != nil {
		return goerr.Wrap(err, "failed to close qdrant client")
	}
	return nil
}
