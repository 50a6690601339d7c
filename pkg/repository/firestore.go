package repository

import (
	"context"
	"slices"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"github.com/m-mizutani/goerr/v2"
	"github.com/thairag/thairag/pkg/model"
	"google.golang.org/api/iterator"
)

const (
	fieldEmbedding      = "embedding"
	fieldVectorDistance = "vector_distance"
)

// Firestore stores chunks as documents of one collection and searches them with FindNearest.
// A vector index on the embedding field must exist for Search to work.
type Firestore struct {
	client     *firestore.Client
	collection string
}

var _ Repository = (*Firestore)(nil)

// NewFirestore creates a new Firestore repository
func NewFirestore(ctx context.Context, projectID, databaseID, collection string) (*Firestore, error) {
	if collection == "" {
		return nil, goerr.New("firestore collection is required")
	}

	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("project_id", projectID), goerr.V("database_id", databaseID))
	}

	return &Firestore{client: client, collection: collection}, nil
}

// EnsureCollection is a no-op. Firestore collections are created by the first write.
func (r *Firestore) EnsureCollection(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return goerr.New("dimension must be positive", goerr.V("dimension", dimension))
	}
	return nil
}

type chunkDoc struct {
	Text     string         `firestore:"page_content"`
	Metadata model.Metadata `firestore:"metadata"`
	Distance float64        `firestore:"vector_distance"`
}

func (r *Firestore) Search(ctx context.Context, vector []float32, limit int) ([]*model.Passage, error) {
	iter := r.client.Collection(r.collection).
		FindNearest(fieldEmbedding, firestore.Vector32(vector), limit, firestore.DistanceMeasureCosine,
			&firestore.FindNearestOptions{DistanceResultField: fieldVectorDistance}).
		Documents(ctx)
	defer iter.Stop()

	var passages []*model.Passage
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, classify(goerr.Wrap(err, "failed to search chunks",
				goerr.V("collection", r.collection), goerr.V("limit", limit)))
		}

		var c chunkDoc
		if err := doc.DataTo(&c); err != nil {
			return nil, goerr.Wrap(err, "failed to decode chunk", goerr.V("id", doc.Ref.ID))
		}

		passages = append(passages, &model.Passage{
			Text:     c.Text,
			Metadata: c.Metadata,
			Score:    float32(1 - c.Distance),
		})
	}
	return passages, nil
}

func (r *Firestore) PutChunks(ctx context.Context, chunks []*model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	coll := r.client.Collection(r.collection)
	bw := r.client.BulkWriter(ctx)

	jobs := make([]*firestore.BulkWriterJob, 0, len(chunks))
	for _, c := range chunks {
		job, err := bw.Set(coll.Doc(string(c.ID)), c)
		if err != nil {
			bw.End()
			return goerr.Wrap(err, "failed to enqueue chunk", goerr.V("id", c.ID))
		}
		jobs = append(jobs, job)
	}
	bw.End()

	for i, job := range jobs {
		if _, err := job.Results(); err != nil {
			return classify(goerr.Wrap(err, "failed to put chunk", goerr.V("id", chunks[i].ID)))
		}
	}
	return nil
}

func (r *Firestore) ListSources(ctx context.Context) ([]string, error) {
	iter := r.client.Collection(r.collection).Select("metadata.source").Documents(ctx)
	defer iter.Stop()

	seen := map[string]struct{}{}
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, classify(goerr.Wrap(err, "failed to list sources", goerr.V("collection", r.collection)))
		}

		v, err := doc.DataAt("metadata.source")
		if err != nil {
			continue
		}
		if src, ok := v.(string); ok && src != "" {
			seen[src] = struct{}{}
		}
	}

	sources := make([]string, 0, len(seen))
	for src := range seen {
		sources = append(sources, src)
	}
	slices.Sort(sources)
	return sources, nil
}

func (r *Firestore) CountChunks(ctx context.Context, source string) (int, error) {
	q := r.client.Collection(r.collection).Where("metadata.source", "==", source)
	res, err := q.NewAggregationQuery().WithCount("n").Get(ctx)
	if err != nil {
		return 0, classify(goerr.Wrap(err, "failed to count chunks", goerr.V("source", source)))
	}

	v, ok := res["n"].(*firestorepb.Value)
	if !ok {
		return 0, goerr.New("unexpected count result", goerr.V("source", source))
	}
	return int(v.GetIntegerValue()), nil
}

func (r *Firestore) DeleteSource(ctx context.Context, source string) error {
	iter := r.client.Collection(r.collection).Where("metadata.source", "==", source).Select().Documents(ctx)
	defer iter.Stop()

	bw := r.client.BulkWriter(ctx)
	var jobs []*firestore.BulkWriterJob
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			bw.End()
			return classify(goerr.Wrap(err, "failed to find chunks", goerr.V("source", source)))
		}

		job, err := bw.Delete(doc.Ref)
		if err != nil {
			bw.End()
			return goerr.Wrap(err, "failed to enqueue delete", goerr.V("id", doc.Ref.ID))
		}
		jobs = append(jobs, job)
	}
	bw.End()

	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			return classify(goerr.Wrap(err, "failed to delete chunk", goerr.V("source", source)))
		}
	}
	return nil
}

func (r *Firestore) Close() error {
	if err := r.client.Close(); err != nil {
		return goerr.Wrap(err, "failed to close firestore client")
	}
	return nil
}
