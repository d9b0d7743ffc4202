package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// DefaultCollection is the Qdrant collection holding the chunk index.
const DefaultCollection = "telecom_chunks"

const upsertBatchSize = 100

// QdrantIndex keeps the chunk index in a Qdrant collection with cosine
// distance. Rebuild drops and recreates the collection, so searches running
// concurrently with a rebuild may see an empty or partial collection.
type QdrantIndex struct {
	client     *qdrant.Client
	host       string
	port       int
	collection string
}

// NewQdrantIndex connects over gRPC and waits for the server to become
// healthy, giving up with ErrQdrantUnreachable after the retry budget.
func NewQdrantIndex(host string, port int, collection string) (*QdrantIndex, error) {
	if collection == "" {
		collection = DefaultCollection
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}

	idx := &QdrantIndex{
		client:     client,
		host:       host,
		port:       port,
		collection: collection,
	}

	if err := idx.healthCheckWithRetry(context.Background()); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrQdrantUnreachable, err)
	}

	return idx, nil
}

// OpenQdrantIndex connects like NewQdrantIndex and additionally requires
// the collection to exist.
func OpenQdrantIndex(ctx context.Context, host string, port int, collection string) (*QdrantIndex, error) {
	idx, err := NewQdrantIndex(host, port, collection)
	if err != nil {
		return nil, err
	}

	exists, err := idx.client.CollectionExists(ctx, idx.collection)
	if err != nil {
		idx.Close()
		return nil, fmt.Errorf("%w: check collection: %v", ErrIndexUnavailable, err)
	}
	if !exists {
		idx.Close()
		return nil, fmt.Errorf("%w: collection %q does not exist", ErrIndexUnavailable, idx.collection)
	}
	return idx, nil
}

func newBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	return b
}

func (q *QdrantIndex) healthCheckWithRetry(ctx context.Context) error {
	return backoff.Retry(func() error {
		return q.Health(ctx)
	}, backoff.WithContext(newBackoff(), ctx))
}

// Health performs a single health check against Qdrant.
func (q *QdrantIndex) Health(ctx context.Context) error {
	result, err := q.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if result == nil || result.Title == "" {
		return fmt.Errorf("health check returned invalid response")
	}
	return nil
}

// Rebuild implements Builder. Every point carries the model in its payload;
// Stats reads it back from the first point scrolled.
func (q *QdrantIndex) Rebuild(ctx context.Context, model string, entries []Entry) error {
	dim, err := validateEntries(entries)
	if err != nil {
		return err
	}

	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("check collection: %w", err)
	}
	if exists {
		if err := q.client.DeleteCollection(ctx, q.collection); err != nil {
			return fmt.Errorf("delete collection: %w", err)
		}
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dim),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}

	// Keyword index on source keeps per-source counting cheap.
	_, err = q.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: q.collection,
		FieldName:      "source",
		FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
	})
	if err != nil {
		return fmt.Errorf("create index for field source: %w", err)
	}

	for i := 0; i < len(entries); i += upsertBatchSize {
		end := min(i+upsertBatchSize, len(entries))

		points := make([]*qdrant.PointStruct, 0, end-i)
		for seq := i; seq < end; seq++ {
			e := entries[seq]
			points = append(points, &qdrant.PointStruct{
				Id:      qdrant.NewIDUUID(uuid.New().String()),
				Vectors: qdrant.NewVectors(e.Vector...),
				Payload: qdrant.NewValueMap(map[string]any{
					"source":  e.Source,
					"text":    e.Text,
					"ordinal": e.Ordinal,
					"seq":     seq,
					"model":   model,
				}),
			})
		}

		if err := q.upsertWithRetry(ctx, points); err != nil {
			return fmt.Errorf("upsert batch %d-%d: %w", i, end, err)
		}
	}

	return nil
}

func (q *QdrantIndex) upsertWithRetry(ctx context.Context, points []*qdrant.PointStruct) error {
	wait := true
	return backoff.Retry(func() error {
		_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: q.collection,
			Wait:           &wait,
			Points:         points,
		})
		return err
	}, backoff.WithContext(newBackoff(), ctx))
}

// Search implements Index. Qdrant reports cosine similarity; it is turned
// back into a distance so both backends share one ordering.
func (q *QdrantIndex) Search(ctx context.Context, vector []float32, k int) ([]Hit, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: empty query vector", ErrDimensionMismatch)
	}
	if k <= 0 {
		return nil, nil
	}

	results, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(false),
	})
	if err != nil {
		return nil, fmt.Errorf("search collection: %w", err)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		payload := r.Payload
		hits = append(hits, Hit{
			Entry: Entry{
				Seq:     int(payload["seq"].GetIntegerValue()),
				Source:  payload["source"].GetStringValue(),
				Ordinal: int(payload["ordinal"].GetIntegerValue()),
				Text:    payload["text"].GetStringValue(),
			},
			Distance: 1 - float64(r.Score),
		})
	}
	sortHits(hits)

	return hits, nil
}

// Stats implements Index by scrolling the source and model fields of every point.
func (q *QdrantIndex) Stats(ctx context.Context) (*Stats, error) {
	info, err := q.client.GetCollectionInfo(ctx, q.collection)
	if err != nil {
		return nil, fmt.Errorf("get collection: %w", err)
	}

	stats := &Stats{
		Backend:  "qdrant",
		Location: fmt.Sprintf("%s:%d/%s", q.host, q.port, q.collection),
		Sources:  make(map[string]int),
	}
	if params := info.GetConfig().GetParams().GetVectorsConfig().GetParams(); params != nil {
		stats.Dimension = int(params.GetSize())
	}

	batchSize := uint32(256)
	var offset *qdrant.PointId
	for {
		points, err := q.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: q.collection,
			Limit:          qdrant.PtrOf(batchSize),
			Offset:         offset,
			WithPayload:    qdrant.NewWithPayloadInclude("source", "model"),
		})
		if err != nil {
			return nil, fmt.Errorf("scroll collection: %w", err)
		}

		for _, p := range points {
			// Scroll offsets are inclusive.
			if offset != nil && p.Id.GetUuid() == offset.GetUuid() {
				continue
			}
			stats.Sources[p.Payload["source"].GetStringValue()]++
			if stats.Model == "" {
				stats.Model = p.Payload["model"].GetStringValue()
			}
			stats.Entries++
		}

		if uint32(len(points)) < batchSize {
			break
		}
		offset = points[len(points)-1].Id
	}

	return stats, nil
}

// Close closes the gRPC connection.
func (q *QdrantIndex) Close() error {
	if q.client != nil {
		return q.client.Close()
	}
	return nil
}
