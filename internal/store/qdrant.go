package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/qdrant/go-client/qdrant"
)

// QdrantConfig configures QdrantVectorStore.
type QdrantConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"` // gRPC port
	APIKey     string `yaml:"api_key"`
	UseTLS     bool   `yaml:"tls"`
	Collection string `yaml:"collection"`
	Dimensions int    `yaml:"-"`
}

// qdrantClient is the subset of *qdrant.Client the store uses.
type qdrantClient interface {
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	DeleteCollection(ctx context.Context, collectionName string) error
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Delete(ctx context.Context, request *qdrant.DeletePoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Count(ctx context.Context, request *qdrant.CountPoints) (uint64, error)
	Scroll(ctx context.Context, request *qdrant.ScrollPoints) ([]*qdrant.RetrievedPoint, error)
	Close() error
}

const (
	qdrantFieldNote    = "note_id"
	qdrantFieldContent = "content"
	qdrantFieldSeq     = "seq"

	// qdrantStatsScrollLimit bounds the scroll used to count distinct notes.
	qdrantStatsScrollLimit = 10000
)

// QdrantVectorStore keeps chunk vectors in a remote Qdrant collection with
// cosine distance. Point IDs are chunk UUIDs.
//
// Qdrant has no multi-operation transactions: Replace deletes a note's
// points by filter and then upserts the new ones, so a concurrent search
// can briefly see the note with no chunks.
type QdrantVectorStore struct {
	client     qdrantClient
	collection string
	dims       int
}

var _ VectorStore = (*QdrantVectorStore)(nil)

// NewQdrantVectorStore connects and creates the collection if missing.
func NewQdrantVectorStore(cfg QdrantConfig) (*QdrantVectorStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Collection == "" {
		cfg.Collection = "amannotes_chunks"
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}

	s := newQdrantVectorStore(client, cfg.Collection, cfg.Dimensions)
	if err := s.ensureCollection(context.Background()); err != nil {
		_ = client.Close()
		return nil, err
	}
	return s, nil
}

func newQdrantVectorStore(client qdrantClient, collection string, dims int) *QdrantVectorStore {
	return &QdrantVectorStore{client: client, collection: collection, dims: dims}
}

func (s *QdrantVectorStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("check collection %s: %w", s.collection, err)
	}
	if exists {
		return nil
	}

	slog.Info("qdrant_collection_create",
		slog.String("collection", s.collection),
		slog.Int("dimensions", s.dims))
	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.dims),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("create collection %s: %w", s.collection, err)
	}
	return nil
}

func noteFilter(noteID string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatch(qdrantFieldNote, noteID)},
	}
}

func (s *QdrantVectorStore) Replace(ctx context.Context, notes []NoteChunks) error {
	var points []*qdrant.PointStruct
	for _, n := range notes {
		if err := s.deleteNote(ctx, n.NoteID); err != nil {
			return err
		}
		for _, c := range n.Chunks {
			if !usableEmbedding(c, s.dims) {
				continue
			}
			points = append(points, &qdrant.PointStruct{
				Id:      qdrant.NewID(c.ID),
				Vectors: qdrant.NewVectors(c.Embedding...),
				Payload: qdrant.NewValueMap(map[string]any{
					qdrantFieldNote:    n.NoteID,
					qdrantFieldContent: c.Text,
					qdrantFieldSeq:     c.Sequence,
				}),
			})
		}
	}
	if len(points) == 0 {
		return nil
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("upsert %d points: %w", len(points), err)
	}
	return nil
}

func (s *QdrantVectorStore) deleteNote(ctx context.Context, noteID string) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelectorFilter(noteFilter(noteID)),
	})
	if err != nil {
		return fmt.Errorf("delete points of note %s: %w", noteID, err)
	}
	return nil
}

func (s *QdrantVectorStore) DeleteNote(ctx context.Context, noteID string) error {
	return s.deleteNote(ctx, noteID)
}

// DropAll deletes and recreates the collection.
func (s *QdrantVectorStore) DropAll(ctx context.Context) error {
	if err := s.client.DeleteCollection(ctx, s.collection); err != nil {
		slog.Warn("qdrant_collection_delete_failed",
			slog.String("collection", s.collection),
			slog.String("error", err.Error()))
	}
	return s.ensureCollection(ctx)
}

func (s *QdrantVectorStore) Search(ctx context.Context, q []float32, limit int) ([]Hit, error) {
	if err := checkQuery(q, s.dims); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return []Hit{}, nil
	}

	n := uint64(limit)
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(q...),
		Limit:          &n,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("query points: %w", err)
	}

	hits := make([]Hit, 0, len(points))
	for _, p := range points {
		h := qdrantHit(p)
		if !validRow("qdrant", h.ID, h.NoteID) {
			continue
		}
		hits = append(hits, h)
	}
	sortHits(hits)
	return hits, nil
}

func qdrantHit(p *qdrant.ScoredPoint) Hit {
	h := Hit{Score: float64(p.GetScore()), Source: SourceVector}
	if p.GetId() != nil {
		h.ID = p.GetId().GetUuid()
	}
	payload := p.GetPayload()
	if v, ok := payload[qdrantFieldNote]; ok {
		h.NoteID = v.GetStringValue()
	}
	if v, ok := payload[qdrantFieldContent]; ok {
		h.ChunkText = v.GetStringValue()
	}
	return h
}

func (s *QdrantVectorStore) CountNote(ctx context.Context, noteID string) (int, error) {
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Filter:         noteFilter(noteID),
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("count points: %w", err)
	}
	return int(n), nil
}

// Stats counts points exactly. The distinct note count comes from a
// bounded scroll and saturates on very large collections.
func (s *QdrantVectorStore) Stats(ctx context.Context) (Stats, error) {
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return Stats{}, fmt.Errorf("count points: %w", err)
	}

	limit := uint32(qdrantStatsScrollLimit)
	points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: s.collection,
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayloadInclude(qdrantFieldNote),
	})
	if err != nil {
		return Stats{Chunks: int(n)}, fmt.Errorf("scroll points: %w", err)
	}

	notes := make(map[string]struct{})
	for _, p := range points {
		if v, ok := p.GetPayload()[qdrantFieldNote]; ok {
			notes[v.GetStringValue()] = struct{}{}
		}
	}
	return Stats{Chunks: int(n), Notes: len(notes)}, nil
}

func (s *QdrantVectorStore) Dimensions() int { return s.dims }

func (s *QdrantVectorStore) Close() error {
	return s.client.Close()
}
