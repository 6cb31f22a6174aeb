// Package vectorstore is the approximate-nearest-neighbor index described
// in §2/§4.4 (C4 Vector Storage): add/delete/reset/count/filtered search
// over arbitrary metadata. Adapted directly from manifold's
// internal/persistence/databases/qdrant_vector.go — same deterministic-UUID
// trick for non-UUID ids, same payload round-trip of the original id.
package vectorstore

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// PayloadIDField stores the caller's original string id when it isn't
// itself a valid UUID, since Qdrant only accepts UUIDs or positive
// integers as point ids.
const PayloadIDField = "_original_id"

type Result struct {
	ID       string
	Score    float64
	Metadata map[string]string
}

type Store struct {
	client *qdrant.Client
	dim    int
}

// New connects to Qdrant's gRPC API (default port 6334). An optional
// api_key query parameter authenticates: "http://host:6334?api_key=...".
func New(dsn string, dimensions int) (*Store, error) {
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse vector store dsn: %w", err)
	}
	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	portStr := parsed.Port()
	if portStr == "" {
		portStr = "6334"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid port in vector store dsn: %w", err)
	}
	cfg := &qdrant.Config{Host: host, Port: port}
	if parsed.Scheme == "https" {
		cfg.UseTLS = true
	}
	if apiKey := parsed.Query().Get("api_key"); apiKey != "" {
		cfg.APIKey = apiKey
	}
	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create vector store client: %w", err)
	}
	return &Store{client: client, dim: dimensions}, nil
}

func distanceFor(metric string) qdrant.Distance {
	switch strings.ToLower(strings.TrimSpace(metric)) {
	case "l2", "euclidean":
		return qdrant.Distance_Euclid
	case "ip", "dot":
		return qdrant.Distance_Dot
	case "manhattan":
		return qdrant.Distance_Manhattan
	default:
		return qdrant.Distance_Cosine
	}
}

// EnsureCollection creates collection if it does not already exist.
func (s *Store) EnsureCollection(ctx context.Context, collection, metric string) error {
	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		return fmt.Errorf("check collection exists: %w", err)
	}
	if exists {
		return nil
	}
	if s.dim <= 0 {
		return fmt.Errorf("vector store requires dimensions > 0")
	}
	return s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.dim),
			Distance: distanceFor(metric),
		}),
	})
}

// Reset drops and recreates collection — used by the Memory Engine's
// startup reconciliation (§4.4) when the relational/vector counts diverge
// or vector_db_needs_reset is set.
func (s *Store) Reset(ctx context.Context, collection, metric string) error {
	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		return fmt.Errorf("check collection exists: %w", err)
	}
	if exists {
		if err := s.client.DeleteCollection(ctx, collection); err != nil {
			return fmt.Errorf("delete collection: %w", err)
		}
	}
	return s.EnsureCollection(ctx, collection, metric)
}

func pointID(id string) qdrant.PointId {
	if _, err := uuid.Parse(id); err == nil {
		return qdrant.NewIDUUID(id)
	}
	return qdrant.NewIDUUID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String())
}

func (s *Store) Upsert(ctx context.Context, collection, id string, vector []float32, metadata map[string]string) error {
	idUUID := id
	if _, err := uuid.Parse(id); err != nil {
		idUUID = uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String()
	}
	payload := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		payload[k] = v
	}
	if idUUID != id {
		payload[PayloadIDField] = id
	}
	vec := make([]float32, len(vector))
	copy(vec, vector)
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDUUID(idUUID),
			Vectors: qdrant.NewVectorsDense(vec),
			Payload: qdrant.NewValueMap(payload),
		}},
	})
	if err != nil {
		return fmt.Errorf("vector upsert: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points:         qdrant.NewPointsSelector(pointID(id)),
	})
	if err != nil {
		return fmt.Errorf("vector delete: %w", err)
	}
	return nil
}

func (s *Store) SimilaritySearch(ctx context.Context, collection string, vector []float32, k int, filter map[string]string) ([]Result, error) {
	if k <= 0 {
		k = 10
	}
	vec := make([]float32, len(vector))
	copy(vec, vector)
	var qf *qdrant.Filter
	if len(filter) > 0 {
		must := make([]*qdrant.Condition, 0, len(filter))
		for k, v := range filter {
			must = append(must, qdrant.NewMatch(k, v))
		}
		qf = &qdrant.Filter{Must: must}
	}
	limit := uint64(k)
	hits, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQueryDense(vec),
		Limit:          &limit,
		Filter:         qf,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	out := make([]Result, 0, len(hits))
	for _, hit := range hits {
		idStr := hit.Id.GetUuid()
		if idStr == "" {
			idStr = hit.Id.String()
		}
		metadata := make(map[string]string)
		original := ""
		for k, v := range hit.Payload {
			if k == PayloadIDField {
				original = v.GetStringValue()
				continue
			}
			metadata[k] = v.GetStringValue()
		}
		if original != "" {
			idStr = original
		}
		out = append(out, Result{ID: idStr, Score: float64(hit.Score), Metadata: metadata})
	}
	return out, nil
}

// Count returns the number of points in collection, used to reconcile
// against the relational row count at startup (§4.4).
func (s *Store) Count(ctx context.Context, collection string) (int, error) {
	exact := true
	resp, err := s.client.Count(ctx, &qdrant.CountPoints{CollectionName: collection, Exact: &exact})
	if err != nil {
		return 0, fmt.Errorf("vector count: %w", err)
	}
	return int(resp), nil
}

func (s *Store) Dimension() int { return s.dim }

func (s *Store) Close() error { return s.client.Close() }
