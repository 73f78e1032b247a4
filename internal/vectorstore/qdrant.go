package vectorstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/dshills/repoindex/pkg/types"
)

const payloadContent = "content"

// pointNamespace scopes the UUIDs derived from chunk IDs.
var pointNamespace = uuid.MustParse("6f1c5d7e-2a43-4b8e-9a51-3c0d2e7f8b14")

// QdrantConfig holds connection settings for QdrantStore.
type QdrantConfig struct {
	Host           string
	Port           int
	APIKey         string
	UseTLS         bool
	MaxMessageSize int
}

// QdrantStore is a Store backed by a Qdrant server over gRPC.
type QdrantStore struct {
	client *qdrant.Client
	logger *zap.Logger
}

var _ Store = (*QdrantStore)(nil)

// NewQdrantStore connects to Qdrant and verifies it answers a health check.
func NewQdrantStore(ctx context.Context, cfg QdrantConfig, logger *zap.Logger) (*QdrantStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.MaxMessageSize == 0 {
		cfg.MaxMessageSize = 64 << 20
	}

	qcfg := &qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(cfg.MaxMessageSize),
				grpc.MaxCallSendMsgSize(cfg.MaxMessageSize),
			),
		},
	}
	if !cfg.UseTLS {
		logger.Warn("qdrant gRPC using plaintext", zap.String("host", cfg.Host))
		qcfg.GrpcOptions = append(qcfg.GrpcOptions, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	client, err := qdrant.NewClient(qcfg)
	if err != nil {
		return nil, fmt.Errorf("creating qdrant client: %w", err)
	}
	if _, err := client.HealthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("qdrant health check %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	logger.Info("qdrant connection established",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
	)
	return &QdrantStore{client: client, logger: logger}, nil
}

// PointID maps a chunk ID onto the UUID Qdrant requires. The mapping is
// deterministic, so re-upserting a chunk overwrites its point.
func PointID(chunkID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(chunkID)).String()
}

func (s *QdrantStore) collectionDimension(ctx context.Context, name string) (int, error) {
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("checking collection %s: %w", name, err)
	}
	if !exists {
		return 0, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	info, err := s.client.GetCollectionInfo(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("getting collection info for %s: %w", name, err)
	}
	return int(info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()), nil
}

// EnsureCollection implements Store.
func (s *QdrantStore) EnsureCollection(ctx context.Context, name string, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", ErrInvalidInput)
	}

	dim, err := s.collectionDimension(ctx, name)
	switch {
	case err == nil:
		if dim != dimension {
			return fmt.Errorf("%w: collection %s has %d, requested %d", ErrDimensionMismatch, name, dim, dimension)
		}
		return nil
	case !isNotFound(err):
		return err
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", name, err)
	}

	s.logger.Debug("created qdrant collection", zap.String("collection", name), zap.Int("dimension", dimension))
	return nil
}

// UpsertChunks implements Store.
func (s *QdrantStore) UpsertChunks(ctx context.Context, collection string, chunks []types.CodeChunk, vectors [][]float32) error {
	dim, err := s.collectionDimension(ctx, collection)
	if err != nil {
		return err
	}
	if err := ValidateUpsert(chunks, vectors, dim); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, len(chunks))
	for i, chunk := range chunks {
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(PointID(chunk.ID)),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: toQdrantPayload(chunk),
		}
	}

	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("upserting %d points into %s: %w", len(points), collection, err)
	}
	return nil
}

// DeleteByFilePath implements Store.
func (s *QdrantStore) DeleteByFilePath(ctx context.Context, collection, relativePath string) error {
	if _, err := s.collectionDimension(ctx, collection); err != nil {
		return err
	}

	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Wait:           qdrant.PtrOf(true),
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: relativePathFilter(relativePath),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("deleting %s from %s: %w", relativePath, collection, err)
	}
	return nil
}

// DeleteCollection implements Store.
func (s *QdrantStore) DeleteCollection(ctx context.Context, name string) error {
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("checking collection %s: %w", name, err)
	}
	if !exists {
		return nil
	}
	if err := s.client.DeleteCollection(ctx, name); err != nil {
		return fmt.Errorf("deleting collection %s: %w", name, err)
	}
	return nil
}

// Search implements Store.
func (s *QdrantStore) Search(ctx context.Context, collection string, vector []float32, limit int, minScore float64) ([]types.SearchHit, error) {
	if err := ValidateSearch(vector, limit); err != nil {
		return nil, err
	}
	dim, err := s.collectionDimension(ctx, collection)
	if err != nil {
		return nil, err
	}
	if dim != len(vector) {
		return nil, fmt.Errorf("%w: query has %d, collection has %d", ErrDimensionMismatch, len(vector), dim)
	}

	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		ScoreThreshold: qdrant.PtrOf(float32(minScore)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("querying collection %s: %w", collection, err)
	}

	hits := make([]types.SearchHit, 0, len(points))
	for _, p := range points {
		content, payload := fromQdrantPayload(p.GetPayload())
		hits = append(hits, types.SearchHit{
			Chunk: chunkFromPayload(content, payload),
			Score: float64(p.GetScore()),
		})
	}
	return hits, nil
}

// Count implements Store.
func (s *QdrantStore) Count(ctx context.Context, collection string) (int, error) {
	if _, err := s.collectionDimension(ctx, collection); err != nil {
		return 0, err
	}
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("counting %s: %w", collection, err)
	}
	return int(n), nil
}

// Close implements Store.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

func relativePathFilter(relativePath string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key: FieldRelativePath,
					Match: &qdrant.Match{
						MatchValue: &qdrant.Match_Keyword{Keyword: relativePath},
					},
				},
			},
		}},
	}
}

func toQdrantPayload(chunk types.CodeChunk) map[string]*qdrant.Value {
	flat := chunkPayload(chunk)
	payload := make(map[string]*qdrant.Value, len(flat)+1)
	for k, v := range flat {
		payload[k] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: v}}
	}
	payload[payloadContent] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: chunk.Content}}
	return payload
}

func fromQdrantPayload(payload map[string]*qdrant.Value) (string, map[string]string) {
	flat := make(map[string]string, len(payload))
	var content string
	for k, v := range payload {
		if k == payloadContent {
			content = v.GetStringValue()
			continue
		}
		flat[k] = v.GetStringValue()
	}
	return content, flat
}
