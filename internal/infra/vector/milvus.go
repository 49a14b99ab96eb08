package vector

import (
	"context"
	"fmt"
	"strconv"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vietddude/autowriter/internal/telemetry/tracer"
)

// MilvusConfig holds Milvus connection and collection settings.
type MilvusConfig struct {
	Address    string `yaml:"address"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	Collection string `yaml:"collection"`
	Dimension  int    `yaml:"dimension"`
	HNSWM      int    `yaml:"hnsw_m"`
	HNSWEf     int    `yaml:"hnsw_ef_construction"`
	SearchEf   int    `yaml:"search_ef"`
}

// MilvusStore keeps passages of one project in a Milvus partition.
type MilvusStore struct {
	milvus     client.Client
	cfg        MilvusConfig
	collection string
	partition  string
}

// NewMilvusStore connects, creating the collection, index and project
// partition when missing.
func NewMilvusStore(ctx context.Context, cfg MilvusConfig, project string) (*MilvusStore, error) {
	cfg = cfg.withDefaults()

	mc, err := client.NewClient(ctx, client.Config{
		Address:  cfg.Address,
		Username: cfg.User,
		Password: cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to milvus: %w", err)
	}

	s := &MilvusStore{
		milvus:     mc,
		cfg:        cfg,
		collection: cfg.Collection,
		partition:  partitionName(project),
	}
	if err := s.ensureSchema(ctx); err != nil {
		_ = mc.Close()
		return nil, err
	}
	return s, nil
}

func (c MilvusConfig) withDefaults() MilvusConfig {
	if c.Collection == "" {
		c.Collection = "chapter_passages"
	}
	if c.Dimension <= 0 {
		c.Dimension = 1536
	}
	if c.HNSWM <= 0 {
		c.HNSWM = 16
	}
	if c.HNSWEf <= 0 {
		c.HNSWEf = 200
	}
	if c.SearchEf <= 0 {
		c.SearchEf = 64
	}
	return c
}

// partitionName maps a project to a Milvus partition name, which allows
// only letters, digits and underscores.
func partitionName(project string) string {
	b := []byte("project_" + project)
	for i, c := range b {
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_') {
			b[i] = '_'
		}
	}
	return string(b)
}

func (s *MilvusStore) schema() *entity.Schema {
	return &entity.Schema{
		CollectionName: s.collection,
		Description:    "Finalized chapter passages for retrieval",
		Fields: []*entity.Field{
			{
				Name:       "id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{"max_length": "64"},
			},
			{
				Name:       "vector",
				DataType:   entity.FieldTypeFloatVector,
				TypeParams: map[string]string{"dim": strconv.Itoa(s.cfg.Dimension)},
			},
			{
				Name:     "chapter",
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:       "text_content",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "65535"},
			},
		},
	}
}

func (s *MilvusStore) ensureSchema(ctx context.Context) error {
	has, err := s.milvus.HasCollection(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if !has {
		if err := s.milvus.CreateCollection(ctx, s.schema(), entity.DefaultShardNumber); err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}
		idx, err := entity.NewIndexHNSW(entity.COSINE, s.cfg.HNSWM, s.cfg.HNSWEf)
		if err != nil {
			return fmt.Errorf("failed to build index: %w", err)
		}
		if err := s.milvus.CreateIndex(ctx, s.collection, "vector", idx, false); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	hasPart, err := s.milvus.HasPartition(ctx, s.collection, s.partition)
	if err != nil {
		return fmt.Errorf("failed to check partition: %w", err)
	}
	if !hasPart {
		if err := s.milvus.CreatePartition(ctx, s.collection, s.partition); err != nil {
			return fmt.Errorf("failed to create partition: %w", err)
		}
	}

	if err := s.milvus.LoadCollection(ctx, s.collection, false); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}
	return nil
}

// Upsert writes passages into the project partition.
func (s *MilvusStore) Upsert(ctx context.Context, passages []Passage) error {
	ctx, span := tracer.Start(ctx, "milvus.Upsert",
		trace.WithAttributes(attribute.Int("count", len(passages))))
	defer span.End()

	if len(passages) == 0 {
		return nil
	}

	ids := make([]string, len(passages))
	vectors := make([][]float32, len(passages))
	chapters := make([]int64, len(passages))
	texts := make([]string, len(passages))
	for i, p := range passages {
		ids[i] = p.ID
		vectors[i] = p.Vector
		chapters[i] = int64(p.Chapter)
		texts[i] = p.Text
	}

	_, err := s.milvus.Upsert(ctx, s.collection, s.partition,
		entity.NewColumnVarChar("id", ids),
		entity.NewColumnFloatVector("vector", s.cfg.Dimension, vectors),
		entity.NewColumnInt64("chapter", chapters),
		entity.NewColumnVarChar("text_content", texts),
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to upsert passages: %w", err)
	}
	return nil
}

// DeleteChapter removes every passage of a chapter.
func (s *MilvusStore) DeleteChapter(ctx context.Context, chapter int) error {
	ctx, span := tracer.Start(ctx, "milvus.DeleteChapter",
		trace.WithAttributes(attribute.Int("chapter", chapter)))
	defer span.End()

	expr := fmt.Sprintf("chapter == %d", chapter)
	if err := s.milvus.Delete(ctx, s.collection, s.partition, expr); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete chapter %d passages: %w", chapter, err)
	}
	return nil
}

// Search returns up to k passages nearest to query.
func (s *MilvusStore) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	ctx, span := tracer.Start(ctx, "milvus.Search",
		trace.WithAttributes(attribute.Int("top_k", k)))
	defer span.End()

	if k <= 0 || len(query) == 0 {
		return nil, nil
	}

	sp, err := entity.NewIndexHNSWSearchParam(s.cfg.SearchEf)
	if err != nil {
		return nil, fmt.Errorf("failed to create search param: %w", err)
	}

	results, err := s.milvus.Search(ctx,
		s.collection,
		[]string{s.partition},
		"",
		[]string{"chapter", "text_content"},
		[]entity.Vector{entity.FloatVector(query)},
		"vector",
		entity.COSINE,
		k,
		sp,
	)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	var hits []Hit
	for _, result := range results {
		for i := 0; i < result.ResultCount; i++ {
			h := Hit{Score: result.Scores[i]}
			if col, ok := result.Fields.GetColumn("chapter").(*entity.ColumnInt64); ok {
				h.Chapter = int(col.Data()[i])
			}
			if col, ok := result.Fields.GetColumn("text_content").(*entity.ColumnVarChar); ok {
				h.Text = col.Data()[i]
			}
			hits = append(hits, h)
		}
	}
	span.SetAttributes(attribute.Int("result_count", len(hits)))
	return hits, nil
}

// Close closes the Milvus connection.
func (s *MilvusStore) Close() error {
	return s.milvus.Close()
}
