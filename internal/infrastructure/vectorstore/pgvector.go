package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode"

	"github.com/foodbase/etl/internal/domain"
	"github.com/pgvector/pgvector-go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// foodEmbedding is one row of the embeddings table
type foodEmbedding struct {
	ID        string          `gorm:"primaryKey;type:uuid"`
	Text      string          `gorm:"type:text;not null"`
	Metadata  string          `gorm:"type:jsonb;not null"`
	Embedding pgvector.Vector `gorm:"not null"`
	CreatedAt time.Time       `gorm:"not null"`
}

// scoredRow is one row of a similarity query
type scoredRow struct {
	ID       string
	Text     string
	Metadata string
	Score    float32
}

// PgvectorStore stores food documents in a PostgreSQL table with a vector column
type PgvectorStore struct {
	db    *gorm.DB
	table string
}

// NewPgvectorStore connects to PostgreSQL with the given DSN
func NewPgvectorStore(dsn, collection string) (*PgvectorStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Error),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: connect to postgres: %v", domain.ErrVectorStoreFailure, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("%w: get underlying *sql.DB: %v", domain.ErrVectorStoreFailure, err)
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return NewPgvectorStoreWithDB(db, collection), nil
}

// NewPgvectorStoreWithDB builds a store on an existing gorm connection
func NewPgvectorStoreWithDB(db *gorm.DB, collection string) *PgvectorStore {
	return &PgvectorStore{db: db, table: tableName(collection)}
}

// Close closes the database connection
func (p *PgvectorStore) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// EnsureCollection enables the vector extension and creates the table and its
// cosine index if they do not exist
func (p *PgvectorStore) EnsureCollection(ctx context.Context, dims int) error {
	db := p.db.WithContext(ctx)
	statements := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id uuid PRIMARY KEY,
			text text NOT NULL,
			metadata jsonb NOT NULL,
			embedding vector(%d) NOT NULL,
			created_at timestamptz NOT NULL
		)`, p.table, dims),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s USING hnsw (embedding vector_cosine_ops)", p.table, p.table),
	}
	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("%w: prepare table %s: %v", domain.ErrVectorStoreFailure, p.table, err)
		}
	}
	log.Printf("[PGVECTOR] Table %s ready (%d dims, cosine)", p.table, dims)
	return nil
}

// Upsert inserts documents, replacing rows with the same id
func (p *PgvectorStore) Upsert(ctx context.Context, docs []domain.VectorDocument) error {
	if len(docs) == 0 {
		return nil
	}
	rows, err := toRows(docs, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrVectorStoreFailure, err)
	}

	err = p.db.WithContext(ctx).
		Table(p.table).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"text", "metadata", "embedding", "created_at"}),
		}).
		Create(&rows).Error
	if err != nil {
		return fmt.Errorf("%w: upsert %d rows: %v", domain.ErrVectorStoreFailure, len(rows), err)
	}
	return nil
}

// Search returns the topK rows closest to embedding by cosine distance
func (p *PgvectorStore) Search(ctx context.Context, embedding []float32, topK int) ([]domain.VectorMatch, error) {
	vector := pgvector.NewVector(embedding)
	query := fmt.Sprintf(`
		SELECT id, text, metadata, 1 - (embedding <=> ?) AS score
		FROM %s
		ORDER BY embedding <=> ?
		LIMIT ?`, p.table)

	var rows []scoredRow
	if err := p.db.WithContext(ctx).Raw(query, vector, vector, topK).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("%w: search: %v", domain.ErrVectorStoreFailure, err)
	}
	return toMatches(rows)
}

func toRows(docs []domain.VectorDocument, now time.Time) ([]foodEmbedding, error) {
	rows := make([]foodEmbedding, len(docs))
	for i, doc := range docs {
		metadata := doc.Metadata
		if metadata == nil {
			metadata = map[string]string{}
		}
		encoded, err := json.Marshal(metadata)
		if err != nil {
			return nil, fmt.Errorf("encode metadata of %s: %w", doc.ID, err)
		}
		rows[i] = foodEmbedding{
			ID:        doc.ID,
			Text:      doc.Text,
			Metadata:  string(encoded),
			Embedding: pgvector.NewVector(doc.Embedding),
			CreatedAt: now,
		}
	}
	return rows, nil
}

func toMatches(rows []scoredRow) ([]domain.VectorMatch, error) {
	matches := make([]domain.VectorMatch, len(rows))
	for i, r := range rows {
		metadata := map[string]string{}
		if r.Metadata != "" {
			if err := json.Unmarshal([]byte(r.Metadata), &metadata); err != nil {
				return nil, fmt.Errorf("%w: decode metadata of %s: %v", domain.ErrVectorStoreFailure, r.ID, err)
			}
		}
		matches[i] = domain.VectorMatch{ID: r.ID, Score: r.Score, Text: r.Text, Metadata: metadata}
	}
	return matches, nil
}

// tableName turns a collection name into a safe SQL identifier,
// e.g. "branded-food-data" -> "branded_food_data"
func tableName(collection string) string {
	name := strings.Map(func(r rune) rune {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return unicode.ToLower(r)
		}
		return '_'
	}, collection)
	if name == "" || unicode.IsDigit(rune(name[0])) {
		name = "t_" + name
	}
	return name
}
