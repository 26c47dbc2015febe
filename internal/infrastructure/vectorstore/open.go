package vectorstore

import (
	"fmt"

	"github.com/foodbase/etl/internal/domain"
)

// Store is a VectorStore holding a connection that must be closed
type Store interface {
	domain.VectorStore
	Close() error
}

// Open connects to the vector store of the given kind, "qdrant" or "pgvector"
func Open(kind, qdrantAddr, postgresDSN, collection string) (Store, error) {
	switch kind {
	case "qdrant":
		return NewQdrantStore(qdrantAddr, collection)
	case "pgvector":
		if postgresDSN == "" {
			return nil, fmt.Errorf("%w: pgvector store needs a Postgres DSN", domain.ErrVectorStoreFailure)
		}
		return NewPgvectorStore(postgresDSN, collection)
	default:
		return nil, fmt.Errorf("%w: unknown vector store type %q", domain.ErrVectorStoreFailure, kind)
	}
}
