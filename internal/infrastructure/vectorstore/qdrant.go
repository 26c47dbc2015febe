// Package vectorstore holds the VectorStore implementations backed by Qdrant
// and by PostgreSQL with the pgvector extension.
package vectorstore

import (
	"context"
	"fmt"
	"log"

	"github.com/foodbase/etl/internal/domain"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// textPayloadKey holds the embedded text in every point's payload
const textPayloadKey = "text"

// pointsAPI is the part of the Qdrant points service the store uses
type pointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
}

// collectionsAPI is the part of the Qdrant collections service the store uses
type collectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// QdrantStore stores food documents in a Qdrant collection
type QdrantStore struct {
	conn        *grpc.ClientConn
	points      pointsAPI
	collections collectionsAPI
	collection  string
}

// NewQdrantStore connects to Qdrant over gRPC at addr
func NewQdrantStore(addr, collection string) (*QdrantStore, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("%w: dial qdrant %s: %v", domain.ErrVectorStoreFailure, addr, err)
	}
	return &QdrantStore{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
	}, nil
}

// NewQdrantStoreWithClients builds a store on top of existing service clients
func NewQdrantStoreWithClients(points pointsAPI, collections collectionsAPI, collection string) *QdrantStore {
	return &QdrantStore{points: points, collections: collections, collection: collection}
}

// Close closes the gRPC connection, if the store owns one
func (q *QdrantStore) Close() error {
	if q.conn == nil {
		return nil
	}
	return q.conn.Close()
}

// EnsureCollection creates the collection with cosine distance unless it exists
func (q *QdrantStore) EnsureCollection(ctx context.Context, dims int) error {
	list, err := q.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("%w: list collections: %v", domain.ErrVectorStoreFailure, err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == q.collection {
			return nil
		}
	}

	_, err = q.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dims),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("%w: create collection %s: %v", domain.ErrVectorStoreFailure, q.collection, err)
	}
	log.Printf("[QDRANT] Created collection %s (%d dims, cosine)", q.collection, dims)
	return nil
}

// Upsert writes documents as points keyed by their UUID
func (q *QdrantStore) Upsert(ctx context.Context, docs []domain.VectorDocument) error {
	if len(docs) == 0 {
		return nil
	}

	points := make([]*pb.PointStruct, len(docs))
	for i, doc := range docs {
		payload := make(map[string]*pb.Value, len(doc.Metadata)+1)
		for k, v := range doc.Metadata {
			payload[k] = stringValue(v)
		}
		payload[textPayloadKey] = stringValue(doc.Text)

		points[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: doc.ID},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: doc.Embedding},
				},
			},
			Payload: payload,
		}
	}

	wait := true
	_, err := q.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("%w: upsert %d points: %v", domain.ErrVectorStoreFailure, len(docs), err)
	}
	return nil
}

// Search returns the topK nearest points with their payloads
func (q *QdrantStore) Search(ctx context.Context, embedding []float32, topK int) ([]domain.VectorMatch, error) {
	resp, err := q.points.Search(ctx, &pb.SearchPoints{
		CollectionName: q.collection,
		Vector:         embedding,
		Limit:          uint64(topK),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: search: %v", domain.ErrVectorStoreFailure, err)
	}

	matches := make([]domain.VectorMatch, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		m := domain.VectorMatch{
			ID:       r.GetId().GetUuid(),
			Score:    r.GetScore(),
			Metadata: make(map[string]string, len(r.GetPayload())),
		}
		for k, v := range r.GetPayload() {
			if k == textPayloadKey {
				m.Text = v.GetStringValue()
				continue
			}
			m.Metadata[k] = v.GetStringValue()
		}
		matches[i] = m
	}
	return matches, nil
}

func stringValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}
