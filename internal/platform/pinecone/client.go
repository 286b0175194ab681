package pinecone

import "context"

type IndexDescription struct {
	Name      string
	Host      string
	Dimension int
	Metric    string
}

type Vector struct {
	ID       string
	Values   []float32
	Metadata map[string]any
}

type UpsertRequest struct {
	Namespace string
	Vectors   []Vector
}

type UpsertResponse struct {
	UpsertedCount int64
}

type QueryRequest struct {
	Namespace       string
	Vector          []float32
	TopK            int
	Filter          map[string]any
	IncludeValues   bool
	IncludeMetadata bool
}

type QueryMatch struct {
	ID       string
	Score    float64
	Values   []float32
	Metadata map[string]any
}

type QueryResponse struct {
	Matches []QueryMatch
}

type DeleteRequest struct {
	Namespace string
	IDs       []string
}

type DeleteResponse struct{}

type Client interface {
	DescribeIndex(ctx context.Context, indexName string) (*IndexDescription, error)
	UpsertVectors(ctx context.Context, host string, req UpsertRequest) (*UpsertResponse, error)
	Query(ctx context.Context, host string, req QueryRequest) (*QueryResponse, error)
	DeleteVectors(ctx context.Context, host string, req DeleteRequest) (*DeleteResponse, error)
}
