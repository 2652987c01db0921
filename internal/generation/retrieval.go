package generation

import (
	"context"
	"hash/fnv"
)

// Retriever returns the passages of one document that are relevant to a question.
// Implementations must be safe for concurrent use.
type Retriever interface {
	Retrieve(ctx context.Context, documentRef, question string) ([]string, error)
}

// localChunks stands in for a per-document vector store.
var localChunks = []string{
	"revenue increased by 10%.",
	"operating costs decreased.",
	"outlook is positive.",
	"new product line expected next quarter.",
}

// LocalRetriever selects passages from a fixed corpus without a vector store. The
// passages chosen depend only on the document reference.
type LocalRetriever struct {
	// TopK is the number of passages returned. Zero means 3.
	TopK int
}

var _ Retriever = LocalRetriever{}

// Retrieve implements Retriever.
func (r LocalRetriever) Retrieve(ctx context.Context, documentRef, _ string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	k := r.TopK
	if k <= 0 {
		k = 3
	}
	if k > len(localChunks) {
		k = len(localChunks)
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(documentRef))
	start := int(h.Sum32() % uint32(len(localChunks)))

	passages := make([]string, 0, k)
	for i := 0; i < k; i++ {
		passages = append(passages, localChunks[(start+i)%len(localChunks)])
	}
	return passages, nil
}
