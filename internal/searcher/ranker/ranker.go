package ranker

import (
	"cmp"
	"math"
	"slices"
)

const (
	// MaxResultDocumentCount caps every top-documents result.
	MaxResultDocumentCount = 5
	// RelevanceEpsilon is the tolerance under which two relevances tie.
	RelevanceEpsilon = 1e-6
)

// Document is one ranked result.
type Document struct {
	ID        int     `json:"document_id"`
	Relevance float64 `json:"relevance"`
	Rating    int     `json:"rating"`
}

// IDF is ln(totalDocs / docFreq). Callers only ask for terms present in the
// index, so docFreq is positive.
func IDF(totalDocs, docFreq int) float64 {
	if docFreq <= 0 || totalDocs <= 0 {
		return 0
	}
	return math.Log(float64(totalDocs) / float64(docFreq))
}

// Less orders by relevance descending; relevances within RelevanceEpsilon
// fall back to rating descending.
func Less(a, b Document) bool {
	if math.Abs(a.Relevance-b.Relevance) < RelevanceEpsilon {
		return a.Rating > b.Rating
	}
	return a.Relevance > b.Relevance
}

// Rank sorts docs in place and truncates to limit (MaxResultDocumentCount
// when limit <= 0 or larger). docs is expected in ascending id order so that
// equal elements keep a deterministic order.
func Rank(docs []Document, limit int) []Document {
	if limit <= 0 || limit > MaxResultDocumentCount {
		limit = MaxResultDocumentCount
	}
	slices.SortStableFunc(docs, func(a, b Document) int {
		switch {
		case Less(a, b):
			return -1
		case Less(b, a):
			return 1
		default:
			return 0
		}
	})
	if len(docs) > limit {
		docs = docs[:limit]
	}
	return docs
}

// FromScores turns an id -> relevance map into result records in ascending
// id order, looking ratings up through rating.
func FromScores(scores map[int]float64, rating func(id int) int) []Document {
	result := make([]Document, 0, len(scores))
	for id, relevance := range scores {
		result = append(result, Document{
			ID:        id,
			Relevance: relevance,
			Rating:    rating(id),
		})
	}
	slices.SortFunc(result, func(a, b Document) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return result
}
