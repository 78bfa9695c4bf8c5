package index

// Posting is one (document, term frequency) pair stored under a term.
type Posting struct {
	DocID    int     `json:"doc_id"`
	TermFreq float64 `json:"tf"`
}

// PostingList is ordered by DocID.
type PostingList []Posting

// TermEntry pairs a term with its postings.
type TermEntry struct {
	Term     string      `json:"term"`
	Postings PostingList `json:"postings"`
}
