package search

import "github.com/poiesic/enrich/vectorstore"

// SearchMonitor provides hooks to observe the search process.
// Implement this interface to track intermediate steps and results during search.
type SearchMonitor interface {
	Start(query string)
	AfterEmbedding(dimension int)
	AfterVectorQuery(matches []vectorstore.Match)
	VerbatimHit(match vectorstore.Match, coverage float32)
	Finish(results []Result)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string)                             {}
func (n *noopMonitor) AfterEmbedding(_ int)                       {}
func (n *noopMonitor) AfterVectorQuery(_ []vectorstore.Match)     {}
func (n *noopMonitor) VerbatimHit(_ vectorstore.Match, _ float32) {}
func (n *noopMonitor) Finish(_ []Result)                          {}
