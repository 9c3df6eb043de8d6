package watch

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDrainForReturnsOnlyMatchingDomainInOrder(t *testing.T) {
	q := NewPendingQueue()
	q.Enqueue(PendingEvent{Path: "/a", TargetDomID: 1})
	q.Enqueue(PendingEvent{Path: "/b", TargetDomID: 2})
	q.Enqueue(PendingEvent{Path: "/c", TargetDomID: 1})

	drained := q.DrainFor(1)
	require.Equal(t, []PendingEvent{{Path: "/a", TargetDomID: 1}, {Path: "/c", TargetDomID: 1}}, drained)
	require.Equal(t, 1, q.Len())

	remaining := q.DrainFor(2)
	require.Equal(t, []PendingEvent{{Path: "/b", TargetDomID: 2}}, remaining)
	require.Equal(t, 0, q.Len())
}

func TestPurgeDomainRemovesOnlyThatDomainsEvents(t *testing.T) {
	q := NewPendingQueue()
	q.Enqueue(PendingEvent{Path: "/a", TargetDomID: 1})
	q.Enqueue(PendingEvent{Path: "/b", TargetDomID: 2})

	q.PurgeDomain(1)
	require.Equal(t, 1, q.Len())
	require.Equal(t, []PendingEvent{{Path: "/b", TargetDomID: 2}}, q.DrainFor(2))
}
