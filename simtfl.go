package simtfl

// Time is a point on the simulated clock. It is a discrete event-calendar
// tick count and has no relation to wall-clock time.
type Time int64

// Duration is a span of simulated time.
type Duration = Time

// NodeID identifies a node (and committee member) within a single simulation.
// Idents are assigned densely from zero in the order nodes are added.
type NodeID int

// Height is the distance of a block from genesis (genesis is height 0).
type Height uint64

// TwoThirdsThreshold is the notarization threshold used by most permissioned
// BFT protocols: ceiling(n * 2/3).
func TwoThirdsThreshold(n int) int {
	return (n*2 + 2) / 3
}
