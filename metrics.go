package merkletree

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Process-wide counters for spec.md §4.5's clone/update fast-path
// accounting, grounded on the teacher's promauto.NewCounter fields in
// core/core.go (MetricLeafCount) and store-v2/main.go.
var (
	treesClonedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "merkletree",
		Name:      "trees_cloned_total",
		Help:      "Number of clone() calls that produced a fresh filesystem checkpoint.",
	})
	treesUpdatedWithoutCloneTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "merkletree",
		Name:      "trees_updated_without_clone_total",
		Help:      "Number of update() calls resolved by the cache-copy fast path (case 2).",
	})
	leafCountGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "merkletree",
		Name:      "leaf_count",
		Help:      "Current num_leaves() for a tree, labeled by tree name.",
	}, []string{"tree"})
)

func (t *Tree) reportLeafCount() {
	leafCountGauge.WithLabelValues(t.name).Set(float64(t.NumLeaves()))
}
