package telemetry

import (
	"context"
	"slices"

	"github.com/grafana/pyroscope-go"
)

// Profiling label keys
const (
	ProfilingLabelNamespace = "namespace"
	ProfilingLabelTxScope   = "txn_scope"
)

// MaxLabelValueLength caps label values to bound profile cardinality
const MaxLabelValueLength = 128

// WithProfilingLabels runs fn with pprof labels attached, so samples taken
// while fn runs can be filtered by them. Empty keys and values are dropped.
func WithProfilingLabels(ctx context.Context, labels map[string]string, fn func(context.Context)) {
	pairs := labelPairs(labels)
	if len(pairs) == 0 {
		fn(ctx)
		return
	}
	pyroscope.TagWrapper(ctx, pyroscope.Labels(pairs...), fn)
}

// WithTransactionLabels labels fn with the namespace and transaction scope it
// runs in. Labels are only applied while a profiler is running.
func WithTransactionLabels(ctx context.Context, scope, namespace string, fn func(context.Context)) {
	if !ProfilingActive() {
		fn(ctx)
		return
	}
	WithProfilingLabels(ctx, map[string]string{
		ProfilingLabelTxScope:   scope,
		ProfilingLabelNamespace: namespace,
	}, fn)
}

func labelPairs(labels map[string]string) []string {
	keys := make([]string, 0, len(labels))
	for k, v := range labels {
		if k != "" && v != "" {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)

	pairs := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		v := labels[k]
		if len(v) > MaxLabelValueLength {
			v = v[:MaxLabelValueLength]
		}
		pairs = append(pairs, k, v)
	}
	return pairs
}
