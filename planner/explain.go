package planner

import (
	"github.com/andreheringer/LocustDB/buffer"
	"github.com/andreheringer/LocustDB/expr"
	"github.com/andreheringer/LocustDB/store"
	"github.com/andreheringer/LocustDB/vm"
)

// Explain compiles q's primary pass against partition and renders its
// operator chain one operator per line, without running it. It does
// not describe a post-pass
// (run over the primary pass's synthesized output), since that chain
// only exists once the primary pass has actually executed.
func Explain(q *expr.Query, partition *store.Partition, fault FaultFunc, batchSize int) (string, error) {
	if q.IsSelectStar() {
		q = expandSelectStar(q, partition)
	}

	primary, _, err := expr.Normalize(q)
	if err != nil {
		return "", err
	}

	sp := buffer.NewScratchpad()
	b := newBuilder(partition, fault, sp)

	if len(primary.Aggregate) > 0 {
		if _, err := b.compileAggregate(newAggregateQuery(primary)); err != nil {
			return "", err
		}
	} else {
		f, err := b.compileFilterExpr(primary.Filter)
		if err != nil {
			return "", err
		}
		fOrdered, err := b.applyOrdering(f, partition.Len, primary.OrderBy, primary.Limit)
		if err != nil {
			return "", err
		}
		for _, c := range primary.Projection {
			if _, err := b.compileExpr(c.Expr, fOrdered); err != nil {
				return "", err
			}
		}
	}

	ex, err := vm.NewExecutor(b.ops)
	if err != nil {
		return "", err
	}
	return ex.Explain(), nil
}
