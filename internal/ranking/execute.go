package ranking

import (
	"context"
	"slices"

	"github.com/abelbrown/lineup/internal/model"
)

// Result is the outcome of a sort: the flat order of row indices and its
// partition into groups, both in display order.
type Result struct {
	Order  []int         `json:"order"`
	Groups []model.Group `json:"groups"`
}

// Execute orders the plan's records. Rows are stably sorted inside each
// group, so rows that tie on every key keep their input order. Execute
// returns ctx.Err() if the context ends between groups.
func (p *Plan) Execute(ctx context.Context) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	buckets := make(map[string][]record, len(p.groups))
	for _, rec := range p.records {
		id := groupID(rec.groups)
		buckets[id] = append(buckets[id], rec)
	}

	infos := make([]*groupInfo, 0, len(p.groups))
	for _, g := range p.groups {
		infos = append(infos, g)
	}
	slices.SortFunc(infos, p.compareGroups)

	res := &Result{Order: make([]int, 0, len(p.records))}
	for _, g := range infos {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		recs := buckets[g.id]
		slices.SortStableFunc(recs, p.compareRecords)
		order := make([]int, len(recs))
		for i, rec := range recs {
			order[i] = rec.index
		}
		res.Order = append(res.Order, order...)
		res.Groups = append(res.Groups, model.Group{
			Name:  g.name,
			Keys:  g.keys,
			Order: order,
		})
	}
	return res, nil
}

// Sort builds and executes a plan in one step.
func Sort(ctx context.Context, r *model.Ranking, rows []model.Row, opts Options) (*Result, error) {
	p, err := Build(r, rows, opts)
	if err != nil {
		return nil, err
	}
	return p.Execute(ctx)
}

func (p *Plan) compareRecords(a, b record) int {
	for i, asc := range p.asc {
		if c := compareDirected(a.keys[i], b.keys[i], asc, p.nulls); c != 0 {
			return c
		}
	}
	return 0
}

// compareGroups orders groups by the group sort criteria, then by key
// ascending with missing groups last.
func (p *Plan) compareGroups(a, b *groupInfo) int {
	for i, asc := range p.groupAsc {
		var c int
		if p.byKey[i] {
			c = compareGroupTuples(a.keys, b.keys)
			if !asc && !anyMissing(a.keys) && !anyMissing(b.keys) {
				c = -c
			}
		} else {
			c = compareDirected(a.agg[i], b.agg[i], asc, p.nulls)
		}
		if c != 0 {
			return c
		}
	}
	return compareGroupTuples(a.keys, b.keys)
}

// compareDirected compares two keys under a direction. Missing keys are
// placed according to nulls whatever the direction.
func compareDirected(a, b model.SortKey, asc bool, nulls NullsOrder) int {
	switch {
	case a.Missing && b.Missing:
		return 0
	case a.Missing, b.Missing:
		c := 1 // a missing, last
		if b.Missing {
			c = -1
		}
		if nulls == NullsFirst {
			c = -c
		}
		return c
	}
	c := model.CompareKeys(a, b)
	if !asc {
		c = -c
	}
	return c
}

func compareGroupTuples(a, b []model.GroupKey) int {
	for i := range min(len(a), len(b)) {
		if c := model.CompareGroupKeys(a[i], b[i]); c != 0 {
			return c
		}
	}
	return len(a) - len(b)
}

func anyMissing(keys []model.GroupKey) bool {
	for _, k := range keys {
		if k.Missing {
			return true
		}
	}
	return false
}
