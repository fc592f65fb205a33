package diff

import (
	"sort"

	"github.com/shem-sql/shem/internal/schema"
)

// kindRank layers object kinds for emission: within a topological level,
// lower ranks come first for creates and last for drops.
var kindRank = map[schema.ObjectKind]int{
	schema.KindSchema:           0,
	schema.KindExtension:        1,
	schema.KindForeignServer:    2,
	schema.KindCollation:        3,
	schema.KindEnum:             4,
	schema.KindCompositeType:    5,
	schema.KindDomain:           6,
	schema.KindRangeType:        7,
	schema.KindSequence:         8,
	schema.KindTable:            9,
	schema.KindIndex:            10,
	schema.KindView:             11,
	schema.KindMaterializedView: 12,
	schema.KindFunction:         13,
	schema.KindProcedure:        14,
	schema.KindTrigger:          15,
	schema.KindEventTrigger:     16,
	schema.KindPolicy:           17,
	schema.KindRule:             18,
	schema.KindComment:          19,
}

// topoSort orders the given identities so every dependency precedes its
// dependents. Dependencies are read from the model through the oracle;
// edges to identities outside the set are ignored. Foreign-key edges are
// not part of the oracle's table rules here because constraint attachment
// is split into a late phase, which is what makes mutual foreign keys
// representable at all.
//
// Ties inside a level resolve by kind rank, then lexicographically.
func topoSort(ids []schema.Identity, model *schema.Schema) ([]schema.Identity, error) {
	inSet := make(map[schema.Identity]bool, len(ids))
	for _, id := range ids {
		inSet[id] = true
	}

	// indegree counts unmet dependencies; edges fan out dependency -> dependent.
	indegree := make(map[schema.Identity]int, len(ids))
	dependents := make(map[schema.Identity][]schema.Identity, len(ids))
	for _, id := range ids {
		indegree[id] = 0
	}
	for _, id := range ids {
		obj, ok := model.Lookup(id)
		if !ok {
			continue
		}
		for _, dep := range depsForOrdering(obj, model) {
			if dep == id || !inSet[dep] {
				continue
			}
			dependents[dep] = append(dependents[dep], id)
			indegree[id]++
		}
	}

	ready := make([]schema.Identity, 0, len(ids))
	for id, deg := range indegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}

	var order []schema.Identity
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return idLess(ready[i], ready[j]) })
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)
		for _, dependent := range dependents[next] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
	}

	if len(order) != len(ids) {
		var cyclic []schema.Identity
		for id, deg := range indegree {
			if deg > 0 {
				cyclic = append(cyclic, id)
			}
		}
		sort.Slice(cyclic, func(i, j int) bool { return idLess(cyclic[i], cyclic[j]) })
		return nil, &schema.DependencyCycle{IDs: cyclic}
	}
	return order, nil
}

// depsForOrdering is the oracle minus foreign-key edges on tables: those
// constraints are attached in the late phase, so they must not constrain
// (or cycle) table body ordering.
func depsForOrdering(obj schema.Object, model *schema.Schema) []schema.Identity {
	deps := schema.DependenciesOf(obj, model)
	table, ok := obj.(*schema.Table)
	if !ok {
		return deps
	}
	fkTargets := make(map[schema.Identity]bool)
	for _, con := range table.Constraints {
		if con.Type != schema.ConstraintForeignKey || con.RefTable == "" {
			continue
		}
		refSchema, refName := schema.SplitQualified(con.RefTable)
		fkTargets[schema.Identity{Schema: refSchema, Name: refName, Kind: schema.KindTable}] = true
	}
	if len(fkTargets) == 0 {
		return deps
	}
	var out []schema.Identity
	for _, dep := range deps {
		if fkTargets[dep] {
			continue
		}
		out = append(out, dep)
	}
	return out
}

// reverse returns a copy in the opposite order, for drops.
func reverse(ids []schema.Identity) []schema.Identity {
	out := make([]schema.Identity, len(ids))
	for i, id := range ids {
		out[len(ids)-1-i] = id
	}
	return out
}

func idLess(a, b schema.Identity) bool {
	if kindRank[a.Kind] != kindRank[b.Kind] {
		return kindRank[a.Kind] < kindRank[b.Kind]
	}
	return a.Less(b)
}
