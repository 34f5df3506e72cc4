package skill

import "sort"

// Overlap reports whether two skills touch the same surface: their
// modifies sets intersect, or both declare a structured dependency on the
// same package name. Overlapping pairs are the ones worth exercising
// together in an integration matrix.
func Overlap(a, b *Manifest) bool {
	mods := a.ModifiesSet()
	for _, p := range b.Modifies {
		if _, ok := mods[p]; ok {
			return true
		}
	}

	if a.Structured == nil || b.Structured == nil {
		return false
	}
	for name := range a.Structured.PackageDependencies {
		if _, ok := b.Structured.PackageDependencies[name]; ok {
			return true
		}
	}
	return false
}

// OverlapPair names two overlapping skills, ordered lexically.
type OverlapPair struct {
	A string `json:"a"`
	B string `json:"b"`
}

// OverlapMatrix computes all pairwise overlaps for a set of manifests.
// Pairs are returned in deterministic lexical order.
func OverlapMatrix(manifests []*Manifest) []OverlapPair {
	var pairs []OverlapPair
	for i := 0; i < len(manifests); i++ {
		for j := i + 1; j < len(manifests); j++ {
			if !Overlap(manifests[i], manifests[j]) {
				continue
			}
			a, b := manifests[i].Name, manifests[j].Name
			if b < a {
				a, b = b, a
			}
			pairs = append(pairs, OverlapPair{A: a, B: b})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].A != pairs[j].A {
			return pairs[i].A < pairs[j].A
		}
		return pairs[i].B < pairs[j].B
	})
	return pairs
}
