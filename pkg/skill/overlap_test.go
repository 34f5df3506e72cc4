package skill

import "testing"

func TestOverlap(t *testing.T) {
	tests := []struct {
		name string
		a, b *Manifest
		want bool
	}{
		{
			name: "shared modify",
			a:    &Manifest{Name: "a", Modifies: []string{"src/app.js"}},
			b:    &Manifest{Name: "b", Modifies: []string{"src/app.js", "other.js"}},
			want: true,
		},
		{
			name: "disjoint modifies",
			a:    &Manifest{Name: "a", Modifies: []string{"src/a.js"}},
			b:    &Manifest{Name: "b", Modifies: []string{"src/b.js"}},
			want: false,
		},
		{
			name: "shared package dependency",
			a: &Manifest{Name: "a", Structured: &StructuredOps{
				PackageDependencies: map[string]string{"express": "^4.0.0"},
			}},
			b: &Manifest{Name: "b", Structured: &StructuredOps{
				PackageDependencies: map[string]string{"express": "^5.0.0"},
			}},
			want: true,
		},
		{
			name: "structured on one side only",
			a: &Manifest{Name: "a", Structured: &StructuredOps{
				PackageDependencies: map[string]string{"express": "^4.0.0"},
			}},
			b:    &Manifest{Name: "b"},
			want: false,
		},
		{
			name: "adds never overlap",
			a:    &Manifest{Name: "a", Adds: []string{"src/new.js"}},
			b:    &Manifest{Name: "b", Adds: []string{"src/new.js"}},
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Overlap(tt.a, tt.b); got != tt.want {
				t.Errorf("Overlap() = %v, want %v", got, tt.want)
			}
			if got := Overlap(tt.b, tt.a); got != tt.want {
				t.Errorf("Overlap() is not symmetric")
			}
		})
	}
}

func TestOverlapMatrix(t *testing.T) {
	manifests := []*Manifest{
		{Name: "zeta", Modifies: []string{"shared.js"}},
		{Name: "alpha", Modifies: []string{"shared.js"}},
		{Name: "midway", Modifies: []string{"other.js"}},
	}

	pairs := OverlapMatrix(manifests)
	if len(pairs) != 1 {
		t.Fatalf("pairs = %+v, want exactly 1", pairs)
	}
	// Lexical ordering inside the pair, regardless of input order.
	if pairs[0].A != "alpha" || pairs[0].B != "zeta" {
		t.Errorf("pair = %+v, want alpha/zeta", pairs[0])
	}

	if got := OverlapMatrix(nil); len(got) != 0 {
		t.Errorf("empty input should yield no pairs, got %+v", got)
	}
}
