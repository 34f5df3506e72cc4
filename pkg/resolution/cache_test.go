package resolution

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/skillfuse/skillfuse/pkg/merge"
	"github.com/skillfuse/skillfuse/pkg/skill"
	"github.com/skillfuse/skillfuse/pkg/snapshot"
)

func TestKey(t *testing.T) {
	tests := []struct {
		skills []string
		want   string
	}{
		{[]string{"alpha"}, "alpha"},
		{[]string{"beta", "alpha"}, "alpha+beta"},
		{[]string{"gamma", "alpha", "beta"}, "alpha+beta+gamma"},
	}
	for _, tt := range tests {
		if got := Key(tt.skills); got != tt.want {
			t.Errorf("Key(%v) = %s, want %s", tt.skills, got, tt.want)
		}
	}
}

func hashOf(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// resolutionFixture builds the three input surfaces a Load verifies
// against: a base snapshot, a working tree whose file matches the base,
// and a skill package with a modify/ side.
type resolutionFixture struct {
	cache       *Cache
	base        *snapshot.Store
	projectRoot string
	skillDir    string
	triple      HashTriple
}

func newFixture(t *testing.T) *resolutionFixture {
	t.Helper()

	const (
		rel          = "src/app.js"
		baseContent  = "line1\nline2\n"
		skillContent = "line1 skill\nline2\n"
	)

	baseDir := t.TempDir()
	projectRoot := t.TempDir()
	skillDir := t.TempDir()
	localRoot := filepath.Join(t.TempDir(), "resolutions")

	for _, f := range []struct{ root, content string }{
		{baseDir, baseContent},
		{projectRoot, baseContent}, // working file is freshly reset to base
	} {
		full := filepath.Join(f.root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte(f.content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	skillFile := filepath.Join(skillDir, skill.ModifyDir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(skillFile), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(skillFile, []byte(skillContent), 0o644); err != nil {
		t.Fatal(err)
	}

	base, err := snapshot.Open(baseDir)
	if err != nil {
		t.Fatal(err)
	}

	return &resolutionFixture{
		cache:       New("", localRoot),
		base:        base,
		projectRoot: projectRoot,
		skillDir:    skillDir,
		triple: HashTriple{
			Base:    hashOf(baseContent),
			Current: hashOf(baseContent),
			Skill:   hashOf(skillContent),
		},
	}
}

func (fx *resolutionFixture) save(t *testing.T) FileResolution {
	t.Helper()
	fr := FileResolution{
		Path:       "src/app.js",
		Preimage:   []byte("<<<<<<< current\nA\n||||||| base\nline1\n=======\nline1 skill\n>>>>>>> alpha\nline2\n"),
		Resolution: []byte("line1 resolved\nline2\n"),
		Triple:     fx.triple,
	}
	meta := Meta{
		Skills:      []string{"alpha", "beta"},
		ApplyOrder:  []string{"beta", "alpha"},
		CoreVersion: "2.0.0",
		ResolvedAt:  time.Now().UTC(),
		Source:      SourceUser,
	}
	if err := fx.cache.Save([]string{"beta", "alpha"}, []FileResolution{fr}, meta, nil); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	return fr
}

func TestSaveAndLoad_RoundTrip(t *testing.T) {
	fx := newFixture(t)
	fr := fx.save(t)

	mem := merge.NewMemory()
	report, err := fx.cache.Load([]string{"alpha", "beta"}, fx.projectRoot, fx.skillDir, fx.base, mem)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !report.Any() {
		t.Fatalf("report = %+v, expected a loaded file", report)
	}
	if len(report.Loaded) != 1 || report.Loaded[0] != "src/app.js" {
		t.Errorf("Loaded = %v", report.Loaded)
	}
	if report.Source != SourceGenerated {
		t.Errorf("Source = %s, want generated", report.Source)
	}

	got, ok := mem.LookupByPreimage(fr.Preimage)
	if !ok {
		t.Fatal("replay memory not seeded")
	}
	if string(got) != string(fr.Resolution) {
		t.Errorf("resolution = %q", got)
	}
}

func TestSave_SeedsMemory(t *testing.T) {
	fx := newFixture(t)
	fr := FileResolution{
		Path:       "src/app.js",
		Preimage:   []byte("conflict\n"),
		Resolution: []byte("resolved\n"),
		Triple:     fx.triple,
	}
	mem := merge.NewMemory()
	if err := fx.cache.Save([]string{"alpha"}, []FileResolution{fr}, Meta{}, mem); err != nil {
		t.Fatal(err)
	}
	if _, ok := mem.LookupByPreimage(fr.Preimage); !ok {
		t.Error("Save should seed the given replay memory")
	}
}

func TestSave_RequiresWritableRoot(t *testing.T) {
	c := New(t.TempDir(), "")
	err := c.Save([]string{"alpha"}, []FileResolution{{Path: "x", Preimage: []byte("p"), Resolution: []byte("r")}}, Meta{}, nil)
	if err == nil {
		t.Fatal("expected an error without a writable root")
	}
}

func TestSave_RejectsEmptySet(t *testing.T) {
	c := New("", t.TempDir())
	if err := c.Save([]string{"alpha"}, nil, Meta{}, nil); err == nil {
		t.Fatal("expected an error for an empty resolution set")
	}
}

func TestLoad_NoSet(t *testing.T) {
	fx := newFixture(t)
	report, err := fx.cache.Load([]string{"nope"}, fx.projectRoot, fx.skillDir, fx.base, merge.NewMemory())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if report.Any() {
		t.Errorf("report = %+v, want empty", report)
	}
}

func TestLoad_SkipsDriftedCurrent(t *testing.T) {
	fx := newFixture(t)
	fx.save(t)

	if err := os.WriteFile(filepath.Join(fx.projectRoot, "src", "app.js"), []byte("drifted\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	report, err := fx.cache.Load([]string{"alpha", "beta"}, fx.projectRoot, fx.skillDir, fx.base, merge.NewMemory())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if report.Any() {
		t.Errorf("drifted working file must skip the record, report = %+v", report)
	}
	if len(report.Skipped) != 1 {
		t.Errorf("Skipped = %v", report.Skipped)
	}
}

func TestLoad_SkipsChangedSkillFile(t *testing.T) {
	fx := newFixture(t)
	fx.save(t)

	skillFile := filepath.Join(fx.skillDir, skill.ModifyDir, "src", "app.js")
	if err := os.WriteFile(skillFile, []byte("new skill version\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	report, err := fx.cache.Load([]string{"alpha", "beta"}, fx.projectRoot, fx.skillDir, fx.base, merge.NewMemory())
	if err != nil {
		t.Fatal(err)
	}
	if report.Any() {
		t.Errorf("changed skill file must skip the record, report = %+v", report)
	}
}

func TestLoad_SkipsTamperedSidecar(t *testing.T) {
	fx := newFixture(t)
	fx.save(t)

	dir, _, ok := fx.cache.Dir([]string{"alpha", "beta"})
	if !ok {
		t.Fatal("resolution dir not found")
	}
	sidecar := filepath.Join(dir, "src", "app.js"+TokenSuffix)
	if err := os.WriteFile(sidecar, []byte("0000000000000000"), 0o644); err != nil {
		t.Fatal(err)
	}

	report, err := fx.cache.Load([]string{"alpha", "beta"}, fx.projectRoot, fx.skillDir, fx.base, merge.NewMemory())
	if err != nil {
		t.Fatal(err)
	}
	if report.Any() {
		t.Errorf("tampered sidecar must skip the record, report = %+v", report)
	}
}

func TestDir_ShippedTakesPriority(t *testing.T) {
	shipped := t.TempDir()
	local := t.TempDir()
	key := Key([]string{"alpha", "beta"})
	for _, root := range []string{shipped, local} {
		if err := os.MkdirAll(filepath.Join(root, key), 0o755); err != nil {
			t.Fatal(err)
		}
	}

	c := New(shipped, local)
	dir, source, ok := c.Dir([]string{"beta", "alpha"})
	if !ok {
		t.Fatal("Dir() not found")
	}
	if source != SourceMaintainer {
		t.Errorf("source = %s, want maintainer", source)
	}
	if dir != filepath.Join(shipped, key) {
		t.Errorf("dir = %s", dir)
	}
}
