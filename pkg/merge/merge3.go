// Package merge implements the three-way text merge engine. It merges a
// current file, its pristine base ancestor, and a skill's proposed version
// using diff3 semantics: lines changed on exactly one side win, lines
// changed identically on both sides win, and lines changed differently on
// both sides become a conflict region bounded by standard markers that
// include the base section. No language-aware parsing is performed.
package merge

import (
	"fmt"
	"os"
	"strings"
)

// Conflict marker labels. The theirs label is replaced per merge with the
// skill name producing the proposed side.
const (
	markerOurs   = "<<<<<<< current"
	markerBase   = "||||||| base"
	markerSplit  = "======="
	markerTheirs = ">>>>>>> "
)

// Result is the outcome of a single three-way merge.
type Result struct {
	// Clean is true when the merge produced no conflict regions.
	Clean bool

	// Content is the merged output: the clean result, or the
	// conflict-marked text when Clean is false.
	Content []byte

	// Conflicts is the number of conflict regions emitted.
	Conflicts int
}

// Preimage returns the exact pre-resolution conflict text used to key a
// resolution lookup. It is only meaningful when the merge was not clean.
func (r *Result) Preimage() []byte {
	if r.Clean {
		return nil
	}
	return r.Content
}

// Merge three-way merges the file at currentPath against basePath
// (ancestor) and skillPath (proposed), writing the result in place over
// currentPath. theirsLabel names the proposed side in conflict markers.
func Merge(currentPath, basePath, skillPath, theirsLabel string) (*Result, error) {
	current, err := os.ReadFile(currentPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read current file: %w", err)
	}
	base, err := os.ReadFile(basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read base file: %w", err)
	}
	proposed, err := os.ReadFile(skillPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read proposed file: %w", err)
	}

	result := MergeBytes(current, base, proposed, theirsLabel)

	info, err := os.Stat(currentPath)
	mode := os.FileMode(0o644)
	if err == nil {
		mode = info.Mode().Perm()
	}
	if err := os.WriteFile(currentPath, result.Content, mode); err != nil {
		return nil, fmt.Errorf("failed to write merge result: %w", err)
	}
	return result, nil
}

// MergeBytes merges in memory. See Merge.
func MergeBytes(current, base, proposed []byte, theirsLabel string) *Result {
	ours := splitLines(current)
	anc := splitLines(base)
	theirs := splitLines(proposed)

	groups := groupSpans(diffSpans(anc, ours), diffSpans(anc, theirs))

	var out []string
	conflicts := 0
	baseIdx, oursIdx, theirsIdx := 0, 0, 0

	for _, g := range groups {
		// Lines before the group are unchanged on both sides.
		out = append(out, anc[baseIdx:g.baseLo]...)
		oursIdx += g.baseLo - baseIdx
		theirsIdx += g.baseLo - baseIdx

		oursEnd := oursIdx + (g.baseHi - g.baseLo) + g.oursDelta
		theirsEnd := theirsIdx + (g.baseHi - g.baseLo) + g.theirsDelta

		oursLines := ours[oursIdx:oursEnd]
		theirsLines := theirs[theirsIdx:theirsEnd]

		switch {
		case !g.oursChanged:
			out = append(out, theirsLines...)
		case !g.theirsChanged:
			out = append(out, oursLines...)
		case sameLines(oursLines, theirsLines):
			out = append(out, oursLines...)
		default:
			conflicts++
			out = append(out, conflictRegion(oursLines, anc[g.baseLo:g.baseHi], theirsLines, theirsLabel)...)
		}

		baseIdx = g.baseHi
		oursIdx = oursEnd
		theirsIdx = theirsEnd
	}
	out = append(out, anc[baseIdx:]...)

	return &Result{
		Clean:     conflicts == 0,
		Content:   joinLines(out),
		Conflicts: conflicts,
	}
}

// chunkGroup is a maximal run of changed regions that overlap over base
// coordinates, with per-side length deltas relative to the base range.
type chunkGroup struct {
	baseLo, baseHi int
	oursChanged    bool
	theirsChanged  bool
	oursDelta      int
	theirsDelta    int
}

// groupSpans interleaves both sides' differing spans and coalesces the
// ones whose base ranges interact. Insertions at the same base offset are
// treated as interacting so that competing insertions conflict rather
// than silently interleave.
func groupSpans(oursSpans, theirsSpans []span) []chunkGroup {
	type sided struct {
		span
		ours bool
	}

	all := make([]sided, 0, len(oursSpans)+len(theirsSpans))
	for _, s := range oursSpans {
		all = append(all, sided{span: s, ours: true})
	}
	for _, s := range theirsSpans {
		all = append(all, sided{span: s, ours: false})
	}
	// Stable-ish sort by base start (insertion sort keeps this simple and
	// the span counts small).
	for i := 1; i < len(all); i++ {
		for j := i; j > 0 && all[j].aLo < all[j-1].aLo; j-- {
			all[j], all[j-1] = all[j-1], all[j]
		}
	}

	var groups []chunkGroup
	for _, s := range all {
		delta := (s.bHi - s.bLo) - (s.aHi - s.aLo)
		if n := len(groups); n > 0 {
			g := &groups[n-1]
			if s.aLo < g.baseHi || (s.aLo == g.baseHi && (s.aLo == s.aHi || g.baseLo == g.baseHi)) {
				if s.aHi > g.baseHi {
					g.baseHi = s.aHi
				}
				if s.ours {
					g.oursChanged = true
					g.oursDelta += delta
				} else {
					g.theirsChanged = true
					g.theirsDelta += delta
				}
				continue
			}
		}
		g := chunkGroup{baseLo: s.aLo, baseHi: s.aHi}
		if s.ours {
			g.oursChanged = true
			g.oursDelta = delta
		} else {
			g.theirsChanged = true
			g.theirsDelta = delta
		}
		groups = append(groups, g)
	}
	return groups
}

func sameLines(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// conflictRegion renders a diff3-style conflict: ours, base, theirs.
func conflictRegion(ours, base, theirs []string, theirsLabel string) []string {
	region := make([]string, 0, len(ours)+len(base)+len(theirs)+4)
	region = append(region, markerOurs+"\n")
	region = append(region, ensureTerminated(ours)...)
	region = append(region, markerBase+"\n")
	region = append(region, ensureTerminated(base)...)
	region = append(region, markerSplit+"\n")
	region = append(region, ensureTerminated(theirs)...)
	region = append(region, markerTheirs+theirsLabel+"\n")
	return region
}

// ensureTerminated newline-terminates the final line so that a following
// marker starts on its own line.
func ensureTerminated(lines []string) []string {
	if n := len(lines); n > 0 && !strings.HasSuffix(lines[n-1], "\n") {
		out := make([]string, n)
		copy(out, lines)
		out[n-1] += "\n"
		return out
	}
	return lines
}

// HasConflictMarkers reports whether content still contains merge markers.
func HasConflictMarkers(content []byte) bool {
	for _, line := range splitLines(content) {
		if strings.HasPrefix(line, "<<<<<<<") || strings.HasPrefix(line, ">>>>>>>") {
			return true
		}
	}
	return false
}
