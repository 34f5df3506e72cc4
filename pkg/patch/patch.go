// Package patch applies standalone unified-diff patches: the ad hoc
// custom modifications users layer outside the skill system. These are
// re-applied best-effort after a replay; an individual failure is
// reported but never fails the surrounding operation.
package patch

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sourcegraph/go-diff/diff"
)

// Result describes one patch application attempt.
type Result struct {
	PatchFile string   `json:"patch_file"`
	Applied   []string `json:"applied,omitempty"`
	Failed    []string `json:"failed,omitempty"`
	Err       string   `json:"error,omitempty"`
}

// OK reports whether every file in the patch applied.
func (r *Result) OK() bool {
	return r.Err == "" && len(r.Failed) == 0
}

// Files returns the repository-relative paths a patch file touches,
// without applying it.
func Files(patchPath string) ([]string, error) {
	data, err := os.ReadFile(patchPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read patch: %w", err)
	}
	fileDiffs, err := diff.NewMultiFileDiffReader(bytes.NewReader(data)).ReadAllFiles()
	if err != nil {
		return nil, fmt.Errorf("failed to parse patch: %w", err)
	}

	paths := make([]string, 0, len(fileDiffs))
	for _, fd := range fileDiffs {
		paths = append(paths, targetPath(fd))
	}
	return paths, nil
}

// Apply applies a multi-file unified diff to the tree at root. Each file
// succeeds or fails independently.
func Apply(patchPath, root string) *Result {
	res := &Result{PatchFile: patchPath}

	data, err := os.ReadFile(patchPath)
	if err != nil {
		res.Err = fmt.Sprintf("failed to read patch: %v", err)
		return res
	}
	fileDiffs, err := diff.NewMultiFileDiffReader(bytes.NewReader(data)).ReadAllFiles()
	if err != nil {
		res.Err = fmt.Sprintf("failed to parse patch: %v", err)
		return res
	}

	for _, fd := range fileDiffs {
		rel := targetPath(fd)
		if err := applyFileDiff(fd, root, rel); err != nil {
			res.Failed = append(res.Failed, rel)
			continue
		}
		res.Applied = append(res.Applied, rel)
	}
	return res
}

func applyFileDiff(fd *diff.FileDiff, root, rel string) error {
	target := filepath.Join(root, filepath.FromSlash(rel))

	if fd.NewName == "/dev/null" {
		return os.Remove(target)
	}

	var original []byte
	if fd.OrigName != "/dev/null" {
		var err error
		original, err = os.ReadFile(target)
		if err != nil {
			return err
		}
	}

	patched, err := applyHunks(original, fd)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	return os.WriteFile(target, patched, 0o644)
}

// applyHunks applies a file diff's hunks, verifying context and removed
// lines against the original so a drifted file fails instead of being
// silently corrupted.
func applyHunks(original []byte, fd *diff.FileDiff) ([]byte, error) {
	if fd.OrigName == "/dev/null" || len(original) == 0 {
		var lines []string
		for _, hunk := range fd.Hunks {
			for _, line := range strings.Split(string(hunk.Body), "\n") {
				if strings.HasPrefix(line, "+") {
					lines = append(lines, strings.TrimPrefix(line, "+"))
				}
			}
		}
		return []byte(strings.Join(lines, "\n") + "\n"), nil
	}

	origLines := strings.Split(string(original), "\n")
	var newLines []string

	origIdx := 0
	for _, hunk := range fd.Hunks {
		hunkStart := int(hunk.OrigStartLine) - 1
		if hunkStart < origIdx || hunkStart > len(origLines) {
			return nil, fmt.Errorf("hunk start %d out of range", hunk.OrigStartLine)
		}
		newLines = append(newLines, origLines[origIdx:hunkStart]...)
		origIdx = hunkStart

		for _, line := range strings.Split(string(hunk.Body), "\n") {
			switch {
			case strings.HasPrefix(line, "+"):
				newLines = append(newLines, strings.TrimPrefix(line, "+"))
			case strings.HasPrefix(line, "-"):
				want := strings.TrimPrefix(line, "-")
				if origIdx >= len(origLines) || origLines[origIdx] != want {
					return nil, fmt.Errorf("patch does not apply at line %d", origIdx+1)
				}
				origIdx++
			case strings.HasPrefix(line, " "):
				want := strings.TrimPrefix(line, " ")
				if origIdx >= len(origLines) || origLines[origIdx] != want {
					return nil, fmt.Errorf("context mismatch at line %d", origIdx+1)
				}
				newLines = append(newLines, origLines[origIdx])
				origIdx++
			case line == "" || strings.HasPrefix(line, "\\"):
				// Trailing empty split artifact or "\ No newline" note.
			}
		}
	}
	newLines = append(newLines, origLines[origIdx:]...)

	return []byte(strings.Join(newLines, "\n")), nil
}

// targetPath strips the conventional a/ b/ prefixes from diff names.
func targetPath(fd *diff.FileDiff) string {
	name := fd.NewName
	if name == "/dev/null" {
		name = fd.OrigName
	}
	name = strings.TrimPrefix(name, "a/")
	name = strings.TrimPrefix(name, "b/")
	return name
}
