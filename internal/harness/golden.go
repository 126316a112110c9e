package harness

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/roach88/mover/internal/ir"
)

// GoldenExt is the extension of golden write-set files.
const GoldenExt = ".golden"

// Golden compares write sets against files in Dir.
type Golden struct {
	Dir    string
	Update bool
}

// Path returns the golden file for a test stem.
func (g Golden) Path(stem string) string {
	return filepath.Join(g.Dir, stem+GoldenExt)
}

// Check compares ws with the golden file for stem. With Update set, the file
// is (re)written and the comparison always matches. Without a golden file
// there is nothing to compare and Check reports a match.
//
// A mismatch is returned as a unified diff from golden to actual.
func (g Golden) Check(stem string, ws ir.WriteSet) (diff string, err error) {
	path := g.Path(stem)
	got := ws.Format()

	if g.Update {
		if err := os.MkdirAll(g.Dir, 0o755); err != nil {
			return "", fmt.Errorf("update golden: %w", err)
		}
		if err := os.WriteFile(path, []byte(got), 0o644); err != nil {
			return "", fmt.Errorf("update golden: %w", err)
		}
		return "", nil
	}

	want, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read golden: %w", err)
	}
	if string(want) == got {
		return "", nil
	}
	return UnifiedDiff(filepath.Base(g.Dir)+"/"+stem+GoldenExt, "actual", string(want), got)
}

// UnifiedDiff renders a unified diff between two texts.
func UnifiedDiff(fromFile, toFile, a, b string) (string, error) {
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(a),
		B:        difflib.SplitLines(b),
		FromFile: fromFile,
		ToFile:   toFile,
		Context:  3,
	})
}
