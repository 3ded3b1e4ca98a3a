package scripts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charlievieth/fastwalk"
	"github.com/gabriel-vasile/mimetype"
)

// Extensions are the file suffixes picked up when walking a directory
var Extensions = []string{".js", ".mjs", ".cjs"}

// ErrNoScripts is returned when no argument matched a script file
var ErrNoScripts = errors.New("no scripts matched")

// Skipped records a matched file that was not a script
type Skipped struct {
	Path   string
	Reason string
}

// Collect resolves arguments into script paths. An argument may be a file,
// a directory walked for Extensions, or a doublestar glob such as
// "tests/**/*.js". Results are sorted and unique; matched files that are
// not text are reported as skipped.
func Collect(ctx context.Context, args ...string) ([]string, []Skipped, error) {
	seen := map[string]bool{}
	var (
		paths   []string
		skipped []Skipped
	)
	add := func(p string) {
		p = filepath.Clean(p)
		if seen[p] {
			return
		}
		seen[p] = true
		if reason := notText(p); reason != "" {
			skipped = append(skipped, Skipped{Path: p, Reason: reason})
			return
		}
		paths = append(paths, p)
	}

	for _, arg := range args {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		if hasMeta(arg) {
			matches, err := doublestar.FilepathGlob(arg, doublestar.WithFilesOnly())
			if err != nil {
				return nil, nil, fmt.Errorf("glob %q: %w", arg, err)
			}
			for _, m := range matches {
				add(m)
			}
			continue
		}

		info, err := os.Stat(arg)
		if err != nil {
			return nil, nil, err
		}
		if !info.IsDir() {
			add(arg)
			continue
		}

		found, err := walk(ctx, arg)
		if err != nil {
			return nil, nil, fmt.Errorf("walk %s: %w", arg, err)
		}
		for _, f := range found {
			add(f)
		}
	}

	if len(paths) == 0 {
		return nil, skipped, ErrNoScripts
	}
	slices.Sort(paths)
	return paths, skipped, nil
}

// walk lists files under root with a script extension. fastwalk calls fn
// from several goroutines.
func walk(ctx context.Context, root string) ([]string, error) {
	var (
		mu    sync.Mutex
		found []string
	)
	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, root, func(p string, d os.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil || d.IsDir() {
			return nil
		}
		if slices.Contains(Extensions, strings.ToLower(filepath.Ext(p))) {
			mu.Lock()
			found = append(found, p)
			mu.Unlock()
		}
		return nil
	})
	slices.Sort(found)
	return found, err
}

// notText returns why p cannot be a script, or "" if it can
func notText(p string) string {
	mtype, err := mimetype.DetectFile(p)
	if err != nil {
		return err.Error()
	}
	for m := mtype; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return ""
		}
	}
	return "not a text file (" + mtype.String() + ")"
}

func hasMeta(arg string) bool {
	return strings.ContainsAny(arg, "*?[{")
}
