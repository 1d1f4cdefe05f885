package history

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/bft-labs/pixport/internal/domain"
)

// TaskRenderer renders the data-accountability report of a set of tasks.
type TaskRenderer interface {
	Render(w io.Writer, contributing []int64, lineage []domain.TaskRecord) error
}

// LineageRenderer renders tasks as an indented parent/child tree. Tasks that
// contributed data directly are marked with '*'.
type LineageRenderer struct{}

// Render implements TaskRenderer.
func (LineageRenderer) Render(w io.Writer, contributing []int64, lineage []domain.TaskRecord) error {
	direct := make(map[int64]bool, len(contributing))
	for _, id := range contributing {
		direct[id] = true
	}
	known := make(map[int64]bool, len(lineage))
	children := make(map[int64][]domain.TaskRecord)
	for _, t := range lineage {
		known[t.ID] = true
	}
	var roots []domain.TaskRecord
	for _, t := range lineage {
		if t.ParentID == 0 || !known[t.ParentID] {
			roots = append(roots, t)
			continue
		}
		children[t.ParentID] = append(children[t.ParentID], t)
	}
	byID := func(ts []domain.TaskRecord) {
		sort.Slice(ts, func(i, j int) bool { return ts[i].ID < ts[j].ID })
	}
	byID(roots)

	if _, err := fmt.Fprintf(w, "Contributing tasks: %d\n", len(contributing)); err != nil {
		return err
	}
	var walk func(t domain.TaskRecord, depth int) error
	walk = func(t domain.TaskRecord, depth int) error {
		mark := " "
		if direct[t.ID] {
			mark = "*"
		}
		_, err := fmt.Fprintf(w, "%s%s %d %s/%s rev=%s state=%s %s..%s\n",
			strings.Repeat("  ", depth), mark, t.ID, t.PipelineName, t.ModuleName,
			t.SoftwareRevision, t.State,
			t.StartProcessing.UTC().Format(time.RFC3339), t.EndProcessing.UTC().Format(time.RFC3339))
		if err != nil {
			return err
		}
		kids := children[t.ID]
		byID(kids)
		for _, k := range kids {
			if err := walk(k, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	for _, r := range roots {
		if err := walk(r, 0); err != nil {
			return err
		}
	}
	return nil
}
