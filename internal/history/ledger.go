// Package history accumulates the tasks that contributed to exported files
// and appends their processing history to text files shared between exports.
package history

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/bft-labs/pixport/internal/domain"
	"github.com/bft-labs/pixport/internal/ports"
	"github.com/bft-labs/pixport/pkg/log"
)

// DefaultBoilerplateBlob names the blob prefixed to new history files.
const DefaultBoilerplateBlob = "history/boilerplate.txt"

// Config holds what every ledger needs to write.
type Config struct {
	Metadata        ports.MetadataStore
	Blobs           ports.BlobStore
	Renderer        TaskRenderer
	BoilerplateBlob string
	RunID           string
	Now             func() time.Time
	Logger          log.Logger
}

func (c *Config) setDefaults() {
	if c.Renderer == nil {
		c.Renderer = LineageRenderer{}
	}
	if c.BoilerplateBlob == "" {
		c.BoilerplateBlob = DefaultBoilerplateBlob
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Logger == nil {
		c.Logger = log.NewNoopLogger()
	}
}

// Ledger is the task-id set of one history file.
type Ledger struct {
	name string
	cfg  *Config

	mu  sync.Mutex
	ids map[int64]struct{}

	// writeMu serializes appends to the history file.
	writeMu sync.Mutex
}

// Name returns the history file name.
func (l *Ledger) Name() string { return l.name }

// AddTaskID records a contributing task. Duplicates collapse.
func (l *Ledger) AddTaskID(ids ...int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, id := range ids {
		l.ids[id] = struct{}{}
	}
}

// TaskIDs returns the recorded ids in ascending order.
func (l *Ledger) TaskIDs() []int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]int64, 0, len(l.ids))
	for id := range l.ids {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Write appends the accountability report, alerts, model history and an
// export note to path. A new file starts with the boilerplate blob.
func (l *Ledger) Write(ctx context.Context, path, description string) error {
	ids := l.TaskIDs()
	cfg := l.cfg

	lineage, err := cfg.Metadata.TaskLineage(ctx, ids)
	if err != nil {
		return fmt.Errorf("history %s: task lineage: %w", l.name, err)
	}
	alerts, err := cfg.Metadata.Alerts(ctx, ids)
	if err != nil {
		return fmt.Errorf("history %s: alerts: %w", l.name, err)
	}
	sort.SliceStable(alerts, func(i, j int) bool {
		if alerts[i].TaskID != alerts[j].TaskID {
			return alerts[i].TaskID < alerts[j].TaskID
		}
		return alerts[i].Time.Before(alerts[j].Time)
	})

	var models []domain.ModelEvent
	if from, to, ok := processingSpan(ids, lineage); ok {
		models, err = cfg.Metadata.ModelHistory(ctx, from, to)
		if err != nil {
			return fmt.Errorf("history %s: model history: %w", l.name, err)
		}
		sort.SliceStable(models, func(i, j int) bool {
			if !models[i].IngestTime.Equal(models[j].IngestTime) {
				return models[i].IngestTime.Before(models[j].IngestTime)
			}
			return models[i].ModelType < models[j].ModelType
		})
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	var boilerplate []byte
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		boilerplate, err = cfg.Blobs.ReadBlob(ctx, cfg.BoilerplateBlob)
		if err != nil {
			return fmt.Errorf("history %s: boilerplate: %w", l.name, err)
		}
	} else if err != nil {
		return fmt.Errorf("history %s: %w", l.name, err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("history %s: %w", l.name, err)
	}
	w := bufio.NewWriter(f)
	if len(boilerplate) > 0 {
		w.Write(boilerplate)
		if boilerplate[len(boilerplate)-1] != '\n' {
			w.WriteByte('\n')
		}
	}

	fmt.Fprintln(w, "== Data accountability ==")
	if err := cfg.Renderer.Render(w, ids, lineage); err != nil {
		f.Close()
		return fmt.Errorf("history %s: render: %w", l.name, err)
	}

	fmt.Fprintln(w, "== Alerts ==")
	for _, a := range alerts {
		fmt.Fprintf(w, "%d %s %s %s: %s\n", a.TaskID, a.Time.UTC().Format(time.RFC3339), a.Severity, a.Source, a.Message)
	}

	fmt.Fprintln(w, "== Calibration model history ==")
	for _, m := range models {
		fmt.Fprintf(w, "%s %s rev=%d %s\n", m.IngestTime.UTC().Format(time.RFC3339), m.ModelType, m.Revision, m.Description)
	}

	fmt.Fprintf(w, "== Export %s run=%s ==\n%s\n\n", cfg.Now().UTC().Format(time.RFC3339), cfg.RunID, description)

	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("history %s: %w", l.name, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("history %s: %w", l.name, err)
	}
	cfg.Logger.Debug("history appended",
		log.String("file", path),
		log.Int("tasks", len(ids)),
		log.Int("alerts", len(alerts)),
		log.Int("model_events", len(models)),
	)
	return nil
}

// processingSpan returns the min/max start-processing time of the
// contributing tasks.
func processingSpan(ids []int64, lineage []domain.TaskRecord) (time.Time, time.Time, bool) {
	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var from, to time.Time
	found := false
	for _, t := range lineage {
		if !want[t.ID] || t.StartProcessing.IsZero() {
			continue
		}
		if !found || t.StartProcessing.Before(from) {
			from = t.StartProcessing
		}
		if !found || t.StartProcessing.After(to) {
			to = t.StartProcessing
		}
		found = true
	}
	return from, to, found
}
