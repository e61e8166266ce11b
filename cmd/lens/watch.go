package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/steveyegge/issuelens/internal/eventbus"
	"github.com/steveyegge/issuelens/internal/orchestrator"
	"github.com/steveyegge/issuelens/internal/types"
	"github.com/steveyegge/issuelens/internal/ui"
)

// watcher re-analyzes files when they are saved and reprints their issues
// whenever the engine publishes a refreshed view.
type watcher struct {
	ws      *workspace
	mode    orchestrator.Mode
	sortBy  []types.IssueSortOption
	delay   time.Duration
	out     *os.File
	files   map[string]string // absolute path -> resource key
	mu      sync.Mutex
	pending map[string]*Debouncer
}

func (w *watcher) debouncer(ctx context.Context, key string) *Debouncer {
	w.mu.Lock()
	defer w.mu.Unlock()
	d, ok := w.pending[key]
	if !ok {
		d = NewDebouncer(w.delay, func() { w.saved(ctx, key) })
		w.pending[key] = d
	}
	return d
}

// saved reloads the working copy and submits a save-triggered analysis.
func (w *watcher) saved(ctx context.Context, key string) {
	if err := w.ws.loadBuffer(key); err != nil {
		logger.Warn("cannot read file", "resource", key, "error", err)
		return
	}
	_, err := w.ws.orch.Submit(ctx, orchestrator.Request{Resource: key, Mode: w.mode, Trigger: orchestrator.TriggerSave})
	switch {
	case err == nil, errors.Is(err, orchestrator.ErrDuplicate):
	case errors.Is(err, orchestrator.ErrClosed):
	default:
		logger.Warn("cannot start analysis", "resource", key, "error", err)
	}
}

func (w *watcher) render(key string) {
	rep := buildReport(w.ws, key, w.sortBy)
	if jsonOutput {
		_ = outputJSON(w.out, rep)
		return
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "\n%s %s\n", ui.RenderAccent(time.Now().Format(time.TimeOnly)), ui.RenderSeparator())
	if err := renderReport(&buf, rep, w.ws.settings.HoursPerDay, ui.TerminalWidth()); err != nil {
		logger.Warn("render failed", "resource", key, "error", err)
		return
	}
	_, _ = w.out.Write(buf.Bytes())
}

func (w *watcher) stop() {
	w.mu.Lock()
	pending := make([]*Debouncer, 0, len(w.pending))
	for _, d := range w.pending {
		pending = append(pending, d)
	}
	w.mu.Unlock()
	for _, d := range pending {
		d.CancelAndWait()
	}
}

var watchCmd = &cobra.Command{
	Use:     "watch <file>...",
	GroupID: "issues",
	Short:   "Re-analyze files on save and keep their issue lists current",
	Long: `Watch files for writes. Each save reloads the working copy, which remaps
the cached issues immediately, then starts a save-triggered analysis once the
file has been quiet for watch.debounce. A save while that file's analysis is
still running is ignored.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := rootCtx
		criteria, err := resolveCriteria(cmd, time.Now())
		if err != nil {
			return err
		}
		sortRaw, _ := cmd.Flags().GetString("sort")

		ws, err := newWorkspace(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = ws.orch.Close() }()
		ws.orch.SetCriteria(criteria)

		mode := orchestrator.ModeFull
		if ws.settings.IncrementalCommand != "" {
			mode = orchestrator.ModeIncremental
		}
		w := &watcher{
			ws:      ws,
			mode:    mode,
			sortBy:  types.ParseIssueSortOrder(sortRaw),
			delay:   ws.settings.WatchDebounce,
			out:     os.Stdout,
			files:   make(map[string]string),
			pending: make(map[string]*Debouncer),
		}
		defer w.stop()

		fsw, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("creating watcher: %w", err)
		}
		defer func() { _ = fsw.Close() }() // Best effort cleanup

		dirs := make(map[string]bool)
		keys := make([]string, 0, len(args))
		for _, arg := range args {
			key, err := ws.key(arg)
			if err != nil {
				return err
			}
			abs := filepath.Join(ws.root, filepath.FromSlash(key))
			w.files[abs] = key
			keys = append(keys, key)
			// Editors often replace files on save, so watch the directory.
			if dir := filepath.Dir(abs); !dirs[dir] {
				if err := fsw.Add(dir); err != nil {
					return fmt.Errorf("watching %s: %w", dir, err)
				}
				dirs[dir] = true
			}
		}

		unsubscribe := ws.orch.Subscribe("lens-watch", func(_ context.Context, ev *eventbus.Event) {
			w.render(ev.Resource)
		})
		defer unsubscribe()
		unsubscribeFailures := ws.orch.Bus().Subscribe("lens-watch-failures",
			[]eventbus.EventType{eventbus.EventAnalysisFailed},
			func(_ context.Context, ev *eventbus.Event) {
				fmt.Fprintf(os.Stderr, "%s %s: %s\n", ui.RenderFailIcon(), ev.Resource, ev.Error)
			})
		defer unsubscribeFailures()

		for _, key := range keys {
			if err := ws.loadBuffer(key); err != nil {
				return err
			}
		}
		if err := ws.orch.AnalyzeAll(ctx, keys, mode); err != nil {
			logger.Warn("initial analysis incomplete", "error", err)
		}

		fmt.Fprintf(os.Stderr, "\nWatching for changes... (Press Ctrl+C to exit)\n")
		for {
			select {
			case <-ctx.Done():
				fmt.Fprintf(os.Stderr, "\nStopped watching.\n")
				return nil
			case event, ok := <-fsw.Events:
				if !ok {
					return nil
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				key, tracked := w.files[filepath.Clean(event.Name)]
				if !tracked {
					continue
				}
				w.debouncer(ctx, key).Trigger()
			case err, ok := <-fsw.Errors:
				if !ok {
					return nil
				}
				logger.Warn("watcher error", "error", err)
			}
		}
	},
}

func init() {
	registerFilterFlags(watchCmd)
	watchCmd.Flags().String("sort", "", "Sort order, e.g. severity-desc,line")
	rootCmd.AddCommand(watchCmd)
}
