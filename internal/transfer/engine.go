package transfer

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/olbridge/olbridge/internal/api"
	"github.com/olbridge/olbridge/internal/cache"
	"github.com/olbridge/olbridge/internal/config"
	"github.com/olbridge/olbridge/internal/logging"
	"github.com/olbridge/olbridge/internal/pathutil"
	"github.com/olbridge/olbridge/internal/session"
)

// DefaultParallelism bounds concurrent item copies when unconfigured.
const DefaultParallelism = 3

// ProgressFunc observes each item as it settles. done counts settled items
// including this one; total is the job's item count.
type ProgressFunc func(item Item, done, total int)

// Engine plans and runs transfer jobs. Jobs are tracked until the process
// exits so finished runs can still be inspected.
type Engine struct {
	mu      sync.Mutex
	jobs    map[string]*Job
	running map[string]bool
	seq     int

	sessions    *session.Store
	cache       *cache.ListingCache
	dial        api.Dialer
	autobackup  *config.AutobackupStore
	log         *logging.Logger
	parallelism int64
}

// NewEngine wires a transfer engine. parallelism <= 0 uses the default.
func NewEngine(sessions *session.Store, listings *cache.ListingCache, dial api.Dialer, autobackup *config.AutobackupStore, log *logging.Logger, parallelism int) *Engine {
	if parallelism <= 0 {
		parallelism = DefaultParallelism
	}
	return &Engine{
		jobs:        make(map[string]*Job),
		running:     make(map[string]bool),
		sessions:    sessions,
		cache:       listings,
		dial:        dial,
		autobackup:  autobackup,
		log:         log,
		parallelism: int64(parallelism),
	}
}

// Job returns a snapshot of one tracked job.
func (e *Engine) Job(id string) (Summary, bool) {
	e.mu.Lock()
	j, ok := e.jobs[id]
	e.mu.Unlock()
	if !ok {
		return Summary{}, false
	}
	return j.Snapshot(), true
}

// Jobs returns snapshots of all tracked jobs, newest first.
func (e *Engine) Jobs() []Summary {
	e.mu.Lock()
	out := make([]Summary, 0, len(e.jobs))
	for _, j := range e.jobs {
		out = append(out, j.Snapshot())
	}
	e.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out
}

// Cancel requests cancellation of a tracked job. Unknown IDs and finished
// jobs are no-ops.
func (e *Engine) Cancel(id string) bool {
	e.mu.Lock()
	j, ok := e.jobs[id]
	e.mu.Unlock()
	if !ok {
		return false
	}
	j.Cancel()
	return true
}

func (e *Engine) track(kind Kind, identity string, items []Item, cancel func()) *Job {
	e.mu.Lock()
	e.seq++
	j := &Job{
		id:        fmt.Sprintf("%s-%03d", kind, e.seq),
		kind:      kind,
		identity:  identity,
		status:    JobRunning,
		items:     items,
		started:   time.Now(),
		cancelJob: cancel,
	}
	e.jobs[j.id] = j
	e.mu.Unlock()
	return j
}

// acquire claims the identity's single job slot. At most one job runs per
// session; a second backup or restore is rejected until the first settles.
func (e *Engine) acquire(identity string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running[identity] {
		return ErrJobRunning
	}
	e.running[identity] = true
	return nil
}

func (e *Engine) release(identity string) {
	e.mu.Lock()
	delete(e.running, identity)
	e.mu.Unlock()
}

func (e *Engine) remoteFor(identity string) (api.Remote, api.Credentials, error) {
	snap, err := e.sessions.Snapshot(identity)
	if err != nil {
		return nil, api.Credentials{}, err
	}
	if !snap.Creds.Configured() {
		return nil, api.Credentials{}, api.ErrNotConfigured
	}
	return e.dial(snap.Creds), snap.Creds, nil
}

// Backup copies every regular file under localDir to remoteDest, preserving
// the relative layout. Files already present remotely are skipped unless
// force is set. A partial outcome is reported through ErrPartialFailure.
func (e *Engine) Backup(ctx context.Context, identity, localDir, remoteDest string, force bool, progress ProgressFunc) (Summary, error) {
	if err := e.acquire(identity); err != nil {
		return Summary{}, err
	}
	defer e.release(identity)

	remote, creds, err := e.remoteFor(identity)
	if err != nil {
		return Summary{}, err
	}
	remoteDest = pathutil.Normalize(remoteDest)

	items, err := planBackup(localDir, remoteDest)
	if err != nil {
		return Summary{}, err
	}

	if err := remote.Mkdir(ctx, remoteDest); err != nil {
		return Summary{}, fmt.Errorf("preparing %s: %w", remoteDest, err)
	}

	// One listing per destination directory decides skips for the whole
	// job; nested items compare against their own directory, not the root.
	existing := map[string]bool{}
	if !force {
		dirs := map[string]bool{}
		for _, it := range items {
			dirs[pathutil.Parent(it.Dest)] = true
		}
		for dir := range dirs {
			entries, err := remote.List(ctx, dir)
			if err != nil {
				if api.IsNotFound(err) {
					continue
				}
				return Summary{}, fmt.Errorf("listing %s: %w", dir, err)
			}
			for _, en := range entries {
				existing[en.Path] = true
			}
		}
	}

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	job := e.track(KindBackup, identity, items, cancel)

	e.runItems(jobCtx, job, progress, func(ctx context.Context, it Item) (ItemStatus, error) {
		if !force && existing[it.Dest] {
			return ItemSkipped, nil
		}
		f, err := os.Open(it.Source)
		if err != nil {
			return ItemFailed, err
		}
		defer f.Close()
		if err := remote.Upload(ctx, it.Dest, f, it.Size); err != nil {
			return ItemFailed, err
		}
		return ItemTransferred, nil
	})

	e.cache.InvalidateTree(creds.Identity(), remoteDest)
	return e.finishJob(jobCtx, job)
}

// Restore copies every file under remoteDir into localDest. Local files
// already present are skipped unless force is set.
func (e *Engine) Restore(ctx context.Context, identity, remoteDir, localDest string, force bool, progress ProgressFunc) (Summary, error) {
	if err := e.acquire(identity); err != nil {
		return Summary{}, err
	}
	defer e.release(identity)

	remote, _, err := e.remoteFor(identity)
	if err != nil {
		return Summary{}, err
	}
	remoteDir = pathutil.Normalize(remoteDir)

	items, err := planRestore(ctx, remote, remoteDir, localDest)
	if err != nil {
		return Summary{}, err
	}
	if err := os.MkdirAll(localDest, 0700); err != nil {
		return Summary{}, fmt.Errorf("preparing %s: %w", localDest, err)
	}

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	job := e.track(KindRestore, identity, items, cancel)

	e.runItems(jobCtx, job, progress, func(ctx context.Context, it Item) (ItemStatus, error) {
		if !force {
			if _, err := os.Stat(it.Dest); err == nil {
				return ItemSkipped, nil
			}
		}
		if err := os.MkdirAll(filepath.Dir(it.Dest), 0700); err != nil {
			return ItemFailed, err
		}
		tmp := it.Dest + ".part"
		f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
		if err != nil {
			return ItemFailed, err
		}
		_, err = remote.Download(ctx, it.Source, f)
		closeErr := f.Close()
		if err == nil {
			err = closeErr
		}
		if err != nil {
			os.Remove(tmp)
			return ItemFailed, err
		}
		if err := os.Rename(tmp, it.Dest); err != nil {
			os.Remove(tmp)
			return ItemFailed, err
		}
		return ItemTransferred, nil
	})

	return e.finishJob(jobCtx, job)
}

// RunAutobackup executes the standing backup rule for a scope, if one is
// enabled. The second return reports whether a rule fired.
func (e *Engine) RunAutobackup(ctx context.Context, identity, scope, localDir string, progress ProgressFunc) (Summary, bool, error) {
	rule, ok := e.autobackup.Get(scope)
	if !ok || !rule.Enabled {
		return Summary{}, false, nil
	}
	job, err := e.Backup(ctx, identity, localDir, rule.DestPath, false, progress)
	return job, true, err
}

// runItems drives the per-item worker over the job with bounded
// parallelism. Once the context is cancelled no further items start;
// unstarted items stay pending.
func (e *Engine) runItems(ctx context.Context, job *Job, progress ProgressFunc, work func(context.Context, Item) (ItemStatus, error)) {
	sem := semaphore.NewWeighted(e.parallelism)
	var wg sync.WaitGroup
	var doneMu sync.Mutex
	var done int

	total := len(job.items)
	for i := 0; i < total; i++ {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer sem.Release(1)

			it := job.item(i)
			status, err := work(ctx, it)
			settled := job.settle(i, status, err)
			if err != nil {
				e.log.Warnf("%s: %s failed: %v", job.id, it.Name, err)
			}

			if progress != nil {
				doneMu.Lock()
				done++
				n := done
				doneMu.Unlock()
				progress(settled, n, total)
			}
		}(i)
	}
	wg.Wait()
}

func (e *Engine) finishJob(ctx context.Context, job *Job) (Summary, error) {
	status := job.finish(ctx.Err() != nil)
	snap := job.Snapshot()
	counts := snap.Count()
	e.log.Infof("%s finished %s: %d transferred, %d skipped, %d failed",
		snap.ID, status, counts.Transferred, counts.Skipped, counts.Failed)
	if status == JobPartial {
		return snap, ErrPartialFailure
	}
	return snap, nil
}

// planBackup walks localDir and maps every regular file to its remote
// destination path. A plain file source yields a single-item plan.
func planBackup(localDir, remoteDest string) ([]Item, error) {
	info, err := os.Stat(localDir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", localDir, err)
	}
	if !info.IsDir() {
		return []Item{{
			Name:   filepath.Base(localDir),
			Source: localDir,
			Dest:   pathutil.Join(remoteDest, filepath.Base(localDir)),
			Size:   info.Size(),
			Status: ItemPending,
		}}, nil
	}

	var items []Item
	err = filepath.WalkDir(localDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(localDir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		items = append(items, Item{
			Name:   rel,
			Source: p,
			Dest:   pathutil.Join(remoteDest, rel),
			Size:   fi.Size(),
			Status: ItemPending,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", localDir, err)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items, nil
}

// maxRestoreDepth bounds the remote walk so a cyclic or hostile listing
// cannot recurse forever.
const maxRestoreDepth = 32

// planRestore walks the remote subtree under remoteDir and maps every file
// to a local destination preserving the relative layout. Path components
// are sanitized so a hostile listing cannot escape localDest.
func planRestore(ctx context.Context, remote api.Remote, remoteDir, localDest string) ([]Item, error) {
	var items []Item
	var walk func(dir, rel string, depth int) error
	walk = func(dir, rel string, depth int) error {
		if depth > maxRestoreDepth {
			return fmt.Errorf("%s: tree deeper than %d levels", dir, maxRestoreDepth)
		}
		entries, err := remote.List(ctx, dir)
		if err != nil {
			return fmt.Errorf("listing %s: %w", dir, err)
		}
		for _, en := range entries {
			name := pathutil.SanitizeFilename(en.Name)
			childRel := name
			if rel != "" {
				childRel = rel + "/" + name
			}
			if en.IsDir {
				if err := walk(en.Path, childRel, depth+1); err != nil {
					return err
				}
				continue
			}
			items = append(items, Item{
				Name:   childRel,
				Source: en.Path,
				Dest:   filepath.Join(localDest, filepath.FromSlash(childRel)),
				Size:   en.Size,
				Status: ItemPending,
			})
		}
		return nil
	}
	if err := walk(remoteDir, "", 0); err != nil {
		return nil, err
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items, nil
}
