package transfer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/olbridge/olbridge/internal/api"
	"github.com/olbridge/olbridge/internal/cache"
	"github.com/olbridge/olbridge/internal/config"
	"github.com/olbridge/olbridge/internal/logging"
	"github.com/olbridge/olbridge/internal/models"
	"github.com/olbridge/olbridge/internal/session"
)

// fakeStore is an in-memory Remote keyed by full file path. Listings
// synthesize directory entries from deeper file paths, like the real
// service does.
type fakeStore struct {
	mu         sync.Mutex
	files      map[string][]byte
	failUpload map[string]error
	mkdirs     []string

	// uploadGate, when set, receives one signal as each upload starts;
	// blockUploads, when set, holds every upload until closed.
	uploadGate   chan struct{}
	blockUploads chan struct{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		files:      make(map[string][]byte),
		failUpload: make(map[string]error),
	}
}

func (f *fakeStore) List(ctx context.Context, dir string) ([]models.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	prefix := dir
	if prefix != "/" {
		prefix += "/"
	}
	var out []models.Entry
	seenDirs := map[string]bool{}
	for p, data := range f.files {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		rest := strings.TrimPrefix(p, prefix)
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			name := rest[:i]
			if !seenDirs[name] {
				seenDirs[name] = true
				out = append(out, models.Entry{Name: name, IsDir: true, Path: prefix + name})
			}
			continue
		}
		out = append(out, models.Entry{Name: rest, Size: int64(len(data)), Path: p})
	}
	return out, nil
}

func (f *fakeStore) Upload(ctx context.Context, targetPath string, body io.Reader, size int64) error {
	f.mu.Lock()
	gate, block := f.uploadGate, f.blockUploads
	err, fail := f.failUpload[targetPath]
	f.mu.Unlock()
	if gate != nil {
		gate <- struct{}{}
	}
	if block != nil {
		<-block
	}
	if fail {
		return err
	}
	data, rerr := io.ReadAll(body)
	if rerr != nil {
		return rerr
	}
	f.mu.Lock()
	f.files[targetPath] = data
	f.mu.Unlock()
	return nil
}

func (f *fakeStore) Download(ctx context.Context, path string, w io.Writer) (int64, error) {
	f.mu.Lock()
	data, ok := f.files[path]
	f.mu.Unlock()
	if !ok {
		return 0, api.ErrNotFound
	}
	n, err := w.Write(data)
	return int64(n), err
}

func (f *fakeStore) Mkdir(ctx context.Context, path string) error {
	f.mu.Lock()
	f.mkdirs = append(f.mkdirs, path)
	f.mu.Unlock()
	return nil
}

func (f *fakeStore) Info(context.Context, string) (*models.EntryDetail, error) {
	return nil, api.ErrNotFound
}
func (f *fakeStore) Search(context.Context, string, string) ([]models.Entry, error) {
	return nil, nil
}
func (f *fakeStore) Link(context.Context, string) (string, error)   { return "", api.ErrNotFound }
func (f *fakeStore) Remove(context.Context, string, []string) error { return nil }
func (f *fakeStore) ArchiveList(context.Context, string, string) (*models.ArchiveMeta, error) {
	return nil, api.ErrNotFound
}

var _ api.Remote = (*fakeStore)(nil)

func testEngine(t *testing.T, remote api.Remote) *Engine {
	t.Helper()
	sessions := session.NewStore(func(string) (api.Credentials, error) {
		return api.Credentials{BaseURL: "http://srv", Username: "u"}, nil
	})
	store, err := config.NewAutobackupStore(filepath.Join(t.TempDir(), "autobackup.json"))
	if err != nil {
		t.Fatal(err)
	}
	return NewEngine(
		sessions,
		cache.New(time.Minute),
		func(api.Credentials) api.Remote { return remote },
		store,
		logging.NewLogger(io.Discard),
		2,
	)
}

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(p), 0700); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0600); err != nil {
			t.Fatal(err)
		}
	}
}

func TestBackupTransfersAllFiles(t *testing.T) {
	remote := newFakeStore()
	engine := testEngine(t, remote)
	src := t.TempDir()
	writeFiles(t, src, map[string]string{
		"a.txt":        "alpha",
		"sub/b.txt":    "beta",
		"sub/deep/c.x": "gamma",
	})

	job, err := engine.Backup(context.Background(), "chat1", src, "/backup", false, nil)
	if err != nil {
		t.Fatalf("Backup: %v", err)
	}
	if job.Status != JobComplete {
		t.Errorf("status = %s", job.Status)
	}
	if c := job.Count(); c.Transferred != 3 || c.Failed != 0 || c.Skipped != 0 {
		t.Errorf("counts = %+v", c)
	}
	if got := string(remote.files["/backup/sub/b.txt"]); got != "beta" {
		t.Errorf("remote content = %q", got)
	}
	if len(remote.mkdirs) == 0 || remote.mkdirs[0] != "/backup" {
		t.Errorf("destination was not created: %v", remote.mkdirs)
	}
}

func TestBackupSkipsExistingUnlessForced(t *testing.T) {
	remote := newFakeStore()
	remote.files["/backup/a.txt"] = []byte("old")
	engine := testEngine(t, remote)
	src := t.TempDir()
	writeFiles(t, src, map[string]string{"a.txt": "new", "b.txt": "fresh"})

	job, err := engine.Backup(context.Background(), "chat1", src, "/backup", false, nil)
	if err != nil {
		t.Fatalf("Backup: %v", err)
	}
	if c := job.Count(); c.Skipped != 1 || c.Transferred != 1 {
		t.Errorf("counts = %+v", c)
	}
	if got := string(remote.files["/backup/a.txt"]); got != "old" {
		t.Errorf("skipped file was overwritten: %q", got)
	}

	// Forced run overwrites.
	job, err = engine.Backup(context.Background(), "chat1", src, "/backup", true, nil)
	if err != nil {
		t.Fatalf("forced Backup: %v", err)
	}
	if c := job.Count(); c.Transferred != 2 || c.Skipped != 0 {
		t.Errorf("forced counts = %+v", c)
	}
	if got := string(remote.files["/backup/a.txt"]); got != "new" {
		t.Errorf("forced run kept %q", got)
	}
}

func TestBackupPartialFailure(t *testing.T) {
	remote := newFakeStore()
	remote.failUpload["/backup/bad.txt"] = errors.New("disk full")
	engine := testEngine(t, remote)
	src := t.TempDir()
	writeFiles(t, src, map[string]string{
		"bad.txt":  "x",
		"good.txt": "y",
		"more.txt": "z",
	})

	job, err := engine.Backup(context.Background(), "chat1", src, "/backup", false, nil)
	if !errors.Is(err, ErrPartialFailure) {
		t.Fatalf("err = %v, want ErrPartialFailure", err)
	}
	if job.Status != JobPartial {
		t.Errorf("status = %s", job.Status)
	}
	c := job.Count()
	if c.Failed != 1 || c.Transferred != 2 {
		t.Errorf("counts = %+v", c)
	}
	for _, it := range job.Items {
		if it.Name == "bad.txt" && it.Error == "" {
			t.Error("failed item carries no error text")
		}
	}
}

func TestRestoreSkipsAndWrites(t *testing.T) {
	remote := newFakeStore()
	remote.files["/backup/keep.txt"] = []byte("remote")
	remote.files["/backup/new.txt"] = []byte("payload")
	engine := testEngine(t, remote)

	dest := t.TempDir()
	writeFiles(t, dest, map[string]string{"keep.txt": "local"})

	job, err := engine.Restore(context.Background(), "chat1", "/backup", dest, false, nil)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if c := job.Count(); c.Skipped != 1 || c.Transferred != 1 {
		t.Errorf("counts = %+v", c)
	}

	data, err := os.ReadFile(filepath.Join(dest, "new.txt"))
	if err != nil || !bytes.Equal(data, []byte("payload")) {
		t.Errorf("restored content = %q, err = %v", data, err)
	}
	data, _ = os.ReadFile(filepath.Join(dest, "keep.txt"))
	if string(data) != "local" {
		t.Errorf("existing local file was overwritten: %q", data)
	}
}

func TestBackupSkipsNestedExisting(t *testing.T) {
	remote := newFakeStore()
	remote.files["/backup/sub/b.txt"] = []byte("old")
	engine := testEngine(t, remote)
	src := t.TempDir()
	writeFiles(t, src, map[string]string{"a.txt": "new", "sub/b.txt": "changed"})

	job, err := engine.Backup(context.Background(), "chat1", src, "/backup", false, nil)
	if err != nil {
		t.Fatalf("Backup: %v", err)
	}
	if c := job.Count(); c.Skipped != 1 || c.Transferred != 1 {
		t.Errorf("counts = %+v", c)
	}
	if got := string(remote.files["/backup/sub/b.txt"]); got != "old" {
		t.Errorf("nested existing file was re-uploaded: %q", got)
	}
}

func TestRestoreRecreatesSubtree(t *testing.T) {
	remote := newFakeStore()
	remote.files["/src/a.txt"] = []byte("alpha")
	remote.files["/src/sub/b.txt"] = []byte("beta")
	remote.files["/src/sub/deep/c.txt"] = []byte("gamma")
	engine := testEngine(t, remote)
	dest := t.TempDir()

	job, err := engine.Restore(context.Background(), "chat1", "/src", dest, false, nil)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if c := job.Count(); c.Transferred != 3 {
		t.Errorf("counts = %+v", c)
	}
	for rel, want := range map[string]string{
		"a.txt":                               "alpha",
		filepath.Join("sub", "b.txt"):         "beta",
		filepath.Join("sub", "deep", "c.txt"): "gamma",
	} {
		data, err := os.ReadFile(filepath.Join(dest, rel))
		if err != nil {
			t.Errorf("reading %s: %v", rel, err)
			continue
		}
		if string(data) != want {
			t.Errorf("%s = %q, want %q", rel, data, want)
		}
	}
}

func TestSecondJobRejectedWhileRunning(t *testing.T) {
	remote := newFakeStore()
	remote.uploadGate = make(chan struct{}, 1)
	remote.blockUploads = make(chan struct{})
	engine := testEngine(t, remote)
	src := t.TempDir()
	writeFiles(t, src, map[string]string{"a.txt": "x"})

	done := make(chan error, 1)
	go func() {
		_, err := engine.Backup(context.Background(), "chat1", src, "/backup", false, nil)
		done <- err
	}()
	<-remote.uploadGate // first job is mid-transfer

	if _, err := engine.Backup(context.Background(), "chat1", src, "/other", false, nil); !errors.Is(err, ErrJobRunning) {
		t.Errorf("second job err = %v, want ErrJobRunning", err)
	}

	close(remote.blockUploads)
	if err := <-done; err != nil {
		t.Fatalf("first job: %v", err)
	}

	// The slot frees once the job settles.
	remote.mu.Lock()
	remote.uploadGate = nil
	remote.blockUploads = nil
	remote.mu.Unlock()
	if _, err := engine.Backup(context.Background(), "chat1", src, "/third", false, nil); err != nil {
		t.Errorf("job after release: %v", err)
	}
}

func TestCancelledContextStopsJob(t *testing.T) {
	remote := newFakeStore()
	engine := testEngine(t, remote)
	src := t.TempDir()
	writeFiles(t, src, map[string]string{"a.txt": "x", "b.txt": "y"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	job, err := engine.Backup(ctx, "chat1", src, "/backup", false, nil)
	if err != nil && !errors.Is(err, context.Canceled) {
		t.Fatalf("Backup: %v", err)
	}
	if job.Status != JobCancelled {
		t.Errorf("status = %s, want cancelled", job.Status)
	}
	if c := job.Count(); c.Transferred != 0 {
		t.Errorf("cancelled job transferred %d items", c.Transferred)
	}
}

func TestProgressCallbackSeesEveryItem(t *testing.T) {
	remote := newFakeStore()
	engine := testEngine(t, remote)
	src := t.TempDir()
	writeFiles(t, src, map[string]string{"a.txt": "x", "b.txt": "y", "c.txt": "z"})

	var mu sync.Mutex
	var seen int
	progress := func(item Item, done, total int) {
		mu.Lock()
		seen++
		mu.Unlock()
		if total != 3 {
			t.Errorf("total = %d", total)
		}
	}

	if _, err := engine.Backup(context.Background(), "chat1", src, "/backup", false, progress); err != nil {
		t.Fatal(err)
	}
	if seen != 3 {
		t.Errorf("progress called %d times, want 3", seen)
	}
}

func TestRunAutobackup(t *testing.T) {
	remote := newFakeStore()
	engine := testEngine(t, remote)
	src := t.TempDir()
	writeFiles(t, src, map[string]string{"a.txt": "x"})

	// No rule: nothing fires.
	_, fired, err := engine.RunAutobackup(context.Background(), "chat1", "scope1", src, nil)
	if err != nil || fired {
		t.Fatalf("without rule: fired=%v err=%v", fired, err)
	}

	if err := engine.autobackup.Set(config.AutobackupRule{Scope: "scope1", DestPath: "/auto", Enabled: true}); err != nil {
		t.Fatal(err)
	}
	job, fired, err := engine.RunAutobackup(context.Background(), "chat1", "scope1", src, nil)
	if err != nil || !fired {
		t.Fatalf("with rule: fired=%v err=%v", fired, err)
	}
	if job.Status != JobComplete {
		t.Errorf("status = %s", job.Status)
	}
	if _, ok := remote.files["/auto/a.txt"]; !ok {
		t.Error("autobackup did not upload to the rule destination")
	}
}

func TestJobsAreTracked(t *testing.T) {
	remote := newFakeStore()
	engine := testEngine(t, remote)
	src := t.TempDir()
	writeFiles(t, src, map[string]string{"a.txt": "x"})

	job, err := engine.Backup(context.Background(), "chat1", src, "/backup", false, nil)
	if err != nil {
		t.Fatal(err)
	}

	got, ok := engine.Job(job.ID)
	if !ok || got.Status != JobComplete {
		t.Errorf("Job(%s) = %+v, ok=%v", job.ID, got, ok)
	}
	if len(engine.Jobs()) != 1 {
		t.Errorf("Jobs() = %d entries", len(engine.Jobs()))
	}
	if engine.Cancel("no-such-job") {
		t.Error("Cancel of unknown job = true")
	}
}
