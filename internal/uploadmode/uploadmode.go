// Package uploadmode implements the timed receive window: a session arms
// upload mode against a destination directory, and the next incoming file
// within the window is stored there under a collision-free scratch name.
package uploadmode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/olbridge/olbridge/internal/api"
	"github.com/olbridge/olbridge/internal/cache"
	"github.com/olbridge/olbridge/internal/logging"
	"github.com/olbridge/olbridge/internal/pathutil"
	"github.com/olbridge/olbridge/internal/session"
)

// DefaultWindow is the arming duration when none is configured.
const DefaultWindow = 10 * time.Minute

var (
	// ErrNotActive is returned when a file arrives with no armed window.
	ErrNotActive = errors.New("upload mode is not active")

	// ErrSizeLimit is returned when an incoming file exceeds the
	// configured upload bound.
	ErrSizeLimit = errors.New("file exceeds the upload size limit")

	// ErrExtensionNotAllowed is returned when the file's extension is not
	// on the configured allow list.
	ErrExtensionNotAllowed = errors.New("file extension not allowed")
)

// Options configures the controller from the transfer config section.
type Options struct {
	Window   time.Duration
	MaxBytes int64

	// Allowed holds lowercase dot-prefixed extensions; nil allows all.
	Allowed []string
}

type armed struct {
	dest     string
	deadline time.Time
	timer    *time.Timer

	// prev is the session mode to restore when the window closes.
	prev session.Mode
}

// Controller tracks at most one armed window per identity. Arming while a
// window is already open restarts it against the new destination.
type Controller struct {
	mu     sync.Mutex
	active map[string]*armed

	sessions *session.Store
	cache    *cache.ListingCache
	dial     api.Dialer
	log      *logging.Logger
	opts     Options

	now func() time.Time
}

// NewController wires an upload-mode controller.
func NewController(sessions *session.Store, listings *cache.ListingCache, dial api.Dialer, log *logging.Logger, opts Options) *Controller {
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	return &Controller{
		active:   make(map[string]*armed),
		sessions: sessions,
		cache:    listings,
		dial:     dial,
		log:      log,
		opts:     opts,
		now:      time.Now,
	}
}

// Start arms the window for identity against destDir (empty means the
// session's current directory) and returns the destination and deadline.
func (c *Controller) Start(ctx context.Context, identity, destDir string) (string, time.Time, error) {
	var dest string
	var prevMode session.Mode
	err := c.sessions.Update(identity, func(s *session.Session) error {
		if !s.Creds.Configured() {
			return api.ErrNotConfigured
		}
		if destDir == "" {
			dest = s.CurrentPath
		} else {
			dest = pathutil.Normalize(destDir)
		}
		prevMode = s.Mode
		s.Mode = session.ModeUploading
		return nil
	})
	if err != nil {
		return "", time.Time{}, err
	}

	deadline := c.now().Add(c.opts.Window)

	c.mu.Lock()
	if old, ok := c.active[identity]; ok {
		old.timer.Stop()
		// Re-arming while already uploading: keep the original prior mode.
		if prevMode == session.ModeUploading {
			prevMode = old.prev
		}
	}
	a := &armed{dest: dest, deadline: deadline, prev: prevMode}
	a.timer = time.AfterFunc(c.opts.Window, func() { c.expire(identity, a) })
	c.active[identity] = a
	c.mu.Unlock()

	c.log.Infof("upload mode armed for %s -> %s until %s", identity, dest, deadline.Format(time.RFC3339))
	return dest, deadline, nil
}

// Cancel disarms the window. Cancelling an idle identity is a no-op.
func (c *Controller) Cancel(identity string) bool {
	c.mu.Lock()
	a, ok := c.active[identity]
	if ok {
		a.timer.Stop()
		delete(c.active, identity)
	}
	c.mu.Unlock()
	if ok {
		c.leaveUploadMode(identity, a.prev)
		c.log.Infof("upload mode cancelled for %s", identity)
	}
	return ok
}

// Remaining reports the time left on the identity's window.
func (c *Controller) Remaining(identity string) (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.active[identity]
	if !ok {
		return 0, false
	}
	d := a.deadline.Sub(c.now())
	if d < 0 {
		d = 0
	}
	return d, true
}

// expire fires when the window elapses. The pointer comparison guards
// against a stale timer from a window that was since re-armed.
func (c *Controller) expire(identity string, a *armed) {
	c.mu.Lock()
	current, ok := c.active[identity]
	if !ok || current != a {
		c.mu.Unlock()
		return
	}
	delete(c.active, identity)
	c.mu.Unlock()

	c.leaveUploadMode(identity, a.prev)
	c.log.Infof("upload mode expired for %s", identity)
}

// leaveUploadMode restores the mode the session was in before arming.
func (c *Controller) leaveUploadMode(identity string, prev session.Mode) {
	_ = c.sessions.Update(identity, func(s *session.Session) error {
		if s.Mode == session.ModeUploading {
			s.Mode = prev
		}
		return nil
	})
}

// HandleIncoming stores one incoming file in the armed destination. One
// attempted transfer consumes the window whether it succeeds or fails;
// only policy rejections before the attempt leave it armed, so the sender
// can retry with a conforming file.
func (c *Controller) HandleIncoming(ctx context.Context, identity, filename string, size int64, body io.Reader) (string, error) {
	c.mu.Lock()
	a, ok := c.active[identity]
	var dest string
	if ok {
		dest = a.dest
	}
	c.mu.Unlock()
	if !ok {
		return "", ErrNotActive
	}

	if err := c.checkPolicy(filename, size); err != nil {
		return "", err
	}

	snap, err := c.sessions.Snapshot(identity)
	if err != nil {
		return "", err
	}
	if !snap.Creds.Configured() {
		return "", api.ErrNotConfigured
	}

	scratch := pathutil.ScratchName(identity, c.now().Unix(), filename)
	target := pathutil.Join(dest, scratch)

	if err := c.dial(snap.Creds).Upload(ctx, target, body, size); err != nil {
		c.consume(identity, a)
		return "", fmt.Errorf("storing %s: %w", scratch, err)
	}

	c.cache.InvalidateTree(snap.Creds.Identity(), dest)
	c.consume(identity, a)
	c.log.Infof("stored incoming file as %s", target)
	return target, nil
}

// consume disarms after a transfer attempt, tolerating a race with expiry.
func (c *Controller) consume(identity string, a *armed) {
	c.mu.Lock()
	if current, ok := c.active[identity]; ok && current == a {
		a.timer.Stop()
		delete(c.active, identity)
	}
	c.mu.Unlock()
	c.leaveUploadMode(identity, a.prev)
}

func (c *Controller) checkPolicy(filename string, size int64) error {
	if c.opts.MaxBytes > 0 && size > c.opts.MaxBytes {
		return fmt.Errorf("%w: %d bytes", ErrSizeLimit, size)
	}
	if c.opts.Allowed == nil {
		return nil
	}
	ext := strings.ToLower(path.Ext(filename))
	for _, allowed := range c.opts.Allowed {
		if ext == allowed {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrExtensionNotAllowed, ext)
}
