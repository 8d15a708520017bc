package browse

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/olbridge/olbridge/internal/api"
	"github.com/olbridge/olbridge/internal/cache"
	"github.com/olbridge/olbridge/internal/logging"
	"github.com/olbridge/olbridge/internal/models"
	"github.com/olbridge/olbridge/internal/pathutil"
	"github.com/olbridge/olbridge/internal/session"
)

// searchTTL bounds how long search results stay addressable from cache.
// Searches are far more volatile than directory listings, so they get a
// short fixed window instead of the configured listing TTL.
const searchTTL = 30 * time.Second

// Options configures a Controller from the browse section of the config.
type Options struct {
	PageSize     int
	CacheEnabled bool
	CacheTTL     time.Duration
}

// Controller executes navigation operations against a session. Session
// state is only mutated after the remote call has succeeded, so a failed
// operation leaves the session exactly where it was.
type Controller struct {
	sessions *session.Store
	cache    *cache.ListingCache
	dial     api.Dialer
	log      *logging.Logger
	opts     Options
}

// NewController wires a navigation controller.
func NewController(sessions *session.Store, listings *cache.ListingCache, dial api.Dialer, log *logging.Logger, opts Options) *Controller {
	return &Controller{
		sessions: sessions,
		cache:    listings,
		dial:     dial,
		log:      log,
		opts:     opts,
	}
}

// OpenResult is the outcome of addressing an entry by index: either a
// directory page or the file entry that was selected.
type OpenResult struct {
	Page *Page
	File *models.Entry
}

// fetchDir returns the sorted listing of path, through the cache when it is
// enabled. Entries are sorted before caching so every reader sees display
// order.
func (c *Controller) fetchDir(ctx context.Context, creds api.Credentials, path string) ([]models.Entry, bool, error) {
	remote := c.dial(creds)
	fetch := func(ctx context.Context) ([]models.Entry, error) {
		entries, err := remote.List(ctx, path)
		if err != nil {
			return nil, err
		}
		SortEntries(entries)
		return entries, nil
	}
	if !c.opts.CacheEnabled {
		entries, err := fetch(ctx)
		return entries, false, err
	}
	if c.opts.CacheTTL > 0 {
		return c.cache.GetOrFetchTTL(ctx, creds.Identity(), path, c.opts.CacheTTL, fetch)
	}
	return c.cache.GetOrFetch(ctx, creds.Identity(), path, fetch)
}

func requireConfigured(s *session.Session) error {
	if !s.Creds.Configured() {
		return api.ErrNotConfigured
	}
	return nil
}

// ListCurrent lists the session's current directory, replacing the view.
func (c *Controller) ListCurrent(ctx context.Context, identity string) (*Page, error) {
	var page *Page
	err := c.sessions.Update(identity, func(s *session.Session) error {
		if err := requireConfigured(s); err != nil {
			return err
		}
		var err error
		page, err = c.listInto(ctx, s, s.CurrentPath)
		return err
	})
	return page, err
}

// ListPath lists an explicit directory path. Explicit jumps replace the
// current location without touching the navigation stack; only index-based
// descents are backtrackable. A path that denotes a file cannot be listed;
// its entry is returned instead, like Open does for file indices, and the
// session stays where it was.
func (c *Controller) ListPath(ctx context.Context, identity, path string) (*OpenResult, error) {
	var result OpenResult
	err := c.sessions.Update(identity, func(s *session.Session) error {
		if err := requireConfigured(s); err != nil {
			return err
		}
		target := pathutil.Normalize(c.absolute(s, path))
		page, listErr := c.listInto(ctx, s, target)
		if listErr == nil {
			result.Page = page
			return nil
		}
		if errors.Is(listErr, api.ErrConnection) || errors.Is(listErr, api.ErrAuth) {
			return listErr
		}
		detail, err := c.dial(s.Creds).Info(ctx, target)
		if err != nil || detail.IsDir {
			return listErr
		}
		e := detail.Entry
		result.File = &e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// listInto fetches path and, on success, makes it the session's current
// location with a fresh view.
func (c *Controller) listInto(ctx context.Context, s *session.Session, path string) (*Page, error) {
	path = pathutil.Normalize(path)
	entries, hit, err := c.fetchDir(ctx, s.Creds, path)
	if err != nil {
		return nil, err
	}
	c.log.Debugf("listed %s (%d entries, cache hit=%v)", path, len(entries), hit)

	s.CurrentPath = path
	s.Mode = session.ModeBrowsing
	s.SetView(&session.View{
		Source:   path,
		Entries:  entries,
		Page:     0,
		PageSize: c.opts.PageSize,
	})
	return RenderPage(s.View()), nil
}

// Open addresses entry index on the current page. Directories are entered
// (the previous location is pushed for Back); files are returned as-is for
// the caller to describe or link.
func (c *Controller) Open(ctx context.Context, identity string, index int) (*OpenResult, error) {
	var result OpenResult
	err := c.sessions.Update(identity, func(s *session.Session) error {
		if err := requireConfigured(s); err != nil {
			return err
		}
		entry, err := ResolveIndex(s.View(), index)
		if err != nil {
			return err
		}
		if !entry.IsDir {
			e := entry
			result.File = &e
			return nil
		}

		from := s.CurrentPath
		page, err := c.listInto(ctx, s, entry.Path)
		if err != nil {
			return err
		}
		s.Push(from)
		result.Page = page
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Back pops the navigation stack and re-lists the parent location. The pop
// only commits when the listing succeeds.
func (c *Controller) Back(ctx context.Context, identity string) (*Page, error) {
	var page *Page
	err := c.sessions.Update(identity, func(s *session.Session) error {
		if err := requireConfigured(s); err != nil {
			return err
		}
		prev, err := s.Pop()
		if err != nil {
			return err
		}
		page, err = c.listInto(ctx, s, prev)
		if err != nil {
			s.Push(prev)
			return err
		}
		return nil
	})
	return page, err
}

// NextPage advances the view one page, sticking to the last page at the
// end. No remote call is made; the view already holds the full listing.
func (c *Controller) NextPage(identity string) (*Page, error) {
	return c.turnPage(identity, +1)
}

// PrevPage moves the view one page back, sticking to the first page.
func (c *Controller) PrevPage(identity string) (*Page, error) {
	return c.turnPage(identity, -1)
}

func (c *Controller) turnPage(identity string, delta int) (*Page, error) {
	var page *Page
	err := c.sessions.Update(identity, func(s *session.Session) error {
		v := s.View()
		if v == nil {
			return ErrNoListing
		}
		v.Page = ClampPage(v.Page+delta, len(v.Entries), v.PageSize)
		page = RenderPage(v)
		return nil
	})
	return page, err
}

// Search queries the remote index below the current directory and renders
// the hits as an addressable view. Results are cached briefly so paging
// through them does not re-query.
func (c *Controller) Search(ctx context.Context, identity, keyword string) (*Page, error) {
	var page *Page
	err := c.sessions.Update(identity, func(s *session.Session) error {
		if err := requireConfigured(s); err != nil {
			return err
		}
		parent := s.CurrentPath
		remote := c.dial(s.Creds)
		fetch := func(ctx context.Context) ([]models.Entry, error) {
			entries, err := remote.Search(ctx, keyword, parent)
			if err != nil {
				return nil, err
			}
			SortEntries(entries)
			return entries, nil
		}

		var entries []models.Entry
		var err error
		if c.opts.CacheEnabled {
			// Search results live under a pseudo-path so they never
			// collide with directory listings.
			key := "search:" + parent + ":" + strings.ToLower(keyword)
			entries, _, err = c.cache.GetOrFetchTTL(ctx, s.Creds.Identity(), key, searchTTL, fetch)
		} else {
			entries, err = fetch(ctx)
		}
		if err != nil {
			return err
		}

		s.Mode = session.ModeSearching
		s.SetView(&session.View{
			Source:   "search:" + keyword,
			Entries:  entries,
			Page:     0,
			PageSize: c.opts.PageSize,
		})
		page = RenderPage(s.View())
		return nil
	})
	return page, err
}

// Info fetches fresh metadata for a target, bypassing the cache. The target
// may be a display index, an absolute path, or a name relative to the
// current directory.
func (c *Controller) Info(ctx context.Context, identity, target string) (*models.EntryDetail, error) {
	var detail *models.EntryDetail
	err := c.sessions.Update(identity, func(s *session.Session) error {
		if err := requireConfigured(s); err != nil {
			return err
		}
		path, err := c.resolveTarget(s, target)
		if err != nil {
			return err
		}
		detail, err = c.dial(s.Creds).Info(ctx, path)
		return err
	})
	return detail, err
}

// Link builds a direct download URL for a target file.
func (c *Controller) Link(ctx context.Context, identity, target string) (string, error) {
	var link string
	err := c.sessions.Update(identity, func(s *session.Session) error {
		if err := requireConfigured(s); err != nil {
			return err
		}
		path, err := c.resolveTarget(s, target)
		if err != nil {
			return err
		}
		link, err = c.dial(s.Creds).Link(ctx, path)
		return err
	})
	return link, err
}

// Remove deletes a target entry and invalidates every cached listing the
// deletion could affect.
func (c *Controller) Remove(ctx context.Context, identity, target string) (string, error) {
	var removed string
	err := c.sessions.Update(identity, func(s *session.Session) error {
		if err := requireConfigured(s); err != nil {
			return err
		}
		path, err := c.resolveTarget(s, target)
		if err != nil {
			return err
		}
		if path == "/" {
			return errors.New("refusing to remove the root directory")
		}
		parent := pathutil.Parent(path)
		name := path[strings.LastIndex(path, "/")+1:]
		if err := c.dial(s.Creds).Remove(ctx, parent, []string{name}); err != nil {
			return err
		}
		c.cache.InvalidateTree(s.Creds.Identity(), parent)
		removed = path
		return nil
	})
	return removed, err
}

// Mkdir creates a directory under the current location (or at an absolute
// path) and invalidates the parent's cached listing.
func (c *Controller) Mkdir(ctx context.Context, identity, target string) (string, error) {
	var created string
	err := c.sessions.Update(identity, func(s *session.Session) error {
		if err := requireConfigured(s); err != nil {
			return err
		}
		path := c.absolute(s, target)
		if err := c.dial(s.Creds).Mkdir(ctx, path); err != nil {
			return err
		}
		c.cache.InvalidateTree(s.Creds.Identity(), pathutil.Parent(path))
		created = path
		return nil
	})
	return created, err
}

// Archive lists the contents of an archive file without extracting it.
// Archive entries are display-only; they never become an addressable view.
func (c *Controller) Archive(ctx context.Context, identity, target string) (string, *models.ArchiveMeta, error) {
	var meta *models.ArchiveMeta
	var path string
	err := c.sessions.Update(identity, func(s *session.Session) error {
		if err := requireConfigured(s); err != nil {
			return err
		}
		var err error
		path, err = c.resolveTarget(s, target)
		if err != nil {
			return err
		}
		meta, err = c.dial(s.Creds).ArchiveList(ctx, path, "/")
		return err
	})
	return path, meta, err
}

// resolveTarget maps a user-facing reference to a remote path: all-digit
// references address the current page, leading-slash references are
// absolute, anything else is relative to the current directory.
func (c *Controller) resolveTarget(s *session.Session, target string) (string, error) {
	if target == "" {
		return s.CurrentPath, nil
	}
	if isDigits(target) {
		n := 0
		for _, r := range target {
			n = n*10 + int(r-'0')
		}
		entry, err := ResolveIndex(s.View(), n)
		if err != nil {
			return "", err
		}
		return entry.Path, nil
	}
	return c.absolute(s, target), nil
}

func (c *Controller) absolute(s *session.Session, path string) string {
	if strings.HasPrefix(path, "/") {
		return pathutil.Normalize(path)
	}
	return pathutil.Join(s.CurrentPath, path)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
