package api

import (
	"context"
	"io"
	"sync"

	"github.com/olbridge/olbridge/internal/models"
)

// Remote is the capability surface the navigation and transfer layers
// consume. *Client implements it; tests substitute fakes.
type Remote interface {
	// List returns all entries of a directory.
	List(ctx context.Context, path string) ([]models.Entry, error)

	// Info returns the metadata of a single file or directory.
	Info(ctx context.Context, path string) (*models.EntryDetail, error)

	// Search queries the remote index below a parent directory.
	Search(ctx context.Context, keyword, parent string) ([]models.Entry, error)

	// Link builds a direct download URL for a file.
	Link(ctx context.Context, path string) (string, error)

	// Upload streams a file body to a full remote path.
	Upload(ctx context.Context, targetPath string, body io.Reader, size int64) error

	// Download fetches a file's bytes, writing them to w.
	Download(ctx context.Context, path string, w io.Writer) (int64, error)

	// Remove deletes named entries from a directory.
	Remove(ctx context.Context, dir string, names []string) error

	// Mkdir creates a directory, tolerating pre-existing ones.
	Mkdir(ctx context.Context, path string) error

	// ArchiveList returns the contents listing of an archive file.
	ArchiveList(ctx context.Context, path, innerPath string) (*models.ArchiveMeta, error)
}

var _ Remote = (*Client)(nil)

// Dialer produces a Remote for a credential set. Sessions carry their own
// credentials, so controllers dial per session rather than holding one
// global client.
type Dialer func(Credentials) Remote

// CachingDialer wraps dial so repeated dials with the same credentials
// reuse one Remote. Clients hold the token obtained at login, so reuse
// avoids a fresh login round trip on every operation. Changed credentials
// are a different key and dial a fresh client.
func CachingDialer(dial Dialer) Dialer {
	var mu sync.Mutex
	clients := make(map[Credentials]Remote)
	return func(creds Credentials) Remote {
		mu.Lock()
		defer mu.Unlock()
		if r, ok := clients[creds]; ok {
			return r
		}
		r := dial(creds)
		clients[creds] = r
		return r
	}
}
