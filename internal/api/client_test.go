package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func writeEnvelope(w http.ResponseWriter, code int, message string, data interface{}) {
	raw, _ := json.Marshal(data)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"code":    code,
		"message": message,
		"data":    json.RawMessage(raw),
	})
}

// newTestServer serves a login endpoint plus the given handlers.
func newTestServer(t *testing.T, handlers map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Password != "secret" {
			writeEnvelope(w, 400, "password is incorrect", nil)
			return
		}
		writeEnvelope(w, 200, "success", map[string]string{"token": "tok-123"})
	})
	for path, h := range handlers {
		mux.HandleFunc(path, h)
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestListLogsInAndSetsPaths(t *testing.T) {
	srv := newTestServer(t, map[string]http.HandlerFunc{
		"/api/fs/list": func(w http.ResponseWriter, r *http.Request) {
			if got := r.Header.Get("Authorization"); got != "tok-123" {
				writeEnvelope(w, 401, "invalid token", nil)
				return
			}
			writeEnvelope(w, 200, "success", map[string]interface{}{
				"content": []map[string]interface{}{
					{"name": "books", "is_dir": true},
					{"name": "song.mp3", "size": 2048, "is_dir": false},
				},
				"total": 2,
			})
		},
	})

	c := NewClient(Credentials{BaseURL: srv.URL, Username: "alice", Password: "secret"}, nil)
	entries, err := c.List(context.Background(), "/media")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries", len(entries))
	}
	if entries[0].Path != "/media/books" || entries[1].Path != "/media/song.mp3" {
		t.Errorf("paths = %q, %q", entries[0].Path, entries[1].Path)
	}
}

func TestBadPasswordIsAuthError(t *testing.T) {
	srv := newTestServer(t, nil)
	c := NewClient(Credentials{BaseURL: srv.URL, Username: "alice", Password: "wrong"}, nil)
	_, err := c.List(context.Background(), "/")
	if !IsAuthError(err) {
		t.Errorf("err = %v, want auth error", err)
	}
}

func TestEnvelopeAuthCodeIsAuthError(t *testing.T) {
	srv := newTestServer(t, map[string]http.HandlerFunc{
		"/api/fs/list": func(w http.ResponseWriter, r *http.Request) {
			writeEnvelope(w, 401, "token is expired", nil)
		},
	})
	c := NewClient(Credentials{BaseURL: srv.URL, Token: "stale"}, nil)
	_, err := c.List(context.Background(), "/")
	if !errors.Is(err, ErrAuth) {
		t.Errorf("err = %v, want ErrAuth", err)
	}
}

func TestMissingPathIsNotFound(t *testing.T) {
	srv := newTestServer(t, map[string]http.HandlerFunc{
		"/api/fs/list": func(w http.ResponseWriter, r *http.Request) {
			writeEnvelope(w, 500, "object not found", nil)
		},
	})
	c := NewClient(Credentials{BaseURL: srv.URL, Token: "tok"}, nil)
	_, err := c.List(context.Background(), "/nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestLinkPrefersPublicURLAndSigns(t *testing.T) {
	srv := newTestServer(t, map[string]http.HandlerFunc{
		"/api/fs/get": func(w http.ResponseWriter, r *http.Request) {
			writeEnvelope(w, 200, "success", map[string]interface{}{
				"name":   "file with space.txt",
				"size":   10,
				"is_dir": false,
				"sign":   "SIG",
			})
		},
	})
	c := NewClient(Credentials{
		BaseURL:   srv.URL,
		PublicURL: "https://files.example.com/",
		Token:     "tok",
	}, nil)

	link, err := c.Link(context.Background(), "/media/file with space.txt")
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	want := "https://files.example.com/d/media/file%20with%20space.txt?sign=SIG"
	if link != want {
		t.Errorf("link = %q, want %q", link, want)
	}
}

func TestLinkAppliesFixedBaseDirectory(t *testing.T) {
	srv := newTestServer(t, map[string]http.HandlerFunc{
		"/api/fs/get": func(w http.ResponseWriter, r *http.Request) {
			writeEnvelope(w, 200, "success", map[string]interface{}{
				"name": "a.txt", "size": 1, "is_dir": false, "sign": "S",
			})
		},
	})
	c := NewClient(Credentials{
		BaseURL:            srv.URL,
		FixedBaseDirectory: "/mnt/share",
		Token:              "tok",
	}, nil)

	link, err := c.Link(context.Background(), "/docs/a.txt")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(link, "/d/mnt/share/docs/a.txt?sign=S") {
		t.Errorf("link = %q", link)
	}
}

func TestLinkRejectsDirectories(t *testing.T) {
	srv := newTestServer(t, map[string]http.HandlerFunc{
		"/api/fs/get": func(w http.ResponseWriter, r *http.Request) {
			writeEnvelope(w, 200, "success", map[string]interface{}{
				"name": "books", "is_dir": true,
			})
		},
	})
	c := NewClient(Credentials{BaseURL: srv.URL, Token: "tok"}, nil)
	if _, err := c.Link(context.Background(), "/books"); err == nil {
		t.Error("directory produced a download link")
	}
}

func TestMkdirToleratesExisting(t *testing.T) {
	srv := newTestServer(t, map[string]http.HandlerFunc{
		"/api/fs/mkdir": func(w http.ResponseWriter, r *http.Request) {
			writeEnvelope(w, 405, "folder already exists", nil)
		},
	})
	c := NewClient(Credentials{BaseURL: srv.URL, Token: "tok"}, nil)
	if err := c.Mkdir(context.Background(), "/existing"); err != nil {
		t.Errorf("Mkdir on existing dir: %v", err)
	}
}

func TestUploadSendsEscapedFilePath(t *testing.T) {
	var gotPath, gotAuth string
	srv := newTestServer(t, map[string]http.HandlerFunc{
		"/api/fs/put": func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.Header.Get("File-Path")
			gotAuth = r.Header.Get("Authorization")
			writeEnvelope(w, 200, "success", nil)
		},
	})
	c := NewClient(Credentials{BaseURL: srv.URL, Token: "tok"}, nil)

	body := strings.NewReader("hello")
	if err := c.Upload(context.Background(), "/inbox/my file.txt", body, 5); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if gotPath != "/inbox/my%20file.txt" {
		t.Errorf("File-Path = %q", gotPath)
	}
	if gotAuth != "tok" {
		t.Errorf("Authorization = %q", gotAuth)
	}
}

func TestSearchMapsHitsToEntries(t *testing.T) {
	srv := newTestServer(t, map[string]http.HandlerFunc{
		"/api/fs/search": func(w http.ResponseWriter, r *http.Request) {
			writeEnvelope(w, 200, "success", map[string]interface{}{
				"content": []map[string]interface{}{
					{"parent": "/media/books", "name": "go.pdf", "is_dir": false, "size": 99},
				},
			})
		},
	})
	c := NewClient(Credentials{BaseURL: srv.URL, Token: "tok"}, nil)

	hits, err := c.Search(context.Background(), "go", "/media")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].Path != "/media/books/go.pdf" {
		t.Errorf("hits = %+v", hits)
	}
}

func TestCachingDialerReusesClientAndToken(t *testing.T) {
	var logins int
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		logins++
		writeEnvelope(w, 200, "success", map[string]string{"token": "tok-123"})
	})
	mux.HandleFunc("/api/fs/list", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, 200, "success", map[string]interface{}{"content": []interface{}{}, "total": 0})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	var dials int
	dial := CachingDialer(func(creds Credentials) Remote {
		dials++
		return NewClient(creds, nil)
	})
	creds := Credentials{BaseURL: srv.URL, Username: "alice", Password: "secret"}

	for i := 0; i < 3; i++ {
		if _, err := dial(creds).List(context.Background(), "/"); err != nil {
			t.Fatalf("List %d: %v", i, err)
		}
	}
	if dials != 1 {
		t.Errorf("dial ran %d times for one credential set, want 1", dials)
	}
	if logins != 1 {
		t.Errorf("%d logins for three operations, want 1", logins)
	}

	other := creds
	other.Username = "bob"
	if dial(other) == dial(creds) {
		t.Error("different credentials share a client")
	}
}

func TestCredentialsIdentity(t *testing.T) {
	a := Credentials{BaseURL: "http://srv", Username: "alice"}
	b := Credentials{BaseURL: "http://srv", Username: "alice", Password: "different"}
	if a.Identity() != b.Identity() {
		t.Error("same server and user produced different identities")
	}
	c := Credentials{BaseURL: "http://srv", Username: "bob"}
	if a.Identity() == c.Identity() {
		t.Error("different users share an identity")
	}
	if (Credentials{}).Configured() {
		t.Error("empty credentials report configured")
	}
}
