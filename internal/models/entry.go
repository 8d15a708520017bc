// Package models defines the wire and domain types shared across olbridge.
package models

import "time"

// Entry represents one file-or-directory record in a directory listing.
// Immutable once fetched from the remote service.
type Entry struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	IsDir    bool      `json:"is_dir"`
	Modified time.Time `json:"modified"`
	Sign     string    `json:"sign,omitempty"`

	// Path is the raw remote path of the entry. For listing results it is
	// derived from the listed directory; search results carry their own
	// parent directory.
	Path string `json:"path,omitempty"`
}

// EntryDetail is the full metadata record returned by the info endpoint.
type EntryDetail struct {
	Entry
	Provider string `json:"provider,omitempty"`
	RawURL   string `json:"raw_url,omitempty"`
}

// ListResponse is the payload of a directory listing call.
type ListResponse struct {
	Content  []Entry `json:"content"`
	Total    int     `json:"total"`
	Readme   string  `json:"readme,omitempty"`
	Write    bool    `json:"write"`
	Provider string  `json:"provider,omitempty"`
}

// SearchResult is one hit returned by the search endpoint. The remote
// service reports the parent directory separately from the name.
type SearchResult struct {
	Parent string `json:"parent"`
	Name   string `json:"name"`
	IsDir  bool   `json:"is_dir"`
	Size   int64  `json:"size"`
	Type   int    `json:"type"`
}

// ArchiveMeta describes the contents listing of an archive file.
type ArchiveMeta struct {
	Content   []Entry `json:"content"`
	Comment   string  `json:"comment,omitempty"`
	Encrypted bool    `json:"encrypted"`
}
