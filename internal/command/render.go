package command

import (
	"fmt"
	"strings"

	"github.com/olbridge/olbridge/internal/browse"
	"github.com/olbridge/olbridge/internal/models"
	"github.com/olbridge/olbridge/internal/transfer"
)

// FormatSize renders a byte count for display.
func FormatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}

// FormatPage renders one listing page with 1-based, page-scoped indices.
func FormatPage(p *browse.Page) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s - page %d/%d (%d entries)\n", p.Source, p.Number, p.Pages, p.Total)
	if len(p.Entries) == 0 {
		b.WriteString("  (empty)\n")
		return b.String()
	}
	for i, en := range p.Entries {
		if en.IsDir {
			fmt.Fprintf(&b, "%3d. %s/\n", i+1, en.Name)
		} else {
			fmt.Fprintf(&b, "%3d. %s (%s)\n", i+1, en.Name, FormatSize(en.Size))
		}
	}
	return b.String()
}

// FormatDetail renders file or directory metadata.
func FormatDetail(d *models.EntryDetail) string {
	var b strings.Builder
	kind := "file"
	if d.IsDir {
		kind = "directory"
	}
	fmt.Fprintf(&b, "%s (%s)\n", d.Name, kind)
	if !d.IsDir {
		fmt.Fprintf(&b, "size: %s\n", FormatSize(d.Size))
	}
	if !d.Modified.IsZero() {
		fmt.Fprintf(&b, "modified: %s\n", d.Modified.Format("2006-01-02 15:04:05"))
	}
	if d.Provider != "" {
		fmt.Fprintf(&b, "provider: %s\n", d.Provider)
	}
	return b.String()
}

// FormatJob renders a finished transfer job summary.
func FormatJob(s transfer.Summary) string {
	c := s.Count()
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s: %d transferred, %d skipped, %d failed\n",
		s.Kind, s.Status, c.Transferred, c.Skipped, c.Failed)
	for _, it := range s.Items {
		if it.Status == transfer.ItemFailed {
			fmt.Fprintf(&b, "  failed: %s (%s)\n", it.Name, it.Error)
		}
	}
	return b.String()
}

// FormatArchive renders an archive's contents listing.
func FormatArchive(path string, meta *models.ArchiveMeta) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s - %d entries", path, len(meta.Content))
	if meta.Encrypted {
		b.WriteString(" (encrypted)")
	}
	b.WriteString("\n")
	for _, en := range meta.Content {
		if en.IsDir {
			fmt.Fprintf(&b, "  %s/\n", en.Name)
		} else {
			fmt.Fprintf(&b, "  %s (%s)\n", en.Name, FormatSize(en.Size))
		}
	}
	if meta.Comment != "" {
		fmt.Fprintf(&b, "comment: %s\n", meta.Comment)
	}
	return b.String()
}

const helpText = `commands:
  ls [index|path]      list a directory or open an entry by number
  next / prev          page through the current listing
  quit                 go back to the previous directory
  search <keyword>     search below the current directory
  info <index|path>    show entry details
  download <index|path> get a direct download link
  upload [dir]         arm upload mode; next sent file lands in dir
  upload cancel        disarm upload mode
  backup <remote dir>  back up local data to a remote directory
  restore <remote dir> restore files from a remote directory
  autobackup enable <remote dir> | autobackup disable
  rm <index|path>      delete an entry
  mkdir <path>         create a directory
  archive <index|path> list the contents of an archive file`
