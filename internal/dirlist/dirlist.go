// Package dirlist renders the directory-listing response:
// trailing-slash redirection, index.html substitution, and the sorted,
// HTML-escaped entry listing itself. Rendering goes through
// html/template so entry names are escaped per context.
package dirlist

import (
	"html/template"
	"io"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lucentsrv/lucent/hdr"
)

// IndexFile is the file that, if present in a directory, is served in
// place of a generated listing.
const IndexFile = "index.html"

// Entry is one row of a rendered directory listing.
type Entry struct {
	Name  string
	IsDir bool
	Size  int64
	MTime time.Time
}

// listingData is the value passed to the listing template.
type listingData struct {
	Path    string
	Entries []Entry
}

// DefaultTemplate is the built-in directory-listing template, used when
// the loaded config does not supply its own.
var DefaultTemplate = template.Must(template.New("dirlisting").Parse(`<!DOCTYPE html>
<html>
<head><title>Index of {{.Path}}</title></head>
<body>
<h1>Index of {{.Path}}</h1>
<table>
<tr><th>Name</th><th>Size</th><th>Last Modified</th></tr>
{{range .Entries}}<tr><td><a href="{{.Name}}{{if .IsDir}}/{{end}}">{{.Name}}{{if .IsDir}}/{{end}}</a></td><td>{{.Size}}</td><td>{{.MTime.Format "Mon, 02 Jan 2006 15:04:05 GMT"}}</td></tr>
{{end}}</table>
</body>
</html>
`))

// NeedsRedirect reports whether requestPath (the raw, pre-routing request
// path that resolved to a directory) must be 301-redirected to itself
// with a trailing slash before a listing or index.html substitution can
// happen.
func NeedsRedirect(requestPath string) bool {
	return !strings.HasSuffix(requestPath, "/")
}

// HasIndex reports whether dirPath (an on-disk directory) contains an
// index.html file, and if so its full path.
func HasIndex(dirPath string) (indexPath string, ok bool) {
	p := path.Join(dirPath, IndexFile)
	if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
		return p, true
	}
	return "", false
}

// Render lists dirPath's entries (excluding dotfiles), sorted
// case-insensitively with directories first, and executes tmpl against
// them. requestPath is used verbatim as the template's .Path value.
func Render(w io.Writer, tmpl *template.Template, dirPath, requestPath string) error {
	entries, err := readEntries(dirPath)
	if err != nil {
		return err
	}
	if tmpl == nil {
		tmpl = DefaultTemplate
	}
	return tmpl.Execute(w, listingData{Path: requestPath, Entries: entries})
}

// ContentType is the fixed media type of a rendered listing.
const ContentType = "text/html; charset=utf-8"

// Headers returns the response headers a rendered listing is served with.
func Headers(length int64) hdr.Header {
	return hdr.Header{
		hdr.ContentType:   {ContentType},
		hdr.ContentLength: {strconv.FormatInt(length, 10)},
	}
}

func readEntries(dirPath string) ([]Entry, error) {
	f, err := os.Open(dirPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dirEntries, err := f.ReadDir(-1)
	if err != nil {
		return nil, err
	}

	out := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		name := de.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		out = append(out, Entry{
			Name:  name,
			IsDir: de.IsDir(),
			Size:  info.Size(),
			MTime: info.ModTime(),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].IsDir != out[j].IsDir {
			return out[i].IsDir
		}
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out, nil
}
