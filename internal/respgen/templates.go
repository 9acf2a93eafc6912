package respgen

import (
	"fmt"
	"html/template"
	"path/filepath"

	"github.com/lucentsrv/lucent/internal/dirlist"
)

// ErrorTemplateFile and DirListingTemplateFile are the two files a
// configured template_root may supply to override the built-in
// templates.
const (
	ErrorTemplateFile      = "error.html"
	DirListingTemplateFile = "dirlisting.html"
)

// DefaultErrorTemplate is used when no template_root is configured. The
// .Server and .Status fields come from ErrorPageData.
var DefaultErrorTemplate = template.Must(template.New("error").Parse(`<!DOCTYPE html>
<html>
<head><title>{{.Status}}</title></head>
<body>
<h1>{{.Status}}</h1>
<p>{{.Server}}</p>
</body>
</html>
`))

// LoadTemplates builds the server's Templates. With no template_root
// configured, the built-in defaults are used. A configured template_root
// must contain both error.html and dirlisting.html; either file missing
// or unparsable is an init error, not a silent fallback to defaults.
func LoadTemplates(templateRoot string) (Templates, error) {
	if templateRoot == "" {
		return Templates{Error: DefaultErrorTemplate, DirListing: dirlist.DefaultTemplate}, nil
	}

	errTmpl, err := template.ParseFiles(filepath.Join(templateRoot, ErrorTemplateFile))
	if err != nil {
		return Templates{}, fmt.Errorf("respgen: loading %s: %w", ErrorTemplateFile, err)
	}
	dirTmpl, err := template.ParseFiles(filepath.Join(templateRoot, DirListingTemplateFile))
	if err != nil {
		return Templates{}, fmt.Errorf("respgen: loading %s: %w", DirListingTemplateFile, err)
	}
	return Templates{Error: errTmpl, DirListing: dirTmpl}, nil
}
