package export

import (
	"bytes"
	"embed"
	"html/template"
	"strings"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var deckTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"lower": strings.ToLower,
		"formatDate": func(t time.Time, layout string) string {
			return t.Format(layout)
		},
	}

	templateContent, err := templateFS.ReadFile("templates/deck.html")
	if err != nil {
		// Fallback to built-in template if file not found
		deckTemplate = template.Must(template.New("deck").Funcs(funcMap).Parse(fallbackTemplate))
		return
	}

	deckTemplate = template.Must(template.New("deck").Funcs(funcMap).Parse(string(templateContent)))
}

// TemplateData holds data for deck template rendering
type TemplateData struct {
	Title        string
	Format       string
	Author       string
	UpdatedAt    time.Time
	TotalCards   int
	Legend       string
	Battlefields []string
	Sections     []TemplateSection
}

// TemplateSection holds one zone of the deck list
type TemplateSection struct {
	Name    string
	Total   int
	Entries []TemplateEntry
}

// TemplateEntry holds a single card line
type TemplateEntry struct {
	Count int
	Name  string
}

// RenderDeckHTML renders the deck template with provided data
func RenderDeckHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := deckTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// fallbackTemplate is used if the embedded template fails to load
const fallbackTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.5; max-width: 700px; margin: 2rem auto; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    .section { margin: 1rem 0; }
    .count { display: inline-block; width: 2.5em; color: #666; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  <div class="meta">{{.Format}} | {{.Author}} | {{.UpdatedAt.Format "Jan 2, 2006"}} | {{.TotalCards}} cards</div>
  {{if .Legend}}<div class="section"><h2>Legend</h2><div>{{.Legend}}</div></div>{{end}}
  {{if .Battlefields}}<div class="section"><h2>Battlefields</h2>{{range .Battlefields}}<div>{{.}}</div>{{end}}</div>{{end}}
  {{range .Sections}}
  <div class="section">
    <h2>{{.Name}} ({{.Total}})</h2>
    {{range .Entries}}<div><span class="count">{{.Count}}x</span>{{.Name}}</div>{{end}}
  </div>
  {{end}}
</body>
</html>`
