package notes

import (
	"bytes"
	"context"
	"html/template"

	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"
)

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            line-height: 1.6;
            max-width: 800px;
            margin: 0 auto;
            padding: 2rem 1rem;
        }
        pre, code { background-color: #f5f5f5; border-radius: 3px; }
        pre { padding: 1rem; overflow-x: auto; }
        blockquote { margin: 1em 0; padding: 0.5em 1em; border-left: 4px solid #ddd; }
    </style>
</head>
<body>
    <article>
        <h1>{{.Title}}</h1>
        {{.Content}}
    </article>
</body>
</html>`

var pageTemplate = template.Must(template.New("note").Parse(htmlTemplate))

// ugcPolicy is safe for concurrent use once built.
var ugcPolicy = bluemonday.UGCPolicy()

type templateData struct {
	Title   string
	Content template.HTML
}

// RenderMarkdown converts a Markdown description into sanitized HTML.
func RenderMarkdown(source string) []byte {
	extensions := parser.CommonExtensions | parser.AutoHeadingIDs | parser.NoEmptyLineBeforeBlock
	p := parser.NewWithExtensions(extensions)
	doc := p.Parse([]byte(source))

	renderer := mdhtml.NewRenderer(mdhtml.RendererOptions{
		Flags: mdhtml.CommonFlags | mdhtml.HrefTargetBlank,
	})
	return ugcPolicy.SanitizeBytes(markdown.Render(doc, renderer))
}

// RenderNoteHTML renders a complete HTML page for a note. The title is escaped
// by the template; the description is rendered as Markdown and sanitized.
func RenderNoteHTML(note *Note) ([]byte, error) {
	var buf bytes.Buffer
	err := pageTemplate.Execute(&buf, templateData{
		Title:   note.Title,
		Content: template.HTML(RenderMarkdown(note.Description)),
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RenderHTML returns the HTML page for a note visible to userID.
func (s *Service) RenderHTML(ctx context.Context, noteID, userID string) ([]byte, error) {
	note, err := s.Get(ctx, noteID, userID)
	if err != nil {
		return nil, err
	}
	page, err := RenderNoteHTML(note)
	if err != nil {
		return nil, s.internal(ctx, "render", err)
	}
	return page, nil
}
