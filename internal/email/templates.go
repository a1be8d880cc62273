package email

import (
	"bytes"
	"fmt"
	"html/template"
)

// Template names.
const (
	TemplateWelcome    = "welcome"
	TemplateNoteShared = "note_shared"
)

// WelcomeData is sent after signup.
type WelcomeData struct {
	Name string
}

// NoteSharedData is sent to a user when a note is shared with them.
type NoteSharedData struct {
	OwnerName string
	NoteTitle string
	Link      string
}

const layoutHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Subject}}</title>
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
    <div style="background: #2f6f5e; padding: 24px; border-radius: 10px 10px 0 0;">
        <h1 style="color: white; margin: 0; font-size: 22px;">Shared Notes</h1>
    </div>
    <div style="background: #ffffff; padding: 24px; border: 1px solid #e0e0e0; border-top: none; border-radius: 0 0 10px 10px;">
        {{template "body" .Data}}
        <hr style="border: none; border-top: 1px solid #e0e0e0; margin: 20px 0;">
        <p style="color: #999; font-size: 12px;">This is an automated message. Please do not reply to this email.</p>
    </div>
</body>
</html>`

const welcomeBody = `{{define "body"}}
        <h2 style="margin-top: 0;">Welcome, {{.Name}}!</h2>
        <p>Your account is ready. Create notes, share them with other users, and search everything you can see.</p>
{{end}}`

const noteSharedBody = `{{define "body"}}
        <h2 style="margin-top: 0;">{{.OwnerName}} shared a note with you</h2>
        <p><strong>{{.NoteTitle}}</strong></p>
        {{if .Link}}<p><a href="{{.Link}}">Open the note</a></p>{{end}}
{{end}}`

var templates = map[string]*template.Template{
	TemplateWelcome:    template.Must(template.Must(template.New("layout").Parse(layoutHTML)).Parse(welcomeBody)),
	TemplateNoteShared: template.Must(template.Must(template.New("layout").Parse(layoutHTML)).Parse(noteSharedBody)),
}

// Render returns the subject and HTML body for a template. User-supplied
// strings in data are escaped.
func Render(templateName string, data any) (subject, html string, err error) {
	switch d := data.(type) {
	case WelcomeData:
		subject = "Welcome to Shared Notes!"
	case NoteSharedData:
		subject = fmt.Sprintf("%s shared \"%s\" with you", d.OwnerName, d.NoteTitle)
	}

	tmpl, ok := templates[templateName]
	if !ok || subject == "" {
		return "", "", fmt.Errorf("email: unknown template %q for %T", templateName, data)
	}

	var buf bytes.Buffer
	err = tmpl.Execute(&buf, struct {
		Subject string
		Data    any
	}{subject, data})
	if err != nil {
		return "", "", fmt.Errorf("email: render %s: %w", templateName, err)
	}
	return subject, buf.String(), nil
}
