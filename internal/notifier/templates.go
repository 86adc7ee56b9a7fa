package notifier

import (
	"bytes"
	"embed"
	"fmt"
	"html"
	"html/template"
	"strings"
)

//go:embed templates/*.html
var templateFS embed.FS

// TemplateInvoiceSent is rendered when an invoice is sent to its client
const TemplateInvoiceSent = "invoice_sent"

var templateNames = []string{
	TemplateInvoiceSent,
	"upcoming_due",
	"due_today",
	"overdue_gentle",
	"overdue_firm",
	"overdue_final",
	"overdue_urgent",
}

// TemplateData is what every email template can reference
type TemplateData struct {
	ClientName    string
	InvoiceNumber string
	Total         string
	AmountDue     string
	DueDate       string
	DaysOverdue   int
	DaysUntilDue  int
	SenderName    string
	SenderEmail   string
}

// Renderer holds the parsed email templates
type Renderer struct {
	templates map[string]*template.Template
}

// NewRenderer parses the embedded templates
func NewRenderer() (*Renderer, error) {
	r := &Renderer{templates: make(map[string]*template.Template, len(templateNames))}
	for _, name := range templateNames {
		tmpl, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		r.templates[name] = tmpl
	}
	return r, nil
}

// Render returns the subject and HTML body for the named template
func (r *Renderer) Render(name string, data TemplateData) (string, string, error) {
	tmpl, ok := r.templates[name]
	if !ok {
		return "", "", fmt.Errorf("unknown email template %q", name)
	}

	var subject bytes.Buffer
	if err := tmpl.ExecuteTemplate(&subject, "subject", data); err != nil {
		return "", "", fmt.Errorf("failed to render subject: %w", err)
	}
	var body bytes.Buffer
	if err := tmpl.ExecuteTemplate(&body, "layout", data); err != nil {
		return "", "", fmt.Errorf("failed to render body: %w", err)
	}
	return html.UnescapeString(strings.TrimSpace(subject.String())), body.String(), nil
}
