// Package format renders structured content into the downloadable
// artifacts: markdown and plain-text resumes, a Word resume and a cover
// letter.
package format

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/spherical/content-pipeline/internal/domain"
)

// Kind names an artifact format.
type Kind string

const (
	KindMarkdown    Kind = "markdown"
	KindText        Kind = "text"
	KindCoverLetter Kind = "cover-letter"
	KindDocx        Kind = "docx"
)

// Kinds lists every renderable kind in output order.
var Kinds = []Kind{KindMarkdown, KindText, KindCoverLetter, KindDocx}

var fileNames = map[Kind]string{
	KindMarkdown:    "resume.md",
	KindText:        "resume.txt",
	KindCoverLetter: "cover_letter.md",
	KindDocx:        "resume.docx",
}

// ParseKind accepts a kind name or its common aliases.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "markdown", "md":
		return KindMarkdown, nil
	case "text", "txt", "plain":
		return KindText, nil
	case "cover-letter", "cover_letter", "coverletter":
		return KindCoverLetter, nil
	case "docx", "word":
		return KindDocx, nil
	default:
		return "", domain.ValidationError(fmt.Sprintf("unknown format %q", s), nil)
	}
}

// FileName returns the storage file name of a kind.
func (k Kind) FileName() string { return fileNames[k] }

// ContentType returns the content type artifacts of kind are served with.
func (k Kind) ContentType() string {
	switch k {
	case KindText:
		return "text/plain; charset=utf-8"
	case KindDocx:
		return DocxContentType
	default:
		return "text/markdown; charset=utf-8"
	}
}

var funcs = template.FuncMap{
	"join":      strings.Join,
	"upper":     strings.ToUpper,
	"underline": func(s string) string { return strings.Repeat("=", len(s)) },
	"period":    period,
	"mdContact": markdownContact,
	"txtContact": func(c domain.Contact) string {
		return contactLabel(c.Kind) + ": " + c.Value
	},
	"topSkills": func(skills []string, n int) []string {
		if len(skills) > n {
			return skills[:n]
		}
		return skills
	},
	"sep": func(i int, s string) string {
		if i == 0 {
			return ""
		}
		return s
	},
	"index0": func(exps []domain.Experience) *domain.Experience {
		if len(exps) == 0 {
			return nil
		}
		return &exps[0]
	},
	"lowerFirst": func(s string) string {
		s = strings.TrimRight(strings.TrimSpace(s), ".")
		if s == "" {
			return s
		}
		return strings.ToLower(s[:1]) + s[1:]
	},
}

var templates = template.Must(template.New("format").Funcs(funcs).Parse(markdownTmpl + textTmpl + coverLetterTmpl))

// Render renders content as kind. Output is deterministic for equal input.
// For KindDocx the string holds the binary Word package.
func Render(content *domain.StructuredContent, kind Kind) (string, error) {
	if content == nil {
		return "", domain.ValidationError("no content to format", nil)
	}
	if kind == KindDocx {
		data, err := renderDocx(content)
		if err != nil {
			return "", fmt.Errorf("render %s: %w", kind, err)
		}
		return string(data), nil
	}
	name, ok := map[Kind]string{
		KindMarkdown:    "markdown",
		KindText:        "text",
		KindCoverLetter: "cover-letter",
	}[kind]
	if !ok {
		return "", domain.ValidationError(fmt.Sprintf("unknown format %q", kind), nil)
	}

	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, content); err != nil {
		return "", fmt.Errorf("render %s: %w", kind, err)
	}
	return strings.TrimSpace(buf.String()) + "\n", nil
}

// RenderAll renders every kind.
func RenderAll(content *domain.StructuredContent) (map[Kind]string, error) {
	out := make(map[Kind]string, len(Kinds))
	for _, k := range Kinds {
		s, err := Render(content, k)
		if err != nil {
			return nil, err
		}
		out[k] = s
	}
	return out, nil
}

func period(start, end string) string {
	switch {
	case start != "" && end != "":
		return start + " - " + end
	case start != "":
		return start + " - Present"
	default:
		return end
	}
}

func contactLabel(kind string) string {
	switch kind {
	case "linkedin":
		return "LinkedIn"
	case "github":
		return "GitHub"
	case "":
		return ""
	default:
		return strings.ToUpper(kind[:1]) + kind[1:]
	}
}

func markdownContact(c domain.Contact) string {
	switch c.Kind {
	case "email":
		return fmt.Sprintf("[%s](mailto:%s)", c.Value, c.Value)
	case "linkedin", "website", "github":
		href := c.Value
		if !strings.HasPrefix(href, "http") {
			href = "https://" + href
		}
		return fmt.Sprintf("[%s](%s)", contactLabel(c.Kind), href)
	default:
		return c.Value
	}
}

const markdownTmpl = `{{define "markdown"}}# {{.Name}}
{{if .Title}}
**{{.Title}}**
{{end}}{{if .Contacts}}
{{range $i, $c := .Contacts}}{{sep $i " | "}}{{mdContact $c}}{{end}}
{{end}}{{if .Summary}}
## Summary

{{.Summary}}
{{end}}{{if .Skills}}
## Skills

{{join .Skills ", "}}
{{end}}{{if .Experience}}
## Experience
{{range .Experience}}
### {{.Title}}{{if .Company}} | {{.Company}}{{end}}
{{with period .StartDate .EndDate}}
*{{.}}*
{{end}}{{if .Highlights}}
{{range .Highlights}}- {{.}}
{{end}}{{end}}{{end}}{{end}}{{if .Education}}
## Education
{{range .Education}}
- **{{if .Degree}}{{.Degree}}{{if .Field}} in {{.Field}}{{end}}{{else}}{{.Field}}{{end}}**{{if .Institution}}, {{.Institution}}{{end}}{{if .GraduationYear}} ({{.GraduationYear}}){{end}}{{end}}
{{end}}{{end}}`

const textTmpl = `{{define "text"}}{{upper .Name}}
{{if .Title}}{{.Title}}
{{end}}{{if .Contacts}}
{{range $i, $c := .Contacts}}{{sep $i " | "}}{{txtContact $c}}{{end}}
{{end}}{{if .Summary}}
SUMMARY
{{underline "SUMMARY"}}
{{.Summary}}
{{end}}{{if .Skills}}
SKILLS
{{underline "SKILLS"}}
{{join .Skills ", "}}
{{end}}{{if .Experience}}
EXPERIENCE
{{underline "EXPERIENCE"}}
{{range .Experience}}
{{.Title}}{{if .Company}} | {{.Company}}{{end}}{{with period .StartDate .EndDate}} | {{.}}{{end}}
{{range .Highlights}}- {{.}}
{{end}}{{end}}{{end}}{{if .Education}}
EDUCATION
{{underline "EDUCATION"}}
{{range .Education}}
{{if .Degree}}{{.Degree}}{{if .Field}} in {{.Field}}{{end}}{{else}}{{.Field}}{{end}}{{if .Institution}} | {{.Institution}}{{end}}{{if .GraduationYear}} | {{.GraduationYear}}{{end}}
{{end}}{{end}}{{end}}`

const coverLetterTmpl = `{{define "cover-letter"}}# {{.Name}}
{{if .Contacts}}
{{range $i, $c := .Contacts}}{{sep $i " | "}}{{mdContact $c}}{{end}}
{{end}}
Dear Hiring Manager,

I am writing to express my interest in joining your team{{if .Title}} as an experienced {{.Title}}{{end}}.{{if .Summary}} {{.Summary}}{{end}}
{{with index0 .Experience}}
Most recently I worked as {{.Title}}{{if .Company}} at {{.Company}}{{end}}{{if .Highlights}}, where I {{lowerFirst (index .Highlights 0)}}{{end}}.
{{end}}{{if .Skills}}
I bring strengths in {{join (topSkills .Skills 5) ", "}}, and I am eager to apply them to the challenges your organization is working on.
{{end}}
Thank you for considering my application. I would welcome the opportunity to discuss how I can contribute.

Sincerely,

{{.Name}}
{{end}}`

