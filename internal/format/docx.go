package format

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/spherical/content-pipeline/internal/domain"
)

// DocxContentType is the media type of a Word document.
const DocxContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

const (
	contentTypesXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
<Default Extension="xml" ContentType="application/xml"/>
<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>
<Override PartName="/word/styles.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.styles+xml"/>
<Override PartName="/docProps/core.xml" ContentType="application/vnd.openxmlformats-package.core-properties+xml"/>
</Types>`

	packageRelsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>
<Relationship Id="rId2" Type="http://schemas.openxmlformats.org/package/2006/relationships/metadata/core-properties" Target="docProps/core.xml"/>
</Relationships>`

	documentRelsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/styles" Target="styles.xml"/>
</Relationships>`

	stylesXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:styles xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:docDefaults><w:rPrDefault><w:rPr><w:rFonts w:ascii="Calibri" w:hAnsi="Calibri"/><w:sz w:val="22"/></w:rPr></w:rPrDefault></w:docDefaults>
<w:style w:type="paragraph" w:default="1" w:styleId="Normal"><w:name w:val="Normal"/><w:pPr><w:spacing w:after="120"/></w:pPr></w:style>
<w:style w:type="paragraph" w:styleId="Title"><w:name w:val="Title"/><w:basedOn w:val="Normal"/><w:rPr><w:b/><w:sz w:val="40"/></w:rPr></w:style>
<w:style w:type="paragraph" w:styleId="Subtitle"><w:name w:val="Subtitle"/><w:basedOn w:val="Normal"/><w:rPr><w:i/><w:sz w:val="26"/></w:rPr></w:style>
<w:style w:type="paragraph" w:styleId="Heading1"><w:name w:val="heading 1"/><w:basedOn w:val="Normal"/><w:pPr><w:spacing w:before="240"/></w:pPr><w:rPr><w:b/><w:sz w:val="28"/></w:rPr></w:style>
<w:style w:type="paragraph" w:styleId="Heading2"><w:name w:val="heading 2"/><w:basedOn w:val="Normal"/><w:rPr><w:b/><w:sz w:val="24"/></w:rPr></w:style>
<w:style w:type="paragraph" w:styleId="ListBullet"><w:name w:val="List Bullet"/><w:basedOn w:val="Normal"/><w:pPr><w:ind w:left="360" w:hanging="360"/></w:pPr></w:style>
</w:styles>`
)

// docxBody accumulates the paragraphs of word/document.xml.
type docxBody struct {
	buf bytes.Buffer
}

func (d *docxBody) para(style, text string, italic bool) {
	d.buf.WriteString("<w:p>")
	if style != "" {
		fmt.Fprintf(&d.buf, `<w:pPr><w:pStyle w:val="%s"/></w:pPr>`, style)
	}
	d.buf.WriteString("<w:r>")
	if italic {
		d.buf.WriteString("<w:rPr><w:i/></w:rPr>")
	}
	d.buf.WriteString(`<w:t xml:space="preserve">`)
	_ = xml.EscapeText(&d.buf, []byte(text))
	d.buf.WriteString("</w:t></w:r></w:p>")
}

func (d *docxBody) document() []byte {
	var out bytes.Buffer
	out.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n")
	out.WriteString(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)
	out.Write(d.buf.Bytes())
	out.WriteString(`<w:sectPr><w:pgSz w:w="12240" w:h="15840"/><w:pgMar w:top="1080" w:right="1080" w:bottom="1080" w:left="1080"/></w:sectPr>`)
	out.WriteString("</w:body></w:document>")
	return out.Bytes()
}

// renderDocx builds a Word resume with the same sections as the markdown
// resume. Entries carry no timestamps so equal content yields equal bytes.
func renderDocx(c *domain.StructuredContent) ([]byte, error) {
	var body docxBody

	body.para("Title", c.Name, false)
	if c.Title != "" {
		body.para("Subtitle", c.Title, false)
	}
	if len(c.Contacts) > 0 {
		parts := make([]string, 0, len(c.Contacts))
		for _, contact := range c.Contacts {
			parts = append(parts, contactLabel(contact.Kind)+": "+contact.Value)
		}
		body.para("", strings.Join(parts, " | "), false)
	}
	if c.Summary != "" {
		body.para("Heading1", "Summary", false)
		body.para("", c.Summary, false)
	}
	if len(c.Skills) > 0 {
		body.para("Heading1", "Skills", false)
		body.para("", strings.Join(c.Skills, ", "), false)
	}
	if len(c.Experience) > 0 {
		body.para("Heading1", "Experience", false)
		for _, e := range c.Experience {
			heading := e.Title
			if e.Company != "" {
				heading += " | " + e.Company
			}
			body.para("Heading2", heading, false)
			if p := period(e.StartDate, e.EndDate); p != "" {
				body.para("", p, true)
			}
			for _, h := range e.Highlights {
				body.para("ListBullet", "•\t"+h, false)
			}
		}
	}
	if len(c.Education) > 0 {
		body.para("Heading1", "Education", false)
		for _, e := range c.Education {
			line := e.Degree
			if e.Field != "" {
				if line != "" {
					line += " in "
				}
				line += e.Field
			}
			if e.Institution != "" {
				line += ", " + e.Institution
			}
			if e.GraduationYear != "" {
				line += " (" + e.GraduationYear + ")"
			}
			body.para("", strings.TrimPrefix(line, ", "), false)
		}
	}

	var core bytes.Buffer
	core.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties" xmlns:dc="http://purl.org/dc/elements/1.1/"><dc:title>`)
	_ = xml.EscapeText(&core, []byte(c.Name+" - Resume"))
	core.WriteString(`</dc:title><dc:creator>`)
	_ = xml.EscapeText(&core, []byte(c.Name))
	core.WriteString(`</dc:creator></cp:coreProperties>`)

	parts := []struct {
		name string
		data []byte
	}{
		{"[Content_Types].xml", []byte(contentTypesXML)},
		{"_rels/.rels", []byte(packageRelsXML)},
		{"word/document.xml", body.document()},
		{"word/_rels/document.xml.rels", []byte(documentRelsXML)},
		{"word/styles.xml", []byte(stylesXML)},
		{"docProps/core.xml", core.Bytes()},
	}

	var out bytes.Buffer
	zw := zip.NewWriter(&out)
	for _, p := range parts {
		w, err := zw.Create(p.name)
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", p.name, err)
		}
		if _, err := w.Write(p.data); err != nil {
			return nil, fmt.Errorf("write %s: %w", p.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close docx: %w", err)
	}
	return out.Bytes(), nil
}
