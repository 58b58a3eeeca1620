package enrich

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/spherical/content-pipeline/internal/domain"
)

type section string

const (
	sectionNone       section = ""
	sectionSummary    section = "summary"
	sectionSkills     section = "skills"
	sectionExperience section = "experience"
	sectionEducation  section = "education"
	sectionOther      section = "other"
)

var headingWords = map[string]section{
	"summary":                 sectionSummary,
	"professional summary":    sectionSummary,
	"profile":                 sectionSummary,
	"objective":               sectionSummary,
	"about":                   sectionSummary,
	"about me":                sectionSummary,
	"skills":                  sectionSkills,
	"technical skills":        sectionSkills,
	"core competencies":       sectionSkills,
	"competencies":            sectionSkills,
	"experience":              sectionExperience,
	"work experience":         sectionExperience,
	"professional experience": sectionExperience,
	"employment":              sectionExperience,
	"employment history":      sectionExperience,
	"work history":            sectionExperience,
	"education":               sectionEducation,
	"education and training":  sectionEducation,
	"certifications":          sectionOther,
	"projects":                sectionOther,
	"awards":                  sectionOther,
	"interests":               sectionOther,
	"references":              sectionOther,
	"languages":               sectionOther,
}

var (
	emailRe     = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	phoneRe     = regexp.MustCompile(`(?:\+?\d{1,3}[\s.\-]?)?(?:\(\d{2,4}\)|\d{2,4})[\s.\-]?\d{3,4}[\s.\-]?\d{3,4}`)
	linkedinRe  = regexp.MustCompile(`(?i)(?:https?://)?(?:[a-z]{2,3}\.)?linkedin\.com/[A-Za-z0-9_/\-]+`)
	urlRe       = regexp.MustCompile(`(?i)(?:https?://|www\.)[^\s|,]+`)
	bulletRe    = regexp.MustCompile(`^\s*(?:[•▪◦●\-*–]|\d+[.)])\s+`)
	yearRe      = regexp.MustCompile(`\b(?:19|20)\d{2}\b`)
	dateRangeRe = regexp.MustCompile(`(?i)((?:(?:jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\.?\s+|\d{1,2}/)?(?:19|20)\d{2})\s*(?:-|–|—|to)\s*((?:(?:jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\.?\s+|\d{1,2}/)?(?:19|20)\d{2}|present|current|now)`)
	degreeRe    = regexp.MustCompile(`(?i)\b(bachelor|master|b\.?s\.?c?|m\.?s\.?c?|b\.?a\.?|m\.?a\.?|mba|ph\.?d|doctor(?:ate)?|associate|diploma|b\.?eng|m\.?eng|b\.?tech|m\.?tech)\b`)
	schoolRe    = regexp.MustCompile(`(?i)\b(university|college|institute|school|academy|polytechnic)\b`)
	skillSplit  = regexp.MustCompile(`\s*[,;|•·]\s*`)
	headerSplit = regexp.MustCompile(`\s+(?:at|@|\||–|—|-)\s+|\s*,\s*`)
)

const maxKeywords = 20

// Analyze builds structured content from raw resume text with pattern
// matching alone. It never fails and never performs I/O.
func Analyze(rawText string) *domain.StructuredContent {
	lines := splitLines(rawText)
	out := &domain.StructuredContent{
		Contacts:   []domain.Contact{},
		Skills:     []string{},
		Experience: []domain.Experience{},
		Education:  []domain.Education{},
		Source:     domain.SourceHeuristic,
	}

	out.Contacts = findContacts(rawText)
	sections := splitSections(lines)
	out.Name, out.Title = findNameAndTitle(sections[sectionNone])
	out.Summary = findSummary(sections)
	out.Skills = parseSkills(sections[sectionSkills])
	out.Experience = parseExperience(sections[sectionExperience])
	out.Education = parseEducation(sections[sectionEducation])
	out.Keywords = keywords(out.Skills)

	if out.Title == "" && len(out.Experience) > 0 {
		out.Title = out.Experience[0].Title
	}
	return out
}

func splitLines(text string) []string {
	raw := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

// headingOf returns the section a line introduces, if any.
func headingOf(line string) (section, bool) {
	key := strings.ToLower(strings.TrimRight(strings.TrimSpace(line), ":"))
	if s, ok := headingWords[key]; ok {
		return s, true
	}
	return sectionNone, false
}

// splitSections groups lines under the heading that precedes them. Lines
// before the first heading land under sectionNone.
func splitSections(lines []string) map[section][]string {
	out := make(map[section][]string)
	current := sectionNone
	for _, l := range lines {
		if s, ok := headingOf(l); ok {
			current = s
			continue
		}
		out[current] = append(out[current], l)
	}
	return out
}

func findContacts(text string) []domain.Contact {
	contacts := []domain.Contact{}
	seen := map[string]bool{}
	add := func(kind, value string) {
		value = strings.TrimSpace(value)
		if value == "" || seen[kind+value] {
			return
		}
		seen[kind+value] = true
		contacts = append(contacts, domain.Contact{Kind: kind, Value: value})
	}

	if m := emailRe.FindString(text); m != "" {
		add("email", m)
	}
	if m := linkedinRe.FindString(text); m != "" {
		add("linkedin", m)
	}
	for _, m := range urlRe.FindAllString(text, -1) {
		if !strings.Contains(strings.ToLower(m), "linkedin.com") {
			add("website", strings.TrimRight(m, ".)"))
			break
		}
	}
	for _, m := range phoneRe.FindAllString(text, -1) {
		digits := 0
		for _, r := range m {
			if unicode.IsDigit(r) {
				digits++
			}
		}
		// Year ranges like "2019 - 2023" look like phone numbers.
		if digits >= 10 && !dateRangeRe.MatchString(m) {
			add("phone", m)
			break
		}
	}
	return contacts
}

func isContactLine(l string) bool {
	return emailRe.MatchString(l) || linkedinRe.MatchString(l) || urlRe.MatchString(l) ||
		strings.Count(l, "|") > 0 && (phoneRe.MatchString(l) || emailRe.MatchString(l))
}

func looksLikeName(l string) bool {
	if len(l) > 60 || isContactLine(l) || yearRe.MatchString(l) {
		return false
	}
	words := strings.Fields(l)
	if len(words) < 2 || len(words) > 5 {
		return false
	}
	for _, r := range l {
		if !unicode.IsLetter(r) && !unicode.IsSpace(r) && r != '.' && r != '-' && r != '\'' {
			return false
		}
	}
	return true
}

func findNameAndTitle(header []string) (string, string) {
	name, title := "", ""
	for i, l := range header {
		if phoneRe.MatchString(l) && !looksLikeName(l) {
			continue
		}
		if name == "" {
			if looksLikeName(l) {
				name = l
				for _, next := range header[i+1:] {
					if isContactLine(next) || phoneRe.MatchString(next) {
						continue
					}
					if len(next) <= 80 {
						title = next
					}
					break
				}
			}
			continue
		}
		break
	}
	return name, title
}

func findSummary(sections map[section][]string) string {
	if lines := sections[sectionSummary]; len(lines) > 0 {
		return strings.Join(lines, " ")
	}
	// Fall back to the longest prose line in the header block.
	best := ""
	for _, l := range sections[sectionNone] {
		if isContactLine(l) || len(strings.Fields(l)) < 8 {
			continue
		}
		if len(l) > len(best) {
			best = l
		}
	}
	return best
}

func stripBullet(l string) (string, bool) {
	if loc := bulletRe.FindStringIndex(l); loc != nil {
		return strings.TrimSpace(l[loc[1]:]), true
	}
	return l, false
}

func parseSkills(lines []string) []string {
	skills := []string{}
	seen := map[string]bool{}
	for _, l := range lines {
		l, _ = stripBullet(l)
		// "Languages: Go, Python" keeps only the list.
		if i := strings.Index(l, ":"); i >= 0 && i < 40 {
			l = l[i+1:]
		}
		for _, s := range skillSplit.Split(l, -1) {
			s = strings.TrimSpace(strings.TrimRight(s, "."))
			key := strings.ToLower(s)
			if s == "" || len(s) > 50 || seen[key] {
				continue
			}
			seen[key] = true
			skills = append(skills, s)
		}
	}
	return skills
}

func parseExperience(lines []string) []domain.Experience {
	out := []domain.Experience{}
	var pending string
	for _, l := range lines {
		text, bullet := stripBullet(l)

		if m := dateRangeRe.FindStringSubmatchIndex(text); m != nil && !bullet {
			start := strings.TrimSpace(text[m[2]:m[3]])
			end := strings.TrimSpace(text[m[4]:m[5]])
			header := strings.TrimSpace(strings.Trim(text[:m[0]]+" "+text[m[1]:], " |,-–—()"))

			exp := domain.Experience{StartDate: start, EndDate: titleCase(end)}
			parts := nonEmpty(headerSplit.Split(header, -1))
			switch {
			case len(parts) >= 2:
				exp.Title, exp.Company = parts[0], parts[1]
			case len(parts) == 1 && pending != "":
				exp.Title, exp.Company = parts[0], pending
			case len(parts) == 1:
				exp.Title = parts[0]
			case pending != "":
				exp.Title = pending
			}
			pending = ""
			out = append(out, exp)
			continue
		}

		if len(out) > 0 && (bullet || (pending == "" && !looksLikeHeader(text))) {
			last := &out[len(out)-1]
			last.Highlights = append(last.Highlights, text)
			continue
		}
		pending = text
	}
	return out
}

// looksLikeHeader spots the company or title line that precedes a dated line.
func looksLikeHeader(l string) bool {
	words := strings.Fields(l)
	return len(words) > 0 && len(words) <= 6 && !strings.HasSuffix(l, ".")
}

func parseEducation(lines []string) []domain.Education {
	out := []domain.Education{}
	for i, l := range lines {
		text, _ := stripBullet(l)
		if !degreeRe.MatchString(text) {
			continue
		}

		edu := domain.Education{}
		if years := yearRe.FindAllString(text, -1); len(years) > 0 {
			edu.GraduationYear = years[len(years)-1]
		}
		clean := strings.TrimSpace(strings.Trim(dateRangeRe.ReplaceAllString(yearRe.ReplaceAllString(text, ""), ""), " |,-–—()"))
		parts := nonEmpty(headerSplit.Split(clean, -1))

		for _, p := range parts {
			switch {
			case schoolRe.MatchString(p) && edu.Institution == "":
				edu.Institution = p
			case edu.Degree == "":
				edu.Degree = p
			case edu.Field == "":
				edu.Field = p
			}
		}
		if edu.Institution == "" {
			for _, near := range neighbors(lines, i) {
				if schoolRe.MatchString(near) && !degreeRe.MatchString(near) {
					edu.Institution = strings.TrimSpace(yearRe.ReplaceAllString(near, ""))
					break
				}
			}
		}
		if edu.GraduationYear == "" {
			for _, near := range neighbors(lines, i) {
				if y := yearRe.FindAllString(near, -1); len(y) > 0 {
					edu.GraduationYear = y[len(y)-1]
					break
				}
			}
		}
		if strings.Contains(strings.ToLower(edu.Degree), " in ") && edu.Field == "" {
			idx := strings.Index(strings.ToLower(edu.Degree), " in ")
			edu.Degree, edu.Field = strings.TrimSpace(edu.Degree[:idx]), strings.TrimSpace(edu.Degree[idx+4:])
		}
		out = append(out, edu)
	}
	return out
}

func neighbors(lines []string, i int) []string {
	var out []string
	if i+1 < len(lines) {
		out = append(out, lines[i+1])
	}
	if i > 0 {
		out = append(out, lines[i-1])
	}
	return out
}

func keywords(skills []string) []string {
	if len(skills) > maxKeywords {
		skills = skills[:maxKeywords]
	}
	out := make([]string, len(skills))
	copy(out, skills)
	return out
}

func nonEmpty(parts []string) []string {
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	lower := strings.ToLower(s)
	if lower == "present" || lower == "current" || lower == "now" {
		return "Present"
	}
	return s
}
