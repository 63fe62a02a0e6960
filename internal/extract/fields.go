package extract

import (
	"regexp"
	"strings"
)

// nameWindow is how many leading non-blank lines the positional name
// heuristic scans when no explicit label is present.
const nameWindow = 12

var (
	nameLabelRe   = regexp.MustCompile(`(?i)\bname\b[\s:.\-]*(.+)$`)
	fatherLabelRe = regexp.MustCompile(`(?i)\b(?:father'?s?(?:\s+name)?|s/o|d/o|w/o|shri)\b[\s:.\-]*([A-Za-z][A-Za-z ]*)`)
	relationRe    = regexp.MustCompile(`(?i)\b(?:son|daughter)\s+of\b[\s:.\-]*([A-Za-z][A-Za-z ]*)`)

	dobLabelRe = regexp.MustCompile(`(?i)\b(?:d\.?o\.?b\.?|date\s+of\s+birth|birth\s*date|year\s+of\s+birth)\b[\s:.\-]*(\d{1,4}[-/.]\d{1,2}[-/.]\d{2,4})`)
	bareDateRe = regexp.MustCompile(`\b\d{2}[-/.]\d{2}[-/.]\d{4}\b`)

	genderRe = regexp.MustCompile(`(?i)\b(male|female|other|m|f)\b`)

	// Secondary delimiters that mark the end of a name run when OCR merges
	// trailing noise onto the same line.
	nameStopRe = regexp.MustCompile(`(?i)\b(?:dob|date\s+of\s+birth|father|s/o|d/o|gender|birth)\b`)
	alphaRunRe = regexp.MustCompile(`^[A-Za-z][A-Za-z ]*`)
	spacesRe   = regexp.MustCompile(`\s+`)

	titleNameRe = regexp.MustCompile(`^(?:[A-Z][a-z]+\s+)+[A-Z][a-z]+\.?$`)
	allCapsRe   = regexp.MustCompile(`^[A-Z][A-Z .]+$`)
	looseNameRe = regexp.MustCompile(`^[A-Za-z][A-Za-z. ]+$`)
)

// nameSkipWords disqualify a line from being a personal name in the
// positional heuristic (document boilerplate, field values).
var nameSkipWords = []string{
	"government", "india", "income", "tax", "department", "authority",
	"unique", "identification", "transport", "licence", "license",
	"permanent", "account", "card", "male", "female", "birth", "dob",
	"address", "signature",
}

// ExtractName recovers the holder's name. It prefers an explicit "Name"
// label; without one it scans the first few lines for something shaped like
// a personal name. Returns "" when nothing plausible is found.
func ExtractName(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if strings.Contains(strings.ToLower(line), "father") {
			continue
		}
		if m := nameLabelRe.FindStringSubmatch(line); m != nil {
			if name := cleanNameRun(m[1]); name != "" {
				return name
			}
		}
	}

	lines := strings.Split(text, "\n")
	if len(lines) > nameWindow {
		lines = lines[:nameWindow]
	}

	for _, line := range lines {
		if !plausibleNameLine(line) {
			continue
		}
		if titleNameRe.MatchString(line) {
			return strings.TrimSuffix(line, ".")
		}
		if allCapsRe.MatchString(line) && len(strings.Fields(line)) >= 2 {
			return titleCase(strings.TrimSuffix(line, "."))
		}
	}

	// Last resort: any line of two or more alphabetic words.
	for _, line := range lines {
		if !plausibleNameLine(line) {
			continue
		}
		if looseNameRe.MatchString(line) && len(strings.Fields(line)) >= 2 {
			return cleanNameRun(line)
		}
	}

	return ""
}

// ExtractFatherName recovers the father's name from an explicit label
// ("Father", "S/O", "Shri", ...) or a relationship phrase ("Son of").
func ExtractFatherName(text string) string {
	if m := fatherLabelRe.FindStringSubmatch(text); m != nil {
		if name := cleanNameRun(m[1]); name != "" {
			return name
		}
	}
	if m := relationRe.FindStringSubmatch(text); m != nil {
		if name := cleanNameRun(m[1]); name != "" {
			return name
		}
	}
	return ""
}

// ExtractDOB recovers the date of birth, normalized to DD/MM/YYYY.
// An explicit label wins; otherwise any bare DD-MM-YYYY-shaped token counts.
func ExtractDOB(text string) string {
	if m := dobLabelRe.FindStringSubmatch(text); m != nil {
		return NormalizeDate(m[1])
	}
	if m := bareDateRe.FindString(text); m != "" {
		return NormalizeDate(m)
	}
	return ""
}

// ExtractGender recovers the gender from the first whole-word match of
// Male/Female/Other/M/F, case-insensitive.
func ExtractGender(text string) string {
	m := genderRe.FindString(text)
	if m == "" {
		return ""
	}
	switch strings.ToLower(m) {
	case "m", "male":
		return "Male"
	case "f", "female":
		return "Female"
	default:
		return "Other"
	}
}

// cleanNameRun truncates trailing noise merged onto the same line and keeps
// the leading alphabetic run.
func cleanNameRun(s string) string {
	if i := strings.Index(s, "  "); i >= 0 {
		s = s[:i]
	}
	if i := strings.Index(s, ","); i >= 0 {
		s = s[:i]
	}
	if loc := nameStopRe.FindStringIndex(s); loc != nil {
		s = s[:loc[0]]
	}
	s = strings.TrimSpace(s)
	s = alphaRunRe.FindString(s)
	s = spacesRe.ReplaceAllString(strings.TrimSpace(s), " ")
	if len(s) < 2 {
		return ""
	}
	return s
}

func plausibleNameLine(line string) bool {
	if strings.ContainsAny(line, "0123456789") {
		return false
	}
	lower := strings.ToLower(line)
	for _, w := range nameSkipWords {
		if strings.Contains(lower, w) {
			return false
		}
	}
	return true
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
