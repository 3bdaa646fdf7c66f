package service

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/samber/lo"

	"github.com/cloo-solutions/docrag/internal/domain"
)

const (
	// maxMatchesPerCategory caps every extracted entity list.
	maxMatchesPerCategory = 50
	maxHeadingRunes       = 80
)

var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	phonePattern = regexp.MustCompile(`\b\d{3}[-. ]?\d{3}[-. ]?\d{4}\b`)
	urlPattern   = regexp.MustCompile(`(?:https?://|www\.)[^\s<>"'()\[\]]+`)
	datePattern  = regexp.MustCompile(`(?i)\b\d{4}-\d{2}-\d{2}\b` +
		`|\b\d{1,2}[/.]\d{1,2}[/.]\d{4}\b` +
		`|\b(?:jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)\.? \d{1,2}(?:st|nd|rd|th)?,? \d{4}\b` +
		`|\d{4}년\s*\d{1,2}월\s*\d{1,2}일`)
	headingPrefix = regexp.MustCompile(`^[#*\-\d.)\s]+`)
)

// sectionSynonyms is checked in order; the first concept whose synonym
// starts a line wins, so longer phrases precede their substrings.
var sectionSynonyms = []struct {
	concept  string
	synonyms []string
}{
	{domain.SectionTableOfContents, []string{"table of contents", "contents", "목차", "차례"}},
	{domain.SectionExecutiveSummary, []string{"executive summary", "경영 요약", "경영진 요약"}},
	{domain.SectionSummary, []string{"summary", "overview", "abstract", "요약", "개요"}},
	{domain.SectionIntroduction, []string{"introduction", "background", "서론", "소개", "배경"}},
	{domain.SectionConclusion, []string{"conclusion", "conclusions", "closing remarks", "결론", "맺음말"}},
	{domain.SectionReferences, []string{"references", "bibliography", "works cited", "참고문헌", "참고 문헌", "참고자료"}},
	{domain.SectionAppendix, []string{"appendix", "appendices", "annex", "부록", "별첨"}},
}

// ExtractMetadata computes document-level signals. It is deterministic and
// never fails; entity lists are omitted when nothing matches.
func ExtractMetadata(text string) domain.DocumentMetadata {
	md := domain.DocumentMetadata{
		CharCount: utf8.RuneCountInString(text),
		WordCount: len(strings.Fields(text)),
	}
	if text != "" {
		md.LineCount = strings.Count(text, "\n") + 1
	}

	md.Emails = findUnique(emailPattern, text, nil)
	md.Phones = findUnique(phonePattern, text, nil)
	md.URLs = findUnique(urlPattern, text, func(s string) string {
		return strings.TrimRight(s, ".,;:!?")
	})
	md.Dates = findUnique(datePattern, text, nil)
	md.Sections = detectSections(text)

	return md
}

func findUnique(re *regexp.Regexp, text string, clean func(string) string) []string {
	matches := re.FindAllString(text, -1)
	if clean != nil {
		matches = lo.Map(matches, func(m string, _ int) string { return clean(m) })
	}
	matches = lo.Uniq(lo.Compact(matches))
	if len(matches) == 0 {
		return nil
	}
	if len(matches) > maxMatchesPerCategory {
		matches = matches[:maxMatchesPerCategory]
	}
	return matches
}

func detectSections(text string) []string {
	var found []string
	for _, line := range strings.Split(text, "\n") {
		heading := strings.ToLower(headingPrefix.ReplaceAllString(strings.TrimSpace(line), ""))
		if heading == "" || utf8.RuneCountInString(heading) > maxHeadingRunes {
			continue
		}
		for _, s := range sectionSynonyms {
			if lo.SomeBy(s.synonyms, func(syn string) bool { return strings.HasPrefix(heading, syn) }) {
				found = append(found, s.concept)
				break
			}
		}
	}
	found = lo.Uniq(found)
	if len(found) == 0 {
		return nil
	}
	return found
}

// SourceInfo describes where a chunk set came from.
type SourceInfo struct {
	Name  string
	Type  string
	Title string
}

// BuildChunkMetadata merges document metadata with per-chunk fields.
func BuildChunkMetadata(doc domain.DocumentMetadata, src SourceInfo, chunk string, index, total int) domain.ChunkMetadata {
	return domain.ChunkMetadata{
		DocumentMetadata: doc,
		SourceName:       src.Name,
		SourceType:       src.Type,
		Title:            src.Title,
		ChunkLength:      utf8.RuneCountInString(chunk),
		ChunkIndex:       index,
		TotalChunks:      total,
	}
}
