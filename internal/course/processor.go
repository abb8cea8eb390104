package course

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Expected document layout:
//
//	Course Title: <title>
//	Course Link: <url>            (optional)
//	Course Instructor: <name>     (optional)
//
//	Lesson 0: Introduction
//	Lesson Link: <url>            (optional)
//	<lesson text ...>
//
//	Lesson 1: ...
var (
	titleRE      = regexp.MustCompile(`^Course Title:\s*(.+)$`)
	courseLinkRE = regexp.MustCompile(`^Course Link:\s*(.+)$`)
	instructorRE = regexp.MustCompile(`^Course Instructor:\s*(.+)$`)
	lessonRE     = regexp.MustCompile(`(?i)^Lesson\s+(\d+)(?::\s*(.*))?$`)
	lessonLinkRE = regexp.MustCompile(`^Lesson Link:\s*(.+)$`)

	spaceRE = regexp.MustCompile(`\s+`)
)

// Processor splits raw course documents into a Course and its Chunks.
// Processing is deterministic: the same input and configuration always
// produce byte-identical chunk boundaries and headers.
type Processor struct {
	chunkSize    int
	chunkOverlap int
}

// NewProcessor creates a Processor. chunkSize is the maximum chunk length in
// characters; chunkOverlap is the number of trailing characters of a closed
// chunk carried into the next one, and must be smaller than chunkSize.
func NewProcessor(chunkSize, chunkOverlap int) (*Processor, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("chunk overlap must be in [0, chunk size), got %d", chunkOverlap)
	}
	return &Processor{chunkSize: chunkSize, chunkOverlap: chunkOverlap}, nil
}

// Process parses one raw document and produces the Course plus its ordered
// chunks. Chunk indices are assigned sequentially across the whole course,
// starting at 0 with any course-level preamble chunks.
func (p *Processor) Process(raw string) (Course, []Chunk, error) {
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")

	c, bodyStart, err := parseMetadata(lines)
	if err != nil {
		return Course{}, nil, err
	}

	preamble, sections := splitSections(lines[bodyStart:])

	var chunks []Chunk
	next := 0

	if text := normalizeBody(preamble); text != "" {
		for _, piece := range p.chunkText(text) {
			chunks = append(chunks, Chunk{
				Content:     fmt.Sprintf("Course %s: %s", c.Title, piece),
				CourseTitle: c.Title,
				Index:       next,
			})
			next++
		}
	}

	for _, sec := range sections {
		c.Lessons = append(c.Lessons, sec.lesson)

		text := normalizeBody(sec.body)
		if text == "" {
			// Empty lesson body yields zero chunks, not an error.
			continue
		}

		num := sec.lesson.Number
		for _, piece := range p.chunkText(text) {
			chunks = append(chunks, Chunk{
				Content:      fmt.Sprintf("Course %s Lesson %d: %s", c.Title, num, piece),
				CourseTitle:  c.Title,
				LessonNumber: &num,
				LessonLink:   sec.lesson.Link,
				Index:        next,
			})
			next++
		}
	}

	return c, chunks, nil
}

// parseMetadata reads the positional metadata lines. The title line is
// required; link and instructor yield empty strings when absent.
func parseMetadata(lines []string) (Course, int, error) {
	if len(lines) == 0 {
		return Course{}, 0, fmt.Errorf("%w: document is empty", ErrParse)
	}

	m := titleRE.FindStringSubmatch(strings.TrimSpace(lines[0]))
	if m == nil || strings.TrimSpace(m[1]) == "" {
		return Course{}, 0, fmt.Errorf("%w: first line must be \"Course Title: <title>\"", ErrParse)
	}

	c := Course{Title: strings.TrimSpace(m[1])}
	idx := 1

	if idx < len(lines) {
		if lm := courseLinkRE.FindStringSubmatch(strings.TrimSpace(lines[idx])); lm != nil {
			c.Link = strings.TrimSpace(lm[1])
			idx++
		}
	}
	if idx < len(lines) {
		if im := instructorRE.FindStringSubmatch(strings.TrimSpace(lines[idx])); im != nil {
			c.Instructor = strings.TrimSpace(im[1])
			idx++
		}
	}

	return c, idx, nil
}

// section is one lesson marker plus the raw lines that follow it.
type section struct {
	lesson Lesson
	body   []string
}

// splitSections scans for lesson-marker lines. Lines before the first
// marker become the course-level preamble.
func splitSections(lines []string) ([]string, []section) {
	var preamble []string
	var sections []section

	for i := 0; i < len(lines); i++ {
		trimmed := strings.TrimSpace(lines[i])

		if m := lessonRE.FindStringSubmatch(trimmed); m != nil {
			num, err := strconv.Atoi(m[1])
			if err == nil {
				l := Lesson{Number: num, Title: strings.TrimSpace(m[2])}
				// An optional "Lesson Link:" line may directly follow the marker.
				if i+1 < len(lines) {
					if lm := lessonLinkRE.FindStringSubmatch(strings.TrimSpace(lines[i+1])); lm != nil {
						l.Link = strings.TrimSpace(lm[1])
						i++
					}
				}
				sections = append(sections, section{lesson: l})
				continue
			}
		}

		if len(sections) == 0 {
			preamble = append(preamble, lines[i])
		} else {
			last := &sections[len(sections)-1]
			last.body = append(last.body, lines[i])
		}
	}

	return preamble, sections
}

func normalizeBody(lines []string) string {
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// chunkText splits text into sentences and greedily packs them into chunks
// of at most chunkSize characters. When a chunk closes, the next one starts
// with the last chunkOverlap characters of the closed chunk, unless that
// chunk was oversized (a single sentence longer than chunkSize is emitted
// whole rather than truncated).
func (p *Processor) chunkText(text string) []string {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var chunks []string
	var cur strings.Builder
	hasSentence := false

	flush := func() {
		chunk := cur.String()
		chunks = append(chunks, chunk)
		cur.Reset()
		hasSentence = false
		if p.chunkOverlap > 0 && len(chunk) <= p.chunkSize && len(chunk) > p.chunkOverlap {
			cur.WriteString(chunk[len(chunk)-p.chunkOverlap:])
		}
	}

	for _, s := range sentences {
		if hasSentence && cur.Len()+1+len(s) > p.chunkSize {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(s)
		hasSentence = true
	}
	chunks = append(chunks, cur.String())

	return chunks
}

// splitSentences collapses whitespace and splits on sentence-terminal
// punctuation followed by a space. A period ending a single-letter word
// ("J. Smith") is treated as an abbreviation, not a boundary.
func splitSentences(text string) []string {
	text = spaceRE.ReplaceAllString(strings.TrimSpace(text), " ")
	if text == "" {
		return nil
	}

	var out []string
	start := 0
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c != '.' && c != '!' && c != '?' {
			continue
		}
		if i+1 >= len(text) || text[i+1] != ' ' {
			continue
		}
		if c == '.' && singleLetterBefore(text, i, start) {
			continue
		}
		out = append(out, text[start:i+1])
		start = i + 2
		i++ // skip the boundary space
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}

// singleLetterBefore reports whether the period at position i terminates a
// single-letter word within the current sentence.
func singleLetterBefore(text string, i, start int) bool {
	if i-1 < start || !isLetter(text[i-1]) {
		return false
	}
	return i-2 < start || text[i-2] == ' '
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
