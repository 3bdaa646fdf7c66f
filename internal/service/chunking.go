package service

import (
	"strings"
	"unicode"

	"github.com/cloo-solutions/docrag/internal/domain"
)

// ChunkMode selects how consecutive chunks share context.
type ChunkMode int

const (
	// ChunkModePlain overlaps consecutive windows; each chunk stands alone.
	ChunkModePlain ChunkMode = iota
	// ChunkModeStitched uses non-overlapping windows and prefixes every chunk
	// after the first with "... " and the tail of the preceding text.
	ChunkModeStitched
)

const stitchMarker = "... "

// ChunkConfig controls segmentation.
type ChunkConfig struct {
	MaxChars  int
	Overlap   int
	MaxChunks int
	Mode      ChunkMode
}

// DefaultChunkConfig provides sane defaults for chunking.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		MaxChars: domain.DefaultChunkSize,
		Overlap:  domain.DefaultChunkOverlap,
	}
}

// ChunkModeFor returns the segmentation mode used for an owner kind.
// Documents get plain overlap, bot knowledge gets stitched context.
func ChunkModeFor(kind domain.OwnerKind) ChunkMode {
	if kind == domain.OwnerKindBot {
		return ChunkModeStitched
	}
	return ChunkModePlain
}

func (c ChunkConfig) normalized() ChunkConfig {
	if c.MaxChars <= 0 {
		c.MaxChars = domain.DefaultChunkSize
	}
	if c.Overlap < 0 {
		c.Overlap = 0
	}
	if c.Overlap >= c.MaxChars {
		c.Overlap = c.MaxChars / 5
	}
	return c
}

// Segment splits normalized text into chunks of at most cfg.MaxChars runes,
// preferring sentence or line breaks in the last 20% of each window. In
// stitched mode a chunk may additionally carry up to cfg.Overlap runes of
// context prefix.
func Segment(text string, cfg ChunkConfig) []string {
	clean := strings.TrimSpace(text)
	if clean == "" {
		return nil
	}
	cfg = cfg.normalized()

	runes := []rune(clean)
	if len(runes) <= cfg.MaxChars {
		return []string{clean}
	}

	chunks := make([]string, 0, len(runes)/cfg.MaxChars+1)
	start := 0
	for start < len(runes) {
		if cfg.MaxChunks > 0 && len(chunks) >= cfg.MaxChunks {
			break
		}

		end := start + cfg.MaxChars
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = breakPoint(runes, start, end)
		}

		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			if cfg.Mode == ChunkModeStitched && start > 0 {
				chunk = stitchedPrefix(runes, start, cfg.Overlap) + chunk
			}
			chunks = append(chunks, chunk)
		}

		if end >= len(runes) {
			break
		}

		next := end
		if cfg.Mode == ChunkModePlain && cfg.Overlap > 0 {
			next = nextStart(runes, start, end, cfg.Overlap)
		}
		start = next
	}

	return chunks
}

// breakPoint picks the cut for the window [start, end). A sentence end or
// line break is used when it lands strictly inside the tail 20% of the
// window, then the last whitespace in that tail, then the raw boundary.
func breakPoint(runes []rune, start, end int) int {
	tail := start + (end-start)*8/10
	for i := end - 1; i >= start; i-- {
		if runes[i] == '.' || runes[i] == '\n' {
			if cut := i + 1; cut > tail && cut > start {
				return cut
			}
			break
		}
	}
	for i := end - 1; i >= tail && i > start; i-- {
		if unicode.IsSpace(runes[i]) {
			return i
		}
	}
	return end
}

// nextStart backs up overlap runes from end and then to the start of the
// word it lands in. The result is always greater than start.
func nextStart(runes []rune, start, end, overlap int) int {
	raw := end - overlap
	if raw <= start {
		return end
	}
	next := raw
	for next > start && !unicode.IsSpace(runes[next-1]) {
		next--
	}
	if next <= start {
		return raw
	}
	return next
}

// stitchedPrefix renders "... " plus the tail of the text before start,
// followed by a space, within a total budget of overlap runes.
func stitchedPrefix(runes []rune, start, overlap int) string {
	budget := overlap - len([]rune(stitchMarker)) - 1
	if budget <= 0 {
		return ""
	}
	from := start - budget
	if from < 0 {
		from = 0
	}
	// skip a partial leading word
	if from > 0 && !unicode.IsSpace(runes[from-1]) {
		for from < start && !unicode.IsSpace(runes[from]) {
			from++
		}
	}
	context := strings.TrimSpace(string(runes[from:start]))
	if context == "" {
		return ""
	}
	return stitchMarker + context + " "
}
