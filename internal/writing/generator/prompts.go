package generator

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/vietddude/autowriter/internal/core/domain"
)

const systemPrompt = "You are a professional novelist writing a long serialized novel. " +
	"Keep continuity with the established story state. Answer with the requested text only."

func architecturePrompt(run domain.RunConfig) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Design the architecture of a novel.\n\n")
	fmt.Fprintf(&b, "Topic: %s\nGenre: %s\n", run.Params.Topic, run.Params.Genre)
	fmt.Fprintf(&b, "Chapters: %d, about %d characters each.\n", run.TotalChapters, run.WordNumber)
	writeOptional(&b, "Guidance", run.Params.UserGuidance)
	b.WriteString("\nCover the core premise, the main characters with their arcs, " +
		"the world and its rules, and a plot outline in acts.")
	return b.String()
}

func blueprintPrompt(run domain.RunConfig, architecture string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Using the novel architecture below, write a blueprint for all %d chapters.\n", run.TotalChapters)
	b.WriteString("Start each entry on its own line as \"Chapter <n> - <title>\" followed by " +
		"a short synopsis of what happens in that chapter.\n")
	writeOptional(&b, "Guidance", run.Params.UserGuidance)
	fmt.Fprintf(&b, "\nArchitecture:\n%s\n", architecture)
	return b.String()
}

// draftContext is everything the draft prompt pulls from story state.
type draftContext struct {
	Architecture string
	Outline      string
	Summary      string
	Characters   string
	Previous     string
	Passages     []string
}

func draftPrompt(req domain.ChapterRequest, c draftContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write chapter %d of %d. Target length: at least %d characters.\n",
		req.Number, req.TotalChapters, req.WordNumber)

	writeOptional(&b, "Chapter outline", c.Outline)
	writeOptional(&b, "Characters involved", req.Params.CharactersInvolved)
	writeOptional(&b, "Key items", req.Params.KeyItems)
	writeOptional(&b, "Scene location", req.Params.SceneLocation)
	writeOptional(&b, "Time constraint", req.Params.TimeConstraint)
	writeOptional(&b, "Guidance", req.Params.UserGuidance)
	writeOptional(&b, "Novel architecture", c.Architecture)
	writeOptional(&b, "Story so far", c.Summary)
	writeOptional(&b, "Character state", c.Characters)
	writeOptional(&b, "End of previous chapter", c.Previous)

	if len(c.Passages) > 0 {
		b.WriteString("\nRelevant earlier passages:\n")
		for i, p := range c.Passages {
			fmt.Fprintf(&b, "[%d] %s\n", i+1, p)
		}
	}
	b.WriteString("\nWrite the full chapter text.")
	return b.String()
}

func enrichPrompt(req domain.ChapterRequest, text string) string {
	return fmt.Sprintf(
		"The following chapter %d is shorter than the target of %d characters. "+
			"Rewrite it in full, expanding scenes, dialogue and description so it reaches "+
			"the target while keeping every plot event.\n\n%s",
		req.Number, req.WordNumber, text,
	)
}

func summaryPrompt(req domain.ChapterRequest, summary, chapter string) string {
	return fmt.Sprintf(
		"Update the global story summary with the events of chapter %d. "+
			"Return the complete updated summary.\n\nCurrent summary:\n%s\n\nChapter %d:\n%s",
		req.Number, orNone(summary), req.Number, chapter,
	)
}

func characterPrompt(req domain.ChapterRequest, state, chapter string) string {
	return fmt.Sprintf(
		"Update the character state document after chapter %d: abilities, items, "+
			"relationships, location and condition of each character. "+
			"Return the complete updated document.\n\nCurrent state:\n%s\n\nChapter %d:\n%s",
		req.Number, orNone(state), req.Number, chapter,
	)
}

func writeOptional(b *strings.Builder, label, value string) {
	if v := strings.TrimSpace(value); v != "" {
		fmt.Fprintf(b, "\n%s:\n%s\n", label, v)
	}
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(none yet)"
	}
	return s
}

var chapterHeader = regexp.MustCompile(`(?i)^\s*(?:#+\s*)?(?:chapter\s*(\d+)|第\s*(\d+)\s*章)`)

// chapterOutline extracts the blueprint entry for chapter n, or "" when the
// blueprint has no entry for it.
func chapterOutline(blueprint string, n int) string {
	var (
		out     []string
		capture bool
	)
	for _, line := range strings.Split(blueprint, "\n") {
		if m := chapterHeader.FindStringSubmatch(line); m != nil {
			num := m[1]
			if num == "" {
				num = m[2]
			}
			got, _ := strconv.Atoi(num)
			if capture && got != n {
				break
			}
			capture = got == n
		}
		if capture {
			out = append(out, line)
		}
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// tail returns at most the last n runes of s.
func tail(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[len(r)-n:])
}

// chunkText splits text into passages of at most size runes, preferring
// paragraph boundaries.
func chunkText(text string, size int) []string {
	if size <= 0 {
		size = 500
	}
	var (
		chunks []string
		cur    []rune
	)
	flush := func() {
		if s := strings.TrimSpace(string(cur)); s != "" {
			chunks = append(chunks, s)
		}
		cur = cur[:0]
	}

	for _, para := range strings.Split(text, "\n") {
		p := []rune(strings.TrimSpace(para))
		if len(p) == 0 {
			continue
		}
		if len(cur) > 0 && len(cur)+1+len(p) > size {
			flush()
		}
		for len(p) > size {
			if len(cur) > 0 {
				flush()
			}
			chunks = append(chunks, string(p[:size]))
			p = p[size:]
		}
		if len(cur) > 0 {
			cur = append(cur, '\n')
		}
		cur = append(cur, p...)
	}
	flush()
	return chunks
}
