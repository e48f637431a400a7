package parse

import (
	"regexp"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// CodeBlock is a fenced code block found in a piece of markdown.
// Start and End are the byte offsets of Code inside the source text.
type CodeBlock struct {
	Code     string
	Language string
	Start    int
	End      int
}

// Span is a half-open byte range [Start, End) in a source text.
type Span struct {
	Start int
	End   int
}

// inlineFenceRegexp catches fences that are not on their own line, which
// CommonMark does not recognize but agents emit anyway ("here: ```json\n{...}```").
var inlineFenceRegexp = regexp.MustCompile("(?s)```([A-Za-z0-9_+-]*)[ \t]*\r?\n?(.*?)\r?\n?```")

// FencedCodeBlocks returns all fenced code blocks of markdownText in document order.
//
// Blocks recognized by the CommonMark parser come first. Fences that the parser
// does not see (for example because the opening fence is in the middle of a line)
// are appended afterwards if they do not overlap a block that was already found.
func FencedCodeBlocks(markdownText string) []CodeBlock {
	source := []byte(markdownText)
	document := goldmark.DefaultParser().Parse(text.NewReader(source))

	var blocks []CodeBlock
	_ = ast.Walk(document, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		v, ok := n.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}
		lines := v.Lines()
		if lines.Len() == 0 {
			return ast.WalkSkipChildren, nil
		}
		start := lines.At(0).Start
		stop := lines.At(lines.Len() - 1).Stop
		blocks = append(blocks, CodeBlock{
			Code:     string(source[start:stop]),
			Language: string(v.Language(source)),
			Start:    start,
			End:      stop,
		})
		return ast.WalkSkipChildren, nil
	})

	for _, m := range inlineFenceRegexp.FindAllStringSubmatchIndex(markdownText, -1) {
		start, end := m[4], m[5]
		if overlaps(blocks, start, end) {
			continue
		}
		blocks = append(blocks, CodeBlock{
			Code:     markdownText[start:end],
			Language: markdownText[m[2]:m[3]],
			Start:    start,
			End:      end,
		})
	}

	return blocks
}

func overlaps(blocks []CodeBlock, start, end int) bool {
	for _, b := range blocks {
		if start < b.End && b.Start < end {
			return true
		}
	}
	return false
}
