package ai

import (
	"context"
	"strings"

	"github.com/xxxsen/common/logutil"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"go.uber.org/zap"

	"github.com/carebridge/carebridge/internal/model"
)

const (
	chunkTokenBudget   = 400
	chunkOverlapTokens = 80
)

// Chunker splits markdown documents into embedding-sized chunks along
// the document structure. Section headings are carried into every chunk
// under them so a chunk stays meaningful on its own.
type Chunker struct{}

func NewChunker() *Chunker {
	return &Chunker{}
}

func (c *Chunker) Chunk(ctx context.Context, markdown string) ([]*model.Chunk, error) {
	logger := logutil.GetLogger(ctx)
	md := goldmark.New()
	reader := text.NewReader([]byte(markdown))
	doc := md.Parser().Parse(reader)

	var chunks []*model.Chunk
	var parts []string
	var tokens int
	chunkType := model.ChunkTypeText
	heading := ""
	position := 0

	flush := func() {
		if len(parts) == 0 {
			return
		}
		content := strings.Join(parts, "\n\n")
		if heading != "" {
			content = "Section: " + heading + "\n" + content
		}
		chunks = append(chunks, &model.Chunk{
			Content:    content,
			TokenCount: estimateTokens(content),
			ChunkType:  chunkType,
			Position:   position,
		})

		// Keep a tail of the flushed text so adjacent chunks share
		// context across the split point.
		if chunkType == model.ChunkTypeText && len(parts) > 1 {
			overlap := 0
			var kept []string
			for i := len(parts) - 1; i >= 0; i-- {
				t := estimateTokens(parts[i])
				if overlap+t > chunkOverlapTokens {
					break
				}
				overlap += t
				kept = append([]string{parts[i]}, kept...)
			}
			parts = kept
			tokens = overlap
		} else {
			parts = nil
			tokens = 0
		}
		chunkType = model.ChunkTypeText
		position++
	}

	for node := doc.FirstChild(); node != nil; node = node.NextSibling() {
		switch n := node.(type) {
		case *ast.Heading:
			if n.Level <= 2 {
				flush()
				heading = string(n.Text(reader.Source()))
			} else {
				txt := string(n.Text(reader.Source()))
				parts = append(parts, txt)
				tokens += estimateTokens(txt)
			}
		case *ast.FencedCodeBlock:
			lang := string(n.Language(reader.Source()))
			var sb strings.Builder
			for i := 0; i < n.Lines().Len(); i++ {
				line := n.Lines().At(i)
				sb.Write(line.Value(reader.Source()))
			}
			block := "```" + lang + "\n" + sb.String() + "```"
			blockTokens := estimateTokens(block)
			if tokens > 0 && tokens+blockTokens <= chunkTokenBudget {
				parts = append(parts, block)
				tokens += blockTokens
				chunkType = model.ChunkTypeMixed
			} else {
				flush()
				parts = append(parts, block)
				tokens = blockTokens
				chunkType = model.ChunkTypeCode
				flush()
			}
		default:
			txt := extractText(node, reader.Source())
			if txt == "" {
				continue
			}
			t := estimateTokens(txt)
			if tokens+t > chunkTokenBudget {
				flush()
			}
			parts = append(parts, txt)
			tokens += t
		}
	}
	flush()
	logger.Debug("document chunked", zap.Int("size", len(markdown)), zap.Int("chunks", len(chunks)))
	return chunks, nil
}

// estimateTokens counts words for ASCII text and characters for the
// rest. Close enough for sizing chunks, no tokenizer dependency.
func estimateTokens(text string) int {
	count := 0
	for _, r := range text {
		if r > 127 {
			count++
		}
	}
	count += len(strings.Fields(text))
	if count == 0 && len(text) > 0 {
		return 1
	}
	return count
}

func extractText(n ast.Node, source []byte) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if node.Kind() == ast.KindText {
			sb.Write(node.(*ast.Text).Segment.Value(source))
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(sb.String())
}
