package notion

import (
	"strings"

	"github.com/jomei/notionapi"
)

// Notion rejects rich text longer than this.
const maxTextLen = 2000

func newTextRichText(content string) notionapi.RichText {
	return notionapi.RichText{
		Type:      notionapi.ObjectTypeText,
		PlainText: content,
		Text: &notionapi.Text{
			Content: content,
		},
	}
}

func newHeading2Block(text string) notionapi.Block {
	return &notionapi.Heading2Block{
		BasicBlock: notionapi.BasicBlock{
			Object: notionapi.ObjectTypeBlock,
			Type:   notionapi.BlockTypeHeading2,
		},
		Heading2: notionapi.Heading{
			RichText: []notionapi.RichText{newTextRichText(text)},
		},
	}
}

func newBulletedListItemBlock(text string) notionapi.Block {
	return &notionapi.BulletedListItemBlock{
		BasicBlock: notionapi.BasicBlock{
			Object: notionapi.ObjectTypeBlock,
			Type:   notionapi.BlockTypeBulletedListItem,
		},
		BulletedListItem: notionapi.ListItem{
			RichText: []notionapi.RichText{newTextRichText(text)},
		},
	}
}

func newParagraphBlock(text string) notionapi.Block {
	return &notionapi.ParagraphBlock{
		BasicBlock: notionapi.BasicBlock{
			Object: notionapi.ObjectTypeBlock,
			Type:   notionapi.BlockTypeParagraph,
		},
		Paragraph: notionapi.Paragraph{
			RichText: []notionapi.RichText{newTextRichText(text)},
		},
	}
}

func newCodeBlock(content, language string) notionapi.Block {
	return &notionapi.CodeBlock{
		BasicBlock: notionapi.BasicBlock{
			Object: notionapi.ObjectTypeBlock,
			Type:   notionapi.BlockTypeCode,
		},
		Code: notionapi.Code{
			RichText: []notionapi.RichText{newTextRichText(content)},
			Language: language,
		},
	}
}

func newToggleBlock(title string, children []notionapi.Block) notionapi.Block {
	return &notionapi.ToggleBlock{
		BasicBlock: notionapi.BasicBlock{
			Object: notionapi.ObjectTypeBlock,
			Type:   notionapi.BlockTypeToggle,
		},
		Toggle: notionapi.Toggle{
			RichText: []notionapi.RichText{newTextRichText(title)},
			Children: children,
		},
	}
}

// codeBlocks splits text across as many code blocks as the length limit needs,
// breaking on line boundaries where it can.
func codeBlocks(text, language string) []notionapi.Block {
	var blocks []notionapi.Block
	for _, chunk := range chunkText(text, maxTextLen) {
		blocks = append(blocks, newCodeBlock(chunk, language))
	}
	return blocks
}

func chunkText(text string, max int) []string {
	var chunks []string
	var cur strings.Builder

	flush := func() {
		if cur.Len() > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
	}

	for _, line := range strings.SplitAfter(text, "\n") {
		for len(line) > max {
			flush()
			cut := max
			for cut > 0 && !isRuneStart(line[cut]) {
				cut--
			}
			chunks = append(chunks, line[:cut])
			line = line[cut:]
		}
		if cur.Len()+len(line) > max {
			flush()
		}
		cur.WriteString(line)
	}
	flush()
	return chunks
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
