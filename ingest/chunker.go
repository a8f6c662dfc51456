package ingest

import (
	"strings"

	"docufi/model"
	"docufi/types"

	"github.com/google/uuid"
)

// Chunker splits parsed pages into embedding-sized spans. Sizes are in
// words; Overlap words are repeated between adjacent text chunks so no
// sentence is stranded on a boundary.
type Chunker struct {
	ChunkSize int
	Overlap   int
}

func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = 200
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	return &Chunker{ChunkSize: size, Overlap: overlap}
}

// Split produces the chunk sequence for a document: pages in ascending
// order, text windows in page order, each table as a single unsplit
// chunk after the page text. Index is document-wide, Ordinal restarts
// per page.
func (c *Chunker) Split(docID uuid.UUID, pages []model.Page) []types.Chunk {
	var chunks []types.Chunk
	index := 0

	for _, page := range pages {
		ordinal := 0
		c.addTextChunks(&chunks, docID, page, &index, &ordinal)

		for _, table := range page.Tables {
			if strings.TrimSpace(table) == "" {
				continue
			}
			chunks = append(chunks, types.Chunk{
				DocID:   docID,
				Index:   index,
				Page:    page.Number,
				Ordinal: ordinal,
				Table:   true,
				Content: table,
			})
			index++
			ordinal++
		}
	}
	return chunks
}

func (c *Chunker) addTextChunks(chunks *[]types.Chunk, docID uuid.UUID, page model.Page, index, ordinal *int) {
	words := strings.Fields(page.Text)

	for i := 0; i < len(words); i += c.ChunkSize - c.Overlap {
		end := i + c.ChunkSize
		if end > len(words) {
			end = len(words)
		}

		content := strings.Join(words[i:end], " ")
		if strings.TrimSpace(content) == "" {
			continue
		}

		*chunks = append(*chunks, types.Chunk{
			DocID:   docID,
			Index:   *index,
			Page:    page.Number,
			Ordinal: *ordinal,
			Content: content,
		})

		*index++
		*ordinal++

		if end == len(words) {
			break
		}
	}
}
