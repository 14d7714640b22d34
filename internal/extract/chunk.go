package extract

import "strings"

// Chunk is one retrievable window of a document.
type Chunk struct {
	Index     int
	Content   string
	WordCount int
}

// ChunkText splits text into overlapping word windows. Each chunk holds up
// to chunkWords words, and consecutive chunks share overlapWords words so
// sentences straddling a boundary stay retrievable.
func ChunkText(text string, chunkWords, overlapWords int) []Chunk {
	if chunkWords <= 0 {
		chunkWords = 400
	}
	if overlapWords < 0 {
		overlapWords = 0
	}
	if overlapWords >= chunkWords {
		overlapWords = chunkWords / 2
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	step := chunkWords - overlapWords
	var chunks []Chunk
	for start := 0; start < len(words); start += step {
		end := start + chunkWords
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, Chunk{
			Index:     len(chunks),
			Content:   strings.Join(words[start:end], " "),
			WordCount: end - start,
		})
		if end == len(words) {
			break
		}
	}
	return chunks
}
