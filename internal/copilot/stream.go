// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package copilot

import (
	"strings"

	"github.com/jeranaias/coprelay/internal/workspace"
)

// The CLI is run-to-completion, so streaming is simulated: the
// finished response is re-chunked word by word in OpenAI delta format.

// StreamChunk is one delta frame.
type StreamChunk struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Choices []StreamChoice `json:"choices"`
}

// StreamChoice carries the delta. FinishReason is a pointer so
// non-terminal frames serialize it as null, matching OpenAI clients'
// expectations.
type StreamChoice struct {
	Index        int     `json:"index"`
	Delta        Delta   `json:"delta"`
	FinishReason *string `json:"finish_reason"`
}

// Delta is the incremental content of one frame.
type Delta struct {
	Content string `json:"content"`
}

// FilesChunk trails the deltas when the run created files.
type FilesChunk struct {
	ID         string                   `json:"id"`
	Object     string                   `json:"object"`
	Files      []workspace.FileArtifact `json:"files"`
	FilesCount int                      `json:"files_count"`
}

// StreamChunks splits a completed response into word-sized delta
// frames. Every word except the last keeps its trailing space so
// concatenating deltas reproduces the content exactly. Empty content
// still yields one terminal frame.
func StreamChunks(resp *ChatResponse) []StreamChunk {
	words := strings.Split(resp.Content(), " ")
	chunks := make([]StreamChunk, 0, len(words))
	for i, word := range words {
		choice := StreamChoice{Delta: Delta{Content: word + " "}}
		if i == len(words)-1 {
			choice.Delta.Content = word
			finish := "stop"
			choice.FinishReason = &finish
		}
		chunks = append(chunks, StreamChunk{
			ID:      resp.ID,
			Object:  "chat.completion.chunk",
			Choices: []StreamChoice{choice},
		})
	}
	return chunks
}

// BuildFilesChunk returns the trailing files frame, or nil when the
// run created none.
func BuildFilesChunk(resp *ChatResponse) *FilesChunk {
	if resp.FilesCount == 0 {
		return nil
	}
	return &FilesChunk{
		ID:         resp.ID,
		Object:     "chat.completion.files",
		Files:      resp.Files,
		FilesCount: resp.FilesCount,
	}
}
