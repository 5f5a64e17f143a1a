package tools

import (
	"encoding/json"
	"strings"
)

// ContentBlock is one piece of tool output.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Result is the envelope returned for every dispatched call.
type Result struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError"`
}

// TextResult wraps text in a successful result.
func TextResult(text string) Result {
	return Result{Content: []ContentBlock{{Type: "text", Text: text}}}
}

// ErrorResult wraps an error message.
func ErrorResult(message string) Result {
	return Result{Content: []ContentBlock{{Type: "text", Text: message}}, IsError: true}
}

// JSONResult encodes payload as the text of a successful result.
func JSONResult(payload any) (Result, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Result{}, err
	}
	return TextResult(string(data)), nil
}

// Text concatenates all text blocks.
func (r Result) Text() string {
	var b strings.Builder
	for _, block := range r.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String()
}
