package api

import (
	"bytes"
	"fmt"

	"github.com/yuin/goldmark"

	"search-scraper/pkg/utils"
)

var markdown = goldmark.New()

// RenderMarkdown converts a markdown answer to HTML
func RenderMarkdown(md string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(md), &buf); err != nil {
		return "", fmt.Errorf("%w: rendering markdown answer: %w", utils.ErrParsing, err)
	}
	return buf.String(), nil
}
