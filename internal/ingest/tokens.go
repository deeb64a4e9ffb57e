package ingest

import (
	"fmt"

	"github.com/tiktoken-go/tokenizer"
)

// TokenCounter counts model tokens in a chunk's text.
type TokenCounter interface {
	Count(text string) (int, error)
}

// TiktokenCounter counts tokens with a tiktoken encoding.
type TiktokenCounter struct {
	codec tokenizer.Codec
}

// NewTiktokenCounter returns a counter using the cl100k_base encoding.
func NewTiktokenCounter() (*TiktokenCounter, error) {
	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		return nil, fmt.Errorf("load cl100k_base encoding: %w", err)
	}
	return &TiktokenCounter{codec: codec}, nil
}

// Count returns the number of tokens in text.
func (c *TiktokenCounter) Count(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	ids, _, err := c.codec.Encode(text)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}
