package fitsfile

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/bft-labs/pixport/internal/domain"
)

// Sizes of the FITS logical records.
const (
	BlockSize     = 2880
	CardSize      = 80
	CardsPerBlock = BlockSize / CardSize
)

// Card is one 80-character header record. A nil Value writes a
// keyword-only card such as END.
type Card struct {
	Key     string
	Value   interface{}
	Comment string
}

func formatValue(v interface{}) (string, error) {
	switch x := v.(type) {
	case bool:
		if x {
			return fmt.Sprintf("%20s", "T"), nil
		}
		return fmt.Sprintf("%20s", "F"), nil
	case int:
		return fmt.Sprintf("%20d", x), nil
	case int32:
		return fmt.Sprintf("%20d", x), nil
	case int64:
		return fmt.Sprintf("%20d", x), nil
	case float32:
		return fmt.Sprintf("%20s", strconv.FormatFloat(float64(x), 'E', -1, 32)), nil
	case float64:
		return fmt.Sprintf("%20s", strconv.FormatFloat(x, 'E', -1, 64)), nil
	case string:
		q := strings.ReplaceAll(x, "'", "''")
		if len(q) < 8 {
			q += strings.Repeat(" ", 8-len(q))
		}
		return fmt.Sprintf("%-20s", "'"+q+"'"), nil
	default:
		return "", fmt.Errorf("unsupported card value %T", v)
	}
}

// Encode renders the card as exactly CardSize bytes.
func (c Card) Encode() ([]byte, error) {
	if len(c.Key) > 8 {
		return nil, fmt.Errorf("keyword %q longer than 8 characters", c.Key)
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%-8s", c.Key))
	if c.Value != nil {
		v, err := formatValue(c.Value)
		if err != nil {
			return nil, fmt.Errorf("keyword %s: %w", c.Key, err)
		}
		b.WriteString("= ")
		b.WriteString(v)
		if c.Comment != "" {
			b.WriteString(" / ")
			b.WriteString(c.Comment)
		}
	}
	s := b.String()
	if len(s) > CardSize {
		if c.Value != nil && len(s)-len(c.Comment) <= CardSize {
			s = s[:CardSize]
		} else {
			return nil, fmt.Errorf("keyword %s: value does not fit a card", c.Key)
		}
	}
	out := make([]byte, CardSize)
	copy(out, s)
	for i := len(s); i < CardSize; i++ {
		out[i] = ' '
	}
	return out, nil
}

// Header is an ordered list of cards, END excluded.
type Header []Card

// Encode renders the header, END card included, into exactly one block.
func (h Header) Encode() ([]byte, error) {
	if len(h)+1 > CardsPerBlock {
		return nil, fmt.Errorf("%w: %d cards exceed one block", domain.ErrHeaderOverflow, len(h)+1)
	}
	var buf bytes.Buffer
	buf.Grow(BlockSize)
	for _, c := range h {
		b, err := c.Encode()
		if err != nil {
			return nil, err
		}
		buf.Write(b)
	}
	end, _ := Card{Key: "END"}.Encode()
	buf.Write(end)
	for buf.Len() < BlockSize {
		buf.WriteByte(' ')
	}
	return buf.Bytes(), nil
}

// PaddedSize rounds n up to a whole number of blocks.
func PaddedSize(n int64) int64 {
	if r := n % BlockSize; r != 0 {
		return n + BlockSize - r
	}
	return n
}
