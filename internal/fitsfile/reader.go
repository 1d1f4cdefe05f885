package fitsfile

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Parsed is a header read back from a file.
type Parsed struct {
	Offset int64
	cards  map[string]string
	order  []string
}

// Keys returns the keywords in file order.
func (p *Parsed) Keys() []string { return p.order }

// String returns a string-valued keyword with quotes removed.
func (p *Parsed) String(key string) (string, bool) {
	v, ok := p.cards[key]
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	if strings.HasPrefix(v, "'") {
		v = strings.TrimPrefix(v, "'")
		if i := strings.LastIndex(v, "'"); i >= 0 {
			v = v[:i]
		}
		v = strings.TrimRight(strings.ReplaceAll(v, "''", "'"), " ")
	}
	return v, true
}

// Int returns an integer-valued keyword.
func (p *Parsed) Int(key string) (int, error) {
	v, ok := p.cards[key]
	if !ok {
		return 0, fmt.Errorf("keyword %s not present", key)
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("keyword %s: %w", key, err)
	}
	return n, nil
}

// Bool returns a logical keyword.
func (p *Parsed) Bool(key string) (bool, error) {
	v, ok := p.cards[key]
	if !ok {
		return false, fmt.Errorf("keyword %s not present", key)
	}
	switch strings.TrimSpace(v) {
	case "T":
		return true, nil
	case "F":
		return false, nil
	default:
		return false, fmt.Errorf("keyword %s: %q is not logical", key, v)
	}
}

// ReadHeaderAt reads the single-block header at off.
func ReadHeaderAt(r io.ReaderAt, off int64) (*Parsed, error) {
	buf := make([]byte, BlockSize)
	if _, err := io.ReadFull(io.NewSectionReader(r, off, BlockSize), buf); err != nil {
		return nil, fmt.Errorf("read header at %d: %w", off, err)
	}
	p := &Parsed{Offset: off, cards: make(map[string]string)}
	for i := 0; i < CardsPerBlock; i++ {
		card := string(buf[i*CardSize : (i+1)*CardSize])
		key := strings.TrimSpace(card[:8])
		if key == "END" {
			return p, nil
		}
		if len(card) < 10 || card[8:10] != "= " {
			continue
		}
		val := strings.TrimSpace(card[10:])
		if strings.HasPrefix(val, "'") {
			val = val[:closingQuote(val)+1]
		} else if j := strings.Index(val, "/"); j >= 0 {
			val = val[:j]
		}
		p.cards[key] = strings.TrimSpace(val)
		p.order = append(p.order, key)
	}
	return nil, fmt.Errorf("header at %d: no END card within one block", off)
}

// Extension is one region table read back from a file.
type Extension struct {
	Header *Parsed
	Data   []byte
	Next   int64
}

// ReadExtension reads the header and data of the extension at off.
func ReadExtension(r io.ReaderAt, off int64) (*Extension, error) {
	h, err := ReadHeaderAt(r, off)
	if err != nil {
		return nil, err
	}
	width, err := h.Int("NAXIS1")
	if err != nil {
		return nil, err
	}
	rows, err := h.Int("NAXIS2")
	if err != nil {
		return nil, err
	}
	n := int64(width) * int64(rows)
	data := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(io.NewSectionReader(r, off+BlockSize, n), data); err != nil {
			return nil, fmt.Errorf("read data at %d: %w", off+BlockSize, err)
		}
	}
	return &Extension{Header: h, Data: data, Next: off + BlockSize + PaddedSize(n)}, nil
}

// closingQuote returns the index of the quote ending a string value that
// starts at val[0]. Doubled quotes are escapes.
func closingQuote(val string) int {
	for i := 1; i < len(val); i++ {
		if val[i] != '\'' {
			continue
		}
		if i+1 < len(val) && val[i+1] == '\'' {
			i++
			continue
		}
		return i
	}
	return len(val) - 1
}
