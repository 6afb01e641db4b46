package tokenizer

import (
	"context"
	"fmt"
	"strings"
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// charsPerToken approximates token size when no encoding is loaded.
const charsPerToken = 4

// Tokenizer counts and trims text using tiktoken encodings.
//
// tiktoken fetches its BPE ranks over the network on first use, with no
// timeout. Loading therefore happens in the background: Warm or Preload
// start it, and CountTokens and Truncate only use an encoding that has
// already finished loading.
type Tokenizer struct {
	load   LoadFunc
	cl100k encoding
	o200k  encoding
}

// LoadFunc returns the named tiktoken encoding. It may block on the network.
type LoadFunc func(name string) (*tiktoken.Tiktoken, error)

type encoding struct {
	once sync.Once
	done chan struct{}
	enc  *tiktoken.Tiktoken
	err  error
}

func (e *encoding) start(name string, load LoadFunc) {
	e.once.Do(func() {
		e.done = make(chan struct{})
		go func() {
			defer close(e.done)
			defer func() {
				if r := recover(); r != nil {
					e.err = fmt.Errorf("loading %s: %v", name, r)
				}
			}()
			e.enc, e.err = load(name)
		}()
	})
}

// ready returns the encoder without waiting. It is nil while loading is in
// flight or after loading failed.
func (e *encoding) ready(name string, load LoadFunc) *tiktoken.Tiktoken {
	e.start(name, load)
	select {
	case <-e.done:
		if e.err != nil {
			return nil
		}
		return e.enc
	default:
		return nil
	}
}

func (e *encoding) wait(ctx context.Context, name string, load LoadFunc) error {
	e.start(name, load)
	select {
	case <-e.done:
		return e.err
	case <-ctx.Done():
		return fmt.Errorf("loading %s: %w", name, ctx.Err())
	}
}

// modelEncodings maps completion model names to their tiktoken encoding.
var modelEncodings = map[string]string{
	"gpt-3.5-turbo": "cl100k_base",
	"gpt-4":         "cl100k_base",
	"gpt-4-turbo":   "cl100k_base",

	"gpt-4o":                 "o200k_base",
	"gpt-4o-2024-08-06":      "o200k_base",
	"gpt-4o-mini":            "o200k_base",
	"gpt-4o-mini-2024-07-18": "o200k_base",
	"gpt-4.1":                "o200k_base",
	"gpt-4.1-mini":           "o200k_base",
	"o1":                     "o200k_base",
	"o3":                     "o200k_base",
	"o4-mini":                "o200k_base",
}

// New creates a Tokenizer that loads encodings from tiktoken's default source.
func New() *Tokenizer {
	return NewWithLoader(tiktoken.GetEncoding)
}

// NewWithLoader creates a Tokenizer that obtains encodings from load.
func NewWithLoader(load LoadFunc) *Tokenizer {
	return &Tokenizer{load: load}
}

// GetEncoding returns the encoding name for the given model.
// Unknown models default to cl100k_base.
func (t *Tokenizer) GetEncoding(model string) string {
	if enc, ok := modelEncodings[model]; ok {
		return enc
	}

	// Longest prefix wins so "gpt-4o-mini-x" does not resolve as "gpt-4".
	lower := strings.ToLower(model)
	best, bestLen := "", 0
	for m, enc := range modelEncodings {
		if strings.HasPrefix(lower, m) && len(m) > bestLen {
			best, bestLen = enc, len(m)
		}
	}
	if best != "" {
		return best
	}

	return "cl100k_base"
}

func (t *Tokenizer) encodingFor(model string) (*encoding, string) {
	if name := t.GetEncoding(model); name == "o200k_base" {
		return &t.o200k, name
	}
	return &t.cl100k, "cl100k_base"
}

// Warm starts loading the encoding for model in the background.
func (t *Tokenizer) Warm(model string) {
	e, name := t.encodingFor(model)
	e.start(name, t.load)
}

// Preload loads the encoding for model and waits until it is ready or ctx
// ends. A load abandoned by ctx keeps running and is used once it finishes.
func (t *Tokenizer) Preload(ctx context.Context, model string) error {
	e, name := t.encodingFor(model)
	return e.wait(ctx, name, t.load)
}

func (t *Tokenizer) getEncoder(model string) *tiktoken.Tiktoken {
	e, name := t.encodingFor(model)
	return e.ready(name, t.load)
}

// CountTokens counts the tokens in text for the specified model. It returns 0
// until the encoding has loaded.
func (t *Tokenizer) CountTokens(model, text string) int {
	enc := t.getEncoder(model)
	if enc == nil {
		return 0
	}
	return len(enc.Encode(text, nil, nil))
}

// Truncate shortens text to at most budget tokens, cutting back to the last
// whole line when one exists. It reports whether anything was removed. A
// budget of zero or less disables truncation. Without an encoding the budget
// is approximated as four characters per token. Truncate never waits for an
// encoding to load.
func (t *Tokenizer) Truncate(model, text string, budget int) (string, bool) {
	if budget <= 0 || text == "" {
		return text, false
	}

	var cut string
	if enc := t.getEncoder(model); enc != nil {
		tokens := enc.Encode(text, nil, nil)
		if len(tokens) <= budget {
			return text, false
		}
		cut = enc.Decode(tokens[:budget])
	} else {
		runes := []rune(text)
		if len(runes) <= budget*charsPerToken {
			return text, false
		}
		cut = string(runes[:budget*charsPerToken])
	}

	if i := strings.LastIndexByte(cut, '\n'); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " \t\n"), true
}
