package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/samber/lo"
)

// Rejection reasons, reported verbatim to the submitting client.
const (
	reasonTooShort     = "too short"
	reasonWrongLetter  = "wrong starting letter"
	reasonAlreadyUsed  = "word already used"
	reasonNotADictWord = "not a dictionary word"
)

// wordRejected is a rule violation for a submitted word. It never indicates
// a server fault; the reason is safe to show to the player.
type wordRejected struct {
	reason string
}

func (e *wordRejected) Error() string {
	return e.reason
}

func rejectWord(reason string) error {
	return &wordRejected{reason: reason}
}

// Dictionary reports whether a word exists in some external lexicon.
type Dictionary interface {
	Contains(ctx context.Context, word string) (bool, error)
}

// firstLetter and lastLetter operate on lowercased runes so chaining is
// case-insensitive and survives multi-byte input.
func firstLetter(word string) rune {
	for _, r := range word {
		return unicode.ToLower(r)
	}
	return 0
}

func lastLetter(word string) rune {
	var last rune
	for _, r := range word {
		last = unicode.ToLower(r)
	}
	return last
}

// validateWord applies the chaining rules in order: length, starting letter,
// uniqueness. The first failure wins. No side effects.
func validateWord(candidate string, history []string, minLength int) error {
	trimmed := strings.TrimSpace(candidate)

	if len([]rune(trimmed)) < minLength {
		return rejectWord(reasonTooShort)
	}

	if len(history) > 0 && firstLetter(trimmed) != lastLetter(history[len(history)-1]) {
		return rejectWord(reasonWrongLetter)
	}

	if lo.SomeBy(history, func(used string) bool {
		return strings.EqualFold(used, trimmed)
	}) {
		return rejectWord(reasonAlreadyUsed)
	}

	return nil
}

// validator bundles the pure chaining rules with an optional external
// dictionary lookup.
type validator struct {
	minLength int
	dict      Dictionary
}

// check runs validateWord and then, if a dictionary is configured, verifies
// the word exists. An unreachable dictionary never fails the submission:
// the word is accepted unchecked and degraded=true is returned so the
// caller can log the fact.
func (v *validator) check(ctx context.Context, candidate string, history []string) (reject error, degraded bool) {
	if err := validateWord(candidate, history, v.minLength); err != nil {
		return err, false
	}

	if v.dict == nil {
		return nil, false
	}

	found, err := v.dict.Contains(ctx, strings.ToLower(strings.TrimSpace(candidate)))
	if err != nil {
		return nil, true
	}
	if !found {
		return rejectWord(reasonNotADictWord), false
	}

	return nil, false
}

// apiDictionary looks words up against a dictionaryapi.dev-style endpoint:
// GET {base}/{word} answers 200 for known words and 404 for unknown ones.
type apiDictionary struct {
	baseURL string
	client  *http.Client
}

func newAPIDictionary(baseURL string) *apiDictionary {
	return &apiDictionary{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

func (d *apiDictionary) Contains(ctx context.Context, word string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/"+url.PathEscape(word), nil)
	if err != nil {
		return false, err
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("dictionary lookup for %q: unexpected status %d", word, resp.StatusCode)
	}
}
