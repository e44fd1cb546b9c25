package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateWord(t *testing.T) {
	tests := []struct {
		name      string
		candidate string
		history   []string
		want      string // expected rejection reason, "" for accepted
	}{
		{name: "first word accepted", candidate: "train", history: nil, want: ""},
		{name: "chained word accepted", candidate: "nest", history: []string{"train"}, want: ""},
		{name: "too short", candidate: "cat", history: nil, want: reasonTooShort},
		{name: "too short after trimming", candidate: "  cat  ", history: nil, want: reasonTooShort},
		{name: "whitespace only", candidate: "      ", history: nil, want: reasonTooShort},
		{name: "wrong starting letter", candidate: "apple", history: []string{"train"}, want: reasonWrongLetter},
		{name: "chain is case-insensitive", candidate: "Nest", history: []string{"traiN"}, want: ""},
		{name: "duplicate", candidate: "train", history: []string{"train", "nest"}, want: reasonAlreadyUsed},
		{name: "duplicate is case-insensitive", candidate: "TRAIN", history: []string{"train", "nest"}, want: reasonAlreadyUsed},
		{name: "length checked before chaining", candidate: "ox", history: []string{"train"}, want: reasonTooShort},
		{name: "chaining checked before duplicates", candidate: "apple", history: []string{"tulip", "apple"}, want: reasonWrongLetter},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := validateWord(tc.candidate, tc.history, 4)
			if tc.want == "" {
				require.NoError(t, err)
			} else {
				require.EqualError(t, err, tc.want)
			}
		})
	}
}

func TestValidateWordMinLength(t *testing.T) {
	require.NoError(t, validateWord("cat", nil, 3))
	require.EqualError(t, validateWord("cat", nil, 4), reasonTooShort)
}

type stubDictionary struct {
	known map[string]bool
	err   error
	calls int
}

func (d *stubDictionary) Contains(_ context.Context, word string) (bool, error) {
	d.calls++
	if d.err != nil {
		return false, d.err
	}
	return d.known[word], nil
}

func TestValidatorDictionary(t *testing.T) {
	dict := &stubDictionary{known: map[string]bool{"train": true}}
	v := &validator{minLength: 4, dict: dict}

	reject, degraded := v.check(context.Background(), "train", nil)
	require.NoError(t, reject)
	assert.False(t, degraded)

	reject, degraded = v.check(context.Background(), "zzzz", nil)
	require.EqualError(t, reject, reasonNotADictWord)
	assert.False(t, degraded)
}

func TestValidatorDictionaryDegradedMode(t *testing.T) {
	dict := &stubDictionary{err: errors.New("connection refused")}
	v := &validator{minLength: 4, dict: dict}

	reject, degraded := v.check(context.Background(), "train", nil)
	require.NoError(t, reject, "an unreachable dictionary must never fail a submission")
	assert.True(t, degraded)
}

func TestValidatorDictionarySkippedOnRuleViolation(t *testing.T) {
	dict := &stubDictionary{known: map[string]bool{"cat": true}}
	v := &validator{minLength: 4, dict: dict}

	reject, _ := v.check(context.Background(), "cat", nil)
	require.EqualError(t, reject, reasonTooShort)
	assert.Zero(t, dict.calls, "dictionary must not be consulted for words the pure rules reject")
}

func TestAPIDictionary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/train":
			w.WriteHeader(http.StatusOK)
		case "/zzzz":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	dict := newAPIDictionary(srv.URL)

	found, err := dict.Contains(context.Background(), "train")
	require.NoError(t, err)
	assert.True(t, found)

	found, err = dict.Contains(context.Background(), "zzzz")
	require.NoError(t, err)
	assert.False(t, found)

	_, err = dict.Contains(context.Background(), "boom")
	require.Error(t, err)
}
