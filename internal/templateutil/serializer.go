package templateutil

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/pkg/errors"
)

// ComponentType identifies which part of a WhatsApp template a text belongs to
type ComponentType string

const (
	ComponentHeader ComponentType = "HEADER"
	ComponentBody   ComponentType = "BODY"
	ComponentFooter ComponentType = "FOOTER"
	ComponentButton ComponentType = "BUTTON"
)

// Unlimited marks a component that accepts any number of placeholders
const Unlimited = -1

const (
	HeaderTextLimit = 60
	BodyTextLimit   = 1024
	FooterTextLimit = 60
	ButtonTextLimit = 25
	ButtonURLLimit  = 2000
)

var (
	ErrUnknownComponent = errors.New("unknown template component")
	ErrTextTooLong      = errors.New("text exceeds component limit")
)

var placeholderPattern = regexp.MustCompile(`\{\{([1-9][0-9]*)\}\}`)

// Mapping associates a placeholder index ("1".."k") with a catalogue variable name
type Mapping map[string]string

// VariableReplacement describes one placeholder occurrence and the sequential token replacing it
type VariableReplacement struct {
	MatchString         string `json:"matchString"`
	MatchVariable       int    `json:"matchVariable"`
	StartIndex          int    `json:"startIndex"`
	EndIndex            int    `json:"endIndex"`
	ReplacementString   string `json:"replacementString"`
	ReplacementVariable int    `json:"replacementVariable"`
}

// Result is the consistent state of a component after its text changed
type Result struct {
	Text          string                `json:"text"`
	Mappings      Mapping               `json:"mappings"`
	Substitutions []string              `json:"substitutions"`
	Tokens        []VariableReplacement `json:"tokens"`
}

// TextLimit returns the maximum text length accepted for a component
func TextLimit(ct ComponentType) (int, error) {
	switch ct {
	case ComponentHeader:
		return HeaderTextLimit, nil
	case ComponentBody:
		return BodyTextLimit, nil
	case ComponentFooter:
		return FooterTextLimit, nil
	case ComponentButton:
		return ButtonURLLimit, nil
	}
	return 0, errors.Wrapf(ErrUnknownComponent, "%q", ct)
}

// PlaceholderLimit returns how many placeholders a component may carry
func PlaceholderLimit(ct ComponentType) (int, error) {
	switch ct {
	case ComponentHeader, ComponentButton:
		return 1, nil
	case ComponentBody:
		return Unlimited, nil
	case ComponentFooter:
		return 0, nil
	}
	return 0, errors.Wrapf(ErrUnknownComponent, "%q", ct)
}

// Placeholder formats the token for index n
func Placeholder(n int) string {
	return "{{" + strconv.Itoa(n) + "}}"
}

// FindVariablesAndReplacements scans text left to right. Occurrences are
// numbered by position, not by their original value, so "{{5}} {{2}}"
// yields replacements {{1}} and {{2}}.
func FindVariablesAndReplacements(text string) []VariableReplacement {
	matches := placeholderPattern.FindAllStringSubmatchIndex(text, -1)
	out := make([]VariableReplacement, 0, len(matches))
	for i, m := range matches {
		original, err := strconv.Atoi(text[m[2]:m[3]])
		if err != nil {
			// digits overflowing int still count as a token
			original = 0
		}
		out = append(out, VariableReplacement{
			MatchString:         text[m[0]:m[1]],
			MatchVariable:       original,
			StartIndex:          m[0],
			EndIndex:            m[1],
			ReplacementString:   Placeholder(i + 1),
			ReplacementVariable: i + 1,
		})
	}
	return out
}

// Serialize renumbers the placeholders of newText and resizes the mapping and
// substitution state to match. Any error means the edit must not be applied.
//
// Mappings are looked up by the new sequential key in existingMapping, so a
// value survives only when its index did not shift.
func Serialize(ct ComponentType, newText string, existingMapping Mapping, existingSubstitutions []string) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = fmt.Errorf("serialize %s: %v", ct, r)
		}
	}()

	limit, err := TextLimit(ct)
	if err != nil {
		return nil, err
	}
	if TextLength(newText) > limit {
		return nil, errors.Wrapf(ErrTextTooLong, "%s allows %d characters", ct, limit)
	}
	maxTokens, err := PlaceholderLimit(ct)
	if err != nil {
		return nil, err
	}

	tokens := FindVariablesAndReplacements(newText)
	// removing a marker can join the braces around it into a new token
	for maxTokens != Unlimited && len(tokens) > maxTokens {
		newText = removeTokens(newText, tokens[maxTokens:])
		tokens = FindVariablesAndReplacements(newText)
	}

	var b strings.Builder
	b.Grow(len(newText))
	last := 0
	for _, t := range tokens {
		b.WriteString(newText[last:t.StartIndex])
		b.WriteString(t.ReplacementString)
		last = t.EndIndex
	}
	b.WriteString(newText[last:])

	mappings := make(Mapping, len(tokens))
	substitutions := make([]string, len(tokens))
	for i, t := range tokens {
		key := strconv.Itoa(t.ReplacementVariable)
		if v, ok := existingMapping[key]; ok {
			mappings[key] = v
		} else {
			mappings[key] = ""
		}
		if i < len(existingSubstitutions) {
			substitutions[i] = existingSubstitutions[i]
		}
	}

	return &Result{
		Text:          b.String(),
		Mappings:      mappings,
		Substitutions: substitutions,
		Tokens:        tokens,
	}, nil
}

// removeTokens splices the marker text of the given tokens out of text.
func removeTokens(text string, drop []VariableReplacement) string {
	for i := len(drop) - 1; i >= 0; i-- {
		text = text[:drop[i].StartIndex] + text[drop[i].EndIndex:]
	}
	return text
}

// TextLength measures text in UTF-16 code units, the unit the provider's
// length limits are expressed in. Characters outside the BMP count twice.
func TextLength(text string) int {
	n := 0
	for _, r := range text {
		if l := utf16.RuneLen(r); l > 0 {
			n += l
		} else {
			n++
		}
	}
	return n
}

// CountPlaceholders returns the number of token occurrences in text
func CountPlaceholders(text string) int {
	return len(placeholderPattern.FindAllStringIndex(text, -1))
}
