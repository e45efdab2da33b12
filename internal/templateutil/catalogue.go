package templateutil

import (
	_ "embed"
	"strings"
	"sync"

	"github.com/nyaruka/phonenumbers"
	"gopkg.in/yaml.v3"
)

//go:embed variables.yaml
var variablesYAML []byte

// Variable is an entry of the fixed list a placeholder can be mapped to
type Variable struct {
	Name  string `yaml:"name" json:"name"`
	Label string `yaml:"label" json:"label"`
}

var (
	catalogueOnce sync.Once
	catalogue     []Variable
)

func loadCatalogue() {
	var doc struct {
		Variables []Variable `yaml:"variables"`
	}
	if err := yaml.Unmarshal(variablesYAML, &doc); err != nil {
		panic("templateutil: invalid variables.yaml: " + err.Error())
	}
	catalogue = doc.Variables
}

// Variables returns the catalogue in declaration order
func Variables() []Variable {
	catalogueOnce.Do(loadCatalogue)
	out := make([]Variable, len(catalogue))
	copy(out, catalogue)
	return out
}

// VariableNames returns the names placeholders may be mapped to
func VariableNames() []string {
	vars := Variables()
	names := make([]string, len(vars))
	for i, v := range vars {
		names[i] = v.Name
	}
	return names
}

// IsKnownVariable reports whether name is part of the catalogue
func IsKnownVariable(name string) bool {
	for _, v := range Variables() {
		if v.Name == name {
			return true
		}
	}
	return false
}

// IsValidPhoneNumber validates an international number. Inputs of five
// characters or fewer are considered not yet entered and pass.
func IsValidPhoneNumber(number string) bool {
	number = strings.TrimSpace(number)
	if len(number) <= 5 {
		return true
	}
	return IsCompletePhoneNumber(number)
}

// IsCompletePhoneNumber validates number without the short-input allowance
func IsCompletePhoneNumber(number string) bool {
	number = NormalizePhone(number)
	if number == "" {
		return false
	}
	parsed, err := phonenumbers.Parse(number, "")
	if err != nil {
		return false
	}
	return phonenumbers.IsValidNumber(parsed)
}

// NormalizePhone strips formatting and ensures a leading "+"
func NormalizePhone(number string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(number) {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return ""
	}
	return "+" + b.String()
}
