package locale

import (
	"embed"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"eitc-assistant/internal/domain"
)

// String keys every supported locale must define.
const (
	KeyWelcome                = "welcome"
	KeyInputPlaceholder       = "input_placeholder"
	KeyThinking               = "thinking"
	KeyNewSession             = "new_session"
	KeyErrorGeneric           = "error_generic"
	KeyErrorNetwork           = "error_network"
	KeyErrorRateLimited       = "error_rate_limited"
	KeyErrorAuth              = "error_auth"
	KeyErrorClient            = "error_client"
	KeyErrorBusy              = "error_busy"
	KeyErrorEmpty             = "error_empty"
	KeyFeedbackPrompt         = "feedback_prompt"
	KeyFeedbackThanks         = "feedback_thanks"
	KeyFeedbackFailed         = "feedback_failed"
	KeyFeedbackRatingRequired = "feedback_rating_required"
	KeyFeedbackNotAllowed     = "feedback_not_allowed"
	KeyCalculatorTitle        = "calculator_title"
	KeyCalculatorFailed       = "calculator_failed"
	KeyCalculatorEligible     = "calculator_eligible"
	KeyCalculatorNotEligible  = "calculator_not_eligible"
	KeyLoginRequired          = "login_required"
	KeyLoginFailed            = "login_failed"
	KeyQuickEligibility       = "quick_eligibility"
	KeyQuickIncomeLimits      = "quick_income_limits"
	KeyQuickQualifyingChild   = "quick_qualifying_child"
	KeyQuickHowToClaim        = "quick_how_to_claim"
	KeyQuickCalculator        = "quick_calculator"
)

// Keys lists the fixed key set.
var Keys = []string{
	KeyWelcome, KeyInputPlaceholder, KeyThinking, KeyNewSession,
	KeyErrorGeneric, KeyErrorNetwork, KeyErrorRateLimited, KeyErrorAuth,
	KeyErrorClient, KeyErrorBusy, KeyErrorEmpty,
	KeyFeedbackPrompt, KeyFeedbackThanks, KeyFeedbackFailed,
	KeyFeedbackRatingRequired, KeyFeedbackNotAllowed,
	KeyCalculatorTitle, KeyCalculatorFailed, KeyCalculatorEligible, KeyCalculatorNotEligible,
	KeyLoginRequired, KeyLoginFailed,
	KeyQuickEligibility, KeyQuickIncomeLimits, KeyQuickQualifyingChild,
	KeyQuickHowToClaim, KeyQuickCalculator,
}

const (
	English = "en"
	Spanish = "es"
	Default = English
)

// Table maps string keys to text for one locale.
type Table map[string]string

// Get returns the text for key, or "" when absent.
func (t Table) Get(key string) string {
	return t[key]
}

type tableFile struct {
	Name    string            `yaml:"name"`
	Strings map[string]string `yaml:"strings"`
}

//go:embed locales/*.yaml
var localeFS embed.FS

type catalog struct {
	names  map[string]string
	tables map[string]Table
}

var builtin = mustParse(localeFS, []string{English, Spanish})

func mustParse(fs embed.FS, codes []string) catalog {
	c, err := parse(fs, codes)
	if err != nil {
		panic(err)
	}
	return c
}

func parse(fs embed.FS, codes []string) (catalog, error) {
	c := catalog{names: map[string]string{}, tables: map[string]Table{}}
	for _, code := range codes {
		raw, err := fs.ReadFile("locales/" + code + ".yaml")
		if err != nil {
			return catalog{}, fmt.Errorf("locale: read %s table: %w", code, err)
		}
		var f tableFile
		if err := yaml.Unmarshal(raw, &f); err != nil {
			return catalog{}, fmt.Errorf("locale: parse %s table: %w", code, err)
		}
		c.names[code] = f.Name
		c.tables[code] = Table(f.Strings)
	}
	return c, nil
}

// Supported reports whether code is one of the closed set of locales.
func Supported(code string) bool {
	_, ok := builtin.tables[code]
	return ok
}

// Lookup resolves key in the table for code.
func Lookup(code, key string) string {
	return builtin.tables[code].Get(key)
}

// TableFor returns the string table for code, or nil when unsupported.
func TableFor(code string) Table {
	return builtin.tables[code]
}

// Languages lists supported locales ordered by code.
func Languages() []domain.Language {
	out := make([]domain.Language, 0, len(builtin.names))
	for code, name := range builtin.names {
		out = append(out, domain.Language{Code: code, Name: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}
