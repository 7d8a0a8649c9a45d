package views

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Default button labels. Labels double as the command grammar of the main menu.
const (
	DefaultConsultLabel = "Consultar Folio"
	DefaultAILabel      = "Asistente IA"
	DefaultSupportLabel = "Soporte"
	DefaultBackLabel    = "Volver Al Menú Principal"
)

// DefaultResetTokens are accepted in every state to return to the main menu.
// The back label is always accepted in addition to these.
var DefaultResetTokens = []string{"/start", "menu", "volver"}

// Command is a main-menu selection recognized from user text.
type Command int

const (
	CommandNone Command = iota
	CommandConsult
	CommandAI
	CommandSupport
)

func (c Command) String() string {
	switch c {
	case CommandConsult:
		return "consult"
	case CommandAI:
		return "ai"
	case CommandSupport:
		return "support"
	default:
		return "none"
	}
}

// Vocabulary holds the button labels and reset tokens. It is configuration:
// labels can be changed without touching the conversation engine.
type Vocabulary struct {
	ConsultLabel string   `mapstructure:"consult_label" yaml:"consult_label"`
	AILabel      string   `mapstructure:"ai_label" yaml:"ai_label"`
	SupportLabel string   `mapstructure:"support_label" yaml:"support_label"`
	BackLabel    string   `mapstructure:"back_label" yaml:"back_label"`
	ResetTokens  []string `mapstructure:"reset_tokens" yaml:"reset_tokens"`
}

// DefaultVocabulary returns the Spanish vocabulary used by XROM Systems.
func DefaultVocabulary() Vocabulary {
	tokens := make([]string, len(DefaultResetTokens))
	copy(tokens, DefaultResetTokens)
	return Vocabulary{
		ConsultLabel: DefaultConsultLabel,
		AILabel:      DefaultAILabel,
		SupportLabel: DefaultSupportLabel,
		BackLabel:    DefaultBackLabel,
		ResetTokens:  tokens,
	}
}

// withDefaults fills empty labels from the default vocabulary.
func (v Vocabulary) withDefaults() Vocabulary {
	def := DefaultVocabulary()
	if v.ConsultLabel == "" {
		v.ConsultLabel = def.ConsultLabel
	}
	if v.AILabel == "" {
		v.AILabel = def.AILabel
	}
	if v.SupportLabel == "" {
		v.SupportLabel = def.SupportLabel
	}
	if v.BackLabel == "" {
		v.BackLabel = def.BackLabel
	}
	if len(v.ResetTokens) == 0 {
		v.ResetTokens = def.ResetTokens
	}
	return v
}

// MainMenuButtons returns the three main-menu labels in display order.
func (v Vocabulary) MainMenuButtons() []string {
	return []string{v.ConsultLabel, v.AILabel, v.SupportLabel}
}

// BackButtons returns the single back-to-menu label.
func (v Vocabulary) BackButtons() []string {
	return []string{v.BackLabel}
}

// IsReset reports whether text is a reset token or the back label.
func (v Vocabulary) IsReset(text string) bool {
	n := Normalize(text)
	if n == "" {
		return false
	}
	if n == Normalize(v.BackLabel) {
		return true
	}
	for _, tok := range v.ResetTokens {
		if n == Normalize(tok) {
			return true
		}
	}
	return false
}

// Command maps text to a main-menu selection.
func (v Vocabulary) Command(text string) Command {
	n := Normalize(text)
	switch {
	case n == "":
		return CommandNone
	case n == Normalize(v.ConsultLabel):
		return CommandConsult
	case n == Normalize(v.AILabel):
		return CommandAI
	case n == Normalize(v.SupportLabel):
		return CommandSupport
	default:
		return CommandNone
	}
}

// Normalize folds case, strips diacritics and collapses whitespace so that
// "  VOLVER al menu   principal" and "Volver Al Menú Principal" compare equal.
func Normalize(s string) string {
	// Transformers and casers keep internal state; build them per call.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	folded := cases.Fold().String(stripped)
	return strings.Join(strings.Fields(folded), " ")
}
