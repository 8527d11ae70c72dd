package gateway

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Settings are the host-managed gateway options. Loaded once per request
// scope and immutable for its duration.
type Settings struct {
	ClientID     string `validate:"required"`
	ClientSecret string `validate:"required"`
	Sandbox      bool
	LogEnabled   bool
}

// Field describes one settings-form field contributed to the host's
// payment settings screen.
type Field struct {
	Key   string
	Label string
	Kind  string
	Help  string
}

// SettingsFields returns the four fields this gateway contributes.
func SettingsFields() []Field {
	return []Field{
		{Key: "client_id", Label: "Client ID", Kind: "text"},
		{Key: "client_secret", Label: "Client Secret", Kind: "text"},
		{Key: "sandbox", Label: "Sandbox Mode", Kind: "yesno", Help: "MercadoPago sandbox can be used to test payments."},
		{Key: "log", Label: "Debug Log", Kind: "yesno", Help: "Log MercadoPago events, such as API requests."},
	}
}

var settingsValidator = validator.New()

// ValidateOptions sanitises raw settings input against the current
// settings. Empty credential inputs keep the stored values; boolean
// toggles are only applied when present.
func (s Settings) ValidateOptions(input map[string]string) (Settings, error) {
	out := s
	if v := strings.TrimSpace(input["client_id"]); v != "" {
		out.ClientID = v
	}
	if v := strings.TrimSpace(input["client_secret"]); v != "" {
		out.ClientSecret = v
	}
	if v, ok := input["sandbox"]; ok {
		out.Sandbox = parseYesNo(v)
	}
	if v, ok := input["log"]; ok {
		out.LogEnabled = parseYesNo(v)
	}
	if err := settingsValidator.Struct(out); err != nil {
		return s, fmt.Errorf("gateway: invalid settings: %w", err)
	}
	return out, nil
}

func parseYesNo(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "yes", "1", "true", "on":
		return true
	default:
		return false
	}
}
