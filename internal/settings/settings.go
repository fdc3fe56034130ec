package settings

import (
	"fmt"
	"strconv"
	"strings"
)

const DefaultSystemPrompt = "You are a helpful assistant. Give concise and informative answers."

// Storage keys, shared by every backend.
const (
	KeyAPIKey       = "groqApiKey"
	KeyModel        = "aiModel"
	KeyTheme        = "theme"
	KeyCustomPrompt = "customPrompt"
	KeyTransparency = "transparency"
)

var validThemes = map[string]bool{"auto": true, "light": true, "dark": true}

// Settings are the user-configurable panel options.
type Settings struct {
	APIKey       string `json:"groq_api_key"`
	Model        string `json:"ai_model"`
	Theme        string `json:"theme"`
	CustomPrompt string `json:"custom_prompt"`
	Transparency string `json:"transparency"`
}

// Defaults are the values in effect before anything has been stored.
func Defaults() Settings {
	return Settings{
		APIKey:       "",
		Model:        "llama3-70b-8192",
		Theme:        "auto",
		CustomPrompt: DefaultSystemPrompt,
		Transparency: "0.9",
	}
}

// SystemPrompt is the custom prompt, or the default when blank.
func (s Settings) SystemPrompt() string {
	if strings.TrimSpace(s.CustomPrompt) == "" {
		return DefaultSystemPrompt
	}
	return s.CustomPrompt
}

// Public is Settings without the credential, safe to hand back to a client.
type Public struct {
	HasAPIKey    bool   `json:"has_api_key"`
	Model        string `json:"ai_model"`
	Theme        string `json:"theme"`
	CustomPrompt string `json:"custom_prompt"`
	Transparency string `json:"transparency"`
}

func (s Settings) Public() Public {
	return Public{
		HasAPIKey:    strings.TrimSpace(s.APIKey) != "",
		Model:        s.Model,
		Theme:        s.Theme,
		CustomPrompt: s.CustomPrompt,
		Transparency: s.Transparency,
	}
}

// Update is a partial change; nil fields are left as they are.
type Update struct {
	APIKey       *string `json:"groq_api_key,omitempty"`
	Model        *string `json:"ai_model,omitempty"`
	Theme        *string `json:"theme,omitempty"`
	CustomPrompt *string `json:"custom_prompt,omitempty"`
	Transparency *string `json:"transparency,omitempty"`
}

func (u Update) Validate() error {
	if u.Model != nil && strings.TrimSpace(*u.Model) == "" {
		return fmt.Errorf("ai_model must not be empty")
	}
	if u.Theme != nil && !validThemes[*u.Theme] {
		return fmt.Errorf("theme must be one of auto|light|dark")
	}
	if u.Transparency != nil {
		v, err := strconv.ParseFloat(strings.TrimSpace(*u.Transparency), 64)
		if err != nil {
			return fmt.Errorf("transparency parse error: %w", err)
		}
		if v < 0 || v > 1 {
			return fmt.Errorf("transparency must be between 0 and 1")
		}
	}
	return nil
}

// values returns the stored key/value pairs the update writes.
func (u Update) values() map[string]string {
	out := make(map[string]string, 5)
	set := func(key string, v *string) {
		if v != nil {
			out[key] = strings.TrimSpace(*v)
		}
	}
	set(KeyAPIKey, u.APIKey)
	set(KeyModel, u.Model)
	set(KeyTheme, u.Theme)
	set(KeyTransparency, u.Transparency)
	if u.CustomPrompt != nil {
		out[KeyCustomPrompt] = *u.CustomPrompt
	}
	return out
}

// fromValues overlays stored values on Defaults.
func fromValues(values map[string]string) Settings {
	s := Defaults()
	if v, ok := values[KeyAPIKey]; ok {
		s.APIKey = v
	}
	if v, ok := values[KeyModel]; ok {
		s.Model = v
	}
	if v, ok := values[KeyTheme]; ok {
		s.Theme = v
	}
	if v, ok := values[KeyCustomPrompt]; ok {
		s.CustomPrompt = v
	}
	if v, ok := values[KeyTransparency]; ok {
		s.Transparency = v
	}
	return s
}
