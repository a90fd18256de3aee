package tts

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

var (
	// ErrConfigNotFound is returned when a provider has no config file.
	ErrConfigNotFound = errors.New("provider config not found")

	// ErrMalformedConfig is returned when a provider config cannot be decoded.
	ErrMalformedConfig = errors.New("malformed provider config")

	// ErrNoVoices is returned when a provider config has no voices list.
	ErrNoVoices = errors.New("provider config has no voices")
)

// Voice is one entry of a provider's voice roster.
type Voice struct {
	Code             string  `json:"code"`
	Name             string  `json:"name,omitempty"`
	Alias            string  `json:"alias,omitempty"`
	UsedName         string  `json:"usedname,omitempty"`
	VolumeAdjustment float64 `json:"volume_adjustment,omitempty"`
	SpeedAdjustment  float64 `json:"speed_adjustment,omitempty"`
}

// DisplayName is the name speakers are introduced by in the script prompt.
func (v Voice) DisplayName() string {
	switch {
	case v.UsedName != "":
		return v.UsedName
	case v.Alias != "":
		return v.Alias
	default:
		return v.Name
	}
}

// ProviderConfig is the static, credential-free configuration of one provider.
type ProviderConfig struct {
	APIURL     string            `json:"apiUrl"`
	Headers    map[string]string `json:"headers,omitempty"`
	Voices     []Voice           `json:"voices"`
	MaxRetries int               `json:"tts_max_retries,omitempty"`

	// RequestPayload is the vendor body template. Numbers keep their
	// integer or float type so binary encoders see the intended kinds.
	RequestPayload map[string]any `json:"-"`

	// RawVoices keeps every voice field, including ones the service does not
	// interpret, for the voice listing endpoint.
	RawVoices []map[string]any `json:"-"`
}

// Voice looks up a voice by code.
func (c *ProviderConfig) Voice(code string) (Voice, bool) {
	for _, v := range c.Voices {
		if v.Code == code {
			return v, true
		}
	}
	return Voice{}, false
}

// LoadProviderConfig reads <dir>/<name>.json, falling back to <dir>/<name>.toml.
func LoadProviderConfig(dir, name string) (*ProviderConfig, error) {
	raw, err := readRaw(dir, name)
	if err != nil {
		return nil, err
	}
	return decodeProviderConfig(raw)
}

// LoadVoices returns the raw voice roster of a provider.
func LoadVoices(dir, name string) ([]map[string]any, error) {
	raw, err := readRaw(dir, name)
	if err != nil {
		return nil, err
	}
	if _, ok := raw["voices"]; !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrNoVoices)
	}
	cfg, err := decodeProviderConfig(raw)
	if err != nil {
		return nil, err
	}
	return cfg.RawVoices, nil
}

func readRaw(dir, name string) (map[string]any, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return nil, fmt.Errorf("%w: invalid provider name %q", ErrConfigNotFound, name)
	}

	jsonPath := filepath.Join(dir, name+".json")
	data, err := os.ReadFile(jsonPath)
	if err == nil {
		raw, err := decodeJSONObject(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedConfig, jsonPath, err)
		}
		return raw, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading %s: %w", jsonPath, err)
	}

	tomlPath := filepath.Join(dir, name+".toml")
	data, err = os.ReadFile(tomlPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, name)
		}
		return nil, fmt.Errorf("reading %s: %w", tomlPath, err)
	}
	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedConfig, tomlPath, err)
	}
	return raw, nil
}

func decodeProviderConfig(raw map[string]any) (*ProviderConfig, error) {
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedConfig, err)
	}
	var cfg ProviderConfig
	if err := json.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedConfig, err)
	}

	if payload, ok := raw["request_payload"].(map[string]any); ok {
		cfg.RequestPayload = payload
	}
	if voices, ok := raw["voices"].([]any); ok {
		for _, v := range voices {
			if m, ok := v.(map[string]any); ok {
				cfg.RawVoices = append(cfg.RawVoices, m)
			}
		}
	}
	return &cfg, nil
}

// decodeJSONObject decodes a JSON object keeping integers as int64.
func decodeJSONObject(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, errors.New("expected a JSON object")
	}
	return normalizeNumbers(raw).(map[string]any), nil
}

func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			t[k] = normalizeNumbers(val)
		}
		return t
	case []any:
		for i, val := range t {
			t[i] = normalizeNumbers(val)
		}
		return t
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	default:
		return v
	}
}

// Credentials holds the secrets for one provider, keyed by placeholder name
// (e.g. "api_key", "group_id", "X-Api-App-Id").
type Credentials map[string]string

// CredentialKey maps a provider name to its entry in the credentials blob:
// "doubao-tts" -> "doubao", "fish-audio" -> "fish", "minimax" -> "minimax".
func CredentialKey(provider string) string {
	key, _, _ := strings.Cut(provider, "-")
	return key
}

// ParseCredentials extracts the provider's credentials from a JSON blob of
// the form {"doubao": {...}, "fish": {...}}. An empty blob yields no credentials.
func ParseCredentials(blob []byte, provider string) (Credentials, error) {
	if len(bytes.TrimSpace(blob)) == 0 {
		return Credentials{}, nil
	}
	var all map[string]map[string]any
	if err := json.Unmarshal(blob, &all); err != nil {
		return nil, fmt.Errorf("decoding provider credentials: %w", err)
	}
	creds := Credentials{}
	for k, v := range all[CredentialKey(provider)] {
		switch t := v.(type) {
		case string:
			creds[k] = t
		case nil:
		default:
			creds[k] = fmt.Sprint(t)
		}
	}
	return creds, nil
}

// expand substitutes every {{key}} placeholder with its credential value.
func (c Credentials) expand(s string) string {
	if !strings.Contains(s, "{{") {
		return s
	}
	pairs := make([]string, 0, len(c)*2)
	for k, v := range c {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	return strings.NewReplacer(pairs...).Replace(s)
}

func (c Credentials) require(provider string, keys ...string) error {
	var missing []string
	for _, k := range keys {
		if strings.TrimSpace(c[k]) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%s: missing credentials: %s", provider, strings.Join(missing, ", "))
	}
	return nil
}
