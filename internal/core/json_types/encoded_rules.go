package json_types

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/suchimauz/quiet-hours-engine/internal/core/domain"
)

// EncodedRules - список правил, который на проводе передается строкой с
// JSON-массивом внутри: {"rules": "[{...}]"}.
// Снаружи пакета правила видны уже декодированными.
type EncodedRules []domain.Rule

func (r EncodedRules) MarshalJSON() ([]byte, error) {
	rules := []domain.Rule(r)
	if rules == nil {
		rules = []domain.Rule{}
	}

	inner, err := json.Marshal(rules)
	if err != nil {
		return nil, fmt.Errorf("failed to encode rules: %w", err)
	}
	return json.Marshal(string(inner))
}

var ErrRulesNull = errors.New("rules field is null")

func (r *EncodedRules) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return ErrRulesNull
	}

	var inner string
	if err := json.Unmarshal(data, &inner); err != nil {
		return fmt.Errorf("rules field is not a JSON string: %w", err)
	}

	// Пустой файл настроек на бэкенде дает пустую строку
	if inner == "" {
		*r = EncodedRules{}
		return nil
	}

	var rules []domain.Rule
	if err := json.Unmarshal([]byte(inner), &rules); err != nil {
		return fmt.Errorf("failed to decode rules: %w", err)
	}
	if rules == nil {
		rules = []domain.Rule{}
	}
	*r = EncodedRules(rules)
	return nil
}

// RulesPayload - тело event-started и event-rules-applied
type RulesPayload struct {
	Rules EncodedRules `json:"rules"`
}
