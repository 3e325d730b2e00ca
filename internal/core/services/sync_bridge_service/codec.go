package sync_bridge_service

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/suchimauz/quiet-hours-engine/internal/core/domain"
	"github.com/suchimauz/quiet-hours-engine/internal/core/json_types"
)

// unwrapString снимает внешний слой, если бэкенд прислал тело события
// строкой с JSON внутри (так события отдает оконная оболочка).
func unwrapString(payload []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '"' {
		return trimmed, nil
	}

	var inner string
	if err := json.Unmarshal(trimmed, &inner); err != nil {
		return nil, err
	}
	return []byte(inner), nil
}

func decodeRulesPayload(payload []byte) ([]domain.Rule, error) {
	body, err := unwrapString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedPush, err)
	}

	var decoded json_types.RulesPayload
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedPush, err)
	}
	if decoded.Rules == nil {
		return nil, fmt.Errorf("%w: rules field is missing", domain.ErrMalformedPush)
	}

	return []domain.Rule(decoded.Rules), nil
}

func decodeAlarmPayload(payload []byte) (domain.AlarmInfo, error) {
	body, err := unwrapString(payload)
	if err != nil {
		return domain.AlarmInfo{}, fmt.Errorf("%w: %v", domain.ErrMalformedPush, err)
	}

	var info domain.AlarmInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return domain.AlarmInfo{}, fmt.Errorf("%w: %v", domain.ErrMalformedPush, err)
	}
	return info, nil
}
