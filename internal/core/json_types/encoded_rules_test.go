package json_types

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/suchimauz/quiet-hours-engine/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRulesPayloadWireFormat(t *testing.T) {
	payload := RulesPayload{Rules: EncodedRules{
		{Serial: 1, Days: []domain.Weekday{domain.WeekdayMon}, Interval: 30, From: 9, To: 10, Saved: true},
	}}

	data, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"rules":"[{\"serial\":1,\"days\":[\"Mon\"],\"interval\":30,\"from\":9,\"to\":10}]"}`, string(data))
}

func TestRulesPayloadDecodesBothLayers(t *testing.T) {
	raw := `{"rules":"[{\"days\":[\"Tue\",\"Wed\"],\"from\":18,\"interval\":1,\"serial\":4,\"to\":19}]"}`

	var payload RulesPayload
	require.NoError(t, json.Unmarshal([]byte(raw), &payload))
	require.Len(t, payload.Rules, 1)

	rule := payload.Rules[0]
	assert.Equal(t, 4, rule.Serial)
	assert.Equal(t, []domain.Weekday{domain.WeekdayTue, domain.WeekdayWed}, rule.Days)
	assert.Equal(t, 18, rule.From)
	assert.Equal(t, 19, rule.To)
	assert.False(t, rule.Saved, "saved is never taken from the wire")
}

func TestRulesPayloadEmpty(t *testing.T) {
	for _, raw := range []string{`{"rules":"[]"}`, `{"rules":""}`} {
		var payload RulesPayload
		require.NoError(t, json.Unmarshal([]byte(raw), &payload), raw)
		assert.NotNil(t, payload.Rules)
		assert.Empty(t, payload.Rules)
	}

	data, err := json.Marshal(RulesPayload{Rules: EncodedRules{}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"rules":"[]"}`, string(data))
}

func TestRulesPayloadRejectsSingleEncoding(t *testing.T) {
	var payload RulesPayload
	err := json.Unmarshal([]byte(`{"rules":[{"serial":1}]}`), &payload)
	assert.Error(t, err)

	err = json.Unmarshal([]byte(`{"rules":"[{\"serial\":"}`), &payload)
	assert.Error(t, err)
}

func TestRulesPayloadRejectsNull(t *testing.T) {
	var payload RulesPayload
	err := json.Unmarshal([]byte(`{"rules":null}`), &payload)
	require.Error(t, err)
	assert.Nil(t, payload.Rules)
}
