package domain

import "github.com/goccy/go-json"

type CommandType string

const (
	CommandTypeStartup     CommandType = "cmd-startup"
	CommandTypeUpdateRules CommandType = "cmd-update-rules"
)

// Command - исходящий конверт для бэкенда.
// Для cmd-startup поле rules на проводе отсутствует.
type Command struct {
	Type  CommandType `json:"type"`
	Rules []Rule      `json:"rules"`
}

func (c Command) MarshalJSON() ([]byte, error) {
	if c.Type == CommandTypeStartup {
		return json.Marshal(struct {
			Type CommandType `json:"type"`
		}{Type: c.Type})
	}

	rules := c.Rules
	if rules == nil {
		rules = []Rule{}
	}
	return json.Marshal(struct {
		Type  CommandType `json:"type"`
		Rules []Rule      `json:"rules"`
	}{Type: c.Type, Rules: rules})
}

func NewStartupCommand() Command {
	return Command{Type: CommandTypeStartup}
}

func NewUpdateRulesCommand(rules []Rule) Command {
	// Пустой набор правил - тоже валидная команда, бэкенд должен его получить
	if rules == nil {
		rules = []Rule{}
	}
	return Command{
		Type:  CommandTypeUpdateRules,
		Rules: CloneRules(rules),
	}
}

type PushTopic string

const (
	PushTopicStarted      PushTopic = "event-started"
	PushTopicRulesApplied PushTopic = "event-rules-applied"
	PushTopicNextAlarm    PushTopic = "event-next-alarm"
)

// Push - входящее событие от бэкенда, тело еще не декодировано
type Push struct {
	ID      string
	Topic   PushTopic
	Payload []byte
}
