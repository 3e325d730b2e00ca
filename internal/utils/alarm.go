package utils

import (
	"fmt"

	"github.com/suchimauz/quiet-hours-engine/internal/core/domain"
)

// AlarmPlaceholder выводится, когда бэкенд не сообщил будильник
const AlarmPlaceholder = "--"

// FormatAlarm возвращает будильник в виде "Mon 09:30"
func FormatAlarm(alarm *domain.Alarm) string {
	if alarm == nil {
		return AlarmPlaceholder
	}
	return fmt.Sprintf("%s %02d:%02d", alarm.Day, alarm.Hour, alarm.Minute)
}
