package domain

// Alarm - момент срабатывания, как его сообщил бэкенд.
// Движок его не вычисляет и не проверяет.
type Alarm struct {
	Day    Weekday `json:"day"`
	Hour   int     `json:"hour"`
	Minute int     `json:"min"`
}

type AlarmInfo struct {
	Next *Alarm `json:"next-alarm"`
	Prev *Alarm `json:"prev-alarm"`
}
