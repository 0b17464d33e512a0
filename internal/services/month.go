package mlm

import "time"

const monthLayout = "2006-01"

// Ключ месяца "YYYY-MM"
func MonthKey(t time.Time) string {
	return t.Format(monthLayout)
}

// Предыдущий месяц для ключа "YYYY-MM"; пустая строка при мусоре на входе
func PrevMonth(month string) string {
	t, err := time.Parse(monthLayout, month)
	if err != nil {
		return ""
	}
	return t.AddDate(0, -1, 0).Format(monthLayout)
}
