package service

import (
	"fmt"
	"time"
)

// CardNumber formats a registration card number as
// REG-<first 4 of userID>-<first 4 of semesterID>-<last 4 digits of epoch ms>.
func CardNumber(userID, semesterID string, at time.Time) string {
	return fmt.Sprintf("REG-%s-%s-%04d", prefix(userID, 4), prefix(semesterID, 4), at.UnixMilli()%10000)
}

func prefix(value string, n int) string {
	runes := []rune(value)
	if len(runes) <= n {
		return value
	}
	return string(runes[:n])
}
