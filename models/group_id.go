package models

import (
	"fmt"
	"strconv"
)

// ParseGroupID разбирает строковый идентификатор группы из БД.
// Идентификаторы хранятся строками, как их отдаёт сеть.
func ParseGroupID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректный id группы %q: %w", s, err)
	}
	return id, nil
}

// FormatGroupID приводит числовой идентификатор группы к строковому виду БД.
func FormatGroupID(id int64) string {
	return strconv.FormatInt(id, 10)
}
