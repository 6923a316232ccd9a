package storage

import (
	"encoding/json"
	"strconv"
)

func parseInt(raw string) any {
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return raw
	}
	return v
}

func parseFloat(raw string) any {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return raw
	}
	return v
}

func parseJSON(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}
