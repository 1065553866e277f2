package feed

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// PriceMessage is a decoded push-feed message.
type PriceMessage struct {
	Price float64
	Time  time.Time // zero when the publisher did not stamp the message
}

// ParsePriceMessage accepts either a bare number ("1921.5") or a JSON
// object {"price": 1921.5, "ts": <unix millis>}.
func ParsePriceMessage(payload string) (PriceMessage, error) {
	payload = strings.TrimSpace(payload)
	if v, err := strconv.ParseFloat(payload, 64); err == nil {
		return PriceMessage{Price: v}, nil
	}

	var raw struct {
		Price *float64 `json:"price"`
		TS    int64    `json:"ts"`
	}
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return PriceMessage{}, fmt.Errorf("parse price message: %w", err)
	}
	if raw.Price == nil {
		return PriceMessage{}, fmt.Errorf("parse price message: missing price")
	}

	msg := PriceMessage{Price: *raw.Price}
	if raw.TS > 0 {
		msg.Time = time.UnixMilli(raw.TS)
	}
	return msg, nil
}
