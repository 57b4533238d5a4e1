package contracts

import "time"

// PriceSnapshot 자산 가격 스냅샷
type PriceSnapshot struct {
	ID         int64     `json:"id"`
	Asset      string    `json:"asset"`
	Price      float64   `json:"price"`
	Source     string    `json:"source"`
	CapturedAt time.Time `json:"captured_at"`
}
