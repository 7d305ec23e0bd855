package scrape

import (
	"math"

	"github.com/rkabir/dsewatch/pkg/models"
)

// ComputeStock derives the client-facing record from a scraped tick.
// During the trading session the last traded price is the meaningful
// current price; after close the published close price is authoritative
// even when LTP lags. Pure function: no clock, no I/O.
func ComputeStock(raw models.RawStock, marketOpen bool) models.Stock {
	base := raw.CloseP
	if marketOpen {
		base = raw.LTP
	}

	change := round2(base - raw.YCP)
	var changePct float64
	if raw.YCP != 0 {
		changePct = round2(change / raw.YCP * 100)
	}

	return models.Stock{
		RawStock:      raw,
		Change:        change,
		ChangePercent: changePct,
	}
}

// ComputeStocks derives the full snapshot in input order.
func ComputeStocks(raws []models.RawStock, marketOpen bool) []models.Stock {
	stocks := make([]models.Stock, 0, len(raws))
	for _, raw := range raws {
		stocks = append(stocks, ComputeStock(raw, marketOpen))
	}
	return stocks
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
