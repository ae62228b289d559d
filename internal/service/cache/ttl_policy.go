package cache

import (
	"math"
	"strings"
	"time"
	_ "time/tzdata"
)

const maxOffHoursMultiplier = 15.0

// TTLPolicy decides how long a cached upstream answer stays fresh. It is a
// pure value so it can be exercised without any cache behind it.
type TTLPolicy struct {
	// OffHoursMultiplier stretches TTLs outside the trading session, capped at 15.
	OffHoursMultiplier float64
	// VolatilityReference is the annualized volatility at or below which no
	// shortening happens. Above it TTL scales by reference/volatility.
	VolatilityReference float64
	// Floor is the shortest TTL volatility can push an entry to.
	Floor time.Duration
}

// DefaultTTLPolicy returns the TTLs used when config leaves them unset.
func DefaultTTLPolicy() TTLPolicy {
	return TTLPolicy{OffHoursMultiplier: 15, VolatilityReference: 0.3, Floor: 5 * time.Second}
}

// Compute returns the TTL for an entry about symbol. Crypto symbols trade around
// the clock and never get the off-hours stretch.
func (p TTLPolicy) Compute(symbol string, base time.Duration, isMarketHours bool, volatility float64) time.Duration {
	if base <= 0 {
		return 0
	}

	ttl := float64(base)
	if !isMarketHours && !IsCrypto(symbol) {
		ttl *= math.Min(math.Max(p.OffHoursMultiplier, 1), maxOffHoursMultiplier)
	}

	if math.IsNaN(volatility) || volatility < 0 {
		volatility = 0
	}
	if p.VolatilityReference > 0 && volatility > p.VolatilityReference {
		shrunk := ttl * p.VolatilityReference / volatility
		floor := math.Min(float64(p.Floor), ttl)
		ttl = math.Max(shrunk, floor)
	}

	return time.Duration(ttl)
}

var newYork = mustLoadLocation("America/New_York")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// IsMarketHours reports whether symbol is inside its trading session at t.
// Equities follow the regular NYSE session, 09:30-16:00 New York time on weekdays.
// Exchange holidays are not modelled.
func IsMarketHours(symbol string, t time.Time) bool {
	if IsCrypto(symbol) {
		return true
	}
	ny := t.In(newYork)
	if ny.Weekday() == time.Saturday || ny.Weekday() == time.Sunday {
		return false
	}
	minutes := ny.Hour()*60 + ny.Minute()
	return minutes >= 9*60+30 && minutes < 16*60
}

// IsCrypto recognises exchange-prefixed pairs (BINANCE:BTCUSDT) and common
// quote-currency suffixes.
func IsCrypto(symbol string) bool {
	s := strings.ToUpper(symbol)
	if strings.HasPrefix(s, "BINANCE:") || strings.HasPrefix(s, "COINBASE:") || strings.HasPrefix(s, "KRAKEN:") {
		return true
	}
	for _, suffix := range []string{"USDT", "USDC", "-USD", "/USD"} {
		if strings.HasSuffix(s, suffix) {
			return true
		}
	}
	return false
}
