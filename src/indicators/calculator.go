package indicators

import (
	"errors"
	"fmt"
	"math"

	"github.com/markcheno/go-talib"
)

// ErrInsufficientData is returned when a series is shorter than the
// indicator window. Callers treat it as "skip this ticker", not as fatal.
var ErrInsufficientData = errors.New("insufficient data for indicator window")

// SMA computes the simple moving average over a fixed trailing window.
// The result is aligned to the input: value i covers series[i : i+window],
// so the output has length len(series)-window+1 and the last value is the
// SMA of the most recent window.
func SMA(series []float64, window int) ([]float64, error) {
	if window <= 0 {
		return nil, fmt.Errorf("sma window must be > 0, got %d", window)
	}
	if len(series) < window {
		return nil, fmt.Errorf("sma(%d) over %d values: %w", window, len(series), ErrInsufficientData)
	}
	if err := checkSeries(series); err != nil {
		return nil, err
	}

	// talib pads the first window-1 slots with zeros; slice them off so the
	// caller gets one value per fully covered window.
	full := talib.Sma(series, window)
	return full[window-1:], nil
}

// EMA computes the exponential moving average with smoothing factor
// alpha = 2/(period+1), seeded by the SMA of the first period values.
// Alignment matches SMA: output length is len(series)-period+1.
func EMA(series []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, fmt.Errorf("ema period must be > 0, got %d", period)
	}
	if len(series) < period {
		return nil, fmt.Errorf("ema(%d) over %d values: %w", period, len(series), ErrInsufficientData)
	}
	if err := checkSeries(series); err != nil {
		return nil, err
	}

	full := talib.Ema(series, period)
	return full[period-1:], nil
}

// LastSMA returns only the most recent SMA value
func LastSMA(series []float64, window int) (float64, error) {
	aligned, err := SMA(series, window)
	if err != nil {
		return 0, err
	}
	return aligned[len(aligned)-1], nil
}

// LastEMA returns only the most recent EMA value
func LastEMA(series []float64, period int) (float64, error) {
	aligned, err := EMA(series, period)
	if err != nil {
		return 0, err
	}
	return aligned[len(aligned)-1], nil
}

// AvgVolume returns the arithmetic mean volume of the trailing window
func AvgVolume(volumes []float64, window int) (float64, error) {
	return LastSMA(volumes, window)
}

// checkSeries rejects malformed input. NaN or infinite prices are a
// contract violation by the data layer, not a skippable condition.
func checkSeries(series []float64) error {
	for i, v := range series {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("malformed series: non-finite value at index %d", i)
		}
	}
	return nil
}
