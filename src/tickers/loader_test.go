package tickers

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stonks-go/src/config"
)

func TestClean(t *testing.T) {
	raw := []string{
		" aapl ",    // trimmed and uppercased
		"TSLA",
		"tsla",      // duplicate after normalization
		"BRK.B",     // share class is fine
		"",          // empty
		"9988",      // digits are not US equity symbols
		"TOOLONGG",  // over five letters
		"BRK.B.A",   // two dots
		"XY.BC",     // multi-letter class
		"MSFT",
	}

	got := Clean(raw)
	assert.Equal(t, []string{"AAPL", "BRK.B", "MSFT", "TSLA"}, got, "cleaned list is deduped and sorted")
}

func TestCleanEmpty(t *testing.T) {
	assert.Empty(t, Clean(nil))
	assert.Empty(t, Clean([]string{"", "  ", "123"}))
}

func TestValidSymbol(t *testing.T) {
	cases := map[string]bool{
		"A":      true,
		"AAPL":   true,
		"GOOGL":  true,
		"BRK.B":  true,
		"":       false,
		"ABCDEF": false,
		"BF.BB":  false,
		"A.B.C":  false,
		"9988":   false,
		"AB-C":   false,
	}
	for symbol, want := range cases {
		assert.Equal(t, want, validSymbol(symbol), "symbol %q", symbol)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tickers.txt")
	require.NoError(t, os.WriteFile(path, []byte("tsla\nAAPL\n\nmsft\naapl\n"), 0o644))

	loader := NewLoader(config.TickerConfig{
		Source:   config.TickerSourceFile,
		FilePath: path,
	})

	got, err := loader.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT", "TSLA"}, got)
}

func TestLoadFromFileMissing(t *testing.T) {
	loader := NewLoader(config.TickerConfig{
		Source:   config.TickerSourceFile,
		FilePath: filepath.Join(t.TempDir(), "does-not-exist.txt"),
	})

	_, err := loader.Load(context.Background())
	require.Error(t, err)
}

// stubValidator marks a fixed set tradable and one symbol as erroring
type stubValidator struct {
	tradable map[string]bool
	failOn   string
}

func (s *stubValidator) IsTradable(_ context.Context, symbol string) (bool, error) {
	if symbol == s.failOn {
		return false, errors.New("asset lookup failed")
	}
	return s.tradable[symbol], nil
}

func TestValidate(t *testing.T) {
	v := &stubValidator{
		tradable: map[string]bool{"AAPL": true, "MSFT": true},
		failOn:   "ERR",
	}

	got := Validate(context.Background(), []string{"AAPL", "DEAD", "ERR", "MSFT"}, v)
	assert.Equal(t, []string{"AAPL", "MSFT"}, got, "untradable and erroring symbols are dropped")
}
