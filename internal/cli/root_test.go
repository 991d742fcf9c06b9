package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"robotrader/internal/models"
	"robotrader/internal/store"
)

const quietConfig = `
[trading]
mode = "paper"
broker = "paper"
paper_cash = 25000

[health]
enabled = false

[logging]
console = false
file = false
`

func testDir(t *testing.T) string {
	t.Helper()
	for _, k := range []string{
		"ALPACA_API_KEY", "ALPACA_API_SECRET", "GMAIL_ADDRESS", "GMAIL_APP_PASSWORD",
		"RECIPIENT_EMAIL", "REDIS_PASSWORD", "TRADING_MODE", "ROBOTRADER_BROKER", "ROBOTRADER_LOG_LEVEL",
	} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(quietConfig), 0644))
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCmd_JSON(t *testing.T) {
	out, err := execute(t, "version", "--json")
	require.NoError(t, err)

	var v map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Equal(t, Version, v["version"])
}

func TestConfigPath_DoesNotLoadConfig(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "fresh")
	out, err := execute(t, "config", "path", "--config-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, dir)

	_, statErr := os.Stat(filepath.Join(dir, "config.toml"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestConfigShow_HidesSecrets(t *testing.T) {
	dir := testDir(t)
	t.Setenv("ALPACA_API_KEY", "key-abc123")
	t.Setenv("ALPACA_API_SECRET", "secret-xyz789")

	out, err := execute(t, "config", "show", "--json", "--config-dir", dir)
	require.NoError(t, err)
	assert.NotContains(t, out, "key-abc123")
	assert.NotContains(t, out, "secret-xyz789")

	var v configView
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.True(t, v.HasAlpacaKeys)
	assert.Equal(t, "paper", v.Broker)
	assert.InDelta(t, 0.60, v.Allocation["equity"], 1e-9)
	assert.Equal(t, 15, v.SymbolCounts["equity"])
}

func TestConfigValidate_ReportsMissingCredentials(t *testing.T) {
	dir := testDir(t)
	t.Setenv("ROBOTRADER_BROKER", "alpaca")

	_, err := execute(t, "config", "validate", "--config-dir", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ALPACA_API_KEY")
}

func TestStatus_PaperBroker(t *testing.T) {
	dir := testDir(t)

	out, err := execute(t, "status", "--json", "--config-dir", dir)
	require.NoError(t, err)

	var doc StatusDocument
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "paper", doc.Mode)
	assert.Equal(t, "paper", doc.Broker)
	assert.True(t, doc.Connected)
	assert.InDelta(t, 25000, doc.Portfolio.TotalValue, 0.01)
	assert.Len(t, doc.Portfolio.Classes, 3)
	assert.Empty(t, doc.Trackers)
	assert.NotEmpty(t, doc.NextSession)
}

func TestHistory_SessionsAndTrades(t *testing.T) {
	dir := testDir(t)

	st, err := store.NewSQLiteStore(filepath.Join(dir, "robotrader.db"))
	require.NoError(t, err)
	started := time.Now().Add(-time.Hour).UTC()
	rec := models.SessionRecord{
		ID:          "sess-1",
		SessionType: models.SessionMorning,
		StartedAt:   started,
		TotalTrades: 2,
		MoneySpent:  decimal.RequireFromString("1000"),
		MoneyEarned: decimal.RequireFromString("450.5"),
		NetProfit:   decimal.RequireFromString("-549.5"),
	}
	trades := []models.TradeRecord{
		{ID: "t1", SessionID: "sess-1", Symbol: "AAPL", AssetClass: models.AssetClassEquity, Action: models.OrderSideBuy,
			Quantity: 10, Price: decimal.RequireFromString("100"), Value: decimal.RequireFromString("1000"), CreatedAt: started},
		{ID: "t2", SessionID: "sess-1", Symbol: "NVDA", AssetClass: models.AssetClassEquity, Action: models.OrderSideSell,
			Quantity: 5, Price: decimal.RequireFromString("90.1"), Value: decimal.RequireFromString("450.5"), StopLoss: true, CreatedAt: started},
	}
	require.NoError(t, st.SaveSession(context.Background(), rec, trades))
	require.NoError(t, st.Close())

	out, err := execute(t, "history", "--json", "--config-dir", dir)
	require.NoError(t, err)
	var rows []sessionRow
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "MORNING", rows[0].Type)
	assert.Equal(t, "-549.50", rows[0].NetProfit)

	out, err = execute(t, "history", "--trades", "--stop-loss", "--json", "--config-dir", dir)
	require.NoError(t, err)
	var tv []tradeView
	require.NoError(t, json.Unmarshal([]byte(out), &tv))
	require.Len(t, tv, 1)
	assert.Equal(t, "NVDA", tv[0].Symbol)
	assert.True(t, tv[0].StopLoss)

	out, err = execute(t, "history", "--type", "afternoon", "--config-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "No sessions recorded")
}

func TestSession_RejectsUnknownType(t *testing.T) {
	dir := testDir(t)
	_, err := execute(t, "session", "evening", "--config-dir", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "morning or afternoon")
}

func TestParseSessionType(t *testing.T) {
	typ, err := parseSessionType(" Morning ")
	require.NoError(t, err)
	assert.Equal(t, models.SessionMorning, typ)

	typ, err = parseSessionType("AFTERNOON")
	require.NoError(t, err)
	assert.Equal(t, models.SessionAfternoon, typ)
}
