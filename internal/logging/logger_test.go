package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"chathud/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestAllCategoriesLog(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	Set(zap.New(core), config.LoggingConfig{Level: "debug"})
	t.Cleanup(func() { _ = Sync() })

	for _, cat := range Categories {
		assert.Truef(t, IsCategoryEnabled(cat), "category %s", cat)
		Get(cat).Info("hello %s", cat)
	}

	require.Equal(t, len(Categories), logs.Len())
	for i, entry := range logs.All() {
		assert.Equal(t, string(Categories[i]), entry.LoggerName)
		assert.Equal(t, "hello "+string(Categories[i]), entry.Message)
	}
}

func TestDisabledCategory(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	Set(zap.New(core), config.LoggingConfig{
		Level:      "info",
		Categories: map[string]bool{"store": false},
	})
	t.Cleanup(func() { _ = Sync() })

	Store("dropped")
	Dispatch("kept")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "dispatch", logs.All()[0].LoggerName)
}

func TestConvenienceFunctions(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	Set(zap.New(core), config.LoggingConfig{Level: "debug"})
	t.Cleanup(func() { _ = Sync() })

	Boot("boot")
	Browser("browser")
	BrowserDebug("browser debug")
	Store("store")
	StoreDebug("store debug")
	Dispatch("dispatch")
	DispatchDebug("dispatch debug")
	HUD("hud")
	HUDDebug("hud debug")
	Server("server")

	assert.Equal(t, 10, logs.Len())
	assert.Equal(t, 4, logs.FilterLevelExact(zapcore.DebugLevel).Len())
}

func TestWithContext(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	Set(zap.New(core), config.LoggingConfig{})
	t.Cleanup(func() { _ = Sync() })

	Get(CategoryDispatch).With("site", "chatgpt").Warn("stale selector")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "chatgpt", logs.All()[0].ContextMap()["site"])
}

func TestTimerThreshold(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	Set(zap.New(core), config.LoggingConfig{})
	t.Cleanup(func() { _ = Sync() })

	timer := StartTimer(CategoryStore, "append")
	time.Sleep(2 * time.Millisecond)
	timer.StopWithThreshold(time.Nanosecond)

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, zapcore.WarnLevel, logs.All()[0].Level)
	assert.Contains(t, logs.All()[0].Message, "append took")
}

func TestInitializeWritesFile(t *testing.T) {
	dir := t.TempDir()
	_, err := Initialize(config.LoggingConfig{Level: "info", File: "test.log"}, dir)
	require.NoError(t, err)

	HUD("overlay shown")
	HUDDebug("not at info level")
	require.NoError(t, Sync())

	data, err := os.ReadFile(filepath.Join(dir, "test.log"))
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "overlay shown")
	assert.Contains(t, content, `"logger":"hud"`)
	assert.False(t, strings.Contains(content, "not at info level"))
}

func TestInitializeRejectsBadLevel(t *testing.T) {
	_, err := Initialize(config.LoggingConfig{Level: "loud"}, t.TempDir())
	assert.Error(t, err)
}
