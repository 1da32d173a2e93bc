package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	clearL0Env(t)
	cfg := Load()
	assert.Equal(t, "re2", cfg.RegexEngine)
	assert.True(t, cfg.StopOnFirstMatch, "expected stop_on_first_match to default true")
	assert.False(t, cfg.FailOpen, "expected fail_open to default false (secure default)")
	assert.Equal(t, 8000, cfg.APIPort)
}

func TestLoadReadsEnvOverrides(t *testing.T) {
	clearL0Env(t)
	t.Setenv("L0_FAIL_OPEN", "true")
	t.Setenv("L0_API_PORT", "9090")
	t.Setenv("L0_PREFILTER_KEYWORDS", "Ignore, Override ,JAILBREAK")

	cfg := Load()
	assert.True(t, cfg.FailOpen, "expected fail_open override to take effect")
	assert.Equal(t, 9090, cfg.APIPort)
	assert.Equal(t, []string{"ignore", "override", "jailbreak"}, cfg.PrefilterKeywordsList())
}

func clearL0Env(t *testing.T) {
	t.Helper()
	for _, e := range os.Environ() {
		for i := 0; i < len(e); i++ {
			if e[i] == '=' {
				key := e[:i]
				if len(key) > 3 && key[:3] == "L0_" {
					os.Unsetenv(key)
				}
				break
			}
		}
	}
}
