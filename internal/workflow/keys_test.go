package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputKeyRules(t *testing.T) {
	tests := []struct {
		rule  string
		input string
		want  string
	}{
		{RuleFunction, "report.txt", "sorted-unsorted/sorted-report.srt"},
		{RuleFunction, "data.csv", "sorted-unsorted/sorted-data.csv.srt"},
		{RuleFunction, "a.txt.b.txt", "sorted-unsorted/sorted-a.srt.b.srt"},
		{RuleFunction, "a.txt.csv", "sorted-unsorted/sorted-a.txt.csv.srt"},
		{RuleClient, "report.txt", "sorted-unsorted/sorted-report.srt"},
		{RuleClient, "data.csv", "sorted-unsorted/sorted-data.csv"},
		{RuleClient, "a.txt.b.txt", "sorted-unsorted/sorted-a.srt.b.txt"},
		{RuleIdentity, "report.txt", "sorted-unsorted/sorted-report.txt"},
		{"", "report.txt", "sorted-unsorted/sorted-report.srt"},
	}

	for _, tt := range tests {
		t.Run(tt.rule+"/"+tt.input, func(t *testing.T) {
			fn, err := OutputKeyFunc(tt.rule)
			require.NoError(t, err)
			assert.Equal(t, tt.want, fn(tt.input))
			assert.Equal(t, fn(tt.input), fn(tt.input))
		})
	}

	_, err := OutputKeyFunc("reverse")
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no extensions", func(c *Config) { c.AllowedExtensions = nil }},
		{"no output bucket", func(c *Config) { c.OutputBucket = "" }},
		{"no function", func(c *Config) { c.FunctionName = "" }},
		{"negative delay", func(c *Config) { c.PollDelay = -1 }},
		{"zero attempts", func(c *Config) { c.PollMaxAttempts = 0 }},
		{"zero timeout", func(c *Config) { c.PollTimeout = 0 }},
		{"zero ttl", func(c *Config) { c.LinkTTL = 0 }},
		{"unknown rule", func(c *Config) { c.OutputKeyRule = "upper" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestConfigExtensionHint(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, ".txt or .csv", cfg.extensionHint())
	assert.True(t, cfg.allows("csv"))
	assert.False(t, cfg.allows("tsv"))

	cfg.AllowedExtensions = []string{".TSV"}
	assert.Equal(t, ".tsv", cfg.extensionHint())
	assert.True(t, cfg.allows("tsv"))

	cfg.AllowedExtensions = []string{"txt", "csv", "tsv"}
	assert.Equal(t, ".txt, .csv or .tsv", cfg.extensionHint())
}
