package cloud

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAWSConfig_StaticCredentials(t *testing.T) {
	t.Setenv("AWS_CONFIG_FILE", t.TempDir()+"/config")
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", t.TempDir()+"/credentials")

	cfg, err := LoadAWSConfig(context.Background(), Options{
		Region:          "us-east-2",
		AccessKeyID:     "AKIDEXAMPLE",
		SecretAccessKey: "secret",
		MaxRetries:      4,
	})
	require.NoError(t, err)

	assert.Equal(t, "us-east-2", cfg.Region)
	assert.Equal(t, 4, cfg.RetryMaxAttempts)

	creds, err := cfg.Credentials.Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AKIDEXAMPLE", creds.AccessKeyID)
}

func TestLoadAWSConfig_DefaultRegion(t *testing.T) {
	t.Setenv("AWS_REGION", "")
	t.Setenv("AWS_DEFAULT_REGION", "")
	t.Setenv("AWS_CONFIG_FILE", t.TempDir()+"/config")
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", t.TempDir()+"/credentials")

	cfg, err := LoadAWSConfig(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, "us-east-1", cfg.Region)
}
