package util

import (
	"os"
	"path"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlagNameToUpper(t *testing.T) {
	assert.Equal(t, "ALLOWED_IPS", flagNameToUpper("allowed-ips"))
	assert.Equal(t, "FWMARK", flagNameToUpper("fwmark"))
}

func TestSetFlagsFromEnvVars(t *testing.T) {
	var endpoint, proxy string
	cmd := &cobra.Command{Use: "test"}
	cmd.PersistentFlags().StringVar(&endpoint, "endpoint", "", "")
	cmd.Flags().StringVar(&proxy, "proxy-address", "", "")

	t.Setenv("NB_ENDPOINT", "192.0.2.1:51820")
	t.Setenv("NB_PROXY_ADDRESS", "127.0.0.1:1080")

	SetFlagsFromEnvVars(cmd)

	assert.Equal(t, "192.0.2.1:51820", endpoint)
	assert.Equal(t, "127.0.0.1:1080", proxy)
}

func TestSetFlagsFromCredentials(t *testing.T) {
	var psk string
	cmd := &cobra.Command{Use: "test"}
	cmd.PersistentFlags().StringVar(&psk, "preshared-key", "", "")

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(path.Join(dir, "PRESHARED_KEY"), []byte("from-creds\n"), 0o600))
	t.Setenv("CREDENTIALS_DIRECTORY", dir)
	t.Setenv("NB_PRESHARED_KEY", "from-env")

	SetFlagsFromEnvVars(cmd)

	assert.Equal(t, "from-creds", psk)
}
