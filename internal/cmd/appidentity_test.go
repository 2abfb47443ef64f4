package cmd

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/daoyou-zhang/daoyoucode/internal/appid"
)

func TestAppIdentityLoading(t *testing.T) {
	identity, err := appid.Get(context.Background())
	require.NoError(t, err)
	require.NotNil(t, identity)

	require.Equal(t, "daoyoucode", identity.BinaryName)
	require.NotEmpty(t, identity.Vendor)
	require.NotEmpty(t, identity.ConfigName)
	require.True(t, strings.HasSuffix(identity.EnvPrefix, "_"), "env_prefix %q must end with underscore", identity.EnvPrefix)
}
