// Package appid resolves the daoyoucode app identity: binary name, env prefix
// and config name. A repo-local .fulmen/app.yaml or FULMEN_APP_IDENTITY_PATH
// wins; otherwise the embedded copy is used so release binaries run anywhere.
package appid

import (
	"context"
	"strings"

	"github.com/fulmenhq/gofulmen/appidentity"

	appidentityassets "github.com/daoyou-zhang/daoyoucode/internal/assets/appidentity"
)

// DefaultEnvPrefix applies when no identity is available.
const DefaultEnvPrefix = "DAOYOUCODE_"

func init() {
	_ = appidentity.RegisterEmbeddedIdentityYAML(appidentityassets.YAML)
}

// Get returns the process identity.
func Get(ctx context.Context) (*appidentity.Identity, error) {
	return appidentity.Get(ctx)
}

// EnvPrefix returns the identity's env prefix, always ending in "_".
func EnvPrefix(identity *appidentity.Identity) string {
	prefix := DefaultEnvPrefix
	if identity != nil && strings.TrimSpace(identity.EnvPrefix) != "" {
		prefix = strings.TrimSpace(identity.EnvPrefix)
	}
	if !strings.HasSuffix(prefix, "_") {
		prefix += "_"
	}
	return prefix
}

// EnvVar names a variable under the identity's prefix, e.g. DAOYOUCODE_ADMIN_TOKEN.
func EnvVar(identity *appidentity.Identity, name string) string {
	return EnvPrefix(identity) + strings.ToUpper(name)
}
