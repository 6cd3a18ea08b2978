// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-keymaster.
//
// go-keymaster is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package azurekv

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
)

var (
	// ErrInvalidConfig is returned when the configuration is incomplete.
	ErrInvalidConfig = errors.New("azurekv: invalid configuration")

	// ErrInvalidVaultURL is returned when VaultURL is not an https URL.
	ErrInvalidVaultURL = errors.New("azurekv: invalid vault URL")
)

// Config contains the Azure Key Vault settings for the secrets backend.
type Config struct {
	// VaultURL is the Azure Key Vault URL.
	// Format: https://{vault-name}.vault.azure.net/
	VaultURL string `yaml:"vault_url" mapstructure:"vault_url"`

	// TenantID, ClientID and ClientSecret select a service principal.
	// When any is empty DefaultAzureCredential is used instead.
	TenantID     string `yaml:"tenant_id,omitempty" mapstructure:"tenant_id"`
	ClientID     string `yaml:"client_id,omitempty" mapstructure:"client_id"`
	ClientSecret string `yaml:"client_secret,omitempty" mapstructure:"client_secret"`

	// NamePrefix is prepended to every secret name (default: "keymaster")
	NamePrefix string `yaml:"name_prefix,omitempty" mapstructure:"name_prefix"`

	// Timeout bounds every call made to Key Vault (default: 15s)
	Timeout time.Duration `yaml:"timeout,omitempty" mapstructure:"timeout"`
}

// Validate checks required fields and fills defaults.
func (c *Config) Validate() error {
	if c == nil {
		return ErrInvalidConfig
	}
	if c.VaultURL == "" {
		return fmt.Errorf("%w: vault URL is required", ErrInvalidConfig)
	}
	if !strings.HasPrefix(c.VaultURL, "https://") {
		return fmt.Errorf("%w: %s", ErrInvalidVaultURL, c.VaultURL)
	}
	if c.NamePrefix == "" {
		c.NamePrefix = "keymaster"
	}
	for _, r := range c.NamePrefix {
		if !isNameRune(r) {
			return fmt.Errorf("%w: name prefix %q must be alphanumeric or '-'", ErrInvalidConfig, c.NamePrefix)
		}
	}
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	return nil
}

func isNameRune(r rune) bool {
	return r == '-' || (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

// SecretsClient is the subset of *azsecrets.Client the backend uses.
type SecretsClient interface {
	SetSecret(ctx context.Context, name string, parameters azsecrets.SetSecretParameters, options *azsecrets.SetSecretOptions) (azsecrets.SetSecretResponse, error)
	GetSecret(ctx context.Context, name string, version string, options *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error)
	DeleteSecret(ctx context.Context, name string, options *azsecrets.DeleteSecretOptions) (azsecrets.DeleteSecretResponse, error)
	NewListSecretPropertiesPager(options *azsecrets.ListSecretPropertiesOptions) *runtime.Pager[azsecrets.ListSecretPropertiesResponse]
}

func newSecretsClient(cfg *Config) (SecretsClient, error) {
	if cfg.ClientID != "" && cfg.ClientSecret != "" && cfg.TenantID != "" {
		cred, err := azidentity.NewClientSecretCredential(cfg.TenantID, cfg.ClientID, cfg.ClientSecret,
			&azidentity.ClientSecretCredentialOptions{AdditionallyAllowedTenants: []string{"*"}})
		if err != nil {
			return nil, fmt.Errorf("failed to create client secret credential: %w", err)
		}
		client, err := azsecrets.NewClient(cfg.VaultURL, cred, nil)
		if err != nil {
			return nil, err
		}
		return client, nil
	}

	cred, err := azidentity.NewDefaultAzureCredential(
		&azidentity.DefaultAzureCredentialOptions{AdditionallyAllowedTenants: []string{"*"}})
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credential: %w", err)
	}
	client, err := azsecrets.NewClient(cfg.VaultURL, cred, nil)
	if err != nil {
		return nil, err
	}
	return client, nil
}
