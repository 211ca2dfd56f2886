// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package cli implements the passkey-server command line interface.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var configPath string

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "passkey-server",
	Short: "go-passkey - WebAuthn passkey authentication server",
	Long: `go-passkey provides passwordless authentication using WebAuthn
passkeys. The server exposes REST endpoints for credential registration
and authentication ceremonies and issues JWT session tokens on success.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"config file (default is /etc/passkey/config.yaml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(versionCmd)
}

func configFile() string {
	if configPath != "" {
		return configPath
	}
	return os.Getenv("PASSKEY_CONFIG")
}
