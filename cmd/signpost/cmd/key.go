/*
Copyright © 2024-2026 signpost-ci

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"fmt"

	"github.com/apex/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/signpost-ci/signpost/internal/vault"
)

func init() {
	rootCmd.AddCommand(KeyCmd)
	KeyCmd.AddCommand(KeyGetCmd)
}

// KeyCmd represents the key command group
var KeyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage the certificate cache encryption key",
}

// KeyGetCmd represents the key get command
var KeyGetCmd = &cobra.Command{
	Use:           "get",
	Short:         "Print the encryption key so it can be copied into CI secrets",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if viper.GetBool("verbose") {
			log.SetLevel(log.DebugLevel)
		}

		creds, err := resolveCredentials()
		if err != nil {
			return err
		}

		key, ok, err := vault.OpenSecretStore().Get(vault.EncryptionKeyAccount(creds.IssuerID))
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no encryption key stored for issuer %s; run 'signpost certs ensure' first", creds.IssuerID)
		}

		fmt.Println(key)
		return nil
	},
}
