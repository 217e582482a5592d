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
	"time"

	"github.com/apex/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/signpost-ci/signpost/internal/certs"
	"github.com/signpost-ci/signpost/pkg/asc"
)

func init() {
	CertsCmd.AddCommand(CertsEnsureCmd)

	CertsEnsureCmd.Flags().StringP("root", "r", ".", "Project root holding the encrypted certificate cache")
	CertsEnsureCmd.Flags().Bool("ci", false, "Force CI mode (restore only, never create)")
	viper.BindPFlag("certs.ensure.root", CertsEnsureCmd.Flags().Lookup("root"))
	viper.BindPFlag("certs.ensure.ci", CertsEnsureCmd.Flags().Lookup("ci"))
}

// CertsEnsureCmd represents the certs ensure command
var CertsEnsureCmd = &cobra.Command{
	Use:           "ensure",
	Short:         "Ensure a valid distribution certificate is installed in the keychain",
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

		mgr := certs.NewManager(asc.NewClient(creds), viper.GetString("certs.ensure.root"), creds.IssuerID)
		if viper.GetBool("certs.ensure.ci") {
			mgr.CI = true
		}

		res, err := mgr.EnsureDistributionCertificate()
		if err != nil {
			return err
		}

		log.Info("Distribution certificate:")
		log.Infof("%s: %s (SHA-1 %s), Expires: %s",
			res.ID, res.Name, res.Fingerprint, res.Expires.Format(time.RFC1123))
		return nil
	},
}
