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
	"os"

	"github.com/apex/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/signpost-ci/signpost/internal/profiles"
)

func init() {
	ProfilesCmd.AddCommand(ProfilesInstallCmd)

	ProfilesInstallCmd.Flags().String("dir", "", "Destination directory (default is the per-user profile directory)")
	viper.BindPFlag("profiles.install.dir", ProfilesInstallCmd.Flags().Lookup("dir"))
}

// ProfilesInstallCmd represents the profiles install command
var ProfilesInstallCmd = &cobra.Command{
	Use:           "install <PROFILE>",
	Short:         "Install a .mobileprovision file where Xcode can find it",
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if viper.GetBool("verbose") {
			log.SetLevel(log.DebugLevel)
		}

		content, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading profile %s: %w", args[0], err)
		}

		installer, err := profiles.NewInstaller()
		if err != nil {
			return err
		}
		if dir := viper.GetString("profiles.install.dir"); dir != "" {
			installer.Dir = dir
		}

		dest, err := installer.Install(content)
		if err != nil {
			return err
		}

		log.Infof("Installed to %s", dest)
		return nil
	},
}
