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

	"github.com/signpost-ci/signpost/internal/profiles"
	"github.com/signpost-ci/signpost/internal/xcode"
	"github.com/signpost-ci/signpost/pkg/asc"
)

func init() {
	ProfilesCmd.AddCommand(ProfilesEnsureCmd)

	ProfilesEnsureCmd.Flags().StringP("bundle-id", "b", "", "Bundle identifier")
	ProfilesEnsureCmd.Flags().StringP("type", "t", "appstore", "Profile type (appstore, adhoc, development, inhouse)")
	ProfilesEnsureCmd.Flags().StringP("name", "n", "", "Profile name (derived from bundle ID and type when empty)")
	ProfilesEnsureCmd.Flags().String("cert-id", "", "Certificate ID to embed (best distribution certificate when empty)")
	ProfilesEnsureCmd.Flags().Bool("install", false, "Install the profile locally after download")
	ProfilesEnsureCmd.Flags().String("project", "", "Path to search for the Xcode project to patch (patching skipped when empty)")
	ProfilesEnsureCmd.Flags().String("team-id", "", "Development team ID for project patching (looked up via the portal when empty)")
	ProfilesEnsureCmd.MarkFlagRequired("bundle-id")
	viper.BindPFlag("profiles.ensure.bundle-id", ProfilesEnsureCmd.Flags().Lookup("bundle-id"))
	viper.BindPFlag("profiles.ensure.type", ProfilesEnsureCmd.Flags().Lookup("type"))
	viper.BindPFlag("profiles.ensure.name", ProfilesEnsureCmd.Flags().Lookup("name"))
	viper.BindPFlag("profiles.ensure.cert-id", ProfilesEnsureCmd.Flags().Lookup("cert-id"))
	viper.BindPFlag("profiles.ensure.install", ProfilesEnsureCmd.Flags().Lookup("install"))
	viper.BindPFlag("profiles.ensure.project", ProfilesEnsureCmd.Flags().Lookup("project"))
	viper.BindPFlag("profiles.ensure.team-id", ProfilesEnsureCmd.Flags().Lookup("team-id"))
}

// ProfilesEnsureCmd represents the profiles ensure command
var ProfilesEnsureCmd = &cobra.Command{
	Use:           "ensure",
	Short:         "Ensure exactly one valid provisioning profile exists for a bundle ID",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if viper.GetBool("verbose") {
			log.SetLevel(log.DebugLevel)
		}

		ptype, err := profileTypeFromString(viper.GetString("profiles.ensure.type"))
		if err != nil {
			return err
		}

		creds, err := resolveCredentials()
		if err != nil {
			return err
		}
		client := asc.NewClient(creds)

		res, err := profiles.NewManager(client).EnsureProfile(profiles.Params{
			BundleIdentifier: viper.GetString("profiles.ensure.bundle-id"),
			Type:             ptype,
			CertificateID:    viper.GetString("profiles.ensure.cert-id"),
			Name:             viper.GetString("profiles.ensure.name"),
		})
		if err != nil {
			return err
		}

		log.Info("Provisioning profile:")
		log.Infof("%s: %s (UUID %s), Expires: %s",
			res.ID, res.Name, res.UUID, res.Expires.Format(time.RFC1123))

		if viper.GetBool("profiles.ensure.install") {
			installer, err := profiles.NewInstaller()
			if err != nil {
				return err
			}
			if _, err := installer.Install(res.Content); err != nil {
				return err
			}
		}

		// patching the project is a convenience on top of a successful
		// reconciliation, failures only warn
		if searchPath := viper.GetString("profiles.ensure.project"); searchPath != "" {
			patchProject(client, searchPath, viper.GetString("profiles.ensure.bundle-id"),
				viper.GetString("profiles.ensure.team-id"), res.UUID)
		}
		return nil
	},
}

// patchProject wires the profile UUID and team ID into the matching
// Xcode project, first structurally, then through the raw patcher so the
// values survive tools that regenerate the pbxproj.
func patchProject(client *asc.Client, searchPath, bundleID, teamID, profileUUID string) {
	if teamID == "" {
		var err error
		if teamID, err = client.FetchTeamID(bundleID); err != nil {
			log.WithError(err).Warn("could not determine team ID, skipping project patching")
			return
		}
	}

	match, err := xcode.FindProjectWithBundleID(bundleID, searchPath)
	if err != nil {
		log.WithError(err).Warn("could not locate Xcode project, skipping project patching")
		return
	}

	project, err := xcode.OpenProject(match.ProjectPath)
	if err != nil {
		log.WithError(err).Warn("could not parse Xcode project")
	} else {
		if project.UpdateSigning(bundleID, xcode.SigningSettings{
			TeamID:           teamID,
			SigningStyle:     "Manual",
			CodeSignIdentity: "Apple Distribution",
			ProfileUUID:      profileUUID,
		}) {
			if err := project.Save(); err != nil {
				log.WithError(err).Warn("could not save Xcode project")
			}
		}
	}

	patcher := xcode.RawPatcher{ProjectPath: match.ProjectPath}
	if _, err := patcher.SetDevelopmentTeam(teamID); err != nil {
		log.WithError(err).Warn("raw patch of DEVELOPMENT_TEAM failed")
	}
	if _, err := patcher.SetProvisioningProfile(profileUUID); err != nil {
		log.WithError(err).Warn("raw patch of PROVISIONING_PROFILE failed")
	}
	if _, err := patcher.RemoveProfileSpecifier(); err != nil {
		log.WithError(err).Warn("raw removal of PROVISIONING_PROFILE_SPECIFIER failed")
	}
}
