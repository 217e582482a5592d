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

	"github.com/spf13/cobra"

	"github.com/signpost-ci/signpost/pkg/asc"
)

func init() {
	rootCmd.AddCommand(ProfilesCmd)
}

// ProfilesCmd represents the profiles command group
var ProfilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "Manage provisioning profiles",
}

func profileTypeFromString(s string) (asc.ProfileType, error) {
	switch s {
	case "appstore":
		return asc.IOS_APP_STORE, nil
	case "adhoc":
		return asc.IOS_APP_ADHOC, nil
	case "development":
		return asc.IOS_APP_DEVELOPMENT, nil
	case "inhouse":
		return asc.IOS_APP_INHOUSE, nil
	default:
		return "", fmt.Errorf("invalid profile type %q (want appstore, adhoc, development or inhouse)", s)
	}
}
