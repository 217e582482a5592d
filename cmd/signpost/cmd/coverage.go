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
	"github.com/apex/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/signpost-ci/signpost/internal/coverage"
)

func init() {
	rootCmd.AddCommand(CoverageCmd)
	CoverageCmd.AddCommand(CoverageCheckCmd)

	CoverageCheckCmd.Flags().StringP("config", "c", "coverage.json", "Coverage config file (targets and file-name filters)")
	CoverageCheckCmd.Flags().StringP("report", "r", "", "xccov JSON report file")
	CoverageCheckCmd.Flags().Float64P("min", "m", 0, "Minimum acceptable coverage percentage")
	CoverageCheckCmd.MarkFlagRequired("report")
	viper.BindPFlag("coverage.check.config", CoverageCheckCmd.Flags().Lookup("config"))
	viper.BindPFlag("coverage.check.report", CoverageCheckCmd.Flags().Lookup("report"))
	viper.BindPFlag("coverage.check.min", CoverageCheckCmd.Flags().Lookup("min"))
}

// CoverageCmd represents the coverage command group
var CoverageCmd = &cobra.Command{
	Use:   "coverage",
	Short: "Inspect test coverage reports",
}

// CoverageCheckCmd represents the coverage check command
var CoverageCheckCmd = &cobra.Command{
	Use:           "check",
	Short:         "Fail when filtered code coverage is below a minimum",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if viper.GetBool("verbose") {
			log.SetLevel(log.DebugLevel)
		}

		cfg, err := coverage.LoadConfig(viper.GetString("coverage.check.config"))
		if err != nil {
			return err
		}
		report, err := coverage.LoadReport(viper.GetString("coverage.check.report"))
		if err != nil {
			return err
		}

		pct, err := coverage.Check(report, cfg, viper.GetFloat64("coverage.check.min"))
		if err != nil {
			return err
		}

		log.Infof("Code coverage: %.1f%%", pct)
		return nil
	},
}
