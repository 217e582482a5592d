package xcode

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/apex/log"
)

// RawPatcher rewrites signing assignments in a project.pbxproj with
// line-oriented regexes, bypassing the structured parser. It exists
// because other build tooling (Flutter in particular) regenerates the
// pbxproj and drops structured edits; rerunning this pass afterwards
// restores them. Every operation is idempotent: applying it twice with
// the same values leaves the file byte-identical after the second pass.
type RawPatcher struct {
	ProjectPath string // the .xcodeproj directory
}

// PatchReport says how many assignment lines matched and whether any of
// them actually changed.
type PatchReport struct {
	Matches int
	Changed bool
}

func (p RawPatcher) pbxprojPath() string {
	return filepath.Join(p.ProjectPath, "project.pbxproj")
}

// assignment regexes mirror the two forms a setting takes in a pbxproj:
// plain `KEY = value;` and the SDK-qualified `"KEY[sdk=iphoneos*]" = value;`.
func plainAssignRe(key string) *regexp.Regexp {
	return regexp.MustCompile(`(\s+` + key + `\s*=\s*)(["']?)([^"';]+)(["']?)(\s*;)`)
}

func sdkAssignRe(key string) *regexp.Regexp {
	return regexp.MustCompile(`(\s*["']?` + key + `\[sdk=[^\]]+\]["']?\s*=\s*)(["']?)([^"';]+)(["']?)(\s*;)`)
}

// SetDevelopmentTeam rewrites every DEVELOPMENT_TEAM assignment, SDK
// variants included, to the given team ID.
func (p RawPatcher) SetDevelopmentTeam(teamID string) (PatchReport, error) {
	return p.setAssignments("DEVELOPMENT_TEAM", teamID)
}

// SetProvisioningProfile rewrites every PROVISIONING_PROFILE assignment,
// SDK variants included, to the given profile UUID.
func (p RawPatcher) SetProvisioningProfile(uuid string) (PatchReport, error) {
	return p.setAssignments("PROVISIONING_PROFILE", uuid)
}

func (p RawPatcher) setAssignments(key, value string) (PatchReport, error) {
	var report PatchReport
	path := p.pbxprojPath()
	data, err := os.ReadFile(path)
	if err != nil {
		return report, fmt.Errorf("%w: reading %s: %v", ErrProjectFile, path, err)
	}

	sdkRe := sdkAssignRe(key)
	plainRe := plainAssignRe(key)
	sdkMarker := key + "[sdk="

	lines := strings.Split(string(data), "\n")
	for i, line := range lines {
		var re *regexp.Regexp
		switch {
		case strings.Contains(line, sdkMarker):
			re = sdkRe
		case plainRe.MatchString(line):
			re = plainRe
		default:
			continue
		}
		m := re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		report.Matches++
		if strings.TrimSpace(m[3]) == value {
			continue
		}
		report.Changed = true
		lines[i] = re.ReplaceAllString(line, "${1}${2}"+value+"${4}${5}")
	}

	if report.Changed {
		if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o644); err != nil {
			return report, fmt.Errorf("%w: writing %s: %v", ErrProjectFile, path, err)
		}
		log.WithFields(log.Fields{
			"key":     key,
			"value":   value,
			"matches": report.Matches,
		}).Info("patched project file")
	} else if report.Matches > 0 {
		log.WithFields(log.Fields{
			"key":     key,
			"matches": report.Matches,
		}).Debug("project file already up to date")
	} else {
		log.WithField("key", key).Warn("no assignments found in project file")
	}
	return report, nil
}

var (
	specifierSdkLineRe   = regexp.MustCompile(`^\s*["']?PROVISIONING_PROFILE_SPECIFIER\[sdk=[^\]]+\]["']?\s*=\s*["']?[^"';]+["']?\s*;\s*$`)
	specifierPlainLineRe = regexp.MustCompile(`^\s+PROVISIONING_PROFILE_SPECIFIER\s*=\s*["']?[^"';]+["']?\s*;\s*$`)
)

// RemoveProfileSpecifier strips every PROVISIONING_PROFILE_SPECIFIER
// assignment line so the profile UUID takes effect.
func (p RawPatcher) RemoveProfileSpecifier() (PatchReport, error) {
	var report PatchReport
	path := p.pbxprojPath()
	data, err := os.ReadFile(path)
	if err != nil {
		return report, fmt.Errorf("%w: reading %s: %v", ErrProjectFile, path, err)
	}

	lines := strings.Split(string(data), "\n")
	kept := lines[:0]
	for _, line := range lines {
		var drop bool
		if strings.Contains(line, "PROVISIONING_PROFILE_SPECIFIER[sdk=") {
			drop = specifierSdkLineRe.MatchString(line)
		} else if strings.Contains(line, "PROVISIONING_PROFILE_SPECIFIER") {
			drop = specifierPlainLineRe.MatchString(line)
		}
		if drop {
			report.Matches++
			report.Changed = true
			continue
		}
		kept = append(kept, line)
	}

	if report.Changed {
		if err := os.WriteFile(path, []byte(strings.Join(kept, "\n")), 0o644); err != nil {
			return report, fmt.Errorf("%w: writing %s: %v", ErrProjectFile, path, err)
		}
		log.WithField("matches", report.Matches).Info("removed profile specifier lines from project file")
	}
	return report, nil
}
