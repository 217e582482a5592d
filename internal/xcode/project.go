// Package xcode locates Xcode projects and wires signing settings into
// them, both through the structured pbxproj parser and through a raw
// line patcher that survives other tooling rewriting the file.
package xcode

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/apex/log"
	"github.com/pkg/errors"
	"howett.net/plist"
)

// ErrProjectFile covers project discovery and parse failures.
var ErrProjectFile = errors.New("project file error")

// bundleIDBaseVar is the one build-setting substitution we resolve when
// matching bundle identifiers.
const bundleIDBaseVar = "$(PRODUCT_BUNDLE_IDENTIFIER_BASE)"

// Project is a parsed project.pbxproj. The pbxproj is an OpenStep plist:
// a flat object table keyed by hex IDs, entered through rootObject.
type Project struct {
	Path string // the .xcodeproj directory

	raw     map[string]any
	objects map[string]any
}

// TargetSettings is one target/configuration pair with its build
// settings, bundle identifier already resolved.
type TargetSettings struct {
	TargetName    string
	Configuration string
	BundleID      string

	settings map[string]any
}

// OpenProject parses the pbxproj inside a .xcodeproj directory. A
// .xcworkspace path is resolved to its first referenced project.
func OpenProject(path string) (*Project, error) {
	if strings.HasSuffix(path, ".xcworkspace") {
		resolved, err := projectFromWorkspace(path)
		if err != nil {
			return nil, err
		}
		path = resolved
	}

	pbxproj := filepath.Join(path, "project.pbxproj")
	data, err := os.ReadFile(pbxproj)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrProjectFile, pbxproj, err)
	}

	var raw map[string]any
	if _, err := plist.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", ErrProjectFile, pbxproj, err)
	}
	objects, ok := raw["objects"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no object table", ErrProjectFile, pbxproj)
	}
	return &Project{Path: path, raw: raw, objects: objects}, nil
}

var workspaceRefRe = regexp.MustCompile(`location\s*=\s*"([^"]+\.xcodeproj)"`)

// projectFromWorkspace reads contents.xcworkspacedata and returns the
// first referenced .xcodeproj path.
func projectFromWorkspace(workspace string) (string, error) {
	data, err := os.ReadFile(filepath.Join(workspace, "contents.xcworkspacedata"))
	if err != nil {
		return "", fmt.Errorf("%w: reading workspace %s: %v", ErrProjectFile, workspace, err)
	}
	m := workspaceRefRe.FindSubmatch(data)
	if m == nil {
		return "", fmt.Errorf("%w: no .xcodeproj referenced by workspace %s", ErrProjectFile, workspace)
	}
	ref := string(m[1])
	for _, prefix := range []string{"group:", "container:", "absolute:", "self:"} {
		ref = strings.TrimPrefix(ref, prefix)
	}
	if filepath.IsAbs(ref) {
		return ref, nil
	}
	return filepath.Join(filepath.Dir(workspace), ref), nil
}

func (p *Project) dict(id any) map[string]any {
	key, ok := id.(string)
	if !ok {
		return nil
	}
	d, _ := p.objects[key].(map[string]any)
	return d
}

// TargetSettings walks rootObject → targets → configuration lists and
// returns every target/configuration pair.
func (p *Project) TargetSettings() []TargetSettings {
	var out []TargetSettings
	root := p.dict(p.raw["rootObject"])
	if root == nil {
		return nil
	}
	targets, _ := root["targets"].([]any)
	for _, tid := range targets {
		target := p.dict(tid)
		if target == nil {
			continue
		}
		name, _ := target["name"].(string)
		list := p.dict(target["buildConfigurationList"])
		if list == nil {
			continue
		}
		configs, _ := list["buildConfigurations"].([]any)
		for _, cid := range configs {
			config := p.dict(cid)
			if config == nil {
				continue
			}
			configName, _ := config["name"].(string)
			settings, _ := config["buildSettings"].(map[string]any)
			if settings == nil {
				settings = make(map[string]any)
				config["buildSettings"] = settings
			}
			out = append(out, TargetSettings{
				TargetName:    name,
				Configuration: configName,
				BundleID:      resolveBundleID(settings),
				settings:      settings,
			})
		}
	}
	return out
}

// projectSettings returns the project-level build configuration setting
// maps.
func (p *Project) projectSettings() []map[string]any {
	var out []map[string]any
	root := p.dict(p.raw["rootObject"])
	if root == nil {
		return nil
	}
	list := p.dict(root["buildConfigurationList"])
	if list == nil {
		return nil
	}
	configs, _ := list["buildConfigurations"].([]any)
	for _, cid := range configs {
		config := p.dict(cid)
		if config == nil {
			continue
		}
		settings, _ := config["buildSettings"].(map[string]any)
		if settings != nil {
			out = append(out, settings)
		}
	}
	return out
}

func resolveBundleID(settings map[string]any) string {
	id, _ := settings["PRODUCT_BUNDLE_IDENTIFIER"].(string)
	if strings.Contains(id, bundleIDBaseVar) {
		if base, ok := settings["PRODUCT_BUNDLE_IDENTIFIER_BASE"].(string); ok {
			id = strings.ReplaceAll(id, bundleIDBaseVar, base)
		}
	}
	return id
}

// SigningSettings are the values wired into matching targets. Empty
// fields are left untouched. An empty ProfileSpecifier removes the
// specifier keys so the profile UUID wins.
type SigningSettings struct {
	TeamID           string
	SigningStyle     string // Automatic or Manual
	CodeSignIdentity string
	ProfileUUID      string
	ProfileSpecifier string
}

// UpdateSigning sets signing keys on every configuration of targets
// whose bundle identifier matches, plus team and style at project level.
// Reports whether anything changed.
func (p *Project) UpdateSigning(bundleID string, s SigningSettings) bool {
	updated := false

	for _, settings := range p.projectSettings() {
		updated = setIfDiffers(settings, "DEVELOPMENT_TEAM", s.TeamID) || updated
		updated = setIfDiffers(settings, "CODE_SIGN_STYLE", s.SigningStyle) || updated
	}

	for _, ts := range p.TargetSettings() {
		if bundleID != "" && ts.BundleID != bundleID {
			continue
		}
		updated = setIfDiffers(ts.settings, "DEVELOPMENT_TEAM", s.TeamID) || updated
		updated = setIfDiffers(ts.settings, "CODE_SIGN_STYLE", s.SigningStyle) || updated
		updated = setIfDiffers(ts.settings, "CODE_SIGN_IDENTITY", s.CodeSignIdentity) || updated
		updated = setIfDiffers(ts.settings, "PROVISIONING_PROFILE", s.ProfileUUID) || updated

		if s.ProfileUUID == "" {
			continue
		}
		if s.ProfileSpecifier != "" {
			updated = setIfDiffers(ts.settings, "PROVISIONING_PROFILE_SPECIFIER", s.ProfileSpecifier) || updated
			for key := range ts.settings {
				if strings.HasPrefix(key, "PROVISIONING_PROFILE_SPECIFIER[sdk=") {
					updated = setIfDiffers(ts.settings, key, s.ProfileSpecifier) || updated
				}
			}
		} else {
			for key := range ts.settings {
				if key == "PROVISIONING_PROFILE_SPECIFIER" || strings.HasPrefix(key, "PROVISIONING_PROFILE_SPECIFIER[sdk=") {
					delete(ts.settings, key)
					updated = true
				}
			}
		}
	}
	return updated
}

func setIfDiffers(settings map[string]any, key, value string) bool {
	if value == "" {
		return false
	}
	if old, _ := settings[key].(string); old == value {
		return false
	}
	settings[key] = value
	return true
}

// Save serializes the project back to its pbxproj in OpenStep format.
func (p *Project) Save() error {
	data, err := plist.Marshal(p.raw, plist.OpenStepFormat)
	if err != nil {
		return fmt.Errorf("%w: serializing project: %v", ErrProjectFile, err)
	}
	pbxproj := filepath.Join(p.Path, "project.pbxproj")
	if !bytes.HasSuffix(data, []byte("\n")) {
		data = append(data, '\n')
	}
	if err := os.WriteFile(pbxproj, data, 0o644); err != nil {
		return fmt.Errorf("%w: writing %s: %v", ErrProjectFile, pbxproj, err)
	}
	log.WithField("path", pbxproj).Debug("saved project file")
	return nil
}
