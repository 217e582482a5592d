package xcode

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixturePbxproj = `// !$*UTF8*$!
{
	archiveVersion = 1;
	classes = {};
	objectVersion = 56;
	objects = {
		AAAA0001 = {
			isa = PBXProject;
			buildConfigurationList = AAAA0002;
			targets = (AAAA0010);
		};
		AAAA0002 = {
			isa = XCConfigurationList;
			buildConfigurations = (AAAA0003);
		};
		AAAA0003 = {
			isa = XCBuildConfiguration;
			name = Release;
			buildSettings = {
				SDKROOT = iphoneos;
			};
		};
		AAAA0010 = {
			isa = PBXNativeTarget;
			name = Runner;
			buildConfigurationList = AAAA0011;
		};
		AAAA0011 = {
			isa = XCConfigurationList;
			buildConfigurations = (AAAA0012, AAAA0013);
		};
		AAAA0012 = {
			isa = XCBuildConfiguration;
			name = Debug;
			buildSettings = {
				PRODUCT_BUNDLE_IDENTIFIER = com.acme.app;
				DEVELOPMENT_TEAM = OLDTEAM1;
				PROVISIONING_PROFILE_SPECIFIER = "old profile name";
			};
		};
		AAAA0013 = {
			isa = XCBuildConfiguration;
			name = Release;
			buildSettings = {
				PRODUCT_BUNDLE_IDENTIFIER = "$(PRODUCT_BUNDLE_IDENTIFIER_BASE).app";
				PRODUCT_BUNDLE_IDENTIFIER_BASE = com.acme;
				DEVELOPMENT_TEAM = OLDTEAM1;
				"PROVISIONING_PROFILE[sdk=iphoneos*]" = "00000000-old-uuid";
			};
		};
	};
	rootObject = AAAA0001;
}
`

func writeProject(t *testing.T, dir, name string) string {
	t.Helper()
	proj := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(proj, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(proj, "project.pbxproj"), []byte(fixturePbxproj), 0o644))
	return proj
}

func TestOpenProjectTargetSettings(t *testing.T) {
	proj := writeProject(t, t.TempDir(), "App.xcodeproj")
	p, err := OpenProject(proj)
	require.NoError(t, err)

	settings := p.TargetSettings()
	require.Len(t, settings, 2)
	assert.Equal(t, "Runner", settings[0].TargetName)
	assert.Equal(t, "com.acme.app", settings[0].BundleID)
	// the Release configuration resolves $(PRODUCT_BUNDLE_IDENTIFIER_BASE)
	assert.Equal(t, "com.acme.app", settings[1].BundleID)
}

func TestUpdateSigningRoundTrip(t *testing.T) {
	proj := writeProject(t, t.TempDir(), "App.xcodeproj")
	p, err := OpenProject(proj)
	require.NoError(t, err)

	updated := p.UpdateSigning("com.acme.app", SigningSettings{
		TeamID:           "TEAM1234",
		SigningStyle:     "Manual",
		CodeSignIdentity: "Apple Distribution",
		ProfileUUID:      "11111111-2222-3333-4444-555555555555",
	})
	require.True(t, updated)
	require.NoError(t, p.Save())

	reloaded, err := OpenProject(proj)
	require.NoError(t, err)
	for _, ts := range reloaded.TargetSettings() {
		assert.Equal(t, "TEAM1234", ts.settings["DEVELOPMENT_TEAM"])
		assert.Equal(t, "Manual", ts.settings["CODE_SIGN_STYLE"])
		assert.Equal(t, "Apple Distribution", ts.settings["CODE_SIGN_IDENTITY"])
		assert.Equal(t, "11111111-2222-3333-4444-555555555555", ts.settings["PROVISIONING_PROFILE"])
		assert.NotContains(t, ts.settings, "PROVISIONING_PROFILE_SPECIFIER")
	}

	// second pass with identical values changes nothing
	assert.False(t, reloaded.UpdateSigning("com.acme.app", SigningSettings{
		TeamID:           "TEAM1234",
		SigningStyle:     "Manual",
		CodeSignIdentity: "Apple Distribution",
		ProfileUUID:      "11111111-2222-3333-4444-555555555555",
	}))
}

func TestUpdateSigningSkipsOtherBundleIDs(t *testing.T) {
	proj := writeProject(t, t.TempDir(), "App.xcodeproj")
	p, err := OpenProject(proj)
	require.NoError(t, err)

	p.UpdateSigning("com.other.app", SigningSettings{ProfileUUID: "uuid"})
	for _, ts := range p.TargetSettings() {
		assert.NotContains(t, ts.settings, "PROVISIONING_PROFILE")
	}
}

func TestOpenProjectFromWorkspace(t *testing.T) {
	dir := t.TempDir()
	writeProject(t, dir, "App.xcodeproj")
	ws := filepath.Join(dir, "App.xcworkspace")
	require.NoError(t, os.MkdirAll(ws, 0o755))
	contents := `<?xml version="1.0" encoding="UTF-8"?>
<Workspace version = "1.0">
   <FileRef location = "group:App.xcodeproj"></FileRef>
</Workspace>
`
	require.NoError(t, os.WriteFile(filepath.Join(ws, "contents.xcworkspacedata"), []byte(contents), 0o644))

	p, err := OpenProject(ws)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "App.xcodeproj"), p.Path)
	assert.Len(t, p.TargetSettings(), 2)
}

func TestOpenProjectMissing(t *testing.T) {
	_, err := OpenProject(filepath.Join(t.TempDir(), "Nope.xcodeproj"))
	assert.ErrorIs(t, err, ErrProjectFile)
}
