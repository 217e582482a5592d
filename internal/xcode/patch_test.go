package xcode

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const patchFixture = `// !$*UTF8*$!
{
	buildSettings = {
		CODE_SIGN_STYLE = Manual;
		DEVELOPMENT_TEAM = OLDTEAM1;
		"DEVELOPMENT_TEAM[sdk=iphoneos*]" = OLDTEAM1;
		PROVISIONING_PROFILE = "old-uuid";
		"PROVISIONING_PROFILE[sdk=iphoneos*]" = "old-uuid";
		PROVISIONING_PROFILE_SPECIFIER = "Acme AppStore";
		"PROVISIONING_PROFILE_SPECIFIER[sdk=iphoneos*]" = "Acme AppStore";
	};
}
`

func writePatchTarget(t *testing.T) RawPatcher {
	t.Helper()
	proj := filepath.Join(t.TempDir(), "App.xcodeproj")
	require.NoError(t, os.MkdirAll(proj, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(proj, "project.pbxproj"), []byte(patchFixture), 0o644))
	return RawPatcher{ProjectPath: proj}
}

func readBack(t *testing.T, p RawPatcher) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(p.ProjectPath, "project.pbxproj"))
	require.NoError(t, err)
	return string(data)
}

func TestSetDevelopmentTeam(t *testing.T) {
	p := writePatchTarget(t)

	report, err := p.SetDevelopmentTeam("NEWTEAM9")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Matches)
	assert.True(t, report.Changed)

	content := readBack(t, p)
	assert.NotContains(t, content, "OLDTEAM1")
	assert.Contains(t, content, "DEVELOPMENT_TEAM = NEWTEAM9;")
	assert.Contains(t, content, `"DEVELOPMENT_TEAM[sdk=iphoneos*]" = NEWTEAM9;`)
}

func TestSetDevelopmentTeamIdempotent(t *testing.T) {
	p := writePatchTarget(t)

	_, err := p.SetDevelopmentTeam("NEWTEAM9")
	require.NoError(t, err)
	first := readBack(t, p)

	report, err := p.SetDevelopmentTeam("NEWTEAM9")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Matches)
	assert.False(t, report.Changed)
	assert.Equal(t, first, readBack(t, p))
}

func TestSetProvisioningProfile(t *testing.T) {
	p := writePatchTarget(t)

	report, err := p.SetProvisioningProfile("11111111-2222-3333-4444-555555555555")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Matches)
	assert.True(t, report.Changed)

	content := readBack(t, p)
	assert.Contains(t, content, `PROVISIONING_PROFILE = "11111111-2222-3333-4444-555555555555";`)
	assert.Contains(t, content, `"PROVISIONING_PROFILE[sdk=iphoneos*]" = "11111111-2222-3333-4444-555555555555";`)
	// the specifier keys are a different setting and stay untouched here
	assert.Contains(t, content, "PROVISIONING_PROFILE_SPECIFIER")

	again, err := p.SetProvisioningProfile("11111111-2222-3333-4444-555555555555")
	require.NoError(t, err)
	assert.False(t, again.Changed)
	assert.Equal(t, content, readBack(t, p))
}

func TestRemoveProfileSpecifier(t *testing.T) {
	p := writePatchTarget(t)

	report, err := p.RemoveProfileSpecifier()
	require.NoError(t, err)
	assert.Equal(t, 2, report.Matches)
	assert.True(t, report.Changed)

	content := readBack(t, p)
	assert.NotContains(t, content, "PROVISIONING_PROFILE_SPECIFIER")
	assert.Contains(t, content, "PROVISIONING_PROFILE = ")
	assert.Equal(t, len(strings.Split(patchFixture, "\n"))-2, len(strings.Split(content, "\n")))

	again, err := p.RemoveProfileSpecifier()
	require.NoError(t, err)
	assert.Zero(t, again.Matches)
	assert.False(t, again.Changed)
	assert.Equal(t, content, readBack(t, p))
}

func TestSetAssignmentsNoMatches(t *testing.T) {
	proj := filepath.Join(t.TempDir(), "App.xcodeproj")
	require.NoError(t, os.MkdirAll(proj, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(proj, "project.pbxproj"), []byte("{\n}\n"), 0o644))
	p := RawPatcher{ProjectPath: proj}

	report, err := p.SetDevelopmentTeam("TEAM")
	require.NoError(t, err)
	assert.Zero(t, report.Matches)
	assert.False(t, report.Changed)
}
