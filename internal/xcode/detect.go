package xcode

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/apex/log"
)

// maxSearchDepth bounds the native project walk.
const maxSearchDepth = 2

type ProjectKind string

const (
	KindFlutter   ProjectKind = "flutter"
	KindWorkspace ProjectKind = "workspace"
	KindProject   ProjectKind = "project"
)

// Detected is a located project or workspace.
type Detected struct {
	Kind ProjectKind
	Path string
}

// Detect locates the iOS project under base. Flutter checkouts are
// recognized first by their conventional ios/Runner.xcodeproj; otherwise
// a bounded-depth walk prefers workspaces over bare projects.
func Detect(base string) (*Detected, error) {
	base, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("%w: resolving %s: %v", ErrProjectFile, base, err)
	}

	runner := filepath.Join(base, "ios", "Runner.xcodeproj")
	if info, err := os.Stat(runner); err == nil && info.IsDir() {
		log.WithField("path", runner).Debug("detected Flutter iOS project")
		return &Detected{Kind: KindFlutter, Path: runner}, nil
	}

	if found := searchNative(base, 0); found != nil {
		return found, nil
	}
	return nil, fmt.Errorf("%w: no iOS project found in %s", ErrProjectFile, base)
}

func searchNative(dir string, depth int) *Detected {
	if depth > maxSearchDepth {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, e := range entries {
		if e.IsDir() && strings.HasSuffix(e.Name(), ".xcworkspace") {
			return &Detected{Kind: KindWorkspace, Path: filepath.Join(dir, e.Name())}
		}
	}
	for _, e := range entries {
		if e.IsDir() && strings.HasSuffix(e.Name(), ".xcodeproj") {
			return &Detected{Kind: KindProject, Path: filepath.Join(dir, e.Name())}
		}
	}
	for _, e := range entries {
		if !e.IsDir() || strings.HasSuffix(e.Name(), ".xcworkspace") || strings.HasSuffix(e.Name(), ".xcodeproj") {
			continue
		}
		if found := searchNative(filepath.Join(dir, e.Name()), depth+1); found != nil {
			return found
		}
	}
	return nil
}

// Match is a project and target whose bundle identifier matched.
type Match struct {
	ProjectPath   string
	TargetName    string
	Configuration string
}

// FindProjectWithBundleID locates the project declaring the bundle
// identifier, trying the conventional detection first and falling back
// to scanning every .xcodeproj under the search path.
func FindProjectWithBundleID(bundleID, searchPath string) (*Match, error) {
	if detected, err := Detect(searchPath); err == nil {
		if m := matchProject(detected.Path, bundleID); m != nil {
			return m, nil
		}
	}

	var projects []string
	filepath.WalkDir(searchPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() && strings.HasSuffix(d.Name(), ".xcodeproj") {
			projects = append(projects, path)
			return filepath.SkipDir
		}
		return nil
	})
	sort.Strings(projects)
	for _, path := range projects {
		if m := matchProject(path, bundleID); m != nil {
			return m, nil
		}
	}
	return nil, fmt.Errorf("%w: no project with bundle ID %s under %s", ErrProjectFile, bundleID, searchPath)
}

func matchProject(path, bundleID string) *Match {
	project, err := OpenProject(path)
	if err != nil {
		log.WithError(err).WithField("path", path).Debug("skipping unreadable project")
		return nil
	}
	for _, ts := range project.TargetSettings() {
		if ts.BundleID == bundleID {
			return &Match{ProjectPath: project.Path, TargetName: ts.TargetName, Configuration: ts.Configuration}
		}
	}
	return nil
}
