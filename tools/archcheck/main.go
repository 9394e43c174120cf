// Command archcheck fails when a package imports from a layer above it.
package main

import (
	"fmt"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const modulePath = "github.com/yairfalse/lwcomply/"

type Level int

const (
	LevelCmd Level = iota + 1
	LevelWiring
	LevelWorkflow
	LevelTags
	LevelSources
	LevelPlumbing
	LevelFoundation
	LevelPkg
)

var packageLevels = map[string]Level{
	"cmd":                   LevelCmd,
	"internal/app":          LevelWiring,
	"internal/aggregator":   LevelWorkflow,
	"internal/alerts":       LevelWorkflow,
	"internal/output":       LevelWorkflow,
	"internal/analyzer":     LevelTags,
	"internal/resolver":     LevelTags,
	"internal/inventory":    LevelSources,
	"internal/lacework":     LevelSources,
	"internal/awsinventory": LevelSources,
	"internal/cache":        LevelPlumbing,
	"internal/transport":    LevelPlumbing,
	"internal/storage":      LevelFoundation,
	"internal/errors":       LevelFoundation,
	"internal/logger":       LevelFoundation,
	"pkg":                   LevelPkg,
}

type Violation struct {
	FromFile    string
	FromPackage string
	FromLevel   Level
	ToPackage   string
	ToLevel     Level
}

// getPackageLevel returns the level of the longest matching prefix.
func getPackageLevel(pkgPath string) Level {
	best, level := -1, Level(0)
	for prefix, l := range packageLevels {
		if (pkgPath == prefix || strings.HasPrefix(pkgPath, prefix+"/")) && len(prefix) > best {
			best, level = len(prefix), l
		}
	}
	return level
}

func getPackageFromPath(root, filePath string) string {
	rel, err := filepath.Rel(root, filepath.Dir(filePath))
	if err != nil {
		return filepath.ToSlash(filepath.Dir(filePath))
	}
	return filepath.ToSlash(rel)
}

func checkFile(root, filePath string) ([]Violation, error) {
	var violations []Violation

	fset := token.NewFileSet()
	node, err := parser.ParseFile(fset, filePath, nil, parser.ImportsOnly)
	if err != nil {
		return nil, err
	}

	fromPackage := getPackageFromPath(root, filePath)
	fromLevel := getPackageLevel(fromPackage)
	if fromLevel == 0 {
		return violations, nil
	}

	for _, imp := range node.Imports {
		importPath := strings.Trim(imp.Path.Value, `"`)
		if !strings.HasPrefix(importPath, modulePath) {
			continue
		}
		importPath = strings.TrimPrefix(importPath, modulePath)

		toLevel := getPackageLevel(importPath)
		if toLevel == 0 {
			continue
		}
		if toLevel < fromLevel {
			violations = append(violations, Violation{
				FromFile:    filePath,
				FromPackage: fromPackage,
				FromLevel:   fromLevel,
				ToPackage:   importPath,
				ToLevel:     toLevel,
			})
		}
	}

	return violations, nil
}

func walkGoFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") || name == "vendor" || name == "testdata") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(path, ".go") {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

func levelName(l Level) string {
	switch l {
	case LevelCmd:
		return "cmd"
	case LevelWiring:
		return "wiring"
	case LevelWorkflow:
		return "workflow"
	case LevelTags:
		return "tags"
	case LevelSources:
		return "sources"
	case LevelPlumbing:
		return "plumbing"
	case LevelFoundation:
		return "foundation"
	case LevelPkg:
		return "pkg"
	default:
		return "unknown"
	}
}

func check(root string) ([]Violation, int, error) {
	files, err := walkGoFiles(root)
	if err != nil {
		return nil, 0, err
	}

	var all []Violation
	for _, file := range files {
		violations, err := checkFile(root, file)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to check %s: %w", file, err)
		}
		all = append(all, violations...)
	}
	return all, len(files), nil
}

func main() {
	root := "."
	if len(os.Args) > 1 {
		root = os.Args[1]
	}

	violations, checked, err := check(root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Checked %d Go files\n", checked)
	if len(violations) == 0 {
		fmt.Println("No layering violations found")
		return
	}

	sort.Slice(violations, func(i, j int) bool { return violations[i].FromFile < violations[j].FromFile })
	fmt.Printf("Found %d layering violations:\n", len(violations))
	for _, v := range violations {
		fmt.Printf("  %s (%s) imports %s (%s)\n", v.FromFile, levelName(v.FromLevel), v.ToPackage, levelName(v.ToLevel))
	}
	fmt.Println()
	fmt.Println("A package may only import from its own layer or below.")
	os.Exit(1)
}
