package generate

import (
	"path"
	"strings"
)

// Layout fixes where each generated file lands relative to the output base
// directory, and derives the module specifiers the generated files use to
// import each other. All directories are slash-separated and relative to
// the base; "." means the base itself.
type Layout struct {
	TypesDir    string
	ModelsDir   string
	ReactiveDir string
}

// DefaultLayout places models and reactive models at the output root and
// data interfaces under types/.
func DefaultLayout() Layout {
	return Layout{TypesDir: "types", ModelsDir: ".", ReactiveDir: "."}
}

func (l Layout) normalized() Layout {
	d := DefaultLayout()
	if l.TypesDir == "" {
		l.TypesDir = d.TypesDir
	}
	if l.ModelsDir == "" {
		l.ModelsDir = d.ModelsDir
	}
	if l.ReactiveDir == "" {
		l.ReactiveDir = d.ReactiveDir
	}
	return l
}

// DataFile returns the output-relative path of a table's data interface.
func (l Layout) DataFile(table string) string {
	return path.Join(l.normalized().TypesDir, DataFileName(table))
}

// ModelFile returns the output-relative path of a table's model class.
func (l Layout) ModelFile(table string) string {
	return path.Join(l.normalized().ModelsDir, ModelFileName(table))
}

// ReactiveFile returns the output-relative path of a table's reactive
// model class.
func (l Layout) ReactiveFile(table string) string {
	return path.Join(l.normalized().ReactiveDir, ReactiveFileName(table))
}

// IndexFile returns the output-relative path of the barrel file. It sits
// with the model classes.
func (l Layout) IndexFile() string {
	return path.Join(l.normalized().ModelsDir, "index.ts")
}

// DataImport is the specifier a model class uses to import its data
// interface.
func (l Layout) DataImport(table string) string {
	n := l.normalized()
	return importSpec(n.ModelsDir, n.TypesDir, strings.TrimSuffix(DataFileName(table), ".ts"))
}

// ModelImport is the specifier a reactive class uses to import its model.
func (l Layout) ModelImport(table string) string {
	n := l.normalized()
	return importSpec(n.ReactiveDir, n.ModelsDir, FileBase(table))
}

// ReactiveDataImport is the specifier a reactive class uses to import the
// data interface.
func (l Layout) ReactiveDataImport(table string) string {
	n := l.normalized()
	return importSpec(n.ReactiveDir, n.TypesDir, strings.TrimSuffix(DataFileName(table), ".ts"))
}

// IndexModelImport is the specifier the barrel file uses for a model.
func (l Layout) IndexModelImport(table string) string {
	n := l.normalized()
	return importSpec(n.ModelsDir, n.ModelsDir, FileBase(table))
}

// IndexReactiveImport is the specifier the barrel file uses for a
// reactive model.
func (l Layout) IndexReactiveImport(table string) string {
	n := l.normalized()
	return importSpec(n.ModelsDir, n.ReactiveDir, strings.TrimSuffix(ReactiveFileName(table), ".ts"))
}

// IndexDataImport is the specifier the barrel file uses for a data
// interface.
func (l Layout) IndexDataImport(table string) string {
	n := l.normalized()
	return importSpec(n.ModelsDir, n.TypesDir, strings.TrimSuffix(DataFileName(table), ".ts"))
}

// importSpec builds a relative ES module specifier from one layout
// directory to a file stem in another. TypeScript resolvers require the
// leading "./" on relative specifiers.
func importSpec(fromDir, toDir, stem string) string {
	spec := path.Join(relDir(fromDir, toDir), stem)
	if !strings.HasPrefix(spec, "../") {
		spec = "./" + spec
	}
	return spec
}

// relDir computes the relative path between two slash-separated,
// base-relative directories without touching the OS path package.
func relDir(from, to string) string {
	fromParts := splitDir(from)
	toParts := splitDir(to)

	common := 0
	for common < len(fromParts) && common < len(toParts) && fromParts[common] == toParts[common] {
		common++
	}

	var parts []string
	for i := common; i < len(fromParts); i++ {
		parts = append(parts, "..")
	}
	parts = append(parts, toParts[common:]...)
	if len(parts) == 0 {
		return "."
	}
	return path.Join(parts...)
}

func splitDir(dir string) []string {
	dir = path.Clean(dir)
	if dir == "." || dir == "/" {
		return nil
	}
	return strings.Split(dir, "/")
}
