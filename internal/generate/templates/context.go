// Package templates renders the embedded TypeScript model templates.
// Contexts are strongly typed: every variable a template can reference is
// an exported field, so the data a template needs is statically
// discoverable instead of being assembled into an untyped map.
package templates

// Property is one generated interface or class property.
type Property struct {
	// Name is the camelCase property name.
	Name string
	// Type is the TypeScript type expression.
	Type string
	// Optional marks nullable columns, rendered as `name?:`.
	Optional bool
	// Column is the source column name, kept for documentation.
	Column string
	// Comment carries the column comment when the database has one.
	Comment string
}

// ModelContext drives the data_interface, model, and reactive_model
// templates for a single table. The import specifiers are precomputed
// from the output layout so templates never do path math.
type ModelContext struct {
	Table             string
	ModelName         string
	ReactiveModelName string
	DataInterfaceName string
	FileBase          string
	GeneratedAt       string

	// DataImport is how the model class imports its data interface.
	DataImport string
	// ModelImport is how the reactive class imports the model class.
	ModelImport string
	// ReactiveDataImport is how the reactive class imports the data
	// interface.
	ReactiveDataImport string

	Properties             []Property
	RelationshipProperties []string
	Imports                []string
	ConstructorExclusions  []string
	Documentation          []string
	Registration           string
	Patterns               []string
}

// IndexEntry is one model's export group in the index template.
type IndexEntry struct {
	ModelName         string
	ReactiveModelName string
	DataInterfaceName string
	FileBase          string

	ModelImport    string
	ReactiveImport string
	DataImport     string
}

// IndexContext drives the index template, which re-exports every
// generated model from a single entry point.
type IndexContext struct {
	GeneratedAt string
	Models      []IndexEntry
}
