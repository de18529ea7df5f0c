package jack

// ----------------------------------------------------------------------------
// General information

// This section contains some general information about the Jack programming language.
//
// A program is a container of classes (the only top-level construct) and is started by
// locating the Main class and executing its 'main' method. The front-end here only goes
// as far as lexing and recognizing the declarative shape of a class: its name, its field
// declarations and the signature (name, return type, arguments) of each subroutine. It
// does not build a statement/expression tree and does not compile down to VM code; a
// class body is tokenized and its brace nesting validated, but the statements inside a
// subroutine are skipped rather than parsed.
type Program map[string]Class

// ----------------------------------------------------------------------------
// Classes

// A Class notes the interface shape of a Jack class: its fields and the signature of
// each of its subroutines, without descending into subroutine bodies.
type Class struct {
	Name        string       // The class name or id, will also identify the instantiated object type
	Fields      []Variable   // The variable (static or not) declared directly on the class
	Subroutines []Subroutine // The subroutine signatures declared on the class
}

// ----------------------------------------------------------------------------
// Subroutines

// A Subroutine signature: its name, kind and the type of its return value and arguments.
// The subroutine body is intentionally not represented; see the 'Program' doc comment.
type Subroutine struct {
	Name string         // Name/id, w/ the class id will identify universally the subroutine
	Type SubroutineType // Function type (constructor, method or function)

	Return    DataType   // The type of value returned by the subroutine ('void' for no value)
	Arguments []Variable // The parameter list, in declaration order
}

type SubroutineType string // Enum to manage the different types allowed for a Subroutine

const (
	Method      SubroutineType = "method"
	Function    SubroutineType = "function"
	Constructor SubroutineType = "constructor"
)

// ----------------------------------------------------------------------------
// Variables

// A Variable is a named, typed declaration: a class field or a subroutine parameter.
type Variable struct {
	Name      string   // The var name, acts as identifier in the scope it is declared
	Type      VarType  // The variable type helps determine the scope of the variable
	DataType  DataType // The data type defines how to read or cast the value contained by the variable
	ClassName string   // The additional and specific class type if (DataType = Object)
}

type VarType string // Enum to manage the kinds of declaration allowed for a Variable

const (
	Field     VarType = "field"
	Static    VarType = "static"
	Parameter VarType = "parameter"
)

type DataType string // Enum to manage the data types allowed for a Variable

const (
	Int    DataType = "int"
	Bool   DataType = "bool"
	Char   DataType = "char"
	Void   DataType = "void"
	String DataType = "string"
	Object DataType = "object"
)
