package jack

import (
	"fmt"
	"io"

	"github.com/hackforge/nand2tetris-toolchain/pkg/utils"
)

// ----------------------------------------------------------------------------
// Jack Parser

// Parser recognizes the declarative shape of a single Jack class: its name, its field
// declarations and the signature of each of its subroutines. It deliberately stops
// there — a subroutine body is skipped wholesale (its brace nesting is still validated)
// rather than descended into, since statement/expression compilation is out of scope.
type Parser struct{ reader io.Reader }

// Initializes and returns to the caller a brand new 'Parser' struct.
// Requires the argument io.Reader 'r' to be valid and usable.
func NewParser(r io.Reader) Parser {
	return Parser{reader: r}
}

// Parse tokenizes the underlying reader and recognizes a single 'class ... { ... }'
// declaration, returning its fields and subroutine signatures.
func (p *Parser) Parse() (Class, error) {
	tokenizer := NewTokenizer(p.reader)
	tokens, err := tokenizer.Tokenize()
	if err != nil {
		return Class{}, err
	}

	stream := NewTokenStream(tokens)
	return compileClass(stream)
}

// compileClass mirrors 'class' keyword, class name, '{', a sequence of field
// declarations and subroutine declarations, then the closing '}'.
func compileClass(s *TokenStream) (Class, error) {
	if _, err := s.Eat(Keyword, "class"); err != nil {
		return Class{}, fmt.Errorf("class declaration: %s", err)
	}
	name, err := s.Eat(Identifier, "")
	if err != nil {
		return Class{}, fmt.Errorf("class name: %s", err)
	}
	if _, err := s.Eat(Symbol, "{"); err != nil {
		return Class{}, fmt.Errorf("class body: %s", err)
	}

	class := Class{Name: name.Value}
	for s.HasMore() && s.Peek().Value != "}" {
		switch s.Peek().Value {
		case "static", "field":
			fields, err := compileClassVarDec(s)
			if err != nil {
				return Class{}, err
			}
			class.Fields = append(class.Fields, fields...)
		case "constructor", "function", "method":
			subroutine, err := compileSubroutine(s)
			if err != nil {
				return Class{}, err
			}
			class.Subroutines = append(class.Subroutines, subroutine)
		default:
			return Class{}, fmt.Errorf("unexpected token %q at class scope", s.Peek().Value)
		}
	}

	if _, err := s.Eat(Symbol, "}"); err != nil {
		return Class{}, fmt.Errorf("class body: %s", err)
	}
	return class, nil
}

// compileClassVarDec mirrors ('static'|'field') type name (',' name)* ';'.
func compileClassVarDec(s *TokenStream) ([]Variable, error) {
	kind, err := s.Advance() // 'static' or 'field', already peeked by the caller
	if err != nil {
		return nil, err
	}
	varType := Static
	if kind.Value == "field" {
		varType = Field
	}

	dataType, className, err := compileType(s)
	if err != nil {
		return nil, fmt.Errorf("field declaration: %s", err)
	}

	var fields []Variable
	for {
		name, err := s.Eat(Identifier, "")
		if err != nil {
			return nil, fmt.Errorf("field declaration: %s", err)
		}
		fields = append(fields, Variable{Name: name.Value, Type: varType, DataType: dataType, ClassName: className})

		if s.Peek().Value != "," {
			break
		}
		if _, err := s.Eat(Symbol, ","); err != nil {
			return nil, err
		}
	}

	if _, err := s.Eat(Symbol, ";"); err != nil {
		return nil, fmt.Errorf("field declaration: %s", err)
	}
	return fields, nil
}

// compileSubroutine mirrors ('constructor'|'function'|'method') returnType name
// '(' parameterList ')' subroutineBody, recording only the resulting signature.
func compileSubroutine(s *TokenStream) (Subroutine, error) {
	kind, err := s.Advance() // 'constructor', 'function' or 'method', already peeked
	if err != nil {
		return Subroutine{}, err
	}

	returnType, _, err := compileType(s)
	if err != nil {
		return Subroutine{}, fmt.Errorf("subroutine declaration: %s", err)
	}
	name, err := s.Eat(Identifier, "")
	if err != nil {
		return Subroutine{}, fmt.Errorf("subroutine name: %s", err)
	}

	if _, err := s.Eat(Symbol, "("); err != nil {
		return Subroutine{}, fmt.Errorf("parameter list: %s", err)
	}
	args, err := compileParameterList(s)
	if err != nil {
		return Subroutine{}, fmt.Errorf("parameter list: %s", err)
	}
	if _, err := s.Eat(Symbol, ")"); err != nil {
		return Subroutine{}, fmt.Errorf("parameter list: %s", err)
	}

	if err := skipSubroutineBody(s); err != nil {
		return Subroutine{}, fmt.Errorf("subroutine body of %q: %s", name.Value, err)
	}

	return Subroutine{Name: name.Value, Type: SubroutineType(kind.Value), Return: returnType, Arguments: args}, nil
}

// compileParameterList mirrors ((type name) (',' type name)*)?, stopping at ')'.
func compileParameterList(s *TokenStream) ([]Variable, error) {
	var args []Variable
	for s.Peek().Value != ")" {
		dataType, className, err := compileType(s)
		if err != nil {
			return nil, err
		}
		name, err := s.Eat(Identifier, "")
		if err != nil {
			return nil, err
		}
		args = append(args, Variable{Name: name.Value, Type: Parameter, DataType: dataType, ClassName: className})

		if s.Peek().Value == "," {
			if _, err := s.Eat(Symbol, ","); err != nil {
				return nil, err
			}
		}
	}
	return args, nil
}

// compileType recognizes a builtin type keyword or a class-name identifier, returning
// the resolved DataType and (when DataType is Object) the referenced class name.
func compileType(s *TokenStream) (DataType, string, error) {
	tok, err := s.Advance()
	if err != nil {
		return "", "", err
	}

	switch tok.Value {
	case "int":
		return Int, "", nil
	case "char":
		return Char, "", nil
	case "boolean":
		return Bool, "", nil
	case "void":
		return Void, "", nil
	default:
		if tok.Type != Identifier {
			return "", "", fmt.Errorf("expected a type, got %q", tok.Value)
		}
		return Object, tok.Value, nil
	}
}

// skipSubroutineBody consumes the subroutine's '{ ... }' block without descending into
// its statements, using a bracket stack so that nested '{'/'}' inside the body (if
// blocks, while blocks, ...) don't prematurely end the scan.
func skipSubroutineBody(s *TokenStream) error {
	if _, err := s.Eat(Symbol, "{"); err != nil {
		return err
	}

	closerOf := map[string]string{"{": "}", "(": ")", "[": "]"}

	depth := utils.NewStack[string]("{")
	for depth.Count() > 0 {
		tok, err := s.Advance()
		if err != nil {
			return fmt.Errorf("unterminated subroutine body: %s", err)
		}

		switch tok.Value {
		case "{", "(", "[":
			depth.Push(tok.Value)
		case "}", ")", "]":
			opener, err := depth.Pop()
			if err != nil || closerOf[opener] != tok.Value {
				return fmt.Errorf("unbalanced %q", tok.Value)
			}
		}
	}
	return nil
}
