package main

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/hackforge/nand2tetris-toolchain/pkg/jack"

	"github.com/teris-io/cli"
)

var Description = strings.ReplaceAll(`
The Jack front-end walks a directory (or an explicit file list) of Jack source
files and reports the declarative shape of each class it finds: its name, its
field declarations and the signature of each of its subroutines. It does not
compile Jack down to VM code.
`, "\n", " ")

var JackCompiler = cli.New(Description).
	WithArg(cli.NewArg("inputs", "The source (.jack) files or directories to inspect").
		AsOptional().WithType(cli.TypeString)).
	WithAction(Handler)

func Handler(args []string, options map[string]string) int {
	if len(args) < 1 {
		fmt.Printf("ERROR: Not enough arguments provided, use --help\n")
		return -1
	}

	// The aggregation of all the Translation Units (TUs) found during the input walk.
	TUs, program := []string{}, jack.Program{}

	for _, input := range args {
		filepath.Walk(input, func(path string, info fs.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() || filepath.Ext(path) != ".jack" {
				return nil // We recurse on dirs and ignore other filetypes
			}

			TUs = append(TUs, path)
			return nil
		})
	}

	for _, tu := range TUs {
		content, err := os.ReadFile(tu)
		if err != nil {
			fmt.Printf("ERROR: Unable to open input file: %s\n", err)
			return -1
		}

		parser := jack.NewParser(bytes.NewReader(content))
		// Removes root directory and file extension to use as module name
		filename, extension := path.Base(tu), path.Ext(tu)
		class, err := parser.Parse()
		if err != nil {
			fmt.Printf("ERROR: Unable to complete 'parsing' pass on %q: %s\n", tu, err)
			return -1
		}
		program[strings.TrimSuffix(filename, extension)] = class
	}

	for _, tu := range TUs {
		filename, extension := path.Base(tu), path.Ext(tu)
		class := program[strings.TrimSuffix(filename, extension)]
		fmt.Println(describeClass(class))
	}

	return 0
}

// describeClass renders a class' interface shape as a single human-readable line per
// field and subroutine signature, prefixed by the class declaration itself.
func describeClass(class jack.Class) string {
	var out strings.Builder
	fmt.Fprintf(&out, "class %s {\n", class.Name)

	for _, field := range class.Fields {
		fmt.Fprintf(&out, "  %s %s %s\n", field.Type, field.DataType, field.Name)
	}
	for _, subroutine := range class.Subroutines {
		args := make([]string, len(subroutine.Arguments))
		for i, arg := range subroutine.Arguments {
			args[i] = fmt.Sprintf("%s %s", arg.DataType, arg.Name)
		}
		fmt.Fprintf(&out, "  %s %s %s(%s)\n", subroutine.Type, subroutine.Return, subroutine.Name, strings.Join(args, ", "))
	}

	out.WriteString("}")
	return out.String()
}

func main() { os.Exit(JackCompiler.Run(os.Args, os.Stdout)) }
