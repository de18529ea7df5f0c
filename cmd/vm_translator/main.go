package main

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/teris-io/cli"
	"github.com/hackforge/nand2tetris-toolchain/pkg/asm"
	"github.com/hackforge/nand2tetris-toolchain/pkg/vm"
)

var Description = strings.ReplaceAll(`
The VM Translator translates programs (composed of multiple modules/files) written in
the VM language into Hack assembly code that can be further elaborated. The VM language
is a higher-level (bytecode'like) language tailored for use with the Hack computer arch.

The input can either be a single .vm file, a list of .vm files, or a single directory:
in the latter case every '*.vm' file directly inside it is translated as one program.
`, "\n", " ")

var VmTranslator = cli.New(Description).
	// 'AsOptional()' allows to have more than one input .vm file, or a single directory
	WithArg(cli.NewArg("inputs", "The bytecode (.vm) file(s), or a directory of them").
		AsOptional().WithType(cli.TypeString)).
	WithOption(cli.NewOption("output", "The compiled binary output (.asm)").
		WithType(cli.TypeString)).
	WithOption(cli.NewOption("bootstrap", "Forces inclusion of bootstrap code in the final .asm file").
		WithType(cli.TypeBool)).
	WithAction(Handler)

func Handler(args []string, options map[string]string) int {
	if len(args) < 1 || options["output"] == "" {
		fmt.Printf("ERROR: Not enough arguments provided, use --help\n")
		return -1
	}

	inputs, err := resolveInputs(args)
	if err != nil {
		fmt.Printf("ERROR: Unable to resolve input files: %s\n", err)
		return -1
	}

	output, err := os.Create(options["output"])
	if err != nil {
		fmt.Printf("ERROR: Unable to open output file: %s\n", err)
		return -1
	}
	defer output.Close()

	// Allocates a 'vm.Program' struct to save all the parsed translation units
	// (the .vm files) that will be parsed and lowered independently and then
	// sent to the codegen phase (that will create a monolithic compiled output).
	program := vm.Program{}
	bootstrap := false

	for _, input := range inputs {
		content, err := os.ReadFile(input)
		if err != nil {
			fmt.Printf("ERROR: Unable to open input file: %s\n", err)
			return -1
		}
		if filepath.Base(input) == "Sys.vm" {
			bootstrap = true
		}

		// Instantiate a parser for the Vm program
		parser := vm.NewParser(bytes.NewReader(content))
		// Parses the input file content and extracts a 'vm.Module' (a flat operation list) from it.
		program[input], err = parser.Parse()
		if err != nil {
			fmt.Printf("ERROR: Unable to complete 'parsing' pass for '%s': %s\n", input, err)
			return -1
		}
	}

	// '--bootstrap' is an explicit override atop the Sys.vm auto-detection above: it
	// can force bootstrap code in even for a program that has no Sys.vm of its own
	// (e.g. testing a single leaf module against the OS-less reference CPU emulator).
	if _, explicit := options["bootstrap"]; explicit {
		bootstrap = true
	}

	// Instantiate a lowerer to convert the program from Vm to Asm. A single Lowerer
	// instance is shared across the whole run so its label/call counters stay unique
	// program-wide, never just per-file.
	lowerer := vm.NewLowerer()
	asmProgram := asm.Program{}

	if bootstrap {
		bootCode, err := lowerer.Bootstrap()
		if err != nil {
			fmt.Printf("ERROR: Unable to generate bootstrap code: %s\n", err)
			return -1
		}
		asmProgram = append(asmProgram, bootCode...)
	}

	translated, err := lowerer.LowerProgram(program)
	if err != nil {
		fmt.Printf("ERROR: Unable to complete 'lowering' pass: %s\n", err)
		return -1
	}
	asmProgram = append(asmProgram, translated...)
	asmProgram = append(asmProgram, lowerer.TerminationTail(bootstrap || len(inputs) > 1)...)

	// Now, instantiates a code generator for the Asm (compiled) program
	codegen := asm.NewCodeGenerator(asmProgram)
	// Iterates over each instruction and spits out the relative textual representation.
	compiled, err := codegen.Generate()
	if err != nil {
		fmt.Printf("ERROR: Unable to complete 'codegen' pass: %s\n", err)
		return -1
	}

	// Buffered: a plain file Write per-line on a program with thousands of instructions
	// would otherwise dominate the runtime in syscall overhead.
	writer := bufio.NewWriter(output)
	for _, line := range compiled {
		fmt.Fprintln(writer, line)
	}
	if err := writer.Flush(); err != nil {
		fmt.Printf("ERROR: Unable to flush output file: %s\n", err)
		return -1
	}

	return 0
}

// resolveInputs normalizes the CLI 'inputs' argument into a sorted list of .vm file
// paths. A single directory argument expands to every '*.vm' file directly inside it;
// otherwise each argument is treated as an explicit file path. Sorting here (rather
// than relying on filesystem iteration order, or the user's argument order) is what
// makes the emitted assembly a pure function of the input file set.
//
// Every path is required to exist, and directory mode is required to match at least
// one '*.vm' file, before this returns: the caller must not open the output file on
// a driver error (missing argument, nonexistent path, empty directory).
func resolveInputs(args []string) ([]string, error) {
	if len(args) == 1 {
		info, err := os.Stat(args[0])
		if err != nil {
			return nil, fmt.Errorf("path '%s' does not exist", args[0])
		}

		if info.IsDir() {
			matches, err := filepath.Glob(filepath.Join(args[0], "*.vm"))
			if err != nil {
				return nil, err
			}
			if len(matches) == 0 {
				return nil, fmt.Errorf("directory '%s' contains no '*.vm' files", args[0])
			}
			sort.Strings(matches)
			return matches, nil
		}
	}

	for _, arg := range args {
		if _, err := os.Stat(arg); err != nil {
			return nil, fmt.Errorf("path '%s' does not exist", arg)
		}
	}

	inputs := append([]string{}, args...)
	sort.Strings(inputs)
	return inputs, nil
}

func main() { os.Exit(VmTranslator.Run(os.Args, os.Stdout)) }
