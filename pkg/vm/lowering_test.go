package vm_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hackforge/nand2tetris-toolchain/pkg/asm"
	"github.com/hackforge/nand2tetris-toolchain/pkg/vm"
)

// render lowers 'module' under 'fileName' and flattens the resulting asm.Program
// into its textual form (comments included) for substring assertions.
func render(t *testing.T, fileName string, module vm.Module) string {
	t.Helper()

	lowerer := vm.NewLowerer()
	lowerer.SetCurrentFile(fileName)

	program, err := lowerer.LowerModule(module)
	require.NoError(t, err)

	codegen := asm.NewCodeGenerator(program)
	lines, err := codegen.Generate()
	require.NoError(t, err)

	return strings.Join(lines, "\n")
}

func TestLowerMemorySegments(t *testing.T) {
	t.Run("constant push cannot be popped", func(t *testing.T) {
		lowerer := vm.NewLowerer()
		_, err := lowerer.LowerModule(vm.Module{vm.MemoryOp{Operation: vm.Pop, Segment: vm.Constant, Offset: 1}})
		require.Error(t, err)
	})

	t.Run("local/argument/this/that resolve through their base register", func(t *testing.T) {
		out := render(t, "Main.vm", vm.Module{
			vm.MemoryOp{Operation: vm.Push, Segment: vm.Local, Offset: 2},
			vm.MemoryOp{Operation: vm.Pop, Segment: vm.Argument, Offset: 1},
		})
		require.Contains(t, out, "@LCL")
		require.Contains(t, out, "@ARG")
	})

	t.Run("temp is bound to RAM offset 5..12", func(t *testing.T) {
		out := render(t, "Main.vm", vm.Module{vm.MemoryOp{Operation: vm.Push, Segment: vm.Temp, Offset: 3}})
		require.Contains(t, out, "@8") // tempBase(5) + offset(3)

		lowerer := vm.NewLowerer()
		_, err := lowerer.LowerModule(vm.Module{vm.MemoryOp{Operation: vm.Push, Segment: vm.Temp, Offset: 8}})
		require.Error(t, err)
	})

	t.Run("pointer 0/1 alias THIS/THAT", func(t *testing.T) {
		out := render(t, "Main.vm", vm.Module{vm.MemoryOp{Operation: vm.Pop, Segment: vm.Pointer, Offset: 0}})
		require.Contains(t, out, "@THIS")

		lowerer := vm.NewLowerer()
		_, err := lowerer.LowerModule(vm.Module{vm.MemoryOp{Operation: vm.Push, Segment: vm.Pointer, Offset: 2}})
		require.Error(t, err)
	})

	t.Run("static is scoped by the current file's basename", func(t *testing.T) {
		out := render(t, "Counter.vm", vm.Module{vm.MemoryOp{Operation: vm.Pop, Segment: vm.Static, Offset: 4}})
		require.Contains(t, out, "@Counter.4")
	})
}

func TestLowerComparisons(t *testing.T) {
	t.Run("eq/gt/lt mint unique label pairs per call site", func(t *testing.T) {
		out := render(t, "Main.vm", vm.Module{
			vm.ArithmeticOp{Operation: vm.Eq},
			vm.ArithmeticOp{Operation: vm.Eq},
		})
		require.Contains(t, out, "(EQ_TRUE_1)")
		require.Contains(t, out, "(EQ_TRUE_2)")
	})
}

func TestLowerControlFlow(t *testing.T) {
	t.Run("labels and jumps are scoped to the enclosing function", func(t *testing.T) {
		out := render(t, "Main.vm", vm.Module{
			vm.FuncDecl{Name: "Main.loop", NLocal: 0},
			vm.LabelDecl{Name: "AGAIN"},
			vm.GotoOp{Jump: vm.Unconditional, Label: "AGAIN"},
			vm.GotoOp{Jump: vm.Conditional, Label: "AGAIN"},
			vm.ReturnOp{},
		})
		require.Contains(t, out, "(Main.loop$AGAIN)")
		require.Contains(t, out, "@Main.loop$AGAIN")
	})
}

func TestLowerCallingConvention(t *testing.T) {
	t.Run("function declaration zero-initializes its locals", func(t *testing.T) {
		out := render(t, "Main.vm", vm.Module{vm.FuncDecl{Name: "Main.run", NLocal: 3}})
		require.Contains(t, out, "(Main.run)")
		require.Equal(t, 3, strings.Count(out, "D=0"))
	})

	t.Run("call saves the caller frame and repositions ARG/LCL", func(t *testing.T) {
		out := render(t, "Main.vm", vm.Module{vm.FuncCallOp{Name: "Math.multiply", NArgs: 2}})
		require.Contains(t, out, "@LCL")
		require.Contains(t, out, "@ARG")
		require.Contains(t, out, "@THIS")
		require.Contains(t, out, "@THAT")
		require.Contains(t, out, "@Math.multiply")
		require.Contains(t, out, "@7") // NArgs(2) + 5 saved-frame slots
	})

	t.Run("call mints a RETURN_F_n label defined exactly once and referenced exactly once", func(t *testing.T) {
		out := render(t, "Main.vm", vm.Module{
			vm.FuncDecl{Name: "Math.multiply", NLocal: 0},
			vm.FuncCallOp{Name: "Math.multiply", NArgs: 2},
		})
		require.Equal(t, 1, strings.Count(out, "(RETURN_Math.multiply_1)"))
		require.Equal(t, 1, strings.Count(out, "@RETURN_Math.multiply_1"))
	})

	t.Run("return restores the caller frame via R13/R14 scratch registers", func(t *testing.T) {
		out := render(t, "Main.vm", vm.Module{vm.ReturnOp{}})
		require.Contains(t, out, "@R13")
		require.Contains(t, out, "@R14")
		require.Contains(t, out, "@ARG")
	})
}

func TestBootstrap(t *testing.T) {
	t.Run("initializes SP to 256 and calls Sys.init", func(t *testing.T) {
		lowerer := vm.NewLowerer()
		program, err := lowerer.Bootstrap()
		require.NoError(t, err)

		codegen := asm.NewCodeGenerator(program)
		lines, err := codegen.Generate()
		require.NoError(t, err)

		out := strings.Join(lines, "\n")
		require.Contains(t, out, "@256")
		require.Contains(t, out, "@Sys.init")
	})
}

func TestTerminationTail(t *testing.T) {
	render := func(program asm.Program) string {
		codegen := asm.NewCodeGenerator(program)
		lines, err := codegen.Generate()
		require.NoError(t, err)
		return strings.Join(lines, "\n")
	}

	t.Run("single-file programs loop on END", func(t *testing.T) {
		out := render(vm.NewLowerer().TerminationTail(false))
		require.Contains(t, out, "(END)")
		require.Contains(t, out, "@END")
		require.Contains(t, out, "0;JMP")
	})

	t.Run("multi-file or bootstrapped programs loop on INFINITE_LOOP", func(t *testing.T) {
		out := render(vm.NewLowerer().TerminationTail(true))
		require.Contains(t, out, "(INFINITE_LOOP)")
		require.Contains(t, out, "@INFINITE_LOOP")
	})
}

func TestLowerProgramIsReproducible(t *testing.T) {
	t.Run("multi-file output only depends on the sorted file set, not map iteration order", func(t *testing.T) {
		program := vm.Program{
			"B.vm": vm.Module{vm.MemoryOp{Operation: vm.Push, Segment: vm.Constant, Offset: 2}},
			"A.vm": vm.Module{vm.MemoryOp{Operation: vm.Push, Segment: vm.Constant, Offset: 1}},
		}

		first, err := vm.NewLowerer().LowerProgram(program)
		require.NoError(t, err)
		second, err := vm.NewLowerer().LowerProgram(program)
		require.NoError(t, err)

		require.Equal(t, first, second)
	})
}
