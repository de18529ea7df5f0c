package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// These tests are self-contained: rather than driving the CPU emulator against the
// nand2tetris course fixtures (not part of this module), each case writes a small
// .asm program to a temp directory and asserts on the compiled .hack output directly.
func TestHackAssembler(t *testing.T) {
	run := func(t *testing.T, name, source string) string {
		dir := t.TempDir()
		input := filepath.Join(dir, name+".asm")
		output := filepath.Join(dir, name+".hack")

		require.NoError(t, os.WriteFile(input, []byte(source), 0644))

		status := Handler([]string{input, output}, nil)
		require.Equal(t, 0, status)

		compiled, err := os.ReadFile(output)
		require.NoError(t, err)
		return string(compiled)
	}

	t.Run("Add", func(t *testing.T) {
		source := "@2\nD=A\n@3\nD=D+A\n@0\nM=D\n"
		expected := "" +
			"0000000000000010\n" +
			"1110110000010000\n" +
			"0000000000000011\n" +
			"1110000010010000\n" +
			"0000000000000000\n" +
			"1110001100001000\n"
		require.Equal(t, expected, run(t, "add", source))
	})

	t.Run("Max with symbolic labels", func(t *testing.T) {
		source := "" +
			"@R0\n" +
			"D=M\n" +
			"@R1\n" +
			"D=D-M\n" +
			"@ELSE\n" +
			"D;JGT\n" +
			"@R1\n" +
			"D=M\n" +
			"@END\n" +
			"0;JMP\n" +
			"(ELSE)\n" +
			"@R0\n" +
			"D=M\n" +
			"(END)\n" +
			"@R2\n" +
			"M=D\n"

		compiled := run(t, "max", source)
		// ELSE resolves to instruction index 10, END to instruction index 12
		require.Contains(t, compiled, "0000000000001010\n1110001100000001\n")
		require.Contains(t, compiled, "0000000000001100\n1110101010000111\n")
	})

	t.Run("Variable allocation starts at 16", func(t *testing.T) {
		source := "@counter\nM=0\n@counter\nD=M\n"
		expected := "" +
			"0000000000010000\n" +
			"1110101010001000\n" +
			"0000000000010000\n" +
			"1111110000010000\n"
		require.Equal(t, expected, run(t, "vars", source))
	})
}
