package vm

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/hackforge/nand2tetris-toolchain/pkg/asm"
)

// segmentBase maps the pointer-addressed segments to the Hack built-in register
// that holds their base address. Constant, temp and static are handled separately
// since they don't dereference through a base pointer.
var segmentBase = map[SegmentType]string{
	Local:    "LCL",
	Argument: "ARG",
	This:     "THIS",
	That:     "THAT",
}

// pointerTarget maps a 'pointer' segment offset (0 or 1) to the register it aliases.
var pointerTarget = map[uint16]string{0: "THIS", 1: "THAT"}

const tempBase = 5 // First RAM address of the 8-word 'temp' segment.

// ----------------------------------------------------------------------------
// Vm Lowerer

// The Lowerer takes a 'vm.Program' (or a single 'vm.Module') and produces its
// 'asm.Program' counterpart, implementing the nand2tetris stack machine calling
// convention and segment addressing scheme.
//
// A Lowerer is stateful across the modules it processes: it tracks the current
// file (for 'static' segment scoping) and the current function (for label and
// return-address scoping), plus a monotonic counter used to mint unique labels
// for comparison operations and call sites. This state is intentionally owned by
// a single Lowerer instance rather than package-level globals, so that unrelated
// translations running in the same process never interfere with each other.
type Lowerer struct {
	fileName        string
	currentFunction string
	counter         int
}

// Initializes and returns to the caller a brand new 'Lowerer' struct.
func NewLowerer() *Lowerer {
	return &Lowerer{}
}

// SetCurrentFile resets the Lowerer's per-file state (static segment scope, and
// the enclosing function used for label/return-address scoping) and returns a
// banner comment marking the start of this file's translated output.
func (l *Lowerer) SetCurrentFile(path string) asm.Instruction {
	base := filepath.Base(path)
	l.fileName = strings.TrimSuffix(base, filepath.Ext(base))
	l.currentFunction = ""
	return asm.Comment{Text: fmt.Sprintf(" ---- %s ----", base)}
}

// LowerProgram translates every module in 'program', processing files in sorted
// order so that the emitted assembly is a pure function of the input file set
// (never dependent on directory iteration order, which Go does not guarantee).
func (l *Lowerer) LowerProgram(program Program) (asm.Program, error) {
	names := make([]string, 0, len(program))
	for name := range program {
		names = append(names, name)
	}
	sort.Strings(names)

	out := asm.Program{}
	for _, name := range names {
		out = append(out, l.SetCurrentFile(name))

		translated, err := l.LowerModule(program[name])
		if err != nil {
			return nil, fmt.Errorf("%s: %s", name, err)
		}
		out = append(out, translated...)
	}

	return out, nil
}

// TerminationTail emits a labeled infinite loop so the target CPU halts cleanly
// once translated execution reaches the end of the program instead of falling
// through into unmapped memory. Single-file units use 'END'; multi-file/bootstrap
// units use 'INFINITE_LOOP', matching the reference translator's naming split.
func (l *Lowerer) TerminationTail(multiFile bool) asm.Program {
	label := "END"
	if multiFile {
		label = "INFINITE_LOOP"
	}

	return asm.Program{
		asm.Comment{Text: " ---- termination ----"},
		asm.LabelDecl{Name: label},
		asm.AInstruction{Location: label},
		asm.CInstruction{Comp: "0", Jump: "JMP"},
	}
}

// Bootstrap emits the standard nand2tetris bootstrap sequence: initializes the
// stack pointer to 256 (the stack base, above the 16 built-in registers at RAM 0-15
// and the static variables allocated from RAM 16) and calls Sys.init.
func (l *Lowerer) Bootstrap() (asm.Program, error) {
	out := asm.Program{
		asm.Comment{Text: " ---- bootstrap ----"},
		asm.AInstruction{Location: "256"},
		asm.CInstruction{Comp: "A", Dest: "D"},
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Comp: "D", Dest: "M"},
	}

	l.currentFunction = "Bootstrap"
	call, err := l.lowerFuncCallOp(FuncCallOp{Name: "Sys.init", NArgs: 0})
	if err != nil {
		return nil, err
	}

	return append(out, call...), nil
}

// LowerModule translates a single 'vm.Module' (one source file's worth of operations)
// to its 'asm.Program' counterpart, annotating each command with a passthrough comment.
func (l *Lowerer) LowerModule(module Module) (asm.Program, error) {
	out := asm.Program{}

	for _, op := range module {
		out = append(out, asm.Comment{Text: " " + describe(op)})

		var translated []asm.Instruction
		var err error

		switch tOp := op.(type) {
		case MemoryOp:
			translated, err = l.lowerMemoryOp(tOp)
		case ArithmeticOp:
			translated, err = l.lowerArithmeticOp(tOp)
		case LabelDecl:
			translated, err = l.lowerLabelDecl(tOp)
		case GotoOp:
			translated, err = l.lowerGotoOp(tOp)
		case FuncDecl:
			translated, err = l.lowerFuncDecl(tOp)
		case FuncCallOp:
			translated, err = l.lowerFuncCallOp(tOp)
		case ReturnOp:
			translated, err = l.lowerReturnOp(tOp)
		default:
			return nil, fmt.Errorf("unrecognized operation '%T'", op)
		}

		if err != nil {
			return nil, err
		}
		out = append(out, translated...)
	}

	return out, nil
}

// describe renders an operation back to its canonical VM source text, used solely
// for the passthrough comment emitted ahead of each command's translated output.
func describe(op Operation) string {
	switch o := op.(type) {
	case MemoryOp:
		return fmt.Sprintf("%s %s %d", o.Operation, o.Segment, o.Offset)
	case ArithmeticOp:
		return string(o.Operation)
	case LabelDecl:
		return fmt.Sprintf("label %s", o.Name)
	case GotoOp:
		return fmt.Sprintf("%s %s", o.Jump, o.Label)
	case FuncDecl:
		return fmt.Sprintf("function %s %d", o.Name, o.NLocal)
	case FuncCallOp:
		return fmt.Sprintf("call %s %d", o.Name, o.NArgs)
	case ReturnOp:
		return "return"
	default:
		return fmt.Sprintf("%v", op)
	}
}

// scopedLabel prefixes a bare label with the currently enclosing function, matching
// the nand2tetris convention that keeps label/goto targets local to their function.
func (l *Lowerer) scopedLabel(name string) string {
	if l.currentFunction == "" {
		return name
	}
	return fmt.Sprintf("%s$%s", l.currentFunction, name)
}

// ----------------------------------------------------------------------------
// Stack helpers

// pushD appends the instructions that push the value currently in D onto the stack.
func pushD() []asm.Instruction {
	return []asm.Instruction{
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Comp: "M", Dest: "A"},
		asm.CInstruction{Comp: "D", Dest: "M"},
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Comp: "M+1", Dest: "M"},
	}
}

// popToD appends the instructions that pop the stack's top into D, leaving A pointed
// at the freed slot (SP-1).
func popToD() []asm.Instruction {
	return []asm.Instruction{
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Comp: "M-1", Dest: "AM"},
		asm.CInstruction{Comp: "M", Dest: "D"},
	}
}

// ----------------------------------------------------------------------------
// Memory Op lowering

func (l *Lowerer) lowerMemoryOp(op MemoryOp) ([]asm.Instruction, error) {
	switch op.Segment {
	case Constant:
		return l.lowerConstant(op)
	case Local, Argument, This, That:
		return l.lowerPointerSegment(op)
	case Temp:
		return l.lowerTemp(op)
	case Pointer:
		return l.lowerPointer(op)
	case Static:
		return l.lowerStatic(op)
	default:
		return nil, fmt.Errorf("unrecognized segment '%s'", op.Segment)
	}
}

func (l *Lowerer) lowerConstant(op MemoryOp) ([]asm.Instruction, error) {
	if op.Operation == Pop {
		return nil, fmt.Errorf("'constant' segment cannot be the target of a 'pop'")
	}

	out := []asm.Instruction{
		asm.AInstruction{Location: strconv.FormatUint(uint64(op.Offset), 10)},
		asm.CInstruction{Comp: "A", Dest: "D"},
	}
	return append(out, pushD()...), nil
}

func (l *Lowerer) lowerPointerSegment(op MemoryOp) ([]asm.Instruction, error) {
	base := segmentBase[op.Segment]

	if op.Operation == Push {
		out := []asm.Instruction{
			asm.AInstruction{Location: base},
			asm.CInstruction{Comp: "M", Dest: "D"},
			asm.AInstruction{Location: strconv.FormatUint(uint64(op.Offset), 10)},
			asm.CInstruction{Comp: "D+A", Dest: "A"},
			asm.CInstruction{Comp: "M", Dest: "D"},
		}
		return append(out, pushD()...), nil
	}

	// pop: compute the target address first, stash it in R13 (it can't live in D,
	// since popToD clobbers D with the popped value), then write the popped value.
	out := []asm.Instruction{
		asm.AInstruction{Location: base},
		asm.CInstruction{Comp: "M", Dest: "D"},
		asm.AInstruction{Location: strconv.FormatUint(uint64(op.Offset), 10)},
		asm.CInstruction{Comp: "D+A", Dest: "D"},
		asm.AInstruction{Location: "R13"},
		asm.CInstruction{Comp: "D", Dest: "M"},
	}
	out = append(out, popToD()...)
	out = append(out,
		asm.AInstruction{Location: "R13"},
		asm.CInstruction{Comp: "M", Dest: "A"},
		asm.CInstruction{Comp: "D", Dest: "M"},
	)
	return out, nil
}

func (l *Lowerer) lowerTemp(op MemoryOp) ([]asm.Instruction, error) {
	if op.Offset > 7 {
		return nil, fmt.Errorf("invalid 'temp' offset, got %d", op.Offset)
	}
	address := tempBase + op.Offset

	if op.Operation == Push {
		return append([]asm.Instruction{
			asm.AInstruction{Location: strconv.FormatUint(uint64(address), 10)},
			asm.CInstruction{Comp: "M", Dest: "D"},
		}, pushD()...), nil
	}

	out := popToD()
	return append(out,
		asm.AInstruction{Location: strconv.FormatUint(uint64(address), 10)},
		asm.CInstruction{Comp: "D", Dest: "M"},
	), nil
}

func (l *Lowerer) lowerPointer(op MemoryOp) ([]asm.Instruction, error) {
	target, found := pointerTarget[op.Offset]
	if !found {
		return nil, fmt.Errorf("invalid 'pointer' offset, got %d", op.Offset)
	}

	if op.Operation == Push {
		return append([]asm.Instruction{
			asm.AInstruction{Location: target},
			asm.CInstruction{Comp: "M", Dest: "D"},
		}, pushD()...), nil
	}

	out := popToD()
	return append(out,
		asm.AInstruction{Location: target},
		asm.CInstruction{Comp: "D", Dest: "M"},
	), nil
}

func (l *Lowerer) lowerStatic(op MemoryOp) ([]asm.Instruction, error) {
	symbol := fmt.Sprintf("%s.%d", l.fileName, op.Offset)

	if op.Operation == Push {
		return append([]asm.Instruction{
			asm.AInstruction{Location: symbol},
			asm.CInstruction{Comp: "M", Dest: "D"},
		}, pushD()...), nil
	}

	out := popToD()
	return append(out,
		asm.AInstruction{Location: symbol},
		asm.CInstruction{Comp: "D", Dest: "M"},
	), nil
}

// ----------------------------------------------------------------------------
// Arithmetic Op lowering

// binaryComp maps a 2-operand arithmetic op to the comp bit-code computing it,
// given 'D' holds the second (top) operand and 'M' the first (below it).
var binaryComp = map[ArithOpType]string{
	Add: "D+M",
	Sub: "M-D",
	And: "D&M",
	Or:  "D|M",
}

// unaryComp maps a 1-operand arithmetic op to the comp bit-code computing it in place.
var unaryComp = map[ArithOpType]string{
	Neg: "-M",
	Not: "!M",
}

// comparisonJump maps a comparison op to the Hack jump mnemonic that picks 'true'.
var comparisonJump = map[ArithOpType]string{
	Eq: "JEQ",
	Gt: "JGT",
	Lt: "JLT",
}

func (l *Lowerer) lowerArithmeticOp(op ArithmeticOp) ([]asm.Instruction, error) {
	if comp, found := unaryComp[op.Operation]; found {
		return []asm.Instruction{
			asm.AInstruction{Location: "SP"},
			asm.CInstruction{Comp: "M-1", Dest: "A"},
			asm.CInstruction{Comp: comp, Dest: "M"},
		}, nil
	}

	if comp, found := binaryComp[op.Operation]; found {
		return []asm.Instruction{
			asm.AInstruction{Location: "SP"},
			asm.CInstruction{Comp: "M-1", Dest: "AM"},
			asm.CInstruction{Comp: "M", Dest: "D"},
			asm.CInstruction{Comp: "A-1", Dest: "A"},
			asm.CInstruction{Comp: comp, Dest: "M"},
		}, nil
	}

	if jump, found := comparisonJump[op.Operation]; found {
		return l.lowerComparison(op.Operation, jump), nil
	}

	return nil, fmt.Errorf("unrecognized arithmetic operation '%s'", op.Operation)
}

func (l *Lowerer) lowerComparison(op ArithOpType, jump string) []asm.Instruction {
	l.counter++
	trueLabel := fmt.Sprintf("%s_TRUE_%d", strings.ToUpper(string(op)), l.counter)
	endLabel := fmt.Sprintf("%s_END_%d", strings.ToUpper(string(op)), l.counter)

	return []asm.Instruction{
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Comp: "M-1", Dest: "AM"},
		asm.CInstruction{Comp: "M", Dest: "D"},
		asm.CInstruction{Comp: "A-1", Dest: "A"},
		asm.CInstruction{Comp: "M-D", Dest: "D"},
		asm.AInstruction{Location: trueLabel},
		asm.CInstruction{Comp: "D", Jump: jump},
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Comp: "M-1", Dest: "A"},
		asm.CInstruction{Comp: "0", Dest: "M"},
		asm.AInstruction{Location: endLabel},
		asm.CInstruction{Comp: "0", Jump: "JMP"},
		asm.LabelDecl{Name: trueLabel},
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Comp: "M-1", Dest: "A"},
		asm.CInstruction{Comp: "-1", Dest: "M"},
		asm.LabelDecl{Name: endLabel},
	}
}

// ----------------------------------------------------------------------------
// Control Flow Op lowering

func (l *Lowerer) lowerLabelDecl(op LabelDecl) ([]asm.Instruction, error) {
	if op.Name == "" {
		return nil, fmt.Errorf("unable to produce empty label declaration")
	}
	return []asm.Instruction{asm.LabelDecl{Name: l.scopedLabel(op.Name)}}, nil
}

func (l *Lowerer) lowerGotoOp(op GotoOp) ([]asm.Instruction, error) {
	if op.Label == "" {
		return nil, fmt.Errorf("unable to produce empty jump target")
	}
	target := l.scopedLabel(op.Label)

	if op.Jump == Unconditional {
		return []asm.Instruction{
			asm.AInstruction{Location: target},
			asm.CInstruction{Comp: "0", Jump: "JMP"},
		}, nil
	}

	out := popToD()
	return append(out,
		asm.AInstruction{Location: target},
		asm.CInstruction{Comp: "D", Jump: "JNE"},
	), nil
}

// ----------------------------------------------------------------------------
// Function Op lowering

func (l *Lowerer) lowerFuncDecl(op FuncDecl) ([]asm.Instruction, error) {
	if op.Name == "" {
		return nil, fmt.Errorf("unable to produce empty function declaration")
	}
	l.currentFunction = op.Name

	out := []asm.Instruction{asm.LabelDecl{Name: op.Name}}
	for i := uint16(0); i < op.NLocal; i++ {
		out = append(out,
			asm.CInstruction{Comp: "0", Dest: "D"},
		)
		out = append(out, pushD()...)
	}
	return out, nil
}

func (l *Lowerer) lowerFuncCallOp(op FuncCallOp) ([]asm.Instruction, error) {
	if op.Name == "" {
		return nil, fmt.Errorf("unable to produce empty function call")
	}

	l.counter++
	returnLabel := fmt.Sprintf("RETURN_%s_%d", l.currentFunction, l.counter)

	out := []asm.Instruction{
		asm.AInstruction{Location: returnLabel},
		asm.CInstruction{Comp: "A", Dest: "D"},
	}
	out = append(out, pushD()...)
	for _, segment := range []string{"LCL", "ARG", "THIS", "THAT"} {
		out = append(out,
			asm.AInstruction{Location: segment},
			asm.CInstruction{Comp: "M", Dest: "D"},
		)
		out = append(out, pushD()...)
	}

	out = append(out,
		// ARG = SP - 5 - nArgs
		asm.AInstruction{Location: strconv.FormatUint(uint64(op.NArgs)+5, 10)},
		asm.CInstruction{Comp: "A", Dest: "D"},
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Comp: "M-D", Dest: "D"},
		asm.AInstruction{Location: "ARG"},
		asm.CInstruction{Comp: "D", Dest: "M"},
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Comp: "M", Dest: "D"},
		asm.AInstruction{Location: "LCL"},
		asm.CInstruction{Comp: "D", Dest: "M"},
		asm.AInstruction{Location: op.Name},
		asm.CInstruction{Comp: "0", Jump: "JMP"},
		asm.LabelDecl{Name: returnLabel},
	)

	return out, nil
}

func (l *Lowerer) lowerReturnOp(op ReturnOp) ([]asm.Instruction, error) {
	out := []asm.Instruction{
		// R13 (endFrame) = LCL
		asm.AInstruction{Location: "LCL"},
		asm.CInstruction{Comp: "M", Dest: "D"},
		asm.AInstruction{Location: "R13"},
		asm.CInstruction{Comp: "D", Dest: "M"},
		// R14 (retAddr) = *(endFrame - 5), computed before the stack below is touched
		asm.AInstruction{Location: "5"},
		asm.CInstruction{Comp: "D-A", Dest: "A"},
		asm.CInstruction{Comp: "M", Dest: "D"},
		asm.AInstruction{Location: "R14"},
		asm.CInstruction{Comp: "D", Dest: "M"},
	}

	out = append(out, popToD()...)
	out = append(out,
		// *ARG = popped return value
		asm.AInstruction{Location: "ARG"},
		asm.CInstruction{Comp: "M", Dest: "A"},
		asm.CInstruction{Comp: "D", Dest: "M"},
		// SP = ARG + 1
		asm.AInstruction{Location: "ARG"},
		asm.CInstruction{Comp: "M+1", Dest: "D"},
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Comp: "D", Dest: "M"},
	)

	for _, segment := range []string{"THAT", "THIS", "ARG", "LCL"} {
		out = append(out,
			asm.AInstruction{Location: "R13"},
			asm.CInstruction{Comp: "M-1", Dest: "AM"},
			asm.CInstruction{Comp: "M", Dest: "D"},
			asm.AInstruction{Location: segment},
			asm.CInstruction{Comp: "D", Dest: "M"},
		)
	}

	out = append(out,
		asm.AInstruction{Location: "R14"},
		asm.CInstruction{Comp: "M", Dest: "A"},
		asm.CInstruction{Comp: "0", Jump: "JMP"},
	)

	return out, nil
}
