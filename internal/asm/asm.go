// Package asm assembles program text into the machine's word arrays. The language is
// line-oriented: an optional `label:`, a mnemonic with comma-separated operands, and
// `;` comments. `.WORD n` emits a bare data word. Labels name window-relative word
// addresses and may be used wherever a branch target or immediate is expected.
package asm

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/smoynes/ozzie/internal/vm"
)

// ErrSyntax is wrapped by every assembly error.
var ErrSyntax = errors.New("syntax error")

// SymbolTable maps labels to window-relative word addresses.
type SymbolTable map[string]vm.Word

// Assemble translates source text into a program image. The image is padded with
// zeros to a multiple of the instruction width.
func Assemble(src string) ([]vm.Word, error) {
	statements, symbols, err := parse(src)
	if err != nil {
		return nil, err
	}

	var code []vm.Word

	for _, st := range statements {
		words, err := st.generate(symbols)
		if err != nil {
			return nil, err
		}

		code = append(code, words...)
	}

	for vm.Word(len(code))%vm.InstrSize != 0 {
		code = append(code, 0)
	}

	return code, nil
}

// statement is one parsed line that emits words.
type statement struct {
	line     int
	mnemonic string
	operands []string
}

// parse runs the first pass: split lines, collect labels at their word addresses, and
// keep the emitting statements.
func parse(src string) ([]statement, SymbolTable, error) {
	var (
		statements []statement
		symbols    = SymbolTable{}
		addr       vm.Word
	)

	for num, raw := range strings.Split(src, "\n") {
		line := raw

		if i := strings.IndexByte(line, ';'); i >= 0 {
			line = line[:i]
		}

		line = strings.TrimSpace(strings.ReplaceAll(line, "\t", " "))

		if i := strings.IndexByte(line, ':'); i >= 0 {
			label := strings.TrimSpace(line[:i])

			if !identifier(label) {
				return nil, nil, fmt.Errorf("%w: line %d: bad label %q",
					ErrSyntax, num+1, label)
			}

			if _, dup := symbols[label]; dup {
				return nil, nil, fmt.Errorf("%w: line %d: duplicate label %q",
					ErrSyntax, num+1, label)
			}

			symbols[label] = addr
			line = strings.TrimSpace(line[i+1:])
		}

		if line == "" {
			continue
		}

		mnemonic, rest, _ := strings.Cut(line, " ")
		mnemonic = strings.ToUpper(mnemonic)

		st := statement{line: num + 1, mnemonic: mnemonic}

		if rest = strings.TrimSpace(rest); rest != "" {
			for _, op := range strings.Split(rest, ",") {
				st.operands = append(st.operands, strings.TrimSpace(op))
			}
		}

		statements = append(statements, st)

		if mnemonic == ".WORD" {
			addr++
		} else {
			addr += vm.InstrSize
		}
	}

	return statements, symbols, nil
}

// opcodes maps mnemonics to opcode and operand pattern. Pattern runes: r register,
// n numeric-or-label.
var opcodes = map[string]struct {
	op      vm.Opcode
	pattern string
}{
	"SET":    {vm.OpSet, "rn"},
	"ADD":    {vm.OpAdd, "rrr"},
	"SUB":    {vm.OpSub, "rrr"},
	"MUL":    {vm.OpMul, "rrr"},
	"DIV":    {vm.OpDiv, "rrr"},
	"COPY":   {vm.OpCopy, "rr"},
	"BRANCH": {vm.OpBranch, "n"},
	"BNE":    {vm.OpBne, "rrn"},
	"BLT":    {vm.OpBlt, "rrn"},
	"PUSH":   {vm.OpPush, "r"},
	"POP":    {vm.OpPop, "r"},
	"LOAD":   {vm.OpLoad, "rr"},
	"SAVE":   {vm.OpSave, "rr"},
	"TRAP":   {vm.OpTrap, ""},
}

// generate runs the second pass for one statement.
func (st statement) generate(symbols SymbolTable) ([]vm.Word, error) {
	if st.mnemonic == ".WORD" {
		if len(st.operands) != 1 {
			return nil, fmt.Errorf("%w: line %d: .WORD takes one value",
				ErrSyntax, st.line)
		}

		w, err := st.value(st.operands[0], symbols)
		if err != nil {
			return nil, err
		}

		return []vm.Word{w}, nil
	}

	entry, ok := opcodes[st.mnemonic]
	if !ok {
		return nil, fmt.Errorf("%w: line %d: unknown mnemonic %q",
			ErrSyntax, st.line, st.mnemonic)
	}

	if len(st.operands) != len(entry.pattern) {
		return nil, fmt.Errorf("%w: line %d: %s takes %d operands, got %d",
			ErrSyntax, st.line, st.mnemonic, len(entry.pattern), len(st.operands))
	}

	var operands []vm.Word

	for i, kind := range entry.pattern {
		text := st.operands[i]

		switch kind {
		case 'r':
			r, err := st.register(text)
			if err != nil {
				return nil, err
			}

			operands = append(operands, r)
		case 'n':
			w, err := st.value(text, symbols)
			if err != nil {
				return nil, err
			}

			operands = append(operands, w)
		}
	}

	instr := vm.Encode(entry.op, operands...)

	return instr[:], nil
}

func (st statement) register(text string) (vm.Word, error) {
	text = strings.ToUpper(text)

	if len(text) == 2 && text[0] == 'R' && text[1] >= '0' && text[1] <= '4' {
		return vm.Word(text[1] - '0'), nil
	}

	return 0, fmt.Errorf("%w: line %d: bad register %q", ErrSyntax, st.line, text)
}

func (st statement) value(text string, symbols SymbolTable) (vm.Word, error) {
	text = strings.TrimPrefix(text, "#")

	if addr, ok := symbols[text]; ok {
		return addr, nil
	}

	n, err := strconv.ParseInt(text, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: line %d: bad value %q", ErrSyntax, st.line, text)
	}

	return vm.Word(n), nil
}

func identifier(s string) bool {
	if s == "" {
		return false
	}

	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}

	return true
}
