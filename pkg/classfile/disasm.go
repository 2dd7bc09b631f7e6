package classfile

import (
	"fmt"
	"strings"
)

// Disassemble returns a human-readable listing of the whole class.
func (in *Info) Disassemble() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "; === %s ===\n", in.Name)
	fmt.Fprintf(&sb, "; Format: %s, %d constants\n", in.Format, in.NumConsts)
	fmt.Fprintf(&sb, "; Flags: 0x%04X%s\n", in.Flags, flagNames(in.Flags, false))
	if in.Super != "" {
		fmt.Fprintf(&sb, "; Super: %s\n", in.Super)
	}
	if len(in.Interfaces) > 0 {
		fmt.Fprintf(&sb, "; Implements: %s\n", strings.Join(in.Interfaces, ", "))
	}

	if len(in.Fields) > 0 {
		sb.WriteString("\n; Fields:\n")
		for _, f := range in.Fields {
			fmt.Fprintf(&sb, ";   %s %s%s\n", f.Name, f.Desc, flagNames(f.Flags, false))
		}
	}

	for i := range in.Methods {
		m := &in.Methods[i]
		fmt.Fprintf(&sb, "\n; Method %s%s%s\n", m.Name, m.Desc, flagNames(m.Flags, true))
		if !m.HasCode() {
			continue
		}
		fmt.Fprintf(&sb, "; Stack: %d, Locals: %d\n", m.MaxStack, m.MaxLocals)
		for _, h := range m.Handlers {
			catch := "any"
			if h.CatchType != 0 {
				catch = in.Const(h.CatchType)
			}
			fmt.Fprintf(&sb, "; Catch %04X..%04X -> %04X %s\n", h.Start, h.End, h.Target, catch)
		}
		sb.WriteString("; Code:\n")
		sb.WriteString(in.DisassembleCode(m.Code))
	}
	return sb.String()
}

func flagNames(f uint16, method bool) string {
	var parts []string
	add := func(bit uint16, name string) {
		if f&bit != 0 {
			parts = append(parts, name)
		}
	}
	add(AccPublic, "public")
	add(AccPrivate, "private")
	add(AccProtected, "protected")
	add(AccStatic, "static")
	add(AccFinal, "final")
	if method {
		add(AccSynchronized, "synchronized")
		add(AccNative, "native")
	}
	add(AccInterface, "interface")
	add(AccAbstract, "abstract")
	if len(parts) == 0 {
		return ""
	}
	return " [" + strings.Join(parts, " ") + "]"
}

// DisassembleCode lists one method body, one instruction per line.
func (in *Info) DisassembleCode(code []byte) string {
	var sb strings.Builder
	for pc := 0; pc < len(code); {
		line, n := in.disassembleInstruction(code, pc)
		fmt.Fprintf(&sb, "%04X  %s\n", pc, line)
		if n <= 0 {
			break
		}
		pc += n
	}
	return sb.String()
}

// disassembleInstruction renders the instruction at pc and returns its
// length, or 0 when the rest of the code cannot be decoded.
func (in *Info) disassembleInstruction(code []byte, pc int) (line string, n int) {
	defer func() {
		if recover() != nil {
			line, n = "<truncated>", 0
		}
	}()

	op := Opcode(code[pc])
	if !op.Known() {
		return op.String(), 1
	}
	n = InstructionLen(code, pc)

	switch {
	case op.IsBranch():
		var rel int
		if op == OpGotoW {
			rel = int(int32(be32(code, pc+1)))
		} else {
			rel = int(int16(be16(code, pc+1)))
		}
		return fmt.Sprintf("%s %04X", op, pc+rel), n
	case op.IsInvoke(), op >= OpGetstatic && op <= OpPutfield,
		op == OpNew, op == OpAnewarray, op == OpCheckcast, op == OpInstanceof,
		op == OpLdcW, op == OpLdc2W:
		idx := be16(code, pc+1)
		return fmt.Sprintf("%s #%d ; %s", op, idx, in.Const(idx)), n
	case op == OpMultianewarray:
		idx := be16(code, pc+1)
		return fmt.Sprintf("%s #%d %d ; %s", op, idx, code[pc+3], in.Const(idx)), n
	case op == OpLdc:
		idx := uint16(code[pc+1])
		return fmt.Sprintf("%s #%d ; %s", op, idx, in.Const(idx)), n
	}

	switch op {
	case OpBipush:
		return fmt.Sprintf("%s %d", op, int8(code[pc+1])), n
	case OpSipush:
		return fmt.Sprintf("%s %d", op, int16(be16(code, pc+1))), n
	case OpIinc:
		return fmt.Sprintf("%s %d %d", op, code[pc+1], int8(code[pc+2])), n
	case OpNewarray:
		t := code[pc+1]
		if t >= ATypeBool && t <= ATypeLong {
			return fmt.Sprintf("%s %c", op, ATypeChars[t-ATypeBool]), n
		}
		return fmt.Sprintf("%s %d", op, t), n
	case OpPushRaw:
		return fmt.Sprintf("%s 0x%08X", op, be32(code, pc+1)), n
	case OpTableswitch:
		base := (pc + 4) &^ 3
		def := int32(be32(code, base))
		low := int32(be32(code, base+4))
		high := int32(be32(code, base+8))
		var sb strings.Builder
		fmt.Fprintf(&sb, "%s %d..%d default %04X", op, low, high, pc+int(def))
		for k := low; k <= high; k++ {
			t := int32(be32(code, base+12+4*int(k-low)))
			fmt.Fprintf(&sb, " %d:%04X", k, pc+int(t))
		}
		return sb.String(), n
	case OpLookupswitch:
		base := (pc + 4) &^ 3
		def := int32(be32(code, base))
		cnt := int(be32(code, base+4))
		var sb strings.Builder
		fmt.Fprintf(&sb, "%s default %04X", op, pc+int(def))
		for k := 0; k < cnt; k++ {
			key := int32(be32(code, base+8+8*k))
			t := int32(be32(code, base+12+8*k))
			fmt.Fprintf(&sb, " %d:%04X", key, pc+int(t))
		}
		return sb.String(), n
	case OpWide:
		next := Opcode(code[pc+1])
		switch {
		case next == OpIinc:
			return fmt.Sprintf("wide %s %d %d", next, be16(code, pc+2), int16(be16(code, pc+4))), n
		case next == OpInvokespecial || next == OpInvokestatic:
			return fmt.Sprintf("wide %s params=%d method=%d", next, code[pc+2], be16(code, pc+3)), n
		case next >= OpGetstatic && next <= OpPutfield:
			return fmt.Sprintf("wide %s %c +%d", next, code[pc+2], be16(code, pc+3)), n
		}
		return fmt.Sprintf("wide %s %d", next, be16(code, pc+2)), n
	}

	switch op.OperandLen() {
	case 1:
		return fmt.Sprintf("%s %d", op, code[pc+1]), n
	case 2:
		return fmt.Sprintf("%s %d", op, be16(code, pc+1)), n
	}
	return op.String(), n
}
