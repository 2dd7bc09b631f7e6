package classfile

import "fmt"

// Opcode is a single bytecode instruction byte.
type Opcode byte

const (
	// Stack manipulation
	OpNop Opcode = 0x00

	// Constants
	OpAconstNull Opcode = 0x01
	OpIconstM1   Opcode = 0x02
	OpIconst0    Opcode = 0x03
	OpIconst1    Opcode = 0x04
	OpIconst2    Opcode = 0x05
	OpIconst3    Opcode = 0x06
	OpIconst4    Opcode = 0x07
	OpIconst5    Opcode = 0x08
	OpLconst0    Opcode = 0x09
	OpLconst1    Opcode = 0x0A
	OpFconst0    Opcode = 0x0B
	OpFconst1    Opcode = 0x0C
	OpFconst2    Opcode = 0x0D
	OpDconst0    Opcode = 0x0E
	OpDconst1    Opcode = 0x0F
	OpBipush     Opcode = 0x10
	OpSipush     Opcode = 0x11
	OpLdc        Opcode = 0x12
	OpLdcW       Opcode = 0x13
	OpLdc2W      Opcode = 0x14

	// Local variable loads
	OpIload  Opcode = 0x15
	OpLload  Opcode = 0x16
	OpFload  Opcode = 0x17
	OpDload  Opcode = 0x18
	OpAload  Opcode = 0x19
	OpIload0 Opcode = 0x1A
	OpIload1 Opcode = 0x1B
	OpIload2 Opcode = 0x1C
	OpIload3 Opcode = 0x1D
	OpLload0 Opcode = 0x1E
	OpLload1 Opcode = 0x1F
	OpLload2 Opcode = 0x20
	OpLload3 Opcode = 0x21
	OpFload0 Opcode = 0x22
	OpFload1 Opcode = 0x23
	OpFload2 Opcode = 0x24
	OpFload3 Opcode = 0x25
	OpDload0 Opcode = 0x26
	OpDload1 Opcode = 0x27
	OpDload2 Opcode = 0x28
	OpDload3 Opcode = 0x29
	OpAload0 Opcode = 0x2A
	OpAload1 Opcode = 0x2B
	OpAload2 Opcode = 0x2C
	OpAload3 Opcode = 0x2D

	// Array access
	OpIaload Opcode = 0x2E
	OpLaload Opcode = 0x2F
	OpFaload Opcode = 0x30
	OpDaload Opcode = 0x31
	OpAaload Opcode = 0x32
	OpBaload Opcode = 0x33
	OpCaload Opcode = 0x34
	OpSaload Opcode = 0x35

	// Local variable stores
	OpIstore  Opcode = 0x36
	OpLstore  Opcode = 0x37
	OpFstore  Opcode = 0x38
	OpDstore  Opcode = 0x39
	OpAstore  Opcode = 0x3A
	OpIstore0 Opcode = 0x3B
	OpIstore1 Opcode = 0x3C
	OpIstore2 Opcode = 0x3D
	OpIstore3 Opcode = 0x3E
	OpLstore0 Opcode = 0x3F
	OpLstore1 Opcode = 0x40
	OpLstore2 Opcode = 0x41
	OpLstore3 Opcode = 0x42
	OpFstore0 Opcode = 0x43
	OpFstore1 Opcode = 0x44
	OpFstore2 Opcode = 0x45
	OpFstore3 Opcode = 0x46
	OpDstore0 Opcode = 0x47
	OpDstore1 Opcode = 0x48
	OpDstore2 Opcode = 0x49
	OpDstore3 Opcode = 0x4A
	OpAstore0 Opcode = 0x4B
	OpAstore1 Opcode = 0x4C
	OpAstore2 Opcode = 0x4D
	OpAstore3 Opcode = 0x4E

	// Array access
	OpIastore Opcode = 0x4F
	OpLastore Opcode = 0x50
	OpFastore Opcode = 0x51
	OpDastore Opcode = 0x52
	OpAastore Opcode = 0x53
	OpBastore Opcode = 0x54
	OpCastore Opcode = 0x55
	OpSastore Opcode = 0x56

	// Stack manipulation
	OpPop    Opcode = 0x57
	OpPop2   Opcode = 0x58
	OpDup    Opcode = 0x59
	OpDupX1  Opcode = 0x5A
	OpDupX2  Opcode = 0x5B
	OpDup2   Opcode = 0x5C
	OpDup2X1 Opcode = 0x5D
	OpDup2X2 Opcode = 0x5E
	OpSwap   Opcode = 0x5F

	// Arithmetic and logic
	OpIadd  Opcode = 0x60
	OpLadd  Opcode = 0x61
	OpFadd  Opcode = 0x62
	OpDadd  Opcode = 0x63
	OpIsub  Opcode = 0x64
	OpLsub  Opcode = 0x65
	OpFsub  Opcode = 0x66
	OpDsub  Opcode = 0x67
	OpImul  Opcode = 0x68
	OpLmul  Opcode = 0x69
	OpFmul  Opcode = 0x6A
	OpDmul  Opcode = 0x6B
	OpIdiv  Opcode = 0x6C
	OpLdiv  Opcode = 0x6D
	OpFdiv  Opcode = 0x6E
	OpDdiv  Opcode = 0x6F
	OpIrem  Opcode = 0x70
	OpLrem  Opcode = 0x71
	OpFrem  Opcode = 0x72
	OpDrem  Opcode = 0x73
	OpIneg  Opcode = 0x74
	OpLneg  Opcode = 0x75
	OpFneg  Opcode = 0x76
	OpDneg  Opcode = 0x77
	OpIshl  Opcode = 0x78
	OpLshl  Opcode = 0x79
	OpIshr  Opcode = 0x7A
	OpLshr  Opcode = 0x7B
	OpIushr Opcode = 0x7C
	OpLushr Opcode = 0x7D
	OpIand  Opcode = 0x7E
	OpLand  Opcode = 0x7F
	OpIor   Opcode = 0x80
	OpLor   Opcode = 0x81
	OpIxor  Opcode = 0x82
	OpLxor  Opcode = 0x83
	OpIinc  Opcode = 0x84

	// Conversions
	OpI2l Opcode = 0x85
	OpI2f Opcode = 0x86
	OpI2d Opcode = 0x87
	OpL2i Opcode = 0x88
	OpL2f Opcode = 0x89
	OpL2d Opcode = 0x8A
	OpF2i Opcode = 0x8B
	OpF2l Opcode = 0x8C
	OpF2d Opcode = 0x8D
	OpD2i Opcode = 0x8E
	OpD2l Opcode = 0x8F
	OpD2f Opcode = 0x90
	OpI2b Opcode = 0x91
	OpI2c Opcode = 0x92
	OpI2s Opcode = 0x93

	// Comparisons
	OpLcmp  Opcode = 0x94
	OpFcmpl Opcode = 0x95
	OpFcmpg Opcode = 0x96
	OpDcmpl Opcode = 0x97
	OpDcmpg Opcode = 0x98

	// Control transfer
	OpIfeq     Opcode = 0x99
	OpIfne     Opcode = 0x9A
	OpIflt     Opcode = 0x9B
	OpIfge     Opcode = 0x9C
	OpIfgt     Opcode = 0x9D
	OpIfle     Opcode = 0x9E
	OpIfIcmpeq Opcode = 0x9F
	OpIfIcmpne Opcode = 0xA0
	OpIfIcmplt Opcode = 0xA1
	OpIfIcmpge Opcode = 0xA2
	OpIfIcmpgt Opcode = 0xA3
	OpIfIcmple Opcode = 0xA4
	OpIfAcmpeq Opcode = 0xA5
	OpIfAcmpne Opcode = 0xA6
	OpGoto     Opcode = 0xA7
	OpJsr      Opcode = 0xA8
	OpRet      Opcode = 0xA9

	// N-way dispatch
	OpTableswitch  Opcode = 0xAA
	OpLookupswitch Opcode = 0xAB

	// Returns
	OpIreturn Opcode = 0xAC
	OpLreturn Opcode = 0xAD
	OpFreturn Opcode = 0xAE
	OpDreturn Opcode = 0xAF
	OpAreturn Opcode = 0xB0
	OpReturn  Opcode = 0xB1

	// Field access
	OpGetstatic Opcode = 0xB2
	OpPutstatic Opcode = 0xB3
	OpGetfield  Opcode = 0xB4
	OpPutfield  Opcode = 0xB5

	// Invocation
	OpInvokevirtual   Opcode = 0xB6
	OpInvokespecial   Opcode = 0xB7
	OpInvokestatic    Opcode = 0xB8
	OpInvokeinterface Opcode = 0xB9
	OpInvokedynamic   Opcode = 0xBA

	// Objects, casts and monitors
	OpNew       Opcode = 0xBB
	OpNewarray  Opcode = 0xBC
	OpAnewarray Opcode = 0xBD

	// Array access
	OpArraylength Opcode = 0xBE

	// Objects, casts and monitors
	OpAthrow       Opcode = 0xBF
	OpCheckcast    Opcode = 0xC0
	OpInstanceof   Opcode = 0xC1
	OpMonitorenter Opcode = 0xC2
	OpMonitorexit  Opcode = 0xC3

	// Prefix
	OpWide Opcode = 0xC4

	// Objects, casts and monitors
	OpMultianewarray Opcode = 0xC5

	// Control transfer
	OpIfnull    Opcode = 0xC6
	OpIfnonnull Opcode = 0xC7
	OpGotoW     Opcode = 0xC8
	OpJsrW      Opcode = 0xC9

	// Constants
	OpPushRaw Opcode = 0xFE
)

// VariableLen marks opcodes whose operand length depends on the code stream.
const VariableLen = -1

// OpcodeInfo describes an opcode for disassembly and code walking.
type OpcodeInfo struct {
	Name       string
	OperandLen int
	Group      string
}

var opcodeInfoTable = map[Opcode]OpcodeInfo{
	OpNop: {"nop", 0, "stack"},

	OpAconstNull: {"aconst_null", 0, "const"},
	OpIconstM1:   {"iconst_m1", 0, "const"},
	OpIconst0:    {"iconst_0", 0, "const"},
	OpIconst1:    {"iconst_1", 0, "const"},
	OpIconst2:    {"iconst_2", 0, "const"},
	OpIconst3:    {"iconst_3", 0, "const"},
	OpIconst4:    {"iconst_4", 0, "const"},
	OpIconst5:    {"iconst_5", 0, "const"},
	OpLconst0:    {"lconst_0", 0, "const"},
	OpLconst1:    {"lconst_1", 0, "const"},
	OpFconst0:    {"fconst_0", 0, "const"},
	OpFconst1:    {"fconst_1", 0, "const"},
	OpFconst2:    {"fconst_2", 0, "const"},
	OpDconst0:    {"dconst_0", 0, "const"},
	OpDconst1:    {"dconst_1", 0, "const"},
	OpBipush:     {"bipush", 1, "const"},
	OpSipush:     {"sipush", 2, "const"},
	OpLdc:        {"ldc", 1, "const"},
	OpLdcW:       {"ldc_w", 2, "const"},
	OpLdc2W:      {"ldc2_w", 2, "const"},

	OpIload:  {"iload", 1, "load"},
	OpLload:  {"lload", 1, "load"},
	OpFload:  {"fload", 1, "load"},
	OpDload:  {"dload", 1, "load"},
	OpAload:  {"aload", 1, "load"},
	OpIload0: {"iload_0", 0, "load"},
	OpIload1: {"iload_1", 0, "load"},
	OpIload2: {"iload_2", 0, "load"},
	OpIload3: {"iload_3", 0, "load"},
	OpLload0: {"lload_0", 0, "load"},
	OpLload1: {"lload_1", 0, "load"},
	OpLload2: {"lload_2", 0, "load"},
	OpLload3: {"lload_3", 0, "load"},
	OpFload0: {"fload_0", 0, "load"},
	OpFload1: {"fload_1", 0, "load"},
	OpFload2: {"fload_2", 0, "load"},
	OpFload3: {"fload_3", 0, "load"},
	OpDload0: {"dload_0", 0, "load"},
	OpDload1: {"dload_1", 0, "load"},
	OpDload2: {"dload_2", 0, "load"},
	OpDload3: {"dload_3", 0, "load"},
	OpAload0: {"aload_0", 0, "load"},
	OpAload1: {"aload_1", 0, "load"},
	OpAload2: {"aload_2", 0, "load"},
	OpAload3: {"aload_3", 0, "load"},

	OpIaload: {"iaload", 0, "array"},
	OpLaload: {"laload", 0, "array"},
	OpFaload: {"faload", 0, "array"},
	OpDaload: {"daload", 0, "array"},
	OpAaload: {"aaload", 0, "array"},
	OpBaload: {"baload", 0, "array"},
	OpCaload: {"caload", 0, "array"},
	OpSaload: {"saload", 0, "array"},

	OpIstore:  {"istore", 1, "store"},
	OpLstore:  {"lstore", 1, "store"},
	OpFstore:  {"fstore", 1, "store"},
	OpDstore:  {"dstore", 1, "store"},
	OpAstore:  {"astore", 1, "store"},
	OpIstore0: {"istore_0", 0, "store"},
	OpIstore1: {"istore_1", 0, "store"},
	OpIstore2: {"istore_2", 0, "store"},
	OpIstore3: {"istore_3", 0, "store"},
	OpLstore0: {"lstore_0", 0, "store"},
	OpLstore1: {"lstore_1", 0, "store"},
	OpLstore2: {"lstore_2", 0, "store"},
	OpLstore3: {"lstore_3", 0, "store"},
	OpFstore0: {"fstore_0", 0, "store"},
	OpFstore1: {"fstore_1", 0, "store"},
	OpFstore2: {"fstore_2", 0, "store"},
	OpFstore3: {"fstore_3", 0, "store"},
	OpDstore0: {"dstore_0", 0, "store"},
	OpDstore1: {"dstore_1", 0, "store"},
	OpDstore2: {"dstore_2", 0, "store"},
	OpDstore3: {"dstore_3", 0, "store"},
	OpAstore0: {"astore_0", 0, "store"},
	OpAstore1: {"astore_1", 0, "store"},
	OpAstore2: {"astore_2", 0, "store"},
	OpAstore3: {"astore_3", 0, "store"},

	OpIastore: {"iastore", 0, "array"},
	OpLastore: {"lastore", 0, "array"},
	OpFastore: {"fastore", 0, "array"},
	OpDastore: {"dastore", 0, "array"},
	OpAastore: {"aastore", 0, "array"},
	OpBastore: {"bastore", 0, "array"},
	OpCastore: {"castore", 0, "array"},
	OpSastore: {"sastore", 0, "array"},

	OpPop:    {"pop", 0, "stack"},
	OpPop2:   {"pop2", 0, "stack"},
	OpDup:    {"dup", 0, "stack"},
	OpDupX1:  {"dup_x1", 0, "stack"},
	OpDupX2:  {"dup_x2", 0, "stack"},
	OpDup2:   {"dup2", 0, "stack"},
	OpDup2X1: {"dup2_x1", 0, "stack"},
	OpDup2X2: {"dup2_x2", 0, "stack"},
	OpSwap:   {"swap", 0, "stack"},

	OpIadd:  {"iadd", 0, "math"},
	OpLadd:  {"ladd", 0, "math"},
	OpFadd:  {"fadd", 0, "math"},
	OpDadd:  {"dadd", 0, "math"},
	OpIsub:  {"isub", 0, "math"},
	OpLsub:  {"lsub", 0, "math"},
	OpFsub:  {"fsub", 0, "math"},
	OpDsub:  {"dsub", 0, "math"},
	OpImul:  {"imul", 0, "math"},
	OpLmul:  {"lmul", 0, "math"},
	OpFmul:  {"fmul", 0, "math"},
	OpDmul:  {"dmul", 0, "math"},
	OpIdiv:  {"idiv", 0, "math"},
	OpLdiv:  {"ldiv", 0, "math"},
	OpFdiv:  {"fdiv", 0, "math"},
	OpDdiv:  {"ddiv", 0, "math"},
	OpIrem:  {"irem", 0, "math"},
	OpLrem:  {"lrem", 0, "math"},
	OpFrem:  {"frem", 0, "math"},
	OpDrem:  {"drem", 0, "math"},
	OpIneg:  {"ineg", 0, "math"},
	OpLneg:  {"lneg", 0, "math"},
	OpFneg:  {"fneg", 0, "math"},
	OpDneg:  {"dneg", 0, "math"},
	OpIshl:  {"ishl", 0, "math"},
	OpLshl:  {"lshl", 0, "math"},
	OpIshr:  {"ishr", 0, "math"},
	OpLshr:  {"lshr", 0, "math"},
	OpIushr: {"iushr", 0, "math"},
	OpLushr: {"lushr", 0, "math"},
	OpIand:  {"iand", 0, "math"},
	OpLand:  {"land", 0, "math"},
	OpIor:   {"ior", 0, "math"},
	OpLor:   {"lor", 0, "math"},
	OpIxor:  {"ixor", 0, "math"},
	OpLxor:  {"lxor", 0, "math"},
	OpIinc:  {"iinc", 2, "math"},

	OpI2l: {"i2l", 0, "conv"},
	OpI2f: {"i2f", 0, "conv"},
	OpI2d: {"i2d", 0, "conv"},
	OpL2i: {"l2i", 0, "conv"},
	OpL2f: {"l2f", 0, "conv"},
	OpL2d: {"l2d", 0, "conv"},
	OpF2i: {"f2i", 0, "conv"},
	OpF2l: {"f2l", 0, "conv"},
	OpF2d: {"f2d", 0, "conv"},
	OpD2i: {"d2i", 0, "conv"},
	OpD2l: {"d2l", 0, "conv"},
	OpD2f: {"d2f", 0, "conv"},
	OpI2b: {"i2b", 0, "conv"},
	OpI2c: {"i2c", 0, "conv"},
	OpI2s: {"i2s", 0, "conv"},

	OpLcmp:  {"lcmp", 0, "cmp"},
	OpFcmpl: {"fcmpl", 0, "cmp"},
	OpFcmpg: {"fcmpg", 0, "cmp"},
	OpDcmpl: {"dcmpl", 0, "cmp"},
	OpDcmpg: {"dcmpg", 0, "cmp"},

	OpIfeq:     {"ifeq", 2, "branch"},
	OpIfne:     {"ifne", 2, "branch"},
	OpIflt:     {"iflt", 2, "branch"},
	OpIfge:     {"ifge", 2, "branch"},
	OpIfgt:     {"ifgt", 2, "branch"},
	OpIfle:     {"ifle", 2, "branch"},
	OpIfIcmpeq: {"if_icmpeq", 2, "branch"},
	OpIfIcmpne: {"if_icmpne", 2, "branch"},
	OpIfIcmplt: {"if_icmplt", 2, "branch"},
	OpIfIcmpge: {"if_icmpge", 2, "branch"},
	OpIfIcmpgt: {"if_icmpgt", 2, "branch"},
	OpIfIcmple: {"if_icmple", 2, "branch"},
	OpIfAcmpeq: {"if_acmpeq", 2, "branch"},
	OpIfAcmpne: {"if_acmpne", 2, "branch"},
	OpGoto:     {"goto", 2, "branch"},
	OpJsr:      {"jsr", 2, "branch"},
	OpRet:      {"ret", 1, "branch"},

	OpTableswitch:  {"tableswitch", VariableLen, "switch"},
	OpLookupswitch: {"lookupswitch", VariableLen, "switch"},

	OpIreturn: {"ireturn", 0, "return"},
	OpLreturn: {"lreturn", 0, "return"},
	OpFreturn: {"freturn", 0, "return"},
	OpDreturn: {"dreturn", 0, "return"},
	OpAreturn: {"areturn", 0, "return"},
	OpReturn:  {"return", 0, "return"},

	OpGetstatic: {"getstatic", 2, "field"},
	OpPutstatic: {"putstatic", 2, "field"},
	OpGetfield:  {"getfield", 2, "field"},
	OpPutfield:  {"putfield", 2, "field"},

	OpInvokevirtual:   {"invokevirtual", 2, "invoke"},
	OpInvokespecial:   {"invokespecial", 2, "invoke"},
	OpInvokestatic:    {"invokestatic", 2, "invoke"},
	OpInvokeinterface: {"invokeinterface", 4, "invoke"},
	OpInvokedynamic:   {"invokedynamic", 4, "invoke"},

	OpNew:       {"new", 2, "object"},
	OpNewarray:  {"newarray", 1, "object"},
	OpAnewarray: {"anewarray", 2, "object"},

	OpArraylength: {"arraylength", 0, "array"},

	OpAthrow:       {"athrow", 0, "object"},
	OpCheckcast:    {"checkcast", 2, "object"},
	OpInstanceof:   {"instanceof", 2, "object"},
	OpMonitorenter: {"monitorenter", 0, "object"},
	OpMonitorexit:  {"monitorexit", 0, "object"},

	OpWide: {"wide", VariableLen, "prefix"},

	OpMultianewarray: {"multianewarray", 3, "object"},

	OpIfnull:    {"ifnull", 2, "branch"},
	OpIfnonnull: {"ifnonnull", 2, "branch"},
	OpGotoW:     {"goto_w", 4, "branch"},
	OpJsrW:      {"jsr_w", 4, "branch"},

	OpPushRaw: {"ujpushraw", 4, "const"},
}

// GetOpcodeInfo returns metadata for an opcode, or an UNKNOWN entry.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(0x%02X)", byte(op))}
}

// Known reports whether op has an entry in the opcode table.
func (op Opcode) Known() bool {
	_, ok := opcodeInfoTable[op]
	return ok
}

// String returns the mnemonic.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// OperandLen returns the fixed operand length, or VariableLen.
func (op Opcode) OperandLen() int {
	return GetOpcodeInfo(op).OperandLen
}

// IsBranch reports whether op carries a relative jump offset.
func (op Opcode) IsBranch() bool {
	return (op >= OpIfeq && op <= OpGoto) || op == OpIfnull || op == OpIfnonnull || op == OpGotoW
}

// IsReturn reports whether op leaves the current frame.
func (op Opcode) IsReturn() bool {
	return op >= OpIreturn && op <= OpReturn
}

// IsInvoke reports whether op is one of the five invoke forms.
func (op Opcode) IsInvoke() bool {
	return op >= OpInvokevirtual && op <= OpInvokedynamic
}

// InstructionLen returns the full length of the instruction at code[pc],
// including switch padding (relative to code[0]) and wide operands.
func InstructionLen(code []byte, pc int) int {
	op := Opcode(code[pc])
	switch op {
	case OpTableswitch:
		base := (pc + 4) &^ 3
		low := int32(be32(code, base+4))
		high := int32(be32(code, base+8))
		return base - pc + 12 + 4*int(high-low+1)
	case OpLookupswitch:
		base := (pc + 4) &^ 3
		n := int(be32(code, base+4))
		return base - pc + 8 + 8*n
	case OpWide:
		next := Opcode(code[pc+1])
		switch {
		case next == OpIinc:
			return 6
		case next >= OpGetstatic && next <= OpPutfield,
			next == OpInvokespecial || next == OpInvokestatic:
			return 5
		}
		return 4
	}
	return 1 + op.OperandLen()
}

// AllOpcodes returns every opcode in the table.
func AllOpcodes() []Opcode {
	ops := make([]Opcode, 0, len(opcodeInfoTable))
	for op := range opcodeInfoTable {
		ops = append(ops, op)
	}
	return ops
}
