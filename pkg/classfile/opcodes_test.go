package classfile

import (
	"strings"
	"testing"
)

func TestAllOpcodesHaveMetadata(t *testing.T) {
	for _, op := range AllOpcodes() {
		info := GetOpcodeInfo(op)
		if info.Name == "" || strings.HasPrefix(info.Name, "UNKNOWN") {
			t.Errorf("Opcode 0x%02X has no metadata", byte(op))
		}
	}
}

func TestOpcodeString(t *testing.T) {
	tests := []struct {
		op   Opcode
		want string
	}{
		{OpNop, "nop"},
		{OpIconstM1, "iconst_m1"},
		{OpIadd, "iadd"},
		{OpTableswitch, "tableswitch"},
		{OpInvokeinterface, "invokeinterface"},
		{OpPushRaw, "ujpushraw"},
	}
	for _, tt := range tests {
		if got := tt.op.String(); got != tt.want {
			t.Errorf("%02X.String() = %q, want %q", byte(tt.op), got, tt.want)
		}
	}
	if got := Opcode(0xEE).String(); !strings.HasPrefix(got, "UNKNOWN") {
		t.Errorf("unknown opcode rendered as %q", got)
	}
}

func TestOpcodePredicates(t *testing.T) {
	if !OpIfIcmplt.IsBranch() || !OpGotoW.IsBranch() || !OpIfnonnull.IsBranch() {
		t.Error("branch opcodes not recognised")
	}
	if OpIadd.IsBranch() || OpTableswitch.IsBranch() {
		t.Error("non-branch opcode reported as branch")
	}
	if !OpAreturn.IsReturn() || OpAthrow.IsReturn() {
		t.Error("IsReturn wrong")
	}
	if !OpInvokestatic.IsInvoke() || OpNew.IsInvoke() {
		t.Error("IsInvoke wrong")
	}
}

func TestInstructionLen(t *testing.T) {
	tests := []struct {
		name string
		code []byte
		pc   int
		want int
	}{
		{"iadd", []byte{byte(OpIadd)}, 0, 1},
		{"bipush", []byte{byte(OpBipush), 5}, 0, 2},
		{"invokeinterface", []byte{byte(OpInvokeinterface), 0, 1, 1, 0}, 0, 5},
		{"wide iload", []byte{byte(OpWide), byte(OpIload), 1, 0}, 0, 4},
		{"wide iinc", []byte{byte(OpWide), byte(OpIinc), 1, 0, 0, 1}, 0, 6},
		{"wide invokestatic", []byte{byte(OpWide), byte(OpInvokestatic), 1, 0, 2}, 0, 5},
		{"wide getfield", []byte{byte(OpWide), byte(OpGetfield), 'I', 0, 4}, 0, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := InstructionLen(tt.code, tt.pc); got != tt.want {
				t.Errorf("InstructionLen = %d, want %d", got, tt.want)
			}
		})
	}
}
