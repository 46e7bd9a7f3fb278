package script

import (
	"strings"
	"testing"
)

func TestParseAllOpcodes(t *testing.T) {
	src := `
# comment line, ignored

C
R 0x1000
W 4096
FO /tmp/x.txt
FO 5 /tmp/y.txt
FC 5
FR 3 128
FW 3 128
DR 0
DD 0
S 10
`
	program, err := Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(program) != 11 {
		t.Fatalf("len = %d, want 11", len(program))
	}

	if program[0].Op != Compute {
		t.Errorf("inst 0 op = %v, want Compute", program[0].Op)
	}
	if program[1].Op != MemRead || program[1].Addr != 0x1000 {
		t.Errorf("inst 1 = %+v, want MemRead @0x1000", program[1])
	}
	if program[2].Op != MemWrite || program[2].Addr != 4096 {
		t.Errorf("inst 2 = %+v, want MemWrite @4096", program[2])
	}
	if program[3].Op != FileOpen || program[3].FdExplicit || program[3].Path != "/tmp/x.txt" {
		t.Errorf("inst 3 = %+v, want auto-allocated FileOpen", program[3])
	}
	if program[4].Op != FileOpen || !program[4].FdExplicit || program[4].Fd != 5 {
		t.Errorf("inst 4 = %+v, want explicit fd 5", program[4])
	}
	if program[5].Op != FileClose || program[5].Fd != 5 {
		t.Errorf("inst 5 = %+v, want FileClose fd 5", program[5])
	}
	if program[6].Op != FileRead || program[6].Fd != 3 || program[6].N != 128 {
		t.Errorf("inst 6 = %+v, want FileRead fd 3 n 128", program[6])
	}
	if program[7].Op != FileWrite || program[7].Fd != 3 || program[7].N != 128 {
		t.Errorf("inst 7 = %+v, want FileWrite fd 3 n 128", program[7])
	}
	if program[8].Op != DevRequest || program[8].Dev != 0 {
		t.Errorf("inst 8 = %+v, want DevRequest dev 0", program[8])
	}
	if program[9].Op != DevRelease || program[9].Dev != 0 {
		t.Errorf("inst 9 = %+v, want DevRelease dev 0", program[9])
	}
}

func TestParseUnknownOpcode(t *testing.T) {
	if _, err := Parse(strings.NewReader("ZZZ 1")); err == nil {
		t.Fatalf("expected error for unknown opcode")
	}
}

func TestParseMnemonicAliases(t *testing.T) {
	program, err := Parse(strings.NewReader("COMPUTE\nSLEEP 3\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(program) != 2 || program[0].Op != Compute || program[1].Op != Sleep || program[1].N != 3 {
		t.Fatalf("program = %+v", program)
	}
}
