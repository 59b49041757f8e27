package router

import "testing"

type fakeCore struct {
	calls           []string
	registerFileRet int
	checkMappingRet int
}

func (f *fakeCore) RegisterMapping(addr, size uint64)     { f.calls = append(f.calls, "RegisterMapping") }
func (f *fakeCore) RemoveMapping(addr, size uint64)       { f.calls = append(f.calls, "RemoveMapping") }
func (f *fakeCore) RegisterFile(fd, addr, size, offset uint64) int {
	f.calls = append(f.calls, "RegisterFile")
	return f.registerFileRet
}
func (f *fakeCore) CheckIsMapping(addr, size uint64) int {
	f.calls = append(f.calls, "CheckIsMapping")
	return f.checkMappingRet
}
func (f *fakeCore) Flush(addr, size uint64)     { f.calls = append(f.calls, "Flush") }
func (f *fakeCore) Fence()                      { f.calls = append(f.calls, "Fence") }
func (f *fakeCore) Commit()                     { f.calls = append(f.calls, "Commit") }
func (f *fakeCore) WriteStats()                 { f.calls = append(f.calls, "WriteStats") }
func (f *fakeCore) SetLogging(on bool)          { f.calls = append(f.calls, "SetLogging") }
func (f *fakeCore) AddLogRegion(addr, size uint64)    { f.calls = append(f.calls, "AddLogRegion") }
func (f *fakeCore) RemoveLogRegion(addr, size uint64) { f.calls = append(f.calls, "RemoveLogRegion") }
func (f *fakeCore) FullReorder()                { f.calls = append(f.calls, "FullReorder") }
func (f *fakeCore) PartialReorder()             { f.calls = append(f.calls, "PartialReorder") }
func (f *fakeCore) OnlyFault()                  { f.calls = append(f.calls, "OnlyFault") }
func (f *fakeCore) StopReorderFault()           { f.calls = append(f.calls, "StopReorderFault") }
func (f *fakeCore) PrintMappings()              { f.calls = append(f.calls, "PrintMappings") }

func TestDispatchRoutesEveryOpcode(t *testing.T) {
	cases := []struct {
		op   Opcode
		want string
	}{
		{RegisterMapping, "RegisterMapping"},
		{RemoveMapping, "RemoveMapping"},
		{RegisterFile, "RegisterFile"},
		{CheckIsMapping, "CheckIsMapping"},
		{DoFlush, "Flush"},
		{DoFence, "Fence"},
		{DoCommit, "Commit"},
		{WriteStats, "WriteStats"},
		{LogStores, "SetLogging"},
		{NoLogStores, "SetLogging"},
		{AddLogRegion, "AddLogRegion"},
		{RemoveLogRegion, "RemoveLogRegion"},
		{FullReorder, "FullReorder"},
		{PartialReorder, "PartialReorder"},
		{OnlyFault, "OnlyFault"},
		{StopReorderFault, "StopReorderFault"},
		{PrintPmemMappings, "PrintMappings"},
	}
	for _, c := range cases {
		f := &fakeCore{}
		if _, err := Dispatch(f, Request{Op: c.op}); err != nil {
			t.Fatalf("opcode %v: unexpected error %v", c.op, err)
		}
		if len(f.calls) != 1 || f.calls[0] != c.want {
			t.Fatalf("opcode %v: expected call %q, got %v", c.op, c.want, f.calls)
		}
	}
}

func TestDispatchReturnsResultForRegisterFileAndCheckMapping(t *testing.T) {
	f := &fakeCore{registerFileRet: 1}
	result, err := Dispatch(f, Request{Op: RegisterFile})
	if err != nil || result != 1 {
		t.Fatalf("expected result=1 err=nil, got result=%d err=%v", result, err)
	}

	f = &fakeCore{checkMappingRet: 2}
	result, err = Dispatch(f, Request{Op: CheckIsMapping})
	if err != nil || result != 2 {
		t.Fatalf("expected result=2 err=nil, got result=%d err=%v", result, err)
	}
}

func TestDispatchUnknownOpcodeReturnsErrUnhandled(t *testing.T) {
	f := &fakeCore{}
	_, err := Dispatch(f, Request{Op: Opcode(999)})
	if err != ErrUnhandled {
		t.Fatalf("expected ErrUnhandled, got %v", err)
	}
	if len(f.calls) != 0 {
		t.Fatalf("expected no core calls for an unhandled opcode, got %v", f.calls)
	}
}

func TestParseCommand(t *testing.T) {
	cases := map[string]Command{
		"help":                     CmdHelp,
		"print_stats":              CmdPrintStats,
		"print_pmem_regions":       CmdPrintPmemRegions,
		"print_log_regions":        CmdPrintLogRegions,
		"print_log_regions extra":  CmdPrintLogRegions,
		"":                         CmdUnknown,
		"   ":                      CmdUnknown,
		"bogus":                    CmdUnknown,
		"Help":                     CmdUnknown, // case-sensitive
	}
	for line, want := range cases {
		if got := ParseCommand(line); got != want {
			t.Fatalf("ParseCommand(%q) = %v, want %v", line, got, want)
		}
	}
}
