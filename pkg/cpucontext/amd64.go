package cpucontext

// amd64RegOrder lists the canonical register names delve's
// regnum/DwarfRegisters tables use for x86-64, in the order a
// diagnostic dump should print them.
var amd64RegOrder = []string{
	"rax", "rdx", "rcx", "rbx", "rsi", "rdi", "rbp", "rsp",
	"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15", "rip",
}

var amd64NameSet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(amd64RegOrder))
	for _, n := range amd64RegOrder {
		m[n] = struct{}{}
	}
	return m
}()

// AMD64Context is the CPUContext variant for x86-64.
type AMD64Context struct {
	regs map[string]uint64
	v    Validity
}

// NewAMD64Context builds a context from a named register map. The
// caller supplies validity explicitly (AllValid() for a context read
// straight out of the dump, an empty Validity for one under
// construction by a CFI/frame-pointer strategy).
func NewAMD64Context(regs map[string]uint64, v Validity) *AMD64Context {
	return &AMD64Context{regs: regs, v: v}
}

func (c *AMD64Context) Arch() Arch { return ArchAMD64 }

func (c *AMD64Context) GetRegister(name string, validity Validity) (uint64, bool) {
	if _, known := amd64NameSet[name]; !known {
		return 0, false
	}
	if !validity.Has(name) {
		return 0, false
	}
	val, ok := c.regs[name]
	return val, ok
}

func (c *AMD64Context) SetRegister(name string, val uint64) {
	if _, known := amd64NameSet[name]; !known {
		return
	}
	if c.regs == nil {
		c.regs = map[string]uint64{}
	}
	c.regs[name] = val
	c.v.Add(name)
}

func (c *AMD64Context) MemoizeRegister(name string) string {
	if _, known := amd64NameSet[name]; known {
		return name
	}
	return ""
}

func (c *AMD64Context) StackPointerRegisterName() string       { return "rsp" }
func (c *AMD64Context) InstructionPointerRegisterName() string { return "rip" }
func (c *AMD64Context) FramePointerRegisterName() string       { return "rbp" }

func (c *AMD64Context) Registers() []string { return amd64RegOrder }

func (c *AMD64Context) Validity() *Validity { return &c.v }

func (c *AMD64Context) Clone() CPUContext {
	regs := make(map[string]uint64, len(c.regs))
	for k, val := range c.regs {
		regs[k] = val
	}
	nv := Validity{All: c.v.All}
	if c.v.Names != nil {
		nv.Names = make(map[string]struct{}, len(c.v.Names))
		for k := range c.v.Names {
			nv.Names[k] = struct{}{}
		}
	}
	return &AMD64Context{regs: regs, v: nv}
}
