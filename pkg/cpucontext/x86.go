package cpucontext

var x86RegOrder = []string{
	"eax", "edx", "ecx", "ebx", "esi", "edi", "ebp", "esp", "eip",
}

var x86NameSet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(x86RegOrder))
	for _, n := range x86RegOrder {
		m[n] = struct{}{}
	}
	return m
}()

// X86Context is the CPUContext variant for 32-bit x86.
type X86Context struct {
	regs map[string]uint64
	v    Validity
}

func NewX86Context(regs map[string]uint64, v Validity) *X86Context {
	return &X86Context{regs: regs, v: v}
}

func (c *X86Context) Arch() Arch { return ArchX86 }

func (c *X86Context) GetRegister(name string, validity Validity) (uint64, bool) {
	if _, known := x86NameSet[name]; !known {
		return 0, false
	}
	if !validity.Has(name) {
		return 0, false
	}
	val, ok := c.regs[name]
	return val, ok
}

func (c *X86Context) SetRegister(name string, val uint64) {
	if _, known := x86NameSet[name]; !known {
		return
	}
	if c.regs == nil {
		c.regs = map[string]uint64{}
	}
	c.regs[name] = val
	c.v.Add(name)
}

func (c *X86Context) MemoizeRegister(name string) string {
	if _, known := x86NameSet[name]; known {
		return name
	}
	return ""
}

func (c *X86Context) StackPointerRegisterName() string       { return "esp" }
func (c *X86Context) InstructionPointerRegisterName() string { return "eip" }
func (c *X86Context) FramePointerRegisterName() string       { return "ebp" }

func (c *X86Context) Registers() []string { return x86RegOrder }

func (c *X86Context) Validity() *Validity { return &c.v }

func (c *X86Context) Clone() CPUContext {
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
	return &X86Context{regs: regs, v: nv}
}
