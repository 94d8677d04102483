package cpucontext

// arm32RegOrder follows the standard AAPCS names; r11 is the
// conventional frame pointer, r13/r14/r15 are sp/lr/pc.
var arm32RegOrder = []string{
	"r0", "r1", "r2", "r3", "r4", "r5", "r6", "r7", "r8", "r9", "r10",
	"r11", "r12", "sp", "lr", "pc",
}

var arm32NameSet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(arm32RegOrder))
	for _, n := range arm32RegOrder {
		m[n] = struct{}{}
	}
	return m
}()

// ARMContext is the CPUContext variant for 32-bit ARM.
type ARMContext struct {
	regs map[string]uint64
	v    Validity
}

func NewARMContext(regs map[string]uint64, v Validity) *ARMContext {
	return &ARMContext{regs: regs, v: v}
}

func (c *ARMContext) Arch() Arch { return ArchARM32 }

func (c *ARMContext) GetRegister(name string, validity Validity) (uint64, bool) {
	if _, known := arm32NameSet[name]; !known {
		return 0, false
	}
	if !validity.Has(name) {
		return 0, false
	}
	val, ok := c.regs[name]
	return val, ok
}

func (c *ARMContext) SetRegister(name string, val uint64) {
	if _, known := arm32NameSet[name]; !known {
		return
	}
	if c.regs == nil {
		c.regs = map[string]uint64{}
	}
	c.regs[name] = val
	c.v.Add(name)
}

func (c *ARMContext) MemoizeRegister(name string) string {
	if _, known := arm32NameSet[name]; known {
		return name
	}
	return ""
}

func (c *ARMContext) StackPointerRegisterName() string       { return "sp" }
func (c *ARMContext) InstructionPointerRegisterName() string { return "pc" }
func (c *ARMContext) LinkRegisterName() string               { return "lr" }

// FramePointerRegisterName returns "r11", the AAPCS frame pointer.
// Thumb code conventionally uses r7 instead; callers that have a
// symbol hint indicating Thumb code should consult r7 directly
// rather than through this accessor (§4.3, arm32).
func (c *ARMContext) FramePointerRegisterName() string { return "r11" }

func (c *ARMContext) Registers() []string { return arm32RegOrder }

func (c *ARMContext) Validity() *Validity { return &c.v }

func (c *ARMContext) Clone() CPUContext {
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
	return &ARMContext{regs: regs, v: nv}
}
