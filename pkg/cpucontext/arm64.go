package cpucontext

// arm64RegOrder covers x0-x28, fp(x29), lr(x30), sp, pc.
var arm64RegOrder = func() []string {
	names := make([]string, 0, 32)
	for i := 0; i <= 28; i++ {
		names = append(names, regName(i))
	}
	return append(names, "fp", "lr", "sp", "pc")
}()

func regName(i int) string {
	switch i {
	case 29:
		return "fp"
	case 30:
		return "lr"
	}
	return "x" + itoa(i)
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var buf [8]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	return string(buf[pos:])
}

var arm64NameSet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(arm64RegOrder))
	for _, n := range arm64RegOrder {
		m[n] = struct{}{}
	}
	return m
}()

// ARM64Context is the CPUContext variant for 64-bit ARM. The
// legacy "old" context layout (OldArm64 in the original minidump
// format) is consumed via the isOld flag rather than a second type:
// per §4.3 "unwinding logic is identical", only the tag differs.
type ARM64Context struct {
	regs  map[string]uint64
	v     Validity
	isOld bool
}

func NewARM64Context(regs map[string]uint64, v Validity, isOld bool) *ARM64Context {
	return &ARM64Context{regs: regs, v: v, isOld: isOld}
}

func (c *ARM64Context) Arch() Arch {
	if c.isOld {
		return ArchARM64Old
	}
	return ArchARM64
}

func (c *ARM64Context) GetRegister(name string, validity Validity) (uint64, bool) {
	if _, known := arm64NameSet[name]; !known {
		return 0, false
	}
	if !validity.Has(name) {
		return 0, false
	}
	val, ok := c.regs[name]
	return val, ok
}

func (c *ARM64Context) SetRegister(name string, val uint64) {
	if _, known := arm64NameSet[name]; !known {
		return
	}
	if c.regs == nil {
		c.regs = map[string]uint64{}
	}
	c.regs[name] = val
	c.v.Add(name)
}

func (c *ARM64Context) MemoizeRegister(name string) string {
	if _, known := arm64NameSet[name]; known {
		return name
	}
	return ""
}

func (c *ARM64Context) StackPointerRegisterName() string       { return "sp" }
func (c *ARM64Context) InstructionPointerRegisterName() string { return "pc" }
func (c *ARM64Context) LinkRegisterName() string               { return "lr" }
func (c *ARM64Context) FramePointerRegisterName() string       { return "fp" }

func (c *ARM64Context) Registers() []string { return arm64RegOrder }

func (c *ARM64Context) Validity() *Validity { return &c.v }

func (c *ARM64Context) Clone() CPUContext {
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
	return &ARM64Context{regs: regs, v: nv, isOld: c.isOld}
}

// MaskPAC clears the pointer-authentication top byte from a raw PC
// value read off the stack, per §4.3's arm64 note. Real PAC schemes
// use VA-size-dependent masks; minidumps from all currently supported
// targets use a 48-bit VA, so a fixed top-byte mask is sufficient.
func MaskPAC(pc uint64) uint64 {
	return pc &^ (0xFF << 56)
}
