package classfile

// Opcodes
const (
	OpNop             = 0x00
	OpAconstNull      = 0x01
	OpIconstM1        = 0x02
	OpIconst0         = 0x03
	OpIconst1         = 0x04
	OpIconst2         = 0x05
	OpIconst3         = 0x06
	OpIconst4         = 0x07
	OpIconst5         = 0x08
	OpLconst0         = 0x09
	OpLconst1         = 0x0A
	OpFconst0         = 0x0B
	OpFconst1         = 0x0C
	OpFconst2         = 0x0D
	OpDconst0         = 0x0E
	OpDconst1         = 0x0F
	OpBipush          = 0x10
	OpSipush          = 0x11
	OpLdc             = 0x12
	OpLdcW            = 0x13
	OpLdc2W           = 0x14
	OpIload           = 0x15
	OpLload           = 0x16
	OpFload           = 0x17
	OpDload           = 0x18
	OpAload           = 0x19
	OpIload0          = 0x1A
	OpLload0          = 0x1E
	OpFload0          = 0x22
	OpDload0          = 0x26
	OpAload0          = 0x2A
	OpAload1          = 0x2B
	OpIaload          = 0x2E
	OpSaload          = 0x35
	OpIstore          = 0x36
	OpLstore          = 0x37
	OpFstore          = 0x38
	OpDstore          = 0x39
	OpAstore          = 0x3A
	OpIstore0         = 0x3B
	OpAstore3         = 0x4E
	OpIastore         = 0x4F
	OpSastore         = 0x56
	OpPop             = 0x57
	OpPop2            = 0x58
	OpDup             = 0x59
	OpSwap            = 0x5F
	OpIadd            = 0x60
	OpLxor            = 0x83
	OpIinc            = 0x84
	OpI2l             = 0x85
	OpI2s             = 0x93
	OpLcmp            = 0x94
	OpDcmpg           = 0x98
	OpIfeq            = 0x99
	OpIfne            = 0x9A
	OpIflt            = 0x9B
	OpIfge            = 0x9C
	OpIfgt            = 0x9D
	OpIfle            = 0x9E
	OpIfIcmpeq        = 0x9F
	OpIfIcmpne        = 0xA0
	OpIfIcmplt        = 0xA1
	OpIfIcmpge        = 0xA2
	OpIfIcmpgt        = 0xA3
	OpIfIcmple        = 0xA4
	OpIfAcmpeq        = 0xA5
	OpIfAcmpne        = 0xA6
	OpGoto            = 0xA7
	OpJsr             = 0xA8
	OpRet             = 0xA9
	OpTableswitch     = 0xAA
	OpLookupswitch    = 0xAB
	OpIreturn         = 0xAC
	OpLreturn         = 0xAD
	OpFreturn         = 0xAE
	OpDreturn         = 0xAF
	OpAreturn         = 0xB0
	OpReturn          = 0xB1
	OpGetstatic       = 0xB2
	OpPutstatic       = 0xB3
	OpGetfield        = 0xB4
	OpPutfield        = 0xB5
	OpInvokevirtual   = 0xB6
	OpInvokespecial   = 0xB7
	OpInvokestatic    = 0xB8
	OpInvokeinterface = 0xB9
	OpInvokedynamic   = 0xBA
	OpNew             = 0xBB
	OpNewarray        = 0xBC
	OpAnewarray       = 0xBD
	OpArraylength     = 0xBE
	OpAthrow          = 0xBF
	OpCheckcast       = 0xC0
	OpInstanceof      = 0xC1
	OpMonitorenter    = 0xC2
	OpMonitorexit     = 0xC3
	OpWide            = 0xC4
	OpMultianewarray  = 0xC5
	OpIfnull          = 0xC6
	OpIfnonnull       = 0xC7
	OpGotoW           = 0xC8
	OpJsrW            = 0xC9
)

// operandSize is the fixed operand length of each opcode after the opcode
// byte. -1 marks opcodes whose length depends on position or a prefix.
var operandSize = func() [256]int {
	var s [256]int
	for i := range s {
		s[i] = -2 // undefined
	}
	for op := OpNop; op <= OpDconst1; op++ {
		s[op] = 0
	}
	s[OpBipush] = 1
	s[OpSipush] = 2
	s[OpLdc] = 1
	s[OpLdcW] = 2
	s[OpLdc2W] = 2
	for op := OpIload; op <= OpAload; op++ {
		s[op] = 1
	}
	for op := OpIload0; op <= OpSaload; op++ {
		s[op] = 0
	}
	for op := OpIstore; op <= OpAstore; op++ {
		s[op] = 1
	}
	for op := OpIstore0; op <= OpLxor; op++ {
		s[op] = 0
	}
	s[OpIinc] = 2
	for op := OpI2l; op <= OpDcmpg; op++ {
		s[op] = 0
	}
	for op := OpIfeq; op <= OpJsr; op++ {
		s[op] = 2
	}
	s[OpRet] = 1
	s[OpTableswitch] = -1
	s[OpLookupswitch] = -1
	for op := OpIreturn; op <= OpReturn; op++ {
		s[op] = 0
	}
	for op := OpGetstatic; op <= OpInvokestatic; op++ {
		s[op] = 2
	}
	s[OpInvokeinterface] = 4
	s[OpInvokedynamic] = 4
	s[OpNew] = 2
	s[OpNewarray] = 1
	s[OpAnewarray] = 2
	s[OpArraylength] = 0
	s[OpAthrow] = 0
	s[OpCheckcast] = 2
	s[OpInstanceof] = 2
	s[OpMonitorenter] = 0
	s[OpMonitorexit] = 0
	s[OpWide] = -1
	s[OpMultianewarray] = 3
	s[OpIfnull] = 2
	s[OpIfnonnull] = 2
	s[OpGotoW] = 4
	s[OpJsrW] = 4
	return s
}()

// IsFieldInsn reports whether op is one of the four field instructions.
func IsFieldInsn(op uint8) bool {
	return op >= OpGetstatic && op <= OpPutfield
}

// IsInvokeInsn reports whether op invokes a method through a member ref.
func IsInvokeInsn(op uint8) bool {
	return op >= OpInvokevirtual && op <= OpInvokeinterface
}

// IsJumpInsn reports whether op carries a relative branch target.
func IsJumpInsn(op uint8) bool {
	return (op >= OpIfeq && op <= OpJsr) || op == OpIfnull || op == OpIfnonnull || op == OpGotoW || op == OpJsrW
}

// IsClassInsn reports whether op carries a CONSTANT_Class operand.
func IsClassInsn(op uint8) bool {
	switch op {
	case OpNew, OpAnewarray, OpCheckcast, OpInstanceof:
		return true
	}
	return false
}

// IsStaticFieldInsn reports whether op is getstatic or putstatic.
func IsStaticFieldInsn(op uint8) bool {
	return op == OpGetstatic || op == OpPutstatic
}

// IsPutInsn reports whether op is putstatic or putfield.
func IsPutInsn(op uint8) bool {
	return op == OpPutstatic || op == OpPutfield
}
