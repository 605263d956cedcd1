package classfile

// Header is the class-level part of the declaration stream.
type Header struct {
	MinorVersion uint16
	MajorVersion uint16
	Access       uint16
	Name         string
	// Super is empty for java/lang/Object and module-info.
	Super      string
	Interfaces []string
	// Signature is the generic signature, empty if the class has none.
	Signature   string
	Annotations []Annotation
	// Attributes holds every other class attribute, raw.
	Attributes []AttributeInfo
}

// Field is one field declaration.
type Field struct {
	Access     uint16
	Name       string
	Descriptor string
	// Signature adds a generic signature to new declarations. Parsed
	// members keep theirs raw in Attributes.
	Signature   string
	Annotations []Annotation
	Attributes  []AttributeInfo
}

// Method is one method declaration. Code is nil for abstract and native
// methods; otherwise the body follows as instructions on the returned
// MethodVisitor.
type Method struct {
	Access      uint16
	Name        string
	Descriptor  string
	Signature   string
	Annotations []Annotation
	Attributes  []AttributeInfo
	Code        *CodeInfo
}

// IsStatic reports whether the method has the static bit.
func (m *Method) IsStatic() bool {
	return m.Access&AccStatic != 0
}

// CodeInfo is everything in a Code attribute except the instructions.
type CodeInfo struct {
	MaxStack  uint16
	MaxLocals uint16
	// Length is the size of the original code array, 0 for new bodies.
	Length     int
	Handlers   []ExceptionHandler
	Attributes []AttributeInfo
}

// ClassVisitor is one stage of a class rewrite pipeline. Stages are
// composed by wrapping: each holds the next stage and decides what to
// forward to it.
type ClassVisitor interface {
	VisitHeader(h *Header) error
	VisitField(f *Field) error
	// VisitMethod returns the visitor receiving the method body. A nil
	// visitor with a nil error drops the body.
	VisitMethod(m *Method) (MethodVisitor, error)
	VisitEnd() error
}

// MethodVisitor receives a method body one instruction at a time.
type MethodVisitor interface {
	VisitInstruction(insn Instruction) error
	VisitEnd() error
}

// EmitMethod sends a complete method, declaration and body, to v.
func EmitMethod(v ClassVisitor, m *Method, insns []Instruction) error {
	mv, err := v.VisitMethod(m)
	if err != nil || mv == nil {
		return err
	}
	for _, insn := range insns {
		if err := mv.VisitInstruction(insn); err != nil {
			return err
		}
	}
	return mv.VisitEnd()
}
