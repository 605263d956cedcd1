package definitions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FukkitMC/gloom/pkg/classfile"
)

const foo = "com/example/Foo"

func value() Member {
	return Member{Owner: foo, Name: "value", Descriptor: "I"}
}

func fooSpec() ClassSpec {
	return ClassSpec{
		Type:              foo,
		InjectInterfaces:  []string{"com/example/Marker"},
		PublicizedFields:  []Member{value(), {Owner: foo, Name: "COUNT", Descriptor: "J"}},
		PublicizedMethods: []Member{{Owner: foo, Name: "helper", Descriptor: "(I)Ljava/lang/String;"}},
		MutableFields:     []Member{{Owner: foo, Name: "name", Descriptor: "Ljava/lang/String;"}},
		SyntheticFields: []SyntheticField{
			{
				Name:   "extra",
				Type:   "Z",
				Access: classfile.AccPrivate,
				Getter: &Accessor{Access: classfile.AccPublic, Type: "Z", Name: "isExtra"},
				Setter: &Accessor{Access: classfile.AccPublic, Type: "Z", Name: "setExtra"},
			},
			{
				Name:   "registry",
				Type:   "Ljava/util/Map;",
				Access: classfile.AccPrivate | classfile.AccStatic,
				Getter: &Accessor{Access: classfile.AccPublic | classfile.AccStatic, Type: "Ljava/util/Map;", Name: "getRegistry"},
			},
		},
		SyntheticMethods: []SyntheticMethod{{
			Opcode:     classfile.OpInvokestatic,
			Name:       "bridge",
			Descriptor: "(Lcom/example/Foo;I)V",
			Access:     classfile.AccPublic | classfile.AccStatic,
			Redirect:   Member{Owner: "com/example/Helpers", Name: "bridge", Descriptor: "(Lcom/example/Foo;I)V"},
		}},
	}
}

func mustDefinition(t *testing.T, spec ClassSpec) *ClassDefinition {
	t.Helper()
	def, err := NewClassDefinition(spec)
	require.NoError(t, err)
	return def
}

func TestFieldAccess(t *testing.T) {
	tests := []struct {
		name   string
		spec   ClassSpec
		member Member
		flags  uint16
		want   uint16
	}{
		{
			name:   "publicized private final",
			spec:   ClassSpec{Type: foo, PublicizedFields: []Member{value()}},
			member: value(),
			flags:  classfile.AccPrivate | classfile.AccFinal,
			want:   classfile.AccPublic | classfile.AccFinal,
		},
		{
			name:   "publicized and mutable",
			spec:   ClassSpec{Type: foo, PublicizedFields: []Member{value()}, MutableFields: []Member{value()}},
			member: value(),
			flags:  classfile.AccPrivate | classfile.AccFinal,
			want:   classfile.AccPublic,
		},
		{
			name:   "protected becomes public",
			spec:   ClassSpec{Type: foo, PublicizedFields: []Member{value()}},
			member: value(),
			flags:  classfile.AccProtected | classfile.AccVolatile,
			want:   classfile.AccPublic | classfile.AccVolatile,
		},
		{
			name:   "static mutable keeps final",
			spec:   ClassSpec{Type: foo, MutableFields: []Member{value()}},
			member: value(),
			flags:  classfile.AccPrivate | classfile.AccStatic | classfile.AccFinal,
			want:   classfile.AccPrivate | classfile.AccStatic | classfile.AccFinal,
		},
		{
			name:   "unlisted member",
			spec:   ClassSpec{Type: foo, PublicizedFields: []Member{value()}},
			member: Member{Owner: foo, Name: "value", Descriptor: "J"},
			flags:  classfile.AccPrivate,
			want:   classfile.AccPrivate,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := mustDefinition(t, tt.spec)
			assert.Equal(t, tt.want, def.FieldAccess(tt.member, tt.flags))
		})
	}
}

func TestMethodAccess(t *testing.T) {
	def := mustDefinition(t, fooSpec())
	helper := Member{Owner: foo, Name: "helper", Descriptor: "(I)Ljava/lang/String;"}

	assert.Equal(t, uint16(classfile.AccPublic|classfile.AccStatic),
		def.MethodAccess(helper, classfile.AccPrivate|classfile.AccStatic))
	assert.Equal(t, uint16(classfile.AccPublic|classfile.AccFinal),
		def.MethodAccess(helper, classfile.AccProtected|classfile.AccFinal))

	other := Member{Owner: foo, Name: "helper", Descriptor: "()V"}
	assert.Equal(t, uint16(classfile.AccProtected), def.MethodAccess(other, classfile.AccProtected))
}

func TestAccessIsIdempotent(t *testing.T) {
	def := mustDefinition(t, ClassSpec{
		Type:              foo,
		PublicizedFields:  []Member{value()},
		PublicizedMethods: []Member{{Owner: foo, Name: "run", Descriptor: "()V"}},
		MutableFields:     []Member{value()},
	})
	members := []Member{value(), {Owner: foo, Name: "run", Descriptor: "()V"}, {Owner: foo, Name: "other", Descriptor: "I"}}

	for _, m := range members {
		for flags := 0; flags <= 0xFFFF; flags++ {
			once := def.FieldAccess(m, uint16(flags))
			require.Equal(t, once, def.FieldAccess(m, once), "field %s flags %#x", m, flags)

			once = def.MethodAccess(m, uint16(flags))
			require.Equal(t, once, def.MethodAccess(m, once), "method %s flags %#x", m, flags)
		}
	}
}

func TestSyntheticLookups(t *testing.T) {
	def := mustDefinition(t, fooSpec())

	f, ok := def.SyntheticField("extra", "Z")
	require.True(t, ok)
	assert.Equal(t, "isExtra", f.Getter.Name)

	_, ok = def.SyntheticField("extra", "I")
	assert.False(t, ok, "descriptor must match exactly")

	f, ok = def.FindSyntheticGetter("extra", "()Z")
	require.True(t, ok)
	assert.Equal(t, "extra", f.Name)

	f, ok = def.FindSyntheticSetter("extra", "(Z)V")
	require.True(t, ok)
	assert.Equal(t, "setExtra", f.Setter.Name)

	_, ok = def.FindSyntheticSetter("registry", "(Ljava/util/Map;)V")
	assert.False(t, ok, "registry has no setter")
	_, ok = def.FindSyntheticGetter("extra", "()I")
	assert.False(t, ok)
	_, ok = def.FindSyntheticGetter("missing", "()Z")
	assert.False(t, ok)

	m, ok := def.SyntheticMethod("bridge", "(Lcom/example/Foo;I)V")
	require.True(t, ok)
	assert.Equal(t, "com/example/Helpers", m.Redirect.Owner)
	assert.False(t, m.RedirectInterface())
	_, ok = def.SyntheticMethod("bridge", "()V")
	assert.False(t, ok)
}

func TestDefinitionIsImmutable(t *testing.T) {
	spec := fooSpec()
	def := mustDefinition(t, spec)

	spec.SyntheticFields[0].Getter.Name = "changed"
	spec.InjectInterfaces[0] = "changed"

	f, ok := def.SyntheticField("extra", "Z")
	require.True(t, ok)
	assert.Equal(t, "isExtra", f.Getter.Name)

	f.Getter.Name = "changed again"
	f, _ = def.SyntheticField("extra", "Z")
	assert.Equal(t, "isExtra", f.Getter.Name)

	ifaces := def.InjectInterfaces()
	ifaces[0] = "changed"
	assert.Equal(t, []string{"com/example/Marker"}, def.InjectInterfaces())
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ClassSpec)
	}{
		{"bad class name", func(s *ClassSpec) { s.Type = "com.example.Foo" }},
		{"publicized field owner", func(s *ClassSpec) {
			s.PublicizedFields = append(s.PublicizedFields, Member{Owner: "com/example/Bar", Name: "x", Descriptor: "I"})
		}},
		{"publicized method owner", func(s *ClassSpec) {
			s.PublicizedMethods = append(s.PublicizedMethods, Member{Owner: "com/example/Bar", Name: "x", Descriptor: "()V"})
		}},
		{"mutable field owner", func(s *ClassSpec) {
			s.MutableFields = append(s.MutableFields, Member{Owner: "com/example/Bar", Name: "x", Descriptor: "I"})
		}},
		{"static initializer", func(s *ClassSpec) {
			s.PublicizedMethods = append(s.PublicizedMethods, Member{Owner: foo, Name: "<clinit>", Descriptor: "()V"})
		}},
		{"field descriptor", func(s *ClassSpec) {
			s.PublicizedFields = append(s.PublicizedFields, Member{Owner: foo, Name: "x", Descriptor: "()V"})
		}},
		{"method descriptor", func(s *ClassSpec) {
			s.PublicizedMethods = append(s.PublicizedMethods, Member{Owner: foo, Name: "x", Descriptor: "I"})
		}},
		{"getter static mismatch", func(s *ClassSpec) {
			s.SyntheticFields[0].Getter.Access |= classfile.AccStatic
		}},
		{"setter static mismatch", func(s *ClassSpec) {
			s.SyntheticFields[0].Setter.Access |= classfile.AccStatic
		}},
		{"setter on final field", func(s *ClassSpec) {
			s.SyntheticFields[0].Access |= classfile.AccFinal
		}},
		{"final setter", func(s *ClassSpec) {
			s.SyntheticFields[0].Setter.Access |= classfile.AccFinal
		}},
		{"duplicate synthetic field name", func(s *ClassSpec) {
			s.SyntheticFields = append(s.SyntheticFields, SyntheticField{Name: "extra", Type: "I"})
		}},
		{"synthetic field type", func(s *ClassSpec) { s.SyntheticFields[1].Type = "V" }},
		{"accessor type", func(s *ClassSpec) { s.SyntheticFields[1].Getter.Type = "Q" }},
		{"getter type differs from field", func(s *ClassSpec) { s.SyntheticFields[1].Getter.Type = "Ljava/lang/Object;" }},
		{"setter type differs from field", func(s *ClassSpec) { s.SyntheticFields[0].Setter.Type = "I" }},
		{"duplicate synthetic method", func(s *ClassSpec) {
			s.SyntheticMethods = append(s.SyntheticMethods, s.SyntheticMethods[0])
		}},
		{"synthetic method opcode", func(s *ClassSpec) { s.SyntheticMethods[0].Opcode = classfile.OpGetfield }},
		{"synthetic method redirect", func(s *ClassSpec) { s.SyntheticMethods[0].Redirect.Owner = "" }},
		{"injected interface", func(s *ClassSpec) { s.InjectInterfaces = []string{"Lcom/example/Marker;"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := fooSpec()
			tt.mutate(&spec)
			_, err := NewClassDefinition(spec)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidDefinition)
		})
	}
}

func TestNewRejectsKeyMismatch(t *testing.T) {
	def := mustDefinition(t, fooSpec())

	_, err := New(map[string]*ClassDefinition{"com/example/Bar": def})
	assert.ErrorIs(t, err, ErrInvalidDefinition)

	defs, err := New(map[string]*ClassDefinition{foo: def})
	require.NoError(t, err)
	assert.Same(t, def, defs.Lookup(foo))
	assert.Nil(t, defs.Lookup("com/example/Bar"))
}

func TestOfRejectsDuplicateClass(t *testing.T) {
	_, err := Of(ClassSpec{Type: foo}, ClassSpec{Type: foo})
	assert.ErrorIs(t, err, ErrInvalidDefinition)
}

func TestNilDefinitionsAreEmpty(t *testing.T) {
	var defs *Definitions
	assert.Nil(t, defs.Lookup(foo))
	assert.Zero(t, defs.Len())
	assert.Empty(t, defs.Classes())
}

func TestMerge(t *testing.T) {
	left, err := Of(
		ClassSpec{Type: foo, PublicizedFields: []Member{value()}},
		ClassSpec{Type: "com/example/Only"},
	)
	require.NoError(t, err)
	right, err := Of(ClassSpec{
		Type:              foo,
		PublicizedFields:  []Member{value()},
		PublicizedMethods: []Member{{Owner: foo, Name: "run", Descriptor: "()V"}},
		SyntheticFields:   []SyntheticField{{Name: "extra", Type: "I"}},
	})
	require.NoError(t, err)

	merged, err := left.Merge(right)
	require.NoError(t, err)
	assert.Equal(t, []string{foo, "com/example/Only"}, merged.Names())

	def := merged.Lookup(foo)
	require.NotNil(t, def)
	assert.True(t, def.IsPublicizedField(value()))
	assert.True(t, def.IsPublicizedMethod(Member{Owner: foo, Name: "run", Descriptor: "()V"}))
	assert.Len(t, def.Spec().PublicizedFields, 1)
	_, ok := def.SyntheticField("extra", "I")
	assert.True(t, ok)

	assert.False(t, left.Lookup(foo).IsPublicizedMethod(Member{Owner: foo, Name: "run", Descriptor: "()V"}),
		"receiver is unchanged")

	conflict, err := Of(ClassSpec{Type: foo, SyntheticFields: []SyntheticField{{Name: "extra", Type: "J"}}})
	require.NoError(t, err)
	_, err = merged.Merge(conflict)
	assert.ErrorIs(t, err, ErrInvalidDefinition)
}
