package mixin

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FukkitMC/gloom/pkg/classfile"
	"github.com/FukkitMC/gloom/pkg/classfile/classfiletest"
	"github.com/FukkitMC/gloom/pkg/classpath"
	"github.com/FukkitMC/gloom/pkg/emitter"
)

const (
	pkg   = "gloom/generated"
	owner = "com/example/Foo"
	base  = pkg + "/" + owner
)

func allocate(t *testing.T, e emitter.Emitter, ns emitter.Namespace, name, desc string) string {
	t.Helper()
	generated, err := e.Allocate(ns, emitter.Key{Name: name, Descriptor: desc})
	require.NoError(t, err)
	return generated
}

func generated(t *testing.T, b *Backend) map[string][]byte {
	t.Helper()
	entries, err := b.Generate()
	require.NoError(t, err)
	out := make(map[string][]byte, len(entries))
	for _, e := range entries {
		out[e.ClassName()] = e.Data
	}
	return out
}

func annotations(t *testing.T, data []byte, attrs []classfile.AttributeInfo, name string) []classfile.Annotation {
	t.Helper()
	attr := classfile.FindAttribute(attrs, name)
	if attr == nil {
		return nil
	}
	anns, err := classfile.DecodeAnnotations(classfiletest.Parse(t, data).ConstantPool, attr)
	require.NoError(t, err)
	return anns
}

func TestEmitterNames(t *testing.T) {
	e := NewEmitter(pkg+"/", owner, nil)
	assert.Equal(t, owner, e.Owner())
	assert.Equal(t, base+"$Holder", e.Holder())
	assert.Equal(t, base+"$Interface", e.Interface())
	assert.Equal(t, base+"$Mixin", e.Mixin())
	assert.Equal(t, base+"$Accessor", e.Accessor())
}

func TestShouldEmit(t *testing.T) {
	tests := []struct {
		ns                           emitter.Namespace
		holder, itf, mixin, accessor bool
	}{
		{emitter.HolderGet, true, false, false, false},
		{emitter.HolderSet, true, false, false, false},
		{emitter.InterfaceGet, false, true, true, false},
		{emitter.InterfaceSet, false, true, true, false},
		{emitter.InterfaceMutableSet, false, true, true, false},
		{emitter.InstanceGet, false, false, false, true},
		{emitter.InstanceInvoke, false, false, false, true},
		{emitter.StaticSet, false, false, false, true},
		{emitter.StaticInvoke, false, false, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.ns.String(), func(t *testing.T) {
			e := NewEmitter(pkg, owner, nil)
			assert.False(t, e.ShouldEmitHolder() || e.ShouldEmitInterface() || e.ShouldEmitAccessor())

			allocate(t, e, tt.ns, "x", "I")
			assert.Equal(t, tt.holder, e.ShouldEmitHolder())
			assert.Equal(t, tt.itf, e.ShouldEmitInterface())
			assert.Equal(t, tt.mixin, e.ShouldEmitMixin())
			assert.Equal(t, tt.accessor, e.ShouldEmitAccessor())
		})
	}
}

func TestHolder(t *testing.T) {
	b := New(pkg)
	e := b.Get(owner)
	get := allocate(t, e, emitter.HolderGet, "total", "J")
	set := allocate(t, e, emitter.HolderSet, "total", "J")
	allocate(t, e, emitter.HolderGet, "registry", "Ljava/util/Map;")

	classes := generated(t, b)
	require.Len(t, classes, 1)
	data := classes[base+"$Holder"]
	rec := classfiletest.Record(t, data)

	assert.Equal(t, uint16(classfile.AccPublic|classfile.AccFinal|classfile.AccSuper), rec.Header.Access)
	assert.Equal(t, uint16(classfile.Java8), rec.Header.MajorVersion)

	ctor := rec.Method("<init>", "()V")
	require.NotNil(t, ctor)
	assert.Equal(t, uint16(classfile.AccPrivate), ctor.Access)

	getter := rec.Method(get, "()J")
	require.NotNil(t, getter)
	assert.Equal(t, uint16(classfile.AccPublic|classfile.AccStatic), getter.Access)
	assert.Equal(t, []uint8{classfile.OpGetstatic, classfile.OpLreturn}, getter.Opcodes())
	assert.Equal(t, []classfile.MemberRef{{Owner: base + "$Holder", Name: "total", Descriptor: "J"}}, getter.Refs())

	setter := rec.Method(set, "(J)V")
	require.NotNil(t, setter)
	assert.Equal(t, []uint8{classfile.OpLload, classfile.OpPutstatic, classfile.OpReturn}, setter.Opcodes())

	cf := classfiletest.Parse(t, data)
	code := cf.FindMethod(set, "(J)V").Code
	assert.Equal(t, uint16(2), code.MaxStack)
	assert.Equal(t, uint16(2), code.MaxLocals)

	require.Len(t, rec.Fields, 2, "one field per synthetic field")
	assert.Equal(t, "total", rec.Fields[0].Name)
	assert.Equal(t, uint16(classfile.AccPrivate|classfile.AccStatic), rec.Fields[0].Access)
	assert.Equal(t, "registry", rec.Fields[1].Name)
}

func TestInterfaceAndMixin(t *testing.T) {
	b := New(pkg)
	e := b.Get(owner)
	get := allocate(t, e, emitter.InterfaceGet, "extra", "Ljava/util/List;")
	set := allocate(t, e, emitter.InterfaceSet, "extra", "Ljava/util/List;")
	mutable := allocate(t, e, emitter.InterfaceMutableSet, "name", "Ljava/lang/String;")

	classes := generated(t, b)
	require.Len(t, classes, 2)

	itf := classfiletest.Record(t, classes[base+"$Interface"])
	assert.Equal(t, uint16(classfile.AccPublic|classfile.AccInterface|classfile.AccAbstract), itf.Header.Access)
	require.Len(t, itf.Methods, 3)
	for _, m := range itf.Methods {
		assert.Equal(t, uint16(classfile.AccPublic|classfile.AccAbstract), m.Access, m.Name)
		assert.Nil(t, m.Code)
	}
	assert.NotNil(t, itf.Method(get, "()Ljava/util/List;"))
	assert.NotNil(t, itf.Method(set, "(Ljava/util/List;)V"))
	assert.NotNil(t, itf.Method(mutable, "(Ljava/lang/String;)V"))

	data := classes[base+"$Mixin"]
	mx := classfiletest.Record(t, data)
	assert.Equal(t, []string{base + "$Interface"}, mx.Header.Interfaces)

	anns := annotations(t, data, mx.Header.Attributes, classfile.AttrInvisibleAnnotations)
	require.Len(t, anns, 1)
	assert.Equal(t, AnnotationMixin, anns[0].Type)
	value, ok := anns[0].Value("value")
	require.True(t, ok)
	assert.Equal(t, []classfile.ElementValue{classfile.ClassValue("Lcom/example/Foo;")}, value.Array)
	remap, ok := anns[0].Value("remap")
	require.True(t, ok)
	assert.False(t, remap.Bool)

	ctor := mx.Method("<init>", "()V")
	require.NotNil(t, ctor)
	assert.Equal(t, uint16(classfile.AccPublic), ctor.Access)

	getter := mx.Method(get, "()Ljava/util/List;")
	require.NotNil(t, getter)
	assert.Equal(t, []uint8{classfile.OpAload, classfile.OpGetfield, classfile.OpAreturn}, getter.Opcodes())
	assert.Equal(t, []classfile.MemberRef{{Owner: base + "$Mixin", Name: "extra", Descriptor: "Ljava/util/List;"}}, getter.Refs())

	shadow := mx.Field("name")
	require.NotNil(t, shadow)
	assert.Equal(t, uint16(classfile.AccPrivate), shadow.Access)
	var types []string
	for _, a := range annotations(t, data, shadow.Attributes, classfile.AttrVisibleAnnotations) {
		types = append(types, a.Type)
	}
	assert.Equal(t, []string{AnnotationShadow, AnnotationMutable, AnnotationFinal}, types)

	setter := mx.Method(mutable, "(Ljava/lang/String;)V")
	require.NotNil(t, setter)
	assert.Equal(t, []uint8{classfile.OpAload, classfile.OpAload, classfile.OpPutfield, classfile.OpReturn}, setter.Opcodes())

	extra := mx.Field("extra")
	require.NotNil(t, extra)
	assert.Equal(t, uint16(classfile.AccPrivate), extra.Access)
	assert.Len(t, mx.Fields, 2)
}

func TestAccessor(t *testing.T) {
	b := New(pkg)
	e := b.Get(owner)
	get := allocate(t, e, emitter.InstanceGet, "value", "I")
	invoke := allocate(t, e, emitter.InstanceInvoke, "helper", "(JI)V")
	staticSet := allocate(t, e, emitter.StaticSet, "COUNT", "J")
	staticInvoke := allocate(t, e, emitter.StaticInvoke, "create", "(JI)Lcom/example/Foo;")

	classes := generated(t, b)
	require.Len(t, classes, 1)
	data := classes[base+"$Accessor"]
	rec := classfiletest.Record(t, data)
	cf := classfiletest.Parse(t, data)

	assert.Equal(t, uint16(classfile.AccPublic|classfile.AccInterface|classfile.AccAbstract), rec.Header.Access)
	require.Len(t, annotations(t, data, rec.Header.Attributes, classfile.AttrInvisibleAnnotations), 1)

	target := func(m *classfiletest.RecordedMethod, typ string) string {
		t.Helper()
		anns := annotations(t, data, m.Attributes, classfile.AttrVisibleAnnotations)
		require.Len(t, anns, 1)
		assert.Equal(t, typ, anns[0].Type)
		v, ok := anns[0].Value("value")
		require.True(t, ok)
		return v.String
	}

	getter := rec.Method(get, "()I")
	require.NotNil(t, getter)
	assert.Equal(t, uint16(classfile.AccPublic|classfile.AccAbstract), getter.Access)
	assert.Equal(t, "Lcom/example/Foo;value:I", target(getter, AnnotationAccessor))

	invoker := rec.Method(invoke, "(JI)V")
	require.NotNil(t, invoker)
	assert.Equal(t, "Lcom/example/Foo;helper(JI)V", target(invoker, AnnotationInvoker))

	setter := rec.Method(staticSet, "(J)V")
	require.NotNil(t, setter)
	assert.Equal(t, uint16(classfile.AccPublic|classfile.AccStatic), setter.Access)
	assert.Equal(t, "Lcom/example/Foo;COUNT:J", target(setter, AnnotationAccessor))
	body := []uint8{classfile.OpNew, classfile.OpDup, classfile.OpLdc, classfile.OpInvokespecial, classfile.OpAthrow}
	assert.Equal(t, body, setter.Opcodes())
	assert.Equal(t, uint16(2), cf.FindMethod(staticSet, "(J)V").Code.MaxLocals)

	factory := rec.Method(staticInvoke, "(JI)Lcom/example/Foo;")
	require.NotNil(t, factory)
	assert.Equal(t, body, factory.Opcodes())
	code := cf.FindMethod(staticInvoke, "(JI)Lcom/example/Foo;").Code
	assert.Equal(t, uint16(3), code.MaxStack)
	assert.Equal(t, uint16(3), code.MaxLocals)
}

type obfuscated struct{}

func (obfuscated) Field(name, _ string) string { return "field_" + name }
func (obfuscated) FieldTarget(_ string, f emitter.Key) string {
	return "Lnet/minecraft/unmapped;" + f.Name + ":" + f.Descriptor
}
func (obfuscated) MethodTarget(_ string, m emitter.Key) string {
	return "Lnet/minecraft/unmapped;" + m.Name + m.Descriptor
}

func TestMapper(t *testing.T) {
	b := New(pkg, WithMapper(obfuscated{}))
	e := b.Get(owner)
	mutable := allocate(t, e, emitter.InterfaceMutableSet, "name", "Ljava/lang/String;")
	get := allocate(t, e, emitter.InstanceGet, "value", "I")

	classes := generated(t, b)
	mx := classfiletest.Record(t, classes[base+"$Mixin"])
	assert.NotNil(t, mx.Field("field_name"))
	setter := mx.Method(mutable, "(Ljava/lang/String;)V")
	require.NotNil(t, setter)
	assert.Equal(t, "field_name", setter.Refs()[0].Name)

	data := classes[base+"$Accessor"]
	acc := classfiletest.Record(t, data)
	m := acc.Method(get, "()I")
	require.NotNil(t, m)
	anns := annotations(t, data, m.Attributes, classfile.AttrVisibleAnnotations)
	require.Len(t, anns, 1)
	v, _ := anns[0].Value("value")
	assert.Equal(t, "Lnet/minecraft/unmapped;value:I", v.String)
}

func TestConfig(t *testing.T) {
	b := New("/" + pkg + "/")
	allocate(t, b.Get("com/example/Foo"), emitter.InstanceGet, "value", "I")
	allocate(t, b.Get("com/example/Foo"), emitter.InterfaceGet, "extra", "I")
	allocate(t, b.Get("com/example/Bar"), emitter.HolderGet, "registry", "I")
	allocate(t, b.Get("com/example/Baz"), emitter.StaticInvoke, "create", "()V")

	cfg := b.Config()
	assert.Equal(t, "gloom.generated", cfg.Package)
	assert.Equal(t, []string{
		"com.example.Baz$Accessor",
		"com.example.Foo$Mixin",
		"com.example.Foo$Accessor",
	}, cfg.Mixins)

	entry, err := b.ConfigEntry(DefaultConfigName)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfigName, entry.Name)
	assert.True(t, strings.HasSuffix(string(entry.Data), "}\n"))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(entry.Data, &decoded))
	assert.Equal(t, true, decoded["required"])
	assert.Equal(t, "JAVA_8", decoded["compatibilityLevel"])

	entries, err := b.Generate()
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{
		classpath.EntryName(pkg + "/com/example/Bar$Holder"),
		classpath.EntryName(pkg + "/com/example/Baz$Accessor"),
		classpath.EntryName(pkg + "/com/example/Foo$Interface"),
		classpath.EntryName(pkg + "/com/example/Foo$Mixin"),
		classpath.EntryName(pkg + "/com/example/Foo$Accessor"),
	}, names)
}

func TestEmptyConfigListsNoMixins(t *testing.T) {
	entry, err := New(pkg).ConfigEntry(DefaultConfigName)
	require.NoError(t, err)
	assert.Contains(t, string(entry.Data), `"mixins": []`)
	assert.NotContains(t, string(entry.Data), "minVersion")
}

func TestConfigMinVersion(t *testing.T) {
	assert.Equal(t, "0.8.5", New(pkg, WithMinVersion("0.8.5")).Config().MinVersion)
}
