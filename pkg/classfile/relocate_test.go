package classfile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelocateStackMap(t *testing.T) {
	data := []byte{
		0, 2, // two frames
		9,             // same_frame at 9
		255, 0, 1,     // full_frame at 11
		0, 1, 8, 0, 4, // locals: uninitialized(4)
		0, 0,          // empty stack
	}
	l := &labels{
		pos:     map[int]int{4: 6, 9: 70, 11: 72},
		length:  12,
		encoded: 73,
		moved:   true,
	}

	out, err := relocateStackMap(data, l)
	require.NoError(t, err)
	assert.Equal(t, []byte{
		0, 2,
		251, 0, 70, // delta no longer fits same_frame
		255, 0, 1,
		0, 1, 8, 0, 6,
		0, 0,
	}, out)
}

func TestRelocateStackMapCompactForms(t *testing.T) {
	data := []byte{
		0, 3,
		251, 0, 80,         // same_frame_extended at 80
		247, 0, 99, 1,      // same_locals_1_stack_item_extended at 180, int
		252, 0, 4, 7, 0, 3, // append one Object local at 185
	}
	frames, err := parseStackMap(data)
	require.NoError(t, err)
	require.Len(t, frames, 3)
	assert.Equal(t, []int{80, 180, 185}, []int{frames[0].offset, frames[1].offset, frames[2].offset})

	l := &labels{
		pos:     map[int]int{80: 10, 180: 20, 185: 30},
		length:  200,
		encoded: 40,
		moved:   true,
	}
	out, err := relocateStackMap(data, l)
	require.NoError(t, err)
	assert.Equal(t, []byte{
		0, 3,
		10,        // same_frame
		64 + 9, 1, // same_locals_1_stack_item
		252, 0, 9, 7, 0, 3,
	}, out)
}

func TestRelocateLocalVariables(t *testing.T) {
	data := []byte{
		0, 1,
		0, 2, 0, 7, 0, 5, 0, 6, 0, 1, // start 2, length 7, name 5, desc 6, slot 1
	}
	l := &labels{pos: map[int]int{2: 2}, length: 9, encoded: 14, moved: true}

	out, err := relocateLocalVariables(data, l)
	require.NoError(t, err)
	assert.Equal(t, []byte{
		0, 1,
		0, 2, 0, 12, 0, 5, 0, 6, 0, 1,
	}, out)
}

func TestRelocateDropsTypeAnnotations(t *testing.T) {
	attrs := []AttributeInfo{
		{Name: "RuntimeVisibleTypeAnnotations", Data: []byte{0, 0}},
		{Name: "Custom", Data: []byte{1, 2, 3}},
	}

	out, err := relocateAttributes(attrs, &labels{moved: true})
	require.NoError(t, err)
	assert.Equal(t, []AttributeInfo{{Name: "Custom", Data: []byte{1, 2, 3}}}, out)

	out, err = relocateAttributes(attrs, &labels{})
	require.NoError(t, err)
	assert.Equal(t, attrs, out, "nothing moved")
}

func TestModifiedUTF8Encoding(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []byte
	}{
		{"ascii", "abc", []byte("abc")},
		{"nul", "a\x00", []byte{'a', 0xC0, 0x80}},
		{"two byte", "é", []byte{0xC3, 0xA9}},
		{"surrogate pair", "\U0001F600", []byte{0xED, 0xA0, 0xBD, 0xED, 0xB8, 0x80}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := encodeModifiedUTF8(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.in, decodeModifiedUTF8(got))
		})
	}
}

func TestParseMethodDescriptor(t *testing.T) {
	params, ret, err := ParseMethodDescriptor("(IJLjava/lang/String;[[D)V")
	require.NoError(t, err)
	assert.Equal(t, []string{"I", "J", "Ljava/lang/String;", "[[D"}, params)
	assert.Equal(t, "V", ret)

	slots, err := ArgumentSlots("(IJLjava/lang/String;[[D)V")
	require.NoError(t, err)
	assert.Equal(t, 5, slots)

	for _, bad := range []string{"", "I", "(I", "()", "(Q)V", "(L;)V", "()VV", "(Ljava.lang.String;)V"} {
		_, _, err := ParseMethodDescriptor(bad)
		assert.ErrorIs(t, err, ErrInvalidDescriptor, bad)
	}
}

func TestFieldDescriptors(t *testing.T) {
	for _, ok := range []string{"I", "J", "[I", "Ljava/lang/Object;", "[[Lcom/example/Foo;"} {
		assert.True(t, ValidFieldDescriptor(ok), ok)
	}
	for _, bad := range []string{"", "V", "[", "L", "Lfoo", "II", "Q"} {
		assert.False(t, ValidFieldDescriptor(bad), bad)
	}
}

func TestTypedOpcodes(t *testing.T) {
	tests := []struct {
		typ              string
		load, store, ret uint8
	}{
		{"I", OpIload, OpIstore, OpIreturn},
		{"Z", OpIload, OpIstore, OpIreturn},
		{"J", OpLload, OpLstore, OpLreturn},
		{"F", OpFload, OpFstore, OpFreturn},
		{"D", OpDload, OpDstore, OpDreturn},
		{"Ljava/lang/Object;", OpAload, OpAstore, OpAreturn},
		{"[I", OpAload, OpAstore, OpAreturn},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.load, LoadOpcode(tt.typ), tt.typ)
		assert.Equal(t, tt.store, StoreOpcode(tt.typ), tt.typ)
		assert.Equal(t, tt.ret, ReturnOpcode(tt.typ), tt.typ)
	}
	assert.Equal(t, uint8(OpReturn), ReturnOpcode("V"))
}
