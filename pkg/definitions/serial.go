package definitions

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/FukkitMC/gloom/pkg/classfile"
)

// Format is a descriptor document encoding.
type Format int

const (
	FormatJSON Format = iota
	FormatYAML
	FormatTOML
)

func (f Format) String() string {
	switch f {
	case FormatYAML:
		return "yaml"
	case FormatTOML:
		return "toml"
	}
	return "json"
}

// FormatOf picks the format from a file extension: .yaml and .yml are YAML,
// .toml is TOML, everything else is JSON.
func FormatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".toml":
		return FormatTOML
	}
	return FormatJSON
}

// The document layout. Class types and member owners are written as type
// descriptors ("Lcom/example/Foo;"); bare internal names are accepted too.
type document struct {
	Definitions map[string]classDoc `json:"definitions" yaml:"definitions" toml:"definitions"`
}

type classDoc struct {
	Type              string      `json:"type" yaml:"type" toml:"type"`
	InjectInterfaces  []string    `json:"injectInterfaces,omitempty" yaml:"injectInterfaces,omitempty" toml:"injectInterfaces,omitempty"`
	PublicizedFields  []memberDoc `json:"publicizedFields" yaml:"publicizedFields" toml:"publicizedFields"`
	PublicizedMethods []memberDoc `json:"publicizedMethods" yaml:"publicizedMethods" toml:"publicizedMethods"`
	MutableFields     []memberDoc `json:"mutableFields" yaml:"mutableFields" toml:"mutableFields"`
	SyntheticFields   []fieldDoc  `json:"syntheticFields" yaml:"syntheticFields" toml:"syntheticFields"`
	SyntheticMethods  []methodDoc `json:"syntheticMethods" yaml:"syntheticMethods" toml:"syntheticMethods"`
}

type memberDoc struct {
	Owner      string `json:"owner" yaml:"owner" toml:"owner"`
	Name       string `json:"name" yaml:"name" toml:"name"`
	Descriptor string `json:"descriptor" yaml:"descriptor" toml:"descriptor"`
}

type accessorDoc struct {
	Access    int    `json:"access" yaml:"access" toml:"access"`
	Type      string `json:"type" yaml:"type" toml:"type"`
	Name      string `json:"name" yaml:"name" toml:"name"`
	Signature string `json:"signature,omitempty" yaml:"signature,omitempty" toml:"signature,omitempty"`
}

type fieldDoc struct {
	Name      string       `json:"name" yaml:"name" toml:"name"`
	Type      string       `json:"type" yaml:"type" toml:"type"`
	Access    int          `json:"access" yaml:"access" toml:"access"`
	Signature string       `json:"signature,omitempty" yaml:"signature,omitempty" toml:"signature,omitempty"`
	Getter    *accessorDoc `json:"getter" yaml:"getter" toml:"getter"`
	Setter    *accessorDoc `json:"setter" yaml:"setter" toml:"setter"`
}

type methodDoc struct {
	Opcode     int       `json:"opcode" yaml:"opcode" toml:"opcode"`
	Name       string    `json:"name" yaml:"name" toml:"name"`
	Descriptor string    `json:"descriptor" yaml:"descriptor" toml:"descriptor"`
	Access     int       `json:"access" yaml:"access" toml:"access"`
	Signature  string    `json:"signature,omitempty" yaml:"signature,omitempty" toml:"signature,omitempty"`
	Redirect   memberDoc `json:"redirect" yaml:"redirect" toml:"redirect"`
	Interface  bool      `json:"interface,omitempty" yaml:"interface,omitempty" toml:"interface,omitempty"`
}

// Load reads and merges descriptor documents. The format of each file
// follows its extension.
func Load(paths ...string) (*Definitions, error) {
	var defs *Definitions
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, errors.Wrap(err, "opening definitions")
		}
		d, err := Decode(f, FormatOf(path))
		f.Close()
		if err != nil {
			return nil, errors.Wrapf(err, "loading %s", path)
		}
		if defs, err = defs.Merge(d); err != nil {
			return nil, errors.Wrapf(err, "merging %s", path)
		}
	}
	if defs == nil {
		defs = &Definitions{}
	}
	return defs, nil
}

// Unmarshal decodes a descriptor document held in memory.
func Unmarshal(data []byte, format Format) (*Definitions, error) {
	return Decode(bytes.NewReader(data), format)
}

// Decode reads one descriptor document. Unknown keys are rejected, and the
// result is fully validated.
func Decode(r io.Reader, format Format) (*Definitions, error) {
	var doc document
	var err error
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		err = dec.Decode(&doc)
	case FormatTOML:
		dec := toml.NewDecoder(r)
		dec.DisallowUnknownFields()
		err = dec.Decode(&doc)
	default:
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		err = dec.Decode(&doc)
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrapf(err, "decoding %s definitions", format)
	}

	classes := make(map[string]*ClassDefinition, len(doc.Definitions))
	for name, cd := range doc.Definitions {
		spec, err := cd.spec()
		if err != nil {
			return nil, errors.Wrapf(err, "class %s", name)
		}
		def, err := NewClassDefinition(spec)
		if err != nil {
			return nil, err
		}
		classes[name] = def
	}
	return New(classes)
}

// Marshal encodes d as a descriptor document.
func Marshal(d *Definitions, format Format) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, d, format); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Encode writes d as a descriptor document. Classes and member sets are
// written in sorted order, so equal models produce equal documents.
func Encode(w io.Writer, d *Definitions, format Format) error {
	doc := document{Definitions: make(map[string]classDoc, d.Len())}
	for _, def := range d.Classes() {
		doc.Definitions[def.Type()] = newClassDoc(def.Spec())
	}

	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(&doc); err != nil {
			return errors.Wrap(err, "encoding yaml definitions")
		}
		return errors.Wrap(enc.Close(), "encoding yaml definitions")
	case FormatTOML:
		return errors.Wrap(toml.NewEncoder(w).Encode(&doc), "encoding toml definitions")
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return errors.Wrap(enc.Encode(&doc), "encoding json definitions")
	}
}

func className(s string) string {
	if strings.HasPrefix(s, "L") && strings.HasSuffix(s, ";") {
		return classfile.InternalName(s)
	}
	return s
}

func access(v int, what string) (uint16, error) {
	if v < 0 || v > math.MaxUint16 {
		return 0, invalid("%s access %d out of range", what, v)
	}
	return uint16(v), nil
}

func (cd classDoc) spec() (ClassSpec, error) {
	spec := ClassSpec{
		Type:              className(cd.Type),
		PublicizedFields:  members(cd.PublicizedFields),
		PublicizedMethods: members(cd.PublicizedMethods),
		MutableFields:     members(cd.MutableFields),
	}
	for _, itf := range cd.InjectInterfaces {
		spec.InjectInterfaces = append(spec.InjectInterfaces, className(itf))
	}

	for _, fd := range cd.SyntheticFields {
		flags, err := access(fd.Access, "synthetic field "+fd.Name)
		if err != nil {
			return ClassSpec{}, err
		}
		f := SyntheticField{Name: fd.Name, Type: fd.Type, Access: flags, Signature: fd.Signature}
		if f.Getter, err = fd.Getter.accessor("getter of " + fd.Name); err != nil {
			return ClassSpec{}, err
		}
		if f.Setter, err = fd.Setter.accessor("setter of " + fd.Name); err != nil {
			return ClassSpec{}, err
		}
		spec.SyntheticFields = append(spec.SyntheticFields, f)
	}

	for _, md := range cd.SyntheticMethods {
		flags, err := access(md.Access, "synthetic method "+md.Name)
		if err != nil {
			return ClassSpec{}, err
		}
		if md.Opcode < 0 || md.Opcode > math.MaxUint8 {
			return ClassSpec{}, invalid("synthetic method %s opcode %d out of range", md.Name, md.Opcode)
		}
		spec.SyntheticMethods = append(spec.SyntheticMethods, SyntheticMethod{
			Opcode:     uint8(md.Opcode),
			Name:       md.Name,
			Descriptor: md.Descriptor,
			Access:     flags,
			Signature:  md.Signature,
			Redirect:   md.Redirect.member(),
			Interface:  md.Interface,
		})
	}
	return spec, nil
}

func (ad *accessorDoc) accessor(what string) (*Accessor, error) {
	if ad == nil {
		return nil, nil
	}
	flags, err := access(ad.Access, what)
	if err != nil {
		return nil, err
	}
	return &Accessor{Access: flags, Type: ad.Type, Name: ad.Name, Signature: ad.Signature}, nil
}

func (md memberDoc) member() Member {
	return Member{Owner: className(md.Owner), Name: md.Name, Descriptor: md.Descriptor}
}

func members(docs []memberDoc) []Member {
	var out []Member
	for _, md := range docs {
		out = append(out, md.member())
	}
	return out
}

func newMemberDocs(members []Member) []memberDoc {
	out := make([]memberDoc, 0, len(members))
	for _, m := range members {
		out = append(out, newMemberDoc(m))
	}
	return out
}

func newMemberDoc(m Member) memberDoc {
	return memberDoc{Owner: classfile.ObjectDescriptor(m.Owner), Name: m.Name, Descriptor: m.Descriptor}
}

func newAccessorDoc(a *Accessor) *accessorDoc {
	if a == nil {
		return nil
	}
	return &accessorDoc{Access: int(a.Access), Type: a.Type, Name: a.Name, Signature: a.Signature}
}

func newClassDoc(spec ClassSpec) classDoc {
	cd := classDoc{
		Type:              classfile.ObjectDescriptor(spec.Type),
		PublicizedFields:  newMemberDocs(spec.PublicizedFields),
		PublicizedMethods: newMemberDocs(spec.PublicizedMethods),
		MutableFields:     newMemberDocs(spec.MutableFields),
		SyntheticFields:   make([]fieldDoc, 0, len(spec.SyntheticFields)),
		SyntheticMethods:  make([]methodDoc, 0, len(spec.SyntheticMethods)),
	}
	for _, itf := range spec.InjectInterfaces {
		cd.InjectInterfaces = append(cd.InjectInterfaces, classfile.ObjectDescriptor(itf))
	}
	for _, f := range spec.SyntheticFields {
		cd.SyntheticFields = append(cd.SyntheticFields, fieldDoc{
			Name:      f.Name,
			Type:      f.Type,
			Access:    int(f.Access),
			Signature: f.Signature,
			Getter:    newAccessorDoc(f.Getter),
			Setter:    newAccessorDoc(f.Setter),
		})
	}
	for _, m := range spec.SyntheticMethods {
		cd.SyntheticMethods = append(cd.SyntheticMethods, methodDoc{
			Opcode:     int(m.Opcode),
			Name:       m.Name,
			Descriptor: m.Descriptor,
			Access:     int(m.Access),
			Signature:  m.Signature,
			Redirect:   newMemberDoc(m.Redirect),
			Interface:  m.Interface,
		})
	}
	return cd
}
