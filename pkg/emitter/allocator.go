package emitter

import (
	"strconv"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
)

// ErrNamesExhausted is returned when no free name was found within the
// retry budget.
var ErrNamesExhausted = errors.New("accessor names exhausted")

// Seed is the string whose Java hash seeds every allocator.
const Seed = "The loom is gloomier"

const (
	alphabet    = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	suffixLen   = 6
	maxAttempts = 1024
)

// Namespace is one independent table of generated names.
type Namespace int

const (
	InstanceGet Namespace = iota
	InstanceSet
	InstanceInvoke
	StaticGet
	StaticSet
	StaticInvoke
	HolderGet
	HolderSet
	InterfaceGet
	InterfaceSet
	InterfaceMutableSet

	namespaceCount
)

var namespaceInfo = [namespaceCount]struct {
	name, prefix string
}{
	InstanceGet:         {"instance-get", "getInstance"},
	InstanceSet:         {"instance-set", "setInstance"},
	InstanceInvoke:      {"instance-invoke", "invokeInstance"},
	StaticGet:           {"static-get", "getStatic"},
	StaticSet:           {"static-set", "setStatic"},
	StaticInvoke:        {"static-invoke", "invokeStatic"},
	HolderGet:           {"holder-get", "getStatic"},
	HolderSet:           {"holder-set", "setStatic"},
	InterfaceGet:        {"interface-get", "getSynthetic"},
	InterfaceSet:        {"interface-set", "setSynthetic"},
	InterfaceMutableSet: {"interface-mutable-set", "setMutable"},
}

// Namespaces returns every namespace in declaration order.
func Namespaces() []Namespace {
	out := make([]Namespace, namespaceCount)
	for i := range out {
		out[i] = Namespace(i)
	}
	return out
}

func (n Namespace) valid() bool {
	return n >= 0 && n < namespaceCount
}

func (n Namespace) String() string {
	if !n.valid() {
		return "namespace(" + strconv.Itoa(int(n)) + ")"
	}
	return namespaceInfo[n].name
}

// Prefix returns the prefix of names generated in n.
func (n Namespace) Prefix() string {
	if !n.valid() {
		return ""
	}
	return namespaceInfo[n].prefix
}

// Key identifies the member a name is requested for: a field name and
// type, or a method name and descriptor.
type Key struct {
	Name       string
	Descriptor string
}

// Entry is one allocated name.
type Entry struct {
	Key
	Generated string
}

type table struct {
	names map[Key]string
	used  map[string]bool
	order []Entry
}

// Allocator mints unique, stable names for one owner class. It is safe for
// concurrent use.
type Allocator struct {
	mu     sync.Mutex
	rng    *javaRandom
	tables [namespaceCount]table
}

// NewAllocator returns an allocator seeded with Seed.
func NewAllocator() *Allocator {
	return NewSeededAllocator(int64(javaStringHash(Seed)))
}

// NewSeededAllocator returns an allocator with an explicit generator seed.
func NewSeededAllocator(seed int64) *Allocator {
	a := &Allocator{rng: newJavaRandom(seed)}
	for i := range a.tables {
		a.tables[i] = table{names: make(map[Key]string), used: make(map[string]bool)}
	}
	return a
}

// Allocate returns the name for key in ns, generating it on first request.
// Later requests for the same key return the same name.
func (a *Allocator) Allocate(ns Namespace, key Key) (string, error) {
	if !ns.valid() {
		return "", errors.AssertionFailedf("unknown namespace %d", int(ns))
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	t := &a.tables[ns]
	if name, ok := t.names[key]; ok {
		return name, nil
	}

	prefix := ns.Prefix()
	for attempt := 0; attempt < maxAttempts; attempt++ {
		name := prefix + a.randomSuffix()
		if t.used[name] {
			continue
		}
		t.names[key] = name
		t.used[name] = true
		t.order = append(t.order, Entry{Key: key, Generated: name})
		return name, nil
	}
	return "", errors.Wrapf(ErrNamesExhausted, "%s name for %s%s after %d attempts", ns, key.Name, key.Descriptor, maxAttempts)
}

func (a *Allocator) randomSuffix() string {
	var b strings.Builder
	b.Grow(suffixLen)
	for i := 0; i < suffixLen; i++ {
		b.WriteByte(alphabet[a.rng.nextInt(int32(len(alphabet)))])
	}
	return b.String()
}

// Lookup returns the name already allocated for key in ns.
func (a *Allocator) Lookup(ns Namespace, key Key) (string, bool) {
	if !ns.valid() {
		return "", false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	name, ok := a.tables[ns].names[key]
	return name, ok
}

// Entries returns the names allocated in ns, in allocation order.
func (a *Allocator) Entries(ns Namespace) []Entry {
	if !ns.valid() {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Entry(nil), a.tables[ns].order...)
}

// Count returns the number of names allocated across the given
// namespaces, or across all of them when none are given.
func (a *Allocator) Count(namespaces ...Namespace) int {
	if len(namespaces) == 0 {
		namespaces = Namespaces()
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, ns := range namespaces {
		if ns.valid() {
			n += len(a.tables[ns].order)
		}
	}
	return n
}
