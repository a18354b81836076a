package graph

import "sort"

// MethodRef names a virtual method: USR plus qualified source name.
type MethodRef struct {
	Name  string `json:"Name"`
	SName string `json:"SName"`
}

// Poly is one polymorph entry: a base virtual method and the overriding
// methods known for it. Derived is a set by Name, kept as an ordered list so
// dumps are deterministic.
type Poly struct {
	Name    string      `json:"Name"`
	SName   string      `json:"SName"`
	Derived []MethodRef `json:"Derived"`
}

// addDerived appends m unless a method with the same Name is already present.
func (p *Poly) addDerived(m MethodRef) {
	for _, d := range p.Derived {
		if d.Name == m.Name {
			return
		}
	}

	p.Derived = append(p.Derived, m)
}

// MethodRecord is the wire form of one method inside an IPM class record.
// Override lists the base methods this method overrides.
type MethodRecord struct {
	Name     string      `json:"Name"`
	SName    string      `json:"SName"`
	Override []MethodRef `json:"Override"`
}

// ClassRecord is the wire form of one class in an IPM fragment.
type ClassRecord struct {
	Name    string         `json:"Name"`
	SName   string         `json:"SName"`
	Methods []MethodRecord `json:"Method"`
}

// PolyTable maps the USR of an overridden base method to its polymorph entry.
// Merging fragments is commutative and associative; the table holds direct
// overriders only and is closed transitively on demand.
type PolyTable map[string]*Poly

// NewPolyTable returns an empty table.
func NewPolyTable() PolyTable {
	return make(PolyTable)
}

// Merge folds the class records of one IPM fragment into the table.
func (t PolyTable) Merge(classes []ClassRecord) {
	for _, class := range classes {
		for _, method := range class.Methods {
			for _, base := range method.Override {
				entry, ok := t[base.Name]
				if !ok {
					entry = &Poly{Name: base.Name, SName: base.SName}
					t[base.Name] = entry
				}

				entry.addDerived(MethodRef{Name: method.Name, SName: method.SName})
			}
		}
	}
}

// Closure returns every transitive overrider of the method usr, in
// breadth-first discovery order. A visited set guards against accidental
// cycles in the underlying data; entries are never revisited.
func (t PolyTable) Closure(usr string) []MethodRef {
	var out []MethodRef

	visited := map[string]struct{}{usr: {}}
	queue := []string{usr}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		entry, ok := t[current]
		if !ok {
			continue
		}

		for _, d := range entry.Derived {
			if _, seen := visited[d.Name]; seen {
				continue
			}

			visited[d.Name] = struct{}{}
			out = append(out, d)
			queue = append(queue, d.Name)
		}
	}

	return out
}

// Sorted returns the entries ordered by base-method USR, for dumping.
func (t PolyTable) Sorted() []*Poly {
	out := make([]*Poly, 0, len(t))

	for _, p := range t {
		out = append(out, p)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	return out
}
