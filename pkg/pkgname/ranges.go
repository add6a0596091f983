package pkgname

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// interval is a contiguous set of versions. A nil bound is unbounded.
type interval struct {
	lo, hi       *semver.Version
	loInc, hiInc bool
}

// versionSet is a union of intervals, kept sorted and merged.
type versionSet []interval

var partialRe = regexp.MustCompile(`^v?(\d+|[xX*])(?:\.(\d+|[xX*]))?(?:\.(\d+|[xX*]))?(?:-([0-9A-Za-z.-]+))?(?:\+[0-9A-Za-z.-]+)?$`)

// partial is a possibly incomplete version such as "1", "1.2" or "1.2.x".
type partial struct {
	major, minor, patch int
	parts               int // number of concrete numeric components
	pre                 string
}

func parsePartial(s string) (partial, bool) {
	m := partialRe.FindStringSubmatch(s)
	if m == nil {
		return partial{}, false
	}
	var p partial
	for i, field := range m[1:4] {
		if field == "" || field == "x" || field == "X" || field == "*" {
			break
		}
		n, err := strconv.Atoi(field)
		if err != nil {
			return partial{}, false
		}
		switch i {
		case 0:
			p.major = n
		case 1:
			p.minor = n
		case 2:
			p.patch = n
		}
		p.parts++
	}
	if m[4] != "" {
		if p.parts < 3 {
			return partial{}, false
		}
		p.pre = m[4]
	}
	return p, true
}

func (p partial) version() *semver.Version {
	s := fmt.Sprintf("%d.%d.%d", p.major, p.minor, p.patch)
	if p.pre != "" {
		s += "-" + p.pre
	}
	v, _ := semver.NewVersion(s)
	return v
}

// next returns the first version above the partial, e.g. 1.2 -> 1.3.0.
func (p partial) next() *semver.Version {
	v := p.version()
	switch p.parts {
	case 1:
		n := v.IncMajor()
		return &n
	case 2:
		n := v.IncMinor()
		return &n
	}
	return nil
}

func exactly(v *semver.Version) interval {
	return interval{lo: v, hi: v, loInc: true, hiInc: true}
}

// parseRange converts an npm-style range into a version set.
func parseRange(r string) (versionSet, error) {
	r = strings.TrimSpace(r)
	if r == "" || r == "*" || r == "x" || r == "X" {
		return versionSet{{}}, nil
	}
	var set versionSet
	for _, alt := range strings.Split(r, "||") {
		iv, empty, err := parseAlternative(strings.TrimSpace(alt))
		if err != nil {
			return nil, err
		}
		if !empty {
			set = append(set, iv)
		}
	}
	return set.normalize(), nil
}

func parseAlternative(alt string) (interval, bool, error) {
	if alt == "" || alt == "*" {
		return interval{}, false, nil
	}
	if lo, hi, ok := strings.Cut(alt, " - "); ok {
		return hyphenRange(strings.TrimSpace(lo), strings.TrimSpace(hi))
	}
	fields := strings.FieldsFunc(alt, func(r rune) bool { return r == ' ' || r == ',' })
	acc := interval{}
	for i := 0; i < len(fields); i++ {
		f := fields[i]
		// Allow ">= 1.2.3" with a space after the operator.
		if isOperator(f) && i+1 < len(fields) {
			f += fields[i+1]
			i++
		}
		iv, err := parseComparator(f)
		if err != nil {
			return interval{}, false, err
		}
		var ok bool
		if acc, ok = intersect(acc, iv); !ok {
			return interval{}, true, nil
		}
	}
	return acc, false, nil
}

func isOperator(s string) bool {
	switch s {
	case "=", "^", "~", ">", ">=", "<", "<=", "~>":
		return true
	}
	return false
}

func hyphenRange(lo, hi string) (interval, bool, error) {
	plo, ok := parsePartial(lo)
	if !ok {
		return interval{}, false, fmt.Errorf("invalid version %q", lo)
	}
	phi, ok := parsePartial(hi)
	if !ok {
		return interval{}, false, fmt.Errorf("invalid version %q", hi)
	}
	iv := interval{lo: plo.version(), loInc: true}
	switch phi.parts {
	case 0:
	case 3:
		iv.hi, iv.hiInc = phi.version(), true
	default:
		iv.hi = phi.next()
	}
	return iv, false, nil
}

func parseComparator(c string) (interval, error) {
	op := ""
	for _, candidate := range []string{">=", "<=", "~>", ">", "<", "=", "^", "~"} {
		if strings.HasPrefix(c, candidate) {
			op = candidate
			break
		}
	}
	p, ok := parsePartial(strings.TrimSpace(c[len(op):]))
	if !ok {
		return interval{}, fmt.Errorf("invalid comparator %q", c)
	}
	if p.parts == 0 {
		switch op {
		case "<", ">":
			// "<*" and ">*" match nothing; treat as an empty exact range.
			return interval{lo: p.version(), hi: p.version()}, nil
		}
		return interval{}, nil
	}
	v := p.version()

	switch op {
	case "", "=":
		if p.parts == 3 {
			return exactly(v), nil
		}
		return interval{lo: v, loInc: true, hi: p.next()}, nil
	case "^":
		return caret(p), nil
	case "~", "~>":
		return tilde(p), nil
	case ">":
		if p.parts == 3 {
			return interval{lo: v}, nil
		}
		return interval{lo: p.next(), loInc: true}, nil
	case ">=":
		return interval{lo: v, loInc: true}, nil
	case "<":
		return interval{hi: v}, nil
	case "<=":
		if p.parts == 3 {
			return interval{hi: v, hiInc: true}, nil
		}
		return interval{hi: p.next()}, nil
	}
	return interval{}, fmt.Errorf("invalid comparator %q", c)
}

// caret implements ^ semantics. A caret on 0.y.z with y > 0 is the tilde
// range ~0.y.z, which keeps minor releases from drifting.
func caret(p partial) interval {
	v := p.version()
	iv := interval{lo: v, loInc: true}
	switch {
	case p.major > 0 || p.parts == 1:
		n := v.IncMajor()
		iv.hi = &n
	case p.minor > 0 || p.parts == 2:
		return tilde(partial{major: p.major, minor: p.minor, patch: p.patch, parts: max(p.parts, 2), pre: p.pre})
	default:
		n := v.IncPatch()
		if p.pre != "" {
			n = *semver.New(v.Major(), v.Minor(), v.Patch(), "", "")
			n = n.IncPatch()
		}
		iv.hi = &n
	}
	return iv
}

func tilde(p partial) interval {
	v := p.version()
	iv := interval{lo: v, loInc: true}
	if p.parts == 1 {
		n := v.IncMajor()
		iv.hi = &n
		return iv
	}
	n := v.IncMinor()
	iv.hi = &n
	return iv
}

// cmpLo orders lower bounds; nil is -inf.
func cmpLo(a, b interval) int {
	switch {
	case a.lo == nil && b.lo == nil:
		return 0
	case a.lo == nil:
		return -1
	case b.lo == nil:
		return 1
	}
	if c := a.lo.Compare(b.lo); c != 0 {
		return c
	}
	switch {
	case a.loInc == b.loInc:
		return 0
	case a.loInc:
		return -1
	}
	return 1
}

// cmpHi orders upper bounds; nil is +inf.
func cmpHi(a, b interval) int {
	switch {
	case a.hi == nil && b.hi == nil:
		return 0
	case a.hi == nil:
		return 1
	case b.hi == nil:
		return -1
	}
	if c := a.hi.Compare(b.hi); c != 0 {
		return c
	}
	switch {
	case a.hiInc == b.hiInc:
		return 0
	case a.hiInc:
		return 1
	}
	return -1
}

func (iv interval) empty() bool {
	if iv.lo == nil || iv.hi == nil {
		return false
	}
	c := iv.lo.Compare(iv.hi)
	return c > 0 || (c == 0 && !(iv.loInc && iv.hiInc))
}

func intersect(a, b interval) (interval, bool) {
	out := a
	if cmpLo(b, a) > 0 {
		out.lo, out.loInc = b.lo, b.loInc
	}
	if cmpHi(b, a) < 0 {
		out.hi, out.hiInc = b.hi, b.hiInc
	}
	return out, !out.empty()
}

// covers reports whether a contains every version of b.
func (a interval) covers(b interval) bool {
	return cmpLo(a, b) <= 0 && cmpHi(a, b) >= 0
}

func (iv interval) has(v *semver.Version) bool {
	if iv.lo != nil {
		c := v.Compare(iv.lo)
		if c < 0 || (c == 0 && !iv.loInc) {
			return false
		}
	}
	if iv.hi != nil {
		c := v.Compare(iv.hi)
		if c > 0 || (c == 0 && !iv.hiInc) {
			return false
		}
	}
	return true
}

// touches reports whether b starts inside or right at the end of a.
func (a interval) touches(b interval) bool {
	if a.hi == nil || b.lo == nil {
		return true
	}
	c := b.lo.Compare(a.hi)
	return c < 0 || (c == 0 && (a.hiInc || b.loInc))
}

func (s versionSet) normalize() versionSet {
	if len(s) < 2 {
		return s
	}
	sorted := slices.Clone(s)
	slices.SortFunc(sorted, cmpLo)
	out := versionSet{sorted[0]}
	for _, iv := range sorted[1:] {
		last := &out[len(out)-1]
		if last.touches(iv) {
			if cmpHi(iv, *last) > 0 {
				last.hi, last.hiInc = iv.hi, iv.hiInc
			}
			continue
		}
		out = append(out, iv)
	}
	return out
}

func (s versionSet) contains(o versionSet) bool {
	for _, b := range o {
		if !slices.ContainsFunc(s, func(a interval) bool { return a.covers(b) }) {
			return false
		}
	}
	return true
}

func (s versionSet) intersect(o versionSet) versionSet {
	var out versionSet
	for _, a := range s {
		for _, b := range o {
			if iv, ok := intersect(a, b); ok {
				out = append(out, iv)
			}
		}
	}
	return out.normalize()
}

// String renders the set as a comparator range.
func (s versionSet) String() string {
	parts := make([]string, 0, len(s))
	for _, iv := range s {
		parts = append(parts, iv.String())
	}
	return strings.Join(parts, " || ")
}

func (iv interval) String() string {
	if iv.lo != nil && iv.hi != nil && iv.lo.Equal(iv.hi) && iv.loInc && iv.hiInc {
		return iv.lo.String()
	}
	var parts []string
	if iv.lo != nil {
		op := ">"
		if iv.loInc {
			op = ">="
		}
		parts = append(parts, op+iv.lo.String())
	}
	if iv.hi != nil {
		op := "<"
		if iv.hiInc {
			op = "<="
		}
		parts = append(parts, op+iv.hi.String())
	}
	if len(parts) == 0 {
		return "*"
	}
	return strings.Join(parts, " ")
}
