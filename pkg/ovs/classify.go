package ovs

import "fmt"

// ClassificationTag is the (port, service path) pair a classifier flow
// installs. Reverse tags match the L4 source port of return traffic.
type ClassificationTag struct {
	Port    int
	Reverse bool
	NSP     uint32
	Raw     string // the dump-flows line
}

func (t ClassificationTag) String() string {
	field := "tp_dst"
	if t.Reverse {
		field = "tp_src"
	}
	return fmt.Sprintf("%s=%d nsp=%#x", field, t.Port, t.NSP)
}

// ClassificationTags returns the tags of the classifier flows in flows, in
// order. A flow is a classifier flow when it loads NXM_NX_NSP[0..23] and
// matches a destination or, failing that, a source port.
func ClassificationTags(flows []Flow) []ClassificationTag {
	var tags []ClassificationTag
	for _, f := range flows {
		nsp, ok := f.NSP()
		if !ok {
			continue
		}
		t := ClassificationTag{NSP: nsp, Raw: f.Raw}
		if t.Port, ok = f.DestPort(); !ok {
			if t.Port, ok = f.SourcePort(); !ok {
				continue
			}
			t.Reverse = true
		}
		tags = append(tags, t)
	}
	return tags
}

// FindTag returns the first tag for port in the given direction. When nsp
// is non-zero the tag must also carry that path ID.
func FindTag(tags []ClassificationTag, port int, reverse bool, nsp uint32) (ClassificationTag, bool) {
	for _, t := range tags {
		if t.Port != port || t.Reverse != reverse {
			continue
		}
		if nsp != 0 && t.NSP != nsp {
			continue
		}
		return t, true
	}
	return ClassificationTag{}, false
}
