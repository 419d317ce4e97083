package host

import (
	"sort"
	"strings"

	"fcpd/internal/fudi"
)

type propertySpec struct {
	name  string
	typ   PropertyType
	group string
	value fudi.Value
}

type objectType struct {
	placement bool
	props     []propertySpec
}

func length(v float64) fudi.Value { return fudi.Quantity{Value: v, Unit: "mm"} }
func angle(v float64) fudi.Value  { return fudi.Quantity{Value: v, Unit: "deg"} }

// objectTypes lists the object types a document can create and the
// properties each starts with. Label is common to all of them.
var objectTypes = map[string]objectType{
	"App::FeaturePython":             {},
	"App::DocumentObjectGroup":       {props: []propertySpec{{"Group", TypeLinkList, "Base", nil}}},
	"App::DocumentObjectGroupPython": {props: []propertySpec{{"Group", TypeLinkList, "Base", nil}}},
	"App::Link": {placement: true, props: []propertySpec{
		{"LinkedObject", TypeLink, "Link", nil},
	}},
	"Part::Feature": {placement: true},
	"Part::Box": {placement: true, props: []propertySpec{
		{"Length", TypeLength, "Box", length(10)},
		{"Width", TypeLength, "Box", length(10)},
		{"Height", TypeLength, "Box", length(10)},
	}},
	"Part::Cylinder": {placement: true, props: []propertySpec{
		{"Radius", TypeLength, "Cylinder", length(2)},
		{"Height", TypeLength, "Cylinder", length(10)},
		{"Angle", TypeAngle, "Cylinder", angle(360)},
	}},
	"Part::Cone": {placement: true, props: []propertySpec{
		{"Radius1", TypeLength, "Cone", length(2)},
		{"Radius2", TypeLength, "Cone", length(4)},
		{"Height", TypeLength, "Cone", length(10)},
		{"Angle", TypeAngle, "Cone", angle(360)},
	}},
	"Part::Sphere": {placement: true, props: []propertySpec{
		{"Radius", TypeLength, "Sphere", length(5)},
	}},
	"Sketcher::SketchObject": {placement: true},
}

// ObjectTypes lists the creatable type ids in sorted order
func ObjectTypes() []string {
	ids := make([]string, 0, len(objectTypes))
	for id := range objectTypes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// defaultName is the name stem for a type: "Part::Box" gives "Box"
func defaultName(typeID string) string {
	if i := strings.LastIndex(typeID, "::"); i >= 0 {
		return typeID[i+2:]
	}
	return typeID
}
