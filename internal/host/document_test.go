package host

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fcpd/internal/fudi"
)

func newTestDocument(t *testing.T) *Document {
	t.Helper()
	return NewDocument("Test", nil, nil)
}

func TestAddObject_UniqueNames(t *testing.T) {
	doc := newTestDocument(t)

	first, err := doc.AddObject("Part::Box", "")
	require.NoError(t, err)
	second, err := doc.AddObject("Part::Box", "Box")
	require.NoError(t, err)
	third, err := doc.AddObject("Part::Box", "Box")
	require.NoError(t, err)

	assert.Equal(t, "Box", first.Name)
	assert.Equal(t, "Box001", second.Name)
	assert.Equal(t, "Box002", third.Name)
	assert.Equal(t, "Box001", second.Label())
}

func TestAddObject_SanitizesName(t *testing.T) {
	doc := newTestDocument(t)

	obj, err := doc.AddObject("App::FeaturePython", "my part-1")
	require.NoError(t, err)
	assert.Equal(t, "my_part_1", obj.Name)

	obj, err = doc.AddObject("App::FeaturePython", "1st")
	require.NoError(t, err)
	assert.Equal(t, "_1st", obj.Name)
}

func TestAddObject_UnknownType(t *testing.T) {
	doc := newTestDocument(t)

	_, err := doc.AddObject("Part::Teapot", "")
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestAddObject_DefaultProperties(t *testing.T) {
	doc := newTestDocument(t)

	box, err := doc.AddObject("Part::Box", "")
	require.NoError(t, err)

	assert.Equal(t, []string{"Label", "Placement", "Length", "Width", "Height"}, box.PropertyNames())
	length, err := box.Property("Length")
	require.NoError(t, err)
	assert.Equal(t, fudi.Quantity{Value: 10, Unit: "mm"}, length)

	_, err = box.Property("Radius")
	assert.ErrorIs(t, err, ErrNoProperty)
}

func TestSetProperty_Coerces(t *testing.T) {
	doc := newTestDocument(t)
	cyl, err := doc.AddObject("Part::Cylinder", "")
	require.NoError(t, err)

	require.NoError(t, doc.SetProperty(cyl, "Radius", fudi.Integer(4)))
	v, _ := cyl.Property("Radius")
	assert.Equal(t, fudi.Quantity{Value: 4, Unit: "mm"}, v)

	require.NoError(t, doc.SetProperty(cyl, "Placement", fudi.Rotation{Yaw: 90}))
	v, _ = cyl.Property("Placement")
	assert.Equal(t, fudi.Placement{Rotation: fudi.Rotation{Yaw: 90}}, v)

	err = doc.SetProperty(cyl, "Angle", fudi.Quantity{Value: 3, Unit: "mm"})
	assert.ErrorIs(t, err, ErrTypeMismatch)

	err = doc.SetProperty(cyl, "Placement", fudi.String("nope"))
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestSetProperty_Label(t *testing.T) {
	doc := newTestDocument(t)
	box, _ := doc.AddObject("Part::Box", "")

	require.NoError(t, doc.SetProperty(box, "Label", fudi.String("Lid")))

	assert.Equal(t, "Lid", box.Label())
	assert.Equal(t, []*Object{box}, doc.ObjectsByLabel("Lid"))
	assert.Empty(t, doc.ObjectsByLabel("Box"))
}

func TestSetProperty_ReadOnly(t *testing.T) {
	doc := newTestDocument(t)
	obj, _ := doc.AddObject("App::FeaturePython", "Data")
	require.NoError(t, doc.AddProperty(obj, TypeFloat, "In", "Flow", true))

	err := doc.SetProperty(obj, "In", fudi.Float(1))
	assert.ErrorIs(t, err, ErrReadOnly)

	require.NoError(t, doc.SetPropertyForced(obj, "In", fudi.Float(1)))
	v, _ := obj.Property("In")
	assert.Equal(t, fudi.Float(1), v)
}

func TestAddProperty_Duplicate(t *testing.T) {
	doc := newTestDocument(t)
	obj, _ := doc.AddObject("App::FeaturePython", "")

	require.NoError(t, doc.AddProperty(obj, TypeVector, "Dir", "Base", false))
	assert.ErrorIs(t, doc.AddProperty(obj, TypeVector, "Dir", "Base", false), ErrDuplicateName)
	assert.ErrorIs(t, doc.AddProperty(obj, TypeString, "Label", "Base", false), ErrDuplicateName)

	require.NoError(t, doc.RemoveProperty(obj, "Dir"))
	assert.False(t, obj.HasProperty("Dir"))
	assert.ErrorIs(t, doc.RemoveProperty(obj, "Dir"), ErrNoProperty)
}

func TestRemoveObject_ClearsReferences(t *testing.T) {
	doc := newTestDocument(t)
	group, _ := doc.AddObject("App::DocumentObjectGroup", "")
	box, _ := doc.AddObject("Part::Box", "")
	link, err := doc.AddLink(box)
	require.NoError(t, err)
	require.NoError(t, doc.AddToGroup(group, box))
	doc.Select(box, "", fudi.Vector{})

	require.NoError(t, doc.RemoveObject("Box"))

	_, ok := doc.GetObject("Box")
	assert.False(t, ok)
	target, _ := link.Property("LinkedObject")
	assert.Equal(t, fudi.None{}, target)
	members, _ := group.Property("Group")
	assert.Equal(t, fudi.List{}, members)
	assert.Empty(t, doc.Selection())

	assert.ErrorIs(t, doc.RemoveObject("Box"), ErrNoObject)
}

func TestAddLink(t *testing.T) {
	doc := newTestDocument(t)
	box, _ := doc.AddObject("Part::Box", "")
	require.NoError(t, doc.SetProperty(box, "Label", fudi.String("Crate")))

	link, err := doc.AddLink(box)
	require.NoError(t, err)

	assert.Equal(t, "App::Link", link.TypeID)
	assert.Equal(t, "Crate", link.Label())
	target, _ := link.Property("LinkedObject")
	assert.Equal(t, fudi.Object{Index: -1, Ref: box}, target)
}

func TestParents(t *testing.T) {
	doc := newTestDocument(t)
	g1, _ := doc.AddObject("App::DocumentObjectGroup", "G")
	g2, _ := doc.AddObject("App::DocumentObjectGroup", "G")
	box, _ := doc.AddObject("Part::Box", "")

	require.NoError(t, doc.AddToGroup(g1, box))
	require.NoError(t, doc.AddToGroup(g2, box))
	require.NoError(t, doc.AddToGroup(g2, box))

	assert.Equal(t, []*Object{g1, g2}, box.Parents())
	members, _ := g2.Property("Group")
	assert.Len(t, members, 1)
}

func TestCopyObject(t *testing.T) {
	doc := newTestDocument(t)
	box, _ := doc.AddObject("Part::Box", "")
	link, _ := doc.AddLink(box)
	require.NoError(t, doc.SetProperty(box, "Length", fudi.Integer(30)))

	shallow, err := doc.CopyObject(link, false)
	require.NoError(t, err)
	target, _ := shallow.Property("LinkedObject")
	assert.Equal(t, fudi.Object{Index: -1, Ref: box}, target)

	deep, err := doc.CopyObject(link, true)
	require.NoError(t, err)
	target, _ = deep.Property("LinkedObject")
	copied, ok := target.(fudi.Object).Ref.(*Object)
	require.True(t, ok)
	assert.NotSame(t, box, copied)
	assert.Equal(t, "Box001", copied.Name)
	length, _ := copied.Property("Length")
	assert.Equal(t, fudi.Quantity{Value: 30, Unit: "mm"}, length)

	// the copy owns its properties
	require.NoError(t, doc.SetProperty(copied, "Length", fudi.Integer(1)))
	length, _ = box.Property("Length")
	assert.Equal(t, fudi.Quantity{Value: 30, Unit: "mm"}, length)
}

func TestConstraints(t *testing.T) {
	doc := newTestDocument(t)
	sketch, _ := doc.AddObject("Sketcher::SketchObject", "")
	box, _ := doc.AddObject("Part::Box", "")

	require.NoError(t, doc.AddConstraint(sketch, "width", fudi.Integer(20)))
	require.NoError(t, doc.AddConstraint(sketch, "tilt", fudi.Quantity{Value: 30, Unit: "deg"}))
	assert.ErrorIs(t, doc.AddConstraint(box, "width", fudi.Integer(1)), ErrNoConstraint)
	assert.ErrorIs(t, doc.AddConstraint(sketch, "width", fudi.Integer(1)), ErrDuplicateName)

	v, err := sketch.Constraint("width")
	require.NoError(t, err)
	assert.Equal(t, fudi.Quantity{Value: 20, Unit: "mm"}, v)

	v, err = sketch.Constraint("1")
	require.NoError(t, err)
	assert.Equal(t, fudi.Quantity{Value: 30, Unit: "deg"}, v)

	require.NoError(t, doc.SetConstraint(sketch, "tilt", fudi.Integer(45)))
	v, _ = sketch.Constraint("tilt")
	assert.Equal(t, fudi.Quantity{Value: 45, Unit: "deg"}, v)

	_, err = sketch.Constraint("missing")
	assert.ErrorIs(t, err, ErrNoConstraint)
}

func TestResolveObject(t *testing.T) {
	doc := newTestDocument(t)
	box, _ := doc.AddObject("Part::Box", "")
	codec := fudi.NewCodec(nil, doc)

	v, n, err := codec.Decode([]string{"Box"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, fudi.Object{Index: -1, Ref: box}, v)

	v, _, err = codec.Decode([]string{"Nothing"})
	require.NoError(t, err)
	assert.Equal(t, fudi.String("Nothing"), v)
}

type recordingObserver struct {
	changed    []string
	recomputed []string
	added      []string
	removed    []string
	cleared    int
	preselect  []string
}

func (r *recordingObserver) ChangedObject(obj *Object, prop string) {
	r.changed = append(r.changed, obj.Name+"."+prop)
}

func (r *recordingObserver) RecomputedObject(obj *Object) {
	r.recomputed = append(r.recomputed, obj.Name)
}

func (r *recordingObserver) AddSelection(_, obj, sub string, _ fudi.Vector) {
	r.added = append(r.added, obj+sub)
}

func (r *recordingObserver) RemoveSelection(_, obj, sub string) {
	r.removed = append(r.removed, obj+sub)
}

func (r *recordingObserver) ClearSelection(string) {
	r.cleared++
}

func (r *recordingObserver) SetPreselection(_, obj, sub string) {
	r.preselect = append(r.preselect, obj+sub)
}

func TestObservers(t *testing.T) {
	doc := newTestDocument(t)
	obs := &recordingObserver{}
	require.NoError(t, doc.AddObserver(obs))
	require.NoError(t, doc.AddObserver(obs))
	assert.ErrorIs(t, doc.AddObserver("not an observer"), ErrNotObserver)

	box, _ := doc.AddObject("Part::Box", "")
	require.NoError(t, doc.SetProperty(box, "Height", fudi.Integer(2)))

	n, err := doc.Recompute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	doc.Select(box, "Face1", fudi.Vector{X: 1})
	doc.Select(box, "Face1", fudi.Vector{X: 1})
	doc.Deselect(box, "Face1")
	doc.ClearSelection()
	doc.Preselect(box, "Edge2")

	assert.Equal(t, []string{"Box.Height"}, obs.changed)
	assert.Equal(t, []string{"Box"}, obs.recomputed)
	assert.Equal(t, []string{"BoxFace1"}, obs.added)
	assert.Equal(t, []string{"BoxFace1"}, obs.removed)
	assert.Equal(t, 1, obs.cleared)
	assert.Equal(t, []string{"BoxEdge2"}, obs.preselect)

	assert.True(t, doc.RemoveObserver(obs))
	assert.False(t, doc.RemoveObserver(obs))

	require.NoError(t, doc.SetProperty(box, "Height", fudi.Integer(3)))
	assert.Len(t, obs.changed, 1)
}

func TestRecompute_OnlyTouched(t *testing.T) {
	doc := newTestDocument(t)
	_, _ = doc.AddObject("Part::Box", "")
	_, _ = doc.AddObject("Part::Sphere", "")

	n, err := doc.Recompute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = doc.Recompute(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSelection(t *testing.T) {
	doc := newTestDocument(t)
	a, _ := doc.AddObject("Part::Box", "")
	b, _ := doc.AddObject("Part::Sphere", "")

	doc.Select(a, "Face1", fudi.Vector{})
	doc.Select(b, "", fudi.Vector{})
	doc.Select(a, "Face2", fudi.Vector{})

	assert.Equal(t, []*Object{a, b}, doc.Selection())
	assert.Len(t, doc.SelectionEx(), 3)

	doc.Deselect(a, "")
	assert.Equal(t, []*Object{b}, doc.Selection())

	doc.Preselect(b, "")
	entry, ok := doc.Preselection()
	require.True(t, ok)
	assert.Same(t, b, entry.Object)

	doc.ClearPreselection()
	_, ok = doc.Preselection()
	assert.False(t, ok)
}
