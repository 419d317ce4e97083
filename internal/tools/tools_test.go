package tools

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"fcpd/internal/fudi"
	"fcpd/internal/host"
	"fcpd/internal/microservices/tcp"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recorder stands in for the server when observers send
type recorder struct {
	mu   sync.Mutex
	sent [][]fudi.Value
}

func (r *recorder) Send(values ...fudi.Value) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, append([]fudi.Value(nil), values...))
	return nil
}

func (r *recorder) messages() [][]fudi.Value {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]fudi.Value(nil), r.sent...)
}

// newBridge wires a document, a codec resolving its objects, an unstarted
// server and the tools
func newBridge(t *testing.T) (*Tools, *tcp.Server, *host.Document) {
	t.Helper()
	logger := discardLogger()
	doc := host.NewDocument("Test", nil, logger)
	srv := tcp.NewServer(tcp.Options{Logger: logger}, fudi.NewCodec(nil, doc))
	tools := New(doc, Options{Logger: logger})
	require.NoError(t, tools.Register(srv))
	t.Cleanup(tools.Close)
	return tools, srv, doc
}

type ToolsTestSuite struct {
	suite.Suite
	tools    *Tools
	server   *tcp.Server
	doc      *host.Document
	box      *host.Object
	cylinder *host.Object
}

func TestToolsTestSuite(t *testing.T) {
	suite.Run(t, new(ToolsTestSuite))
}

func (s *ToolsTestSuite) SetupTest() {
	s.tools, s.server, s.doc = newBridge(s.T())
	var err error
	s.box, err = s.doc.AddObject("Part::Box", "Box")
	s.Require().NoError(err)
	s.cylinder, err = s.doc.AddObject("Part::Cylinder", "Cylinder")
	s.Require().NoError(err)
}

// process runs one message and returns the reply, "" when there is none
func (s *ToolsTestSuite) process(raw string) string {
	out, ok := s.server.Process(raw)
	if !ok {
		return ""
	}
	return out
}

// value decodes the payload of a reply
func (s *ToolsTestSuite) value(reply string) fudi.Value {
	words := fudi.Words(strings.TrimSuffix(reply, ";"))
	s.Require().NotEmpty(words)
	v, _, err := s.server.Codec().Decode(words[1:])
	s.Require().NoError(err)
	return v
}

func (s *ToolsTestSuite) property(obj *host.Object, name string) fudi.Value {
	v, err := obj.Property(name)
	s.Require().NoError(err)
	return v
}

func (s *ToolsTestSuite) TestGetSelection() {
	s.Equal("0 None;", s.process("0 get selection;"))

	s.doc.Select(s.box, "", fudi.Vector{})
	s.Equal("0 Box;", s.process("0 get selection;"))

	s.doc.Select(s.cylinder, "Face1", fudi.Vector{})
	s.doc.Select(s.box, "Edge2", fudi.Vector{})
	s.Equal("0 list 2 Box Cylinder;", s.process("0 get selection;"))
}

func (s *ToolsTestSuite) TestGetProperty() {
	s.Equal("1 10mm;", s.process("1 get property Box Length;"))
	s.Equal("1 Box;", s.process("1 get property Box Label;"))
	s.Equal("1 360deg;", s.process("1 get property Cylinder Angle;"))

	s.Equal("1 ERROR no such object: Nope;", s.process("1 get property Nope Length;"))
	s.Equal("1 ERROR no such property: Box.Nope;", s.process("1 get property Box Nope;"))
	s.Equal("1 ERROR missing argument: property name;", s.process("1 get property Box;"))
}

func (s *ToolsTestSuite) TestGetReference() {
	reply := s.process("2 get reference Box;")
	s.Equal("2 ^0;", reply)

	// the reference works wherever an object is expected
	s.Equal("2 10mm;", s.process("2 get property ^0 Width;"))
	s.Equal("2 ^0;", s.process("2 get reference Box;"))

	s.Equal("2 ERROR no such object: Nope;", s.process("2 get reference Nope;"))
}

func (s *ToolsTestSuite) TestGetConstraint() {
	sketch, err := s.doc.AddObject("Sketcher::SketchObject", "Sketch")
	s.Require().NoError(err)
	s.Require().NoError(s.doc.AddConstraint(sketch, "width", fudi.Float(5)))

	s.Equal("3 5mm;", s.process("3 get constraint Sketch width;"))
	s.Contains(s.process("3 get constraint Sketch depth;"), "ERROR no such constraint")
	s.Contains(s.process("3 get constraint Box width;"), "ERROR no such constraint")
}

func (s *ToolsTestSuite) TestGetUnknown() {
	s.Equal("0 ERROR unknown subcommand: get colour;", s.process("0 get colour;"))
	s.Equal("0 ERROR missing argument: get what;", s.process("0 get;"))
}

func (s *ToolsTestSuite) TestSetProperty() {
	s.Equal("0 bang;", s.process("0 set property Box Length 25;"))
	s.Equal(fudi.Quantity{Value: 25, Unit: "mm"}, s.property(s.box, "Length"))

	s.Equal("0 bang;", s.process("0 set property Box Height 2cm;"))
	s.Equal(fudi.Quantity{Value: 2, Unit: "cm"}, s.property(s.box, "Height"))

	s.Equal("0 bang;", s.process("0 set property Box Placement Placement Pos 1 2 3 Yaw-Pitch-Roll 90 0 0;"))
	s.Equal(fudi.Placement{
		Base:     fudi.Vector{X: 1, Y: 2, Z: 3},
		Rotation: fudi.Rotation{Yaw: 90},
	}, s.property(s.box, "Placement"))

	s.Equal("0 bang;", s.process(`0 set property Box Label "Lid top";`))
	s.Equal("Lid top", s.box.Label())
}

func (s *ToolsTestSuite) TestSetPropertyErrors() {
	s.Equal("0 ERROR missing argument: value;", s.process("0 set property Box Length;"))
	s.Contains(s.process("0 set property Box Length Vector 1 2 3;"), "ERROR Box.Length: type mismatch")
	s.Contains(s.process("0 set property Box Nope 1;"), "ERROR no such property")
	s.Equal("0 ERROR unknown subcommand: set colour;", s.process("0 set colour Box red;"))

	// nothing changed
	s.Equal(fudi.Quantity{Value: 10, Unit: "mm"}, s.property(s.box, "Length"))
}

func (s *ToolsTestSuite) TestSetConstraint() {
	sketch, err := s.doc.AddObject("Sketcher::SketchObject", "Sketch")
	s.Require().NoError(err)
	s.Require().NoError(s.doc.AddConstraint(sketch, "tilt", fudi.Quantity{Value: 30, Unit: "deg"}))

	s.Equal("0 bang;", s.process("0 set constraint Sketch tilt 45;"))
	v, err := sketch.Constraint("tilt")
	s.Require().NoError(err)
	s.Equal(fudi.Quantity{Value: 45, Unit: "deg"}, v)

	s.Contains(s.process("0 set constraint Sketch nope 1;"), "ERROR no such constraint")
}

func (s *ToolsTestSuite) TestCopy() {
	group, err := s.doc.AddObject("App::DocumentObjectGroup", "Parts")
	s.Require().NoError(err)
	s.Require().NoError(s.doc.AddToGroup(group, s.box))

	s.Equal("0 Box001;", s.process("0 copy Box;"))

	dup, ok := s.doc.GetObject("Box001")
	s.Require().True(ok)
	s.Equal([]*host.Object{group}, dup.Parents())
	s.Equal(s.property(s.box, "Length"), s.property(dup, "Length"))
}

func (s *ToolsTestSuite) TestCopyWithDependencies() {
	s.Equal("0 Link;", s.process("0 link Box;"))

	s.Equal("0 Link001;", s.process("0 copy Link False;"))
	shallow, _ := s.doc.GetObject("Link001")
	s.Equal(fudi.Object{Index: -1, Ref: s.box}, s.property(shallow, "LinkedObject"))

	s.Equal("0 Link002;", s.process("0 copy Link 1;"))
	deep, _ := s.doc.GetObject("Link002")
	linked := s.property(deep, "LinkedObject").(fudi.Object)
	s.Equal("Box001", linked.Ref.(*host.Object).Name)
}

func (s *ToolsTestSuite) TestDelete() {
	s.Equal("0 bang;", s.process("0 delete Box Cylinder;"))

	_, ok := s.doc.GetObject("Box")
	s.False(ok)
	_, ok = s.doc.GetObject("Cylinder")
	s.False(ok)

	s.Equal("0 ERROR no such object: Box;", s.process("0 delete Box;"))
}

func (s *ToolsTestSuite) TestRecompute() {
	store := host.NewMemoryStore()
	doc := host.NewDocument("Persisted", store, discardLogger())
	srv := tcp.NewServer(tcp.Options{Logger: discardLogger()}, fudi.NewCodec(nil, doc))
	s.Require().NoError(New(doc, Options{Logger: discardLogger()}).Register(srv))
	_, err := doc.AddObject("Part::Sphere", "Ball")
	s.Require().NoError(err)

	out, ok := srv.Process("0 recompute;")
	s.Require().True(ok)
	s.Equal("0 bang;", out)

	records, err := store.LoadObjects(context.Background(), "Persisted")
	s.Require().NoError(err)
	s.Require().Len(records, 1)
	s.Equal("Ball", records[0].Name)
}

func (s *ToolsTestSuite) TestLink() {
	s.Require().NoError(s.doc.SetProperty(s.box, "Label", fudi.String("Wheel")))

	s.Equal("0 Link;", s.process("0 link Box;"))

	lnk, ok := s.doc.GetObject("Link")
	s.Require().True(ok)
	s.Equal("Wheel", lnk.Label())
	s.Equal(fudi.Object{Index: -1, Ref: s.box}, s.property(lnk, "LinkedObject"))

	s.Equal("0 ERROR no such object: Nope;", s.process("0 link Nope;"))
}

func (s *ToolsTestSuite) TestByLabel() {
	s.Require().NoError(s.doc.SetProperty(s.box, "Label", fudi.String("Wheel")))
	s.Require().NoError(s.doc.SetProperty(s.cylinder, "Label", fudi.String("Wheel")))

	s.Equal("0 list 2 Box Cylinder;", s.process("0 bylabel Wheel;"))
	s.Equal("0 None;", s.process("0 bylabel Axle;"))
}

func (s *ToolsTestSuite) TestObject() {
	s.Equal("0 Box001;", s.process("0 Object Part Box Length 5 Bogus 3 Width 7 Placement Placement Pos 1 0 0 Yaw-Pitch-Roll 0 0 0;"))

	obj, ok := s.doc.GetObject("Box001")
	s.Require().True(ok)
	s.Equal("Part::Box", obj.TypeID)
	s.Equal(fudi.Quantity{Value: 5, Unit: "mm"}, s.property(obj, "Length"))
	s.Equal(fudi.Quantity{Value: 7, Unit: "mm"}, s.property(obj, "Width"))
	s.Equal(fudi.Quantity{Value: 10, Unit: "mm"}, s.property(obj, "Height"))
	s.Equal(fudi.Placement{Base: fudi.Vector{X: 1}}, s.property(obj, "Placement"))

	s.Equal("0 Sphere;", s.process("0 Object Part Sphere;"))
	s.Equal("0 ERROR unknown object type: Part::Torus;", s.process("0 Object Part Torus;"))
	s.Equal("0 ERROR missing argument: type;", s.process("0 Object Part;"))
}

func (s *ToolsTestSuite) TestObserverLifecycle() {
	s.Equal("", s.process("4 remobserver;"))

	s.Equal("4 OK;", s.process("4 selobserver;"))
	s.Equal("5 OK;", s.process("5 objobserver Box;"))
	s.Equal("6 OK;", s.process("6 onMove Box;"))
	s.Equal([]string{"4", "5", "6"}, s.tools.Observers())

	// a second install under the same tag replaces the first
	s.Equal("4 OK;", s.process("4 onMove Cylinder;"))
	s.Equal([]string{"4", "5", "6"}, s.tools.Observers())

	s.Equal("4 OK;", s.process("4 remobserver;"))
	s.Equal("", s.process("4 remobserver;"))
	s.Equal([]string{"5", "6"}, s.tools.Observers())

	s.Equal("5 ERROR missing argument: object name;", s.process("5 objobserver;"))
}

func (s *ToolsTestSuite) TestStr() {
	s.Equal("0 Box;", s.process("0 str Box;"))
	s.Equal("0 Vector 1 2 3;", s.process("0 str Vector 1 2 3;"))
	s.Equal("0 3mm;", s.process("0 str 3mm;"))
	s.Equal("0 hello world;", s.process(`0 str "hello world";`))
	s.Equal("0 1 Box;", s.process("0 str list 2 1 Box;"))
	s.Contains(s.process("0 str list 9999999999;"), "0 ERROR malformed value")
	s.Contains(s.process("0 str list 3 1;"), "0 ERROR malformed value")
}

func (s *ToolsTestSuite) TestDefaultHandler() {
	s.Equal("0 "+fudi.Sanitize(rejectText)+";", s.process("0 raw App.newDocument();"))
}

func TestDefaultHandler_AllowRaw(t *testing.T) {
	doc := host.NewDocument("Test", nil, discardLogger())
	srv := tcp.NewServer(tcp.Options{Logger: discardLogger()}, fudi.NewCodec(nil, doc))
	require.NoError(t, New(doc, Options{AllowRaw: true, Logger: discardLogger()}).Register(srv))

	out, ok := srv.Process("0 giveme Part;")
	require.True(t, ok)
	assert.Equal(t, "0 "+fudi.Sanitize(rejectRawText)+";", out)
}

func TestRegister_Keywords(t *testing.T) {
	_, srv, _ := newBridge(t)

	keywords := srv.Dispatcher().Keywords()
	for _, kw := range []string{
		"get", "set", "copy", "delete", "recompute", "link", "bylabel", "Object",
		"selobserver", "objobserver", "onMove", "remobserver",
		"matrixPlacement", "ypr2rpy", "rotationadd", "rotationminus", "placementadd", "placementminus",
		"newctrlr", "ctrlr", "str",
	} {
		assert.Contains(t, keywords, kw)
	}
}

func TestTruthy(t *testing.T) {
	assert.True(t, truthy(fudi.Bool(true)))
	assert.True(t, truthy(fudi.Integer(1)))
	assert.True(t, truthy(fudi.Float(0.5)))
	assert.False(t, truthy(fudi.Bool(false)))
	assert.False(t, truthy(fudi.Integer(0)))
	assert.False(t, truthy(fudi.String("yes")))
	assert.False(t, truthy(fudi.NotSet{}))
}
