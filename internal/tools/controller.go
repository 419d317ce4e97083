package tools

import (
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"

	"fcpd/internal/fudi"
	"fcpd/internal/host"
	"fcpd/internal/microservices/tcp"
)

// Controller objects, named as patches and saved documents expect them
const (
	inputObject     = "IncommingData"
	outputObject    = "OutgoingData"
	controllerGroup = "PDControler"

	inputGroup  = "IncommingDataFlow"
	outputGroup = "OutgoingDataFlow"

	dataFlowPrefix = "DataFlow_"
	maxDataFlows   = 20
)

func dataFlowName(index int) string {
	return dataFlowPrefix + strconv.Itoa(index)
}

// controller mirrors a [fc_controler] patch: inputs land in read-only
// properties of IncommingData, changed outputs of OutgoingData are sent
// back on recompute, highest index first.
type controller struct {
	doc    *host.Document
	out    sender
	tag    string
	logger *slog.Logger

	mu      sync.Mutex
	pending map[int]bool
}

func (c *controller) ChangedObject(obj *host.Object, prop string) {
	if obj.Name != outputObject || !strings.HasPrefix(prop, dataFlowPrefix) {
		return
	}
	index, err := strconv.Atoi(strings.TrimPrefix(prop, dataFlowPrefix))
	if err != nil {
		return
	}
	c.mu.Lock()
	c.pending[index] = true
	c.mu.Unlock()
}

func (c *controller) RecomputedObject(obj *host.Object) {
	if obj.Name != outputObject {
		return
	}
	c.mu.Lock()
	indexes := make([]int, 0, len(c.pending))
	for index := range c.pending {
		indexes = append(indexes, index)
	}
	c.pending = make(map[int]bool)
	c.mu.Unlock()

	sort.Sort(sort.Reverse(sort.IntSlice(indexes)))
	for _, index := range indexes {
		v, err := obj.Property(dataFlowName(index))
		if err != nil {
			continue
		}
		send(c.out, c.logger, c.tag, fudi.Integer(index), v)
	}
}

// objects returns the controller objects, creating what is missing
func (c *controller) objects() (in, out *host.Object, err error) {
	in, err = c.getOrAdd("App::FeaturePython", inputObject)
	if err != nil {
		return nil, nil, err
	}
	out, err = c.getOrAdd("App::FeaturePython", outputObject)
	if err != nil {
		return nil, nil, err
	}
	group, err := c.getOrAdd("App::DocumentObjectGroupPython", controllerGroup)
	if err != nil {
		return nil, nil, err
	}
	if err := c.doc.AddToGroup(group, in); err != nil {
		return nil, nil, err
	}
	if err := c.doc.AddToGroup(group, out); err != nil {
		return nil, nil, err
	}
	return in, out, nil
}

func (c *controller) getOrAdd(typeID, name string) (*host.Object, error) {
	if obj, ok := c.doc.GetObject(name); ok {
		return obj, nil
	}
	return c.doc.AddObject(typeID, name)
}

// reset drops DataFlow_0, DataFlow_1... up to the first gap
func (c *controller) reset(obj *host.Object) error {
	for i := 0; i < maxDataFlows; i++ {
		name := dataFlowName(i)
		if !obj.HasProperty(name) {
			break
		}
		if err := c.doc.RemoveProperty(obj, name); err != nil {
			return err
		}
	}
	return nil
}

// setType (re)creates DataFlow_index on obj with type t
func (c *controller) setType(obj *host.Object, index int, t host.PropertyType, group string, readOnly bool) error {
	if index < 0 || index >= maxDataFlows {
		return fmt.Errorf("%w: index %d", ErrTooManyDataFlows, index)
	}
	name := dataFlowName(index)
	if obj.HasProperty(name) {
		if err := c.doc.RemoveProperty(obj, name); err != nil {
			return err
		}
	}
	return c.doc.AddProperty(obj, t, name, group, readOnly)
}

// setInput stores an incoming value, creating a property of a matching
// type the first time an index is used
func (c *controller) setInput(in *host.Object, index int, v fudi.Value) error {
	if r, ok := v.(fudi.Rotation); ok {
		v = fudi.Placement{Rotation: r}
	}
	if !in.HasProperty(dataFlowName(index)) {
		if err := c.setType(in, index, propertyTypeOf(v), inputGroup, true); err != nil {
			return err
		}
	}
	return c.doc.SetPropertyForced(in, dataFlowName(index), v)
}

func propertyTypeOf(v fudi.Value) host.PropertyType {
	switch val := v.(type) {
	case fudi.Float:
		return host.TypeFloat
	case fudi.Integer:
		return host.TypeInteger
	case fudi.Bool:
		return host.TypeBool
	case fudi.String:
		return host.TypeString
	case fudi.Vector:
		return host.TypeVector
	case fudi.Rotation, fudi.Placement:
		return host.TypePlacement
	case fudi.List:
		return host.TypeList
	case fudi.Object:
		return host.TypeLink
	case fudi.Quantity:
		if val.IsAngle() {
			return host.TypeAngle
		}
		return host.TypeQuantity
	}
	return host.TypeAny
}

// controllerFor returns the document controller, creating it for srv and
// tag on first use. Later patches share the first one.
func (t *Tools) controllerFor(srv *tcp.Server, tag string) (*controller, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ctrl != nil {
		return t.ctrl, nil
	}
	c := &controller{
		doc:     t.doc,
		out:     srv,
		tag:     tag,
		logger:  t.logger,
		pending: make(map[int]bool),
	}
	if err := t.doc.AddObserver(c); err != nil {
		return nil, err
	}
	t.ctrl = c
	t.logger.Info("controller_created", "tag", tag, "document", t.doc.Name)
	return c, nil
}

// newctrlr InTypes... [| OutTypes...] -> bang
//
// Types are the short or long codes (f float, i integer...). Existing
// DataFlow properties are replaced.
func (t *Tools) newCtrlr(srv *tcp.Server, words []string) (fudi.Value, error) {
	inCodes, outCodes := words[2:], []string(nil)
	for i, w := range inCodes {
		if w == "|" {
			inCodes, outCodes = words[2:2+i], words[3+i:]
			break
		}
	}
	if len(inCodes) > maxDataFlows || len(outCodes) > maxDataFlows {
		return nil, ErrTooManyDataFlows
	}
	inTypes, err := typesFromCodes(inCodes)
	if err != nil {
		return nil, err
	}
	outTypes, err := typesFromCodes(outCodes)
	if err != nil {
		return nil, err
	}

	c, err := t.controllerFor(srv, words[0])
	if err != nil {
		return nil, err
	}
	in, out, err := c.objects()
	if err != nil {
		return nil, err
	}
	if err := c.reset(in); err != nil {
		return nil, err
	}
	if err := c.reset(out); err != nil {
		return nil, err
	}
	for i, typ := range inTypes {
		if err := c.setType(in, i, typ, inputGroup, true); err != nil {
			return nil, err
		}
	}
	for i, typ := range outTypes {
		if err := c.setType(out, i, typ, outputGroup, false); err != nil {
			return nil, err
		}
	}
	t.logger.Debug("controller_configured", "inputs", len(inTypes), "outputs", len(outTypes))
	return bang, nil
}

func typesFromCodes(codes []string) ([]host.PropertyType, error) {
	types := make([]host.PropertyType, len(codes))
	for i, code := range codes {
		typ, err := host.TypeFromCode(code)
		if err != nil {
			return nil, err
		}
		types[i] = typ
	}
	return types, nil
}

// ctrlr Index Value [Index Value]... -> bang
func (t *Tools) ctrlr(srv *tcp.Server, words []string) (fudi.Value, error) {
	_, values, err := srv.Codec().PopValues(words[2:], fudi.All, false)
	if err != nil {
		return nil, err
	}
	if len(values)%2 != 0 {
		return nil, fmt.Errorf("%w: value for index %s", ErrMissingArgument, fudi.Text(values[len(values)-1]))
	}

	c, err := t.controllerFor(srv, words[0])
	if err != nil {
		return nil, err
	}
	in, _, err := c.objects()
	if err != nil {
		return nil, err
	}
	for i := 0; i < len(values); i += 2 {
		index, ok := values[i].(fudi.Integer)
		if !ok {
			return nil, fmt.Errorf("%w: controller index must be an integer, got %s", fudi.ErrMalformedValue, fudi.Text(values[i]))
		}
		if err := c.setInput(in, int(index), values[i+1]); err != nil {
			return nil, err
		}
	}
	return bang, nil
}
