package host

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"fcpd/internal/fudi"
)

const (
	constraintGroup = "Constraints"
	constraintType  = "Sketcher::Constraint"
)

// Store persists document objects between runs. Values are kept in their
// FUDI text form; links are written as the target object name.
type Store interface {
	SaveObjects(ctx context.Context, doc string, records []ObjectRecord) error
	DeleteObjects(ctx context.Context, doc string, names []string) error
	LoadObjects(ctx context.Context, doc string) ([]ObjectRecord, error)
	Close() error
}

// ObjectRecord is the stored form of one object
type ObjectRecord struct {
	Name       string           `json:"name"`
	Label      string           `json:"label"`
	TypeID     string           `json:"type_id"`
	Seq        int              `json:"seq"`
	Properties []PropertyRecord `json:"properties"`
}

type PropertyRecord struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Group    string `json:"group"`
	Value    string `json:"value"`
	ReadOnly bool   `json:"read_only"`
}

// NopStore keeps nothing
type NopStore struct{}

func (NopStore) SaveObjects(context.Context, string, []ObjectRecord) error { return nil }
func (NopStore) DeleteObjects(context.Context, string, []string) error     { return nil }
func (NopStore) LoadObjects(context.Context, string) ([]ObjectRecord, error) {
	return nil, nil
}
func (NopStore) Close() error { return nil }

// MemoryStore keeps records in process memory. Useful for tests and for
// restoring a document within one run.
type MemoryStore struct {
	mu   sync.Mutex
	docs map[string]map[string]ObjectRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]map[string]ObjectRecord)}
}

func (m *MemoryStore) SaveObjects(_ context.Context, doc string, records []ObjectRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	objs, ok := m.docs[doc]
	if !ok {
		objs = make(map[string]ObjectRecord)
		m.docs[doc] = objs
	}
	for _, r := range records {
		r.Properties = append([]PropertyRecord(nil), r.Properties...)
		objs[r.Name] = r
	}
	return nil
}

func (m *MemoryStore) DeleteObjects(_ context.Context, doc string, names []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, name := range names {
		delete(m.docs[doc], name)
	}
	return nil
}

func (m *MemoryStore) LoadObjects(_ context.Context, doc string) ([]ObjectRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	records := make([]ObjectRecord, 0, len(m.docs[doc]))
	for _, r := range m.docs[doc] {
		records = append(records, r)
	}
	sortRecords(records)
	return records, nil
}

func (m *MemoryStore) Close() error { return nil }

func sortRecords(records []ObjectRecord) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].Seq != records[j].Seq {
			return records[i].Seq < records[j].Seq
		}
		return records[i].Name < records[j].Name
	})
}

func (o *Object) recordLocked() ObjectRecord {
	r := ObjectRecord{
		Name:       o.Name,
		Label:      o.label,
		TypeID:     o.TypeID,
		Seq:        o.seq,
		Properties: make([]PropertyRecord, 0, len(o.props)+len(o.constraints)),
	}
	for _, p := range o.props {
		r.Properties = append(r.Properties, PropertyRecord{
			Name:     p.Name,
			Type:     string(p.Type),
			Group:    p.Group,
			Value:    persistText(p.Value),
			ReadOnly: p.ReadOnly,
		})
	}
	for _, c := range o.constraints {
		r.Properties = append(r.Properties, PropertyRecord{
			Name:  c.Name,
			Type:  constraintType,
			Group: constraintGroup,
			Value: persistText(c.Value),
		})
	}
	return r
}

// persistText renders v so that the document codec decodes it back.
// Objects become their name and resolve again on restore; values that
// only live in a registry cannot be kept and become None.
func persistText(v fudi.Value) string {
	switch val := v.(type) {
	case nil:
		return "None"
	case fudi.Object:
		if obj, ok := val.Ref.(*Object); ok {
			return obj.Name
		}
		return "None"
	case fudi.Unknown:
		return "None"
	case fudi.String:
		return `"` + strings.ReplaceAll(string(val), `"`, "") + `"`
	case fudi.List:
		parts := []string{"list", fmt.Sprint(len(val))}
		for _, item := range val {
			parts = append(parts, persistText(item))
		}
		return strings.Join(parts, " ")
	}
	return fudi.Text(v)
}

// Restore loads the stored objects of this document. Objects are created
// first so links between them resolve when values are decoded.
func (d *Document) Restore(ctx context.Context) (int, error) {
	records, err := d.store.LoadObjects(ctx, d.Name)
	if err != nil {
		return 0, fmt.Errorf("failed to load document %s: %w", d.Name, err)
	}
	sortRecords(records)

	type pending struct {
		obj    *Object
		record ObjectRecord
	}
	var restored []pending

	d.mu.Lock()
	for _, r := range records {
		if _, exists := d.byName[r.Name]; exists {
			continue
		}
		obj, err := d.addObjectLocked(r.TypeID, r.Name)
		if err != nil {
			d.logger.Warn("restore_object_skipped", "document", d.Name, "object", r.Name, "error", err.Error())
			continue
		}
		obj.label = r.Label
		if r.Seq >= d.nextSeq {
			d.nextSeq = r.Seq + 1
		}
		obj.seq = r.Seq
		for _, pr := range r.Properties {
			if pr.Group == constraintGroup && pr.Type == constraintType {
				obj.constraints = append(obj.constraints, &Property{Name: pr.Name, Type: TypeQuantity, Group: constraintGroup, Value: fudi.Quantity{}})
				continue
			}
			if obj.findLocked(pr.Name) == nil {
				t := PropertyType(pr.Type)
				obj.props = append(obj.props, &Property{Name: pr.Name, Type: t, Group: pr.Group, Value: ZeroValue(t)})
			}
			obj.findLocked(pr.Name).ReadOnly = pr.ReadOnly
		}
		obj.touched = false
		restored = append(restored, pending{obj: obj, record: r})
	}
	d.mu.Unlock()

	codec := fudi.NewCodec(nil, d)
	for _, p := range restored {
		for _, pr := range p.record.Properties {
			v, _, err := codec.Decode(strings.Fields(pr.Value))
			if err != nil || !fudi.IsSet(v) {
				d.logger.Warn("restore_value_skipped",
					"object", p.obj.Name,
					"property", pr.Name,
					"value", pr.Value,
				)
				continue
			}
			d.restoreValue(p.obj, pr, v)
		}
	}

	d.logger.Info("document_restored", "document", d.Name, "objects", len(restored))
	return len(restored), nil
}

func (d *Document) restoreValue(obj *Object, pr PropertyRecord, v fudi.Value) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var p *Property
	if pr.Group == constraintGroup && pr.Type == constraintType {
		p = obj.constraintLocked(pr.Name)
	} else {
		p = obj.findLocked(pr.Name)
	}
	if p == nil {
		return
	}
	coerced, err := Coerce(p.Type, v)
	if err != nil {
		d.logger.Warn("restore_value_skipped", "object", obj.Name, "property", pr.Name, "error", err.Error())
		return
	}
	p.Value = coerced
}
