package emsx

import (
	"fmt"

	"github.com/spf13/cast"

	"emsxbridge.com/internal/session"
)

type FieldValue struct {
	Field Field
	Value any
}

// Update is one OrderRouteFields message reduced to the fields it
// actually carried.
type Update struct {
	Kind          TopicKind
	Status        EventStatus
	CorrelationID session.CorrelationID
	Values        []FieldValue
}

// ExtractUpdate reads EVENT_STATUS and every field in fields that is
// present on msg. Absent fields are left out.
func ExtractUpdate(msg *session.Message, kind TopicKind, fields []Field) (Update, error) {
	u := Update{Kind: kind, CorrelationID: msg.CorrelationID()}

	status, err := msg.Elements.GetElementAsInt64("EVENT_STATUS")
	if err != nil {
		return u, fmt.Errorf("emsx: %s without EVENT_STATUS: %w", msg.Type, err)
	}
	u.Status = EventStatus(status)
	if !u.Status.CarriesData() {
		return u, nil
	}

	for _, f := range fields {
		if !msg.Elements.HasElement(f.Name) {
			continue
		}
		var v any
		switch f.Kind {
		case KindInt:
			n, err := msg.Elements.GetElementAsInt64(f.Name)
			if err != nil {
				return u, fmt.Errorf("emsx: %s: %w", f.Name, err)
			}
			v = int(n)
		case KindInt64:
			v, err = msg.Elements.GetElementAsInt64(f.Name)
		case KindFloat:
			v, err = msg.Elements.GetElementAsFloat64(f.Name)
		default:
			v, err = msg.Elements.GetElementAsString(f.Name)
		}
		if err != nil {
			return u, fmt.Errorf("emsx: %s: %w", f.Name, err)
		}
		u.Values = append(u.Values, FieldValue{Field: f, Value: v})
	}
	return u, nil
}

// Get returns the value of a field, if present.
func (u Update) Get(name string) (any, bool) {
	for _, fv := range u.Values {
		if fv.Field.Name == name {
			return fv.Value, true
		}
	}
	return nil, false
}

func (u Update) Int(name string) (int64, bool) {
	v, ok := u.Get(name)
	if !ok {
		return 0, false
	}
	return cast.ToInt64(v), true
}

func (u Update) Float(name string) (float64, bool) {
	v, ok := u.Get(name)
	if !ok {
		return 0, false
	}
	return cast.ToFloat64(v), true
}

func (u Update) Text(name string) (string, bool) {
	v, ok := u.Get(name)
	if !ok {
		return "", false
	}
	return cast.ToString(v), true
}

// Sequence is the EMSX order number, 0 when absent.
func (u Update) Sequence() int64 {
	n, _ := u.Int("EMSX_SEQUENCE")
	return n
}

// RouteID is the route number within the order, 0 when absent.
func (u Update) RouteID() int64 {
	n, _ := u.Int("EMSX_ROUTE_ID")
	return n
}

// Map returns the present fields keyed by name.
func (u Update) Map() map[string]any {
	m := make(map[string]any, len(u.Values))
	for _, fv := range u.Values {
		m[fv.Field.Name] = fv.Value
	}
	return m
}
