package emsx

import (
	"fmt"
	"strings"
)

// TopicKind is the blotter a subscription watches.
type TopicKind string

const (
	OrderTopic TopicKind = "order"
	RouteTopic TopicKind = "route"
)

// Topic builds "<service>/<kind>?fields=A,B,...".
func Topic(service string, kind TopicKind, fields []Field) string {
	return fmt.Sprintf("%s/%s?fields=%s", service, kind, strings.Join(Names(fields), ","))
}

// ParseTopic splits a topic into its service, kind and field names.
func ParseTopic(topic string) (service string, kind TopicKind, fields []string, err error) {
	path, query, _ := strings.Cut(topic, "?")
	idx := strings.LastIndex(path, "/")
	if idx <= 0 {
		return "", "", nil, fmt.Errorf("emsx: malformed topic %q", topic)
	}
	service, kind = path[:idx], TopicKind(path[idx+1:])
	if kind != OrderTopic && kind != RouteTopic {
		return "", "", nil, fmt.Errorf("emsx: unknown topic kind %q", kind)
	}
	if list, ok := strings.CutPrefix(query, "fields="); ok && list != "" {
		fields = strings.Split(list, ",")
	}
	return service, kind, fields, nil
}

// FieldsFor returns the known field set of a topic kind.
func FieldsFor(kind TopicKind) []Field {
	if kind == RouteTopic {
		return RouteFields
	}
	return OrderFields
}
