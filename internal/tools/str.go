package tools

import (
	"strings"

	"fcpd/internal/fudi"
	"fcpd/internal/host"
	"fcpd/internal/microservices/tcp"
)

// str Value -> the value as one string. Lists flatten to their items.
func str(srv *tcp.Server, words []string) (fudi.Value, error) {
	v, _, err := srv.Codec().Decode(words[2:])
	if err != nil {
		return nil, err
	}
	return fudi.String(TextOf(v)), nil
}

// TextOf renders v as plain words: objects by name, lists space separated
func TextOf(v fudi.Value) string {
	switch val := v.(type) {
	case fudi.Object:
		if obj, ok := val.Ref.(*host.Object); ok {
			return obj.Name
		}
		return "None"
	case fudi.List:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = TextOf(item)
		}
		return strings.Join(parts, " ")
	}
	return fudi.Text(v)
}
