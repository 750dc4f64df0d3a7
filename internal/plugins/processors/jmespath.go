package processors

import (
	"github.com/jmespath/go-jmespath"

	"github.com/rc1405/fiddler/internal/component"
	"github.com/rc1405/fiddler/internal/value"
)

// evalQuery evaluates a JMESPath expression against doc (typically
// built by jsonDoc), using the same library FiddlerScript's jmespath()
// builtin uses. A missing path yields Null.
func evalQuery(query string, doc value.Value) (value.Value, error) {
	result, err := jmespath.Search(query, value.ToInterface(doc))
	if err != nil {
		return value.Value{}, component.NewProcessingError("jmespath", err)
	}
	if result == nil {
		return value.Null(), nil
	}
	return value.FromInterface(result), nil
}

// jsonDoc best-effort parses a message payload as JSON, falling back
// to an empty object for non-JSON payloads. Message metadata is not
// included in the document.
func jsonDoc(payload []byte) value.Value {
	v, err := value.ParseJSON(payload)
	if err != nil {
		return value.EmptyDict()
	}
	return v
}
