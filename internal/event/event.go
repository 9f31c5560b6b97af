package event

import (
	"encoding/json"
	"fmt"
)

// Kind classifies a queue message body
type Kind int

const (
	// KindEmpty is a valid but empty body; it is left in the queue
	KindEmpty Kind = iota
	// KindNonTransferable is valid JSON that is not an object creation event; safe to discard
	KindNonTransferable
	// KindTransferable is a well formed object creation event
	KindTransferable
	// KindMalformed is a body that is not JSON at all
	KindMalformed
	// KindIndexMismatch is a body with an empty Records list
	KindIndexMismatch
)

func (k Kind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindNonTransferable:
		return "non_transferable"
	case KindTransferable:
		return "transferable"
	case KindMalformed:
		return "malformed"
	case KindIndexMismatch:
		return "index_mismatch"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ObjectCreated is the part of an S3 notification record needed to copy the object
type ObjectCreated struct {
	Region string
	Bucket string
	Key    string
}

// Classification is the result of parsing a message body.
// Event is only set for KindTransferable, Err for KindMalformed and KindNonTransferable.
type Classification struct {
	Kind  Kind
	Event ObjectCreated
	Err   error
}

// Classify parses a raw message body.
//
// Only the first record is looked at. A record missing awsRegion, s3.bucket.name or
// s3.object.key (or holding a non-string there) is non-transferable.
func Classify(body string) Classification {
	var doc any
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return Classification{Kind: KindMalformed, Err: err}
	}

	switch v := doc.(type) {
	case nil:
		return Classification{Kind: KindEmpty}
	case string:
		if v == "" {
			return Classification{Kind: KindEmpty}
		}
		return nonTransferable("body is a JSON string")
	case []any:
		if len(v) == 0 {
			return Classification{Kind: KindEmpty}
		}
		return nonTransferable("body is a JSON array")
	case map[string]any:
		if len(v) == 0 {
			return Classification{Kind: KindEmpty}
		}
		return classifyObject(v)
	default:
		return nonTransferable(fmt.Sprintf("body is a JSON %T", v))
	}
}

func classifyObject(doc map[string]any) Classification {
	raw, ok := doc["Records"]
	if !ok {
		return nonTransferable("missing Records")
	}
	records, ok := raw.([]any)
	if !ok {
		return nonTransferable("Records is not a list")
	}
	if len(records) == 0 {
		return Classification{Kind: KindIndexMismatch}
	}

	record, ok := records[0].(map[string]any)
	if !ok {
		return nonTransferable("Records[0] is not an object")
	}

	region, err := stringAt(record, "awsRegion")
	if err != nil {
		return nonTransferable(err.Error())
	}
	bucket, err := stringAt(record, "s3", "bucket", "name")
	if err != nil {
		return nonTransferable(err.Error())
	}
	key, err := stringAt(record, "s3", "object", "key")
	if err != nil {
		return nonTransferable(err.Error())
	}

	return Classification{
		Kind: KindTransferable,
		Event: ObjectCreated{
			Region: region,
			Bucket: bucket,
			Key:    key,
		},
	}
}

func stringAt(node map[string]any, path ...string) (string, error) {
	var cur any = node
	for i, field := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return "", fmt.Errorf("%s is not an object", joinPath(path[:i]))
		}
		cur, ok = obj[field]
		if !ok {
			return "", fmt.Errorf("missing %s", joinPath(path[:i+1]))
		}
	}

	s, ok := cur.(string)
	if !ok {
		return "", fmt.Errorf("%s is not a string", joinPath(path))
	}
	return s, nil
}

func joinPath(path []string) string {
	out := "Records[0]"
	for _, p := range path {
		out += "." + p
	}
	return out
}

func nonTransferable(reason string) Classification {
	return Classification{Kind: KindNonTransferable, Err: fmt.Errorf("not an object creation event: %s", reason)}
}
