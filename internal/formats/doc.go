// Package formats extracts documentable elements from schema definitions and
// writes generated documentation back into them.
//
// One Codec exists per schema format. Avro and JSON Schema definitions are
// edited in place with gjson/sjson so key order and unrelated content survive
// the round trip; Protobuf definitions are scanned token by token and patched
// at byte offsets.
package formats
