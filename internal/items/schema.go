package items

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/kaptinlin/jsonschema"
)

//go:embed schema/record.schema.json
var recordSchemaJSON []byte

var (
	recordSchemaOnce sync.Once
	recordSchema     *jsonschema.Schema
	recordSchemaErr  error
)

func loadRecordSchema() (*jsonschema.Schema, error) {
	recordSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		recordSchema, recordSchemaErr = compiler.Compile(recordSchemaJSON)
		if recordSchemaErr != nil {
			recordSchemaErr = fmt.Errorf("compile record schema: %w", recordSchemaErr)
		}
	})
	return recordSchema, recordSchemaErr
}

// checkRecord validates one raw record against the record schema.
func checkRecord(raw json.RawMessage) error {
	schema, err := loadRecordSchema()
	if err != nil {
		return err
	}
	result := schema.ValidateJSON(raw)
	if result.IsValid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors))
	for key, e := range result.Errors {
		msgs = append(msgs, fmt.Sprintf("%v: %v", key, e))
	}
	sort.Strings(msgs)
	return fmt.Errorf("schema validation failed: %s", strings.Join(msgs, "; "))
}
