package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	compile := func(name string) *jsonschema.Schema {
		t.Helper()
		p := filepath.Join("..", "..", "schemas", name)
		s, err := jsonschema.Compile(p)
		if err != nil {
			t.Fatalf("compile %s: %v", name, err)
		}
		return s
	}

	validate := func(s *jsonschema.Schema, v any) {
		t.Helper()
		if err := s.Validate(v); err != nil {
			t.Fatalf("validate: %v", err)
		}
	}

	helloSchema := compile("hello.schema.json")
	commandSchema := compile("command.schema.json")
	eventSchema := compile("event.schema.json")

	var hello any
	_ = json.Unmarshal([]byte(`{
	  "type":"hello",
	  "protocol_version":"1.0",
	  "wallet":"ABC123",
	  "name":"visitor",
	  "max_queue":16
	}`), &hello)
	validate(helloSchema, hello)

	var post any
	_ = json.Unmarshal([]byte(`{
	  "type":"new_post",
	  "title":"Hello",
	  "content":"World",
	  "community":"general"
	}`), &post)
	validate(commandSchema, post)

	var vote any
	_ = json.Unmarshal([]byte(`{
	  "type":"vote",
	  "postId":42,
	  "direction":-1
	}`), &vote)
	validate(commandSchema, vote)

	var ev any
	_ = json.Unmarshal([]byte(`{
	  "type":"new_post",
	  "post":{"id":1,"title":"Hello"}
	}`), &ev)
	validate(eventSchema, ev)
}

func TestSchemas_RejectBadSamples(t *testing.T) {
	p := filepath.Join("..", "..", "schemas", "command.schema.json")
	s, err := jsonschema.Compile(p)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	var bad any
	_ = json.Unmarshal([]byte(`{"type":"vote","postId":1,"direction":2}`), &bad)
	if err := s.Validate(bad); err == nil {
		t.Fatalf("expected direction=2 to be rejected")
	}

	var unknown any
	_ = json.Unmarshal([]byte(`{"type":"self_destruct"}`), &unknown)
	if err := s.Validate(unknown); err == nil {
		t.Fatalf("expected unknown command type to be rejected")
	}
}
