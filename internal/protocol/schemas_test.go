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
	welcomeSchema := compile("welcome.schema.json")
	requestSchema := compile("request.schema.json")
	ackSchema := compile("ack.schema.json")
	eventSchema := compile("event.schema.json")

	var hello any
	_ = json.Unmarshal([]byte(`{
	  "type":"HELLO",
	  "protocol_version":"1.0",
	  "name":"peer1",
	  "auth":{"resume_token":"2d1f0c8a"}
	}`), &hello)
	validate(helloSchema, hello)

	var welcome any
	_ = json.Unmarshal([]byte(`{
	  "type":"WELCOME",
	  "protocol_version":"1.0",
	  "session_id":"7c9e6679-7425-40de-944b-e07fc1f90ae7",
	  "participant_id":3,
	  "resume_token":"b5f0ccf3",
	  "phase":"ACTIVE",
	  "params":{
	    "tick_rate_hz":20,
	    "session_clock_ms":300000,
	    "join_grace_ms":5000,
	    "disconnect_grace_ms":5000,
	    "dedupe_window_ms":500
	  },
	  "roster":[
	    {"id":1,"name":"alice","role":"HUNTER","alive":true,"spawn":{"area":"command","slot":0,"x":4,"z":4}},
	    {"id":2,"name":"bob","role":"INFILTRATOR","alive":true,"spawn":{"area":"docks","slot":1,"x":44,"z":18}},
	    {"id":-1,"role":"","alive":false,"extra":true,"spawn":{"area":"warrens","slot":2,"x":34,"z":76}}
	  ]
	}`), &welcome)
	validate(welcomeSchema, welcome)

	var request any
	_ = json.Unmarshal([]byte(`{
	  "type":"REQUEST",
	  "protocol_version":"1.0",
	  "req_id":"R42",
	  "kind":"ELIMINATION_REPORT",
	  "target_id":2,
	  "target_was_hunter":false
	}`), &request)
	validate(requestSchema, request)

	var ack any
	_ = json.Unmarshal([]byte(`{
	  "type":"ACK",
	  "protocol_version":"1.0",
	  "ack_for":"R42",
	  "accepted":true,
	  "tick":180
	}`), &ack)
	validate(ackSchema, ack)

	var ev any
	_ = json.Unmarshal([]byte(`{
	  "type":"EVENT",
	  "protocol_version":"1.0",
	  "seq":17,
	  "tick":180,
	  "kind":"ELIMINATION_CONFIRMED",
	  "data":{"target_id":2,"target_was_hunter":false,"reporter_id":1}
	}`), &ev)
	validate(eventSchema, ev)
}

func TestSchemas_RejectBadSamples(t *testing.T) {
	compile := func(name string) *jsonschema.Schema {
		t.Helper()
		s, err := jsonschema.Compile(filepath.Join("..", "..", "schemas", name))
		if err != nil {
			t.Fatalf("compile %s: %v", name, err)
		}
		return s
	}

	requestSchema := compile("request.schema.json")
	var badKind any
	_ = json.Unmarshal([]byte(`{
	  "type":"REQUEST",
	  "protocol_version":"1.0",
	  "req_id":"R1",
	  "kind":"TELEPORT"
	}`), &badKind)
	if err := requestSchema.Validate(badKind); err == nil {
		t.Fatalf("unknown request kind validated")
	}

	eventSchema := compile("event.schema.json")
	var noSeq any
	_ = json.Unmarshal([]byte(`{
	  "type":"EVENT",
	  "protocol_version":"1.0",
	  "tick":1,
	  "kind":"PHASE_CHANGED"
	}`), &noSeq)
	if err := eventSchema.Validate(noSeq); err == nil {
		t.Fatalf("event without seq validated")
	}
}
