package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/fyrsmithlabs/schemadoc/internal/llm"
	"github.com/fyrsmithlabs/schemadoc/internal/registry"
	"github.com/fyrsmithlabs/schemadoc/internal/schema"
)

// userEventsJSON has 15 undocumented elements: the root object and 14
// properties.
const userEventsJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "event_id": {"type": "string", "format": "uuid"},
    "user_id": {"type": "string"},
    "event_type": {"type": "string", "enum": ["login", "logout", "page_view"]},
    "occurred_at": {"type": "string", "format": "date-time"},
    "session_id": {"type": "string"},
    "ip_address": {"type": "string"},
    "user_agent": {"type": "string"},
    "page_url": {"type": "string"},
    "referrer": {"type": ["string", "null"]},
    "device_type": {"type": "string"},
    "country_code": {"type": "string"},
    "app_version": {"type": "string"},
    "is_authenticated": {"type": "boolean", "default": false},
    "metadata": {"type": "object"}
  }
}`

// orderCreatedAvro has 12 undocumented elements: the record and 11 fields.
const orderCreatedAvro = `{
  "type": "record",
  "name": "OrderCreated",
  "namespace": "com.example.orders",
  "fields": [
    {"name": "order_id", "type": "string"},
    {"name": "customer_id", "type": "string"},
    {"name": "created_at", "type": {"type": "long", "logicalType": "timestamp-millis"}},
    {"name": "currency", "type": "string", "default": "USD"},
    {"name": "subtotal", "type": "double"},
    {"name": "tax", "type": "double"},
    {"name": "total", "type": "double"},
    {"name": "item_count", "type": "int"},
    {"name": "channel", "type": "string"},
    {"name": "coupon_code", "type": ["null", "string"], "default": null},
    {"name": "shipping_method", "type": "string"}
  ]
}`

// inventoryAvro is fully documented.
const inventoryAvro = `{
  "type": "record",
  "name": "InventoryUpdated",
  "doc": "Stock level snapshot emitted by the warehouse service after every adjustment.",
  "fields": [
    {"name": "sku", "type": "string", "doc": "Stock keeping unit code assigned by the merchandising catalog."},
    {"name": "on_hand", "type": "int", "doc": "Units physically available in the warehouse after the adjustment."}
  ]
}`

// memSource is an in-memory SchemaSource.
type memSource struct {
	mu      sync.Mutex
	schemas map[string]*registry.Schema
	listErr error
	getErr  map[string]error
	gets    int
}

// pingSource adds a connectivity check to memSource.
type pingSource struct {
	*memSource
	err   error
	pings int
}

func (p *pingSource) Ping(ctx context.Context) error {
	p.pings++
	return p.err
}

func newMemSource() *memSource {
	return &memSource{schemas: make(map[string]*registry.Schema), getErr: make(map[string]error)}
}

func (m *memSource) add(subject string, f schema.Format, raw string) *memSource {
	m.schemas[subject] = &registry.Schema{Subject: subject, Version: 1, ID: len(m.schemas) + 1, Format: f, Definition: raw}
	return m
}

func (m *memSource) ListSubjects(ctx context.Context) ([]string, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []string
	for s := range m.schemas {
		out = append(out, s)
	}
	for s := range m.getErr {
		if _, ok := m.schemas[s]; !ok {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *memSource) GetSchema(ctx context.Context, subject string) (*registry.Schema, error) {
	m.mu.Lock()
	m.gets++
	m.mu.Unlock()
	if err, ok := m.getErr[subject]; ok {
		return nil, err
	}
	s, ok := m.schemas[subject]
	if !ok {
		return nil, fmt.Errorf("%w: %s", registry.ErrNotFound, subject)
	}
	cp := *s
	return &cp, nil
}

// scenarioSource holds the three subjects of the example run.
func scenarioSource() *memSource {
	return newMemSource().
		add("user-events-value", schema.FormatJSONSchema, userEventsJSON).
		add("order-created-value", schema.FormatAvro, orderCreatedAvro).
		add("inventory-updated-value", schema.FormatAvro, inventoryAvro)
}

var promptPathRe = regexp.MustCompile(`(?m)^- Path: (\S+)$`)

// promptPaths returns the element paths listed in a batch prompt.
func promptPaths(p llm.Prompt) []string {
	var out []string
	for _, m := range promptPathRe.FindAllStringSubmatch(p.User, -1) {
		out = append(out, m[1])
	}
	return out
}

// scriptedModel answers every listed path through answer. It is safe for
// concurrent use.
type scriptedModel struct {
	mu      sync.Mutex
	prompts []llm.Prompt
	answer  func(path string, refine bool) GeneratedDoc
}

func newScriptedModel(answer func(path string, refine bool) GeneratedDoc) *scriptedModel {
	if answer == nil {
		answer = func(path string, _ bool) GeneratedDoc { return goodDoc(path) }
	}
	return &scriptedModel{answer: answer}
}

func (m *scriptedModel) Generate(ctx context.Context, p llm.Prompt) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	m.prompts = append(m.prompts, p)
	m.mu.Unlock()

	refine := strings.Contains(p.User, "Previous Attempt:")
	var resp GenerationResponse
	for _, path := range promptPaths(p) {
		d := m.answer(path, refine)
		d.Path = path
		resp.Elements = append(resp.Elements, d)
	}
	b, err := json.Marshal(resp)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (m *scriptedModel) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

// goodDoc passes every review predicate and is unique per path.
func goodDoc(path string) GeneratedDoc {
	name := schema.ParsePath(path).Last()
	return GeneratedDoc{
		Description: fmt.Sprintf("Captures the %s reported by the producing service when the event is emitted.", name),
		Confidence:  "high",
	}
}

// metadataGenericOnce answers "metadata" generically on the first pass.
func metadataGenericOnce(path string, refine bool) GeneratedDoc {
	if strings.HasSuffix(path, ".metadata") && !refine {
		return GeneratedDoc{Description: "Contains the metadata.", Confidence: "medium"}
	}
	return goodDoc(path)
}

// capturePublisher records what it was asked to publish.
type capturePublisher struct {
	mu    sync.Mutex
	calls int
	docs  map[string]Document
	err   error
}

func (p *capturePublisher) Name() string { return "capture" }

func (p *capturePublisher) Publish(ctx context.Context, summary *RunSummary, docs map[string]Document) (ChangeSet, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return ChangeSet{}, p.err
	}
	p.docs = docs
	cs := ChangeSet{Reference: "refs/heads/schemadoc/" + summary.RunID, Branch: "schemadoc/" + summary.RunID}
	for _, d := range docs {
		cs.Files = append(cs.Files, d.Path)
	}
	return cs, nil
}

// testOptions returns validated defaults.
func testOptions() Options {
	return DefaultOptions()
}

// newJob builds an analyzed job with n undocumented fields under one
// record.
func newJob(subject string, n int) *schema.Job {
	root := schema.Path{subject}
	catalog := schema.Catalog{{
		Path:        root,
		Kind:        schema.KindRecord,
		Name:        subject,
		Type:        "record",
		ExistingDoc: "Event envelope produced for " + subject + " consumers downstream.",
		Status:      schema.StatusDocumented,
	}}
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("field_%d", i+1)
		catalog = append(catalog, &schema.Element{
			Path:       root.Child(name),
			Kind:       schema.KindField,
			Name:       name,
			Type:       "string",
			Parent:     subject,
			ParentPath: root,
			Status:     schema.StatusUndocumented,
		})
	}
	catalog.LinkSiblings()
	return &schema.Job{Subject: subject, Format: schema.FormatAvro, Version: 1, Catalog: catalog}
}
