package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/schemadoc/internal/schema"
)

func field(name, typ string) *schema.Element {
	root := schema.Path{"OrderCreated"}
	return &schema.Element{
		Path:       root.Child(name),
		Kind:       schema.KindField,
		Name:       name,
		Type:       typ,
		Parent:     "OrderCreated",
		ParentPath: root,
	}
}

func TestPredicates_Order(t *testing.T) {
	var names []string
	for _, p := range Predicates() {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{FlagGeneric, FlagTooShort, FlagLowConfidence, FlagDuplicateSibling, FlagPlaceholder}, names)
}

func TestIsGeneric(t *testing.T) {
	opts := testOptions()
	tests := []struct {
		name string
		text string
		elem *schema.Element
		want bool
	}{
		{"empty", "", field("order_id", "string"), true},
		{"stock opener", "This field stores the order id.", field("order_id", "string"), true},
		{"represents", "Represents the customer.", field("customer_id", "string"), true},
		{"restates name", "Order ID", field("order_id", "string"), true},
		{"restates name and type", "The order id string.", field("order_id", "string"), true},
		{"camel case name", "Customer id", field("customerId", "string"), true},
		{"long opener is fine", "Contains the ISO 4217 currency code used for every monetary amount on the order, defaulting to USD.", field("currency", "string"), false},
		{"specific", "Checkout channel the order was placed through, such as web or mobile.", field("channel", "string"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsGeneric(tt.text, tt.elem, &opts))
		})
	}
}

func TestIsGeneric_MaxLength(t *testing.T) {
	opts := testOptions()
	opts.GenericMaxLength = 200
	text := "Contains the ISO 4217 currency code used for every monetary amount on the order."
	assert.True(t, IsGeneric(text, field("currency", "string"), &opts))
}

func TestWords(t *testing.T) {
	assert.Equal(t, []string{"customer", "id"}, words("customerId"))
	assert.Equal(t, []string{"order", "id"}, words("order_id"))
	assert.Equal(t, []string{"nullable", "string"}, words("nullable<string>"))
	assert.Empty(t, words("--"))
}

func TestReview(t *testing.T) {
	opts := testOptions()
	tests := []struct {
		name       string
		text       string
		confidence schema.Confidence
		want       []string
	}{
		{"accepted", "Checkout channel the order was placed through, such as web or mobile.", schema.ConfidenceHigh, nil},
		{"unset confidence is medium", "Checkout channel the order was placed through, such as web or mobile.", 0, nil},
		{"generic and short", "Contains the channel.", schema.ConfidenceHigh, []string{FlagGeneric, FlagTooShort}},
		{"low confidence", "Checkout channel the order was placed through, such as web or mobile.", schema.ConfidenceLow, []string{FlagLowConfidence}},
		{"placeholder", "TODO describe the checkout channel for this order here.", schema.ConfidenceHigh, []string{FlagPlaceholder}},
		{"lorem", "Lorem ipsum dolor sit amet consectetur adipiscing.", schema.ConfidenceMedium, []string{FlagPlaceholder}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := field("channel", "string")
			e.CandidateDoc = tt.text
			e.Confidence = tt.confidence
			rc := NewReviewContext(&opts, schema.Catalog{e})
			assert.Equal(t, tt.want, Review(e, rc))
		})
	}
}

func TestReview_MinConfidenceFloor(t *testing.T) {
	opts := testOptions()
	opts.MinConfidence = schema.ConfidenceHigh

	e := field("channel", "string")
	e.CandidateDoc = "Checkout channel the order was placed through, such as web or mobile."
	e.Confidence = schema.ConfidenceMedium
	rc := NewReviewContext(&opts, schema.Catalog{e})
	assert.Equal(t, []string{FlagLowConfidence}, Review(e, rc))
}

func TestReview_DuplicateSibling(t *testing.T) {
	opts := testOptions()
	text := "Monetary amount in the order currency, rounded to two decimals."

	a := field("subtotal", "double")
	a.CandidateDoc = text
	b := field("total", "double")
	b.CandidateDoc = "  monetary amount in the ORDER currency, rounded to two decimals."
	documented := field("tax", "double")
	documented.Status = schema.StatusDocumented
	documented.ExistingDoc = "Tax charged on the subtotal, in the order currency."

	catalog := schema.Catalog{a, b, documented}
	rc := NewReviewContext(&opts, catalog)
	assert.Equal(t, []string{FlagDuplicateSibling}, Review(a, rc))
	assert.Equal(t, []string{FlagDuplicateSibling}, Review(b, rc))

	// Same text under a different parent is not a duplicate.
	other := &schema.Element{
		Path:         schema.Path{"Refund", "total"},
		Name:         "total",
		ParentPath:   schema.Path{"Refund"},
		CandidateDoc: text,
		Confidence:   schema.ConfidenceHigh,
	}
	rc = NewReviewContext(&opts, schema.Catalog{a, other})
	assert.Empty(t, Review(a, rc))
}

func TestReviewer_ReviewJob(t *testing.T) {
	opts := testOptions()
	job := newJob("orders-value", 3)
	c := job.Catalog
	for _, e := range c[1:] {
		e.Status = schema.StatusGenerated
		e.Confidence = schema.ConfidenceHigh
	}
	c[1].CandidateDoc = "Identifier assigned by the order service at checkout time."
	c[2].CandidateDoc = "TBD"
	c[3].Status = schema.StatusRefined
	c[3].Rounds = 1
	c[3].CandidateDoc = "Sales channel that captured the order, for example web or store."

	accepted, flagged, err := NewReviewer(&opts).ReviewJob(job)
	require.NoError(t, err)
	assert.Equal(t, 2, accepted)
	assert.Equal(t, 1, flagged)

	assert.Equal(t, schema.StatusAccepted, c[1].Status)
	assert.Nil(t, c[1].FlagReasons)
	assert.Equal(t, schema.StatusFlagged, c[2].Status)
	assert.Equal(t, []string{FlagTooShort, FlagPlaceholder}, c[2].FlagReasons)
	assert.Equal(t, schema.StatusAccepted, c[3].Status)
	assert.Equal(t, schema.StatusDocumented, c[0].Status)
}
