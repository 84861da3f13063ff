// Package capability defines the static catalog of operations the brain may
// invoke: each one named, described, classified read or write, and backed by
// a typed parameter struct validated before dispatch.
package capability

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/selam-labs/selam/internal/llm"
)

// Classification separates side-effect-free queries from delegated actions.
type Classification string

const (
	ClassRead  Classification = "read"
	ClassWrite Classification = "write"
)

// Descriptor describes one capability.
type Descriptor struct {
	Name        string
	Description string
	Class       Classification
	// Schema is the JSON schema properties block shown to the brain.
	Schema map[string]interface{}
	// newParams returns a fresh typed parameter struct for decoding.
	newParams func() Params
}

// ErrUnknown is returned when the brain requests a capability that is not
// in the catalog.
var ErrUnknown = fmt.Errorf("unknown capability")

// catalog is built once at init and never mutated afterwards.
var catalog = []Descriptor{
	{
		Name:        "search_campaigns",
		Description: "Search active donation campaigns by free-text query and/or category.",
		Class:       ClassRead,
		Schema: map[string]interface{}{
			"query":    map[string]interface{}{"type": "string", "description": "Free-text search over titles and descriptions"},
			"category": map[string]interface{}{"type": "string", "enum": Categories},
			"limit":    map[string]interface{}{"type": "number", "description": "Max results, default 5"},
		},
		newParams: func() Params { return &SearchCampaignsParams{} },
	},
	{
		Name:        "get_campaign",
		Description: "Get full details for one campaign by its numeric id.",
		Class:       ClassRead,
		Schema: map[string]interface{}{
			"campaign_id": map[string]interface{}{"type": "number"},
		},
		newParams: func() Params { return &GetCampaignParams{} },
	},
	{
		Name:        "donation_history",
		Description: "List the caller's recent donations.",
		Class:       ClassRead,
		Schema: map[string]interface{}{
			"limit": map[string]interface{}{"type": "number", "description": "Max results, default 10"},
		},
		newParams: func() Params { return &DonationHistoryParams{} },
	},
	{
		Name:        "campaign_stats",
		Description: "Get fundraising stats for a campaign, or platform-wide stats when campaign_id is omitted.",
		Class:       ClassRead,
		Schema: map[string]interface{}{
			"campaign_id": map[string]interface{}{"type": "number"},
		},
		newParams: func() Params { return &CampaignStatsParams{} },
	},
	{
		Name:        "help",
		Description: "Describe what the assistant can do.",
		Class:       ClassRead,
		Schema:      map[string]interface{}{},
		newParams:   func() Params { return &HelpParams{} },
	},
	{
		Name:        "donate",
		Description: "Donate an amount to a campaign on behalf of the caller.",
		Class:       ClassWrite,
		Schema: map[string]interface{}{
			"campaign_id": map[string]interface{}{"type": "number"},
			"amount":      map[string]interface{}{"type": "number"},
			"currency":    map[string]interface{}{"type": "string", "enum": []string{"ETB", "USD"}},
			"anonymous":   map[string]interface{}{"type": "boolean"},
		},
		newParams: func() Params { return &DonateParams{} },
	},
	{
		Name:        "create_campaign",
		Description: "Create a new donation campaign owned by the caller.",
		Class:       ClassWrite,
		Schema: map[string]interface{}{
			"title":       map[string]interface{}{"type": "string"},
			"description": map[string]interface{}{"type": "string"},
			"category":    map[string]interface{}{"type": "string", "enum": Categories},
			"goal":        map[string]interface{}{"type": "number"},
		},
		newParams: func() Params { return &CreateCampaignParams{} },
	},
	{
		Name:        "withdraw",
		Description: "Request a withdrawal of raised funds from a campaign the caller owns.",
		Class:       ClassWrite,
		Schema: map[string]interface{}{
			"campaign_id": map[string]interface{}{"type": "number"},
			"amount":      map[string]interface{}{"type": "number"},
		},
		newParams: func() Params { return &WithdrawParams{} },
	},
	{
		Name:        "submit_report",
		Description: "Submit a progress/verification report for a campaign.",
		Class:       ClassWrite,
		Schema: map[string]interface{}{
			"campaign_id": map[string]interface{}{"type": "number"},
			"report":      map[string]interface{}{"type": "string"},
		},
		newParams: func() Params { return &SubmitReportParams{} },
	},
	{
		Name:        "register_organization",
		Description: "Register the caller's organization on the platform.",
		Class:       ClassWrite,
		Schema: map[string]interface{}{
			"name":          map[string]interface{}{"type": "string"},
			"contact_email": map[string]interface{}{"type": "string"},
		},
		newParams: func() Params { return &RegisterOrganizationParams{} },
	},
	{
		Name:        "change_language",
		Description: "Change the caller's preferred reply language.",
		Class:       ClassWrite,
		Schema: map[string]interface{}{
			"language": map[string]interface{}{"type": "string", "enum": Languages},
		},
		newParams: func() Params { return &ChangeLanguageParams{} },
	},
}

var byName = func() map[string]Descriptor {
	m := make(map[string]Descriptor, len(catalog))
	for _, d := range catalog {
		m[d.Name] = d
	}
	return m
}()

// List returns all capability descriptors. Pure, deterministic, no I/O.
func List() []Descriptor {
	out := make([]Descriptor, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup finds a descriptor by name.
func Lookup(name string) (Descriptor, bool) {
	d, ok := byName[name]
	return d, ok
}

// Definitions converts the catalog to brain tool definitions.
func Definitions() []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, 0, len(catalog))
	for _, d := range catalog {
		defs = append(defs, llm.ToolDefinition{
			Name:        d.Name,
			Description: d.Description,
			InputSchema: d.Schema,
		})
	}
	return defs
}

// Decode parses raw brain-supplied arguments into the capability's typed
// parameter struct and validates them. Unknown fields are rejected.
func Decode(name string, raw json.RawMessage) (Params, error) {
	d, ok := Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknown, name)
	}

	p := d.newParams()
	if len(raw) > 0 && !bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(p); err != nil {
			return nil, &ValidationError{Capability: name, Reason: err.Error()}
		}
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// HelpText is the deterministic capability summary used by the help
// capability and the fallback pipeline's "I didn't understand" reply.
func HelpText() string {
	var b strings.Builder
	b.WriteString("Here's what I can do:\n")
	for _, d := range catalog {
		b.WriteString("• ")
		b.WriteString(d.Name)
		b.WriteString(" — ")
		b.WriteString(d.Description)
		b.WriteString("\n")
	}
	b.WriteString("\nTry things like \"find water campaigns\" or \"donate 50 birr to campaign 3\".")
	return b.String()
}
