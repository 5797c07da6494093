package nrmodels

import "strings"

// Mode selects which of a target's methods get wrapped.
type Mode string

const (
	// ModeAll wraps every registered method except dunder-style internals.
	ModeAll Mode = "all"
	// ModePublic wraps every method not starting with an underscore.
	ModePublic Mode = "public"
	// ModeLimited wraps the fixed CRUD and search set.
	ModeLimited Mode = "limited"
)

// Target is a statically declared ORM type whose methods can be wrapped with
// function traces. Dynamic attribute enumeration is not portable, so every
// hookable method is listed here explicitly.
type Target struct {
	// ConfigName identifies the target in trace specs.
	ConfigName string
	// Model is the name hooks are registered under in the model registry.
	Model string

	methods []string
	limited []string
}

// Methods expands mode into the concrete method names to wrap. Unknown modes
// expand to nothing.
func (t *Target) Methods(mode Mode) []string {
	switch mode {
	case ModeAll:
		return t.filtered("__")
	case ModePublic:
		return t.filtered("_")
	case ModeLimited:
		return append([]string(nil), t.limited...)
	}
	return nil
}

func (t *Target) filtered(prefix string) []string {
	var out []string
	for _, name := range t.methods {
		if !strings.HasPrefix(name, prefix) {
			out = append(out, name)
		}
	}
	return out
}

// LimitedMethods is the fixed set wrapped in limited mode: the CRUD surface
// plus the search entry points.
var LimitedMethods = []string{
	// CRUD
	"create",
	"read",
	"read_group",
	"write",
	"unlink",
	// Search
	"search",
	"search_read",
	"search_count",
}

// baseModel declares the hookable surface of the ORM base model.
var baseModel = &Target{
	ConfigName: "odoo.models.BaseModel",
	Model:      "BaseModel",
	methods: []string{
		"browse",
		"copy",
		"create",
		"default_get",
		"ensure_one",
		"exists",
		"fields_get",
		"filtered",
		"flush_model",
		"invalidate_model",
		"mapped",
		"name_create",
		"name_search",
		"onchange",
		"read",
		"read_group",
		"search",
		"search_count",
		"search_fetch",
		"search_read",
		"sorted",
		"unlink",
		"web_search_read",
		"write",
		"_create",
		"_flush",
		"_read_format",
		"_search",
		"_write",
	},
	limited: LimitedMethods,
}

// targets is the registry of recognised trace-spec identifiers. Unrecognised
// identifiers are skipped without error so specs written for newer versions
// degrade gracefully.
var targets = map[string]*Target{
	baseModel.ConfigName: baseModel,
}
