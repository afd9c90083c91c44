package gnucleus

import (
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
)

// UnnamedPart labels assembly parts that arrive without a part_name.
const UnnamedPart = "(unnamed part)"

// Response is the decoded text_to_cad success payload. Every field has a
// defined default so callers never probe the raw JSON themselves.
type Response struct {
	ID             string
	Message        string
	IsAssembly     bool
	DesignSpec     DesignSpec
	AssembliesInfo AssembliesInfo
}

type DesignSpec struct {
	KeyParameters Parameters
	Conditions    string
	Description   string
}

type AssembliesInfo struct {
	RootAssembly string
	Parts        []Part
}

type Part struct {
	Name          string
	KeyParameters Parameters
}

// Parameters holds key_parameters, which upstream sends either as
// preformatted text or as a structured JSON value.
type Parameters struct {
	value gjson.Result
}

// IsZero reports whether the parameters are absent or carry nothing to show.
func (p Parameters) IsZero() bool { return !truthy(p.value) }

// IsText reports whether upstream sent the parameters as a JSON string.
func (p Parameters) IsText() bool { return p.value.Type == gjson.String }

// String returns trimmed text for string parameters and canonical JSON for
// structured ones.
func (p Parameters) String() string {
	if p.IsZero() {
		return ""
	}
	if p.IsText() {
		return strings.TrimSpace(p.value.Str)
	}
	return canonicalJSON([]byte(p.value.Raw))
}

// ParseResponse reads a response body leniently: fields of the wrong JSON
// type fall back to their defaults instead of failing the whole decode.
func ParseResponse(body []byte) *Response {
	root := gjson.ParseBytes(body)

	resp := &Response{
		Message:    text(root.Get("message")),
		IsAssembly: truthy(root.Get("is_assembly")),
	}
	if id := root.Get("id"); id.Type == gjson.String {
		resp.ID = id.Str
	}

	spec := root.Get("design_spec")
	resp.DesignSpec = DesignSpec{
		KeyParameters: Parameters{value: spec.Get("key_parameters")},
		Conditions:    text(spec.Get("conditions")),
		Description:   text(spec.Get("description")),
	}

	asm := root.Get("assemblies_info")
	resp.AssembliesInfo.RootAssembly = text(asm.Get("root_assembly"))
	if parts := asm.Get("parts"); parts.IsArray() {
		for _, p := range parts.Array() {
			name := text(p.Get("part_name"))
			if name == "" {
				name = UnnamedPart
			}
			resp.AssembliesInfo.Parts = append(resp.AssembliesInfo.Parts, Part{
				Name:          name,
				KeyParameters: Parameters{value: p.Get("key_parameters")},
			})
		}
	}
	return resp
}

// HasValidID reports whether the id carries the gnucleus- prefix.
func (r *Response) HasValidID() bool {
	return r.ID != "" && strings.HasPrefix(r.ID, idPrefix)
}

// isEmpty treats null and every falsy JSON value as no response at all.
func isEmpty(body []byte) bool {
	return !truthy(gjson.ParseBytes(body))
}

func truthy(v gjson.Result) bool {
	switch v.Type {
	case gjson.True:
		return true
	case gjson.String:
		return v.Str != ""
	case gjson.Number:
		return v.Num != 0
	case gjson.JSON:
		nonEmpty := false
		v.ForEach(func(_, _ gjson.Result) bool {
			nonEmpty = true
			return false
		})
		return nonEmpty
	default:
		return false
	}
}

// text renders a scalar field for display. Falsy values become "" and
// structured values fall back to canonical JSON.
func text(v gjson.Result) string {
	if !truthy(v) {
		return ""
	}
	switch v.Type {
	case gjson.String:
		return v.Str
	case gjson.JSON:
		return canonicalJSON([]byte(v.Raw))
	default:
		return v.Raw
	}
}

// canonicalJSON renders compact JSON with object keys sorted.
func canonicalJSON(raw []byte) string {
	sorted := pretty.PrettyOptions(raw, &pretty.Options{SortKeys: true})
	return string(pretty.Ugly(sorted))
}
