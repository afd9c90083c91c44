package gnucleus

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	idPrefix      = "gnucleus-"
	viewerBaseURL = "https://gnucleus.ai/app/viewer/"
	gears         = "⚙️⚙️⚙️"
)

// ViewerURL links to the hosted viewer for a generated artifact. rootAssembly
// is optional and narrows the link to one assembly.
func ViewerURL(id, rootAssembly string) string {
	if rootAssembly == "" {
		return viewerBaseURL + id
	}
	return viewerBaseURL + id + "/" + rootAssembly
}

// Format renders the outcome of a text_to_cad call as markdown. A non-nil err
// is rendered the same way upstream renders its own failures, as
// {"message": ...}. The output depends only on its arguments.
func Format(input string, body json.RawMessage, err error) string {
	if f := AsFailure(err); f != nil {
		body, _ = json.Marshal(f)
	}

	if isEmpty(body) {
		return fmt.Sprintf("gNucleus failed to generate CAD for '%s' and no response from server, check your GNUCLEUS_HOST and GNUCLEUS_API_KEY", input)
	}

	resp := ParseResponse(body)
	if !resp.HasValidID() {
		return fmt.Sprintf("gNucleus failed to generate CAD for '%s' and the reponse is %s ", input, canonicalJSON(body))
	}

	lines := []string{fmt.Sprintf("### gNucleus\n\n%s\n", resp.Message)}
	if resp.IsAssembly {
		lines = appendAssembly(lines, resp)
	} else {
		lines = appendSinglePart(lines, resp)
	}
	return strings.Join(lines, "\n")
}

func appendAssembly(lines []string, resp *Response) []string {
	asm := resp.AssembliesInfo
	if asm.RootAssembly != "" {
		lines = append(lines,
			fmt.Sprintf("**Assembly:** `%s`\n", asm.RootAssembly),
			fmt.Sprintf("\n%s **View the generated Root Assembly in this viewer URL:** %s\n", gears, ViewerURL(resp.ID, asm.RootAssembly)),
		)
	} else {
		lines = append(lines, fmt.Sprintf("\n%s **Unable to generated Root Assembly**. Please check your input and try again.\n", gears))
	}

	spec := resp.DesignSpec
	if !spec.KeyParameters.IsZero() {
		lines = append(lines, "**Key Parameters (assembly)**\n\n", spec.KeyParameters.String())
	}
	lines = appendConditionsAndDescription(lines, spec)

	if len(asm.Parts) > 0 {
		lines = append(lines, "\n**Parts**\n")
		for _, p := range asm.Parts {
			lines = append(lines, fmt.Sprintf("* **%s**\n", p.Name))
			if !p.KeyParameters.IsZero() {
				lines = append(lines, p.KeyParameters.String())
			}
		}
	}
	return lines
}

func appendSinglePart(lines []string, resp *Response) []string {
	spec := resp.DesignSpec
	if !spec.KeyParameters.IsZero() {
		lines = append(lines, "**Key Parameters**\n", spec.KeyParameters.String())
	}
	lines = appendConditionsAndDescription(lines, spec)
	return append(lines, fmt.Sprintf("\n%s **View the generated CAD in this viewer URL:** %s\n", gears, ViewerURL(resp.ID, "")))
}

func appendConditionsAndDescription(lines []string, spec DesignSpec) []string {
	if spec.Conditions != "" {
		lines = append(lines, fmt.Sprintf("**Conditions:** %s\n", spec.Conditions))
	}
	if spec.Description != "" {
		lines = append(lines, fmt.Sprintf("**Description:** %s\n", spec.Description))
	}
	return lines
}
