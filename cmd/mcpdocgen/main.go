package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/gnucleus/gnucleus-mcp/internal/mcp"
)

func main() {
	defs := mcp.ToolDefinitions()

	fmt.Fprintln(os.Stdout, "# MCP Tools (Generated)")
	fmt.Fprintln(os.Stdout)
	fmt.Fprintln(os.Stdout, "This file is generated from `internal/mcp/server.go`.")
	fmt.Fprintln(os.Stdout)

	for _, d := range defs {
		fmt.Fprintf(os.Stdout, "- `%s`\n", d.Name)
		if d.Description != "" {
			fmt.Fprintf(os.Stdout, "  - Description: %s\n", d.Description)
		}

		schema, _ := d.InputSchema.(map[string]any)
		props, _ := schema["properties"].(map[string]any)
		requiredRaw, _ := schema["required"].([]string)
		requiredSet := make(map[string]bool, len(requiredRaw))
		for _, r := range requiredRaw {
			requiredSet[r] = true
		}

		keys := make([]string, 0, len(props))
		for k := range props {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		if len(keys) > 0 {
			fmt.Fprintln(os.Stdout, "  - Input:")
			for _, k := range keys {
				req := "optional"
				if requiredSet[k] {
					req = "required"
				}
				desc := ""
				if prop, ok := props[k].(map[string]any); ok {
					if s, ok := prop["description"].(string); ok && s != "" {
						desc = ": " + s
					}
				}
				fmt.Fprintf(os.Stdout, "    - `%s` (%s)%s\n", k, req, desc)
			}
		}
		fmt.Fprintln(os.Stdout)
	}
}
