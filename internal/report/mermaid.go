package report

import (
	"fmt"
	"strings"

	"github.com/user/dnslogd/internal/model"
)

// GenerateTypePie creates a Mermaid pie chart of the query type mix.
func GenerateTypePie(types []TypeShare) string {
	if len(types) == 0 {
		return ""
	}

	var sb strings.Builder

	sb.WriteString("```mermaid\n")
	sb.WriteString("pie showData\n")
	sb.WriteString("    title Query Types\n")
	for _, t := range types {
		sb.WriteString(fmt.Sprintf("    %q : %d\n", t.Type, t.Count))
	}
	sb.WriteString("```\n")

	return sb.String()
}

// GenerateClientFlow creates a Mermaid flowchart of the busiest clients
// feeding the resolver, edges labelled with query counts.
func GenerateClientFlow(clients []model.ClientCount, names map[string]string) string {
	if len(clients) == 0 {
		return ""
	}

	var sb strings.Builder

	sb.WriteString("```mermaid\n")
	sb.WriteString("flowchart LR\n")
	sb.WriteString("    Resolver((ctrld)):::resolver\n\n")

	for _, c := range clients {
		nodeID := ipToNodeID(c.ClientIP)
		label := c.ClientIP
		if name := names[c.ClientIP]; name != "" {
			label = fmt.Sprintf("%s\\n%s", shortenName(name), c.ClientIP)
		}
		sb.WriteString(fmt.Sprintf("    %s[%s]\n", nodeID, label))
		sb.WriteString(fmt.Sprintf("    %s -->|%d| Resolver\n", nodeID, c.Count))
	}

	sb.WriteString("\n")
	sb.WriteString("    classDef resolver fill:#87CEEB\n")
	sb.WriteString("```\n")

	return sb.String()
}

func shortenName(name string) string {
	if len(name) > 20 {
		return name[:17] + "..."
	}
	return name
}

func ipToNodeID(ip string) string {
	// Mermaid node IDs cannot contain dots
	return "C" + strings.ReplaceAll(ip, ".", "_")
}
