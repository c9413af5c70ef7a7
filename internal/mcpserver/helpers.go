package mcpserver

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"nexus/api/internal/app"
)

// intArg extracts an integer argument; JSON numbers arrive as float64.
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}

func errorResult(action string, err error) *mcp.CallToolResult {
	var domainErr *app.DomainError
	if errors.As(err, &domainErr) {
		return mcp.NewToolResultError(fmt.Sprintf("%s failed: %s (%s)", action, domainErr.Message, domainErr.Code))
	}
	return mcp.NewToolResultError(fmt.Sprintf("%s failed: %v", action, err))
}

func truncate(text string, max int) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "..."
}

func tagList(tags []app.TagView) string {
	if len(tags) == 0 {
		return "-"
	}
	names := make([]string, 0, len(tags))
	for _, tag := range tags {
		names = append(names, tag.Name)
	}
	return strings.Join(names, ", ")
}
