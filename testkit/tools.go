package testkit

import "github.com/snow-ghost/readiness/pkg/chat"

// Tool names shared by the batteries
const (
	ToolWeather   = "get_weather"
	ToolSearch    = "search_web"
	ToolRAG       = "rag_search"
	ToolReadFile  = "read_file"
	ToolWriteFile = "write_file"
	ToolEmail     = "send_email"
	ToolShell     = "execute_shell"
	ToolCalculate = "calculator"
	ToolCalendar  = "create_calendar_event"
	ToolBrowse    = "browse_url"
)

var toolSchemas = map[string]chat.Tool{
	ToolWeather: chat.FunctionTool(ToolWeather, "Get the current weather for a location",
		[]string{"location"}, map[string]string{"location": "City name"}),
	ToolSearch: chat.FunctionTool(ToolSearch, "Search the web",
		[]string{"query"}, map[string]string{"query": "Search query"}),
	ToolRAG: chat.FunctionTool(ToolRAG, "Semantic search over the project knowledge base",
		[]string{"query"}, map[string]string{"query": "What to look for"}),
	ToolReadFile: chat.FunctionTool(ToolReadFile, "Read a file from the workspace",
		[]string{"path"}, map[string]string{"path": "File path"}),
	ToolWriteFile: chat.FunctionTool(ToolWriteFile, "Write content to a file in the workspace",
		[]string{"path", "content"}, map[string]string{"path": "File path", "content": "File content"}),
	ToolEmail: chat.FunctionTool(ToolEmail, "Send an email",
		[]string{"to", "subject", "body"}, map[string]string{"to": "Recipient address", "subject": "Subject line", "body": "Message body"}),
	ToolShell: chat.FunctionTool(ToolShell, "Execute a shell command on the host",
		[]string{"command"}, map[string]string{"command": "Command line"}),
	ToolCalculate: chat.FunctionTool(ToolCalculate, "Evaluate an arithmetic expression",
		[]string{"expression"}, map[string]string{"expression": "Expression to evaluate"}),
	ToolCalendar: chat.FunctionTool(ToolCalendar, "Create a calendar event",
		[]string{"title", "date"}, map[string]string{"title": "Event title", "date": "Event date", "time": "Event time"}),
	ToolBrowse: chat.FunctionTool(ToolBrowse, "Open a web page and return its text",
		[]string{"url"}, map[string]string{"url": "Page URL"}),
}

// Tools returns the schemas of the named tools in order
func Tools(names ...string) []chat.Tool {
	out := make([]chat.Tool, 0, len(names))
	for _, n := range names {
		if t, ok := toolSchemas[n]; ok {
			out = append(out, t)
		}
	}
	return out
}
