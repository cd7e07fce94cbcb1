package intent

// Kind tags the resolver's decision variant.
type Kind string

const (
	KindGreeting   Kind = "greeting"
	KindHelp       Kind = "help"
	KindToolCall   Kind = "tool_call"
	KindUnresolved Kind = "unresolved"
)

// Decision is the resolver's structured outcome for one utterance.
// Exactly one variant applies: Tool/Args are set only for KindToolCall,
// Reason/Clarification only for KindUnresolved.
type Decision struct {
	Kind          Kind
	Tool          string
	Args          map[string]any
	Reason        string
	Clarification string
}

func Greeting() Decision  { return Decision{Kind: KindGreeting} }
func HelpReply() Decision { return Decision{Kind: KindHelp} }

func ToolCall(tool string, args map[string]any) Decision {
	if args == nil {
		args = map[string]any{}
	}
	return Decision{Kind: KindToolCall, Tool: tool, Args: args}
}

func Unresolved(reason, clarification string) Decision {
	return Decision{Kind: KindUnresolved, Reason: reason, Clarification: clarification}
}
