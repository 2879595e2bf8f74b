package tools

import (
	"fmt"
	"strings"
)

// Plan mode permits shell tools only for a fixed allow-list of read-only
// commands. The raw command string must also be free of output redirection
// and pipes: `ls -la > out.txt` mutates state even though `ls` is allowed.

var readOnlyBinaries = map[string]bool{
	"ls":     true,
	"cat":    true,
	"head":   true,
	"tail":   true,
	"grep":   true,
	"rg":     true,
	"find":   true,
	"pwd":    true,
	"wc":     true,
	"which":  true,
	"whoami": true,
	"id":     true,
	"stat":   true,
	"file":   true,
	"tree":   true,
	"du":     true,
}

var readOnlyGitSubcommands = map[string]bool{
	"status": true,
	"log":    true,
	"diff":   true,
	"show":   true,
	"branch": true,
	"blame":  true,
	"remote": true,
}

// forbiddenShellTokens reject any command that could write through the shell
// regardless of the binary being allow-listed.
var forbiddenShellTokens = []string{">>", ">", "|"}

// ClassifyReadOnlyCommand reports whether a raw shell command is permitted in
// plan mode, with a human-readable reason when it is not.
func ClassifyReadOnlyCommand(raw string) (bool, string) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return false, "empty command"
	}

	for _, tok := range forbiddenShellTokens {
		if strings.Contains(trimmed, tok) {
			return false, fmt.Sprintf("command contains %q which can modify state", tok)
		}
	}
	// Command chaining can smuggle a write after a read-only prefix.
	for _, tok := range []string{"&&", ";", "$("} {
		if strings.Contains(trimmed, tok) {
			return false, fmt.Sprintf("command contains %q which can chain further commands", tok)
		}
	}

	fields := strings.Fields(trimmed)
	binary := fields[0]

	if binary == "git" {
		if len(fields) < 2 {
			return false, "bare git is not a read-only query"
		}
		if readOnlyGitSubcommands[fields[1]] {
			return true, ""
		}
		return false, fmt.Sprintf("git %s is not a read-only query", fields[1])
	}

	if readOnlyBinaries[binary] {
		return true, ""
	}
	return false, fmt.Sprintf("%s is not on the plan-mode allow-list", binary)
}

// commandFromArgs extracts the raw command string a shell tool would run.
func commandFromArgs(args map[string]any) string {
	if cmd, ok := args["command"].(string); ok {
		return cmd
	}
	if script, ok := args["script"].(string); ok {
		return script
	}
	return ""
}
