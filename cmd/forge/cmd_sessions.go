package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"planforge/internal/store"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List and inspect past sessions",
	RunE:  runListSessions,
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show [session-id]",
	Short: "Print a session transcript",
	Args:  cobra.ExactArgs(1),
	RunE:  runShowSession,
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete [session-id]",
	Short: "Delete a session and its transcript",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeleteSession,
}

func init() {
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)
}

func openStore() (*store.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return store.New(resolvePath(cfg.Storage.DatabasePath))
}

func runListSessions(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	sessions, err := st.ListSessions()
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("no sessions yet")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tMODE\tTOKENS\tCOST\tUPDATED")
	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t$%.4f\t%s\n",
			s.ID[:8], s.Title, s.Mode, s.InputTokens, s.OutputTokens,
			s.Cost, s.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func runShowSession(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	id, err := resolveSessionID(st, args[0])
	if err != nil {
		return err
	}

	msgs, err := st.GetMessages(id)
	if err != nil {
		return err
	}
	for _, m := range msgs {
		fmt.Printf("[%s] %s\n", m.Role, m.Content)
		if m.ToolCalls != "" {
			fmt.Printf("       tool calls: %s\n", m.ToolCalls)
		}
	}
	return nil
}

func runDeleteSession(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	id, err := resolveSessionID(st, args[0])
	if err != nil {
		return err
	}
	if err := st.DeleteSession(id); err != nil {
		return err
	}
	fmt.Println("deleted session", id)
	return nil
}

// resolveSessionID accepts a full id or an unambiguous prefix.
func resolveSessionID(st *store.Store, prefix string) (string, error) {
	sessions, err := st.ListSessions()
	if err != nil {
		return "", err
	}
	var match string
	for _, s := range sessions {
		if s.ID == prefix {
			return s.ID, nil
		}
		if len(prefix) >= 4 && len(s.ID) >= len(prefix) && s.ID[:len(prefix)] == prefix {
			if match != "" {
				return "", fmt.Errorf("session prefix %q is ambiguous", prefix)
			}
			match = s.ID
		}
	}
	if match == "" {
		return "", fmt.Errorf("no session matches %q", prefix)
	}
	return match, nil
}
