package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"planforge/internal/plan"
)

var plansCmd = &cobra.Command{
	Use:   "plans [session-id]",
	Short: "List plans, optionally for one session",
	RunE:  runListPlans,
}

var plansShowCmd = &cobra.Command{
	Use:   "show [plan-id]",
	Short: "Print a plan with its task graph",
	Args:  cobra.ExactArgs(1),
	RunE:  runShowPlan,
}

func init() {
	plansCmd.AddCommand(plansShowCmd)
}

func runListPlans(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	var plans []*plan.Document
	if len(args) > 0 {
		id, err := resolveSessionID(st, args[0])
		if err != nil {
			return err
		}
		plans, err = st.ListPlansBySession(id)
		if err != nil {
			return err
		}
	} else {
		sessions, err := st.ListSessions()
		if err != nil {
			return err
		}
		for _, s := range sessions {
			ps, err := st.ListPlansBySession(s.ID)
			if err != nil {
				return err
			}
			plans = append(plans, ps...)
		}
	}

	if len(plans) == 0 {
		fmt.Println("no plans yet")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tSTATUS\tTASKS\tUPDATED")
	for _, d := range plans {
		done, total := d.Progress()
		fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s\n",
			d.ID[:8], d.Title, d.Status, done, total,
			d.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func runShowPlan(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	d, err := st.GetPlan(args[0])
	if err != nil {
		return err
	}
	if d == nil {
		// Try prefix match across all sessions.
		sessions, err := st.ListSessions()
		if err != nil {
			return err
		}
		for _, s := range sessions {
			ps, err := st.ListPlansBySession(s.ID)
			if err != nil {
				return err
			}
			for _, p := range ps {
				if strings.HasPrefix(p.ID, args[0]) {
					d = p
				}
			}
		}
	}
	if d == nil {
		return fmt.Errorf("no plan matches %q", args[0])
	}

	done, total := d.Progress()
	fmt.Printf("%s [%s] %d/%d tasks\n", d.Title, d.Status, done, total)
	if d.Description != "" {
		fmt.Println(d.Description)
	}
	fmt.Println()
	for _, t := range d.Tasks {
		fmt.Printf("  %d. [%s] %s", t.Order, t.Status, t.Title)
		if len(t.DependsOn) > 0 {
			fmt.Printf(" (after %s)", strings.Join(t.DependsOn, ", "))
		}
		fmt.Println()
		if t.StatusReason != "" {
			fmt.Printf("     %s\n", t.StatusReason)
		}
	}
	return nil
}
