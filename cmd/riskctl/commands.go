package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/dhawalhost/riskregister/internal/department"
	"github.com/dhawalhost/riskregister/internal/identity"
	"github.com/dhawalhost/riskregister/internal/register"
	"github.com/spf13/cobra"
)

func newWhoamiCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the identity the service resolves for you",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			me, err := opts.client().Me(cmd.Context())
			if err != nil {
				return err
			}
			return renderUser(cmd, opts, me)
		},
	}
}

func newUserCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Register users and assign roles (Admin)",
	}

	var in identity.CreateInput
	create := &cobra.Command{
		Use:   "create <username>",
		Short: "Register a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Username = args[0]
			in.Role = strings.ToUpper(in.Role)
			u, err := opts.client().CreateUser(cmd.Context(), in)
			if err != nil {
				return err
			}
			return renderUser(cmd, opts, u)
		},
	}
	create.Flags().StringVar(&in.Email, "email", "", "Email")
	create.Flags().StringVar(&in.Role, "role", string(identity.KindViewer), "ADMIN, DEPARTMENT_USER or VIEWER")
	create.Flags().StringVar(&in.Department, "department", "", "Department id for DEPARTMENT_USER")

	var assign identity.AssignRoleInput
	role := &cobra.Command{
		Use:   "assign-role <user-id> <role>",
		Short: "Replace the role of a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			assign.Role = strings.ToUpper(args[1])
			u, err := opts.client().AssignRole(cmd.Context(), args[0], assign)
			if err != nil {
				return err
			}
			return renderUser(cmd, opts, u)
		},
	}
	role.Flags().StringVar(&assign.Department, "department", "", "Department id for DEPARTMENT_USER")

	cmd.AddCommand(create, role)
	return cmd
}

func renderUser(cmd *cobra.Command, opts *options, u identity.Response) error {
	return render(cmd.OutOrStdout(), opts.output, u, func(tw *tabwriter.Writer) {
		fmt.Fprintf(tw, "ID\t%s\n", u.ID)
		fmt.Fprintf(tw, "USERNAME\t%s\n", u.Username)
		fmt.Fprintf(tw, "ROLE\t%s\n", u.Role)
		if u.DepartmentID != "" {
			fmt.Fprintf(tw, "DEPARTMENT\t%s\n", u.DepartmentID)
		}
	})
}

func newRiskCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "risk",
		Short: "List, inspect and change risks",
	}

	var filter register.ListFilter
	list := &cobra.Command{
		Use:   "list",
		Short: "List risks visible to you",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := opts.client().ListRisks(cmd.Context(), filter)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), opts.output, out, func(tw *tabwriter.Writer) {
				fmt.Fprintln(tw, "ID\tDEPARTMENT\tSEVERITY\tSTATUS\tLOCKED\tVERSION\tPROBLEM")
				for _, r := range out.Risks {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\t%d\t%s\n",
						r.ID, r.DepartmentID, r.Severity, r.Status, r.Locked, r.Version, truncate(r.ExpectedProblem, 40))
				}
				fmt.Fprintf(tw, "\n%d of %d\n", len(out.Risks), out.Total)
			})
		},
	}
	list.Flags().StringVar(&filter.DepartmentID, "department", "", "Department id")
	list.Flags().StringVar(&filter.Severity, "severity", "", "LOW, MEDIUM, HIGH or CRITICAL")
	list.Flags().StringVar(&filter.Status, "status", "", "OPEN, IN_PROGRESS, RESOLVED or CLOSED")
	list.Flags().StringVar(&filter.Search, "search", "", "Text search")
	list.Flags().IntVar(&filter.Limit, "limit", 0, "Page size")
	list.Flags().IntVar(&filter.Offset, "offset", 0, "Page offset")

	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one risk",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := opts.client().GetRisk(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return renderRisk(cmd, opts, r)
		},
	}

	var in register.CreateInput
	create := &cobra.Command{
		Use:   "create",
		Short: "File a new risk",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in.Severity = strings.ToUpper(in.Severity)
			in.ResolutionDurationUnit = strings.ToUpper(in.ResolutionDurationUnit)
			r, err := opts.client().CreateRisk(cmd.Context(), in)
			if err != nil {
				return err
			}
			return renderRisk(cmd, opts, r)
		},
	}
	create.Flags().StringVar(&in.DepartmentID, "department", "", "Department id (defaults to your own)")
	create.Flags().StringVar(&in.ExpectedProblem, "problem", "", "Expected problem")
	create.Flags().StringVar(&in.Impact, "impact", "", "Impact")
	create.Flags().StringVar(&in.Severity, "severity", "MEDIUM", "LOW, MEDIUM, HIGH or CRITICAL")
	create.Flags().IntVar(&in.EstimatedResolutionDuration, "duration", 1, "Estimated resolution duration")
	create.Flags().StringVar(&in.ResolutionDurationUnit, "unit", "DAYS", "HOURS, DAYS or WEEKS")
	create.Flags().StringVar(&in.MitigationNotes, "notes", "", "Mitigation notes")
	_ = create.MarkFlagRequired("problem")
	_ = create.MarkFlagRequired("impact")

	var version int64
	var severity, notes string
	edit := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change severity or mitigation notes at a known version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch register.EditInput
			if cmd.Flags().Changed("severity") {
				s := strings.ToUpper(severity)
				patch.Severity = &s
			}
			if cmd.Flags().Changed("notes") {
				patch.MitigationNotes = &notes
			}
			r, err := opts.client().EditRisk(cmd.Context(), args[0], version, patch)
			if err != nil {
				return err
			}
			return renderRisk(cmd, opts, r)
		},
	}
	edit.Flags().Int64Var(&version, "version", 0, "Version the edit is based on")
	edit.Flags().StringVar(&severity, "severity", "", "New severity")
	edit.Flags().StringVar(&notes, "notes", "", "New mitigation notes")
	_ = edit.MarkFlagRequired("version")

	transition := &cobra.Command{
		Use:   "transition <id> <status>",
		Short: "Move a risk to the next status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := opts.client().TransitionRisk(cmd.Context(), args[0], strings.ToUpper(args[1]))
			if err != nil {
				return err
			}
			return renderRisk(cmd, opts, r)
		},
	}

	lock := &cobra.Command{
		Use:   "lock <id>",
		Short: "Lock a risk (Admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := opts.client().LockRisk(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return renderRisk(cmd, opts, r)
		},
	}

	unlock := &cobra.Command{
		Use:   "unlock <id>",
		Short: "Unlock a risk (Admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := opts.client().UnlockRisk(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return renderRisk(cmd, opts, r)
		},
	}

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a risk (Admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.client().DeleteRisk(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Risk deleted")
			return nil
		},
	}

	can := &cobra.Command{
		Use:   "can <id> <action>",
		Short: "Ask whether you may perform an action on a risk",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := opts.client().Decide(cmd.Context(), args[0], strings.ToUpper(args[1]))
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), opts.output, d, func(tw *tabwriter.Writer) {
				verdict := "DENIED"
				if d.Allowed {
					verdict = "ALLOWED"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", d.Action, verdict, d.Reason)
			})
		},
	}

	cmd.AddCommand(list, get, create, edit, transition, lock, unlock, del, can)
	return cmd
}

func renderRisk(cmd *cobra.Command, opts *options, r register.RiskResponse) error {
	return render(cmd.OutOrStdout(), opts.output, r, func(tw *tabwriter.Writer) {
		fmt.Fprintf(tw, "ID\t%s\n", r.ID)
		fmt.Fprintf(tw, "DEPARTMENT\t%s\n", r.DepartmentID)
		fmt.Fprintf(tw, "PROBLEM\t%s\n", r.ExpectedProblem)
		fmt.Fprintf(tw, "IMPACT\t%s\n", r.Impact)
		fmt.Fprintf(tw, "SEVERITY\t%s\n", r.Severity)
		fmt.Fprintf(tw, "STATUS\t%s\n", r.Status)
		fmt.Fprintf(tw, "RESOLUTION\t%d %s (%dh)\n", r.EstimatedResolutionDuration, r.ResolutionDurationUnit, r.ResolutionHours)
		if r.Locked {
			fmt.Fprintf(tw, "LOCKED BY\t%s\n", r.LockedBy)
		}
		fmt.Fprintf(tw, "VERSION\t%d\n", r.Version)
	})
}

func newDepartmentCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "department",
		Aliases: []string{"dept"},
		Short:   "Manage departments",
	}

	var all bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List departments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			depts, err := opts.client().ListDepartments(cmd.Context(), all)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), opts.output, depts, func(tw *tabwriter.Writer) {
				fmt.Fprintln(tw, "ID\tCODE\tNAME\tACTIVE")
				for _, d := range depts {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%t\n", d.ID, d.Code, d.Name, d.Active)
				}
			})
		},
	}
	list.Flags().BoolVar(&all, "all", false, "Include inactive departments")

	var in department.CreateInput
	create := &cobra.Command{
		Use:   "create",
		Short: "Register a department (Admin)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := opts.client().CreateDepartment(cmd.Context(), in)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), opts.output, d, func(tw *tabwriter.Writer) {
				fmt.Fprintf(tw, "Department created\t%s (%s)\n", d.Code, d.ID)
			})
		},
	}
	create.Flags().StringVar(&in.Code, "code", "", "Short code")
	create.Flags().StringVar(&in.Name, "name", "", "Display name")
	create.Flags().StringVar(&in.Description, "description", "", "Description")
	create.Flags().StringVar(&in.HeadName, "head", "", "Head of department")
	create.Flags().StringVar(&in.ContactEmail, "email", "", "Contact email")
	_ = create.MarkFlagRequired("code")
	_ = create.MarkFlagRequired("name")

	setActive := func(use string, active bool) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <id>",
			Short: strings.ToUpper(use[:1]) + use[1:] + " a department (Admin)",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				d, err := opts.client().SetDepartmentActive(cmd.Context(), args[0], active)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s active=%t\n", d.Code, d.Active)
				return nil
			},
		}
	}

	cmd.AddCommand(list, create, setActive("activate", true), setActive("deactivate", false))
	return cmd
}

func newAuditCmd(opts *options) *cobra.Command {
	var where string
	return &cobra.Command{
		Use:   "audit",
		Short: "Search the audit trail (Admin, Viewer)",
		Long: `Search the audit trail.

--where takes comma-separated key=value pairs, for example
  riskctl audit --where risk_id=42,outcome=DENIED`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := map[string]string{}
			for _, pair := range splitAndClean(where) {
				k, v, ok := strings.Cut(pair, "=")
				if !ok {
					return fmt.Errorf("invalid filter %q, expected key=value", pair)
				}
				filter[strings.TrimSpace(k)] = strings.TrimSpace(v)
			}
			page, err := opts.client().QueryAudit(cmd.Context(), filter)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), opts.output, page, func(tw *tabwriter.Writer) {
				fmt.Fprintln(tw, "TIME\tTYPE\tACTOR\tRISK\tACTION\tOUTCOME\tREASON")
				for _, e := range page.Entries {
					risk := "-"
					if e.RiskID != nil {
						risk = *e.RiskID
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
						e.Timestamp.Format("2006-01-02 15:04:05"), e.Type, e.ActorID, risk, e.Action, e.Outcome, e.Reason)
				}
			})
		},
	}
}

func newDashboardCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Show risk statistics for your scope",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.client().Dashboard(cmd.Context())
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), opts.output, s, func(tw *tabwriter.Writer) {
				fmt.Fprintf(tw, "SCOPE\t%s\n", s.Scope)
				fmt.Fprintf(tw, "TOTAL\t%d\n", s.Total)
				fmt.Fprintf(tw, "OPEN\t%d\n", s.Open)
				fmt.Fprintf(tw, "CRITICAL\t%d\n", s.Critical)
				fmt.Fprintf(tw, "LOCKED\t%d\n", s.Locked)
				fmt.Fprintf(tw, "AVG RESOLUTION\t%.1fh\n", s.AvgResolutionHours)
				for _, d := range s.Departments {
					fmt.Fprintf(tw, "  %s\t%d total, %d open, %d critical\n", d.Code, d.Total, d.Open, d.Critical)
				}
			})
		},
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
