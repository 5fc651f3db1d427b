package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"callfeedback/internal/config"
	"callfeedback/internal/dataset"
	"callfeedback/internal/types"
)

func newSeedPromptsCommand(ctx *commandContext) *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "seed-prompts",
		Short: "Save the system-wide default prompts from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				path = ctx.cfg.PromptSeedPath
			}
			seed, err := config.LoadPromptSeed(path)
			if err != nil {
				return err
			}
			db, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			for _, p := range seed.Prompts {
				saved, err := db.SavePrompt(cmd.Context(), nil, p.Type, p.Content, nil)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: version %d active\n", saved.Type, saved.Version)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&path, "file", "f", "", "Prompt seed YAML (defaults to PROMPT_SEED_PATH)")
	return cmd
}

func newImportScriptCommand(ctx *commandContext) *cobra.Command {
	var (
		opening, proposal, closing string
	)
	cmd := &cobra.Command{
		Use:   "import-script <project-id> <hearing-items.xlsx>",
		Short: "Save a new talk script version with its hearing checklist from a spreadsheet",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID, err := parseID(args[0])
			if err != nil {
				return err
			}
			f, err := os.Open(args[1])
			if err != nil {
				return fmt.Errorf("open %s: %w", args[1], err)
			}
			defer f.Close()
			items, err := dataset.LoadHearingItems(f)
			if err != nil {
				return fmt.Errorf("load hearing items: %w", err)
			}

			db, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer db.Close()
			if _, err := db.GetProject(cmd.Context(), projectID); err != nil {
				return fmt.Errorf("project %d: %w", projectID, err)
			}

			script := types.TalkScript{
				ProjectID:    projectID,
				Opening:      opening,
				Proposal:     proposal,
				Closing:      closing,
				HearingItems: items,
			}
			// Phase texts not given on the command line carry over from the
			// current version.
			if cur, err := db.ActiveTalkScript(cmd.Context(), projectID); err != nil {
				return err
			} else if cur != nil {
				if script.Opening == "" {
					script.Opening = cur.Opening
				}
				if script.Proposal == "" {
					script.Proposal = cur.Proposal
				}
				if script.Closing == "" {
					script.Closing = cur.Closing
				}
			}
			saved, err := db.SaveTalkScript(cmd.Context(), script)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "project %d: talk script version %d with %d hearing items\n",
				projectID, saved.Version, len(saved.HearingItems))
			return nil
		},
	}
	cmd.Flags().StringVar(&opening, "opening", "", "Opening phase script")
	cmd.Flags().StringVar(&proposal, "proposal", "", "Proposal phase script")
	cmd.Flags().StringVar(&closing, "closing", "", "Closing phase script")
	return cmd
}

func newExportCommand(ctx *commandContext) *cobra.Command {
	var (
		out   string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "export <project-id>",
		Short: "Write a project's calls to an xlsx workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID, err := parseID(args[0])
			if err != nil {
				return err
			}
			db, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			project, err := db.GetProject(cmd.Context(), projectID)
			if err != nil {
				return fmt.Errorf("project %d: %w", projectID, err)
			}
			calls, err := db.ListProjectCalls(cmd.Context(), projectID, limit)
			if err != nil {
				return err
			}
			if out == "" {
				out = fmt.Sprintf("project-%d-calls.xlsx", projectID)
			}
			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("create %s: %w", out, err)
			}
			if err := dataset.ExportCalls(f, *project, calls); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d calls to %s\n", len(calls), out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output path")
	cmd.Flags().IntVar(&limit, "limit", 5000, "Maximum number of calls")
	return cmd
}

func newProjectCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Manage projects and their members",
	}

	var webhook string
	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer db.Close()
			p, err := db.CreateProject(cmd.Context(), args[0], webhook)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "project %d created\n", p.ID)
			return nil
		},
	}
	create.Flags().StringVar(&webhook, "webhook", "", "Chat webhook URL for call notifications")

	var (
		phoneUserID string
		role        string
	)
	addMember := &cobra.Command{
		Use:   "add-member <project-id> <display-name>",
		Short: "Create a user and add them to a project",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID, err := parseID(args[0])
			if err != nil {
				return err
			}
			db, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer db.Close()
			u, err := db.CreateUser(cmd.Context(), args[1], phoneUserID)
			if err != nil {
				return err
			}
			if err := db.AddMember(cmd.Context(), projectID, u.ID, types.Role(role)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "user %d added to project %d as %s\n", u.ID, projectID, role)
			return nil
		},
	}
	addMember.Flags().StringVar(&phoneUserID, "phone-user-id", "", "Phone-system agent id")
	addMember.Flags().StringVar(&role, "role", string(types.RoleUser), "Role: director or user")

	cmd.AddCommand(create, addMember)
	return cmd
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}
