package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"genestore/internal/errors"
	"genestore/internal/model"
	"genestore/internal/permissions"
	"genestore/internal/persistence"
)

var (
	projectFile   string
	projectSHA    string
	projectName   string
	projectForce  bool
	projectNotes  string
	projectBypass bool
	projectRole   string
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Create, read, save and restore projects",
	Long: `Work with projects under the storage root.

Examples:
  genestore project create --name "Promoter library"
  genestore project write p1 --file project.json
  genestore project save p1 -m "tuned RBS strength"
  genestore project log p1
  genestore project checkout p1 3f2a9c1d`,
}

var projectCreateCmd = &cobra.Command{
	Use:   "create [project-id]",
	Short: "Create a project (an id is generated when omitted)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runProjectCreate,
}

var projectGetCmd = &cobra.Command{
	Use:   "get <project-id>",
	Short: "Show a project manifest (--sha for an earlier version)",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectGet,
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the projects the user can access",
	Args:  cobra.NoArgs,
	RunE:  runProjectList,
}

var projectWriteCmd = &cobra.Command{
	Use:   "write <project-id>",
	Short: "Replace a project manifest from a JSON file",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectWrite,
}

var projectDeleteCmd = &cobra.Command{
	Use:   "delete <project-id>",
	Short: "Move a project to the trash (--force removes it for good)",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectDelete,
}

var projectSaveCmd = &cobra.Command{
	Use:   "save <project-id>",
	Short: "Commit the working state of a project",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectSave,
}

var projectSnapshotCmd = &cobra.Command{
	Use:   "snapshot <project-id>",
	Short: "Commit a named snapshot of a project",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectSnapshot,
}

var projectLogCmd = &cobra.Command{
	Use:   "log <project-id>",
	Short: "List saves, newest first",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectLog,
}

var projectCheckoutCmd = &cobra.Command{
	Use:   "checkout <project-id> <sha>",
	Short: "Restore the working state to an earlier save",
	Args:  cobra.ExactArgs(2),
	RunE:  runProjectCheckout,
}

var projectDiffCmd = &cobra.Command{
	Use:   "diff <project-id> <from-sha> [to-sha]",
	Short: "Unified diff between two saves, or a save and the working state",
	Args:  cobra.RangeArgs(2, 3),
	RunE:  runProjectDiff,
}

var projectGrantCmd = &cobra.Command{
	Use:   "grant <project-id> <user-id>",
	Short: "Give another user access to a project",
	Args:  cobra.ExactArgs(2),
	RunE:  runProjectGrant,
}

func init() {
	projectCreateCmd.Flags().StringVar(&projectFile, "file", "", "Project JSON (- for stdin)")
	projectCreateCmd.Flags().StringVar(&projectName, "name", "", "Project name when no file is given")
	projectGetCmd.Flags().StringVar(&projectSHA, "sha", "", "Read the project as of this save")
	projectWriteCmd.Flags().StringVar(&projectFile, "file", "", "Project JSON (- for stdin)")
	projectWriteCmd.Flags().BoolVar(&projectBypass, "bypass-validation", false, "Skip schema validation")
	projectDeleteCmd.Flags().BoolVar(&projectForce, "force", false, "Remove the project instead of moving it to the trash")
	projectSaveCmd.Flags().StringVarP(&projectNotes, "message", "m", "", "Notes recorded with the save")
	projectSnapshotCmd.Flags().StringVarP(&projectNotes, "message", "m", "", "Notes recorded with the snapshot")
	projectGrantCmd.Flags().StringVar(&projectRole, "role", string(permissions.RoleViewer), "Role to grant (owner, viewer)")

	projectCmd.AddCommand(projectCreateCmd, projectGetCmd, projectListCmd, projectWriteCmd, projectDeleteCmd,
		projectSaveCmd, projectSnapshotCmd, projectLogCmd, projectCheckoutCmd, projectDiffCmd, projectGrantCmd)
	rootCmd.AddCommand(projectCmd)
}

func runProjectCreate(cmd *cobra.Command, args []string) error {
	var p model.Project
	if projectFile != "" {
		if err := readJSONInput(cmd, projectFile, &p); err != nil {
			return err
		}
	} else {
		p.Metadata.Name = projectName
	}

	projectID := p.ID
	if len(args) == 1 {
		projectID = args[0]
	}
	if projectID == "" {
		projectID = uuid.NewString()
	}

	return withApp(func(ctx context.Context, a *app) error {
		created, err := a.store.ProjectCreate(ctx, projectID, &p, a.user())
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), created)
	})
}

func runProjectGet(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		p, found, err := a.store.ProjectGet(ctx, args[0], projectSHA)
		if err != nil {
			return err
		}
		if !found {
			return errors.NotFound("project", args[0])
		}
		return printResult(cmd.OutOrStdout(), p)
	})
}

func runProjectList(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		ids, err := a.store.ProjectList(ctx, a.user())
		if err != nil {
			return err
		}
		if ids == nil {
			ids = []string{}
		}
		return printResult(cmd.OutOrStdout(), ids)
	})
}

func runProjectWrite(cmd *cobra.Command, args []string) error {
	var p model.Project
	if err := readJSONInput(cmd, projectFile, &p); err != nil {
		return err
	}
	return withApp(func(ctx context.Context, a *app) error {
		written, err := a.store.ProjectWrite(ctx, args[0], &p, a.user(),
			persistence.WriteOptions{BypassValidation: projectBypass})
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), written)
	})
}

func runProjectDelete(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		if err := a.store.ProjectDelete(ctx, args[0], projectForce); err != nil {
			return err
		}
		if projectForce {
			if err := a.perms.RemoveProject(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Project %s removed.\n", args[0])
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Project %s moved to the trash.\n", args[0])
		return nil
	})
}

func runProjectSave(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		commit, err := a.store.ProjectSave(ctx, args[0], a.user(), projectNotes)
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), commit)
	})
}

func runProjectSnapshot(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		commit, err := a.store.ProjectSnapshot(ctx, args[0], a.user(), projectNotes)
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), commit)
	})
}

func runProjectLog(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		commits, err := a.store.ProjectLog(ctx, args[0])
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), commits)
	})
}

func runProjectCheckout(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		r, err := a.store.ProjectCheckout(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), r)
	})
}

func runProjectDiff(cmd *cobra.Command, args []string) error {
	to := ""
	if len(args) == 3 {
		to = args[2]
	}
	return withApp(func(ctx context.Context, a *app) error {
		diff, err := a.store.ProjectDiff(ctx, args[0], args[1], to)
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), diff)
		return err
	})
}

func runProjectGrant(cmd *cobra.Command, args []string) error {
	role := permissions.Role(projectRole)
	if role != permissions.RoleOwner && role != permissions.RoleViewer {
		return fmt.Errorf("invalid role %q (valid: owner, viewer)", projectRole)
	}
	return withApp(func(ctx context.Context, a *app) error {
		if exists, err := a.store.ProjectExists(ctx, args[0], ""); err != nil {
			return err
		} else if !exists {
			return errors.NotFound("project", args[0])
		}
		if err := a.perms.Grant(ctx, args[0], args[1], role); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Granted %s %s access to %s.\n", args[1], role, args[0])
		return nil
	})
}
