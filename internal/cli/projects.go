package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/andy/billsink/internal/domain"
	"github.com/andy/billsink/internal/money"
)

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "Manage projects",
	Long:  `Projects group work for a client and can carry their own hourly rate.`,
}

var projectsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		var clientID *int64
		if cmd.Flags().Changed("client") {
			ref, _ := cmd.Flags().GetString("client")
			id, err := resolveClientID(ctx, ref)
			if err != nil {
				return fmt.Errorf("failed to resolve client: %w", err)
			}
			clientID = &id
		}
		includeArchived, _ := cmd.Flags().GetBool("archived")

		projects, err := appInstance.Store.Projects().List(ctx, appInstance.Owner(), clientID, includeArchived)
		if err != nil {
			return fmt.Errorf("failed to list projects: %w", err)
		}
		if len(projects) == 0 {
			fmt.Println("No projects found")
			return nil
		}

		fmt.Printf("%-5s %-30s %-20s %-14s\n", "ID", "Name", "Client", "Hourly Rate")
		fmt.Println("-----------------------------------------------------------------------")
		for _, p := range projects {
			fmt.Printf("%-5d %-30s %-20s %-14s\n",
				p.ID,
				truncate(p.Name, 30),
				truncate(clientName(ctx, p.ClientID), 20),
				formatRate(p.HourlyRate),
			)
		}
		return nil
	},
}

var projectsAddCmd = &cobra.Command{
	Use:   "add [client_id_or_name] [name]",
	Short: "Add a project to a client",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		clientID, err := resolveClientID(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to resolve client: %w", err)
		}
		rateStr, _ := cmd.Flags().GetString("rate")
		rate, err := optionalRate(rateStr)
		if err != nil {
			return fmt.Errorf("invalid rate: %w", err)
		}

		project := domain.NewProject(appInstance.Owner(), clientID, args[1], rate)
		if err := appInstance.Store.Projects().Create(ctx, project); err != nil {
			return fmt.Errorf("failed to create project: %w", err)
		}

		fmt.Printf("✓ Project created: %s (ID: %d)\n", project.Name, project.ID)
		return nil
	},
}

var milestonesCmd = &cobra.Command{
	Use:   "milestones",
	Short: "Manage fixed-price milestones",
}

var milestonesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List milestones",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		var projectID *int64
		if cmd.Flags().Changed("project") {
			id, _ := cmd.Flags().GetInt64("project")
			projectID = &id
		}

		milestones, err := appInstance.Store.Milestones().List(ctx, appInstance.Owner(), projectID)
		if err != nil {
			return fmt.Errorf("failed to list milestones: %w", err)
		}
		if len(milestones) == 0 {
			fmt.Println("No milestones found")
			return nil
		}

		fmt.Printf("%-5s %-8s %-30s %-12s %-10s\n", "ID", "Project", "Name", "Amount", "Status")
		fmt.Println("---------------------------------------------------------------------")
		for _, m := range milestones {
			fmt.Printf("%-5d %-8d %-30s %-12s %-10s\n",
				m.ID, m.ProjectID, truncate(m.Name, 30), money.Format(m.Amount), m.Status)
		}
		return nil
	},
}

var milestonesAddCmd = &cobra.Command{
	Use:   "add [project_id] [name] [amount]",
	Short: "Add a milestone to a project",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		projectID, err := parseID(args[0], "project")
		if err != nil {
			return err
		}
		project, err := appInstance.Store.Projects().GetByID(ctx, projectID)
		if err != nil {
			return fmt.Errorf("failed to get project: %w", err)
		}
		if project.UserID != appInstance.Owner() {
			return domain.NotFound("project", projectID)
		}
		amount, err := money.Parse(args[2])
		if err != nil {
			return err
		}

		milestone := domain.NewMilestone(appInstance.Owner(), projectID, args[1], amount)
		if err := appInstance.Store.Milestones().Create(ctx, milestone); err != nil {
			return fmt.Errorf("failed to create milestone: %w", err)
		}

		fmt.Printf("✓ Milestone created: %s for %s (ID: %d)\n", milestone.Name, money.Format(amount), milestone.ID)
		return nil
	},
}

var milestonesCompleteCmd = &cobra.Command{
	Use:   "complete [id]",
	Short: "Mark a milestone as delivered so it can be invoiced",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		id, err := parseID(args[0], "milestone")
		if err != nil {
			return err
		}
		milestone, err := appInstance.Store.Milestones().GetByID(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to get milestone: %w", err)
		}
		if milestone.UserID != appInstance.Owner() {
			return domain.NotFound("milestone", id)
		}
		if milestone.Status != domain.MilestoneStatusPending {
			return fmt.Errorf("milestone is already %s", milestone.Status)
		}

		milestone.Status = domain.MilestoneStatusCompleted
		if err := appInstance.Store.Milestones().Update(ctx, milestone); err != nil {
			return fmt.Errorf("failed to update milestone: %w", err)
		}

		fmt.Printf("✓ Milestone completed: %s\n", milestone.Name)
		return nil
	},
}

func init() {
	projectsCmd.AddCommand(projectsListCmd)
	projectsCmd.AddCommand(projectsAddCmd)

	projectsListCmd.Flags().String("client", "", "Filter by client ID or name")
	projectsListCmd.Flags().Bool("archived", false, "Include archived projects")
	projectsAddCmd.Flags().String("rate", "", "Project hourly rate, overrides the client rate")

	milestonesCmd.AddCommand(milestonesListCmd)
	milestonesCmd.AddCommand(milestonesAddCmd)
	milestonesCmd.AddCommand(milestonesCompleteCmd)

	milestonesListCmd.Flags().Int64("project", 0, "Filter by project ID")
}
