package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ghostline-ai/ghostline/internal/store"
	"github.com/ghostline-ai/ghostline/internal/svcctx"
)

var (
	projectTitle       string
	projectDescription string
	projectGenre       string
	projectUser        string
	projectChapters    int
	projectWords       int
)

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "Manage book projects",
}

var projectsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new book project",
	RunE: withServices(func(ctx context.Context, args []string) error {
		if projectTitle == "" {
			return errors.New("--title is required")
		}
		project := &store.Project{
			UserID:                projectUser,
			Title:                 projectTitle,
			Description:           projectDescription,
			Genre:                 projectGenre,
			TargetChapters:        projectChapters,
			TargetWordsPerChapter: projectWords,
		}
		if err := svcctx.StoreFrom(ctx).CreateProject(ctx, project); err != nil {
			return err
		}

		fmt.Printf("Created project %s\n", color.GreenString(project.ID))
		fmt.Printf("  Title: %s\n", project.Title)
		if project.Genre != "" {
			fmt.Printf("  Genre: %s\n", project.Genre)
		}
		fmt.Printf("\nNext: ghostline ingest %s <files...>\n", project.ID)
		return nil
	}),
}

var projectsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects, newest first",
	RunE: withServices(func(ctx context.Context, args []string) error {
		projects, err := svcctx.StoreFrom(ctx).ListProjects(ctx)
		if err != nil {
			return err
		}
		if len(projects) == 0 {
			fmt.Println("No projects yet. Create one with: ghostline projects create --title ...")
			return nil
		}

		for _, p := range projects {
			fmt.Printf("%s  %s\n", color.CyanString(p.ID), color.New(color.Bold).Sprint(p.Title))
			if p.Description != "" {
				fmt.Printf("    %s\n", p.Description)
			}
			fmt.Printf("    created %s", p.CreatedAt.Format("2006-01-02"))
			if p.TargetChapters > 0 {
				fmt.Printf(", %d chapters planned", p.TargetChapters)
			}
			fmt.Println()
		}
		return nil
	}),
}

func init() {
	projectsCreateCmd.Flags().StringVar(&projectTitle, "title", "", "project title (required)")
	projectsCreateCmd.Flags().StringVar(&projectDescription, "description", "", "what the book is about")
	projectsCreateCmd.Flags().StringVar(&projectGenre, "genre", "", "genre label")
	projectsCreateCmd.Flags().StringVar(&projectUser, "user", "", "owning user id")
	projectsCreateCmd.Flags().IntVar(&projectChapters, "chapters", 0, "target chapter count")
	projectsCreateCmd.Flags().IntVar(&projectWords, "words", 0, "target words per chapter")

	projectsCmd.AddCommand(projectsCreateCmd, projectsListCmd)
	rootCmd.AddCommand(projectsCmd)
}
