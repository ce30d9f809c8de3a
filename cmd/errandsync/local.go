package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/errandsync/errandsync/tasks"
	"github.com/urfave/cli/v2"
)

func migrateCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Move data.json into per-list calendar files.",
		Action: func(c *cli.Context) error {
			store, err := a.store()
			if err != nil {
				return err
			}
			migrated, err := store.Migrate()
			if err != nil {
				return err
			}
			if !migrated {
				fmt.Fprintln(c.App.Writer, "nothing to migrate")
				return nil
			}
			fmt.Fprintf(c.App.Writer, "migrated %d lists\n", len(store.Lists()))
			return nil
		},
	}
}

func listsCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:  "lists",
		Usage: "Show local task lists.",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "all", Usage: "Include deleted lists."},
		},
		Action: func(c *cli.Context) error {
			store, err := a.store()
			if err != nil {
				return err
			}
			lists := store.ActiveLists()
			if c.Bool("all") {
				lists = store.Lists()
			}

			tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "UID\tNAME\tTASKS\tSYNCED\tSTATE")
			for _, l := range lists {
				open := 0
				for _, t := range store.Tasks(l.UID) {
					if !t.Deleted() && !t.Completed {
						open++
					}
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%t\t%s\n", l.UID, l.Name, open, l.Synced, l.State)
			}
			return tw.Flush()
		},
	}
}

func addListCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:      "add-list",
		Usage:     "Create a local task list.",
		ArgsUsage: "NAME",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "color", Usage: "List color."},
		},
		Action: func(c *cli.Context) error {
			name := c.Args().First()
			if name == "" {
				return cli.Exit("a list name is required", 2)
			}
			store, err := a.store()
			if err != nil {
				return err
			}
			l, err := store.AddList(name)
			if err != nil {
				return err
			}
			if color := c.String("color"); color != "" {
				l.Color = color
				if err := store.UpdateList(l); err != nil {
					return err
				}
			}
			fmt.Fprintln(c.App.Writer, l.UID)
			return nil
		},
	}
}

func addTaskCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:      "add-task",
		Usage:     "Add a task to a local list.",
		ArgsUsage: "TEXT",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "list", Required: true, Usage: "List UID or name."},
			&cli.StringFlag{Name: "parent", Usage: "UID of the parent task."},
			&cli.StringFlag{Name: "due", Usage: `Due date, e.g. "2024-05-20" or "next friday".`},
			&cli.StringFlag{Name: "rrule", Usage: `Recurrence rule, e.g. "FREQ=WEEKLY".`},
			&cli.IntFlag{Name: "priority", Usage: "Priority from 0 (none) to 9."},
			&cli.StringSliceFlag{Name: "tag", Usage: "Tag, may be repeated."},
			&cli.StringFlag{Name: "notes", Usage: "Free-form notes."},
		},
		Action: func(c *cli.Context) error {
			text := c.Args().First()
			if text == "" {
				return cli.Exit("task text is required", 2)
			}
			store, err := a.store()
			if err != nil {
				return err
			}
			l, err := findList(store, c.String("list"))
			if err != nil {
				return err
			}
			due, err := tasks.ParseDue(c.String("due"), time.Now())
			if err != nil {
				return err
			}
			if err := tasks.ValidateRRule(c.String("rrule")); err != nil {
				return err
			}

			t, err := store.AddTask(l.UID, text, c.String("parent"))
			if err != nil {
				return err
			}
			t.DueDate = due
			t.RRule = c.String("rrule")
			t.Priority = c.Int("priority")
			t.Tags = c.StringSlice("tag")
			t.Notes = c.String("notes")
			if err := store.UpdateTask(t); err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, t.UID)
			return nil
		},
	}
}

func doneCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:      "done",
		Usage:     "Toggle a task's completion; recurring tasks move to their next due date.",
		ArgsUsage: "TASK-UID",
		Action: func(c *cli.Context) error {
			uid := c.Args().First()
			if uid == "" {
				return cli.Exit("a task UID is required", 2)
			}
			store, err := a.store()
			if err != nil {
				return err
			}
			t, err := store.ToggleCompleted(uid)
			if err != nil {
				return err
			}
			switch {
			case t.Completed:
				fmt.Fprintf(c.App.Writer, "completed %q\n", t.Text)
			case t.RRule != "":
				fmt.Fprintf(c.App.Writer, "%q is next due %s\n", t.Text, t.DueDate)
			default:
				fmt.Fprintf(c.App.Writer, "reopened %q\n", t.Text)
			}
			return nil
		},
	}
}

func printCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:      "print",
		Usage:     "Print a list as an indented checklist.",
		ArgsUsage: "LIST",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "width", Value: tasks.DefaultPrintWidth, Usage: "Line width in columns."},
		},
		Action: func(c *cli.Context) error {
			ref := c.Args().First()
			if ref == "" {
				return cli.Exit("a list UID or name is required", 2)
			}
			store, err := a.store()
			if err != nil {
				return err
			}
			l, err := findList(store, ref)
			if err != nil {
				return err
			}
			return tasks.Print(c.App.Writer, l, store.Tasks(l.UID), c.Int("width"))
		},
	}
}
