package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/errandsync/errandsync/davclient"
	"github.com/emersion/go-ical"
	"github.com/urfave/cli/v2"
)

func componentsFlag(value string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:  "components",
		Value: value,
		Usage: "Comma-separated component types (VTODO, VEVENT, VJOURNAL).",
	}
}

func parseComponents(c *cli.Context) (davclient.ComponentSet, error) {
	set := davclient.ParseComponentSet(strings.Split(c.String("components"), ",")...)
	if set == 0 {
		return 0, fmt.Errorf("no known component in %q", c.String("components"))
	}
	return set, nil
}

func discoverCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:  "discover",
		Usage: "Resolve the CalDAV, principal and calendar home URLs.",
		Action: func(c *cli.Context) error {
			client, err := a.client(c.Context)
			if err != nil {
				return err
			}
			w := c.App.Writer
			fmt.Fprintf(w, "caldav:    %s\n", client.CalDAVURL())
			fmt.Fprintf(w, "principal: %s\n", client.PrincipalURL())
			fmt.Fprintf(w, "calendars: %s\n", client.CalendarsURL())
			return nil
		},
	}
}

func calendarsCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:  "calendars",
		Usage: "List remote calendars supporting the given components.",
		Flags: []cli.Flag{componentsFlag("VTODO,VEVENT,VJOURNAL")},
		Action: func(c *cli.Context) error {
			set, err := parseComponents(c)
			if err != nil {
				return err
			}
			client, err := a.client(c.Context)
			if err != nil {
				return err
			}
			if err := client.PullCalendars(c.Context, set); err != nil {
				return err
			}

			tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "UUID\tNAME\tCOLOR\tCOMPONENTS")
			for _, cal := range client.ActiveCalendars() {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", cal.UUID, cal.Name, cal.Color, cal.Components)
			}
			return tw.Flush()
		},
	}
}

func mkcalendarCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:      "mkcalendar",
		Usage:     "Create a remote calendar.",
		ArgsUsage: "NAME",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "color", Value: "#3584e4", Usage: "Calendar color."},
			componentsFlag("VTODO"),
		},
		Action: func(c *cli.Context) error {
			name := c.Args().First()
			if name == "" {
				return cli.Exit("a calendar name is required", 2)
			}
			set, err := parseComponents(c)
			if err != nil {
				return err
			}
			client, err := a.client(c.Context)
			if err != nil {
				return err
			}
			cal, err := client.CreateCalendar(c.Context, name, c.String("color"), set)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, cal.URL)
			return nil
		},
	}
}

func eventsCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:      "events",
		Usage:     "List the objects of a remote calendar.",
		ArgsUsage: "CALENDAR",
		Flags:     []cli.Flag{componentsFlag("VTODO,VEVENT,VJOURNAL")},
		Action: func(c *cli.Context) error {
			ref := c.Args().First()
			if ref == "" {
				return cli.Exit("a calendar UUID or name is required", 2)
			}
			set, err := parseComponents(c)
			if err != nil {
				return err
			}
			client, err := a.client(c.Context)
			if err != nil {
				return err
			}
			if err := client.PullCalendars(c.Context, davclient.CompAll); err != nil {
				return err
			}
			cal, err := findCalendar(client, ref)
			if err != nil {
				return err
			}
			if err := cal.PullEvents(c.Context, set); err != nil {
				return err
			}

			tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "UID\tTYPE\tSUMMARY")
			for _, ev := range cal.ActiveEvents() {
				comp := ev.Component()
				if comp == nil {
					continue
				}
				summary, _ := comp.Props.Text(ical.PropSummary)
				fmt.Fprintf(tw, "%s\t%s\t%s\n", ev.UID(), comp.Name, summary)
			}
			return tw.Flush()
		},
	}
}
