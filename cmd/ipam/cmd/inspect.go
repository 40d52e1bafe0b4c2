package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/chiquitav2/ipam/internal/allocator/audit"
	"github.com/chiquitav2/ipam/internal/allocator/utilization"
)

func newCountriesCommand(a *app) *cobra.Command {
	var continent string

	cmd := &cobra.Command{
		Use:   "countries",
		Short: "Show region utilization per country",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, _, err := a.newService(cmd)
			if err != nil {
				return err
			}
			defer svc.Close()

			countries, err := svc.Tracker.Countries(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list countries: %w", err)
			}
			if continent != "" {
				filtered := countries[:0]
				for _, c := range countries {
					if c.Continent == continent {
						filtered = append(filtered, c)
					}
				}
				countries = filtered
			}

			return render(cmd.OutOrStdout(), a.format, countries, func(tw *tabwriter.Writer) {
				fmt.Fprintln(tw, "COUNTRY\tCONTINENT\tX RANGE\tREGIONS\tCAPACITY\tUSED\tHOSTS")
				for _, c := range countries {
					used := fmt.Sprintf("%.2f%%", c.Percentage)
					if c.IsReserved {
						used = "reserved"
					}
					fmt.Fprintf(tw, "%s\t%s\t%d-%d\t%d\t%d\t%s\t%d\n",
						c.Country, c.Continent, c.XStart, c.XEnd,
						c.AllocatedRegions, c.TotalCapacity, used, c.AllocatedHosts)
				}
			})
		},
	}

	cmd.Flags().StringVar(&continent, "continent", "", "only show countries of this continent")
	return cmd
}

func newSnapshotCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot",
		Short: "Show global utilization grouped by continent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, _, err := a.newService(cmd)
			if err != nil {
				return err
			}
			defer svc.Close()

			snap, err := svc.Tracker.GlobalSnapshot(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to compute snapshot: %w", err)
			}

			return render(cmd.OutOrStdout(), a.format, snap, func(tw *tabwriter.Writer) {
				fmt.Fprintf(tw, "Countries:\t%d allocated of %d\n", snap.AllocatedCountries, snap.TotalCountries)
				fmt.Fprintf(tw, "Regions:\t%d of %d\t(%.2f%%)\n", snap.AllocatedRegions, snap.TotalRegionsCapacity, snap.Percentage)
				fmt.Fprintf(tw, "Hosts:\t%d of %d\t(%.2f%%)\n", snap.AllocatedHosts, snap.TotalHostsCapacity, snap.HostPercentage)
				fmt.Fprintf(tw, "Generated:\t%s\n\n", formatTime(snap.GeneratedAt))
				fmt.Fprintln(tw, "CONTINENT\tCOUNTRIES\tREGIONS\tCAPACITY\tUSED")
				for _, c := range snap.ByContinent {
					fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%.2f%%\n",
						c.Continent, c.Countries, c.AllocatedRegions, c.TotalCapacity, c.Percentage)
				}
			})
		},
	}
}

func newForecastCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "forecast <region|country|global> [id]",
		Short: "Project when a region, country or the whole space runs out",
		Long: `Fit a trend over the configured forecast window and estimate days until
exhaustion. Severity is critical under 30 days, high under 90, medium under
180, and low otherwise.

Examples:
  ipam forecast global
  ipam forecast country India
  ipam forecast region 6f1c2a7e-0b7d-4e43-9a39-5e1f0e0f2c11 --format json`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			resourceType := utilization.ResourceType(args[0])
			var id string
			if len(args) == 2 {
				id = args[1]
			}

			svc, _, err := a.newService(cmd)
			if err != nil {
				return err
			}
			defer svc.Close()

			f, err := svc.Tracker.Forecast(cmd.Context(), resourceType, id)
			if err != nil {
				return fmt.Errorf("failed to compute forecast: %w", err)
			}

			return render(cmd.OutOrStdout(), a.format, f, func(tw *tabwriter.Writer) {
				resource := string(f.ResourceType)
				if f.ResourceID != "" {
					resource += " " + f.ResourceID
				}
				fmt.Fprintf(tw, "Resource:\t%s\n", resource)
				fmt.Fprintf(tw, "Severity:\t%s\n", f.Severity)
				fmt.Fprintf(tw, "Days to exhaustion:\t%s\n", formatDays(f.EstimatedExhaustionDays))
				fmt.Fprintf(tw, "Daily growth:\t%.3f\n", f.DailyGrowthRate)
				fmt.Fprintf(tw, "Available:\t%d\t(%.2f%% used)\n", f.Available, f.Percentage)
				fmt.Fprintf(tw, "Window:\t%d days\n", f.WindowDays)
			})
		},
	}
}

func newAuditCommand(a *app) *cobra.Command {
	var (
		action       string
		resourceType string
		resourceID   string
		user         string
		since        string
		until        string
		page         int
		pageSize     int
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Page through the audit trail, newest first",
		Long: `Query the append-only audit trail.

Examples:
  # Everything bob released
  ipam audit --user bob --action release

  # History of one region since October
  ipam audit --resource-type region --resource-id <id> --since 2026-10-01T00:00:00Z`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			start, err := parseTimeFlag("since", since)
			if err != nil {
				return err
			}
			end, err := parseTimeFlag("until", until)
			if err != nil {
				return err
			}

			svc, _, err := a.newService(cmd)
			if err != nil {
				return err
			}
			defer svc.Close()

			result, err := svc.Audit.Query(cmd.Context(), audit.Filter{
				ActionType:   audit.Action(action),
				ResourceType: audit.ResourceType(resourceType),
				ResourceID:   resourceID,
				User:         user,
				StartDate:    start,
				EndDate:      end,
				Page:         page,
				PageSize:     pageSize,
			})
			if err != nil {
				return fmt.Errorf("failed to query audit trail: %w", err)
			}

			return render(cmd.OutOrStdout(), a.format, result, func(tw *tabwriter.Writer) {
				fmt.Fprintln(tw, "TIME\tACTION\tRESOURCE\tNAME\tUSER\tREASON")
				for _, e := range result.Results {
					fmt.Fprintf(tw, "%s\t%s\t%s/%s\t%s\t%s\t%s\n",
						formatTime(e.Timestamp), e.ActionType, e.ResourceType, e.ResourceID,
						e.ResourceName, e.User, e.Reason)
				}
				p := result.Pagination
				fmt.Fprintf(tw, "\npage %d of %d (%d entries)\n", p.Page, p.TotalPages, p.Total)
			})
		},
	}

	cmd.Flags().StringVar(&action, "action", "", "filter by action (create|update|release|retire)")
	cmd.Flags().StringVar(&resourceType, "resource-type", "", "filter by resource type (region|host|country)")
	cmd.Flags().StringVar(&resourceID, "resource-id", "", "filter by resource id")
	cmd.Flags().StringVar(&user, "user", "", "filter by acting user")
	cmd.Flags().StringVar(&since, "since", "", "only entries at or after this RFC3339 time")
	cmd.Flags().StringVar(&until, "until", "", "only entries at or before this RFC3339 time")
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 20, "entries per page")
	return cmd
}

func parseTimeFlag(name, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s: %w", name, err)
	}
	t = t.UTC()
	return &t, nil
}
