package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"autodrive/internal/domain"
	"autodrive/internal/geo"
	"autodrive/internal/pricing"
)

func newEstimateCommand(opts *rootOptions) *cobra.Command {
	var (
		from, to string
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Quote a fare between two points",
		Example: `  autodrive estimate --from 25.0330,121.5654 --to 25.0478,121.5170
  autodrive estimate --from 25.0330,121.5654 --to 25.0478,121.5170 --json`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			pickup, err := parsePoint(from)
			if err != nil {
				return fmt.Errorf("--from: %w", err)
			}
			dropoff, err := parsePoint(to)
			if err != nil {
				return fmt.Errorf("--to: %w", err)
			}

			calc := pricing.NewCalculator(pricing.Rates{
				BaseFare:       opts.cfg.Fare.BaseFare,
				PerKm:          opts.cfg.Fare.PerKm,
				PerMinute:      opts.cfg.Fare.PerMinute,
				PlatformFeeBps: opts.cfg.Fare.PlatformFeeBps,
			})
			distance := geo.DistanceKm(pickup, dropoff)
			fare := calc.Calculate(distance, geo.EstimateMinutes(distance, opts.cfg.Trip.AvgSpeedKmh))

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(fare)
			}
			return writeFare(cmd.OutOrStdout(), fare)
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "pickup as lat,lng")
	cmd.Flags().StringVar(&to, "to", "", "dropoff as lat,lng")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the breakdown as JSON")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

// parsePoint parses "lat,lng".
func parsePoint(s string) (domain.Point, error) {
	latStr, lngStr, ok := strings.Cut(s, ",")
	if !ok {
		return domain.Point{}, fmt.Errorf("expected lat,lng, got %q", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if err != nil {
		return domain.Point{}, fmt.Errorf("latitude: %w", err)
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(lngStr), 64)
	if err != nil {
		return domain.Point{}, fmt.Errorf("longitude: %w", err)
	}

	p := domain.Point{Lat: lat, Lng: lng}
	if !geo.ValidPoint(p) {
		return domain.Point{}, fmt.Errorf("coordinates out of range: %q", s)
	}
	return p, nil
}

func writeFare(w io.Writer, fare domain.FareBreakdown) error {
	_, err := fmt.Fprintf(w,
		"distance:      %.2f km\nduration:      %d min\nbase:          %d\ndistance fare: %d\ntime fare:     %d\nplatform fee:  %d\ntotal:         %d\n",
		fare.DistanceKm, fare.DurationMinutes, fare.BaseFare, fare.DistanceFare,
		fare.TimeFare, fare.PlatformFee, fare.Total,
	)
	return err
}
