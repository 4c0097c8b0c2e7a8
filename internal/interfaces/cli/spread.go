package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rrweller/finn-apartment-finder/internal/domain/listing"
	apperrors "github.com/rrweller/finn-apartment-finder/pkg/errors"
)

// SpreadResult lists every input listing with the position it is drawn at.
type SpreadResult struct {
	Radius    float64                  `json:"radius_meters"`
	Groups    int                      `json:"collision_groups"`
	Displaced int                      `json:"displaced"`
	Listings  []listing.DisplayListing `json:"listings"`
}

func (r SpreadResult) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d listings, %d displaced in %d collision groups (radius %.1f m)\n",
		len(r.Listings), r.Displaced, r.Groups, r.Radius)
	for _, d := range r.Listings {
		mark := " "
		if d.Displaced() {
			mark = "*"
		}
		fmt.Fprintf(&sb, "%s %.6f,%.6f  %s\n", mark, d.DisplayLat, d.DisplayLon, d.URL)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (r SpreadResult) TableHeaders() []string {
	return []string{"URL", "LAT", "LON", "DISPLAY_LAT", "DISPLAY_LON", "PRICE"}
}

func (r SpreadResult) TableRows() [][]string {
	rows := make([][]string, len(r.Listings))
	for i, d := range r.Listings {
		rows[i] = []string{
			d.URL,
			strconv.FormatFloat(d.Lat, 'f', 6, 64),
			strconv.FormatFloat(d.Lon, 'f', 6, 64),
			strconv.FormatFloat(d.DisplayLat, 'f', 6, 64),
			strconv.FormatFloat(d.DisplayLon, 'f', 6, 64),
			listing.PriceLabel(d.Price),
		}
	}
	return rows
}

func NewSpreadCmd() *cobra.Command {
	var radius float64

	cmd := &cobra.Command{
		Use:   "spread <listings.json|->",
		Short: "Deconflict listings that share a coordinate",
		Long: "Reads a JSON array of listings ({url, lat, lon, price, title}) and prints\n" +
			"the position each marker is drawn at. Listings sharing a coordinate\n" +
			"(rounded to six decimals) are placed on a ring around it.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("radius") {
				if cliCtx, err := GetCLIContext(cmd); err == nil {
					radius = cliCtx.Config.Overlay.SpreadRadiusMeters
				}
			}
			if radius <= 0 {
				return apperrors.InvalidParam("radius must be positive").WithDetail(strconv.FormatFloat(radius, 'f', -1, 64))
			}

			listings, err := readListings(cmd, args[0])
			if err != nil {
				return err
			}
			return PrintResult(cmd, spread(listings, radius))
		},
	}

	cmd.Flags().Float64Var(&radius, "radius", listing.DefaultSpreadRadius, "ring radius in metres")
	return cmd
}

func spread(listings []listing.Listing, radius float64) SpreadResult {
	display := listing.SpreadRadius(listings, radius)
	res := SpreadResult{Radius: radius, Listings: display}
	for _, n := range listing.Groups(listings) {
		if n > 1 {
			res.Groups++
		}
	}
	for _, d := range display {
		if d.Displaced() {
			res.Displaced++
		}
	}
	return res
}

func readListings(cmd *cobra.Command, path string) ([]listing.Listing, error) {
	var r io.Reader
	if path == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeBadRequest, "cannot open listings file")
		}
		defer f.Close()
		r = f
	}

	var listings []listing.Listing
	if err := json.NewDecoder(r).Decode(&listings); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeSerialization, "listings must be a JSON array")
	}
	return listings, nil
}
