package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rrweller/finn-apartment-finder/internal/domain/overlay"
	apperrors "github.com/rrweller/finn-apartment-finder/pkg/errors"
)

// StyleRow is the style of one role (and origin id for origin areas).
type StyleRow struct {
	Role  overlay.Role  `json:"role"`
	LocID int           `json:"loc_id"`
	Style overlay.Style `json:"style"`
}

// StyleTable is the full style table for a palette.
type StyleTable struct {
	Palette overlay.Palette `json:"palette"`
	Rows    []StyleRow      `json:"rows"`
	Route   overlay.Style   `json:"route"`
}

func (t StyleTable) TableHeaders() []string {
	return []string{"ROLE", "LOC_ID", "COLOR", "WEIGHT", "DASH", "FILL_OPACITY", "PATTERN"}
}

func (t StyleTable) TableRows() [][]string {
	rows := make([][]string, 0, len(t.Rows)+1)
	for _, r := range t.Rows {
		id := "-"
		if r.Role == overlay.RoleOrigin {
			id = strconv.Itoa(r.LocID)
		}
		rows = append(rows, styleCells(string(r.Role), id, r.Style))
	}
	return append(rows, styleCells("route", "-", t.Route))
}

func (t StyleTable) String() string {
	return strings.TrimRight(FormatTable(t.TableHeaders(), t.TableRows()), "\n")
}

func styleCells(role, id string, s overlay.Style) []string {
	dash := s.DashPattern
	if dash == "" {
		dash = "solid"
	}
	pattern := s.FillPattern
	if pattern == "" {
		pattern = "-"
	}
	return []string{
		role,
		id,
		s.StrokeColor,
		strconv.FormatFloat(s.StrokeWeight, 'g', -1, 64),
		dash,
		strconv.FormatFloat(s.FillOpacity, 'g', -1, 64),
		pattern,
	}
}

func NewStyleCmd() *cobra.Command {
	var (
		palette []string
		origins int
	)

	cmd := &cobra.Command{
		Use:   "style",
		Short: "Print the overlay style table",
		Long: "Prints the style of every reachability role: one row per origin id\n" +
			"(colours cycle through the palette), then the intersection, the query\n" +
			"hull and the route lines.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("palette") {
				if cliCtx, err := GetCLIContext(cmd); err == nil {
					palette = cliCtx.Config.Overlay.Palette
				}
			}
			if origins < 1 {
				return apperrors.InvalidParam("origins must be at least 1").WithDetail(strconv.Itoa(origins))
			}
			for _, c := range palette {
				if !strings.HasPrefix(c, "#") {
					return apperrors.InvalidParam(fmt.Sprintf("palette colour %q must be a hex colour", c))
				}
			}
			return PrintResult(cmd, styleTable(overlay.Palette(palette), origins))
		},
	}

	cmd.Flags().StringSliceVar(&palette, "palette", nil, "comma-separated hex colours (default: configured palette)")
	cmd.Flags().IntVar(&origins, "origins", 4, "number of origin rows to show")
	return cmd
}

func styleTable(p overlay.Palette, origins int) StyleTable {
	styler := overlay.NewStyler(p)
	t := StyleTable{Palette: styler.Palette, Route: overlay.RouteStyle()}
	for i := 0; i < origins; i++ {
		t.Rows = append(t.Rows, StyleRow{Role: overlay.RoleOrigin, LocID: i, Style: styler.StyleForRole(overlay.RoleOrigin, i)})
	}
	t.Rows = append(t.Rows,
		StyleRow{Role: overlay.RoleIntersection, LocID: -1, Style: styler.StyleForRole(overlay.RoleIntersection, -1)},
		StyleRow{Role: overlay.RoleQueryHull, LocID: -1, Style: styler.StyleForRole(overlay.RoleQueryHull, -1)},
	)
	return t
}
