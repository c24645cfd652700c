package enrich

import (
	"context"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/TomySpagnoletti/trouve-ton-psy/internal/metrics"
	"github.com/TomySpagnoletti/trouve-ton-psy/internal/model"
)

// summaryLimit is the number of new cities listed before asking.
const summaryLimit = 20

// Creator inserts new cities into the catalog.
type Creator interface {
	CreateCity(ctx context.Context, c model.City) (int64, error)
}

// RenderSummary lists the first new cities and every existing city that
// lacks postal codes. Existing cities are informational only.
func RenderSummary(w io.Writer, rep Report) {
	fmt.Fprintf(w, "Cities to add: %d\n\n", len(rep.New))
	for i, o := range rep.New {
		if i == summaryLimit {
			fmt.Fprintf(w, "... and %d more cities\n\n", len(rep.New)-summaryLimit)
			break
		}
		c := o.Commune
		fmt.Fprintf(w, "%d. %s (%s)\n", i+1, c.Name, c.Code)
		fmt.Fprintf(w, "   Postal codes: %s\n", strings.Join(c.PostalCodes, ", "))
		fmt.Fprintf(w, "   Department: %s, Population: %d\n\n", c.DepartmentCode, c.Population)
	}

	if len(rep.Existing) > 0 {
		fmt.Fprintf(w, "Existing cities missing postal codes (not updated): %d\n", len(rep.Existing))
		for _, o := range rep.Existing {
			fmt.Fprintf(w, "  - %s (%s): %s\n", o.Commune.Name, o.Commune.Code, strings.Join(o.MissingPostalCodes, ", "))
		}
		fmt.Fprintln(w)
	}
	if len(rep.NotFound) > 0 {
		fmt.Fprintf(w, "Codes unknown to the API: %d\n", len(rep.NotFound))
	}
	if len(rep.Failed) > 0 {
		fmt.Fprintf(w, "Failed lookups: %d\n", len(rep.Failed))
	}
}

// CreateResult counts the outcome of Create.
type CreateResult struct {
	Created int
	Failed  int
}

// Create inserts every new city of rep one by one. A failed insert is logged
// and counted; it does not stop the others.
func (e *Enricher) Create(ctx context.Context, dst Creator, rep Report, m *metrics.Metrics) CreateResult {
	var res CreateResult
	for _, o := range rep.New {
		city := e.City(ctx, o.Commune)
		_, err := dst.CreateCity(ctx, city)
		m.ObserveWrite("add-cities", err)
		if err != nil {
			res.Failed++
			zap.L().Error("enrich: create city failed",
				zap.String("insee", city.INSEECode),
				zap.String("name", city.Name),
				zap.Error(err),
			)
			continue
		}
		res.Created++
	}
	return res
}
