package refdata

import (
	"context"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/TomySpagnoletti/trouve-ton-psy/internal/fetcher"
	"github.com/TomySpagnoletti/trouve-ton-psy/internal/model"
)

// CommuneEntry is one element of the "data" array of the bulk commune dataset.
type CommuneEntry struct {
	INSEECode      string  `json:"code_insee"`
	Name           string  `json:"nom_standard"`
	RegionName     string  `json:"reg_nom"`
	DepartmentCode string  `json:"dep_code"`
	DepartmentName string  `json:"dep_nom"`
	PostalCode     string  `json:"code_postal"`
	Latitude       float64 `json:"latitude_centre"`
	Longitude      float64 `json:"longitude_centre"`
}

// Valid reports whether the entry carries a code and both coordinates.
func (e CommuneEntry) Valid() bool {
	return e.INSEECode != "" && e.Latitude != 0 && e.Longitude != 0
}

// City converts the entry to a catalog city.
func (e CommuneEntry) City() model.City {
	c := model.City{
		INSEECode:      e.INSEECode,
		Name:           e.Name,
		RegionName:     e.RegionName,
		DepartmentCode: e.DepartmentCode,
		DepartmentName: e.DepartmentName,
		PostalCodes:    []string{},
		Center:         model.Point{Lat: e.Latitude, Lon: e.Longitude},
	}
	if e.PostalCode != "" {
		c.PostalCodes = []string{e.PostalCode}
	}
	return c
}

// CityWriter persists a batch of cities.
type CityWriter func(ctx context.Context, cities []model.City) (int64, error)

// PopulateStats summarizes a Populate run.
type PopulateStats struct {
	Read    int
	Skipped int
	Written int64
	Failed  int
}

// Populate streams the dataset in r and hands valid entries to write in
// batches of size. A failed batch is logged and counted; the run goes on.
// progress, when set, is called after each batch with the number of entries
// read so far.
func Populate(ctx context.Context, r io.Reader, size int, write CityWriter, progress func(read int)) (PopulateStats, error) {
	if size <= 0 {
		size = 500
	}
	var (
		stats PopulateStats
		buf   = make([]model.City, 0, size)
		log   = zap.L().With(zap.String("component", "populate"))
	)

	flush := func() {
		if len(buf) == 0 {
			return
		}
		n, err := write(ctx, buf)
		if err != nil {
			stats.Failed += len(buf)
			log.Error("populate: batch failed",
				zap.String("first", buf[0].INSEECode),
				zap.Int("size", len(buf)),
				zap.Error(err),
			)
		} else {
			stats.Written += n
		}
		buf = buf[:0]
		if progress != nil {
			progress(stats.Read)
		}
	}

	entries, errs := fetcher.DecodeJSONArrayField[CommuneEntry](ctx, r, "data")
	for e := range entries {
		stats.Read++
		if !e.Valid() {
			stats.Skipped++
			continue
		}
		buf = append(buf, e.City())
		if len(buf) == size {
			flush()
		}
	}
	if err := <-errs; err != nil {
		return stats, eris.Wrap(err, "refdata: read communes")
	}
	flush()
	return stats, nil
}

// PopulateFile is Populate over the file at path.
func PopulateFile(ctx context.Context, path string, size int, write CityWriter, progress func(read int)) (PopulateStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return PopulateStats{}, eris.Wrapf(err, "refdata: open %s", path)
	}
	defer f.Close() //nolint:errcheck
	return Populate(ctx, f, size, write, progress)
}
