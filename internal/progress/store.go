package progress

import (
	"bytes"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/TomySpagnoletti/trouve-ton-psy/internal/model"
)

// fileState is the persisted form of Progress. Slices are sorted so the file
// is deterministic.
type fileState struct {
	RunID      string            `json:"run_id"`
	Total      int               `json:"total"`
	Processed  []string          `json:"processed"`
	Candidates []model.Candidate `json:"candidates"`
	Failures   []model.Failure   `json:"failures"`
}

// FileStore keeps Progress in a JSON file and a human-readable report next
// to it. Only one process may use a given pair of files at a time.
type FileStore struct {
	ProgressPath string
	ReportPath   string
}

// NewFileStore creates a FileStore. reportPath may be empty to skip the report.
func NewFileStore(progressPath, reportPath string) *FileStore {
	return &FileStore{ProgressPath: progressPath, ReportPath: reportPath}
}

// Load reads the persisted progress and restricts it to currentKeys. A
// missing, unreadable or corrupt file yields an empty Progress.
func (s *FileStore) Load(total int, currentKeys []string) *Progress {
	log := zap.L().With(zap.String("component", "progress"), zap.String("path", s.ProgressPath))

	data, err := os.ReadFile(s.ProgressPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Warn("progress: unreadable state, starting fresh", zap.Error(err))
		}
		return New(total)
	}

	var st fileState
	if err := json.Unmarshal(data, &st); err != nil {
		log.Warn("progress: corrupt state, starting fresh", zap.Error(err))
		return New(total)
	}

	p := New(total)
	if st.RunID != "" {
		p.RunID = st.RunID
	}
	for _, k := range st.Processed {
		p.processed[k] = struct{}{}
	}
	for _, c := range st.Candidates {
		p.candidates[c.City.INSEECode] = c
	}
	for _, f := range st.Failures {
		p.failures[f.City.INSEECode] = f
	}

	dropped := p.restrict(currentKeys)
	log.Info("progress: resumed",
		zap.String("run_id", p.RunID),
		zap.Int("processed", p.ProcessedCount()),
		zap.Int("candidates", len(p.candidates)),
		zap.Int("failures", len(p.failures)),
		zap.Int("dropped", dropped),
	)
	return p
}

// Save writes the progress file and the report. Each file is replaced
// atomically.
func (s *FileStore) Save(p *Progress) error {
	st := fileState{
		RunID:      p.RunID,
		Total:      p.Total,
		Processed:  p.Processed(),
		Candidates: p.Candidates(),
		Failures:   p.Failures(),
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return eris.Wrap(err, "progress: encode state")
	}
	if err := writeFileAtomic(s.ProgressPath, append(data, '\n')); err != nil {
		return err
	}

	if s.ReportPath == "" {
		return nil
	}
	var report bytes.Buffer
	RenderReport(&report, p)
	return writeFileAtomic(s.ReportPath, report.Bytes())
}

// Reset deletes both files.
func (s *FileStore) Reset() error {
	for _, path := range []string{s.ProgressPath, s.ReportPath} {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return eris.Wrapf(err, "progress: remove %s", path)
		}
	}
	return nil
}

// writeFileAtomic writes data to a temp file in the target directory and
// renames it over path.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return eris.Wrapf(err, "progress: create temp file for %s", path)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrapf(err, "progress: write %s", path)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrapf(err, "progress: sync %s", path)
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrapf(err, "progress: close %s", path)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return eris.Wrapf(err, "progress: replace %s", path)
	}
	return nil
}
