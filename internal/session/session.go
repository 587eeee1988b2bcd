// Package session allocates the on-disk folder for one bot run:
//
//	{dataDir}/{YYYY-MM-DD}/run_N/
//
// The folder holds the journal, its parquet export and a run.yaml describing
// the run.
package session

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rxtech-lab/indicator-bot/internal/logger"
	"github.com/rxtech-lab/indicator-bot/pkg/errors"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	dateLayout   = "2006-01-02"
	runInfoFile  = "run.yaml"
	journalFile  = "journal.duckdb"
	exportFolder = "export"
)

var runPattern = regexp.MustCompile(`^run_(\d+)$`)

// RunInfo is written to run.yaml when a session starts.
type RunInfo struct {
	RunID     string    `yaml:"run_id"`
	RunName   string    `yaml:"run_name"`
	Symbol    string    `yaml:"symbol"`
	Provider  string    `yaml:"provider"`
	Version   string    `yaml:"version"`
	StartedAt time.Time `yaml:"started_at"`
}

// Session is one allocated run folder.
type Session struct {
	dataDir   string
	date      string
	runNumber int
	runPath   string
	info      RunInfo
}

// Start allocates the next run folder for the date of startedAt and writes run.yaml.
func Start(dataDir string, startedAt time.Time, info RunInfo, log *logger.Logger) (*Session, error) {
	if dataDir == "" {
		return nil, errors.New(errors.ErrCodeInvalidConfiguration, "data directory is required")
	}

	date := startedAt.Format(dateLayout)

	runNumber, err := nextRunNumber(filepath.Join(dataDir, date))
	if err != nil {
		return nil, err
	}

	runName := "run_" + strconv.Itoa(runNumber)
	runPath := filepath.Join(dataDir, date, runName)

	if err := os.MkdirAll(runPath, 0755); err != nil {
		return nil, errors.Wrap(errors.ErrCodeJournalWriteFailed, "failed to create run folder", err)
	}

	info.RunID = uuid.NewString()
	info.RunName = runName
	info.StartedAt = startedAt

	s := &Session{
		dataDir:   dataDir,
		date:      date,
		runNumber: runNumber,
		runPath:   runPath,
		info:      info,
	}

	if err := s.writeInfo(); err != nil {
		return nil, err
	}

	log.Info("Session started",
		zap.String("run_id", info.RunID),
		zap.String("run", runName),
		zap.String("path", runPath),
	)

	return s, nil
}

func nextRunNumber(datePath string) (int, error) {
	entries, err := os.ReadDir(datePath)
	if os.IsNotExist(err) {
		return 1, nil
	}

	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeJournalWriteFailed, "failed to read date directory", err)
	}

	maxRunNumber := 0

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		if num, ok := parseRunName(entry.Name()); ok && num > maxRunNumber {
			maxRunNumber = num
		}
	}

	return maxRunNumber + 1, nil
}

func parseRunName(name string) (int, bool) {
	matches := runPattern.FindStringSubmatch(name)
	if len(matches) != 2 {
		return 0, false
	}

	num, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0, false
	}

	return num, true
}

func (s *Session) writeInfo() error {
	data, err := yaml.Marshal(s.info)
	if err != nil {
		return errors.Wrap(errors.ErrCodeJournalWriteFailed, "failed to encode run info", err)
	}

	if err := os.WriteFile(filepath.Join(s.runPath, runInfoFile), data, 0644); err != nil {
		return errors.Wrap(errors.ErrCodeJournalWriteFailed, "failed to write run info", err)
	}

	return nil
}

// Info returns the run description.
func (s *Session) Info() RunInfo {
	return s.info
}

// RunNumber returns N of run_N.
func (s *Session) RunNumber() int {
	return s.runNumber
}

// Date returns the run date in YYYY-MM-DD format.
func (s *Session) Date() string {
	return s.date
}

// RunPath returns the run folder.
func (s *Session) RunPath() string {
	return s.runPath
}

// JournalPath returns the DuckDB journal location inside the run folder.
func (s *Session) JournalPath() string {
	return filepath.Join(s.runPath, journalFile)
}

// ExportPath returns the parquet export folder inside the run folder.
func (s *Session) ExportPath() string {
	return filepath.Join(s.runPath, exportFolder)
}

// ReadRunInfo loads run.yaml from a run folder.
func ReadRunInfo(runPath string) (RunInfo, error) {
	data, err := os.ReadFile(filepath.Join(runPath, runInfoFile))
	if err != nil {
		return RunInfo{}, errors.Wrap(errors.ErrCodeDataNotFound, "failed to read run info", err)
	}

	var info RunInfo
	if err := yaml.Unmarshal(data, &info); err != nil {
		return RunInfo{}, errors.Wrap(errors.ErrCodeQueryFailed, "failed to decode run info", err)
	}

	return info, nil
}

// ListRuns returns the run folder names for date, ordered by run number.
func ListRuns(dataDir, date string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(dataDir, date))
	if os.IsNotExist(err) {
		return []string{}, nil
	}

	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to read date directory", err)
	}

	runs := make([]string, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() && runPattern.MatchString(entry.Name()) {
			runs = append(runs, entry.Name())
		}
	}

	sort.Slice(runs, func(i, j int) bool {
		numI, _ := parseRunName(runs[i])
		numJ, _ := parseRunName(runs[j])

		return numI < numJ
	})

	return runs, nil
}
