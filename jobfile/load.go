package jobfile

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/stewardhq/steward/errors"
	"github.com/stewardhq/steward/store"
)

// LoadDir loads every job document (*.md) in dir. Documents that fail to
// parse are logged and skipped; a bad document never prevents the rest of
// the directory from loading.
func LoadDir(dir string, log *zap.SugaredLogger) ([]*store.Job, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read job directory %s", dir)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	var jobs []*store.Job
	for _, name := range names {
		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			log.Warnw("Failed to read job document",
				"file", name,
				"error", err)
			continue
		}

		job, err := Parse(name, content)
		if err != nil {
			log.Warnw("Rejected job document",
				"file", name,
				"error", err)
			continue
		}

		jobs = append(jobs, job)
	}

	log.Infow("Loaded job documents",
		"dir", dir,
		"loaded", len(jobs),
		"seen", len(names))

	return jobs, nil
}
