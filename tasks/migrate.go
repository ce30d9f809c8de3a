package tasks

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
)

// MigratedSuffix is appended to the legacy file name once its content has
// been moved to list files.
const MigratedSuffix = ".migrated"

// Migrate moves the legacy JSON store into list files. It does nothing and
// returns false when there is no legacy file. Tasks referring to an unknown
// list are dropped. The legacy tag set is kept as the store's tags. On
// success the legacy file is renamed so the migration never runs twice.
func (s *Store) Migrate() (bool, error) {
	path := filepath.Join(s.dir, LegacyFileName)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	legacy, err := LoadLegacy(path)
	if err != nil {
		return false, err
	}
	s.logger.Info("migrating legacy data", "path", path, "lists", len(legacy.Lists), "tasks", len(legacy.Tasks))

	var touched []string
	touch := func(uid string) {
		if !slices.Contains(touched, uid) {
			touched = append(touched, uid)
		}
	}

	for _, l := range legacy.Lists {
		if l.UID == "" {
			s.logger.Warn("skipping legacy list without uid", "name", l.Name)
			continue
		}
		if cur, err := s.findList(l.UID); err == nil {
			*cur = l
		} else {
			s.lists.Append(&l)
		}
		touch(l.UID)
	}

	for _, t := range legacy.Tasks {
		if _, err := s.findList(t.ListUID); err != nil {
			s.logger.Warn("dropping legacy task of unknown list", "task", t.UID, "list", t.ListUID)
			continue
		}
		t = s.withDefaults(t)
		if cur, err := s.findTask(t.UID); err == nil {
			*cur = t
		} else {
			s.tasks.Append(&t)
		}
		touch(t.ListUID)
	}

	if s.mergeTags(legacy.Tags) {
		// every file carries the tag set
		for _, l := range s.Lists() {
			touch(l.UID)
		}
		if len(touched) == 0 {
			s.logger.Warn("no list to keep legacy tags in", "tags", len(legacy.Tags))
		}
	}

	for _, uid := range touched {
		if err := ValidateForest(s.Tasks(uid)); err != nil {
			s.logger.Warn("migrated list has an invalid task forest", "list", uid, "error", err)
		}
		if err := s.Save(uid); err != nil {
			return false, fmt.Errorf("failed to migrate list %s: %w", uid, err)
		}
	}

	if err := os.Rename(path, path+MigratedSuffix); err != nil {
		return false, fmt.Errorf("failed to retire legacy data: %w", err)
	}
	s.logger.Info("migrated legacy data", "lists", len(touched), "tags", len(s.tags))
	return true, nil
}

func (s *Store) withDefaults(t TaskData) TaskData {
	now := formatTimestamp(s.now())
	if t.UID == "" {
		t.UID = NewTask(t.ListUID, "", s.now()).UID
	}
	if ts, err := parseTimestamp(t.CreatedAt); err == nil {
		t.CreatedAt = formatTimestamp(ts)
	} else {
		t.CreatedAt = now
	}
	if ts, err := parseTimestamp(t.ChangedAt); err == nil {
		t.ChangedAt = formatTimestamp(ts)
	} else {
		t.ChangedAt = now
	}
	return t
}
