package storage

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/hyperjump/compendium/internal/config"
)

// LocalFootprint returns the bytes used on disk by local state: the SQLite
// database with its WAL files, the keyword index, and uploaded files.
// A Mongo backend contributes nothing here.
func LocalFootprint(cfg *config.StorageConfig) (int64, error) {
	paths := []string{cfg.BleveIndexPath, cfg.UploadDir}
	if cfg.Backend != config.BackendMongo && cfg.DatabasePath != "" {
		paths = append(paths, cfg.DatabasePath, cfg.DatabasePath+"-wal", cfg.DatabasePath+"-shm")
	}
	return DiskUsageBytes(paths...)
}

// DiskUsageBytes sums the sizes of regular files under paths. Each path may
// be a file or a directory. Empty and missing paths count as 0.
func DiskUsageBytes(paths ...string) (int64, error) {
	var total int64
	for _, root := range paths {
		if root == "" {
			continue
		}
		err := filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.Type().IsRegular() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += info.Size()
			return nil
		})
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return 0, err
		}
	}
	return total, nil
}
