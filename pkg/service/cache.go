package service

import (
	"fmt"

	"github.com/zfogg/photostream/cli/pkg/formatter"
	"github.com/zfogg/photostream/cli/pkg/output"
	"github.com/zfogg/photostream/cli/pkg/photostream"
	"github.com/zfogg/photostream/cli/pkg/prompter"
)

// CacheService inspects and clears the local cache
type CacheService struct {
	client *photostream.Client
}

// NewCacheService creates a cache service on c
func NewCacheService(c *photostream.Client) *CacheService {
	return &CacheService{client: c}
}

// Info prints row counts and image usage
func (cs *CacheService) Info() error {
	counts, err := cs.client.Store().Counts()
	if err != nil {
		return fmt.Errorf("failed to read cache: %w", err)
	}
	files, size, err := cs.client.Images().Usage()
	if err != nil {
		return fmt.Errorf("failed to read image cache: %w", err)
	}

	record := map[string]interface{}{
		"database":        cs.client.Store().Path(),
		"image_dir":       cs.client.Images().Dir(),
		"cached_pages":    counts["photos"],
		"cached_comments": counts["comments"],
		"likes":           counts["likes"],
		"votes":           counts["votes"],
		"images":          formatter.Count(files, "file", "files"),
		"image_bytes":     formatter.Bytes(size),
		"in_memory":       cs.client.Images().Cached(),
	}
	if output.GetOutputFormat() == output.FormatJSON {
		record["image_files"] = files
		record["image_bytes"] = size
		delete(record, "images")
	}
	return output.PrintRecord("Cache", record)
}

// Clear empties every cache table and the image directory, asking first
// unless yes is set
func (cs *CacheService) Clear(yes bool) error {
	if !yes {
		ok, err := prompter.PromptConfirm("Clear the local cache?")
		if err != nil {
			return err
		}
		if !ok {
			formatter.PrintInfo("Cancelled")
			return nil
		}
	}

	if err := cs.client.Store().Clear(); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	if err := cs.client.Images().Clear(); err != nil {
		return fmt.Errorf("failed to clear images: %w", err)
	}
	formatter.PrintSuccess("Cache cleared")
	return nil
}
