package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/zfogg/photostream/cli/pkg/api"
	clierrors "github.com/zfogg/photostream/cli/pkg/errors"
	"github.com/zfogg/photostream/cli/pkg/formatter"
	"github.com/zfogg/photostream/cli/pkg/images"
	"github.com/zfogg/photostream/cli/pkg/logger"
	"github.com/zfogg/photostream/cli/pkg/output"
	"github.com/zfogg/photostream/cli/pkg/photostream"
	"github.com/zfogg/photostream/cli/pkg/prompter"
)

// DefaultThumbnailSize is the longest side of thumbnails written by ShowPhoto
const DefaultThumbnailSize = 256

// PhotoService lists, searches, uploads and deletes photos
type PhotoService struct {
	client *photostream.Client
}

// NewPhotoService creates a photo service on c
func NewPhotoService(c *photostream.Client) *PhotoService {
	return &PhotoService{client: c}
}

// ListPhotos prints the first page of the stream
func (ps *PhotoService) ListPhotos(ctx context.Context) error {
	result, err := ps.client.LoadPhotos(ctx)
	if err != nil {
		return fmt.Errorf("failed to load photos: %w", err)
	}
	return ps.printPage(fmt.Sprintf("Photos (page %d)", 1), result, 1)
}

// MorePhotos prints a later page of the stream
func (ps *PhotoService) MorePhotos(ctx context.Context, page int) error {
	if page < 2 {
		return clierrors.ValidationError("page", "must be 2 or greater; use 'photos list' for the first page")
	}
	result, err := ps.client.LoadMorePhotos(ctx, page)
	if err != nil {
		return fmt.Errorf("failed to load page %d: %w", page, err)
	}
	return ps.printPage(fmt.Sprintf("Photos (page %d)", page), result, page)
}

// SearchPhotos prints the photos whose description matches query
func (ps *PhotoService) SearchPhotos(ctx context.Context, query string, page int) error {
	result, err := ps.client.SearchPhotos(ctx, query, page)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	if len(result.Photos) == 0 && output.GetOutputFormat() != output.FormatJSON {
		formatter.PrintInfo("No photos match %q", query)
		return nil
	}
	return output.PrintList(fmt.Sprintf("Search results for %q", query), result,
		formatter.PhotoHeaders, formatter.PhotoRows(result.Photos))
}

func (ps *PhotoService) printPage(title string, result *api.PhotoQueryResult, page int) error {
	if len(result.Photos) == 0 && output.GetOutputFormat() != output.FormatJSON {
		formatter.PrintInfo("No photos yet")
		return nil
	}
	if err := output.PrintList(title, result, formatter.PhotoHeaders, formatter.PhotoRows(result.Photos)); err != nil {
		return err
	}
	if result.HasNextPage && output.GetOutputFormat() != output.FormatJSON {
		formatter.PrintInfo("More: photostream-cli photos more %d", page+1)
	}
	return nil
}

// UploadPhoto uploads the image at path. An empty description is prompted for.
func (ps *PhotoService) UploadPhoto(ctx context.Context, path, description string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return clierrors.FileNotFoundError(path)
		}
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := images.Validate(data); err != nil {
		return clierrors.ImageFormatError(path)
	}

	if description == "" {
		description, err = prompter.PromptString("Description: ")
		if err != nil {
			return err
		}
	}

	logger.Debug("Uploading photo", "path", path, "bytes", len(data))
	photo, err := ps.client.UploadPhoto(ctx, description, data)
	if err != nil {
		return fmt.Errorf("failed to upload photo: %w", err)
	}

	formatter.PrintSuccess("Photo uploaded (%s)", formatter.Bytes(int64(len(data))))
	return output.PrintRecord("", formatter.PhotoRecord(photo))
}

// DeletePhoto deletes an own photo, asking first unless yes is set
func (ps *PhotoService) DeletePhoto(ctx context.Context, photoID int, yes bool) error {
	if !yes {
		ok, err := prompter.PromptConfirm(fmt.Sprintf("Delete photo %d?", photoID))
		if err != nil {
			return err
		}
		if !ok {
			formatter.PrintInfo("Cancelled")
			return nil
		}
	}

	if err := ps.client.DeletePhoto(ctx, photoID); err != nil {
		return fmt.Errorf("failed to delete photo %d: %w", photoID, err)
	}
	formatter.PrintSuccess("Photo %d deleted", photoID)
	return nil
}

// ShowPhoto prints one photo from the cached stream, loading the first page
// if the cache does not have it. A non-empty thumbnailOut receives a JPEG
// thumbnail no larger than maxPx.
func (ps *PhotoService) ShowPhoto(ctx context.Context, photoID int, thumbnailOut string, maxPx int) error {
	photo, err := ps.findCached(photoID)
	if err != nil {
		return err
	}
	if photo == nil {
		if _, err := ps.client.LoadPhotos(ctx); err != nil {
			return fmt.Errorf("failed to load photos: %w", err)
		}
		if photo, err = ps.findCached(photoID); err != nil {
			return err
		}
	}
	if photo == nil {
		return clierrors.NotFoundError("Photo", strconv.Itoa(photoID))
	}

	if path, ok := ps.client.Images().Path(photoID); ok {
		photo.ImagePath = path
	}
	if voted, _ := ps.client.HasVoted(photoID); voted {
		liked, _ := ps.client.IsLiked(photoID)
		photo.SetLiked(liked)
	}

	if thumbnailOut != "" {
		if maxPx <= 0 {
			maxPx = DefaultThumbnailSize
		}
		thumb, err := ps.client.Images().Thumbnail(photoID, maxPx)
		if err != nil {
			return fmt.Errorf("failed to build thumbnail: %w", err)
		}
		if err := os.WriteFile(thumbnailOut, thumb, 0644); err != nil {
			return fmt.Errorf("failed to write thumbnail: %w", err)
		}
		formatter.PrintSuccess("Thumbnail written to %s", thumbnailOut)
	}

	return output.PrintRecord(fmt.Sprintf("Photo %d", photoID), formatter.PhotoRecord(photo))
}

func (ps *PhotoService) findCached(photoID int) (*api.Photo, error) {
	rows, err := ps.client.Store().Photos().All()
	if err != nil {
		return nil, fmt.Errorf("failed to read cache: %w", err)
	}
	for _, row := range rows {
		page, err := api.Decode[api.PhotoQueryResult](row.Blob)
		if err != nil {
			logger.Warn("Skipping unreadable cached page", "page", row.Page, "error", err)
			continue
		}
		if p := page.FindPhoto(photoID); p != nil {
			return p, nil
		}
	}
	return nil, nil
}
