package api

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/zfogg/photostream/cli/pkg/client"
	"github.com/zfogg/photostream/cli/pkg/logger"
)

// API wraps the photostream REST endpoints
type API struct {
	client *client.Client
}

// New creates an API bound to c
func New(c *client.Client) *API {
	return &API{client: c}
}

// Client returns the underlying transport
func (a *API) Client() *client.Client {
	return a.client
}

func getResult[T any](ctx context.Context, c *client.Client, path string, query map[string]string, etag string) (*Result[T], error) {
	resp, err := c.Get(ctx, path, query, etag)
	if err != nil {
		return nil, err
	}

	result := &Result[T]{ETag: resp.ETag, NotModified: resp.NotModified}
	if resp.NotModified {
		if result.ETag == "" {
			result.ETag = etag
		}
		return result, nil
	}

	value, err := Decode[T](resp.Body)
	if err != nil {
		return nil, err
	}
	result.Value = value
	return result, nil
}

func pageQuery(page, pageSize int) map[string]string {
	q := map[string]string{"page_size": strconv.Itoa(pageSize)}
	if page > 0 {
		q["page"] = strconv.Itoa(page)
	}
	return q
}

// GetStream fetches the first page of the stream
func (a *API) GetStream(ctx context.Context, pageSize int, etag string) (*Result[PhotoQueryResult], error) {
	logger.Debug("Getting stream", "page_size", pageSize, "etag", etag)
	return getResult[PhotoQueryResult](ctx, a.client, "/stream", pageQuery(0, pageSize), etag)
}

// GetMore fetches a later page of the stream
func (a *API) GetMore(ctx context.Context, page, pageSize int, etag string) (*Result[PhotoQueryResult], error) {
	logger.Debug("Getting more photos", "page", page, "page_size", pageSize, "etag", etag)
	if page < 1 {
		return nil, fmt.Errorf("%w: page must be positive, got %d", ErrInvalidInput, page)
	}
	return getResult[PhotoQueryResult](ctx, a.client, "/stream/more", pageQuery(page, pageSize), etag)
}

// Search runs a description search. Search results are never conditional.
func (a *API) Search(ctx context.Context, query string, page, pageSize int) (*PhotoQueryResult, error) {
	logger.Debug("Searching photos", "query", query, "page", page, "page_size", pageSize)

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: search query cannot be empty", ErrInvalidInput)
	}

	q := pageQuery(page, pageSize)
	q["q"] = query
	result, err := getResult[PhotoQueryResult](ctx, a.client, "/search", q, "")
	if err != nil {
		return nil, err
	}
	return result.Value, nil
}

// UploadPhoto posts a new photo; image holds the raw file bytes
func (a *API) UploadPhoto(ctx context.Context, image []byte, description string) (*Photo, error) {
	logger.Debug("Uploading photo", "bytes", len(image))

	if len(image) == 0 {
		return nil, fmt.Errorf("%w: image cannot be empty", ErrInvalidInput)
	}

	req := UploadRequest{
		Image:       base64.StdEncoding.EncodeToString(image),
		Description: description,
	}

	resp, err := a.client.Post(ctx, "/image", req)
	if err != nil {
		return nil, err
	}
	return Decode[Photo](resp.Body)
}

// DeletePhoto removes a photo owned by this installation
func (a *API) DeletePhoto(ctx context.Context, photoID int) error {
	logger.Debug("Deleting photo", "photo_id", photoID)

	_, err := a.client.Delete(ctx, fmt.Sprintf("/image/%d", photoID))
	return err
}

// LikePhoto votes a photo up
func (a *API) LikePhoto(ctx context.Context, photoID int) error {
	logger.Debug("Liking photo", "photo_id", photoID)

	_, err := a.client.Put(ctx, fmt.Sprintf("/image/%d/like", photoID), nil)
	return err
}

// DislikePhoto votes a photo down
func (a *API) DislikePhoto(ctx context.Context, photoID int) error {
	logger.Debug("Disliking photo", "photo_id", photoID)

	_, err := a.client.Put(ctx, fmt.Sprintf("/image/%d/dislike", photoID), nil)
	return err
}

// GetComments fetches the comments of a photo
func (a *API) GetComments(ctx context.Context, photoID int, etag string) (*Result[CommentsQueryResult], error) {
	logger.Debug("Getting comments", "photo_id", photoID, "etag", etag)

	result, err := getResult[CommentsQueryResult](ctx, a.client, fmt.Sprintf("/image/%d/comments", photoID), nil, etag)
	if err != nil {
		return nil, err
	}
	if result.Value != nil && result.Value.PhotoID == 0 {
		result.Value.PhotoID = photoID
	}
	return result, nil
}

// PostComment adds a comment to a photo
func (a *API) PostComment(ctx context.Context, photoID int, message string) (*Comment, error) {
	logger.Debug("Posting comment", "photo_id", photoID)

	message = strings.TrimSpace(message)
	if message == "" {
		return nil, fmt.Errorf("%w: comment text cannot be empty", ErrInvalidInput)
	}
	if utf8.RuneCountInString(message) > MaxCommentLength {
		return nil, fmt.Errorf("%w: comment text exceeds %d character limit", ErrInvalidInput, MaxCommentLength)
	}

	resp, err := a.client.Post(ctx, fmt.Sprintf("/image/%d/comment", photoID), CommentRequest{Message: message})
	if err != nil {
		return nil, err
	}

	comment, err := Decode[Comment](resp.Body)
	if err != nil {
		return nil, err
	}
	if comment.PhotoID == 0 {
		comment.PhotoID = photoID
	}
	return comment, nil
}

// DeleteComment removes a comment owned by this installation
func (a *API) DeleteComment(ctx context.Context, commentID int) error {
	logger.Debug("Deleting comment", "comment_id", commentID)

	_, err := a.client.Delete(ctx, fmt.Sprintf("/comment/%d", commentID))
	return err
}
