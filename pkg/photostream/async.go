package photostream

import (
	"context"
)

// Go runs fn on its own goroutine, tracked until Wait. It reports false
// once the client is closed.
func (c *Client) Go(ctx context.Context, fn func(ctx context.Context)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn(ctx)
	}()
	return true
}

// Wait blocks until every request started with Go has returned
func (c *Client) Wait() {
	c.wg.Wait()
}

func (c *Client) LoadPhotosAsync(ctx context.Context) {
	c.Go(ctx, func(ctx context.Context) { _, _ = c.LoadPhotos(ctx) })
}

func (c *Client) LoadMorePhotosAsync(ctx context.Context, page int) {
	c.Go(ctx, func(ctx context.Context) { _, _ = c.LoadMorePhotos(ctx, page) })
}

func (c *Client) SearchPhotosAsync(ctx context.Context, query string, page int) {
	c.Go(ctx, func(ctx context.Context) { _, _ = c.SearchPhotos(ctx, query, page) })
}

func (c *Client) UploadPhotoAsync(ctx context.Context, description string, image []byte) {
	c.Go(ctx, func(ctx context.Context) { _, _ = c.UploadPhoto(ctx, description, image) })
}

func (c *Client) DeletePhotoAsync(ctx context.Context, photoID int) {
	c.Go(ctx, func(ctx context.Context) { _ = c.DeletePhoto(ctx, photoID) })
}

func (c *Client) LikePhotoAsync(ctx context.Context, photoID int) {
	c.Go(ctx, func(ctx context.Context) { _ = c.LikePhoto(ctx, photoID) })
}

func (c *Client) DislikePhotoAsync(ctx context.Context, photoID int) {
	c.Go(ctx, func(ctx context.Context) { _ = c.DislikePhoto(ctx, photoID) })
}

func (c *Client) LoadCommentsAsync(ctx context.Context, photoID int) {
	c.Go(ctx, func(ctx context.Context) { _, _ = c.LoadComments(ctx, photoID) })
}

func (c *Client) PostCommentAsync(ctx context.Context, photoID int, message string) {
	c.Go(ctx, func(ctx context.Context) { _, _ = c.PostComment(ctx, photoID, message) })
}

func (c *Client) DeleteCommentAsync(ctx context.Context, photoID, commentID int) {
	c.Go(ctx, func(ctx context.Context) { _ = c.DeleteComment(ctx, photoID, commentID) })
}
