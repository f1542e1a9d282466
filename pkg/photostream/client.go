// Package photostream is the client-side orchestration layer: it runs API
// calls against the local cache, keeps per-kind progress counts and fans
// results and push events out to registered listeners.
package photostream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/zfogg/photostream/cli/pkg/api"
	"github.com/zfogg/photostream/cli/pkg/dispatch"
	"github.com/zfogg/photostream/cli/pkg/events"
	"github.com/zfogg/photostream/cli/pkg/images"
	"github.com/zfogg/photostream/cli/pkg/logger"
	"github.com/zfogg/photostream/cli/pkg/metrics"
	"github.com/zfogg/photostream/cli/pkg/socket"
	"github.com/zfogg/photostream/cli/pkg/store"
	"go.opentelemetry.io/otel/attribute"
)

// DefaultPageSize is the stream page size when none is configured
const DefaultPageSize = 5

var (
	ErrNoSocket = errors.New("photostream: no socket configured")
	ErrClosed   = errors.New("photostream: client closed")
)

// Options wires a Client
type Options struct {
	API    *api.API
	Store  *store.Connection
	Images *images.Store
	// Socket is optional; without it Connect fails with ErrNoSocket
	Socket *socket.Client
	// Hub defaults to the socket's hub
	Hub          *events.Hub
	Dispatcher   dispatch.Poster
	PageSize     int
	DismissDelay time.Duration
	Metrics      *metrics.Metrics
}

// Client is the photostream orchestration client
type Client struct {
	api      *api.API
	store    *store.Connection
	images   *images.Store
	socket   *socket.Client
	hub      *events.Hub
	poster   dispatch.Poster
	pageSize int
	requests *RequestCounter

	photoListeners      listeners[PhotoListener]
	searchListeners     listeners[SearchListener]
	uploadListeners     listeners[UploadListener]
	voteListeners       listeners[VoteListener]
	commentListeners    listeners[CommentListener]
	connectionListeners listeners[ConnectionListener]

	mu        sync.Mutex
	wg        sync.WaitGroup
	closed    bool
	sub       *events.Subscription
	subStop   chan struct{}
	subDone   chan struct{}
	closeOnce sync.Once
}

// New creates a client. It takes its own reference on opts.Store, released
// by Close.
func New(opts Options) (*Client, error) {
	if opts.API == nil || opts.Store == nil || opts.Images == nil {
		return nil, fmt.Errorf("photostream: API, Store and Images are required")
	}
	if err := opts.Store.Acquire(); err != nil {
		return nil, err
	}

	if opts.Dispatcher == nil {
		opts.Dispatcher = dispatch.Inline{}
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.DismissDelay <= 0 {
		opts.DismissDelay = DefaultDismissDelay
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Get()
	}
	if opts.Hub == nil {
		if opts.Socket != nil {
			opts.Hub = opts.Socket.Hub()
		} else {
			opts.Hub = events.SharedHub()
		}
	}

	return &Client{
		api:      opts.API,
		store:    opts.Store,
		images:   opts.Images,
		socket:   opts.Socket,
		hub:      opts.Hub,
		poster:   opts.Dispatcher,
		pageSize: opts.PageSize,
		requests: NewRequestCounter(opts.Dispatcher, opts.DismissDelay, opts.Metrics.OpenRequests),
	}, nil
}

// Requests returns the open-request counter
func (c *Client) Requests() *RequestCounter {
	return c.requests
}

// PageSize returns the stream page size
func (c *Client) PageSize() int {
	return c.pageSize
}

// Images returns the image store
func (c *Client) Images() *images.Store {
	return c.images
}

// Store returns the cache connection
func (c *Client) Store() *store.Connection {
	return c.store
}

// API returns the REST endpoints
func (c *Client) API() *api.API {
	return c.api
}

func (c *Client) AddPhotoListener(l PhotoListener)           { c.photoListeners.add(l) }
func (c *Client) RemovePhotoListener(l PhotoListener)        { c.photoListeners.remove(l) }
func (c *Client) AddSearchListener(l SearchListener)         { c.searchListeners.add(l) }
func (c *Client) RemoveSearchListener(l SearchListener)      { c.searchListeners.remove(l) }
func (c *Client) AddUploadListener(l UploadListener)         { c.uploadListeners.add(l) }
func (c *Client) RemoveUploadListener(l UploadListener)      { c.uploadListeners.remove(l) }
func (c *Client) AddVoteListener(l VoteListener)             { c.voteListeners.add(l) }
func (c *Client) RemoveVoteListener(l VoteListener)          { c.voteListeners.remove(l) }
func (c *Client) AddCommentListener(l CommentListener)       { c.commentListeners.add(l) }
func (c *Client) RemoveCommentListener(l CommentListener)    { c.commentListeners.remove(l) }
func (c *Client) AddRequestListener(l RequestListener)       { c.requests.AddListener(l) }
func (c *Client) RemoveRequestListener(l RequestListener)    { c.requests.RemoveListener(l) }
func (c *Client) AddConnectionListener(l ConnectionListener) { c.connectionListeners.add(l) }
func (c *Client) RemoveConnectionListener(l ConnectionListener) {
	c.connectionListeners.remove(l)
}

func (c *Client) notifyPhotos(fn func(PhotoListener)) {
	c.poster.Post(func() { c.photoListeners.each(fn) })
}

func (c *Client) notifySearch(fn func(SearchListener)) {
	c.poster.Post(func() { c.searchListeners.each(fn) })
}

func (c *Client) notifyUpload(fn func(UploadListener)) {
	c.poster.Post(func() { c.uploadListeners.each(fn) })
}

func (c *Client) notifyVotes(fn func(VoteListener)) {
	c.poster.Post(func() { c.voteListeners.each(fn) })
}

func (c *Client) notifyComments(fn func(CommentListener)) {
	c.poster.Post(func() { c.commentListeners.each(fn) })
}

func (c *Client) notifyConnection(fn func(ConnectionListener)) {
	c.poster.Post(func() { c.connectionListeners.each(fn) })
}

// LoadPhotos fetches the first stream page, answering from the cache when
// the server reports it unchanged
func (c *Client) LoadPhotos(ctx context.Context) (*api.PhotoQueryResult, error) {
	c.requests.Begin(LoadPhotos)
	defer c.requests.End(LoadPhotos)
	ctx, span := traceRequest(ctx, LoadPhotos)
	defer span.End()

	result, err := c.loadPage(ctx, 1)
	if err != nil {
		c.notifyPhotos(func(l PhotoListener) { l.OnLoadPhotosFailed(err) })
		failSpan(span, err)
		return nil, err
	}
	c.notifyPhotos(func(l PhotoListener) { l.OnPhotosLoaded(result) })
	return result, nil
}

// LoadMorePhotos fetches a later stream page
func (c *Client) LoadMorePhotos(ctx context.Context, page int) (*api.PhotoQueryResult, error) {
	c.requests.Begin(LoadMorePhotos)
	defer c.requests.End(LoadMorePhotos)
	ctx, span := traceRequest(ctx, LoadMorePhotos, attribute.Int("photostream.page", page))
	defer span.End()

	result, err := c.loadPage(ctx, page)
	if err != nil {
		c.notifyPhotos(func(l PhotoListener) { l.OnLoadPhotosFailed(err) })
		failSpan(span, err)
		return nil, err
	}
	c.notifyPhotos(func(l PhotoListener) { l.OnMorePhotosLoaded(result) })
	return result, nil
}

func (c *Client) loadPage(ctx context.Context, page int) (*api.PhotoQueryResult, error) {
	if page < 1 {
		return nil, fmt.Errorf("%w: page must be positive, got %d", api.ErrInvalidInput, page)
	}

	photos := c.store.Photos()
	cached, err := photos.Get(page, c.pageSize)
	if err != nil {
		logger.Warn("Failed to read cached page", "page", page, "error", err)
		cached = nil
	}

	etag := ""
	if cached != nil {
		etag = cached.ETag
	}

	var res *api.Result[api.PhotoQueryResult]
	if page == 1 {
		res, err = c.api.GetStream(ctx, c.pageSize, etag)
	} else {
		res, err = c.api.GetMore(ctx, page, c.pageSize, etag)
	}
	if err != nil {
		return nil, err
	}

	var result *api.PhotoQueryResult
	if res.NotModified {
		if cached == nil {
			return nil, fmt.Errorf("page %d reported not modified without a cached copy", page)
		}
		logger.Debug("Stream page not modified", "page", page, "etag", etag)
		result, err = api.Decode[api.PhotoQueryResult](cached.Blob)
		if err != nil {
			return nil, err
		}
	} else {
		result = res.Value
		if result == nil {
			return nil, fmt.Errorf("empty response for page %d", page)
		}
		c.storeImages(result)

		blob, err := api.Encode(result)
		if err != nil {
			return nil, err
		}
		if err := photos.Put(page, c.pageSize, blob, res.ETag); err != nil {
			logger.Warn("Failed to cache page", "page", page, "error", err)
		}
	}

	c.overlayLikes(result)
	return result, nil
}

// storeImages moves inline images to the image store
func (c *Client) storeImages(result *api.PhotoQueryResult) {
	for i := range result.Photos {
		c.storeImage(&result.Photos[i])
	}
}

func (c *Client) storeImage(p *api.Photo) {
	if p.Image == "" {
		return
	}
	path, err := c.images.SaveBase64(p.ID, p.Image)
	if err != nil {
		logger.Warn("Failed to store image", "photo_id", p.ID, "error", err)
		return
	}
	p.ImagePath = path
	p.Image = ""
}

// overlayLikes applies votes cast from this installation
func (c *Client) overlayLikes(result *api.PhotoQueryResult) {
	for i := range result.Photos {
		p := &result.Photos[i]
		voted, err := c.store.Votes().IsSet(p.ID)
		if err != nil || !voted {
			continue
		}
		liked, err := c.store.Likes().IsSet(p.ID)
		if err != nil {
			continue
		}
		p.SetLiked(liked)
	}
}

// SearchPhotos runs a search; results are never cached
func (c *Client) SearchPhotos(ctx context.Context, query string, page int) (*api.PhotoQueryResult, error) {
	c.requests.Begin(SearchPhotos)
	defer c.requests.End(SearchPhotos)
	ctx, span := traceRequest(ctx, SearchPhotos, attribute.String("photostream.query", query))
	defer span.End()

	result, err := c.api.Search(ctx, query, page, c.pageSize)
	if err != nil {
		c.notifySearch(func(l SearchListener) { l.OnSearchFailed(query, err) })
		failSpan(span, err)
		return nil, err
	}

	c.storeImages(result)
	c.overlayLikes(result)
	c.notifySearch(func(l SearchListener) { l.OnSearchResults(query, result) })
	return result, nil
}

// UploadPhoto posts a new photo
func (c *Client) UploadPhoto(ctx context.Context, description string, image []byte) (*api.Photo, error) {
	c.requests.Begin(UploadPhoto)
	defer c.requests.End(UploadPhoto)
	ctx, span := traceRequest(ctx, UploadPhoto)
	defer span.End()

	photo, err := c.uploadPhoto(ctx, description, image)
	if err != nil {
		c.notifyUpload(func(l UploadListener) { l.OnUploadFailed(err) })
		failSpan(span, err)
		return nil, err
	}
	c.notifyUpload(func(l UploadListener) { l.OnPhotoUploaded(photo) })
	return photo, nil
}

func (c *Client) uploadPhoto(ctx context.Context, description string, image []byte) (*api.Photo, error) {
	if err := images.Validate(image); err != nil {
		return nil, err
	}

	photo, err := c.api.UploadPhoto(ctx, image, description)
	if err != nil {
		return nil, err
	}

	path, err := c.images.Save(photo.ID, image)
	if err != nil {
		logger.Warn("Failed to store uploaded image", "photo_id", photo.ID, "error", err)
	} else {
		photo.ImagePath = path
		photo.Image = ""
	}
	return photo, nil
}

// DeletePhoto deletes an own photo and drops everything cached for it
func (c *Client) DeletePhoto(ctx context.Context, photoID int) error {
	c.requests.Begin(DeletePhoto)
	defer c.requests.End(DeletePhoto)
	ctx, span := traceRequest(ctx, DeletePhoto, attribute.Int("photostream.photo_id", photoID))
	defer span.End()

	if err := c.api.DeletePhoto(ctx, photoID); err != nil {
		c.notifyPhotos(func(l PhotoListener) { l.OnDeletePhotoFailed(photoID, err) })
		failSpan(span, err)
		return err
	}

	c.forgetPhoto(photoID)
	c.notifyPhotos(func(l PhotoListener) { l.OnPhotoDeleted(photoID) })
	return nil
}

func (c *Client) forgetPhoto(photoID int) {
	c.patchPages(func(r *api.PhotoQueryResult) bool { return r.RemovePhoto(photoID) })
	for _, err := range []error{
		c.store.Comments().Delete(photoID),
		c.store.Likes().Delete(photoID),
		c.store.Votes().Delete(photoID),
		c.images.Delete(photoID),
	} {
		if err != nil {
			logger.Warn("Failed to drop cached photo state", "photo_id", photoID, "error", err)
		}
	}
}

// LikePhoto votes a photo up
func (c *Client) LikePhoto(ctx context.Context, photoID int) error {
	return c.vote(ctx, photoID, true)
}

// DislikePhoto votes a photo down
func (c *Client) DislikePhoto(ctx context.Context, photoID int) error {
	return c.vote(ctx, photoID, false)
}

func (c *Client) vote(ctx context.Context, photoID int, like bool) error {
	c.requests.Begin(Vote)
	defer c.requests.End(Vote)
	ctx, span := traceRequest(ctx, Vote, attribute.Int("photostream.photo_id", photoID), attribute.Bool("photostream.like", like))
	defer span.End()

	var err error
	if like {
		err = c.api.LikePhoto(ctx, photoID)
	} else {
		err = c.api.DislikePhoto(ctx, photoID)
	}
	if err != nil {
		c.notifyVotes(func(l VoteListener) { l.OnVoteFailed(photoID, err) })
		failSpan(span, err)
		return err
	}

	if err := c.store.Likes().Set(photoID, like); err != nil {
		logger.Warn("Failed to record like", "photo_id", photoID, "error", err)
	}
	if err := c.store.Votes().Set(photoID, true); err != nil {
		logger.Warn("Failed to record vote", "photo_id", photoID, "error", err)
	}

	if like {
		c.notifyVotes(func(l VoteListener) { l.OnPhotoLiked(photoID) })
	} else {
		c.notifyVotes(func(l VoteListener) { l.OnPhotoDisliked(photoID) })
	}
	return nil
}

// HasVoted reports whether this installation voted on a photo
func (c *Client) HasVoted(photoID int) (bool, error) {
	return c.store.Votes().IsSet(photoID)
}

// IsLiked reports whether this installation's vote was a like
func (c *Client) IsLiked(photoID int) (bool, error) {
	return c.store.Likes().IsSet(photoID)
}

// LoadComments fetches the comments of a photo through the cache
func (c *Client) LoadComments(ctx context.Context, photoID int) (*api.CommentsQueryResult, error) {
	c.requests.Begin(LoadComments)
	defer c.requests.End(LoadComments)
	ctx, span := traceRequest(ctx, LoadComments, attribute.Int("photostream.photo_id", photoID))
	defer span.End()

	result, err := c.loadComments(ctx, photoID)
	if err != nil {
		c.notifyComments(func(l CommentListener) { l.OnLoadCommentsFailed(photoID, err) })
		failSpan(span, err)
		return nil, err
	}
	c.notifyComments(func(l CommentListener) { l.OnCommentsLoaded(result) })
	return result, nil
}

func (c *Client) loadComments(ctx context.Context, photoID int) (*api.CommentsQueryResult, error) {
	comments := c.store.Comments()
	cached, err := comments.Get(photoID)
	if err != nil {
		logger.Warn("Failed to read cached comments", "photo_id", photoID, "error", err)
		cached = nil
	}

	etag := ""
	if cached != nil {
		etag = cached.ETag
	}

	res, err := c.api.GetComments(ctx, photoID, etag)
	if err != nil {
		return nil, err
	}

	if res.NotModified && cached != nil {
		logger.Debug("Comments not modified", "photo_id", photoID, "etag", etag)
		return api.Decode[api.CommentsQueryResult](cached.Blob)
	}
	if res.Value == nil {
		return nil, fmt.Errorf("empty response for comments of photo %d", photoID)
	}

	blob, err := api.Encode(res.Value)
	if err != nil {
		return nil, err
	}
	if err := comments.Put(photoID, blob, res.ETag); err != nil {
		logger.Warn("Failed to cache comments", "photo_id", photoID, "error", err)
	}
	return res.Value, nil
}

// PostComment adds a comment to a photo
func (c *Client) PostComment(ctx context.Context, photoID int, message string) (*api.Comment, error) {
	c.requests.Begin(PostComment)
	defer c.requests.End(PostComment)
	ctx, span := traceRequest(ctx, PostComment, attribute.Int("photostream.photo_id", photoID))
	defer span.End()

	comment, err := c.api.PostComment(ctx, photoID, message)
	if err != nil {
		c.notifyComments(func(l CommentListener) { l.OnPostCommentFailed(photoID, err) })
		failSpan(span, err)
		return nil, err
	}

	c.evictComments(photoID)
	c.notifyComments(func(l CommentListener) { l.OnCommentPosted(comment) })
	return comment, nil
}

// DeleteComment deletes an own comment
func (c *Client) DeleteComment(ctx context.Context, photoID, commentID int) error {
	c.requests.Begin(DeleteComment)
	defer c.requests.End(DeleteComment)
	ctx, span := traceRequest(ctx, DeleteComment, attribute.Int("photostream.comment_id", commentID))
	defer span.End()

	if err := c.api.DeleteComment(ctx, commentID); err != nil {
		c.notifyComments(func(l CommentListener) { l.OnDeleteCommentFailed(commentID, err) })
		failSpan(span, err)
		return err
	}

	c.evictComments(photoID)
	c.notifyComments(func(l CommentListener) { l.OnCommentDeleted(photoID, commentID) })
	return nil
}

// patchPages rewrites every cached page fn reports as changed, keeping the
// stored ETag
func (c *Client) patchPages(fn func(*api.PhotoQueryResult) bool) {
	photos := c.store.Photos()
	rows, err := photos.All()
	if err != nil {
		logger.Warn("Failed to read cached pages", "error", err)
		return
	}
	for _, row := range rows {
		page, err := api.Decode[api.PhotoQueryResult](row.Blob)
		if err != nil || !fn(page) {
			continue
		}
		blob, err := api.Encode(page)
		if err != nil {
			continue
		}
		if err := photos.Put(row.Page, row.PageSize, blob, row.ETag); err != nil {
			logger.Warn("Failed to patch cached page", "page", row.Page, "error", err)
		}
	}
}

// patchPhoto applies fn to the cached copy of one photo
func (c *Client) patchPhoto(photoID int, fn func(*api.Photo)) {
	c.patchPages(func(r *api.PhotoQueryResult) bool {
		p := r.FindPhoto(photoID)
		if p == nil {
			return false
		}
		fn(p)
		return true
	})
}

// dropCachedComment removes one comment from the cached list of a photo
func (c *Client) dropCachedComment(photoID, commentID int) {
	comments := c.store.Comments()
	row, err := comments.Get(photoID)
	if err != nil || row == nil {
		return
	}
	list, err := api.Decode[api.CommentsQueryResult](row.Blob)
	if err != nil || !list.RemoveComment(commentID) {
		return
	}
	blob, err := api.Encode(list)
	if err != nil {
		return
	}
	if err := comments.Put(photoID, blob, row.ETag); err != nil {
		logger.Warn("Failed to patch cached comments", "photo_id", photoID, "error", err)
	}
}

func (c *Client) evictComments(photoID int) {
	if err := c.store.Comments().Delete(photoID); err != nil {
		logger.Warn("Failed to evict cached comments", "photo_id", photoID, "error", err)
	}
}

// Close disconnects, waits for background requests and releases the store
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		c.Disconnect()
		c.wg.Wait()
		err = c.store.Close()
	})
	return err
}
