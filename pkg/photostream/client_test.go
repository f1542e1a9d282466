package photostream

import (
	"context"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/zfogg/photostream/cli/internal/photostreamtest"
	"github.com/zfogg/photostream/cli/pkg/api"
	"github.com/zfogg/photostream/cli/pkg/client"
	"github.com/zfogg/photostream/cli/pkg/events"
	"github.com/zfogg/photostream/cli/pkg/images"
	"github.com/zfogg/photostream/cli/pkg/metrics"
	"github.com/zfogg/photostream/cli/pkg/socket"
	"github.com/zfogg/photostream/cli/pkg/store"
)

const (
	me    = "11111111-2222-4333-8444-555555555555"
	other = "99999999-8888-4777-8666-555555555555"
)

type recorder struct {
	mu     sync.Mutex
	events []string
	errs   []error
}

func (r *recorder) add(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, name)
	if err != nil {
		r.errs = append(r.errs, err)
	}
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) lastErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.errs) == 0 {
		return nil
	}
	return r.errs[len(r.errs)-1]
}

type ClientSuite struct {
	suite.Suite
	server *photostreamtest.Server
	conn   *store.Connection
	images *images.Store
	hub    *events.Hub
	sock   *socket.Client
	client *Client
	rec    *recorder
	ctx    context.Context
}

func TestClientSuite(t *testing.T) {
	suite.Run(t, new(ClientSuite))
}

func (s *ClientSuite) SetupTest() {
	dir := s.T().TempDir()
	s.ctx = context.Background()
	s.server = photostreamtest.NewServer()

	conn, err := store.Open(filepath.Join(dir, "photostream.db"))
	s.Require().NoError(err)
	s.conn = conn

	s.images, err = images.New(filepath.Join(dir, "images"), time.Minute)
	s.Require().NoError(err)

	s.hub = events.NewHub()
	s.sock = socket.NewClient(socket.Config{
		URL:               s.server.SocketURL(),
		InstallationID:    me,
		ConnectTimeout:    2 * time.Second,
		ReconnectDelay:    20 * time.Millisecond,
		ReconnectAttempts: 2,
		Hub:               s.hub,
		Metrics:           metrics.New(),
	})

	httpClient := client.New(client.Options{
		BaseURL:        s.server.URL,
		InstallationID: me,
		Metrics:        metrics.New(),
	})

	s.client, err = New(Options{
		API:          api.New(httpClient),
		Store:        conn,
		Images:       s.images,
		Socket:       s.sock,
		PageSize:     5,
		DismissDelay: 10 * time.Millisecond,
		Metrics:      metrics.New(),
	})
	s.Require().NoError(err)
	s.Equal(2, conn.Refs())

	s.rec = &recorder{}
	s.client.AddPhotoListener(&PhotoListenerFuncs{
		PhotosLoaded:      func(*api.PhotoQueryResult) { s.rec.add("photos_loaded", nil) },
		MorePhotosLoaded:  func(*api.PhotoQueryResult) { s.rec.add("more_photos_loaded", nil) },
		LoadPhotosFailed:  func(err error) { s.rec.add("load_photos_failed", err) },
		NewPhoto:          func(*api.Photo) { s.rec.add("new_photo", nil) },
		PhotoDeleted:      func(int) { s.rec.add("photo_deleted", nil) },
		DeletePhotoFailed: func(_ int, err error) { s.rec.add("delete_photo_failed", err) },
	})
	s.client.AddSearchListener(&SearchListenerFuncs{
		SearchResults: func(string, *api.PhotoQueryResult) { s.rec.add("search_results", nil) },
		SearchFailed:  func(_ string, err error) { s.rec.add("search_failed", err) },
	})
	s.client.AddUploadListener(&UploadListenerFuncs{
		PhotoUploaded: func(*api.Photo) { s.rec.add("photo_uploaded", nil) },
		UploadFailed:  func(err error) { s.rec.add("upload_failed", err) },
	})
	s.client.AddVoteListener(&VoteListenerFuncs{
		PhotoLiked:    func(int) { s.rec.add("photo_liked", nil) },
		PhotoDisliked: func(int) { s.rec.add("photo_disliked", nil) },
		VoteFailed:    func(_ int, err error) { s.rec.add("vote_failed", err) },
		NewVote:       func(*api.Vote) { s.rec.add("new_vote", nil) },
	})
	s.client.AddCommentListener(&CommentListenerFuncs{
		CommentsLoaded:      func(*api.CommentsQueryResult) { s.rec.add("comments_loaded", nil) },
		LoadCommentsFailed:  func(_ int, err error) { s.rec.add("load_comments_failed", err) },
		NewComment:          func(*api.Comment) { s.rec.add("new_comment", nil) },
		CommentPosted:       func(*api.Comment) { s.rec.add("comment_posted", nil) },
		PostCommentFailed:   func(_ int, err error) { s.rec.add("post_comment_failed", err) },
		CommentDeleted:      func(int, int) { s.rec.add("comment_deleted", nil) },
		DeleteCommentFailed: func(_ int, err error) { s.rec.add("delete_comment_failed", err) },
	})
	s.client.AddConnectionListener(&ConnectionListenerFuncs{
		Connected:       func() { s.rec.add("connected", nil) },
		Disconnected:    func(err error) { s.rec.add("disconnected", err) },
		ConnectionError: func(err error) { s.rec.add("connection_error", err) },
	})
}

func (s *ClientSuite) TearDownTest() {
	s.NoError(s.client.Close())
	s.Equal(1, s.conn.Refs())
	s.NoError(s.conn.Close())
	s.hub.Close()
	s.server.Close()
}

func (s *ClientSuite) waitFor(event string) {
	s.Eventually(func() bool {
		for _, e := range s.rec.list() {
			if e == event {
				return true
			}
		}
		return false
	}, 3*time.Second, 5*time.Millisecond, "waiting for %s", event)
}

func (s *ClientSuite) TestLoadPhotosCachesPage() {
	s.server.Seed(7, other)

	first, err := s.client.LoadPhotos(s.ctx)
	s.Require().NoError(err)
	s.Len(first.Photos, 5)
	s.True(first.HasNextPage)

	for _, p := range first.Photos {
		s.Empty(p.Image)
		s.NotEmpty(p.ImagePath)
		s.FileExists(p.ImagePath)
	}

	row, err := s.conn.Photos().Get(1, 5)
	s.Require().NoError(err)
	s.Require().NotNil(row)
	s.NotEmpty(row.ETag)

	second, err := s.client.LoadPhotos(s.ctx)
	s.Require().NoError(err)
	s.Equal(first, second)

	last := s.server.LastRequest()
	s.Equal(row.ETag, last.IfModifiedSince)
	s.Equal(http.StatusNotModified, last.Status)
	s.Equal([]string{"photos_loaded", "photos_loaded"}, s.rec.list())
}

func (s *ClientSuite) TestLoadPhotosRefetchesWhenChanged() {
	s.server.Seed(2, other)
	_, err := s.client.LoadPhotos(s.ctx)
	s.Require().NoError(err)

	s.server.Seed(1, other)
	result, err := s.client.LoadPhotos(s.ctx)
	s.Require().NoError(err)
	s.Len(result.Photos, 3)
	s.Equal(http.StatusOK, s.server.LastRequest().Status)
}

func (s *ClientSuite) TestLoadMorePhotos() {
	s.server.Seed(8, other)

	result, err := s.client.LoadMorePhotos(s.ctx, 2)
	s.Require().NoError(err)
	s.Len(result.Photos, 3)
	s.False(result.HasNextPage)

	row, err := s.conn.Photos().Get(2, 5)
	s.Require().NoError(err)
	s.NotNil(row)
	s.Equal([]string{"more_photos_loaded"}, s.rec.list())

	_, err = s.client.LoadMorePhotos(s.ctx, 0)
	s.ErrorIs(err, api.ErrInvalidInput)
}

func (s *ClientSuite) TestLoadPhotosFailure() {
	s.server.Fail(http.MethodGet, "/stream", http.StatusInternalServerError)

	_, err := s.client.LoadPhotos(s.ctx)
	s.Require().Error(err)
	s.True(client.IsServerError(err))
	s.Equal([]string{"load_photos_failed"}, s.rec.list())
	s.Equal(err, s.rec.lastErr())
}

func (s *ClientSuite) TestLikeStateOverlay() {
	photo := s.server.Seed(1, other)[0]

	s.Require().NoError(s.conn.Votes().Set(photo.ID, true))
	s.Require().NoError(s.conn.Likes().Set(photo.ID, true))

	result, err := s.client.LoadPhotos(s.ctx)
	s.Require().NoError(err)
	s.True(result.Photos[0].Liked)

	s.Require().NoError(s.conn.Likes().Set(photo.ID, false))
	again, err := s.client.LoadPhotos(s.ctx)
	s.Require().NoError(err)
	s.False(again.Photos[0].Liked)
}

func (s *ClientSuite) TestVoting() {
	photo := s.server.Seed(1, other)[0]

	voted, err := s.client.HasVoted(photo.ID)
	s.Require().NoError(err)
	s.False(voted)

	s.Require().NoError(s.client.LikePhoto(s.ctx, photo.ID))
	voted, _ = s.client.HasVoted(photo.ID)
	liked, _ := s.client.IsLiked(photo.ID)
	s.True(voted)
	s.True(liked)

	s.Require().NoError(s.client.DislikePhoto(s.ctx, photo.ID))
	liked, _ = s.client.IsLiked(photo.ID)
	s.False(liked)

	err = s.client.LikePhoto(s.ctx, 404)
	s.True(client.IsNotFound(err))

	s.Equal([]string{"photo_liked", "photo_disliked", "vote_failed"}, s.rec.list())
	stored, _ := s.server.Photo(photo.ID)
	s.Equal(0, stored.Votes)
}

func (s *ClientSuite) TestSearchPhotos() {
	s.server.Seed(3, other)
	_, err := s.client.UploadPhoto(s.ctx, "harbour qzxv", photostreamtest.TestImage())
	s.Require().NoError(err)

	result, err := s.client.SearchPhotos(s.ctx, "QZXV", 1)
	s.Require().NoError(err)
	s.Require().Len(result.Photos, 1)
	s.True(result.Photos[0].Deleteable)

	_, err = s.client.SearchPhotos(s.ctx, " ", 1)
	s.ErrorIs(err, api.ErrInvalidInput)

	s.Equal([]string{"photo_uploaded", "search_results", "search_failed"}, s.rec.list())

	all, err := s.conn.Photos().All()
	s.Require().NoError(err)
	s.Empty(all, "search results are not cached")
}

func (s *ClientSuite) TestUploadPhoto() {
	img := photostreamtest.TestImage()

	photo, err := s.client.UploadPhoto(s.ctx, "morning", img)
	s.Require().NoError(err)
	s.Empty(photo.Image)
	s.NotEmpty(photo.ImagePath)

	data, err := s.images.Load(photo.ID)
	s.Require().NoError(err)
	s.Equal(img, data)

	_, err = s.client.UploadPhoto(s.ctx, "bad", []byte("not an image"))
	s.ErrorIs(err, images.ErrNotImage)
	s.Len(s.server.Requests(), 1)

	s.Equal([]string{"photo_uploaded", "upload_failed"}, s.rec.list())
}

func (s *ClientSuite) TestDeletePhoto() {
	photo, err := s.client.UploadPhoto(s.ctx, "mine", photostreamtest.TestImage())
	s.Require().NoError(err)
	s.Require().NoError(s.client.LikePhoto(s.ctx, photo.ID))
	_, err = s.client.LoadComments(s.ctx, photo.ID)
	s.Require().NoError(err)

	theirs := s.server.Seed(1, other)[0]
	err = s.client.DeletePhoto(s.ctx, theirs.ID)
	s.True(client.IsForbidden(err))

	s.Require().NoError(s.client.DeletePhoto(s.ctx, photo.ID))

	voted, _ := s.client.HasVoted(photo.ID)
	s.False(voted)
	row, _ := s.conn.Comments().Get(photo.ID)
	s.Nil(row)
	_, ok := s.images.Path(photo.ID)
	s.False(ok)

	s.Equal([]string{"photo_uploaded", "photo_liked", "comments_loaded", "delete_photo_failed", "photo_deleted"}, s.rec.list())
}

func (s *ClientSuite) TestComments() {
	photo := s.server.Seed(1, other)[0]
	s.server.AddComment(photo.ID, other, "first")

	result, err := s.client.LoadComments(s.ctx, photo.ID)
	s.Require().NoError(err)
	s.Len(result.Comments, 1)

	again, err := s.client.LoadComments(s.ctx, photo.ID)
	s.Require().NoError(err)
	s.Equal(result, again)
	s.Equal(http.StatusNotModified, s.server.LastRequest().Status)

	posted, err := s.client.PostComment(s.ctx, photo.ID, "second")
	s.Require().NoError(err)
	row, _ := s.conn.Comments().Get(photo.ID)
	s.Nil(row, "posting evicts the cached list")

	result, err = s.client.LoadComments(s.ctx, photo.ID)
	s.Require().NoError(err)
	s.Len(result.Comments, 2)

	s.Require().NoError(s.client.DeleteComment(s.ctx, photo.ID, posted.ID))
	row, _ = s.conn.Comments().Get(photo.ID)
	s.Nil(row)

	err = s.client.DeleteComment(s.ctx, photo.ID, result.Comments[0].ID)
	s.True(client.IsForbidden(err))

	_, err = s.client.PostComment(s.ctx, photo.ID, "")
	s.ErrorIs(err, api.ErrInvalidInput)

	_, err = s.client.LoadComments(s.ctx, 404)
	s.True(client.IsNotFound(err))

	s.Equal([]string{
		"comments_loaded", "comments_loaded", "comment_posted", "comments_loaded",
		"comment_deleted", "delete_comment_failed", "post_comment_failed", "load_comments_failed",
	}, s.rec.list())
}

func (s *ClientSuite) TestProgressNotifications() {
	s.server.Seed(1, other)
	progress := &progressRecorder{}
	s.client.AddRequestListener(progress)

	_, err := s.client.LoadPhotos(s.ctx)
	s.Require().NoError(err)
	s.False(s.client.Requests().IsOpen(LoadPhotos))

	s.Eventually(func() bool {
		started, finished := progress.counts()
		return started == 1 && finished == 1
	}, time.Second, 5*time.Millisecond)

	s.client.RemoveRequestListener(progress)
}

func (s *ClientSuite) TestAsyncOperations() {
	photo := s.server.Seed(6, other)[0]

	s.client.LoadPhotosAsync(s.ctx)
	s.client.LoadMorePhotosAsync(s.ctx, 2)
	s.client.SearchPhotosAsync(s.ctx, "zzzz-no-match", 1)
	s.client.LikePhotoAsync(s.ctx, photo.ID)
	s.client.LoadCommentsAsync(s.ctx, photo.ID)
	s.client.Wait()

	s.ElementsMatch([]string{
		"photos_loaded", "more_photos_loaded", "search_results", "photo_liked", "comments_loaded",
	}, s.rec.list())
}

func (s *ClientSuite) TestAsyncWritesAndDeletes() {
	s.client.UploadPhotoAsync(s.ctx, "async", photostreamtest.TestImage())
	s.client.Wait()
	s.Require().Equal([]string{"photo_uploaded"}, s.rec.list())

	s.client.PostCommentAsync(s.ctx, 1, "hi")
	s.client.DislikePhotoAsync(s.ctx, 1)
	s.client.Wait()

	s.client.DeleteCommentAsync(s.ctx, 1, 1)
	s.client.Wait()
	s.client.DeletePhotoAsync(s.ctx, 1)
	s.client.Wait()

	s.ElementsMatch([]string{
		"photo_uploaded", "comment_posted", "photo_disliked", "comment_deleted", "photo_deleted",
	}, s.rec.list())
}

func (s *ClientSuite) cachedPhoto(id int) *api.Photo {
	row, err := s.conn.Photos().Get(1, 5)
	s.Require().NoError(err)
	s.Require().NotNil(row)
	page, err := api.Decode[api.PhotoQueryResult](row.Blob)
	s.Require().NoError(err)
	return page.FindPhoto(id)
}

func (s *ClientSuite) TestPushEvents() {
	photo := s.server.Seed(1, other)[0]
	old := s.server.AddComment(photo.ID, other, "first")
	_, err := s.client.LoadPhotos(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, s.cachedPhoto(photo.ID).CommentCount)
	_, err = s.client.LoadComments(s.ctx, photo.ID)
	s.Require().NoError(err)

	s.Require().NoError(s.client.Connect(s.ctx))
	s.True(s.client.IsConnected())
	s.waitFor("connected")
	s.Require().True(s.server.WaitForSockets(1, 2*time.Second))

	s.server.Emit("new_comment", map[string]interface{}{"id": 50, "photo_id": photo.ID, "message": "pushed"})
	s.waitFor("new_comment")
	row, err := s.conn.Comments().Get(photo.ID)
	s.Require().NoError(err)
	s.Nil(row)
	s.Equal(2, s.cachedPhoto(photo.ID).CommentCount)

	s.server.Emit("new_vote", map[string]int{"photo_id": photo.ID, "votes": 4})
	s.waitFor("new_vote")
	s.Equal(4, s.cachedPhoto(photo.ID).Votes)

	comments, err := s.client.LoadComments(s.ctx, photo.ID)
	s.Require().NoError(err)
	s.Len(comments.Comments, 1)
	s.server.Emit("comment_deleted", map[string]int{"id": old.ID, "photo_id": photo.ID})
	s.waitFor("comment_deleted")
	s.Equal(1, s.cachedPhoto(photo.ID).CommentCount)
	row, err = s.conn.Comments().Get(photo.ID)
	s.Require().NoError(err)
	s.Require().NotNil(row)
	cached, err := api.Decode[api.CommentsQueryResult](row.Blob)
	s.Require().NoError(err)
	s.Empty(cached.Comments)

	s.server.Emit("new_photo", map[string]interface{}{
		"id":    77,
		"image": "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNk+M9QDwADhgGAWjR9awAAAABJRU5ErkJggg==",
	})
	s.waitFor("new_photo")
	s.Eventually(func() bool {
		_, ok := s.images.Path(77)
		return ok
	}, time.Second, 5*time.Millisecond)

	s.server.Emit("photo_deleted", map[string]int{"id": photo.ID})
	s.waitFor("photo_deleted")
	s.Nil(s.cachedPhoto(photo.ID))

	s.server.DropSockets()
	s.waitFor("disconnected")

	s.client.Disconnect()
	s.False(s.client.IsConnected())
}

func (s *ClientSuite) TestNotModifiedWithoutCachedPage() {
	s.server.Seed(1, other)
	s.server.Fail(http.MethodGet, "/stream", http.StatusNotModified)

	_, err := s.client.LoadPhotos(s.ctx)
	s.Require().Error(err)
	s.Contains(err.Error(), "not modified without a cached copy")
	s.Equal([]string{"load_photos_failed"}, s.rec.list())
}

func (s *ClientSuite) TestConnectWithoutSocket() {
	c, err := New(Options{
		API:    s.client.API(),
		Store:  s.conn,
		Images: s.images,
		Hub:    s.hub,
	})
	s.Require().NoError(err)
	defer c.Close()

	s.ErrorIs(c.Connect(s.ctx), ErrNoSocket)
	s.False(c.IsConnected())
	s.Equal(DefaultPageSize, c.PageSize())
}

func (s *ClientSuite) TestClosedClientRejectsWork() {
	c, err := New(Options{API: s.client.API(), Store: s.conn, Images: s.images, Socket: s.sock})
	s.Require().NoError(err)
	s.Equal(3, s.conn.Refs())

	s.Require().NoError(c.Close())
	s.Require().NoError(c.Close())
	s.Equal(2, s.conn.Refs())

	s.False(c.Go(s.ctx, func(context.Context) {}))
	s.ErrorIs(c.Connect(s.ctx), ErrClosed)
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Options{})
	if err == nil {
		t.Fatal("expected an error without dependencies")
	}
}
